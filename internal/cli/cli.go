// Package cli implements the workgraph command-line interface.
package cli

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/workgraph/pkg/audit"
	"github.com/matzehuels/workgraph/pkg/buildinfo"
	"github.com/matzehuels/workgraph/pkg/cache"
	"github.com/matzehuels/workgraph/pkg/config"
	"github.com/matzehuels/workgraph/pkg/schema"
	"github.com/matzehuels/workgraph/pkg/snapshot"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// appName is the application name used for directories and display.
	appName = "workgraph"

	// auditSource tags audit events recorded by the CLI.
	auditSource = "cli"
)

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger

	// Set by persistent flags.
	configPath string
	serverURL  string
	schemaFile string
	noSchemas  bool
	noCache    bool

	cfg *config.Config
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{Logger: newLogger(w, level)}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   appName,
		Short: "Workgraph edits node-graph workflow documents",
		Long: `Workgraph loads node-graph workflow documents, normalizes them, rewires
links between nodes, stages widget edits in an overlay and keeps titled
snapshots of workflows.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cmd.SetContext(withLogger(cmd.Context(), c.Logger))
			return c.loadConfig()
		},
	}

	root.SetVersionTemplate(buildinfo.Template())

	pf := root.PersistentFlags()
	pf.StringVar(&c.configPath, "config", "", "config file (default $XDG_CONFIG_HOME/workgraph/config.toml)")
	pf.StringVar(&c.serverURL, "server", "", "node-type schema server URL (overrides server_url)")
	pf.StringVar(&c.schemaFile, "schemas", "", "read node-type schemas from an object_info JSON file")
	pf.BoolVar(&c.noSchemas, "no-schemas", false, "skip node-type schemas; widgets get generic names")
	pf.BoolVar(&c.noCache, "no-cache", false, "bypass the schema cache")

	root.AddCommand(c.normalizeCommand())
	root.AddCommand(c.inspectCommand())
	root.AddCommand(c.connectCommand())
	root.AddCommand(c.disconnectCommand())
	root.AddCommand(c.editCommand())
	root.AddCommand(c.exportCommand())
	root.AddCommand(c.snapshotCommand())
	root.AddCommand(c.schemaCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.serveCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// loadConfig reads the config file once and applies flag overrides.
func (c *CLI) loadConfig() error {
	if c.cfg != nil {
		return nil
	}
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	if c.serverURL != "" {
		cfg.ServerURL = c.serverURL
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	for _, k := range cfg.Unknown {
		c.Logger.Warn("unknown config key", "key", k, "file", cfg.Path)
	}
	if cfg.Path != "" {
		c.Logger.Debug("loaded config", "file", cfg.Path)
	}
	c.cfg = cfg
	return nil
}

// config returns the loaded settings, or the defaults before loading.
func (c *CLI) config() *config.Config {
	if c.cfg == nil {
		return config.Default()
	}
	return c.cfg
}

// =============================================================================
// Collaborator Factories
// =============================================================================

// schemaProvider returns the node-type metadata source selected by flags, or
// nil when schemas are disabled.
func (c *CLI) schemaProvider() (schema.Provider, error) {
	cfg := c.config()
	switch {
	case c.noSchemas:
		return nil, nil
	case c.schemaFile != "":
		return schema.FileProvider{Path: c.schemaFile}, nil
	}
	cc, err := c.newCache()
	if err != nil {
		return nil, err
	}
	src := schema.NewHTTPProvider(cfg.ServerURL, cfg.SchemaTimeout.Duration, c.Logger)
	return schema.NewCachedProvider(src, schema.CachedOptions{
		Cache:   cc,
		TTL:     cfg.SchemaTTL.Duration,
		Refresh: c.noCache,
		Logger:  c.Logger,
	}), nil
}

func (c *CLI) newCache() (cache.Cache, error) {
	dir := c.cacheDir()
	if dir == "" {
		return cache.NewNullCache(), nil
	}
	return cache.NewFileCache(dir)
}

// cacheDir returns the schema cache directory: cache_dir from the config,
// else the XDG standard location (~/.cache/workgraph/).
func (c *CLI) cacheDir() string {
	if c.cfg != nil && c.cfg.CacheDir != "" {
		return c.cfg.CacheDir
	}
	dir, err := defaultCacheDir()
	if err != nil {
		return ""
	}
	return dir
}

func defaultCacheDir() (string, error) {
	if cacheHome := os.Getenv("XDG_CACHE_HOME"); cacheHome != "" {
		return filepath.Join(cacheHome, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cache", appName), nil
}

// openStore opens the configured snapshot backend.
func (c *CLI) openStore(ctx context.Context) (snapshot.Store, error) {
	return snapshot.Open(ctx, c.config().SnapshotConfig())
}

// openSink builds the audit sink: the logger, plus the JSON lines file when
// [audit] path is set. The returned close function is never nil.
func (c *CLI) openSink() (audit.Sink, func() error, error) {
	logSink := audit.NewLogSink(c.Logger)
	path := c.config().Audit.Path
	if path == "" {
		return logSink, func() error { return nil }, nil
	}
	fs, err := audit.OpenFileSink(path)
	if err != nil {
		return nil, nil, err
	}
	return audit.Multi{logSink, fs}, fs.Close, nil
}
