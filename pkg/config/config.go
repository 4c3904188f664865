// Package config loads workgraph settings from a TOML file.
//
// The file is optional. Every key has a default, and command-line flags
// override whatever the file sets:
//
//	server_url     = "http://127.0.0.1:8188"
//	schema_timeout = "10s"
//	schema_ttl     = "24h"
//	cache_dir      = "~/.cache/workgraph"
//
//	[snapshots]
//	backend        = "file"      # file, sqlite, redis or mongo
//	dir            = ""
//	dsn            = ""
//	redis_addr     = ""
//	mongo_uri      = ""
//	mongo_database = ""
//
//	[audit]
//	path = ""                    # JSON lines; empty disables the file sink
//
//	[api]
//	addr = ":8080"
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	wgerrors "github.com/matzehuels/workgraph/pkg/errors"
	"github.com/matzehuels/workgraph/pkg/snapshot"
)

// Defaults.
const (
	DefaultServerURL     = "http://127.0.0.1:8188"
	DefaultSchemaTimeout = 10 * time.Second
	DefaultSchemaTTL     = 24 * time.Hour
	DefaultAPIAddr       = ":8080"
)

// Duration is a time.Duration written as a string such as "30s" or "2h".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Config holds every setting.
type Config struct {
	ServerURL     string    `toml:"server_url"`
	SchemaTimeout Duration  `toml:"schema_timeout"`
	SchemaTTL     Duration  `toml:"schema_ttl"`
	CacheDir      string    `toml:"cache_dir"`
	Snapshots     Snapshots `toml:"snapshots"`
	Audit         Audit     `toml:"audit"`
	API           API       `toml:"api"`

	// Path is the file the settings were read from, or "" if none was.
	Path string `toml:"-"`
	// Unknown lists keys in the file that no setting uses.
	Unknown []string `toml:"-"`
}

// Snapshots selects the snapshot backend.
type Snapshots struct {
	Backend       string `toml:"backend"`
	Dir           string `toml:"dir"`
	DSN           string `toml:"dsn"`
	RedisAddr     string `toml:"redis_addr"`
	MongoURI      string `toml:"mongo_uri"`
	MongoDatabase string `toml:"mongo_database"`
}

// Audit configures the audit trail.
type Audit struct {
	Path string `toml:"path"`
}

// API configures the HTTP server.
type API struct {
	Addr string `toml:"addr"`
}

// Default returns the settings used when no file exists.
func Default() *Config {
	return &Config{
		ServerURL:     DefaultServerURL,
		SchemaTimeout: Duration{DefaultSchemaTimeout},
		SchemaTTL:     Duration{DefaultSchemaTTL},
		CacheDir:      defaultCacheDir(),
		Snapshots:     Snapshots{Backend: snapshot.BackendFile},
		API:           API{Addr: DefaultAPIAddr},
	}
}

func defaultCacheDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "workgraph")
	}
	return filepath.Join(os.TempDir(), "workgraph-cache")
}

// DefaultPath returns $XDG_CONFIG_HOME/workgraph/config.toml, falling back
// to ~/.config/workgraph/config.toml.
func DefaultPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "workgraph", "config.toml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "workgraph", "config.toml")
}

// Load reads the file at path over the defaults. An empty path means
// DefaultPath, which may be missing. An explicit path must exist.
func Load(path string) (*Config, error) {
	cfg := Default()
	explicit := path != ""
	if !explicit {
		path = DefaultPath()
		if path == "" {
			return cfg, nil
		}
	}

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return cfg, nil
		}
		if errors.Is(err, os.ErrNotExist) {
			return nil, wgerrors.Wrap(wgerrors.ErrCodeInvalidPath, err, "config file %s", path)
		}
		return nil, wgerrors.Wrap(wgerrors.ErrCodeInvalidInput, err, "parse config %s", path)
	}
	cfg.Path = path
	for _, k := range md.Undecoded() {
		cfg.Unknown = append(cfg.Unknown, k.String())
	}
	cfg.CacheDir = expandHome(cfg.CacheDir)
	cfg.Snapshots.Dir = expandHome(cfg.Snapshots.Dir)
	cfg.Snapshots.DSN = expandHome(cfg.Snapshots.DSN)
	cfg.Audit.Path = expandHome(cfg.Audit.Path)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that decoding alone cannot.
func (c *Config) Validate() error {
	if err := wgerrors.ValidateURL(c.ServerURL); err != nil {
		return wgerrors.Wrap(wgerrors.ErrCodeInvalidInput, err, "server_url")
	}
	if c.SchemaTimeout.Duration < 0 {
		return wgerrors.New(wgerrors.ErrCodeInvalidInput, "schema_timeout must not be negative")
	}
	if c.SchemaTTL.Duration < 0 {
		return wgerrors.New(wgerrors.ErrCodeInvalidInput, "schema_ttl must not be negative")
	}
	switch c.Snapshots.Backend {
	case "", snapshot.BackendFile, snapshot.BackendSQLite, snapshot.BackendRedis, snapshot.BackendMongo:
	default:
		return wgerrors.New(wgerrors.ErrCodeInvalidInput, "unknown snapshot backend %q", c.Snapshots.Backend)
	}
	return nil
}

// SnapshotConfig converts the [snapshots] table for snapshot.Open.
func (c *Config) SnapshotConfig() snapshot.Config {
	s := c.Snapshots
	return snapshot.Config{
		Backend:       s.Backend,
		Dir:           s.Dir,
		DSN:           s.DSN,
		RedisAddr:     s.RedisAddr,
		MongoURI:      s.MongoURI,
		MongoDatabase: s.MongoDatabase,
	}
}

// String renders the settings as TOML.
func (c *Config) String() string {
	var b strings.Builder
	if err := toml.NewEncoder(&b).Encode(c); err != nil {
		return fmt.Sprintf("config: %v", err)
	}
	return b.String()
}

func expandHome(p string) string {
	rest, ok := strings.CutPrefix(p, "~/")
	if !ok {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, rest)
}
