package cli

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/workgraph/pkg/config"
	wgerrors "github.com/matzehuels/workgraph/pkg/errors"
	"github.com/matzehuels/workgraph/pkg/schema"
)

func (c *CLI) schemaCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Inspect node-type schemas from the execution server",
		Long: `Node-type schemas name the widgets of each node type. They are fetched from
the server's /object_info endpoint (--server or server_url) or read from a file
(--schemas) and cached for schema_ttl.`,
	}

	cmd.AddCommand(c.schemaFetchCommand())
	cmd.AddCommand(c.schemaTypesCommand())
	cmd.AddCommand(c.schemaShowCommand())

	return cmd
}

// fetchCatalog loads the schema catalog, showing a spinner while the server
// is contacted.
func (c *CLI) fetchCatalog(cmd *cobra.Command) (schema.Catalog, error) {
	if c.noSchemas {
		return nil, wgerrors.New(wgerrors.ErrCodeInvalidInput, "schemas are disabled by --no-schemas")
	}
	provider, err := c.schemaProvider()
	if err != nil {
		return nil, err
	}
	timeout := c.config().SchemaTimeout.Duration
	if timeout <= 0 {
		timeout = config.DefaultSchemaTimeout
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	spin := newSpinner(ctx, cmd.ErrOrStderr(), "Fetching node-type schemas...")
	spin.Start()
	catalog, err := provider.FetchTypeSchema(ctx)
	spin.Stop()
	if err != nil {
		return nil, wgerrors.Wrap(wgerrors.ErrCodeMetadataUnavailable, err, "fetch node-type schemas")
	}
	return catalog, nil
}

func (c *CLI) schemaFetchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "fetch",
		Short: "Refresh the cached schema catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c.noCache = true
			prog := newProgress(loggerFromContext(cmd.Context()))
			catalog, err := c.fetchCatalog(cmd)
			if err != nil {
				return err
			}
			prog.done("Fetched schemas")
			p := newPrinter(cmd)
			p.success("Cached %d node types", catalog.Types())
			if c.schemaFile == "" {
				p.keyValue("server", c.config().ServerURL)
				p.keyValue("cache", c.cacheDir())
			}
			return nil
		},
	}
}

func (c *CLI) schemaTypesCommand() *cobra.Command {
	var category string

	cmd := &cobra.Command{
		Use:   "types",
		Short: "List node types",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := c.fetchCatalog(cmd)
			if err != nil {
				return err
			}
			p := newPrinter(cmd)
			for _, name := range slices.Sorted(maps.Keys(catalog)) {
				s := catalog[name]
				if category != "" && !strings.HasPrefix(s.Category, category) {
					continue
				}
				p.line(name + "  " + StyleDim.Render(s.Category))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&category, "category", "", "only types whose category starts with this prefix")
	return cmd
}

func (c *CLI) schemaShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <node-type>...",
		Short: "Show the widgets of node types in value order",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := c.fetchCatalog(cmd)
			if err != nil {
				return err
			}
			p := newPrinter(cmd)
			for _, name := range args {
				s, ok := catalog.Lookup(name)
				if !ok {
					return wgerrors.New(wgerrors.ErrCodeNotFound, "unknown node type %q", name)
				}
				printSchema(p, s)
			}
			return nil
		},
	}
}

func printSchema(p printer, s schema.Schema) {
	title := s.Name
	if s.DisplayName != "" && s.DisplayName != s.Name {
		title += " " + StyleDim.Render("("+s.DisplayName+")")
	}
	p.line(StyleTitle.Render(title))
	if s.Category != "" {
		p.keyValue("category", s.Category)
	}
	for i, w := range schema.WidgetsFor(s) {
		desc := w.Kind
		if w.Default != nil {
			desc += fmt.Sprintf(" = %v", w.Default)
		}
		if len(w.Choices) > 0 {
			desc += StyleDim.Render(fmt.Sprintf("  %d choices", len(w.Choices)))
		}
		p.keyValue(fmt.Sprintf("  %d %s", i, w.Name), desc)
	}
	if len(s.OutputName) > 0 {
		p.keyValue("outputs", strings.Join(s.OutputName, ", "))
	}
}
