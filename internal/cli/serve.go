package cli

import (
	"github.com/spf13/cobra"

	"github.com/matzehuels/workgraph/pkg/api"
)

func (c *CLI) serveCommand() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve workflow editing and snapshots over HTTP",
		Long: `Serve starts the JSON API: workflow normalize, connect and disconnect, plus
the snapshot routes backed by the configured store. It runs until interrupted.`,
		Example: `  workgraph serve --addr 127.0.0.1:8080
  curl -s localhost:8080/api/snapshots | jq .total_count`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := c.config()
			if addr == "" {
				addr = cfg.API.Addr
			}

			store, err := c.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			schemas, err := c.schemaProvider()
			if err != nil {
				return err
			}
			sink, closeSink, err := c.openSink()
			if err != nil {
				return err
			}
			defer closeSink()

			srv := api.New(api.Options{
				Store:         store,
				Schemas:       schemas,
				SchemaTimeout: cfg.SchemaTimeout.Duration,
				Sink:          sink,
				Logger:        c.Logger,
			})
			c.Logger.Info("serving", "addr", addr, "snapshots", cfg.Snapshots.Backend, "schemas", cfg.ServerURL)
			return srv.ListenAndServe(ctx, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from [api] addr)")
	return cmd
}
