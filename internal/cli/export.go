package cli

import (
	"os"

	"github.com/spf13/cobra"

	wgerrors "github.com/matzehuels/workgraph/pkg/errors"
	"github.com/matzehuels/workgraph/pkg/render"
)

// Export formats.
const (
	formatDOT = "dot"
	formatSVG = "svg"
)

func (c *CLI) exportCommand() *cobra.Command {
	var (
		output string
		format string
		opts   render.Options
	)

	cmd := &cobra.Command{
		Use:   "export [workflow.json]",
		Short: "Draw a workflow as a Graphviz diagram",
		Long: `Export draws the nodes and links of a workflow as a left-to-right diagram.
Muted nodes are grey and bypassed nodes purple.

Formats: dot (Graphviz source) and svg.`,
		Example: `  workgraph export flow.json -f svg -o flow.svg --groups
  workgraph export flow.json --detailed | dot -Tpng > flow.png`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != formatDOT && format != formatSVG {
				return wgerrors.New(wgerrors.ErrCodeInvalidInput, "unknown format %q (want dot or svg)", format)
			}
			prog := newProgress(loggerFromContext(cmd.Context()))
			w, err := c.loadWorkflow(cmd, inputArg(args), opts.Detailed)
			if err != nil {
				return err
			}

			data := []byte(render.ToDOT(w.graph, opts))
			if format == formatSVG {
				if data, err = render.RenderSVG(cmd.Context(), string(data)); err != nil {
					return wgerrors.Wrap(wgerrors.ErrCodeInternal, err, "render svg")
				}
			}

			if output == "" || output == stdio {
				_, err := cmd.OutOrStdout().Write(data)
				return err
			}
			if err := os.WriteFile(output, data, 0o644); err != nil {
				return wgerrors.Wrap(wgerrors.ErrCodeInvalidPath, err, "write %s", output)
			}
			prog.done("Rendered " + format)
			p := newPrinter(cmd)
			p.success("Exported %s", format)
			p.stats(w.report)
			p.file(output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	cmd.Flags().StringVarP(&format, "format", "f", formatDOT, "output format: dot or svg")
	cmd.Flags().BoolVar(&opts.Detailed, "detailed", false, "list widget values in node labels")
	cmd.Flags().BoolVar(&opts.Groups, "groups", false, "draw groups as clusters")
	return cmd
}
