package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/matzehuels/workgraph/pkg/audit"
	"github.com/matzehuels/workgraph/pkg/connect"
	wgerrors "github.com/matzehuels/workgraph/pkg/errors"
	"github.com/matzehuels/workgraph/pkg/schema"
	"github.com/matzehuels/workgraph/pkg/workflow"
)

// stdio is the file argument that selects stdin or stdout.
const stdio = "-"

// =============================================================================
// Loading and Writing
// =============================================================================

// loaded is a workflow read from a file and configured into a graph.
type loaded struct {
	path   string
	doc    *workflow.Document
	graph  *workflow.Graph
	report workflow.Report
}

// readDocument reads a workflow document from path, or stdin for "-".
func readDocument(cmd *cobra.Command, path string) (*workflow.Document, error) {
	if path == stdio {
		return workflow.ReadDocument(cmd.InOrStdin())
	}
	return workflow.LoadDocument(path)
}

// loadWorkflow reads path and configures it. When withSchemas is set the
// configured node-type metadata source names widgets.
func (c *CLI) loadWorkflow(cmd *cobra.Command, path string, withSchemas bool) (*loaded, error) {
	ctx := cmd.Context()
	logger := loggerFromContext(ctx)

	doc, err := readDocument(cmd, path)
	if err != nil {
		return nil, err
	}

	var provider schema.Provider
	if withSchemas {
		if provider, err = c.schemaProvider(); err != nil {
			return nil, err
		}
	}

	opts := workflow.ConfigureOptions{
		Schemas: provider,
		Timeout: c.config().SchemaTimeout.Duration,
		Logger:  logger,
	}

	var g *workflow.Graph
	var rep workflow.Report
	if _, remote := provider.(*schema.CachedProvider); remote {
		spin := newSpinner(ctx, cmd.ErrOrStderr(), "Fetching node-type schemas...")
		spin.Start()
		g, rep = workflow.Load(ctx, doc, opts)
		spin.Stop()
	} else {
		g, rep = workflow.Load(ctx, doc, opts)
	}
	logLoad(logger, path, rep)
	if rep.Repaired {
		logger.Debug("using repaired workflow", "file", path)
		doc = g.Serialize()
	}

	return &loaded{path: path, doc: doc, graph: g, report: rep}, nil
}

// writeDocument writes d to path, or to the command's output for "" and "-".
func writeDocument(cmd *cobra.Command, path string, d *workflow.Document) error {
	if path == "" || path == stdio {
		return workflow.WriteDocument(cmd.OutOrStdout(), d)
	}
	return workflow.SaveDocument(path, d)
}

// reportWritten prints the output summary when the document went to a file.
// Nothing is printed when stdout carries the document.
func reportWritten(cmd *cobra.Command, path, msg string, r workflow.Report) {
	if path == "" || path == stdio {
		return
	}
	p := newPrinter(cmd)
	p.success("%s", msg)
	p.stats(r)
	p.file(path)
}

func inputArg(args []string) string {
	if len(args) == 0 {
		return stdio
	}
	return args[0]
}

// =============================================================================
// normalize
// =============================================================================

func (c *CLI) normalizeCommand() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "normalize [workflow.json]",
		Short: "Rewrite a workflow in canonical form",
		Long: `Normalize loads a workflow, drops entries that cannot be used, resolves
widget names from the node-type schemas and writes the canonical document.

Reads stdin when no file is given and writes stdout unless -o is set.`,
		Example: `  workgraph normalize flow.json -o flow.norm.json
  cat flow.json | workgraph normalize --no-schemas`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prog := newProgress(loggerFromContext(cmd.Context()))
			w, err := c.loadWorkflow(cmd, inputArg(args), true)
			if err != nil {
				return err
			}
			if err := writeDocument(cmd, output, w.graph.Serialize()); err != nil {
				return err
			}
			prog.done("Normalized workflow")
			reportWritten(cmd, output, "Normalized workflow", w.report)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	return cmd
}

// =============================================================================
// inspect
// =============================================================================

func (c *CLI) inspectCommand() *cobra.Command {
	var widgets bool

	cmd := &cobra.Command{
		Use:   "inspect [workflow.json]",
		Short: "List the nodes, links and groups of a workflow",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := c.loadWorkflow(cmd, inputArg(args), true)
			if err != nil {
				return err
			}
			printInspect(cmd.OutOrStdout(), w, widgets)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&widgets, "widgets", "w", false, "list widget values under each node")
	return cmd
}

func printInspect(out io.Writer, w *loaded, widgets bool) {
	p := printer{w: out}
	g := w.graph

	p.line(StyleTitle.Render("Workflow") + " " + StyleDim.Render(w.path))
	p.stats(w.report)
	p.line("")

	headerStyle := lipgloss.NewStyle().Foreground(colorGray).Bold(true)
	rows := make([][]string, 0, g.NodeCount())
	for _, n := range g.Nodes() {
		var groups []string
		for _, gid := range g.GroupsOf(n.ID) {
			groups = append(groups, fmt.Sprint(gid))
		}
		rows = append(rows, []string{
			fmt.Sprint(n.ID), n.Type, n.Title(), n.Mode.String(),
			fmt.Sprint(len(n.Inputs)), fmt.Sprint(len(n.Outputs)), strings.Join(groups, ","),
		})
	}
	nodes := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers("ID", "Type", "Title", "Mode", "In", "Out", "Groups").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == -1 {
				return headerStyle
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})
	p.line(nodes.Render())

	if widgets {
		for _, n := range g.Nodes() {
			names := n.WidgetNames()
			if len(names) == 0 {
				continue
			}
			p.line(StyleHighlight.Render(fmt.Sprintf("#%d %s", n.ID, n.Title())))
			for _, name := range names {
				v, _ := n.WidgetValue(name)
				p.keyValue("  "+name, fmt.Sprint(v))
			}
		}
	}

	if links := g.Links(); len(links) > 0 {
		p.line("")
		p.line(StyleTitle.Render("Links"))
		for _, l := range links {
			p.detail("%s", connect.Describe(*l))
		}
	}
	if groups := g.Groups(); len(groups) > 0 {
		p.line("")
		p.line(StyleTitle.Render("Groups"))
		for _, gr := range groups {
			var ids []string
			for _, n := range g.GroupMembers(gr.ID) {
				ids = append(ids, fmt.Sprint(n.ID))
			}
			p.detail("%d %q: %s", gr.ID, gr.Title, strings.Join(ids, ", "))
		}
	}
	if issues := w.report.Skipped; len(issues) > 0 {
		p.line("")
		for _, is := range issues {
			p.warning("skipped %s", is.Error())
		}
	}
}

// =============================================================================
// connect / disconnect
// =============================================================================

func (c *CLI) connectCommand() *cobra.Command {
	var (
		output     string
		sourceSlot int
		targetSlot int
	)

	cmd := &cobra.Command{
		Use:   "connect <workflow.json> <source-node> <target-node>",
		Short: "Link an output of one node to an input of another",
		Long: `Connect links output --from-slot of the source node to input --to-slot of
the target node. A link already feeding that input is replaced.

The workflow is rewritten in place unless -o is set.`,
		Example: `  workgraph connect flow.json 3 2 --to-slot 3
  workgraph connect flow.json 1 2 -o - | jq .links`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			sourceID, targetID, err := nodeArgs(args[1], args[2])
			if err != nil {
				return err
			}
			w, err := c.loadWorkflow(cmd, args[0], false)
			if err != nil {
				return err
			}
			res, err := connect.CreateConnection(w.doc, w.graph, sourceID, targetID, sourceSlot, targetSlot)
			if err != nil {
				return err
			}

			var old any
			if len(res.Replaced) > 0 {
				old = res.Replaced[0]
			}
			if err := c.recordLink(w.graph, targetID, targetSlot, old, res.LinkID); err != nil {
				return err
			}

			out := outputOrInput(output, args[0])
			if err := writeDocument(cmd, out, res.Document); err != nil {
				return err
			}
			l, _ := res.Graph.Link(res.LinkID)
			msg := fmt.Sprintf("Created link %s", connect.Describe(*l))
			if len(res.Replaced) > 0 {
				msg += fmt.Sprintf(", replacing link %d", res.Replaced[0])
			}
			reportWritten(cmd, out, msg, summarize(res.Graph))
			return nil
		},
	}

	cmd.Flags().IntVar(&sourceSlot, "from-slot", 0, "output slot on the source node")
	cmd.Flags().IntVar(&targetSlot, "to-slot", 0, "input slot on the target node")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file, - for stdout (default: rewrite the input)")
	return cmd
}

func (c *CLI) disconnectCommand() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "disconnect <workflow.json> <link-id>",
		Short: "Remove a link",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			linkID, err := strconv.Atoi(args[1])
			if err != nil {
				return wgerrors.New(wgerrors.ErrCodeInvalidInput, "invalid link id %q", args[1])
			}
			w, err := c.loadWorkflow(cmd, args[0], false)
			if err != nil {
				return err
			}
			l, known := w.graph.Link(linkID)
			var removed workflow.Link
			if known {
				removed = *l
			}
			res, err := connect.RemoveConnection(w.doc, w.graph, linkID)
			if err != nil {
				return err
			}
			if known {
				if err := c.recordLink(w.graph, removed.TargetID, removed.TargetSlot, linkID, nil); err != nil {
					return err
				}
			}

			out := outputOrInput(output, args[0])
			if err := writeDocument(cmd, out, res.Document); err != nil {
				return err
			}
			reportWritten(cmd, out, fmt.Sprintf("Removed link %d", linkID), summarize(res.Graph))
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output file, - for stdout (default: rewrite the input)")
	return cmd
}

// recordLink sends the audit event for a changed input link.
func (c *CLI) recordLink(g *workflow.Graph, nodeID, slot int, old, v any) error {
	sink, closeSink, err := c.openSink()
	if err != nil {
		return err
	}
	defer closeSink()

	var nodeType string
	if n, ok := g.Node(nodeID); ok {
		nodeType = n.Type
	}
	e := audit.NewEvent(nodeID, nodeType, audit.ChangeLink, audit.InputPath(nodeID, slot), old, v, auditSource)
	if err := sink.Record(e); err != nil {
		c.Logger.Warn("audit sink failed", "err", err)
	}
	return nil
}

func nodeArgs(source, target string) (int, int, error) {
	s, err := strconv.Atoi(source)
	if err != nil {
		return 0, 0, wgerrors.New(wgerrors.ErrCodeInvalidInput, "invalid source node id %q", source)
	}
	t, err := strconv.Atoi(target)
	if err != nil {
		return 0, 0, wgerrors.New(wgerrors.ErrCodeInvalidInput, "invalid target node id %q", target)
	}
	return s, t, nil
}

// outputOrInput rewrites the input file unless an output was given. Stdin
// input goes to stdout.
func outputOrInput(output, input string) string {
	if output != "" {
		return output
	}
	return input
}

func summarize(g *workflow.Graph) workflow.Report {
	return workflow.Report{Nodes: g.NodeCount(), Links: g.LinkCount(), Groups: len(g.Groups())}
}
