package cli

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	wgerrors "github.com/matzehuels/workgraph/pkg/errors"
	"github.com/matzehuels/workgraph/pkg/overlay"
	"github.com/matzehuels/workgraph/pkg/workflow"
)

func (c *CLI) editCommand() *cobra.Command {
	var (
		output      string
		sets        []string
		modes       []string
		interactive bool
		dryRun      bool
	)

	cmd := &cobra.Command{
		Use:   "edit <workflow.json>",
		Short: "Change widget values and node modes",
		Long: `Edit stages widget values (--set) and node modes (--mode) in an overlay,
then writes the workflow with the staged values applied. Every change is
recorded in the audit log.

Values are parsed like the value they replace: numbers stay numbers and
booleans stay booleans. Use -i to edit in an interactive table instead.

Modes: always, never (muted), bypass, on_event, on_trigger.`,
		Example: `  workgraph edit flow.json --set 2.seed=7 --set "2.sampler_name=euler a"
  workgraph edit flow.json --mode 4=bypass -o flow.bypassed.json
  workgraph edit flow.json -i`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(sets) == 0 && len(modes) == 0 && !interactive {
				return wgerrors.New(wgerrors.ErrCodeInvalidInput, "nothing to edit: use --set, --mode or -i")
			}
			w, err := c.loadWorkflow(cmd, args[0], true)
			if err != nil {
				return err
			}
			sink, closeSink, err := c.openSink()
			if err != nil {
				return err
			}
			defer closeSink()

			ov := overlay.New(overlay.Options{
				Processor: overlay.NewGraphProcessor(w.graph.Clone()),
				Sink:      sink,
				Source:    auditSource,
				NodeType:  overlay.GraphNodeTypes(w.graph),
				Logger:    c.Logger,
			})

			if err := stageFlags(ov, w.graph, sets, modes); err != nil {
				return err
			}

			p := newPrinter(cmd)
			if interactive {
				prog := tea.NewProgram(NewEditorModel(ov, w.graph),
					tea.WithContext(cmd.Context()),
					tea.WithInput(cmd.InOrStdin()),
					tea.WithOutput(cmd.ErrOrStderr()),
					tea.WithAltScreen())
				final, err := prog.Run()
				if err != nil {
					return wgerrors.Wrap(wgerrors.ErrCodeInternal, err, "run editor")
				}
				if m, ok := final.(EditorModel); !ok || !m.Write {
					p.info("Discarded %d staged change(s)", ov.Edits().Len())
					return nil
				}
			}

			if !ov.HasModifications() {
				p.info("No changes")
				return nil
			}

			staged := ov.Edits().Len()
			edited, res := ov.Commit(w.graph)
			for _, k := range res.Unknown {
				p.warning("node %d has no widget %q", k.NodeID, k.Param)
			}
			if dryRun {
				for _, k := range ov.Edits().Keys() {
					v, _ := ov.Edits().Get(k.NodeID, k.Param)
					p.keyValue(fmt.Sprintf("#%d %s", k.NodeID, paramLabel(k.Param)), formatValue(v))
				}
				return nil
			}

			out := outputOrInput(output, args[0])
			if err := writeDocument(cmd, out, edited.Serialize()); err != nil {
				return err
			}
			ov.ClearModifications()
			reportWritten(cmd, out, fmt.Sprintf("Applied %d of %d staged change(s)", res.Applied, staged), summarize(edited))
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&sets, "set", nil, "stage a widget value: <node>.<widget>=<value> (repeatable)")
	cmd.Flags().StringArrayVar(&modes, "mode", nil, "stage a node mode: <node>=<mode> (repeatable)")
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "edit in an interactive table")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the staged changes without writing")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file, - for stdout (default: rewrite the input)")
	return cmd
}

// stageFlags stages --set and --mode arguments. Targets are checked against
// g so typos fail before anything is written.
func stageFlags(ov *overlay.Overlay, g *workflow.Graph, sets, modes []string) error {
	for _, s := range sets {
		nodeID, param, raw, err := parseSet(s)
		if err != nil {
			return err
		}
		n, ok := g.Node(nodeID)
		if !ok {
			return wgerrors.New(wgerrors.ErrCodeNotFound, "node %d not found", nodeID)
		}
		if !slices.Contains(n.WidgetNames(), param) {
			return wgerrors.New(wgerrors.ErrCodeNotFound, "node %d (%s) has no widget %q; widgets: %s",
				nodeID, n.Type, param, strings.Join(n.WidgetNames(), ", "))
		}
		old, _ := n.WidgetValue(param)
		ov.SetValue(nodeID, param, parseValue(raw, old))
	}
	for _, s := range modes {
		id, name, ok := strings.Cut(s, "=")
		if !ok {
			return wgerrors.New(wgerrors.ErrCodeInvalidInput, "invalid --mode %q: want <node>=<mode>", s)
		}
		nodeID, err := strconv.Atoi(strings.TrimSpace(id))
		if err != nil {
			return wgerrors.New(wgerrors.ErrCodeInvalidInput, "invalid node id in --mode %q", s)
		}
		if _, ok := g.Node(nodeID); !ok {
			return wgerrors.New(wgerrors.ErrCodeNotFound, "node %d not found", nodeID)
		}
		mode, err := workflow.ParseMode(name)
		if err != nil {
			return wgerrors.Wrap(wgerrors.ErrCodeInvalidInput, err, "invalid --mode %q", s)
		}
		ov.SetNodeMode(nodeID, mode)
	}
	return nil
}

// parseSet splits "<node>.<widget>=<value>".
func parseSet(s string) (nodeID int, param, value string, err error) {
	target, value, ok := strings.Cut(s, "=")
	if !ok {
		return 0, "", "", wgerrors.New(wgerrors.ErrCodeInvalidInput, "invalid --set %q: want <node>.<widget>=<value>", s)
	}
	id, param, ok := strings.Cut(target, ".")
	if !ok || param == "" {
		return 0, "", "", wgerrors.New(wgerrors.ErrCodeInvalidInput, "invalid --set %q: want <node>.<widget>=<value>", s)
	}
	nodeID, err = strconv.Atoi(strings.TrimSpace(id))
	if err != nil {
		return 0, "", "", wgerrors.New(wgerrors.ErrCodeInvalidInput, "invalid node id in --set %q", s)
	}
	return nodeID, param, value, nil
}

// parseValue converts text to the type of like. Without a typed original
// the text is read as JSON, falling back to a plain string.
func parseValue(s string, like any) any {
	switch like.(type) {
	case string:
		return s
	case float64:
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return f
		}
		return s
	case bool:
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b
		}
		return s
	}
	var v any
	if err := json.Unmarshal([]byte(s), &v); err == nil {
		return v
	}
	return s
}

// formatValue renders a value for display and editing.
func formatValue(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case workflow.Mode:
		return v.String()
	case map[string]any, []any:
		data, err := json.Marshal(v)
		if err == nil {
			return string(data)
		}
	}
	return fmt.Sprint(v)
}

func paramLabel(param string) string {
	if param == overlay.ModeKey {
		return "mode"
	}
	return param
}
