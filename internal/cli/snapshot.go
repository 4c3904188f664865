package cli

import (
	"encoding/json"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	wgerrors "github.com/matzehuels/workgraph/pkg/errors"
	"github.com/matzehuels/workgraph/pkg/snapshot"
)

// snapshotTimeLayout formats creation times in listings.
const snapshotTimeLayout = "2006-01-02 15:04:05"

func (c *CLI) snapshotCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "snapshot",
		Aliases: []string{"snap"},
		Short:   "Save, list and restore titled workflow snapshots",
		Long: `Snapshots are titled copies of a workflow kept in the configured backend
([snapshots] backend = file, sqlite, redis or mongo).

Snapshot ids have the form <workflow-id>_<yyyyMMddHHmmss>.`,
	}

	cmd.AddCommand(c.snapshotSaveCommand())
	cmd.AddCommand(c.snapshotListCommand())
	cmd.AddCommand(c.snapshotLoadCommand())
	cmd.AddCommand(c.snapshotRenameCommand())
	cmd.AddCommand(c.snapshotDeleteCommand())

	return cmd
}

// withStore opens the configured store for the duration of fn.
func (c *CLI) withStore(cmd *cobra.Command, fn func(snapshot.Store) error) error {
	store, err := c.openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			c.Logger.Warn("close snapshot store", "err", err)
		}
	}()
	return fn(store)
}

func (c *CLI) snapshotSaveCommand() *cobra.Command {
	var workflowID, title string

	cmd := &cobra.Command{
		Use:   "save <workflow.json>",
		Short: "Store a snapshot of a workflow",
		Example: `  workgraph snapshot save flow.json --id portrait --title "before upscaler"
  workgraph snapshot save - --title nightly < flow.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Parse first so unreadable workflows are never stored.
			doc, err := readDocument(cmd, args[0])
			if err != nil {
				return err
			}
			snap, err := snapshot.New(workflowID, title, doc)
			if err != nil {
				return err
			}
			return c.withStore(cmd, func(store snapshot.Store) error {
				if err := store.Save(cmd.Context(), snap); err != nil {
					return err
				}
				p := newPrinter(cmd)
				p.success("Saved snapshot %s", StyleHighlight.Render(snap.Title))
				p.keyValue("id", snap.ID)
				p.nextStep("Restore with", "workgraph snapshot load "+snap.ID+" -o "+args[0])
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&workflowID, "id", "", "workflow id (default: random)")
	cmd.Flags().StringVarP(&title, "title", "t", "", "snapshot title (required)")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func (c *CLI) snapshotListCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:     "list [workflow-id]",
		Aliases: []string{"ls"},
		Short:   "List snapshots, newest first",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var workflowID string
			if len(args) == 1 {
				workflowID = args[0]
			}
			return c.withStore(cmd, func(store snapshot.Store) error {
				infos, err := store.List(cmd.Context(), workflowID)
				if err != nil {
					return err
				}
				if asJSON {
					if infos == nil {
						infos = []snapshot.Info{}
					}
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					return enc.Encode(infos)
				}
				printSnapshots(newPrinter(cmd), infos)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

func printSnapshots(p printer, infos []snapshot.Info) {
	if len(infos) == 0 {
		p.info("No snapshots")
		return
	}
	headerStyle := lipgloss.NewStyle().Foreground(colorGray).Bold(true)
	rows := make([][]string, len(infos))
	for i, in := range infos {
		rows[i] = []string{in.ID, in.Title, in.CreatedAt.Local().Format(snapshotTimeLayout)}
	}
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers("ID", "Title", "Created").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == -1 {
				return headerStyle
			}
			if col == 2 {
				return lipgloss.NewStyle().Padding(0, 1).Foreground(colorGray)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})
	p.line(t.Render())
	p.detail("%d snapshot(s)", len(infos))
}

func (c *CLI) snapshotLoadCommand() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "load <snapshot-id>",
		Short: "Write a snapshot's workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withStore(cmd, func(store snapshot.Store) error {
				snap, err := store.Load(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				doc, err := snap.Workflow()
				if err != nil {
					return err
				}
				if err := writeDocument(cmd, output, doc); err != nil {
					return err
				}
				if output != "" && output != stdio {
					p := newPrinter(cmd)
					p.success("Restored %s", StyleHighlight.Render(snap.Title))
					p.file(output)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	return cmd
}

func (c *CLI) snapshotRenameCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <snapshot-id> <title>",
		Short: "Change a snapshot's title",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withStore(cmd, func(store snapshot.Store) error {
				if err := store.Rename(cmd.Context(), args[0], args[1]); err != nil {
					return err
				}
				newPrinter(cmd).success("Renamed %s", args[0])
				return nil
			})
		},
	}
}

func (c *CLI) snapshotDeleteCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:     "delete <snapshot-id>...",
		Aliases: []string{"rm"},
		Short:   "Delete snapshots",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withStore(cmd, func(store snapshot.Store) error {
				p := newPrinter(cmd)
				var (
					failed  int
					lastErr error
				)
				for _, id := range args {
					err := store.Delete(cmd.Context(), id)
					switch {
					case err == nil:
						p.success("Deleted %s", id)
					case force && wgerrors.Is(err, wgerrors.ErrCodeSnapshotNotFound):
						p.detail("%s: not found", id)
					default:
						p.errorf("%s: %s", id, wgerrors.UserMessage(err))
						failed++
						lastErr = err
					}
				}
				if failed > 0 {
					return wgerrors.Wrap(wgerrors.GetCode(lastErr), lastErr, "%d of %d snapshots not deleted", failed, len(args))
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "ignore missing snapshots")
	return cmd
}
