package commands

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/pbip-tools/tentacles/internal/cli/output"
	"github.com/pbip-tools/tentacles/internal/state"
)

// NewHistoryCommand creates the history command.
func NewHistoryCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history [save-id]",
		Short: "Show recent saves",
		Long: `Show recent save runs from the local history database. With a save id
the per-file outcomes of that run are shown instead.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx := NewCommandContext(cmd)
			store, err := cmdCtx.OpenStore()
			if err != nil {
				return err
			}
			if store == nil {
				return fmt.Errorf("no state path configured")
			}
			defer store.Close()

			if len(args) == 1 {
				return showFileWrites(cmd, cmdCtx, store, args[0])
			}
			return showSaves(cmd, cmdCtx, store, limit)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs to show")
	return cmd
}

func showSaves(cmd *cobra.Command, cmdCtx *CommandContext, store *state.Store, limit int) error {
	runs, err := store.ListSaves(cmd.Context(), limit)
	if err != nil {
		return err
	}

	r := cmdCtx.Renderer
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(runs)
	}
	if len(runs) == 0 {
		r.Muted("No saves recorded")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(r.Writer())
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Save", "Project", "Status", "Warnings", "Started", "Duration"})
	for _, run := range runs {
		duration := ""
		if run.CompletedAt != nil {
			duration = run.CompletedAt.Sub(run.StartedAt).Round(time.Millisecond).String()
		}
		t.AppendRow(table.Row{
			shortID(run.ID),
			run.PbipPath,
			run.Status,
			run.WarningCount,
			run.StartedAt.Local().Format("2006-01-02 15:04:05"),
			duration,
		})
	}
	t.Render()
	return nil
}

func showFileWrites(cmd *cobra.Command, cmdCtx *CommandContext, store *state.Store, saveID string) error {
	// Accept a short id prefix from the list output
	if len(saveID) < 36 {
		runs, err := store.ListSaves(cmd.Context(), 0)
		if err != nil {
			return err
		}
		for _, run := range runs {
			if len(run.ID) >= len(saveID) && run.ID[:len(saveID)] == saveID {
				saveID = run.ID
				break
			}
		}
	}

	writes, err := store.ListFileWrites(cmd.Context(), saveID)
	if err != nil {
		return err
	}

	r := cmdCtx.Renderer
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(writes)
	}
	if len(writes) == 0 {
		r.Muted("No file writes recorded for " + saveID)
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(r.Writer())
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"File", "Status", "Detail"})
	for _, w := range writes {
		t.AppendRow(table.Row{w.FilePath, w.Status, w.Detail})
	}
	t.Render()
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
