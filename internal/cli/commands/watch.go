package commands

import (
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

// debounceDelay folds editor write bursts into one reload.
const debounceDelay = 300 * time.Millisecond

// NewWatchCommand creates the watch command.
func NewWatchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Watch the project and re-check on changes",
		Long: `Watch the semantic model definition for file changes and re-run the
consistency checks after each change. Useful in a terminal next to
Power BI Desktop or an editor. Stop with Ctrl-C.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx := NewCommandContext(cmd)
			p, err := cmdCtx.LoadProject()
			if err != nil {
				return err
			}

			watcher, err := fsnotify.NewWatcher()
			if err != nil {
				return err
			}
			defer func() { _ = watcher.Close() }()

			for _, dir := range []string{p.Paths.DefinitionDir, p.Paths.TablesDir} {
				if err := watcher.Add(dir); err != nil {
					return err
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			r := cmdCtx.Renderer
			r.StatusLine("Watching", p.Paths.DefinitionDir)
			runChecks(cmdCtx, cmd)

			var pending <-chan time.Time
			for {
				select {
				case <-ctx.Done():
					return nil
				case event, ok := <-watcher.Events:
					if !ok {
						return nil
					}
					if !relevantChange(event) {
						continue
					}
					cmdCtx.Logger.Debug("change detected", "file", event.Name, "op", event.Op.String())
					pending = time.After(debounceDelay)
				case err, ok := <-watcher.Errors:
					if !ok {
						return nil
					}
					r.Warning("watch error: " + err.Error())
				case <-pending:
					pending = nil
					runChecks(cmdCtx, cmd)
				}
			}
		},
	}
}

// relevantChange filters watcher noise down to TMDL edits.
func relevantChange(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	return strings.HasSuffix(strings.ToLower(event.Name), ".tmdl")
}

func runChecks(cmdCtx *CommandContext, cmd *cobra.Command) {
	r := cmdCtx.Renderer
	r.Printf("--- %s\n", time.Now().Format("15:04:05"))

	p, err := cmdCtx.LoadProject()
	if err != nil {
		r.Error("load failed: " + err.Error())
		return
	}
	reportIssues(r, checkProject(p))
}
