package commands

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/pbip-tools/tentacles/internal/cli/output"
	"github.com/pbip-tools/tentacles/internal/daxquery"
	"github.com/pbip-tools/tentacles/internal/project"
)

// QueryInfo is the JSON shape of one stored query tab.
type QueryInfo struct {
	Name    string `json:"name"`
	Default bool   `json:"default"`
	Lines   int    `json:"lines"`
}

// NewQueriesCommand creates the queries command and its subcommands.
func NewQueriesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queries",
		Short: "Manage stored DAX query tabs",
		Long: `List, show, rename, reorder, and delete the DAX query tabs stored
under DAXQueries/ next to the semantic model.`,
	}
	cmd.AddCommand(newQueriesListCommand())
	cmd.AddCommand(newQueriesShowCommand())
	cmd.AddCommand(newQueriesRenameCommand())
	cmd.AddCommand(newQueriesDeleteCommand())
	cmd.AddCommand(newQueriesReorderCommand())
	cmd.AddCommand(newQueriesSetDefaultCommand())
	return cmd
}

func loadQueries(cmdCtx *CommandContext) (*project.Project, *daxquery.Set, error) {
	p, err := cmdCtx.LoadProject()
	if err != nil {
		return nil, nil, err
	}
	set, err := p.DAXQueries()
	if err != nil {
		return nil, nil, err
	}
	return p, set, nil
}

// saveQueries persists the set and reports per-file warnings.
func saveQueries(cmdCtx *CommandContext, set *daxquery.Set) error {
	warnings, err := set.Save()
	if err != nil {
		return err
	}
	for _, w := range warnings {
		cmdCtx.Renderer.Warning("warning: " + w)
	}
	return nil
}

func newQueriesListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored query tabs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx := NewCommandContext(cmd)
			_, set, err := loadQueries(cmdCtx)
			if err != nil {
				return err
			}

			r := cmdCtx.Renderer
			if r.EffectiveMode() == output.ModeJSON {
				infos := make([]QueryInfo, 0, len(set.Queries))
				for _, q := range set.Queries {
					infos = append(infos, QueryInfo{
						Name:    q.Name,
						Default: q.Name == set.DefaultTab,
						Lines:   countLines(q.Text),
					})
				}
				return r.JSON(infos)
			}

			if len(set.Queries) == 0 {
				r.Muted("No stored queries")
				return nil
			}
			t := table.NewWriter()
			t.SetOutputMirror(r.Writer())
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"Query", "Default", "Lines"})
			for _, q := range set.Queries {
				def := ""
				if q.Name == set.DefaultTab {
					def = "*"
				}
				t.AppendRow(table.Row{q.Name, def, countLines(q.Text)})
			}
			t.Render()
			return nil
		},
	}
}

func countLines(text string) int {
	if text == "" {
		return 0
	}
	n := 1
	for _, c := range text {
		if c == '\n' {
			n++
		}
	}
	return n
}

func newQueriesShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <name>",
		Short: "Print a stored query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx := NewCommandContext(cmd)
			_, set, err := loadQueries(cmdCtx)
			if err != nil {
				return err
			}
			q := set.Find(args[0])
			if q == nil {
				return fmt.Errorf("no stored query named %q", args[0])
			}
			cmdCtx.Renderer.Println(q.Text)
			return nil
		},
	}
}

func newQueriesRenameCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <name> <new-name>",
		Short: "Rename a stored query",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx := NewCommandContext(cmd)
			_, set, err := loadQueries(cmdCtx)
			if err != nil {
				return err
			}
			if err := set.Rename(args[0], args[1]); err != nil {
				return err
			}
			return saveQueries(cmdCtx, set)
		},
	}
}

func newQueriesDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a stored query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx := NewCommandContext(cmd)
			_, set, err := loadQueries(cmdCtx)
			if err != nil {
				return err
			}
			if err := set.Delete(args[0]); err != nil {
				return err
			}
			return saveQueries(cmdCtx, set)
		},
	}
}

func newQueriesReorderCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reorder <name>...",
		Short: "Reorder the query tabs",
		Long:  `Set a new tab order. Every existing query must be named exactly once.`,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx := NewCommandContext(cmd)
			_, set, err := loadQueries(cmdCtx)
			if err != nil {
				return err
			}
			if err := set.Reorder(args); err != nil {
				return err
			}
			return saveQueries(cmdCtx, set)
		},
	}
}

func newQueriesSetDefaultCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set-default <name>",
		Short: "Mark a query as the default tab",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx := NewCommandContext(cmd)
			_, set, err := loadQueries(cmdCtx)
			if err != nil {
				return err
			}
			if err := set.SetDefault(args[0]); err != nil {
				return err
			}
			return saveQueries(cmdCtx, set)
		},
	}
}
