package commands

import (
	"github.com/spf13/cobra"
)

// NewSortCommand creates the sort command.
func NewSortCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sort",
		Short: "Sort the project tree alphabetically",
		Long: `Sort folders, tables, and measures alphabetically at every level.
Folders sort before tables, and the Other Queries folder stays last.
The resulting order is written back to the project.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx := NewCommandContext(cmd)
			p, err := cmdCtx.LoadProject()
			if err != nil {
				return err
			}
			p.Tree.SortAlphabetical()
			return cmdCtx.saveProject(cmd, p)
		},
	}
}
