package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pbip-tools/tentacles/internal/tree"
)

// NewGroupCommand creates the group command and its subcommands.
func NewGroupCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "group",
		Short: "Manage query-group folders",
		Long: `Create, rename, and delete query-group folders, and move tables
between them. Folder paths use forward slashes, e.g. "Staging/Raw".
Edits are written back to model.tmdl and the affected table files.`,
	}
	cmd.AddCommand(newGroupNewCommand())
	cmd.AddCommand(newGroupRenameCommand())
	cmd.AddCommand(newGroupDeleteCommand())
	cmd.AddCommand(newGroupMoveTableCommand())
	return cmd
}

func newGroupNewCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "new <path>",
		Short: "Create a query-group folder",
		Example: `  tentacles group new Staging
  tentacles group new "Staging/Raw Files"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx := NewCommandContext(cmd)
			p, err := cmdCtx.LoadProject()
			if err != nil {
				return err
			}
			if _, err := p.Tree.CreateFolderPath(args[0]); err != nil {
				return err
			}
			return cmdCtx.saveProject(cmd, p)
		},
	}
}

func newGroupRenameCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <path> <new-name>",
		Short: "Rename a query-group folder",
		Long: `Rename the folder at the given path. Subfolder and table group
assignments follow the new name automatically.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx := NewCommandContext(cmd)
			p, err := cmdCtx.LoadProject()
			if err != nil {
				return err
			}
			folder := p.Tree.FindFolder(args[0])
			if folder == nil {
				return fmt.Errorf("no query group at %q", args[0])
			}
			if err := p.Tree.RenameFolder(folder, args[1]); err != nil {
				return err
			}
			return cmdCtx.saveProject(cmd, p)
		},
	}
}

func newGroupDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <path>",
		Short: "Delete a query-group folder",
		Long: `Delete the folder at the given path. Tables inside it (and inside
its subfolders) move to Other Queries.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx := NewCommandContext(cmd)
			p, err := cmdCtx.LoadProject()
			if err != nil {
				return err
			}
			folder := p.Tree.FindFolder(args[0])
			if folder == nil {
				return fmt.Errorf("no query group at %q", args[0])
			}
			if err := p.Tree.DeleteFolder(folder); err != nil {
				return err
			}
			return cmdCtx.saveProject(cmd, p)
		},
	}
}

func newGroupMoveTableCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "move-table <table> [path]",
		Short: "Move a table into a query-group folder",
		Long: `Move a table into the folder at the given path, creating the folder
if needed. Without a path the table moves to Other Queries.`,
		Example: `  tentacles group move-table Sales Staging/Raw
  tentacles group move-table Sales`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx := NewCommandContext(cmd)
			p, err := cmdCtx.LoadProject()
			if err != nil {
				return err
			}
			tbl := p.Tree.FindTable(args[0])
			if tbl == nil {
				return fmt.Errorf("no table named %q", args[0])
			}
			var target *tree.Node
			if len(args) == 2 && args[1] != "" {
				target, err = p.Tree.CreateFolderPath(args[1])
				if err != nil {
					return err
				}
			}
			if err := p.Tree.MoveTable(tbl, target); err != nil {
				return err
			}
			return cmdCtx.saveProject(cmd, p)
		},
	}
}
