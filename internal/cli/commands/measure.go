package commands

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pbip-tools/tentacles/internal/project"
	"github.com/pbip-tools/tentacles/internal/tmdl"
	"github.com/pbip-tools/tentacles/internal/tree"
)

// NewMeasureCommand creates the measure command and its subcommands.
func NewMeasureCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "measure",
		Short: "Manage measures and their display folders",
		Long: `Create, rename, move, and delete measures, organize them into
display folders, and edit their DAX expressions. Measure names must be
unique within a table, case-insensitively.`,
	}
	cmd.AddCommand(newMeasureNewCommand())
	cmd.AddCommand(newMeasureRenameCommand())
	cmd.AddCommand(newMeasureMoveCommand())
	cmd.AddCommand(newMeasureDeleteCommand())
	cmd.AddCommand(newMeasureSetCommand())
	cmd.AddCommand(newMeasureFolderCommand())
	return cmd
}

// findTableNode resolves a table argument against the tree.
func findTableNode(p *project.Project, name string) (*tree.Node, error) {
	n := p.Tree.FindTable(name)
	if n == nil {
		return nil, fmt.Errorf("no table named %q", name)
	}
	return n, nil
}

// findMeasureNode locates a measure by name anywhere under a table node.
func findMeasureNode(tableNode *tree.Node, name string) *tree.Node {
	var found *tree.Node
	var walk func(*tree.Node)
	walk = func(cur *tree.Node) {
		for _, c := range cur.Children {
			if found != nil {
				return
			}
			if c.Kind == tree.KindMeasure && strings.EqualFold(c.Name, name) {
				found = c
				return
			}
			if c.Kind == tree.KindMeasureFolder {
				walk(c)
			}
		}
	}
	walk(tableNode)
	return found
}

// findMeasureFolder locates a display folder by slash path under a table.
func findMeasureFolder(tableNode *tree.Node, path string) *tree.Node {
	path = tmdl.NormalizeGroupPath(path)
	if path == "" {
		return nil
	}
	cur := tableNode
	for _, segment := range strings.Split(path, "/") {
		var next *tree.Node
		for _, c := range cur.Children {
			if c.Kind == tree.KindMeasureFolder && strings.EqualFold(c.Name, segment) {
				next = c
				break
			}
		}
		if next == nil {
			return nil
		}
		cur = next
	}
	return cur
}

// createMeasureFolderPath returns the display folder at path, creating
// missing segments.
func createMeasureFolderPath(t *tree.Tree, tableNode *tree.Node, path string) (*tree.Node, error) {
	path = tmdl.NormalizeGroupPath(path)
	if path == "" {
		return nil, tree.ErrEmptyName
	}
	cur := tableNode
	for _, segment := range strings.Split(path, "/") {
		var next *tree.Node
		for _, c := range cur.Children {
			if c.Kind == tree.KindMeasureFolder && strings.EqualFold(c.Name, segment) {
				next = c
				break
			}
		}
		if next == nil {
			created, err := t.NewMeasureFolder(cur, segment)
			if err != nil {
				return nil, err
			}
			next = created
		}
		cur = next
	}
	return cur, nil
}

func newMeasureNewCommand() *cobra.Command {
	var folder, expression string
	cmd := &cobra.Command{
		Use:   "new <table> <name>",
		Short: "Create a measure",
		Example: `  tentacles measure new Sales "Total Sales" --expression "SUM(Sales[Amount])"
  tentacles measure new Sales Margin --folder "Core/Ratios"`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx := NewCommandContext(cmd)
			p, err := cmdCtx.LoadProject()
			if err != nil {
				return err
			}
			tableNode, err := findTableNode(p, args[0])
			if err != nil {
				return err
			}
			parent := tableNode
			if folder != "" {
				parent, err = createMeasureFolderPath(p.Tree, tableNode, folder)
				if err != nil {
					return err
				}
			}
			node, err := p.Tree.NewMeasure(parent, args[1])
			if err != nil {
				return err
			}
			if expression != "" {
				node.Measure.Expression = expression
			}
			p.MarkMeasuresDirty(tableNode.Name)
			return cmdCtx.saveProject(cmd, p)
		},
	}
	cmd.Flags().StringVar(&folder, "folder", "", "Display folder for the new measure")
	cmd.Flags().StringVar(&expression, "expression", "", "DAX expression")
	return cmd
}

func newMeasureRenameCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <table> <name> <new-name>",
		Short: "Rename a measure",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx := NewCommandContext(cmd)
			p, err := cmdCtx.LoadProject()
			if err != nil {
				return err
			}
			tableNode, err := findTableNode(p, args[0])
			if err != nil {
				return err
			}
			node := findMeasureNode(tableNode, args[1])
			if node == nil {
				return fmt.Errorf("no measure named %q in table %q", args[1], args[0])
			}
			if err := p.Tree.RenameMeasure(node, args[2]); err != nil {
				return err
			}
			p.MarkMeasuresDirty(tableNode.Name)
			return cmdCtx.saveProject(cmd, p)
		},
	}
}

func newMeasureMoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "move <table> <name> [folder]",
		Short: "Move a measure into a display folder",
		Long: `Move a measure into the display folder at the given path, creating
it if needed. Without a folder the measure moves to the table root.
Measures cannot move between tables.`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx := NewCommandContext(cmd)
			p, err := cmdCtx.LoadProject()
			if err != nil {
				return err
			}
			tableNode, err := findTableNode(p, args[0])
			if err != nil {
				return err
			}
			node := findMeasureNode(tableNode, args[1])
			if node == nil {
				return fmt.Errorf("no measure named %q in table %q", args[1], args[0])
			}
			target := tableNode
			if len(args) == 3 && args[2] != "" {
				target, err = createMeasureFolderPath(p.Tree, tableNode, args[2])
				if err != nil {
					return err
				}
			}
			if err := p.Tree.MoveMeasure(node, target); err != nil {
				return err
			}
			return cmdCtx.saveProject(cmd, p)
		},
	}
}

func newMeasureDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <table> <name>",
		Short: "Delete a measure",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx := NewCommandContext(cmd)
			p, err := cmdCtx.LoadProject()
			if err != nil {
				return err
			}
			tableNode, err := findTableNode(p, args[0])
			if err != nil {
				return err
			}
			node := findMeasureNode(tableNode, args[1])
			if node == nil {
				return fmt.Errorf("no measure named %q in table %q", args[1], args[0])
			}
			if err := p.Tree.DeleteMeasure(node); err != nil {
				return err
			}
			p.MarkMeasuresDirty(tableNode.Name)
			return cmdCtx.saveProject(cmd, p)
		},
	}
}

func newMeasureSetCommand() *cobra.Command {
	var fromFile string
	cmd := &cobra.Command{
		Use:   "set <table> <name> [expression]",
		Short: "Set a measure's DAX expression",
		Long: `Replace the DAX expression of a measure. The expression comes from
the argument, from --file, or from stdin when the argument is "-".`,
		Example: `  tentacles measure set Sales "Total Sales" "SUM(Sales[Amount])"
  cat total.dax | tentacles measure set Sales "Total Sales" -`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			expr, err := readExpression(cmd, args, fromFile)
			if err != nil {
				return err
			}

			cmdCtx := NewCommandContext(cmd)
			p, err := cmdCtx.LoadProject()
			if err != nil {
				return err
			}
			tableNode, err := findTableNode(p, args[0])
			if err != nil {
				return err
			}
			node := findMeasureNode(tableNode, args[1])
			if node == nil {
				return fmt.Errorf("no measure named %q in table %q", args[1], args[0])
			}
			node.Measure.Expression = expr
			p.MarkMeasuresDirty(tableNode.Name)
			return cmdCtx.saveProject(cmd, p)
		},
	}
	cmd.Flags().StringVar(&fromFile, "file", "", "Read the expression from a file")
	return cmd
}

func readExpression(cmd *cobra.Command, args []string, fromFile string) (string, error) {
	if fromFile != "" {
		raw, err := os.ReadFile(fromFile)
		if err != nil {
			return "", err
		}
		return strings.TrimRight(string(raw), "\r\n"), nil
	}
	if len(args) < 3 {
		return "", fmt.Errorf("an expression argument or --file is required")
	}
	if args[2] == "-" {
		raw, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", err
		}
		return strings.TrimRight(string(raw), "\r\n"), nil
	}
	return args[2], nil
}

func newMeasureFolderCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "folder",
		Short: "Manage measure display folders",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "new <table> <path>",
		Short: "Create a display folder",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx := NewCommandContext(cmd)
			p, err := cmdCtx.LoadProject()
			if err != nil {
				return err
			}
			tableNode, err := findTableNode(p, args[0])
			if err != nil {
				return err
			}
			if _, err := createMeasureFolderPath(p.Tree, tableNode, args[1]); err != nil {
				return err
			}
			// Empty folders are not persisted; report instead of saving
			cmdCtx.Renderer.Muted("Folder created; it persists once it holds a measure")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "rename <table> <path> <new-name>",
		Short: "Rename a display folder",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx := NewCommandContext(cmd)
			p, err := cmdCtx.LoadProject()
			if err != nil {
				return err
			}
			tableNode, err := findTableNode(p, args[0])
			if err != nil {
				return err
			}
			folder := findMeasureFolder(tableNode, args[1])
			if folder == nil {
				return fmt.Errorf("no display folder at %q in table %q", args[1], args[0])
			}
			if err := p.Tree.RenameMeasureFolder(folder, args[2]); err != nil {
				return err
			}
			return cmdCtx.saveProject(cmd, p)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <table> <path>",
		Short: "Delete a display folder, keeping its measures",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx := NewCommandContext(cmd)
			p, err := cmdCtx.LoadProject()
			if err != nil {
				return err
			}
			tableNode, err := findTableNode(p, args[0])
			if err != nil {
				return err
			}
			folder := findMeasureFolder(tableNode, args[1])
			if folder == nil {
				return fmt.Errorf("no display folder at %q in table %q", args[1], args[0])
			}
			if err := p.Tree.DeleteMeasureFolder(folder); err != nil {
				return err
			}
			return cmdCtx.saveProject(cmd, p)
		},
	})

	return cmd
}
