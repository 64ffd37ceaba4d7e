package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pbip-tools/tentacles/internal/cli/output"
	"github.com/pbip-tools/tentacles/internal/tree"
)

// TreeNodeInfo is the JSON shape of one tree node.
type TreeNodeInfo struct {
	Name     string         `json:"name"`
	Kind     string         `json:"kind"`
	Children []TreeNodeInfo `json:"children,omitempty"`
}

// NewTreeCommand creates the tree command.
func NewTreeCommand() *cobra.Command {
	var showColumns bool
	cmd := &cobra.Command{
		Use:   "tree",
		Short: "Show the project as a folder tree",
		Long: `Show query groups, tables, measure display folders, and measures
as a tree, the way Power BI Desktop's Queries pane organizes them.
Tables without a query group appear under the synthetic "Other Queries"
folder.`,
		Example: `  # Show the tree without columns
  tentacles tree

  # Include table columns
  tentacles tree --columns`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx := NewCommandContext(cmd)
			p, err := cmdCtx.LoadProject()
			if err != nil {
				return err
			}

			r := cmdCtx.Renderer
			if r.EffectiveMode() == output.ModeJSON {
				return r.JSON(treeInfo(p.Tree.Root(), showColumns).Children)
			}
			for _, child := range p.Tree.Root().Children {
				renderTreeNode(r, child, "", showColumns)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&showColumns, "columns", false, "Include table columns")
	return cmd
}

func treeInfo(n *tree.Node, showColumns bool) TreeNodeInfo {
	info := TreeNodeInfo{Name: n.Name, Kind: n.Kind.String()}
	for _, c := range n.Children {
		if c.Kind == tree.KindColumn && !showColumns {
			continue
		}
		info.Children = append(info.Children, treeInfo(c, showColumns))
	}
	return info
}

func renderTreeNode(r *output.Renderer, n *tree.Node, indent string, showColumns bool) {
	styles := r.Styles()
	label := n.Name
	switch n.Kind {
	case tree.KindFolder:
		label = styles.Folder.Render(label + "/")
	case tree.KindTable:
		label = styles.Table.Render(label)
	case tree.KindMeasureFolder:
		label = styles.Muted.Render(label + "/")
	case tree.KindMeasure:
		label = styles.Measure.Render(fmt.Sprintf("%s (measure)", n.Name))
	case tree.KindColumn:
		if !showColumns {
			return
		}
		label = styles.Column.Render(n.Name)
	}
	r.Println(indent + label)
	for _, c := range n.Children {
		renderTreeNode(r, c, indent+"  ", showColumns)
	}
}
