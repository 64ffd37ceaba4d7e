package commands

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/pbip-tools/tentacles/internal/cli/output"
	"github.com/pbip-tools/tentacles/internal/project"
	"github.com/pbip-tools/tentacles/internal/tmdl"
)

// TableInfo is the JSON shape of one table in list output.
type TableInfo struct {
	Name       string `json:"name"`
	Mode       string `json:"mode"`
	Type       string `json:"type"`
	QueryGroup string `json:"query_group"`
	Columns    int    `json:"columns"`
	Measures   int    `json:"measures"`
}

// ListOutput is the JSON shape of the list command output.
type ListOutput struct {
	Project string      `json:"project"`
	Tables  []TableInfo `json:"tables"`
}

// NewListCommand creates the list command.
func NewListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the tables of the semantic model",
		Example: `  # List tables of the project found in the current directory
  tentacles list

  # List a specific project as JSON
  tentacles list -p ./Sales.pbip -o json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx := NewCommandContext(cmd)
			p, err := cmdCtx.LoadProject()
			if err != nil {
				return err
			}

			r := cmdCtx.Renderer
			switch r.EffectiveMode() {
			case output.ModeJSON:
				return listJSON(p, r)
			case output.ModeMarkdown:
				return listMarkdown(p, r)
			default:
				return listText(p, r)
			}
		},
	}
}

func tableInfo(t *tmdl.Table) TableInfo {
	return TableInfo{
		Name:       t.Name,
		Mode:       string(t.ImportMode),
		Type:       string(t.TableType),
		QueryGroup: t.QueryGroup,
		Columns:    len(t.Columns),
		Measures:   len(t.Measures),
	}
}

func listText(p *project.Project, r *output.Renderer) error {
	t := table.NewWriter()
	t.SetOutputMirror(r.Writer())
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Table", "Mode", "Type", "Query Group", "Columns", "Measures"})

	for _, tbl := range p.Tables {
		info := tableInfo(tbl)
		t.AppendRow(table.Row{info.Name, info.Mode, info.Type, info.QueryGroup, info.Columns, info.Measures})
	}
	t.Render()
	r.Printf("(%d tables)\n", len(p.Tables))
	return nil
}

func listMarkdown(p *project.Project, r *output.Renderer) error {
	r.Println(output.FormatHeader(1, fmt.Sprintf("Tables (%d total)", len(p.Tables))))
	for _, tbl := range p.Tables {
		info := tableInfo(tbl)
		r.Println("")
		r.Println(output.FormatHeader(2, info.Name))
		r.Println(output.FormatKeyValue("Mode", info.Mode))
		r.Println(output.FormatKeyValue("Type", info.Type))
		if info.QueryGroup != "" {
			r.Println(output.FormatKeyValue("Query Group", info.QueryGroup))
		}
		r.Println(output.FormatKeyValue("Columns", fmt.Sprint(info.Columns)))
		r.Println(output.FormatKeyValue("Measures", fmt.Sprint(info.Measures)))
	}
	return nil
}

func listJSON(p *project.Project, r *output.Renderer) error {
	out := ListOutput{
		Project: p.Paths.PbipFile,
		Tables:  make([]TableInfo, 0, len(p.Tables)),
	}
	for _, tbl := range p.Tables {
		out.Tables = append(out.Tables, tableInfo(tbl))
	}
	return r.JSON(out)
}
