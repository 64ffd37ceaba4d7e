package assistant

import (
	"strings"

	"github.com/pbip-tools/tentacles/internal/tmdl"
)

// BuildPrompt wraps a natural-language question with the model's table,
// column, and measure identifiers so the bot answers against real names.
func BuildPrompt(question string, tables []*tmdl.Table) string {
	var b strings.Builder
	b.WriteString("You are a DAX expert. Write a single DAX query answering the request below.\n")
	b.WriteString("Use only these tables, columns, and measures:\n\n")

	for _, tbl := range tables {
		b.WriteString("table '")
		b.WriteString(tbl.Name)
		b.WriteString("'\n")
		for _, col := range tbl.Columns {
			b.WriteString("  column '")
			b.WriteString(tbl.Name)
			b.WriteString("'[")
			b.WriteString(col)
			b.WriteString("]\n")
		}
		for _, m := range tbl.Measures {
			b.WriteString("  measure [")
			b.WriteString(m.Name)
			b.WriteString("]\n")
		}
	}

	b.WriteString("\nReturn the query in a ```dax code block.\n\nRequest: ")
	b.WriteString(strings.TrimSpace(question))
	return b.String()
}
