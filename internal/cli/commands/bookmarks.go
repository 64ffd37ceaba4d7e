package commands

import (
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/pbip-tools/tentacles/internal/bookmarks"
	"github.com/pbip-tools/tentacles/internal/cli/output"
)

// BookmarkInfo is the JSON shape of one bookmark.
type BookmarkInfo struct {
	ID          string   `json:"id"`
	DisplayName string   `json:"display_name"`
	Folder      bool     `json:"folder"`
	UsedBy      []string `json:"used_by,omitempty"`
}

// NewBookmarksCommand creates the bookmarks command.
func NewBookmarksCommand() *cobra.Command {
	var withUsage bool
	cmd := &cobra.Command{
		Use:   "bookmarks",
		Short: "List report bookmarks",
		Long: `List the bookmarks of the report next to the semantic model. With
--usage, the report pages are scanned for references to each bookmark,
which finds bookmarks no button or visual points at anymore.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx := NewCommandContext(cmd)
			p, err := cmdCtx.LoadProject()
			if err != nil {
				return err
			}
			c, err := p.Bookmarks()
			if err != nil {
				return err
			}
			r := cmdCtx.Renderer
			for _, w := range c.Warnings {
				r.Warning("warning: " + w)
			}

			var usage map[string][]string
			if withUsage {
				usage, err = p.BookmarkUsage(cmd.Context())
				if err != nil {
					return err
				}
			}

			if r.EffectiveMode() == output.ModeJSON {
				infos := make([]BookmarkInfo, 0)
				for _, e := range c.Flatten() {
					infos = append(infos, BookmarkInfo{
						ID:          e.ID,
						DisplayName: e.DisplayName,
						Folder:      e.IsFolder,
						UsedBy:      usage[e.ID],
					})
				}
				return r.JSON(infos)
			}

			if len(c.Entries) == 0 {
				r.Muted("No bookmarks")
				return nil
			}
			renderBookmarks(r, c, usage, withUsage)
			return nil
		},
	}
	cmd.Flags().BoolVar(&withUsage, "usage", false, "Scan report pages for bookmark references")
	return cmd
}

func renderBookmarks(r *output.Renderer, c *bookmarks.Collection, usage map[string][]string, withUsage bool) {
	t := table.NewWriter()
	t.SetOutputMirror(r.Writer())
	t.SetStyle(table.StyleLight)
	if withUsage {
		t.AppendHeader(table.Row{"Bookmark", "ID", "Used By"})
	} else {
		t.AppendHeader(table.Row{"Bookmark", "ID"})
	}

	var append_ func(entries []*bookmarks.Entry, depth int)
	append_ = func(entries []*bookmarks.Entry, depth int) {
		indent := strings.Repeat("  ", depth)
		for _, e := range entries {
			name := indent + e.DisplayName
			if e.IsFolder {
				t.AppendRow(table.Row{name + "/", e.ID})
				append_(e.Children, depth+1)
				continue
			}
			if withUsage {
				used := strings.Join(usage[e.ID], ", ")
				if used == "" {
					used = "(unused)"
				}
				t.AppendRow(table.Row{name, e.ID, used})
			} else {
				t.AppendRow(table.Row{name, e.ID})
			}
		}
	}
	append_(c.Entries, 0)
	t.Render()
}
