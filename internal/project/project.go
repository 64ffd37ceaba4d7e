// Package project orchestrates loading a .pbip project into parsed
// metadata plus the reconciled tree, and saving structure edits back to
// the definition files. Saves are partial by design: each logical unit
// writes independently and failures collect as warnings.
package project

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pbip-tools/tentacles/internal/bookmarks"
	"github.com/pbip-tools/tentacles/internal/daxquery"
	"github.com/pbip-tools/tentacles/internal/pbip"
	"github.com/pbip-tools/tentacles/internal/state"
	"github.com/pbip-tools/tentacles/internal/tmdl"
	"github.com/pbip-tools/tentacles/internal/tree"
)

// Project is one loaded .pbip project.
type Project struct {
	Paths  *pbip.Paths
	Tables []*tmdl.Table
	Groups map[string]int
	Order  []string
	Tree   *tree.Tree

	// LoadWarnings collects per-table read problems that did not abort
	// the load.
	LoadWarnings []string

	modelText string
	baseline  *tree.Layout
	logger    *slog.Logger

	dirtyMeasures map[string]bool

	queries    *daxquery.Set
	queriesErr error
	marks      *bookmarks.Collection
	marksErr   error
}

// Load reads model.tmdl and every table file of the project. Structural
// problems (missing model or tables directory) abort the load; a broken
// individual table file is skipped with a warning.
func Load(pbipPath string, logger *slog.Logger) (*Project, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	paths, err := pbip.Resolve(pbipPath)
	if err != nil {
		return nil, err
	}

	modelRaw, err := os.ReadFile(paths.ModelFile)
	if err != nil {
		return nil, fmt.Errorf("reading model.tmdl: %w", err)
	}
	p := &Project{
		Paths:         paths,
		Groups:        tmdl.ParseQueryGroups(string(modelRaw)),
		Order:         tmdl.ParseQueryOrder(string(modelRaw)),
		modelText:     string(modelRaw),
		logger:        logger,
		dirtyMeasures: map[string]bool{},
	}

	entries, err := os.ReadDir(paths.TablesDir)
	if err != nil {
		return nil, fmt.Errorf("reading tables directory: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".tmdl") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		path := filepath.Join(paths.TablesDir, name)
		raw, err := os.ReadFile(path)
		if err != nil {
			p.LoadWarnings = append(p.LoadWarnings, fmt.Sprintf("skipping %s: %v", name, err))
			logger.Warn("skipping unreadable table file", "file", name, "error", err)
			continue
		}
		tableName := strings.TrimSuffix(name, filepath.Ext(name))
		tbl := tmdl.ParseTable(tableName, string(raw))
		tbl.FilePath = path
		p.Tables = append(p.Tables, tbl)
	}

	p.Tree = tree.Build(p.Tables, p.Groups, p.Order)
	p.baseline = p.Tree.Layout()
	logger.Debug("project loaded",
		"pbip", paths.PbipFile,
		"tables", len(p.Tables),
		"groups", len(p.Groups))
	return p, nil
}

// Table returns the parsed table with the given name, or nil.
func (p *Project) Table(name string) *tmdl.Table {
	for _, t := range p.Tables {
		if strings.EqualFold(t.Name, name) {
			return t
		}
	}
	return nil
}

// MarkMeasuresDirty flags a table whose measure content (not placement)
// changed, forcing its measures section to rewrite on save.
func (p *Project) MarkMeasuresDirty(tableName string) {
	p.dirtyMeasures[strings.ToLower(tableName)] = true
}

// Dirty reports whether the tree layout or any flagged measure content
// differs from what was loaded.
func (p *Project) Dirty() bool {
	return len(p.dirtyMeasures) > 0 || !p.baseline.Equal(p.Tree.Layout())
}

// SaveResult summarizes one save.
type SaveResult struct {
	SaveID   string
	Written  []string
	Warnings []string
}

// Save writes the model and every affected table file. Unchanged rendered
// content is not rewritten. Per-unit failures become warnings; the save
// continues and reports partial status. A nil store skips history
// recording.
func (p *Project) Save(ctx context.Context, store *state.Store) (*SaveResult, error) {
	result := &SaveResult{}
	if !p.Dirty() {
		return result, nil
	}

	layout := p.Tree.Layout()
	p.Tree.Apply()

	if store != nil {
		id, err := store.BeginSave(ctx, p.Paths.PbipFile)
		if err != nil {
			p.logger.Warn("save history unavailable", "error", err)
		} else {
			result.SaveID = id
		}
	}
	record := func(file, status, detail string) {
		if store == nil || result.SaveID == "" {
			return
		}
		if err := store.AddFileWrite(ctx, result.SaveID, file, status, detail); err != nil {
			p.logger.Warn("recording file write failed", "file", file, "error", err)
		}
	}

	p.saveModel(layout, result, record)
	for _, tbl := range p.Tables {
		p.saveTable(tbl, layout, result, record)
	}

	status := state.StatusCompleted
	if len(result.Warnings) > 0 {
		status = state.StatusPartial
	}
	if store != nil && result.SaveID != "" {
		if err := store.CompleteSave(ctx, result.SaveID, status, len(result.Warnings)); err != nil {
			p.logger.Warn("completing save history failed", "error", err)
		}
	}

	p.baseline = layout
	p.dirtyMeasures = map[string]bool{}
	p.logger.Info("project saved",
		"files", len(result.Written),
		"warnings", len(result.Warnings))
	return result, nil
}

func (p *Project) saveModel(layout *tree.Layout, result *SaveResult, record func(file, status, detail string)) {
	rewritten, err := tmdl.RewriteModel(p.modelText, layout.FolderPaths, layout.TableOrder)
	if err != nil {
		msg := fmt.Sprintf("model.tmdl: %v", err)
		result.Warnings = append(result.Warnings, msg)
		record(p.Paths.ModelFile, "failed", err.Error())
		return
	}
	if rewritten == p.modelText {
		return
	}
	if err := os.WriteFile(p.Paths.ModelFile, []byte(rewritten), 0o644); err != nil {
		msg := fmt.Sprintf("model.tmdl: %v", err)
		result.Warnings = append(result.Warnings, msg)
		record(p.Paths.ModelFile, "failed", err.Error())
		return
	}
	p.modelText = rewritten
	result.Written = append(result.Written, p.Paths.ModelFile)
	record(p.Paths.ModelFile, "written", "")
}

func (p *Project) saveTable(tbl *tmdl.Table, layout *tree.Layout, result *SaveResult, record func(file, status, detail string)) {
	groupChanged := p.baseline.TableGroups[tbl.Name] != layout.TableGroups[tbl.Name]
	measuresChanged := p.dirtyMeasures[strings.ToLower(tbl.Name)] ||
		!placementsEqual(p.baseline.Measures[tbl.Name], layout.Measures[tbl.Name])
	if !groupChanged && !measuresChanged {
		return
	}

	raw, err := os.ReadFile(tbl.FilePath)
	if err != nil {
		msg := fmt.Sprintf("%s: %v", filepath.Base(tbl.FilePath), err)
		result.Warnings = append(result.Warnings, msg)
		record(tbl.FilePath, "failed", err.Error())
		return
	}
	text := string(raw)
	changed := false

	if groupChanged && !tbl.Calculated() {
		if updated, ok := tmdl.RewriteTableGroup(text, tbl.QueryGroup); ok {
			text = updated
			changed = true
		}
	}
	if measuresChanged {
		if updated, ok := tmdl.RewriteMeasures(text, tbl.Measures); ok {
			text = updated
			changed = true
		}
	}
	if !changed {
		return
	}

	if err := os.WriteFile(tbl.FilePath, []byte(text), 0o644); err != nil {
		msg := fmt.Sprintf("%s: %v", filepath.Base(tbl.FilePath), err)
		result.Warnings = append(result.Warnings, msg)
		record(tbl.FilePath, "failed", err.Error())
		return
	}
	result.Written = append(result.Written, tbl.FilePath)
	record(tbl.FilePath, "written", "")
}

func placementsEqual(a, b []tree.Placement) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// DAXQueries lazily loads the stored query tabs. The result (including a
// failure) is cached; a broken bundle never blocks the rest of the
// project.
func (p *Project) DAXQueries() (*daxquery.Set, error) {
	if p.queries == nil && p.queriesErr == nil {
		p.queries, p.queriesErr = daxquery.Load(p.Paths.DAXQueriesDir, p.Paths.DAXQueriesMeta)
	}
	return p.queries, p.queriesErr
}

// Bookmarks lazily loads the report bookmarks, cached like DAXQueries.
func (p *Project) Bookmarks() (*bookmarks.Collection, error) {
	if p.marks == nil && p.marksErr == nil {
		p.marks, p.marksErr = bookmarks.Load(p.Paths.BookmarksDir)
	}
	return p.marks, p.marksErr
}

// BookmarkUsage runs the pages scan for every loaded bookmark.
func (p *Project) BookmarkUsage(ctx context.Context) (map[string][]string, error) {
	c, err := p.Bookmarks()
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(c.Entries))
	for _, e := range c.Flatten() {
		ids = append(ids, e.ID)
	}
	return bookmarks.Usage(ctx, p.Paths.PagesDir, ids)
}
