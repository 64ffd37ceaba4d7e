// Package pbip resolves the on-disk layout of a Power BI project from its
// .pbip file: the semantic model definition, the tables directory, DAX
// query storage, and the report definition all derive from the project
// stem.
package pbip

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// maxUpwardSearchLevels bounds the parent-directory walk in Discover.
const maxUpwardSearchLevels = 10

var (
	ErrNotPbip   = errors.New("not a .pbip file")
	ErrNoProject = errors.New("no .pbip file found")
)

// Paths is the derived layout of one project. Directories are derived, not
// checked; only the .pbip file and the semantic model definition are
// required to exist.
type Paths struct {
	PbipFile string
	Stem     string

	SemanticModelDir string
	DefinitionDir    string
	ModelFile        string
	TablesDir        string

	DAXQueriesDir  string
	DAXQueriesMeta string

	ReportDir    string
	BookmarksDir string
	PagesDir     string
}

// Resolve derives the project layout from a .pbip file path.
func Resolve(path string) (*Paths, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", path, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("reading project file: %w", err)
	}
	if info.IsDir() || !strings.EqualFold(filepath.Ext(abs), ".pbip") {
		return nil, fmt.Errorf("%w: %s", ErrNotPbip, path)
	}

	dir := filepath.Dir(abs)
	stem := strings.TrimSuffix(filepath.Base(abs), filepath.Ext(abs))

	semantic := filepath.Join(dir, stem+".SemanticModel")
	definition := filepath.Join(semantic, "definition")
	daxDir := filepath.Join(semantic, "DAXQueries")
	report := filepath.Join(dir, stem+".Report")
	reportDef := filepath.Join(report, "definition")

	return &Paths{
		PbipFile:         abs,
		Stem:             stem,
		SemanticModelDir: semantic,
		DefinitionDir:    definition,
		ModelFile:        filepath.Join(definition, "model.tmdl"),
		TablesDir:        filepath.Join(definition, "tables"),
		DAXQueriesDir:    daxDir,
		DAXQueriesMeta:   filepath.Join(daxDir, ".pbi", "daxQueries.json"),
		ReportDir:        report,
		BookmarksDir:     filepath.Join(reportDef, "bookmarks"),
		PagesDir:         filepath.Join(reportDef, "pages"),
	}, nil
}

// Discover finds a .pbip file in dir or one of its parents, walking at
// most maxUpwardSearchLevels levels. With several candidates in one
// directory the alphabetically first wins.
func Discover(dir string) (string, error) {
	cur, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", dir, err)
	}
	for level := 0; level <= maxUpwardSearchLevels; level++ {
		matches, err := filepath.Glob(filepath.Join(cur, "*.pbip"))
		if err != nil {
			return "", fmt.Errorf("scanning %s: %w", cur, err)
		}
		if len(matches) > 0 {
			sort.Strings(matches)
			return matches[0], nil
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			break
		}
		cur = parent
	}
	return "", fmt.Errorf("%w in %s or its parents", ErrNoProject, dir)
}
