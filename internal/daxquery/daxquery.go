// Package daxquery manages the stored DAX query tabs of a project: the
// tab order and default tab in DAXQueries/.pbi/daxQueries.json plus one
// .dax file per tab. Unknown JSON keys in the metadata file survive a
// rewrite untouched.
package daxquery

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrEmptyName = errors.New("query name is empty")
	ErrNameTaken = errors.New("query name already in use")
	ErrNotFound  = errors.New("query not found")
	ErrBadOrder  = errors.New("order is not a permutation of the query names")
)

// Query is one DAX tab. Text holds the .dax file content; a missing file
// loads as empty text.
type Query struct {
	Name string
	Text string

	dirty    bool
	fileName string // name the .dax file had on disk, empty for new tabs
}

// Set is the loaded query collection.
type Set struct {
	dir      string
	metaPath string

	Queries    []*Query
	DefaultTab string

	extra   map[string]json.RawMessage
	removed []string
	dirty   bool
}

// Load reads the query metadata and the per-tab .dax files. A missing
// metadata file yields an empty set; missing .dax files load as empty
// queries.
func Load(dir, metaPath string) (*Set, error) {
	s := &Set{dir: dir, metaPath: metaPath, extra: map[string]json.RawMessage{}}

	raw, err := os.ReadFile(metaPath)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading query metadata: %w", err)
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", filepath.Base(metaPath), err)
	}

	var order []string
	if v, ok := doc["tabOrder"]; ok {
		if err := json.Unmarshal(v, &order); err != nil {
			return nil, fmt.Errorf("parsing tabOrder: %w", err)
		}
		delete(doc, "tabOrder")
	}
	if v, ok := doc["defaultTab"]; ok {
		_ = json.Unmarshal(v, &s.DefaultTab)
		delete(doc, "defaultTab")
	}
	s.extra = doc

	for _, name := range order {
		q := &Query{Name: name, fileName: name}
		text, err := os.ReadFile(filepath.Join(dir, name+".dax"))
		if err == nil {
			q.Text = string(text)
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("reading query %s: %w", name, err)
		}
		s.Queries = append(s.Queries, q)
	}
	return s, nil
}

// Dirty reports whether the set has unsaved changes.
func (s *Set) Dirty() bool {
	if s.dirty {
		return true
	}
	for _, q := range s.Queries {
		if q.dirty {
			return true
		}
	}
	return false
}

// Find returns the query with the given name, matched case-insensitively.
func (s *Set) Find(name string) *Query {
	for _, q := range s.Queries {
		if strings.EqualFold(q.Name, name) {
			return q
		}
	}
	return nil
}

func (s *Set) nameTaken(name string, skip *Query) bool {
	for _, q := range s.Queries {
		if q != skip && strings.EqualFold(q.Name, name) {
			return true
		}
	}
	return false
}

// Add appends a new empty query tab.
func (s *Set) Add(name string) (*Query, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyName
	}
	if s.nameTaken(name, nil) {
		return nil, fmt.Errorf("%w: %s", ErrNameTaken, name)
	}
	q := &Query{Name: name, dirty: true}
	s.Queries = append(s.Queries, q)
	s.dirty = true
	if s.DefaultTab == "" {
		s.DefaultTab = name
	}
	return q, nil
}

// Rename changes a tab name; the .dax file follows on save.
func (s *Set) Rename(oldName, newName string) error {
	q := s.Find(oldName)
	if q == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, oldName)
	}
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return ErrEmptyName
	}
	if s.nameTaken(newName, q) {
		return fmt.Errorf("%w: %s", ErrNameTaken, newName)
	}
	if s.DefaultTab == q.Name {
		s.DefaultTab = newName
	}
	q.Name = newName
	q.dirty = true
	s.dirty = true
	return nil
}

// Delete removes a tab; the .dax file is deleted on save.
func (s *Set) Delete(name string) error {
	for i, q := range s.Queries {
		if strings.EqualFold(q.Name, name) {
			s.Queries = append(s.Queries[:i], s.Queries[i+1:]...)
			if q.fileName != "" {
				s.removed = append(s.removed, q.fileName)
			}
			if strings.EqualFold(s.DefaultTab, q.Name) {
				s.DefaultTab = ""
				if len(s.Queries) > 0 {
					s.DefaultTab = s.Queries[0].Name
				}
			}
			s.dirty = true
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrNotFound, name)
}

// Reorder applies a new tab order, which must name every query exactly
// once.
func (s *Set) Reorder(names []string) error {
	if len(names) != len(s.Queries) {
		return ErrBadOrder
	}
	reordered := make([]*Query, 0, len(names))
	seen := make(map[*Query]bool, len(names))
	for _, name := range names {
		q := s.Find(name)
		if q == nil || seen[q] {
			return fmt.Errorf("%w: %s", ErrBadOrder, name)
		}
		seen[q] = true
		reordered = append(reordered, q)
	}
	s.Queries = reordered
	s.dirty = true
	return nil
}

// SetDefault marks a tab as the default.
func (s *Set) SetDefault(name string) error {
	q := s.Find(name)
	if q == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	s.DefaultTab = q.Name
	s.dirty = true
	return nil
}

// SetText replaces a tab's query text.
func (s *Set) SetText(name, text string) error {
	q := s.Find(name)
	if q == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if q.Text != text {
		q.Text = text
		q.dirty = true
	}
	return nil
}

// Save writes the metadata file and every changed .dax file. I/O failures
// are collected as warnings so the rest of the save still lands.
func (s *Set) Save() ([]string, error) {
	if !s.Dirty() {
		return nil, nil
	}
	var warnings []string

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", s.dir, err)
	}

	for _, name := range s.removed {
		path := filepath.Join(s.dir, name+".dax")
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			warnings = append(warnings, fmt.Sprintf("deleting %s: %v", path, err))
		}
	}
	s.removed = nil

	for _, q := range s.Queries {
		if q.fileName != "" && q.fileName != q.Name {
			oldPath := filepath.Join(s.dir, q.fileName+".dax")
			newPath := filepath.Join(s.dir, q.Name+".dax")
			if err := os.Rename(oldPath, newPath); err != nil && !errors.Is(err, os.ErrNotExist) {
				warnings = append(warnings, fmt.Sprintf("renaming %s: %v", oldPath, err))
			}
			q.fileName = q.Name
		}
		if !q.dirty {
			continue
		}
		path := filepath.Join(s.dir, q.Name+".dax")
		if err := os.WriteFile(path, []byte(q.Text), 0o644); err != nil {
			warnings = append(warnings, fmt.Sprintf("writing %s: %v", path, err))
			continue
		}
		q.fileName = q.Name
		q.dirty = false
	}

	doc := make(map[string]any, len(s.extra)+2)
	for k, v := range s.extra {
		doc[k] = v
	}
	order := make([]string, 0, len(s.Queries))
	for _, q := range s.Queries {
		order = append(order, q.Name)
	}
	doc["tabOrder"] = order
	if s.DefaultTab != "" {
		doc["defaultTab"] = s.DefaultTab
	}

	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return warnings, fmt.Errorf("encoding query metadata: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.metaPath), 0o755); err != nil {
		return warnings, fmt.Errorf("creating %s: %w", filepath.Dir(s.metaPath), err)
	}
	if err := os.WriteFile(s.metaPath, append(raw, '\n'), 0o644); err != nil {
		return warnings, fmt.Errorf("writing query metadata: %w", err)
	}
	s.dirty = false
	return warnings, nil
}
