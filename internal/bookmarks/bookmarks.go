// Package bookmarks reads the report bookmark metadata: the item list in
// bookmarks.json, per-bookmark display names from *.bookmark.json files,
// and a usage scan over the report pages. Broken per-item files degrade to
// warnings so one bad bookmark never hides the rest.
package bookmarks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

// usageScanConcurrency caps the parallel page reads during a usage scan.
const usageScanConcurrency = 8

// Entry is one bookmark or bookmark folder. Folders carry their display
// name inline; bookmarks resolve it from their own .bookmark.json file.
type Entry struct {
	ID          string
	DisplayName string
	IsFolder    bool
	Children    []*Entry
}

// Collection is the loaded bookmark set of a report.
type Collection struct {
	Dir      string
	Entries  []*Entry
	Warnings []string
}

type itemDoc struct {
	Name        string   `json:"name"`
	DisplayName string   `json:"displayName"`
	Children    []string `json:"children"`
}

type indexDoc struct {
	Items []itemDoc `json:"items"`
}

// Load reads bookmarks.json from the bookmarks directory. A missing file
// or directory yields an empty collection.
func Load(dir string) (*Collection, error) {
	c := &Collection{Dir: dir}

	raw, err := os.ReadFile(filepath.Join(dir, "bookmarks.json"))
	if errors.Is(err, os.ErrNotExist) {
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading bookmarks index: %w", err)
	}

	var index indexDoc
	if err := json.Unmarshal(raw, &index); err != nil {
		return nil, fmt.Errorf("parsing bookmarks.json: %w", err)
	}

	for _, item := range index.Items {
		if item.Children != nil {
			folder := &Entry{ID: item.Name, DisplayName: item.DisplayName, IsFolder: true}
			if folder.DisplayName == "" {
				folder.DisplayName = item.Name
			}
			for _, childID := range item.Children {
				folder.Children = append(folder.Children, c.loadBookmark(childID))
			}
			c.Entries = append(c.Entries, folder)
			continue
		}
		c.Entries = append(c.Entries, c.loadBookmark(item.Name))
	}
	return c, nil
}

// loadBookmark resolves one bookmark's display name from its own file,
// falling back to the id on any failure.
func (c *Collection) loadBookmark(id string) *Entry {
	entry := &Entry{ID: id, DisplayName: id}

	raw, err := os.ReadFile(filepath.Join(c.Dir, id+".bookmark.json"))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			c.Warnings = append(c.Warnings, fmt.Sprintf("bookmark %s: %v", id, err))
		}
		return entry
	}

	var doc struct {
		DisplayName string `json:"displayName"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		c.Warnings = append(c.Warnings, fmt.Sprintf("bookmark %s: invalid JSON: %v", id, err))
		return entry
	}
	if doc.DisplayName != "" {
		entry.DisplayName = doc.DisplayName
	}
	return entry
}

// Flatten returns every bookmark entry, folders expanded in order.
func (c *Collection) Flatten() []*Entry {
	var out []*Entry
	for _, e := range c.Entries {
		if e.IsFolder {
			out = append(out, e.Children...)
			continue
		}
		out = append(out, e)
	}
	return out
}

// Usage scans the report pages for references to the given bookmark ids.
// It returns, per id, the page files mentioning it. A missing pages
// directory yields an empty map.
func Usage(ctx context.Context, pagesDir string, ids []string) (map[string][]string, error) {
	usage := make(map[string][]string, len(ids))
	if len(ids) == 0 {
		return usage, nil
	}
	if _, err := os.Stat(pagesDir); errors.Is(err, os.ErrNotExist) {
		return usage, nil
	}

	var files []string
	err := filepath.WalkDir(pagesDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".json") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning pages: %w", err)
	}

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(usageScanConcurrency)
	for _, file := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			raw, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("reading %s: %w", file, err)
			}
			content := string(raw)
			rel, relErr := filepath.Rel(pagesDir, file)
			if relErr != nil {
				rel = file
			}
			mu.Lock()
			for _, id := range ids {
				if strings.Contains(content, id) {
					usage[id] = append(usage[id], rel)
				}
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return usage, nil
}
