package bookmarks

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func setupBookmarks(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "bookmarks.json"),
		`{"items":[{"name":"grp1","displayName":"Views","children":["bm1","bm2"]},{"name":"bm3"}]}`)
	writeFile(t, filepath.Join(dir, "bm1.bookmark.json"), `{"displayName":"Opening View"}`)
	writeFile(t, filepath.Join(dir, "bm2.bookmark.json"), `not json`)
	return dir
}

func TestLoad(t *testing.T) {
	c, err := Load(setupBookmarks(t))
	require.NoError(t, err)

	require.Len(t, c.Entries, 2)
	folder := c.Entries[0]
	assert.True(t, folder.IsFolder)
	assert.Equal(t, "Views", folder.DisplayName)
	require.Len(t, folder.Children, 2)
	assert.Equal(t, "Opening View", folder.Children[0].DisplayName)
	assert.Equal(t, "bm2", folder.Children[1].DisplayName, "broken files fall back to the id")
	require.Len(t, c.Warnings, 1)
	assert.Contains(t, c.Warnings[0], "bm2")

	plain := c.Entries[1]
	assert.False(t, plain.IsFolder)
	assert.Equal(t, "bm3", plain.DisplayName, "missing files fall back to the id")
}

func TestLoadMissingDirectory(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "absent"))
	require.NoError(t, err)
	assert.Empty(t, c.Entries)
}

func TestFlatten(t *testing.T) {
	c, err := Load(setupBookmarks(t))
	require.NoError(t, err)

	flat := c.Flatten()
	require.Len(t, flat, 3)
	assert.Equal(t, "bm1", flat[0].ID)
	assert.Equal(t, "bm3", flat[2].ID)
}

func TestUsage(t *testing.T) {
	pages := t.TempDir()
	writeFile(t, filepath.Join(pages, "page1", "page.json"), `{"actions":[{"bookmark":"bm1"}]}`)
	writeFile(t, filepath.Join(pages, "page2", "page.json"), `{"actions":[]}`)
	writeFile(t, filepath.Join(pages, "page2", "notes.txt"), `bm1`)

	usage, err := Usage(context.Background(), pages, []string{"bm1", "bm2"})
	require.NoError(t, err)

	require.Len(t, usage["bm1"], 1)
	assert.Equal(t, filepath.Join("page1", "page.json"), usage["bm1"][0])
	assert.Empty(t, usage["bm2"])
}

func TestUsageMissingPagesDir(t *testing.T) {
	usage, err := Usage(context.Background(), filepath.Join(t.TempDir(), "absent"), []string{"bm1"})
	require.NoError(t, err)
	assert.Empty(t, usage)
}
