package state

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveRunLifecycle(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	id, err := s.BeginSave(ctx, "/proj/Sales.pbip")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	require.NoError(t, s.AddFileWrite(ctx, id, "model.tmdl", "written", ""))
	require.NoError(t, s.AddFileWrite(ctx, id, "tables/Sales.tmdl", "failed", "permission denied"))
	require.NoError(t, s.CompleteSave(ctx, id, StatusPartial, 1))

	runs, err := s.ListSaves(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, id, runs[0].ID)
	assert.Equal(t, "/proj/Sales.pbip", runs[0].PbipPath)
	assert.Equal(t, StatusPartial, runs[0].Status)
	assert.Equal(t, 1, runs[0].WarningCount)
	require.NotNil(t, runs[0].CompletedAt)

	writes, err := s.ListFileWrites(ctx, id)
	require.NoError(t, err)
	require.Len(t, writes, 2)
	assert.Equal(t, "model.tmdl", writes[0].FilePath)
	assert.Equal(t, "failed", writes[1].Status)
	assert.Equal(t, "permission denied", writes[1].Detail)
}

func TestListSavesNewestFirst(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	first, err := s.BeginSave(ctx, "/proj/a.pbip")
	require.NoError(t, err)
	require.NoError(t, s.CompleteSave(ctx, first, StatusCompleted, 0))
	second, err := s.BeginSave(ctx, "/proj/b.pbip")
	require.NoError(t, err)

	runs, err := s.ListSaves(ctx, 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, second, runs[0].ID)
	assert.Equal(t, StatusRunning, runs[0].Status)
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	s1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	assert.NoError(t, s2.Close())
}
