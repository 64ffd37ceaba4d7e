package project

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pbip-tools/tentacles/internal/state"
)

const testModel = "model Model\n" +
	"\tculture: en-US\n" +
	"\n" +
	"\tqueryGroup 'Staging'\n" +
	"\t\tannotation PBI_QueryGroupOrder = 0\n" +
	"\n" +
	"\tannotation PBI_QueryOrder = [\"A\",\"B\"]\n"

const testTableA = "table A\n" +
	"\tmeasure Total =\n" +
	"\t\t\tSUM(A[Amount])\n" +
	"\t\tdisplayFolder: Core\n" +
	"\n" +
	"\tcolumn Amount\n" +
	"\t\tdataType: double\n" +
	"\n" +
	"\tpartition A = m\n" +
	"\t\tmode: import\n" +
	"\t\tqueryGroup: 'Staging'\n" +
	"\t\tsource =\n" +
	"\t\t\tlet x = 1 in x\n"

const testTableB = "table B\n" +
	"\tcolumn Id\n" +
	"\t\tdataType: int64\n" +
	"\n" +
	"\tpartition B = m\n" +
	"\t\tmode: import\n" +
	"\t\tsource =\n" +
	"\t\t\tlet y = 2 in y\n"

func writeProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	pbipPath := filepath.Join(dir, "Sales.pbip")
	write := func(path, content string) {
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	write(pbipPath, "{}")
	definition := filepath.Join(dir, "Sales.SemanticModel", "definition")
	write(filepath.Join(definition, "model.tmdl"), testModel)
	write(filepath.Join(definition, "tables", "A.tmdl"), testTableA)
	write(filepath.Join(definition, "tables", "B.tmdl"), testTableB)
	return pbipPath
}

func TestLoad(t *testing.T) {
	p, err := Load(writeProject(t), nil)
	require.NoError(t, err)

	assert.Len(t, p.Tables, 2)
	assert.Equal(t, []string{"A", "B"}, p.Order)
	assert.Equal(t, map[string]int{"Staging": 0}, p.Groups)
	assert.Empty(t, p.LoadWarnings)
	assert.False(t, p.Dirty())

	a := p.Table("A")
	require.NotNil(t, a)
	assert.Equal(t, "Staging", a.QueryGroup)
	require.Len(t, a.Measures, 1)
	assert.Equal(t, "Total", a.Measures[0].Name)
}

func TestLoadMissingModelFails(t *testing.T) {
	pbipPath := writeProject(t)
	require.NoError(t, os.Remove(filepath.Join(filepath.Dir(pbipPath), "Sales.SemanticModel", "definition", "model.tmdl")))
	_, err := Load(pbipPath, nil)
	assert.Error(t, err)
}

func TestSaveCleanProjectWritesNothing(t *testing.T) {
	p, err := Load(writeProject(t), nil)
	require.NoError(t, err)

	result, err := p.Save(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, result.Written)
	assert.Empty(t, result.Warnings)
}

func TestSaveMoveTable(t *testing.T) {
	pbipPath := writeProject(t)
	p, err := Load(pbipPath, nil)
	require.NoError(t, err)

	require.NoError(t, p.Tree.MoveTable(p.Tree.FindTable("B"), p.Tree.FindFolder("Staging")))
	assert.True(t, p.Dirty())

	result, err := p.Save(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, result.Warnings)

	again, err := Load(pbipPath, nil)
	require.NoError(t, err)
	assert.Equal(t, "Staging", again.Table("B").QueryGroup)
	assert.False(t, p.Dirty(), "save resets the baseline")
}

func TestSaveDeleteFolderRelocates(t *testing.T) {
	pbipPath := writeProject(t)
	p, err := Load(pbipPath, nil)
	require.NoError(t, err)

	require.NoError(t, p.Tree.DeleteFolder(p.Tree.FindFolder("Staging")))
	_, err = p.Save(context.Background(), nil)
	require.NoError(t, err)

	again, err := Load(pbipPath, nil)
	require.NoError(t, err)
	assert.Empty(t, again.Groups)
	assert.Equal(t, "", again.Table("A").QueryGroup)
}

func TestSaveRenameFolderPropagates(t *testing.T) {
	pbipPath := writeProject(t)
	p, err := Load(pbipPath, nil)
	require.NoError(t, err)

	require.NoError(t, p.Tree.RenameFolder(p.Tree.FindFolder("Staging"), "Core"))
	_, err = p.Save(context.Background(), nil)
	require.NoError(t, err)

	again, err := Load(pbipPath, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"Core": 0}, again.Groups)
	assert.Equal(t, "Core", again.Table("A").QueryGroup)
}

func TestSaveMeasureEdit(t *testing.T) {
	pbipPath := writeProject(t)
	p, err := Load(pbipPath, nil)
	require.NoError(t, err)

	p.Table("A").Measures[0].Expression = "SUMX(A, A[Amount])"
	p.MarkMeasuresDirty("A")
	assert.True(t, p.Dirty())

	_, err = p.Save(context.Background(), nil)
	require.NoError(t, err)

	again, err := Load(pbipPath, nil)
	require.NoError(t, err)
	m := again.Table("A").Measures[0]
	assert.Equal(t, "SUMX(A, A[Amount])", m.Expression)
	assert.Equal(t, "Core", m.DisplayFolder)
}

func TestSaveRecordsHistory(t *testing.T) {
	pbipPath := writeProject(t)
	p, err := Load(pbipPath, nil)
	require.NoError(t, err)
	store, err := state.Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, p.Tree.MoveTable(p.Tree.FindTable("B"), p.Tree.FindFolder("Staging")))
	result, err := p.Save(context.Background(), store)
	require.NoError(t, err)
	require.NotEmpty(t, result.SaveID)

	runs, err := store.ListSaves(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, state.StatusCompleted, runs[0].Status)

	writes, err := store.ListFileWrites(context.Background(), result.SaveID)
	require.NoError(t, err)
	assert.NotEmpty(t, writes)
}

func TestLazyBundlesDoNotFailLoad(t *testing.T) {
	p, err := Load(writeProject(t), nil)
	require.NoError(t, err)

	queries, err := p.DAXQueries()
	require.NoError(t, err)
	assert.Empty(t, queries.Queries)

	marks, err := p.Bookmarks()
	require.NoError(t, err)
	assert.Empty(t, marks.Entries)
}
