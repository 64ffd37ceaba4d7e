package tree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pbip-tools/tentacles/internal/tmdl"
)

func fixture() *Tree {
	total := tmdl.NewMeasure("Total")
	total.DisplayFolder = "Core"
	plain := tmdl.NewMeasure("Plain")

	a := &tmdl.Table{
		Name:       "A",
		TableType:  tmdl.TypeM,
		QueryGroup: "Staging/Raw",
		Columns:    []string{"b", "A"},
		Measures:   []*tmdl.Measure{total, plain},
	}
	b := &tmdl.Table{Name: "B", TableType: tmdl.TypeM}
	c := &tmdl.Table{Name: "C", TableType: tmdl.TypeCalculated, QueryGroup: "Mart"}

	groups := map[string]int{"Staging": 0, "Staging/Raw": 1, "Mart": 2}
	order := []string{"B", "A"}
	return Build([]*tmdl.Table{a, b, c}, groups, order)
}

func TestIsValidChild(t *testing.T) {
	tests := []struct {
		parent, child Kind
		want          bool
	}{
		{KindRoot, KindFolder, true},
		{KindRoot, KindTable, false},
		{KindFolder, KindTable, true},
		{KindFolder, KindFolder, true},
		{KindFolder, KindMeasure, false},
		{KindTable, KindColumn, true},
		{KindTable, KindMeasure, true},
		{KindTable, KindMeasureFolder, true},
		{KindTable, KindTable, false},
		{KindMeasureFolder, KindMeasure, true},
		{KindMeasureFolder, KindTable, false},
		{KindColumn, KindColumn, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsValidChild(tt.parent, tt.child), "%s < %s", tt.parent, tt.child)
	}
}

func TestBuildShape(t *testing.T) {
	tr := fixture()

	top := tr.Root().Children
	require.Len(t, top, 3)
	assert.Equal(t, "Staging", top[0].Name)
	assert.Equal(t, "Mart", top[1].Name)
	assert.True(t, top[2].Synthetic())
	assert.Equal(t, OtherQueriesName, top[2].Name)

	staging := tr.FindFolder("Staging")
	require.NotNil(t, staging)
	require.Len(t, staging.Children, 1)
	assert.Equal(t, "Raw", staging.Children[0].Name)

	a := tr.FindTable("A")
	require.NotNil(t, a)
	assert.Equal(t, "Staging/Raw", a.Parent.FolderPath())

	// columns sorted case-insensitively ahead of measure content
	require.True(t, len(a.Children) >= 2)
	assert.Equal(t, KindColumn, a.Children[0].Kind)
	assert.Equal(t, "A", a.Children[0].Name)
	assert.Equal(t, "b", a.Children[1].Name)
}

func TestBuildMaterializesImplicitParents(t *testing.T) {
	tr := Build(nil, map[string]int{"X/Y": 0}, nil)
	l := tr.Layout()
	assert.Equal(t, []string{"X", "X/Y"}, l.FolderPaths)
}

func TestLayout(t *testing.T) {
	l := fixture().Layout()

	assert.Equal(t, []string{"Staging", "Staging/Raw", "Mart"}, l.FolderPaths)
	assert.Equal(t, []string{"A", "B"}, l.TableOrder, "calculated tables stay out of the query order")
	assert.Equal(t, map[string]string{"A": "Staging/Raw", "B": "", "C": "Mart"}, l.TableGroups)
	assert.Equal(t, []Placement{{Name: "Total", Folder: "Core"}, {Name: "Plain", Folder: ""}}, l.Measures["A"])
}

func TestLayoutEqualOnNoop(t *testing.T) {
	tr := fixture()
	before := tr.Layout()
	assert.True(t, before.Equal(tr.Layout()))

	require.NoError(t, tr.RenameFolder(tr.FindFolder("Mart"), "Marts"))
	assert.False(t, before.Equal(tr.Layout()))
}

func TestRenameFolderPropagatesPrefix(t *testing.T) {
	tr := fixture()
	require.NoError(t, tr.RenameFolder(tr.FindFolder("Staging"), "Core"))

	l := tr.Layout()
	assert.Equal(t, []string{"Core", "Core/Raw", "Mart"}, l.FolderPaths)
	assert.Equal(t, "Core/Raw", l.TableGroups["A"])
}

func TestRenameFolderCollision(t *testing.T) {
	tr := fixture()
	err := tr.RenameFolder(tr.FindFolder("Mart"), "staging")
	assert.ErrorIs(t, err, ErrNameTaken)
	assert.Equal(t, "Mart", tr.FindFolder("Mart").Name)
}

func TestRenameOtherQueriesRejected(t *testing.T) {
	tr := fixture()
	assert.ErrorIs(t, tr.RenameFolder(tr.OtherQueries(), "Misc"), ErrImmutableNode)
}

func TestNewFolderReservedName(t *testing.T) {
	tr := fixture()
	_, err := tr.NewFolder(nil, "other queries")
	assert.ErrorIs(t, err, ErrReservedName)
}

func TestNewFolderUniqueNames(t *testing.T) {
	tr := fixture()
	first, err := tr.NewFolder(nil, "")
	require.NoError(t, err)
	second, err := tr.NewFolder(nil, "")
	require.NoError(t, err)
	assert.Equal(t, "New Folder", first.Name)
	assert.Equal(t, "New Folder 2", second.Name)

	// new folders slot in ahead of Other Queries
	top := tr.Root().Children
	assert.True(t, top[len(top)-1].Synthetic())
}

func TestCreateFolderPath(t *testing.T) {
	tr := fixture()

	// Existing prefix is reused, missing tail is created
	n, err := tr.CreateFolderPath("staging/Archive")
	require.NoError(t, err)
	assert.Equal(t, "Archive", n.Name)
	assert.Equal(t, "Staging/Archive", n.FolderPath())

	// A second call resolves to the same node
	again, err := tr.CreateFolderPath("Staging/Archive")
	require.NoError(t, err)
	assert.Same(t, n, again)

	_, err = tr.CreateFolderPath("  ")
	assert.ErrorIs(t, err, ErrEmptyName)
}

func TestDeleteFolderRelocatesTables(t *testing.T) {
	tr := fixture()
	require.NoError(t, tr.DeleteFolder(tr.FindFolder("Staging")))

	l := tr.Layout()
	assert.Equal(t, []string{"Mart"}, l.FolderPaths)
	assert.Equal(t, "", l.TableGroups["A"])
	assert.Equal(t, []string{"B", "A"}, l.TableOrder)
	assert.Equal(t, tr.OtherQueries(), tr.FindTable("A").Parent)
}

func TestDeleteOtherQueriesRejected(t *testing.T) {
	tr := fixture()
	assert.ErrorIs(t, tr.DeleteFolder(tr.OtherQueries()), ErrImmutableNode)
}

func TestMoveTableToFolder(t *testing.T) {
	tr := fixture()
	require.NoError(t, tr.MoveTable(tr.FindTable("B"), tr.FindFolder("Mart")))
	assert.Equal(t, "Mart", tr.Layout().TableGroups["B"])
}

func TestMoveTableOntoTableInsertsSibling(t *testing.T) {
	tr := fixture()
	a := tr.FindTable("A")
	require.NoError(t, tr.MoveTable(tr.FindTable("B"), a))

	parent := a.Parent
	idx := childIndex(parent, a)
	require.True(t, idx >= 0 && idx+1 < len(parent.Children))
	assert.Equal(t, "B", parent.Children[idx+1].Name)
	assert.Equal(t, "Staging/Raw", tr.Layout().TableGroups["B"])
}

func TestMoveTableToRootMeansOtherQueries(t *testing.T) {
	tr := fixture()
	require.NoError(t, tr.MoveTable(tr.FindTable("A"), tr.Root()))
	assert.Equal(t, tr.OtherQueries(), tr.FindTable("A").Parent)
}

func TestNewMeasureCollision(t *testing.T) {
	tr := fixture()
	_, err := tr.NewMeasure(tr.FindTable("A"), "total")
	assert.ErrorIs(t, err, ErrNameTaken)
}

func TestRenameMeasureCollision(t *testing.T) {
	tr := fixture()
	a := tr.FindTable("A")
	var plain *Node
	tr.Walk(func(n *Node) bool {
		if n.Kind == KindMeasure && n.Name == "Plain" {
			plain = n
			return false
		}
		return true
	})
	require.NotNil(t, plain)
	assert.ErrorIs(t, tr.RenameMeasure(plain, "TOTAL"), ErrNameTaken)

	require.NoError(t, tr.RenameMeasure(plain, "Net"))
	assert.Equal(t, "Net", plain.Measure.Name)
	assert.NotNil(t, a)
}

func TestMoveMeasureIntoFolder(t *testing.T) {
	tr := fixture()
	a := tr.FindTable("A")
	folder, err := tr.NewMeasureFolder(a, "KPIs")
	require.NoError(t, err)

	var plain *Node
	tr.Walk(func(n *Node) bool {
		if n.Kind == KindMeasure && n.Name == "Plain" {
			plain = n
			return false
		}
		return true
	})
	require.NoError(t, tr.MoveMeasure(plain, folder))

	tr.Apply()
	assert.Equal(t, "KPIs", plain.Measure.DisplayFolder)
}

func TestMoveMeasureAcrossTablesRejected(t *testing.T) {
	tr := fixture()
	var plain *Node
	tr.Walk(func(n *Node) bool {
		if n.Kind == KindMeasure && n.Name == "Plain" {
			plain = n
			return false
		}
		return true
	})
	assert.ErrorIs(t, tr.MoveMeasure(plain, tr.FindTable("B")), ErrInvalidTarget)
}

func TestDeleteMeasureFolderLiftsChildren(t *testing.T) {
	tr := fixture()
	a := tr.FindTable("A")
	var core *Node
	for _, c := range a.Children {
		if c.Kind == KindMeasureFolder && c.Name == "Core" {
			core = c
		}
	}
	require.NotNil(t, core)
	require.NoError(t, tr.DeleteMeasureFolder(core))

	tr.Apply()
	table := a.Table
	require.Len(t, table.Measures, 2)
	assert.Equal(t, "", table.Measures[0].DisplayFolder)
}

func TestDeleteMeasureDropsFromTableOnApply(t *testing.T) {
	tr := fixture()
	a := tr.FindTable("A")
	var total *Node
	tr.Walk(func(n *Node) bool {
		if n.Kind == KindMeasure && n.Name == "Total" {
			total = n
			return false
		}
		return true
	})
	require.NoError(t, tr.DeleteMeasure(total))

	tr.Apply()
	require.Len(t, a.Table.Measures, 1)
	assert.Equal(t, "Plain", a.Table.Measures[0].Name)
}

func TestApplyWritesGroupsAndFolders(t *testing.T) {
	tr := fixture()
	require.NoError(t, tr.MoveTable(tr.FindTable("A"), tr.FindFolder("Mart")))
	tr.Apply()
	assert.Equal(t, "Mart", tr.FindTable("A").Table.QueryGroup)
	assert.Equal(t, "", tr.FindTable("B").Table.QueryGroup)
}

func TestSortAlphabeticalKeepsOtherQueriesLast(t *testing.T) {
	tr := fixture()
	_, err := tr.NewFolder(nil, "Alpha")
	require.NoError(t, err)

	tr.SortAlphabetical()
	top := tr.Root().Children
	require.Len(t, top, 4)
	assert.Equal(t, "Alpha", top[0].Name)
	assert.Equal(t, "Mart", top[1].Name)
	assert.Equal(t, "Staging", top[2].Name)
	assert.True(t, top[3].Synthetic())
}

func TestNormalizeMovesTopLevelTables(t *testing.T) {
	tr := fixture()
	b := tr.FindTable("B")
	detach(b)
	attach(tr.Root(), b)

	tr.Normalize()
	assert.Equal(t, tr.OtherQueries(), b.Parent)
	top := tr.Root().Children
	assert.True(t, top[len(top)-1].Synthetic())
}
