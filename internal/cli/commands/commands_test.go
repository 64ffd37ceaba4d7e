// Package commands tests cover command metadata and behavior against
// temporary projects.
package commands

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pbip-tools/tentacles/internal/project"
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

// writeProject builds a minimal .pbip project and points the command
// environment at it.
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

	t.Setenv("TENTACLES_PBIP", pbipPath)
	t.Setenv("TENTACLES_STATE_PATH", filepath.Join(t.TempDir(), "history.db"))
	t.Setenv("TENTACLES_OUTPUT", "markdown")
	return pbipPath
}

func runCommand(t *testing.T, cmd *cobra.Command, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	require.NoError(t, cmd.Execute())
	return out.String()
}

func TestNewVersionCommand(t *testing.T) {
	cmd := NewVersionCommand("1.2.3")
	assert.Equal(t, "version", cmd.Use)

	out := runCommand(t, cmd)
	assert.Contains(t, out, "tentacles v1.2.3")
}

func TestNewListCommand(t *testing.T) {
	cmd := NewListCommand()
	assert.Equal(t, "list", cmd.Use)
	assert.NotEmpty(t, cmd.Short, "Short should not be empty")
	assert.NotEmpty(t, cmd.Example, "Example should not be empty")
}

func TestNewTreeCommand(t *testing.T) {
	cmd := NewTreeCommand()
	assert.Equal(t, "tree", cmd.Use)
	assert.NotNil(t, cmd.Flags().Lookup("columns"), "flag \"columns\" should exist")
}

func TestNewGroupCommand(t *testing.T) {
	cmd := NewGroupCommand()
	assert.Equal(t, "group", cmd.Use)

	subs := map[string]bool{}
	for _, c := range cmd.Commands() {
		subs[c.Name()] = true
	}
	for _, name := range []string{"new", "rename", "delete", "move-table"} {
		assert.True(t, subs[name], "subcommand %q should exist", name)
	}
}

func TestNewMeasureCommand(t *testing.T) {
	cmd := NewMeasureCommand()
	assert.Equal(t, "measure", cmd.Use)

	subs := map[string]bool{}
	for _, c := range cmd.Commands() {
		subs[c.Name()] = true
	}
	for _, name := range []string{"new", "rename", "move", "delete", "set", "folder"} {
		assert.True(t, subs[name], "subcommand %q should exist", name)
	}
}

func TestNewHistoryCommand(t *testing.T) {
	cmd := NewHistoryCommand()
	assert.Equal(t, "history [save-id]", cmd.Use)
	assert.NotNil(t, cmd.Flags().Lookup("limit"), "flag \"limit\" should exist")
}

func TestNewDaxCommand(t *testing.T) {
	cmd := NewDaxCommand()
	assert.Equal(t, "dax [question]", cmd.Use)
	assert.NotNil(t, cmd.Flags().Lookup("save-as"), "flag \"save-as\" should exist")
}

func TestListCommandJSON(t *testing.T) {
	writeProject(t)
	t.Setenv("TENTACLES_OUTPUT", "json")

	out := runCommand(t, NewListCommand())

	var decoded ListOutput
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	require.Len(t, decoded.Tables, 2)
	assert.Equal(t, "A", decoded.Tables[0].Name)
	assert.Equal(t, "Staging", decoded.Tables[0].QueryGroup)
	assert.Equal(t, 1, decoded.Tables[0].Measures)
}

func TestTreeCommandShowsOtherQueries(t *testing.T) {
	writeProject(t)

	out := runCommand(t, NewTreeCommand())
	assert.Contains(t, out, "Staging/")
	assert.Contains(t, out, "Other Queries/")
	assert.Contains(t, out, "Total (measure)")
	assert.NotContains(t, out, "Amount", "columns are hidden by default")
}

func TestGroupMoveTableCommand(t *testing.T) {
	pbipPath := writeProject(t)

	runCommand(t, NewGroupCommand(), "move-table", "B", "Staging")

	p, err := project.Load(pbipPath, nil)
	require.NoError(t, err)
	assert.Equal(t, "Staging", p.Table("B").QueryGroup)
}

func TestGroupDeleteCommand(t *testing.T) {
	pbipPath := writeProject(t)

	runCommand(t, NewGroupCommand(), "delete", "Staging")

	p, err := project.Load(pbipPath, nil)
	require.NoError(t, err)
	assert.Empty(t, p.Groups)
	assert.Equal(t, "", p.Table("A").QueryGroup)
}

func TestMeasureSetCommand(t *testing.T) {
	pbipPath := writeProject(t)

	runCommand(t, NewMeasureCommand(), "set", "A", "Total", "SUMX(A, A[Amount])")

	p, err := project.Load(pbipPath, nil)
	require.NoError(t, err)
	require.Len(t, p.Table("A").Measures, 1)
	assert.Equal(t, "SUMX(A, A[Amount])", p.Table("A").Measures[0].Expression)
}

func TestMeasureNewRejectsDuplicate(t *testing.T) {
	writeProject(t)

	cmd := NewMeasureCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"new", "A", "Total"})
	assert.Error(t, cmd.Execute())
}

func TestCheckCommandCleanProject(t *testing.T) {
	writeProject(t)

	out := runCommand(t, NewCheckCommand())
	assert.Contains(t, out, "No problems found")
}

func TestCheckCommandFindsMissingOrderEntry(t *testing.T) {
	pbipPath := writeProject(t)
	definition := filepath.Join(filepath.Dir(pbipPath), "Sales.SemanticModel", "definition")
	require.NoError(t, os.Remove(filepath.Join(definition, "tables", "B.tmdl")))

	cmd := NewCheckCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"--strict"})
	err := cmd.Execute()
	assert.Error(t, err, "strict mode fails on problems")
	assert.Contains(t, out.String(), "has no table file")
}

func TestQueriesListEmpty(t *testing.T) {
	writeProject(t)

	out := runCommand(t, NewQueriesCommand(), "list")
	assert.Contains(t, out, "No stored queries")
}

func TestInitCommand(t *testing.T) {
	writeProject(t)
	dir := t.TempDir()

	out := runCommand(t, NewInitCommand(), dir)
	assert.Contains(t, out, "tentacles.yaml")

	raw, err := os.ReadFile(filepath.Join(dir, "tentacles.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), "state_path:")

	// Second run without --force refuses to overwrite
	cmd := NewInitCommand()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs([]string{dir})
	assert.Error(t, cmd.Execute())
}
