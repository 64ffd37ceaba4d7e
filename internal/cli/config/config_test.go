package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	cfgPath := filepath.Join(t.TempDir(), "tentacles.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0600))
	return cfgPath
}

func TestLoadConfig_Defaults(t *testing.T) {
	ResetConfig()

	cfgPath := writeConfigFile(t, "pbip: Sales.pbip\n")
	cfg, err := LoadConfig(cfgPath, nil)
	require.NoError(t, err)

	assert.Equal(t, DefaultOutput, cfg.OutputFormat)
	assert.False(t, cfg.Verbose)
	assert.Equal(t, filepath.Dir(cfgPath), cfg.ProjectRoot)
	// Relative paths resolve against the project root
	assert.Equal(t, filepath.Join(cfg.ProjectRoot, "Sales.pbip"), cfg.PbipPath)
	assert.Equal(t, filepath.Join(cfg.ProjectRoot, DefaultStateFile), cfg.StatePath)
}

func TestLoadConfig_FlagPrecedence(t *testing.T) {
	ResetConfig()

	cfgPath := writeConfigFile(t, "output: plain\n")

	require.NoError(t, os.Setenv("TENTACLES_OUTPUT", "json"))
	defer func() { _ = os.Unsetenv("TENTACLES_OUTPUT") }()

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("output", "", "output format")
	require.NoError(t, flags.Set("output", "text"))

	cfg, err := LoadConfig(cfgPath, flags)
	require.NoError(t, err)

	assert.Equal(t, "text", cfg.OutputFormat, "flag value should override config file and env var")
}

func TestLoadConfig_EnvPrecedenceOverFile(t *testing.T) {
	ResetConfig()

	cfgPath := writeConfigFile(t, "output: plain\n")

	require.NoError(t, os.Setenv("TENTACLES_OUTPUT", "json"))
	defer func() { _ = os.Unsetenv("TENTACLES_OUTPUT") }()

	cfg, err := LoadConfig(cfgPath, nil)
	require.NoError(t, err)

	assert.Equal(t, "json", cfg.OutputFormat, "env var should override config file")
}

func TestLoadConfig_FlagNotSetUsesEnv(t *testing.T) {
	ResetConfig()

	cfgPath := writeConfigFile(t, "output: plain\n")

	require.NoError(t, os.Setenv("TENTACLES_OUTPUT", "json"))
	defer func() { _ = os.Unsetenv("TENTACLES_OUTPUT") }()

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("output", "", "output format")
	// Note: not calling flags.Set(), so Changed is false

	cfg, err := LoadConfig(cfgPath, flags)
	require.NoError(t, err)

	assert.Equal(t, "json", cfg.OutputFormat, "env var should be used when flag is not set")
}

func TestLoadConfig_StateFlagMapsToStatePath(t *testing.T) {
	ResetConfig()

	cfgPath := writeConfigFile(t, "state_path: from_file.db\n")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("state", "", "state database path")
	require.NoError(t, flags.Set("state", "from_flag.db"))

	cfg, err := LoadConfig(cfgPath, flags)
	require.NoError(t, err)

	// Flag paths are resolved against the CWD at parse time
	abs, err := filepath.Abs("from_flag.db")
	require.NoError(t, err)
	assert.Equal(t, abs, cfg.StatePath)
}

func TestLoadConfig_PbipFlagSetsProjectRoot(t *testing.T) {
	ResetConfig()

	dir := t.TempDir()
	pbipPath := filepath.Join(dir, "Sales.pbip")
	require.NoError(t, os.WriteFile(pbipPath, []byte("{}"), 0600))

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("pbip", "", "project file")
	require.NoError(t, flags.Set("pbip", pbipPath))

	cfg, err := LoadConfig("", flags)
	require.NoError(t, err)

	assert.Equal(t, pbipPath, cfg.PbipPath)
	assert.Equal(t, dir, cfg.ProjectRoot)
}

func TestLoadConfig_AssistantSection(t *testing.T) {
	ResetConfig()

	cfgPath := writeConfigFile(t, `assistant:
  page_url: https://example.com/chat
`)
	cfg, err := LoadConfig(cfgPath, nil)
	require.NoError(t, err)

	a := cfg.GetAssistant()
	assert.Equal(t, "https://example.com/chat", a.PageURL)
	assert.Equal(t, DefaultNonceRefreshAction, a.NonceRefreshAction)
	assert.Equal(t, DefaultAssistantTimeout, a.TimeoutSeconds)
}

func TestGetAssistant_NilSection(t *testing.T) {
	cfg := &Config{}
	a := cfg.GetAssistant()
	require.NotNil(t, a)
	assert.Empty(t, a.PageURL)
	assert.Equal(t, DefaultNonceRefreshAction, a.NonceRefreshAction)
}
