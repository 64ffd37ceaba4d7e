package commands

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pbip-tools/tentacles/internal/cli/config"
	"github.com/pbip-tools/tentacles/internal/cli/output"
	"github.com/pbip-tools/tentacles/internal/pbip"
	"github.com/pbip-tools/tentacles/internal/project"
	"github.com/pbip-tools/tentacles/internal/state"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Renderer *output.Renderer
}

// NewCommandContext creates a CommandContext from the command's context
// and the loaded configuration.
func NewCommandContext(cmd *cobra.Command) *CommandContext {
	cfg := getConfig()
	logger := config.GetLogger(cmd.Context())
	mode := output.Mode(cfg.OutputFormat)
	r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), mode)

	return &CommandContext{
		Cfg:      cfg,
		Logger:   logger,
		Renderer: r,
	}
}

// getConfig returns the current configuration.
// It uses config.GetCurrentConfig() if available, otherwise falls back
// to environment variables.
func getConfig() *config.Config {
	if cfg := config.GetCurrentConfig(); cfg != nil {
		return cfg
	}

	return &config.Config{
		PbipPath:     os.Getenv("TENTACLES_PBIP"),
		StatePath:    getEnvOrDefault("TENTACLES_STATE_PATH", config.DefaultStateFile),
		Verbose:      os.Getenv("TENTACLES_VERBOSE") == "true",
		OutputFormat: getEnvOrDefault("TENTACLES_OUTPUT", config.DefaultOutput),
	}
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// resolvePbipPath returns the configured .pbip path, or discovers one
// by searching upward from the current directory.
func (c *CommandContext) resolvePbipPath() (string, error) {
	if c.Cfg.PbipPath != "" {
		return c.Cfg.PbipPath, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return pbip.Discover(cwd)
}

// LoadProject loads the configured project and prints any per-file
// load warnings.
func (c *CommandContext) LoadProject() (*project.Project, error) {
	path, err := c.resolvePbipPath()
	if err != nil {
		return nil, err
	}
	p, err := project.Load(path, c.Logger)
	if err != nil {
		return nil, err
	}
	for _, w := range p.LoadWarnings {
		c.Renderer.Warning("warning: " + w)
	}
	return p, nil
}

// OpenStore opens the save-history database, creating its directory if
// needed. Returns nil without error when no state path is configured.
func (c *CommandContext) OpenStore() (*state.Store, error) {
	if c.Cfg.StatePath == "" {
		return nil, nil
	}
	stateDir := filepath.Dir(c.Cfg.StatePath)
	if stateDir != "." && stateDir != "" {
		if err := os.MkdirAll(stateDir, 0750); err != nil {
			return nil, err
		}
	}
	return state.Open(c.Cfg.StatePath)
}

// saveProject saves the project with history recording and reports the
// outcome. Save warnings are printed but do not fail the command.
func (c *CommandContext) saveProject(cmd *cobra.Command, p *project.Project) error {
	store, err := c.OpenStore()
	if err != nil {
		c.Logger.Warn("save history unavailable", "error", err)
		store = nil
	}
	if store != nil {
		defer store.Close()
	}

	result, err := p.Save(cmd.Context(), store)
	if err != nil {
		return err
	}
	for _, w := range result.Warnings {
		c.Renderer.Warning("warning: " + w)
	}
	if len(result.Written) == 0 {
		c.Renderer.Muted("No changes to save")
		return nil
	}
	for _, f := range result.Written {
		c.Renderer.StatusLine("Wrote", f)
	}
	return nil
}
