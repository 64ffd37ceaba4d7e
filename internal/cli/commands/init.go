package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/pbip-tools/tentacles/internal/cli/config"
	"github.com/pbip-tools/tentacles/internal/pbip"
)

// initFile is the YAML shape of a starter tentacles.yaml.
type initFile struct {
	Pbip      string         `yaml:"pbip,omitempty"`
	StatePath string         `yaml:"state_path"`
	Output    string         `yaml:"output"`
	Assistant *initAssistant `yaml:"assistant,omitempty"`
}

type initAssistant struct {
	PageURL string `yaml:"page_url"`
}

// NewInitCommand creates the init command.
func NewInitCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Write a starter tentacles.yaml",
		Long: `Write a starter tentacles.yaml next to the project. When a .pbip file
is found in the target directory it is recorded in the config, so later
commands need no --pbip flag.`,
		Example: `  # Initialize in the current directory
  tentacles init

  # Overwrite an existing config
  tentacles init --force`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}
			cmdCtx := NewCommandContext(cmd)

			if dir != "." {
				if err := os.MkdirAll(dir, 0750); err != nil {
					return fmt.Errorf("failed to create directory %s: %w", dir, err)
				}
			}

			configPath := filepath.Join(dir, "tentacles.yaml")
			if _, err := os.Stat(configPath); err == nil && !force {
				return fmt.Errorf("tentacles.yaml already exists. Use --force to overwrite")
			}

			content := initFile{
				StatePath: config.DefaultStateFile,
				Output:    config.DefaultOutput,
				Assistant: &initAssistant{},
			}
			if found, err := pbip.Discover(dir); err == nil {
				if rel, err := filepath.Rel(dir, found); err == nil && !filepath.IsAbs(rel) {
					content.Pbip = rel
				} else {
					content.Pbip = found
				}
			}

			raw, err := yaml.Marshal(&content)
			if err != nil {
				return err
			}
			if err := os.WriteFile(configPath, raw, 0o644); err != nil {
				return err
			}

			r := cmdCtx.Renderer
			r.StatusLine("Wrote", configPath)
			if content.Pbip != "" {
				r.StatusLine("Project", content.Pbip)
			} else {
				r.Muted("No .pbip file found; set \"pbip:\" once the project exists")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing configuration")
	return cmd
}
