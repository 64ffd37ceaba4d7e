// Package config provides configuration management for the tentacles CLI.
//
// Configuration merges four layers with increasing precedence: built-in
// defaults, a tentacles.yaml file, TENTACLES_* environment variables,
// and explicitly set command-line flags.
package config

// AssistantConfig holds the connection settings for the hosted DAX
// assistant bot.
type AssistantConfig struct {
	PageURL            string `koanf:"page_url"`
	NonceRefreshAction string `koanf:"nonce_refresh_action"`
	TimeoutSeconds     int    `koanf:"timeout_seconds"`
}

// Config holds all CLI configuration options.
type Config struct {
	// ProjectRoot is the resolved base directory for relative paths.
	// Set during load, never read from a file.
	ProjectRoot string `koanf:"-"`

	PbipPath     string           `koanf:"pbip"`
	StatePath    string           `koanf:"state_path"`
	Verbose      bool             `koanf:"verbose"`
	OutputFormat string           `koanf:"output"`
	Assistant    *AssistantConfig `koanf:"assistant"`
}

// Default configuration values.
const (
	DefaultStateFile = ".tentacles/history.db"
	DefaultOutput    = "auto" // Auto-detect: TTY=text, non-TTY=plain

	DefaultNonceRefreshAction = "aipkit_get_frontend_chat_nonce"
	DefaultAssistantTimeout   = 60
)

// GetAssistant returns the assistant config with defaults applied for
// any unset values.
func (c *Config) GetAssistant() *AssistantConfig {
	a := c.Assistant
	if a == nil {
		a = &AssistantConfig{}
	}
	if a.NonceRefreshAction == "" {
		a.NonceRefreshAction = DefaultNonceRefreshAction
	}
	if a.TimeoutSeconds == 0 {
		a.TimeoutSeconds = DefaultAssistantTimeout
	}
	return a
}
