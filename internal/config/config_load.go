package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/titanous/json5"
)

// Default returns a Config with sensible defaults, matching the
// built-in "standard" permission preset and a local SQLite store.
func Default() *Config {
	return &Config{
		Agents: AgentsConfig{
			Defaults: AgentDefaults{
				Provider:          "anthropic",
				Model:             "claude-sonnet-4-5-20250929",
				Permissions:       "standard",
				MaxToolIterations: 25,
				MaxTokens:         8192,
			},
		},
		Database: DatabaseConfig{Mode: "sqlite"},
		Cron: CronConfig{
			ReconcileSchedule:  "*/5 * * * *",
			TrashGCSchedule:    "0 3 * * *",
			TrashRetentionDays: 30,
		},
	}
}

// Load reads config from a JSON5 file (absent file is not an error —
// Default() plus env overrides applies), then overlays environment
// variables, which always take precedence over file values.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays the spec §6 environment variables onto the
// config. Secrets (tokens, API keys, DSNs) are ONLY ever sourced from
// the environment, never persisted to the config file.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	envStr("DISCORD_TOKEN", &c.Discord.Token)
	envStr("DEV_GUILD_ID", &c.Discord.DevGuildID)
	envStr("ANTHROPIC_API_KEY", &c.Providers.Anthropic.APIKey)
	envStr("OPENAI_API_KEY", &c.Providers.OpenAI.APIKey)
	envStr("BRAVE_API_KEY", &c.Providers.Brave.APIKey)
	envStr("CHORUS_POSTGRES_DSN", &c.Database.PostgresDSN)
}

// Save writes the config to a JSON file. Fields tagged "-" (tokens, API
// keys, DSNs) are never marshaled, so Save can never leak a secret onto
// disk even if one was set programmatically.
func Save(path string, cfg *Config) error {
	snap := cfg.Snapshot()
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// Home resolves CHORUS_HOME, defaulting to $HOME/.chorus-agents per
// spec §6.
func Home() string {
	if v := os.Getenv("CHORUS_HOME"); v != "" {
		return v
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".chorus-agents")
}

// GitCommit returns the informational build commit from the GIT_COMMIT
// environment variable, or "unknown" if unset.
func GitCommit() string {
	if v := os.Getenv("GIT_COMMIT"); v != "" {
		return v
	}
	return "unknown"
}
