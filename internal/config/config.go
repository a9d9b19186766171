// Package config holds the root gateway configuration: provider/model
// defaults, store backend selection, telemetry, and channel bindings. It
// is hot-reloadable via fsnotify and never uses module-level singletons —
// a Config is constructed once and threaded through the composition root.
package config

import (
	"encoding/json"
	"fmt"
	"sync"
)

// FlexibleStringSlice accepts both ["a","b"] and [1,2] in JSON config,
// since hand-edited config files frequently quote guild/channel ids
// inconsistently.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}
	var raw []interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	result := make([]string, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case string:
			result = append(result, val)
		case float64:
			result = append(result, fmt.Sprintf("%.0f", val))
		default:
			result = append(result, fmt.Sprintf("%v", val))
		}
	}
	*f = result
	return nil
}

// Config is the root configuration for the Chorus gateway.
type Config struct {
	Agents    AgentsConfig    `json:"agents"`
	Discord   DiscordConfig   `json:"discord"`
	Providers ProvidersConfig `json:"providers"`
	Database  DatabaseConfig  `json:"database,omitempty"`
	Cron      CronConfig      `json:"cron,omitempty"`
	Telemetry TelemetryConfig `json:"telemetry,omitempty"`
	MCPServers map[string]*MCPServerConfig `json:"mcp_servers,omitempty"`

	mu sync.RWMutex
}

// AgentsConfig holds agent defaults applied at creation time and
// mutable per-agent overrides (spec §3: system_prompt, model, permissions).
type AgentsConfig struct {
	Defaults AgentDefaults `json:"defaults"`
}

// AgentDefaults seed new agents; CONFIGURABLE_KEYS (system_prompt,
// model, permissions) may be changed afterward through the agent
// lifecycle manager's Configure operation.
type AgentDefaults struct {
	Provider          string `json:"provider"`
	Model             string `json:"model"`
	SystemPrompt      string `json:"system_prompt,omitempty"`
	Permissions       string `json:"permissions"` // preset name or custom profile id
	MaxToolIterations int    `json:"max_tool_iterations"`
	MaxTokens         int    `json:"max_tokens"`
}

// DiscordConfig binds the chat platform collaborator (spec §6: "Chat
// platform"). Token is never read from the config file — only from the
// DISCORD_TOKEN environment variable — so it can never land in a
// committed config.json.
type DiscordConfig struct {
	Token        string              `json:"-"`
	DevGuildID   string              `json:"-"`
	OwnerIDs     FlexibleStringSlice `json:"owner_ids,omitempty"`
	CommandGuild string              `json:"command_guild,omitempty"`
}

// ProviderConfig is one LLM provider's credentials and optional base URL
// override (for OpenAI-compatible proxies).
type ProviderConfig struct {
	APIKey  string `json:"-"`
	APIBase string `json:"api_base,omitempty"`
}

// ProvidersConfig holds the three provider collaborators wired by the
// domain stack (spec §6: "LLM provider"): the Anthropic and OpenAI model
// providers and the Brave web-search backend.
type ProvidersConfig struct {
	Anthropic ProviderConfig `json:"anthropic,omitempty"`
	OpenAI    ProviderConfig `json:"openai,omitempty"`
	Brave     ProviderConfig `json:"brave,omitempty"` // web_search backend; DDG is used when unset
}

// DatabaseConfig selects the persistent store backend (C4).
type DatabaseConfig struct {
	Mode        string `json:"mode,omitempty"` // "sqlite" (default) or "postgres"
	PostgresDSN string `json:"-"`              // from env CHORUS_POSTGRES_DSN only
	SQLitePath  string `json:"sqlite_path,omitempty"`
}

// IsPostgres reports whether the managed Postgres backend is configured.
func (d DatabaseConfig) IsPostgres() bool {
	return d.Mode == "postgres" && d.PostgresDSN != ""
}

// CronConfig configures the heartbeat scheduler (reconciliation +
// trash GC) driven by adhocore/gronx expressions.
type CronConfig struct {
	ReconcileSchedule string `json:"reconcile_schedule,omitempty"` // default "*/5 * * * *"
	TrashGCSchedule   string `json:"trash_gc_schedule,omitempty"`  // default "0 3 * * *"
	TrashRetentionDays int   `json:"trash_retention_days,omitempty"`
}

// TelemetryConfig configures OTLP trace export for tool-loop iterations
// and process lifecycle events.
type TelemetryConfig struct {
	Enabled     bool   `json:"enabled,omitempty"`
	Endpoint    string `json:"endpoint,omitempty"`
	Insecure    bool   `json:"insecure,omitempty"`
	ServiceName string `json:"service_name,omitempty"`
}

// ReplaceFrom copies all data fields from src into c under c's own
// mutex, for atomic hot-reload without invalidating existing readers'
// pointer to c.
func (c *Config) ReplaceFrom(src *Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Agents = src.Agents
	c.Discord = src.Discord
	c.Providers = src.Providers
	c.Database = src.Database
	c.Cron = src.Cron
	c.Telemetry = src.Telemetry
	c.MCPServers = src.MCPServers
}

// Snapshot returns a value copy of the config data, safe to read
// without holding the config's own lock afterward.
func (c *Config) Snapshot() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Config{
		Agents: c.Agents, Discord: c.Discord, Providers: c.Providers,
		Database: c.Database, Cron: c.Cron, Telemetry: c.Telemetry,
		MCPServers: c.MCPServers,
	}
}
