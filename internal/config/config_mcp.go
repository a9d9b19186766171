package config

// MCPServerConfig configures one external MCP server connection bridged
// into an agent's tool registry (domain-stack item A9), wired through
// mark3labs/mcp-go. Proxied tools still flow through format_action and
// the permission engine uniformly with built-in tools.
type MCPServerConfig struct {
	Transport  string            `json:"transport"` // "stdio", "sse", "streamable-http"
	Command    string            `json:"command,omitempty"`
	Args       []string          `json:"args,omitempty"`
	Env        map[string]string `json:"env,omitempty"`
	URL        string            `json:"url,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
	Enabled    *bool             `json:"enabled,omitempty"`
	ToolPrefix string            `json:"tool_prefix,omitempty"`
	TimeoutSec int               `json:"timeout_sec,omitempty"`
}

// IsEnabled returns whether this MCP server is enabled (default true).
func (c *MCPServerConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}
