// Package mcp bridges external Model Context Protocol servers
// (domain-stack item A9, config.MCPServerConfig) into an agent's tool
// registry: every remote tool is wrapped to satisfy tools.Tool, so it
// flows through format_action and the permission engine exactly like a
// built-in tool.
package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/chorus-run/chorus/internal/config"
	"github.com/chorus-run/chorus/internal/tools"
)

const defaultTimeout = 30 * time.Second

// Bridge owns one MCP client connection and exposes its tools.
type Bridge struct {
	name   string
	client *client.Client
}

// Connect dials cfg's transport, initializes the MCP session, and
// returns a Bridge ready to list and call its tools. Callers must call
// Close when the bridge is no longer needed.
func Connect(ctx context.Context, name string, cfg *config.MCPServerConfig) (*Bridge, error) {
	var (
		c   *client.Client
		err error
	)
	switch cfg.Transport {
	case "stdio", "":
		env := make([]string, 0, len(cfg.Env))
		for k, v := range cfg.Env {
			env = append(env, k+"="+v)
		}
		c, err = client.NewStdioMCPClient(cfg.Command, env, cfg.Args...)
	case "sse":
		var opts []transport.ClientOption
		if len(cfg.Headers) > 0 {
			opts = append(opts, client.WithHeaders(cfg.Headers))
		}
		c, err = client.NewSSEMCPClient(cfg.URL, opts...)
	case "streamable-http":
		var opts []transport.StreamableHTTPCOption
		if len(cfg.Headers) > 0 {
			opts = append(opts, transport.WithHTTPHeaders(cfg.Headers))
		}
		c, err = client.NewStreamableHttpClient(cfg.URL, opts...)
	default:
		return nil, fmt.Errorf("mcp: unknown transport %q for server %q", cfg.Transport, name)
	}
	if err != nil {
		return nil, fmt.Errorf("mcp: connect %q: %w", name, err)
	}
	if cfg.Transport == "sse" || cfg.Transport == "streamable-http" {
		if err := c.Start(ctx); err != nil {
			c.Close()
			return nil, fmt.Errorf("mcp: start transport %q: %w", name, err)
		}
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: "chorus", Version: "1.0"}
	if _, err := c.Initialize(ctx, initReq); err != nil {
		c.Close()
		return nil, fmt.Errorf("mcp: initialize %q: %w", name, err)
	}

	return &Bridge{name: name, client: c}, nil
}

// Close releases the underlying client connection.
func (b *Bridge) Close() error { return b.client.Close() }

// Tools lists the server's tools, wrapped to satisfy tools.Tool. Each
// name is prefixed with cfg.ToolPrefix (default "mcp_<server>_") so
// tools from different servers, or from a server and the built-ins,
// never collide in one agent's registry.
func (b *Bridge) Tools(ctx context.Context, cfg *config.MCPServerConfig) ([]tools.Tool, error) {
	resp, err := b.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("mcp: list tools on %q: %w", b.name, err)
	}

	prefix := cfg.ToolPrefix
	if prefix == "" {
		prefix = "mcp_" + b.name + "_"
	}
	timeout := defaultTimeout
	if cfg.TimeoutSec > 0 {
		timeout = time.Duration(cfg.TimeoutSec) * time.Second
	}

	out := make([]tools.Tool, 0, len(resp.Tools))
	for _, t := range resp.Tools {
		out = append(out, &bridgedTool{
			bridge:  b,
			name:    prefix + t.Name,
			remote:  t.Name,
			desc:    t.Description,
			schema:  schemaToMap(t.InputSchema),
			timeout: timeout,
		})
	}
	return out, nil
}

type bridgedTool struct {
	bridge  *Bridge
	name    string
	remote  string
	desc    string
	schema  map[string]any
	timeout time.Duration
}

func (t *bridgedTool) Name() string                   { return t.name }
func (t *bridgedTool) Description() string            { return t.desc }
func (t *bridgedTool) ParametersSchema() map[string]any { return t.schema }

func (t *bridgedTool) Detail(args map[string]any) string {
	return fmt.Sprintf("%s(%d args)", t.remote, len(args))
}

func (t *bridgedTool) Handle(ctx context.Context, args map[string]any) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	req := mcp.CallToolRequest{}
	req.Params.Name = t.remote
	req.Params.Arguments = args

	result, err := t.bridge.client.CallTool(callCtx, req)
	if err != nil {
		return "", fmt.Errorf("mcp: call %q: %w", t.name, err)
	}
	if result.IsError {
		return "", fmt.Errorf("mcp: %s returned an error result", t.name)
	}

	var out string
	for _, c := range result.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			out += tc.Text
		}
	}
	return out, nil
}

func schemaToMap(schema mcp.ToolInputSchema) map[string]any {
	m := map[string]any{"type": "object"}
	if schema.Properties != nil {
		m["properties"] = schema.Properties
	}
	if len(schema.Required) > 0 {
		m["required"] = schema.Required
	}
	return m
}
