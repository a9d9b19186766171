package tools

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// AgentDirectory is the narrow slice of the workspace layer that the
// cross-agent tools need to resolve another agent's files, satisfied by
// *workspace.Directory.
type AgentDirectory interface {
	ListAll() ([]string, error)
	Get(name string) (string, bool)
	ReadAgentJSON(name string) (*AgentJSONView, error)
}

// AgentJSONView is the subset of workspace.AgentJSON the communication
// tools read; kept separate so this package doesn't import workspace.
type AgentJSONView struct {
	Name  string
	Model string
}

// ThreadSpawner is the narrow slice of a per-agent thread manager the
// send_to_agent tool needs: create and start a non-main thread carrying
// the attributed message. Satisfied by *threadmgr.Manager via an
// adapter in the composition root, since threadmgr.Manager is
// per-agent and this tool must reach a *different* agent's manager.
type ThreadSpawner interface {
	SendMessage(ctx context.Context, targetAgent, fromAgent, message string) error
}

// SendToAgentTool delivers a message to another agent as a new,
// non-main execution thread on the target's own thread manager, so the
// message runs under the target's permission profile, never the
// sender's — cross-agent messages must not inherit the caller's ASK/ALLOW
// grants.
type SendToAgentTool struct {
	fromAgent string
	spawner   ThreadSpawner
}

func NewSendToAgentTool(fromAgent string, spawner ThreadSpawner) *SendToAgentTool {
	return &SendToAgentTool{fromAgent: fromAgent, spawner: spawner}
}

func (t *SendToAgentTool) Name() string { return "send_to_agent" }
func (t *SendToAgentTool) Description() string {
	return "Send a message to another agent, starting a new thread on its own permission profile."
}
func (t *SendToAgentTool) ParametersSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"agent":   map[string]any{"type": "string"},
			"message": map[string]any{"type": "string"},
		},
		"required": []string{"agent", "message"},
	}
}

func (t *SendToAgentTool) Detail(args map[string]any) string {
	return fmt.Sprintf("%s:%s", argString(args, "agent"), argString(args, "message"))
}

func (t *SendToAgentTool) Handle(ctx context.Context, args map[string]any) (string, error) {
	target := argString(args, "agent")
	message := argString(args, "message")
	if target == "" || message == "" {
		return "", fmt.Errorf("agent and message are required")
	}
	attributed := fmt.Sprintf("Message from agent '%s': %s", t.fromAgent, message)
	if err := t.spawner.SendMessage(ctx, target, t.fromAgent, attributed); err != nil {
		return "", err
	}
	return fmt.Sprintf("message delivered to %s", target), nil
}

// ReadAgentDocsTool reads another agent's docs/README.md, the same
// file list_agents summarizes from — grounded on communication.py's
// read_agent_docs, which lets one agent learn another's stated purpose
// before delegating work to it.
type ReadAgentDocsTool struct {
	dirs AgentDirectory
}

func NewReadAgentDocsTool(dirs AgentDirectory) *ReadAgentDocsTool {
	return &ReadAgentDocsTool{dirs: dirs}
}

func (t *ReadAgentDocsTool) Name() string        { return "read_agent_docs" }
func (t *ReadAgentDocsTool) Description() string { return "Read another agent's docs/README.md." }
func (t *ReadAgentDocsTool) ParametersSchema() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{"agent": map[string]any{"type": "string"}},
		"required":   []string{"agent"},
	}
}
func (t *ReadAgentDocsTool) Detail(args map[string]any) string { return argString(args, "agent") }

func (t *ReadAgentDocsTool) Handle(ctx context.Context, args map[string]any) (string, error) {
	name := argString(args, "agent")
	root, ok := t.dirs.Get(name)
	if !ok {
		return "", fmt.Errorf("agent %q not found", name)
	}
	data, err := os.ReadFile(filepath.Join(root, "docs", "README.md"))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	return string(data), nil
}

// ListAgentsTool surfaces every agent's model and a short description
// extracted from its docs/README.md first prose paragraph.
type ListAgentsTool struct {
	dirs AgentDirectory
}

func NewListAgentsTool(dirs AgentDirectory) *ListAgentsTool {
	return &ListAgentsTool{dirs: dirs}
}

func (t *ListAgentsTool) Name() string        { return "list_agents" }
func (t *ListAgentsTool) Description() string { return "List every known agent with its model and description." }
func (t *ListAgentsTool) ParametersSchema() map[string]any {
	return map[string]any{"type": "object", "properties": map[string]any{}}
}
func (t *ListAgentsTool) Detail(args map[string]any) string { return "" }

func (t *ListAgentsTool) Handle(ctx context.Context, args map[string]any) (string, error) {
	names, err := t.dirs.ListAll()
	if err != nil {
		return "", err
	}
	sort.Strings(names)
	var b strings.Builder
	for _, name := range names {
		model := ""
		if aj, err := t.dirs.ReadAgentJSON(name); err == nil && aj != nil {
			model = aj.Model
		}
		root, _ := t.dirs.Get(name)
		desc := extractFirstParagraph(filepath.Join(root, "docs", "README.md"))
		fmt.Fprintf(&b, "%s (model: %s): %s\n", name, model, desc)
	}
	return b.String(), nil
}

// extractFirstParagraph returns the first prose paragraph of a README,
// skipping headings, emphasis-only lines, and blockquotes, capped at
// 200 characters — ported from communication.py's
// _extract_first_paragraph.
func extractFirstParagraph(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			if len(lines) > 0 {
				break
			}
			continue
		}
		if strings.HasPrefix(line, "#") || strings.HasPrefix(line, ">") {
			continue
		}
		if strings.HasPrefix(line, "*") && strings.HasSuffix(line, "*") && len(line) > 1 {
			continue
		}
		lines = append(lines, line)
	}
	para := strings.Join(lines, " ")
	if len(para) > 200 {
		para = para[:197] + "..."
	}
	return para
}
