package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chorus-run/chorus/internal/askmediator"
	"github.com/chorus-run/chorus/internal/contextmgr"
	"github.com/chorus-run/chorus/internal/errs"
	"github.com/chorus-run/chorus/internal/permissions"
	"github.com/chorus-run/chorus/internal/store"
	"github.com/chorus-run/chorus/internal/supervisor"
	"github.com/chorus-run/chorus/internal/threadmgr"
	"github.com/chorus-run/chorus/internal/tools"
	"github.com/chorus-run/chorus/internal/toolloop"
	"github.com/chorus-run/chorus/internal/workspace"
)

// WebToolsConfig configures the optional web_fetch/web_search tools
// registered for every agent.
type WebToolsConfig struct {
	BraveAPIKey string // empty disables the Brave provider; DuckDuckGo always runs
}

// Sender delivers an agent's final reply for one thread back out to the
// bound chat channel. Implemented by a channel binding (e.g. Discord).
type Sender interface {
	Send(ctx context.Context, agentName string, threadID int, content string) error
}

// AgentRuntime wires one agent's thread manager to the tool loop and
// context manager: it is the Runner a threadmgr.Manager calls for every
// thread it starts.
type AgentRuntime struct {
	name     string
	threads  *threadmgr.Manager
	registry *tools.Registry
	profile  *permissions.Profile
	provider toolloop.Provider
	model    string
	ctxMgr   *contextmgr.Manager
	mediator *askmediator.Mediator
	auditDB  store.Store
	sender   Sender
	userID   string
}

// SetUserID records the bound collaborator's user id, used for
// permission-ask prompts and audit entries. Each agent answers one
// bound channel per the data model's uniqueness invariant, so one
// runtime-wide user id is sufficient.
func (rt *AgentRuntime) SetUserID(id string) { rt.userID = id }

// Run implements threadmgr.Runner: it feeds the thread's accumulated
// messages through the tool loop, persists the exchange to the context
// manager, and delivers the final assistant content through Sender. If
// a message is injected into the thread while this call is running,
// the next iteration boundary (the gap between two completed tool-loop
// passes) picks it up and runs another pass.
func (rt *AgentRuntime) Run(ctx context.Context, t *threadmgr.Thread) error {
	seen := 0
	for {
		all := t.Messages()
		if len(all) <= seen {
			return nil
		}
		pending := all[seen:]
		seen = len(all)

		for _, m := range pending {
			_ = rt.ctxMgr.PersistMessage(ctx, rt.name, m.Role, m.Content)
		}

		history, err := rt.ctxMgr.GetContext(ctx, rt.name)
		if err != nil {
			return err
		}
		msgs := make([]toolloop.Message, 0, len(history))
		for _, m := range history {
			msgs = append(msgs, toolloop.Message{Role: m.Role, Content: m.Content})
		}

		result, err := toolloop.Run(ctx, toolloop.Config{
			AgentName: rt.name, ThreadID: t.ID, UserID: rt.userID, Model: rt.model, Provider: rt.provider,
			Registry: rt.registry, Profile: rt.profile,
			Mediator: rt.mediator, AuditDB: rt.auditDB,
		}, msgs)
		if err != nil {
			return err
		}

		final := SanitizeAssistantContent(result.FinalContent)
		if err := rt.ctxMgr.PersistMessage(ctx, rt.name, toolloop.RoleAssistant, final); err != nil {
			return err
		}
		if rt.sender != nil && final != "" {
			if err := rt.sender.Send(ctx, rt.name, t.ID, final); err != nil {
				return err
			}
		}

		if len(t.Messages()) == seen {
			return nil
		}
	}
}

// SendMessage implements tools.ThreadSpawner: it spawns a new,
// non-main thread on the target agent's own runtime so the message runs
// under the target's permission profile, never the sender's.
func (h *Host) SendMessage(ctx context.Context, targetAgent, fromAgent, message string) error {
	rt, ok := h.Get(targetAgent)
	if !ok {
		return fmt.Errorf("%q: %w", targetAgent, errs.ErrAgentNotFound)
	}
	thread := rt.threads.CreateThread(message, false)
	rt.threads.StartThread(ctx, thread)
	return nil
}

// Host is the process-wide registry of running agent runtimes, keyed by
// agent name.
type Host struct {
	mu   sync.RWMutex
	runs map[string]*AgentRuntime
}

// NewHost constructs an empty Host.
func NewHost() *Host {
	return &Host{runs: make(map[string]*AgentRuntime)}
}

// Get looks up a running agent's runtime.
func (h *Host) Get(name string) (*AgentRuntime, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	rt, ok := h.runs[name]
	return rt, ok
}

// Register installs a runtime, replacing any prior instance for the
// same agent name.
func (h *Host) Register(name string, rt *AgentRuntime) {
	h.mu.Lock()
	h.runs[name] = rt
	h.mu.Unlock()
}

// Names lists every registered (running) agent name.
func (h *Host) Names() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.runs))
	for name := range h.runs {
		out = append(out, name)
	}
	return out
}

// BuildRuntime constructs an AgentRuntime for one agent: a fresh tool
// registry scoped to its workspace jail, its configured permission
// profile, and a thread manager wired back to this runtime as its
// Runner. dirs resolves the agent's workspace; sup runs its shell tool;
// host lets send_to_agent reach other agents.
func BuildRuntime(name string, dirs *workspace.Directory, sup *supervisor.Supervisor, host *Host,
	provider toolloop.Provider, model, permissionsPreset string,
	ctxMgr *contextmgr.Manager, mediator *askmediator.Mediator, auditDB store.Store,
	sender Sender, classifier threadmgr.Classifier, webCfg WebToolsConfig, extraTools []tools.Tool) (*AgentRuntime, error) {

	profile, err := permissions.Preset(permissionsPreset)
	if err != nil {
		return nil, err
	}

	root := dirs.WorkspaceRoot(name)
	registry := tools.NewRegistry()
	registry.Register(tools.NewViewTool(root))
	registry.Register(tools.NewCreateFileTool(root))
	registry.Register(tools.NewStrReplaceTool(root))
	registry.Register(tools.NewShellTool(root, sup, 60*time.Second))
	registry.Register(tools.NewSendToAgentTool(name, host))
	registry.Register(tools.NewReadAgentDocsTool(agentDirAdapter{dirs}))
	registry.Register(tools.NewListAgentsTool(agentDirAdapter{dirs}))
	registry.Register(tools.NewWebFetchTool(tools.WebFetchConfig{}))
	if st := tools.NewWebSearchTool(tools.WebSearchConfig{
		BraveAPIKey:  webCfg.BraveAPIKey,
		BraveEnabled: webCfg.BraveAPIKey != "",
		DDGEnabled:   true,
	}); st != nil {
		registry.Register(st)
	}
	for _, t := range extraTools {
		registry.Register(t)
	}

	rt := &AgentRuntime{
		name: name, registry: registry, profile: profile, provider: provider,
		model: model, ctxMgr: ctxMgr, mediator: mediator, auditDB: auditDB, sender: sender,
	}
	rt.threads = threadmgr.New(name, rt.Run, classifier)
	host.Register(name, rt)
	return rt, nil
}

// Threads exposes the runtime's thread manager to the chat binding.
func (rt *AgentRuntime) Threads() *threadmgr.Manager { return rt.threads }

// agentDirAdapter narrows *workspace.Directory to tools.AgentDirectory
// without giving the tools package a dependency on workspace.
type agentDirAdapter struct{ dirs *workspace.Directory }

func (a agentDirAdapter) ListAll() ([]string, error)    { return a.dirs.ListAll() }
func (a agentDirAdapter) Get(name string) (string, bool) { return a.dirs.Get(name) }
func (a agentDirAdapter) ReadAgentJSON(name string) (*tools.AgentJSONView, error) {
	aj, err := a.dirs.ReadAgentJSON(name)
	if err != nil {
		return nil, err
	}
	return &tools.AgentJSONView{Name: aj.Name, Model: aj.Model}, nil
}
