package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/chorus-run/chorus/internal/threadmgr"
)

// SpawnBranch implements supervisor.BranchSpawner: a process trigger's
// SPAWN_BRANCH action starts a new, non-main thread on the named
// agent's own runtime.
func (h *Host) SpawnBranch(agentName, contextMessage string) error {
	rt, ok := h.Get(agentName)
	if !ok {
		return fmt.Errorf("supervisor: agent %q not running", agentName)
	}
	t := rt.threads.CreateThread(contextMessage, false)
	rt.threads.StartThread(context.Background(), t)
	return nil
}

// InjectMainBranch implements supervisor.ContextInjector: a process
// trigger's INJECT_CONTEXT action appends a system message to the
// named agent's running main thread. If no main thread is running, the
// message is persisted to the agent's context, where the next run picks
// it up; no run is started.
func (h *Host) InjectMainBranch(agentName, message string) error {
	rt, ok := h.Get(agentName)
	if !ok {
		return fmt.Errorf("supervisor: agent %q not running", agentName)
	}
	if main, ok := rt.threads.GetMainThread(); ok && main.Status() == threadmgr.Running {
		return rt.threads.Inject(main.ID, threadmgr.Message{Role: "system", Content: message, Timestamp: time.Now().UTC()})
	}
	return rt.ctxMgr.PersistMessage(context.Background(), rt.name, "system", message)
}

// Notify implements supervisor.ChannelNotifier: a process trigger's
// NOTIFY_CHANNEL action delivers the message through the named agent's
// bound Sender, bypassing the tool loop entirely.
func (h *Host) Notify(ctx context.Context, agentName, message string) error {
	rt, ok := h.Get(agentName)
	if !ok {
		return fmt.Errorf("supervisor: agent %q not running", agentName)
	}
	if rt.sender == nil {
		return nil
	}
	return rt.sender.Send(ctx, agentName, 0, message)
}
