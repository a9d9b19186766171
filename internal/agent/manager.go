// Package agent implements agent lifecycle management (create, destroy,
// configure, list) over the workspace directory and persistent store,
// and the per-agent runtime that drives one agent's thread manager
// (C12) through the tool loop (C11).
package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/chorus-run/chorus/internal/errs"
	"github.com/chorus-run/chorus/internal/store"
	"github.com/chorus-run/chorus/internal/workspace"
)

// ConfigurableKeys are the agent.json fields an operator may change
// after creation, per the data model's CONFIGURABLE_KEYS set.
var ConfigurableKeys = []string{"system_prompt", "model", "permissions"}

// Manager owns agent creation, destruction, and configuration. It does
// not run agents — see Host for the running-agent registry.
type Manager struct {
	dirs *workspace.Directory
	db   store.Store
}

// NewManager constructs a lifecycle Manager.
func NewManager(dirs *workspace.Directory, db store.Store) *Manager {
	return &Manager{dirs: dirs, db: db}
}

// Create materializes a new agent's workspace and registers it in the
// store. model may be empty to inherit the configured default at
// runtime; permissions defaults to "standard" when empty.
func (m *Manager) Create(ctx context.Context, name, model, permissions, systemPrompt string) error {
	if permissions == "" {
		permissions = "standard"
	}
	overrides := map[string]any{}
	if model != "" {
		overrides["model"] = model
	}
	if permissions != "" {
		overrides["permissions"] = permissions
	}
	if systemPrompt != "" {
		overrides["system_prompt"] = systemPrompt
	}

	if _, err := m.dirs.Create(name, overrides); err != nil {
		return err
	}

	aj, err := m.dirs.ReadAgentJSON(name)
	if err != nil {
		return err
	}
	aj.Model = model
	aj.Permissions = permissions
	aj.SystemPrompt = systemPrompt
	if err := m.dirs.WriteAgentJSON(name, *aj); err != nil {
		return err
	}

	var modelPtr *string
	if model != "" {
		modelPtr = &model
	}
	return m.db.RegisterAgent(ctx, store.Agent{
		Name: name, Model: modelPtr, Permissions: permissions,
		CreatedAt: time.Now().UTC(), Status: "active",
	})
}

// Destroy removes an agent's workspace (archiving it under .trash/ when
// keepFiles is true) and its store record.
func (m *Manager) Destroy(ctx context.Context, name string, keepFiles bool) error {
	if err := m.dirs.Destroy(name, keepFiles); err != nil {
		return err
	}
	return m.db.RemoveAgent(ctx, name)
}

// Configure updates one of ConfigurableKeys on an existing agent,
// persisting to both agent.json and the store record so GetAgent and
// ListAgents reflect the change immediately.
func (m *Manager) Configure(ctx context.Context, name, key, value string) error {
	aj, err := m.dirs.ReadAgentJSON(name)
	if err != nil {
		return err
	}
	switch key {
	case "system_prompt":
		aj.SystemPrompt = value
	case "model":
		aj.Model = value
	case "permissions":
		aj.Permissions = value
	default:
		return fmt.Errorf("%q: %w", key, errs.ErrInvalidConfigKey)
	}
	if err := m.dirs.WriteAgentJSON(name, *aj); err != nil {
		return err
	}

	existing, err := m.db.GetAgent(ctx, name)
	if err != nil {
		return err
	}
	if existing == nil {
		return fmt.Errorf("%q: %w", name, errs.ErrAgentNotFound)
	}
	if key == "model" {
		v := value
		existing.Model = &v
	}
	if key == "permissions" {
		existing.Permissions = value
	}
	if err := m.db.RemoveAgent(ctx, name); err != nil {
		return err
	}
	return m.db.RegisterAgent(ctx, *existing)
}

// BindChannel records the chat channel an agent answers on, in both
// agent.json and the store record (agents.channel_id is unique).
func (m *Manager) BindChannel(ctx context.Context, name, channelID string) error {
	if err := m.dirs.UpdateChannelID(name, channelID); err != nil {
		return err
	}
	existing, err := m.db.GetAgent(ctx, name)
	if err != nil {
		return err
	}
	if existing == nil {
		return fmt.Errorf("%q: %w", name, errs.ErrAgentNotFound)
	}
	existing.ChannelID = channelID
	if err := m.db.RemoveAgent(ctx, name); err != nil {
		return err
	}
	return m.db.RegisterAgent(ctx, *existing)
}

// ListAgents returns every registered agent, optionally scoped to a
// guild.
func (m *Manager) ListAgents(ctx context.Context, guildID string) ([]store.Agent, error) {
	return m.db.ListAgents(ctx, guildID)
}

// Names lists every agent directory name on disk, sorted.
func (m *Manager) Names() ([]string, error) {
	return m.dirs.ListAll()
}
