// Package contextmgr implements the append-only per-agent message log
// with a clear cursor and immutable, file-backed snapshots (C8).
package contextmgr

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/chorus-run/chorus/internal/errs"
	"github.com/chorus-run/chorus/internal/store"
	"github.com/google/uuid"
)

// Message is one context-log entry.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// SnapshotMeta describes a saved session.
type SnapshotMeta struct {
	SessionID    string
	Description  string
	MessageCount int
	SavedAt      time.Time
}

// Manager is the context manager for all agents, backed by a single
// store and a directory provider for session file paths.
type Manager struct {
	db store.Store

	mu     sync.Mutex
	cursor map[string]time.Time // clear cursor per agent

	sessionsDir func(agentName string) string
}

// New constructs a Manager. sessionsDir resolves an agent's
// <home>/agents/<name>/sessions directory.
func New(db store.Store, sessionsDir func(agentName string) string) *Manager {
	return &Manager{db: db, cursor: make(map[string]time.Time), sessionsDir: sessionsDir}
}

// PersistMessage writes a row with a fresh timestamp.
func (m *Manager) PersistMessage(ctx context.Context, agentName, role, content string) error {
	return m.db.AppendMessage(ctx, store.Message{
		AgentName: agentName, Role: role, Content: content, Timestamp: time.Now().UTC(),
	})
}

// GetContext returns messages whose timestamp is >= the clear cursor, in
// (timestamp, insertion order).
func (m *Manager) GetContext(ctx context.Context, agentName string) ([]Message, error) {
	m.mu.Lock()
	cursor := m.cursor[agentName]
	m.mu.Unlock()

	rows, err := m.db.GetMessages(ctx, agentName, cursor)
	if err != nil {
		return nil, err
	}
	out := make([]Message, 0, len(rows))
	for _, r := range rows {
		out = append(out, Message{Role: r.Role, Content: r.Content, Timestamp: r.Timestamp})
	}
	return out, nil
}

// Clear advances the cursor to the current instant. Non-destructive:
// earlier rows remain in the store, just no longer "live".
func (m *Manager) Clear(agentName string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cursor[agentName] = time.Now().UTC()
}

// snapshotFile is the on-disk shape of a saved session under
// <agent>/sessions/<id>.json.
type snapshotFile struct {
	Messages []Message `json:"messages"`
}

// SaveSnapshot serializes the current (cursor-aware) context to a session
// file, registers a Session row, and returns its metadata.
func (m *Manager) SaveSnapshot(ctx context.Context, agentName, description string) (*SnapshotMeta, error) {
	messages, err := m.GetContext(ctx, agentName)
	if err != nil {
		return nil, err
	}
	id := uuid.NewString()
	dir := m.sessionsDir(agentName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("contextmgr: create sessions dir: %w", err)
	}
	path := filepath.Join(dir, id+".json")
	data, err := json.MarshalIndent(snapshotFile{Messages: messages}, "", "  ")
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, fmt.Errorf("contextmgr: write snapshot: %w", err)
	}

	savedAt := time.Now().UTC()
	var descPtr *string
	if description != "" {
		descPtr = &description
	}
	summary := summarize(messages)
	err = m.db.SaveSession(ctx, store.Session{
		ID: id, AgentName: agentName, Description: descPtr, SavedAt: savedAt,
		MessageCount: len(messages), Summary: summary, FilePath: path,
	})
	if err != nil {
		return nil, err
	}
	return &SnapshotMeta{SessionID: id, Description: description, MessageCount: len(messages), SavedAt: savedAt}, nil
}

func summarize(messages []Message) string {
	if len(messages) == 0 {
		return ""
	}
	last := messages[len(messages)-1]
	if len(last.Content) > 120 {
		return last.Content[:117] + "..."
	}
	return last.Content
}

// RestoreSnapshot resolves the prefix-addressable id to a unique session
// (SessionNotFound if absent, AmbiguousMatch if more than one matches),
// loads its captured messages, clears the current context, and
// re-persists each captured message so GetContext reflects the restored
// state.
func (m *Manager) RestoreSnapshot(ctx context.Context, agentName, sessionIDPrefix string) ([]Message, error) {
	sess, err := m.db.GetSession(ctx, sessionIDPrefix)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, fmt.Errorf("%q: %w", sessionIDPrefix, errs.ErrSessionNotFound)
	}
	data, err := os.ReadFile(sess.FilePath)
	if err != nil {
		return nil, fmt.Errorf("contextmgr: read snapshot file: %w", err)
	}
	var sf snapshotFile
	if err := json.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("contextmgr: decode snapshot: %w", err)
	}

	m.Clear(agentName)
	for _, msg := range sf.Messages {
		if err := m.db.AppendMessage(ctx, store.Message{
			AgentName: agentName, Role: msg.Role, Content: msg.Content, Timestamp: time.Now().UTC(),
		}); err != nil {
			return nil, err
		}
	}
	return sf.Messages, nil
}

// ListSnapshots returns every saved session for an agent, oldest first.
func (m *Manager) ListSnapshots(ctx context.Context, agentName string) ([]store.Session, error) {
	sessions, err := m.db.ListSessions(ctx, agentName)
	if err != nil {
		return nil, err
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].SavedAt.Before(sessions[j].SavedAt) })
	return sessions, nil
}
