// Package store defines the persistent-store contract (C4): agents,
// sessions, messages, audit log, and guild settings, backed by a single
// embedded relational store. All writes commit synchronously; reads return
// stable, deterministic orderings.
package store

import (
	"context"
	"time"
)

// Agent mirrors the agents table row.
type Agent struct {
	Name        string
	ChannelID   string
	GuildID     string
	Model       *string
	Permissions string
	CreatedAt   time.Time
	Status      string
}

// Session mirrors the sessions table row: an immutable snapshot record.
type Session struct {
	ID            string
	AgentName     string
	Description   *string
	SavedAt       time.Time
	MessageCount  int
	Summary       string
	FilePath      string
}

// Message is one append-only context-log row.
type Message struct {
	AgentName string
	Role      string
	Content   string
	Timestamp time.Time
	ThreadID  *int64
}

// AuditEntry mirrors the audit_log table row.
type AuditEntry struct {
	ID           int64
	AgentName    string
	Timestamp    time.Time
	ActionString string
	Decision     string
	UserID       *string
	Detail       *string
}

// Store is the full persistent-store contract. Implementations: the
// embedded SQLite driver (default) and an optional managed-mode Postgres
// driver, selected by configuration, not by call sites.
type Store interface {
	RegisterAgent(ctx context.Context, a Agent) error
	RemoveAgent(ctx context.Context, name string) error
	GetAgent(ctx context.Context, name string) (*Agent, error)
	GetAgentByChannel(ctx context.Context, channelID string) (*Agent, error)
	ListAgents(ctx context.Context, guildID string) ([]Agent, error)

	SaveSession(ctx context.Context, s Session) error
	GetSession(ctx context.Context, idPrefix string) (*Session, error)
	ListSessions(ctx context.Context, agentName string) ([]Session, error)
	DeleteSession(ctx context.Context, id string) error

	AppendMessage(ctx context.Context, m Message) error
	GetMessages(ctx context.Context, agentName string, since time.Time) ([]Message, error)
	SearchMessages(ctx context.Context, agentName, substring string) ([]Message, error)
	CountMessages(ctx context.Context, agentName string) (int, error)

	AppendAudit(ctx context.Context, e AuditEntry) error

	GetSetting(ctx context.Context, guildID, key string) (string, bool, error)
	SetSetting(ctx context.Context, guildID, key, value string) error

	Close() error
}
