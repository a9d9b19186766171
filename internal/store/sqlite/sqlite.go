// Package sqlite implements the store.Store contract over an embedded
// modernc.org/sqlite database, the default "single embedded relational
// store" the execution core runs against. Schema application does not go
// through golang-migrate's sqlite3 driver because that driver requires
// cgo (mattn/go-sqlite3); this package applies the same embedded SQL
// files golang-migrate's Postgres path uses, tracked in a local
// schema_migrations table, so the pure-Go modernc driver stays
// cgo-free end to end.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/chorus-run/chorus/internal/errs"
	"github.com/chorus-run/chorus/internal/store"
	"github.com/chorus-run/chorus/internal/store/migrations"
	_ "modernc.org/sqlite"
)

// Store is the SQLite implementation of store.Store. SaveSession and
// DeleteSession keep an in-memory session map in step with the
// database; reads query the database directly.
type Store struct {
	db *sql.DB

	mu           sync.RWMutex
	sessionCache map[string]store.Session
}

// Open creates (if absent) the parent directory of path, opens the
// database, and applies any unapplied embedded migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	db.SetMaxOpenConns(1) // single-connection, matching the single-connection store guarantee in the concurrency model
	s := &Store{db: db, sessionCache: make(map[string]store.Session)}
	if err := s.applyMigrations(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) applyMigrations(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (version TEXT PRIMARY KEY, applied_at TEXT NOT NULL)`); err != nil {
		return fmt.Errorf("sqlite: create schema_migrations: %w", err)
	}
	entries, err := migrations.FS.ReadDir(".")
	if err != nil {
		return fmt.Errorf("sqlite: read migrations: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	for _, name := range names {
		var applied int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, name).Scan(&applied); err != nil {
			return fmt.Errorf("sqlite: check migration %s: %w", name, err)
		}
		if applied > 0 {
			continue
		}
		sqlBytes, err := migrations.FS.ReadFile(name)
		if err != nil {
			return fmt.Errorf("sqlite: read migration %s: %w", name, err)
		}
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, string(sqlBytes)); err != nil {
			tx.Rollback()
			return fmt.Errorf("sqlite: apply migration %s: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations(version, applied_at) VALUES (?, ?)`, name, time.Now().UTC().Format(time.RFC3339)); err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		slog.Info("applied migration", "component", "store", "version", name)
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

// --- agents ---

func (s *Store) RegisterAgent(ctx context.Context, a store.Agent) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO agents(name, channel_id, guild_id, model, permissions, created_at, status) VALUES (?,?,?,?,?,?,?)`,
		a.Name, a.ChannelID, a.GuildID, nilStr(a.Model), a.Permissions, a.CreatedAt.UTC().Format(time.RFC3339), orDefault(a.Status, "active"))
	return err
}

func (s *Store) RemoveAgent(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM agents WHERE name = ?`, name)
	return err
}

func (s *Store) GetAgent(ctx context.Context, name string) (*store.Agent, error) {
	row := s.db.QueryRowContext(ctx, `SELECT name, channel_id, guild_id, model, permissions, created_at, status FROM agents WHERE name = ?`, name)
	return scanAgent(row)
}

// GetAgentByChannel looks up the agent bound to a chat channel id
// (agents.channel_id is unique per the data model's invariant (a)).
func (s *Store) GetAgentByChannel(ctx context.Context, channelID string) (*store.Agent, error) {
	row := s.db.QueryRowContext(ctx, `SELECT name, channel_id, guild_id, model, permissions, created_at, status FROM agents WHERE channel_id = ?`, channelID)
	return scanAgent(row)
}

func (s *Store) ListAgents(ctx context.Context, guildID string) ([]store.Agent, error) {
	query := `SELECT name, channel_id, guild_id, model, permissions, created_at, status FROM agents`
	args := []any{}
	if guildID != "" {
		query += ` WHERE guild_id = ?`
		args = append(args, guildID)
	}
	query += ` ORDER BY name`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Agent
	for rows.Next() {
		a, err := scanAgentRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAgent(row *sql.Row) (*store.Agent, error) {
	a, err := scanAgentRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return a, err
}

func scanAgentRow(row rowScanner) (*store.Agent, error) {
	var a store.Agent
	var model sql.NullString
	var createdAt string
	if err := row.Scan(&a.Name, &a.ChannelID, &a.GuildID, &model, &a.Permissions, &createdAt, &a.Status); err != nil {
		return nil, err
	}
	if model.Valid {
		a.Model = &model.String
	}
	t, err := time.Parse(time.RFC3339, createdAt)
	if err == nil {
		a.CreatedAt = t
	}
	return &a, nil
}

// --- sessions ---

func (s *Store) SaveSession(ctx context.Context, sess store.Session) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions(id, agent_name, description, saved_at, message_count, summary, file_path) VALUES (?,?,?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET description=excluded.description, saved_at=excluded.saved_at, message_count=excluded.message_count, summary=excluded.summary, file_path=excluded.file_path`,
		sess.ID, sess.AgentName, nilStr(sess.Description), sess.SavedAt.UTC().Format(time.RFC3339), sess.MessageCount, sess.Summary, sess.FilePath)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.sessionCache[sess.ID] = sess
	s.mu.Unlock()
	return nil
}

// GetSession resolves a short, prefix-addressable id to a unique session
// row. Zero matches is SessionNotFound (mapped by the caller); more than
// one is AmbiguousMatch.
func (s *Store) GetSession(ctx context.Context, idPrefix string) (*store.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, agent_name, description, saved_at, message_count, summary, file_path FROM sessions WHERE id LIKE ? ORDER BY saved_at`,
		idPrefix+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []store.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		matches = append(matches, *sess)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	switch len(matches) {
	case 0:
		return nil, nil
	case 1:
		return &matches[0], nil
	default:
		return nil, fmt.Errorf("session prefix %q matches %d sessions: %w", idPrefix, len(matches), errs.ErrAmbiguousMatch)
	}
}

func (s *Store) ListSessions(ctx context.Context, agentName string) ([]store.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, agent_name, description, saved_at, message_count, summary, file_path FROM sessions WHERE agent_name = ? ORDER BY saved_at`,
		agentName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sess)
	}
	return out, rows.Err()
}

func (s *Store) DeleteSession(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	s.mu.Lock()
	delete(s.sessionCache, id)
	s.mu.Unlock()
	return err
}

func scanSession(row rowScanner) (*store.Session, error) {
	var sess store.Session
	var description sql.NullString
	var savedAt string
	if err := row.Scan(&sess.ID, &sess.AgentName, &description, &savedAt, &sess.MessageCount, &sess.Summary, &sess.FilePath); err != nil {
		return nil, err
	}
	if description.Valid {
		sess.Description = &description.String
	}
	t, err := time.Parse(time.RFC3339, savedAt)
	if err == nil {
		sess.SavedAt = t
	}
	return &sess, nil
}

// --- messages ---

func (s *Store) AppendMessage(ctx context.Context, m store.Message) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages(agent_name, role, content, timestamp, thread_id) VALUES (?,?,?,?,?)`,
		m.AgentName, m.Role, m.Content, m.Timestamp.UTC().Format(time.RFC3339Nano), nilInt(m.ThreadID))
	return err
}

func (s *Store) GetMessages(ctx context.Context, agentName string, since time.Time) ([]store.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT agent_name, role, content, timestamp, thread_id FROM messages WHERE agent_name = ? AND timestamp >= ? ORDER BY timestamp, id`,
		agentName, since.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

func (s *Store) SearchMessages(ctx context.Context, agentName, substring string) ([]store.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT agent_name, role, content, timestamp, thread_id FROM messages WHERE agent_name = ? AND content LIKE ? ORDER BY timestamp, id`,
		agentName, "%"+substring+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

func (s *Store) CountMessages(ctx context.Context, agentName string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages WHERE agent_name = ?`, agentName).Scan(&n)
	return n, err
}

func scanMessages(rows *sql.Rows) ([]store.Message, error) {
	var out []store.Message
	for rows.Next() {
		var m store.Message
		var ts string
		var threadID sql.NullInt64
		if err := rows.Scan(&m.AgentName, &m.Role, &m.Content, &ts, &threadID); err != nil {
			return nil, err
		}
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			m.Timestamp = t
		}
		if threadID.Valid {
			m.ThreadID = &threadID.Int64
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// --- audit log ---

func (s *Store) AppendAudit(ctx context.Context, e store.AuditEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log(agent_name, timestamp, action_string, decision, user_id, detail) VALUES (?,?,?,?,?,?)`,
		e.AgentName, e.Timestamp.UTC().Format(time.RFC3339Nano), e.ActionString, e.Decision, nilStr(e.UserID), nilStr(e.Detail))
	return err
}

// --- settings ---

func (s *Store) GetSetting(ctx context.Context, guildID, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE guild_id = ? AND key = ?`, guildID, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (s *Store) SetSetting(ctx context.Context, guildID, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings(guild_id, key, value) VALUES (?,?,?) ON CONFLICT(guild_id, key) DO UPDATE SET value=excluded.value`,
		guildID, key, value)
	return err
}

func nilStr(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func nilInt(p *int64) any {
	if p == nil {
		return nil
	}
	return *p
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
