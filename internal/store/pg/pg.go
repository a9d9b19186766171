// Package pg implements the optional managed-mode store.Store backend
// over Postgres, selected when the database mode is "postgres" and a DSN
// is set. It uses $1 placeholders and keeps an in-memory session map
// that SaveSession and DeleteSession update alongside the database;
// reads always query the database. It applies the same embedded schema
// the SQLite backend uses, but through golang-migrate's postgres driver — unlike SQLite,
// Postgres has no cgo constraint, so golang-migrate's native driver
// applies here without compromise.
package pg

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	storeerrs "github.com/chorus-run/chorus/internal/errs"
	"github.com/chorus-run/chorus/internal/store"
	"github.com/chorus-run/chorus/internal/store/migrations"
	"github.com/golang-migrate/migrate/v4"
	pgmigrate "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// Store is the Postgres-backed store.Store implementation.
type Store struct {
	db *sql.DB

	mu           sync.RWMutex
	sessionCache map[string]store.Session
}

// Open connects to dsn and applies any unapplied embedded migrations via
// golang-migrate.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("pg: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pg: ping: %w", err)
	}
	if err := applyMigrations(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, sessionCache: make(map[string]store.Session)}, nil
}

func applyMigrations(db *sql.DB) error {
	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("pg: migration source: %w", err)
	}
	driver, err := pgmigrate.WithInstance(db, &pgmigrate.Config{})
	if err != nil {
		return fmt.Errorf("pg: migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("pg: migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("pg: migrate up: %w", err)
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) RegisterAgent(ctx context.Context, a store.Agent) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO agents(name, channel_id, guild_id, model, permissions, created_at, status) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		a.Name, a.ChannelID, a.GuildID, a.Model, a.Permissions, a.CreatedAt, a.Status)
	return err
}

func (s *Store) RemoveAgent(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM agents WHERE name = $1`, name)
	return err
}

func (s *Store) GetAgent(ctx context.Context, name string) (*store.Agent, error) {
	var a store.Agent
	row := s.db.QueryRowContext(ctx, `SELECT name, channel_id, guild_id, model, permissions, created_at, status FROM agents WHERE name = $1`, name)
	if err := row.Scan(&a.Name, &a.ChannelID, &a.GuildID, &a.Model, &a.Permissions, &a.CreatedAt, &a.Status); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

// GetAgentByChannel looks up the agent bound to a chat channel id
// (agents.channel_id is unique per the data model's invariant (a)).
func (s *Store) GetAgentByChannel(ctx context.Context, channelID string) (*store.Agent, error) {
	var a store.Agent
	row := s.db.QueryRowContext(ctx, `SELECT name, channel_id, guild_id, model, permissions, created_at, status FROM agents WHERE channel_id = $1`, channelID)
	if err := row.Scan(&a.Name, &a.ChannelID, &a.GuildID, &a.Model, &a.Permissions, &a.CreatedAt, &a.Status); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

func (s *Store) ListAgents(ctx context.Context, guildID string) ([]store.Agent, error) {
	query := `SELECT name, channel_id, guild_id, model, permissions, created_at, status FROM agents`
	args := []any{}
	if guildID != "" {
		query += ` WHERE guild_id = $1`
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
		var a store.Agent
		if err := rows.Scan(&a.Name, &a.ChannelID, &a.GuildID, &a.Model, &a.Permissions, &a.CreatedAt, &a.Status); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) SaveSession(ctx context.Context, sess store.Session) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions(id, agent_name, description, saved_at, message_count, summary, file_path) VALUES ($1,$2,$3,$4,$5,$6,$7)
		 ON CONFLICT (id) DO UPDATE SET description=$3, saved_at=$4, message_count=$5, summary=$6, file_path=$7`,
		sess.ID, sess.AgentName, sess.Description, sess.SavedAt, sess.MessageCount, sess.Summary, sess.FilePath)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.sessionCache[sess.ID] = sess
	s.mu.Unlock()
	return nil
}

func (s *Store) GetSession(ctx context.Context, idPrefix string) (*store.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, agent_name, description, saved_at, message_count, summary, file_path FROM sessions WHERE id LIKE $1 ORDER BY saved_at`,
		idPrefix+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var matches []store.Session
	for rows.Next() {
		var sess store.Session
		if err := rows.Scan(&sess.ID, &sess.AgentName, &sess.Description, &sess.SavedAt, &sess.MessageCount, &sess.Summary, &sess.FilePath); err != nil {
			return nil, err
		}
		matches = append(matches, sess)
	}
	switch len(matches) {
	case 0:
		return nil, nil
	case 1:
		return &matches[0], nil
	default:
		return nil, fmt.Errorf("session prefix %q matches %d sessions: %w", idPrefix, len(matches), storeerrs.ErrAmbiguousMatch)
	}
}

func (s *Store) ListSessions(ctx context.Context, agentName string) ([]store.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, agent_name, description, saved_at, message_count, summary, file_path FROM sessions WHERE agent_name = $1 ORDER BY saved_at`,
		agentName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []store.Session
	for rows.Next() {
		var sess store.Session
		if err := rows.Scan(&sess.ID, &sess.AgentName, &sess.Description, &sess.SavedAt, &sess.MessageCount, &sess.Summary, &sess.FilePath); err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func (s *Store) DeleteSession(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	s.mu.Lock()
	delete(s.sessionCache, id)
	s.mu.Unlock()
	return err
}

func (s *Store) AppendMessage(ctx context.Context, m store.Message) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages(agent_name, role, content, timestamp, thread_id) VALUES ($1,$2,$3,$4,$5)`,
		m.AgentName, m.Role, m.Content, m.Timestamp, m.ThreadID)
	return err
}

func (s *Store) GetMessages(ctx context.Context, agentName string, since time.Time) ([]store.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT agent_name, role, content, timestamp, thread_id FROM messages WHERE agent_name = $1 AND timestamp >= $2 ORDER BY timestamp, id`,
		agentName, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

func (s *Store) SearchMessages(ctx context.Context, agentName, substring string) ([]store.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT agent_name, role, content, timestamp, thread_id FROM messages WHERE agent_name = $1 AND content LIKE $2 ORDER BY timestamp, id`,
		agentName, "%"+substring+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

func (s *Store) CountMessages(ctx context.Context, agentName string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages WHERE agent_name = $1`, agentName).Scan(&n)
	return n, err
}

func scanMessages(rows *sql.Rows) ([]store.Message, error) {
	var out []store.Message
	for rows.Next() {
		var m store.Message
		if err := rows.Scan(&m.AgentName, &m.Role, &m.Content, &m.Timestamp, &m.ThreadID); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) AppendAudit(ctx context.Context, e store.AuditEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log(agent_name, timestamp, action_string, decision, user_id, detail) VALUES ($1,$2,$3,$4,$5,$6)`,
		e.AgentName, e.Timestamp, e.ActionString, e.Decision, e.UserID, e.Detail)
	return err
}

func (s *Store) GetSetting(ctx context.Context, guildID, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE guild_id = $1 AND key = $2`, guildID, key).Scan(&value)
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
		`INSERT INTO settings(guild_id, key, value) VALUES ($1,$2,$3) ON CONFLICT (guild_id, key) DO UPDATE SET value=$3`,
		guildID, key, value)
	return err
}
