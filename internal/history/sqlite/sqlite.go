// Package sqlite is the default history backend, a single SQLite file
// accessed through modernc.org/sqlite (no cgo).
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/nadzzz/yasna/internal/history"
)

const schema = `
	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		ts INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id);
	CREATE INDEX IF NOT EXISTS idx_messages_ts ON messages(ts);
`

// Backend implements history.Backend on a SQLite database.
type Backend struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the
// schema. ":memory:" gives a private in-memory database.
func Open(path string) (*Backend, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One writer, and an in-memory database only exists on its own connection.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Backend{db: db}, nil
}

// Insert stores turns in a single transaction.
func (b *Backend) Insert(ctx context.Context, turns ...history.Turn) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert: %w", err)
	}
	defer tx.Rollback()

	for _, t := range turns {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO messages (session_id, role, content, ts)
			VALUES (?, ?, ?, ?)
		`, t.SessionID, string(t.Role), t.Content, t.CreatedAt.UnixMilli())
		if err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert: %w", err)
	}
	return nil
}

// Latest returns up to limit turns of a session, newest first.
func (b *Backend) Latest(ctx context.Context, sessionID string, limit int) ([]history.Turn, error) {
	rows, err := b.db.QueryContext(ctx, `
		SELECT id, session_id, role, content, ts
		FROM messages
		WHERE session_id = ?
		ORDER BY ts DESC, id DESC
		LIMIT ?
	`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var turns []history.Turn
	for rows.Next() {
		var t history.Turn
		var role string
		var ts int64
		if err := rows.Scan(&t.ID, &t.SessionID, &role, &t.Content, &ts); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		t.Role = history.Role(role)
		t.CreatedAt = time.UnixMilli(ts)
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

// Prune keeps only the keep most recent turns of a session.
func (b *Backend) Prune(ctx context.Context, sessionID string, keep int) error {
	_, err := b.db.ExecContext(ctx, `
		DELETE FROM messages
		WHERE session_id = ?
		AND id NOT IN (
			SELECT id FROM messages
			WHERE session_id = ?
			ORDER BY ts DESC, id DESC
			LIMIT ?
		)
	`, sessionID, sessionID, keep)
	if err != nil {
		return fmt.Errorf("prune messages: %w", err)
	}
	return nil
}

// Delete removes a session's turns.
func (b *Backend) Delete(ctx context.Context, sessionID string) error {
	if _, err := b.db.ExecContext(ctx, `DELETE FROM messages WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	return nil
}

// Close closes the database.
func (b *Backend) Close() error {
	return b.db.Close()
}
