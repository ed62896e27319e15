// Package audit provides a best-effort, append-only log of
// authentication and admission decisions, backed by an embedded
// SQLite database. Losing this log on restart has no effect on
// protocol correctness — it exists purely for operators.
//
// Migration design: SQL statements are kept in the [migrations] slice
// as ordered strings. Each is applied exactly once; the applied
// version is tracked in the schema_migrations table. To add a
// migration, append a new string — never edit or reorder existing
// entries.
package audit

import (
	"database/sql"
	"fmt"
	"log"

	_ "modernc.org/sqlite"
)

var migrations = []string{
	// v1 — audit log of auth/admission decisions
	`CREATE TABLE IF NOT EXISTS audit_log (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		peer_addr   TEXT NOT NULL,
		nickname    TEXT NOT NULL DEFAULT '',
		event       TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		created_at  INTEGER NOT NULL DEFAULT (unixepoch())
	)`,
	// v2 — index for tailing by time
	`CREATE INDEX IF NOT EXISTS idx_audit_log_created ON audit_log(created_at)`,
	// v3 — enable WAL mode
	`PRAGMA journal_mode=WAL`,
}

// Event names recorded by the Session/Listener layers.
const (
	EventRegistered     = "registered"
	EventLoginSuccess   = "login_success"
	EventLoginFailed    = "login_failed"
	EventNicknameDenied = "nickname_denied"
	EventIPDenied       = "ip_denied"
	EventSessionAborted = "session_aborted"
)

// Log wraps a SQLite database holding the audit trail.
type Log struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at path and applies any
// pending migrations. Use ":memory:" for ephemeral storage (tests).
func Open(path string) (*Log, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("audit: open db: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)

	if _, err := db.Exec(`PRAGMA busy_timeout=5000`); err != nil {
		log.Printf("[audit] busy_timeout: %v (non-fatal)", err)
	}

	l := &Log{db: db}
	if err := l.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit: migrate: %w", err)
	}
	return l, nil
}

func (l *Log) migrate() error {
	_, err := l.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	var current int
	if err := l.db.QueryRow(
		`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`,
	).Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for i, stmt := range migrations {
		v := i + 1
		if v <= current {
			continue
		}
		if _, err := l.db.Exec(stmt); err != nil {
			return fmt.Errorf("migration %d: %w", v, err)
		}
		if _, err := l.db.Exec(
			`INSERT INTO schema_migrations(version) VALUES(?)`, v,
		); err != nil {
			return fmt.Errorf("record migration %d: %w", v, err)
		}
	}
	return nil
}

// Close releases the database connection.
func (l *Log) Close() error {
	return l.db.Close()
}

// Record appends one audit row. Failures are the caller's to decide
// how to handle; callers on the hot path are expected to log and
// discard rather than propagate, per spec's error-handling design for
// this ambient concern.
func (l *Log) Record(peerAddr, nickname, event, description string) error {
	_, err := l.db.Exec(
		`INSERT INTO audit_log(peer_addr, nickname, event, description) VALUES (?, ?, ?, ?)`,
		peerAddr, nickname, event, description,
	)
	return err
}

// Row is one audit_log entry, as returned by Tail.
type Row struct {
	ID          int64
	PeerAddr    string
	Nickname    string
	Event       string
	Description string
	CreatedAt   int64
}

// Tail returns the most recent n audit rows, newest first.
func (l *Log) Tail(n int) ([]Row, error) {
	rows, err := l.db.Query(
		`SELECT id, peer_addr, nickname, event, description, created_at
		 FROM audit_log ORDER BY id DESC LIMIT ?`, n,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.ID, &r.PeerAddr, &r.Nickname, &r.Event, &r.Description, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
