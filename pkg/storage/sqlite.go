package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLite persists client state for every session in one database file
type SQLite struct {
	db *sql.DB
}

// Open opens (and if needed creates) the client-state database at path
func Open(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS client_state (
		session_id TEXT NOT NULL,
		key        TEXT NOT NULL,
		value      TEXT NOT NULL,
		updated_at DATETIME NOT NULL,
		PRIMARY KEY (session_id, key)
	);
	CREATE INDEX IF NOT EXISTS idx_client_state_updated ON client_state(updated_at);
	`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create client_state schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Namespace returns the Store view of one session's entries
func (s *SQLite) Namespace(sessionID string) Store {
	return &sqliteNamespace{db: s.db, sessionID: sessionID}
}

// PurgeOlderThan removes entries not updated since cutoff and returns how
// many rows were deleted
func (s *SQLite) PurgeOlderThan(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM client_state WHERE updated_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type sqliteNamespace struct {
	db        *sql.DB
	sessionID string
}

func (n *sqliteNamespace) Get(key string) (string, bool, error) {
	var value string
	err := n.db.QueryRow(
		`SELECT value FROM client_state WHERE session_id = ? AND key = ?`,
		n.sessionID, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (n *sqliteNamespace) Set(key, value string) error {
	_, err := n.db.Exec(
		`INSERT INTO client_state (session_id, key, value, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(session_id, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		n.sessionID, key, value, time.Now().UTC(),
	)
	return err
}

func (n *sqliteNamespace) Remove(key string) error {
	_, err := n.db.Exec(
		`DELETE FROM client_state WHERE session_id = ? AND key = ?`,
		n.sessionID, key,
	)
	return err
}
