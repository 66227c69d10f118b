// Package sqlitestore provides SQLite-based persistence for session state.
package sqlitestore

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Store implements session.Store using SQLite. Key-level serialization is
// provided by the database itself; the Go side holds no locks.
type Store struct {
	db *sql.DB
}

// New creates a new SQLite-based store at the given path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return store, nil
}

// initSchema creates the necessary tables if they don't exist.
func (s *Store) initSchema() error {
	const schema = `
CREATE TABLE IF NOT EXISTS facts (
    session_id TEXT NOT NULL,
    key        TEXT NOT NULL,
    value      TEXT NOT NULL,
    updated_at DATETIME NOT NULL,
    PRIMARY KEY (session_id, key)
);

CREATE INDEX IF NOT EXISTS idx_facts_session ON facts(session_id);
CREATE INDEX IF NOT EXISTS idx_facts_updated ON facts(session_id, updated_at);
`
	_, err := s.db.Exec(schema)
	return err
}

// Get implements session.Store.
func (s *Store) Get(sessionID, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow(
		`SELECT value FROM facts WHERE session_id = ? AND key = ?`,
		sessionID, key,
	).Scan(&value)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", false, nil
		}
		return "", false, fmt.Errorf("query fact: %w", err)
	}
	return value, true, nil
}

// Set implements session.Store.
func (s *Store) Set(sessionID, key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO facts (session_id, key, value, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(session_id, key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at`,
		sessionID, key, value, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert fact: %w", err)
	}
	return nil
}

// Delete implements session.Store.
func (s *Store) Delete(sessionID, key string) error {
	_, err := s.db.Exec(`DELETE FROM facts WHERE session_id = ? AND key = ?`, sessionID, key)
	if err != nil {
		return fmt.Errorf("delete fact: %w", err)
	}
	return nil
}

// Keys implements session.Store.
func (s *Store) Keys(sessionID string) ([]string, error) {
	rows, err := s.db.Query(`SELECT key FROM facts WHERE session_id = ? ORDER BY key`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		keys = append(keys, key)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate keys: %w", err)
	}

	return keys, nil
}

// Close implements session.Store.
func (s *Store) Close(sessionID string) error {
	_, err := s.db.Exec(`DELETE FROM facts WHERE session_id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	return nil
}

// Sweep implements session.Store. A session is idle when none of its keys
// have been written since the cutoff.
func (s *Store) Sweep(maxIdle time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-maxIdle)

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.Query(
		`SELECT session_id FROM facts GROUP BY session_id HAVING MAX(updated_at) < ?`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("query idle sessions: %w", err)
	}

	var idle []string
	for rows.Next() {
		var sessionID string
		if err := rows.Scan(&sessionID); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan session: %w", err)
		}
		idle = append(idle, sessionID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate sessions: %w", err)
	}

	for _, sessionID := range idle {
		if _, err := tx.Exec(`DELETE FROM facts WHERE session_id = ?`, sessionID); err != nil {
			return 0, fmt.Errorf("sweep session %s: %w", sessionID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit sweep: %w", err)
	}
	return len(idle), nil
}

// CloseAll implements session.Store.
func (s *Store) CloseAll() error {
	return s.db.Close()
}

// Fact is one stored key/value pair with its last write time. It is used
// by tooling that inspects a session database directly.
type Fact struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Sessions returns the ids of every session with at least one fact.
func (s *Store) Sessions() ([]string, error) {
	rows, err := s.db.Query(`SELECT DISTINCT session_id FROM facts ORDER BY session_id`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []string
	for rows.Next() {
		var sessionID string
		if err := rows.Scan(&sessionID); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, sessionID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// Facts returns every fact in a session, ordered by key.
func (s *Store) Facts(sessionID string) ([]Fact, error) {
	rows, err := s.db.Query(
		`SELECT key, value, updated_at FROM facts WHERE session_id = ? ORDER BY key`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("query facts: %w", err)
	}
	defer rows.Close()

	var facts []Fact
	for rows.Next() {
		var fact Fact
		if err := rows.Scan(&fact.Key, &fact.Value, &fact.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan fact: %w", err)
		}
		facts = append(facts, fact)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate facts: %w", err)
	}
	return facts, nil
}
