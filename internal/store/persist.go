// Package store holds the client-side state containers: auth session, current
// report, scoring history, and the SQLite-backed persistence they share.
//
// Each store owns its slice of state exclusively and persists only its
// serialization allow-list under its own namespaced key, mirroring the
// browser origin's local-storage layout.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Namespaced persistence keys. One key per store; no store writes another's.
const (
	keyAuthSession   = "auth.session"
	keyWorkflowDraft = "workflow.draft"
	keyReportCurrent = "report.current"
	keyHistoryList   = "history.list"
)

const schema = `
CREATE TABLE IF NOT EXISTS state (
	namespace  TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
`

// DB is the local state database. Values are JSON documents keyed by
// namespace.
type DB struct {
	db *sql.DB
}

// Open creates or opens the state database under dir.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}

	db, err := sql.Open("sqlite", filepath.Join(dir, "state.db"))
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init state schema: %w", err)
	}

	return &DB{db: db}, nil
}

// OpenInMemory opens a throwaway state database for tests.
func OpenInMemory() (*DB, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init state schema: %w", err)
	}
	return &DB{db: db}, nil
}

// Close closes the underlying database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Put serializes v as JSON under the namespace, replacing any previous value.
func (d *DB) Put(namespace string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", namespace, err)
	}
	_, err = d.db.Exec(
		`INSERT INTO state (namespace, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(namespace) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		namespace, string(raw), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("persist %s: %w", namespace, err)
	}
	return nil
}

// Get loads the namespace's JSON document into v. Returns false when nothing
// has been persisted yet.
func (d *DB) Get(namespace string, v any) (bool, error) {
	var raw string
	err := d.db.QueryRow(`SELECT value FROM state WHERE namespace = ?`, namespace).Scan(&raw)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load %s: %w", namespace, err)
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return false, fmt.Errorf("decode %s: %w", namespace, err)
	}
	return true, nil
}

// SaveWorkflowDraft persists the workflow's allow-listed free-text fields.
func (d *DB) SaveWorkflowDraft(v any) error {
	return d.Put(keyWorkflowDraft, v)
}

// LoadWorkflowDraft restores the workflow draft, reporting whether one was
// persisted.
func (d *DB) LoadWorkflowDraft(v any) (bool, error) {
	return d.Get(keyWorkflowDraft, v)
}

// Delete removes the namespace's persisted value.
func (d *DB) Delete(namespace string) error {
	if _, err := d.db.Exec(`DELETE FROM state WHERE namespace = ?`, namespace); err != nil {
		return fmt.Errorf("delete %s: %w", namespace, err)
	}
	return nil
}
