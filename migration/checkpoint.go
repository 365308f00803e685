package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Checkpoint persists per-key terminal states of a migration run in a
// local SQLite database, so an interrupted run can be resumed without
// reprocessing objects that already moved. Without a checkpoint a restart
// rescans the whole prefix.
type Checkpoint struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

// OpenCheckpoint opens (or creates) the checkpoint database at path.
func OpenCheckpoint(path string) (*Checkpoint, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS migration_objects (
			key TEXT PRIMARY KEY,
			dest_key TEXT NOT NULL,
			state TEXT NOT NULL,
			error_message TEXT,
			attempts INTEGER NOT NULL DEFAULT 0,
			updated_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_migration_objects_state ON migration_objects(state);
	`)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create checkpoint schema: %w", err)
	}

	return &Checkpoint{db: db, path: path}, nil
}

// Path returns the database file path.
func (c *Checkpoint) Path() string {
	return c.path
}

// Record upserts the terminal state of one key.
func (c *Checkpoint) Record(key, destKey string, state Outcome, errMsg string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.db.Exec(`
		INSERT INTO migration_objects (key, dest_key, state, error_message, attempts, updated_at)
		VALUES (?, ?, ?, ?, 1, ?)
		ON CONFLICT(key) DO UPDATE SET
			dest_key = excluded.dest_key,
			state = excluded.state,
			error_message = excluded.error_message,
			attempts = migration_objects.attempts + 1,
			updated_at = excluded.updated_at
	`, key, destKey, string(state), errMsg, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to record checkpoint for %s: %w", key, err)
	}
	return nil
}

// State returns the recorded state of key, if any.
func (c *Checkpoint) State(key string) (Outcome, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var state string
	err := c.db.QueryRow(`SELECT state FROM migration_objects WHERE key = ?`, key).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read checkpoint for %s: %w", key, err)
	}
	return Outcome(state), true, nil
}

// FailedKeys returns the keys whose last recorded state is a failure.
func (c *Checkpoint) FailedKeys() ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rows, err := c.db.Query(`SELECT key FROM migration_objects WHERE state IN (?, ?) ORDER BY key`,
		string(OutcomeCopyFailed), string(OutcomeDeleteFailed))
	if err != nil {
		return nil, fmt.Errorf("failed to list failed keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Close closes the underlying database.
func (c *Checkpoint) Close() error {
	return c.db.Close()
}
