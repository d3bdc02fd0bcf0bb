// Package checkpoint provides a SQLite-backed keyed blob store used to
// persist session state snapshots. Persistence is best-effort: the session
// layer swallows read/write failures, so a missing or corrupt checkpoint
// never breaks a chat.
package checkpoint

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// Store persists and retrieves opaque snapshot blobs by key.
// Implementations must be safe for concurrent use.
type Store interface {
	// Set stores blob under key, replacing any prior value.
	Set(ctx context.Context, key string, blob []byte) error
	// Get returns the blob stored under key, or (nil, nil) when absent.
	Get(ctx context.Context, key string) ([]byte, error)
	// Remove deletes the blob stored under key. Removing a missing key is
	// not an error.
	Remove(ctx context.Context, key string) error
	// Close releases any resources held by the store.
	Close() error
}

// SQLiteStore is a Store backed by a local SQLite database.
type SQLiteStore struct {
	// db is the underlying database connection pool.
	db *sql.DB
}

// DefaultDBPath returns the default path for the checkpoint database.
// It resolves to ~/.pfai/checkpoints.db, creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("checkpoint: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".pfai")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("checkpoint: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "checkpoints.db"), nil
}

// Open opens (or creates) a SQLiteStore at the given path and runs the schema
// migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*SQLiteStore, error) {
	// WAL mode improves concurrent read performance and is safe for single-host use.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: open %s: %w", path, err)
	}
	// Limit to a single writer connection to avoid SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS checkpoints (
    key         TEXT    PRIMARY KEY,
    blob        BLOB    NOT NULL,
    updated_at  INTEGER NOT NULL  -- Unix timestamp (seconds)
);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("checkpoint: migrate: %w", err)
	}
	return nil
}

// Set stores blob under key, replacing any prior value.
func (s *SQLiteStore) Set(ctx context.Context, key string, blob []byte) error {
	const q = `
INSERT INTO checkpoints (key, blob, updated_at) VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET blob = excluded.blob, updated_at = excluded.updated_at`
	if _, err := s.db.ExecContext(ctx, q, key, blob, time.Now().Unix()); err != nil {
		return fmt.Errorf("checkpoint: set %s: %w", key, err)
	}
	return nil
}

// Get returns the blob stored under key, or (nil, nil) when absent.
func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, error) {
	const q = `SELECT blob FROM checkpoints WHERE key = ?`
	var blob []byte
	err := s.db.QueryRowContext(ctx, q, key).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("checkpoint: get %s: %w", key, err)
	}
	return blob, nil
}

// Remove deletes the blob stored under key.
func (s *SQLiteStore) Remove(ctx context.Context, key string) error {
	const q = `DELETE FROM checkpoints WHERE key = ?`
	if _, err := s.db.ExecContext(ctx, q, key); err != nil {
		return fmt.Errorf("checkpoint: remove %s: %w", key, err)
	}
	return nil
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("checkpoint: close: %w", err)
	}
	return nil
}
