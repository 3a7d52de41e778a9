// Package statestore persists westkit state in a local SQLite database.
// It exposes a small key-value surface with two scopes: global
// (machine-wide, e.g. the setup record) and workspace (per project
// directory, e.g. the selected board).
package statestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Scope partitions keys. Workspace keys are additionally qualified by the
// workspace path supplied by the caller.
type Scope string

const (
	Global    Scope = "global"
	Workspace Scope = "workspace"
)

const schema = `
CREATE TABLE IF NOT EXISTS kv (
	scope TEXT NOT NULL,
	key   TEXT NOT NULL,
	value TEXT NOT NULL,
	PRIMARY KEY (scope, key)
);`

// Store is a SQLite-backed key-value store.
type Store struct {
	db *sql.DB
}

// Open creates (or opens) the store at path, creating parent directories
// as needed.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode = WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set journal mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout = 5000`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Get returns the value for key in scope. The bool reports whether the key
// exists.
func (s *Store) Get(ctx context.Context, scope Scope, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM kv WHERE scope = ? AND key = ?`, string(scope), key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %s/%s: %w", scope, key, err)
	}
	return value, true, nil
}

// Set writes key to value in scope, replacing any previous value.
func (s *Store) Set(ctx context.Context, scope Scope, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv (scope, key, value) VALUES (?, ?, ?)
		 ON CONFLICT (scope, key) DO UPDATE SET value = excluded.value`,
		string(scope), key, value,
	)
	if err != nil {
		return fmt.Errorf("set %s/%s: %w", scope, key, err)
	}
	return nil
}

// Delete removes key from scope. Missing keys are not an error.
func (s *Store) Delete(ctx context.Context, scope Scope, key string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM kv WHERE scope = ? AND key = ?`, string(scope), key,
	); err != nil {
		return fmt.Errorf("delete %s/%s: %w", scope, key, err)
	}
	return nil
}

// WorkspaceKey qualifies key by workspace directory so multiple projects can
// share one database.
func WorkspaceKey(dir, key string) string {
	return filepath.Clean(dir) + "\x00" + key
}
