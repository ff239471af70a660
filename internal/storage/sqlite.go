package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"contxtra_bot/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// in-memory databases are per connection
	if dsn == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if err := migrations.Run(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Get returns the value stored under scope/key, or ErrNotFound.
func (s *SQLite) Get(ctx context.Context, scope, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM kv_entries WHERE scope = ? AND key = ?`, scope, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get %s/%s: %w", scope, key, err)
	}
	return value, nil
}

// Set upserts the value stored under scope/key.
func (s *SQLite) Set(ctx context.Context, scope, key, value string) error {
	now := time.Now().UTC().Format(timeLayout)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv_entries (scope, key, value, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (scope, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		scope, key, value, now,
	)
	if err != nil {
		return fmt.Errorf("set %s/%s: %w", scope, key, err)
	}
	return nil
}

// Delete removes scope/key. Deleting a missing key is not an error.
func (s *SQLite) Delete(ctx context.Context, scope, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM kv_entries WHERE scope = ? AND key = ?`, scope, key)
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", scope, key, err)
	}
	return nil
}

// ScopesWithKey lists scopes that hold key, ordered by scope.
func (s *SQLite) ScopesWithKey(ctx context.Context, key string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT scope FROM kv_entries WHERE key = ? ORDER BY scope`, key,
	)
	if err != nil {
		return nil, fmt.Errorf("query scopes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var scopes []string
	for rows.Next() {
		var scope string
		if err := rows.Scan(&scope); err != nil {
			return nil, fmt.Errorf("scan scope: %w", err)
		}
		scopes = append(scopes, scope)
	}
	return scopes, rows.Err()
}
