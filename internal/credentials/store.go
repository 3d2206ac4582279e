// Package credentials persists the GitHub token. The store holds only the
// credential; no fetched pull request state is ever written to it.
package credentials

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store is the credential interface consumed by the poller and the CLI.
type Store interface {
	Get() (string, error)
	Set(token string) error
	Delete() error
	Has() bool
}

const tokenName = "github_token"

// SQLiteStore keeps credentials in a small local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// Open opens (creating if needed) the credential database at path.
func Open(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create credentials directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open credentials database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping credentials database: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS credentials (
		name TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create credentials schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Get returns the stored token, or empty if none is stored.
func (s *SQLiteStore) Get() (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM credentials WHERE name = ?`, tokenName).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read credential: %w", err)
	}
	return value, nil
}

// Set stores or replaces the token.
func (s *SQLiteStore) Set(token string) error {
	query := `
	INSERT INTO credentials (name, value, updated_at)
	VALUES (?, ?, ?)
	ON CONFLICT(name) DO UPDATE SET
		value = excluded.value,
		updated_at = excluded.updated_at
	`
	if _, err := s.db.Exec(query, tokenName, token, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to store credential: %w", err)
	}
	return nil
}

// Delete removes the stored token. Deleting an absent token is not an error.
func (s *SQLiteStore) Delete() error {
	if _, err := s.db.Exec(`DELETE FROM credentials WHERE name = ?`, tokenName); err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}
	return nil
}

// Has reports whether a non-empty token is stored.
func (s *SQLiteStore) Has() bool {
	token, err := s.Get()
	return err == nil && token != ""
}

// StaticStore serves a fixed token, used when the token comes from the
// environment or the config file instead of the credential database.
type StaticStore struct {
	token string
}

// Static wraps a fixed token in the Store interface.
func Static(token string) *StaticStore {
	return &StaticStore{token: token}
}

func (s *StaticStore) Get() (string, error) { return s.token, nil }

func (s *StaticStore) Set(string) error {
	return errors.New("static credential store is read-only")
}

func (s *StaticStore) Delete() error {
	return errors.New("static credential store is read-only")
}

func (s *StaticStore) Has() bool { return s.token != "" }
