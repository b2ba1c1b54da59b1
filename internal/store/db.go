package store

import (
	"crypto/rand"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"
)

// CurrentSchemaVersion is the latest schema version.
// Bump this when adding migrations.
const CurrentSchemaVersion = 2

// Store is the site's record store: portfolio projects, contact messages and
// visitor metrics, plus the account tables used by package auth.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the SQLite database at path and migrates it.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	_ = os.Chmod(path, 0o600)

	return &Store{db: db, now: time.Now}, nil
}

// DB exposes the connection for packages that own their own tables.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Close() error { return s.db.Close() }

// migrate applies schema migrations based on user_version.
func migrate(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if version > CurrentSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported %d", version, CurrentSchemaVersion)
	}

	// Migration 0 -> 1: projects, messages, visitors
	if version < 1 {
		schema := `
		CREATE TABLE IF NOT EXISTS projects (
		  id             TEXT PRIMARY KEY,
		  title          TEXT NOT NULL,
		  description    TEXT NOT NULL DEFAULT '',
		  image_url      TEXT NOT NULL DEFAULT '',
		  gallery_json   TEXT NOT NULL DEFAULT '[]',
		  link           TEXT NOT NULL DEFAULT '',
		  file_url       TEXT NOT NULL DEFAULT '',
		  image_position TEXT NOT NULL DEFAULT '50% 50%',
		  created_at     INTEGER NOT NULL,
		  updated_at     INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS messages (
		  id         TEXT PRIMARY KEY,
		  name       TEXT NOT NULL,
		  email      TEXT NOT NULL,
		  message    TEXT NOT NULL,
		  is_read    INTEGER NOT NULL DEFAULT 0,
		  created_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_messages_created ON messages(created_at DESC);

		CREATE TABLE IF NOT EXISTS visitors (
		  id         INTEGER PRIMARY KEY AUTOINCREMENT,
		  hashed_ip  TEXT NOT NULL,
		  user_agent TEXT NOT NULL DEFAULT '',
		  path       TEXT NOT NULL DEFAULT '',
		  visited_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_visitors_visited ON visitors(visited_at);
		`
		if err := execMigration(db, 1, schema); err != nil {
			return err
		}
	}

	// Migration 1 -> 2: admin accounts and sessions
	if version < 2 {
		schema := `
		CREATE TABLE IF NOT EXISTS users (
		  id            TEXT PRIMARY KEY,
		  email         TEXT NOT NULL UNIQUE,
		  full_name     TEXT NOT NULL DEFAULT '',
		  password_hash TEXT NOT NULL,
		  created_at    INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS sessions (
		  token_hash TEXT PRIMARY KEY,
		  user_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		  created_at INTEGER NOT NULL,
		  expires_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_sessions_expires ON sessions(expires_at);
		`
		if err := execMigration(db, 2, schema); err != nil {
			return err
		}
	}

	return nil
}

func execMigration(db *sql.DB, version int, schema string) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin migration %d: %w", version, err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(schema); err != nil {
		return fmt.Errorf("failed to apply migration %d: %w", version, err)
	}
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", version)); err != nil {
		return fmt.Errorf("failed to set schema version %d: %w", version, err)
	}
	return tx.Commit()
}

// SchemaVersion returns the database's user_version.
func (s *Store) SchemaVersion() (int, error) {
	var v int
	err := s.db.QueryRow("PRAGMA user_version").Scan(&v)
	return v, err
}

// NewID returns a new ULID string.
func NewID() (string, error) {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
	if err != nil {
		return "", fmt.Errorf("failed to generate id: %w", err)
	}
	return id.String(), nil
}
