// Package sqlite provides a SQLite-backed implementation of the
// storage.Store interface. It serves double duty: the device-local replica
// store and the server's default backend share this implementation.
package sqlite

import (
	"database/sql"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/holdmymap/holdmymap/internal/errs"
	"github.com/holdmymap/holdmymap/internal/storage"
)

// Ensure SQLiteStore implements storage.Store
var _ storage.Store = (*SQLiteStore)(nil)

// SQLiteStore implements storage.Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New creates a new SQLiteStore with the given database path.
// It creates the parent directories and runs migrations automatically.
func New(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errs.Storage("create database directory", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, errs.Storage("open database", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, errs.Storage("run migrations", err)
	}

	return &SQLiteStore{db: db}, nil
}

// DB exposes the underlying handle for maintenance operations such as
// snapshot backups (VACUUM INTO).
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Timestamps are stored as RFC 3339 text in UTC, matching the wire format.

func fmtTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
