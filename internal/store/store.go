// Package store provides the durable local record store for swimsync.
//
// The store is an embedded SQLite database (ncruces/go-sqlite3) holding the
// two business tables (users, swim_times), the durable pending-change queue
// feeding the sync engine's sender, and a small meta key-value table for the
// sync cursor.
//
// Access model: the database handle is restricted to a single connection, so
// every read and write for one store is serialized — concurrent callers queue
// on the pool rather than race. Network calls never happen while holding a
// store connection. Business fields and sync metadata (sys_fields) are
// updated by separate statements keyed by record id, so a user edit and a
// concurrent sync acknowledgment to the same record cannot lose each other's
// write.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Store wraps the SQLite connection with swimsync-specific functionality.
type Store struct {
	conn *sql.DB
	path string
}

// Open creates or opens the local store at the given path.
//
// The database is opened in WAL mode with a busy timeout. If it doesn't
// exist it is created along with the schema. The caller must Close() it.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open local store: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping local store: %w", err)
	}

	// One connection serializes all local access; callers queue instead
	// of racing (and SQLITE_BUSY never surfaces mid-transaction).
	conn.SetMaxOpenConns(1)

	s := &Store{conn: conn, path: path}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := s.conn.Exec(pragma); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	if err := s.initSchema(context.Background()); err != nil {
		_ = s.Close()
		return nil, err
	}

	return s, nil
}

// Path returns the filesystem path of the database file.
func (s *Store) Path() string {
	return s.path
}

// Close closes the store after checkpointing the WAL.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}
	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close local store: %w", err)
	}
	s.conn = nil
	return nil
}

// initSchema creates the tables and indexes. Idempotent.
func (s *Store) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		sys_fields BLOB
	);

	CREATE TABLE IF NOT EXISTS swim_times (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		date TEXT NOT NULL,
		distance_meters INTEGER NOT NULL,
		stroke TEXT NOT NULL,
		elapsed_seconds REAL NOT NULL,
		sys_fields BLOB
	);

	-- Durable pending-change queue. At most one row per record id; the
	-- sync engine owns all mutations of this table.
	CREATE TABLE IF NOT EXISTS pending_changes (
		record_id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		op TEXT NOT NULL,
		queued_at TEXT NOT NULL
	);

	-- Opaque key-value state (sync cursor per zone).
	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value BLOB NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_swim_times_user ON swim_times(user_id);
	CREATE INDEX IF NOT EXISTS idx_swim_times_date ON swim_times(date);
	`
	if _, err := s.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}
