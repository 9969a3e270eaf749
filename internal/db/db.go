// Package db provides SQLite snapshots of a heap archive and the persistent
// event journal.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/tOgg1/heapkeeper/internal/logging"
)

const defaultBusyTimeout = 5 * time.Second

// SchemaVersion is stored as the SQLite user_version of every database this
// package creates.
const SchemaVersion = 1

// ErrSnapshotVersion reports a database written by a newer schema.
var ErrSnapshotVersion = errors.New("unsupported snapshot schema version")

// Config configures a database connection.
type Config struct {
	Path        string
	BusyTimeout time.Duration
}

// DB wraps a SQLite connection pool.
type DB struct {
	*sql.DB
	path   string
	logger zerolog.Logger
}

// Open opens the database at cfg.Path, creating the file and its directory
// when missing, and ensures the schema exists.
func Open(ctx context.Context, cfg Config) (*DB, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if dir := filepath.Dir(cfg.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	return open(ctx, cfg.Path, cfg.BusyTimeout, 0)
}

// OpenInMemory opens a private in-memory database, mostly for tests.
func OpenInMemory(ctx context.Context) (*DB, error) {
	// Every connection of an in-memory database sees its own data.
	return open(ctx, ":memory:", 0, 1)
}

func open(ctx context.Context, path string, busyTimeout time.Duration, maxConns int) (*DB, error) {
	if busyTimeout <= 0 {
		busyTimeout = defaultBusyTimeout
	}
	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=synchronous(NORMAL)",
		path, busyTimeout.Milliseconds())

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if maxConns > 0 {
		sqlDB.SetMaxOpenConns(maxConns)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db := &DB{DB: sqlDB, path: path, logger: logging.Component("db")}
	if err := db.ensureSchema(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// Path returns the database file, or ":memory:".
func (db *DB) Path() string { return db.path }

// Transaction runs fn inside a transaction, committing when fn returns nil.
func (db *DB) Transaction(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			db.logger.Warn().Err(rbErr).Msg("rollback failed")
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (db *DB) ensureSchema(ctx context.Context) error {
	var version int
	if err := db.QueryRowContext(ctx, `PRAGMA user_version`).Scan(&version); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if version > SchemaVersion {
		return fmt.Errorf("%w: %d (supported: %d)", ErrSnapshotVersion, version, SchemaVersion)
	}

	statements := []string{
		`CREATE TABLE IF NOT EXISTS posts (
			heapid TEXT PRIMARY KEY,
			position INTEGER NOT NULL,
			author TEXT NOT NULL,
			subject TEXT NOT NULL,
			message_id TEXT NOT NULL,
			parent_ref TEXT NOT NULL,
			date TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			tags_json TEXT NOT NULL,
			flags_json TEXT NOT NULL,
			refs_json TEXT NOT NULL,
			extra_json TEXT,
			body TEXT NOT NULL,
			deleted INTEGER NOT NULL DEFAULT 0,
			parent_heapid TEXT,
			bucket_index INTEGER,
			cyclic INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS posts_parent_idx ON posts(parent_heapid, bucket_index)`,
		`CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			timestamp TEXT NOT NULL,
			type TEXT NOT NULL,
			post_id TEXT,
			generation INTEGER NOT NULL DEFAULT 0,
			metadata_json TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS events_post_idx ON events(post_id, timestamp)`,
		`CREATE INDEX IF NOT EXISTS events_timestamp_idx ON events(timestamp, id)`,
	}
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
	}
	if version < SchemaVersion {
		if _, err := db.ExecContext(ctx, fmt.Sprintf(`PRAGMA user_version = %d`, SchemaVersion)); err != nil {
			return fmt.Errorf("failed to set schema version: %w", err)
		}
		db.logger.Debug().Str("path", db.path).Int("version", SchemaVersion).Msg("schema created")
	}
	return nil
}
