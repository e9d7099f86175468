// Package filedb implements the durable per-file tracking table and
// meta key/value store that the update engine uses to decide what has
// changed locally and what the manifest last said about each layer.
package filedb

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	// Pure-Go SQLite driver (no CGO).
	_ "modernc.org/sqlite"
)

// TrackedFile is a row in the files table: a single path the engine has
// placed on disk, the archive entry it came from, and the layer that
// placed it.
type TrackedFile struct {
	Path    string
	CRC     uint32
	Updated float64
	Layer   string
}

// DB is the sole writer to the filedb database for one install directory.
type DB struct {
	conn   *sql.DB
	logger *slog.Logger
}

// Open opens (creating if absent) the SQLite database at path and runs
// pending migrations. The DSN applies WAL journaling with full
// synchronous durability to every connection in the pool, and the pool
// is capped to a single connection — the engine never has more than one
// writer, so there is no need for SQLite's own locking to mediate
// between Go-level connections.
func Open(ctx context.Context, path string, logger *slog.Logger) (*DB, error) {
	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)"+
			"&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)",
		path,
	)

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("filedb: opening database %s: %w", path, err)
	}

	conn.SetMaxOpenConns(1)

	if err := runMigrations(ctx, conn, logger); err != nil {
		conn.Close()
		return nil, err
	}

	return &DB{conn: conn, logger: logger}, nil
}

// Close closes the underlying database connection.
func (d *DB) Close() error {
	return d.conn.Close()
}
