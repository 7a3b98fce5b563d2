package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite"
)

// DB wraps the embedded sqlite handle used for counters and MFA tokens.
type DB struct {
	*sql.DB
	path   string
	logger *slog.Logger
}

// Open opens (or creates) the sqlite file at path. The schema itself is
// owned by the storage layer, which must be able to recreate it at runtime.
func Open(path string, logger *slog.Logger) (*DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %q: %w", path, err)
	}

	// sqlite writes are serialized; a single connection avoids lock
	// contention errors under concurrent request handling.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database %q: %w", path, err)
	}

	logger.Info("database opened", slog.String("path", path))
	return &DB{DB: db, path: path, logger: logger}, nil
}

// HealthCheck verifies the database file is still reachable.
func (db *DB) HealthCheck(ctx context.Context) error {
	return db.PingContext(ctx)
}

// Path returns the configured database file path.
func (db *DB) Path() string {
	return db.path
}
