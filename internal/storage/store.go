package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/wardenhq/warden/internal/database"
)

const schema = `
CREATE TABLE IF NOT EXISTS auth_failures (
	key TEXT PRIMARY KEY,
	attempt_count INTEGER NOT NULL DEFAULT 0,
	blocked_until INTEGER
);
CREATE TABLE IF NOT EXISTS mfa_tokens (
	channel TEXT PRIMARY KEY,
	id TEXT NOT NULL,
	code_cipher BLOB NOT NULL,
	code_nonce BLOB NOT NULL,
	issued_at INTEGER NOT NULL,
	expires_at INTEGER NOT NULL,
	last_resend_at INTEGER NOT NULL,
	consumed INTEGER NOT NULL DEFAULT 0
);
`

// Store owns the persisted tables for failure counters and MFA tokens.
// Every operation goes through the breaker, so transient corruption heals
// itself via a drop-and-recreate cycle instead of becoming a permanent
// outage. No other component touches these tables directly.
type Store struct {
	db      *database.DB
	breaker *Breaker
	logger  *slog.Logger
}

// New bootstraps the schema and returns a ready store.
func New(db *database.DB, breakerThreshold int, logger *slog.Logger) (*Store, error) {
	s := &Store{
		db:      db,
		breaker: NewBreaker(breakerThreshold, logger),
		logger:  logger,
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return s, nil
}

// Breaker exposes the store's breaker for transition hooks and health checks.
func (s *Store) Breaker() *Breaker {
	return s.breaker
}

// Ping exercises a no-op read against the store. The background watcher
// calls this periodically; a failure here still counts toward (and can
// trigger) the breaker's rebuild.
func (s *Store) Ping(ctx context.Context) error {
	return s.execute(ctx, func() error {
		var n int
		return s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM auth_failures`).Scan(&n)
	})
}

func (s *Store) execute(ctx context.Context, op func() error) error {
	return s.breaker.Execute(op, func() error {
		return s.rebuild(ctx)
	})
}

// rebuild drops and recreates the backing tables. All counters and tokens
// are lost, which is acceptable: every record is ephemeral and rebuildable
// from empty without external coordination.
func (s *Store) rebuild(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin rebuild: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range []string{
		`DROP TABLE IF EXISTS auth_failures`,
		`DROP TABLE IF EXISTS mfa_tokens`,
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to drop table: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to recreate schema: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit rebuild: %w", err)
	}

	s.logger.Info("storage tables rebuilt")
	return nil
}
