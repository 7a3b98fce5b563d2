package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/wardenhq/warden/internal/models"
)

// GetCounter returns the failure counter for key. A key that was never
// recorded yields a fresh zero-value counter, not an error.
func (s *Store) GetCounter(ctx context.Context, key string) (models.FailureCounter, error) {
	counter := models.FailureCounter{Key: key}

	err := s.execute(ctx, func() error {
		var blockedUntil sql.NullInt64
		row := s.db.QueryRowContext(ctx,
			`SELECT attempt_count, blocked_until FROM auth_failures WHERE key = ?`, key)
		if err := row.Scan(&counter.AttemptCount, &blockedUntil); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return models.ErrNotFound
			}
			return err
		}
		if blockedUntil.Valid {
			t := time.Unix(blockedUntil.Int64, 0)
			counter.BlockedUntil = &t
		} else {
			counter.BlockedUntil = nil
		}
		return nil
	})
	if errors.Is(err, models.ErrNotFound) {
		return models.FailureCounter{Key: key}, nil
	}
	if err != nil {
		return models.FailureCounter{}, err
	}
	return counter, nil
}

// PutCounter upserts the failure counter for key.
func (s *Store) PutCounter(ctx context.Context, key string, attemptCount int, blockedUntil *time.Time) error {
	var blocked sql.NullInt64
	if blockedUntil != nil {
		blocked = sql.NullInt64{Int64: blockedUntil.Unix(), Valid: true}
	}

	return s.execute(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO auth_failures (key, attempt_count, blocked_until)
			VALUES (?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET
				attempt_count = excluded.attempt_count,
				blocked_until = excluded.blocked_until`,
			key, attemptCount, blocked)
		return err
	})
}

// RemoveCounter deletes the failure counter for key. Removing a key that
// does not exist is not an error.
func (s *Store) RemoveCounter(ctx context.Context, key string) error {
	return s.execute(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `DELETE FROM auth_failures WHERE key = ?`, key)
		return err
	})
}
