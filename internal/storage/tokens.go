package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/wardenhq/warden/internal/models"
)

// GetToken returns the stored MFA token for a channel, or ErrNotFound.
// The channel column is the primary key: at most one token per channel.
func (s *Store) GetToken(ctx context.Context, channel models.MFAChannel) (*models.MFAToken, error) {
	token := &models.MFAToken{Channel: channel}

	err := s.execute(ctx, func() error {
		var issuedAt, expiresAt, lastResendAt int64
		var consumed int
		row := s.db.QueryRowContext(ctx, `
			SELECT id, code_cipher, code_nonce, issued_at, expires_at, last_resend_at, consumed
			FROM mfa_tokens WHERE channel = ?`, string(channel))
		if err := row.Scan(&token.ID, &token.CodeCipher, &token.CodeNonce,
			&issuedAt, &expiresAt, &lastResendAt, &consumed); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return models.ErrNotFound
			}
			return err
		}
		token.IssuedAt = time.Unix(issuedAt, 0)
		token.ExpiresAt = time.Unix(expiresAt, 0)
		token.LastResendAt = time.Unix(lastResendAt, 0)
		token.Consumed = consumed != 0
		return nil
	})
	if err != nil {
		return nil, err
	}
	return token, nil
}

// PutToken stores a token, replacing any previous token for the channel.
func (s *Store) PutToken(ctx context.Context, token *models.MFAToken) error {
	consumed := 0
	if token.Consumed {
		consumed = 1
	}

	return s.execute(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO mfa_tokens (channel, id, code_cipher, code_nonce, issued_at, expires_at, last_resend_at, consumed)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(channel) DO UPDATE SET
				id = excluded.id,
				code_cipher = excluded.code_cipher,
				code_nonce = excluded.code_nonce,
				issued_at = excluded.issued_at,
				expires_at = excluded.expires_at,
				last_resend_at = excluded.last_resend_at,
				consumed = excluded.consumed`,
			string(token.Channel), token.ID, token.CodeCipher, token.CodeNonce,
			token.IssuedAt.Unix(), token.ExpiresAt.Unix(), token.LastResendAt.Unix(), consumed)
		return err
	})
}

// ConsumeToken marks a token consumed. The transition is irreversible and
// guarded by the consumed flag in the WHERE clause, so only one caller can
// observe the false -> true flip.
func (s *Store) ConsumeToken(ctx context.Context, channel models.MFAChannel, id string) error {
	return s.execute(ctx, func() error {
		res, err := s.db.ExecContext(ctx, `
			UPDATE mfa_tokens SET consumed = 1
			WHERE channel = ? AND id = ? AND consumed = 0`,
			string(channel), id)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return models.ErrNotFound
		}
		return nil
	})
}

// DeleteExpiredTokens removes tokens past their expiry. Expired tokens are
// already inert; this just keeps the table from growing.
func (s *Store) DeleteExpiredTokens(ctx context.Context, now time.Time) (int64, error) {
	var deleted int64
	err := s.execute(ctx, func() error {
		res, err := s.db.ExecContext(ctx,
			`DELETE FROM mfa_tokens WHERE expires_at <= ?`, now.Unix())
		if err != nil {
			return err
		}
		deleted, err = res.RowsAffected()
		return err
	})
	return deleted, err
}
