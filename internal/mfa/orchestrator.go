package mfa

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wardenhq/warden/internal/models"
	"github.com/wardenhq/warden/internal/storage"
)

// OrchestratorConfig shapes the passcode lifecycle.
type OrchestratorConfig struct {
	// Timeout is how long an issued passcode stays valid.
	Timeout time.Duration
	// ResendDelay is the minimum gap between dispatches on one channel.
	ResendDelay time.Duration
}

// Orchestrator runs the passcode lifecycle across the configured channels:
// issue, encrypt, persist, dispatch, validate, consume. Plaintext codes
// exist only inside Request and Validate; the store only ever sees
// ciphertext.
type Orchestrator struct {
	store    *storage.Store
	cipher   *Cipher
	channels map[models.MFAChannel]Channel
	ordered  []models.MFAChannel
	config   OrchestratorConfig
	logger   *slog.Logger
	now      func() time.Time

	// mu serializes the read-modify-write on each channel's single token
	// row. Contention is negligible at this scale.
	mu sync.Mutex
}

// NewOrchestrator wires the configured channels. Unconfigured channels are
// dropped here so every channel in the map is usable.
func NewOrchestrator(store *storage.Store, key []byte, channels []Channel, cfg OrchestratorConfig, logger *slog.Logger) (*Orchestrator, error) {
	cipher, err := NewCipher(key)
	if err != nil {
		return nil, err
	}

	o := &Orchestrator{
		store:    store,
		cipher:   cipher,
		channels: make(map[models.MFAChannel]Channel),
		config:   cfg,
		logger:   logger,
		now:      time.Now,
	}
	for _, ch := range channels {
		if !ch.Configured() {
			continue
		}
		o.channels[ch.Name()] = ch
		o.ordered = append(o.ordered, ch.Name())
	}
	return o, nil
}

// Channels returns the configured channel names in registration order.
func (o *Orchestrator) Channels() []models.MFAChannel {
	return append([]models.MFAChannel(nil), o.ordered...)
}

// Channel returns the named channel if it is configured.
func (o *Orchestrator) Channel(name models.MFAChannel) (Channel, bool) {
	ch, ok := o.channels[name]
	return ch, ok
}

// Request issues a passcode on the given channel and dispatches it. If a
// live token exists and was dispatched within the resend delay, the request
// is refused with ErrMFAResendTooSoon and the caller is told when to retry.
// Returns the expiry of the active token.
func (o *Orchestrator) Request(ctx context.Context, channel models.MFAChannel) (time.Time, error) {
	ch, ok := o.channels[channel]
	if !ok {
		return time.Time{}, models.ErrMFANotConfigured
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	now := o.now()

	existing, err := o.store.GetToken(ctx, channel)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return time.Time{}, err
	}
	if existing != nil && !existing.Consumed && !existing.Expired(now) {
		if now.Sub(existing.LastResendAt) < o.config.ResendDelay {
			return existing.ExpiresAt, models.ErrMFAResendTooSoon
		}
	}

	code, err := ch.Issue()
	if err != nil {
		return time.Time{}, err
	}

	cipherText, nonce, err := o.cipher.Encrypt([]byte(code))
	if err != nil {
		return time.Time{}, err
	}

	token := &models.MFAToken{
		ID:           uuid.NewString(),
		Channel:      channel,
		CodeCipher:   cipherText,
		CodeNonce:    nonce,
		IssuedAt:     now,
		ExpiresAt:    now.Add(o.config.Timeout),
		LastResendAt: now,
	}
	if err := o.store.PutToken(ctx, token); err != nil {
		return time.Time{}, err
	}

	if err := ch.Dispatch(ctx, code); err != nil {
		// The token stays live: a later retry can validate against it even
		// though this delivery attempt failed.
		o.logger.Error("passcode dispatch failed",
			slog.String("channel", string(channel)),
			slog.Any("error", err))
		return token.ExpiresAt, fmt.Errorf("%w: %s", models.ErrMFADispatchFailed, channel)
	}

	o.logger.Info("passcode issued",
		slog.String("channel", string(channel)),
		slog.Time("expires_at", token.ExpiresAt))
	return token.ExpiresAt, nil
}

// Validate checks a submitted code on the given channel and consumes the
// stored token on success. A token is spent by exactly one successful
// validation.
func (o *Orchestrator) Validate(ctx context.Context, channel models.MFAChannel, code string) error {
	ch, ok := o.channels[channel]
	if !ok {
		return models.ErrMFANotConfigured
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	now := o.now()

	token, err := o.store.GetToken(ctx, channel)
	if errors.Is(err, models.ErrNotFound) {
		// The authenticator is stateless; a code can be valid with no
		// stored token. Record it consumed so the same code cannot be
		// replayed within its period.
		if validator, ok := ch.(codeValidator); ok && validator.ValidateCode(code) {
			return o.recordStatelessUse(ctx, validator, channel, code, now)
		}
		return models.ErrMFAInvalid
	}
	if err != nil {
		return err
	}

	if token.Consumed {
		return o.validateAfterConsume(ctx, ch, token, code, now)
	}
	if token.Expired(now) {
		return models.ErrMFAExpired
	}

	plaintext, err := o.cipher.Decrypt(token.CodeCipher, token.CodeNonce)
	if err != nil {
		return err
	}

	if subtle.ConstantTimeCompare(plaintext, []byte(code)) != 1 {
		// The stored TOTP code may have rolled over since issue; fall back
		// to direct validation with skew. The record is replaced with the
		// submitted code so that exact code cannot be replayed.
		validator, ok := ch.(codeValidator)
		if !ok || !validator.ValidateCode(code) {
			return models.ErrMFAInvalid
		}
		return o.recordStatelessUse(ctx, validator, channel, code, now)
	}

	if err := o.store.ConsumeToken(ctx, channel, token.ID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			// Another validation won the race.
			return models.ErrMFAInvalid
		}
		return err
	}

	o.logger.Info("passcode validated", slog.String("channel", string(channel)))
	return nil
}

// validateAfterConsume handles a submission when the channel's stored token
// is already spent. Stateless channels accept a fresh code that differs
// from the consumed one; everything else is a replay. Consumption is
// per-code, not per-channel.
func (o *Orchestrator) validateAfterConsume(ctx context.Context, ch Channel, token *models.MFAToken, code string, now time.Time) error {
	validator, ok := ch.(codeValidator)
	if !ok {
		return models.ErrMFAInvalid
	}

	if len(token.CodeCipher) > 0 {
		spent, err := o.cipher.Decrypt(token.CodeCipher, token.CodeNonce)
		if err != nil {
			return err
		}
		if subtle.ConstantTimeCompare(spent, []byte(code)) == 1 {
			return models.ErrMFAInvalid
		}
	}

	if !validator.ValidateCode(code) {
		return models.ErrMFAInvalid
	}
	return o.recordStatelessUse(ctx, validator, token.Channel, code, now)
}

// ValidateAny tries the submitted code against every configured channel.
// Used where the client supplies a code without naming its channel.
func (o *Orchestrator) ValidateAny(ctx context.Context, code string) error {
	var lastErr error = models.ErrMFAInvalid
	for _, name := range o.ordered {
		err := o.Validate(ctx, name, code)
		if err == nil {
			return nil
		}
		if !errors.Is(err, models.ErrMFAInvalid) && !errors.Is(err, models.ErrMFAExpired) {
			return err
		}
		lastErr = err
	}
	return lastErr
}

// recordStatelessUse stores the validated code as an already-consumed
// token, which blocks replaying that exact code for as long as the channel
// would still accept it.
func (o *Orchestrator) recordStatelessUse(ctx context.Context, validator codeValidator, channel models.MFAChannel, code string, now time.Time) error {
	cipherText, nonce, err := o.cipher.Encrypt([]byte(code))
	if err != nil {
		return err
	}

	expiresAt := now.Add(o.config.Timeout)
	if window := validator.ReplayWindow(); now.Add(window).Before(expiresAt) {
		expiresAt = now.Add(window)
	}

	token := &models.MFAToken{
		ID:           uuid.NewString(),
		Channel:      channel,
		CodeCipher:   cipherText,
		CodeNonce:    nonce,
		IssuedAt:     now,
		ExpiresAt:    expiresAt,
		LastResendAt: now,
		Consumed:     true,
	}
	if err := o.store.PutToken(ctx, token); err != nil {
		return err
	}
	o.logger.Info("passcode validated", slog.String("channel", string(channel)))
	return nil
}

// SweepExpired deletes expired tokens from the store.
func (o *Orchestrator) SweepExpired(ctx context.Context) (int64, error) {
	return o.store.DeleteExpiredTokens(ctx, o.now())
}

// SetClock overrides the orchestrator's time source. Test hook.
func (o *Orchestrator) SetClock(now func() time.Time) {
	o.now = now
}
