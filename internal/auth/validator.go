package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"log/slog"
	"strconv"
	"strings"

	"github.com/wardenhq/warden/internal/models"
	"github.com/wardenhq/warden/internal/ratelimit"
)

// ValidatorConfig holds the credentials and capability switches checked at
// validator construction.
type ValidatorConfig struct {
	APIKey          string
	APISecret       string
	RemoteExecution bool
	MFAChannels     int
}

// Validator performs the layered credential checks in front of every
// handler. Level 1 validates the bearer API key; level 2 additionally
// validates the out-of-band API secret for elevated endpoints. Both layers
// report to the brute-force guard and consult the rate limiter, and both
// fail with the same constant-shape error so the reason is never an oracle.
type Validator struct {
	guard   *Guard
	limiter *ratelimit.Limiter
	config  ValidatorConfig
	logger  *slog.Logger
}

// NewValidator wires the validator. Remote execution is force-disabled when
// no MFA channel is configured, regardless of other settings.
func NewValidator(guard *Guard, limiter *ratelimit.Limiter, cfg ValidatorConfig, logger *slog.Logger) *Validator {
	v := &Validator{
		guard:   guard,
		limiter: limiter,
		config:  cfg,
		logger:  logger,
	}
	if cfg.RemoteExecution && cfg.MFAChannels == 0 {
		logger.Warn("remote execution requested but no MFA channel is configured, forcing it off")
	}
	return v
}

// RemoteExecutionEnabled derives the remote-execution capability. It is
// re-evaluated on every elevated request, not cached from construction.
func (v *Validator) RemoteExecutionEnabled() bool {
	return v.config.RemoteExecution && v.config.APISecret != "" && v.config.MFAChannels > 0
}

// Level1 validates the bearer API key for clientKey. rateKey scopes the
// sliding-window admission (typically clientIP:path).
func (v *Validator) Level1(ctx context.Context, clientKey, rateKey, bearer string) error {
	if err := v.checkKey(ctx, clientKey, rateKey, bearer); err != nil {
		return err
	}
	v.recordSuccess(ctx, clientKey)
	return nil
}

// Level2 validates the bearer API key plus the out-of-band API secret.
// Only endpoints enabling remote execution or file transfer use it.
// Success is recorded only after every layer passes, so wrong-secret
// attempts keep escalating the same lockout counter as wrong-key ones.
func (v *Validator) Level2(ctx context.Context, clientKey, rateKey, bearer, apiSecret string) error {
	if err := v.checkKey(ctx, clientKey, rateKey, bearer); err != nil {
		return err
	}
	if !v.RemoteExecutionEnabled() {
		return models.ErrRemoteExecDisabled
	}

	if apiSecret == "" || !secureCompare(apiSecret, v.config.APISecret) {
		if err := v.guard.RecordFailure(ctx, clientKey); err != nil {
			v.logger.Error("failed to record auth failure", slog.Any("error", err))
		}
		return models.ErrAuthFailed
	}
	v.recordSuccess(ctx, clientKey)
	return nil
}

// checkKey admits the request and validates the bearer API key. It records
// failures but never success; the caller may have more layers to check.
func (v *Validator) checkKey(ctx context.Context, clientKey, rateKey, bearer string) error {
	if err := v.limiter.Admit(rateKey); err != nil {
		v.logger.Warn("rate limited", slog.String("key", rateKey))
		return err
	}
	if err := v.guard.Check(ctx, clientKey); err != nil {
		return err
	}

	if !secureCompare(unescapeToken(bearer), v.config.APIKey) {
		if err := v.guard.RecordFailure(ctx, clientKey); err != nil {
			v.logger.Error("failed to record auth failure", slog.Any("error", err))
		}
		return models.ErrAuthFailed
	}
	return nil
}

func (v *Validator) recordSuccess(ctx context.Context, clientKey string) {
	if err := v.guard.RecordSuccess(ctx, clientKey); err != nil {
		v.logger.Error("failed to record auth success", slog.Any("error", err))
	}
}

// unescapeToken unwraps credentials that arrive with shell-escaped
// backslashes, as some clients send them.
func unescapeToken(token string) string {
	if !strings.HasPrefix(token, `\`) {
		return token
	}
	if unquoted, err := strconv.Unquote(`"` + token + `"`); err == nil {
		return unquoted
	}
	return token
}

// secureCompare does a constant-time equality check. Hashing first makes
// the comparison independent of input length.
func secureCompare(a, b string) bool {
	ha := sha256.Sum256([]byte(a))
	hb := sha256.Sum256([]byte(b))
	return subtle.ConstantTimeCompare(ha[:], hb[:]) == 1
}
