package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wardenhq/warden/internal/config"
	"github.com/wardenhq/warden/internal/models"
	"github.com/wardenhq/warden/internal/ratelimit"
)

const (
	testAPIKey    = "test-api-key-0123456789abcdef"
	testAPISecret = "test-api-secret-0123456789abcdef"
)

func newTestValidator(t *testing.T, cfg ValidatorConfig) *Validator {
	t.Helper()

	guard := NewGuard(newTestStore(t), testLockoutConfig(), testLogger())
	limiter := ratelimit.New([]config.RateRule{{MaxRequests: 100, Window: time.Minute}})
	return NewValidator(guard, limiter, cfg, testLogger())
}

func fullConfig() ValidatorConfig {
	return ValidatorConfig{
		APIKey:          testAPIKey,
		APISecret:       testAPISecret,
		RemoteExecution: true,
		MFAChannels:     2,
	}
}

func TestLevel1AcceptsCorrectKey(t *testing.T) {
	v := newTestValidator(t, fullConfig())
	assert.NoError(t, v.Level1(context.Background(), "1.2.3.4", "1.2.3.4:/get-all", testAPIKey))
}

func TestLevel1RejectsWrongKey(t *testing.T) {
	v := newTestValidator(t, fullConfig())
	err := v.Level1(context.Background(), "1.2.3.4", "1.2.3.4:/get-all", "wrong-key")
	assert.ErrorIs(t, err, models.ErrAuthFailed)
}

func TestLevel1UnwrapsEscapedKey(t *testing.T) {
	v := newTestValidator(t, ValidatorConfig{APIKey: `\key-material`})

	// Some clients deliver the key shell-escaped.
	assert.NoError(t, v.Level1(context.Background(), "1.2.3.4", "rk", `\\key-material`))
}

func TestLevel1FailuresEscalateToLockout(t *testing.T) {
	v := newTestValidator(t, fullConfig())
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		err := v.Level1(ctx, "1.2.3.4", "1.2.3.4:/get-all", "wrong-key")
		assert.ErrorIs(t, err, models.ErrAuthFailed)
	}

	// The fourth failure imposed a lockout: even the correct key is
	// refused now, with a generic blocked signal.
	err := v.Level1(ctx, "1.2.3.4", "1.2.3.4:/get-all", testAPIKey)
	assert.ErrorIs(t, err, models.ErrLocked)
}

func TestLevel1SuccessResetsFailures(t *testing.T) {
	v := newTestValidator(t, fullConfig())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.Error(t, v.Level1(ctx, "1.2.3.4", "rk", "wrong-key"))
	}
	require.NoError(t, v.Level1(ctx, "1.2.3.4", "rk", testAPIKey))

	// The slate is clean: three more free attempts before lockout.
	for i := 0; i < 3; i++ {
		require.ErrorIs(t, v.Level1(ctx, "1.2.3.4", "rk", "wrong-key"), models.ErrAuthFailed)
	}
	assert.NoError(t, v.Level1(ctx, "1.2.3.4", "rk", testAPIKey))
}

func TestLevel1RateLimited(t *testing.T) {
	guard := NewGuard(newTestStore(t), testLockoutConfig(), testLogger())
	limiter := ratelimit.New([]config.RateRule{{MaxRequests: 2, Window: time.Minute}})
	v := NewValidator(guard, limiter, fullConfig(), testLogger())
	ctx := context.Background()

	require.NoError(t, v.Level1(ctx, "1.2.3.4", "rk", testAPIKey))
	require.NoError(t, v.Level1(ctx, "1.2.3.4", "rk", testAPIKey))
	assert.ErrorIs(t, v.Level1(ctx, "1.2.3.4", "rk", testAPIKey), models.ErrRateLimited)
}

func TestLevel2AcceptsKeyAndSecret(t *testing.T) {
	v := newTestValidator(t, fullConfig())
	assert.NoError(t, v.Level2(context.Background(), "1.2.3.4", "rk", testAPIKey, testAPISecret))
}

func TestLevel2RejectsMissingOrWrongSecret(t *testing.T) {
	v := newTestValidator(t, fullConfig())
	ctx := context.Background()

	assert.ErrorIs(t, v.Level2(ctx, "1.2.3.4", "rk", testAPIKey, ""), models.ErrAuthFailed)
	assert.ErrorIs(t, v.Level2(ctx, "1.2.3.4", "rk", testAPIKey, "wrong-secret"), models.ErrAuthFailed)
}

func TestLevel2WrongSecretCountsTowardLockout(t *testing.T) {
	v := newTestValidator(t, fullConfig())
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		require.Error(t, v.Level2(ctx, "1.2.3.4", "rk", testAPIKey, "wrong-secret"))
	}
	assert.ErrorIs(t, v.Level2(ctx, "1.2.3.4", "rk", testAPIKey, testAPISecret), models.ErrLocked)
}

func TestLevel2SuccessResetsFailures(t *testing.T) {
	v := newTestValidator(t, fullConfig())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.ErrorIs(t, v.Level2(ctx, "1.2.3.4", "rk", testAPIKey, "wrong-secret"), models.ErrAuthFailed)
	}
	require.NoError(t, v.Level2(ctx, "1.2.3.4", "rk", testAPIKey, testAPISecret))

	// The slate is clean: three more free attempts before lockout.
	for i := 0; i < 3; i++ {
		require.ErrorIs(t, v.Level2(ctx, "1.2.3.4", "rk", testAPIKey, "wrong-secret"), models.ErrAuthFailed)
	}
	assert.NoError(t, v.Level2(ctx, "1.2.3.4", "rk", testAPIKey, testAPISecret))
}

func TestLevel2KeyAndSecretFailuresShareTheCounter(t *testing.T) {
	v := newTestValidator(t, fullConfig())
	ctx := context.Background()

	// A correct key must not wipe earlier failures before the secret has
	// also been checked.
	require.ErrorIs(t, v.Level2(ctx, "1.2.3.4", "rk", "wrong-key", testAPISecret), models.ErrAuthFailed)
	for i := 0; i < 3; i++ {
		require.ErrorIs(t, v.Level2(ctx, "1.2.3.4", "rk", testAPIKey, "wrong-secret"), models.ErrAuthFailed)
	}
	assert.ErrorIs(t, v.Level2(ctx, "1.2.3.4", "rk", testAPIKey, testAPISecret), models.ErrLocked)
}

func TestRemoteExecutionForceDisabled(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ValidatorConfig
		enabled bool
	}{
		{"fully configured", fullConfig(), true},
		{"no MFA channels", ValidatorConfig{APIKey: testAPIKey, APISecret: testAPISecret, RemoteExecution: true}, false},
		{"no secret", ValidatorConfig{APIKey: testAPIKey, RemoteExecution: true, MFAChannels: 2}, false},
		{"not requested", ValidatorConfig{APIKey: testAPIKey, APISecret: testAPISecret, MFAChannels: 2}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newTestValidator(t, tt.cfg)
			assert.Equal(t, tt.enabled, v.RemoteExecutionEnabled())
		})
	}
}

func TestLevel2RefusedWhenRemoteExecutionDisabled(t *testing.T) {
	v := newTestValidator(t, ValidatorConfig{
		APIKey:          testAPIKey,
		APISecret:       testAPISecret,
		RemoteExecution: true,
		MFAChannels:     0,
	})

	err := v.Level2(context.Background(), "1.2.3.4", "rk", testAPIKey, testAPISecret)
	assert.ErrorIs(t, err, models.ErrRemoteExecDisabled)
}

func TestUnescapeToken(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain-token", "plain-token"},
		{`abc`, "abc"},
		{`\\escaped`, `\escaped`},
		{`\qinvalid-escape`, `\qinvalid-escape`},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, unescapeToken(tt.in))
	}
}

func TestSecureCompare(t *testing.T) {
	assert.True(t, secureCompare("same", "same"))
	assert.False(t, secureCompare("same", "different"))
	assert.False(t, secureCompare("", "x"))
	assert.True(t, secureCompare("", ""))
}
