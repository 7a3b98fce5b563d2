package handlers

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/wardenhq/warden/internal/auth"
	"github.com/wardenhq/warden/internal/config"
	"github.com/wardenhq/warden/internal/database"
	"github.com/wardenhq/warden/internal/mfa"
	"github.com/wardenhq/warden/internal/models"
	"github.com/wardenhq/warden/internal/ratelimit"
	"github.com/wardenhq/warden/internal/storage"
)

const (
	testAPIKey    = "test-api-key-0123456789abcdef"
	testAPISecret = "test-api-secret-0123456789abcdef"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) *storage.Store {
	t.Helper()

	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store, err := storage.New(db, 3, testLogger())
	require.NoError(t, err)
	return store
}

// stubChannel delivers codes into memory for handler tests.
type stubChannel struct {
	name       models.MFAChannel
	code       string
	dispatched []string
}

func (s *stubChannel) Name() models.MFAChannel { return s.name }
func (s *stubChannel) Configured() bool        { return true }
func (s *stubChannel) Issue() (string, error)  { return s.code, nil }
func (s *stubChannel) Dispatch(ctx context.Context, code string) error {
	s.dispatched = append(s.dispatched, code)
	return nil
}

func newTestOrchestrator(t *testing.T, store *storage.Store, channels ...mfa.Channel) *mfa.Orchestrator {
	t.Helper()

	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	o, err := mfa.NewOrchestrator(store, key, channels, mfa.OrchestratorConfig{
		Timeout:     5 * time.Minute,
		ResendDelay: 2 * time.Minute,
	}, testLogger())
	require.NoError(t, err)
	return o
}

func newTestValidator(t *testing.T, store *storage.Store, mfaChannels int) *auth.Validator {
	t.Helper()

	guard := auth.NewGuard(store, config.LockoutConfig{
		FreeAttempts:   3,
		BaseLockout:    5 * time.Minute,
		MaxLockout:     24 * time.Hour,
		LongBlockAfter: 10,
		LongBlock:      720 * time.Hour,
	}, testLogger())
	limiter := ratelimit.New([]config.RateRule{{MaxRequests: 100, Window: time.Minute}})

	return auth.NewValidator(guard, limiter, auth.ValidatorConfig{
		APIKey:          testAPIKey,
		APISecret:       testAPISecret,
		RemoteExecution: true,
		MFAChannels:     mfaChannels,
	}, testLogger())
}
