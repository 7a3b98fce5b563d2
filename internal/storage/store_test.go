package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wardenhq/warden/internal/database"
	"github.com/wardenhq/warden/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store, err := New(db, 3, testLogger())
	require.NoError(t, err)
	return store
}

func TestCounterRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// Unknown key yields a fresh zero counter.
	counter, err := store.GetCounter(ctx, "192.0.2.1")
	require.NoError(t, err)
	assert.Equal(t, "192.0.2.1", counter.Key)
	assert.Equal(t, 0, counter.AttemptCount)
	assert.Nil(t, counter.BlockedUntil)

	until := time.Now().Add(5 * time.Minute).Truncate(time.Second)
	require.NoError(t, store.PutCounter(ctx, "192.0.2.1", 4, &until))

	counter, err = store.GetCounter(ctx, "192.0.2.1")
	require.NoError(t, err)
	assert.Equal(t, 4, counter.AttemptCount)
	require.NotNil(t, counter.BlockedUntil)
	assert.True(t, counter.BlockedUntil.Equal(until))

	// Clearing the block leaves the count.
	require.NoError(t, store.PutCounter(ctx, "192.0.2.1", 4, nil))
	counter, err = store.GetCounter(ctx, "192.0.2.1")
	require.NoError(t, err)
	assert.Nil(t, counter.BlockedUntil)

	require.NoError(t, store.RemoveCounter(ctx, "192.0.2.1"))
	counter, err = store.GetCounter(ctx, "192.0.2.1")
	require.NoError(t, err)
	assert.Equal(t, 0, counter.AttemptCount)
}

func TestRemoveCounterMissingKeyIsNoError(t *testing.T) {
	store := newTestStore(t)
	assert.NoError(t, store.RemoveCounter(context.Background(), "never-seen"))
}

func TestTokenRoundTripAndConsume(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().Truncate(time.Second)

	_, err := store.GetToken(ctx, models.ChannelEmail)
	assert.ErrorIs(t, err, models.ErrNotFound)

	token := &models.MFAToken{
		ID:           "tok-1",
		Channel:      models.ChannelEmail,
		CodeCipher:   []byte{0x01, 0x02},
		CodeNonce:    []byte{0x03},
		IssuedAt:     now,
		ExpiresAt:    now.Add(5 * time.Minute),
		LastResendAt: now,
	}
	require.NoError(t, store.PutToken(ctx, token))

	got, err := store.GetToken(ctx, models.ChannelEmail)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", got.ID)
	assert.Equal(t, []byte{0x01, 0x02}, got.CodeCipher)
	assert.False(t, got.Consumed)

	require.NoError(t, store.ConsumeToken(ctx, models.ChannelEmail, "tok-1"))

	// Second consume loses: the flip already happened.
	err = store.ConsumeToken(ctx, models.ChannelEmail, "tok-1")
	assert.ErrorIs(t, err, models.ErrNotFound)

	got, err = store.GetToken(ctx, models.ChannelEmail)
	require.NoError(t, err)
	assert.True(t, got.Consumed)
}

func TestPutTokenReplacesPreviousForChannel(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	first := &models.MFAToken{
		ID: "tok-1", Channel: models.ChannelNtfy,
		CodeCipher: []byte{1}, CodeNonce: []byte{2},
		IssuedAt: now, ExpiresAt: now.Add(time.Minute), LastResendAt: now,
	}
	require.NoError(t, store.PutToken(ctx, first))

	second := &models.MFAToken{
		ID: "tok-2", Channel: models.ChannelNtfy,
		CodeCipher: []byte{3}, CodeNonce: []byte{4},
		IssuedAt: now, ExpiresAt: now.Add(time.Minute), LastResendAt: now,
	}
	require.NoError(t, store.PutToken(ctx, second))

	got, err := store.GetToken(ctx, models.ChannelNtfy)
	require.NoError(t, err)
	assert.Equal(t, "tok-2", got.ID)

	// The replaced token's id no longer consumes.
	err = store.ConsumeToken(ctx, models.ChannelNtfy, "tok-1")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestDeleteExpiredTokens(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	expired := &models.MFAToken{
		ID: "old", Channel: models.ChannelEmail,
		CodeCipher: []byte{1}, CodeNonce: []byte{2},
		IssuedAt: now.Add(-time.Hour), ExpiresAt: now.Add(-30 * time.Minute), LastResendAt: now.Add(-time.Hour),
	}
	live := &models.MFAToken{
		ID: "new", Channel: models.ChannelTelegram,
		CodeCipher: []byte{1}, CodeNonce: []byte{2},
		IssuedAt: now, ExpiresAt: now.Add(time.Hour), LastResendAt: now,
	}
	require.NoError(t, store.PutToken(ctx, expired))
	require.NoError(t, store.PutToken(ctx, live))

	deleted, err := store.DeleteExpiredTokens(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = store.GetToken(ctx, models.ChannelEmail)
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = store.GetToken(ctx, models.ChannelTelegram)
	assert.NoError(t, err)
}

func TestStoreRebuildsAfterTableDropped(t *testing.T) {
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store, err := New(db, 2, testLogger())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.PutCounter(ctx, "key", 1, nil))

	// Pull the table out from under the store.
	_, err = db.Exec(`DROP TABLE auth_failures`)
	require.NoError(t, err)

	var transitions []Transition
	store.Breaker().OnTransition(func(tr Transition) {
		transitions = append(transitions, tr)
	})

	// First failure stays below the threshold.
	err = store.PutCounter(ctx, "key", 2, nil)
	require.ErrorIs(t, err, models.ErrStorage)

	// Second failure trips the breaker, rebuilds, and the retry succeeds.
	require.NoError(t, store.PutCounter(ctx, "key", 2, nil))

	require.Len(t, transitions, 2)
	assert.Equal(t, BreakerOpen, transitions[0].To)
	assert.Equal(t, BreakerClosed, transitions[1].To)

	counter, err := store.GetCounter(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, 2, counter.AttemptCount)
	assert.NoError(t, store.Ping(ctx))
}
