package auth

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wardenhq/warden/internal/models"
)

func newTestStreamTokens(t *testing.T) (*StreamTokenManager, *time.Time) {
	t.Helper()

	m := NewStreamTokenManager(2*time.Minute, testLogger())
	current := time.Now()
	m.SetClock(func() time.Time { return current })
	return m, &current
}

func TestStreamTokenIssueAndConsume(t *testing.T) {
	m, _ := newTestStreamTokens(t)

	token, err := m.Issue("run-42")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	ref, err := m.Consume(token)
	require.NoError(t, err)
	assert.Equal(t, "run-42", ref)
}

func TestStreamTokenSecondConsumeFails(t *testing.T) {
	m, _ := newTestStreamTokens(t)

	token, err := m.Issue("run-42")
	require.NoError(t, err)

	_, err = m.Consume(token)
	require.NoError(t, err)

	_, err = m.Consume(token)
	assert.ErrorIs(t, err, models.ErrTokenAlreadyUsed)
}

func TestStreamTokenUnknown(t *testing.T) {
	m, _ := newTestStreamTokens(t)

	_, err := m.Consume("never-issued")
	assert.ErrorIs(t, err, models.ErrTokenUnknown)
}

func TestStreamTokenExpires(t *testing.T) {
	m, current := newTestStreamTokens(t)

	token, err := m.Issue("run-42")
	require.NoError(t, err)

	*current = current.Add(3 * time.Minute)
	_, err = m.Consume(token)
	assert.ErrorIs(t, err, models.ErrTokenUnknown)
}

func TestStreamTokenRelease(t *testing.T) {
	m, _ := newTestStreamTokens(t)

	token, err := m.Issue("run-42")
	require.NoError(t, err)

	_, err = m.Consume(token)
	require.NoError(t, err)

	// Release drops the entry; the token reads as unknown afterwards.
	m.Release(token)
	_, err = m.Consume(token)
	assert.ErrorIs(t, err, models.ErrTokenUnknown)
}

func TestStreamTokenExactlyOneWinner(t *testing.T) {
	m, _ := newTestStreamTokens(t)

	token, err := m.Issue("run-42")
	require.NoError(t, err)

	const contenders = 32
	var wg sync.WaitGroup
	results := make(chan error, contenders)

	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Consume(token)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	winners := 0
	for err := range results {
		if err == nil {
			winners++
		} else {
			assert.ErrorIs(t, err, models.ErrTokenAlreadyUsed)
		}
	}
	assert.Equal(t, 1, winners)
}

func TestStreamTokenSweepExpired(t *testing.T) {
	m, current := newTestStreamTokens(t)

	_, err := m.Issue("old")
	require.NoError(t, err)

	*current = current.Add(3 * time.Minute)
	live, err := m.Issue("new")
	require.NoError(t, err)

	assert.Equal(t, 1, m.SweepExpired())

	_, err = m.Consume(live)
	assert.NoError(t, err)
}

func TestGenerateKeyIsUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		key, err := GenerateKey(32)
		require.NoError(t, err)
		assert.False(t, seen[key])
		seen[key] = true
	}
}
