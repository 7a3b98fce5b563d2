package auth

import (
	"log/slog"
	"sync"
	"time"

	"github.com/wardenhq/warden/internal/models"
)

const streamTokenBytes = 32

// StreamTokenManager issues single-use tokens that authorize exactly one
// streaming connection to the remote-execution log channel. Consume is
// atomic: under concurrent redemption of the same token, exactly one caller
// wins and the rest see ErrTokenAlreadyUsed.
type StreamTokenManager struct {
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time

	mu     sync.Mutex
	tokens map[string]*streamToken
}

type streamToken struct {
	ref       string
	used      bool
	expiresAt time.Time
}

// NewStreamTokenManager creates a manager whose tokens expire after ttl if
// never consumed.
func NewStreamTokenManager(ttl time.Duration, logger *slog.Logger) *StreamTokenManager {
	return &StreamTokenManager{
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
		tokens: make(map[string]*streamToken),
	}
}

// Issue creates a token bound to ref (a session id or pending-run id).
func (m *StreamTokenManager) Issue(ref string) (string, error) {
	token, err := GenerateKey(streamTokenBytes)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	m.tokens[token] = &streamToken{
		ref:       ref,
		expiresAt: m.now().Add(m.ttl),
	}
	m.mu.Unlock()
	return token, nil
}

// Consume redeems a token and returns its bound reference. The
// check-and-mark happens inside a single critical section, so only one
// concurrent caller can observe the used=false -> true transition.
func (m *StreamTokenManager) Consume(token string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.tokens[token]
	if !ok {
		return "", models.ErrTokenUnknown
	}
	if m.now().After(entry.expiresAt) {
		delete(m.tokens, token)
		return "", models.ErrTokenUnknown
	}
	if entry.used {
		return "", models.ErrTokenAlreadyUsed
	}
	entry.used = true
	return entry.ref, nil
}

// TTL returns the lifetime of issued tokens.
func (m *StreamTokenManager) TTL() time.Duration {
	return m.ttl
}

// Release drops a token's state entirely. Called when a streaming client
// aborts, so the token is not left permanently consumed-but-orphaned.
func (m *StreamTokenManager) Release(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, token)
}

// SweepExpired removes tokens past their expiry.
func (m *StreamTokenManager) SweepExpired() int {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for token, entry := range m.tokens {
		if now.After(entry.expiresAt) {
			delete(m.tokens, token)
			removed++
		}
	}
	return removed
}

// SetClock overrides the manager's time source. Test hook.
func (m *StreamTokenManager) SetClock(now func() time.Time) {
	m.now = now
}
