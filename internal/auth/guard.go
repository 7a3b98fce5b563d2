package auth

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/wardenhq/warden/internal/config"
	"github.com/wardenhq/warden/internal/models"
	"github.com/wardenhq/warden/internal/storage"
)

// Guard enforces escalating brute-force lockouts on top of the counter
// store. Counter mutations are read-modify-write, serialized per key so
// concurrent failures from the same client never lose updates.
type Guard struct {
	store  *storage.Store
	config config.LockoutConfig
	logger *slog.Logger
	now    func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewGuard creates a guard over the given counter store.
func NewGuard(store *storage.Store, cfg config.LockoutConfig, logger *slog.Logger) *Guard {
	return &Guard{
		store:  store,
		config: cfg,
		logger: logger,
		now:    time.Now,
		locks:  make(map[string]*sync.Mutex),
	}
}

// Check reports whether key is currently allowed to attempt authentication.
// A blocked key gets ErrLocked, which callers must render as a generic
// authentication failure: remaining time, attempt counts, and key existence
// are never disclosed.
func (g *Guard) Check(ctx context.Context, key string) error {
	counter, err := g.store.GetCounter(ctx, key)
	if err != nil {
		return err
	}
	if counter.BlockedUntil != nil && g.now().Before(*counter.BlockedUntil) {
		g.logger.Warn("blocked key attempted authentication",
			slog.String("key", key),
			slog.Time("blocked_until", *counter.BlockedUntil))
		return models.ErrLocked
	}
	return nil
}

// RecordFailure increments the failure counter for key and derives a new
// lockout window from the total attempt count.
func (g *Guard) RecordFailure(ctx context.Context, key string) error {
	lock := g.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	counter, err := g.store.GetCounter(ctx, key)
	if err != nil {
		return err
	}

	attempts := counter.AttemptCount + 1
	g.logger.Warn("failed auth attempt",
		slog.String("key", key),
		slog.Int("attempt", attempts))

	var blockedUntil *time.Time
	if duration := g.lockoutFor(attempts); duration > 0 {
		until := g.now().Add(duration)
		blockedUntil = &until
		g.logger.Warn("key locked out",
			slog.String("key", key),
			slog.Duration("duration", duration),
			slog.Time("blocked_until", until))
	}

	return g.store.PutCounter(ctx, key, attempts, blockedUntil)
}

// RecordSuccess clears the failure counter for key.
func (g *Guard) RecordSuccess(ctx context.Context, key string) error {
	lock := g.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	return g.store.RemoveCounter(ctx, key)
}

// lockoutFor derives the lockout duration for a given attempt count.
// The first FreeAttempts failures carry no lockout; from there the duration
// starts at BaseLockout and doubles per failure, capped at MaxLockout.
// At LongBlockAfter failures the key gets the terminal LongBlock.
func (g *Guard) lockoutFor(attempts int) time.Duration {
	if attempts <= g.config.FreeAttempts {
		return 0
	}
	if g.config.LongBlockAfter > 0 && attempts >= g.config.LongBlockAfter {
		return g.config.LongBlock
	}

	duration := g.config.BaseLockout
	for i := g.config.FreeAttempts + 1; i < attempts; i++ {
		duration *= 2
		if duration >= g.config.MaxLockout {
			return g.config.MaxLockout
		}
	}
	if duration > g.config.MaxLockout {
		return g.config.MaxLockout
	}
	return duration
}

func (g *Guard) keyLock(key string) *sync.Mutex {
	g.mu.Lock()
	defer g.mu.Unlock()
	lock, ok := g.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		g.locks[key] = lock
	}
	return lock
}

// SetClock overrides the guard's time source. Test hook.
func (g *Guard) SetClock(now func() time.Time) {
	g.now = now
}
