package storage

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/wardenhq/warden/internal/models"
)

// BreakerState describes the breaker's position in its
// Closed -> Open -> Closed cycle.
type BreakerState int

const (
	// BreakerClosed is the normal state: operations pass straight through.
	BreakerClosed BreakerState = iota
	// BreakerOpen means the error threshold was hit and a table rebuild
	// is in progress.
	BreakerOpen
)

func (s BreakerState) String() string {
	if s == BreakerOpen {
		return "open"
	}
	return "closed"
}

// Transition is emitted on every breaker state change, mainly so tests can
// observe the rebuild cycle.
type Transition struct {
	From              BreakerState
	To                BreakerState
	ConsecutiveErrors int
}

// Breaker converts repeated storage failures into a bounded self-healing
// event: when threshold consecutive errors accumulate, the backing tables
// are dropped and recreated and the failed operation retried exactly once.
type Breaker struct {
	threshold int
	logger    *slog.Logger

	mu                sync.Mutex
	state             BreakerState
	consecutiveErrors int
	onTransition      func(Transition)
}

// NewBreaker creates a breaker that trips after threshold consecutive errors.
func NewBreaker(threshold int, logger *slog.Logger) *Breaker {
	return &Breaker{
		threshold: threshold,
		logger:    logger,
	}
}

// OnTransition registers a hook invoked on every state change.
func (b *Breaker) OnTransition(fn func(Transition)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onTransition = fn
}

// ConsecutiveErrors returns the current error streak.
func (b *Breaker) ConsecutiveErrors() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.consecutiveErrors
}

// State returns the breaker's current state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Execute runs op through the breaker. A nil result (or a not-found result,
// which is an answer rather than a failure) resets the error streak. A
// storage error increments it; once the streak reaches the threshold the
// breaker opens, runs rebuild, closes, and retries op once. If the retry or
// the rebuild fails, the original error is surfaced as a storage failure.
func (b *Breaker) Execute(op func() error, rebuild func() error) error {
	err := op()
	if err == nil || errors.Is(err, models.ErrNotFound) {
		b.recordSuccess()
		return err
	}

	streak := b.recordFailure()
	if streak < b.threshold {
		b.logger.Warn("storage operation failed",
			slog.Int("consecutive_errors", streak),
			slog.Any("error", err))
		return fmt.Errorf("%w: %v", models.ErrStorage, err)
	}

	b.transition(BreakerOpen, streak)
	b.logger.Warn("storage error threshold reached, rebuilding tables",
		slog.Int("consecutive_errors", streak),
		slog.Any("error", err))

	if rerr := rebuild(); rerr != nil {
		b.logger.Error("table rebuild failed", slog.Any("error", rerr))
		return fmt.Errorf("%w: %v", models.ErrStorage, err)
	}

	b.transition(BreakerClosed, streak)

	if retryErr := op(); retryErr != nil && !errors.Is(retryErr, models.ErrNotFound) {
		b.logger.Error("storage operation failed after rebuild", slog.Any("error", retryErr))
		return fmt.Errorf("%w: %v", models.ErrStorage, err)
	}
	b.recordSuccess()
	return nil
}

func (b *Breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutiveErrors = 0
}

func (b *Breaker) recordFailure() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutiveErrors++
	return b.consecutiveErrors
}

func (b *Breaker) transition(to BreakerState, streak int) {
	b.mu.Lock()
	from := b.state
	b.state = to
	if to == BreakerClosed {
		b.consecutiveErrors = 0
	}
	hook := b.onTransition
	b.mu.Unlock()

	if hook != nil {
		hook(Transition{From: from, To: to, ConsecutiveErrors: streak})
	}
}
