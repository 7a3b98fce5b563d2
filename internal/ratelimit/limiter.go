package ratelimit

import (
	"sync"
	"time"

	"github.com/wardenhq/warden/internal/config"
	"github.com/wardenhq/warden/internal/models"
)

// Limiter is a sliding-window rate limiter. Each key carries its own
// independently locked window of request timestamps, so concurrent checks
// for different keys never contend on a single global lock.
type Limiter struct {
	rules     []config.RateRule
	maxWindow time.Duration
	now       func() time.Time

	mu      sync.Mutex
	windows map[string]*window
}

type window struct {
	mu   sync.Mutex
	hits []time.Time
}

// New creates a limiter from the configured rules. With no rules every
// request is admitted.
func New(rules []config.RateRule) *Limiter {
	var maxWindow time.Duration
	for _, r := range rules {
		if r.Window > maxWindow {
			maxWindow = r.Window
		}
	}
	return &Limiter{
		rules:     rules,
		maxWindow: maxWindow,
		now:       time.Now,
		windows:   make(map[string]*window),
	}
}

// Admit checks key against every configured rule. The request timestamp is
// appended only when all rules pass; rejected requests leave the window
// untouched. Returns ErrRateLimited on rejection.
func (l *Limiter) Admit(key string) error {
	if len(l.rules) == 0 {
		return nil
	}

	w := l.window(key)
	now := l.now()

	w.mu.Lock()
	defer w.mu.Unlock()

	w.prune(now, l.maxWindow)

	for _, rule := range l.rules {
		cutoff := now.Add(-rule.Window)
		count := 0
		for _, hit := range w.hits {
			if hit.After(cutoff) {
				count++
			}
		}
		if count >= rule.MaxRequests {
			return models.ErrRateLimited
		}
	}

	w.hits = append(w.hits, now)
	return nil
}

func (l *Limiter) window(key string) *window {
	l.mu.Lock()
	defer l.mu.Unlock()
	w, ok := l.windows[key]
	if !ok {
		w = &window{}
		l.windows[key] = w
	}
	return w
}

// prune drops timestamps that fell out of the widest rule window.
func (w *window) prune(now time.Time, maxWindow time.Duration) {
	cutoff := now.Add(-maxWindow)
	kept := w.hits[:0]
	for _, hit := range w.hits {
		if hit.After(cutoff) {
			kept = append(kept, hit)
		}
	}
	w.hits = kept
}

// SetClock overrides the limiter's time source. Test hook.
func (l *Limiter) SetClock(now func() time.Time) {
	l.now = now
}
