package background

import (
	"context"
	"log/slog"
	"time"

	"github.com/wardenhq/warden/internal/storage"
)

// StoreWatcher issues a periodic no-op read against the store. A single
// failure is left to the breaker; what the watcher catches is the store
// staying unreachable after a rebuild, which it reports through onFatal
// instead of letting the process limp along silently.
type StoreWatcher struct {
	store    *storage.Store
	logger   *slog.Logger
	interval time.Duration
	onFatal  func(error)
	stopCh   chan struct{}
}

func NewStoreWatcher(store *storage.Store, interval time.Duration, onFatal func(error), logger *slog.Logger) *StoreWatcher {
	return &StoreWatcher{
		store:    store,
		logger:   logger,
		interval: interval,
		onFatal:  onFatal,
		stopCh:   make(chan struct{}),
	}
}

// Start runs the watch loop until stopped.
func (w *StoreWatcher) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	consecutiveFailures := 0
	for {
		select {
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			err := w.store.Ping(pingCtx)
			cancel()

			if err == nil {
				consecutiveFailures = 0
				continue
			}

			consecutiveFailures++
			w.logger.Error("store watch ping failed",
				slog.Int("consecutive_failures", consecutiveFailures),
				slog.Any("error", err))

			// Ping already went through the breaker, so a failure here
			// means a rebuild was attempted and the store is still down.
			if consecutiveFailures >= 2 {
				w.onFatal(err)
				return
			}
		case <-w.stopCh:
			w.logger.Info("store watcher stopped")
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop signals the watcher to stop.
func (w *StoreWatcher) Stop() {
	close(w.stopCh)
}
