package background

import (
	"context"
	"log/slog"
	"time"

	"github.com/wardenhq/warden/internal/auth"
	"github.com/wardenhq/warden/internal/mfa"
)

// Sweeper ages out in-memory state alongside the stores.
type Sweeper interface {
	SweepExpired() int
}

// CleanupManager periodically sweeps expired MFA tokens, monitor sessions,
// stream tokens and parked streaming runs.
type CleanupManager struct {
	orchestrator *mfa.Orchestrator
	sessions     *auth.SessionManager
	streamTokens *auth.StreamTokenManager
	pendingRuns  Sweeper
	logger       *slog.Logger
	interval     time.Duration
	stopCh       chan struct{}
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(
	orchestrator *mfa.Orchestrator,
	sessions *auth.SessionManager,
	streamTokens *auth.StreamTokenManager,
	pendingRuns Sweeper,
	logger *slog.Logger,
	interval time.Duration,
) *CleanupManager {
	return &CleanupManager{
		orchestrator: orchestrator,
		sessions:     sessions,
		streamTokens: streamTokens,
		pendingRuns:  pendingRuns,
		logger:       logger,
		interval:     interval,
		stopCh:       make(chan struct{}),
	}
}

// Start begins the periodic cleanup task
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	// Run immediately on startup
	cm.runCleanup(ctx)

	for {
		select {
		case <-ticker.C:
			cm.runCleanup(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

func (cm *CleanupManager) runCleanup(ctx context.Context) {
	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	tokensDeleted, err := cm.orchestrator.SweepExpired(cleanupCtx)
	if err != nil {
		cm.logger.Error("failed to sweep expired passcodes", slog.Any("error", err))
	}
	sessionsRemoved := cm.sessions.SweepExpired()
	streamTokensRemoved := cm.streamTokens.SweepExpired()
	pendingRemoved := 0
	if cm.pendingRuns != nil {
		pendingRemoved = cm.pendingRuns.SweepExpired()
	}

	if tokensDeleted > 0 || sessionsRemoved > 0 || streamTokensRemoved > 0 || pendingRemoved > 0 {
		cm.logger.Info("cleanup completed",
			slog.Int64("passcodes_deleted", tokensDeleted),
			slog.Int("sessions_removed", sessionsRemoved),
			slog.Int("stream_tokens_removed", streamTokensRemoved),
			slog.Int("pending_runs_removed", pendingRemoved))
	}
}

// Stop signals the cleanup manager to stop
func (cm *CleanupManager) Stop() {
	close(cm.stopCh)
}
