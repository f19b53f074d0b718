package background

import (
	"context"
	"log/slog"
	"time"
)

const jobTimeout = 30 * time.Second

// SessionSweeper is the session operation the sweeper drives.
type SessionSweeper interface {
	SweepExpired(ctx context.Context) (int64, error)
}

// MetricPruner deletes samples older than a retention window.
type MetricPruner interface {
	Prune(ctx context.Context, retention time.Duration) (int64, error)
}

// CleanupManager periodically marks expired sessions and prunes old metric
// samples.
type CleanupManager struct {
	sessions  SessionSweeper
	metrics   MetricPruner
	retention time.Duration
	logger    *slog.Logger
	interval  time.Duration
	stopCh    chan struct{}
}

// NewCleanupManager creates a new cleanup manager. metrics may be nil, in
// which case only sessions are swept.
func NewCleanupManager(
	sessions SessionSweeper,
	metrics MetricPruner,
	retention time.Duration,
	logger *slog.Logger,
	interval time.Duration,
) *CleanupManager {
	return &CleanupManager{
		sessions:  sessions,
		metrics:   metrics,
		retention: retention,
		logger:    logger,
		interval:  interval,
		stopCh:    make(chan struct{}),
	}
}

// Start runs one pass immediately, then one per interval until Stop is
// called or ctx is cancelled.
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

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
	cleanupCtx, cancel := context.WithTimeout(ctx, jobTimeout)
	defer cancel()

	swept, err := cm.sessions.SweepExpired(cleanupCtx)
	if err != nil {
		cm.logger.Error("failed to sweep expired sessions", slog.Any("error", err))
	} else if swept > 0 {
		cm.logger.Info("expired sessions swept", slog.Int64("sessions", swept))
	}

	if cm.metrics == nil || cm.retention <= 0 {
		return
	}
	pruned, err := cm.metrics.Prune(cleanupCtx, cm.retention)
	if err != nil {
		cm.logger.Error("failed to prune metric samples", slog.Any("error", err))
		return
	}
	if pruned > 0 {
		cm.logger.Info("old metric samples pruned", slog.Int64("rows_deleted", pruned))
	}
}

// Stop signals the cleanup manager to stop
func (cm *CleanupManager) Stop() {
	close(cm.stopCh)
}
