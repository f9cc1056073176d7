package accounting

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/finplat/backend/internal/domain/accounting"
	"github.com/finplat/backend/internal/infrastructure/config"
	"github.com/finplat/backend/internal/infrastructure/queue"
)

// RetentionStats summarizes one retention sweep.
type RetentionStats struct {
	LogsArchived  int
	ErrorsDeleted int64
	JobsRemoved   int64
}

// RetentionService sweeps expired audit/sync rows into the archive store,
// deletes resolved errors past retention and prunes terminal queue jobs. It
// runs on a fixed interval until stopped.
type RetentionService struct {
	cfg       config.RetentionConfig
	audit     *AuditService
	errorRepo accounting.SyncErrorRepository
	jobs      queue.JobQueue
	logger    *zap.Logger

	mu        sync.Mutex
	isRunning bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewRetentionService creates the sweeper. The job queue is optional.
func NewRetentionService(
	cfg config.RetentionConfig,
	audit *AuditService,
	errorRepo accounting.SyncErrorRepository,
	jobs queue.JobQueue,
	logger *zap.Logger,
) *RetentionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Days <= 0 {
		cfg.Days = 365
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 24 * time.Hour
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	return &RetentionService{
		cfg:       cfg,
		audit:     audit,
		errorRepo: errorRepo,
		jobs:      jobs,
		logger:    logger,
	}
}

// Start launches the periodic sweep loop. No-op when retention is disabled
// or the loop is already running.
func (r *RetentionService) Start(ctx context.Context) {
	if !r.cfg.Enabled {
		r.logger.Info("Retention sweeps disabled")
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.isRunning {
		return
	}
	r.isRunning = true

	loopCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.wg.Add(1)
	go r.run(loopCtx)

	r.logger.Info("Retention sweeper started",
		zap.Int("retention_days", r.cfg.Days),
		zap.Duration("sweep_interval", r.cfg.SweepInterval),
	)
}

// Stop halts the sweep loop and waits for an in-flight sweep to finish.
func (r *RetentionService) Stop() {
	r.mu.Lock()
	if !r.isRunning {
		r.mu.Unlock()
		return
	}
	r.isRunning = false
	cancel := r.cancel
	r.mu.Unlock()

	cancel()
	r.wg.Wait()
	r.logger.Info("Retention sweeper stopped")
}

func (r *RetentionService) run(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats, err := r.RunOnce(ctx)
			if err != nil {
				r.logger.Error("Retention sweep failed", zap.Error(err))
				continue
			}
			r.logger.Info("Retention sweep finished",
				zap.Int("logs_archived", stats.LogsArchived),
				zap.Int64("errors_deleted", stats.ErrorsDeleted),
				zap.Int64("jobs_removed", stats.JobsRemoved),
			)
		}
	}
}

// RunOnce performs a full sweep: archive expired audit rows batch by batch
// until none remain, delete resolved errors past retention, prune old
// terminal jobs.
func (r *RetentionService) RunOnce(ctx context.Context) (RetentionStats, error) {
	var stats RetentionStats
	retention := time.Duration(r.cfg.Days) * 24 * time.Hour
	cutoff := time.Now().Add(-retention)

	for {
		removed, err := r.audit.ArchiveExpired(ctx, cutoff, r.cfg.BatchSize)
		if err != nil {
			return stats, err
		}
		if removed == 0 {
			break
		}
		stats.LogsArchived += removed
	}

	deleted, err := r.errorRepo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return stats, err
	}
	stats.ErrorsDeleted = deleted

	if r.jobs != nil {
		removed, err := r.jobs.CleanOldJobs(ctx, retention)
		if err != nil {
			return stats, err
		}
		stats.JobsRemoved = removed
	}

	return stats, nil
}
