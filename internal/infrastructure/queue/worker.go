package queue

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/finplat/backend/internal/infrastructure/resilience"
)

// ---------------------------------------------------------------------------
// Worker Pool
// ---------------------------------------------------------------------------

// JobHandler executes a dequeued job. Handlers must be safe for concurrent
// use and tolerate duplicate deliveries.
type JobHandler interface {
	Execute(ctx context.Context, job *SyncJob) error
}

// JobHandlerFunc adapts a function to JobHandler.
type JobHandlerFunc func(ctx context.Context, job *SyncJob) error

// Execute calls f.
func (f JobHandlerFunc) Execute(ctx context.Context, job *SyncJob) error {
	return f(ctx, job)
}

// WorkerPoolConfig holds configuration for the queue worker pool.
type WorkerPoolConfig struct {
	// Workers is the number of concurrent job processors
	Workers int
	// PollInterval is how long an idle worker waits before checking again
	PollInterval time.Duration
	// JobTimeout bounds a single job execution
	JobTimeout time.Duration
	// RetryBaseDelay is the first backoff step; each retry doubles it
	RetryBaseDelay time.Duration
	// RetryMaxDelay caps the backoff
	RetryMaxDelay time.Duration
}

// DefaultWorkerPoolConfig returns the default worker pool configuration.
func DefaultWorkerPoolConfig() WorkerPoolConfig {
	return WorkerPoolConfig{
		Workers:        4,
		PollInterval:   500 * time.Millisecond,
		JobTimeout:     5 * time.Minute,
		RetryBaseDelay: 2 * time.Second,
		RetryMaxDelay:  5 * time.Minute,
	}
}

func (c *WorkerPoolConfig) normalize() {
	defaults := DefaultWorkerPoolConfig()
	if c.Workers <= 0 {
		c.Workers = defaults.Workers
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaults.PollInterval
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = defaults.RetryBaseDelay
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = defaults.RetryMaxDelay
	}
}

// WorkerPool drains a JobQueue with a bounded set of goroutines. Failed
// attempts are retried with exponential backoff only when the error is
// transient; everything else fails the job immediately.
type WorkerPool struct {
	config  WorkerPoolConfig
	queue   JobQueue
	handler JobHandler
	logger  *zap.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// NewWorkerPool creates a worker pool over the queue.
func NewWorkerPool(config WorkerPoolConfig, jobQueue JobQueue, handler JobHandler, logger *zap.Logger) *WorkerPool {
	config.normalize()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WorkerPool{
		config:  config,
		queue:   jobQueue,
		handler: handler,
		logger:  logger,
	}
}

// Start launches the workers.
func (p *WorkerPool) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.isRunning {
		p.mu.Unlock()
		return nil
	}
	p.isRunning = true
	p.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	for i := 0; i < p.config.Workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}

	p.logger.Info("Sync job worker pool started",
		zap.Int("workers", p.config.Workers),
		zap.Duration("job_timeout", p.config.JobTimeout),
	)
	return nil
}

// Stop gracefully stops the pool, waiting for in-flight jobs up to the
// context deadline.
func (p *WorkerPool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.isRunning {
		p.mu.Unlock()
		return nil
	}
	p.isRunning = false
	p.mu.Unlock()

	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("Sync job worker pool stopped gracefully")
		return nil
	case <-ctx.Done():
		p.logger.Warn("Sync job worker pool stop timed out")
		return ctx.Err()
	}
}

// worker polls the queue until the context is cancelled.
func (p *WorkerPool) worker(ctx context.Context, workerID int) {
	defer p.wg.Done()

	p.logger.Debug("Queue worker started", zap.Int("worker_id", workerID))

	for {
		select {
		case <-ctx.Done():
			p.logger.Debug("Queue worker stopping", zap.Int("worker_id", workerID))
			return
		default:
		}

		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			switch err {
			case ErrQueueEmpty, ErrQueuePaused:
			case ErrQueueClosed:
				return
			default:
				if ctx.Err() != nil {
					return
				}
				p.logger.Error("Failed to dequeue job", zap.Int("worker_id", workerID), zap.Error(err))
			}
			p.sleep(ctx, p.config.PollInterval)
			continue
		}

		p.processJob(ctx, job, workerID)
	}
}

// processJob executes one job and records the outcome.
func (p *WorkerPool) processJob(ctx context.Context, job *SyncJob, workerID int) {
	p.logger.Info("Processing sync job",
		zap.Int("worker_id", workerID),
		zap.String("job_id", job.ID.String()),
		zap.String("tenant_id", job.TenantID.String()),
		zap.String("job_type", string(job.Type)),
		zap.Int("attempt", job.Attempts),
	)

	jobCtx, cancel := context.WithTimeout(ctx, p.config.JobTimeout)
	err := p.handler.Execute(jobCtx, job)
	cancel()

	if err == nil {
		if completeErr := p.queue.Complete(ctx, job); completeErr != nil {
			p.logger.Error("Failed to record job completion",
				zap.String("job_id", job.ID.String()), zap.Error(completeErr))
		}
		p.logger.Info("Sync job completed",
			zap.Int("worker_id", workerID),
			zap.String("job_id", job.ID.String()),
			zap.String("job_type", string(job.Type)),
		)
		return
	}

	job.LastError = err.Error()

	if resilience.IsTransient(err) && !job.AttemptsExhausted() {
		delay := job.NextBackoff(p.config.RetryBaseDelay, p.config.RetryMaxDelay)
		if retryErr := p.queue.Retry(ctx, job, delay); retryErr != nil {
			p.logger.Error("Failed to re-queue job for retry",
				zap.String("job_id", job.ID.String()), zap.Error(retryErr))
			return
		}
		p.logger.Warn("Sync job scheduled for retry",
			zap.Int("worker_id", workerID),
			zap.String("job_id", job.ID.String()),
			zap.Int("attempt", job.Attempts),
			zap.Int("max_attempts", job.MaxAttempts),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		return
	}

	if failErr := p.queue.Fail(ctx, job, err.Error()); failErr != nil {
		p.logger.Error("Failed to record job failure",
			zap.String("job_id", job.ID.String()), zap.Error(failErr))
	}
	p.logger.Error("Sync job failed",
		zap.Int("worker_id", workerID),
		zap.String("job_id", job.ID.String()),
		zap.String("job_type", string(job.Type)),
		zap.Int("attempts", job.Attempts),
		zap.Error(err),
	)
}

// sleep waits for d or until the context is cancelled.
func (p *WorkerPool) sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
