package queue

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrQueueEmpty is returned by Dequeue when no job is ready.
	ErrQueueEmpty = errors.New("job queue is empty")
	// ErrQueuePaused is returned by Dequeue while the queue is paused.
	ErrQueuePaused = errors.New("job queue is paused")
	// ErrQueueClosed is returned after Close.
	ErrQueueClosed = errors.New("job queue is closed")
	// ErrJobNotFound is returned when a job ID does not exist.
	ErrJobNotFound = errors.New("job not found")
	// ErrJobNotRetryable is returned when RetryJob targets a job that is
	// not in a failed state.
	ErrJobNotRetryable = errors.New("job is not in a retryable state")
)

// QueueStats is a point-in-time snapshot of queue depth by state.
type QueueStats struct {
	Pending   int64 `json:"pending"`
	Delayed   int64 `json:"delayed"`
	Running   int64 `json:"running"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Paused    bool  `json:"paused"`
}

// Retention bounds for terminal jobs. Completed jobs age out fast; failed
// jobs are kept longer for manual retry and diagnosis.
const (
	maxCompletedJobs = 100
	maxFailedJobs    = 1000
)

// JobQueue is the durable sync job queue. Delivery is at-least-once: a job
// popped by a crashed worker is lost from RUNNING, not re-delivered, so
// handlers must tolerate duplicates from retries.
type JobQueue interface {
	// Enqueue adds a pending job to the ready queue
	Enqueue(ctx context.Context, job *SyncJob) error

	// EnqueueDelayed adds a job that becomes ready after delay
	EnqueueDelayed(ctx context.Context, job *SyncJob, delay time.Duration) error

	// Dequeue pops the highest-priority ready job, promoting due delayed
	// jobs first. Returns ErrQueueEmpty when nothing is ready and
	// ErrQueuePaused while paused.
	Dequeue(ctx context.Context) (*SyncJob, error)

	// Complete records a successful job, pruning old completed jobs
	Complete(ctx context.Context, job *SyncJob) error

	// Retry re-schedules a running job for another attempt after delay
	Retry(ctx context.Context, job *SyncJob, delay time.Duration) error

	// Fail records a terminal failure, pruning old failed jobs
	Fail(ctx context.Context, job *SyncJob, errText string) error

	// GetJob fetches a job in any state by ID
	GetJob(ctx context.Context, id uuid.UUID) (*SyncJob, error)

	// RetryJob moves a failed job back to the ready queue with a reset
	// retry budget
	RetryJob(ctx context.Context, id uuid.UUID) error

	// RemoveJob deletes a job in any non-running state
	RemoveJob(ctx context.Context, id uuid.UUID) error

	// Pause stops Dequeue from handing out jobs; Resume reverses it
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error

	// Stats reports queue depth by state
	Stats(ctx context.Context) (QueueStats, error)

	// CleanOldJobs deletes terminal jobs finished before the cutoff and
	// returns how many were removed
	CleanOldJobs(ctx context.Context, olderThan time.Duration) (int64, error)

	// Close releases queue resources
	Close() error
}
