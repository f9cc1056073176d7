package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryJobQueue is the in-process JobQueue used in tests and single-node
// development. It mirrors the Redis implementation's semantics exactly:
// priority bands with FIFO ties, a delayed set promoted on Dequeue, and
// capped terminal-job retention.
type MemoryJobQueue struct {
	mu     sync.Mutex
	seq    int64
	jobs   map[uuid.UUID]*SyncJob
	ready  map[uuid.UUID]float64
	due    map[uuid.UUID]time.Time
	active map[uuid.UUID]struct{}
	// completedIDs/failedIDs are newest-first for pruning
	completedIDs []uuid.UUID
	failedIDs    []uuid.UUID
	paused       bool
	closed       bool
}

var _ JobQueue = (*MemoryJobQueue)(nil)

// NewMemoryJobQueue creates an empty in-memory queue.
func NewMemoryJobQueue() *MemoryJobQueue {
	return &MemoryJobQueue{
		jobs:   make(map[uuid.UUID]*SyncJob),
		ready:  make(map[uuid.UUID]float64),
		due:    make(map[uuid.UUID]time.Time),
		active: make(map[uuid.UUID]struct{}),
	}
}

// Enqueue adds a pending job to the ready queue.
func (q *MemoryJobQueue) Enqueue(_ context.Context, job *SyncJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}

	q.seq++
	job.Status = JobStatusPending
	q.jobs[job.ID] = job
	q.ready[job.ID] = readyScore(job.Priority, q.seq)
	return nil
}

// EnqueueDelayed adds a job that becomes ready after delay.
func (q *MemoryJobQueue) EnqueueDelayed(_ context.Context, job *SyncJob, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}

	readyAt := time.Now().Add(delay)
	job.Delay(readyAt, job.LastError)
	q.jobs[job.ID] = job
	q.due[job.ID] = readyAt
	return nil
}

// Dequeue pops the highest-priority ready job.
func (q *MemoryJobQueue) Dequeue(_ context.Context) (*SyncJob, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, ErrQueueClosed
	}
	if q.paused {
		return nil, ErrQueuePaused
	}

	q.promoteDueLocked(time.Now())

	var (
		bestID    uuid.UUID
		bestScore float64
		found     bool
	)
	for id, score := range q.ready {
		if !found || score < bestScore {
			bestID, bestScore, found = id, score, true
		}
	}
	if !found {
		return nil, ErrQueueEmpty
	}

	delete(q.ready, bestID)
	job := q.jobs[bestID]
	job.Start()
	q.active[bestID] = struct{}{}
	return job, nil
}

// promoteDueLocked moves delayed jobs whose time has come into the ready
// queue. Callers hold q.mu.
func (q *MemoryJobQueue) promoteDueLocked(now time.Time) {
	for id, readyAt := range q.due {
		if readyAt.After(now) {
			continue
		}
		delete(q.due, id)
		job := q.jobs[id]
		job.Status = JobStatusPending
		q.seq++
		q.ready[id] = readyScore(job.Priority, q.seq)
	}
}

// Complete records a successful job.
func (q *MemoryJobQueue) Complete(_ context.Context, job *SyncJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	delete(q.active, job.ID)
	job.Complete()
	q.jobs[job.ID] = job
	q.completedIDs = append([]uuid.UUID{job.ID}, q.completedIDs...)
	q.pruneLocked(&q.completedIDs, maxCompletedJobs)
	return nil
}

// Retry re-schedules a running job for another attempt after delay.
func (q *MemoryJobQueue) Retry(_ context.Context, job *SyncJob, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}

	delete(q.active, job.ID)
	readyAt := time.Now().Add(delay)
	job.Delay(readyAt, job.LastError)
	q.jobs[job.ID] = job
	q.due[job.ID] = readyAt
	return nil
}

// Fail records a terminal failure.
func (q *MemoryJobQueue) Fail(_ context.Context, job *SyncJob, errText string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	delete(q.active, job.ID)
	job.Fail(errText)
	q.jobs[job.ID] = job
	q.failedIDs = append([]uuid.UUID{job.ID}, q.failedIDs...)
	q.pruneLocked(&q.failedIDs, maxFailedJobs)
	return nil
}

// GetJob fetches a job in any state by ID.
func (q *MemoryJobQueue) GetJob(_ context.Context, id uuid.UUID) (*SyncJob, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	clone := *job
	return &clone, nil
}

// RetryJob moves a failed job back to the ready queue with a fresh budget.
func (q *MemoryJobQueue) RetryJob(_ context.Context, id uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}

	job, ok := q.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	if job.Status != JobStatusFailed {
		return ErrJobNotRetryable
	}

	q.failedIDs = removeID(q.failedIDs, id)
	job.Status = JobStatusPending
	job.Attempts = 0
	job.LastError = ""
	job.CompletedAt = nil
	q.seq++
	q.ready[id] = readyScore(job.Priority, q.seq)
	return nil
}

// RemoveJob deletes a job in any non-running state.
func (q *MemoryJobQueue) RemoveJob(_ context.Context, id uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	if _, running := q.active[id]; running {
		return ErrJobNotRetryable
	}

	delete(q.jobs, id)
	delete(q.ready, id)
	delete(q.due, id)
	switch job.Status {
	case JobStatusCompleted:
		q.completedIDs = removeID(q.completedIDs, id)
	case JobStatusFailed:
		q.failedIDs = removeID(q.failedIDs, id)
	}
	return nil
}

// Pause stops Dequeue from handing out jobs.
func (q *MemoryJobQueue) Pause(_ context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.paused = true
	return nil
}

// Resume reverses Pause.
func (q *MemoryJobQueue) Resume(_ context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.paused = false
	return nil
}

// Stats reports queue depth by state.
func (q *MemoryJobQueue) Stats(_ context.Context) (QueueStats, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	return QueueStats{
		Pending:   int64(len(q.ready)),
		Delayed:   int64(len(q.due)),
		Running:   int64(len(q.active)),
		Completed: int64(len(q.completedIDs)),
		Failed:    int64(len(q.failedIDs)),
		Paused:    q.paused,
	}, nil
}

// CleanOldJobs deletes terminal jobs finished before the cutoff.
func (q *MemoryJobQueue) CleanOldJobs(_ context.Context, olderThan time.Duration) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	cutoff := time.Now().Add(-olderThan)
	var removed int64
	for _, ids := range []*[]uuid.UUID{&q.completedIDs, &q.failedIDs} {
		kept := (*ids)[:0]
		for _, id := range *ids {
			job := q.jobs[id]
			if job != nil && job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
				delete(q.jobs, id)
				removed++
				continue
			}
			kept = append(kept, id)
		}
		*ids = kept
	}
	return removed, nil
}

// Close releases queue resources.
func (q *MemoryJobQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	return nil
}

// pruneLocked trims a newest-first terminal list to limit, deleting the
// evicted jobs. Callers hold q.mu.
func (q *MemoryJobQueue) pruneLocked(ids *[]uuid.UUID, limit int) {
	if len(*ids) <= limit {
		return
	}
	for _, id := range (*ids)[limit:] {
		delete(q.jobs, id)
	}
	*ids = (*ids)[:limit]
}

func removeID(ids []uuid.UUID, id uuid.UUID) []uuid.UUID {
	for i, candidate := range ids {
		if candidate == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
