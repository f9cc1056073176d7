package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const defaultKeyPrefix = "accounting:queue:"

// RedisJobQueue is the durable JobQueue for distributed deployments. Layout
// under the key prefix:
//
//	ready     ZSET  job ID scored by priority band + enqueue sequence
//	delayed   ZSET  job ID scored by unix ready time
//	running   ZSET  job ID scored by unix start time
//	completed ZSET  job ID scored by unix finish time, capped
//	failed    ZSET  job ID scored by unix finish time, capped
//	job:<id>  HASH  data (JSON), status, attempts, last_error
//	seq       STRING  FIFO tiebreak counter
//	paused    STRING  present while paused
type RedisJobQueue struct {
	client    *redis.Client
	keyPrefix string
	logger    *zap.Logger
}

var _ JobQueue = (*RedisJobQueue)(nil)

// NewRedisJobQueue creates a queue on an existing Redis client.
func NewRedisJobQueue(client *redis.Client, keyPrefix string, logger *zap.Logger) *RedisJobQueue {
	if keyPrefix == "" {
		keyPrefix = defaultKeyPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisJobQueue{
		client:    client,
		keyPrefix: keyPrefix,
		logger:    logger,
	}
}

func (q *RedisJobQueue) key(parts ...string) string {
	key := q.keyPrefix
	for _, part := range parts {
		key += part
	}
	return key
}

func (q *RedisJobQueue) jobKey(id uuid.UUID) string {
	return q.key("job:", id.String())
}

// writeJob stores the job hash.
func (q *RedisJobQueue) writeJob(ctx context.Context, job *SyncJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	return q.client.HSet(ctx, q.jobKey(job.ID), map[string]any{
		"data":       string(data),
		"status":     string(job.Status),
		"attempts":   job.Attempts,
		"last_error": job.LastError,
	}).Err()
}

// readJob loads the job hash.
func (q *RedisJobQueue) readJob(ctx context.Context, id uuid.UUID) (*SyncJob, error) {
	data, err := q.client.HGet(ctx, q.jobKey(id), "data").Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	var job SyncJob
	if err := json.Unmarshal([]byte(data), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job %s: %w", id, err)
	}
	return &job, nil
}

// Enqueue adds a pending job to the ready queue.
func (q *RedisJobQueue) Enqueue(ctx context.Context, job *SyncJob) error {
	job.Status = JobStatusPending
	if err := q.writeJob(ctx, job); err != nil {
		return err
	}

	seq, err := q.client.Incr(ctx, q.key("seq")).Result()
	if err != nil {
		return err
	}
	return q.client.ZAdd(ctx, q.key("ready"), redis.Z{
		Score:  readyScore(job.Priority, seq),
		Member: job.ID.String(),
	}).Err()
}

// EnqueueDelayed adds a job that becomes ready after delay.
func (q *RedisJobQueue) EnqueueDelayed(ctx context.Context, job *SyncJob, delay time.Duration) error {
	readyAt := time.Now().Add(delay)
	job.Delay(readyAt, job.LastError)
	if err := q.writeJob(ctx, job); err != nil {
		return err
	}
	return q.client.ZAdd(ctx, q.key("delayed"), redis.Z{
		Score:  float64(readyAt.UnixMilli()),
		Member: job.ID.String(),
	}).Err()
}

// Dequeue pops the highest-priority ready job, promoting due delayed jobs
// first.
func (q *RedisJobQueue) Dequeue(ctx context.Context) (*SyncJob, error) {
	paused, err := q.client.Exists(ctx, q.key("paused")).Result()
	if err != nil {
		return nil, err
	}
	if paused > 0 {
		return nil, ErrQueuePaused
	}

	if err := q.promoteDue(ctx); err != nil {
		return nil, err
	}

	popped, err := q.client.ZPopMin(ctx, q.key("ready"), 1).Result()
	if err != nil {
		return nil, err
	}
	if len(popped) == 0 {
		return nil, ErrQueueEmpty
	}

	id, err := uuid.Parse(fmt.Sprint(popped[0].Member))
	if err != nil {
		return nil, fmt.Errorf("malformed job ID in ready queue: %w", err)
	}

	job, err := q.readJob(ctx, id)
	if err != nil {
		return nil, err
	}

	job.Start()
	if err := q.writeJob(ctx, job); err != nil {
		return nil, err
	}
	if err := q.client.ZAdd(ctx, q.key("running"), redis.Z{
		Score:  float64(time.Now().UnixMilli()),
		Member: id.String(),
	}).Err(); err != nil {
		return nil, err
	}
	return job, nil
}

// promoteDue moves delayed jobs whose ready time has passed into the ready
// queue. The ZRem guard makes concurrent promotion race-safe.
func (q *RedisJobQueue) promoteDue(ctx context.Context) error {
	now := float64(time.Now().UnixMilli())
	due, err := q.client.ZRangeByScore(ctx, q.key("delayed"), &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%f", now),
	}).Result()
	if err != nil {
		return err
	}

	for _, member := range due {
		removed, err := q.client.ZRem(ctx, q.key("delayed"), member).Result()
		if err != nil {
			return err
		}
		if removed == 0 {
			continue // another worker promoted it
		}

		id, err := uuid.Parse(member)
		if err != nil {
			q.logger.Warn("Dropping malformed job ID from delayed queue", zap.String("member", member))
			continue
		}
		job, err := q.readJob(ctx, id)
		if err != nil {
			q.logger.Warn("Dropping delayed job without hash", zap.String("job_id", member), zap.Error(err))
			continue
		}

		job.Status = JobStatusPending
		if err := q.writeJob(ctx, job); err != nil {
			return err
		}
		seq, err := q.client.Incr(ctx, q.key("seq")).Result()
		if err != nil {
			return err
		}
		if err := q.client.ZAdd(ctx, q.key("ready"), redis.Z{
			Score:  readyScore(job.Priority, seq),
			Member: member,
		}).Err(); err != nil {
			return err
		}
	}
	return nil
}

// Complete records a successful job.
func (q *RedisJobQueue) Complete(ctx context.Context, job *SyncJob) error {
	job.Complete()
	if err := q.writeJob(ctx, job); err != nil {
		return err
	}
	if err := q.client.ZRem(ctx, q.key("running"), job.ID.String()).Err(); err != nil {
		return err
	}
	if err := q.client.ZAdd(ctx, q.key("completed"), redis.Z{
		Score:  float64(job.CompletedAt.UnixMilli()),
		Member: job.ID.String(),
	}).Err(); err != nil {
		return err
	}
	return q.pruneTerminal(ctx, q.key("completed"), maxCompletedJobs)
}

// Retry re-schedules a running job for another attempt after delay.
func (q *RedisJobQueue) Retry(ctx context.Context, job *SyncJob, delay time.Duration) error {
	if err := q.client.ZRem(ctx, q.key("running"), job.ID.String()).Err(); err != nil {
		return err
	}
	return q.EnqueueDelayed(ctx, job, delay)
}

// Fail records a terminal failure.
func (q *RedisJobQueue) Fail(ctx context.Context, job *SyncJob, errText string) error {
	job.Fail(errText)
	if err := q.writeJob(ctx, job); err != nil {
		return err
	}
	if err := q.client.ZRem(ctx, q.key("running"), job.ID.String()).Err(); err != nil {
		return err
	}
	if err := q.client.ZAdd(ctx, q.key("failed"), redis.Z{
		Score:  float64(job.CompletedAt.UnixMilli()),
		Member: job.ID.String(),
	}).Err(); err != nil {
		return err
	}
	return q.pruneTerminal(ctx, q.key("failed"), maxFailedJobs)
}

// pruneTerminal evicts the oldest members past the cap and deletes their
// hashes.
func (q *RedisJobQueue) pruneTerminal(ctx context.Context, setKey string, limit int) error {
	size, err := q.client.ZCard(ctx, setKey).Result()
	if err != nil {
		return err
	}
	excess := size - int64(limit)
	if excess <= 0 {
		return nil
	}

	evicted, err := q.client.ZPopMin(ctx, setKey, excess).Result()
	if err != nil {
		return err
	}
	for _, member := range evicted {
		if id, parseErr := uuid.Parse(fmt.Sprint(member.Member)); parseErr == nil {
			if err := q.client.Del(ctx, q.jobKey(id)).Err(); err != nil {
				return err
			}
		}
	}
	return nil
}

// GetJob fetches a job in any state by ID.
func (q *RedisJobQueue) GetJob(ctx context.Context, id uuid.UUID) (*SyncJob, error) {
	return q.readJob(ctx, id)
}

// RetryJob moves a failed job back to the ready queue with a fresh budget.
func (q *RedisJobQueue) RetryJob(ctx context.Context, id uuid.UUID) error {
	job, err := q.readJob(ctx, id)
	if err != nil {
		return err
	}
	if job.Status != JobStatusFailed {
		return ErrJobNotRetryable
	}

	if err := q.client.ZRem(ctx, q.key("failed"), id.String()).Err(); err != nil {
		return err
	}
	job.Attempts = 0
	job.LastError = ""
	job.CompletedAt = nil
	return q.Enqueue(ctx, job)
}

// RemoveJob deletes a job in any non-running state.
func (q *RedisJobQueue) RemoveJob(ctx context.Context, id uuid.UUID) error {
	job, err := q.readJob(ctx, id)
	if err != nil {
		return err
	}
	if job.Status == JobStatusRunning {
		return ErrJobNotRetryable
	}

	for _, set := range []string{"ready", "delayed", "completed", "failed"} {
		if err := q.client.ZRem(ctx, q.key(set), id.String()).Err(); err != nil {
			return err
		}
	}
	return q.client.Del(ctx, q.jobKey(id)).Err()
}

// Pause stops Dequeue from handing out jobs.
func (q *RedisJobQueue) Pause(ctx context.Context) error {
	return q.client.Set(ctx, q.key("paused"), "1", 0).Err()
}

// Resume reverses Pause.
func (q *RedisJobQueue) Resume(ctx context.Context) error {
	return q.client.Del(ctx, q.key("paused")).Err()
}

// Stats reports queue depth by state.
func (q *RedisJobQueue) Stats(ctx context.Context) (QueueStats, error) {
	stats := QueueStats{}
	counts := []struct {
		set  string
		dest *int64
	}{
		{"ready", &stats.Pending},
		{"delayed", &stats.Delayed},
		{"running", &stats.Running},
		{"completed", &stats.Completed},
		{"failed", &stats.Failed},
	}
	for _, c := range counts {
		n, err := q.client.ZCard(ctx, q.key(c.set)).Result()
		if err != nil {
			return QueueStats{}, err
		}
		*c.dest = n
	}

	paused, err := q.client.Exists(ctx, q.key("paused")).Result()
	if err != nil {
		return QueueStats{}, err
	}
	stats.Paused = paused > 0
	return stats, nil
}

// CleanOldJobs deletes terminal jobs finished before the cutoff.
func (q *RedisJobQueue) CleanOldJobs(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := fmt.Sprintf("%f", float64(time.Now().Add(-olderThan).UnixMilli()))
	var removed int64

	for _, set := range []string{"completed", "failed"} {
		old, err := q.client.ZRangeByScore(ctx, q.key(set), &redis.ZRangeBy{
			Min: "-inf",
			Max: cutoff,
		}).Result()
		if err != nil {
			return removed, err
		}
		for _, member := range old {
			if err := q.client.ZRem(ctx, q.key(set), member).Err(); err != nil {
				return removed, err
			}
			if id, parseErr := uuid.Parse(member); parseErr == nil {
				if err := q.client.Del(ctx, q.jobKey(id)).Err(); err != nil {
					return removed, err
				}
			}
			removed++
		}
	}
	return removed, nil
}

// Close is a no-op; the Redis client is owned by the caller.
func (q *RedisJobQueue) Close() error {
	return nil
}
