package queue

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadyScore(t *testing.T) {
	t.Run("higher priority pops first", func(t *testing.T) {
		high := readyScore(PriorityHigh, 100)
		normal := readyScore(PriorityNormal, 1)
		assert.Less(t, high, normal)
	})

	t.Run("FIFO within a priority band", func(t *testing.T) {
		first := readyScore(PriorityNormal, 1)
		second := readyScore(PriorityNormal, 2)
		assert.Less(t, first, second)
	})

	t.Run("clamps out-of-band priorities", func(t *testing.T) {
		assert.Equal(t, readyScore(PriorityLow, 7), readyScore(-3, 7))
		assert.Equal(t, readyScore(priorityCeiling, 7), readyScore(priorityCeiling+50, 7))
	})
}

func TestSyncJob_NextBackoff(t *testing.T) {
	job := NewSyncJob(uuid.New(), JobTypeSyncInvoice, nil)

	job.Attempts = 1
	assert.Equal(t, 2*time.Second, job.NextBackoff(2*time.Second, time.Minute))
	job.Attempts = 2
	assert.Equal(t, 4*time.Second, job.NextBackoff(2*time.Second, time.Minute))
	job.Attempts = 3
	assert.Equal(t, 8*time.Second, job.NextBackoff(2*time.Second, time.Minute))

	t.Run("caps at max", func(t *testing.T) {
		job.Attempts = 10
		assert.Equal(t, time.Minute, job.NextBackoff(2*time.Second, time.Minute))
	})
}

func TestMemoryJobQueue_PriorityOrdering(t *testing.T) {
	q := NewMemoryJobQueue()
	ctx := context.Background()
	tenantID := uuid.New()

	low := NewSyncJob(tenantID, JobTypeSyncInvoice, nil).WithPriority(PriorityLow)
	normalFirst := NewSyncJob(tenantID, JobTypeSyncInvoice, nil)
	normalSecond := NewSyncJob(tenantID, JobTypeSyncInvoice, nil)
	high := NewSyncJob(tenantID, JobTypeSyncPayment, nil).WithPriority(PriorityHigh)

	require.NoError(t, q.Enqueue(ctx, low))
	require.NoError(t, q.Enqueue(ctx, normalFirst))
	require.NoError(t, q.Enqueue(ctx, normalSecond))
	require.NoError(t, q.Enqueue(ctx, high))

	var order []uuid.UUID
	for i := 0; i < 4; i++ {
		job, err := q.Dequeue(ctx)
		require.NoError(t, err)
		assert.Equal(t, JobStatusRunning, job.Status)
		assert.Equal(t, 1, job.Attempts)
		order = append(order, job.ID)
	}

	assert.Equal(t, []uuid.UUID{high.ID, normalFirst.ID, normalSecond.ID, low.ID}, order)

	_, err := q.Dequeue(ctx)
	assert.ErrorIs(t, err, ErrQueueEmpty)
}

func TestMemoryJobQueue_DelayedPromotion(t *testing.T) {
	q := NewMemoryJobQueue()
	ctx := context.Background()

	job := NewSyncJob(uuid.New(), JobTypeSyncCustomer, nil)
	require.NoError(t, q.EnqueueDelayed(ctx, job, 30*time.Millisecond))

	_, err := q.Dequeue(ctx)
	assert.ErrorIs(t, err, ErrQueueEmpty)

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Delayed)

	require.Eventually(t, func() bool {
		dequeued, err := q.Dequeue(ctx)
		return err == nil && dequeued.ID == job.ID
	}, time.Second, 10*time.Millisecond)
}

func TestMemoryJobQueue_PauseResume(t *testing.T) {
	q := NewMemoryJobQueue()
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, NewSyncJob(uuid.New(), JobTypeSyncInvoice, nil)))
	require.NoError(t, q.Pause(ctx))

	_, err := q.Dequeue(ctx)
	assert.ErrorIs(t, err, ErrQueuePaused)

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.True(t, stats.Paused)

	require.NoError(t, q.Resume(ctx))
	_, err = q.Dequeue(ctx)
	assert.NoError(t, err)
}

func TestMemoryJobQueue_RetryAndFail(t *testing.T) {
	q := NewMemoryJobQueue()
	ctx := context.Background()

	job := NewSyncJob(uuid.New(), JobTypeSyncInvoice, nil)
	require.NoError(t, q.Enqueue(ctx, job))

	running, err := q.Dequeue(ctx)
	require.NoError(t, err)

	t.Run("retry re-delays the job", func(t *testing.T) {
		running.LastError = "connection reset"
		require.NoError(t, q.Retry(ctx, running, 10*time.Millisecond))

		stats, err := q.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), stats.Delayed)
		assert.Equal(t, int64(0), stats.Running)

		require.Eventually(t, func() bool {
			again, err := q.Dequeue(ctx)
			return err == nil && again.Attempts == 2
		}, time.Second, 5*time.Millisecond)
	})

	t.Run("fail is terminal and queryable", func(t *testing.T) {
		require.NoError(t, q.Fail(ctx, running, "invoice rejected"))

		found, err := q.GetJob(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, JobStatusFailed, found.Status)
		assert.Equal(t, "invoice rejected", found.LastError)
		assert.NotNil(t, found.CompletedAt)

		stats, err := q.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), stats.Failed)
	})

	t.Run("retryJob resets the budget and re-queues", func(t *testing.T) {
		require.NoError(t, q.RetryJob(ctx, job.ID))

		found, err := q.GetJob(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, JobStatusPending, found.Status)
		assert.Equal(t, 0, found.Attempts)
		assert.Empty(t, found.LastError)

		again, err := q.Dequeue(ctx)
		require.NoError(t, err)
		assert.Equal(t, job.ID, again.ID)
		assert.Equal(t, 1, again.Attempts)
	})

	t.Run("retryJob rejects non-failed jobs", func(t *testing.T) {
		assert.ErrorIs(t, q.RetryJob(ctx, job.ID), ErrJobNotRetryable)
		assert.ErrorIs(t, q.RetryJob(ctx, uuid.New()), ErrJobNotFound)
	})
}

func TestMemoryJobQueue_RemoveJob(t *testing.T) {
	q := NewMemoryJobQueue()
	ctx := context.Background()

	pending := NewSyncJob(uuid.New(), JobTypeSyncInvoice, nil)
	require.NoError(t, q.Enqueue(ctx, pending))

	running := NewSyncJob(uuid.New(), JobTypeSyncPayment, nil)
	require.NoError(t, q.Enqueue(ctx, running))

	t.Run("removes a pending job", func(t *testing.T) {
		require.NoError(t, q.RemoveJob(ctx, pending.ID))
		_, err := q.GetJob(ctx, pending.ID)
		assert.ErrorIs(t, err, ErrJobNotFound)
	})

	t.Run("refuses to remove a running job", func(t *testing.T) {
		dequeued, err := q.Dequeue(ctx)
		require.NoError(t, err)
		require.Equal(t, running.ID, dequeued.ID)

		assert.ErrorIs(t, q.RemoveJob(ctx, running.ID), ErrJobNotRetryable)
	})
}

func TestMemoryJobQueue_CompletedPruning(t *testing.T) {
	q := NewMemoryJobQueue()
	ctx := context.Background()
	tenantID := uuid.New()

	var oldest uuid.UUID
	for i := 0; i < maxCompletedJobs+10; i++ {
		job := NewSyncJob(tenantID, JobTypeSyncInvoice, nil)
		if i == 0 {
			oldest = job.ID
		}
		require.NoError(t, q.Enqueue(ctx, job))
		dequeued, err := q.Dequeue(ctx)
		require.NoError(t, err)
		require.NoError(t, q.Complete(ctx, dequeued))
	}

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(maxCompletedJobs), stats.Completed)

	_, err = q.GetJob(ctx, oldest)
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestMemoryJobQueue_CleanOldJobs(t *testing.T) {
	q := NewMemoryJobQueue()
	ctx := context.Background()

	finish := func(fail bool) *SyncJob {
		job := NewSyncJob(uuid.New(), JobTypeSyncInvoice, nil)
		require.NoError(t, q.Enqueue(ctx, job))
		dequeued, err := q.Dequeue(ctx)
		require.NoError(t, err)
		if fail {
			require.NoError(t, q.Fail(ctx, dequeued, "boom"))
		} else {
			require.NoError(t, q.Complete(ctx, dequeued))
		}
		return dequeued
	}

	oldCompleted := finish(false)
	oldFailed := finish(true)
	fresh := finish(false)

	// age the first two past the cutoff
	past := time.Now().Add(-2 * time.Hour)
	oldCompleted.CompletedAt = &past
	oldFailed.CompletedAt = &past

	removed, err := q.CleanOldJobs(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	_, err = q.GetJob(ctx, oldCompleted.ID)
	assert.ErrorIs(t, err, ErrJobNotFound)
	_, err = q.GetJob(ctx, fresh.ID)
	assert.NoError(t, err)
}

func TestMemoryJobQueue_Close(t *testing.T) {
	q := NewMemoryJobQueue()
	ctx := context.Background()

	require.NoError(t, q.Close())

	err := q.Enqueue(ctx, NewSyncJob(uuid.New(), JobTypeSyncInvoice, nil))
	assert.ErrorIs(t, err, ErrQueueClosed)

	_, err = q.Dequeue(ctx)
	assert.ErrorIs(t, err, ErrQueueClosed)
}

func TestSyncJob_PayloadRoundTrip(t *testing.T) {
	payload := []byte(fmt.Sprintf(`{"invoice_id":%q}`, uuid.New()))
	job := NewSyncJob(uuid.New(), JobTypeSyncInvoice, payload)

	q := NewMemoryJobQueue()
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, job))

	found, err := q.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.JSONEq(t, string(payload), string(found.Payload))
}
