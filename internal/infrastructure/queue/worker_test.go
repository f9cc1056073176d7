package queue

import (
	"context"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/finplat/backend/internal/domain/accounting"
)

func testWorkerPoolConfig() WorkerPoolConfig {
	return WorkerPoolConfig{
		Workers:        2,
		PollInterval:   10 * time.Millisecond,
		JobTimeout:     time.Second,
		RetryBaseDelay: 10 * time.Millisecond,
		RetryMaxDelay:  50 * time.Millisecond,
	}
}

func TestWorkerPool_ProcessesJobs(t *testing.T) {
	q := NewMemoryJobQueue()
	ctx := context.Background()

	var processed atomic.Int32
	handler := JobHandlerFunc(func(_ context.Context, job *SyncJob) error {
		processed.Add(1)
		return nil
	})

	pool := NewWorkerPool(testWorkerPoolConfig(), q, handler, zap.NewNop())
	require.NoError(t, pool.Start(ctx))
	defer pool.Stop(context.Background())

	job := NewSyncJob(uuid.New(), JobTypeSyncInvoice, nil)
	require.NoError(t, q.Enqueue(ctx, job))

	require.Eventually(t, func() bool {
		found, err := q.GetJob(ctx, job.ID)
		return err == nil && found.Status == JobStatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, int32(1), processed.Load())
}

func TestWorkerPool_RetriesTransientErrors(t *testing.T) {
	q := NewMemoryJobQueue()
	ctx := context.Background()

	var attempts atomic.Int32
	handler := JobHandlerFunc(func(_ context.Context, job *SyncJob) error {
		if attempts.Add(1) < 3 {
			return syscall.ECONNRESET
		}
		return nil
	})

	pool := NewWorkerPool(testWorkerPoolConfig(), q, handler, zap.NewNop())
	require.NoError(t, pool.Start(ctx))
	defer pool.Stop(context.Background())

	job := NewSyncJob(uuid.New(), JobTypeSyncPayment, nil)
	require.NoError(t, q.Enqueue(ctx, job))

	require.Eventually(t, func() bool {
		found, err := q.GetJob(ctx, job.ID)
		return err == nil && found.Status == JobStatusCompleted
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, int32(3), attempts.Load())
}

func TestWorkerPool_FailsNonTransientImmediately(t *testing.T) {
	q := NewMemoryJobQueue()
	ctx := context.Background()

	var attempts atomic.Int32
	handler := JobHandlerFunc(func(_ context.Context, job *SyncJob) error {
		attempts.Add(1)
		return accounting.NewVendorError(accounting.SystemQuickBooks, 401, "3200", "token expired", "", nil)
	})

	pool := NewWorkerPool(testWorkerPoolConfig(), q, handler, zap.NewNop())
	require.NoError(t, pool.Start(ctx))
	defer pool.Stop(context.Background())

	job := NewSyncJob(uuid.New(), JobTypeSyncInvoice, nil)
	require.NoError(t, q.Enqueue(ctx, job))

	require.Eventually(t, func() bool {
		found, err := q.GetJob(ctx, job.ID)
		return err == nil && found.Status == JobStatusFailed
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, int32(1), attempts.Load())

	found, err := q.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Contains(t, found.LastError, "token expired")
}

func TestWorkerPool_ExhaustsRetryBudget(t *testing.T) {
	q := NewMemoryJobQueue()
	ctx := context.Background()

	var attempts atomic.Int32
	handler := JobHandlerFunc(func(_ context.Context, job *SyncJob) error {
		attempts.Add(1)
		return syscall.ECONNREFUSED
	})

	pool := NewWorkerPool(testWorkerPoolConfig(), q, handler, zap.NewNop())
	require.NoError(t, pool.Start(ctx))
	defer pool.Stop(context.Background())

	job := NewSyncJob(uuid.New(), JobTypeSyncInvoice, nil)
	job.MaxAttempts = 2
	require.NoError(t, q.Enqueue(ctx, job))

	require.Eventually(t, func() bool {
		found, err := q.GetJob(ctx, job.ID)
		return err == nil && found.Status == JobStatusFailed
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, int32(2), attempts.Load())
}

func TestWorkerPool_StopDrainsGracefully(t *testing.T) {
	q := NewMemoryJobQueue()
	ctx := context.Background()

	release := make(chan struct{})
	started := make(chan struct{}, 1)
	handler := JobHandlerFunc(func(_ context.Context, job *SyncJob) error {
		started <- struct{}{}
		<-release
		return nil
	})

	pool := NewWorkerPool(testWorkerPoolConfig(), q, handler, zap.NewNop())
	require.NoError(t, pool.Start(ctx))

	job := NewSyncJob(uuid.New(), JobTypeSyncInvoice, nil)
	require.NoError(t, q.Enqueue(ctx, job))

	<-started
	close(release)

	stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.NoError(t, pool.Stop(stopCtx))

	// double stop is a no-op
	assert.NoError(t, pool.Stop(context.Background()))
}
