package accounting

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/finplat/backend/internal/domain/accounting"
	"github.com/finplat/backend/internal/infrastructure/queue"
)

func TestJobHandler_EnqueuedInvoiceSyncRoundTrip(t *testing.T) {
	h := newTestHarness(t, accounting.SystemTally)
	ctx := context.Background()
	tenantID := uuid.New()
	h.addConfig(t, tenantID, accounting.SystemTally, pushSettings(accounting.EntityTypeInvoice))

	invoice := &accounting.Invoice{PlatformID: uuid.New(), TenantID: tenantID, InvoiceNumber: "INV-7"}
	job, err := h.orch.EnqueueSyncInvoice(ctx, invoice)
	require.NoError(t, err)
	assert.Equal(t, queue.JobTypeSyncInvoice, job.Type)
	assert.Equal(t, tenantID, job.TenantID)

	dequeued, err := h.jobs.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, job.ID, dequeued.ID)

	handler := NewSyncJobHandler(h.orch, nil, zap.NewNop())
	require.NoError(t, handler.Execute(ctx, dequeued))

	assert.Equal(t, 1, h.fakes[accounting.SystemTally].syncInvoiceCalls)
	rows := h.logRepo.nonAuditRows()
	require.Len(t, rows, 1)
	require.NotNil(t, rows[0].PlatformID)
	assert.Equal(t, invoice.PlatformID, *rows[0].PlatformID)
}

func TestJobHandler_ImportCustomersJob(t *testing.T) {
	h := newTestHarness(t, accounting.SystemZohoBooks)
	ctx := context.Background()
	tenantID := uuid.New()
	h.addConfig(t, tenantID, accounting.SystemZohoBooks, pullSettings(accounting.EntityTypeCustomer))

	system := accounting.SystemZohoBooks
	job, err := h.orch.EnqueueImportCustomers(ctx, tenantID, &system, accounting.ImportFilters{PageSize: 25})
	require.NoError(t, err)

	dequeued, err := h.jobs.Dequeue(ctx)
	require.NoError(t, err)

	handler := NewSyncJobHandler(h.orch, nil, zap.NewNop())
	require.NoError(t, handler.Execute(ctx, dequeued))
	assert.Equal(t, queue.JobTypeImportCustomers, job.Type)
	assert.Equal(t, 1, h.fakes[accounting.SystemZohoBooks].importCalls)
}

func TestJobHandler_BadPayload(t *testing.T) {
	h := newTestHarness(t, accounting.SystemTally)
	handler := NewSyncJobHandler(h.orch, nil, zap.NewNop())

	job := queue.NewSyncJob(uuid.New(), queue.JobTypeSyncInvoice, []byte("{not json"))
	err := handler.Execute(context.Background(), job)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode")
}

func TestJobHandler_UnknownJobType(t *testing.T) {
	h := newTestHarness(t, accounting.SystemTally)
	handler := NewSyncJobHandler(h.orch, nil, zap.NewNop())

	job := queue.NewSyncJob(uuid.New(), queue.JobType("REINDEX"), nil)
	assert.Error(t, handler.Execute(context.Background(), job))
}

func TestJobHandler_RetentionSweepJob(t *testing.T) {
	h := newTestHarness(t, accounting.SystemTally)
	retention := NewRetentionService(retentionTestConfig(), h.audit, h.errorRepo, h.jobs, zap.NewNop())
	handler := NewSyncJobHandler(h.orch, retention, zap.NewNop())

	job := queue.NewSyncJob(uuid.Nil, queue.JobTypeRetentionSweep, nil)
	require.NoError(t, handler.Execute(context.Background(), job))

	t.Run("fails without a retention service", func(t *testing.T) {
		bare := NewSyncJobHandler(h.orch, nil, zap.NewNop())
		assert.Error(t, bare.Execute(context.Background(), job))
	})
}
