package accounting

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/finplat/backend/internal/domain/accounting"
	"github.com/finplat/backend/internal/infrastructure/queue"
)

// ---------------------------------------------------------------------------
// Job payloads
// ---------------------------------------------------------------------------

type importJobPayload struct {
	System  *accounting.AccountingSystem `json:"system,omitempty"`
	Filters accounting.ImportFilters     `json:"filters"`
}

type syncCustomerJobPayload struct {
	Customer accounting.Customer `json:"customer"`
}

type syncInvoiceJobPayload struct {
	Invoice accounting.Invoice `json:"invoice"`
}

type syncPaymentJobPayload struct {
	Payment accounting.Payment `json:"payment"`
}

type syncRefundJobPayload struct {
	Refund accounting.Refund `json:"refund"`
}

type syncJournalEntryJobPayload struct {
	Entry accounting.JournalEntry `json:"entry"`
}

type syncBankEntryJobPayload struct {
	Entry accounting.BankEntry `json:"entry"`
}

// ---------------------------------------------------------------------------
// Enqueue-based variants
// ---------------------------------------------------------------------------

// EnqueueSyncCustomer queues a customer push instead of running it inline.
func (o *Orchestrator) EnqueueSyncCustomer(ctx context.Context, tenantID uuid.UUID, customer *accounting.Customer) (*queue.SyncJob, error) {
	return o.enqueue(ctx, tenantID, queue.JobTypeSyncCustomer, syncCustomerJobPayload{Customer: *customer})
}

// EnqueueSyncInvoice queues an invoice push instead of running it inline.
func (o *Orchestrator) EnqueueSyncInvoice(ctx context.Context, invoice *accounting.Invoice) (*queue.SyncJob, error) {
	return o.enqueue(ctx, invoice.TenantID, queue.JobTypeSyncInvoice, syncInvoiceJobPayload{Invoice: *invoice})
}

// EnqueueSyncPayment queues a payment push instead of running it inline.
func (o *Orchestrator) EnqueueSyncPayment(ctx context.Context, payment *accounting.Payment) (*queue.SyncJob, error) {
	return o.enqueue(ctx, payment.TenantID, queue.JobTypeSyncPayment, syncPaymentJobPayload{Payment: *payment})
}

// EnqueueSyncRefund queues a refund push instead of running it inline.
func (o *Orchestrator) EnqueueSyncRefund(ctx context.Context, refund *accounting.Refund) (*queue.SyncJob, error) {
	return o.enqueue(ctx, refund.TenantID, queue.JobTypeSyncRefund, syncRefundJobPayload{Refund: *refund})
}

// EnqueueSyncJournalEntry queues a journal entry push.
func (o *Orchestrator) EnqueueSyncJournalEntry(ctx context.Context, entry *accounting.JournalEntry) (*queue.SyncJob, error) {
	return o.enqueue(ctx, entry.TenantID, queue.JobTypeSyncJournalEntry, syncJournalEntryJobPayload{Entry: *entry})
}

// EnqueueSyncBankEntry queues a bank entry push.
func (o *Orchestrator) EnqueueSyncBankEntry(ctx context.Context, entry *accounting.BankEntry) (*queue.SyncJob, error) {
	return o.enqueue(ctx, entry.TenantID, queue.JobTypeSyncBankEntry, syncBankEntryJobPayload{Entry: *entry})
}

// EnqueueImportCustomers queues a customer import fan-out.
func (o *Orchestrator) EnqueueImportCustomers(ctx context.Context, tenantID uuid.UUID, system *accounting.AccountingSystem, filters accounting.ImportFilters) (*queue.SyncJob, error) {
	return o.enqueue(ctx, tenantID, queue.JobTypeImportCustomers, importJobPayload{System: system, Filters: filters})
}

// EnqueueImportInvoices queues an invoice import fan-out.
func (o *Orchestrator) EnqueueImportInvoices(ctx context.Context, tenantID uuid.UUID, system *accounting.AccountingSystem, filters accounting.ImportFilters) (*queue.SyncJob, error) {
	return o.enqueue(ctx, tenantID, queue.JobTypeImportInvoices, importJobPayload{System: system, Filters: filters})
}

// EnqueueImportChartOfAccounts queues a chart of accounts import fan-out.
func (o *Orchestrator) EnqueueImportChartOfAccounts(ctx context.Context, tenantID uuid.UUID, system *accounting.AccountingSystem, filters accounting.ImportFilters) (*queue.SyncJob, error) {
	return o.enqueue(ctx, tenantID, queue.JobTypeImportChartOfAccounts, importJobPayload{System: system, Filters: filters})
}

func (o *Orchestrator) enqueue(ctx context.Context, tenantID uuid.UUID, jobType queue.JobType, payload any) (*queue.SyncJob, error) {
	if o.jobs == nil {
		return nil, fmt.Errorf("job queue is not configured")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", jobType, err)
	}
	job := queue.NewSyncJob(tenantID, jobType, data)
	if err := o.jobs.Enqueue(ctx, job); err != nil {
		return nil, err
	}
	o.logger.Debug("Enqueued sync job",
		zap.String("job_id", job.ID.String()),
		zap.String("job_type", string(jobType)),
		zap.String("tenant_id", tenantID.String()),
	)
	return job, nil
}

// ---------------------------------------------------------------------------
// Job handler
// ---------------------------------------------------------------------------

// SyncJobHandler dispatches dequeued jobs to the orchestrator. Per-config
// failures are recorded and retried inside the orchestrator; the handler only
// returns an error for infrastructure failures (bad payload, config store
// down), which the worker pool's own retry policy then handles.
type SyncJobHandler struct {
	orchestrator *Orchestrator
	retention    *RetentionService
	logger       *zap.Logger
}

// NewSyncJobHandler creates the handler. The retention service is optional;
// without it, retention sweep jobs fail.
func NewSyncJobHandler(orchestrator *Orchestrator, retention *RetentionService, logger *zap.Logger) *SyncJobHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SyncJobHandler{
		orchestrator: orchestrator,
		retention:    retention,
		logger:       logger,
	}
}

// Execute implements queue.JobHandler.
func (h *SyncJobHandler) Execute(ctx context.Context, job *queue.SyncJob) error {
	switch job.Type {
	case queue.JobTypeSyncCustomer:
		var p syncCustomerJobPayload
		if err := json.Unmarshal(job.Payload, &p); err != nil {
			return fmt.Errorf("decode %s payload: %w", job.Type, err)
		}
		_, err := h.orchestrator.SyncCustomerCreated(ctx, job.TenantID, &p.Customer)
		return err

	case queue.JobTypeSyncInvoice:
		var p syncInvoiceJobPayload
		if err := json.Unmarshal(job.Payload, &p); err != nil {
			return fmt.Errorf("decode %s payload: %w", job.Type, err)
		}
		_, err := h.orchestrator.SyncInvoiceCreated(ctx, &p.Invoice)
		return err

	case queue.JobTypeSyncPayment:
		var p syncPaymentJobPayload
		if err := json.Unmarshal(job.Payload, &p); err != nil {
			return fmt.Errorf("decode %s payload: %w", job.Type, err)
		}
		_, err := h.orchestrator.SyncPaymentReceived(ctx, &p.Payment)
		return err

	case queue.JobTypeSyncRefund:
		var p syncRefundJobPayload
		if err := json.Unmarshal(job.Payload, &p); err != nil {
			return fmt.Errorf("decode %s payload: %w", job.Type, err)
		}
		_, err := h.orchestrator.SyncRefund(ctx, &p.Refund)
		return err

	case queue.JobTypeSyncJournalEntry:
		var p syncJournalEntryJobPayload
		if err := json.Unmarshal(job.Payload, &p); err != nil {
			return fmt.Errorf("decode %s payload: %w", job.Type, err)
		}
		_, err := h.orchestrator.SyncJournalEntry(ctx, &p.Entry)
		return err

	case queue.JobTypeSyncBankEntry:
		var p syncBankEntryJobPayload
		if err := json.Unmarshal(job.Payload, &p); err != nil {
			return fmt.Errorf("decode %s payload: %w", job.Type, err)
		}
		_, err := h.orchestrator.SyncBankEntry(ctx, &p.Entry)
		return err

	case queue.JobTypeImportCustomers:
		var p importJobPayload
		if err := json.Unmarshal(job.Payload, &p); err != nil {
			return fmt.Errorf("decode %s payload: %w", job.Type, err)
		}
		_, _, err := h.orchestrator.ImportCustomers(ctx, job.TenantID, p.System, p.Filters)
		return err

	case queue.JobTypeImportInvoices:
		var p importJobPayload
		if err := json.Unmarshal(job.Payload, &p); err != nil {
			return fmt.Errorf("decode %s payload: %w", job.Type, err)
		}
		_, _, err := h.orchestrator.ImportInvoices(ctx, job.TenantID, p.System, p.Filters)
		return err

	case queue.JobTypeImportChartOfAccounts:
		var p importJobPayload
		if err := json.Unmarshal(job.Payload, &p); err != nil {
			return fmt.Errorf("decode %s payload: %w", job.Type, err)
		}
		_, _, err := h.orchestrator.ImportChartOfAccounts(ctx, job.TenantID, p.System, p.Filters)
		return err

	case queue.JobTypeRetentionSweep:
		if h.retention == nil {
			return fmt.Errorf("retention service is not configured")
		}
		_, err := h.retention.RunOnce(ctx)
		return err

	default:
		return fmt.Errorf("unknown job type %q", job.Type)
	}
}
