package queue

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/finplat/backend/internal/domain/accounting"
)

// ---------------------------------------------------------------------------
// Sync Job Types
// ---------------------------------------------------------------------------

// JobType identifies the hub operation a queued job performs.
type JobType string

const (
	JobTypeSyncCustomer          JobType = "SYNC_CUSTOMER"
	JobTypeSyncInvoice           JobType = "SYNC_INVOICE"
	JobTypeSyncPayment           JobType = "SYNC_PAYMENT"
	JobTypeSyncRefund            JobType = "SYNC_REFUND"
	JobTypeSyncJournalEntry      JobType = "SYNC_JOURNAL_ENTRY"
	JobTypeSyncBankEntry         JobType = "SYNC_BANK_ENTRY"
	JobTypeImportCustomers       JobType = "IMPORT_CUSTOMERS"
	JobTypeImportInvoices        JobType = "IMPORT_INVOICES"
	JobTypeImportChartOfAccounts JobType = "IMPORT_CHART_OF_ACCOUNTS"
	JobTypeRetentionSweep        JobType = "RETENTION_SWEEP"
)

// JobStatus represents the lifecycle state of a queued job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "PENDING"
	JobStatusDelayed   JobStatus = "DELAYED"
	JobStatusRunning   JobStatus = "RUNNING"
	JobStatusCompleted JobStatus = "COMPLETED"
	JobStatusFailed    JobStatus = "FAILED"
	JobStatusCancelled JobStatus = "CANCELLED"
)

// JobPriority orders ready jobs; higher runs first. FIFO within a priority.
type JobPriority int

const (
	PriorityLow    JobPriority = 1
	PriorityNormal JobPriority = 5
	PriorityHigh   JobPriority = 10
)

// priorityCeiling bounds valid priorities so the ready-queue score stays
// monotonic. priorityBandWidth leaves room for 1e12 jobs per band.
const (
	priorityCeiling   = 100
	priorityBandWidth = 1e12
)

// SyncJob is one unit of queued sync work. Payload carries the operation
// input as JSON; the worker's handler knows how to decode it per Type.
type SyncJob struct {
	ID       uuid.UUID       `json:"id"`
	TenantID uuid.UUID       `json:"tenant_id"`
	Type     JobType         `json:"type"`
	Priority JobPriority     `json:"priority"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	// System is empty for fan-out jobs that target all enabled configs
	System      accounting.AccountingSystem `json:"system,omitempty"`
	Status      JobStatus                   `json:"status"`
	Attempts    int                         `json:"attempts"`
	MaxAttempts int                         `json:"max_attempts"`
	LastError   string                      `json:"last_error,omitempty"`
	EnqueuedAt  time.Time                   `json:"enqueued_at"`
	// ScheduledFor is when a delayed job becomes ready
	ScheduledFor *time.Time `json:"scheduled_for,omitempty"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// NewSyncJob creates a pending job with normal priority and the default
// retry budget.
func NewSyncJob(tenantID uuid.UUID, jobType JobType, payload json.RawMessage) *SyncJob {
	return &SyncJob{
		ID:          uuid.New(),
		TenantID:    tenantID,
		Type:        jobType,
		Priority:    PriorityNormal,
		Payload:     payload,
		Status:      JobStatusPending,
		MaxAttempts: 3,
		EnqueuedAt:  time.Now().UTC(),
	}
}

// WithPriority sets the job priority, clamped to the valid band.
func (j *SyncJob) WithPriority(p JobPriority) *SyncJob {
	if p < PriorityLow {
		p = PriorityLow
	}
	if p > priorityCeiling {
		p = priorityCeiling
	}
	j.Priority = p
	return j
}

// WithSystem targets the job at a single accounting system.
func (j *SyncJob) WithSystem(system accounting.AccountingSystem) *SyncJob {
	j.System = system
	return j
}

// Start marks the job running and counts the attempt.
func (j *SyncJob) Start() {
	now := time.Now().UTC()
	j.Status = JobStatusRunning
	j.StartedAt = &now
	j.Attempts++
}

// Complete marks the job done.
func (j *SyncJob) Complete() {
	now := time.Now().UTC()
	j.Status = JobStatusCompleted
	j.CompletedAt = &now
	j.LastError = ""
}

// Fail marks the job terminally failed.
func (j *SyncJob) Fail(errText string) {
	now := time.Now().UTC()
	j.Status = JobStatusFailed
	j.CompletedAt = &now
	j.LastError = errText
}

// Delay re-schedules the job to become ready at readyAt.
func (j *SyncJob) Delay(readyAt time.Time, errText string) {
	j.Status = JobStatusDelayed
	j.ScheduledFor = &readyAt
	j.LastError = errText
}

// AttemptsExhausted returns true once the retry budget is spent.
func (j *SyncJob) AttemptsExhausted() bool {
	return j.Attempts >= j.MaxAttempts
}

// NextBackoff returns the delay before the next attempt: base doubling per
// attempt already made, capped at max.
func (j *SyncJob) NextBackoff(base, max time.Duration) time.Duration {
	if base <= 0 {
		base = 2 * time.Second
	}
	attempt := j.Attempts
	if attempt < 1 {
		attempt = 1
	}
	delay := base * time.Duration(1<<(attempt-1))
	if max > 0 && delay > max {
		delay = max
	}
	return delay
}

// readyScore computes the ready-queue sorted-set score. Lower pops first:
// higher priorities land in lower bands, and the enqueue sequence breaks
// ties FIFO within a band.
func readyScore(priority JobPriority, seq int64) float64 {
	if priority < PriorityLow {
		priority = PriorityLow
	}
	if priority > priorityCeiling {
		priority = priorityCeiling
	}
	return float64(priorityCeiling-int(priority))*priorityBandWidth + float64(seq)
}
