package accounting

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// SyncLogStatus
// ---------------------------------------------------------------------------

// SyncLogStatus represents the status of a sync attempt.
type SyncLogStatus string

const (
	SyncLogStatusPending  SyncLogStatus = "PENDING"
	SyncLogStatusSuccess  SyncLogStatus = "SUCCESS"
	SyncLogStatusFailed   SyncLogStatus = "FAILED"
	SyncLogStatusPartial  SyncLogStatus = "PARTIAL"
	SyncLogStatusRetrying SyncLogStatus = "RETRYING"
)

// IsValid returns true if the status is valid.
func (s SyncLogStatus) IsValid() bool {
	switch s {
	case SyncLogStatusPending, SyncLogStatusSuccess, SyncLogStatusFailed,
		SyncLogStatusPartial, SyncLogStatusRetrying:
		return true
	default:
		return false
	}
}

// String returns the string representation of SyncLogStatus.
func (s SyncLogStatus) String() string {
	return string(s)
}

// SyncLogDirection is the direction of one logged sync attempt.
type SyncLogDirection string

const (
	SyncLogDirectionImport SyncLogDirection = "IMPORT"
	SyncLogDirectionExport SyncLogDirection = "EXPORT"
)

// ---------------------------------------------------------------------------
// Audit event types
// ---------------------------------------------------------------------------

// AuditEventType tags audit-trail rows stored alongside sync logs.
type AuditEventType string

const (
	AuditEventSyncStart        AuditEventType = "SYNC_START"
	AuditEventSyncComplete     AuditEventType = "SYNC_COMPLETE"
	AuditEventConfigChange     AuditEventType = "CONFIG_CHANGE"
	AuditEventCredentialUpdate AuditEventType = "CREDENTIAL_UPDATE"
	AuditEventManualAction     AuditEventType = "MANUAL_ACTION"
	AuditEventSystem           AuditEventType = "SYSTEM_EVENT"
)

// IsValid returns true if the event type is valid.
func (t AuditEventType) IsValid() bool {
	switch t {
	case AuditEventSyncStart, AuditEventSyncComplete, AuditEventConfigChange,
		AuditEventCredentialUpdate, AuditEventManualAction, AuditEventSystem:
		return true
	default:
		return false
	}
}

// ---------------------------------------------------------------------------
// SyncLog
// ---------------------------------------------------------------------------

// maxSyncLogPayload bounds the free-form payload columns so a single row
// cannot grow without limit.
const maxSyncLogPayload = 8192

// SyncLog is one row per sync attempt. The audit trail reuses the same row
// shape with IsAuditEvent set. Rows are immutable after creation except for
// archival/deletion past retention.
type SyncLog struct {
	ID         uuid.UUID
	TenantID   uuid.UUID
	System     AccountingSystem
	Direction  SyncLogDirection
	EntityType EntityType
	// PlatformID/ExternalID link the synced record on both sides, if known
	PlatformID *uuid.UUID
	ExternalID string
	Status     SyncLogStatus
	// Counts for batch operations
	RecordsProcessed int
	RecordsSucceeded int
	RecordsFailed    int
	// SyncData/ErrorDetails are free-form, size-bounded payloads
	SyncData     string
	ErrorDetails string
	Duration     time.Duration
	// BatchID groups rows created by one job/fan-out
	BatchID *uuid.UUID
	// InitiatedBy identifies the user or subsystem that triggered the sync
	InitiatedBy string
	// Audit-trail fields
	IsAuditEvent bool
	EventType    AuditEventType
	Action       string
	UserID       *uuid.UUID
	IPAddress    string
	UserAgent    string
	CreatedAt    time.Time
	// ExpiresAt optionally marks the row for retention cleanup
	ExpiresAt *time.Time
}

// TruncatePayloads enforces the payload size bound in place.
func (l *SyncLog) TruncatePayloads() {
	if len(l.SyncData) > maxSyncLogPayload {
		l.SyncData = l.SyncData[:maxSyncLogPayload]
	}
	if len(l.ErrorDetails) > maxSyncLogPayload {
		l.ErrorDetails = l.ErrorDetails[:maxSyncLogPayload]
	}
}

// ---------------------------------------------------------------------------
// SyncLogRepository
// ---------------------------------------------------------------------------

// SyncLogFilter defines filter criteria for querying sync logs.
type SyncLogFilter struct {
	System       *AccountingSystem
	EntityType   *EntityType
	Status       *SyncLogStatus
	Direction    *SyncLogDirection
	AuditOnly    bool
	EventType    *AuditEventType
	UserID       *uuid.UUID
	BatchID      *uuid.UUID
	StartTime    *time.Time
	EndTime      *time.Time
	Page         int
	PageSize     int
}

// SyncLogRepository persists sync and audit rows.
type SyncLogRepository interface {
	// Create appends a row; rows are never updated afterwards
	Create(ctx context.Context, log *SyncLog) error

	// FindByID finds a row by ID
	FindByID(ctx context.Context, id uuid.UUID) (*SyncLog, error)

	// FindAll finds rows for a tenant matching the filter
	FindAll(ctx context.Context, tenantID uuid.UUID, filter SyncLogFilter) ([]SyncLog, error)

	// Count counts rows for a tenant matching the filter
	Count(ctx context.Context, tenantID uuid.UUID, filter SyncLogFilter) (int64, error)

	// CountByEventType aggregates audit rows by event type over a range
	CountByEventType(ctx context.Context, tenantID uuid.UUID, start, end time.Time) (map[AuditEventType]int64, error)

	// CountByUser aggregates audit rows by initiating user over a range
	CountByUser(ctx context.Context, tenantID uuid.UUID, start, end time.Time) (map[string]int64, error)

	// FindExpired returns audit rows created before the cutoff, up to limit
	FindExpired(ctx context.Context, cutoff time.Time, auditOnly bool, limit int) ([]SyncLog, error)

	// DeleteByIDs removes archived rows
	DeleteByIDs(ctx context.Context, ids []uuid.UUID) error
}
