package accounting

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// Error taxonomy
// ---------------------------------------------------------------------------

// ErrorCategory classifies a handled exception.
type ErrorCategory string

const (
	CategoryConnection     ErrorCategory = "CONNECTION"
	CategoryAuthentication ErrorCategory = "AUTHENTICATION"
	CategoryAuthorization  ErrorCategory = "AUTHORIZATION"
	CategoryValidation     ErrorCategory = "VALIDATION"
	CategoryMapping        ErrorCategory = "MAPPING"
	CategoryConflict       ErrorCategory = "CONFLICT"
	CategoryTimeout        ErrorCategory = "TIMEOUT"
	CategoryRateLimit      ErrorCategory = "RATE_LIMIT"
	CategorySystem         ErrorCategory = "SYSTEM"
	CategoryDataIntegrity  ErrorCategory = "DATA_INTEGRITY"
	CategoryUnknown        ErrorCategory = "UNKNOWN"
)

// String returns the string representation of ErrorCategory.
func (c ErrorCategory) String() string {
	return string(c)
}

// ErrorSeverity ranks how urgently a handled exception needs attention.
type ErrorSeverity string

const (
	SeverityLow      ErrorSeverity = "LOW"
	SeverityMedium   ErrorSeverity = "MEDIUM"
	SeverityHigh     ErrorSeverity = "HIGH"
	SeverityCritical ErrorSeverity = "CRITICAL"
)

// String returns the string representation of ErrorSeverity.
func (s ErrorSeverity) String() string {
	return string(s)
}

// ResolutionStatus tracks the lifecycle of a persisted sync error.
type ResolutionStatus string

const (
	ResolutionUnresolved       ResolutionStatus = "UNRESOLVED"
	ResolutionAutoResolved     ResolutionStatus = "AUTO_RESOLVED"
	ResolutionManuallyResolved ResolutionStatus = "MANUALLY_RESOLVED"
	ResolutionIgnored          ResolutionStatus = "IGNORED"
	ResolutionEscalated        ResolutionStatus = "ESCALATED"
)

// IsValid returns true if the status is valid.
func (r ResolutionStatus) IsValid() bool {
	switch r {
	case ResolutionUnresolved, ResolutionAutoResolved, ResolutionManuallyResolved,
		ResolutionIgnored, ResolutionEscalated:
		return true
	default:
		return false
	}
}

// ---------------------------------------------------------------------------
// SyncError
// ---------------------------------------------------------------------------

// ErrorContext is the structured context captured alongside a handled
// exception. RawError must already be sanitized before storage.
type ErrorContext struct {
	EntityType EntityType `json:"entity_type,omitempty"`
	EntityID   string     `json:"entity_id,omitempty"`
	Operation  string     `json:"operation,omitempty"`
	Endpoint   string     `json:"endpoint,omitempty"`
	HTTPStatus int        `json:"http_status,omitempty"`
	RawError   string     `json:"raw_error,omitempty"`
}

// SyncError is one row per handled exception.
type SyncError struct {
	ID       uuid.UUID
	TenantID uuid.UUID
	System   AccountingSystem
	// SyncLogID links the error to the sync attempt that produced it
	SyncLogID *uuid.UUID
	Severity  ErrorSeverity
	Category  ErrorCategory
	Message   string
	// VendorCode is the vendor's own error code, if any
	VendorCode string
	// StackTrace is sanitized (secrets redacted, length-capped)
	StackTrace string
	Context    ErrorContext
	// Retry scheduling
	IsRetryable bool
	RetryCount  int
	MaxRetries  int
	NextRetryAt *time.Time
	LastRetryAt *time.Time
	// Resolution lifecycle
	Resolution      ResolutionStatus
	ResolvedBy      string
	ResolutionNotes string
	ResolvedAt      *time.Time
	// AdminNotified records whether an admin alert was emitted
	AdminNotified bool
	SuggestedFix  string
	CreatedAt     time.Time
}

// Resolve transitions the error to a terminal resolution status.
func (e *SyncError) Resolve(status ResolutionStatus, notes, resolvedBy string, at time.Time) {
	e.Resolution = status
	e.ResolutionNotes = notes
	e.ResolvedBy = resolvedBy
	e.ResolvedAt = &at
}

// ScheduleRetry bumps the retry counter and records the next attempt time.
func (e *SyncError) ScheduleRetry(nextRetryAt time.Time) {
	now := time.Now()
	e.RetryCount++
	e.LastRetryAt = &now
	e.NextRetryAt = &nextRetryAt
}

// RetriesExhausted returns true if no further retries should be scheduled.
func (e *SyncError) RetriesExhausted() bool {
	return !e.IsRetryable || e.RetryCount >= e.MaxRetries
}

// ---------------------------------------------------------------------------
// SyncErrorRepository
// ---------------------------------------------------------------------------

// SyncErrorFilter defines filter criteria for querying sync errors.
type SyncErrorFilter struct {
	System     *AccountingSystem
	Category   *ErrorCategory
	Severity   *ErrorSeverity
	Resolution *ResolutionStatus
	StartTime  *time.Time
	EndTime    *time.Time
	Page       int
	PageSize   int
}

// SyncErrorRepository persists handled exceptions.
type SyncErrorRepository interface {
	// Create appends an error row
	Create(ctx context.Context, syncError *SyncError) error

	// FindByID finds an error by ID
	FindByID(ctx context.Context, id uuid.UUID) (*SyncError, error)

	// FindAll finds errors for a tenant matching the filter
	FindAll(ctx context.Context, tenantID uuid.UUID, filter SyncErrorFilter) ([]SyncError, error)

	// UpdateResolution persists a resolution transition
	UpdateResolution(ctx context.Context, syncError *SyncError) error

	// UpdateRetryState persists retry counters and timestamps
	UpdateRetryState(ctx context.Context, syncError *SyncError) error

	// DeleteOlderThan removes resolved errors past retention
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
