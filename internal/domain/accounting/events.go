package accounting

import (
	"time"

	"github.com/google/uuid"

	"github.com/finplat/backend/internal/domain/shared"
)

// Aggregate type constants
const (
	AggregateTypeAccountingConfig = "AccountingConfig"
	AggregateTypeSyncError        = "SyncError"
)

// Event type constants. These names cross module boundaries; the admin
// alerting subscriber matches on them.
const (
	EventTypeSyncError        = "accounting.sync.error"
	EventTypeSyncCompleted    = "accounting.sync.completed"
	EventTypeConfigAutoPaused = "accounting.config.auto_paused"
	EventTypeCredentialUpdate = "accounting.credential.updated"
)

// SyncErrorEvent is published when a handled exception warrants admin
// attention. Message and context are already sanitized.
type SyncErrorEvent struct {
	shared.BaseDomainEvent
	SyncErrorID  uuid.UUID        `json:"sync_error_id"`
	System       AccountingSystem `json:"system"`
	Category     ErrorCategory    `json:"category"`
	Severity     ErrorSeverity    `json:"severity"`
	Message      string           `json:"message"`
	SuggestedFix string           `json:"suggested_fix,omitempty"`
	IsRetryable  bool             `json:"is_retryable"`
}

// NewSyncErrorEvent creates a new SyncErrorEvent
func NewSyncErrorEvent(syncError *SyncError) *SyncErrorEvent {
	return &SyncErrorEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(
			EventTypeSyncError,
			AggregateTypeSyncError,
			syncError.ID,
			syncError.TenantID,
		),
		SyncErrorID:  syncError.ID,
		System:       syncError.System,
		Category:     syncError.Category,
		Severity:     syncError.Severity,
		Message:      syncError.Message,
		SuggestedFix: syncError.SuggestedFix,
		IsRetryable:  syncError.IsRetryable,
	}
}

// SyncCompletedEvent is published after a fan-out finishes, successful or not.
type SyncCompletedEvent struct {
	shared.BaseDomainEvent
	System           AccountingSystem `json:"system"`
	EntityType       EntityType       `json:"entity_type"`
	Direction        SyncLogDirection `json:"direction"`
	Success          bool             `json:"success"`
	RecordsProcessed int              `json:"records_processed"`
	Duration         time.Duration    `json:"duration"`
}

// NewSyncCompletedEvent creates a new SyncCompletedEvent
func NewSyncCompletedEvent(config *Config, entityType EntityType, direction SyncLogDirection, result *SyncResult) *SyncCompletedEvent {
	return &SyncCompletedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(
			EventTypeSyncCompleted,
			AggregateTypeAccountingConfig,
			config.ID,
			config.TenantID,
		),
		System:           config.System,
		EntityType:       entityType,
		Direction:        direction,
		Success:          result.Success,
		RecordsProcessed: result.RecordsProcessed,
		Duration:         result.Duration,
	}
}

// ConfigAutoPausedEvent is published when consecutive sync failures push a
// config over the auto-pause threshold.
type ConfigAutoPausedEvent struct {
	shared.BaseDomainEvent
	System              AccountingSystem `json:"system"`
	ConsecutiveFailures int              `json:"consecutive_failures"`
	LastError           string           `json:"last_error,omitempty"`
}

// NewConfigAutoPausedEvent creates a new ConfigAutoPausedEvent
func NewConfigAutoPausedEvent(config *Config) *ConfigAutoPausedEvent {
	return &ConfigAutoPausedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(
			EventTypeConfigAutoPaused,
			AggregateTypeAccountingConfig,
			config.ID,
			config.TenantID,
		),
		System:              config.System,
		ConsecutiveFailures: config.ConsecutiveFailures,
		LastError:           config.LastError,
	}
}

// CredentialUpdateEvent is published when a config's credentials change.
// It carries field names only, never values.
type CredentialUpdateEvent struct {
	shared.BaseDomainEvent
	System        AccountingSystem `json:"system"`
	UpdatedFields []string         `json:"updated_fields"`
	UpdatedBy     string           `json:"updated_by,omitempty"`
}

// NewCredentialUpdateEvent creates a new CredentialUpdateEvent
func NewCredentialUpdateEvent(config *Config, updatedFields []string, updatedBy string) *CredentialUpdateEvent {
	return &CredentialUpdateEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(
			EventTypeCredentialUpdate,
			AggregateTypeAccountingConfig,
			config.ID,
			config.TenantID,
		),
		System:        config.System,
		UpdatedFields: updatedFields,
		UpdatedBy:     updatedBy,
	}
}
