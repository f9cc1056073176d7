package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/finplat/backend/internal/domain/accounting"
)

// AccountingConfigModel is the persistence model for the accounting Config
// domain entity. Connection settings are stored as the encrypted blob only.
type AccountingConfigModel struct {
	ID                   uuid.UUID                   `gorm:"type:uuid;primary_key"`
	TenantID             uuid.UUID                   `gorm:"type:uuid;not null;uniqueIndex:idx_accounting_config_tenant_system,priority:1"`
	System               accounting.AccountingSystem `gorm:"type:varchar(20);not null;uniqueIndex:idx_accounting_config_tenant_system,priority:2"`
	Enabled              bool                        `gorm:"not null;default:false"`
	EncryptedSettings    string                      `gorm:"type:text;not null"`
	SyncSettingsJSON     string                      `gorm:"type:jsonb;column:sync_settings"`
	Status               accounting.ConfigStatus     `gorm:"type:varchar(20);not null;default:'ACTIVE';index"`
	LastSyncAt           *time.Time                  `gorm:"index"`
	LastError            string                      `gorm:"type:text"`
	ConsecutiveFailures  int                         `gorm:"not null;default:0"`
	LastConnectionTestAt *time.Time
	LastConnectionTestOK bool      `gorm:"column:last_connection_test_ok;not null;default:false"`
	CreatedAt            time.Time `gorm:"not null"`
	UpdatedAt            time.Time `gorm:"not null"`
	DeletedAt            *time.Time
}

// TableName returns the table name for GORM
func (AccountingConfigModel) TableName() string {
	return "accounting_configs"
}

// ToDomain converts the persistence model to a domain Config entity.
func (m *AccountingConfigModel) ToDomain() *accounting.Config {
	config := &accounting.Config{
		ID:                   m.ID,
		TenantID:             m.TenantID,
		System:               m.System,
		Enabled:              m.Enabled,
		EncryptedSettings:    m.EncryptedSettings,
		Status:               m.Status,
		LastSyncAt:           m.LastSyncAt,
		LastError:            m.LastError,
		ConsecutiveFailures:  m.ConsecutiveFailures,
		LastConnectionTestAt: m.LastConnectionTestAt,
		LastConnectionTestOK: m.LastConnectionTestOK,
		CreatedAt:            m.CreatedAt,
		UpdatedAt:            m.UpdatedAt,
		DeletedAt:            m.DeletedAt,
	}

	if m.SyncSettingsJSON != "" {
		var sync accounting.SyncSettings
		if err := json.Unmarshal([]byte(m.SyncSettingsJSON), &sync); err == nil {
			config.Sync = sync
		}
	}
	return config
}

// FromDomain populates the persistence model from a domain Config entity.
func (m *AccountingConfigModel) FromDomain(c *accounting.Config) {
	m.ID = c.ID
	m.TenantID = c.TenantID
	m.System = c.System
	m.Enabled = c.Enabled
	m.EncryptedSettings = c.EncryptedSettings
	m.Status = c.Status
	m.LastSyncAt = c.LastSyncAt
	m.LastError = c.LastError
	m.ConsecutiveFailures = c.ConsecutiveFailures
	m.LastConnectionTestAt = c.LastConnectionTestAt
	m.LastConnectionTestOK = c.LastConnectionTestOK
	m.CreatedAt = c.CreatedAt
	m.UpdatedAt = c.UpdatedAt
	m.DeletedAt = c.DeletedAt

	if jsonBytes, err := json.Marshal(c.Sync); err == nil {
		m.SyncSettingsJSON = string(jsonBytes)
	}
}

// AccountingConfigModelFromDomain creates a new persistence model from a
// domain Config entity.
func AccountingConfigModelFromDomain(c *accounting.Config) *AccountingConfigModel {
	m := &AccountingConfigModel{}
	m.FromDomain(c)
	return m
}

// SyncLogModel is the persistence model for sync and audit rows.
type SyncLogModel struct {
	ID               uuid.UUID                   `gorm:"type:uuid;primary_key"`
	TenantID         uuid.UUID                   `gorm:"type:uuid;not null;index:idx_sync_log_tenant_created,priority:1"`
	System           accounting.AccountingSystem `gorm:"type:varchar(20);not null;index"`
	Direction        accounting.SyncLogDirection `gorm:"type:varchar(10)"`
	EntityType       accounting.EntityType       `gorm:"type:varchar(30);index"`
	PlatformID       *uuid.UUID                  `gorm:"type:uuid"`
	ExternalID       string                      `gorm:"type:varchar(100)"`
	Status           accounting.SyncLogStatus    `gorm:"type:varchar(20);not null;index"`
	RecordsProcessed int                         `gorm:"not null;default:0"`
	RecordsSucceeded int                         `gorm:"not null;default:0"`
	RecordsFailed    int                         `gorm:"not null;default:0"`
	SyncData         string                      `gorm:"type:text"`
	ErrorDetails     string                      `gorm:"type:text"`
	DurationMs       int64                       `gorm:"not null;default:0"`
	BatchID          *uuid.UUID                  `gorm:"type:uuid;index"`
	InitiatedBy      string                      `gorm:"type:varchar(100)"`
	IsAuditEvent     bool                        `gorm:"not null;default:false;index"`
	EventType        accounting.AuditEventType   `gorm:"type:varchar(30);index"`
	Action           string                      `gorm:"type:varchar(200)"`
	UserID           *uuid.UUID                  `gorm:"type:uuid;index"`
	IPAddress        string                      `gorm:"type:varchar(45)"`
	UserAgent        string                      `gorm:"type:varchar(255)"`
	CreatedAt        time.Time                   `gorm:"not null;index:idx_sync_log_tenant_created,priority:2"`
	ExpiresAt        *time.Time                  `gorm:"index"`
}

// TableName returns the table name for GORM
func (SyncLogModel) TableName() string {
	return "accounting_sync_logs"
}

// ToDomain converts the persistence model to a domain SyncLog entity.
func (m *SyncLogModel) ToDomain() *accounting.SyncLog {
	return &accounting.SyncLog{
		ID:               m.ID,
		TenantID:         m.TenantID,
		System:           m.System,
		Direction:        m.Direction,
		EntityType:       m.EntityType,
		PlatformID:       m.PlatformID,
		ExternalID:       m.ExternalID,
		Status:           m.Status,
		RecordsProcessed: m.RecordsProcessed,
		RecordsSucceeded: m.RecordsSucceeded,
		RecordsFailed:    m.RecordsFailed,
		SyncData:         m.SyncData,
		ErrorDetails:     m.ErrorDetails,
		Duration:         time.Duration(m.DurationMs) * time.Millisecond,
		BatchID:          m.BatchID,
		InitiatedBy:      m.InitiatedBy,
		IsAuditEvent:     m.IsAuditEvent,
		EventType:        m.EventType,
		Action:           m.Action,
		UserID:           m.UserID,
		IPAddress:        m.IPAddress,
		UserAgent:        m.UserAgent,
		CreatedAt:        m.CreatedAt,
		ExpiresAt:        m.ExpiresAt,
	}
}

// FromDomain populates the persistence model from a domain SyncLog entity.
func (m *SyncLogModel) FromDomain(l *accounting.SyncLog) {
	m.ID = l.ID
	m.TenantID = l.TenantID
	m.System = l.System
	m.Direction = l.Direction
	m.EntityType = l.EntityType
	m.PlatformID = l.PlatformID
	m.ExternalID = l.ExternalID
	m.Status = l.Status
	m.RecordsProcessed = l.RecordsProcessed
	m.RecordsSucceeded = l.RecordsSucceeded
	m.RecordsFailed = l.RecordsFailed
	m.SyncData = l.SyncData
	m.ErrorDetails = l.ErrorDetails
	m.DurationMs = l.Duration.Milliseconds()
	m.BatchID = l.BatchID
	m.InitiatedBy = l.InitiatedBy
	m.IsAuditEvent = l.IsAuditEvent
	m.EventType = l.EventType
	m.Action = l.Action
	m.UserID = l.UserID
	m.IPAddress = l.IPAddress
	m.UserAgent = l.UserAgent
	m.CreatedAt = l.CreatedAt
	m.ExpiresAt = l.ExpiresAt
}

// SyncLogModelFromDomain creates a new persistence model from a domain
// SyncLog entity.
func SyncLogModelFromDomain(l *accounting.SyncLog) *SyncLogModel {
	m := &SyncLogModel{}
	m.FromDomain(l)
	return m
}

// SyncErrorModel is the persistence model for handled exceptions.
type SyncErrorModel struct {
	ID              uuid.UUID                   `gorm:"type:uuid;primary_key"`
	TenantID        uuid.UUID                   `gorm:"type:uuid;not null;index:idx_sync_error_tenant_created,priority:1"`
	System          accounting.AccountingSystem `gorm:"type:varchar(20);not null;index"`
	SyncLogID       *uuid.UUID                  `gorm:"type:uuid;index"`
	Severity        accounting.ErrorSeverity    `gorm:"type:varchar(10);not null;index"`
	Category        accounting.ErrorCategory    `gorm:"type:varchar(20);not null;index"`
	Message         string                      `gorm:"type:text;not null"`
	VendorCode      string                      `gorm:"type:varchar(50)"`
	StackTrace      string                      `gorm:"type:text"`
	ContextJSON     string                      `gorm:"type:jsonb;column:context"`
	IsRetryable     bool                        `gorm:"not null;default:false"`
	RetryCount      int                         `gorm:"not null;default:0"`
	MaxRetries      int                         `gorm:"not null;default:0"`
	NextRetryAt     *time.Time                  `gorm:"index"`
	LastRetryAt     *time.Time
	Resolution      accounting.ResolutionStatus `gorm:"type:varchar(20);not null;default:'UNRESOLVED';index"`
	ResolvedBy      string                      `gorm:"type:varchar(100)"`
	ResolutionNotes string                      `gorm:"type:text"`
	ResolvedAt      *time.Time
	AdminNotified   bool      `gorm:"not null;default:false"`
	SuggestedFix    string    `gorm:"type:text"`
	CreatedAt       time.Time `gorm:"not null;index:idx_sync_error_tenant_created,priority:2"`
}

// TableName returns the table name for GORM
func (SyncErrorModel) TableName() string {
	return "accounting_sync_errors"
}

// ToDomain converts the persistence model to a domain SyncError entity.
func (m *SyncErrorModel) ToDomain() *accounting.SyncError {
	syncError := &accounting.SyncError{
		ID:              m.ID,
		TenantID:        m.TenantID,
		System:          m.System,
		SyncLogID:       m.SyncLogID,
		Severity:        m.Severity,
		Category:        m.Category,
		Message:         m.Message,
		VendorCode:      m.VendorCode,
		StackTrace:      m.StackTrace,
		IsRetryable:     m.IsRetryable,
		RetryCount:      m.RetryCount,
		MaxRetries:      m.MaxRetries,
		NextRetryAt:     m.NextRetryAt,
		LastRetryAt:     m.LastRetryAt,
		Resolution:      m.Resolution,
		ResolvedBy:      m.ResolvedBy,
		ResolutionNotes: m.ResolutionNotes,
		ResolvedAt:      m.ResolvedAt,
		AdminNotified:   m.AdminNotified,
		SuggestedFix:    m.SuggestedFix,
		CreatedAt:       m.CreatedAt,
	}

	if m.ContextJSON != "" {
		var errCtx accounting.ErrorContext
		if err := json.Unmarshal([]byte(m.ContextJSON), &errCtx); err == nil {
			syncError.Context = errCtx
		}
	}
	return syncError
}

// FromDomain populates the persistence model from a domain SyncError entity.
func (m *SyncErrorModel) FromDomain(e *accounting.SyncError) {
	m.ID = e.ID
	m.TenantID = e.TenantID
	m.System = e.System
	m.SyncLogID = e.SyncLogID
	m.Severity = e.Severity
	m.Category = e.Category
	m.Message = e.Message
	m.VendorCode = e.VendorCode
	m.StackTrace = e.StackTrace
	m.IsRetryable = e.IsRetryable
	m.RetryCount = e.RetryCount
	m.MaxRetries = e.MaxRetries
	m.NextRetryAt = e.NextRetryAt
	m.LastRetryAt = e.LastRetryAt
	m.Resolution = e.Resolution
	m.ResolvedBy = e.ResolvedBy
	m.ResolutionNotes = e.ResolutionNotes
	m.ResolvedAt = e.ResolvedAt
	m.AdminNotified = e.AdminNotified
	m.SuggestedFix = e.SuggestedFix
	m.CreatedAt = e.CreatedAt

	if jsonBytes, err := json.Marshal(e.Context); err == nil {
		m.ContextJSON = string(jsonBytes)
	}
}

// SyncErrorModelFromDomain creates a new persistence model from a domain
// SyncError entity.
func SyncErrorModelFromDomain(e *accounting.SyncError) *SyncErrorModel {
	m := &SyncErrorModel{}
	m.FromDomain(e)
	return m
}
