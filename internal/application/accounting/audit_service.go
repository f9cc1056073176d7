package accounting

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/finplat/backend/internal/domain/accounting"
)

// ArchiveStore is the port to the object store audit batches are archived to
// before deletion. Implemented by storage.S3ArchiveStore and
// storage.MemoryArchiveStore.
type ArchiveStore interface {
	ArchiveKey(tenantID uuid.UUID, archivedAt time.Time, batchID uuid.UUID) string
	StoreArchive(ctx context.Context, storageKey string, data []byte) error
}

// AuditActor identifies who performed an audited action and from where.
type AuditActor struct {
	UserID    *uuid.UUID
	Name      string
	IPAddress string
	UserAgent string
}

// ComplianceReport aggregates audit activity over a period.
type ComplianceReport struct {
	TenantID    uuid.UUID                           `json:"tenant_id"`
	PeriodStart time.Time                           `json:"period_start"`
	PeriodEnd   time.Time                           `json:"period_end"`
	TotalEvents int64                               `json:"total_events"`
	ByEventType map[accounting.AuditEventType]int64 `json:"by_event_type"`
	ByUser      map[string]int64                    `json:"by_user"`
	GeneratedAt time.Time                           `json:"generated_at"`
}

// AuditService writes and queries the audit trail. Audit rows share the
// sync-log table, tagged IsAuditEvent. Writes are best-effort for callers on
// the sync path; the typed helpers return the error so lifecycle callers
// (config changes, credential updates) can still surface it.
type AuditService struct {
	logRepo accounting.SyncLogRepository
	archive ArchiveStore
	logger  *zap.Logger
}

// NewAuditService creates a new AuditService. The archive store is optional;
// without it, expired rows are deleted without archival.
func NewAuditService(logRepo accounting.SyncLogRepository, archive ArchiveStore, logger *zap.Logger) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditService{
		logRepo: logRepo,
		archive: archive,
		logger:  logger,
	}
}

// ---------------------------------------------------------------------------
// Typed audit helpers
// ---------------------------------------------------------------------------

// LogSyncStart records the start of a sync fan-out.
func (s *AuditService) LogSyncStart(
	ctx context.Context,
	tenantID uuid.UUID,
	system accounting.AccountingSystem,
	entityType accounting.EntityType,
	direction accounting.SyncLogDirection,
	batchID *uuid.UUID,
	initiatedBy string,
) error {
	return s.append(ctx, &accounting.SyncLog{
		TenantID:    tenantID,
		System:      system,
		Direction:   direction,
		EntityType:  entityType,
		BatchID:     batchID,
		InitiatedBy: initiatedBy,
		EventType:   accounting.AuditEventSyncStart,
		Action:      "sync started",
	})
}

// LogSyncComplete records the outcome of one config's sync attempt.
func (s *AuditService) LogSyncComplete(
	ctx context.Context,
	config *accounting.Config,
	entityType accounting.EntityType,
	direction accounting.SyncLogDirection,
	result *accounting.SyncResult,
	batchID *uuid.UUID,
) error {
	action := "sync completed"
	if !result.Success {
		action = "sync failed"
	}
	return s.append(ctx, &accounting.SyncLog{
		TenantID:         config.TenantID,
		System:           config.System,
		Direction:        direction,
		EntityType:       entityType,
		ExternalID:       result.ExternalID,
		RecordsProcessed: result.RecordsProcessed,
		RecordsSucceeded: result.RecordsSucceeded,
		RecordsFailed:    result.RecordsFailed,
		Duration:         result.Duration,
		BatchID:          batchID,
		EventType:        accounting.AuditEventSyncComplete,
		Action:           action,
	})
}

// LogConfigChange records a configuration change.
func (s *AuditService) LogConfigChange(
	ctx context.Context,
	config *accounting.Config,
	action string,
	actor AuditActor,
) error {
	return s.append(ctx, &accounting.SyncLog{
		TenantID:    config.TenantID,
		System:      config.System,
		EventType:   accounting.AuditEventConfigChange,
		Action:      action,
		UserID:      actor.UserID,
		InitiatedBy: actor.Name,
		IPAddress:   actor.IPAddress,
		UserAgent:   actor.UserAgent,
	})
}

// LogCredentialUpdate records a credential change. Only field names are
// logged, never values.
func (s *AuditService) LogCredentialUpdate(
	ctx context.Context,
	config *accounting.Config,
	updatedFields []string,
	actor AuditActor,
) error {
	payload, _ := json.Marshal(map[string][]string{"updated_fields": updatedFields})
	return s.append(ctx, &accounting.SyncLog{
		TenantID:    config.TenantID,
		System:      config.System,
		EventType:   accounting.AuditEventCredentialUpdate,
		Action:      "credentials updated: " + strings.Join(updatedFields, ", "),
		SyncData:    string(payload),
		UserID:      actor.UserID,
		InitiatedBy: actor.Name,
		IPAddress:   actor.IPAddress,
		UserAgent:   actor.UserAgent,
	})
}

// LogManualAction records an operator-initiated action (manual retry,
// pause/resume, error resolution).
func (s *AuditService) LogManualAction(
	ctx context.Context,
	tenantID uuid.UUID,
	system accounting.AccountingSystem,
	action string,
	actor AuditActor,
) error {
	return s.append(ctx, &accounting.SyncLog{
		TenantID:    tenantID,
		System:      system,
		EventType:   accounting.AuditEventManualAction,
		Action:      action,
		UserID:      actor.UserID,
		InitiatedBy: actor.Name,
		IPAddress:   actor.IPAddress,
		UserAgent:   actor.UserAgent,
	})
}

// LogSystemEvent records a hub-initiated event (auto-pause, retention sweep).
func (s *AuditService) LogSystemEvent(
	ctx context.Context,
	tenantID uuid.UUID,
	system accounting.AccountingSystem,
	action string,
) error {
	return s.append(ctx, &accounting.SyncLog{
		TenantID:    tenantID,
		System:      system,
		EventType:   accounting.AuditEventSystem,
		Action:      action,
		InitiatedBy: "system",
	})
}

func (s *AuditService) append(ctx context.Context, row *accounting.SyncLog) error {
	row.ID = uuid.New()
	row.IsAuditEvent = true
	if row.Status == "" {
		row.Status = accounting.SyncLogStatusSuccess
	}
	row.CreatedAt = time.Now()
	if err := s.logRepo.Create(ctx, row); err != nil {
		s.logger.Error("Failed to write audit row",
			zap.String("tenant_id", row.TenantID.String()),
			zap.String("event_type", string(row.EventType)),
			zap.Error(err),
		)
		return err
	}
	return nil
}

// ---------------------------------------------------------------------------
// Queries
// ---------------------------------------------------------------------------

// Query returns audit rows for a tenant. The filter is forced to audit rows
// regardless of what the caller set.
func (s *AuditService) Query(ctx context.Context, tenantID uuid.UUID, filter accounting.SyncLogFilter) ([]accounting.SyncLog, int64, error) {
	filter.AuditOnly = true
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 50
	}

	rows, err := s.logRepo.FindAll(ctx, tenantID, filter)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.logRepo.Count(ctx, tenantID, filter)
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// GenerateComplianceReport aggregates audit activity by event type and user
// over the period.
func (s *AuditService) GenerateComplianceReport(ctx context.Context, tenantID uuid.UUID, start, end time.Time) (*ComplianceReport, error) {
	byType, err := s.logRepo.CountByEventType(ctx, tenantID, start, end)
	if err != nil {
		return nil, err
	}
	byUser, err := s.logRepo.CountByUser(ctx, tenantID, start, end)
	if err != nil {
		return nil, err
	}

	var total int64
	for _, n := range byType {
		total += n
	}

	return &ComplianceReport{
		TenantID:    tenantID,
		PeriodStart: start,
		PeriodEnd:   end,
		TotalEvents: total,
		ByEventType: byType,
		ByUser:      byUser,
		GeneratedAt: time.Now(),
	}, nil
}

// ---------------------------------------------------------------------------
// Retention
// ---------------------------------------------------------------------------

// archiveBatch is the JSON shape written to the archive store.
type archiveBatch struct {
	BatchID    uuid.UUID            `json:"batch_id"`
	ArchivedAt time.Time            `json:"archived_at"`
	Rows       []accounting.SyncLog `json:"rows"`
}

// ArchiveExpired archives and deletes one batch of audit rows older than the
// cutoff. Returns the number of rows removed; callers loop until it reports
// zero. When no archive store is configured, rows are deleted directly.
func (s *AuditService) ArchiveExpired(ctx context.Context, cutoff time.Time, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = 500
	}

	rows, err := s.logRepo.FindExpired(ctx, cutoff, true, batchSize)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}

	// Group rows per tenant so each archive object stays tenant-scoped.
	byTenant := make(map[uuid.UUID][]accounting.SyncLog)
	for _, row := range rows {
		byTenant[row.TenantID] = append(byTenant[row.TenantID], row)
	}

	ids := make([]uuid.UUID, 0, len(rows))
	now := time.Now()
	for tenantID, tenantRows := range byTenant {
		if s.archive != nil {
			batch := archiveBatch{BatchID: uuid.New(), ArchivedAt: now, Rows: tenantRows}
			data, err := json.Marshal(batch)
			if err != nil {
				return 0, err
			}
			key := s.archive.ArchiveKey(tenantID, now, batch.BatchID)
			if err := s.archive.StoreArchive(ctx, key, data); err != nil {
				// Keep the rows when the upload fails; the next sweep retries.
				s.logger.Error("Failed to archive audit batch",
					zap.String("tenant_id", tenantID.String()),
					zap.String("key", key),
					zap.Error(err),
				)
				continue
			}
			s.logger.Info("Archived audit batch",
				zap.String("tenant_id", tenantID.String()),
				zap.String("key", key),
				zap.Int("rows", len(tenantRows)),
			)
		}
		for _, row := range tenantRows {
			ids = append(ids, row.ID)
		}
	}

	if len(ids) == 0 {
		return 0, nil
	}
	if err := s.logRepo.DeleteByIDs(ctx, ids); err != nil {
		return 0, err
	}
	return len(ids), nil
}
