package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/finplat/backend/internal/domain/accounting"
	"github.com/finplat/backend/internal/infrastructure/persistence/models"
)

// GormSyncLogRepository implements accounting.SyncLogRepository using GORM
type GormSyncLogRepository struct {
	db *gorm.DB
}

var _ accounting.SyncLogRepository = (*GormSyncLogRepository)(nil)

// NewGormSyncLogRepository creates a new GormSyncLogRepository
func NewGormSyncLogRepository(db *gorm.DB) *GormSyncLogRepository {
	return &GormSyncLogRepository{db: db}
}

// Create appends a row; rows are never updated afterwards
func (r *GormSyncLogRepository) Create(ctx context.Context, log *accounting.SyncLog) error {
	log.TruncatePayloads()
	model := models.SyncLogModelFromDomain(log)
	return r.db.WithContext(ctx).Create(model).Error
}

// FindByID finds a row by ID
func (r *GormSyncLogRepository) FindByID(ctx context.Context, id uuid.UUID) (*accounting.SyncLog, error) {
	var model models.SyncLogModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, accounting.ErrSyncLogNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindAll finds rows for a tenant matching the filter
func (r *GormSyncLogRepository) FindAll(ctx context.Context, tenantID uuid.UUID, filter accounting.SyncLogFilter) ([]accounting.SyncLog, error) {
	query := r.filtered(ctx, tenantID, filter)
	if filter.PageSize > 0 {
		page := filter.Page
		if page < 1 {
			page = 1
		}
		query = query.Offset((page - 1) * filter.PageSize).Limit(filter.PageSize)
	}

	var logModels []models.SyncLogModel
	if err := query.Order("created_at DESC").Find(&logModels).Error; err != nil {
		return nil, err
	}

	logs := make([]accounting.SyncLog, len(logModels))
	for i, model := range logModels {
		logs[i] = *model.ToDomain()
	}
	return logs, nil
}

// Count counts rows for a tenant matching the filter
func (r *GormSyncLogRepository) Count(ctx context.Context, tenantID uuid.UUID, filter accounting.SyncLogFilter) (int64, error) {
	var count int64
	err := r.filtered(ctx, tenantID, filter).Model(&models.SyncLogModel{}).Count(&count).Error
	return count, err
}

// CountByEventType aggregates audit rows by event type over a range
func (r *GormSyncLogRepository) CountByEventType(ctx context.Context, tenantID uuid.UUID, start, end time.Time) (map[accounting.AuditEventType]int64, error) {
	var rows []struct {
		EventType accounting.AuditEventType
		Count     int64
	}
	if err := r.db.WithContext(ctx).
		Model(&models.SyncLogModel{}).
		Select("event_type, count(*) as count").
		Where("tenant_id = ? AND is_audit_event = ? AND created_at BETWEEN ? AND ?", tenantID, true, start, end).
		Group("event_type").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	counts := make(map[accounting.AuditEventType]int64, len(rows))
	for _, row := range rows {
		counts[row.EventType] = row.Count
	}
	return counts, nil
}

// CountByUser aggregates audit rows by initiating user over a range
func (r *GormSyncLogRepository) CountByUser(ctx context.Context, tenantID uuid.UUID, start, end time.Time) (map[string]int64, error) {
	var rows []struct {
		InitiatedBy string
		Count       int64
	}
	if err := r.db.WithContext(ctx).
		Model(&models.SyncLogModel{}).
		Select("initiated_by, count(*) as count").
		Where("tenant_id = ? AND is_audit_event = ? AND created_at BETWEEN ? AND ?", tenantID, true, start, end).
		Group("initiated_by").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.InitiatedBy] = row.Count
	}
	return counts, nil
}

// FindExpired returns rows created before the cutoff, up to limit
func (r *GormSyncLogRepository) FindExpired(ctx context.Context, cutoff time.Time, auditOnly bool, limit int) ([]accounting.SyncLog, error) {
	query := r.db.WithContext(ctx).Where("created_at < ?", cutoff)
	if auditOnly {
		query = query.Where("is_audit_event = ?", true)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	var logModels []models.SyncLogModel
	if err := query.Order("created_at ASC").Find(&logModels).Error; err != nil {
		return nil, err
	}

	logs := make([]accounting.SyncLog, len(logModels))
	for i, model := range logModels {
		logs[i] = *model.ToDomain()
	}
	return logs, nil
}

// DeleteByIDs removes archived rows
func (r *GormSyncLogRepository) DeleteByIDs(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Delete(&models.SyncLogModel{}, "id IN ?", ids).Error
}

func (r *GormSyncLogRepository) filtered(ctx context.Context, tenantID uuid.UUID, filter accounting.SyncLogFilter) *gorm.DB {
	query := r.db.WithContext(ctx).Where("tenant_id = ?", tenantID)

	if filter.System != nil {
		query = query.Where("system = ?", *filter.System)
	}
	if filter.EntityType != nil {
		query = query.Where("entity_type = ?", *filter.EntityType)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.Direction != nil {
		query = query.Where("direction = ?", *filter.Direction)
	}
	if filter.AuditOnly {
		query = query.Where("is_audit_event = ?", true)
	}
	if filter.EventType != nil {
		query = query.Where("event_type = ?", *filter.EventType)
	}
	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}
	if filter.BatchID != nil {
		query = query.Where("batch_id = ?", *filter.BatchID)
	}
	if filter.StartTime != nil {
		query = query.Where("created_at >= ?", *filter.StartTime)
	}
	if filter.EndTime != nil {
		query = query.Where("created_at <= ?", *filter.EndTime)
	}
	return query
}
