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

// GormSyncErrorRepository implements accounting.SyncErrorRepository using GORM
type GormSyncErrorRepository struct {
	db *gorm.DB
}

var _ accounting.SyncErrorRepository = (*GormSyncErrorRepository)(nil)

// NewGormSyncErrorRepository creates a new GormSyncErrorRepository
func NewGormSyncErrorRepository(db *gorm.DB) *GormSyncErrorRepository {
	return &GormSyncErrorRepository{db: db}
}

// Create appends an error row
func (r *GormSyncErrorRepository) Create(ctx context.Context, syncError *accounting.SyncError) error {
	model := models.SyncErrorModelFromDomain(syncError)
	return r.db.WithContext(ctx).Create(model).Error
}

// FindByID finds an error by ID
func (r *GormSyncErrorRepository) FindByID(ctx context.Context, id uuid.UUID) (*accounting.SyncError, error) {
	var model models.SyncErrorModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, accounting.ErrSyncErrorNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindAll finds errors for a tenant matching the filter
func (r *GormSyncErrorRepository) FindAll(ctx context.Context, tenantID uuid.UUID, filter accounting.SyncErrorFilter) ([]accounting.SyncError, error) {
	query := r.db.WithContext(ctx).Where("tenant_id = ?", tenantID)

	if filter.System != nil {
		query = query.Where("system = ?", *filter.System)
	}
	if filter.Category != nil {
		query = query.Where("category = ?", *filter.Category)
	}
	if filter.Severity != nil {
		query = query.Where("severity = ?", *filter.Severity)
	}
	if filter.Resolution != nil {
		query = query.Where("resolution = ?", *filter.Resolution)
	}
	if filter.StartTime != nil {
		query = query.Where("created_at >= ?", *filter.StartTime)
	}
	if filter.EndTime != nil {
		query = query.Where("created_at <= ?", *filter.EndTime)
	}
	if filter.PageSize > 0 {
		page := filter.Page
		if page < 1 {
			page = 1
		}
		query = query.Offset((page - 1) * filter.PageSize).Limit(filter.PageSize)
	}

	var errorModels []models.SyncErrorModel
	if err := query.Order("created_at DESC").Find(&errorModels).Error; err != nil {
		return nil, err
	}

	syncErrors := make([]accounting.SyncError, len(errorModels))
	for i, model := range errorModels {
		syncErrors[i] = *model.ToDomain()
	}
	return syncErrors, nil
}

// UpdateResolution persists a resolution transition
func (r *GormSyncErrorRepository) UpdateResolution(ctx context.Context, syncError *accounting.SyncError) error {
	result := r.db.WithContext(ctx).
		Model(&models.SyncErrorModel{}).
		Where("id = ?", syncError.ID).
		Updates(map[string]any{
			"resolution":       syncError.Resolution,
			"resolved_by":      syncError.ResolvedBy,
			"resolution_notes": syncError.ResolutionNotes,
			"resolved_at":      syncError.ResolvedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return accounting.ErrSyncErrorNotFound
	}
	return nil
}

// UpdateRetryState persists retry counters and timestamps
func (r *GormSyncErrorRepository) UpdateRetryState(ctx context.Context, syncError *accounting.SyncError) error {
	result := r.db.WithContext(ctx).
		Model(&models.SyncErrorModel{}).
		Where("id = ?", syncError.ID).
		Updates(map[string]any{
			"retry_count":   syncError.RetryCount,
			"next_retry_at": syncError.NextRetryAt,
			"last_retry_at": syncError.LastRetryAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return accounting.ErrSyncErrorNotFound
	}
	return nil
}

// DeleteOlderThan removes resolved errors past retention
func (r *GormSyncErrorRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("created_at < ? AND resolution <> ?", cutoff, accounting.ResolutionUnresolved).
		Delete(&models.SyncErrorModel{})
	return result.RowsAffected, result.Error
}
