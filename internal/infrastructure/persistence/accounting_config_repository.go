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

// GormAccountingConfigRepository implements accounting.ConfigRepository using GORM
type GormAccountingConfigRepository struct {
	db *gorm.DB
}

var _ accounting.ConfigRepository = (*GormAccountingConfigRepository)(nil)

// NewGormAccountingConfigRepository creates a new GormAccountingConfigRepository
func NewGormAccountingConfigRepository(db *gorm.DB) *GormAccountingConfigRepository {
	return &GormAccountingConfigRepository{db: db}
}

// Save creates or updates a config
func (r *GormAccountingConfigRepository) Save(ctx context.Context, config *accounting.Config) error {
	model := models.AccountingConfigModelFromDomain(config)
	return r.db.WithContext(ctx).Save(model).Error
}

// FindByID finds a config by its ID
func (r *GormAccountingConfigRepository) FindByID(ctx context.Context, id uuid.UUID) (*accounting.Config, error) {
	var model models.AccountingConfigModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, accounting.ErrConfigNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByTenantAndSystem finds the unique config for a (tenant, system) pair
func (r *GormAccountingConfigRepository) FindByTenantAndSystem(ctx context.Context, tenantID uuid.UUID, system accounting.AccountingSystem) (*accounting.Config, error) {
	var model models.AccountingConfigModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND system = ?", tenantID, system).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, accounting.ErrConfigNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindEnabledForTenant returns all syncable configs for a tenant
func (r *GormAccountingConfigRepository) FindEnabledForTenant(ctx context.Context, tenantID uuid.UUID) ([]accounting.Config, error) {
	var configModels []models.AccountingConfigModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND enabled = ? AND deleted_at IS NULL AND status IN ?",
			tenantID, true, []accounting.ConfigStatus{accounting.ConfigStatusActive, accounting.ConfigStatusError}).
		Order("system ASC").
		Find(&configModels).Error; err != nil {
		return nil, err
	}

	configs := make([]accounting.Config, len(configModels))
	for i, model := range configModels {
		configs[i] = *model.ToDomain()
	}
	return configs, nil
}

// FindAll returns configs for a tenant matching the filter
func (r *GormAccountingConfigRepository) FindAll(ctx context.Context, tenantID uuid.UUID, filter accounting.ConfigFilter) ([]accounting.Config, error) {
	query := r.db.WithContext(ctx).Where("tenant_id = ?", tenantID)

	if filter.System != nil {
		query = query.Where("system = ?", *filter.System)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.Enabled != nil {
		query = query.Where("enabled = ?", *filter.Enabled)
	}
	if !filter.IncludeDeleted {
		query = query.Where("deleted_at IS NULL")
	}
	if filter.PageSize > 0 {
		page := filter.Page
		if page < 1 {
			page = 1
		}
		query = query.Offset((page - 1) * filter.PageSize).Limit(filter.PageSize)
	}

	var configModels []models.AccountingConfigModel
	if err := query.Order("system ASC").Find(&configModels).Error; err != nil {
		return nil, err
	}

	configs := make([]accounting.Config, len(configModels))
	for i, model := range configModels {
		configs[i] = *model.ToDomain()
	}
	return configs, nil
}

// UpdateSyncOutcome persists the post-sync bookkeeping fields only, so a
// concurrent settings update is never overwritten by sync bookkeeping.
func (r *GormAccountingConfigRepository) UpdateSyncOutcome(ctx context.Context, config *accounting.Config) error {
	return r.db.WithContext(ctx).
		Model(&models.AccountingConfigModel{}).
		Where("id = ?", config.ID).
		Updates(map[string]any{
			"status":               config.Status,
			"last_sync_at":         config.LastSyncAt,
			"last_error":           config.LastError,
			"consecutive_failures": config.ConsecutiveFailures,
			"updated_at":           time.Now(),
		}).Error
}

// GetAllActiveTenantIDs lists every tenant with at least one enabled
// config. Feeds the periodic sync scheduler.
func (r *GormAccountingConfigRepository) GetAllActiveTenantIDs(ctx context.Context) ([]uuid.UUID, error) {
	var tenantIDs []uuid.UUID
	if err := r.db.WithContext(ctx).
		Model(&models.AccountingConfigModel{}).
		Where("enabled = ? AND deleted_at IS NULL", true).
		Distinct("tenant_id").
		Pluck("tenant_id", &tenantIDs).Error; err != nil {
		return nil, err
	}
	return tenantIDs, nil
}

// SoftDelete marks a config deleted without removing the row
func (r *GormAccountingConfigRepository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).
		Model(&models.AccountingConfigModel{}).
		Where("id = ? AND deleted_at IS NULL", id).
		Updates(map[string]any{
			"deleted_at": time.Now(),
			"enabled":    false,
			"status":     accounting.ConfigStatusInactive,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return accounting.ErrConfigNotFound
	}
	return nil
}
