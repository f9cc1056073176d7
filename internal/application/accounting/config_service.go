package accounting

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/finplat/backend/internal/domain/accounting"
	"github.com/finplat/backend/internal/domain/shared"
	"github.com/finplat/backend/internal/infrastructure/secrets"
)

// ConfigService manages the lifecycle of accounting configs: registration,
// settings and credential updates, pause/resume and soft deletion. Every
// mutation is audited; credential material never leaves this service
// unencrypted.
type ConfigService struct {
	configRepo  accounting.ConfigRepository
	credentials *secrets.CredentialManager
	audit       *AuditService
	eventBus    shared.EventPublisher
	logger      *zap.Logger
}

// NewConfigService creates a new ConfigService. The event bus is optional.
func NewConfigService(
	configRepo accounting.ConfigRepository,
	credentials *secrets.CredentialManager,
	audit *AuditService,
	eventBus shared.EventPublisher,
	logger *zap.Logger,
) *ConfigService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConfigService{
		configRepo:  configRepo,
		credentials: credentials,
		audit:       audit,
		eventBus:    eventBus,
		logger:      logger,
	}
}

// Register creates the config for a (tenant, system) pair. The settings
// union is validated against the system's auth kind, then encrypted before
// it touches the store. Zero-value sync settings fall back to the defaults.
func (s *ConfigService) Register(
	ctx context.Context,
	tenantID uuid.UUID,
	system accounting.AccountingSystem,
	settings *accounting.ConnectionSettings,
	syncSettings *accounting.SyncSettings,
	actor AuditActor,
) (*accounting.Config, error) {
	if !system.IsValid() {
		return nil, accounting.ErrInvalidSystem
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	existing, err := s.configRepo.FindByTenantAndSystem(ctx, tenantID, system)
	if err != nil && !errors.Is(err, accounting.ErrConfigNotFound) {
		return nil, err
	}
	if existing != nil && existing.DeletedAt == nil {
		return nil, accounting.ErrConfigAlreadyExists
	}

	encrypted, err := s.credentials.EncryptJSON(settings)
	if err != nil {
		return nil, err
	}

	sync := accounting.DefaultSyncSettings()
	if syncSettings != nil {
		sync = *syncSettings
	}

	now := time.Now()
	cfg := &accounting.Config{
		ID:                uuid.New(),
		TenantID:          tenantID,
		System:            system,
		Enabled:           true,
		EncryptedSettings: encrypted.Encode(),
		Sync:              sync,
		Status:            accounting.ConfigStatusActive,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.configRepo.Save(ctx, cfg); err != nil {
		return nil, err
	}

	if auditErr := s.audit.LogConfigChange(ctx, cfg, "config created", actor); auditErr != nil {
		s.logger.Warn("Failed to audit config creation", zap.Error(auditErr))
	}
	return cfg, nil
}

// Get returns a tenant's config by ID.
func (s *ConfigService) Get(ctx context.Context, tenantID, configID uuid.UUID) (*accounting.Config, error) {
	cfg, err := s.configRepo.FindByID(ctx, configID)
	if err != nil {
		return nil, err
	}
	if cfg.TenantID != tenantID {
		return nil, accounting.ErrConfigNotFound
	}
	return cfg, nil
}

// List returns a tenant's configs matching the filter.
func (s *ConfigService) List(ctx context.Context, tenantID uuid.UUID, filter accounting.ConfigFilter) ([]accounting.Config, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}
	return s.configRepo.FindAll(ctx, tenantID, filter)
}

// UpdateSyncSettings replaces the config's sync settings.
func (s *ConfigService) UpdateSyncSettings(
	ctx context.Context,
	tenantID, configID uuid.UUID,
	sync accounting.SyncSettings,
	actor AuditActor,
) (*accounting.Config, error) {
	cfg, err := s.Get(ctx, tenantID, configID)
	if err != nil {
		return nil, err
	}
	if !sync.Direction.IsValid() || !sync.ConflictStrategy.IsValid() {
		return nil, accounting.ErrInvalidSettings
	}

	cfg.Sync = sync
	cfg.UpdatedAt = time.Now()
	if err := s.configRepo.Save(ctx, cfg); err != nil {
		return nil, err
	}

	if auditErr := s.audit.LogConfigChange(ctx, cfg, "sync settings updated", actor); auditErr != nil {
		s.logger.Warn("Failed to audit settings update", zap.Error(auditErr))
	}
	return cfg, nil
}

// UpdateCredentials re-encrypts a new settings union for the config. A
// credential update clears an ERROR status and resets the failure counter so
// the next sync gets a clean run. Only field names are audited.
func (s *ConfigService) UpdateCredentials(
	ctx context.Context,
	tenantID, configID uuid.UUID,
	settings *accounting.ConnectionSettings,
	updatedFields []string,
	actor AuditActor,
) (*accounting.Config, error) {
	cfg, err := s.Get(ctx, tenantID, configID)
	if err != nil {
		return nil, err
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	if settings.System != cfg.System {
		return nil, accounting.ErrInvalidSettings
	}

	encrypted, err := s.credentials.EncryptJSON(settings)
	if err != nil {
		return nil, err
	}
	cfg.EncryptedSettings = encrypted.Encode()
	cfg.ConsecutiveFailures = 0
	cfg.LastError = ""
	if cfg.Status == accounting.ConfigStatusError {
		cfg.Status = accounting.ConfigStatusActive
	}
	cfg.UpdatedAt = time.Now()

	if err := s.configRepo.Save(ctx, cfg); err != nil {
		return nil, err
	}

	if auditErr := s.audit.LogCredentialUpdate(ctx, cfg, updatedFields, actor); auditErr != nil {
		s.logger.Warn("Failed to audit credential update", zap.Error(auditErr))
	}
	if s.eventBus != nil {
		event := accounting.NewCredentialUpdateEvent(cfg, updatedFields, actor.Name)
		if pubErr := s.eventBus.Publish(ctx, event); pubErr != nil {
			s.logger.Error("Failed to publish credential update event", zap.Error(pubErr))
		}
	}
	return cfg, nil
}

// Pause suspends syncs for the config.
func (s *ConfigService) Pause(ctx context.Context, tenantID, configID uuid.UUID, actor AuditActor) (*accounting.Config, error) {
	return s.transition(ctx, tenantID, configID, accounting.ConfigStatusPaused, "config paused", actor)
}

// Resume re-activates a paused or errored config and resets the failure
// counter so auto-pause starts counting from zero again.
func (s *ConfigService) Resume(ctx context.Context, tenantID, configID uuid.UUID, actor AuditActor) (*accounting.Config, error) {
	cfg, err := s.transition(ctx, tenantID, configID, accounting.ConfigStatusActive, "config resumed", actor)
	if err != nil {
		return nil, err
	}
	cfg.ConsecutiveFailures = 0
	cfg.LastError = ""
	if saveErr := s.configRepo.Save(ctx, cfg); saveErr != nil {
		return nil, saveErr
	}
	return cfg, nil
}

// SetEnabled toggles the config's participation in syncs.
func (s *ConfigService) SetEnabled(ctx context.Context, tenantID, configID uuid.UUID, enabled bool, actor AuditActor) (*accounting.Config, error) {
	cfg, err := s.Get(ctx, tenantID, configID)
	if err != nil {
		return nil, err
	}
	cfg.Enabled = enabled
	cfg.UpdatedAt = time.Now()
	if err := s.configRepo.Save(ctx, cfg); err != nil {
		return nil, err
	}

	action := "config disabled"
	if enabled {
		action = "config enabled"
	}
	if auditErr := s.audit.LogConfigChange(ctx, cfg, action, actor); auditErr != nil {
		s.logger.Warn("Failed to audit config toggle", zap.Error(auditErr))
	}
	return cfg, nil
}

// Delete soft-deletes the config. The row stays for the audit trail.
func (s *ConfigService) Delete(ctx context.Context, tenantID, configID uuid.UUID, actor AuditActor) error {
	cfg, err := s.Get(ctx, tenantID, configID)
	if err != nil {
		return err
	}
	if err := s.configRepo.SoftDelete(ctx, cfg.ID); err != nil {
		return err
	}

	if auditErr := s.audit.LogConfigChange(ctx, cfg, "config deleted", actor); auditErr != nil {
		s.logger.Warn("Failed to audit config deletion", zap.Error(auditErr))
	}
	return nil
}

func (s *ConfigService) transition(
	ctx context.Context,
	tenantID, configID uuid.UUID,
	status accounting.ConfigStatus,
	action string,
	actor AuditActor,
) (*accounting.Config, error) {
	cfg, err := s.Get(ctx, tenantID, configID)
	if err != nil {
		return nil, err
	}
	cfg.Status = status
	cfg.UpdatedAt = time.Now()
	if err := s.configRepo.Save(ctx, cfg); err != nil {
		return nil, err
	}

	if auditErr := s.audit.LogConfigChange(ctx, cfg, action, actor); auditErr != nil {
		s.logger.Warn("Failed to audit config transition", zap.Error(auditErr))
	}
	return cfg, nil
}
