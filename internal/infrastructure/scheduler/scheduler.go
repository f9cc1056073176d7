// Package scheduler periodically enqueues import jobs for configs whose
// sync frequency has elapsed. Execution itself happens in the queue worker
// pool; the scheduler only decides what is due.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/finplat/backend/internal/domain/accounting"
	"github.com/finplat/backend/internal/infrastructure/queue"
)

// TenantProvider lists the tenants the scheduler sweeps.
type TenantProvider interface {
	GetAllActiveTenantIDs(ctx context.Context) ([]uuid.UUID, error)
}

// ImportEnqueuer enqueues import fan-out jobs. Satisfied by the sync
// orchestrator.
type ImportEnqueuer interface {
	EnqueueImportCustomers(ctx context.Context, tenantID uuid.UUID, system *accounting.AccountingSystem, filters accounting.ImportFilters) (*queue.SyncJob, error)
	EnqueueImportInvoices(ctx context.Context, tenantID uuid.UUID, system *accounting.AccountingSystem, filters accounting.ImportFilters) (*queue.SyncJob, error)
	EnqueueImportChartOfAccounts(ctx context.Context, tenantID uuid.UUID, system *accounting.AccountingSystem, filters accounting.ImportFilters) (*queue.SyncJob, error)
}

// Config holds scheduler configuration.
type Config struct {
	Enabled bool
	// CheckInterval is how often due configs are evaluated
	CheckInterval time.Duration
	// MinFrequency floors per-config sync frequency to protect vendors
	// from overly aggressive settings
	MinFrequency time.Duration
}

// DefaultConfig returns the default scheduler configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:       true,
		CheckInterval: time.Minute,
		MinFrequency:  5 * time.Minute,
	}
}

// SyncScheduler sweeps enabled configs and enqueues import jobs for the
// ones whose frequency has elapsed since their last sync.
type SyncScheduler struct {
	config     Config
	tenants    TenantProvider
	configRepo accounting.ConfigRepository
	enqueuer   ImportEnqueuer
	logger     *zap.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
	// lastScheduled dedupes within a frequency window so a config is not
	// enqueued again while its previous import is still in the queue
	lastScheduled map[uuid.UUID]time.Time
}

// NewSyncScheduler creates a scheduler.
func NewSyncScheduler(
	config Config,
	tenants TenantProvider,
	configRepo accounting.ConfigRepository,
	enqueuer ImportEnqueuer,
	logger *zap.Logger,
) *SyncScheduler {
	if config.CheckInterval <= 0 {
		config.CheckInterval = DefaultConfig().CheckInterval
	}
	if config.MinFrequency <= 0 {
		config.MinFrequency = DefaultConfig().MinFrequency
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SyncScheduler{
		config:        config,
		tenants:       tenants,
		configRepo:    configRepo,
		enqueuer:      enqueuer,
		logger:        logger,
		lastScheduled: make(map[uuid.UUID]time.Time),
	}
}

// Start launches the sweep loop. A disabled scheduler starts as a no-op.
func (s *SyncScheduler) Start(ctx context.Context) error {
	if !s.config.Enabled {
		s.logger.Info("Sync scheduler disabled")
		return nil
	}

	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go s.runLoop(ctx)

	s.logger.Info("Sync scheduler started",
		zap.Duration("check_interval", s.config.CheckInterval),
		zap.Duration("min_frequency", s.config.MinFrequency),
	)
	return nil
}

// Stop stops the sweep loop.
func (s *SyncScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Sync scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SyncScheduler) runLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx, time.Now())
		}
	}
}

// sweep evaluates every syncable config across all tenants once.
func (s *SyncScheduler) sweep(ctx context.Context, now time.Time) {
	tenantIDs, err := s.tenants.GetAllActiveTenantIDs(ctx)
	if err != nil {
		s.logger.Error("Failed to list tenants for sync sweep", zap.Error(err))
		return
	}

	var scheduled int
	for _, tenantID := range tenantIDs {
		configs, err := s.configRepo.FindEnabledForTenant(ctx, tenantID)
		if err != nil {
			s.logger.Error("Failed to load configs for sync sweep",
				zap.String("tenant_id", tenantID.String()), zap.Error(err))
			continue
		}
		for i := range configs {
			if s.scheduleIfDue(ctx, &configs[i], now) {
				scheduled++
			}
		}
	}

	if scheduled > 0 {
		s.logger.Info("Scheduled periodic imports", zap.Int("configs", scheduled))
	}
}

// scheduleIfDue enqueues import jobs for one config when its frequency has
// elapsed. Returns true if anything was enqueued.
func (s *SyncScheduler) scheduleIfDue(ctx context.Context, cfg *accounting.Config, now time.Time) bool {
	if !cfg.Sync.Direction.AllowsPull() {
		return false
	}

	frequency := time.Duration(cfg.Sync.FrequencyMinutes) * time.Minute
	if frequency < s.config.MinFrequency {
		frequency = s.config.MinFrequency
	}

	s.mu.Lock()
	last, seen := s.lastScheduled[cfg.ID]
	s.mu.Unlock()
	if seen && now.Sub(last) < frequency {
		return false
	}
	if cfg.LastSyncAt != nil && now.Sub(*cfg.LastSyncAt) < frequency && !seen {
		return false
	}

	filters := accounting.ImportFilters{ModifiedSince: cfg.LastSyncAt}
	system := cfg.System
	var enqueued bool

	if cfg.Sync.EntityEnabled(accounting.EntityTypeCustomer) {
		if _, err := s.enqueuer.EnqueueImportCustomers(ctx, cfg.TenantID, &system, filters); err != nil {
			s.logger.Error("Failed to enqueue customer import",
				zap.String("config_id", cfg.ID.String()), zap.Error(err))
		} else {
			enqueued = true
		}
	}
	if cfg.Sync.EntityEnabled(accounting.EntityTypeInvoice) {
		if _, err := s.enqueuer.EnqueueImportInvoices(ctx, cfg.TenantID, &system, filters); err != nil {
			s.logger.Error("Failed to enqueue invoice import",
				zap.String("config_id", cfg.ID.String()), zap.Error(err))
		} else {
			enqueued = true
		}
	}
	if cfg.Sync.EntityEnabled(accounting.EntityTypeChartOfAccounts) {
		if _, err := s.enqueuer.EnqueueImportChartOfAccounts(ctx, cfg.TenantID, &system, filters); err != nil {
			s.logger.Error("Failed to enqueue chart of accounts import",
				zap.String("config_id", cfg.ID.String()), zap.Error(err))
		} else {
			enqueued = true
		}
	}

	if enqueued {
		s.mu.Lock()
		s.lastScheduled[cfg.ID] = now
		s.mu.Unlock()
	}
	return enqueued
}

// TriggerNow runs one sweep for a single tenant immediately, ignoring the
// dedupe window. Used by operators to force a refresh.
func (s *SyncScheduler) TriggerNow(ctx context.Context, tenantID uuid.UUID) (int, error) {
	configs, err := s.configRepo.FindEnabledForTenant(ctx, tenantID)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	for i := range configs {
		delete(s.lastScheduled, configs[i].ID)
	}
	s.mu.Unlock()

	var scheduled int
	now := time.Now()
	for i := range configs {
		cfg := &configs[i]
		// Force due by clearing the last-sync gate.
		cfg.LastSyncAt = nil
		if s.scheduleIfDue(ctx, cfg, now) {
			scheduled++
		}
	}
	return scheduled, nil
}
