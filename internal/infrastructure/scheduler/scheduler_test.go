package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finplat/backend/internal/domain/accounting"
	"github.com/finplat/backend/internal/infrastructure/queue"
)

type staticTenants struct {
	ids []uuid.UUID
}

func (p *staticTenants) GetAllActiveTenantIDs(_ context.Context) ([]uuid.UUID, error) {
	return p.ids, nil
}

type staticConfigRepo struct {
	accounting.ConfigRepository
	configs []accounting.Config
}

func (r *staticConfigRepo) FindEnabledForTenant(_ context.Context, tenantID uuid.UUID) ([]accounting.Config, error) {
	var out []accounting.Config
	for _, cfg := range r.configs {
		if cfg.TenantID == tenantID {
			out = append(out, cfg)
		}
	}
	return out, nil
}

type enqueueCall struct {
	jobType  queue.JobType
	tenantID uuid.UUID
	system   accounting.AccountingSystem
	filters  accounting.ImportFilters
}

type recordingEnqueuer struct {
	mu    sync.Mutex
	calls []enqueueCall
}

func (e *recordingEnqueuer) record(jobType queue.JobType, tenantID uuid.UUID, system *accounting.AccountingSystem, filters accounting.ImportFilters) (*queue.SyncJob, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	call := enqueueCall{jobType: jobType, tenantID: tenantID, filters: filters}
	if system != nil {
		call.system = *system
	}
	e.calls = append(e.calls, call)
	return queue.NewSyncJob(tenantID, jobType, nil), nil
}

func (e *recordingEnqueuer) EnqueueImportCustomers(_ context.Context, tenantID uuid.UUID, system *accounting.AccountingSystem, filters accounting.ImportFilters) (*queue.SyncJob, error) {
	return e.record(queue.JobTypeImportCustomers, tenantID, system, filters)
}

func (e *recordingEnqueuer) EnqueueImportInvoices(_ context.Context, tenantID uuid.UUID, system *accounting.AccountingSystem, filters accounting.ImportFilters) (*queue.SyncJob, error) {
	return e.record(queue.JobTypeImportInvoices, tenantID, system, filters)
}

func (e *recordingEnqueuer) EnqueueImportChartOfAccounts(_ context.Context, tenantID uuid.UUID, system *accounting.AccountingSystem, filters accounting.ImportFilters) (*queue.SyncJob, error) {
	return e.record(queue.JobTypeImportChartOfAccounts, tenantID, system, filters)
}

func (e *recordingEnqueuer) byType(jobType queue.JobType) []enqueueCall {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []enqueueCall
	for _, call := range e.calls {
		if call.jobType == jobType {
			out = append(out, call)
		}
	}
	return out
}

func pullConfig(tenantID uuid.UUID, system accounting.AccountingSystem, frequencyMinutes int) accounting.Config {
	sync := accounting.DefaultSyncSettings()
	sync.Direction = accounting.SyncDirectionBidirectional
	sync.FrequencyMinutes = frequencyMinutes
	sync.Entities = map[accounting.EntityType]bool{
		accounting.EntityTypeCustomer: true,
		accounting.EntityTypeInvoice:  true,
	}
	return accounting.Config{
		ID:       uuid.New(),
		TenantID: tenantID,
		System:   system,
		Enabled:  true,
		Status:   accounting.ConfigStatusActive,
		Sync:     sync,
	}
}

func TestSyncScheduler_SweepEnqueuesDueConfigs(t *testing.T) {
	tenantID := uuid.New()
	cfg := pullConfig(tenantID, accounting.SystemTally, 15)

	enqueuer := &recordingEnqueuer{}
	s := NewSyncScheduler(
		DefaultConfig(),
		&staticTenants{ids: []uuid.UUID{tenantID}},
		&staticConfigRepo{configs: []accounting.Config{cfg}},
		enqueuer,
		nil,
	)

	s.sweep(context.Background(), time.Now())

	customers := enqueuer.byType(queue.JobTypeImportCustomers)
	require.Len(t, customers, 1)
	assert.Equal(t, tenantID, customers[0].tenantID)
	assert.Equal(t, accounting.SystemTally, customers[0].system)
	assert.Len(t, enqueuer.byType(queue.JobTypeImportInvoices), 1)
	// Chart of accounts was not toggled on.
	assert.Empty(t, enqueuer.byType(queue.JobTypeImportChartOfAccounts))
}

func TestSyncScheduler_SweepDedupesWithinFrequencyWindow(t *testing.T) {
	tenantID := uuid.New()
	cfg := pullConfig(tenantID, accounting.SystemZohoBooks, 60)

	enqueuer := &recordingEnqueuer{}
	s := NewSyncScheduler(
		DefaultConfig(),
		&staticTenants{ids: []uuid.UUID{tenantID}},
		&staticConfigRepo{configs: []accounting.Config{cfg}},
		enqueuer,
		nil,
	)

	now := time.Now()
	s.sweep(context.Background(), now)
	s.sweep(context.Background(), now.Add(time.Minute))
	assert.Len(t, enqueuer.byType(queue.JobTypeImportCustomers), 1)

	// Past the frequency window the config is due again.
	s.sweep(context.Background(), now.Add(61*time.Minute))
	assert.Len(t, enqueuer.byType(queue.JobTypeImportCustomers), 2)
}

func TestSyncScheduler_PushOnlyConfigSkipped(t *testing.T) {
	tenantID := uuid.New()
	cfg := pullConfig(tenantID, accounting.SystemQuickBooks, 15)
	cfg.Sync.Direction = accounting.SyncDirectionPush

	enqueuer := &recordingEnqueuer{}
	s := NewSyncScheduler(
		DefaultConfig(),
		&staticTenants{ids: []uuid.UUID{tenantID}},
		&staticConfigRepo{configs: []accounting.Config{cfg}},
		enqueuer,
		nil,
	)

	s.sweep(context.Background(), time.Now())
	assert.Empty(t, enqueuer.calls)
}

func TestSyncScheduler_RecentSyncNotDue(t *testing.T) {
	tenantID := uuid.New()
	cfg := pullConfig(tenantID, accounting.SystemXero, 30)
	lastSync := time.Now().Add(-5 * time.Minute)
	cfg.LastSyncAt = &lastSync

	enqueuer := &recordingEnqueuer{}
	s := NewSyncScheduler(
		DefaultConfig(),
		&staticTenants{ids: []uuid.UUID{tenantID}},
		&staticConfigRepo{configs: []accounting.Config{cfg}},
		enqueuer,
		nil,
	)

	s.sweep(context.Background(), time.Now())
	assert.Empty(t, enqueuer.calls)

	// ModifiedSince carries the last sync watermark once due.
	s.sweep(context.Background(), time.Now().Add(31*time.Minute))
	customers := enqueuer.byType(queue.JobTypeImportCustomers)
	require.Len(t, customers, 1)
	require.NotNil(t, customers[0].filters.ModifiedSince)
	assert.True(t, customers[0].filters.ModifiedSince.Equal(lastSync))
}

func TestSyncScheduler_TriggerNow(t *testing.T) {
	tenantID := uuid.New()
	cfg := pullConfig(tenantID, accounting.SystemSage, 60)
	lastSync := time.Now()
	cfg.LastSyncAt = &lastSync

	enqueuer := &recordingEnqueuer{}
	s := NewSyncScheduler(
		DefaultConfig(),
		&staticTenants{ids: []uuid.UUID{tenantID}},
		&staticConfigRepo{configs: []accounting.Config{cfg}},
		enqueuer,
		nil,
	)

	scheduled, err := s.TriggerNow(context.Background(), tenantID)
	require.NoError(t, err)
	assert.Equal(t, 1, scheduled)
	assert.Len(t, enqueuer.byType(queue.JobTypeImportCustomers), 1)
}

func TestSyncScheduler_StartStop(t *testing.T) {
	s := NewSyncScheduler(
		Config{Enabled: true, CheckInterval: 10 * time.Millisecond, MinFrequency: time.Minute},
		&staticTenants{},
		&staticConfigRepo{},
		&recordingEnqueuer{},
		nil,
	)

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Start(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	require.NoError(t, s.Stop(ctx))
}

func TestSyncScheduler_DisabledIsNoOp(t *testing.T) {
	s := NewSyncScheduler(
		Config{Enabled: false},
		&staticTenants{},
		&staticConfigRepo{},
		&recordingEnqueuer{},
		nil,
	)
	require.NoError(t, s.Start(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
}
