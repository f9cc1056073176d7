package accounting

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/finplat/backend/internal/domain/accounting"
	"github.com/finplat/backend/internal/domain/shared"
	"github.com/finplat/backend/internal/infrastructure/connectors"
	"github.com/finplat/backend/internal/infrastructure/queue"
	"github.com/finplat/backend/internal/infrastructure/resilience"
	"github.com/finplat/backend/internal/infrastructure/secrets"
)

// ---------------------------------------------------------------------------
// In-memory repositories
// ---------------------------------------------------------------------------

type memConfigRepo struct {
	mu      sync.Mutex
	configs map[uuid.UUID]accounting.Config
}

func newMemConfigRepo() *memConfigRepo {
	return &memConfigRepo{configs: make(map[uuid.UUID]accounting.Config)}
}

func (r *memConfigRepo) Save(_ context.Context, config *accounting.Config) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configs[config.ID] = *config
	return nil
}

func (r *memConfigRepo) FindByID(_ context.Context, id uuid.UUID) (*accounting.Config, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cfg, ok := r.configs[id]
	if !ok {
		return nil, accounting.ErrConfigNotFound
	}
	out := cfg
	return &out, nil
}

func (r *memConfigRepo) FindByTenantAndSystem(_ context.Context, tenantID uuid.UUID, system accounting.AccountingSystem) (*accounting.Config, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, cfg := range r.configs {
		if cfg.TenantID == tenantID && cfg.System == system && cfg.DeletedAt == nil {
			out := cfg
			return &out, nil
		}
	}
	return nil, accounting.ErrConfigNotFound
}

func (r *memConfigRepo) FindEnabledForTenant(_ context.Context, tenantID uuid.UUID) ([]accounting.Config, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []accounting.Config
	for _, cfg := range r.configs {
		if cfg.TenantID == tenantID && cfg.IsSyncable() {
			out = append(out, cfg)
		}
	}
	return out, nil
}

func (r *memConfigRepo) FindAll(_ context.Context, tenantID uuid.UUID, filter accounting.ConfigFilter) ([]accounting.Config, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []accounting.Config
	for _, cfg := range r.configs {
		if cfg.TenantID != tenantID {
			continue
		}
		if cfg.DeletedAt != nil && !filter.IncludeDeleted {
			continue
		}
		if filter.System != nil && cfg.System != *filter.System {
			continue
		}
		if filter.Status != nil && cfg.Status != *filter.Status {
			continue
		}
		if filter.Enabled != nil && cfg.Enabled != *filter.Enabled {
			continue
		}
		out = append(out, cfg)
	}
	return out, nil
}

func (r *memConfigRepo) UpdateSyncOutcome(_ context.Context, config *accounting.Config) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.configs[config.ID]
	if !ok {
		return accounting.ErrConfigNotFound
	}
	stored.Status = config.Status
	stored.LastSyncAt = config.LastSyncAt
	stored.LastError = config.LastError
	stored.ConsecutiveFailures = config.ConsecutiveFailures
	r.configs[config.ID] = stored
	return nil
}

func (r *memConfigRepo) SoftDelete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cfg, ok := r.configs[id]
	if !ok {
		return accounting.ErrConfigNotFound
	}
	cfg.SoftDelete(time.Now())
	r.configs[id] = cfg
	return nil
}

type memSyncLogRepo struct {
	mu   sync.Mutex
	rows []accounting.SyncLog
}

func newMemSyncLogRepo() *memSyncLogRepo {
	return &memSyncLogRepo{}
}

func (r *memSyncLogRepo) Create(_ context.Context, row *accounting.SyncLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows = append(r.rows, *row)
	return nil
}

func (r *memSyncLogRepo) FindByID(_ context.Context, id uuid.UUID) (*accounting.SyncLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.ID == id {
			out := row
			return &out, nil
		}
	}
	return nil, accounting.ErrSyncLogNotFound
}

func (r *memSyncLogRepo) matches(row accounting.SyncLog, tenantID uuid.UUID, filter accounting.SyncLogFilter) bool {
	if row.TenantID != tenantID {
		return false
	}
	if filter.AuditOnly && !row.IsAuditEvent {
		return false
	}
	if filter.System != nil && row.System != *filter.System {
		return false
	}
	if filter.EntityType != nil && row.EntityType != *filter.EntityType {
		return false
	}
	if filter.Status != nil && row.Status != *filter.Status {
		return false
	}
	if filter.Direction != nil && row.Direction != *filter.Direction {
		return false
	}
	if filter.EventType != nil && row.EventType != *filter.EventType {
		return false
	}
	if filter.BatchID != nil && (row.BatchID == nil || *row.BatchID != *filter.BatchID) {
		return false
	}
	if filter.StartTime != nil && row.CreatedAt.Before(*filter.StartTime) {
		return false
	}
	if filter.EndTime != nil && row.CreatedAt.After(*filter.EndTime) {
		return false
	}
	return true
}

func (r *memSyncLogRepo) FindAll(_ context.Context, tenantID uuid.UUID, filter accounting.SyncLogFilter) ([]accounting.SyncLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []accounting.SyncLog
	for _, row := range r.rows {
		if r.matches(row, tenantID, filter) {
			out = append(out, row)
		}
	}
	return out, nil
}

func (r *memSyncLogRepo) Count(_ context.Context, tenantID uuid.UUID, filter accounting.SyncLogFilter) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, row := range r.rows {
		if r.matches(row, tenantID, filter) {
			n++
		}
	}
	return n, nil
}

func (r *memSyncLogRepo) CountByEventType(_ context.Context, tenantID uuid.UUID, start, end time.Time) (map[accounting.AuditEventType]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[accounting.AuditEventType]int64)
	for _, row := range r.rows {
		if row.TenantID == tenantID && row.IsAuditEvent &&
			!row.CreatedAt.Before(start) && !row.CreatedAt.After(end) {
			out[row.EventType]++
		}
	}
	return out, nil
}

func (r *memSyncLogRepo) CountByUser(_ context.Context, tenantID uuid.UUID, start, end time.Time) (map[string]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]int64)
	for _, row := range r.rows {
		if row.TenantID == tenantID && row.IsAuditEvent &&
			!row.CreatedAt.Before(start) && !row.CreatedAt.After(end) {
			out[row.InitiatedBy]++
		}
	}
	return out, nil
}

func (r *memSyncLogRepo) FindExpired(_ context.Context, cutoff time.Time, auditOnly bool, limit int) ([]accounting.SyncLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []accounting.SyncLog
	for _, row := range r.rows {
		if auditOnly && !row.IsAuditEvent {
			continue
		}
		if row.CreatedAt.Before(cutoff) {
			out = append(out, row)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (r *memSyncLogRepo) DeleteByIDs(_ context.Context, ids []uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	drop := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	kept := r.rows[:0]
	for _, row := range r.rows {
		if !drop[row.ID] {
			kept = append(kept, row)
		}
	}
	r.rows = kept
	return nil
}

// nonAuditRows returns the plain sync attempt rows.
func (r *memSyncLogRepo) nonAuditRows() []accounting.SyncLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []accounting.SyncLog
	for _, row := range r.rows {
		if !row.IsAuditEvent {
			out = append(out, row)
		}
	}
	return out
}

type memSyncErrorRepo struct {
	mu   sync.Mutex
	rows map[uuid.UUID]accounting.SyncError
}

func newMemSyncErrorRepo() *memSyncErrorRepo {
	return &memSyncErrorRepo{rows: make(map[uuid.UUID]accounting.SyncError)}
}

func (r *memSyncErrorRepo) Create(_ context.Context, syncError *accounting.SyncError) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[syncError.ID] = *syncError
	return nil
}

func (r *memSyncErrorRepo) FindByID(_ context.Context, id uuid.UUID) (*accounting.SyncError, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return nil, accounting.ErrSyncErrorNotFound
	}
	out := row
	return &out, nil
}

func (r *memSyncErrorRepo) FindAll(_ context.Context, tenantID uuid.UUID, filter accounting.SyncErrorFilter) ([]accounting.SyncError, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []accounting.SyncError
	for _, row := range r.rows {
		if row.TenantID != tenantID {
			continue
		}
		if filter.System != nil && row.System != *filter.System {
			continue
		}
		if filter.Category != nil && row.Category != *filter.Category {
			continue
		}
		if filter.Severity != nil && row.Severity != *filter.Severity {
			continue
		}
		if filter.Resolution != nil && row.Resolution != *filter.Resolution {
			continue
		}
		out = append(out, row)
	}
	return out, nil
}

func (r *memSyncErrorRepo) UpdateResolution(_ context.Context, syncError *accounting.SyncError) error {
	return r.Create(context.Background(), syncError)
}

func (r *memSyncErrorRepo) UpdateRetryState(_ context.Context, syncError *accounting.SyncError) error {
	return r.Create(context.Background(), syncError)
}

func (r *memSyncErrorRepo) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, row := range r.rows {
		if row.CreatedAt.Before(cutoff) {
			delete(r.rows, id)
			n++
		}
	}
	return n, nil
}

func (r *memSyncErrorRepo) all(tenantID uuid.UUID) []accounting.SyncError {
	out, _ := r.FindAll(context.Background(), tenantID, accounting.SyncErrorFilter{})
	return out
}

// ---------------------------------------------------------------------------
// Fake connector and event bus
// ---------------------------------------------------------------------------

// allCapabilities enables every entity and direction.
func allCapabilities() accounting.Capabilities {
	return accounting.Capabilities{
		Entities: map[accounting.EntityType]bool{
			accounting.EntityTypeCustomer:        true,
			accounting.EntityTypeInvoice:         true,
			accounting.EntityTypePayment:         true,
			accounting.EntityTypeRefund:          true,
			accounting.EntityTypeChartOfAccounts: true,
			accounting.EntityTypeGLAccount:       true,
			accounting.EntityTypeJournalEntry:    true,
			accounting.EntityTypeBankEntry:       true,
		},
		SupportsPull:         true,
		SupportsPush:         true,
		SupportsTrialBalance: true,
		SupportsBankEntries:  true,
	}
}

// fakeConnector is a programmable connector. Operations without an override
// return a successful result. Counters track vendor calls.
type fakeConnector struct {
	system accounting.AccountingSystem
	caps   accounting.Capabilities

	mu                sync.Mutex
	connectCalls      int
	testConnCalls     int
	syncCustomerCalls int
	syncInvoiceCalls  int
	syncPaymentCalls  int
	importCalls       int

	connectErr     error
	testConnFn     func() error
	syncCustomerFn func(*accounting.Customer) (*accounting.SyncResult, error)
	syncInvoiceFn  func(*accounting.Invoice) (*accounting.SyncResult, error)
	importFn       func() (*accounting.SyncResult, error)
}

func newFakeConnector(system accounting.AccountingSystem) *fakeConnector {
	return &fakeConnector{system: system, caps: allCapabilities()}
}

func okResult() *accounting.SyncResult {
	return &accounting.SyncResult{Success: true, ExternalID: "EXT-1", RecordsProcessed: 1, RecordsSucceeded: 1}
}

func (f *fakeConnector) System() accounting.AccountingSystem { return f.system }
func (f *fakeConnector) Capabilities() accounting.Capabilities {
	return f.caps
}

func (f *fakeConnector) Connect(_ context.Context, _ *accounting.ConnectionSettings) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connectCalls++
	return f.connectErr
}

func (f *fakeConnector) Disconnect(_ context.Context) error { return nil }

func (f *fakeConnector) TestConnection(_ context.Context) error {
	f.mu.Lock()
	f.testConnCalls++
	fn := f.testConnFn
	f.mu.Unlock()
	if fn != nil {
		return fn()
	}
	return nil
}

func (f *fakeConnector) ImportCustomers(_ context.Context, _ accounting.ImportFilters) ([]accounting.Customer, *accounting.SyncResult, error) {
	f.mu.Lock()
	f.importCalls++
	fn := f.importFn
	f.mu.Unlock()
	if fn != nil {
		res, err := fn()
		return nil, res, err
	}
	return []accounting.Customer{{PlatformID: uuid.New(), Name: "Imported Co"}}, okResult(), nil
}

func (f *fakeConnector) SyncCustomer(_ context.Context, customer *accounting.Customer) (*accounting.SyncResult, error) {
	f.mu.Lock()
	f.syncCustomerCalls++
	fn := f.syncCustomerFn
	f.mu.Unlock()
	if fn != nil {
		return fn(customer)
	}
	return okResult(), nil
}

func (f *fakeConnector) UpdateCustomer(_ context.Context, _ *accounting.Customer) (*accounting.SyncResult, error) {
	return okResult(), nil
}

func (f *fakeConnector) DeleteCustomer(_ context.Context, _ string) (*accounting.SyncResult, error) {
	return okResult(), nil
}

func (f *fakeConnector) ImportInvoices(_ context.Context, _ accounting.ImportFilters) ([]accounting.Invoice, *accounting.SyncResult, error) {
	f.mu.Lock()
	f.importCalls++
	f.mu.Unlock()
	return []accounting.Invoice{{PlatformID: uuid.New(), InvoiceNumber: "INV-1"}}, okResult(), nil
}

func (f *fakeConnector) SyncInvoice(_ context.Context, invoice *accounting.Invoice) (*accounting.SyncResult, error) {
	f.mu.Lock()
	f.syncInvoiceCalls++
	fn := f.syncInvoiceFn
	f.mu.Unlock()
	if fn != nil {
		return fn(invoice)
	}
	return okResult(), nil
}

func (f *fakeConnector) UpdateInvoice(_ context.Context, _ *accounting.Invoice) (*accounting.SyncResult, error) {
	return okResult(), nil
}

func (f *fakeConnector) DeleteInvoice(_ context.Context, _ string) (*accounting.SyncResult, error) {
	return okResult(), nil
}

func (f *fakeConnector) SyncPayment(_ context.Context, _ *accounting.Payment) (*accounting.SyncResult, error) {
	f.mu.Lock()
	f.syncPaymentCalls++
	f.mu.Unlock()
	return okResult(), nil
}

func (f *fakeConnector) SyncRefund(_ context.Context, _ *accounting.Refund) (*accounting.SyncResult, error) {
	return okResult(), nil
}

func (f *fakeConnector) ImportChartOfAccounts(_ context.Context, _ accounting.ImportFilters) ([]accounting.ChartOfAccount, *accounting.SyncResult, error) {
	f.mu.Lock()
	f.importCalls++
	f.mu.Unlock()
	return []accounting.ChartOfAccount{{ExternalID: "1000", Name: "Cash"}}, okResult(), nil
}

func (f *fakeConnector) ImportTrialBalance(_ context.Context, _ accounting.ImportFilters) ([]accounting.TrialBalanceRow, *accounting.SyncResult, error) {
	return nil, okResult(), nil
}

func (f *fakeConnector) ImportGLAccounts(_ context.Context, _ accounting.ImportFilters) ([]accounting.ChartOfAccount, *accounting.SyncResult, error) {
	return nil, okResult(), nil
}

func (f *fakeConnector) SyncJournalEntry(_ context.Context, _ *accounting.JournalEntry) (*accounting.SyncResult, error) {
	return okResult(), nil
}

func (f *fakeConnector) SyncBankEntry(_ context.Context, _ *accounting.BankEntry) (*accounting.SyncResult, error) {
	return okResult(), nil
}

// capturingBus records published events.
type capturingBus struct {
	mu     sync.Mutex
	events []shared.DomainEvent
}

func (b *capturingBus) Publish(_ context.Context, events ...shared.DomainEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, events...)
	return nil
}

func (b *capturingBus) byType(eventType string) []shared.DomainEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []shared.DomainEvent
	for _, e := range b.events {
		if e.EventType() == eventType {
			out = append(out, e)
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Harness
// ---------------------------------------------------------------------------

const testMasterKey = "unit-test-master-key"

type testHarness struct {
	configRepo *memConfigRepo
	logRepo    *memSyncLogRepo
	errorRepo  *memSyncErrorRepo
	registry   *connectors.Registry
	pool       *connectors.Pool
	creds      *secrets.CredentialManager
	bus        *capturingBus
	errors     *ErrorService
	audit      *AuditService
	orch       *Orchestrator
	deps       OrchestratorDeps
	fakes      map[accounting.AccountingSystem]*fakeConnector
	jobs       queue.JobQueue
}

func newTestHarness(t *testing.T, systems ...accounting.AccountingSystem) *testHarness {
	t.Helper()

	creds, err := secrets.NewCredentialManager(testMasterKey)
	require.NoError(t, err)

	registry := connectors.NewRegistry()
	fakes := make(map[accounting.AccountingSystem]*fakeConnector, len(systems))
	for _, system := range systems {
		fake := newFakeConnector(system)
		fakes[system] = fake
		registry.Register(system, func() accounting.Connector { return fake })
	}

	pool := connectors.NewPool(registry, connectors.PoolOptions{
		MaxSize:        10,
		MinSize:        0,
		AcquireTimeout: 2 * time.Second,
		IdleTimeout:    time.Minute,
		HealthInterval: time.Minute,
	}, zap.NewNop())
	t.Cleanup(pool.Shutdown)

	h := &testHarness{
		configRepo: newMemConfigRepo(),
		logRepo:    newMemSyncLogRepo(),
		errorRepo:  newMemSyncErrorRepo(),
		registry:   registry,
		pool:       pool,
		creds:      creds,
		bus:        &capturingBus{},
		fakes:      fakes,
		jobs:       queue.NewMemoryJobQueue(),
	}
	h.errors = NewErrorService(h.errorRepo, h.bus, zap.NewNop())
	h.audit = NewAuditService(h.logRepo, nil, zap.NewNop())
	h.deps = OrchestratorDeps{
		ConfigRepo:  h.configRepo,
		LogRepo:     h.logRepo,
		Errors:      h.errors,
		Audit:       h.audit,
		Credentials: creds,
		Registry:    registry,
		Pool:        pool,
		Executor:    resilience.NewExecutor(zap.NewNop()),
		RetryOpts: resilience.Options{
			MaxAttempts:  3,
			InitialDelay: time.Millisecond,
			MaxDelay:     5 * time.Millisecond,
			Multiplier:   2,
			JitterFactor: 0.1,
		},
		EventBus: h.bus,
		Jobs:     h.jobs,
		Logger:   zap.NewNop(),
	}
	h.orch = NewOrchestrator(h.deps)
	return h
}

// orchWithRetry builds a second orchestrator over the same stores with a
// different retry budget.
func (h *testHarness) orchWithRetry(opts resilience.Options) *Orchestrator {
	deps := h.deps
	deps.RetryOpts = opts
	return NewOrchestrator(deps)
}

// addConfig stores an enabled ACTIVE config with encrypted settings for the
// system's auth kind.
func (h *testHarness) addConfig(t *testing.T, tenantID uuid.UUID, system accounting.AccountingSystem, sync accounting.SyncSettings) *accounting.Config {
	t.Helper()

	settings := settingsFor(system)
	enc, err := h.creds.EncryptJSON(settings)
	require.NoError(t, err)

	now := time.Now()
	cfg := &accounting.Config{
		ID:                uuid.New(),
		TenantID:          tenantID,
		System:            system,
		Enabled:           true,
		EncryptedSettings: enc.Encode(),
		Sync:              sync,
		Status:            accounting.ConfigStatusActive,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	require.NoError(t, h.configRepo.Save(context.Background(), cfg))
	return cfg
}

// settingsFor builds the settings union variant matching the system.
func settingsFor(system accounting.AccountingSystem) *accounting.ConnectionSettings {
	settings := &accounting.ConnectionSettings{System: system}
	switch system {
	case accounting.SystemTally:
		settings.Tally = &accounting.TallySettings{Host: "localhost", Port: 9000, Company: "Acme Ltd"}
	case accounting.SystemQuickBooks, accounting.SystemXero:
		settings.OAuth = &accounting.OAuthSettings{
			ClientID:     "client-id",
			ClientSecret: "client-secret",
			RefreshToken: "refresh-token",
		}
	default:
		settings.APIKey = &accounting.APIKeySettings{APIKey: "key", APISecret: "secret"}
	}
	return settings
}

// pushSettings enables push syncs for the given entities.
func pushSettings(entities ...accounting.EntityType) accounting.SyncSettings {
	s := accounting.DefaultSyncSettings()
	s.Direction = accounting.SyncDirectionPush
	s.Entities = make(map[accounting.EntityType]bool, len(entities))
	for _, e := range entities {
		s.Entities[e] = true
	}
	return s
}

// pullSettings enables pull syncs for the given entities.
func pullSettings(entities ...accounting.EntityType) accounting.SyncSettings {
	s := pushSettings(entities...)
	s.Direction = accounting.SyncDirectionPull
	return s
}
