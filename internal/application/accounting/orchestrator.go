// Package accounting orchestrates sync operations across every accounting
// system a tenant has enabled: fan-out over configs, retry-wrapped connector
// calls through the connection pool, audit logging, error classification and
// sync bookkeeping.
package accounting

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/finplat/backend/internal/domain/accounting"
	"github.com/finplat/backend/internal/domain/shared"
	"github.com/finplat/backend/internal/infrastructure/queue"
	"github.com/finplat/backend/internal/infrastructure/resilience"
	"github.com/finplat/backend/internal/infrastructure/secrets"
	"github.com/finplat/backend/internal/infrastructure/telemetry"
)

// OrchestratorDeps collects the orchestrator's collaborators.
type OrchestratorDeps struct {
	ConfigRepo  accounting.ConfigRepository
	LogRepo     accounting.SyncLogRepository
	Errors      *ErrorService
	Audit       *AuditService
	Credentials *secrets.CredentialManager
	Registry    accounting.ConnectorRegistry
	Pool        accounting.ConnectorPool
	Executor    *resilience.Executor
	RetryOpts   resilience.Options
	EventBus    shared.EventPublisher
	Jobs        queue.JobQueue
	Metrics     *telemetry.SyncMetrics
	Logger      *zap.Logger
}

// Orchestrator is the hub's public surface. Each operation fans out across
// the tenant's enabled configs, honoring direction and entity toggles,
// consulting connector capabilities before dispatch, and aggregating one
// result per targeted config. A single config's failure never aborts the
// fan-out.
type Orchestrator struct {
	configRepo  accounting.ConfigRepository
	logRepo     accounting.SyncLogRepository
	errors      *ErrorService
	audit       *AuditService
	credentials *secrets.CredentialManager
	registry    accounting.ConnectorRegistry
	pool        accounting.ConnectorPool
	executor    *resilience.Executor
	retryOpts   resilience.Options
	eventBus    shared.EventPublisher
	jobs        queue.JobQueue
	metrics     *telemetry.SyncMetrics
	logger      *zap.Logger
}

// NewOrchestrator creates the hub orchestrator.
func NewOrchestrator(deps OrchestratorDeps) *Orchestrator {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Orchestrator{
		configRepo:  deps.ConfigRepo,
		logRepo:     deps.LogRepo,
		errors:      deps.Errors,
		audit:       deps.Audit,
		credentials: deps.Credentials,
		registry:    deps.Registry,
		pool:        deps.Pool,
		executor:    deps.Executor,
		retryOpts:   deps.RetryOpts,
		eventBus:    deps.EventBus,
		jobs:        deps.Jobs,
		metrics:     deps.Metrics,
		logger:      deps.Logger,
	}
}

// ---------------------------------------------------------------------------
// Import operations (vendor -> platform)
// ---------------------------------------------------------------------------

// ImportCustomers pulls customers from every matching config. When system is
// non-nil, only that system's config is targeted.
func (o *Orchestrator) ImportCustomers(
	ctx context.Context,
	tenantID uuid.UUID,
	system *accounting.AccountingSystem,
	filters accounting.ImportFilters,
) ([]accounting.Customer, []accounting.ConfigSyncResult, error) {
	var mu sync.Mutex
	var imported []accounting.Customer

	results, err := o.fanOut(ctx, fanOutRequest{
		tenantID:   tenantID,
		system:     system,
		entityType: accounting.EntityTypeCustomer,
		direction:  accounting.SyncLogDirectionImport,
		operation:  "ImportCustomers",
		call: func(ctx context.Context, conn accounting.Connector) (*accounting.SyncResult, error) {
			records, result, callErr := conn.ImportCustomers(ctx, filters)
			if callErr != nil {
				return result, callErr
			}
			mu.Lock()
			imported = append(imported, records...)
			mu.Unlock()
			return result, nil
		},
	})
	return imported, results, err
}

// ImportInvoices pulls invoices from every matching config.
func (o *Orchestrator) ImportInvoices(
	ctx context.Context,
	tenantID uuid.UUID,
	system *accounting.AccountingSystem,
	filters accounting.ImportFilters,
) ([]accounting.Invoice, []accounting.ConfigSyncResult, error) {
	var mu sync.Mutex
	var imported []accounting.Invoice

	results, err := o.fanOut(ctx, fanOutRequest{
		tenantID:   tenantID,
		system:     system,
		entityType: accounting.EntityTypeInvoice,
		direction:  accounting.SyncLogDirectionImport,
		operation:  "ImportInvoices",
		call: func(ctx context.Context, conn accounting.Connector) (*accounting.SyncResult, error) {
			records, result, callErr := conn.ImportInvoices(ctx, filters)
			if callErr != nil {
				return result, callErr
			}
			mu.Lock()
			imported = append(imported, records...)
			mu.Unlock()
			return result, nil
		},
	})
	return imported, results, err
}

// ImportChartOfAccounts pulls the chart of accounts from every matching
// config.
func (o *Orchestrator) ImportChartOfAccounts(
	ctx context.Context,
	tenantID uuid.UUID,
	system *accounting.AccountingSystem,
	filters accounting.ImportFilters,
) ([]accounting.ChartOfAccount, []accounting.ConfigSyncResult, error) {
	var mu sync.Mutex
	var imported []accounting.ChartOfAccount

	results, err := o.fanOut(ctx, fanOutRequest{
		tenantID:   tenantID,
		system:     system,
		entityType: accounting.EntityTypeChartOfAccounts,
		direction:  accounting.SyncLogDirectionImport,
		operation:  "ImportChartOfAccounts",
		call: func(ctx context.Context, conn accounting.Connector) (*accounting.SyncResult, error) {
			records, result, callErr := conn.ImportChartOfAccounts(ctx, filters)
			if callErr != nil {
				return result, callErr
			}
			mu.Lock()
			imported = append(imported, records...)
			mu.Unlock()
			return result, nil
		},
	})
	return imported, results, err
}

// ImportTrialBalance pulls the trial balance from every matching config that
// supports it.
func (o *Orchestrator) ImportTrialBalance(
	ctx context.Context,
	tenantID uuid.UUID,
	system *accounting.AccountingSystem,
	filters accounting.ImportFilters,
) ([]accounting.TrialBalanceRow, []accounting.ConfigSyncResult, error) {
	var mu sync.Mutex
	var imported []accounting.TrialBalanceRow

	results, err := o.fanOut(ctx, fanOutRequest{
		tenantID:   tenantID,
		system:     system,
		entityType: accounting.EntityTypeTrialBalance,
		direction:  accounting.SyncLogDirectionImport,
		operation:  "ImportTrialBalance",
		call: func(ctx context.Context, conn accounting.Connector) (*accounting.SyncResult, error) {
			rows, result, callErr := conn.ImportTrialBalance(ctx, filters)
			if callErr != nil {
				return result, callErr
			}
			mu.Lock()
			imported = append(imported, rows...)
			mu.Unlock()
			return result, nil
		},
	})
	return imported, results, err
}

// ImportGLAccounts pulls general ledger accounts from every matching config.
func (o *Orchestrator) ImportGLAccounts(
	ctx context.Context,
	tenantID uuid.UUID,
	system *accounting.AccountingSystem,
	filters accounting.ImportFilters,
) ([]accounting.ChartOfAccount, []accounting.ConfigSyncResult, error) {
	var mu sync.Mutex
	var imported []accounting.ChartOfAccount

	results, err := o.fanOut(ctx, fanOutRequest{
		tenantID:   tenantID,
		system:     system,
		entityType: accounting.EntityTypeGLAccount,
		direction:  accounting.SyncLogDirectionImport,
		operation:  "ImportGLAccounts",
		call: func(ctx context.Context, conn accounting.Connector) (*accounting.SyncResult, error) {
			records, result, callErr := conn.ImportGLAccounts(ctx, filters)
			if callErr != nil {
				return result, callErr
			}
			mu.Lock()
			imported = append(imported, records...)
			mu.Unlock()
			return result, nil
		},
	})
	return imported, results, err
}

// ---------------------------------------------------------------------------
// Push operations (platform -> vendor)
// ---------------------------------------------------------------------------

// SyncCustomerCreated pushes a new customer to every matching config.
func (o *Orchestrator) SyncCustomerCreated(ctx context.Context, tenantID uuid.UUID, customer *accounting.Customer) ([]accounting.ConfigSyncResult, error) {
	return o.fanOut(ctx, fanOutRequest{
		tenantID:   tenantID,
		entityType: accounting.EntityTypeCustomer,
		direction:  accounting.SyncLogDirectionExport,
		operation:  "SyncCustomerCreated",
		platformID: &customer.PlatformID,
		call: func(ctx context.Context, conn accounting.Connector) (*accounting.SyncResult, error) {
			return conn.SyncCustomer(ctx, customer)
		},
	})
}

// SyncInvoiceCreated pushes a new invoice to every matching config.
func (o *Orchestrator) SyncInvoiceCreated(ctx context.Context, invoice *accounting.Invoice) ([]accounting.ConfigSyncResult, error) {
	return o.fanOut(ctx, fanOutRequest{
		tenantID:   invoice.TenantID,
		entityType: accounting.EntityTypeInvoice,
		direction:  accounting.SyncLogDirectionExport,
		operation:  "SyncInvoiceCreated",
		platformID: &invoice.PlatformID,
		call: func(ctx context.Context, conn accounting.Connector) (*accounting.SyncResult, error) {
			return conn.SyncInvoice(ctx, invoice)
		},
	})
}

// SyncPaymentReceived pushes a received payment to every matching config.
func (o *Orchestrator) SyncPaymentReceived(ctx context.Context, payment *accounting.Payment) ([]accounting.ConfigSyncResult, error) {
	return o.fanOut(ctx, fanOutRequest{
		tenantID:   payment.TenantID,
		entityType: accounting.EntityTypePayment,
		direction:  accounting.SyncLogDirectionExport,
		operation:  "SyncPaymentReceived",
		platformID: &payment.PlatformID,
		call: func(ctx context.Context, conn accounting.Connector) (*accounting.SyncResult, error) {
			return conn.SyncPayment(ctx, payment)
		},
	})
}

// SyncRefund pushes a refund to every matching config.
func (o *Orchestrator) SyncRefund(ctx context.Context, refund *accounting.Refund) ([]accounting.ConfigSyncResult, error) {
	return o.fanOut(ctx, fanOutRequest{
		tenantID:   refund.TenantID,
		entityType: accounting.EntityTypeRefund,
		direction:  accounting.SyncLogDirectionExport,
		operation:  "SyncRefund",
		platformID: &refund.PlatformID,
		call: func(ctx context.Context, conn accounting.Connector) (*accounting.SyncResult, error) {
			return conn.SyncRefund(ctx, refund)
		},
	})
}

// SyncJournalEntry pushes a journal entry to every matching config.
func (o *Orchestrator) SyncJournalEntry(ctx context.Context, entry *accounting.JournalEntry) ([]accounting.ConfigSyncResult, error) {
	return o.fanOut(ctx, fanOutRequest{
		tenantID:   entry.TenantID,
		entityType: accounting.EntityTypeJournalEntry,
		direction:  accounting.SyncLogDirectionExport,
		operation:  "SyncJournalEntry",
		platformID: &entry.PlatformID,
		call: func(ctx context.Context, conn accounting.Connector) (*accounting.SyncResult, error) {
			return conn.SyncJournalEntry(ctx, entry)
		},
	})
}

// SyncBankEntry pushes a bank transaction to every matching config that
// supports bank entries.
func (o *Orchestrator) SyncBankEntry(ctx context.Context, entry *accounting.BankEntry) ([]accounting.ConfigSyncResult, error) {
	return o.fanOut(ctx, fanOutRequest{
		tenantID:   entry.TenantID,
		entityType: accounting.EntityTypeBankEntry,
		direction:  accounting.SyncLogDirectionExport,
		operation:  "SyncBankEntry",
		platformID: &entry.PlatformID,
		call: func(ctx context.Context, conn accounting.Connector) (*accounting.SyncResult, error) {
			return conn.SyncBankEntry(ctx, entry)
		},
	})
}

// ---------------------------------------------------------------------------
// Config-level operations
// ---------------------------------------------------------------------------

// GetEnabledSystems returns the systems the tenant has syncable configs for.
func (o *Orchestrator) GetEnabledSystems(ctx context.Context, tenantID uuid.UUID) ([]accounting.AccountingSystem, error) {
	configs, err := o.configRepo.FindEnabledForTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	systems := make([]accounting.AccountingSystem, 0, len(configs))
	for i := range configs {
		systems = append(systems, configs[i].System)
	}
	return systems, nil
}

// TestConnection verifies a config's credentials against the live vendor.
// The outcome is recorded on the config; failures are classified and
// persisted but returned as a failed result, not an error.
func (o *Orchestrator) TestConnection(ctx context.Context, configID uuid.UUID) (*accounting.SyncResult, error) {
	cfg, err := o.configRepo.FindByID(ctx, configID)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	testErr := o.runConnectionTest(ctx, cfg)
	elapsed := time.Since(start)

	cfg.RecordConnectionTest(time.Now(), testErr == nil)
	if saveErr := o.configRepo.Save(ctx, cfg); saveErr != nil {
		o.logger.Error("Failed to record connection test outcome",
			zap.String("config_id", cfg.ID.String()), zap.Error(saveErr))
	}

	if testErr == nil {
		return &accounting.SyncResult{Success: true, Duration: elapsed}, nil
	}

	o.errors.Record(ctx, cfg.TenantID, cfg.System, nil, testErr, accounting.ErrorContext{
		Operation: "TestConnection",
		RawError:  testErr.Error(),
	})
	return &accounting.SyncResult{
		Success:  false,
		Error:    accounting.SanitizeErrorText(testErr.Error()),
		Duration: elapsed,
	}, nil
}

func (o *Orchestrator) runConnectionTest(ctx context.Context, cfg *accounting.Config) error {
	settings, err := o.decryptSettings(cfg)
	if err != nil {
		return err
	}

	conn, err := o.pool.Acquire(ctx, cfg, settings)
	if err != nil {
		if accounting.Classify(err).Category == accounting.CategoryAuthentication {
			cfg.MarkAuthFailed()
		}
		return err
	}

	err = conn.Connector().TestConnection(ctx)
	if err != nil && accounting.Classify(err).Category == accounting.CategoryAuthentication {
		// The session is poisoned; do not return it for reuse.
		o.pool.Remove(conn.ID())
		cfg.MarkAuthFailed()
	} else {
		o.pool.Release(conn.ID())
	}
	return err
}

// ---------------------------------------------------------------------------
// Fan-out core
// ---------------------------------------------------------------------------

// connectorCall is one vendor operation against a live connector session.
type connectorCall func(ctx context.Context, conn accounting.Connector) (*accounting.SyncResult, error)

type fanOutRequest struct {
	tenantID   uuid.UUID
	system     *accounting.AccountingSystem
	entityType accounting.EntityType
	direction  accounting.SyncLogDirection
	operation  string
	platformID *uuid.UUID
	call       connectorCall
}

// fanOut runs the operation against every targeted config concurrently and
// aggregates one result per config, in completion order.
func (o *Orchestrator) fanOut(ctx context.Context, req fanOutRequest) ([]accounting.ConfigSyncResult, error) {
	configs, err := o.configRepo.FindEnabledForTenant(ctx, req.tenantID)
	if err != nil {
		return nil, err
	}

	targets := o.selectTargets(configs, req)
	if len(targets) == 0 {
		return []accounting.ConfigSyncResult{}, nil
	}

	batchID := uuid.New()
	if auditErr := o.audit.LogSyncStart(ctx, req.tenantID, "", req.entityType, req.direction, &batchID, "platform"); auditErr != nil {
		o.logger.Warn("Failed to audit sync start", zap.Error(auditErr))
	}

	out := make(chan accounting.ConfigSyncResult, len(targets))
	var wg sync.WaitGroup
	for i := range targets {
		cfg := targets[i]
		wg.Add(1)
		go func() {
			defer wg.Done()
			out <- o.syncOne(ctx, &cfg, req, batchID)
		}()
	}
	wg.Wait()
	close(out)

	results := make([]accounting.ConfigSyncResult, 0, len(targets))
	for res := range out {
		results = append(results, res)
	}
	return results, nil
}

// selectTargets applies the system filter, direction and entity toggles, and
// the connector capability check. Gated-out configs are skipped silently;
// they produce no result entry.
func (o *Orchestrator) selectTargets(configs []accounting.Config, req fanOutRequest) []accounting.Config {
	targets := make([]accounting.Config, 0, len(configs))
	for i := range configs {
		cfg := configs[i]
		if req.system != nil && cfg.System != *req.system {
			continue
		}

		switch req.direction {
		case accounting.SyncLogDirectionExport:
			if !cfg.Sync.Direction.AllowsPush() {
				continue
			}
		case accounting.SyncLogDirectionImport:
			if !cfg.Sync.Direction.AllowsPull() {
				continue
			}
		}

		if !cfg.Sync.EntityEnabled(req.entityType) {
			continue
		}

		probe, err := o.registry.New(cfg.System)
		if err != nil {
			o.logger.Warn("No connector registered for configured system",
				zap.String("system", cfg.System.String()))
			continue
		}
		caps := probe.Capabilities()
		if !capabilitySupports(caps, req.entityType) {
			o.logger.Debug("Connector does not support entity type, skipping",
				zap.String("system", cfg.System.String()),
				zap.String("entity_type", req.entityType.String()))
			continue
		}
		switch req.direction {
		case accounting.SyncLogDirectionExport:
			if !caps.SupportsPush {
				continue
			}
		case accounting.SyncLogDirectionImport:
			if !caps.SupportsPull {
				continue
			}
		}

		targets = append(targets, cfg)
	}
	return targets
}

// capabilitySupports consults the capability flags for an entity type,
// including the optional ledger operations not every vendor exposes.
func capabilitySupports(caps accounting.Capabilities, entity accounting.EntityType) bool {
	switch entity {
	case accounting.EntityTypeTrialBalance:
		return caps.SupportsTrialBalance
	case accounting.EntityTypeBankEntry:
		return caps.SupportsBankEntries
	default:
		return caps.Supports(entity)
	}
}

// syncOne runs the operation against a single config: decrypt, acquire a
// pooled session once, then retry the vendor call on transient failures.
func (o *Orchestrator) syncOne(ctx context.Context, cfg *accounting.Config, req fanOutRequest, batchID uuid.UUID) accounting.ConfigSyncResult {
	start := time.Now()
	o.metrics.RecordSyncAttempt(ctx, cfg.System.String(), req.operation)

	settings, err := o.decryptSettings(cfg)
	if err != nil {
		return o.failOne(ctx, cfg, req, batchID, err, time.Since(start))
	}

	// Acquired once per orchestrated call; retries below reuse the session.
	conn, err := o.pool.Acquire(ctx, cfg, settings)
	if err != nil {
		return o.failOne(ctx, cfg, req, batchID, err, time.Since(start))
	}
	o.metrics.RecordPoolAcquire(ctx, cfg.System.String())

	var result *accounting.SyncResult
	res := o.executor.Execute(ctx, o.retryOpts, func(ctx context.Context) error {
		r, callErr := req.call(ctx, conn.Connector())
		if callErr != nil {
			return callErr
		}
		result = r
		return nil
	})

	if res.Err != nil {
		if accounting.Classify(res.Err).Category == accounting.CategoryAuthentication {
			o.pool.Remove(conn.ID())
			cfg.MarkAuthFailed()
		} else {
			o.pool.Release(conn.ID())
		}
		return o.failOne(ctx, cfg, req, batchID, res.Err, time.Since(start))
	}
	o.pool.Release(conn.ID())

	if result == nil {
		result = &accounting.SyncResult{Success: true}
	}
	if result.Duration == 0 {
		result.Duration = time.Since(start)
	}

	o.metrics.RecordSyncDuration(ctx, cfg.System.String(), req.operation, result.Duration)
	o.recordSyncLog(ctx, cfg, req, batchID, result)
	if auditErr := o.audit.LogSyncComplete(ctx, cfg, req.entityType, req.direction, result, &batchID); auditErr != nil {
		o.logger.Warn("Failed to audit sync completion", zap.Error(auditErr))
	}
	o.publishCompleted(ctx, cfg, req, result)

	cfg.RecordSyncSuccess(time.Now())
	if updateErr := o.configRepo.UpdateSyncOutcome(ctx, cfg); updateErr != nil {
		o.logger.Error("Failed to update sync outcome",
			zap.String("config_id", cfg.ID.String()), zap.Error(updateErr))
	}

	return accounting.ConfigSyncResult{ConfigID: cfg.ID, System: cfg.System, Result: *result}
}

// failOne converts a per-config failure into a failed result entry: classify
// and persist the error, bump the failure counter, apply the auto-pause
// threshold. It never propagates the error to the fan-out.
func (o *Orchestrator) failOne(ctx context.Context, cfg *accounting.Config, req fanOutRequest, batchID uuid.UUID, cause error, elapsed time.Duration) accounting.ConfigSyncResult {
	sanitized := accounting.SanitizeErrorText(cause.Error())
	result := &accounting.SyncResult{Success: false, Error: sanitized, Duration: elapsed}

	logRow := o.recordSyncLog(ctx, cfg, req, batchID, result)
	var syncLogID *uuid.UUID
	if logRow != nil {
		syncLogID = &logRow.ID
	}

	syncError := o.errors.Record(ctx, cfg.TenantID, cfg.System, syncLogID, cause, accounting.ErrorContext{
		EntityType: req.entityType,
		Operation:  req.operation,
		RawError:   cause.Error(),
	})
	o.metrics.RecordSyncFailure(ctx, cfg.System.String(), req.operation, syncError.Category.String())

	if paused := cfg.RecordSyncFailure(time.Now(), sanitized); paused {
		o.logger.Warn("Config auto-paused after consecutive sync failures",
			zap.String("config_id", cfg.ID.String()),
			zap.String("system", cfg.System.String()),
			zap.Int("consecutive_failures", cfg.ConsecutiveFailures),
		)
		if auditErr := o.audit.LogSystemEvent(ctx, cfg.TenantID, cfg.System, "config auto-paused after consecutive sync failures"); auditErr != nil {
			o.logger.Warn("Failed to audit auto-pause", zap.Error(auditErr))
		}
		if o.eventBus != nil {
			if pubErr := o.eventBus.Publish(ctx, accounting.NewConfigAutoPausedEvent(cfg)); pubErr != nil {
				o.logger.Error("Failed to publish auto-pause event", zap.Error(pubErr))
			}
		}
	}

	if updateErr := o.configRepo.UpdateSyncOutcome(ctx, cfg); updateErr != nil {
		o.logger.Error("Failed to update sync outcome",
			zap.String("config_id", cfg.ID.String()), zap.Error(updateErr))
	}

	if auditErr := o.audit.LogSyncComplete(ctx, cfg, req.entityType, req.direction, result, &batchID); auditErr != nil {
		o.logger.Warn("Failed to audit sync completion", zap.Error(auditErr))
	}
	o.publishCompleted(ctx, cfg, req, result)

	return accounting.ConfigSyncResult{ConfigID: cfg.ID, System: cfg.System, Result: *result}
}

// recordSyncLog writes the per-attempt sync row. Best-effort: failures are
// logged and swallowed, never surfaced as operation failure.
func (o *Orchestrator) recordSyncLog(ctx context.Context, cfg *accounting.Config, req fanOutRequest, batchID uuid.UUID, result *accounting.SyncResult) *accounting.SyncLog {
	status := accounting.SyncLogStatusSuccess
	switch {
	case !result.Success:
		status = accounting.SyncLogStatusFailed
	case result.RecordsFailed > 0:
		status = accounting.SyncLogStatusPartial
	}

	row := &accounting.SyncLog{
		ID:               uuid.New(),
		TenantID:         cfg.TenantID,
		System:           cfg.System,
		Direction:        req.direction,
		EntityType:       req.entityType,
		PlatformID:       req.platformID,
		ExternalID:       result.ExternalID,
		Status:           status,
		RecordsProcessed: result.RecordsProcessed,
		RecordsSucceeded: result.RecordsSucceeded,
		RecordsFailed:    result.RecordsFailed,
		ErrorDetails:     result.Error,
		Duration:         result.Duration,
		BatchID:          &batchID,
		InitiatedBy:      "platform",
		CreatedAt:        time.Now(),
	}
	if err := o.logRepo.Create(ctx, row); err != nil {
		o.logger.Error("Failed to write sync log",
			zap.String("config_id", cfg.ID.String()),
			zap.String("operation", req.operation),
			zap.Error(err),
		)
		return nil
	}
	return row
}

func (o *Orchestrator) publishCompleted(ctx context.Context, cfg *accounting.Config, req fanOutRequest, result *accounting.SyncResult) {
	if o.eventBus == nil {
		return
	}
	event := accounting.NewSyncCompletedEvent(cfg, req.entityType, req.direction, result)
	if err := o.eventBus.Publish(ctx, event); err != nil {
		o.logger.Error("Failed to publish sync completed event",
			zap.String("config_id", cfg.ID.String()), zap.Error(err))
	}
}

// decryptSettings decodes and decrypts the config's connection settings and
// validates the tagged union against the system's auth kind.
func (o *Orchestrator) decryptSettings(cfg *accounting.Config) (*accounting.ConnectionSettings, error) {
	enc, err := secrets.Decode(cfg.EncryptedSettings)
	if err != nil {
		return nil, err
	}
	var settings accounting.ConnectionSettings
	if err := o.credentials.DecryptJSON(enc, &settings); err != nil {
		return nil, err
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return &settings, nil
}
