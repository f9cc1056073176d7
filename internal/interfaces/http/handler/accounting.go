// Package handler implements the gin handlers of the ops HTTP surface.
package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	accountingapp "github.com/finplat/backend/internal/application/accounting"
	"github.com/finplat/backend/internal/domain/accounting"
	"github.com/finplat/backend/internal/infrastructure/connectors"
	"github.com/finplat/backend/internal/infrastructure/queue"
	"github.com/finplat/backend/internal/interfaces/http/dto"
	"github.com/finplat/backend/internal/interfaces/http/middleware"
)

// AccountingHandler exposes config lifecycle, connection tests, sync error
// management, the audit trail and hub statistics.
type AccountingHandler struct {
	configs *accountingapp.ConfigService
	orch    *accountingapp.Orchestrator
	errors  *accountingapp.ErrorService
	audit   *accountingapp.AuditService
	pool    *connectors.Pool
	jobs    queue.JobQueue
	logger  *zap.Logger
}

// NewAccountingHandler creates the handler.
func NewAccountingHandler(
	configs *accountingapp.ConfigService,
	orch *accountingapp.Orchestrator,
	errors *accountingapp.ErrorService,
	audit *accountingapp.AuditService,
	pool *connectors.Pool,
	jobs queue.JobQueue,
	logger *zap.Logger,
) *AccountingHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccountingHandler{
		configs: configs,
		orch:    orch,
		errors:  errors,
		audit:   audit,
		pool:    pool,
		jobs:    jobs,
		logger:  logger,
	}
}

// RegisterRoutes mounts the accounting routes on the API group.
func (h *AccountingHandler) RegisterRoutes(api *gin.RouterGroup) {
	grp := api.Group("/accounting")
	grp.GET("/stats", h.Stats)

	tenant := grp.Group("", middleware.RequireTenant())
	tenant.GET("/configs", h.ListConfigs)
	tenant.POST("/configs", h.RegisterConfig)
	tenant.GET("/configs/:id", h.GetConfig)
	tenant.PUT("/configs/:id/settings", h.UpdateSyncSettings)
	tenant.PUT("/configs/:id/credentials", h.UpdateCredentials)
	tenant.POST("/configs/:id/test", h.TestConnection)
	tenant.POST("/configs/:id/pause", h.PauseConfig)
	tenant.POST("/configs/:id/resume", h.ResumeConfig)
	tenant.DELETE("/configs/:id", h.DeleteConfig)
	tenant.GET("/systems", h.EnabledSystems)
	tenant.GET("/errors", h.ListErrors)
	tenant.POST("/errors/:id/resolve", h.ResolveError)
	tenant.GET("/audit", h.QueryAudit)
	tenant.GET("/audit/report", h.ComplianceReport)
	tenant.POST("/imports/customers", h.importHandler(queue.JobTypeImportCustomers))
	tenant.POST("/imports/invoices", h.importHandler(queue.JobTypeImportInvoices))
	tenant.POST("/imports/chart-of-accounts", h.importHandler(queue.JobTypeImportChartOfAccounts))
}

func actorFrom(c *gin.Context) accountingapp.AuditActor {
	actor := accountingapp.AuditActor{
		Name:      c.GetHeader("X-User-Name"),
		IPAddress: c.ClientIP(),
		UserAgent: c.GetHeader("User-Agent"),
	}
	if raw := c.GetHeader("X-User-ID"); raw != "" {
		if id, err := uuid.Parse(raw); err == nil {
			actor.UserID = &id
		}
	}
	return actor
}

func pathID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.Fail(dto.CodeValidation, "invalid id"))
		return uuid.Nil, false
	}
	return id, true
}

// ---------------------------------------------------------------------------
// Config lifecycle
// ---------------------------------------------------------------------------

// RegisterConfig handles POST /accounting/configs.
func (h *AccountingHandler) RegisterConfig(c *gin.Context) {
	var req RegisterConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.Fail(dto.CodeValidation, err.Error()))
		return
	}

	cfg, err := h.configs.Register(c.Request.Context(), middleware.GetTenantID(c), req.System, &req.Settings, req.Sync, actorFrom(c))
	if err != nil {
		c.JSON(dto.MapDomainError(err))
		return
	}
	c.JSON(http.StatusCreated, dto.OK(toConfigView(cfg)))
}

// ListConfigs handles GET /accounting/configs.
func (h *AccountingHandler) ListConfigs(c *gin.Context) {
	var filter accounting.ConfigFilter
	if raw := c.Query("system"); raw != "" {
		system := accounting.AccountingSystem(raw)
		filter.System = &system
	}
	if raw := c.Query("status"); raw != "" {
		status := accounting.ConfigStatus(raw)
		filter.Status = &status
	}

	configs, err := h.configs.List(c.Request.Context(), middleware.GetTenantID(c), filter)
	if err != nil {
		c.JSON(dto.MapDomainError(err))
		return
	}
	c.JSON(http.StatusOK, dto.OK(toConfigViews(configs)))
}

// GetConfig handles GET /accounting/configs/:id.
func (h *AccountingHandler) GetConfig(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	cfg, err := h.configs.Get(c.Request.Context(), middleware.GetTenantID(c), id)
	if err != nil {
		c.JSON(dto.MapDomainError(err))
		return
	}
	c.JSON(http.StatusOK, dto.OK(toConfigView(cfg)))
}

// UpdateSyncSettings handles PUT /accounting/configs/:id/settings.
func (h *AccountingHandler) UpdateSyncSettings(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req UpdateSyncSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.Fail(dto.CodeValidation, err.Error()))
		return
	}

	cfg, err := h.configs.UpdateSyncSettings(c.Request.Context(), middleware.GetTenantID(c), id, req.Sync, actorFrom(c))
	if err != nil {
		c.JSON(dto.MapDomainError(err))
		return
	}
	c.JSON(http.StatusOK, dto.OK(toConfigView(cfg)))
}

// UpdateCredentials handles PUT /accounting/configs/:id/credentials.
func (h *AccountingHandler) UpdateCredentials(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req UpdateCredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.Fail(dto.CodeValidation, err.Error()))
		return
	}

	cfg, err := h.configs.UpdateCredentials(c.Request.Context(), middleware.GetTenantID(c), id, &req.Settings, req.UpdatedFields, actorFrom(c))
	if err != nil {
		c.JSON(dto.MapDomainError(err))
		return
	}
	c.JSON(http.StatusOK, dto.OK(toConfigView(cfg)))
}

// PauseConfig handles POST /accounting/configs/:id/pause.
func (h *AccountingHandler) PauseConfig(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	cfg, err := h.configs.Pause(c.Request.Context(), middleware.GetTenantID(c), id, actorFrom(c))
	if err != nil {
		c.JSON(dto.MapDomainError(err))
		return
	}
	c.JSON(http.StatusOK, dto.OK(toConfigView(cfg)))
}

// ResumeConfig handles POST /accounting/configs/:id/resume.
func (h *AccountingHandler) ResumeConfig(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	cfg, err := h.configs.Resume(c.Request.Context(), middleware.GetTenantID(c), id, actorFrom(c))
	if err != nil {
		c.JSON(dto.MapDomainError(err))
		return
	}
	c.JSON(http.StatusOK, dto.OK(toConfigView(cfg)))
}

// DeleteConfig handles DELETE /accounting/configs/:id.
func (h *AccountingHandler) DeleteConfig(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.configs.Delete(c.Request.Context(), middleware.GetTenantID(c), id, actorFrom(c)); err != nil {
		c.JSON(dto.MapDomainError(err))
		return
	}
	c.Status(http.StatusNoContent)
}

// EnabledSystems handles GET /accounting/systems.
func (h *AccountingHandler) EnabledSystems(c *gin.Context) {
	systems, err := h.orch.GetEnabledSystems(c.Request.Context(), middleware.GetTenantID(c))
	if err != nil {
		c.JSON(dto.MapDomainError(err))
		return
	}
	c.JSON(http.StatusOK, dto.OK(systems))
}

// TestConnection handles POST /accounting/configs/:id/test.
func (h *AccountingHandler) TestConnection(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	// Ownership check before touching the vendor.
	if _, err := h.configs.Get(c.Request.Context(), middleware.GetTenantID(c), id); err != nil {
		c.JSON(dto.MapDomainError(err))
		return
	}

	result, err := h.orch.TestConnection(c.Request.Context(), id)
	if err != nil {
		c.JSON(dto.MapDomainError(err))
		return
	}
	c.JSON(http.StatusOK, dto.OK(TestConnectionResponse{
		Success:  result.Success,
		Error:    result.Error,
		Duration: result.Duration.String(),
	}))
}

// ---------------------------------------------------------------------------
// Errors and audit
// ---------------------------------------------------------------------------

// ListErrors handles GET /accounting/errors.
func (h *AccountingHandler) ListErrors(c *gin.Context) {
	var filter accounting.SyncErrorFilter
	if raw := c.Query("category"); raw != "" {
		category := accounting.ErrorCategory(raw)
		filter.Category = &category
	}
	if raw := c.Query("resolution"); raw != "" {
		resolution := accounting.ResolutionStatus(raw)
		filter.Resolution = &resolution
	}
	filter.Page = intQuery(c, "page", 1)
	filter.PageSize = intQuery(c, "page_size", 20)

	errs, err := h.errors.List(c.Request.Context(), middleware.GetTenantID(c), filter)
	if err != nil {
		c.JSON(dto.MapDomainError(err))
		return
	}
	c.JSON(http.StatusOK, dto.OK(errs))
}

// ResolveError handles POST /accounting/errors/:id/resolve.
func (h *AccountingHandler) ResolveError(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req ResolveErrorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.Fail(dto.CodeValidation, err.Error()))
		return
	}

	resolved, err := h.errors.Resolve(c.Request.Context(), middleware.GetTenantID(c), id, req.Status, req.Notes, req.ResolvedBy)
	if err != nil {
		c.JSON(dto.MapDomainError(err))
		return
	}

	actor := actorFrom(c)
	if auditErr := h.audit.LogManualAction(c.Request.Context(), middleware.GetTenantID(c), resolved.System,
		"sync error resolved: "+string(req.Status), actor); auditErr != nil {
		h.logger.Warn("Failed to audit error resolution", zap.Error(auditErr))
	}
	c.JSON(http.StatusOK, dto.OK(resolved))
}

// QueryAudit handles GET /accounting/audit.
func (h *AccountingHandler) QueryAudit(c *gin.Context) {
	var filter accounting.SyncLogFilter
	if raw := c.Query("event_type"); raw != "" {
		eventType := accounting.AuditEventType(raw)
		filter.EventType = &eventType
	}
	filter.Page = intQuery(c, "page", 1)
	filter.PageSize = intQuery(c, "page_size", 50)

	rows, total, err := h.audit.Query(c.Request.Context(), middleware.GetTenantID(c), filter)
	if err != nil {
		c.JSON(dto.MapDomainError(err))
		return
	}
	c.JSON(http.StatusOK, dto.OKPaged(rows, total, filter.Page, filter.PageSize))
}

// ComplianceReport handles GET /accounting/audit/report.
func (h *AccountingHandler) ComplianceReport(c *gin.Context) {
	end := time.Now()
	start := end.AddDate(0, -1, 0)
	if raw := c.Query("start"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, dto.Fail(dto.CodeValidation, "start must be RFC3339"))
			return
		}
		start = parsed
	}
	if raw := c.Query("end"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, dto.Fail(dto.CodeValidation, "end must be RFC3339"))
			return
		}
		end = parsed
	}

	report, err := h.audit.GenerateComplianceReport(c.Request.Context(), middleware.GetTenantID(c), start, end)
	if err != nil {
		c.JSON(dto.MapDomainError(err))
		return
	}
	c.JSON(http.StatusOK, dto.OK(report))
}

// ---------------------------------------------------------------------------
// Imports and stats
// ---------------------------------------------------------------------------

// importHandler enqueues an import fan-out of the given kind.
func (h *AccountingHandler) importHandler(jobType queue.JobType) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ImportRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, dto.Fail(dto.CodeValidation, err.Error()))
			return
		}
		tenantID := middleware.GetTenantID(c)

		var job *queue.SyncJob
		var err error
		switch jobType {
		case queue.JobTypeImportCustomers:
			job, err = h.orch.EnqueueImportCustomers(c.Request.Context(), tenantID, req.System, req.Filters)
		case queue.JobTypeImportInvoices:
			job, err = h.orch.EnqueueImportInvoices(c.Request.Context(), tenantID, req.System, req.Filters)
		default:
			job, err = h.orch.EnqueueImportChartOfAccounts(c.Request.Context(), tenantID, req.System, req.Filters)
		}
		if err != nil {
			c.JSON(dto.MapDomainError(err))
			return
		}
		c.JSON(http.StatusAccepted, dto.OK(JobView{
			ID:       job.ID,
			Type:     string(job.Type),
			Status:   string(job.Status),
			Priority: int(job.Priority),
		}))
	}
}

// Stats handles GET /accounting/stats: pool and queue health for operators.
func (h *AccountingHandler) Stats(c *gin.Context) {
	stats := gin.H{}
	if h.pool != nil {
		stats["pool"] = h.pool.GetStatistics()
	}
	if h.jobs != nil {
		queueStats, err := h.jobs.Stats(c.Request.Context())
		if err != nil {
			h.logger.Warn("Failed to read queue stats", zap.Error(err))
		} else {
			stats["queue"] = queueStats
		}
	}
	c.JSON(http.StatusOK, dto.OK(stats))
}

func intQuery(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	var n int
	for _, r := range raw {
		if r < '0' || r > '9' {
			return fallback
		}
		n = n*10 + int(r-'0')
	}
	if n <= 0 {
		return fallback
	}
	return n
}
