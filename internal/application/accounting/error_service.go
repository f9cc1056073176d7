package accounting

import (
	"context"
	"errors"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/finplat/backend/internal/domain/accounting"
	"github.com/finplat/backend/internal/domain/shared"
)

// ErrorService classifies handled exceptions, persists them and emits admin
// notifications. Persistence and publishing are best-effort: a failing error
// store must never fail the sync operation that produced the error.
type ErrorService struct {
	errorRepo accounting.SyncErrorRepository
	eventBus  shared.EventPublisher
	logger    *zap.Logger
}

// NewErrorService creates a new ErrorService. The event bus is optional.
func NewErrorService(errorRepo accounting.SyncErrorRepository, eventBus shared.EventPublisher, logger *zap.Logger) *ErrorService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ErrorService{
		errorRepo: errorRepo,
		eventBus:  eventBus,
		logger:    logger,
	}
}

// Record classifies err, builds a sanitized SyncError row and persists it.
// The returned SyncError is always non-nil for a non-nil err, even when
// persistence failed.
func (s *ErrorService) Record(
	ctx context.Context,
	tenantID uuid.UUID,
	system accounting.AccountingSystem,
	syncLogID *uuid.UUID,
	err error,
	errCtx accounting.ErrorContext,
) *accounting.SyncError {
	if err == nil {
		return nil
	}

	classification := accounting.Classify(err)
	errCtx.RawError = accounting.SanitizeErrorText(errCtx.RawError)

	syncError := &accounting.SyncError{
		ID:           uuid.New(),
		TenantID:     tenantID,
		System:       system,
		SyncLogID:    syncLogID,
		Severity:     classification.Severity,
		Category:     classification.Category,
		Message:      accounting.SanitizeErrorText(err.Error()),
		VendorCode:   vendorCode(err),
		StackTrace:   accounting.SanitizeStackTrace(string(debug.Stack())),
		Context:      errCtx,
		IsRetryable:  classification.IsRetryable,
		MaxRetries:   classification.MaxRetries,
		Resolution:   accounting.ResolutionUnresolved,
		SuggestedFix: classification.SuggestedFix,
		CreatedAt:    time.Now(),
	}

	if classification.NotifyAdmin {
		syncError.AdminNotified = s.notifyAdmin(ctx, syncError)
	}

	if createErr := s.errorRepo.Create(ctx, syncError); createErr != nil {
		s.logger.Error("Failed to persist sync error",
			zap.String("tenant_id", tenantID.String()),
			zap.String("system", system.String()),
			zap.String("category", syncError.Category.String()),
			zap.Error(createErr),
		)
	}

	return syncError
}

// notifyAdmin publishes the admin alert event. Returns true when the event
// was accepted by the bus.
func (s *ErrorService) notifyAdmin(ctx context.Context, syncError *accounting.SyncError) bool {
	if s.eventBus == nil {
		return false
	}
	if err := s.eventBus.Publish(ctx, accounting.NewSyncErrorEvent(syncError)); err != nil {
		s.logger.Error("Failed to publish sync error event",
			zap.String("sync_error_id", syncError.ID.String()),
			zap.Error(err),
		)
		return false
	}
	return true
}

// Resolve transitions an error to a terminal resolution status.
func (s *ErrorService) Resolve(
	ctx context.Context,
	tenantID uuid.UUID,
	errorID uuid.UUID,
	status accounting.ResolutionStatus,
	notes, resolvedBy string,
) (*accounting.SyncError, error) {
	if !status.IsValid() {
		return nil, accounting.ErrSyncErrorNotFound
	}

	syncError, err := s.errorRepo.FindByID(ctx, errorID)
	if err != nil {
		return nil, err
	}
	if syncError.TenantID != tenantID {
		return nil, accounting.ErrSyncErrorNotFound
	}

	syncError.Resolve(status, notes, resolvedBy, time.Now())
	if err := s.errorRepo.UpdateResolution(ctx, syncError); err != nil {
		return nil, err
	}
	return syncError, nil
}

// ScheduleRetry bumps the retry counter and persists the next attempt time.
func (s *ErrorService) ScheduleRetry(ctx context.Context, syncError *accounting.SyncError, nextRetryAt time.Time) error {
	if syncError.RetriesExhausted() {
		return accounting.ErrSyncErrorNotFound
	}
	syncError.ScheduleRetry(nextRetryAt)
	return s.errorRepo.UpdateRetryState(ctx, syncError)
}

// List returns errors for a tenant matching the filter.
func (s *ErrorService) List(ctx context.Context, tenantID uuid.UUID, filter accounting.SyncErrorFilter) ([]accounting.SyncError, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}
	return s.errorRepo.FindAll(ctx, tenantID, filter)
}

// vendorCode extracts the vendor's own error code, if err carries one.
func vendorCode(err error) string {
	var vendorErr *accounting.VendorError
	if errors.As(err, &vendorErr) {
		return vendorErr.Code
	}
	return ""
}
