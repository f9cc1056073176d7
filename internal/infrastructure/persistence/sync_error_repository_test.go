package persistence

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/finplat/backend/internal/domain/accounting"
	"github.com/finplat/backend/internal/infrastructure/persistence/models"
)

// newMockSyncErrorRepository creates a GormSyncErrorRepository with a mocked
// SQL connection
func newMockSyncErrorRepository(t *testing.T) (*GormSyncErrorRepository, sqlmock.Sqlmock, *sql.DB) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	dialector := postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	})

	gormDB, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	return NewGormSyncErrorRepository(gormDB), mock, mockDB
}

func setupSyncErrorTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(&models.SyncErrorModel{})
	require.NoError(t, err)

	return db
}

func newTestSyncError(tenantID uuid.UUID, category accounting.ErrorCategory) *accounting.SyncError {
	return &accounting.SyncError{
		ID:          uuid.New(),
		TenantID:    tenantID,
		System:      accounting.SystemQuickBooks,
		Severity:    accounting.SeverityLow,
		Category:    category,
		Message:     "request failed",
		IsRetryable: true,
		MaxRetries:  3,
		Resolution:  accounting.ResolutionUnresolved,
		Context: accounting.ErrorContext{
			EntityType: accounting.EntityTypeInvoice,
			Operation:  "SyncInvoice",
			HTTPStatus: 503,
		},
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
}

func TestGormSyncErrorRepository_FindByID_Mock(t *testing.T) {
	t.Run("finds existing error", func(t *testing.T) {
		repo, mock, mockDB := newMockSyncErrorRepository(t)
		defer mockDB.Close()

		errorID := uuid.New()
		tenantID := uuid.New()

		rows := sqlmock.NewRows([]string{"id", "tenant_id", "system", "severity", "category", "message", "resolution", "is_retryable", "retry_count", "max_retries"}).
			AddRow(errorID, tenantID, "QUICKBOOKS", "LOW", "RATE_LIMIT", "throttled", "UNRESOLVED", true, 1, 3)

		mock.ExpectQuery(`SELECT \* FROM "accounting_sync_errors" WHERE id = \$1 ORDER BY .* LIMIT .*`).
			WithArgs(errorID, 1).
			WillReturnRows(rows)

		syncError, err := repo.FindByID(context.Background(), errorID)

		assert.NoError(t, err)
		assert.NotNil(t, syncError)
		assert.Equal(t, errorID, syncError.ID)
		assert.Equal(t, accounting.CategoryRateLimit, syncError.Category)
		assert.Equal(t, 1, syncError.RetryCount)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns ErrSyncErrorNotFound for missing error", func(t *testing.T) {
		repo, mock, mockDB := newMockSyncErrorRepository(t)
		defer mockDB.Close()

		errorID := uuid.New()

		mock.ExpectQuery(`SELECT \* FROM "accounting_sync_errors" WHERE id = \$1 ORDER BY .* LIMIT .*`).
			WithArgs(errorID, 1).
			WillReturnError(gorm.ErrRecordNotFound)

		syncError, err := repo.FindByID(context.Background(), errorID)

		assert.Nil(t, syncError)
		assert.ErrorIs(t, err, accounting.ErrSyncErrorNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormSyncErrorRepository_UpdateResolution_Mock(t *testing.T) {
	t.Run("reports missing row via RowsAffected", func(t *testing.T) {
		repo, mock, mockDB := newMockSyncErrorRepository(t)
		defer mockDB.Close()

		syncError := newTestSyncError(uuid.New(), accounting.CategoryValidation)
		syncError.Resolve(accounting.ResolutionManuallyResolved, "fixed mapping", "admin", time.Now())

		mock.ExpectExec(`UPDATE "accounting_sync_errors" SET .* WHERE id = .*`).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.UpdateResolution(context.Background(), syncError)

		assert.ErrorIs(t, err, accounting.ErrSyncErrorNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormSyncErrorRepository_Lifecycle(t *testing.T) {
	db := setupSyncErrorTestDB(t)
	repo := NewGormSyncErrorRepository(db)
	ctx := context.Background()
	tenantID := uuid.New()

	t.Run("round-trips an error including context", func(t *testing.T) {
		syncError := newTestSyncError(tenantID, accounting.CategoryRateLimit)
		require.NoError(t, repo.Create(ctx, syncError))

		found, err := repo.FindByID(ctx, syncError.ID)
		require.NoError(t, err)
		assert.Equal(t, accounting.CategoryRateLimit, found.Category)
		assert.Equal(t, accounting.EntityTypeInvoice, found.Context.EntityType)
		assert.Equal(t, "SyncInvoice", found.Context.Operation)
		assert.Equal(t, 503, found.Context.HTTPStatus)
	})

	t.Run("persists resolution transition", func(t *testing.T) {
		syncError := newTestSyncError(tenantID, accounting.CategoryValidation)
		require.NoError(t, repo.Create(ctx, syncError))

		syncError.Resolve(accounting.ResolutionManuallyResolved, "remapped tax field", "admin@corp", time.Now())
		require.NoError(t, repo.UpdateResolution(ctx, syncError))

		found, err := repo.FindByID(ctx, syncError.ID)
		require.NoError(t, err)
		assert.Equal(t, accounting.ResolutionManuallyResolved, found.Resolution)
		assert.Equal(t, "admin@corp", found.ResolvedBy)
		assert.NotNil(t, found.ResolvedAt)
	})

	t.Run("persists retry state", func(t *testing.T) {
		syncError := newTestSyncError(tenantID, accounting.CategoryConnection)
		require.NoError(t, repo.Create(ctx, syncError))

		syncError.ScheduleRetry(time.Now().Add(5 * time.Minute))
		require.NoError(t, repo.UpdateRetryState(ctx, syncError))

		found, err := repo.FindByID(ctx, syncError.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, found.RetryCount)
		assert.NotNil(t, found.NextRetryAt)
		assert.NotNil(t, found.LastRetryAt)
	})

	t.Run("retry update on unknown error fails", func(t *testing.T) {
		unknown := newTestSyncError(tenantID, accounting.CategoryConnection)
		assert.ErrorIs(t, repo.UpdateRetryState(ctx, unknown), accounting.ErrSyncErrorNotFound)
	})
}

func TestGormSyncErrorRepository_FindAll(t *testing.T) {
	db := setupSyncErrorTestDB(t)
	repo := NewGormSyncErrorRepository(db)
	ctx := context.Background()
	tenantID := uuid.New()

	rateLimit := newTestSyncError(tenantID, accounting.CategoryRateLimit)
	require.NoError(t, repo.Create(ctx, rateLimit))

	authErr := newTestSyncError(tenantID, accounting.CategoryAuthentication)
	authErr.Severity = accounting.SeverityHigh
	authErr.System = accounting.SystemXero
	authErr.Resolve(accounting.ResolutionAutoResolved, "token refreshed", "system", time.Now())
	require.NoError(t, repo.Create(ctx, authErr))

	otherTenant := newTestSyncError(uuid.New(), accounting.CategoryRateLimit)
	require.NoError(t, repo.Create(ctx, otherTenant))

	t.Run("scopes to tenant", func(t *testing.T) {
		errs, err := repo.FindAll(ctx, tenantID, accounting.SyncErrorFilter{})
		require.NoError(t, err)
		assert.Len(t, errs, 2)
	})

	t.Run("filters by category and severity", func(t *testing.T) {
		category := accounting.CategoryAuthentication
		severity := accounting.SeverityHigh
		errs, err := repo.FindAll(ctx, tenantID, accounting.SyncErrorFilter{Category: &category, Severity: &severity})
		require.NoError(t, err)
		require.Len(t, errs, 1)
		assert.Equal(t, authErr.ID, errs[0].ID)
	})

	t.Run("filters by resolution", func(t *testing.T) {
		resolution := accounting.ResolutionUnresolved
		errs, err := repo.FindAll(ctx, tenantID, accounting.SyncErrorFilter{Resolution: &resolution})
		require.NoError(t, err)
		require.Len(t, errs, 1)
		assert.Equal(t, rateLimit.ID, errs[0].ID)
	})
}

func TestGormSyncErrorRepository_DeleteOlderThan(t *testing.T) {
	db := setupSyncErrorTestDB(t)
	repo := NewGormSyncErrorRepository(db)
	ctx := context.Background()
	tenantID := uuid.New()

	oldResolved := newTestSyncError(tenantID, accounting.CategoryValidation)
	oldResolved.CreatedAt = time.Now().AddDate(0, 0, -120)
	oldResolved.Resolve(accounting.ResolutionIgnored, "", "admin", time.Now())
	require.NoError(t, repo.Create(ctx, oldResolved))

	// old but unresolved rows are kept
	oldUnresolved := newTestSyncError(tenantID, accounting.CategoryValidation)
	oldUnresolved.CreatedAt = time.Now().AddDate(0, 0, -120)
	require.NoError(t, repo.Create(ctx, oldUnresolved))

	freshResolved := newTestSyncError(tenantID, accounting.CategoryValidation)
	freshResolved.Resolve(accounting.ResolutionAutoResolved, "", "system", time.Now())
	require.NoError(t, repo.Create(ctx, freshResolved))

	deleted, err := repo.DeleteOlderThan(ctx, time.Now().AddDate(0, 0, -90))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = repo.FindByID(ctx, oldResolved.ID)
	assert.ErrorIs(t, err, accounting.ErrSyncErrorNotFound)

	remaining, err := repo.FindAll(ctx, tenantID, accounting.SyncErrorFilter{})
	require.NoError(t, err)
	assert.Len(t, remaining, 2)
}
