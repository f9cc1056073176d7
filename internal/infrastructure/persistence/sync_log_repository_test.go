package persistence

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/finplat/backend/internal/domain/accounting"
	"github.com/finplat/backend/internal/infrastructure/persistence/models"
)

func setupSyncLogTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(&models.SyncLogModel{})
	require.NoError(t, err)

	return db
}

func newTestSyncLog(tenantID uuid.UUID, system accounting.AccountingSystem) *accounting.SyncLog {
	return &accounting.SyncLog{
		ID:               uuid.New(),
		TenantID:         tenantID,
		System:           system,
		Direction:        accounting.SyncLogDirectionExport,
		EntityType:       accounting.EntityTypeInvoice,
		ExternalID:       "INV-1042",
		Status:           accounting.SyncLogStatusSuccess,
		RecordsProcessed: 1,
		RecordsSucceeded: 1,
		Duration:         420 * time.Millisecond,
		InitiatedBy:      "scheduler",
		CreatedAt:        time.Now().UTC().Truncate(time.Second),
	}
}

func newTestAuditLog(tenantID uuid.UUID, eventType accounting.AuditEventType, userID uuid.UUID) *accounting.SyncLog {
	return &accounting.SyncLog{
		ID:           uuid.New(),
		TenantID:     tenantID,
		System:       accounting.SystemQuickBooks,
		Status:       accounting.SyncLogStatusSuccess,
		InitiatedBy:  userID.String(),
		IsAuditEvent: true,
		EventType:    eventType,
		Action:       "sync invoices",
		UserID:       &userID,
		IPAddress:    "10.0.0.7",
		CreatedAt:    time.Now().UTC().Truncate(time.Second),
	}
}

func TestGormSyncLogRepository_Create(t *testing.T) {
	db := setupSyncLogTestDB(t)
	repo := NewGormSyncLogRepository(db)
	ctx := context.Background()

	t.Run("round-trips a sync row", func(t *testing.T) {
		log := newTestSyncLog(uuid.New(), accounting.SystemXero)
		require.NoError(t, repo.Create(ctx, log))

		found, err := repo.FindByID(ctx, log.ID)
		require.NoError(t, err)
		assert.Equal(t, log.TenantID, found.TenantID)
		assert.Equal(t, accounting.SyncLogDirectionExport, found.Direction)
		assert.Equal(t, accounting.EntityTypeInvoice, found.EntityType)
		assert.Equal(t, "INV-1042", found.ExternalID)
		assert.Equal(t, 420*time.Millisecond, found.Duration)
	})

	t.Run("truncates oversized payloads on write", func(t *testing.T) {
		log := newTestSyncLog(uuid.New(), accounting.SystemXero)
		log.SyncData = strings.Repeat("x", 20000)
		log.ErrorDetails = strings.Repeat("y", 20000)
		require.NoError(t, repo.Create(ctx, log))

		found, err := repo.FindByID(ctx, log.ID)
		require.NoError(t, err)
		assert.Len(t, found.SyncData, 8192)
		assert.Len(t, found.ErrorDetails, 8192)
	})

	t.Run("returns ErrSyncLogNotFound for unknown ID", func(t *testing.T) {
		found, err := repo.FindByID(ctx, uuid.New())
		assert.Nil(t, found)
		assert.ErrorIs(t, err, accounting.ErrSyncLogNotFound)
	})
}

func TestGormSyncLogRepository_FindAll(t *testing.T) {
	db := setupSyncLogTestDB(t)
	repo := NewGormSyncLogRepository(db)
	ctx := context.Background()
	tenantID := uuid.New()
	userID := uuid.New()
	batchID := uuid.New()

	xeroLog := newTestSyncLog(tenantID, accounting.SystemXero)
	require.NoError(t, repo.Create(ctx, xeroLog))

	qbLog := newTestSyncLog(tenantID, accounting.SystemQuickBooks)
	qbLog.Status = accounting.SyncLogStatusFailed
	qbLog.BatchID = &batchID
	require.NoError(t, repo.Create(ctx, qbLog))

	auditLog := newTestAuditLog(tenantID, accounting.AuditEventSyncComplete, userID)
	require.NoError(t, repo.Create(ctx, auditLog))

	otherTenant := newTestSyncLog(uuid.New(), accounting.SystemXero)
	require.NoError(t, repo.Create(ctx, otherTenant))

	t.Run("scopes to tenant", func(t *testing.T) {
		logs, err := repo.FindAll(ctx, tenantID, accounting.SyncLogFilter{})
		require.NoError(t, err)
		assert.Len(t, logs, 3)
	})

	t.Run("filters by system", func(t *testing.T) {
		system := accounting.SystemXero
		logs, err := repo.FindAll(ctx, tenantID, accounting.SyncLogFilter{System: &system})
		require.NoError(t, err)
		require.Len(t, logs, 1)
		assert.Equal(t, xeroLog.ID, logs[0].ID)
	})

	t.Run("filters by status", func(t *testing.T) {
		status := accounting.SyncLogStatusFailed
		logs, err := repo.FindAll(ctx, tenantID, accounting.SyncLogFilter{Status: &status})
		require.NoError(t, err)
		require.Len(t, logs, 1)
		assert.Equal(t, qbLog.ID, logs[0].ID)
	})

	t.Run("filters audit rows only", func(t *testing.T) {
		logs, err := repo.FindAll(ctx, tenantID, accounting.SyncLogFilter{AuditOnly: true})
		require.NoError(t, err)
		require.Len(t, logs, 1)
		assert.Equal(t, auditLog.ID, logs[0].ID)
		assert.Equal(t, accounting.AuditEventSyncComplete, logs[0].EventType)
	})

	t.Run("filters by batch", func(t *testing.T) {
		logs, err := repo.FindAll(ctx, tenantID, accounting.SyncLogFilter{BatchID: &batchID})
		require.NoError(t, err)
		require.Len(t, logs, 1)
		assert.Equal(t, qbLog.ID, logs[0].ID)
	})

	t.Run("counts with the same filter", func(t *testing.T) {
		count, err := repo.Count(ctx, tenantID, accounting.SyncLogFilter{AuditOnly: true})
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
	})
}

func TestGormSyncLogRepository_ComplianceAggregates(t *testing.T) {
	db := setupSyncLogTestDB(t)
	repo := NewGormSyncLogRepository(db)
	ctx := context.Background()
	tenantID := uuid.New()
	alice := uuid.New()
	bob := uuid.New()

	for i := 0; i < 3; i++ {
		require.NoError(t, repo.Create(ctx, newTestAuditLog(tenantID, accounting.AuditEventSyncComplete, alice)))
	}
	require.NoError(t, repo.Create(ctx, newTestAuditLog(tenantID, accounting.AuditEventConfigChange, bob)))
	// non-audit rows do not count
	require.NoError(t, repo.Create(ctx, newTestSyncLog(tenantID, accounting.SystemXero)))

	start := time.Now().Add(-time.Hour)
	end := time.Now().Add(time.Hour)

	byType, err := repo.CountByEventType(ctx, tenantID, start, end)
	require.NoError(t, err)
	assert.Equal(t, int64(3), byType[accounting.AuditEventSyncComplete])
	assert.Equal(t, int64(1), byType[accounting.AuditEventConfigChange])

	byUser, err := repo.CountByUser(ctx, tenantID, start, end)
	require.NoError(t, err)
	assert.Equal(t, int64(3), byUser[alice.String()])
	assert.Equal(t, int64(1), byUser[bob.String()])
}

func TestGormSyncLogRepository_Retention(t *testing.T) {
	db := setupSyncLogTestDB(t)
	repo := NewGormSyncLogRepository(db)
	ctx := context.Background()
	tenantID := uuid.New()

	old := newTestSyncLog(tenantID, accounting.SystemXero)
	old.CreatedAt = time.Now().AddDate(0, 0, -120)
	require.NoError(t, repo.Create(ctx, old))

	oldAudit := newTestAuditLog(tenantID, accounting.AuditEventManualAction, uuid.New())
	oldAudit.CreatedAt = time.Now().AddDate(0, 0, -120)
	require.NoError(t, repo.Create(ctx, oldAudit))

	fresh := newTestSyncLog(tenantID, accounting.SystemXero)
	require.NoError(t, repo.Create(ctx, fresh))

	cutoff := time.Now().AddDate(0, 0, -90)

	t.Run("finds expired rows oldest first", func(t *testing.T) {
		expired, err := repo.FindExpired(ctx, cutoff, false, 10)
		require.NoError(t, err)
		assert.Len(t, expired, 2)
	})

	t.Run("restricts to audit rows when asked", func(t *testing.T) {
		expired, err := repo.FindExpired(ctx, cutoff, true, 10)
		require.NoError(t, err)
		require.Len(t, expired, 1)
		assert.Equal(t, oldAudit.ID, expired[0].ID)
	})

	t.Run("deletes archived rows by ID", func(t *testing.T) {
		require.NoError(t, repo.DeleteByIDs(ctx, []uuid.UUID{old.ID, oldAudit.ID}))

		remaining, err := repo.Count(ctx, tenantID, accounting.SyncLogFilter{})
		require.NoError(t, err)
		assert.Equal(t, int64(1), remaining)
	})

	t.Run("delete with no IDs is a no-op", func(t *testing.T) {
		assert.NoError(t, repo.DeleteByIDs(ctx, nil))
	})
}
