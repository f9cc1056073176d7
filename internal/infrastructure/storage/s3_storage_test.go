package storage

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/finplat/backend/internal/infrastructure/config"
)

// ============================================================================
// Unit Tests (no external dependencies)
// ============================================================================

func TestNewS3ArchiveStore_Validation(t *testing.T) {
	t.Run("nil config returns error", func(t *testing.T) {
		_, err := NewS3ArchiveStore(nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "configuration is required")
	})

	t.Run("missing bucket returns error", func(t *testing.T) {
		cfg := &config.StorageConfig{
			AccessKey: "test-key",
			SecretKey: "test-secret",
		}
		_, err := NewS3ArchiveStore(cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bucket is required")
	})

	t.Run("missing access key returns error", func(t *testing.T) {
		cfg := &config.StorageConfig{
			Bucket:    "test-bucket",
			SecretKey: "test-secret",
		}
		_, err := NewS3ArchiveStore(cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "access key is required")
	})

	t.Run("missing secret key returns error", func(t *testing.T) {
		cfg := &config.StorageConfig{
			Bucket:    "test-bucket",
			AccessKey: "test-key",
		}
		_, err := NewS3ArchiveStore(cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "secret key is required")
	})

	t.Run("valid config creates store", func(t *testing.T) {
		cfg := &config.StorageConfig{
			Bucket:            "test-bucket",
			AccessKey:         "test-key",
			SecretKey:         "test-secret",
			Region:            "us-east-1",
			Endpoint:          "http://localhost:9000",
			UsePathStyle:      true,
			PresignExpiration: 15 * time.Minute,
		}
		store, err := NewS3ArchiveStore(cfg)
		require.NoError(t, err)
		require.NotNil(t, store)
		assert.Equal(t, "test-bucket", store.GetBucket())
		assert.Equal(t, 15*time.Minute, store.presignExpiration)
	})

	t.Run("adds http prefix when missing and no SSL", func(t *testing.T) {
		cfg := &config.StorageConfig{
			Bucket:    "test-bucket",
			AccessKey: "test-key",
			SecretKey: "test-secret",
			Endpoint:  "localhost:9000",
			UseSSL:    false,
		}
		store, err := NewS3ArchiveStore(cfg)
		require.NoError(t, err)
		require.NotNil(t, store)
	})

	t.Run("adds https prefix when missing and SSL enabled", func(t *testing.T) {
		cfg := &config.StorageConfig{
			Bucket:    "test-bucket",
			AccessKey: "test-key",
			SecretKey: "test-secret",
			Endpoint:  "localhost:9000",
			UseSSL:    true,
		}
		store, err := NewS3ArchiveStore(cfg)
		require.NoError(t, err)
		require.NotNil(t, store)
	})

	t.Run("default presign expiration is 15 minutes", func(t *testing.T) {
		cfg := &config.StorageConfig{
			Bucket:    "test-bucket",
			AccessKey: "test-key",
			SecretKey: "test-secret",
			Endpoint:  "http://localhost:9000",
		}
		store, err := NewS3ArchiveStore(cfg)
		require.NoError(t, err)
		assert.Equal(t, 15*time.Minute, store.presignExpiration)
	})
}

func TestS3ArchiveStoreOptions(t *testing.T) {
	baseConfig := &config.StorageConfig{
		Bucket:    "test-bucket",
		AccessKey: "test-key",
		SecretKey: "test-secret",
		Endpoint:  "http://localhost:9000",
	}

	t.Run("WithLogger sets custom logger", func(t *testing.T) {
		logger := zaptest.NewLogger(t)
		store, err := NewS3ArchiveStore(baseConfig, WithLogger(logger))
		require.NoError(t, err)
		assert.NotNil(t, store.logger)
	})

	t.Run("WithPresignExpiration sets custom duration", func(t *testing.T) {
		store, err := NewS3ArchiveStore(baseConfig, WithPresignExpiration(1*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 1*time.Hour, store.presignExpiration)
	})
}

func TestS3ArchiveStore_ArchiveKey(t *testing.T) {
	cfg := &config.StorageConfig{
		Bucket:    "test-bucket",
		AccessKey: "test-key",
		SecretKey: "test-secret",
		Endpoint:  "http://localhost:9000",
		Prefix:    "audit-archive/",
	}
	store, err := NewS3ArchiveStore(cfg)
	require.NoError(t, err)

	tenantID := uuid.New()
	batchID := uuid.New()
	archivedAt := time.Date(2026, time.March, 14, 9, 30, 0, 0, time.UTC)

	key := store.ArchiveKey(tenantID, archivedAt, batchID)
	assert.Equal(t, "audit-archive/"+tenantID.String()+"/2026/03/"+batchID.String()+".json", key)
}

func TestS3ArchiveStore_GenerateDownloadURL(t *testing.T) {
	cfg := &config.StorageConfig{
		Bucket:            "test-bucket",
		AccessKey:         "test-key",
		SecretKey:         "test-secret",
		Endpoint:          "http://localhost:9000",
		UsePathStyle:      true,
		PresignExpiration: 15 * time.Minute,
	}
	store, err := NewS3ArchiveStore(cfg)
	require.NoError(t, err)

	t.Run("empty storage key returns error", func(t *testing.T) {
		url, _, err := store.GenerateDownloadURL(context.Background(), "", 15*time.Minute)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "storage key is required")
		assert.Empty(t, url)
	})

	t.Run("generates valid presigned URL", func(t *testing.T) {
		url, expiresAt, err := store.GenerateDownloadURL(context.Background(), "audit-archive/batch.json", 1*time.Hour)
		require.NoError(t, err)
		assert.NotEmpty(t, url)
		assert.True(t, strings.Contains(url, "localhost:9000"))
		assert.True(t, strings.Contains(url, "test-bucket"))
		assert.True(t, expiresAt.After(time.Now()))
	})

	t.Run("uses default expiration when not provided", func(t *testing.T) {
		url, expiresAt, err := store.GenerateDownloadURL(context.Background(), "audit-archive/batch.json", 0)
		require.NoError(t, err)
		assert.NotEmpty(t, url)
		assert.True(t, expiresAt.After(time.Now()))
		assert.True(t, expiresAt.Before(time.Now().Add(16*time.Minute)))
	})
}

func TestS3ArchiveStore_EmptyKeyValidation(t *testing.T) {
	cfg := &config.StorageConfig{
		Bucket:    "test-bucket",
		AccessKey: "test-key",
		SecretKey: "test-secret",
		Endpoint:  "http://localhost:9000",
	}
	store, err := NewS3ArchiveStore(cfg)
	require.NoError(t, err)

	t.Run("StoreArchive", func(t *testing.T) {
		err := store.StoreArchive(context.Background(), "", []byte("{}"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "storage key is required")
	})

	t.Run("DeleteObject", func(t *testing.T) {
		err := store.DeleteObject(context.Background(), "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "storage key is required")
	})

	t.Run("ObjectExists", func(t *testing.T) {
		exists, err := store.ObjectExists(context.Background(), "")
		require.Error(t, err)
		assert.False(t, exists)
		assert.Contains(t, err.Error(), "storage key is required")
	})
}

func TestMemoryArchiveStore(t *testing.T) {
	store := NewMemoryArchiveStore()
	ctx := context.Background()

	t.Run("stores and retrieves a batch", func(t *testing.T) {
		data := []byte(`[{"event_type":"SYNC_COMPLETE"}]`)
		require.NoError(t, store.StoreArchive(ctx, "tenant/2026/01/batch.json", data))

		exists, err := store.ObjectExists(ctx, "tenant/2026/01/batch.json")
		require.NoError(t, err)
		assert.True(t, exists)

		stored, ok := store.Get("tenant/2026/01/batch.json")
		require.True(t, ok)
		assert.Equal(t, data, stored)
	})

	t.Run("download URL embeds the key", func(t *testing.T) {
		url, expiresAt, err := store.GenerateDownloadURL(ctx, "tenant/2026/01/batch.json", 15*time.Minute)
		require.NoError(t, err)
		assert.Contains(t, url, "tenant/2026/01/batch.json")
		assert.True(t, expiresAt.After(time.Now()))
	})

	t.Run("delete removes the batch", func(t *testing.T) {
		require.NoError(t, store.DeleteObject(ctx, "tenant/2026/01/batch.json"))
		exists, err := store.ObjectExists(ctx, "tenant/2026/01/batch.json")
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("empty key is rejected", func(t *testing.T) {
		assert.Error(t, store.StoreArchive(ctx, "", nil))
		assert.Error(t, store.DeleteObject(ctx, ""))
		_, err := store.ObjectExists(ctx, "")
		assert.Error(t, err)
	})
}

// ============================================================================
// Integration Tests (require MinIO/RustFS running)
// ============================================================================

// skipIntegration skips the test if an S3-compatible backend is not available
func skipIntegration(t *testing.T) {
	t.Helper()
	// These tests require MinIO running on localhost:9000
	t.Skip("Skipping integration test. Run MinIO on localhost:9000 to enable.")
}

func newIntegrationStore(t *testing.T) *S3ArchiveStore {
	t.Helper()
	skipIntegration(t)

	cfg := &config.StorageConfig{
		Bucket:            "test-integration",
		AccessKey:         "minioadmin",
		SecretKey:         "minioadmin123",
		Endpoint:          "http://localhost:9000",
		Region:            "us-east-1",
		UsePathStyle:      true,
		Prefix:            "audit-archive/",
		PresignExpiration: 15 * time.Minute,
	}

	store, err := NewS3ArchiveStore(cfg, WithLogger(zap.NewNop()))
	require.NoError(t, err)

	err = store.EnsureBucket(context.Background())
	require.NoError(t, err)

	return store
}

func TestIntegration_ArchiveRoundTrip(t *testing.T) {
	store := newIntegrationStore(t)
	ctx := context.Background()
	key := "integration-test/archive-batch.json"
	data := []byte(`[{"event_type":"SYNC_COMPLETE","tenant_id":"t1"}]`)

	err := store.StoreArchive(ctx, key, data)
	require.NoError(t, err)

	exists, err := store.ObjectExists(ctx, key)
	require.NoError(t, err)
	assert.True(t, exists)

	downloadURL, _, err := store.GenerateDownloadURL(ctx, key, 15*time.Minute)
	require.NoError(t, err)
	assert.NotEmpty(t, downloadURL)

	err = store.DeleteObject(ctx, key)
	require.NoError(t, err)

	exists, err = store.ObjectExists(ctx, key)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestIntegration_EnsureBucket(t *testing.T) {
	skipIntegration(t)

	cfg := &config.StorageConfig{
		Bucket:            "test-ensure-bucket",
		AccessKey:         "minioadmin",
		SecretKey:         "minioadmin123",
		Endpoint:          "http://localhost:9000",
		Region:            "us-east-1",
		UsePathStyle:      true,
		PresignExpiration: 15 * time.Minute,
	}

	store, err := NewS3ArchiveStore(cfg, WithLogger(zap.NewNop()))
	require.NoError(t, err)

	// Should create the bucket if missing, and be idempotent after that
	err = store.EnsureBucket(context.Background())
	require.NoError(t, err)

	err = store.EnsureBucket(context.Background())
	require.NoError(t, err)
}
