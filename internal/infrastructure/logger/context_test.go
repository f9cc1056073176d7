package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestWithContext_RoundTrip(t *testing.T) {
	log := zap.NewNop()

	ctx := WithContext(context.Background(), log)

	assert.Same(t, log, FromContext(ctx))
}

func TestFromContext_NotFound(t *testing.T) {
	log := FromContext(context.Background())

	// No-op logger, never nil.
	require.NotNil(t, log)
	log.Info("does not panic")
}

func TestWithRequestID(t *testing.T) {
	core, recorded := observer.New(zapcore.InfoLevel)
	log := zap.New(core)

	ctx, enriched := WithRequestID(context.Background(), log, "req-123")

	assert.Equal(t, "req-123", GetRequestID(ctx))
	assert.Same(t, enriched, FromContext(ctx))

	enriched.Info("probe")
	entries := recorded.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "req-123", entries[0].ContextMap()["request_id"])
}

func TestWithTenantID(t *testing.T) {
	core, recorded := observer.New(zapcore.InfoLevel)
	log := zap.New(core)

	ctx, enriched := WithTenantID(context.Background(), log, "tenant-456")

	assert.Equal(t, "tenant-456", GetTenantID(ctx))

	enriched.Info("probe")
	entries := recorded.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "tenant-456", entries[0].ContextMap()["tenant_id"])
}

func TestGetRequestID_Missing(t *testing.T) {
	assert.Empty(t, GetRequestID(context.Background()))
}

func TestGetTenantID_Missing(t *testing.T) {
	assert.Empty(t, GetTenantID(context.Background()))
}

func TestWithTraceContext_NoSpan(t *testing.T) {
	log := zap.NewNop()

	// Without an active span the logger comes back unchanged.
	assert.Same(t, log, WithTraceContext(context.Background(), log))
}
