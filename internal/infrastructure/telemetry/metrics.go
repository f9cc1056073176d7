package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
	"go.uber.org/zap"

	"github.com/finplat/backend/internal/infrastructure/config"
)

// MeterProvider wraps the OpenTelemetry meter provider and owns its shutdown.
type MeterProvider struct {
	provider *sdkmetric.MeterProvider
	logger   *zap.Logger
}

// NewMeterProvider initializes OpenTelemetry metrics with an OTLP gRPC
// exporter and a 60s periodic reader, and registers it as the global
// provider. When telemetry is disabled it returns a nil provider that is
// safe to Shutdown.
func NewMeterProvider(cfg config.TelemetryConfig, logger *zap.Logger) (*MeterProvider, error) {
	if !cfg.Enabled {
		logger.Info("Telemetry disabled, skipping meter initialization")
		return &MeterProvider{logger: logger}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	opts := []otlpmetricgrpc.Option{
		otlpmetricgrpc.WithEndpoint(cfg.CollectorEndpoint),
	}
	if cfg.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}

	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP metric exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion("1.0.0"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter,
			sdkmetric.WithInterval(60*time.Second),
		)),
	)

	otel.SetMeterProvider(provider)

	logger.Info("OpenTelemetry metrics initialized",
		zap.String("endpoint", cfg.CollectorEndpoint),
		zap.String("service", cfg.ServiceName),
	)

	return &MeterProvider{provider: provider, logger: logger}, nil
}

// Shutdown flushes remaining metrics and stops the provider.
func (mp *MeterProvider) Shutdown(ctx context.Context) error {
	if mp == nil || mp.provider == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := mp.provider.Shutdown(shutdownCtx); err != nil {
		mp.logger.Error("Failed to shutdown meter provider", zap.Error(err))
		return err
	}
	mp.logger.Info("Meter provider shut down")
	return nil
}

// ---------------------------------------------------------------------------
// Sync metrics
// ---------------------------------------------------------------------------

// SyncMetrics records counters and latencies for accounting sync operations.
// All methods are safe to call when telemetry is disabled; the global no-op
// meter absorbs them.
type SyncMetrics struct {
	syncAttempts metric.Int64Counter
	syncFailures metric.Int64Counter
	syncDuration metric.Float64Histogram
	poolAcquires metric.Int64Counter
}

// NewSyncMetrics registers the sync instruments on the global meter.
func NewSyncMetrics() (*SyncMetrics, error) {
	meter := otel.Meter("finplat/accounting")

	syncAttempts, err := meter.Int64Counter("accounting.sync.attempts",
		metric.WithDescription("Number of sync operations attempted"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create sync attempts counter: %w", err)
	}

	syncFailures, err := meter.Int64Counter("accounting.sync.failures",
		metric.WithDescription("Number of sync operations that failed"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create sync failures counter: %w", err)
	}

	syncDuration, err := meter.Float64Histogram("accounting.sync.duration",
		metric.WithDescription("Duration of sync operations"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create sync duration histogram: %w", err)
	}

	poolAcquires, err := meter.Int64Counter("accounting.pool.acquires",
		metric.WithDescription("Number of connection pool acquisitions"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool acquires counter: %w", err)
	}

	return &SyncMetrics{
		syncAttempts: syncAttempts,
		syncFailures: syncFailures,
		syncDuration: syncDuration,
		poolAcquires: poolAcquires,
	}, nil
}

// RecordSyncAttempt increments the attempt counter for a system/operation pair.
func (m *SyncMetrics) RecordSyncAttempt(ctx context.Context, system, operation string) {
	if m == nil {
		return
	}
	m.syncAttempts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("system", system),
		attribute.String("operation", operation),
	))
}

// RecordSyncFailure increments the failure counter with the error category.
func (m *SyncMetrics) RecordSyncFailure(ctx context.Context, system, operation, category string) {
	if m == nil {
		return
	}
	m.syncFailures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("system", system),
		attribute.String("operation", operation),
		attribute.String("category", category),
	))
}

// RecordSyncDuration records how long a sync operation took.
func (m *SyncMetrics) RecordSyncDuration(ctx context.Context, system, operation string, d time.Duration) {
	if m == nil {
		return
	}
	m.syncDuration.Record(ctx, float64(d.Milliseconds()), metric.WithAttributes(
		attribute.String("system", system),
		attribute.String("operation", operation),
	))
}

// RecordPoolAcquire increments the pool acquisition counter.
func (m *SyncMetrics) RecordPoolAcquire(ctx context.Context, system string) {
	if m == nil {
		return
	}
	m.poolAcquires.Add(ctx, 1, metric.WithAttributes(
		attribute.String("system", system),
	))
}
