package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records driftstore metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordSave records a document save with its duration, size, and error status.
	RecordSave(ctx context.Context, key string, duration time.Duration, sizeBytes int64, err error)

	// RecordRecovery records a load served from the backup slot.
	RecordRecovery(ctx context.Context, key string)

	// RecordCorruption records a primary or backup that failed its integrity check.
	RecordCorruption(ctx context.Context, key string)

	// RecordSweep records a startup sweep of orphaned temp files.
	RecordSweep(ctx context.Context, removed int)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	saves        metric.Int64Counter
	saveErrors   metric.Int64Counter
	saveLatency  metric.Float64Histogram
	documentSize metric.Int64Histogram
	recoveries   metric.Int64Counter
	corruptions  metric.Int64Counter
	sweepRemoved metric.Int64Counter
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

// getDefaultMetrics returns the default OTel metrics instance.
// Lazily initializes the metrics on first call.
func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

// newOtelMetrics creates a new OTel metrics instance.
func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("driftstore")

	saves, err := meter.Int64Counter("driftstore.store.saves",
		metric.WithDescription("Number of document saves"),
	)
	if err != nil {
		return nil, err
	}

	saveErrors, err := meter.Int64Counter("driftstore.store.save_errors",
		metric.WithDescription("Number of failed document saves"),
	)
	if err != nil {
		return nil, err
	}

	saveLatency, err := meter.Float64Histogram("driftstore.store.save_latency_ms",
		metric.WithDescription("Document save latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	documentSize, err := meter.Int64Histogram("driftstore.store.document_size_bytes",
		metric.WithDescription("Saved document size in bytes"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	recoveries, err := meter.Int64Counter("driftstore.store.backup_recoveries",
		metric.WithDescription("Number of loads served from the backup slot"),
	)
	if err != nil {
		return nil, err
	}

	corruptions, err := meter.Int64Counter("driftstore.store.corruptions",
		metric.WithDescription("Number of integrity check failures"),
	)
	if err != nil {
		return nil, err
	}

	sweepRemoved, err := meter.Int64Counter("driftstore.store.sweep_removed",
		metric.WithDescription("Number of orphaned temp files removed at startup"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		saves:        saves,
		saveErrors:   saveErrors,
		saveLatency:  saveLatency,
		documentSize: documentSize,
		recoveries:   recoveries,
		corruptions:  corruptions,
		sweepRemoved: sweepRemoved,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the provider
// before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// RecordSave records a document save.
func (m *otelMetrics) RecordSave(ctx context.Context, key string, duration time.Duration, sizeBytes int64, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("key", key),
	}

	m.saves.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.saveLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
	m.documentSize.Record(ctx, sizeBytes, metric.WithAttributes(attrs...))

	if err != nil {
		m.saveErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// RecordRecovery records a load served from the backup slot.
func (m *otelMetrics) RecordRecovery(ctx context.Context, key string) {
	m.recoveries.Add(ctx, 1, metric.WithAttributes(attribute.String("key", key)))
}

// RecordCorruption records an integrity check failure.
func (m *otelMetrics) RecordCorruption(ctx context.Context, key string) {
	m.corruptions.Add(ctx, 1, metric.WithAttributes(attribute.String("key", key)))
}

// RecordSweep records a startup sweep.
func (m *otelMetrics) RecordSweep(ctx context.Context, removed int) {
	m.sweepRemoved.Add(ctx, int64(removed))
}
