package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// NoopMetrics is a MetricsRecorder that does nothing.
// Use when metrics are disabled to avoid overhead.
type NoopMetrics struct{}

// Compile-time interface check.
var _ MetricsRecorder = NoopMetrics{}

// RecordSave does nothing.
func (NoopMetrics) RecordSave(_ context.Context, _ string, _ time.Duration, _ int64, _ error) {}

// RecordRecovery does nothing.
func (NoopMetrics) RecordRecovery(_ context.Context, _ string) {}

// RecordCorruption does nothing.
func (NoopMetrics) RecordCorruption(_ context.Context, _ string) {}

// RecordSweep does nothing.
func (NoopMetrics) RecordSweep(_ context.Context, _ int) {}

// NoopSpanManager is a SpanManager that does nothing.
// Use when tracing is disabled to avoid overhead.
type NoopSpanManager struct{}

// Compile-time interface check.
var _ SpanManager = NoopSpanManager{}

// noopSpan is a span that does nothing.
// We use the OTel noop package for a proper no-op span implementation.
var noopSpan = noop.Span{}

// StartSaveSpan returns the context unchanged and a no-op span.
func (NoopSpanManager) StartSaveSpan(ctx context.Context, _ string) (context.Context, trace.Span) {
	return ctx, noopSpan
}

// StartInspectSpan returns the context unchanged and a no-op span.
func (NoopSpanManager) StartInspectSpan(ctx context.Context) (context.Context, trace.Span) {
	return ctx, noopSpan
}

// EndSpanWithError does nothing.
func (NoopSpanManager) EndSpanWithError(_ trace.Span, _ error) {}

// AddSpanEvent does nothing.
func (NoopSpanManager) AddSpanEvent(_ context.Context, _ string, _ ...attribute.KeyValue) {}
