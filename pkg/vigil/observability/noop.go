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

// RecordEventConsumed does nothing.
func (NoopMetrics) RecordEventConsumed(_ context.Context, _ string, _ time.Duration, _ error) {}

// RecordEventPublished does nothing.
func (NoopMetrics) RecordEventPublished(_ context.Context, _ string) {}

// RecordBreakerTransition does nothing.
func (NoopMetrics) RecordBreakerTransition(_ context.Context, _, _, _ string) {}

// RecordBreakerRejection does nothing.
func (NoopMetrics) RecordBreakerRejection(_ context.Context, _ string) {}

// RecordIsolation does nothing.
func (NoopMetrics) RecordIsolation(_ context.Context, _ string) {}

// RecordWorkDuration does nothing.
func (NoopMetrics) RecordWorkDuration(_ context.Context, _ string, _ time.Duration, _ bool) {}

// RecordPerfWarning does nothing.
func (NoopMetrics) RecordPerfWarning(_ context.Context, _ string) {}

// RecordTracked does nothing.
func (NoopMetrics) RecordTracked(_ context.Context, _ string) {}

// RecordDropped does nothing.
func (NoopMetrics) RecordDropped(_ context.Context, _ string) {}

// RecordPersistError does nothing.
func (NoopMetrics) RecordPersistError(_ context.Context, _ string) {}

// RecordQueryDuration does nothing.
func (NoopMetrics) RecordQueryDuration(_ context.Context, _ string, _ time.Duration, _ error) {}

// NoopSpanManager is a SpanManager that does nothing.
// Use when tracing is disabled to avoid overhead.
type NoopSpanManager struct{}

// Compile-time interface check.
var _ SpanManager = NoopSpanManager{}

// noopSpan is a span that does nothing.
// We use the OTel noop package for a proper no-op span implementation.
var noopSpan = noop.Span{}

// StartConsumeSpan returns the context unchanged and a no-op span.
func (NoopSpanManager) StartConsumeSpan(ctx context.Context, _ string) (context.Context, trace.Span) {
	return ctx, noopSpan
}

// StartQuerySpan returns the context unchanged and a no-op span.
func (NoopSpanManager) StartQuerySpan(ctx context.Context, _ string) (context.Context, trace.Span) {
	return ctx, noopSpan
}

// EndSpanWithError does nothing.
func (NoopSpanManager) EndSpanWithError(_ trace.Span, _ error) {}

// AddSpanEvent does nothing.
func (NoopSpanManager) AddSpanEvent(_ context.Context, _ string, _ ...attribute.KeyValue) {}
