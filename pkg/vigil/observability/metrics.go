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

// MetricsRecorder records vigil metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordEventConsumed records one event delivered to a consumer.
	RecordEventConsumed(ctx context.Context, topic string, duration time.Duration, err error)

	// RecordEventPublished records one event published by an engine.
	RecordEventPublished(ctx context.Context, topic string)

	// RecordBreakerTransition records a circuit breaker state change.
	RecordBreakerTransition(ctx context.Context, component, from, to string)

	// RecordBreakerRejection records a CanExecute call refused by an
	// open breaker.
	RecordBreakerRejection(ctx context.Context, component string)

	// RecordIsolation records a handler entering isolation.
	RecordIsolation(ctx context.Context, handlerName string)

	// RecordWorkDuration records a completed unit of work.
	RecordWorkDuration(ctx context.Context, workType string, duration time.Duration, failed bool)

	// RecordPerfWarning records an emitted performance warning.
	RecordPerfWarning(ctx context.Context, kind string)

	// RecordTracked records an event accepted by the tracker.
	RecordTracked(ctx context.Context, eventType string)

	// RecordDropped records an event evicted from the tracker.
	RecordDropped(ctx context.Context, eventType string)

	// RecordPersistError records a failed persistence write.
	RecordPersistError(ctx context.Context, op string)

	// RecordQueryDuration records a status query execution.
	RecordQueryDuration(ctx context.Context, queryName string, duration time.Duration, err error)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	eventsConsumed     metric.Int64Counter
	eventLatency       metric.Float64Histogram
	eventsPublished    metric.Int64Counter
	breakerTransitions metric.Int64Counter
	breakerRejections  metric.Int64Counter
	handlerIsolations  metric.Int64Counter
	perfDuration       metric.Float64Histogram
	perfWarnings       metric.Int64Counter
	trackRecorded      metric.Int64Counter
	trackDropped       metric.Int64Counter
	trackPersistErrors metric.Int64Counter
	queryDuration      metric.Float64Histogram
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
	meter := otel.Meter("vigil")

	eventsConsumed, err := meter.Int64Counter("vigil.events.consumed",
		metric.WithDescription("Number of events delivered to vigil consumers"),
	)
	if err != nil {
		return nil, err
	}

	eventLatency, err := meter.Float64Histogram("vigil.events.latency_ms",
		metric.WithDescription("Consumer handling latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	eventsPublished, err := meter.Int64Counter("vigil.events.published",
		metric.WithDescription("Number of events published by vigil engines"),
	)
	if err != nil {
		return nil, err
	}

	breakerTransitions, err := meter.Int64Counter("vigil.breaker.transitions",
		metric.WithDescription("Number of circuit breaker state transitions"),
	)
	if err != nil {
		return nil, err
	}

	breakerRejections, err := meter.Int64Counter("vigil.breaker.rejections",
		metric.WithDescription("Number of executions refused by open breakers"),
	)
	if err != nil {
		return nil, err
	}

	handlerIsolations, err := meter.Int64Counter("vigil.handler.isolations",
		metric.WithDescription("Number of handlers placed in isolation"),
	)
	if err != nil {
		return nil, err
	}

	perfDuration, err := meter.Float64Histogram("vigil.perf.duration_ms",
		metric.WithDescription("Measured work unit duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	perfWarnings, err := meter.Int64Counter("vigil.perf.warnings",
		metric.WithDescription("Number of performance warnings emitted"),
	)
	if err != nil {
		return nil, err
	}

	trackRecorded, err := meter.Int64Counter("vigil.track.recorded",
		metric.WithDescription("Number of events recorded by the tracker"),
	)
	if err != nil {
		return nil, err
	}

	trackDropped, err := meter.Int64Counter("vigil.track.dropped",
		metric.WithDescription("Number of tracked events evicted by cap or retention"),
	)
	if err != nil {
		return nil, err
	}

	trackPersistErrors, err := meter.Int64Counter("vigil.track.persist_errors",
		metric.WithDescription("Number of failed tracker persistence writes"),
	)
	if err != nil {
		return nil, err
	}

	queryDuration, err := meter.Float64Histogram("vigil.query.duration_ms",
		metric.WithDescription("Status query execution duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		eventsConsumed:     eventsConsumed,
		eventLatency:       eventLatency,
		eventsPublished:    eventsPublished,
		breakerTransitions: breakerTransitions,
		breakerRejections:  breakerRejections,
		handlerIsolations:  handlerIsolations,
		perfDuration:       perfDuration,
		perfWarnings:       perfWarnings,
		trackRecorded:      trackRecorded,
		trackDropped:       trackDropped,
		trackPersistErrors: trackPersistErrors,
		queryDuration:      queryDuration,
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

// RecordEventConsumed records one event delivered to a consumer.
func (m *otelMetrics) RecordEventConsumed(ctx context.Context, topic string, duration time.Duration, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("topic", topic),
		attribute.Bool("error", err != nil),
	}
	m.eventsConsumed.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.eventLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
}

// RecordEventPublished records one event published by an engine.
func (m *otelMetrics) RecordEventPublished(ctx context.Context, topic string) {
	m.eventsPublished.Add(ctx, 1, metric.WithAttributes(
		attribute.String("topic", topic),
	))
}

// RecordBreakerTransition records a circuit breaker state change.
func (m *otelMetrics) RecordBreakerTransition(ctx context.Context, component, from, to string) {
	m.breakerTransitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("breaker_component", component),
		attribute.String("from", from),
		attribute.String("to", to),
	))
}

// RecordBreakerRejection records a refused execution.
func (m *otelMetrics) RecordBreakerRejection(ctx context.Context, component string) {
	m.breakerRejections.Add(ctx, 1, metric.WithAttributes(
		attribute.String("breaker_component", component),
	))
}

// RecordIsolation records a handler entering isolation.
func (m *otelMetrics) RecordIsolation(ctx context.Context, handlerName string) {
	m.handlerIsolations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("handler", handlerName),
	))
}

// RecordWorkDuration records a completed unit of work.
func (m *otelMetrics) RecordWorkDuration(ctx context.Context, workType string, duration time.Duration, failed bool) {
	m.perfDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(
		attribute.String("work_type", workType),
		attribute.Bool("failed", failed),
	))
}

// RecordPerfWarning records an emitted performance warning.
func (m *otelMetrics) RecordPerfWarning(ctx context.Context, kind string) {
	m.perfWarnings.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
	))
}

// RecordTracked records an accepted tracker event.
func (m *otelMetrics) RecordTracked(ctx context.Context, eventType string) {
	m.trackRecorded.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_type", eventType),
	))
}

// RecordDropped records an evicted tracker event.
func (m *otelMetrics) RecordDropped(ctx context.Context, eventType string) {
	m.trackDropped.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_type", eventType),
	))
}

// RecordPersistError records a failed persistence write.
func (m *otelMetrics) RecordPersistError(ctx context.Context, op string) {
	m.trackPersistErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", op),
	))
}

// RecordQueryDuration records a status query execution.
func (m *otelMetrics) RecordQueryDuration(ctx context.Context, queryName string, duration time.Duration, err error) {
	m.queryDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(
		attribute.String("query", queryName),
		attribute.Bool("error", err != nil),
	))
}
