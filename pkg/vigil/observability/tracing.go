package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tracer is the vigil tracer instance.
// Uses the global OTel tracer provider.
var tracer = otel.Tracer("vigil")

// SpanManager handles trace span lifecycle.
// Use NewSpanManager() for OTel tracing or NoopSpanManager{} when disabled.
type SpanManager interface {
	// StartConsumeSpan starts a span for one event's consumer-side
	// processing. Returns the context with span and the span itself.
	StartConsumeSpan(ctx context.Context, topic string) (context.Context, trace.Span)

	// StartQuerySpan starts a span for a status query execution.
	StartQuerySpan(ctx context.Context, queryName string) (context.Context, trace.Span)

	// EndSpanWithError completes a span, optionally recording an error.
	EndSpanWithError(span trace.Span, err error)

	// AddSpanEvent adds an event to the current span in context.
	AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue)
}

// otelSpanManager implements SpanManager using OpenTelemetry.
type otelSpanManager struct{}

// NewSpanManager returns a SpanManager that uses OpenTelemetry.
//
// The span manager uses the global OTel tracer provider. Configure the provider
// before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetTracerProvider(yourProvider)
func NewSpanManager() SpanManager {
	return &otelSpanManager{}
}

// StartConsumeSpan starts a span for one event's processing.
func (m *otelSpanManager) StartConsumeSpan(ctx context.Context, topic string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "vigil.consume",
		trace.WithAttributes(
			attribute.String("topic", topic),
		),
		trace.WithSpanKind(trace.SpanKindConsumer),
	)
}

// StartQuerySpan starts a span for a status query execution.
func (m *otelSpanManager) StartQuerySpan(ctx context.Context, queryName string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "vigil.query."+queryName,
		trace.WithAttributes(
			attribute.String("query", queryName),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// EndSpanWithError completes a span, optionally recording an error.
func (m *otelSpanManager) EndSpanWithError(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// AddSpanEvent adds an event to the current span.
func (m *otelSpanManager) AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if span == nil || !span.IsRecording() {
		return
	}
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// Convenience functions that operate on the global tracer.
// These are useful for simple cases where you don't need the interface.

// StartConsumeSpan starts a span for one event's processing.
// Uses the global OTel tracer.
func StartConsumeSpan(ctx context.Context, topic string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "vigil.consume",
		trace.WithAttributes(
			attribute.String("topic", topic),
		),
		trace.WithSpanKind(trace.SpanKindConsumer),
	)
}

// EndSpanWithError completes a span, optionally recording an error.
func EndSpanWithError(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// AddSpanEvent adds an event to the current span in context.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if span == nil || !span.IsRecording() {
		return
	}
	span.AddEvent(name, trace.WithAttributes(attrs...))
}
