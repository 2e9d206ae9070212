package event_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/randalmurphal/vigil/pkg/vigil/event"
)

func TestEnvelope(t *testing.T) {
	payload := event.WorkStartedPayload{
		WorkID:   "w-1",
		WorkType: "extract",
	}

	evt := event.New(event.TopicWorkStarted, "extractor", payload)

	// Identity
	if evt.ID() == "" {
		t.Error("expected non-empty ID")
	}
	if evt.Type() != event.TopicWorkStarted {
		t.Errorf("expected type %s, got %s", event.TopicWorkStarted, evt.Type())
	}
	if evt.Source() != "extractor" {
		t.Errorf("expected source extractor, got %s", evt.Source())
	}

	// Correlation (defaults to ID for root events)
	if evt.CorrelationID() != evt.ID() {
		t.Error("expected correlation ID to equal event ID for root event")
	}
	if evt.CausationID() != "" {
		t.Errorf("expected empty causation ID, got %s", evt.CausationID())
	}

	if evt.Timestamp().IsZero() {
		t.Error("expected non-zero timestamp")
	}

	// Payload
	data, ok := evt.Data().(event.WorkStartedPayload)
	if !ok {
		t.Fatalf("expected WorkStartedPayload, got %T", evt.Data())
	}
	if data.WorkID != "w-1" {
		t.Errorf("expected work ID w-1, got %s", data.WorkID)
	}

	// DataBytes
	bytes := evt.DataBytes()
	if len(bytes) == 0 {
		t.Error("expected non-empty bytes")
	}

	var decoded event.WorkStartedPayload
	if err := json.Unmarshal(bytes, &decoded); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	if decoded.WorkType != "extract" {
		t.Errorf("expected work type extract, got %s", decoded.WorkType)
	}
}

func TestEventOptions(t *testing.T) {
	customTime := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	evt := event.New(
		"test.created",
		"test",
		map[string]string{"key": "value"},
		event.WithEventID("custom-id"),
		event.WithCorrelationID("corr-id"),
		event.WithCausationID("cause-id"),
		event.WithTimestamp(customTime),
	)

	if evt.ID() != "custom-id" {
		t.Errorf("expected custom-id, got %s", evt.ID())
	}
	if evt.CorrelationID() != "corr-id" {
		t.Errorf("expected corr-id, got %s", evt.CorrelationID())
	}
	if evt.CausationID() != "cause-id" {
		t.Errorf("expected cause-id, got %s", evt.CausationID())
	}
	if !evt.Timestamp().Equal(customTime) {
		t.Errorf("expected %v, got %v", customTime, evt.Timestamp())
	}
}

func TestNewFromParent(t *testing.T) {
	parent := event.New(event.TopicMessageUnknownType, "router", nil)
	child := event.NewFromParent(parent, event.TopicDiagnosticSuggestion, "vigil", nil)

	if child.CorrelationID() != parent.CorrelationID() {
		t.Error("expected child to inherit parent correlation ID")
	}
	if child.CausationID() != parent.ID() {
		t.Error("expected child causation ID to be parent ID")
	}
	if child.ID() == parent.ID() {
		t.Error("expected child to have its own ID")
	}
}

func TestEnvelopeJSONRoundTrip(t *testing.T) {
	evt := event.New("test.event", "test", map[string]any{"count": 3.0},
		event.WithEventID("round-trip"))

	raw, err := json.Marshal(evt)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded event.Envelope
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if decoded.ID() != "round-trip" {
		t.Errorf("expected id round-trip, got %s", decoded.ID())
	}
	if decoded.Type() != "test.event" {
		t.Errorf("expected type test.event, got %s", decoded.Type())
	}

	data, ok := decoded.Data().(map[string]any)
	if !ok {
		t.Fatalf("expected map payload, got %T", decoded.Data())
	}
	if data["count"] != 3.0 {
		t.Errorf("expected count 3, got %v", data["count"])
	}
}

func TestTypedHandlerDirectPayload(t *testing.T) {
	var got event.WorkFailedPayload

	h := event.TypedHandler([]string{event.TopicWorkFailed},
		func(ctx context.Context, payload event.WorkFailedPayload, meta event.Metadata) error {
			got = payload
			return nil
		})

	evt := event.New(event.TopicWorkFailed, "worker", event.WorkFailedPayload{
		WorkID:   "w-9",
		WorkType: "parse",
		Error:    "boom",
	})

	if err := h.Handle(context.Background(), evt); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.WorkID != "w-9" || got.Error != "boom" {
		t.Errorf("unexpected payload: %+v", got)
	}
}

func TestTypedHandlerMapCoercion(t *testing.T) {
	var got event.WorkStartedPayload

	h := event.TypedHandler([]string{event.TopicWorkStarted},
		func(ctx context.Context, payload event.WorkStartedPayload, meta event.Metadata) error {
			got = payload
			return nil
		})

	// Payload arrives as a raw map, as it would after transport decoding
	evt := event.New(event.TopicWorkStarted, "worker", map[string]any{
		"work_id":   "w-2",
		"work_type": "scan",
	})

	if err := h.Handle(context.Background(), evt); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.WorkID != "w-2" || got.WorkType != "scan" {
		t.Errorf("unexpected payload: %+v", got)
	}
}

func TestTypedHandlerRejectsWrongPayload(t *testing.T) {
	h := event.TypedHandler([]string{"typed"},
		func(ctx context.Context, payload event.WorkStartedPayload, meta event.Metadata) error {
			return nil
		})

	evt := event.New("typed", "test", 42)

	err := h.Handle(context.Background(), evt)
	if err == nil {
		t.Fatal("expected error for unexpected payload type")
	}

	var he *event.HandlerError
	if !errors.As(err, &he) {
		t.Fatalf("expected HandlerError, got %T", err)
	}
}

func TestHandlerFuncHandlesAll(t *testing.T) {
	h := event.HandlerFunc(func(ctx context.Context, evt event.Event) error { return nil })
	if h.Handles() != nil {
		t.Error("expected HandlerFunc to accept all topics")
	}
}

func TestChainMiddlewareOrder(t *testing.T) {
	var order []string

	mw := func(name string) event.MiddlewareFunc {
		return func(next event.Handler) event.Handler {
			return event.HandlerFunc(func(ctx context.Context, evt event.Event) error {
				order = append(order, name)
				return next.Handle(ctx, evt)
			})
		}
	}

	h := event.ChainMiddleware(
		event.HandlerFunc(func(ctx context.Context, evt event.Event) error {
			order = append(order, "handler")
			return nil
		}),
		mw("outer"),
		mw("inner"),
	)

	if err := h.Handle(context.Background(), event.New("t", "s", nil)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"outer", "inner", "handler"}
	for i, name := range want {
		if order[i] != name {
			t.Fatalf("expected order %v, got %v", want, order)
		}
	}
}
