package breaker_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/vigil/pkg/vigil/breaker"
	"github.com/randalmurphal/vigil/pkg/vigil/event"
)

func TestConsumerSystemError(t *testing.T) {
	e := newTestEngine(t, nil, breaker.Config{FailureThreshold: 2})
	c := breaker.NewConsumer(e)

	evt := event.New(event.TopicErrorSystem, "extractor", event.SystemErrorPayload{
		Error:     "parse failure",
		Component: "extractor",
		Severity:  "high",
	})

	require.NoError(t, c.Handle(context.Background(), evt))
	require.NoError(t, c.Handle(context.Background(), evt))

	b, ok := e.Breaker("extractor")
	require.True(t, ok)
	assert.Equal(t, breaker.StateOpen, b.State)

	recent := e.Recent(1)
	require.Len(t, recent, 1)
	assert.Equal(t, breaker.SeverityHigh, recent[0].Severity)
}

func TestConsumerHandlerError(t *testing.T) {
	e := newTestEngine(t, nil, breaker.Config{IsolationThreshold: 5})
	c := breaker.NewConsumer(e)

	evt := event.New(event.TopicErrorHandler, "bus", event.HandlerErrorPayload{
		Error:               "handler blew up",
		HandlerName:         "exporter",
		EventType:           "BOOK.UPDATED",
		ConsecutiveFailures: 5,
	})

	require.NoError(t, c.Handle(context.Background(), evt))
	assert.True(t, e.IsHandlerIsolated("exporter"))
}

func TestConsumerMessageErrorComponentFromContext(t *testing.T) {
	e := newTestEngine(t, nil, breaker.Config{})
	c := breaker.NewConsumer(e)

	evt := event.New(event.TopicMessageError, "bus", event.MessageErrorPayload{
		Error:   "storage quota exceeded",
		Context: map[string]any{"component": "collection"},
	})

	require.NoError(t, c.Handle(context.Background(), evt))

	_, ok := e.Breaker("collection")
	assert.True(t, ok, "component must come from the message context")

	recent := e.Recent(1)
	require.Len(t, recent, 1)
	assert.Equal(t, breaker.KindStorage, recent[0].Kind, "kind must be classified from the message")
}

func TestConsumerCoercesMapPayload(t *testing.T) {
	e := newTestEngine(t, nil, breaker.Config{})
	c := breaker.NewConsumer(e)

	// Payloads that crossed a serialization boundary arrive as maps.
	evt := event.New(event.TopicErrorSystem, "extractor", map[string]any{
		"error":     "boom",
		"component": "extractor",
		"severity":  "critical",
	})

	require.NoError(t, c.Handle(context.Background(), evt))
	assert.Equal(t, breaker.StatusUnhealthy, e.SystemHealth().Status)
}

func TestConsumerRejectsUnsupportedTopic(t *testing.T) {
	e := newTestEngine(t, nil, breaker.Config{})
	c := breaker.NewConsumer(e)

	evt := event.New("BOOK.UPDATED", "extractor", nil)
	err := c.Handle(context.Background(), evt)
	require.Error(t, err)
	assert.True(t, errors.Is(err, event.ErrUnsupportedEvent))
}
