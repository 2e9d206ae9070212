package breaker

import (
	"context"
	"fmt"

	"github.com/randalmurphal/vigil/pkg/vigil/event"
)

// Consumer routes error topics from the bus into the engine. The set
// of supported topics is closed; anything else yields a typed
// unsupported-event error instead of a silent default.
type Consumer struct {
	engine *Engine
}

// NewConsumer creates a consumer for an engine.
func NewConsumer(engine *Engine) *Consumer {
	return &Consumer{engine: engine}
}

// Handles returns the topics this consumer processes.
func (c *Consumer) Handles() []string {
	return []string{
		event.TopicErrorSystem,
		event.TopicErrorHandler,
		event.TopicErrorBreaker,
		event.TopicMessageError,
	}
}

// Handle implements event.Handler.
func (c *Consumer) Handle(ctx context.Context, evt event.Event) error {
	switch evt.Type() {
	case event.TopicErrorSystem:
		p, err := event.Payload[event.SystemErrorPayload](evt)
		if err != nil {
			return err
		}
		c.engine.ReportFailure(p.Component, ErrorInfo{
			Severity:    SeverityFromString(p.Severity),
			SeveritySet: p.Severity != "",
			Message:     p.Error,
		})
		return nil

	case event.TopicErrorHandler:
		p, err := event.Payload[event.HandlerErrorPayload](evt)
		if err != nil {
			return err
		}
		c.engine.ReportHandlerError(p.HandlerName, p.EventType, p.ConsecutiveFailures, p.Error)
		return nil

	case event.TopicErrorBreaker:
		p, err := event.Payload[event.BreakerErrorPayload](evt)
		if err != nil {
			return err
		}
		c.engine.ReportFailure(p.Component, ErrorInfo{
			Message: p.Error,
		})
		return nil

	case event.TopicMessageError:
		p, err := event.Payload[event.MessageErrorPayload](evt)
		if err != nil {
			return err
		}
		component := "message-bus"
		if p.Context != nil {
			if c, ok := p.Context["component"].(string); ok && c != "" {
				component = c
			}
		}
		c.engine.ReportFailure(component, ErrorInfo{
			Message: p.Error,
			Context: p.Context,
		})
		return nil

	default:
		return fmt.Errorf("%w: %s", event.ErrUnsupportedEvent, evt.Type())
	}
}
