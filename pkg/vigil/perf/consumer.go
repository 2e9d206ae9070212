package perf

import (
	"context"
	"errors"
	"fmt"

	"github.com/randalmurphal/vigil/pkg/vigil/event"
)

// Consumer routes work lifecycle topics into the sampler.
type Consumer struct {
	sampler *Sampler
}

// NewConsumer creates a consumer for a sampler.
func NewConsumer(sampler *Sampler) *Consumer {
	return &Consumer{sampler: sampler}
}

// Handles returns the topics this consumer processes.
func (c *Consumer) Handles() []string {
	return []string{
		event.TopicWorkStarted,
		event.TopicWorkCompleted,
		event.TopicWorkFailed,
	}
}

// Handle implements event.Handler.
func (c *Consumer) Handle(ctx context.Context, evt event.Event) error {
	switch evt.Type() {
	case event.TopicWorkStarted:
		p, err := event.Payload[event.WorkStartedPayload](evt)
		if err != nil {
			return err
		}
		c.sampler.RecordStart(p.WorkID, p.WorkType)
		return nil

	case event.TopicWorkCompleted:
		p, err := event.Payload[event.WorkCompletedPayload](evt)
		if err != nil {
			return err
		}
		c.sampler.RecordEnd(p.WorkID, p.WorkType)
		return nil

	case event.TopicWorkFailed:
		p, err := event.Payload[event.WorkFailedPayload](evt)
		if err != nil {
			return err
		}
		c.sampler.RecordFailure(p.WorkID, p.WorkType, errors.New(p.Error))
		return nil

	default:
		return fmt.Errorf("%w: %s", event.ErrUnsupportedEvent, evt.Type())
	}
}
