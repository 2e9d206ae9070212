package diagnose

import (
	"context"
	"fmt"
	"time"

	"github.com/randalmurphal/vigil/pkg/vigil/event"
	"github.com/randalmurphal/vigil/pkg/vigil/observability"
)

// Consumer routes message-diagnosis topics into the analyzer and
// publishes the verdicts back onto the bus.
type Consumer struct {
	analyzer *Analyzer
	bus      event.Bus
	source   string

	// AvailableTypes supplies the known-type list when the event's own
	// list is empty. Usually a topic registry's Types method.
	AvailableTypes func() []string
}

// NewConsumer creates a consumer publishing verdicts on bus as source.
func NewConsumer(analyzer *Analyzer, bus event.Bus, source string) *Consumer {
	if source == "" {
		source = "vigil"
	}
	return &Consumer{
		analyzer: analyzer,
		bus:      bus,
		source:   source,
	}
}

// Handles returns the topics this consumer processes.
func (c *Consumer) Handles() []string {
	return []string{
		event.TopicMessageUnknownType,
		event.TopicMessageRoutingError,
	}
}

// Handle implements event.Handler.
func (c *Consumer) Handle(ctx context.Context, evt event.Event) error {
	switch evt.Type() {
	case event.TopicMessageUnknownType:
		p, err := event.Payload[event.UnknownTypePayload](evt)
		if err != nil {
			return err
		}

		available := p.AvailableTypes
		if len(available) == 0 && c.AvailableTypes != nil {
			available = c.AvailableTypes()
		}

		s := c.analyzer.ClassifyUnknownType(p.MessageType, available)
		return c.publish(ctx, evt, event.TopicDiagnosticSuggestion, event.SuggestionPayload{
			UnknownType: s.UnknownType,
			BestMatch:   s.BestMatch,
			Similarity:  s.Similarity,
			Suggestion:  s.Text(),
			Timestamp:   time.Now(),
		})

	case event.TopicMessageRoutingError:
		p, err := event.Payload[event.RoutingErrorPayload](evt)
		if err != nil {
			return err
		}

		d := c.analyzer.AnalyzeRoutingFailure(p.Source, p.Target, p.Error)
		return c.publish(ctx, evt, event.TopicDiagnosticRoutingIssue, event.RoutingIssuePayload{
			Issue:       d.Issue,
			Source:      d.Source,
			Target:      d.Target,
			Suggestions: d.Suggestions,
			Timestamp:   time.Now(),
		})

	default:
		return fmt.Errorf("%w: %s", event.ErrUnsupportedEvent, evt.Type())
	}
}

// publish emits a verdict correlated to the event that prompted it.
func (c *Consumer) publish(ctx context.Context, parent event.Event, topic string, payload any) error {
	if c.bus == nil {
		return nil
	}
	out := event.NewFromParent(parent, topic, c.source, payload)
	if err := c.bus.Publish(ctx, out); err != nil {
		observability.LogPublishError(c.analyzer.logger, topic, err)
	}
	return nil
}
