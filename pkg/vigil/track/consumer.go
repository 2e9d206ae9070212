package track

import (
	"context"
	"fmt"
	"time"

	"github.com/randalmurphal/vigil/pkg/vigil/event"
	"github.com/randalmurphal/vigil/pkg/vigil/observability"
)

// Consumer serves tracking requests from the bus. Every request gets
// exactly one completion event, success or failure, correlated to the
// request so callers can match responses.
type Consumer struct {
	tracker *Tracker
	bus     event.Bus
	source  string
}

// NewConsumer creates a consumer answering on bus as source.
func NewConsumer(tracker *Tracker, bus event.Bus, source string) *Consumer {
	if source == "" {
		source = "vigil"
	}
	return &Consumer{
		tracker: tracker,
		bus:     bus,
		source:  source,
	}
}

// Handles returns the topics this consumer processes.
func (c *Consumer) Handles() []string {
	return []string{
		event.TopicTrackingQuery,
		event.TopicTrackingExport,
		event.TopicTrackingClear,
	}
}

// Handle implements event.Handler.
func (c *Consumer) Handle(ctx context.Context, evt event.Event) error {
	switch evt.Type() {
	case event.TopicTrackingQuery:
		p, err := event.Payload[event.TrackingQueryPayload](evt)
		if err != nil {
			return err
		}
		return c.handleQuery(ctx, evt, p)

	case event.TopicTrackingExport:
		p, err := event.Payload[event.TrackingExportPayload](evt)
		if err != nil {
			return err
		}
		return c.handleExport(ctx, evt, p)

	case event.TopicTrackingClear:
		p, err := event.Payload[event.TrackingClearPayload](evt)
		if err != nil {
			return err
		}
		return c.handleClear(ctx, evt, p)

	default:
		return fmt.Errorf("%w: %s", event.ErrUnsupportedEvent, evt.Type())
	}
}

func (c *Consumer) handleQuery(ctx context.Context, evt event.Event, p event.TrackingQueryPayload) error {
	result, err := c.runQuery(ctx, p.Filters, p.Options)

	out := event.QueryCompletedPayload{
		RequestID: p.RequestID,
		Success:   err == nil,
		Timestamp: time.Now(),
	}
	if err != nil {
		out.Error = err.Error()
	} else {
		out.Results = result.Results
		out.Pagination = result.Pagination
		out.Total = result.Total
	}
	return c.publish(ctx, evt, event.TopicTrackingQueryCompleted, out)
}

func (c *Consumer) runQuery(ctx context.Context, rawFilters, rawOptions map[string]any) (QueryResult, error) {
	filters, err := FiltersFromMap(rawFilters)
	if err != nil {
		return QueryResult{}, err
	}
	opts, err := OptionsFromMap(rawOptions)
	if err != nil {
		return QueryResult{}, err
	}
	return c.tracker.Query(ctx, filters, opts)
}

func (c *Consumer) handleExport(ctx context.Context, evt event.Event, p event.TrackingExportPayload) error {
	result, err := c.runExport(ctx, p)

	out := event.ExportCompletedPayload{
		RequestID: p.RequestID,
		Success:   err == nil,
		Timestamp: time.Now(),
	}
	if err != nil {
		out.Error = err.Error()
	} else {
		out.Format = string(result.Format)
		out.Payload = result.Payload
		out.Batches = result.Batches
		out.Count = result.Count
	}
	return c.publish(ctx, evt, event.TopicTrackingExportCompleted, out)
}

func (c *Consumer) runExport(ctx context.Context, p event.TrackingExportPayload) (ExportResult, error) {
	format, err := ParseFormat(p.Format)
	if err != nil {
		return ExportResult{}, err
	}
	filters, err := FiltersFromMap(p.Filters)
	if err != nil {
		return ExportResult{}, err
	}
	opts, err := OptionsFromMap(p.Options)
	if err != nil {
		return ExportResult{}, err
	}
	return c.tracker.Export(ctx, format, filters, opts)
}

func (c *Consumer) handleClear(ctx context.Context, evt event.Event, p event.TrackingClearPayload) error {
	removed, err := c.tracker.Clear(ctx, p.ClearType)

	out := event.ClearedPayload{
		RequestID: p.RequestID,
		Success:   err == nil,
		ClearType: p.ClearType,
		Removed:   removed,
		Timestamp: time.Now(),
	}
	if err != nil {
		out.Error = err.Error()
	}
	return c.publish(ctx, evt, event.TopicTrackingCleared, out)
}

func (c *Consumer) publish(ctx context.Context, parent event.Event, topic string, payload any) error {
	if c.bus == nil {
		return nil
	}
	out := event.NewFromParent(parent, topic, c.source, payload)
	if err := c.bus.Publish(ctx, out); err != nil {
		observability.LogPublishError(c.tracker.logger, topic, err)
	}
	return nil
}

// Recorder adapts the tracker into a catch-all bus handler. Tracking
// responses are skipped so that serving a large export does not feed
// its own payload back into the store.
type Recorder struct {
	tracker *Tracker
}

// NewRecorder wraps tracker as a wildcard handler.
func NewRecorder(tracker *Tracker) *Recorder {
	return &Recorder{tracker: tracker}
}

// Handles returns nil: the recorder subscribes to all topics.
func (r *Recorder) Handles() []string {
	return nil
}

// Handle implements event.Handler.
func (r *Recorder) Handle(ctx context.Context, evt event.Event) error {
	switch evt.Type() {
	case event.TopicTrackingQueryCompleted,
		event.TopicTrackingExportCompleted,
		event.TopicTrackingCleared:
		return nil
	}
	return r.tracker.Record(ctx, evt)
}
