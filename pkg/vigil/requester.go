package vigil

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/randalmurphal/vigil/pkg/vigil/event"
)

// DefaultRequestTimeout bounds how long a Requester waits for a
// completion event when the caller's context has no deadline.
const DefaultRequestTimeout = 5 * time.Second

// Requester turns the tracker's request/response topics into blocking
// calls: it publishes a request, then waits for the completion event
// carrying the same request ID.
type Requester struct {
	bus     event.Bus
	source  string
	timeout time.Duration

	mu      sync.Mutex
	waiting map[string]chan event.Event

	sub event.Subscription
}

// NewRequester creates a requester publishing as source. A
// non-positive timeout uses DefaultRequestTimeout.
func NewRequester(bus event.Bus, source string, timeout time.Duration) *Requester {
	if source == "" {
		source = "vigil"
	}
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	r := &Requester{
		bus:     bus,
		source:  source,
		timeout: timeout,
		waiting: make(map[string]chan event.Event),
	}
	r.sub = bus.Subscribe([]string{
		event.TopicTrackingQueryCompleted,
		event.TopicTrackingExportCompleted,
		event.TopicTrackingCleared,
	}, completionHandler{r})
	return r
}

// Close drops the completion subscription. In-flight requests time out.
func (r *Requester) Close() {
	if r.sub != nil {
		r.sub.Unsubscribe()
	}
}

// QueryEvents requests tracked events matching the given filters and
// options, expressed as the wire-level maps the tracker validates.
func (r *Requester) QueryEvents(ctx context.Context, filters, options map[string]any) (event.QueryCompletedPayload, error) {
	id := uuid.New().String()
	evt, err := r.request(ctx, event.TopicTrackingQuery, id, event.TrackingQueryPayload{
		RequestID: id,
		Filters:   filters,
		Options:   options,
	})
	if err != nil {
		return event.QueryCompletedPayload{}, err
	}
	p, err := event.Payload[event.QueryCompletedPayload](evt)
	if err != nil {
		return event.QueryCompletedPayload{}, err
	}
	if !p.Success {
		return p, errors.New(p.Error)
	}
	return p, nil
}

// ExportEvents requests a rendered export of tracked events.
func (r *Requester) ExportEvents(ctx context.Context, format string, filters, options map[string]any) (event.ExportCompletedPayload, error) {
	id := uuid.New().String()
	evt, err := r.request(ctx, event.TopicTrackingExport, id, event.TrackingExportPayload{
		RequestID: id,
		Format:    format,
		Filters:   filters,
		Options:   options,
	})
	if err != nil {
		return event.ExportCompletedPayload{}, err
	}
	p, err := event.Payload[event.ExportCompletedPayload](evt)
	if err != nil {
		return event.ExportCompletedPayload{}, err
	}
	if !p.Success {
		return p, errors.New(p.Error)
	}
	return p, nil
}

// ClearEvents requests removal of tracked state for the given scope.
func (r *Requester) ClearEvents(ctx context.Context, scope string) (event.ClearedPayload, error) {
	id := uuid.New().String()
	evt, err := r.request(ctx, event.TopicTrackingClear, id, event.TrackingClearPayload{
		RequestID: id,
		ClearType: scope,
	})
	if err != nil {
		return event.ClearedPayload{}, err
	}
	p, err := event.Payload[event.ClearedPayload](evt)
	if err != nil {
		return event.ClearedPayload{}, err
	}
	if !p.Success {
		return p, errors.New(p.Error)
	}
	return p, nil
}

// request publishes and waits for the matching completion.
func (r *Requester) request(ctx context.Context, topic, requestID string, payload any) (event.Event, error) {
	ch := make(chan event.Event, 1)

	r.mu.Lock()
	r.waiting[requestID] = ch
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.waiting, requestID)
		r.mu.Unlock()
	}()

	if err := r.bus.Publish(ctx, event.New(topic, r.source, payload)); err != nil {
		return nil, fmt.Errorf("publish request: %w", err)
	}

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case evt := <-ch:
		return evt, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, fmt.Errorf("%w: %s after %s", ErrRequestTimeout, topic, r.timeout)
	}
}

// deliver hands a completion event to its waiting request, if any.
// Unmatched completions (other requesters' responses) are ignored.
func (r *Requester) deliver(evt event.Event) {
	requestID := completionRequestID(evt)
	if requestID == "" {
		return
	}

	r.mu.Lock()
	ch, ok := r.waiting[requestID]
	if ok {
		delete(r.waiting, requestID)
	}
	r.mu.Unlock()

	if ok {
		ch <- evt
	}
}

func completionRequestID(evt event.Event) string {
	switch p := evt.Data().(type) {
	case event.QueryCompletedPayload:
		return p.RequestID
	case event.ExportCompletedPayload:
		return p.RequestID
	case event.ClearedPayload:
		return p.RequestID
	case map[string]any:
		id, _ := p["request_id"].(string)
		return id
	default:
		return ""
	}
}

// completionHandler routes tracking completion topics into the
// requester's waiting map.
type completionHandler struct {
	r *Requester
}

func (h completionHandler) Handles() []string {
	return []string{
		event.TopicTrackingQueryCompleted,
		event.TopicTrackingExportCompleted,
		event.TopicTrackingCleared,
	}
}

func (h completionHandler) Handle(_ context.Context, evt event.Event) error {
	h.r.deliver(evt)
	return nil
}
