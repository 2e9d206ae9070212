package event

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event is the interface for everything carried on the bus.
// Events are immutable once created - any modification creates a new event.
type Event interface {
	// Identity
	ID() string     // Unique event identifier
	Type() string   // Topic name (e.g., "ERROR.SYSTEM")
	Source() string // Producer name (e.g., "extractor", "vigil")

	// Correlation across request/response chains
	CorrelationID() string // Groups related events
	CausationID() string   // ID of the event that directly caused this one

	// Metadata
	Timestamp() time.Time // When the event occurred

	// Payload
	Data() any         // Raw payload
	DataBytes() []byte // Serialized payload for storage and transport
}

// Metadata contains the common event metadata fields.
type Metadata struct {
	EventID       string    `json:"id"`
	EventType     string    `json:"type"`
	EventSource   string    `json:"source"`
	CorrelationID string    `json:"correlation_id"`
	CausationID   string    `json:"causation_id,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// Envelope is the concrete event implementation used throughout vigil.
// Payloads are untyped at this level; consumers coerce them with
// TypedHandler or by asserting against the structs in topics.go.
type Envelope struct {
	Meta    Metadata `json:"metadata"`
	Payload any      `json:"payload"`

	// Cached serialization (computed lazily)
	cachedBytes []byte
}

// ID returns the unique event identifier.
func (e *Envelope) ID() string {
	return e.Meta.EventID
}

// Type returns the topic name.
func (e *Envelope) Type() string {
	return e.Meta.EventType
}

// Source returns the producer name.
func (e *Envelope) Source() string {
	return e.Meta.EventSource
}

// CorrelationID returns the correlation ID for the event chain.
func (e *Envelope) CorrelationID() string {
	return e.Meta.CorrelationID
}

// CausationID returns the ID of the event that caused this one.
func (e *Envelope) CausationID() string {
	return e.Meta.CausationID
}

// Timestamp returns when the event occurred.
func (e *Envelope) Timestamp() time.Time {
	return e.Meta.Timestamp
}

// Data returns the event payload.
func (e *Envelope) Data() any {
	return e.Payload
}

// DataBytes returns the serialized payload.
// The result is cached for efficiency.
func (e *Envelope) DataBytes() []byte {
	if e.cachedBytes == nil {
		// Best effort - errors are ignored for interface compliance
		e.cachedBytes, _ = json.Marshal(e.Payload)
	}
	return e.cachedBytes
}

// MarshalJSON implements json.Marshaler.
func (e *Envelope) MarshalJSON() ([]byte, error) {
	type alias Envelope
	return json.Marshal((*alias)(e))
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	type alias Envelope
	if err := json.Unmarshal(data, (*alias)(e)); err != nil {
		return err
	}
	e.cachedBytes = nil // Clear cache on unmarshal
	return nil
}

// Option configures event creation.
type Option func(*eventConfig)

type eventConfig struct {
	id            string
	correlationID string
	causationID   string
	timestamp     time.Time
}

// WithEventID sets a specific event ID (default: auto-generated UUID).
func WithEventID(id string) Option {
	return func(cfg *eventConfig) {
		cfg.id = id
	}
}

// WithCorrelationID sets the correlation ID for the event chain.
func WithCorrelationID(id string) Option {
	return func(cfg *eventConfig) {
		cfg.correlationID = id
	}
}

// WithCausationID sets the ID of the causing event.
func WithCausationID(id string) Option {
	return func(cfg *eventConfig) {
		cfg.causationID = id
	}
}

// WithTimestamp sets a specific timestamp (default: time.Now()).
func WithTimestamp(t time.Time) Option {
	return func(cfg *eventConfig) {
		cfg.timestamp = t
	}
}

// New creates an event for the given topic, source, and payload.
func New(eventType string, source string, payload any, opts ...Option) *Envelope {
	cfg := &eventConfig{
		id:        uuid.New().String(),
		timestamp: time.Now(),
	}

	for _, opt := range opts {
		opt(cfg)
	}

	// If no correlation ID, use event ID as the root
	if cfg.correlationID == "" {
		cfg.correlationID = cfg.id
	}

	return &Envelope{
		Meta: Metadata{
			EventID:       cfg.id,
			EventType:     eventType,
			EventSource:   source,
			CorrelationID: cfg.correlationID,
			CausationID:   cfg.causationID,
			Timestamp:     cfg.timestamp,
		},
		Payload: payload,
	}
}

// NewFromParent creates an event caused by a parent event.
// It inherits the correlation ID and sets the causation ID.
func NewFromParent(parent Event, eventType string, source string, payload any, opts ...Option) *Envelope {
	// Parent correlation first so explicit opts can override
	parentOpts := []Option{
		WithCorrelationID(parent.CorrelationID()),
		WithCausationID(parent.ID()),
	}
	allOpts := append(parentOpts, opts...)

	return New(eventType, source, payload, allOpts...)
}

// Handler processes events delivered by the bus.
type Handler interface {
	// Handle processes a single event. Replies are published through the
	// bus by the handler itself, never returned.
	Handle(ctx context.Context, evt Event) error

	// Handles returns the topics this handler processes.
	// An empty slice means the handler accepts all topics.
	Handles() []string
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, evt Event) error

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, evt Event) error {
	return f(ctx, evt)
}

// Handles returns nil (accepts all topics).
func (f HandlerFunc) Handles() []string {
	return nil
}

// TypedHandler wraps a function handling a specific payload type.
// Payloads arriving as map[string]any are coerced through a JSON round trip.
func TypedHandler[T any](
	eventTypes []string,
	fn func(ctx context.Context, payload T, meta Metadata) error,
) Handler {
	return &typedHandler[T]{
		eventTypes: eventTypes,
		fn:         fn,
	}
}

type typedHandler[T any] struct {
	eventTypes []string
	fn         func(ctx context.Context, payload T, meta Metadata) error
}

func (h *typedHandler[T]) Handle(ctx context.Context, evt Event) error {
	payload, err := Payload[T](evt)
	if err != nil {
		return err
	}

	meta := Metadata{
		EventID:       evt.ID(),
		EventType:     evt.Type(),
		EventSource:   evt.Source(),
		CorrelationID: evt.CorrelationID(),
		CausationID:   evt.CausationID(),
		Timestamp:     evt.Timestamp(),
	}

	return h.fn(ctx, payload, meta)
}

func (h *typedHandler[T]) Handles() []string {
	return h.eventTypes
}

// Payload coerces an event's data to T. Payloads arriving as
// map[string]any (e.g. after crossing a serialization boundary) are
// coerced through a JSON round trip.
func Payload[T any](evt Event) (T, error) {
	var payload T

	switch d := evt.Data().(type) {
	case T:
		payload = d
	case map[string]any:
		// JSON unmarshal path
		bytes, err := json.Marshal(d)
		if err != nil {
			return payload, &HandlerError{
				Type:      evt.Type(),
				EventID:   evt.ID(),
				Message:   "failed to marshal event data",
				Err:       err,
				Timestamp: time.Now(),
			}
		}
		if err := json.Unmarshal(bytes, &payload); err != nil {
			return payload, &HandlerError{
				Type:      evt.Type(),
				EventID:   evt.ID(),
				Message:   "failed to unmarshal event data to expected type",
				Err:       err,
				Timestamp: time.Now(),
			}
		}
	default:
		return payload, &HandlerError{
			Type:      evt.Type(),
			EventID:   evt.ID(),
			Message:   "unexpected payload type",
			Timestamp: time.Now(),
		}
	}

	return payload, nil
}

// MiddlewareFunc wraps handlers to add cross-cutting concerns.
type MiddlewareFunc func(next Handler) Handler

// ChainMiddleware applies middleware in order, with first middleware outermost.
func ChainMiddleware(handler Handler, middleware ...MiddlewareFunc) Handler {
	// Apply in reverse order so first middleware is outermost
	for i := len(middleware) - 1; i >= 0; i-- {
		handler = middleware[i](handler)
	}
	return handler
}
