package event

import (
	"fmt"
	"sort"
	"sync"
)

// TopicSchema describes one topic carried on the bus.
type TopicSchema struct {
	// Type is the topic name (e.g., "ERROR.SYSTEM").
	Type string

	// Source is the component expected to publish it.
	Source string

	// Description explains the topic's purpose.
	Description string

	// Payload is a zero value of the expected payload type.
	// Documentation only; payload coercion happens in TypedHandler.
	Payload any

	// Tags enable categorization.
	Tags []string

	// Validator is an optional custom validation function.
	Validator func(Event) error

	// Deprecated marks the topic as deprecated.
	Deprecated bool

	// DeprecationMessage explains the deprecation.
	DeprecationMessage string
}

// Validate checks if an event conforms to this schema.
func (s *TopicSchema) Validate(evt Event) error {
	if evt.Type() != s.Type {
		return fmt.Errorf("topic mismatch: expected %s, got %s", s.Type, evt.Type())
	}

	if s.Validator != nil {
		if err := s.Validator(evt); err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}
	}

	return nil
}

// Registry manages topic definitions. Instances are independent; there is
// no package-level default, so tests and multiple monitors never share
// registration state.
type Registry struct {
	mu      sync.RWMutex
	schemas map[string]*TopicSchema
}

// NewRegistry creates an empty topic registry.
func NewRegistry() *Registry {
	return &Registry{
		schemas: make(map[string]*TopicSchema),
	}
}

// Register adds a topic schema. An existing schema for the same topic is
// replaced.
func (r *Registry) Register(schema *TopicSchema) error {
	if schema.Type == "" {
		return fmt.Errorf("topic type is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.schemas[schema.Type] = schema

	return nil
}

// MustRegister adds a topic schema, panicking on error.
func (r *Registry) MustRegister(schema *TopicSchema) {
	if err := r.Register(schema); err != nil {
		panic(fmt.Sprintf("failed to register topic schema: %v", err))
	}
}

// Get returns the schema for a topic.
func (r *Registry) Get(eventType string) (*TopicSchema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	schema, ok := r.schemas[eventType]
	return schema, ok
}

// Has returns true if a schema exists for the topic.
func (r *Registry) Has(eventType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.schemas[eventType]
	return ok
}

// Validate checks an event against its registered schema.
func (r *Registry) Validate(evt Event) error {
	r.mu.RLock()
	schema, ok := r.schemas[evt.Type()]
	r.mu.RUnlock()

	if !ok {
		return fmt.Errorf("unknown topic: %s", evt.Type())
	}

	return schema.Validate(evt)
}

// Types returns all registered topics, sorted for stable diagnostics.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.schemas))
	for t := range r.schemas {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// ListBySource returns all schemas for a given source.
func (r *Registry) ListBySource(source string) []*TopicSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var schemas []*TopicSchema
	for _, schema := range r.schemas {
		if schema.Source == source {
			schemas = append(schemas, schema)
		}
	}
	return schemas
}

// ListByTag returns all schemas with a given tag.
func (r *Registry) ListByTag(tag string) []*TopicSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var schemas []*TopicSchema
	for _, schema := range r.schemas {
		for _, t := range schema.Tags {
			if t == tag {
				schemas = append(schemas, schema)
				break
			}
		}
	}
	return schemas
}

// Range iterates over all schemas.
func (r *Registry) Range(fn func(*TopicSchema) bool) {
	r.mu.RLock()
	schemas := make([]*TopicSchema, 0, len(r.schemas))
	for _, s := range r.schemas {
		schemas = append(schemas, s)
	}
	r.mu.RUnlock()

	for _, s := range schemas {
		if !fn(s) {
			return
		}
	}
}

// RegisterBuiltins registers every topic the vigil engines consume or
// publish. The registry's Types() then serves as the available-type list
// for unknown-type diagnosis.
func RegisterBuiltins(r *Registry) {
	builtins := []*TopicSchema{
		{Type: TopicErrorSystem, Description: "component failure report", Payload: SystemErrorPayload{}, Tags: []string{"error"}},
		{Type: TopicErrorHandler, Description: "event handler failure report", Payload: HandlerErrorPayload{}, Tags: []string{"error"}},
		{Type: TopicErrorBreaker, Description: "failure attributed to a tripped breaker", Payload: BreakerErrorPayload{}, Tags: []string{"error"}},
		{Type: TopicMessageError, Description: "message processing failure", Payload: MessageErrorPayload{}, Tags: []string{"message"}},
		{Type: TopicMessageUnknownType, Description: "message of an unrecognized type", Payload: UnknownTypePayload{}, Tags: []string{"message"}},
		{Type: TopicMessageRoutingError, Description: "message that could not be routed", Payload: RoutingErrorPayload{}, Tags: []string{"message"}},
		{Type: TopicWorkStarted, Description: "unit of work began", Payload: WorkStartedPayload{}, Tags: []string{"work"}},
		{Type: TopicWorkCompleted, Description: "unit of work finished", Payload: WorkCompletedPayload{}, Tags: []string{"work"}},
		{Type: TopicWorkFailed, Description: "unit of work failed", Payload: WorkFailedPayload{}, Tags: []string{"work"}},
		{Type: TopicTrackingQuery, Description: "query request against tracked events", Payload: TrackingQueryPayload{}, Tags: []string{"tracking"}},
		{Type: TopicTrackingExport, Description: "export request against tracked events", Payload: TrackingExportPayload{}, Tags: []string{"tracking"}},
		{Type: TopicTrackingClear, Description: "request to clear tracked events", Payload: TrackingClearPayload{}, Tags: []string{"tracking"}},

		{Type: TopicErrorClassified, Source: "vigil", Description: "classified failure", Payload: ClassifiedErrorPayload{}, Tags: []string{"error"}},
		{Type: TopicBreakerOpened, Source: "vigil", Description: "circuit breaker opened", Payload: BreakerStatePayload{}, Tags: []string{"breaker"}},
		{Type: TopicBreakerClosed, Source: "vigil", Description: "circuit breaker closed", Payload: BreakerStatePayload{}, Tags: []string{"breaker"}},
		{Type: TopicHandlerIsolated, Source: "vigil", Description: "handler placed in isolation", Payload: HandlerIsolationPayload{}, Tags: []string{"isolation"}},
		{Type: TopicHandlerRestored, Source: "vigil", Description: "handler restored from isolation", Payload: HandlerIsolationPayload{}, Tags: []string{"isolation"}},
		{Type: TopicHandlerRecoveryAttempt, Source: "vigil", Description: "recovery attempted for an isolated handler", Payload: HandlerIsolationPayload{}, Tags: []string{"isolation"}},
		{Type: TopicSystemAlert, Source: "vigil", Description: "critical failure alert", Payload: SystemAlertPayload{}, Tags: []string{"health"}},
		{Type: TopicSystemHealthDegraded, Source: "vigil", Description: "system health transition", Payload: HealthChangePayload{}, Tags: []string{"health"}},
		{Type: TopicDiagnosticSuggestion, Source: "vigil", Description: "remediation suggestion for an unknown type", Payload: SuggestionPayload{}, Tags: []string{"diagnostic"}},
		{Type: TopicDiagnosticRoutingIssue, Source: "vigil", Description: "diagnosis of a routing failure", Payload: RoutingIssuePayload{}, Tags: []string{"diagnostic"}},
		{Type: TopicPerformanceWarning, Source: "vigil", Description: "threshold-based performance warning", Payload: PerformanceWarningPayload{}, Tags: []string{"performance"}},
		{Type: TopicTrackingQueryCompleted, Source: "vigil", Description: "query result", Payload: QueryCompletedPayload{}, Tags: []string{"tracking"}},
		{Type: TopicTrackingExportCompleted, Source: "vigil", Description: "export result", Payload: ExportCompletedPayload{}, Tags: []string{"tracking"}},
		{Type: TopicTrackingCleared, Source: "vigil", Description: "clear result", Payload: ClearedPayload{}, Tags: []string{"tracking"}},
	}

	for _, schema := range builtins {
		r.MustRegister(schema)
	}
}
