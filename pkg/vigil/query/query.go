// Package query provides synchronous read-only status queries over the
// monitor's engines.
//
// Queries retrieve information without modifying engine state and
// return a result immediately. They are the inspection surface for
// dashboards, CLI tooling, and tests:
//   - Current system health and breaker states
//   - Isolated handlers awaiting operator action
//   - Performance report and tracking statistics
//   - Recent classified errors
package query

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/randalmurphal/vigil/pkg/vigil/breaker"
	"github.com/randalmurphal/vigil/pkg/vigil/perf"
	"github.com/randalmurphal/vigil/pkg/vigil/track"
)

// Handler executes a query and returns a result.
// Handlers must not modify engine state.
type Handler func(ctx context.Context, args map[string]any) (any, error)

// Registry manages query handlers by query name.
type Registry struct {
	handlers map[string]Handler
	mu       sync.RWMutex
}

// NewRegistry creates a new query registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
	}
}

// Register adds a handler for a query name.
func (r *Registry) Register(queryName string, handler Handler) error {
	if queryName == "" {
		return errors.New("query name is required")
	}
	if handler == nil {
		return errors.New("handler is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[queryName]; exists {
		return fmt.Errorf("handler for query %q already registered", queryName)
	}

	r.handlers[queryName] = handler
	return nil
}

// MustRegister registers a handler, panicking on error.
func (r *Registry) MustRegister(queryName string, handler Handler) {
	if err := r.Register(queryName, handler); err != nil {
		panic(err)
	}
}

// Get returns the handler for a query name.
func (r *Registry) Get(queryName string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handler, exists := r.handlers[queryName]
	return handler, exists
}

// List returns all registered query names.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	return names
}

// Unregister removes a handler for a query name.
func (r *Registry) Unregister(queryName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handlers, queryName)
}

// ErrQueryNotFound is returned when a query handler doesn't exist.
var ErrQueryNotFound = errors.New("query not found")

// Executor runs registered queries.
type Executor struct {
	registry *Registry
}

// NewExecutor creates a new query executor.
func NewExecutor(registry *Registry) *Executor {
	return &Executor{registry: registry}
}

// Execute runs a single query.
func (e *Executor) Execute(ctx context.Context, queryName string, args map[string]any) (any, error) {
	if queryName == "" {
		return nil, errors.New("query name is required")
	}

	handler, exists := e.registry.Get(queryName)
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrQueryNotFound, queryName)
	}

	return handler(ctx, args)
}

// Result wraps a query result with metadata.
type Result struct {
	// QueryName is the query that was executed.
	QueryName string `json:"query_name"`

	// Value is the query result.
	Value any `json:"value"`

	// Error contains error details if the query failed.
	Error string `json:"error,omitempty"`
}

// ExecuteMultiple runs multiple queries.
// Returns results for all queries, including any that failed.
func (e *Executor) ExecuteMultiple(ctx context.Context, queries map[string]map[string]any) []Result {
	results := make([]Result, 0, len(queries))

	for queryName, args := range queries {
		result := Result{QueryName: queryName}

		value, err := e.Execute(ctx, queryName, args)
		if err != nil {
			result.Error = err.Error()
		} else {
			result.Value = value
		}

		results = append(results, result)
	}

	return results
}

// Built-in query names.
const (
	QuerySystemHealth      = "system_health"      // Returns the derived health status
	QueryBreakerState      = "breaker_state"      // Returns one or all circuit breakers
	QueryIsolatedHandlers  = "isolated_handlers"  // Returns handlers pulled from traffic
	QueryPerformanceReport = "performance_report" // Returns the sampler's report
	QueryTrackingStats     = "tracking_stats"     // Returns tracker aggregate counters
	QueryRecentErrors      = "recent_errors"      // Returns recent classified errors
)

// HealthSource is the breaker engine surface the builtins read from.
type HealthSource interface {
	SystemHealth() breaker.Health
	Breaker(component string) (breaker.CircuitBreaker, bool)
	Breakers() []breaker.CircuitBreaker
	IsolatedHandlers() []breaker.IsolatedHandler
	Recent(n int) []breaker.ErrorRecord
}

// PerfSource is the sampler surface the builtins read from.
type PerfSource interface {
	Report() perf.Report
}

// TrackSource is the tracker surface the builtins read from.
type TrackSource interface {
	Stats() track.TrackerStats
}

// RegisterBuiltins registers the standard query handlers against the
// given engine surfaces. Nil sources skip their queries.
func RegisterBuiltins(registry *Registry, health HealthSource, perfSrc PerfSource, trackSrc TrackSource) error {
	builtins := make(map[string]Handler)

	if health != nil {
		builtins[QuerySystemHealth] = func(_ context.Context, _ map[string]any) (any, error) {
			return health.SystemHealth(), nil
		}
		builtins[QueryBreakerState] = func(_ context.Context, args map[string]any) (any, error) {
			if component, ok := args["component"].(string); ok && component != "" {
				b, found := health.Breaker(component)
				if !found {
					return nil, fmt.Errorf("no breaker for component %q", component)
				}
				return b, nil
			}
			return health.Breakers(), nil
		}
		builtins[QueryIsolatedHandlers] = func(_ context.Context, _ map[string]any) (any, error) {
			return health.IsolatedHandlers(), nil
		}
		builtins[QueryRecentErrors] = func(_ context.Context, args map[string]any) (any, error) {
			limit := 10
			switch n := args["limit"].(type) {
			case int:
				limit = n
			case float64:
				limit = int(n)
			}
			if limit < 1 {
				return nil, fmt.Errorf("limit must be positive, got %d", limit)
			}
			return health.Recent(limit), nil
		}
	}

	if perfSrc != nil {
		builtins[QueryPerformanceReport] = func(_ context.Context, _ map[string]any) (any, error) {
			return perfSrc.Report(), nil
		}
	}

	if trackSrc != nil {
		builtins[QueryTrackingStats] = func(_ context.Context, _ map[string]any) (any, error) {
			return trackSrc.Stats(), nil
		}
	}

	for name, handler := range builtins {
		if err := registry.Register(name, handler); err != nil {
			return fmt.Errorf("failed to register builtin query %q: %w", name, err)
		}
	}

	return nil
}
