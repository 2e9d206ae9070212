// Package breaker implements the circuit-breaker and isolation engine:
// per-component breaker state machines with timed recovery, a parallel
// handler-isolation list, a bounded error record ring, and derived
// system health with hysteresis.
package breaker

import "time"

// State is a circuit breaker's position in its state machine.
type State int

const (
	// StateClosed lets work through while counting failures.
	StateClosed State = iota

	// StateOpen refuses work until the timeout elapses.
	StateOpen

	// StateHalfOpen allows a single trial after the timeout.
	StateHalfOpen
)

// String returns the state's wire name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// CircuitBreaker is the per-component breaker state. Instances are
// owned exclusively by the engine; accessors return copies.
type CircuitBreaker struct {
	Component        string        `json:"component"`
	State            State         `json:"-"`
	FailureCount     int           `json:"failure_count"`
	FailureThreshold int           `json:"failure_threshold"`
	Timeout          time.Duration `json:"timeout"`
	LastFailureTime  time.Time     `json:"last_failure_time"`
	NextAttemptTime  time.Time     `json:"next_attempt_time"`
}

// ErrorInfo describes one failure being reported.
type ErrorInfo struct {
	// Kind classifies the failure. KindUnknown values are
	// re-classified from Message via KindFromMessage.
	Kind Kind

	// Severity grades the failure. Zero means "derive from Kind".
	Severity Severity

	// SeveritySet distinguishes an explicit SeverityLow from an unset
	// severity.
	SeveritySet bool

	// Message is the raw error text.
	Message string

	// Context carries producer-supplied detail.
	Context map[string]any
}

// ErrorRecord is one classified failure held in the engine's bounded
// ring. Records are append-only; eviction removes the oldest first.
type ErrorRecord struct {
	Kind      Kind           `json:"kind"`
	Component string         `json:"component"`
	Severity  Severity       `json:"severity"`
	Message   string         `json:"message"`
	Context   map[string]any `json:"context,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// IsolatedHandler is one entry on the isolation list.
type IsolatedHandler struct {
	HandlerName      string    `json:"handler_name"`
	Reason           string    `json:"reason"`
	IsolatedAt       time.Time `json:"isolated_at"`
	RecoveryAttempts int       `json:"recovery_attempts"`
}

// Status is the derived system health level.
type Status string

// Health status constants.
const (
	StatusHealthy   Status = "HEALTHY"
	StatusDegraded  Status = "DEGRADED"
	StatusUnhealthy Status = "UNHEALTHY"
)

// Health is a snapshot of system health derived from recorded errors
// and breaker state.
type Health struct {
	Status           Status    `json:"status"`
	TotalErrors      int       `json:"total_errors"`
	CriticalErrors   int       `json:"critical_errors"`
	OpenBreakers     int       `json:"open_breakers"`
	HalfOpenBreakers int       `json:"half_open_breakers"`
	IsolatedHandlers int       `json:"isolated_handlers"`
	Timestamp        time.Time `json:"timestamp"`
}

// EngineStats is a snapshot of engine counters.
type EngineStats struct {
	Breakers         int `json:"breakers"`
	OpenBreakers     int `json:"open_breakers"`
	IsolatedHandlers int `json:"isolated_handlers"`
	TotalErrors      int `json:"total_errors"`
	CriticalErrors   int `json:"critical_errors"`
	ErrorRecords     int `json:"error_records"`
}
