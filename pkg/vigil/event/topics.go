package event

import "time"

// Topics consumed by the vigil engines.
const (
	TopicErrorSystem  = "ERROR.SYSTEM"
	TopicErrorHandler = "ERROR.HANDLER"
	TopicErrorBreaker = "ERROR.CIRCUIT_BREAKER"

	TopicMessageError        = "MESSAGE.ERROR"
	TopicMessageUnknownType  = "MESSAGE.UNKNOWN_TYPE"
	TopicMessageRoutingError = "MESSAGE.ROUTING_ERROR"

	TopicWorkStarted   = "WORK.STARTED"
	TopicWorkCompleted = "WORK.COMPLETED"
	TopicWorkFailed    = "WORK.FAILED"

	TopicTrackingQuery  = "TRACKING.QUERY"
	TopicTrackingExport = "TRACKING.EXPORT"
	TopicTrackingClear  = "TRACKING.CLEAR"
)

// Topics published by the vigil engines.
const (
	TopicErrorClassified = "ERROR.CLASSIFIED"

	TopicBreakerOpened = "CIRCUIT_BREAKER.OPENED"
	TopicBreakerClosed = "CIRCUIT_BREAKER.CLOSED"

	TopicHandlerIsolated        = "HANDLER.ISOLATED"
	TopicHandlerRestored        = "HANDLER.RESTORED"
	TopicHandlerRecoveryAttempt = "HANDLER.RECOVERY_ATTEMPT"

	TopicSystemAlert          = "SYSTEM.ALERT"
	TopicSystemHealthDegraded = "SYSTEM.HEALTH_DEGRADED"

	TopicDiagnosticSuggestion   = "DIAGNOSTIC.SUGGESTION"
	TopicDiagnosticRoutingIssue = "DIAGNOSTIC.ROUTING_ISSUE"

	TopicPerformanceWarning = "PERFORMANCE.WARNING"

	TopicTrackingQueryCompleted  = "EVENT.TRACKING.QUERY.COMPLETED"
	TopicTrackingExportCompleted = "EVENT.TRACKING.EXPORT.COMPLETED"
	TopicTrackingCleared         = "EVENT.TRACKING.CLEARED"
)

// SystemErrorPayload is carried on ERROR.SYSTEM.
type SystemErrorPayload struct {
	Error     string    `json:"error"`
	Component string    `json:"component"`
	Severity  string    `json:"severity"`
	Timestamp time.Time `json:"timestamp"`
}

// HandlerErrorPayload is carried on ERROR.HANDLER.
type HandlerErrorPayload struct {
	Error               string    `json:"error"`
	HandlerName         string    `json:"handler_name"`
	EventType           string    `json:"event_type"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	Timestamp           time.Time `json:"timestamp"`
}

// BreakerErrorPayload is carried on ERROR.CIRCUIT_BREAKER.
type BreakerErrorPayload struct {
	Component string    `json:"component"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

// MessageErrorPayload is carried on MESSAGE.ERROR.
type MessageErrorPayload struct {
	Error     string         `json:"error"`
	Context   map[string]any `json:"context,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// UnknownTypePayload is carried on MESSAGE.UNKNOWN_TYPE.
type UnknownTypePayload struct {
	MessageType    string         `json:"message_type"`
	AvailableTypes []string       `json:"available_types"`
	Context        map[string]any `json:"context,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
}

// RoutingErrorPayload is carried on MESSAGE.ROUTING_ERROR.
type RoutingErrorPayload struct {
	Source    string    `json:"source"`
	Target    string    `json:"target"`
	Message   string    `json:"message"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

// WorkStartedPayload is carried on WORK.STARTED.
type WorkStartedPayload struct {
	WorkID   string `json:"work_id"`
	WorkType string `json:"work_type"`
}

// WorkCompletedPayload is carried on WORK.COMPLETED.
type WorkCompletedPayload struct {
	WorkID   string         `json:"work_id"`
	WorkType string         `json:"work_type"`
	Result   map[string]any `json:"result,omitempty"`
}

// WorkFailedPayload is carried on WORK.FAILED.
type WorkFailedPayload struct {
	WorkID   string `json:"work_id"`
	WorkType string `json:"work_type"`
	Error    string `json:"error"`
}

// TrackingQueryPayload is carried on TRACKING.QUERY.
// Filters and Options mirror the track package's query surface.
type TrackingQueryPayload struct {
	RequestID string         `json:"request_id"`
	Filters   map[string]any `json:"filters,omitempty"`
	Options   map[string]any `json:"options,omitempty"`
}

// TrackingExportPayload is carried on TRACKING.EXPORT.
type TrackingExportPayload struct {
	RequestID string         `json:"request_id"`
	Format    string         `json:"format"`
	Filters   map[string]any `json:"filters,omitempty"`
	Options   map[string]any `json:"options,omitempty"`
}

// TrackingClearPayload is carried on TRACKING.CLEAR.
type TrackingClearPayload struct {
	RequestID string `json:"request_id"`
	ClearType string `json:"clear_type"`
}

// ClassifiedErrorPayload is published on ERROR.CLASSIFIED.
type ClassifiedErrorPayload struct {
	Kind      string    `json:"kind"`
	Component string    `json:"component"`
	Severity  string    `json:"severity"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// BreakerStatePayload is published on CIRCUIT_BREAKER.OPENED and
// CIRCUIT_BREAKER.CLOSED.
type BreakerStatePayload struct {
	Component       string    `json:"component"`
	FailureCount    int       `json:"failure_count"`
	NextAttemptTime time.Time `json:"next_attempt_time,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

// HandlerIsolationPayload is published on HANDLER.ISOLATED,
// HANDLER.RESTORED and HANDLER.RECOVERY_ATTEMPT.
type HandlerIsolationPayload struct {
	HandlerName      string    `json:"handler_name"`
	Reason           string    `json:"reason,omitempty"`
	RecoveryAttempts int       `json:"recovery_attempts,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
}

// SystemAlertPayload is published on SYSTEM.ALERT.
type SystemAlertPayload struct {
	Component string    `json:"component"`
	Message   string    `json:"message"`
	Severity  string    `json:"severity"`
	Timestamp time.Time `json:"timestamp"`
}

// HealthChangePayload is published on SYSTEM.HEALTH_DEGRADED.
type HealthChangePayload struct {
	Status         string    `json:"status"`
	Previous       string    `json:"previous"`
	Recovered      bool      `json:"recovered"`
	TotalErrors    int       `json:"total_errors"`
	CriticalErrors int       `json:"critical_errors"`
	Timestamp      time.Time `json:"timestamp"`
}

// SuggestionPayload is published on DIAGNOSTIC.SUGGESTION.
type SuggestionPayload struct {
	UnknownType string    `json:"unknown_type"`
	BestMatch   string    `json:"best_match,omitempty"`
	Similarity  float64   `json:"similarity"`
	Suggestion  string    `json:"suggestion"`
	Timestamp   time.Time `json:"timestamp"`
}

// RoutingIssuePayload is published on DIAGNOSTIC.ROUTING_ISSUE.
type RoutingIssuePayload struct {
	Issue       string    `json:"issue"`
	Source      string    `json:"source"`
	Target      string    `json:"target"`
	Suggestions []string  `json:"suggestions,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// PerformanceWarningPayload is published on PERFORMANCE.WARNING.
// Fields beyond Kind are populated per warning kind.
type PerformanceWarningPayload struct {
	Kind             string    `json:"kind"`
	WorkID           string    `json:"work_id,omitempty"`
	WorkType         string    `json:"work_type,omitempty"`
	ProcessingTimeMs float64   `json:"processing_time_ms,omitempty"`
	ActiveCount      int       `json:"active_count,omitempty"`
	Threshold        float64   `json:"threshold,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
}

// QueryCompletedPayload is published on EVENT.TRACKING.QUERY.COMPLETED.
// Results and Pagination carry the track package's query result shapes.
type QueryCompletedPayload struct {
	RequestID  string    `json:"request_id"`
	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
	Results    any       `json:"results,omitempty"`
	Pagination any       `json:"pagination,omitempty"`
	Total      int       `json:"total"`
	Timestamp  time.Time `json:"timestamp"`
}

// ExportCompletedPayload is published on EVENT.TRACKING.EXPORT.COMPLETED.
type ExportCompletedPayload struct {
	RequestID string    `json:"request_id"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
	Format    string    `json:"format,omitempty"`
	Payload   string    `json:"payload,omitempty"`
	Batches   []string  `json:"batches,omitempty"`
	Count     int       `json:"count"`
	Timestamp time.Time `json:"timestamp"`
}

// ClearedPayload is published on EVENT.TRACKING.CLEARED.
type ClearedPayload struct {
	RequestID string    `json:"request_id"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
	ClearType string    `json:"clear_type"`
	Removed   int       `json:"removed"`
	Timestamp time.Time `json:"timestamp"`
}
