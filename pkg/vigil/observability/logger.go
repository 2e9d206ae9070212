// Package observability provides structured logging, metrics, and
// tracing for vigil.
//
// Features:
//   - Structured logging via slog (Go stdlib), with an optional
//     rotating-file JSON logger for durable diagnostic logs
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled.
// Every logging helper is nil-safe: passing a nil logger is a no-op, so
// engines never guard their log calls.
package observability

import (
	"log/slog"
	"time"
)

// EnrichLogger adds vigil context to a logger.
// Returns a new logger carrying the component name.
func EnrichLogger(logger *slog.Logger, component string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("component", component),
	)
}

// LogMonitorStart logs monitor startup with the consumers it wired.
func LogMonitorStart(logger *slog.Logger, consumers []string) {
	if logger == nil {
		return
	}
	logger.Info("monitor starting",
		slog.Any("consumers", consumers),
	)
}

// LogMonitorStop logs monitor shutdown.
func LogMonitorStop(logger *slog.Logger) {
	if logger == nil {
		return
	}
	logger.Info("monitor stopped")
}

// LogBreakerOpened logs a circuit breaker opening.
func LogBreakerOpened(logger *slog.Logger, component string, failureCount int, nextAttempt time.Time) {
	if logger == nil {
		return
	}
	logger.Warn("circuit breaker opened",
		slog.String("breaker_component", component),
		slog.Int("failure_count", failureCount),
		slog.Time("next_attempt", nextAttempt),
	)
}

// LogBreakerClosed logs a circuit breaker closing after recovery.
func LogBreakerClosed(logger *slog.Logger, component string) {
	if logger == nil {
		return
	}
	logger.Info("circuit breaker closed",
		slog.String("breaker_component", component),
	)
}

// LogHandlerIsolated logs a handler being placed in isolation.
func LogHandlerIsolated(logger *slog.Logger, handlerName, reason string) {
	if logger == nil {
		return
	}
	logger.Warn("handler isolated",
		slog.String("handler", handlerName),
		slog.String("reason", reason),
	)
}

// LogHandlerRestored logs a handler leaving isolation.
func LogHandlerRestored(logger *slog.Logger, handlerName string, attempts int) {
	if logger == nil {
		return
	}
	logger.Info("handler restored",
		slog.String("handler", handlerName),
		slog.Int("recovery_attempts", attempts),
	)
}

// LogSystemAlert logs a critical failure alert.
func LogSystemAlert(logger *slog.Logger, component, message string) {
	if logger == nil {
		return
	}
	logger.Error("system alert",
		slog.String("alert_component", component),
		slog.String("message", message),
	)
}

// LogPerformanceWarning logs an emitted performance warning.
func LogPerformanceWarning(logger *slog.Logger, kind string, details map[string]any) {
	if logger == nil {
		return
	}
	logger.Warn("performance warning",
		slog.String("kind", kind),
		slog.Any("details", details),
	)
}

// LogPersistenceError logs a failed persistence write (non-fatal;
// tracking continues in degraded mode).
func LogPersistenceError(logger *slog.Logger, op string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("persistence failed",
		slog.String("operation", op),
		slog.String("error", err.Error()),
	)
}

// LogSweepComplete logs a maintenance sweep.
func LogSweepComplete(logger *slog.Logger, sweep string, removed int, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Debug("sweep completed",
		slog.String("sweep", sweep),
		slog.Int("removed", removed),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogPublishError logs a failed best-effort publish.
func LogPublishError(logger *slog.Logger, topic string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("publish failed",
		slog.String("topic", topic),
		slog.String("error", err.Error()),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time in milliseconds.
//
// Example:
//
//	done := TimedOperation()
//	// ... do work ...
//	durationMs := done()
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Milliseconds())
	}
}
