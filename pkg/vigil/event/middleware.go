package event

import (
	"context"
	"fmt"
	"time"
)

// Result is the structured outcome of processing one event inside the
// protective boundary. It is the only failure shape that crosses the bus:
// subscriber errors never propagate as panics or returned errors to the
// publisher.
type Result struct {
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// OkResult returns a successful Result stamped with the current time.
func OkResult() Result {
	return Result{Success: true, Timestamp: time.Now()}
}

// FailResult returns a failed Result for err stamped with the current time.
func FailResult(err error) Result {
	return Result{Success: false, Error: err.Error(), Timestamp: time.Now()}
}

// RecoveryMiddleware recovers from panics in handlers and converts them
// into HandlerError values.
func RecoveryMiddleware() MiddlewareFunc {
	return func(next Handler) Handler {
		return wrapped{next, HandlerFunc(func(ctx context.Context, evt Event) (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = &HandlerError{
						Type:      evt.Type(),
						EventID:   evt.ID(),
						Message:   fmt.Sprintf("handler panic: %v", r),
						Timestamp: time.Now(),
					}
				}
			}()
			return next.Handle(ctx, evt)
		})}
	}
}

// ProtectMiddleware converts every handler outcome into a Result and
// reports it through onResult. Errors are absorbed here: downstream of
// this middleware the bus always sees success, so one failing subscriber
// never affects delivery to the others.
func ProtectMiddleware(onResult func(evt Event, res Result)) MiddlewareFunc {
	return func(next Handler) Handler {
		return wrapped{next, HandlerFunc(func(ctx context.Context, evt Event) error {
			err := next.Handle(ctx, evt)
			if onResult != nil {
				if err != nil {
					onResult(evt, FailResult(err))
				} else {
					onResult(evt, OkResult())
				}
			}
			return nil
		})}
	}
}

// LoggingMiddleware reports processing of each event through logFn.
func LoggingMiddleware(logFn func(eventType string, duration time.Duration, err error)) MiddlewareFunc {
	return func(next Handler) Handler {
		return wrapped{next, HandlerFunc(func(ctx context.Context, evt Event) error {
			start := time.Now()
			err := next.Handle(ctx, evt)
			logFn(evt.Type(), time.Since(start), err)
			return err
		})}
	}
}

// MetricsMiddleware reports handler timing through callbacks.
func MetricsMiddleware(
	onStart func(eventType string),
	onComplete func(eventType string, duration time.Duration, err error),
) MiddlewareFunc {
	return func(next Handler) Handler {
		return wrapped{next, HandlerFunc(func(ctx context.Context, evt Event) error {
			if onStart != nil {
				onStart(evt.Type())
			}
			start := time.Now()
			err := next.Handle(ctx, evt)
			if onComplete != nil {
				onComplete(evt.Type(), time.Since(start), err)
			}
			return err
		})}
	}
}

// wrapped preserves the inner handler's topic list while replacing its
// Handle implementation. Without it, middleware built on HandlerFunc
// would subscribe to every topic.
type wrapped struct {
	inner Handler
	fn    HandlerFunc
}

func (w wrapped) Handle(ctx context.Context, evt Event) error {
	return w.fn(ctx, evt)
}

func (w wrapped) Handles() []string {
	return w.inner.Handles()
}
