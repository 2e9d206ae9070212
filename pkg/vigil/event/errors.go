package event

import (
	"errors"
	"fmt"
	"time"
)

// ErrBusClosed is returned by Publish and Subscribe after Close.
var ErrBusClosed = errors.New("event bus is closed")

// ErrUnsupportedEvent is returned by a consumer handed a topic outside
// its closed set of supported kinds. Callers wrap it with the offending
// topic name.
var ErrUnsupportedEvent = errors.New("unsupported event type")

// HandlerError represents a failure inside an event handler.
type HandlerError struct {
	Type      string    // Topic of the event that failed
	EventID   string    // ID of the event that failed
	Handler   string    // Handler that failed (if known)
	Message   string    // Error message
	Err       error     // Underlying error
	Timestamp time.Time // When the error occurred
}

// Error implements the error interface.
func (e *HandlerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("event %s (%s): %s: %v", e.EventID, e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("event %s (%s): %s", e.EventID, e.Type, e.Message)
}

// Unwrap returns the underlying error.
func (e *HandlerError) Unwrap() error {
	return e.Err
}
