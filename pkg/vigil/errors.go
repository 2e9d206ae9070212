package vigil

import "errors"

// Package-level errors.
var (
	// ErrNilBus is returned by New when no bus is provided.
	ErrNilBus = errors.New("vigil: bus is required")

	// ErrMonitorClosed is returned from operations on a closed monitor.
	ErrMonitorClosed = errors.New("vigil: monitor closed")

	// ErrRequestTimeout is returned when a bus request sees no
	// completion event in time.
	ErrRequestTimeout = errors.New("vigil: request timed out")
)
