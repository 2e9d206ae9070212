package track

import "errors"

// Well-known persistence keys. Each key maps to one serialized blob.
const (
	KeyEvents = "events"
	KeyStats  = "stats"
)

// Store errors.
var (
	// ErrNotFound is returned when a key has no stored value.
	ErrNotFound = errors.New("track: key not found")

	// ErrStoreClosed is returned from operations on a closed store.
	ErrStoreClosed = errors.New("track: store closed")
)

// Store persists tracker state across restarts. Implementations must
// be safe for concurrent use. Save overwrites any existing value for
// the key.
type Store interface {
	Save(key string, data []byte) error
	Load(key string) ([]byte, error)
	Delete(key string) error
	Close() error
}
