package track

import "time"

// Level controls whether sensitive payload fields are redacted before
// storage.
type Level string

// Tracking levels.
const (
	// LevelBasic redacts values under sensitive-looking keys.
	LevelBasic Level = "basic"

	// LevelDetailed additionally retains an explicitly provided
	// sensitive payload verbatim for privileged consumers.
	LevelDetailed Level = "detailed"
)

// TrackedEvent is one recorded bus event. Owned by the tracker;
// accessors return copies of the containing slice, never live
// references into it.
type TrackedEvent struct {
	ID            string         `json:"id"`
	Type          string         `json:"type"`
	Data          map[string]any `json:"data,omitempty"`
	Source        string         `json:"source,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
	Context       map[string]any `json:"context,omitempty"`
	SensitiveData map[string]any `json:"sensitive_data,omitempty"`
	RecordedAt    time.Time      `json:"recorded_at"`
	TrackingLevel Level          `json:"tracking_level"`
}

// TrackerStats is the aggregate statistics blob. It is persisted
// alongside the event sequence and survives restarts.
type TrackerStats struct {
	TotalRecorded   int64            `json:"total_recorded"`
	TotalDropped    int64            `json:"total_dropped"`
	ByType          map[string]int64 `json:"by_type"`
	BySource        map[string]int64 `json:"by_source"`
	OldestTimestamp time.Time        `json:"oldest_timestamp"`
	NewestTimestamp time.Time        `json:"newest_timestamp"`
	UpdatedAt       time.Time        `json:"updated_at"`

	// CurrentCount is derived at snapshot time, not persisted state.
	CurrentCount int `json:"current_count"`
}
