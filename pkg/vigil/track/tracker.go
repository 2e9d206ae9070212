// Package track records bus traffic into a bounded in-memory sequence
// with optional persistence, and serves queries and exports over it.
//
// The tracker keeps the newest MaxRecords events, redacts sensitive
// payload fields according to the configured tracking level, and
// writes its state through a Store after every mutation so a restart
// resumes where the previous process left off. Persistence is best
// effort: a failing store never blocks recording.
package track

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"

	"github.com/randalmurphal/vigil/pkg/vigil/event"
	"github.com/randalmurphal/vigil/pkg/vigil/observability"
)

// Tracker errors.
var (
	// ErrTrackerClosed is returned from operations on a closed tracker.
	ErrTrackerClosed = errors.New("track: tracker closed")

	// ErrInvalidScope is returned for clear scopes other than "all",
	// "events", or "stats".
	ErrInvalidScope = errors.New("track: invalid clear scope")
)

// Clear scopes.
const (
	ScopeAll    = "all"
	ScopeEvents = "events"
	ScopeStats  = "stats"
)

const defaultPageSize = 50

// Config holds tracker settings. Zero values take defaults.
type Config struct {
	// MaxRecords bounds the in-memory sequence. Oldest events are
	// dropped first. Default 1000.
	MaxRecords int

	// RetentionAge drops events older than this on each sweep.
	// Zero disables age-based expiry.
	RetentionAge time.Duration

	// Level selects redaction behavior. Default LevelBasic.
	Level Level

	// BatchSize splits exports larger than this into batches.
	// Default 100.
	BatchSize int

	// SweepInterval is the period of the retention sweep loop.
	// Default 60s.
	SweepInterval time.Duration

	// DisableSweepLoop skips the background sweep. SweepExpired can
	// still be called directly.
	DisableSweepLoop bool

	// Store persists state across restarts. Defaults to an in-memory
	// store. The tracker takes ownership and closes it.
	Store Store

	// RemoveOnClose deletes persisted state when the tracker closes.
	RemoveOnClose bool

	// Source names this tracker in derived events. Default "vigil".
	Source string

	Logger  *slog.Logger
	Metrics observability.MetricsRecorder
}

// DefaultConfig returns the default tracker configuration.
func DefaultConfig() Config {
	return Config{
		MaxRecords:    1000,
		Level:         LevelBasic,
		BatchSize:     100,
		SweepInterval: 60 * time.Second,
		Source:        "vigil",
	}
}

// Tracker is the event recording engine. All state is guarded by mu;
// accessors return snapshots.
type Tracker struct {
	cfg     Config
	logger  *slog.Logger
	metrics observability.MetricsRecorder

	mu     sync.Mutex
	events []TrackedEvent // newest first
	stats  TrackerStats

	closed atomic.Bool
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewTracker builds a tracker, loads any persisted state, and starts
// the retention sweep loop.
func NewTracker(cfg Config) *Tracker {
	def := DefaultConfig()
	if cfg.MaxRecords <= 0 {
		cfg.MaxRecords = def.MaxRecords
	}
	if cfg.Level == "" {
		cfg.Level = def.Level
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = def.SweepInterval
	}
	if cfg.Store == nil {
		cfg.Store = NewMemoryStore()
	}
	if cfg.Source == "" {
		cfg.Source = def.Source
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observability.NoopMetrics{}
	}

	t := &Tracker{
		cfg:     cfg,
		logger:  observability.EnrichLogger(cfg.Logger, "tracker"),
		metrics: cfg.Metrics,
		stopCh:  make(chan struct{}),
	}
	t.stats.ByType = make(map[string]int64)
	t.stats.BySource = make(map[string]int64)

	t.loadPersisted()

	if !cfg.DisableSweepLoop && cfg.RetentionAge > 0 {
		t.wg.Add(1)
		go t.sweepLoop()
	}
	return t
}

// Record stores one bus event. Sensitive payload fields are redacted
// regardless of tracking level; use RecordWithSensitive to retain a
// verbatim copy at LevelDetailed.
func (t *Tracker) Record(ctx context.Context, evt event.Event) error {
	return t.RecordWithSensitive(ctx, evt, nil)
}

// RecordWithSensitive stores one bus event together with an explicit
// sensitive payload. The sensitive payload is kept verbatim only at
// LevelDetailed and discarded otherwise.
func (t *Tracker) RecordWithSensitive(ctx context.Context, evt event.Event, sensitive map[string]any) error {
	if t.closed.Load() {
		return ErrTrackerClosed
	}

	tracked := TrackedEvent{
		ID:            evt.ID(),
		Type:          evt.Type(),
		Data:          redactMap(normalizeData(evt.Data())),
		Source:        evt.Source(),
		Timestamp:     evt.Timestamp(),
		Context:       eventContext(evt),
		RecordedAt:    time.Now().UTC(),
		TrackingLevel: t.cfg.Level,
	}
	if t.cfg.Level == LevelDetailed && sensitive != nil {
		tracked.SensitiveData = normalizeData(sensitive)
	}

	var droppedTypes []string

	t.mu.Lock()
	t.events = append([]TrackedEvent{tracked}, t.events...)
	if len(t.events) > t.cfg.MaxRecords {
		for _, old := range t.events[t.cfg.MaxRecords:] {
			droppedTypes = append(droppedTypes, old.Type)
		}
		t.events = t.events[:t.cfg.MaxRecords]
		t.stats.TotalDropped += int64(len(droppedTypes))
	}

	t.stats.TotalRecorded++
	t.stats.ByType[tracked.Type]++
	if tracked.Source != "" {
		t.stats.BySource[tracked.Source]++
	}
	if t.stats.OldestTimestamp.IsZero() || tracked.Timestamp.Before(t.stats.OldestTimestamp) {
		t.stats.OldestTimestamp = tracked.Timestamp
	}
	if tracked.Timestamp.After(t.stats.NewestTimestamp) {
		t.stats.NewestTimestamp = tracked.Timestamp
	}
	t.stats.UpdatedAt = time.Now().UTC()

	t.persistLocked(ctx)
	t.mu.Unlock()

	t.metrics.RecordTracked(ctx, tracked.Type)
	for _, droppedType := range droppedTypes {
		t.metrics.RecordDropped(ctx, droppedType)
	}
	return nil
}

// Query returns tracked events matching the filters, sorted and
// paginated per the options.
func (t *Tracker) Query(ctx context.Context, filters Filters, opts QueryOptions) (QueryResult, error) {
	if t.closed.Load() {
		return QueryResult{}, ErrTrackerClosed
	}
	start := time.Now()
	defer func() {
		t.metrics.RecordQueryDuration(ctx, "track.query", time.Since(start), nil)
	}()

	t.mu.Lock()
	snapshot := make([]TrackedEvent, len(t.events))
	copy(snapshot, t.events)
	t.mu.Unlock()

	var matched []TrackedEvent
	for _, evt := range snapshot {
		if filters.matches(evt) {
			matched = append(matched, evt)
		}
	}

	if opts.SortBy != "" {
		field := opts.SortBy
		sort.SliceStable(matched, func(i, j int) bool {
			less := lessValue(sortValue(matched[i], field), sortValue(matched[j], field))
			if opts.SortDesc {
				return lessValue(sortValue(matched[j], field), sortValue(matched[i], field))
			}
			return less
		})
	}

	total := len(matched)
	if opts.Limit > 0 && len(matched) > opts.Limit {
		matched = matched[:opts.Limit]
	}

	result := QueryResult{Results: matched, Total: total}
	if result.Results == nil {
		result.Results = []TrackedEvent{}
	}

	if opts.Page > 0 || opts.PageSize > 0 {
		page := opts.Page
		if page < 1 {
			page = 1
		}
		pageSize := opts.PageSize
		if pageSize < 1 {
			pageSize = defaultPageSize
		}
		records := len(result.Results)
		totalPages := (records + pageSize - 1) / pageSize
		start := (page - 1) * pageSize
		if start >= records {
			result.Results = []TrackedEvent{}
		} else {
			end := start + pageSize
			if end > records {
				end = records
			}
			result.Results = result.Results[start:end]
		}
		result.Pagination = &Pagination{
			Page:         page,
			PageSize:     pageSize,
			TotalPages:   totalPages,
			TotalRecords: records,
		}
	}

	return result, nil
}

// Export renders matching events in the requested format, splitting
// into batches when the result exceeds the configured batch size.
func (t *Tracker) Export(ctx context.Context, format Format, filters Filters, opts QueryOptions) (ExportResult, error) {
	result, err := t.Query(ctx, filters, opts)
	if err != nil {
		return ExportResult{}, err
	}
	return renderExport(format, result.Results, t.cfg.BatchSize)
}

// Clear removes tracked state. Scope "events" drops the in-memory
// sequence, "stats" resets the aggregate counters, "all" does both.
// It returns the number of events removed.
func (t *Tracker) Clear(ctx context.Context, scope string) (int, error) {
	if t.closed.Load() {
		return 0, ErrTrackerClosed
	}
	if scope == "" {
		scope = ScopeAll
	}
	if scope != ScopeAll && scope != ScopeEvents && scope != ScopeStats {
		return 0, fmt.Errorf("%w: %q", ErrInvalidScope, scope)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	if scope == ScopeAll || scope == ScopeEvents {
		removed = len(t.events)
		t.events = nil
	}
	if scope == ScopeAll || scope == ScopeStats {
		t.stats = TrackerStats{
			ByType:    make(map[string]int64),
			BySource:  make(map[string]int64),
			UpdatedAt: time.Now().UTC(),
		}
	}
	t.persistLocked(ctx)
	return removed, nil
}

// SweepExpired drops events older than the retention age and returns
// the number removed. A zero retention age keeps everything.
func (t *Tracker) SweepExpired(ctx context.Context) int {
	if t.cfg.RetentionAge <= 0 || t.closed.Load() {
		return 0
	}
	start := time.Now()
	cutoff := start.Add(-t.cfg.RetentionAge)

	var expiredTypes []string

	t.mu.Lock()
	kept := t.events[:0:0]
	for _, evt := range t.events {
		if evt.RecordedAt.After(cutoff) {
			kept = append(kept, evt)
		} else {
			expiredTypes = append(expiredTypes, evt.Type)
		}
	}
	removed := len(expiredTypes)
	if removed > 0 {
		t.events = kept
		t.stats.TotalDropped += int64(removed)
		t.stats.UpdatedAt = time.Now().UTC()
		t.persistLocked(ctx)
	}
	t.mu.Unlock()

	if removed > 0 {
		for _, expiredType := range expiredTypes {
			t.metrics.RecordDropped(ctx, expiredType)
		}
		observability.LogSweepComplete(t.logger, "retention", removed, float64(time.Since(start).Milliseconds()))
	}
	return removed
}

// Stats returns a snapshot of the aggregate counters.
func (t *Tracker) Stats() TrackerStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	stats := t.stats
	stats.CurrentCount = len(t.events)
	stats.ByType = make(map[string]int64, len(t.stats.ByType))
	for k, v := range t.stats.ByType {
		stats.ByType[k] = v
	}
	stats.BySource = make(map[string]int64, len(t.stats.BySource))
	for k, v := range t.stats.BySource {
		stats.BySource[k] = v
	}
	return stats
}

// Events returns up to limit tracked events, newest first.
// A non-positive limit returns everything.
func (t *Tracker) Events(limit int) []TrackedEvent {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := len(t.events)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]TrackedEvent, n)
	copy(out, t.events[:n])
	return out
}

// Close stops the sweep loop and closes the store. Close is
// idempotent; further operations return ErrTrackerClosed.
func (t *Tracker) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(t.stopCh)
	t.wg.Wait()

	if t.cfg.RemoveOnClose {
		if err := t.cfg.Store.Delete(KeyEvents); err != nil && !errors.Is(err, ErrNotFound) {
			observability.LogPersistenceError(t.logger, "delete", err)
		}
		if err := t.cfg.Store.Delete(KeyStats); err != nil && !errors.Is(err, ErrNotFound) {
			observability.LogPersistenceError(t.logger, "delete", err)
		}
	}
	return t.cfg.Store.Close()
}

func (t *Tracker) sweepLoop() {
	defer t.wg.Done()
	ticker := time.NewTicker(t.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.SweepExpired(context.Background())
		case <-t.stopCh:
			return
		}
	}
}

// persistLocked writes the event sequence and stats through the store.
// Callers hold mu. Failures are logged and counted but never surfaced;
// recording must not depend on a healthy store.
func (t *Tracker) persistLocked(ctx context.Context) {
	eventsData, err := json.Marshal(t.events)
	if err == nil {
		err = t.cfg.Store.Save(KeyEvents, eventsData)
	}
	if err != nil {
		observability.LogPersistenceError(t.logger, "save events", err)
		t.metrics.RecordPersistError(ctx, "save_events")
	}

	statsData, err := json.Marshal(t.stats)
	if err == nil {
		err = t.cfg.Store.Save(KeyStats, statsData)
	}
	if err != nil {
		observability.LogPersistenceError(t.logger, "save stats", err)
		t.metrics.RecordPersistError(ctx, "save_stats")
	}
}

// loadPersisted restores prior state. Missing keys mean a fresh start;
// corrupt blobs are logged and discarded rather than crashing startup.
func (t *Tracker) loadPersisted() {
	if data, err := t.cfg.Store.Load(KeyEvents); err == nil {
		var events []TrackedEvent
		if uerr := json.Unmarshal(data, &events); uerr != nil {
			observability.LogPersistenceError(t.logger, "load events", uerr)
		} else {
			if len(events) > t.cfg.MaxRecords {
				events = events[:t.cfg.MaxRecords]
			}
			t.events = events
		}
	} else if !errors.Is(err, ErrNotFound) {
		observability.LogPersistenceError(t.logger, "load events", err)
	}

	if data, err := t.cfg.Store.Load(KeyStats); err == nil {
		var stats TrackerStats
		if uerr := json.Unmarshal(data, &stats); uerr != nil {
			observability.LogPersistenceError(t.logger, "load stats", uerr)
		} else {
			if stats.ByType == nil {
				stats.ByType = make(map[string]int64)
			}
			if stats.BySource == nil {
				stats.BySource = make(map[string]int64)
			}
			t.stats = stats
		}
	} else if !errors.Is(err, ErrNotFound) {
		observability.LogPersistenceError(t.logger, "load stats", err)
	}
}

// eventContext captures the envelope's correlation chain so a tracked
// event can be tied back to the request that produced it. A chain root
// whose correlation is just its own ID carries no context.
func eventContext(evt event.Event) map[string]any {
	ctx := make(map[string]any, 2)
	if cid := evt.CorrelationID(); cid != "" && cid != evt.ID() {
		ctx["correlation_id"] = cid
	}
	if caus := evt.CausationID(); caus != "" {
		ctx["causation_id"] = caus
	}
	if len(ctx) == 0 {
		return nil
	}
	return ctx
}

// normalizeData coerces an arbitrary payload into a JSON-shaped map.
// Maps are deep-copied so tracked events never alias live payloads.
func normalizeData(data any) map[string]any {
	if data == nil {
		return nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return map[string]any{"value": fmt.Sprintf("%v", data)}
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return map[string]any{"value": string(raw)}
		}
		return map[string]any{"value": v}
	}
	return m
}
