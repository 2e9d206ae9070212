// Package perf implements the performance sampler: per-work-unit
// start/end timing subject to a sampling rate, a bounded rolling
// history of completed durations, threshold-based warnings, and an
// orphan sweep reclaiming abandoned work units.
package perf

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/randalmurphal/vigil/pkg/vigil/event"
	"github.com/randalmurphal/vigil/pkg/vigil/observability"
)

// Config configures the sampler.
type Config struct {
	// SamplingRate is the probability in [0,1] that a Record* call is
	// actually measured. Unsampled calls are acknowledged without
	// bookkeeping.
	// Default: 1.0
	SamplingRate float64

	// EventProcessingTime is the duration beyond which a completed
	// unit triggers a SLOW_PROCESSING warning.
	// Default: 1s
	EventProcessingTime time.Duration

	// ActiveEventCount is the concurrently-active unit count beyond
	// which a HIGH_ACTIVE_EVENT_COUNT warning fires.
	// Default: 100
	ActiveEventCount int

	// EventTimeout is the age at which a started-but-never-ended unit
	// is reclaimed as abandoned.
	// Default: 60s
	EventTimeout time.Duration

	// MemoryThreshold is the heap allocation in bytes beyond which a
	// HIGH_MEMORY warning fires during the background sweep. Zero
	// disables the check.
	MemoryThreshold uint64

	// MaxRecords caps the completed-work history.
	// Default: 100
	MaxRecords int

	// MaxWarnings caps the rolling warning history kept for reports.
	// Default: 25
	MaxWarnings int

	// SweepInterval is how often the orphan sweep runs.
	// Default: 30s
	SweepInterval time.Duration

	// DisableSweepLoop skips starting the periodic sweep.
	// SweepOrphans can still be called directly.
	DisableSweepLoop bool

	// Rand draws the sampling decision. Injectable for tests.
	// Default: math/rand/v2.Float64
	Rand func() float64

	// Source names this sampler as an event producer.
	// Default: "vigil"
	Source string

	// Logger receives sampler logs. Nil disables logging.
	Logger *slog.Logger

	// Metrics receives sampler metrics. Nil disables metrics.
	Metrics observability.MetricsRecorder
}

// DefaultConfig provides reasonable defaults.
var DefaultConfig = Config{
	SamplingRate:        1.0,
	EventProcessingTime: time.Second,
	ActiveEventCount:    100,
	EventTimeout:        60 * time.Second,
	MaxRecords:          100,
	MaxWarnings:         25,
	SweepInterval:       30 * time.Second,
	Source:              "vigil",
}

// ActiveWorkUnit is a started-but-not-ended unit of work.
type ActiveWorkUnit struct {
	WorkID    string    `json:"work_id"`
	WorkType  string    `json:"work_type"`
	StartTime time.Time `json:"start_time"`

	// started anchors duration on the monotonic clock.
	started time.Time
}

// PerformanceRecord is one completed unit of work. Immutable once
// created.
type PerformanceRecord struct {
	WorkID    string        `json:"work_id"`
	WorkType  string        `json:"work_type"`
	Duration  time.Duration `json:"duration"`
	Timestamp time.Time     `json:"timestamp"`
	Failed    bool          `json:"failed,omitempty"`
}

// Warning kinds.
const (
	WarnSlowProcessing  = "SLOW_PROCESSING"
	WarnHighMemory      = "HIGH_MEMORY"
	WarnHighActiveCount = "HIGH_ACTIVE_EVENT_COUNT"
)

// Warning is one emitted threshold warning. Warnings go to the bus
// immediately; a short rolling history is kept for reports.
type Warning struct {
	Kind        string        `json:"kind"`
	WorkID      string        `json:"work_id,omitempty"`
	WorkType    string        `json:"work_type,omitempty"`
	Duration    time.Duration `json:"duration,omitempty"`
	ActiveCount int           `json:"active_count,omitempty"`
	AllocBytes  uint64        `json:"alloc_bytes,omitempty"`
	Threshold   float64       `json:"threshold"`
	Timestamp   time.Time     `json:"timestamp"`
}

// StartResult acknowledges a RecordStart call.
type StartResult struct {
	// Sampled is false when the call was skipped by the sampling rate.
	Sampled bool `json:"sampled"`
}

// EndResult acknowledges a RecordEnd or RecordFailure call.
type EndResult struct {
	Sampled bool `json:"sampled"`

	// Found is false when no active unit matched the work id. No
	// duration is fabricated in that case.
	Found bool `json:"found"`

	Duration time.Duration `json:"duration,omitempty"`
	Failed   bool          `json:"failed,omitempty"`
}

// SamplerStats is a snapshot of sampler counters.
type SamplerStats struct {
	Active          int           `json:"active"`
	TotalStarted    int64         `json:"total_started"`
	TotalCompleted  int64         `json:"total_completed"`
	TotalFailed     int64         `json:"total_failed"`
	TotalOrphaned   int64         `json:"total_orphaned"`
	AverageDuration time.Duration `json:"average_duration"`
	Records         int           `json:"records"`
	Warnings        int           `json:"warnings"`
}

// Sampler tracks work unit timing. It is the only writer to its state;
// all public methods are safe for concurrent use.
type Sampler struct {
	cfg     Config
	bus     event.Bus
	logger  *slog.Logger
	metrics observability.MetricsRecorder

	mu       sync.Mutex
	active   map[string]*ActiveWorkUnit
	records  []PerformanceRecord // newest first
	warnings []Warning           // newest first

	totalStarted   int64
	totalCompleted int64
	totalFailed    int64
	totalOrphaned  int64

	// avgDuration is maintained incrementally over completed units.
	avgDuration time.Duration

	startedAt time.Time
	closed    atomic.Bool
	stopCh    chan struct{}
}

// NewSampler creates a sampler publishing warnings on bus. A nil bus
// keeps warnings in the rolling history only.
func NewSampler(bus event.Bus, cfg Config) *Sampler {
	if cfg.SamplingRate <= 0 || cfg.SamplingRate > 1 {
		cfg.SamplingRate = DefaultConfig.SamplingRate
	}
	if cfg.EventProcessingTime <= 0 {
		cfg.EventProcessingTime = DefaultConfig.EventProcessingTime
	}
	if cfg.ActiveEventCount <= 0 {
		cfg.ActiveEventCount = DefaultConfig.ActiveEventCount
	}
	if cfg.EventTimeout <= 0 {
		cfg.EventTimeout = DefaultConfig.EventTimeout
	}
	if cfg.MaxRecords <= 0 {
		cfg.MaxRecords = DefaultConfig.MaxRecords
	}
	if cfg.MaxWarnings <= 0 {
		cfg.MaxWarnings = DefaultConfig.MaxWarnings
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultConfig.SweepInterval
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.Float64
	}
	if cfg.Source == "" {
		cfg.Source = DefaultConfig.Source
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observability.NoopMetrics{}
	}

	s := &Sampler{
		cfg:       cfg,
		bus:       bus,
		logger:    observability.EnrichLogger(cfg.Logger, "perf"),
		metrics:   cfg.Metrics,
		active:    make(map[string]*ActiveWorkUnit),
		startedAt: time.Now(),
		stopCh:    make(chan struct{}),
	}

	if !cfg.DisableSweepLoop {
		go s.sweepLoop()
	}

	return s
}

// sampled draws one sampling decision.
func (s *Sampler) sampled() bool {
	if s.cfg.SamplingRate >= 1 {
		return true
	}
	return s.cfg.Rand() < s.cfg.SamplingRate
}

// RecordStart begins tracking a unit of work.
func (s *Sampler) RecordStart(workID, workType string) StartResult {
	if !s.sampled() {
		return StartResult{}
	}

	now := time.Now()
	var warn *Warning

	s.mu.Lock()
	s.active[workID] = &ActiveWorkUnit{
		WorkID:    workID,
		WorkType:  workType,
		StartTime: now,
		started:   now,
	}
	s.totalStarted++
	if len(s.active) > s.cfg.ActiveEventCount {
		warn = &Warning{
			Kind:        WarnHighActiveCount,
			WorkType:    workType,
			ActiveCount: len(s.active),
			Threshold:   float64(s.cfg.ActiveEventCount),
			Timestamp:   now,
		}
		s.keepWarningLocked(*warn)
	}
	s.mu.Unlock()

	if warn != nil {
		s.emitWarning(*warn)
	}

	return StartResult{Sampled: true}
}

// RecordEnd completes a unit of work and returns its measured
// duration. An id that was never started (or whose start was not
// sampled) yields Found=false; no duration is fabricated.
func (s *Sampler) RecordEnd(workID, workType string) EndResult {
	return s.finish(workID, workType, false)
}

// RecordFailure completes a unit of work as failed.
func (s *Sampler) RecordFailure(workID, workType string, cause error) EndResult {
	res := s.finish(workID, workType, true)
	if res.Found && cause != nil && s.logger != nil {
		s.logger.Debug("work unit failed",
			slog.String("work_id", workID),
			slog.String("work_type", workType),
			slog.String("error", cause.Error()),
		)
	}
	return res
}

// finish completes a unit. The sampling decision is made once at
// RecordStart; an unsampled start has no active entry, so the lookup
// miss below covers it without a second draw.
func (s *Sampler) finish(workID, workType string, failed bool) EndResult {
	now := time.Now()
	var warn *Warning

	s.mu.Lock()
	unit, ok := s.active[workID]
	if !ok {
		s.mu.Unlock()
		if s.logger != nil {
			s.logger.Debug("no active unit for work id",
				slog.String("work_id", workID),
			)
		}
		return EndResult{Sampled: true}
	}
	delete(s.active, workID)

	duration := time.Since(unit.started)
	if workType == "" {
		workType = unit.WorkType
	}

	rec := PerformanceRecord{
		WorkID:    workID,
		WorkType:  workType,
		Duration:  duration,
		Timestamp: now,
		Failed:    failed,
	}
	s.keepRecordLocked(rec)

	if failed {
		s.totalFailed++
	} else {
		s.totalCompleted++
	}
	completed := s.totalCompleted + s.totalFailed
	s.avgDuration += (duration - s.avgDuration) / time.Duration(completed)

	if duration > s.cfg.EventProcessingTime {
		warn = &Warning{
			Kind:      WarnSlowProcessing,
			WorkID:    workID,
			WorkType:  workType,
			Duration:  duration,
			Threshold: float64(s.cfg.EventProcessingTime.Milliseconds()),
			Timestamp: now,
		}
		s.keepWarningLocked(*warn)
	}
	s.mu.Unlock()

	s.metrics.RecordWorkDuration(context.Background(), workType, duration, failed)
	if warn != nil {
		s.emitWarning(*warn)
	}

	return EndResult{Sampled: true, Found: true, Duration: duration, Failed: failed}
}

// SweepOrphans reclaims active units older than EventTimeout, treating
// them as abandoned rather than slow: no duration record is written.
// Returns the number reclaimed.
func (s *Sampler) SweepOrphans() int {
	done := observability.TimedOperation()
	cutoff := time.Now().Add(-s.cfg.EventTimeout)

	s.mu.Lock()
	var orphans []string
	for id, unit := range s.active {
		if unit.StartTime.Before(cutoff) {
			orphans = append(orphans, id)
		}
	}
	for _, id := range orphans {
		delete(s.active, id)
	}
	s.totalOrphaned += int64(len(orphans))
	s.mu.Unlock()

	if len(orphans) > 0 {
		observability.LogSweepComplete(s.logger, "orphan_work_units", len(orphans), done())
	}
	return len(orphans)
}

// CheckMemory fires a HIGH_MEMORY warning if heap allocation exceeds
// the configured threshold. Returns the warning when one fired.
func (s *Sampler) CheckMemory() *Warning {
	if s.cfg.MemoryThreshold == 0 {
		return nil
	}

	mem := readMemory()
	if mem.AllocBytes <= s.cfg.MemoryThreshold {
		return nil
	}

	warn := Warning{
		Kind:       WarnHighMemory,
		AllocBytes: mem.AllocBytes,
		Threshold:  float64(s.cfg.MemoryThreshold),
		Timestamp:  time.Now(),
	}

	s.mu.Lock()
	s.keepWarningLocked(warn)
	s.mu.Unlock()

	s.emitWarning(warn)
	return &warn
}

// Stats returns a snapshot of sampler counters.
func (s *Sampler) Stats() SamplerStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return SamplerStats{
		Active:          len(s.active),
		TotalStarted:    s.totalStarted,
		TotalCompleted:  s.totalCompleted,
		TotalFailed:     s.totalFailed,
		TotalOrphaned:   s.totalOrphaned,
		AverageDuration: s.avgDuration,
		Records:         len(s.records),
		Warnings:        len(s.warnings),
	}
}

// Close stops the sweep loop. Idempotent.
func (s *Sampler) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	close(s.stopCh)
}

// keepRecordLocked prepends a record, truncating to MaxRecords.
// Caller holds s.mu.
func (s *Sampler) keepRecordLocked(rec PerformanceRecord) {
	s.records = append([]PerformanceRecord{rec}, s.records...)
	if len(s.records) > s.cfg.MaxRecords {
		s.records = s.records[:s.cfg.MaxRecords]
	}
}

// keepWarningLocked prepends a warning, truncating to MaxWarnings.
// Caller holds s.mu.
func (s *Sampler) keepWarningLocked(w Warning) {
	s.warnings = append([]Warning{w}, s.warnings...)
	if len(s.warnings) > s.cfg.MaxWarnings {
		s.warnings = s.warnings[:s.cfg.MaxWarnings]
	}
}

// emitWarning publishes a warning immediately, never batched.
func (s *Sampler) emitWarning(w Warning) {
	s.metrics.RecordPerfWarning(context.Background(), w.Kind)
	observability.LogPerformanceWarning(s.logger, w.Kind, map[string]any{
		"work_id":      w.WorkID,
		"work_type":    w.WorkType,
		"duration_ms":  float64(w.Duration.Milliseconds()),
		"active_count": w.ActiveCount,
	})

	if s.bus == nil {
		return
	}

	evt := event.New(event.TopicPerformanceWarning, s.cfg.Source, event.PerformanceWarningPayload{
		Kind:             w.Kind,
		WorkID:           w.WorkID,
		WorkType:         w.WorkType,
		ProcessingTimeMs: float64(w.Duration.Milliseconds()),
		ActiveCount:      w.ActiveCount,
		Threshold:        w.Threshold,
		Timestamp:        w.Timestamp,
	})
	if err := s.bus.Publish(context.Background(), evt); err != nil {
		observability.LogPublishError(s.logger, evt.Type(), err)
		return
	}
	s.metrics.RecordEventPublished(context.Background(), evt.Type())
}

// sweepLoop periodically reclaims orphans and checks memory.
func (s *Sampler) sweepLoop() {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.SweepOrphans()
			s.CheckMemory()
		}
	}
}
