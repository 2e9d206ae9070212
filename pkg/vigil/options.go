package vigil

import (
	"log/slog"

	"github.com/randalmurphal/vigil/pkg/vigil/breaker"
	"github.com/randalmurphal/vigil/pkg/vigil/config"
	"github.com/randalmurphal/vigil/pkg/vigil/diagnose"
	"github.com/randalmurphal/vigil/pkg/vigil/observability"
	"github.com/randalmurphal/vigil/pkg/vigil/perf"
	"github.com/randalmurphal/vigil/pkg/vigil/track"
)

// settings holds monitor construction state assembled from options.
type settings struct {
	source  string
	logger  *slog.Logger
	metrics observability.MetricsRecorder

	breakerCfg  breaker.Config
	perfCfg     perf.Config
	trackCfg    track.Config
	diagnoseCfg diagnose.Config

	disableRecording   bool
	disableDiagnostics bool
	disablePerformance bool
}

func defaultSettings() settings {
	return settings{source: "vigil"}
}

// Option configures monitor construction.
type Option func(*settings)

// WithSource names the monitor as an event producer.
// Default: "vigil"
func WithSource(source string) Option {
	return func(s *settings) {
		if source != "" {
			s.source = source
		}
	}
}

// WithLogger sets the logger shared by all engines.
// Default: no logging.
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) {
		s.logger = logger
	}
}

// WithMetrics sets the metrics recorder shared by all engines.
// Default: no metrics.
func WithMetrics(metrics observability.MetricsRecorder) Option {
	return func(s *settings) {
		s.metrics = metrics
	}
}

// WithBreakerConfig overrides the circuit breaker engine settings.
func WithBreakerConfig(cfg breaker.Config) Option {
	return func(s *settings) {
		s.breakerCfg = cfg
	}
}

// WithPerfConfig overrides the performance sampler settings.
func WithPerfConfig(cfg perf.Config) Option {
	return func(s *settings) {
		s.perfCfg = cfg
	}
}

// WithTrackerConfig overrides the event tracker settings.
func WithTrackerConfig(cfg track.Config) Option {
	return func(s *settings) {
		s.trackCfg = cfg
	}
}

// WithDiagnoseConfig overrides the diagnostic analyzer settings.
func WithDiagnoseConfig(cfg diagnose.Config) Option {
	return func(s *settings) {
		s.diagnoseCfg = cfg
	}
}

// WithStore sets the tracker's persistence store.
// Default: in-memory.
func WithStore(store track.Store) Option {
	return func(s *settings) {
		s.trackCfg.Store = store
	}
}

// WithoutRecording skips the catch-all subscription that records every
// bus event into the tracker. Tracking requests still work against
// whatever was recorded by other means.
func WithoutRecording() Option {
	return func(s *settings) {
		s.disableRecording = true
	}
}

// WithoutDiagnostics skips the message diagnosis consumer.
func WithoutDiagnostics() Option {
	return func(s *settings) {
		s.disableDiagnostics = true
	}
}

// WithoutPerformance skips the performance sampler and its consumer.
func WithoutPerformance() Option {
	return func(s *settings) {
		s.disablePerformance = true
	}
}

// WithConfig applies settings from a loaded configuration. Engine
// sections are read by name; absent keys keep their current values.
//
//	source: edge
//	breaker:
//	  failure_threshold: 3
//	  timeout: 45s
//	performance:
//	  sampling_rate: 0.25
//	tracking:
//	  max_records: 500
//	  level: detailed
//	diagnostics:
//	  cache_size: 64
func WithConfig(cfg config.Config) Option {
	return func(s *settings) {
		s.source = cfg.String("source", s.source)

		b := cfg.Sub("breaker")
		s.breakerCfg.FailureThreshold = b.Int("failure_threshold", s.breakerCfg.FailureThreshold)
		s.breakerCfg.Timeout = b.Duration("timeout", s.breakerCfg.Timeout)
		s.breakerCfg.IsolationThreshold = b.Int("isolation_threshold", s.breakerCfg.IsolationThreshold)
		s.breakerCfg.MaxErrorRecords = b.Int("max_error_records", s.breakerCfg.MaxErrorRecords)
		s.breakerCfg.DegradedThreshold = b.Int("degraded_threshold", s.breakerCfg.DegradedThreshold)
		s.breakerCfg.RecoveryInterval = b.Duration("recovery_interval", s.breakerCfg.RecoveryInterval)

		p := cfg.Sub("performance")
		s.perfCfg.SamplingRate = p.Float("sampling_rate", s.perfCfg.SamplingRate)
		s.perfCfg.EventProcessingTime = p.Duration("processing_time_threshold", s.perfCfg.EventProcessingTime)
		s.perfCfg.ActiveEventCount = p.Int("active_event_count", s.perfCfg.ActiveEventCount)
		s.perfCfg.EventTimeout = p.Duration("event_timeout", s.perfCfg.EventTimeout)
		s.perfCfg.MemoryThreshold = uint64(p.Int("memory_threshold", int(s.perfCfg.MemoryThreshold)))
		s.perfCfg.MaxRecords = p.Int("max_records", s.perfCfg.MaxRecords)
		s.perfCfg.MaxWarnings = p.Int("max_warnings", s.perfCfg.MaxWarnings)
		s.perfCfg.SweepInterval = p.Duration("sweep_interval", s.perfCfg.SweepInterval)

		tr := cfg.Sub("tracking")
		s.trackCfg.MaxRecords = tr.Int("max_records", s.trackCfg.MaxRecords)
		s.trackCfg.RetentionAge = tr.Duration("retention_age", s.trackCfg.RetentionAge)
		s.trackCfg.Level = track.Level(tr.String("level", string(s.trackCfg.Level)))
		s.trackCfg.BatchSize = tr.Int("batch_size", s.trackCfg.BatchSize)
		s.trackCfg.SweepInterval = tr.Duration("sweep_interval", s.trackCfg.SweepInterval)
		s.trackCfg.RemoveOnClose = tr.Bool("remove_on_close", s.trackCfg.RemoveOnClose)

		d := cfg.Sub("diagnostics")
		s.diagnoseCfg.CacheSize = d.Int("cache_size", s.diagnoseCfg.CacheSize)
	}
}
