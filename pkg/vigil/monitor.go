package vigil

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/randalmurphal/vigil/pkg/vigil/breaker"
	"github.com/randalmurphal/vigil/pkg/vigil/diagnose"
	"github.com/randalmurphal/vigil/pkg/vigil/event"
	"github.com/randalmurphal/vigil/pkg/vigil/observability"
	"github.com/randalmurphal/vigil/pkg/vigil/perf"
	"github.com/randalmurphal/vigil/pkg/vigil/query"
	"github.com/randalmurphal/vigil/pkg/vigil/track"
)

// Monitor wires the resilience engines onto an event bus: circuit
// breakers and handler isolation, message diagnosis, performance
// sampling, and event tracking. It owns the engines but not the bus.
type Monitor struct {
	bus     event.Bus
	source  string
	logger  *slog.Logger
	metrics observability.MetricsRecorder

	registry *event.Registry
	engine   *breaker.Engine
	analyzer *diagnose.Analyzer
	sampler  *perf.Sampler
	tracker  *track.Tracker

	queries  *query.Registry
	executor *query.Executor

	recordingOff bool

	subs    []event.Subscription
	started atomic.Bool
	closed  atomic.Bool
}

// New builds a monitor on the given bus. Engines start their
// maintenance loops immediately; bus subscriptions are created by
// Start.
func New(bus event.Bus, opts ...Option) (*Monitor, error) {
	if bus == nil {
		return nil, ErrNilBus
	}

	set := defaultSettings()
	for _, opt := range opts {
		opt(&set)
	}

	m := &Monitor{
		bus:          bus,
		source:       set.source,
		logger:       observability.EnrichLogger(set.logger, "monitor"),
		metrics:      set.metrics,
		recordingOff: set.disableRecording,
	}
	if m.metrics == nil {
		m.metrics = observability.NoopMetrics{}
	}

	m.registry = event.NewRegistry()
	event.RegisterBuiltins(m.registry)

	breakerCfg := set.breakerCfg
	fillEngineDefaults(&breakerCfg.Source, &breakerCfg.Logger, &breakerCfg.Metrics, set)
	m.engine = breaker.NewEngine(bus, breakerCfg)

	if !set.disableDiagnostics {
		diagCfg := set.diagnoseCfg
		if diagCfg.Logger == nil {
			diagCfg.Logger = set.logger
		}
		m.analyzer = diagnose.NewAnalyzer(diagCfg)
	}

	if !set.disablePerformance {
		perfCfg := set.perfCfg
		fillEngineDefaults(&perfCfg.Source, &perfCfg.Logger, &perfCfg.Metrics, set)
		m.sampler = perf.NewSampler(bus, perfCfg)
	}

	trackCfg := set.trackCfg
	fillEngineDefaults(&trackCfg.Source, &trackCfg.Logger, &trackCfg.Metrics, set)
	m.tracker = track.NewTracker(trackCfg)

	m.queries = query.NewRegistry()
	var perfSrc query.PerfSource
	if m.sampler != nil {
		perfSrc = m.sampler
	}
	if err := query.RegisterBuiltins(m.queries, m.engine, perfSrc, m.tracker); err != nil {
		m.shutdownEngines()
		return nil, err
	}
	m.executor = query.NewExecutor(m.queries)

	return m, nil
}

func fillEngineDefaults(source *string, logger **slog.Logger, metrics *observability.MetricsRecorder, set settings) {
	if *source == "" {
		*source = set.source
	}
	if *logger == nil {
		*logger = set.logger
	}
	if *metrics == nil {
		*metrics = set.metrics
	}
}

// Start subscribes the engine consumers to the bus. Each consumer runs
// behind recovery and protection middleware, so a panicking or failing
// consumer never disturbs delivery to the others. Start is idempotent.
func (m *Monitor) Start(ctx context.Context) error {
	if m.closed.Load() {
		return ErrMonitorClosed
	}
	if !m.started.CompareAndSwap(false, true) {
		return nil
	}

	consumers := []string{"breaker", "track"}
	m.subscribe(breaker.NewConsumer(m.engine))

	if m.analyzer != nil {
		diag := diagnose.NewConsumer(m.analyzer, m.bus, m.source)
		diag.AvailableTypes = m.registry.Types
		m.subscribe(diag)
		consumers = append(consumers, "diagnose")
	}

	if m.sampler != nil {
		m.subscribe(perf.NewConsumer(m.sampler))
		consumers = append(consumers, "perf")
	}

	m.subscribe(track.NewConsumer(m.tracker, m.bus, m.source))
	if !m.recordingOff {
		m.subscribe(track.NewRecorder(m.tracker))
		consumers = append(consumers, "recorder")
	}

	observability.LogMonitorStart(m.logger, consumers)
	return nil
}

// subscribe wraps a consumer in the protective middleware chain and
// registers it on the bus.
func (m *Monitor) subscribe(h event.Handler) {
	wrapped := event.ChainMiddleware(h,
		event.ProtectMiddleware(m.onResult),
		event.RecoveryMiddleware(),
		event.MetricsMiddleware(nil, m.onConsumed),
	)

	var sub event.Subscription
	if topics := wrapped.Handles(); len(topics) == 0 {
		sub = m.bus.SubscribeAll(wrapped)
	} else {
		sub = m.bus.Subscribe(topics, wrapped)
	}
	if sub != nil {
		m.subs = append(m.subs, sub)
	}
}

func (m *Monitor) onResult(evt event.Event, res event.Result) {
	if res.Success || m.logger == nil {
		return
	}
	m.logger.Warn("consumer failed",
		slog.String("topic", evt.Type()),
		slog.String("event_id", evt.ID()),
		slog.String("error", res.Error),
	)
}

func (m *Monitor) onConsumed(eventType string, duration time.Duration, err error) {
	m.metrics.RecordEventConsumed(context.Background(), eventType, duration, err)
}

// Query runs a single status query by name.
func (m *Monitor) Query(ctx context.Context, name string, args map[string]any) (any, error) {
	if m.closed.Load() {
		return nil, ErrMonitorClosed
	}
	return m.executor.Execute(ctx, name, args)
}

// QueryAll runs several status queries and collects all results,
// including failures.
func (m *Monitor) QueryAll(ctx context.Context, queries map[string]map[string]any) []query.Result {
	return m.executor.ExecuteMultiple(ctx, queries)
}

// Health returns the current derived system health.
func (m *Monitor) Health() breaker.Health {
	return m.engine.SystemHealth()
}

// Breakers returns the circuit breaker engine.
func (m *Monitor) Breakers() *breaker.Engine {
	return m.engine
}

// Sampler returns the performance sampler, or nil when performance
// monitoring is disabled.
func (m *Monitor) Sampler() *perf.Sampler {
	return m.sampler
}

// Tracker returns the event tracker.
func (m *Monitor) Tracker() *track.Tracker {
	return m.tracker
}

// Analyzer returns the diagnostic analyzer, or nil when diagnostics
// are disabled.
func (m *Monitor) Analyzer() *diagnose.Analyzer {
	return m.analyzer
}

// Topics returns the monitor's topic registry.
func (m *Monitor) Topics() *event.Registry {
	return m.registry
}

// Queries returns the status query registry, for registering custom
// queries alongside the builtins.
func (m *Monitor) Queries() *query.Registry {
	return m.queries
}

// Close unsubscribes the consumers and shuts down the engines. The
// bus itself stays open; the caller owns it. Close is idempotent.
func (m *Monitor) Close() error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}

	for _, sub := range m.subs {
		sub.Unsubscribe()
	}
	m.subs = nil

	err := m.shutdownEngines()
	observability.LogMonitorStop(m.logger)
	return err
}

func (m *Monitor) shutdownEngines() error {
	m.engine.Close()
	if m.sampler != nil {
		m.sampler.Close()
	}
	return m.tracker.Close()
}
