package breaker

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/randalmurphal/vigil/pkg/vigil/event"
	"github.com/randalmurphal/vigil/pkg/vigil/observability"
)

// Config configures the engine.
type Config struct {
	// FailureThreshold is the consecutive failure count that opens a
	// breaker.
	// Default: 5
	FailureThreshold int

	// Timeout is how long an open breaker refuses work before allowing
	// a half-open trial.
	// Default: 60s
	Timeout time.Duration

	// IsolationThreshold is the consecutive handler failure count that
	// triggers isolation.
	// Default: 5
	IsolationThreshold int

	// MaxErrorRecords caps the error record ring.
	// Default: 100
	MaxErrorRecords int

	// DegradedThreshold is the total error count beyond which system
	// health is reported as DEGRADED.
	// Default: 10
	DegradedThreshold int

	// RecoveryInterval is how often the recovery pass runs for
	// isolated handlers.
	// Default: 30s
	RecoveryInterval time.Duration

	// DisableRecoveryLoop skips starting the periodic recovery pass.
	// RunRecoveryPass can still be called directly.
	DisableRecoveryLoop bool

	// Source names this engine as an event producer.
	// Default: "vigil"
	Source string

	// Logger receives engine logs. Nil disables logging.
	Logger *slog.Logger

	// Metrics receives engine metrics. Nil disables metrics.
	Metrics observability.MetricsRecorder
}

// DefaultConfig provides reasonable defaults.
var DefaultConfig = Config{
	FailureThreshold:   5,
	Timeout:            60 * time.Second,
	IsolationThreshold: 5,
	MaxErrorRecords:    100,
	DegradedThreshold:  10,
	RecoveryInterval:   30 * time.Second,
	Source:             "vigil",
}

// Engine owns all breaker and isolation state. It is the only writer
// to its collections; everything it hands out is a copy.
type Engine struct {
	cfg     Config
	bus     event.Bus
	logger  *slog.Logger
	metrics observability.MetricsRecorder

	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
	isolated map[string]*IsolatedHandler
	ring     *errorRing

	totalErrors    int
	criticalErrors int
	announced      Status

	closed atomic.Bool
	stopCh chan struct{}
}

// NewEngine creates an engine publishing its diagnostic events on bus.
// A nil bus is allowed; the engine then keeps state without emitting.
func NewEngine(bus event.Bus, cfg Config) *Engine {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultConfig.FailureThreshold
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig.Timeout
	}
	if cfg.IsolationThreshold <= 0 {
		cfg.IsolationThreshold = DefaultConfig.IsolationThreshold
	}
	if cfg.MaxErrorRecords <= 0 {
		cfg.MaxErrorRecords = DefaultConfig.MaxErrorRecords
	}
	if cfg.DegradedThreshold <= 0 {
		cfg.DegradedThreshold = DefaultConfig.DegradedThreshold
	}
	if cfg.RecoveryInterval <= 0 {
		cfg.RecoveryInterval = DefaultConfig.RecoveryInterval
	}
	if cfg.Source == "" {
		cfg.Source = DefaultConfig.Source
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observability.NoopMetrics{}
	}

	e := &Engine{
		cfg:       cfg,
		bus:       bus,
		logger:    observability.EnrichLogger(cfg.Logger, "breaker"),
		metrics:   cfg.Metrics,
		breakers:  make(map[string]*CircuitBreaker),
		isolated:  make(map[string]*IsolatedHandler),
		ring:      newErrorRing(cfg.MaxErrorRecords),
		announced: StatusHealthy,
		stopCh:    make(chan struct{}),
	}

	if !cfg.DisableRecoveryLoop {
		go e.recoveryLoop()
	}

	return e
}

// ReportFailure records a failure for a component and advances its
// breaker. The breaker is created lazily on first report.
func (e *Engine) ReportFailure(component string, info ErrorInfo) {
	now := time.Now()

	kind := info.Kind
	if kind == KindUnknown && info.Message != "" {
		kind = KindFromMessage(info.Message)
	}
	severity := info.Severity
	if !info.SeveritySet {
		severity = DefaultSeverity(kind)
	}

	rec := ErrorRecord{
		Kind:      kind,
		Component: component,
		Severity:  severity,
		Message:   info.Message,
		Context:   info.Context,
		Timestamp: now,
	}

	var out []*event.Envelope

	e.mu.Lock()
	e.ring.add(rec)
	e.totalErrors++
	if severity == SeverityCritical {
		e.criticalErrors++
		out = append(out, event.New(event.TopicSystemAlert, e.cfg.Source, event.SystemAlertPayload{
			Component: component,
			Message:   info.Message,
			Severity:  severity.String(),
			Timestamp: now,
		}))
	}

	out = append(out, event.New(event.TopicErrorClassified, e.cfg.Source, event.ClassifiedErrorPayload{
		Kind:      kind.String(),
		Component: component,
		Severity:  severity.String(),
		Message:   info.Message,
		Timestamp: now,
	}))

	b := e.breakerLocked(component)
	prev := b.State
	switch b.State {
	case StateHalfOpen:
		// Trial failed: back to open with a fresh timeout.
		b.State = StateOpen
		b.FailureCount++
		b.LastFailureTime = now
		b.NextAttemptTime = now.Add(b.Timeout)
	case StateClosed:
		b.FailureCount++
		b.LastFailureTime = now
		if b.FailureCount >= b.FailureThreshold {
			b.State = StateOpen
			b.NextAttemptTime = now.Add(b.Timeout)
		}
	case StateOpen:
		b.FailureCount++
		b.LastFailureTime = now
	}

	opened := prev != StateOpen && b.State == StateOpen
	if opened {
		out = append(out, event.New(event.TopicBreakerOpened, e.cfg.Source, event.BreakerStatePayload{
			Component:       component,
			FailureCount:    b.FailureCount,
			NextAttemptTime: b.NextAttemptTime,
			Timestamp:       now,
		}))
	}
	failureCount := b.FailureCount
	nextAttempt := b.NextAttemptTime

	out = append(out, e.healthTransitionLocked(now)...)
	e.mu.Unlock()

	if severity == SeverityCritical {
		observability.LogSystemAlert(e.logger, component, info.Message)
	}
	if opened {
		observability.LogBreakerOpened(e.logger, component, failureCount, nextAttempt)
		e.metrics.RecordBreakerTransition(context.Background(), component, prev.String(), StateOpen.String())
	}

	e.publish(out)
}

// ReportSuccess records a success for a component. A closed breaker's
// failure count resets; a half-open breaker closes.
func (e *Engine) ReportSuccess(component string) {
	now := time.Now()

	var out []*event.Envelope
	var closedFrom State = -1

	e.mu.Lock()
	b, ok := e.breakers[component]
	if ok {
		switch b.State {
		case StateHalfOpen:
			closedFrom = StateHalfOpen
			b.State = StateClosed
			b.FailureCount = 0
			b.NextAttemptTime = time.Time{}
			out = append(out, event.New(event.TopicBreakerClosed, e.cfg.Source, event.BreakerStatePayload{
				Component: component,
				Timestamp: now,
			}))
		case StateClosed:
			b.FailureCount = 0
		}
	}
	e.mu.Unlock()

	if closedFrom >= 0 {
		observability.LogBreakerClosed(e.logger, component)
		e.metrics.RecordBreakerTransition(context.Background(), component, closedFrom.String(), StateClosed.String())
	}

	e.publish(out)
}

// CanExecute reports whether work may be forwarded to a component. An
// open breaker whose timeout has elapsed transitions to half-open
// exactly once and allows a single trial; repeated calls before any
// report stay half-open and keep returning true.
func (e *Engine) CanExecute(component string) bool {
	now := time.Now()

	e.mu.Lock()
	b, ok := e.breakers[component]
	if !ok {
		e.mu.Unlock()
		return true
	}

	switch b.State {
	case StateClosed, StateHalfOpen:
		e.mu.Unlock()
		return true
	case StateOpen:
		if now.Before(b.NextAttemptTime) {
			e.mu.Unlock()
			e.metrics.RecordBreakerRejection(context.Background(), component)
			return false
		}
		b.State = StateHalfOpen
		e.mu.Unlock()
		e.metrics.RecordBreakerTransition(context.Background(), component, StateOpen.String(), StateHalfOpen.String())
		return true
	}

	e.mu.Unlock()
	return true
}

// ReportHandlerError records a handler failure and isolates the
// handler once its consecutive failure count reaches the isolation
// threshold. Isolation is keyed by handler identity, independent of
// any component breaker.
func (e *Engine) ReportHandlerError(handlerName, eventType string, consecutiveFailures int, message string) {
	e.mu.Lock()
	e.ring.add(ErrorRecord{
		Kind:      KindFromMessage(message),
		Component: "handler:" + handlerName,
		Severity:  SeverityMedium,
		Message:   message,
		Context:   map[string]any{"event_type": eventType, "consecutive_failures": consecutiveFailures},
		Timestamp: time.Now(),
	})
	e.totalErrors++
	threshold := e.cfg.IsolationThreshold
	out := e.healthTransitionLocked(time.Now())
	e.mu.Unlock()
	e.publish(out)

	if consecutiveFailures >= threshold {
		e.IsolateHandler(handlerName, message)
	}
}

// IsolateHandler places a handler on the isolation list. Isolating an
// already-isolated handler is a no-op.
func (e *Engine) IsolateHandler(handlerName, reason string) {
	now := time.Now()

	e.mu.Lock()
	if _, exists := e.isolated[handlerName]; exists {
		e.mu.Unlock()
		return
	}
	e.isolated[handlerName] = &IsolatedHandler{
		HandlerName: handlerName,
		Reason:      reason,
		IsolatedAt:  now,
	}
	e.mu.Unlock()

	observability.LogHandlerIsolated(e.logger, handlerName, reason)
	e.metrics.RecordIsolation(context.Background(), handlerName)

	e.publish([]*event.Envelope{
		event.New(event.TopicHandlerIsolated, e.cfg.Source, event.HandlerIsolationPayload{
			HandlerName: handlerName,
			Reason:      reason,
			Timestamp:   now,
		}),
	})
}

// IsHandlerIsolated reports whether a handler is currently isolated.
func (e *Engine) IsHandlerIsolated(handlerName string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.isolated[handlerName]
	return ok
}

// RestoreHandler removes a handler from isolation. Only this explicit
// call un-isolates; recovery passes merely announce attempts. Returns
// false if the handler was not isolated.
func (e *Engine) RestoreHandler(handlerName string) bool {
	now := time.Now()

	e.mu.Lock()
	h, ok := e.isolated[handlerName]
	if !ok {
		e.mu.Unlock()
		return false
	}
	attempts := h.RecoveryAttempts
	delete(e.isolated, handlerName)
	e.mu.Unlock()

	observability.LogHandlerRestored(e.logger, handlerName, attempts)

	e.publish([]*event.Envelope{
		event.New(event.TopicHandlerRestored, e.cfg.Source, event.HandlerIsolationPayload{
			HandlerName:      handlerName,
			RecoveryAttempts: attempts,
			Timestamp:        now,
		}),
	})
	return true
}

// RunRecoveryPass announces a recovery attempt for every isolated
// handler and increments its attempt counter. The external owner of
// each handler decides whether to call RestoreHandler. Returns the
// number of handlers visited.
func (e *Engine) RunRecoveryPass() int {
	now := time.Now()

	// Copy-then-publish so the bus never runs under the engine lock.
	e.mu.Lock()
	pending := make([]event.HandlerIsolationPayload, 0, len(e.isolated))
	for _, h := range e.isolated {
		h.RecoveryAttempts++
		pending = append(pending, event.HandlerIsolationPayload{
			HandlerName:      h.HandlerName,
			Reason:           h.Reason,
			RecoveryAttempts: h.RecoveryAttempts,
			Timestamp:        now,
		})
	}
	e.mu.Unlock()

	out := make([]*event.Envelope, 0, len(pending))
	for _, p := range pending {
		out = append(out, event.New(event.TopicHandlerRecoveryAttempt, e.cfg.Source, p))
	}
	e.publish(out)

	return len(pending)
}

// SystemHealth derives the current health snapshot. UNHEALTHY if any
// critical error has been recorded since the last reset, DEGRADED if
// total errors exceed the configured threshold, else HEALTHY.
func (e *Engine) SystemHealth() Health {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.healthLocked(time.Now())
}

func (e *Engine) healthLocked(now time.Time) Health {
	h := Health{
		Status:           e.statusLocked(),
		TotalErrors:      e.totalErrors,
		CriticalErrors:   e.criticalErrors,
		IsolatedHandlers: len(e.isolated),
		Timestamp:        now,
	}
	for _, b := range e.breakers {
		switch b.State {
		case StateOpen:
			h.OpenBreakers++
		case StateHalfOpen:
			h.HalfOpenBreakers++
		}
	}
	return h
}

func (e *Engine) statusLocked() Status {
	switch {
	case e.criticalErrors > 0:
		return StatusUnhealthy
	case e.totalErrors > e.cfg.DegradedThreshold:
		return StatusDegraded
	default:
		return StatusHealthy
	}
}

// healthTransitionLocked applies the announcement hysteresis: a
// worsening status is announced immediately, but an improvement is
// announced only once status is back to HEALTHY. Caller holds e.mu.
func (e *Engine) healthTransitionLocked(now time.Time) []*event.Envelope {
	status := e.statusLocked()
	if status == e.announced {
		return nil
	}

	worse := rank(status) > rank(e.announced)
	if !worse && status != StatusHealthy {
		// Intermediate improvement; hold the announcement.
		return nil
	}

	prev := e.announced
	e.announced = status
	return []*event.Envelope{
		event.New(event.TopicSystemHealthDegraded, e.cfg.Source, event.HealthChangePayload{
			Status:         string(status),
			Previous:       string(prev),
			Recovered:      status == StatusHealthy,
			TotalErrors:    e.totalErrors,
			CriticalErrors: e.criticalErrors,
			Timestamp:      now,
		}),
	}
}

func rank(s Status) int {
	switch s {
	case StatusUnhealthy:
		return 2
	case StatusDegraded:
		return 1
	default:
		return 0
	}
}

// ResetCounters clears the error counters and record ring, returning
// health derivation to a clean slate. Breaker and isolation state are
// untouched. The resulting HEALTHY transition is announced per the
// hysteresis rule.
func (e *Engine) ResetCounters() {
	e.mu.Lock()
	e.totalErrors = 0
	e.criticalErrors = 0
	e.ring = newErrorRing(e.cfg.MaxErrorRecords)
	out := e.healthTransitionLocked(time.Now())
	e.mu.Unlock()
	e.publish(out)
}

// Breaker returns a snapshot of one component's breaker.
func (e *Engine) Breaker(component string) (CircuitBreaker, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, ok := e.breakers[component]
	if !ok {
		return CircuitBreaker{}, false
	}
	return *b, true
}

// Breakers returns snapshots of all breakers, sorted by component.
func (e *Engine) Breakers() []CircuitBreaker {
	e.mu.Lock()
	out := make([]CircuitBreaker, 0, len(e.breakers))
	for _, b := range e.breakers {
		out = append(out, *b)
	}
	e.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Component < out[j].Component })
	return out
}

// IsolatedHandlers returns snapshots of all isolated handlers, sorted
// by name.
func (e *Engine) IsolatedHandlers() []IsolatedHandler {
	e.mu.Lock()
	out := make([]IsolatedHandler, 0, len(e.isolated))
	for _, h := range e.isolated {
		out = append(out, *h)
	}
	e.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].HandlerName < out[j].HandlerName })
	return out
}

// Recent returns up to n error records, newest first. n <= 0 returns
// all retained records.
func (e *Engine) Recent(n int) []ErrorRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ring.recent(n)
}

// Stats returns a snapshot of engine counters.
func (e *Engine) Stats() EngineStats {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := EngineStats{
		Breakers:         len(e.breakers),
		IsolatedHandlers: len(e.isolated),
		TotalErrors:      e.totalErrors,
		CriticalErrors:   e.criticalErrors,
		ErrorRecords:     e.ring.len(),
	}
	for _, b := range e.breakers {
		if b.State == StateOpen {
			s.OpenBreakers++
		}
	}
	return s
}

// Close stops the recovery loop. Idempotent.
func (e *Engine) Close() {
	if !e.closed.CompareAndSwap(false, true) {
		return
	}
	close(e.stopCh)
}

// breakerLocked returns the breaker for a component, creating it
// lazily. Caller holds e.mu.
func (e *Engine) breakerLocked(component string) *CircuitBreaker {
	b, ok := e.breakers[component]
	if !ok {
		b = &CircuitBreaker{
			Component:        component,
			State:            StateClosed,
			FailureThreshold: e.cfg.FailureThreshold,
			Timeout:          e.cfg.Timeout,
		}
		e.breakers[component] = b
	}
	return b
}

// recoveryLoop periodically runs the recovery pass.
func (e *Engine) recoveryLoop() {
	ticker := time.NewTicker(e.cfg.RecoveryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopCh:
			return
		case <-ticker.C:
			e.RunRecoveryPass()
		}
	}
}

// publish emits events best-effort. Publishing never runs under the
// engine lock and failures are logged, not propagated.
func (e *Engine) publish(events []*event.Envelope) {
	if e.bus == nil {
		return
	}
	for _, evt := range events {
		if err := e.bus.Publish(context.Background(), evt); err != nil {
			observability.LogPublishError(e.logger, evt.Type(), err)
			continue
		}
		e.metrics.RecordEventPublished(context.Background(), evt.Type())
	}
}
