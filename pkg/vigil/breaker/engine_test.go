package breaker_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/vigil/pkg/vigil/breaker"
	"github.com/randalmurphal/vigil/pkg/vigil/event"
)

// captureBus records published events synchronously for assertions.
type captureBus struct {
	mu     sync.Mutex
	events []event.Event
}

func (b *captureBus) Publish(_ context.Context, evt event.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, evt)
	return nil
}

func (b *captureBus) Subscribe(_ []string, _ event.Handler) event.Subscription { return nil }
func (b *captureBus) SubscribeAll(_ event.Handler) event.Subscription          { return nil }
func (b *captureBus) Close() error                                             { return nil }

func (b *captureBus) byTopic(topic string) []event.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []event.Event
	for _, evt := range b.events {
		if evt.Type() == topic {
			out = append(out, evt)
		}
	}
	return out
}

func newTestEngine(t *testing.T, bus event.Bus, cfg breaker.Config) *breaker.Engine {
	t.Helper()
	cfg.DisableRecoveryLoop = true
	e := breaker.NewEngine(bus, cfg)
	t.Cleanup(e.Close)
	return e
}

func TestBreakerOpensAtThreshold(t *testing.T) {
	bus := &captureBus{}
	e := newTestEngine(t, bus, breaker.Config{FailureThreshold: 3, Timeout: time.Minute})

	for i := 0; i < 3; i++ {
		require.True(t, e.CanExecute("extractor"), "breaker must stay closed before threshold")
		e.ReportFailure("extractor", breaker.ErrorInfo{Message: "boom"})
	}

	assert.False(t, e.CanExecute("extractor"), "breaker must refuse work once open")

	b, ok := e.Breaker("extractor")
	require.True(t, ok)
	assert.Equal(t, breaker.StateOpen, b.State)
	assert.Equal(t, 3, b.FailureCount)
	assert.False(t, b.NextAttemptTime.IsZero())

	// CLOSED -> OPEN emitted exactly once.
	assert.Len(t, bus.byTopic(event.TopicBreakerOpened), 1)
}

func TestSuccessResetsClosedBreaker(t *testing.T) {
	e := newTestEngine(t, nil, breaker.Config{FailureThreshold: 3})

	e.ReportFailure("storage", breaker.ErrorInfo{Message: "x"})
	e.ReportFailure("storage", breaker.ErrorInfo{Message: "x"})
	e.ReportSuccess("storage")
	e.ReportFailure("storage", breaker.ErrorInfo{Message: "x"})
	e.ReportFailure("storage", breaker.ErrorInfo{Message: "x"})

	// Never three consecutive: still closed.
	assert.True(t, e.CanExecute("storage"))
	b, _ := e.Breaker("storage")
	assert.Equal(t, breaker.StateClosed, b.State)
	assert.Equal(t, 2, b.FailureCount)
}

func TestOpenBreakerHalfOpensAfterTimeout(t *testing.T) {
	e := newTestEngine(t, nil, breaker.Config{FailureThreshold: 1, Timeout: 30 * time.Millisecond})

	e.ReportFailure("api", breaker.ErrorInfo{Message: "x"})
	require.False(t, e.CanExecute("api"))

	time.Sleep(50 * time.Millisecond)

	// First call after timeout transitions to half-open and allows a trial.
	assert.True(t, e.CanExecute("api"))
	b, _ := e.Breaker("api")
	assert.Equal(t, breaker.StateHalfOpen, b.State)

	// Idempotent on repeated calls before any report.
	assert.True(t, e.CanExecute("api"))
	b, _ = e.Breaker("api")
	assert.Equal(t, breaker.StateHalfOpen, b.State)
}

func TestHalfOpenSuccessCloses(t *testing.T) {
	bus := &captureBus{}
	e := newTestEngine(t, bus, breaker.Config{FailureThreshold: 1, Timeout: 10 * time.Millisecond})

	e.ReportFailure("api", breaker.ErrorInfo{Message: "x"})
	time.Sleep(20 * time.Millisecond)
	require.True(t, e.CanExecute("api"))

	e.ReportSuccess("api")

	b, _ := e.Breaker("api")
	assert.Equal(t, breaker.StateClosed, b.State)
	assert.Equal(t, 0, b.FailureCount)
	assert.Len(t, bus.byTopic(event.TopicBreakerClosed), 1)
}

func TestHalfOpenFailureReopens(t *testing.T) {
	e := newTestEngine(t, nil, breaker.Config{FailureThreshold: 1, Timeout: 10 * time.Millisecond})

	e.ReportFailure("api", breaker.ErrorInfo{Message: "x"})
	time.Sleep(20 * time.Millisecond)
	require.True(t, e.CanExecute("api"))

	before, _ := e.Breaker("api")
	e.ReportFailure("api", breaker.ErrorInfo{Message: "x"})

	after, _ := e.Breaker("api")
	assert.Equal(t, breaker.StateOpen, after.State)
	assert.True(t, after.NextAttemptTime.After(before.NextAttemptTime),
		"reopening must compute a fresh next attempt time")
	assert.False(t, e.CanExecute("api"))
}

func TestHandlerIsolation(t *testing.T) {
	bus := &captureBus{}
	e := newTestEngine(t, bus, breaker.Config{IsolationThreshold: 5})

	e.ReportHandlerError("renderer", "BOOK.UPDATED", 4, "render failed")
	assert.False(t, e.IsHandlerIsolated("renderer"))

	e.ReportHandlerError("renderer", "BOOK.UPDATED", 5, "render failed")
	assert.True(t, e.IsHandlerIsolated("renderer"))
	assert.Len(t, bus.byTopic(event.TopicHandlerIsolated), 1)

	// Repeated isolation is a no-op.
	e.IsolateHandler("renderer", "again")
	assert.Len(t, bus.byTopic(event.TopicHandlerIsolated), 1)
}

func TestRecoveryPassNeverRestores(t *testing.T) {
	bus := &captureBus{}
	e := newTestEngine(t, bus, breaker.Config{})

	e.IsolateHandler("exporter", "five consecutive failures")
	e.IsolateHandler("renderer", "five consecutive failures")

	visited := e.RunRecoveryPass()
	assert.Equal(t, 2, visited)
	assert.Len(t, bus.byTopic(event.TopicHandlerRecoveryAttempt), 2)

	// Still isolated: only RestoreHandler removes isolation.
	assert.True(t, e.IsHandlerIsolated("exporter"))
	assert.True(t, e.IsHandlerIsolated("renderer"))

	e.RunRecoveryPass()
	handlers := e.IsolatedHandlers()
	require.Len(t, handlers, 2)
	assert.Equal(t, 2, handlers[0].RecoveryAttempts)
}

func TestRestoreHandler(t *testing.T) {
	bus := &captureBus{}
	e := newTestEngine(t, bus, breaker.Config{})

	e.IsolateHandler("exporter", "failures")
	e.RunRecoveryPass()

	assert.True(t, e.RestoreHandler("exporter"))
	assert.False(t, e.IsHandlerIsolated("exporter"))
	assert.False(t, e.RestoreHandler("exporter"), "second restore must report not isolated")

	restored := bus.byTopic(event.TopicHandlerRestored)
	require.Len(t, restored, 1)
	p := restored[0].Data().(event.HandlerIsolationPayload)
	assert.Equal(t, 1, p.RecoveryAttempts)
}

func TestSystemHealthDerivation(t *testing.T) {
	e := newTestEngine(t, nil, breaker.Config{DegradedThreshold: 2})

	assert.Equal(t, breaker.StatusHealthy, e.SystemHealth().Status)

	for i := 0; i < 3; i++ {
		e.ReportFailure("extractor", breaker.ErrorInfo{Message: "x"})
	}
	assert.Equal(t, breaker.StatusDegraded, e.SystemHealth().Status)

	e.ReportFailure("extractor", breaker.ErrorInfo{
		Severity:    breaker.SeverityCritical,
		SeveritySet: true,
		Message:     "meltdown",
	})
	h := e.SystemHealth()
	assert.Equal(t, breaker.StatusUnhealthy, h.Status)
	assert.Equal(t, 1, h.CriticalErrors)
}

func TestCriticalFailureEmitsAlert(t *testing.T) {
	bus := &captureBus{}
	e := newTestEngine(t, bus, breaker.Config{})

	e.ReportFailure("storage", breaker.ErrorInfo{
		Severity:    breaker.SeverityCritical,
		SeveritySet: true,
		Message:     "disk gone",
	})

	require.Len(t, bus.byTopic(event.TopicSystemAlert), 1)
	assert.NotEmpty(t, bus.byTopic(event.TopicErrorClassified))
}

func TestHealthHysteresis(t *testing.T) {
	bus := &captureBus{}
	e := newTestEngine(t, bus, breaker.Config{DegradedThreshold: 1})

	// HEALTHY -> DEGRADED announced.
	e.ReportFailure("a", breaker.ErrorInfo{Message: "x"})
	e.ReportFailure("a", breaker.ErrorInfo{Message: "x"})
	changes := bus.byTopic(event.TopicSystemHealthDegraded)
	require.Len(t, changes, 1)
	assert.Equal(t, "DEGRADED", changes[0].Data().(event.HealthChangePayload).Status)

	// DEGRADED -> UNHEALTHY announced.
	e.ReportFailure("a", breaker.ErrorInfo{Severity: breaker.SeverityCritical, SeveritySet: true, Message: "x"})
	changes = bus.byTopic(event.TopicSystemHealthDegraded)
	require.Len(t, changes, 2)
	assert.Equal(t, "UNHEALTHY", changes[1].Data().(event.HealthChangePayload).Status)

	// Full reset: UNHEALTHY -> HEALTHY announced with recovered flag,
	// no intermediate DEGRADED announcement.
	e.ResetCounters()
	changes = bus.byTopic(event.TopicSystemHealthDegraded)
	require.Len(t, changes, 3)
	p := changes[2].Data().(event.HealthChangePayload)
	assert.Equal(t, "HEALTHY", p.Status)
	assert.True(t, p.Recovered)
}

func TestErrorRingEviction(t *testing.T) {
	e := newTestEngine(t, nil, breaker.Config{MaxErrorRecords: 3})

	for i := 0; i < 5; i++ {
		e.ReportFailure("a", breaker.ErrorInfo{Message: string(rune('a' + i))})
	}

	recent := e.Recent(0)
	require.Len(t, recent, 3)

	// Newest first, oldest two evicted.
	assert.Equal(t, "e", recent[0].Message)
	assert.Equal(t, "d", recent[1].Message)
	assert.Equal(t, "c", recent[2].Message)

	one := e.Recent(1)
	require.Len(t, one, 1)
	assert.Equal(t, "e", one[0].Message)
}

func TestStats(t *testing.T) {
	e := newTestEngine(t, nil, breaker.Config{FailureThreshold: 1})

	e.ReportFailure("a", breaker.ErrorInfo{Message: "x"})
	e.ReportFailure("b", breaker.ErrorInfo{Message: "x"})
	e.ReportSuccess("b")
	e.IsolateHandler("h", "r")

	s := e.Stats()
	assert.Equal(t, 2, s.Breakers)
	assert.GreaterOrEqual(t, s.OpenBreakers, 1)
	assert.Equal(t, 1, s.IsolatedHandlers)
	assert.Equal(t, 2, s.TotalErrors)
	assert.Equal(t, 2, s.ErrorRecords)
}

func TestConcurrentReports(t *testing.T) {
	e := newTestEngine(t, nil, breaker.Config{FailureThreshold: 1000, MaxErrorRecords: 2000})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				e.ReportFailure("shared", breaker.ErrorInfo{Message: "x"})
				e.CanExecute("shared")
				e.ReportSuccess("other")
			}
		}()
	}
	wg.Wait()

	s := e.Stats()
	assert.Equal(t, 500, s.TotalErrors, "no reports may be lost under concurrency")
}

func TestCloseIdempotent(t *testing.T) {
	e := breaker.NewEngine(nil, breaker.Config{})
	e.Close()
	e.Close() // must not panic
}
