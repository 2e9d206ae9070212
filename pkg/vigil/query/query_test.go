package query_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/vigil/pkg/vigil/breaker"
	"github.com/randalmurphal/vigil/pkg/vigil/perf"
	"github.com/randalmurphal/vigil/pkg/vigil/query"
	"github.com/randalmurphal/vigil/pkg/vigil/track"
)

type fakeHealth struct {
	health   breaker.Health
	breakers []breaker.CircuitBreaker
	isolated []breaker.IsolatedHandler
	recent   []breaker.ErrorRecord
}

func (f *fakeHealth) SystemHealth() breaker.Health { return f.health }
func (f *fakeHealth) Breaker(component string) (breaker.CircuitBreaker, bool) {
	for _, b := range f.breakers {
		if b.Component == component {
			return b, true
		}
	}
	return breaker.CircuitBreaker{}, false
}
func (f *fakeHealth) Breakers() []breaker.CircuitBreaker { return f.breakers }

func (f *fakeHealth) IsolatedHandlers() []breaker.IsolatedHandler { return f.isolated }
func (f *fakeHealth) Recent(n int) []breaker.ErrorRecord {
	if n > len(f.recent) {
		n = len(f.recent)
	}
	return f.recent[:n]
}

type fakePerf struct{ report perf.Report }

func (f *fakePerf) Report() perf.Report { return f.report }

type fakeTrack struct{ stats track.TrackerStats }

func (f *fakeTrack) Stats() track.TrackerStats { return f.stats }

func TestRegistry(t *testing.T) {
	r := query.NewRegistry()

	handler := func(_ context.Context, _ map[string]any) (any, error) { return "ok", nil }
	require.NoError(t, r.Register("custom", handler))

	assert.Error(t, r.Register("", handler), "empty name rejected")
	assert.Error(t, r.Register("custom", handler), "duplicate rejected")
	assert.Error(t, r.Register("nil", nil), "nil handler rejected")

	got, ok := r.Get("custom")
	require.True(t, ok)
	require.NotNil(t, got)
	assert.Contains(t, r.List(), "custom")

	r.Unregister("custom")
	_, ok = r.Get("custom")
	assert.False(t, ok)
}

func newTestExecutor(t *testing.T) (*query.Executor, *fakeHealth) {
	t.Helper()
	health := &fakeHealth{
		health: breaker.Health{Status: breaker.StatusDegraded, TotalErrors: 12},
		breakers: []breaker.CircuitBreaker{
			{Component: "extractor", State: breaker.StateOpen, FailureCount: 5},
			{Component: "renderer", State: breaker.StateClosed},
		},
		isolated: []breaker.IsolatedHandler{{HandlerName: "flaky", Reason: "repeated failures"}},
		recent: []breaker.ErrorRecord{
			{Component: "extractor", Message: "boom", Timestamp: time.Now()},
			{Component: "extractor", Message: "boom again", Timestamp: time.Now()},
		},
	}
	registry := query.NewRegistry()
	require.NoError(t, query.RegisterBuiltins(registry, health,
		&fakePerf{report: perf.Report{Uptime: time.Minute}},
		&fakeTrack{stats: track.TrackerStats{TotalRecorded: 9}}))
	return query.NewExecutor(registry), health
}

func TestBuiltinQueries(t *testing.T) {
	e, health := newTestExecutor(t)
	ctx := context.Background()

	v, err := e.Execute(ctx, query.QuerySystemHealth, nil)
	require.NoError(t, err)
	assert.Equal(t, health.health, v)

	v, err = e.Execute(ctx, query.QueryBreakerState, nil)
	require.NoError(t, err)
	assert.Len(t, v.([]breaker.CircuitBreaker), 2)

	v, err = e.Execute(ctx, query.QueryBreakerState, map[string]any{"component": "extractor"})
	require.NoError(t, err)
	assert.Equal(t, breaker.StateOpen, v.(breaker.CircuitBreaker).State)

	_, err = e.Execute(ctx, query.QueryBreakerState, map[string]any{"component": "ghost"})
	assert.Error(t, err)

	v, err = e.Execute(ctx, query.QueryIsolatedHandlers, nil)
	require.NoError(t, err)
	assert.Equal(t, "flaky", v.([]breaker.IsolatedHandler)[0].HandlerName)

	v, err = e.Execute(ctx, query.QueryRecentErrors, map[string]any{"limit": float64(1)})
	require.NoError(t, err)
	assert.Len(t, v.([]breaker.ErrorRecord), 1)

	_, err = e.Execute(ctx, query.QueryRecentErrors, map[string]any{"limit": -3})
	assert.Error(t, err)

	v, err = e.Execute(ctx, query.QueryPerformanceReport, nil)
	require.NoError(t, err)
	assert.Equal(t, time.Minute, v.(perf.Report).Uptime)

	v, err = e.Execute(ctx, query.QueryTrackingStats, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(9), v.(track.TrackerStats).TotalRecorded)
}

func TestExecuteUnknownQuery(t *testing.T) {
	e, _ := newTestExecutor(t)

	_, err := e.Execute(context.Background(), "nonsense", nil)
	assert.ErrorIs(t, err, query.ErrQueryNotFound)

	_, err = e.Execute(context.Background(), "", nil)
	assert.Error(t, err)
}

func TestExecuteMultipleCollectsFailures(t *testing.T) {
	e, _ := newTestExecutor(t)

	results := e.ExecuteMultiple(context.Background(), map[string]map[string]any{
		query.QuerySystemHealth: nil,
		"nonsense":              nil,
	})
	require.Len(t, results, 2)

	byName := map[string]query.Result{}
	for _, r := range results {
		byName[r.QueryName] = r
	}
	assert.Empty(t, byName[query.QuerySystemHealth].Error)
	assert.NotNil(t, byName[query.QuerySystemHealth].Value)
	assert.Contains(t, byName["nonsense"].Error, "query not found")
}

func TestRegisterBuiltinsWithNilSources(t *testing.T) {
	registry := query.NewRegistry()
	require.NoError(t, query.RegisterBuiltins(registry, nil, nil, nil))
	assert.Empty(t, registry.List())
}
