package perf_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/vigil/pkg/vigil/event"
	"github.com/randalmurphal/vigil/pkg/vigil/perf"
)

// warnBus captures published warnings.
type warnBus struct {
	mu     sync.Mutex
	events []event.Event
}

func (b *warnBus) Publish(_ context.Context, evt event.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, evt)
	return nil
}
func (b *warnBus) Subscribe(_ []string, _ event.Handler) event.Subscription { return nil }
func (b *warnBus) SubscribeAll(_ event.Handler) event.Subscription          { return nil }
func (b *warnBus) Close() error                                             { return nil }

func (b *warnBus) warnings() []event.PerformanceWarningPayload {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []event.PerformanceWarningPayload
	for _, evt := range b.events {
		if evt.Type() == event.TopicPerformanceWarning {
			out = append(out, evt.Data().(event.PerformanceWarningPayload))
		}
	}
	return out
}

func newTestSampler(t *testing.T, bus event.Bus, cfg perf.Config) *perf.Sampler {
	t.Helper()
	cfg.DisableSweepLoop = true
	s := perf.NewSampler(bus, cfg)
	t.Cleanup(s.Close)
	return s
}

func TestStartEndMeasuresDuration(t *testing.T) {
	s := newTestSampler(t, nil, perf.Config{})

	start := s.RecordStart("w1", "extract")
	require.True(t, start.Sampled)

	time.Sleep(20 * time.Millisecond)

	end := s.RecordEnd("w1", "extract")
	require.True(t, end.Sampled)
	require.True(t, end.Found)
	assert.GreaterOrEqual(t, end.Duration, 20*time.Millisecond)
	assert.Less(t, end.Duration, time.Second)

	stats := s.Stats()
	assert.Equal(t, int64(1), stats.TotalCompleted)
	assert.Equal(t, 0, stats.Active)
}

func TestSlowProcessingWarning(t *testing.T) {
	bus := &warnBus{}
	s := newTestSampler(t, bus, perf.Config{EventProcessingTime: 50 * time.Millisecond})

	s.RecordStart("slow", "export")
	time.Sleep(80 * time.Millisecond)
	s.RecordEnd("slow", "export")

	warnings := bus.warnings()
	require.Len(t, warnings, 1, "exactly one warning, emitted immediately")
	w := warnings[0]
	assert.Equal(t, perf.WarnSlowProcessing, w.Kind)
	assert.Equal(t, "slow", w.WorkID)
	assert.InDelta(t, 80, w.ProcessingTimeMs, 60, "payload must carry the measured time")

	// A fast unit emits nothing.
	s.RecordStart("fast", "export")
	s.RecordEnd("fast", "export")
	assert.Len(t, bus.warnings(), 1)
}

func TestHighActiveCountWarning(t *testing.T) {
	bus := &warnBus{}
	s := newTestSampler(t, bus, perf.Config{ActiveEventCount: 2})

	s.RecordStart("a", "x")
	s.RecordStart("b", "x")
	assert.Empty(t, bus.warnings())

	s.RecordStart("c", "x")
	warnings := bus.warnings()
	require.Len(t, warnings, 1)
	assert.Equal(t, perf.WarnHighActiveCount, warnings[0].Kind)
	assert.Equal(t, 3, warnings[0].ActiveCount)
}

func TestRecordEndUnknownID(t *testing.T) {
	s := newTestSampler(t, nil, perf.Config{})

	res := s.RecordEnd("never-started", "x")
	assert.True(t, res.Sampled)
	assert.False(t, res.Found, "unknown id must report not found")
	assert.Zero(t, res.Duration, "no duration may be fabricated")

	stats := s.Stats()
	assert.Zero(t, stats.TotalCompleted)
	assert.Zero(t, stats.Records)
}

func TestRecordFailure(t *testing.T) {
	s := newTestSampler(t, nil, perf.Config{})

	s.RecordStart("w", "save")
	res := s.RecordFailure("w", "save", errors.New("storage full"))
	require.True(t, res.Found)
	assert.True(t, res.Failed)

	stats := s.Stats()
	assert.Equal(t, int64(1), stats.TotalFailed)
	assert.Zero(t, stats.TotalCompleted)

	rep := s.Report()
	require.Len(t, rep.Summary.Recent, 1)
	assert.True(t, rep.Summary.Recent[0].Failed)
}

func TestSamplingRateZeroBookkeeping(t *testing.T) {
	draws := 0
	s := newTestSampler(t, nil, perf.Config{
		SamplingRate: 0.5,
		Rand:         func() float64 { draws++; return 0.9 }, // always above rate
	})

	start := s.RecordStart("w", "x")
	assert.False(t, start.Sampled, "unsampled calls are acknowledged without bookkeeping")

	end := s.RecordEnd("w", "x")
	assert.False(t, end.Found)

	stats := s.Stats()
	assert.Zero(t, stats.TotalStarted)
	assert.Zero(t, stats.Active)
	assert.Equal(t, 1, draws, "only the start draws a sampling decision")
}

func TestSampledStartAlwaysFinishes(t *testing.T) {
	// Draw low once so the start is sampled, then high forever. The
	// completion must still match its start instead of leaving the
	// unit behind as an orphan.
	draws := 0
	s := newTestSampler(t, nil, perf.Config{
		SamplingRate: 0.5,
		Rand: func() float64 {
			draws++
			if draws == 1 {
				return 0.1
			}
			return 0.9
		},
	})

	require.True(t, s.RecordStart("w", "x").Sampled)

	end := s.RecordEnd("w", "x")
	require.True(t, end.Found)

	stats := s.Stats()
	assert.Equal(t, int64(1), stats.TotalCompleted)
	assert.Zero(t, stats.Active)
	assert.Zero(t, stats.TotalOrphaned)
}

func TestRollingAverageIncremental(t *testing.T) {
	s := newTestSampler(t, nil, perf.Config{})

	for i := 0; i < 5; i++ {
		s.RecordStart("w", "x")
		time.Sleep(5 * time.Millisecond)
		s.RecordEnd("w", "x")
	}

	stats := s.Stats()
	assert.Greater(t, stats.AverageDuration, time.Duration(0))
	assert.Less(t, stats.AverageDuration, time.Second)
}

func TestRecordHistoryCapped(t *testing.T) {
	s := newTestSampler(t, nil, perf.Config{MaxRecords: 3})

	for i := 0; i < 5; i++ {
		id := string(rune('a' + i))
		s.RecordStart(id, "x")
		s.RecordEnd(id, "x")
	}

	rep := s.Report()
	require.Len(t, rep.Summary.Recent, 3)
	// Most recent first.
	assert.Equal(t, "e", rep.Summary.Recent[0].WorkID)
	assert.Equal(t, "c", rep.Summary.Recent[2].WorkID)
}

func TestSweepOrphans(t *testing.T) {
	s := newTestSampler(t, nil, perf.Config{EventTimeout: 20 * time.Millisecond})

	s.RecordStart("old", "x")
	time.Sleep(40 * time.Millisecond)
	s.RecordStart("new", "x")

	removed := s.SweepOrphans()
	assert.Equal(t, 1, removed)

	stats := s.Stats()
	assert.Equal(t, 1, stats.Active)
	assert.Equal(t, int64(1), stats.TotalOrphaned)
	assert.Zero(t, stats.Records, "abandoned units are not recorded as slow completions")

	// The orphaned unit is gone for good.
	res := s.RecordEnd("old", "x")
	assert.False(t, res.Found)
}

func TestReportShape(t *testing.T) {
	s := newTestSampler(t, nil, perf.Config{})

	s.RecordStart("w", "x")
	s.RecordEnd("w", "x")

	rep := s.Report()
	assert.Equal(t, int64(1), rep.Summary.TotalStarted)
	assert.NotZero(t, rep.Memory.SysBytes)
	assert.Greater(t, rep.Uptime, time.Duration(0))
}

func TestConcurrentRecording(t *testing.T) {
	s := newTestSampler(t, nil, perf.Config{MaxRecords: 1000, ActiveEventCount: 10000})

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				id := string(rune('a'+g)) + string(rune('0'+i%10))
				s.RecordStart(id, "x")
				s.RecordEnd(id, "x")
			}
		}(g)
	}
	wg.Wait()

	stats := s.Stats()
	assert.Equal(t, stats.TotalStarted, stats.TotalCompleted+stats.TotalFailed,
		"every sampled start must resolve")
}

func TestConsumerRoutesWorkTopics(t *testing.T) {
	s := newTestSampler(t, nil, perf.Config{})
	c := perf.NewConsumer(s)

	ctx := context.Background()
	require.NoError(t, c.Handle(ctx, event.New(event.TopicWorkStarted, "p",
		event.WorkStartedPayload{WorkID: "w1", WorkType: "extract"})))
	require.NoError(t, c.Handle(ctx, event.New(event.TopicWorkCompleted, "p",
		event.WorkCompletedPayload{WorkID: "w1", WorkType: "extract"})))
	require.NoError(t, c.Handle(ctx, event.New(event.TopicWorkStarted, "p",
		event.WorkStartedPayload{WorkID: "w2", WorkType: "save"})))
	require.NoError(t, c.Handle(ctx, event.New(event.TopicWorkFailed, "p",
		event.WorkFailedPayload{WorkID: "w2", WorkType: "save", Error: "boom"})))

	stats := s.Stats()
	assert.Equal(t, int64(1), stats.TotalCompleted)
	assert.Equal(t, int64(1), stats.TotalFailed)

	err := c.Handle(ctx, event.New("OTHER.TOPIC", "p", nil))
	require.Error(t, err)
	assert.True(t, errors.Is(err, event.ErrUnsupportedEvent))
}
