package track_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/vigil/pkg/vigil/event"
	"github.com/randalmurphal/vigil/pkg/vigil/track"
)

func seedTracker(t *testing.T) *track.Tracker {
	t.Helper()
	tr := newTestTracker(t, track.Config{})
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	seed := []struct {
		eventType string
		source    string
		offset    time.Duration
		data      map[string]any
	}{
		{"WORK.STARTED", "extractor", 0, map[string]any{"id": "a", "user": map[string]any{"id": 42}}},
		{"WORK.COMPLETED", "extractor", time.Minute, map[string]any{"id": "a", "duration": 120}},
		{"WORK.STARTED", "renderer", 2 * time.Minute, map[string]any{"id": "b", "user": map[string]any{"id": 7}}},
		{"WORK.FAILED", "renderer", 3 * time.Minute, map[string]any{"id": "b", "duration": 30}},
		{"WORK.STARTED", "extractor", 4 * time.Minute, map[string]any{"id": "c", "duration": 90}},
	}
	for _, s := range seed {
		evt := event.New(s.eventType, s.source, s.data, event.WithTimestamp(base.Add(s.offset)))
		require.NoError(t, tr.Record(context.Background(), evt))
	}
	return tr
}

func TestQueryFiltersByTypeAndSource(t *testing.T) {
	tr := seedTracker(t)
	ctx := context.Background()

	result, err := tr.Query(ctx, track.Filters{Type: "WORK.STARTED"}, track.QueryOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, result.Total)

	result, err = tr.Query(ctx, track.Filters{Type: "WORK.STARTED", Source: "renderer"}, track.QueryOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, result.Total)
	assert.Equal(t, "b", result.Results[0].Data["id"])
}

func TestQueryFiltersByDataPath(t *testing.T) {
	tr := seedTracker(t)

	// Filter written as int must match data decoded as float64.
	result, err := tr.Query(context.Background(),
		track.Filters{Data: map[string]any{"user.id": 42}}, track.QueryOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, result.Total)
	assert.Equal(t, "a", result.Results[0].Data["id"])
}

func TestQueryTimeBoundsHaveTolerance(t *testing.T) {
	tr := seedTracker(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	// From half a second after the first event still matches it.
	result, err := tr.Query(ctx, track.Filters{From: base.Add(500 * time.Millisecond)}, track.QueryOptions{})
	require.NoError(t, err)
	assert.Equal(t, 5, result.Total)

	// Two seconds past the boundary excludes it.
	result, err = tr.Query(ctx, track.Filters{From: base.Add(2 * time.Second)}, track.QueryOptions{})
	require.NoError(t, err)
	assert.Equal(t, 4, result.Total)

	result, err = tr.Query(ctx, track.Filters{To: base.Add(time.Minute)}, track.QueryOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Total)
}

func TestQuerySortAndLimit(t *testing.T) {
	tr := seedTracker(t)
	ctx := context.Background()

	result, err := tr.Query(ctx,
		track.Filters{Data: map[string]any{}},
		track.QueryOptions{SortBy: "timestamp", Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, result.Total)
	require.Len(t, result.Results, 2)
	assert.Equal(t, "WORK.STARTED", result.Results[0].Type)
	assert.True(t, result.Results[0].Timestamp.Before(result.Results[1].Timestamp))

	result, err = tr.Query(ctx, track.Filters{}, track.QueryOptions{SortBy: "duration", SortDesc: true})
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(result.Results), 3)
	assert.EqualValues(t, 120, result.Results[0].Data["duration"])
	assert.EqualValues(t, 90, result.Results[1].Data["duration"])
}

func TestQueryPagination(t *testing.T) {
	tr := seedTracker(t)

	result, err := tr.Query(context.Background(), track.Filters{},
		track.QueryOptions{Page: 2, PageSize: 2})
	require.NoError(t, err)

	require.NotNil(t, result.Pagination)
	assert.Equal(t, 2, result.Pagination.Page)
	assert.Equal(t, 2, result.Pagination.PageSize)
	assert.Equal(t, 3, result.Pagination.TotalPages)
	assert.Equal(t, 5, result.Pagination.TotalRecords)
	assert.Len(t, result.Results, 2)

	// Page past the end is empty, not an error.
	result, err = tr.Query(context.Background(), track.Filters{},
		track.QueryOptions{Page: 9, PageSize: 2})
	require.NoError(t, err)
	assert.Empty(t, result.Results)
}

func TestFiltersFromMap(t *testing.T) {
	f, err := track.FiltersFromMap(map[string]any{
		"type":   "WORK.STARTED",
		"source": "extractor",
		"from":   "2026-08-01T12:00:00Z",
		"data":   map[string]any{"id": "a"},
	})
	require.NoError(t, err)
	assert.Equal(t, "WORK.STARTED", f.Type)
	assert.Equal(t, 2026, f.From.Year())

	cases := map[string]map[string]any{
		"unknown key":    {"bogus": 1},
		"type not text":  {"type": 7},
		"bad timestamp":  {"from": "yesterday"},
		"data not a map": {"data": "x=1"},
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := track.FiltersFromMap(raw)
			assert.ErrorIs(t, err, track.ErrInvalidFilter)
		})
	}
}

func TestOptionsFromMap(t *testing.T) {
	o, err := track.OptionsFromMap(map[string]any{
		"sort_by":    "timestamp",
		"sort_order": "desc",
		"limit":      float64(10),
		"page":       float64(2),
		"page_size":  float64(5),
	})
	require.NoError(t, err)
	assert.Equal(t, "timestamp", o.SortBy)
	assert.True(t, o.SortDesc)
	assert.Equal(t, 10, o.Limit)
	assert.Equal(t, 2, o.Page)
	assert.Equal(t, 5, o.PageSize)

	cases := map[string]map[string]any{
		"bad sort order": {"sort_order": "sideways"},
		"negative limit": {"limit": -1},
		"zero page":      {"page": 0},
		"fractional":     {"page_size": 2.5},
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := track.OptionsFromMap(raw)
			assert.ErrorIs(t, err, track.ErrInvalidFilter)
		})
	}
}
