package track

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidFilter is returned when a query filter or option cannot be
// interpreted. The wrapping error names the offending key.
var ErrInvalidFilter = errors.New("track: invalid filter")

// timeTolerance widens both time bounds so that events recorded within
// one second of a boundary still match. Clock skew between producers
// makes exact boundary comparison unreliable.
const timeTolerance = time.Second

// Filters narrows a query. Zero fields match everything.
type Filters struct {
	Type   string
	Source string
	From   time.Time
	To     time.Time

	// Data matches dot-path keys against values inside event data,
	// e.g. {"user.id": 42}.
	Data map[string]any
}

// QueryOptions shape the result set after filtering.
type QueryOptions struct {
	SortBy   string
	SortDesc bool
	Limit    int
	Page     int
	PageSize int
}

// Pagination describes the page window of a paginated result.
type Pagination struct {
	Page         int `json:"page"`
	PageSize     int `json:"page_size"`
	TotalPages   int `json:"total_pages"`
	TotalRecords int `json:"total_records"`
}

// QueryResult is a filtered, ordered view over tracked events.
type QueryResult struct {
	Results    []TrackedEvent `json:"results"`
	Total      int            `json:"total"`
	Pagination *Pagination    `json:"pagination,omitempty"`
}

func (f Filters) matches(evt TrackedEvent) bool {
	if f.Type != "" && evt.Type != f.Type {
		return false
	}
	if f.Source != "" && evt.Source != f.Source {
		return false
	}
	if !f.From.IsZero() && evt.Timestamp.Before(f.From.Add(-timeTolerance)) {
		return false
	}
	if !f.To.IsZero() && evt.Timestamp.After(f.To.Add(timeTolerance)) {
		return false
	}
	for path, want := range f.Data {
		got, ok := dataPathValue(evt.Data, path)
		if !ok || !valuesEqual(got, want) {
			return false
		}
	}
	return true
}

// FiltersFromMap builds Filters from a loosely typed payload, such as
// the data map of a query request event. Unknown keys and wrongly
// typed values are rejected.
func FiltersFromMap(raw map[string]any) (Filters, error) {
	var f Filters
	for key, value := range raw {
		switch key {
		case "type":
			s, ok := value.(string)
			if !ok {
				return Filters{}, fmt.Errorf("%w: %q must be a string", ErrInvalidFilter, key)
			}
			f.Type = s
		case "source":
			s, ok := value.(string)
			if !ok {
				return Filters{}, fmt.Errorf("%w: %q must be a string", ErrInvalidFilter, key)
			}
			f.Source = s
		case "from":
			t, err := parseTime(value)
			if err != nil {
				return Filters{}, fmt.Errorf("%w: %q: %v", ErrInvalidFilter, key, err)
			}
			f.From = t
		case "to":
			t, err := parseTime(value)
			if err != nil {
				return Filters{}, fmt.Errorf("%w: %q: %v", ErrInvalidFilter, key, err)
			}
			f.To = t
		case "data":
			m, ok := value.(map[string]any)
			if !ok {
				return Filters{}, fmt.Errorf("%w: %q must be an object", ErrInvalidFilter, key)
			}
			f.Data = m
		default:
			return Filters{}, fmt.Errorf("%w: unknown key %q", ErrInvalidFilter, key)
		}
	}
	return f, nil
}

// OptionsFromMap builds QueryOptions from a loosely typed payload.
func OptionsFromMap(raw map[string]any) (QueryOptions, error) {
	var o QueryOptions
	for key, value := range raw {
		switch key {
		case "sort_by":
			s, ok := value.(string)
			if !ok {
				return QueryOptions{}, fmt.Errorf("%w: %q must be a string", ErrInvalidFilter, key)
			}
			o.SortBy = s
		case "sort_order":
			s, ok := value.(string)
			if !ok || (s != "asc" && s != "desc") {
				return QueryOptions{}, fmt.Errorf("%w: %q must be \"asc\" or \"desc\"", ErrInvalidFilter, key)
			}
			o.SortDesc = s == "desc"
		case "limit":
			n, ok := toInt(value)
			if !ok || n < 0 {
				return QueryOptions{}, fmt.Errorf("%w: %q must be a non-negative integer", ErrInvalidFilter, key)
			}
			o.Limit = n
		case "page":
			n, ok := toInt(value)
			if !ok || n < 1 {
				return QueryOptions{}, fmt.Errorf("%w: %q must be a positive integer", ErrInvalidFilter, key)
			}
			o.Page = n
		case "page_size":
			n, ok := toInt(value)
			if !ok || n < 1 {
				return QueryOptions{}, fmt.Errorf("%w: %q must be a positive integer", ErrInvalidFilter, key)
			}
			o.PageSize = n
		default:
			return QueryOptions{}, fmt.Errorf("%w: unknown key %q", ErrInvalidFilter, key)
		}
	}
	return o, nil
}

func parseTime(value any) (time.Time, error) {
	switch v := value.(type) {
	case time.Time:
		return v, nil
	case string:
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, fmt.Errorf("not an RFC3339 timestamp")
		}
		return t, nil
	default:
		return time.Time{}, fmt.Errorf("must be an RFC3339 string or time.Time")
	}
}

func toInt(value any) (int, bool) {
	switch v := value.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		if v != float64(int(v)) {
			return 0, false
		}
		return int(v), true
	default:
		return 0, false
	}
}
