package track

import (
	"strings"
	"time"
)

// dataPathValue walks a dot-separated path into the event's data map.
// Each segment must resolve to a nested map until the final segment.
func dataPathValue(data map[string]any, path string) (any, bool) {
	current := any(data)
	for _, segment := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[segment]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// valuesEqual compares a stored value against a filter value. Numeric
// types compare by value regardless of representation, so a filter
// written as int 42 matches data decoded from JSON as float64 42.
func valuesEqual(a, b any) bool {
	if af, aok := toFloat(a); aok {
		bf, bok := toFloat(b)
		return bok && af == bf
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case nil:
		return b == nil
	default:
		return false
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// sortValue resolves the sort key for an event. Known field names map
// to event fields; anything else is treated as a path into Data.
func sortValue(evt TrackedEvent, field string) any {
	switch field {
	case "type":
		return evt.Type
	case "source":
		return evt.Source
	case "id":
		return evt.ID
	case "timestamp":
		return evt.Timestamp
	case "recorded_at":
		return evt.RecordedAt
	default:
		v, _ := dataPathValue(evt.Data, field)
		return v
	}
}

// lessValue orders two sort keys. Missing values sort first, times
// chronologically, numbers numerically, strings lexically.
func lessValue(a, b any) bool {
	if a == nil {
		return b != nil
	}
	if b == nil {
		return false
	}
	if at, ok := a.(time.Time); ok {
		bt, ok := b.(time.Time)
		return ok && at.Before(bt)
	}
	if af, ok := toFloat(a); ok {
		bf, bok := toFloat(b)
		return bok && af < bf
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return as < bs
	}
	return false
}
