package track

import "strings"

// redactedPlaceholder replaces values stored under sensitive keys.
const redactedPlaceholder = "[REDACTED]"

// sensitiveMarkers flag a key as sensitive when any of them appears
// in the lowercased key name.
var sensitiveMarkers = []string{"password", "token", "secret", "key", "auth"}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, marker := range sensitiveMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// redactMap returns a deep copy of data with values under sensitive
// keys replaced by a placeholder. Nested maps and slices are walked;
// the input is never mutated.
func redactMap(data map[string]any) map[string]any {
	if data == nil {
		return nil
	}
	out := make(map[string]any, len(data))
	for key, value := range data {
		if isSensitiveKey(key) {
			out[key] = redactedPlaceholder
			continue
		}
		out[key] = redactValue(value)
	}
	return out
}

func redactValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		return redactMap(v)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = redactValue(item)
		}
		return out
	default:
		return value
	}
}
