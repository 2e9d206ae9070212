package breaker

import "strings"

// Kind classifies a reported failure.
type Kind int

const (
	// KindUnknown is the fallback for unclassifiable failures.
	KindUnknown Kind = iota

	// KindValidation indicates malformed or rejected input.
	KindValidation

	// KindOperation indicates a business operation failure.
	KindOperation

	// KindTimeout indicates a deadline or watchdog expiry.
	KindTimeout

	// KindStorage indicates a persistence layer failure.
	KindStorage

	// KindDOM indicates a page structure the extractor could not read.
	KindDOM

	// KindFile indicates a file read/write failure.
	KindFile

	// KindPermission indicates a denied capability or grant.
	KindPermission

	// KindParse indicates unparseable data.
	KindParse

	// KindConnection indicates a network or messaging failure.
	KindConnection

	// KindConfig indicates invalid or missing configuration.
	KindConfig

	// KindRender indicates a UI rendering failure.
	KindRender

	// KindPerformance indicates a threshold breach reported as an error.
	KindPerformance
)

// String returns the kind's wire name.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "VALIDATION_ERROR"
	case KindOperation:
		return "OPERATION_ERROR"
	case KindTimeout:
		return "TIMEOUT_ERROR"
	case KindStorage:
		return "STORAGE_ERROR"
	case KindDOM:
		return "DOM_ERROR"
	case KindFile:
		return "FILE_ERROR"
	case KindPermission:
		return "PERMISSION_ERROR"
	case KindParse:
		return "PARSE_ERROR"
	case KindConnection:
		return "CONNECTION_ERROR"
	case KindConfig:
		return "CONFIG_ERROR"
	case KindRender:
		return "RENDER_ERROR"
	case KindPerformance:
		return "PERFORMANCE_ERROR"
	default:
		return "UNKNOWN_ERROR"
	}
}

// kindPatterns maps message substrings to kinds. Order matters: the
// first match wins, so more specific patterns come first.
var kindPatterns = []struct {
	substr string
	kind   Kind
}{
	{"validation", KindValidation},
	{"invalid", KindValidation},
	{"timed out", KindTimeout},
	{"timeout", KindTimeout},
	{"deadline exceeded", KindTimeout},
	{"quota", KindStorage},
	{"storage", KindStorage},
	{"database", KindStorage},
	{"element not found", KindDOM},
	{"selector", KindDOM},
	{"dom", KindDOM},
	{"file", KindFile},
	{"permission", KindPermission},
	{"denied", KindPermission},
	{"unexpected token", KindParse},
	{"parse", KindParse},
	{"unmarshal", KindParse},
	{"connection", KindConnection},
	{"network", KindConnection},
	{"receiving end", KindConnection},
	{"config", KindConfig},
	{"render", KindRender},
}

// MarshalJSON serializes the kind as its wire name.
func (k Kind) MarshalJSON() ([]byte, error) {
	return []byte(`"` + k.String() + `"`), nil
}

// UnmarshalJSON parses a wire name back into a kind.
func (k *Kind) UnmarshalJSON(data []byte) error {
	*k = KindFromString(strings.Trim(string(data), `"`))
	return nil
}

// KindFromString parses a wire kind name. Unknown names map to
// KindUnknown.
func KindFromString(s string) Kind {
	for k := KindUnknown; k <= KindPerformance; k++ {
		if k.String() == s {
			return k
		}
	}
	return KindUnknown
}

// KindFromMessage classifies a raw error message by substring
// heuristics. Unmatched messages are KindUnknown, never coerced into a
// known kind.
func KindFromMessage(message string) Kind {
	lower := strings.ToLower(message)
	for _, p := range kindPatterns {
		if strings.Contains(lower, p.substr) {
			return p.kind
		}
	}
	return KindUnknown
}

// Severity grades a failure's impact.
type Severity int

const (
	// SeverityLow failures are informational.
	SeverityLow Severity = iota

	// SeverityMedium failures degrade one operation.
	SeverityMedium

	// SeverityHigh failures degrade a component.
	SeverityHigh

	// SeverityCritical failures threaten the whole system and trigger
	// a system alert.
	SeverityCritical
)

// String returns the severity's wire name.
func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return "medium"
	}
}

// MarshalJSON serializes the severity as its wire name.
func (s Severity) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// UnmarshalJSON parses a wire name back into a severity.
func (s *Severity) UnmarshalJSON(data []byte) error {
	*s = SeverityFromString(strings.Trim(string(data), `"`))
	return nil
}

// SeverityFromString parses a wire severity name. Unknown names map to
// SeverityMedium.
func SeverityFromString(s string) Severity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low", "info":
		return SeverityLow
	case "medium", "warning":
		return SeverityMedium
	case "high", "error":
		return SeverityHigh
	case "critical", "fatal":
		return SeverityCritical
	default:
		return SeverityMedium
	}
}

// DefaultSeverity returns the severity assumed for a kind when the
// producer did not grade the failure itself.
func DefaultSeverity(k Kind) Severity {
	switch k {
	case KindValidation, KindRender, KindPerformance:
		return SeverityLow
	case KindTimeout, KindParse, KindDOM, KindFile:
		return SeverityMedium
	case KindStorage, KindConnection, KindOperation:
		return SeverityHigh
	case KindPermission, KindConfig:
		return SeverityCritical
	default:
		return SeverityMedium
	}
}
