// Package diagnose implements the diagnostic routing analyzer:
// fuzzy-match classification of unknown message types and heuristic
// diagnosis of routing failures. Every call is stateless with respect
// to the inputs; the only internal state is a bounded memoization
// cache.
package diagnose

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/randalmurphal/vigil/pkg/vigil/observability"
)

// Suggestion is the analyzer's verdict on one unknown message type.
type Suggestion struct {
	// UnknownType is the type that could not be routed.
	UnknownType string `json:"unknown_type"`

	// BestMatch is the closest known type, empty when nothing clears
	// the match threshold.
	BestMatch string `json:"best_match,omitempty"`

	// Similarity is the best match's normalized similarity.
	Similarity float64 `json:"similarity"`

	// Steps are the remediation steps, generic ones first.
	Steps []string `json:"steps"`
}

// Text renders the suggestion as one line for logs and events.
func (s Suggestion) Text() string {
	return strings.Join(s.Steps, "; ")
}

// Config configures the analyzer.
type Config struct {
	// CacheSize bounds the suggestion memoization cache.
	// Default: 128
	CacheSize int

	// Logger receives analyzer logs. Nil disables logging.
	Logger *slog.Logger
}

// DefaultConfig provides reasonable defaults.
var DefaultConfig = Config{
	CacheSize: 128,
}

// Analyzer classifies unknown message types and routing failures.
type Analyzer struct {
	logger *slog.Logger
	cache  *lru.Cache[string, Suggestion]
}

// NewAnalyzer creates an analyzer.
func NewAnalyzer(cfg Config) *Analyzer {
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = DefaultConfig.CacheSize
	}

	// lru.New only fails on size <= 0, which is guarded above.
	cache, _ := lru.New[string, Suggestion](cfg.CacheSize)

	return &Analyzer{
		logger: observability.EnrichLogger(cfg.Logger, "diagnose"),
		cache:  cache,
	}
}

// ClassifyUnknownType finds the best fuzzy match for an unknown type
// among the available ones. A candidate is proposed only when its
// similarity exceeds MatchThreshold; ties break by first-encountered
// order. Results are memoized per (unknown, available-set) pair.
func (a *Analyzer) ClassifyUnknownType(unknown string, available []string) Suggestion {
	key := cacheKey(unknown, available)
	if cached, ok := a.cache.Get(key); ok {
		return cached
	}

	best, score := BestMatch(unknown, available)

	s := Suggestion{
		UnknownType: unknown,
		Steps: []string{
			fmt.Sprintf("no consumer is registered for type %q", unknown),
			"check the producer for typos in the type constant",
			"confirm the consumer registered its topics before the first publish",
		},
	}

	if score > MatchThreshold {
		s.BestMatch = best
		s.Similarity = score
		s.Steps = append(s.Steps, fmt.Sprintf("did you mean %q?", best))
	} else if a.logger != nil {
		a.logger.Debug("no candidate cleared the match threshold",
			slog.String("unknown_type", unknown),
			slog.Float64("best_similarity", score),
		)
	}

	a.cache.Add(key, s)
	return s
}

// AnalyzeRoutingFailure classifies raw routing error text against the
// fixed rule table. Unmatched text lands in the UNKNOWN_ROUTING_ERROR
// bucket with no specific suggestions.
func (a *Analyzer) AnalyzeRoutingFailure(source, target, rawError string) RoutingDiagnosis {
	lower := strings.ToLower(rawError)

	for _, rule := range routingRules {
		if strings.Contains(lower, rule.substr) {
			return rule.classify(source, target)
		}
	}

	return RoutingDiagnosis{
		Issue:  IssueUnknown,
		Source: source,
		Target: target,
	}
}

// CacheLen returns the number of memoized suggestions.
func (a *Analyzer) CacheLen() int {
	return a.cache.Len()
}

// cacheKey digests the unknown type together with the available set in
// its given order, so order-dependent tie results never collide.
func cacheKey(unknown string, available []string) string {
	h := sha256.New()
	h.Write([]byte(unknown))
	for _, t := range available {
		h.Write([]byte{0})
		h.Write([]byte(t))
	}
	return hex.EncodeToString(h.Sum(nil))
}
