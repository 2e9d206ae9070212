package diagnose

import "github.com/agnivade/levenshtein"

// MatchThreshold is the minimum similarity for a candidate to be
// proposed as a best match. Fixed by design: candidates at or below
// it are treated as unrelated.
const MatchThreshold = 0.5

// Similarity returns a normalized similarity in [0,1] between two
// strings: 1 minus the Levenshtein distance divided by the longer
// string's length. Two empty strings are identical.
func Similarity(a, b string) float64 {
	if a == b {
		return 1
	}

	longer := len([]rune(a))
	if l := len([]rune(b)); l > longer {
		longer = l
	}
	if longer == 0 {
		return 1
	}

	dist := levenshtein.ComputeDistance(a, b)
	return 1 - float64(dist)/float64(longer)
}

// BestMatch returns the candidate most similar to unknown along with
// its similarity. Ties break in favor of the earliest candidate.
// Returns ("", 0) for an empty candidate list.
func BestMatch(unknown string, candidates []string) (string, float64) {
	best := ""
	bestScore := 0.0

	for _, c := range candidates {
		score := Similarity(unknown, c)
		if score > bestScore {
			best = c
			bestScore = score
		}
	}

	return best, bestScore
}
