package face

import "math"

// DefaultThreshold is the acceptance threshold for 128-d dlib-style
// descriptors. A match is accepted only if its distance is strictly below it.
const DefaultThreshold = 0.5

// Reference groups every enrolled embedding of one identity.
type Reference struct {
	Identity   string
	Embeddings []Embedding
}

// Match is the closest stored embedding found for a live embedding.
type Match struct {
	Identity string
	Distance float64
}

// Confidence is the reporting transform of the match distance.
func (m Match) Confidence() int {
	return Confidence(m.Distance)
}

// FindBestMatch scans every embedding of every identity and returns the global
// minimum-distance pair. It reports false when refs holds no embeddings.
//
// When several embeddings share the minimum distance the first one seen wins.
// Store enumeration order is unspecified, so callers must not depend on which
// of the tied identities is returned.
func FindBestMatch(live Embedding, refs []Reference) (Match, bool) {
	best := Match{Distance: math.Inf(1)}
	found := false

	for _, ref := range refs {
		for _, emb := range ref.Embeddings {
			d := Distance(live, emb)
			if math.IsInf(d, 1) {
				continue
			}
			if !found || d < best.Distance {
				best = Match{Identity: ref.Identity, Distance: d}
				found = true
			}
		}
	}

	return best, found
}

// Matcher applies the acceptance threshold on top of FindBestMatch.
type Matcher struct {
	Threshold float64
}

// NewMatcher returns a Matcher; a non-positive threshold selects DefaultThreshold.
func NewMatcher(threshold float64) Matcher {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return Matcher{Threshold: threshold}
}

// Match returns the best match and whether it is accepted. The returned Match
// is populated even when rejected so callers can report the near miss.
func (m Matcher) Match(live Embedding, refs []Reference) (Match, bool) {
	best, ok := FindBestMatch(live, refs)
	if !ok {
		return Match{}, false
	}
	return best, m.Accepts(best.Distance)
}

// Accepts reports whether distance is below the threshold.
func (m Matcher) Accepts(distance float64) bool {
	return distance < m.Threshold
}

// Confidence converts a distance into a percentage: round((1 - d) * 100).
// Distances of 1 or more give values at or below zero; see DisplayConfidence.
func Confidence(distance float64) int {
	return int(math.Round((1 - distance) * 100))
}

// DisplayConfidence is Confidence clamped to [0, 100].
func DisplayConfidence(distance float64) int {
	c := Confidence(distance)
	if c < 0 {
		return 0
	}
	if c > 100 {
		return 100
	}
	return c
}
