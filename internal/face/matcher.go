package face

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// Scores in [threshold-BoostWindow, threshold) get BoostAmount added before
// the threshold comparison is repeated.
const (
	BoostWindow = 0.05
	BoostAmount = 0.02
)

var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Match is an accepted comparison against the candidate at Index.
type Match struct {
	Index      int
	Similarity float64
	Raw        float64
	Boosted    bool
}

type Result struct {
	// Matches are sorted by descending Similarity.
	Matches []Match
	// MaxSimilarity is the best accepted similarity, 0 when nothing was accepted.
	MaxSimilarity float64
	// Closest is the best raw similarity among all comparable candidates,
	// accepted or not. ClosestIndex is -1 when no candidate was comparable.
	Closest      float64
	ClosestIndex int
}

// Best returns the top match.
func (r Result) Best() (Match, bool) {
	if len(r.Matches) == 0 {
		return Match{}, false
	}
	return r.Matches[0], true
}

type Matcher struct {
	dim int
}

// NewMatcher returns a cosine matcher expecting vectors of length dim.
// dim <= 0 accepts any query length.
func NewMatcher(dim int) *Matcher {
	return &Matcher{dim: dim}
}

func (m *Matcher) Dim() int { return m.dim }

// Match compares query against every candidate. Candidates with a different
// length or a zero norm are skipped.
func (m *Matcher) Match(query []float32, candidates [][]float32, threshold float64) (Result, error) {
	res := Result{ClosestIndex: -1}
	if len(query) == 0 || (m.dim > 0 && len(query) != m.dim) {
		return res, fmt.Errorf("%w: query has %d values, want %d", ErrDimensionMismatch, len(query), m.dim)
	}

	qNorm := norm(query)
	if qNorm == 0 {
		return res, nil
	}

	for i, cand := range candidates {
		if len(cand) != len(query) {
			continue
		}
		cNorm := norm(cand)
		if cNorm == 0 {
			continue
		}

		s := dot(query, cand) / (qNorm * cNorm)
		if res.ClosestIndex < 0 || s > res.Closest {
			res.Closest = s
			res.ClosestIndex = i
		}

		switch {
		case s >= threshold:
			res.Matches = append(res.Matches, Match{Index: i, Similarity: s, Raw: s})
		case s >= threshold-BoostWindow:
			if boosted := s + BoostAmount; boosted >= threshold {
				res.Matches = append(res.Matches, Match{Index: i, Similarity: boosted, Raw: s, Boosted: true})
			}
		}
	}

	sort.SliceStable(res.Matches, func(i, j int) bool {
		return res.Matches[i].Similarity > res.Matches[j].Similarity
	})
	if len(res.Matches) > 0 {
		res.MaxSimilarity = res.Matches[0].Similarity
	}
	return res, nil
}

// Cosine returns the cosine similarity of a and b, or false when the vectors
// differ in length or either has a zero norm.
func Cosine(a, b []float32) (float64, bool) {
	if len(a) != len(b) || len(a) == 0 {
		return 0, false
	}
	na, nb := norm(a), norm(b)
	if na == 0 || nb == 0 {
		return 0, false
	}
	return dot(a, b) / (na * nb), true
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func norm(v []float32) float64 {
	return math.Sqrt(dot(v, v))
}

// Level buckets a similarity score for display.
func Level(similarity float64) string {
	switch {
	case similarity >= 0.85:
		return "very_high"
	case similarity >= 0.75:
		return "high"
	case similarity >= 0.65:
		return "medium"
	case similarity >= 0.55:
		return "low"
	default:
		return "very_low"
	}
}
