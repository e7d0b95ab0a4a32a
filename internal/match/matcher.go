// Package match compares face embeddings against a gallery snapshot.
package match

import (
	"math"

	"github.com/ayusman/memora/internal/gallery"
)

// DefaultThreshold is the largest Euclidean distance at which two dlib
// embeddings are taken to be the same person. Matches at exactly the
// threshold are accepted.
const DefaultThreshold = 0.6

// ErrEmptyGallery is returned when matching against a gallery with no entries.
var ErrEmptyGallery = gallery.ErrEmptyGallery

// Decision is the outcome of matching one query embedding.
//
// Identity, Index and Distance always describe the closest entry. Accepted
// reports whether that entry is also within the threshold; a closest entry
// that is too far away is a miss, not a weak match.
type Decision struct {
	Identity string  `json:"identity"`
	Index    int     `json:"index"`
	Distance float64 `json:"distance"`
	Accepted bool    `json:"accepted"`
}

// Matcher finds the nearest gallery entry for a query embedding.
type Matcher struct {
	threshold float64
}

// NewMatcher creates a Matcher with the given acceptance threshold.
// A non-positive threshold selects DefaultThreshold.
func NewMatcher(threshold float64) *Matcher {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Matcher{threshold: threshold}
}

// Threshold returns the acceptance threshold.
func (m *Matcher) Threshold() float64 {
	return m.threshold
}

// Match returns the decision for query against g. The nearest entry is the
// first index with the minimum distance. Acceptance is checked separately
// against the compatibility vector at that index.
func (m *Matcher) Match(g *gallery.Gallery, query []float32) (Decision, error) {
	if g.Len() == 0 {
		return Decision{Index: -1}, ErrEmptyGallery
	}

	distances := Distances(g, query)
	compatible := Compatible(distances, m.threshold)
	best := Argmin(distances)

	return Decision{
		Identity: g.Identity(best),
		Index:    best,
		Distance: distances[best],
		Accepted: compatible[best],
	}, nil
}

// Distances returns the Euclidean distance from query to every entry of g.
func Distances(g *gallery.Gallery, query []float32) []float64 {
	out := make([]float64, g.Len())
	for i := range out {
		out[i] = EuclideanDistance(g.Embedding(i), query)
	}
	return out
}

// Compatible flags each distance that is within threshold.
func Compatible(distances []float64, threshold float64) []bool {
	out := make([]bool, len(distances))
	for i, d := range distances {
		out[i] = d <= threshold
	}
	return out
}

// Argmin returns the first index holding the minimum value, or -1 for an
// empty slice. NaN values never win.
func Argmin(values []float64) int {
	best := -1
	for i, v := range values {
		if math.IsNaN(v) {
			continue
		}
		if best == -1 || v < values[best] {
			best = i
		}
	}
	if best == -1 && len(values) > 0 {
		return 0
	}
	return best
}

// EuclideanDistance returns the L2 distance between a and b.
// Vectors of different length are infinitely far apart.
func EuclideanDistance(a, b []float32) float64 {
	if len(a) != len(b) {
		return math.Inf(1)
	}

	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}
