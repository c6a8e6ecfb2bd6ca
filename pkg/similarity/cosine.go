// Package similarity scores face embeddings against each other.
package similarity

import (
	"errors"
	"fmt"
	"math"
)

// ErrDimensionMismatch is returned when two vectors have different lengths.
var ErrDimensionMismatch = errors.New("embedding dimensions do not match")

// Score returns the cosine similarity of a and b in [-1, 1].
// A zero-norm vector scores 0.
func Score(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}

	score := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	return math.Max(-1, math.Min(1, score)), nil
}

// Scorer applies a match threshold to cosine scores.
type Scorer struct {
	Threshold float64
}

// NewScorer returns a Scorer with the given threshold.
func NewScorer(threshold float64) Scorer {
	return Scorer{Threshold: threshold}
}

// IsMatch reports whether score meets the threshold. Equality counts as a match.
func (s Scorer) IsMatch(score float64) bool {
	return score >= s.Threshold
}

// Compare scores the pair and applies the threshold.
func (s Scorer) Compare(stored, live []float32) (float64, bool, error) {
	score, err := Score(stored, live)
	if err != nil {
		return 0, false, err
	}
	return score, s.IsMatch(score), nil
}
