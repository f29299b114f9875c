// Package scoring defines the pluggable similarity scorer the modality
// engines use. Concrete ML models live behind this interface; the protocol
// logic never depends on a specific model.
package scoring

import (
	"fmt"
	"math"
)

// Function scores the similarity of two feature vectors on [0,1], where 1 is
// an exact match.
type Function interface {
	Score(a, b []float64) (float64, error)
}

// Cosine scores vectors by cosine similarity, clamped to [0,1]. This is the
// default scorer.
type Cosine struct{}

func (Cosine) Score(a, b []float64) (float64, error) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, fmt.Errorf("vector dimensions mismatch: %d vs %d", len(a), len(b))
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0, fmt.Errorf("zero vector has no direction")
	}
	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	// Negative cosine means "opposite", which for our purposes is just a
	// non-match.
	return clamp01(sim), nil
}

// Euclidean scores vectors by inverted, normalized euclidean distance.
// Available as a drop-in alternative for extractors whose embedding space is
// not angle-calibrated.
type Euclidean struct{}

func (Euclidean) Score(a, b []float64) (float64, error) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, fmt.Errorf("vector dimensions mismatch: %d vs %d", len(a), len(b))
	}
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	dist := math.Sqrt(sum)
	return clamp01(1 / (1 + dist)), nil
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
