// Package vectormath provides the similarity math used by the evaluator.
package vectormath

import (
	"fmt"
	"math"
)

// CosineSim computes the cosine similarity of two vectors. The result is in
// [-1, 1]; 1 means identical direction.
func CosineSim(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vector dimension mismatch: %d != %d", len(a), len(b))
	}
	if len(a) == 0 {
		return 0, fmt.Errorf("empty vectors")
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0, nil
	}

	similarity := dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
	// Clamp float drift.
	if similarity > 1 {
		similarity = 1
	} else if similarity < -1 {
		similarity = -1
	}
	return similarity, nil
}

// SimilarityScore maps cosine similarity onto [0, 1], the range used for
// evaluation scores.
func SimilarityScore(a, b []float32) (float64, error) {
	sim, err := CosineSim(a, b)
	if err != nil {
		return 0, err
	}
	if sim < 0 {
		return 0, nil
	}
	return sim, nil
}
