package gallery

import (
	"errors"
	"math"
)

// ErrDimensionMismatch is returned when two embeddings differ in length.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// CosineSimilarity returns the cosine similarity of a and b in [-1, 1].
// A zero vector has similarity 0 with everything.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) || len(a) == 0 {
		return 0, ErrDimensionMismatch
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
	// Clamp to [-1, 1] to handle floating point errors
	return max(-1, min(1, similarity)), nil
}

// VerificationRatio returns the fraction of gallery vectors whose cosine
// similarity to query is at least threshold. An empty gallery yields 0.
func VerificationRatio(query []float32, gallery [][]float32, threshold float64) (float64, error) {
	if len(gallery) == 0 {
		return 0, nil
	}

	hits := 0
	for _, ref := range gallery {
		sim, err := CosineSimilarity(query, ref)
		if err != nil {
			return 0, err
		}
		if sim >= threshold {
			hits++
		}
	}
	return float64(hits) / float64(len(gallery)), nil
}
