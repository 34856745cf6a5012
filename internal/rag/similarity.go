package rag

import (
	"fmt"
	"math"
	"slices"

	"rhema/internal/models"
)

const (
	DefaultMatchThreshold = 0.5
	DefaultMatchCount     = 5
)

// Cosine returns the cosine similarity of a and b. Zero vectors score 0.
func Cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), nil
}

// Rank scores candidates against query, drops those below threshold and keeps the
// topK best in non-increasing similarity order. Ties keep candidate order.
func Rank(query []float32, candidates []models.DocumentChunk, threshold float64, topK int) ([]models.ScoredChunk, error) {
	out := make([]models.ScoredChunk, 0)
	if topK <= 0 {
		return out, nil
	}
	for _, c := range candidates {
		sim, err := Cosine(query, c.Embedding)
		if err != nil {
			return nil, fmt.Errorf("chunk %d: %w", c.ID, err)
		}
		if sim < threshold {
			continue
		}
		out = append(out, models.ScoredChunk{DocumentChunk: c, Similarity: sim})
	}
	slices.SortStableFunc(out, func(x, y models.ScoredChunk) int {
		switch {
		case x.Similarity > y.Similarity:
			return -1
		case x.Similarity < y.Similarity:
			return 1
		default:
			return 0
		}
	})
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}
