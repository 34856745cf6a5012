package rag

import (
	"context"

	"rhema/internal/models"
	"rhema/internal/stream"
)

// Embedder turns text into a fixed-length vector. Failures wrap ErrEmbeddingUnavailable.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// Matcher returns stored chunks with similarity >= threshold, most similar first,
// at most topK of them. No match is an empty slice, not an error.
type Matcher interface {
	Match(ctx context.Context, query []float32, threshold float64, topK int) ([]models.ScoredChunk, error)
}

// Generator streams a completion for an assembled prompt.
type Generator interface {
	Stream(ctx context.Context, prompt string) (stream.Reader, error)
}

// ProfileStore looks up a caller's persona fields. A missing profile is (nil, nil).
type ProfileStore interface {
	Get(ctx context.Context, userID string) (*models.UserProfile, error)
}
