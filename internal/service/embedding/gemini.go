package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"rhema/internal/rag"

	"google.golang.org/genai"
)

// MaxInputChars bounds a single embedding request.
const MaxInputChars = 8000

// contentEmbedder is the slice of genai.Models used here.
type contentEmbedder interface {
	EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error)
}

// GeminiEmbedder embeds text with a Gemini embedding model at a fixed dimensionality.
type GeminiEmbedder struct {
	models    contentEmbedder
	model     string
	dimension int
	taskType  string
}

// NewGeminiEmbedder creates a genai client for the Gemini API.
func NewGeminiEmbedder(ctx context.Context, apiKey, model string, dimension int) (*GeminiEmbedder, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("%w: gemini api key is required", rag.ErrConfiguration)
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return newGeminiEmbedder(client.Models, model, dimension), nil
}

func newGeminiEmbedder(models contentEmbedder, model string, dimension int) *GeminiEmbedder {
	if model == "" {
		model = "text-embedding-004"
	}
	if dimension <= 0 {
		dimension = 768
	}
	return &GeminiEmbedder{models: models, model: model, dimension: dimension}
}

// WithTaskType returns a copy that sends the given task type hint
// (for example RETRIEVAL_DOCUMENT during ingestion).
func (g *GeminiEmbedder) WithTaskType(taskType string) *GeminiEmbedder {
	cp := *g
	cp.taskType = taskType
	return &cp
}

func (g *GeminiEmbedder) Dimension() int { return g.dimension }

func (g *GeminiEmbedder) Model() string { return g.model }

// Embed returns a vector of exactly Dimension() floats.
func (g *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty input", rag.ErrEmbeddingUnavailable)
	}
	if n := utf8.RuneCountInString(text); n > MaxInputChars {
		return nil, fmt.Errorf("%w: input of %d characters exceeds %d", rag.ErrEmbeddingUnavailable, n, MaxInputChars)
	}

	dim := int32(g.dimension)
	cfg := &genai.EmbedContentConfig{OutputDimensionality: &dim}
	if g.taskType != "" {
		cfg.TaskType = g.taskType
	}
	resp, err := g.models.EmbedContent(ctx, g.model,
		[]*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}, cfg)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %w", rag.ErrEmbeddingUnavailable, err)
		}
		return nil, fmt.Errorf("%w: %s: %v", rag.ErrEmbeddingUnavailable, g.model, err)
	}
	if resp == nil || len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil {
		return nil, fmt.Errorf("%w: no embeddings returned", rag.ErrEmbeddingUnavailable)
	}
	values := resp.Embeddings[0].Values
	if len(values) != g.dimension {
		return nil, fmt.Errorf("%w: %w: got %d want %d", rag.ErrEmbeddingUnavailable, rag.ErrDimensionMismatch, len(values), g.dimension)
	}
	return values, nil
}
