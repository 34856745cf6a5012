package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"rhema/internal/logger"
	"rhema/internal/rag"
	"rhema/internal/redis"
)

const embeddingCacheTTL = 24 * time.Hour

// CachedEmbedder memoizes query embeddings in redis. Cache errors fall through
// to the wrapped embedder.
type CachedEmbedder struct {
	next  rag.Embedder
	cache *redis.Client
	model string
	log   *logger.Logger
}

func NewCachedEmbedder(next rag.Embedder, cache *redis.Client, model string, log *logger.Logger) *CachedEmbedder {
	if log == nil {
		log = logger.NewNop()
	}
	return &CachedEmbedder{next: next, cache: cache, model: model, log: log}
}

func (c *CachedEmbedder) Dimension() int { return c.next.Dimension() }

func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if c.cache == nil {
		return c.next.Embed(ctx, text)
	}
	key := c.key(text)
	var vec []float32
	err := c.cache.GetJSON(ctx, key, &vec)
	if err == nil && len(vec) == c.next.Dimension() {
		return vec, nil
	}
	if err != nil && !errors.Is(err, redis.ErrCacheMiss) {
		c.log.Warn("embedding cache read failed", "error", err)
	}

	vec, err = c.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if err := c.cache.SetJSON(ctx, key, vec, embeddingCacheTTL); err != nil {
		c.log.Warn("embedding cache write failed", "error", err)
	}
	return vec, nil
}

func (c *CachedEmbedder) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return "embed:" + c.model + ":" + hex.EncodeToString(sum[:])
}
