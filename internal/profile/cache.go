package profile

import (
	"context"
	"errors"
	"time"

	"rhema/internal/logger"
	"rhema/internal/models"
	"rhema/internal/rag"
	"rhema/internal/redis"
)

const profileCacheTTL = 10 * time.Minute

// CachedStore fronts a ProfileStore with redis. Missing profiles are not cached.
type CachedStore struct {
	next  rag.ProfileStore
	cache *redis.Client
	log   *logger.Logger
}

func NewCachedStore(next rag.ProfileStore, cache *redis.Client, log *logger.Logger) *CachedStore {
	if log == nil {
		log = logger.NewNop()
	}
	return &CachedStore{next: next, cache: cache, log: log}
}

func cacheKey(userID string) string { return "profile:" + userID }

func (c *CachedStore) Get(ctx context.Context, userID string) (*models.UserProfile, error) {
	if userID == "" {
		return nil, nil
	}
	if c.cache != nil {
		var p models.UserProfile
		err := c.cache.GetJSON(ctx, cacheKey(userID), &p)
		if err == nil {
			return &p, nil
		}
		if !errors.Is(err, redis.ErrCacheMiss) {
			c.log.Warn("profile cache read failed", "error", err)
		}
	}
	p, err := c.next.Get(ctx, userID)
	if err != nil || p == nil {
		return p, err
	}
	if c.cache != nil {
		if err := c.cache.SetJSON(ctx, cacheKey(userID), p, profileCacheTTL); err != nil {
			c.log.Warn("profile cache write failed", "error", err)
		}
	}
	return p, nil
}

// Writer persists profiles. SQLStore satisfies it.
type Writer interface {
	Upsert(ctx context.Context, p *models.UserProfile) error
}

// Upsert writes through to the wrapped store and drops the cached copy.
func (c *CachedStore) Upsert(ctx context.Context, p *models.UserProfile) error {
	w, ok := c.next.(Writer)
	if !ok {
		return errors.New("profile store is read-only")
	}
	if err := w.Upsert(ctx, p); err != nil {
		return err
	}
	c.Invalidate(ctx, p.UserID)
	return nil
}

// Invalidate drops the cached copy after the profile changed.
func (c *CachedStore) Invalidate(ctx context.Context, userID string) {
	if c.cache == nil || userID == "" {
		return
	}
	if err := c.cache.Del(ctx, cacheKey(userID)); err != nil {
		c.log.Warn("profile cache invalidate failed", "error", err)
	}
}
