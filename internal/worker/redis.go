package worker

import (
	"context"
	"time"

	"rhema/internal/redis"

	goredis "github.com/redis/go-redis/v9"
)

const (
	streamLockPrefix = "stream:open:"
	streamLockTTL    = 5 * time.Minute
)

// streamLocks shares the one-stream-per-caller rule across server instances.
// A nil client turns every call into a no-op success.
type streamLocks struct {
	client *redis.Client
}

func newStreamLocks(client *redis.Client) *streamLocks {
	return &streamLocks{client: client}
}

// acquire reports whether the lock for key was taken. Without redis it always
// succeeds and the dispatcher's local map is the only guard.
func (l *streamLocks) acquire(ctx context.Context, key string) (bool, error) {
	raw := l.raw()
	if raw == nil {
		return true, nil
	}
	return raw.SetNX(ctx, streamLockPrefix+key, time.Now().UTC().Format(time.RFC3339), streamLockTTL).Result()
}

func (l *streamLocks) release(key string) {
	raw := l.raw()
	if raw == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	raw.Del(ctx, streamLockPrefix+key)
}

func (l *streamLocks) raw() *goredis.Client {
	if l == nil {
		return nil
	}
	return l.client.Raw()
}
