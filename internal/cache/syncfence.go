package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// SyncFence deduplicates retried sync uploads by idempotency key. A claimed
// key stays fenced for the TTL; a retry inside that window is dropped
// instead of replacing the user's records a second time.
type SyncFence struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSyncFence(client *redis.Client, ttl time.Duration) *SyncFence {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &SyncFence{client: client, ttl: ttl}
}

// Claim attempts to take the key. It returns false when the key is already
// held. A nil fence (redis disabled) always grants the claim.
func (f *SyncFence) Claim(ctx context.Context, key string) bool {
	if f == nil || f.client == nil || key == "" {
		return true
	}
	ok, err := f.client.SetNX(ctx, f.prefixed(key), 1, f.ttl).Result()
	if err != nil {
		// Redis being down must not block ingestion; worst case a retry
		// re-applies an idempotent replace.
		return true
	}
	return ok
}

// Release frees a claimed key so a failed sync can be retried immediately.
func (f *SyncFence) Release(ctx context.Context, key string) {
	if f == nil || f.client == nil || key == "" {
		return
	}
	f.client.Del(ctx, f.prefixed(key))
}

func (f *SyncFence) prefixed(key string) string {
	return "syncfence:" + key
}
