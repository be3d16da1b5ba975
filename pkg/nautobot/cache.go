package nautobot

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// TieredCache is an in-memory + Redis-backed cache: a process-local map
// absorbs repeated lookups within a request burst while Redis keeps the
// cache warm and shared across API replicas.
type TieredCache struct {
	rdb *redis.Client

	mu    sync.RWMutex
	local map[string]localEntry
}

type localEntry struct {
	value   []byte
	expires time.Time
}

func NewTieredCache(rdb *redis.Client) *TieredCache {
	return &TieredCache{rdb: rdb, local: map[string]localEntry{}}
}

func (c *TieredCache) Get(ctx context.Context, key string) ([]byte, bool) {
	c.mu.RLock()
	entry, ok := c.local[key]
	c.mu.RUnlock()
	if ok && time.Now().Before(entry.expires) {
		return entry.value, true
	}

	val, err := c.rdb.Get(ctx, cacheKey(key)).Bytes()
	if err != nil {
		return nil, false
	}
	c.mu.Lock()
	c.local[key] = localEntry{value: val, expires: time.Now().Add(time.Minute)}
	c.mu.Unlock()
	return val, true
}

func (c *TieredCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	c.mu.Lock()
	c.local[key] = localEntry{value: value, expires: time.Now().Add(time.Minute)}
	c.mu.Unlock()

	_ = c.rdb.Set(ctx, cacheKey(key), value, ttl).Err()
}

func (c *TieredCache) Invalidate(ctx context.Context, keys ...string) {
	c.mu.Lock()
	for _, k := range keys {
		delete(c.local, k)
	}
	c.mu.Unlock()

	redisKeys := make([]string, len(keys))
	for i, k := range keys {
		redisKeys[i] = cacheKey(k)
	}
	_ = c.rdb.Del(ctx, redisKeys...).Err()
}

func cacheKey(k string) string { return "cockpit:nautobot:" + k }
