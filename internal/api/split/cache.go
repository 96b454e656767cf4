package split

import (
	"context"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"defilens/internal/adapters/redis"
	"defilens/internal/metrics"
	"defilens/pkg/logger"
)

// ResultCache stores marshaled split responses. It writes through to
// Redis when a client is configured and otherwise keeps an in-process
// TTL map, so a single instance still avoids recomputing hot queries.
type ResultCache struct {
	redis *redis.Client
	ttl   time.Duration
	log   *logger.Logger

	mu      sync.RWMutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	data      []byte
	expiresAt time.Time
}

// NewResultCache creates a result cache. The redis client may be nil.
func NewResultCache(redisClient *redis.Client, ttl time.Duration) *ResultCache {
	return &ResultCache{
		redis:   redisClient,
		ttl:     ttl,
		log:     logger.Get().With("component", "result_cache"),
		entries: make(map[string]cacheEntry),
	}
}

// Get returns the cached response for key, if present and fresh.
func (c *ResultCache) Get(ctx context.Context, key string) ([]byte, bool) {
	if c.redis != nil {
		var data []byte
		err := c.redis.Get(ctx, key, &data)
		switch {
		case err == nil:
			metrics.ResultCache.WithLabelValues("redis", "hit").Inc()
			return data, true
		case err == goredis.Nil:
			metrics.ResultCache.WithLabelValues("redis", "miss").Inc()
		default:
			metrics.ResultCache.WithLabelValues("redis", "error").Inc()
			c.log.Warn("Redis cache read failed", "key", key, "error", err)
		}
		return nil, false
	}

	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || time.Now().After(entry.expiresAt) {
		metrics.ResultCache.WithLabelValues("memory", "miss").Inc()
		return nil, false
	}
	metrics.ResultCache.WithLabelValues("memory", "hit").Inc()
	return entry.data, true
}

// Set stores a response under key for the configured TTL.
func (c *ResultCache) Set(ctx context.Context, key string, data []byte) {
	if c.ttl <= 0 {
		return
	}

	if c.redis != nil {
		if err := c.redis.Set(ctx, key, data, c.ttl); err != nil {
			metrics.ResultCache.WithLabelValues("redis", "error").Inc()
			c.log.Warn("Redis cache write failed", "key", key, "error", err)
		}
		return
	}

	now := time.Now()
	c.mu.Lock()
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
		}
	}
	c.entries[key] = cacheEntry{data: data, expiresAt: now.Add(c.ttl)}
	c.mu.Unlock()
}
