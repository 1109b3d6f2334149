package storage

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// URLCache remembers signed URLs so a catalog page does not re-sign every
// image on every request.
type URLCache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string, ttl time.Duration)
}

// CachedResolver serves signed URLs from a cache. Entries live for half the
// signing TTL so a cached URL always has time left when it is handed out.
type CachedResolver struct {
	next  Resolver
	cache URLCache
	ttl   time.Duration
}

func NewCachedResolver(next Resolver, cache URLCache, signedTTL time.Duration) *CachedResolver {
	return &CachedResolver{next: next, cache: cache, ttl: signedTTL / 2}
}

func (r *CachedResolver) SignedURL(ctx context.Context, ref string) (string, error) {
	if !IsReference(ref) {
		return ref, nil
	}
	if u, ok := r.cache.Get(ctx, ref); ok {
		return u, nil
	}
	u, err := r.next.SignedURL(ctx, ref)
	if err != nil {
		return "", err
	}
	r.cache.Set(ctx, ref, u, r.ttl)
	return u, nil
}

func (r *CachedResolver) DownloadPageURL(ctx context.Context, ref string) (string, error) {
	return r.next.DownloadPageURL(ctx, ref)
}

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// MemoryCache is a process local URLCache.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (c *MemoryCache) Get(_ context.Context, key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return "", false
	}
	if !c.now().Before(e.expiresAt) {
		delete(c.entries, key)
		return "", false
	}
	return e.value, true
}

func (c *MemoryCache) Set(_ context.Context, key, value string, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = memoryEntry{value: value, expiresAt: c.now().Add(ttl)}
}

// Sweep drops expired entries.
func (c *MemoryCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for k, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// RedisCache shares signed URLs between server instances.
type RedisCache struct {
	client *redis.Client
	prefix string
}

// NewRedisCache connects using a redis:// URL.
func NewRedisCache(redisURL string) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &RedisCache{client: redis.NewClient(opts), prefix: "signed-url:"}, nil
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, bool) {
	v, err := c.client.Get(ctx, c.prefix+key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.Warn("signed url cache read failed", "key", key, "error", err)
		}
		return "", false
	}
	return v, true
}

func (c *RedisCache) Set(ctx context.Context, key, value string, ttl time.Duration) {
	if err := c.client.Set(ctx, c.prefix+key, value, ttl).Err(); err != nil {
		slog.Warn("signed url cache write failed", "key", key, "error", err)
	}
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
