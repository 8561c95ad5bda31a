package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// CacheService stores JSON values in Redis with a default TTL
type CacheService struct {
	redis *RedisCache
	ttl   time.Duration
}

// NewCacheService creates a new cache service
func NewCacheService(redis *RedisCache, ttl time.Duration) *CacheService {
	return &CacheService{
		redis: redis,
		ttl:   ttl,
	}
}

// CacheKeyType represents different types of cache keys
type CacheKeyType string

const (
	// CacheKeyLeaderboard is for weekly leaderboards
	CacheKeyLeaderboard CacheKeyType = "leaderboard"
	// CacheKeyTips is for tip lists per category
	CacheKeyTips CacheKeyType = "tips"
	// CacheKeyGeneration is for counters that version other keys
	CacheKeyGeneration CacheKeyType = "gen"
)

// generationTTL outlives any week a generation counter versions
const generationTTL = 8 * 24 * time.Hour

// GenerateCacheKey generates a cache key for a given type and parameters
// Format: <type>:<param1>:<param2>:...
func GenerateCacheKey(keyType CacheKeyType, params ...string) string {
	parts := make([]string, 0, len(params)+1)
	parts = append(parts, string(keyType))
	for _, p := range params {
		parts = append(parts, strings.ToLower(p))
	}
	return strings.Join(parts, ":")
}

// Set stores a value in cache with the configured TTL
func (c *CacheService) Set(ctx context.Context, key string, value interface{}) error {
	return c.SetWithTTL(ctx, key, value, c.ttl)
}

// SetWithTTL stores a value in cache with a custom TTL
func (c *CacheService) SetWithTTL(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	return c.redis.Set(ctx, key, data, ttl)
}

// Get decodes the cached value into dest. A miss returns false and no error.
func (c *CacheService) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := c.redis.Get(ctx, key)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("failed to get from cache: %w", err)
	}

	if err := json.Unmarshal([]byte(data), dest); err != nil {
		return false, fmt.Errorf("failed to unmarshal cached value: %w", err)
	}
	return true, nil
}

// Invalidate removes one or more keys from cache
func (c *CacheService) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.redis.Del(ctx, keys...)
}

// InvalidatePattern removes all keys matching a pattern, e.g. "tips:*"
func (c *CacheService) InvalidatePattern(ctx context.Context, pattern string) error {
	keys, err := c.redis.Scan(ctx, pattern)
	if err != nil {
		return fmt.Errorf("failed to find keys matching pattern: %w", err)
	}
	return c.Invalidate(ctx, keys...)
}

// Generation returns the current value of the counter name. An unset
// counter is generation 0.
func (c *CacheService) Generation(ctx context.Context, name string) (int64, error) {
	data, err := c.redis.Get(ctx, name)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read generation: %w", err)
	}
	gen, err := strconv.ParseInt(data, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse generation %q: %w", data, err)
	}
	return gen, nil
}

// BumpGeneration advances the counter name. Entries keyed by an older
// generation are never read again and expire with their TTL.
func (c *CacheService) BumpGeneration(ctx context.Context, name string) error {
	if _, err := c.redis.Incr(ctx, name, generationTTL); err != nil {
		return fmt.Errorf("failed to bump generation: %w", err)
	}
	return nil
}

// TTL returns the configured default TTL
func (c *CacheService) TTL() time.Duration {
	return c.ttl
}

// NoopCache is used when Redis is disabled. Every lookup misses.
type NoopCache struct{}

// Get always misses
func (NoopCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	return false, nil
}

// Set discards the value
func (NoopCache) Set(ctx context.Context, key string, value interface{}) error {
	return nil
}

// Invalidate does nothing
func (NoopCache) Invalidate(ctx context.Context, keys ...string) error {
	return nil
}

// InvalidatePattern does nothing
func (NoopCache) InvalidatePattern(ctx context.Context, pattern string) error {
	return nil
}

// Generation is always 0
func (NoopCache) Generation(ctx context.Context, name string) (int64, error) {
	return 0, nil
}

// BumpGeneration does nothing
func (NoopCache) BumpGeneration(ctx context.Context, name string) error {
	return nil
}
