package service

import (
	"context"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/carbon-tracker/internal/logging"
)

// cacheAside serves reads through a Cache. Concurrent misses for the same
// key share one load.
type cacheAside struct {
	cache   Cache
	monitor *PerformanceMonitor
	group   singleflight.Group
}

func newCacheAside(cache Cache, monitor *PerformanceMonitor) *cacheAside {
	if monitor == nil {
		monitor = NewPerformanceMonitor()
	}
	return &cacheAside{cache: cache, monitor: monitor}
}

// loadCached returns the cached value for key, or calls fn, caches its result and
// returns it. Cache failures degrade to calling fn.
func loadCached[T any](ctx context.Context, c *cacheAside, key string, fn func(ctx context.Context) (T, error)) (T, error) {
	start := time.Now()
	var cached T
	hit, err := c.cache.Get(ctx, key, &cached)
	if err != nil {
		logging.FromContext(ctx).WithError(err).WithField("key", key).Warn("Cache read failed")
	} else if hit {
		c.monitor.RecordRead(time.Since(start), true)
		return cached, nil
	}
	defer func() {
		c.monitor.RecordRead(time.Since(start), false)
	}()

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		value, err := fn(ctx)
		if err != nil {
			return value, err
		}
		if err := c.cache.Set(ctx, key, value); err != nil {
			logging.FromContext(ctx).WithError(err).WithField("key", key).Warn("Cache write failed")
		}
		return value, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

// loadVersioned is loadCached with key suffixed by the current value of the
// generation counter gen. A load that raced with bump writes under the old
// generation, where no later read looks. When the counter cannot be read
// the cache is bypassed.
func loadVersioned[T any](ctx context.Context, c *cacheAside, gen, key string, fn func(ctx context.Context) (T, error)) (T, error) {
	n, err := c.cache.Generation(ctx, gen)
	if err != nil {
		logging.FromContext(ctx).WithError(err).WithField("key", gen).Warn("Cache generation read failed")
		return fn(ctx)
	}
	return loadCached(ctx, c, key+":"+strconv.FormatInt(n, 10), fn)
}

// bump retires everything cached under the current generation of gen
func (c *cacheAside) bump(ctx context.Context, gen string) {
	if err := c.cache.BumpGeneration(ctx, gen); err != nil {
		logging.FromContext(ctx).WithError(err).WithField("key", gen).Warn("Cache generation bump failed")
	}
}
