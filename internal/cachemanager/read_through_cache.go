package cachemanager

import (
	"context"
	"sync"
	"time"
)

// ReadThroughCache loads missing values with fn and stores them. Concurrent
// misses for one key are collapsed into a single load.
type ReadThroughCache[K comparable, V any, I any] struct {
	cache           CacheManager[K, V]
	fn              func(ctx context.Context, input I) (V, error)
	shouldSkipCache bool

	mu       sync.Mutex
	inflight map[K]*sync.Mutex
}

// NewReadThroughCache wraps cache with loader fn. With shouldSkipCache every
// Get calls fn directly.
func NewReadThroughCache[K comparable, V any, I any](
	cache CacheManager[K, V],
	fn func(ctx context.Context, input I) (V, error),
	shouldSkipCache bool,
) *ReadThroughCache[K, V, I] {
	return &ReadThroughCache[K, V, I]{
		cache:           cache,
		fn:              fn,
		shouldSkipCache: shouldSkipCache,
		inflight:        make(map[K]*sync.Mutex),
	}
}

// Get returns the cached value for key or loads it from input.
func (r *ReadThroughCache[K, V, I]) Get(ctx context.Context, key K, input I, ttl time.Duration) (V, error) {
	if r.shouldSkipCache {
		return r.fn(ctx, input)
	}

	if value, ok := r.cache.Get(ctx, key); ok {
		return value, nil
	}

	lock := r.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	// Another caller may have loaded it while we waited.
	if value, ok := r.cache.Get(ctx, key); ok {
		return value, nil
	}

	value, err := r.fn(ctx, input)
	if err != nil {
		return value, err
	}

	r.cache.Set(ctx, key, value, ttl)

	return value, nil
}

// GetWithRefresh is Get that also extends the ttl of a cached value.
func (r *ReadThroughCache[K, V, I]) GetWithRefresh(ctx context.Context, key K, input I, ttl time.Duration) (V, error) {
	if r.shouldSkipCache {
		return r.fn(ctx, input)
	}

	if value, ok := r.cache.GetWithRefresh(ctx, key, ttl); ok {
		return value, nil
	}

	return r.Get(ctx, key, input, ttl)
}

func (r *ReadThroughCache[K, V, I]) keyLock(key K) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	lock, ok := r.inflight[key]
	if !ok {
		lock = &sync.Mutex{}
		r.inflight[key] = lock
	}
	return lock
}
