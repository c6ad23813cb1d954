package relay

import (
	"context"
	"time"

	"github.com/goliatone/go-tiered-cache/internal/cacheinfra"
)

// FetchFn loads a value on a cache miss.
type FetchFn[T any] func(ctx context.Context) (T, error)

// Cache is the hub's process cache: string keys, optional per-entry TTL
// checked lazily on read. It is not synchronised with any peer.
type Cache struct {
	store *cacheinfra.Store
}

// Get returns the live value for key.
func (c *Cache) Get(key string) (any, bool) {
	return c.store.Get(key)
}

// Set stores value without a TTL.
func (c *Cache) Set(key string, value any) {
	c.store.Set(key, value)
}

// SetWithTTL stores value for ttl.
func (c *Cache) SetWithTTL(key string, value any, ttl time.Duration) {
	c.store.SetWithTTL(key, value, ttl)
}

// Has reports whether key holds a live value.
func (c *Cache) Has(key string) bool {
	return c.store.Has(key)
}

// Delete removes key and reports whether it was present.
func (c *Cache) Delete(key string) bool {
	return c.store.Delete(key)
}

// Keys returns the live keys in sorted order.
func (c *Cache) Keys() []string {
	return c.store.Keys()
}

// DeleteMatching removes keys matching a glob pattern where '*' stops at ':'
// and '**' does not.
func (c *Cache) DeleteMatching(pattern string) (int, error) {
	return c.store.DeleteMatching(pattern)
}

// Clear removes every entry.
func (c *Cache) Clear() {
	c.store.Clear()
}

// GetOrFetch is a type-safe read-through helper over the hub cache.
// Concurrent misses on one key share a single fetch.
func GetOrFetch[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, fetchFn FetchFn[T]) (T, error) {
	var zero T
	if fetchFn == nil {
		return zero, &cacheinfra.ConfigError{Field: "fetchFn", Message: "cannot be nil"}
	}

	result, err := c.store.GetOrFetch(ctx, key, ttl, func(ctx context.Context) (any, error) {
		return fetchFn(ctx)
	})
	if err != nil {
		return zero, err
	}

	// a nil interface cannot be asserted to T
	if result == nil {
		return zero, nil
	}
	typed, ok := result.(T)
	if !ok {
		return zero, nil
	}
	return typed, nil
}
