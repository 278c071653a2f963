package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

type item[V any] struct {
	value     V
	expiresAt time.Time
}

// Cache is a thread-safe in-memory cache with per-entry TTL. Expired
// entries are never returned; Prune or the janitor started by Run removes
// them.
type Cache[V any] struct {
	mu         sync.RWMutex
	items      map[string]item[V]
	defaultTTL time.Duration
	now        func() time.Time

	loads singleflight.Group
}

func New[V any](defaultTTL time.Duration) *Cache[V] {
	return &Cache[V]{
		items:      make(map[string]item[V]),
		defaultTTL: defaultTTL,
		now:        time.Now,
	}
}

// WithClock replaces time.Now. Used by tests.
func (c *Cache[V]) WithClock(now func() time.Time) *Cache[V] {
	c.now = now
	return c
}

func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	it, ok := c.items[key]
	if !ok || !c.now().Before(it.expiresAt) {
		var zero V
		return zero, false
	}
	return it.value, true
}

// Set stores value with the default TTL.
func (c *Cache[V]) Set(key string, value V) {
	c.SetWithTTL(key, value, c.defaultTTL)
}

func (c *Cache[V]) SetWithTTL(key string, value V, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = item[V]{value: value, expiresAt: c.now().Add(ttl)}
}

// Prune removes expired entries and returns how many were dropped.
func (c *Cache[V]) Prune() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for key, it := range c.items {
		if !now.Before(it.expiresAt) {
			delete(c.items, key)
			removed++
		}
	}
	return removed
}

// Len counts stored entries, expired ones included.
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Run prunes every interval until ctx is done.
func (c *Cache[V]) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Prune()
		}
	}
}

// GetOrLoad returns the cached value or calls load once per key, however
// many callers miss at the same time. Errors are not cached.
func (c *Cache[V]) GetOrLoad(ctx context.Context, key string, load func(ctx context.Context) (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	res, err, _ := c.loads.Do(key, func() (any, error) {
		if v, ok := c.Get(key); ok {
			return v, nil
		}
		v, err := load(ctx)
		if err != nil {
			return nil, err
		}
		c.Set(key, v)
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}

	v, ok := res.(V)
	if !ok {
		var zero V
		return zero, fmt.Errorf("cache: unexpected value type %T for key %q", res, key)
	}
	return v, nil
}
