package cache

import (
	"context"
	"sync"
	"time"
)

// entry is a single cached value with its absolute expiry.
type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// expired reports whether the entry is stale at the given instant.
func (e entry[V]) expired(now time.Time) bool {
	return now.After(e.expiresAt)
}

// Cache is a process-wide key/value store where every entry carries its own
// TTL. Stale entries are evicted when read and by Sweep.
type Cache[V any] struct {
	mu      sync.Mutex
	entries map[string]entry[V]

	// now is the clock used for expiry, overridable in tests.
	now func() time.Time
}

// Option configures a Cache.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides the clock used to compute and check expiry.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// New creates an empty cache.
func New[V any](opts ...Option) *Cache[V] {
	o := &options{now: time.Now}
	for _, opt := range opts {
		opt(o)
	}

	return &Cache[V]{
		entries: make(map[string]entry[V]),
		now:     o.now,
	}
}

// Set stores value under key, expiring ttl from now. Any previous entry for
// the key is replaced.
func (c *Cache[V]) Set(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = entry[V]{
		value:     value,
		expiresAt: c.now().Add(ttl),
	}
}

// Get returns the value stored under key if it exists and has not expired.
// An expired entry is removed as a side effect.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V

	e, ok := c.entries[key]
	if !ok {
		return zero, false
	}

	if e.expired(c.now()) {
		delete(c.entries, key)
		return zero, false
	}

	return e.value, true
}

// TTL returns the remaining lifetime of the entry under key, or false if it
// is absent or already expired.
func (c *Cache[V]) TTL(key string) (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return 0, false
	}

	now := c.now()
	if e.expired(now) {
		delete(c.entries, key)
		return 0, false
	}

	return e.expiresAt.Sub(now), true
}

// Delete removes key from the cache. Deleting an absent key is a no-op.
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, key)
}

// Size returns the number of live entries. Expired entries that have not
// yet been evicted are dropped first so they never count.
func (c *Cache[V]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sweepLocked()

	return len(c.entries)
}

// Sweep removes every expired entry and returns how many were dropped.
func (c *Cache[V]) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.sweepLocked()
}

// sweepLocked drops expired entries. The caller must hold mu.
func (c *Cache[V]) sweepLocked() int {
	now := c.now()

	var removed int
	for key, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, key)
			removed++
		}
	}

	return removed
}

// RunSweeper periodically sweeps expired entries until ctx is cancelled.
func (c *Cache[V]) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			c.Sweep()
		}
	}
}
