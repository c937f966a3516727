// Package cache implements a process-local TTL cache with lazy expiry.
//
// Entries are never swept in the background; an expired entry is removed the
// next time it is read. The cache has no size bound or LRU eviction. That is
// fine for a single node with moderate traffic, and it is the first thing to
// revisit if key cardinality grows (for example, many distinct grid scans).
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/JakeFAU/gridrank/internal/metrics"
)

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// Config controls a cache instance.
type Config struct {
	// Name labels metrics for this instance.
	Name string
	TTL  time.Duration
	// Clock defaults to the wall clock.
	Clock Clock
}

type entry[V any] struct {
	value    V
	storedAt time.Time
}

// Cache maps normalized string keys to values for a fixed TTL.
type Cache[V any] struct {
	name  string
	ttl   time.Duration
	clock Clock

	mu      sync.Mutex
	entries map[string]entry[V]
	group   singleflight.Group
}

// New builds a Cache. A non-positive TTL is rejected.
func New[V any](cfg Config) (*Cache[V], error) {
	if cfg.TTL <= 0 {
		return nil, fmt.Errorf("cache %q: ttl must be > 0", cfg.Name)
	}
	clk := cfg.Clock
	if clk == nil {
		clk = wallClock{}
	}
	name := cfg.Name
	if name == "" {
		name = "default"
	}
	return &Cache[V]{
		name:    name,
		ttl:     cfg.TTL,
		clock:   clk,
		entries: make(map[string]entry[V]),
	}, nil
}

// Get returns the value for key if it was stored less than TTL ago.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var zero V
	e, ok := c.entries[key]
	if !ok {
		metrics.ObserveCache(c.name, "miss")
		return zero, false
	}
	if c.clock.Now().Sub(e.storedAt) >= c.ttl {
		delete(c.entries, key)
		metrics.ObserveCache(c.name, "expired")
		return zero, false
	}
	metrics.ObserveCache(c.name, "hit")
	return e.value, true
}

// Set stores value under key and returns it.
func (c *Cache[V]) Set(key string, value V) V {
	c.mu.Lock()
	c.entries[key] = entry[V]{value: value, storedAt: c.clock.Now()}
	c.mu.Unlock()
	metrics.ObserveCache(c.name, "set")
	return value
}

// Len reports the number of stored entries, including expired ones not yet read.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// GetOrLoad returns the cached value or calls load once per key across
// concurrent callers, storing the result on success. Errors are not cached.
// The shared load ignores the leader's cancellation; each caller stops
// waiting when its own ctx is done.
func (c *Cache[V]) GetOrLoad(ctx context.Context, key string, load func(context.Context) (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	loadCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		if v, ok := c.peek(key); ok {
			return v, nil
		}
		v, err := load(loadCtx)
		if err != nil {
			return v, err
		}
		return c.Set(key, v), nil
	})
	var zero V
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		v, _ := res.Val.(V)
		return v, nil
	}
}

// peek is Get without metrics, used to recheck inside the flight.
func (c *Cache[V]) peek(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || c.clock.Now().Sub(e.storedAt) >= c.ttl {
		var zero V
		return zero, false
	}
	return e.value, true
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }
