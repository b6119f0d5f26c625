// Package cache memoizes JSON response payloads and request counters on top of the KV store.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kira-labs/kira/internal/db"
	"github.com/kira-labs/kira/internal/metrics"
)

// store is the consumer interface for cache operations (ISP).
type store interface {
	Ping(ctx context.Context) error
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Incr(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration, nx bool) error
}

// Cache stores values under "{namespace}:{ns}:{key}". Writes are full-value replacements.
type Cache struct {
	store      store
	namespace  string
	defaultTTL time.Duration
}

// New creates a cache. defaultTTL applies when SetJSON is called with ttl <= 0.
func New(s store, namespace string, defaultTTL time.Duration) *Cache {
	return &Cache{store: s, namespace: namespace, defaultTTL: defaultTTL}
}

// Key returns the full storage key.
func (c *Cache) Key(ns, key string) string {
	return c.namespace + ":" + ns + ":" + key
}

// GetJSON decodes the cached value into dst. It reports false on a miss.
func (c *Cache) GetJSON(ctx context.Context, ns, key string, dst any) (bool, error) {
	full := c.Key(ns, key)
	data, err := c.store.Get(ctx, full)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			metrics.CacheTotal.WithLabelValues(ns, "miss").Inc()
			return false, nil
		}
		return false, fmt.Errorf("cache GET %s: %w", full, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		metrics.CacheTotal.WithLabelValues(ns, "miss").Inc()
		return false, fmt.Errorf("cache GET %s decode: %w", full, err)
	}
	metrics.CacheTotal.WithLabelValues(ns, "hit").Inc()
	return true, nil
}

// SetJSON encodes value and stores it with ttl.
func (c *Cache) SetJSON(ctx context.Context, ns, key string, value any, ttl time.Duration) error {
	full := c.Key(ns, key)
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache SET %s encode: %w", full, err)
	}
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	if err := c.store.SetWithTTL(ctx, full, data, ttl); err != nil {
		return fmt.Errorf("cache SET %s: %w", full, err)
	}
	return nil
}

// Increment atomically bumps a counter and starts its expiry window on first use.
func (c *Cache) Increment(ctx context.Context, ns, key string, ttl time.Duration) (int64, error) {
	full := c.Key(ns, key)
	n, err := c.store.Incr(ctx, full)
	if err != nil {
		return 0, fmt.Errorf("cache INCR %s: %w", full, err)
	}

	// NX keeps the window fixed: repeat hits never extend it.
	if err := c.store.Expire(ctx, full, ttl, true); err != nil {
		return n, fmt.Errorf("cache EXPIRE %s: %w", full, err)
	}
	return n, nil
}

// Ping checks the backing store.
func (c *Cache) Ping(ctx context.Context) error {
	if err := c.store.Ping(ctx); err != nil {
		return fmt.Errorf("cache ping: %w", err)
	}
	return nil
}
