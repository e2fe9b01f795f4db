// Package cache provides the two-tier key/value cache: a bounded in-process
// tier backed optionally by a shared Redis tier. The cache is advisory only;
// nothing in the system may depend on a hit for correctness.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// ErrCacheMiss is returned by Store.Get when the key is absent or expired.
var ErrCacheMiss = errors.New("cache: miss")

// Store is a single cache tier.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// DeletePattern removes all keys matching the glob pattern and returns
	// the number of keys removed.
	DeletePattern(ctx context.Context, pattern string) (int, error)
	IncrBy(ctx context.Context, key string, delta int64) (int64, error)
	Ping(ctx context.Context) error
}

// Cache is the surface the rest of the system consumes. Implementations
// must fail open: a backend outage degrades to misses, never to errors
// propagated into caller business logic.
type Cache interface {
	Store
	Available(ctx context.Context) bool
}

// Key builds a namespaced cache key. Business-scoped keys put the business
// id first so pattern invalidation per tenant stays cheap.
func Key(parts ...string) string {
	return strings.Join(parts, ":")
}

// GetJSON fetches key and unmarshals it into v. Returns false on miss or
// on a corrupt entry.
func GetJSON(ctx context.Context, c Store, key string, v any) bool {
	data, err := c.Get(ctx, key)
	if err != nil {
		return false
	}
	return json.Unmarshal(data, v) == nil
}

// SetJSON marshals v and stores it under key. Marshal failures are dropped;
// the cache is advisory.
func SetJSON(ctx context.Context, c Store, key string, v any, ttl time.Duration) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	_ = c.Set(ctx, key, data, ttl)
}
