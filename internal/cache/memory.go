package cache

import (
	"context"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/gobwas/glob"
)

const (
	// DefaultMaxBytes bounds the in-process tier by total serialized size,
	// not item count. Cached embedding vectors are large; counting items
	// alone would let memory blow up.
	DefaultMaxBytes = 64 << 20

	memoryNumCounters = 1 << 20
	memoryBufferItems = 64
)

// Memory is the in-process tier. Ristretto owns values and eviction; a
// small registry of live keys is kept alongside because ristretto exposes
// no key iteration, which DeletePattern needs.
type Memory struct {
	store *ristretto.Cache[string, []byte]

	mu       sync.Mutex
	keys     map[string]time.Time // key -> expiry (zero = no TTL)
	counters map[string]int64
}

// NewMemory creates the in-process tier bounded by maxBytes of serialized
// payload. A non-positive maxBytes uses DefaultMaxBytes.
func NewMemory(maxBytes int64) (*Memory, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	store, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: memoryNumCounters,
		MaxCost:     maxBytes,
		BufferItems: memoryBufferItems,
	})
	if err != nil {
		return nil, err
	}
	return &Memory{
		store:    store,
		keys:     make(map[string]time.Time),
		counters: make(map[string]int64),
	}, nil
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	value, ok := m.store.Get(key)
	if !ok {
		m.forget(key)
		return nil, ErrCacheMiss
	}
	return value, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	cost := int64(len(key) + len(value))
	if ttl > 0 {
		m.store.SetWithTTL(key, value, cost, ttl)
	} else {
		m.store.Set(key, value, cost)
	}

	var expiry time.Time
	if ttl > 0 {
		expiry = time.Now().Add(ttl)
	}
	m.mu.Lock()
	m.keys[key] = expiry
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.store.Del(key)
	m.forget(key)
	return nil
}

func (m *Memory) DeletePattern(_ context.Context, pattern string) (int, error) {
	matcher, err := glob.Compile(pattern)
	if err != nil {
		return 0, err
	}

	now := time.Now()
	count := 0
	m.mu.Lock()
	for key, expiry := range m.keys {
		if !expiry.IsZero() && now.After(expiry) {
			delete(m.keys, key)
			continue
		}
		if matcher.Match(key) {
			m.store.Del(key)
			delete(m.keys, key)
			count++
		}
	}
	for key := range m.counters {
		if matcher.Match(key) {
			delete(m.counters, key)
			count++
		}
	}
	m.mu.Unlock()
	return count, nil
}

// IncrBy keeps counters outside the eviction path; they are small and their
// value must survive pressure from large cached payloads.
func (m *Memory) IncrBy(_ context.Context, key string, delta int64) (int64, error) {
	m.mu.Lock()
	m.counters[key] += delta
	value := m.counters[key]
	m.mu.Unlock()
	return value, nil
}

func (m *Memory) Ping(context.Context) error {
	return nil
}

// Wait blocks until buffered writes are applied. Tests use it; production
// callers treat Set as eventually visible.
func (m *Memory) Wait() {
	m.store.Wait()
}

// Close releases ristretto's internal goroutines.
func (m *Memory) Close() {
	m.store.Close()
}

func (m *Memory) forget(key string) {
	m.mu.Lock()
	delete(m.keys, key)
	m.mu.Unlock()
}
