package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	availabilityProbeEvery   = 5 * time.Second
	availabilityProbeTimeout = time.Second
)

// Tiered composes the distributed tier over the in-process tier behind the
// one Cache interface, so call sites never branch on which tier is active.
// Every operation fails open: a Tier-2 outage degrades to Tier-1-only with
// no code-path change for callers.
type Tiered struct {
	remote Store // nil when no distributed tier is configured
	local  Store
	logger *zap.Logger

	mu          sync.Mutex
	lastProbe   time.Time
	remoteAlive bool
}

// NewTiered builds the fallback decorator. remote may be nil.
func NewTiered(remote, local Store, logger *zap.Logger) *Tiered {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tiered{remote: remote, local: local, logger: logger}
}

func (t *Tiered) Get(ctx context.Context, key string) ([]byte, error) {
	if t.remoteUsable(ctx) {
		data, err := t.remote.Get(ctx, key)
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, ErrCacheMiss) {
			t.noteRemoteError("get", key, err)
		}
	}
	return t.local.Get(ctx, key)
}

func (t *Tiered) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_ = t.local.Set(ctx, key, value, ttl)
	if t.remoteUsable(ctx) {
		if err := t.remote.Set(ctx, key, value, ttl); err != nil {
			t.noteRemoteError("set", key, err)
		}
	}
	return nil
}

func (t *Tiered) Delete(ctx context.Context, key string) error {
	_ = t.local.Delete(ctx, key)
	if t.remoteUsable(ctx) {
		if err := t.remote.Delete(ctx, key); err != nil {
			t.noteRemoteError("delete", key, err)
		}
	}
	return nil
}

// DeletePattern invalidates both tiers. The returned count is the larger of
// the two tiers; the same logical key may live in both.
func (t *Tiered) DeletePattern(ctx context.Context, pattern string) (int, error) {
	localCount, err := t.local.DeletePattern(ctx, pattern)
	if err != nil {
		t.logger.Warn("cache pattern delete failed on local tier",
			zap.String("pattern", pattern), zap.Error(err))
		localCount = 0
	}

	if t.remoteUsable(ctx) {
		remoteCount, err := t.remote.DeletePattern(ctx, pattern)
		if err != nil {
			t.noteRemoteError("delete_pattern", pattern, err)
		} else if remoteCount > localCount {
			return remoteCount, nil
		}
	}
	return localCount, nil
}

// IncrBy prefers the shared tier so counters agree across processes.
func (t *Tiered) IncrBy(ctx context.Context, key string, delta int64) (int64, error) {
	if t.remoteUsable(ctx) {
		value, err := t.remote.IncrBy(ctx, key, delta)
		if err == nil {
			return value, nil
		}
		t.noteRemoteError("incrby", key, err)
	}
	return t.local.IncrBy(ctx, key, delta)
}

func (t *Tiered) Ping(ctx context.Context) error {
	return t.local.Ping(ctx)
}

// Available reports whether the distributed tier is reachable. The probe is
// throttled; callers may poll this freely.
func (t *Tiered) Available(ctx context.Context) bool {
	return t.remoteUsable(ctx)
}

func (t *Tiered) remoteUsable(ctx context.Context) bool {
	if t.remote == nil {
		return false
	}

	t.mu.Lock()
	if time.Since(t.lastProbe) < availabilityProbeEvery {
		alive := t.remoteAlive
		t.mu.Unlock()
		return alive
	}
	t.lastProbe = time.Now()
	t.mu.Unlock()

	probeCtx, cancel := context.WithTimeout(ctx, availabilityProbeTimeout)
	defer cancel()
	alive := t.remote.Ping(probeCtx) == nil

	t.mu.Lock()
	t.remoteAlive = alive
	t.mu.Unlock()
	return alive
}

func (t *Tiered) noteRemoteError(op, key string, err error) {
	t.logger.Debug("distributed cache tier error, serving from local tier",
		zap.String("op", op), zap.String("key", key), zap.Error(err))
	t.mu.Lock()
	t.remoteAlive = false
	t.mu.Unlock()
}
