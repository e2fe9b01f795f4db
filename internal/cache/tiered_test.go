package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unreachableStore simulates a distributed tier that is down: every
// operation fails with a connection error.
type unreachableStore struct{}

var errConnRefused = errors.New("dial tcp 127.0.0.1:6379: connect: connection refused")

func (unreachableStore) Get(context.Context, string) ([]byte, error) { return nil, errConnRefused }
func (unreachableStore) Set(context.Context, string, []byte, time.Duration) error {
	return errConnRefused
}
func (unreachableStore) Delete(context.Context, string) error { return errConnRefused }
func (unreachableStore) DeletePattern(context.Context, string) (int, error) {
	return 0, errConnRefused
}
func (unreachableStore) IncrBy(context.Context, string, int64) (int64, error) {
	return 0, errConnRefused
}
func (unreachableStore) Ping(context.Context) error { return errConnRefused }

// recordingStore wraps Memory and records which keys were written, to show
// the remote tier receives writes when it is healthy.
type recordingStore struct {
	*Memory
	setKeys []string
}

func (r *recordingStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	r.setKeys = append(r.setKeys, key)
	return r.Memory.Set(ctx, key, value, ttl)
}

func TestTiered_FailOpenWithRemoteDown(t *testing.T) {
	ctx := context.Background()
	local := newTestMemory(t)
	tiered := NewTiered(unreachableStore{}, local, nil)

	// Every operation succeeds against the local tier only.
	require.NoError(t, tiered.Set(ctx, "key", []byte("value"), time.Minute))
	local.Wait()

	data, err := tiered.Get(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, []byte("value"), data)

	require.NoError(t, tiered.Delete(ctx, "key"))
	local.Wait()
	_, err = tiered.Get(ctx, "key")
	assert.ErrorIs(t, err, ErrCacheMiss)

	value, err := tiered.IncrBy(ctx, "counter", 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), value)

	assert.False(t, tiered.Available(ctx))
}

func TestTiered_NoRemoteConfigured(t *testing.T) {
	ctx := context.Background()
	local := newTestMemory(t)
	tiered := NewTiered(nil, local, nil)

	require.NoError(t, tiered.Set(ctx, "key", []byte("v"), 0))
	local.Wait()

	data, err := tiered.Get(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), data)
	assert.False(t, tiered.Available(ctx))
}

func TestTiered_WritesBothTiersWhenRemoteHealthy(t *testing.T) {
	ctx := context.Background()
	local := newTestMemory(t)
	remote := &recordingStore{Memory: newTestMemory(t)}
	tiered := NewTiered(remote, local, nil)

	require.NoError(t, tiered.Set(ctx, "shared", []byte("x"), time.Minute))
	assert.Equal(t, []string{"shared"}, remote.setKeys)
	assert.True(t, tiered.Available(ctx))

	// Reads prefer the remote tier.
	remote.Wait()
	data, err := tiered.Get(ctx, "shared")
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), data)
}

func TestTiered_DeletePatternCoversBothTiers(t *testing.T) {
	ctx := context.Background()
	local := newTestMemory(t)
	remote := &recordingStore{Memory: newTestMemory(t)}
	tiered := NewTiered(remote, local, nil)

	require.NoError(t, tiered.Set(ctx, "biz-1:a", []byte("1"), time.Minute))
	require.NoError(t, tiered.Set(ctx, "biz-1:b", []byte("2"), time.Minute))
	local.Wait()
	remote.Wait()

	count, err := tiered.DeletePattern(ctx, "biz-1:*")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	_, err = tiered.Get(ctx, "biz-1:a")
	assert.ErrorIs(t, err, ErrCacheMiss)
}
