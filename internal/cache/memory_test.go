package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMemory(t *testing.T) *Memory {
	t.Helper()
	m, err := NewMemory(1 << 20)
	require.NoError(t, err)
	t.Cleanup(m.Close)
	return m
}

func TestMemory_SetGet(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory(t)

	require.NoError(t, m.Set(ctx, "biz-1:history:conv-1", []byte(`["hi"]`), time.Minute))
	m.Wait()

	data, err := m.Get(ctx, "biz-1:history:conv-1")
	require.NoError(t, err)
	assert.Equal(t, []byte(`["hi"]`), data)
}

func TestMemory_GetMiss(t *testing.T) {
	m := newTestMemory(t)

	_, err := m.Get(context.Background(), "absent")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemory_Delete(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory(t)

	require.NoError(t, m.Set(ctx, "key", []byte("value"), 0))
	m.Wait()
	require.NoError(t, m.Delete(ctx, "key"))
	m.Wait()

	_, err := m.Get(ctx, "key")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemory_TTLExpiry(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory(t)

	require.NoError(t, m.Set(ctx, "short", []byte("v"), 50*time.Millisecond))
	m.Wait()

	_, err := m.Get(ctx, "short")
	require.NoError(t, err)

	time.Sleep(80 * time.Millisecond)
	_, err = m.Get(ctx, "short")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemory_DeletePattern(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory(t)

	require.NoError(t, m.Set(ctx, "biz-1:history:conv-1", []byte("a"), time.Minute))
	require.NoError(t, m.Set(ctx, "biz-1:history:conv-2", []byte("b"), time.Minute))
	require.NoError(t, m.Set(ctx, "biz-2:history:conv-3", []byte("c"), time.Minute))
	m.Wait()

	count, err := m.DeletePattern(ctx, "biz-1:history:*")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	_, err = m.Get(ctx, "biz-1:history:conv-1")
	assert.ErrorIs(t, err, ErrCacheMiss)
	_, err = m.Get(ctx, "biz-2:history:conv-3")
	assert.NoError(t, err)
}

func TestMemory_DeletePattern_BadGlob(t *testing.T) {
	m := newTestMemory(t)

	_, err := m.DeletePattern(context.Background(), "[unclosed")
	assert.Error(t, err)
}

func TestMemory_IncrBy(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory(t)

	value, err := m.IncrBy(ctx, "biz-1:msgcount", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), value)

	value, err = m.IncrBy(ctx, "biz-1:msgcount", 4)
	require.NoError(t, err)
	assert.Equal(t, int64(5), value)

	value, err = m.IncrBy(ctx, "biz-1:msgcount", -2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), value)
}

func TestGetSetJSON(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory(t)

	type snippet struct {
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	}

	SetJSON(ctx, m, "result", snippet{Content: "refund policy", Score: 0.91}, time.Minute)
	m.Wait()

	var got snippet
	require.True(t, GetJSON(ctx, m, "result", &got))
	assert.Equal(t, "refund policy", got.Content)
	assert.InDelta(t, 0.91, got.Score, 1e-9)

	assert.False(t, GetJSON(ctx, m, "missing", &got))
}
