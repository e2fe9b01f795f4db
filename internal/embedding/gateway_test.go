package embedding

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convoflow/convoflow/internal/cache"
	"github.com/convoflow/convoflow/internal/domain"
)

// stubProvider is a scriptable Provider for gateway tests.
type stubProvider struct {
	name    string
	dim     int
	err     error
	calls   int
	batches int
}

func (s *stubProvider) Name() string    { return s.name }
func (s *stubProvider) Dimensions() int { return s.dim }

func (s *stubProvider) Embed(_ context.Context, text string) ([]float32, int, error) {
	s.calls++
	if s.err != nil {
		return nil, 0, &ProviderError{Provider: s.name, Err: s.err}
	}
	return s.vectorFor(text), len(text), nil
}

func (s *stubProvider) EmbedBatch(_ context.Context, texts []string) ([][]float32, int, error) {
	s.batches++
	if s.err != nil {
		return nil, 0, &ProviderError{Provider: s.name, Err: s.err}
	}
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = s.vectorFor(text)
	}
	return vectors, 0, nil
}

// vectorFor produces a deterministic unit-ish vector so cosine scores vary
// by text content.
func (s *stubProvider) vectorFor(text string) []float32 {
	vec := make([]float32, s.dim)
	for i, r := range text {
		vec[(i+int(r))%s.dim] += 1
	}
	if len(text) == 0 {
		vec[0] = 1
	}
	return vec
}

func newTestCache(t *testing.T) *cache.Tiered {
	t.Helper()
	mem, err := cache.NewMemory(1 << 20)
	require.NoError(t, err)
	t.Cleanup(mem.Close)
	return cache.NewTiered(nil, mem, nil)
}

func TestGateway_Embed_PrimaryWins(t *testing.T) {
	primary := &stubProvider{name: "openai", dim: 8}
	secondary := &stubProvider{name: "gemini", dim: 4}
	gw := NewGateway([]Provider{primary, secondary}, nil, nil)

	result, err := gw.Embed(context.Background(), "hello world")
	require.NoError(t, err)
	assert.Equal(t, "openai", result.Provider)
	assert.Len(t, result.Vector, 8)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 0, secondary.calls)
}

func TestGateway_Embed_FallsBackToSecondary(t *testing.T) {
	primary := &stubProvider{name: "openai", dim: 8, err: errors.New("rate limited")}
	secondary := &stubProvider{name: "gemini", dim: 4}
	gw := NewGateway([]Provider{primary, secondary}, nil, nil)

	result, err := gw.Embed(context.Background(), "hello world")
	require.NoError(t, err)
	assert.Equal(t, "gemini", result.Provider)
	assert.Len(t, result.Vector, 4)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 1, secondary.calls)
}

func TestGateway_Embed_AllProvidersFail(t *testing.T) {
	primary := &stubProvider{name: "openai", dim: 8, err: errors.New("down")}
	secondary := &stubProvider{name: "gemini", dim: 4, err: errors.New("also down")}
	gw := NewGateway([]Provider{primary, secondary}, nil, nil)

	_, err := gw.Embed(context.Background(), "hello")
	require.Error(t, err)

	var domainErr *domain.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, domain.ErrCodeProvider, domainErr.Code)
}

func TestGateway_Embed_NoProviders(t *testing.T) {
	gw := NewGateway(nil, nil, nil)

	_, err := gw.Embed(context.Background(), "hello")
	assert.ErrorIs(t, err, domain.ErrNoProviderConfigured)
}

func TestGateway_Embed_EmptyInput(t *testing.T) {
	gw := NewGateway([]Provider{&stubProvider{name: "openai", dim: 8}}, nil, nil)

	_, err := gw.Embed(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrEmptyEmbeddingInput)
}

func TestGateway_Embed_CachesResult(t *testing.T) {
	provider := &stubProvider{name: "openai", dim: 8}
	c := newTestCache(t)
	gw := NewGateway([]Provider{provider}, c, nil)

	first, err := gw.Embed(context.Background(), "stable text")
	require.NoError(t, err)

	// Allow the async in-process tier to apply the write.
	time.Sleep(20 * time.Millisecond)

	second, err := gw.Embed(context.Background(), "stable text")
	require.NoError(t, err)
	assert.Equal(t, first.Vector, second.Vector)
	assert.Equal(t, 1, provider.calls, "second call must be served from cache")
}

func TestGateway_EmbedBatch_FallsBack(t *testing.T) {
	primary := &stubProvider{name: "openai", dim: 8, err: errors.New("boom")}
	secondary := &stubProvider{name: "gemini", dim: 4}
	gw := NewGateway([]Provider{primary, secondary}, nil, nil)

	vectors, providerName, err := gw.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, "gemini", providerName)
	assert.Len(t, vectors, 3)
}

func TestGateway_ActiveProvider(t *testing.T) {
	gw := NewGateway([]Provider{
		&stubProvider{name: "openai", dim: 1536},
		&stubProvider{name: "gemini", dim: 768},
	}, nil, nil)

	assert.Equal(t, "openai", gw.ActiveProvider())
	assert.Equal(t, 1536, gw.ActiveDimensions())

	empty := NewGateway(nil, nil, nil)
	assert.Equal(t, "", empty.ActiveProvider())
}
