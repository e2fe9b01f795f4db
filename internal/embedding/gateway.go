package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/convoflow/convoflow/internal/cache"
	"github.com/convoflow/convoflow/internal/domain"
)

const (
	// providerCallTimeout bounds every external call so a hung provider
	// cannot stall a worker.
	providerCallTimeout = 30 * time.Second

	// embedCacheTTL is long because embeddings for identical text are stable.
	embedCacheTTL = 24 * time.Hour

	// cacheKeyPrefixBytes bounds cache key derivation; texts sharing this
	// prefix share a cache entry.
	cacheKeyPrefixBytes = 512

	batchRatePerSecond = 5
	batchBurst         = 10
)

// Gateway fronts the configured providers in a fixed priority order built
// once at startup. The first provider whose call succeeds wins; a single
// provider call is never retried in-call.
type Gateway struct {
	providers []Provider
	cache     cache.Cache
	logger    *zap.Logger
	limiter   *rate.Limiter
	timeout   time.Duration
}

// NewGateway builds the gateway over providers in priority order.
// The provider list is injected, not looked up from any global registry.
func NewGateway(providers []Provider, c cache.Cache, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{
		providers: providers,
		cache:     c,
		logger:    logger,
		limiter:   rate.NewLimiter(rate.Limit(batchRatePerSecond), batchBurst),
		timeout:   providerCallTimeout,
	}
}

// ActiveProvider is the name of the highest-priority configured provider.
// Vectors in the index are only comparable when generated by it.
func (g *Gateway) ActiveProvider() string {
	if len(g.providers) == 0 {
		return ""
	}
	return g.providers[0].Name()
}

// ActiveDimensions is the vector length of the active provider.
func (g *Gateway) ActiveDimensions() int {
	if len(g.providers) == 0 {
		return 0
	}
	return g.providers[0].Dimensions()
}

// Embed tries each provider in priority order and returns the first
// success. Results are cached for 24h keyed by a bounded prefix of text.
func (g *Gateway) Embed(ctx context.Context, text string) (*Result, error) {
	if err := validateInput(text); err != nil {
		return nil, err
	}
	if len(g.providers) == 0 {
		return nil, domain.ErrNoProviderConfigured
	}

	var lastErr error
	for _, provider := range g.providers {
		key := g.cacheKey(provider.Name(), text)
		if g.cache != nil {
			var cached Result
			if cache.GetJSON(ctx, g.cache, key, &cached) {
				return &cached, nil
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, g.timeout)
		vector, tokens, err := provider.Embed(callCtx, text)
		cancel()
		if err != nil {
			lastErr = err
			g.logger.Warn("embedding provider failed, trying next in order",
				zap.String("provider", provider.Name()), zap.Error(err))
			continue
		}

		result := &Result{Vector: vector, Provider: provider.Name(), TokensUsed: tokens}
		if g.cache != nil {
			cache.SetJSON(ctx, g.cache, key, result, embedCacheTTL)
		}
		return result, nil
	}

	return nil, domain.NewDomainErrorWithCause(domain.ErrCodeProvider, "all embedding providers failed", lastErr)
}

// EmbedBatch embeds texts with the first provider that accepts the whole
// batch, rate-limited to avoid bursting a provider. Ingestion callers retry
// failed batches through the job queue, which re-runs the provider order.
func (g *Gateway) EmbedBatch(ctx context.Context, texts []string) ([][]float32, string, error) {
	if len(texts) == 0 {
		return nil, g.ActiveProvider(), nil
	}
	if len(g.providers) == 0 {
		return nil, "", domain.ErrNoProviderConfigured
	}

	if err := g.limiter.Wait(ctx); err != nil {
		return nil, "", err
	}

	var lastErr error
	for _, provider := range g.providers {
		callCtx, cancel := context.WithTimeout(ctx, g.timeout)
		vectors, _, err := provider.EmbedBatch(callCtx, texts)
		cancel()
		if err != nil {
			lastErr = err
			g.logger.Warn("batch embedding provider failed, trying next in order",
				zap.String("provider", provider.Name()), zap.Int("batch", len(texts)), zap.Error(err))
			continue
		}
		return vectors, provider.Name(), nil
	}

	return nil, "", domain.NewDomainErrorWithCause(domain.ErrCodeProvider, "all embedding providers failed", lastErr)
}

func (g *Gateway) cacheKey(provider, text string) string {
	prefix := text
	if len(prefix) > cacheKeyPrefixBytes {
		prefix = prefix[:cacheKeyPrefixBytes]
	}
	sum := sha256.Sum256([]byte(prefix))
	return cache.Key("embedding", provider, hex.EncodeToString(sum[:16]))
}

// errProviderUnavailable distinguishes "no provider could serve" for rerank
// fallback decisions.
var errProviderUnavailable = errors.New("no rerank-capable provider available")
