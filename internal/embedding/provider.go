// Package embedding wraps the external embedding providers behind one
// gateway with ordered fallback, response caching, and rerank support.
package embedding

import (
	"context"
	"errors"

	"github.com/convoflow/convoflow/internal/domain"
)

// Provider generates embeddings with one external service. Vectors from
// different providers have different dimensions and are never comparable.
type Provider interface {
	// Name identifies the provider; it is persisted alongside every vector.
	Name() string

	// Dimensions is the fixed vector length this provider produces.
	Dimensions() int

	// Embed returns the vector for text plus the token count billed.
	Embed(ctx context.Context, text string) ([]float32, int, error)

	// EmbedBatch embeds texts in order. Output length equals input length.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, int, error)
}

// Result is one successful embedding call.
type Result struct {
	Vector     []float32
	Provider   string
	TokensUsed int
}

// ProviderError wraps a failed third-party call so callers can distinguish
// provider outages from local errors.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return "provider " + e.Provider + ": " + e.Err.Error()
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// IsProviderError reports whether err originated in a provider call.
func IsProviderError(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}

func validateInput(text string) error {
	if text == "" {
		return domain.ErrEmptyEmbeddingInput
	}
	return nil
}
