package embedding

import (
	"context"
	"errors"

	"google.golang.org/genai"
)

const (
	// GeminiProviderName tags vectors generated by this provider.
	GeminiProviderName = "gemini"

	geminiEmbeddingModel      = "text-embedding-004"
	geminiEmbeddingDimensions = 768
)

// GeminiProvider generates embeddings via the Gemini API.
type GeminiProvider struct {
	client *genai.Client
}

// NewGeminiProvider creates the Gemini provider.
func NewGeminiProvider(ctx context.Context, apiKey string) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}
	return &GeminiProvider{client: client}, nil
}

func (p *GeminiProvider) Name() string {
	return GeminiProviderName
}

func (p *GeminiProvider) Dimensions() int {
	return geminiEmbeddingDimensions
}

func (p *GeminiProvider) Embed(ctx context.Context, text string) ([]float32, int, error) {
	if err := validateInput(text); err != nil {
		return nil, 0, err
	}

	vectors, tokens, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, 0, err
	}
	return vectors[0], tokens, nil
}

func (p *GeminiProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, int, error) {
	if len(texts) == 0 {
		return nil, 0, nil
	}

	contents := make([]*genai.Content, 0, len(texts))
	for _, text := range texts {
		contents = append(contents, genai.NewContentFromText(text, genai.RoleUser))
	}

	resp, err := p.client.Models.EmbedContent(ctx, geminiEmbeddingModel, contents, nil)
	if err != nil {
		return nil, 0, &ProviderError{Provider: p.Name(), Err: err}
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, 0, &ProviderError{
			Provider: p.Name(),
			Err:      errors.New("embedding count does not match input count"),
		}
	}

	vectors := make([][]float32, len(texts))
	for i, emb := range resp.Embeddings {
		if emb == nil || len(emb.Values) != p.Dimensions() {
			return nil, 0, &ProviderError{Provider: p.Name(), Err: errors.New("embedding has wrong dimensions")}
		}
		vectors[i] = emb.Values
	}

	// The Gemini embed endpoint does not report token usage.
	return vectors, 0, nil
}
