package embedding

import (
	"context"
	"errors"

	openai "github.com/sashabaranov/go-openai"
)

const (
	// OpenAIProviderName tags vectors generated by this provider.
	OpenAIProviderName = "openai"

	openAIEmbeddingModel      = openai.SmallEmbedding3
	openAIEmbeddingDimensions = 1536
)

// OpenAIProvider generates embeddings via the OpenAI embeddings API.
type OpenAIProvider struct {
	client *openai.Client
	model  openai.EmbeddingModel
}

// NewOpenAIProvider creates the OpenAI provider.
func NewOpenAIProvider(apiKey string) *OpenAIProvider {
	return &OpenAIProvider{
		client: openai.NewClient(apiKey),
		model:  openAIEmbeddingModel,
	}
}

func (p *OpenAIProvider) Name() string {
	return OpenAIProviderName
}

func (p *OpenAIProvider) Dimensions() int {
	return openAIEmbeddingDimensions
}

func (p *OpenAIProvider) Embed(ctx context.Context, text string) ([]float32, int, error) {
	if err := validateInput(text); err != nil {
		return nil, 0, err
	}

	vectors, tokens, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, 0, err
	}
	return vectors[0], tokens, nil
}

func (p *OpenAIProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, int, error) {
	if len(texts) == 0 {
		return nil, 0, nil
	}

	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: p.model,
	})
	if err != nil {
		return nil, 0, &ProviderError{Provider: p.Name(), Err: err}
	}
	if len(resp.Data) != len(texts) {
		return nil, 0, &ProviderError{
			Provider: p.Name(),
			Err:      errors.New("embedding count does not match input count"),
		}
	}

	vectors := make([][]float32, len(texts))
	for _, item := range resp.Data {
		if item.Index < 0 || item.Index >= len(vectors) {
			return nil, 0, &ProviderError{Provider: p.Name(), Err: errors.New("embedding index out of range")}
		}
		vectors[item.Index] = item.Embedding
	}
	for i, vec := range vectors {
		if len(vec) != p.Dimensions() {
			return nil, 0, &ProviderError{
				Provider: p.Name(),
				Err:      errors.New("embedding has wrong dimensions for input " + texts[i][:min(len(texts[i]), 32)]),
			}
		}
	}

	return vectors, resp.Usage.PromptTokens, nil
}
