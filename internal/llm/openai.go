// Package llm implements reply generation and message analysis on top of
// the OpenAI chat completions API. It satisfies the service.Generator and
// service.Analyzer interfaces.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/convoflow/convoflow/internal/domain"
	"github.com/convoflow/convoflow/internal/service"
)

const (
	chatModel          = openai.GPT4oMini
	replyMaxTokens     = 500
	replyTemperature   = 0.7
	classifyMaxTokens  = 10
	analysisCharBudget = 2000
)

const systemPromptBase = `You are a helpful customer support assistant. Answer using only the knowledge base excerpts provided below. If the excerpts do not contain the answer, say you are not sure and offer to connect the customer with a human agent. Keep answers concise and reply in the customer's language.`

// Client wraps the OpenAI chat API for reply generation and lightweight
// classification tasks.
type Client struct {
	api    *openai.Client
	model  string
	logger *zap.Logger
}

func NewClient(apiKey string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		api:    openai.NewClient(apiKey),
		model:  chatModel,
		logger: logger,
	}
}

// GenerateReply produces the assistant's next turn from the conversation
// history and the retrieved knowledge snippets.
func (c *Client) GenerateReply(ctx context.Context, req service.GenerationRequest) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.History)+1)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: buildSystemPrompt(req.Snippets),
	})
	for _, m := range req.History {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    roleFor(m.Sender),
			Content: m.Content,
		})
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: replyTemperature,
		MaxTokens:   replyMaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// AnalyzeSentiment classifies text as positive, neutral, or negative.
func (c *Client) AnalyzeSentiment(ctx context.Context, text string) (string, error) {
	label, err := c.classify(ctx,
		"Classify the sentiment of the following customer message. Respond with exactly one word: positive, neutral, or negative.",
		text)
	if err != nil {
		return "", err
	}
	return service.NormalizeSentiment(label), nil
}

// DetectLanguage returns the ISO 639-1 code of the text's language.
func (c *Client) DetectLanguage(ctx context.Context, text string) (string, error) {
	label, err := c.classify(ctx,
		"Identify the language of the following text. Respond with only its two-letter ISO 639-1 code, e.g. en, ar, de.",
		text)
	if err != nil {
		return "", err
	}
	if len(label) != 2 {
		c.logger.Debug("language detection returned unexpected label", zap.String("label", label))
		return "", nil
	}
	return label, nil
}

func (c *Client) classify(ctx context.Context, instruction, text string) (string, error) {
	if runes := []rune(text); len(runes) > analysisCharBudget {
		text = string(runes[:analysisCharBudget])
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: instruction},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		Temperature: 0,
		MaxTokens:   classifyMaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("classification: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("classification returned no choices")
	}
	return strings.ToLower(strings.TrimSpace(resp.Choices[0].Message.Content)), nil
}

func buildSystemPrompt(snippets []*service.SearchResult) string {
	if len(snippets) == 0 {
		return systemPromptBase + "\n\nNo knowledge base excerpts matched this question."
	}

	var b strings.Builder
	b.WriteString(systemPromptBase)
	b.WriteString("\n\nKnowledge base excerpts:\n")
	for i, s := range snippets {
		fmt.Fprintf(&b, "\n[%d] %s\n%s\n", i+1, s.Title, s.Content)
	}
	return b.String()
}

func roleFor(sender domain.SenderClass) string {
	if sender == domain.SenderBot {
		return openai.ChatMessageRoleAssistant
	}
	// Agent turns read as user-side context for the model.
	return openai.ChatMessageRoleUser
}
