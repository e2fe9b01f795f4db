package llm

import (
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"

	"github.com/convoflow/convoflow/internal/domain"
	"github.com/convoflow/convoflow/internal/service"
)

func TestBuildSystemPrompt(t *testing.T) {
	prompt := buildSystemPrompt([]*service.SearchResult{
		{Title: "Refund policy", Content: "Refunds are processed within 14 days."},
		{Title: "Shipping", Content: "We ship worldwide."},
	})

	assert.Contains(t, prompt, "[1] Refund policy")
	assert.Contains(t, prompt, "Refunds are processed within 14 days.")
	assert.Contains(t, prompt, "[2] Shipping")
}

func TestBuildSystemPrompt_NoSnippets(t *testing.T) {
	prompt := buildSystemPrompt(nil)
	assert.Contains(t, prompt, "No knowledge base excerpts matched")
}

func TestRoleFor(t *testing.T) {
	assert.Equal(t, openai.ChatMessageRoleAssistant, roleFor(domain.SenderBot))
	assert.Equal(t, openai.ChatMessageRoleUser, roleFor(domain.SenderUser))
	assert.Equal(t, openai.ChatMessageRoleUser, roleFor(domain.SenderAgent))
}
