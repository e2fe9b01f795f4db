package queue

import (
	"encoding/json"

	"github.com/convoflow/convoflow/internal/domain"
)

// Payload is a typed job payload. Each topic has exactly one payload shape,
// so a worker's processor signature statically guarantees what it receives.
type Payload interface {
	Topic() domain.JobTopic
}

// EmbeddingPayload asks for one chunk to be embedded and indexed.
type EmbeddingPayload struct {
	BusinessID  string `json:"businessId"`
	KnowledgeID string `json:"knowledgeId"`
	ChunkID     string `json:"chunkId"`
}

func (EmbeddingPayload) Topic() domain.JobTopic { return domain.TopicEmbedding }

// SentimentPayload asks for sentiment annotation of one message.
type SentimentPayload struct {
	BusinessID     string `json:"businessId"`
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId"`
}

func (SentimentPayload) Topic() domain.JobTopic { return domain.TopicSentiment }

// LanguagePayload asks for language detection of one message.
type LanguagePayload struct {
	BusinessID     string `json:"businessId"`
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId"`
}

func (LanguagePayload) Topic() domain.JobTopic { return domain.TopicLanguage }

// CrawlPayload asks for a bounded crawl starting at URL.
type CrawlPayload struct {
	BusinessID string `json:"businessId"`
	URL        string `json:"url"`
	MaxDepth   int    `json:"maxDepth"`
}

func (CrawlPayload) Topic() domain.JobTopic { return domain.TopicCrawling }

// ReindexPayload asks for a full re-embedding of a business's corpus with
// the active provider.
type ReindexPayload struct {
	BusinessID string `json:"businessId"`
}

func (ReindexPayload) Topic() domain.JobTopic { return domain.TopicReindex }

// BatchEmbeddingPayload asks for several chunks to be embedded in one
// provider call.
type BatchEmbeddingPayload struct {
	BusinessID  string   `json:"businessId"`
	KnowledgeID string   `json:"knowledgeId"`
	ChunkIDs    []string `json:"chunkIds"`
}

func (BatchEmbeddingPayload) Topic() domain.JobTopic { return domain.TopicBatchEmbedding }

func marshalPayload(p Payload) (json.RawMessage, error) {
	return json.Marshal(p)
}
