package domain

import (
	"strings"
	"time"
)

// KnowledgeSource identifies how a knowledge entry entered the system.
type KnowledgeSource string

const (
	KnowledgeSourceManual  KnowledgeSource = "manual"
	KnowledgeSourceCrawler KnowledgeSource = "crawler"
	KnowledgeSourceImport  KnowledgeSource = "import"
)

// KnowledgeEntry is a business-scoped document in the knowledge base.
// Once chunked it is immutable except through an edit, which re-chunks.
type KnowledgeEntry struct {
	ID         string
	BusinessID string
	Title      string
	Body       string
	Tags       []string
	Source     KnowledgeSource
	SourceURL  string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NewKnowledgeEntry creates a new KnowledgeEntry instance
func NewKnowledgeEntry(id, businessID, title, body string, source KnowledgeSource) *KnowledgeEntry {
	now := time.Now().UTC()
	return &KnowledgeEntry{
		ID:         id,
		BusinessID: businessID,
		Title:      title,
		Body:       body,
		Source:     source,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Validate checks required fields before persistence.
func (k *KnowledgeEntry) Validate() error {
	if k.BusinessID == "" {
		return ErrMissingBusinessID
	}
	if strings.TrimSpace(k.Body) == "" {
		return ErrEmptyKnowledgeBody
	}
	return nil
}

// ChunkMetadata is the JSON metadata persisted alongside a chunk vector.
type ChunkMetadata struct {
	Provider    string `json:"provider"`
	Title       string `json:"title"`
	ChunkIndex  int    `json:"chunkIndex"`
	TotalChunks int    `json:"totalChunks"`
}

// KnowledgeChunk is a bounded-length slice of a KnowledgeEntry's text.
// A chunk with a nil Embedding is unindexed and eligible for processing.
type KnowledgeChunk struct {
	ID          string
	KnowledgeID string
	BusinessID  string
	ChunkIndex  int
	TotalChunks int
	Content     string
	Embedding   []float32
	Provider    string
	Metadata    ChunkMetadata
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Indexed reports whether the chunk has a stored embedding.
func (c *KnowledgeChunk) Indexed() bool {
	return len(c.Embedding) > 0
}
