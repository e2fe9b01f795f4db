package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/convoflow/convoflow/internal/domain"
	"github.com/convoflow/convoflow/internal/embedding"
	"github.com/convoflow/convoflow/internal/telemetry"
)

const (
	// Search over-fetches before reranking; the candidate pool is
	// bounded on both ends.
	overfetchFactor = 4
	minOverfetch    = 20
	maxOverfetch    = 200

	// MaxSearchLimit caps the number of snippets a single search returns.
	MaxSearchLimit = 50

	reindexBatchSize = 100
)

// EmbeddingGateway is the slice of the embedding package the retriever
// depends on.
type EmbeddingGateway interface {
	Embed(ctx context.Context, text string) (*embedding.Result, error)
	Rerank(ctx context.Context, query string, candidates []string) []embedding.Ranked
	ActiveProvider() string
}

// ChunkMatch is one vector search hit with its cosine similarity in [0, 1].
type ChunkMatch struct {
	Chunk      *domain.KnowledgeChunk
	Similarity float64
}

// ChunkStore is the persistence surface the retriever needs.
type ChunkStore interface {
	Search(ctx context.Context, businessID string, vector []float32, provider string, limit int) ([]*ChunkMatch, error)
	SetEmbedding(ctx context.Context, businessID, chunkID string, vector []float32, provider string) error
	ListUnindexed(ctx context.Context, businessID string, limit int) ([]*domain.KnowledgeChunk, error)
	ClearEmbeddings(ctx context.Context, businessID string) (int, error)
	DeleteByKnowledge(ctx context.Context, businessID, knowledgeID string) error
}

// SearchResult is one retrieved snippet with its scores. Similarity is
// raw cosine similarity from the vector index; Score is the rerank score
// that decides ordering.
type SearchResult struct {
	ChunkID     string  `json:"chunk_id"`
	KnowledgeID string  `json:"knowledge_id"`
	Title       string  `json:"title"`
	Content     string  `json:"content"`
	ChunkIndex  int     `json:"chunk_index"`
	Similarity  float64 `json:"similarity"`
	Score       float64 `json:"score"`
	Provider    string  `json:"provider"`
}

// ReindexReport summarizes a tenant reindex run.
type ReindexReport struct {
	Indexed int `json:"indexed"`
	Failed  int `json:"failed"`
}

// RetrievalService owns the vector index: indexing chunk text and
// answering similarity searches over one tenant's knowledge.
type RetrievalService struct {
	gateway EmbeddingGateway
	chunks  ChunkStore
	logger  *zap.Logger
}

func NewRetrievalService(gateway EmbeddingGateway, chunks ChunkStore, logger *zap.Logger) *RetrievalService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RetrievalService{gateway: gateway, chunks: chunks, logger: logger}
}

// Index embeds text and stores the vector for the chunk. Passing a
// pre-computed vector skips the provider call. Indexing the same chunk
// twice converges on the same stored state.
func (s *RetrievalService) Index(ctx context.Context, businessID, chunkID, text string, vector []float32) error {
	if businessID == "" {
		return domain.ErrMissingBusinessID
	}

	provider := s.gateway.ActiveProvider()
	if len(vector) == 0 {
		result, err := s.gateway.Embed(ctx, text)
		if err != nil {
			return err
		}
		vector = result.Vector
		provider = result.Provider
	}

	return s.chunks.SetEmbedding(ctx, businessID, chunkID, vector, provider)
}

// Search embeds the query, over-fetches nearest chunks from the tenant's
// slice of the index, reranks them, filters by minSimilarity and returns
// the top limit results. No matches is an empty slice, not an error.
func (s *RetrievalService) Search(ctx context.Context, businessID, query string, limit int, minSimilarity float64) ([]*SearchResult, error) {
	if businessID == "" {
		return nil, domain.ErrMissingBusinessID
	}
	if limit <= 0 || limit > MaxSearchLimit {
		return nil, domain.ErrInvalidSearchLimit
	}

	ctx, span := telemetry.StartSpan(ctx, "retrieval.search", telemetry.SpanAttributes{
		BusinessID: businessID,
		Operation:  "search",
	})
	defer span.End()

	embedded, err := s.gateway.Embed(ctx, query)
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	overfetch := limit * overfetchFactor
	if overfetch < minOverfetch {
		overfetch = minOverfetch
	}
	if overfetch > maxOverfetch {
		overfetch = maxOverfetch
	}

	matches, err := s.chunks.Search(ctx, businessID, embedded.Vector, embedded.Provider, overfetch)
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	if len(matches) == 0 {
		return []*SearchResult{}, nil
	}

	candidates := make([]string, len(matches))
	for i, m := range matches {
		candidates[i] = m.Chunk.Content
	}
	ranked := s.gateway.Rerank(ctx, query, candidates)

	results := make([]*SearchResult, 0, limit)
	for _, r := range ranked {
		m := matches[r.Index]
		if m.Similarity < minSimilarity {
			continue
		}
		results = append(results, &SearchResult{
			ChunkID:     m.Chunk.ID,
			KnowledgeID: m.Chunk.KnowledgeID,
			Title:       m.Chunk.Metadata.Title,
			Content:     m.Chunk.Content,
			ChunkIndex:  m.Chunk.ChunkIndex,
			Similarity:  m.Similarity,
			Score:       r.Score,
			Provider:    m.Chunk.Provider,
		})
		if len(results) == limit {
			break
		}
	}
	return results, nil
}

// ReindexTenant clears every stored vector for the tenant and re-embeds
// all chunks with the active provider. Per-chunk failures are logged and
// counted, never fatal for the run.
func (s *RetrievalService) ReindexTenant(ctx context.Context, businessID string) (*ReindexReport, error) {
	if businessID == "" {
		return nil, domain.ErrMissingBusinessID
	}

	cleared, err := s.chunks.ClearEmbeddings(ctx, businessID)
	if err != nil {
		return nil, err
	}
	s.logger.Info("reindex started",
		zap.String("business_id", businessID), zap.Int("chunks", cleared))

	report := &ReindexReport{}
	attempted := make(map[string]bool)
	for {
		// Failed chunks stay unindexed and sort oldest-first, so the
		// fetch window grows past them to reach the untried remainder.
		batch, err := s.chunks.ListUnindexed(ctx, businessID, reindexBatchSize+len(attempted))
		if err != nil {
			return report, err
		}

		progressed := false
		for _, chunk := range batch {
			if attempted[chunk.ID] {
				continue
			}
			attempted[chunk.ID] = true
			progressed = true

			if err := s.Index(ctx, businessID, chunk.ID, chunk.Content, nil); err != nil {
				report.Failed++
				s.logger.Warn("reindex: chunk failed",
					zap.String("business_id", businessID),
					zap.String("chunk_id", chunk.ID), zap.Error(err))
				continue
			}
			report.Indexed++
		}

		if !progressed {
			break
		}
	}

	s.logger.Info("reindex finished",
		zap.String("business_id", businessID),
		zap.Int("indexed", report.Indexed), zap.Int("failed", report.Failed))
	return report, nil
}

// DeleteChunkVectors drops all chunks of a knowledge entry from the index.
func (s *RetrievalService) DeleteChunkVectors(ctx context.Context, businessID, knowledgeID string) error {
	if businessID == "" {
		return domain.ErrMissingBusinessID
	}
	return s.chunks.DeleteByKnowledge(ctx, businessID, knowledgeID)
}
