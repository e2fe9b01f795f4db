package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/convoflow/convoflow/internal/domain"
	"github.com/convoflow/convoflow/internal/queue"
)

const (
	// Pages whose extracted text is shorter than this are noise
	// (cookie walls, redirect stubs) and are skipped.
	minCrawledPageChars = 80

	// Embedding jobs for one document are staggered so a large ingest
	// does not burst the provider.
	embedJobStagger = 200 * time.Millisecond
)

// Enqueuer is the producer side of the job queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, name string, payload queue.Payload, opts queue.Options) queue.Outcome
}

// KnowledgeTxRepo and ChunkTxRepo are the writes that participate in
// ingestion transactions.
type KnowledgeTxRepo interface {
	Create(ctx context.Context, k *domain.KnowledgeEntry) error
	Update(ctx context.Context, k *domain.KnowledgeEntry) error
}

type ChunkTxRepo interface {
	ReplaceChunks(ctx context.Context, businessID, knowledgeID string, chunks []*domain.KnowledgeChunk) error
}

// TxRepositories exposes transactional repositories to a WithTx callback.
type TxRepositories interface {
	Knowledge() KnowledgeTxRepo
	Chunks() ChunkTxRepo
}

// IngestionTx runs knowledge and chunk writes in one transaction.
type IngestionTx interface {
	WithTx(ctx context.Context, fn func(repos TxRepositories) error) error
}

// KnowledgeLookup is the read surface the pipeline needs outside of
// transactions.
type KnowledgeLookup interface {
	FindBySourceURL(ctx context.Context, businessID, url string) (*domain.KnowledgeEntry, error)
}

// CrawledPage is the crawler's output for one fetched page.
type CrawledPage struct {
	URL   string
	Title string
	Text  string
}

// IngestionService turns raw text into persisted, chunked knowledge and
// schedules the embedding work that makes it searchable.
type IngestionService struct {
	tx       IngestionTx
	lookup   KnowledgeLookup
	enqueuer Enqueuer
	logger   *zap.Logger
	maxChars int
	uuidGen  UUIDGenerator
}

func NewIngestionService(tx IngestionTx, lookup KnowledgeLookup, enqueuer Enqueuer, maxChars int, logger *zap.Logger) *IngestionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxChars <= 0 {
		maxChars = DefaultMaxChunkChars
	}
	return &IngestionService{
		tx:       tx,
		lookup:   lookup,
		enqueuer: enqueuer,
		logger:   logger,
		maxChars: maxChars,
		uuidGen:  &DefaultUUIDGenerator{},
	}
}

// IngestInput is the input for ingesting one document.
type IngestInput struct {
	BusinessID string
	Title      string
	Body       string
	Tags       []string
	Source     domain.KnowledgeSource
	SourceURL  string
}

// IngestText persists a knowledge entry, chunks it, and enqueues one
// embedding job per chunk. The entry and its chunks commit atomically;
// job enqueues happen after commit and are best-effort.
func (s *IngestionService) IngestText(ctx context.Context, input IngestInput) (string, error) {
	entry := domain.NewKnowledgeEntry(s.uuidGen.NewString(), input.BusinessID, input.Title, input.Body, input.Source)
	entry.Tags = input.Tags
	entry.SourceURL = input.SourceURL
	if err := entry.Validate(); err != nil {
		return "", err
	}

	chunks := s.buildChunks(entry)
	err := s.tx.WithTx(ctx, func(repos TxRepositories) error {
		if err := repos.Knowledge().Create(ctx, entry); err != nil {
			return err
		}
		return repos.Chunks().ReplaceChunks(ctx, entry.BusinessID, entry.ID, chunks)
	})
	if err != nil {
		return "", err
	}

	s.enqueueEmbeddings(ctx, entry, chunks)
	return entry.ID, nil
}

// Reingest replaces the entry's body and chunks, then re-enqueues
// embedding work. Used for edits; stale vectors are discarded with the
// replaced chunks.
func (s *IngestionService) Reingest(ctx context.Context, entry *domain.KnowledgeEntry) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	entry.UpdatedAt = time.Now().UTC()

	chunks := s.buildChunks(entry)
	err := s.tx.WithTx(ctx, func(repos TxRepositories) error {
		if err := repos.Knowledge().Update(ctx, entry); err != nil {
			return err
		}
		return repos.Chunks().ReplaceChunks(ctx, entry.BusinessID, entry.ID, chunks)
	})
	if err != nil {
		return err
	}

	s.enqueueEmbeddings(ctx, entry, chunks)
	return nil
}

// IngestCrawledPage ingests one crawled page, skipping near-empty
// extractions. Re-crawling a known URL updates its entry in place.
func (s *IngestionService) IngestCrawledPage(ctx context.Context, businessID string, page CrawledPage) (entryID string, skipped bool, err error) {
	text := strings.TrimSpace(page.Text)
	if len([]rune(text)) < minCrawledPageChars {
		s.logger.Debug("skipping near-empty page",
			zap.String("business_id", businessID), zap.String("url", page.URL))
		return "", true, nil
	}

	existing, err := s.lookup.FindBySourceURL(ctx, businessID, page.URL)
	if err != nil && !errors.Is(err, domain.ErrKnowledgeNotFound) {
		return "", false, err
	}

	if existing != nil {
		existing.Title = page.Title
		existing.Body = text
		if err := s.Reingest(ctx, existing); err != nil {
			return "", false, err
		}
		return existing.ID, false, nil
	}

	id, err := s.IngestText(ctx, IngestInput{
		BusinessID: businessID,
		Title:      page.Title,
		Body:       text,
		Source:     domain.KnowledgeSourceCrawler,
		SourceURL:  page.URL,
	})
	if err != nil {
		return "", false, err
	}
	return id, false, nil
}

func (s *IngestionService) buildChunks(entry *domain.KnowledgeEntry) []*domain.KnowledgeChunk {
	texts := ChunkText(entry.Body, s.maxChars)
	chunks := make([]*domain.KnowledgeChunk, 0, len(texts))
	for i, text := range texts {
		chunks = append(chunks, &domain.KnowledgeChunk{
			ID:          s.uuidGen.NewString(),
			KnowledgeID: entry.ID,
			BusinessID:  entry.BusinessID,
			ChunkIndex:  i,
			TotalChunks: len(texts),
			Content:     text,
			Metadata: domain.ChunkMetadata{
				Title:       entry.Title,
				ChunkIndex:  i,
				TotalChunks: len(texts),
			},
		})
	}
	return chunks
}

func (s *IngestionService) enqueueEmbeddings(ctx context.Context, entry *domain.KnowledgeEntry, chunks []*domain.KnowledgeChunk) {
	for i, chunk := range chunks {
		outcome := s.enqueuer.Enqueue(ctx, "embed-chunk", queue.EmbeddingPayload{
			BusinessID:  entry.BusinessID,
			KnowledgeID: entry.ID,
			ChunkID:     chunk.ID,
		}, queue.Options{Delay: time.Duration(i) * embedJobStagger})
		if !outcome.Enqueued {
			s.logger.Warn("embedding job dropped",
				zap.String("knowledge_id", entry.ID),
				zap.String("chunk_id", chunk.ID),
				zap.String("reason", outcome.DropReason))
		}
	}
}
