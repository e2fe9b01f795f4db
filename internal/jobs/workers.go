// Package jobs binds queue topics to the services that process them.
// Each topic gets its own worker pool; handler errors flow back into the
// queue's retry and dead-letter machinery.
package jobs

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/convoflow/convoflow/internal/crawler"
	"github.com/convoflow/convoflow/internal/domain"
	"github.com/convoflow/convoflow/internal/queue"
	"github.com/convoflow/convoflow/internal/service"
)

// ChunkSource loads and updates chunks for the embedding workers.
type ChunkSource interface {
	GetByID(ctx context.Context, businessID, chunkID string) (*domain.KnowledgeChunk, error)
	SetEmbedding(ctx context.Context, businessID, chunkID string, vector []float32, provider string) error
}

// Indexer embeds chunks into the vector index.
type Indexer interface {
	Index(ctx context.Context, businessID, chunkID, text string, vector []float32) error
	ReindexTenant(ctx context.Context, businessID string) (*service.ReindexReport, error)
}

// BatchEmbedder turns several texts into vectors in one provider call.
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, string, error)
}

// MessageAnnotator fills asynchronous message analysis fields.
type MessageAnnotator interface {
	AnnotateSentiment(ctx context.Context, messageID string) error
	AnnotateLanguage(ctx context.Context, messageID string) error
}

// SiteCrawler walks a website and streams extracted pages.
type SiteCrawler interface {
	Crawl(ctx context.Context, startURL string, maxDepth int, fn crawler.PageFunc) error
}

// PageIngester persists crawled pages as knowledge.
type PageIngester interface {
	IngestCrawledPage(ctx context.Context, businessID string, page service.CrawledPage) (string, bool, error)
}

// SnapshotArchiver stores raw crawled HTML. Nil disables archiving.
type SnapshotArchiver interface {
	Store(ctx context.Context, businessID, pageURL string, body []byte) error
}

// Workers holds every dependency the queue handlers need.
type Workers struct {
	chunks      ChunkSource
	indexer     Indexer
	embedder    BatchEmbedder
	annotator   MessageAnnotator
	crawler     SiteCrawler
	ingester    PageIngester
	archive     SnapshotArchiver
	concurrency int
	logger      *zap.Logger
}

func NewWorkers(
	chunks ChunkSource,
	indexer Indexer,
	embedder BatchEmbedder,
	annotator MessageAnnotator,
	siteCrawler SiteCrawler,
	ingester PageIngester,
	archive SnapshotArchiver,
	concurrency int,
	logger *zap.Logger,
) *Workers {
	if concurrency <= 0 {
		concurrency = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Workers{
		chunks:      chunks,
		indexer:     indexer,
		embedder:    embedder,
		annotator:   annotator,
		crawler:     siteCrawler,
		ingester:    ingester,
		archive:     archive,
		concurrency: concurrency,
		logger:      logger,
	}
}

// Register attaches one worker pool per topic to the queue manager.
func (w *Workers) Register(m *queue.Manager) error {
	if err := queue.RegisterWorker(m, w.concurrency, w.handleEmbedding); err != nil {
		return fmt.Errorf("register embedding worker: %w", err)
	}
	if err := queue.RegisterWorker(m, w.concurrency, w.handleBatchEmbedding); err != nil {
		return fmt.Errorf("register batch embedding worker: %w", err)
	}
	if err := queue.RegisterWorker(m, w.concurrency, w.handleSentiment); err != nil {
		return fmt.Errorf("register sentiment worker: %w", err)
	}
	if err := queue.RegisterWorker(m, w.concurrency, w.handleLanguage); err != nil {
		return fmt.Errorf("register language worker: %w", err)
	}
	// Crawls are long-running and polite; one at a time is enough.
	if err := queue.RegisterWorker(m, 1, w.handleCrawl); err != nil {
		return fmt.Errorf("register crawl worker: %w", err)
	}
	if err := queue.RegisterWorker(m, 1, w.handleReindex); err != nil {
		return fmt.Errorf("register reindex worker: %w", err)
	}
	return nil
}

func (w *Workers) handleEmbedding(ctx context.Context, p queue.EmbeddingPayload) error {
	chunk, err := w.chunks.GetByID(ctx, p.BusinessID, p.ChunkID)
	if err != nil {
		// The entry may have been deleted between enqueue and claim.
		if errors.Is(err, domain.ErrKnowledgeNotFound) {
			w.logger.Debug("embedding target gone", zap.String("chunk_id", p.ChunkID))
			return nil
		}
		return err
	}
	if chunk.Indexed() {
		return nil
	}
	return w.indexer.Index(ctx, p.BusinessID, chunk.ID, chunk.Content, nil)
}

func (w *Workers) handleBatchEmbedding(ctx context.Context, p queue.BatchEmbeddingPayload) error {
	chunks := make([]*domain.KnowledgeChunk, 0, len(p.ChunkIDs))
	texts := make([]string, 0, len(p.ChunkIDs))
	for _, id := range p.ChunkIDs {
		chunk, err := w.chunks.GetByID(ctx, p.BusinessID, id)
		if err != nil {
			if errors.Is(err, domain.ErrKnowledgeNotFound) {
				continue
			}
			return err
		}
		if chunk.Indexed() {
			continue
		}
		chunks = append(chunks, chunk)
		texts = append(texts, chunk.Content)
	}
	if len(chunks) == 0 {
		return nil
	}

	vectors, provider, err := w.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return err
	}
	if len(vectors) != len(chunks) {
		return fmt.Errorf("batch embedding returned %d vectors for %d chunks", len(vectors), len(chunks))
	}

	for i, chunk := range chunks {
		if err := w.chunks.SetEmbedding(ctx, p.BusinessID, chunk.ID, vectors[i], provider); err != nil {
			return err
		}
	}
	return nil
}

func (w *Workers) handleSentiment(ctx context.Context, p queue.SentimentPayload) error {
	err := w.annotator.AnnotateSentiment(ctx, p.MessageID)
	if errors.Is(err, domain.ErrMessageNotFound) {
		w.logger.Debug("sentiment target gone", zap.String("message_id", p.MessageID))
		return nil
	}
	return err
}

func (w *Workers) handleLanguage(ctx context.Context, p queue.LanguagePayload) error {
	err := w.annotator.AnnotateLanguage(ctx, p.MessageID)
	if errors.Is(err, domain.ErrMessageNotFound) {
		w.logger.Debug("language target gone", zap.String("message_id", p.MessageID))
		return nil
	}
	return err
}

func (w *Workers) handleCrawl(ctx context.Context, p queue.CrawlPayload) error {
	var ingested, skipped int
	err := w.crawler.Crawl(ctx, p.URL, p.MaxDepth, func(page service.CrawledPage, rawHTML []byte) error {
		if w.archive != nil {
			if err := w.archive.Store(ctx, p.BusinessID, page.URL, rawHTML); err != nil {
				// The searchable copy matters more than the snapshot.
				w.logger.Warn("crawl snapshot failed",
					zap.String("url", page.URL), zap.Error(err))
			}
		}

		_, wasSkipped, err := w.ingester.IngestCrawledPage(ctx, p.BusinessID, page)
		if err != nil {
			return err
		}
		if wasSkipped {
			skipped++
		} else {
			ingested++
		}
		return nil
	})
	if err != nil {
		return err
	}

	w.logger.Info("crawl job finished",
		zap.String("business_id", p.BusinessID),
		zap.String("url", p.URL),
		zap.Int("ingested", ingested),
		zap.Int("skipped", skipped))
	return nil
}

func (w *Workers) handleReindex(ctx context.Context, p queue.ReindexPayload) error {
	report, err := w.indexer.ReindexTenant(ctx, p.BusinessID)
	if err != nil {
		return err
	}
	w.logger.Info("reindex job finished",
		zap.String("business_id", p.BusinessID),
		zap.Int("indexed", report.Indexed),
		zap.Int("failed", report.Failed))
	return nil
}
