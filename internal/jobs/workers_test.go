package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convoflow/convoflow/internal/crawler"
	"github.com/convoflow/convoflow/internal/domain"
	"github.com/convoflow/convoflow/internal/queue"
	"github.com/convoflow/convoflow/internal/service"
)

type fakeChunkSource struct {
	chunks     map[string]*domain.KnowledgeChunk
	embeddings map[string][]float32
	setErr     error
}

func newFakeChunkSource() *fakeChunkSource {
	return &fakeChunkSource{
		chunks:     make(map[string]*domain.KnowledgeChunk),
		embeddings: make(map[string][]float32),
	}
}

func (f *fakeChunkSource) GetByID(_ context.Context, businessID, chunkID string) (*domain.KnowledgeChunk, error) {
	c, ok := f.chunks[chunkID]
	if !ok || c.BusinessID != businessID {
		return nil, domain.ErrKnowledgeNotFound
	}
	return c, nil
}

func (f *fakeChunkSource) SetEmbedding(_ context.Context, _, chunkID string, vector []float32, provider string) error {
	if f.setErr != nil {
		return f.setErr
	}
	f.embeddings[chunkID] = vector
	return nil
}

type fakeIndexer struct {
	indexed []string
	report  *service.ReindexReport
	err     error
}

func (f *fakeIndexer) Index(_ context.Context, _, chunkID, _ string, _ []float32) error {
	if f.err != nil {
		return f.err
	}
	f.indexed = append(f.indexed, chunkID)
	return nil
}

func (f *fakeIndexer) ReindexTenant(_ context.Context, _ string) (*service.ReindexReport, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.report != nil {
		return f.report, nil
	}
	return &service.ReindexReport{}, nil
}

type fakeEmbedder struct {
	vectors  [][]float32
	provider string
	err      error
	inputs   []string
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, string, error) {
	f.inputs = texts
	if f.err != nil {
		return nil, "", f.err
	}
	return f.vectors, f.provider, nil
}

type fakeAnnotator struct {
	sentiment []string
	language  []string
	err       error
}

func (f *fakeAnnotator) AnnotateSentiment(_ context.Context, messageID string) error {
	if f.err != nil {
		return f.err
	}
	f.sentiment = append(f.sentiment, messageID)
	return nil
}

func (f *fakeAnnotator) AnnotateLanguage(_ context.Context, messageID string) error {
	if f.err != nil {
		return f.err
	}
	f.language = append(f.language, messageID)
	return nil
}

type fakeSiteCrawler struct {
	pages []service.CrawledPage
	raw   []byte
	depth int
}

func (f *fakeSiteCrawler) Crawl(_ context.Context, _ string, maxDepth int, fn crawler.PageFunc) error {
	f.depth = maxDepth
	for _, p := range f.pages {
		if err := fn(p, f.raw); err != nil {
			return err
		}
	}
	return nil
}

type fakeIngester struct {
	ingested []service.CrawledPage
	skipAll  bool
	err      error
}

func (f *fakeIngester) IngestCrawledPage(_ context.Context, _ string, page service.CrawledPage) (string, bool, error) {
	if f.err != nil {
		return "", false, f.err
	}
	if f.skipAll {
		return "", true, nil
	}
	f.ingested = append(f.ingested, page)
	return "entry-1", false, nil
}

type fakeArchiver struct {
	stored map[string][]byte
	err    error
}

func (f *fakeArchiver) Store(_ context.Context, _, pageURL string, body []byte) error {
	if f.err != nil {
		return f.err
	}
	if f.stored == nil {
		f.stored = make(map[string][]byte)
	}
	f.stored[pageURL] = body
	return nil
}

func chunkFixture(id string, indexed bool) *domain.KnowledgeChunk {
	c := &domain.KnowledgeChunk{
		ID:          id,
		BusinessID:  "biz-1",
		KnowledgeID: "kn-1",
		Content:     "chunk content for " + id,
	}
	if indexed {
		c.Embedding = []float32{0.1, 0.2}
		c.Provider = "openai"
	}
	return c
}

func TestHandleEmbedding(t *testing.T) {
	chunks := newFakeChunkSource()
	chunks.chunks["c-1"] = chunkFixture("c-1", false)
	indexer := &fakeIndexer{}
	w := NewWorkers(chunks, indexer, nil, nil, nil, nil, nil, 2, nil)

	err := w.handleEmbedding(context.Background(), queue.EmbeddingPayload{
		BusinessID: "biz-1", KnowledgeID: "kn-1", ChunkID: "c-1",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"c-1"}, indexer.indexed)
}

func TestHandleEmbedding_ChunkGone(t *testing.T) {
	indexer := &fakeIndexer{}
	w := NewWorkers(newFakeChunkSource(), indexer, nil, nil, nil, nil, nil, 2, nil)

	// A deleted chunk is not a retryable failure.
	err := w.handleEmbedding(context.Background(), queue.EmbeddingPayload{
		BusinessID: "biz-1", ChunkID: "c-missing",
	})
	require.NoError(t, err)
	assert.Empty(t, indexer.indexed)
}

func TestHandleEmbedding_AlreadyIndexed(t *testing.T) {
	chunks := newFakeChunkSource()
	chunks.chunks["c-1"] = chunkFixture("c-1", true)
	indexer := &fakeIndexer{}
	w := NewWorkers(chunks, indexer, nil, nil, nil, nil, nil, 2, nil)

	err := w.handleEmbedding(context.Background(), queue.EmbeddingPayload{
		BusinessID: "biz-1", ChunkID: "c-1",
	})
	require.NoError(t, err)
	assert.Empty(t, indexer.indexed)
}

func TestHandleBatchEmbedding(t *testing.T) {
	chunks := newFakeChunkSource()
	chunks.chunks["c-1"] = chunkFixture("c-1", false)
	chunks.chunks["c-2"] = chunkFixture("c-2", true)
	chunks.chunks["c-3"] = chunkFixture("c-3", false)
	embedder := &fakeEmbedder{
		vectors:  [][]float32{{0.1}, {0.2}},
		provider: "openai",
	}
	w := NewWorkers(chunks, nil, embedder, nil, nil, nil, nil, 2, nil)

	err := w.handleBatchEmbedding(context.Background(), queue.BatchEmbeddingPayload{
		BusinessID: "biz-1",
		ChunkIDs:   []string{"c-1", "c-2", "c-3", "c-gone"},
	})
	require.NoError(t, err)

	// Indexed and deleted chunks are skipped; the rest get vectors.
	require.Len(t, embedder.inputs, 2)
	assert.Equal(t, []float32{0.1}, chunks.embeddings["c-1"])
	assert.Equal(t, []float32{0.2}, chunks.embeddings["c-3"])
	assert.NotContains(t, chunks.embeddings, "c-2")
}

func TestHandleBatchEmbedding_VectorCountMismatch(t *testing.T) {
	chunks := newFakeChunkSource()
	chunks.chunks["c-1"] = chunkFixture("c-1", false)
	embedder := &fakeEmbedder{vectors: [][]float32{{0.1}, {0.2}}, provider: "openai"}
	w := NewWorkers(chunks, nil, embedder, nil, nil, nil, nil, 2, nil)

	err := w.handleBatchEmbedding(context.Background(), queue.BatchEmbeddingPayload{
		BusinessID: "biz-1", ChunkIDs: []string{"c-1"},
	})
	assert.Error(t, err)
	assert.Empty(t, chunks.embeddings)
}

func TestHandleSentimentAndLanguage(t *testing.T) {
	annotator := &fakeAnnotator{}
	w := NewWorkers(nil, nil, nil, annotator, nil, nil, nil, 2, nil)

	require.NoError(t, w.handleSentiment(context.Background(), queue.SentimentPayload{MessageID: "msg-1"}))
	require.NoError(t, w.handleLanguage(context.Background(), queue.LanguagePayload{MessageID: "msg-1"}))
	assert.Equal(t, []string{"msg-1"}, annotator.sentiment)
	assert.Equal(t, []string{"msg-1"}, annotator.language)
}

func TestHandleSentiment_MessageGone(t *testing.T) {
	annotator := &fakeAnnotator{err: domain.ErrMessageNotFound}
	w := NewWorkers(nil, nil, nil, annotator, nil, nil, nil, 2, nil)

	assert.NoError(t, w.handleSentiment(context.Background(), queue.SentimentPayload{MessageID: "msg-gone"}))
}

func TestHandleCrawl(t *testing.T) {
	siteCrawler := &fakeSiteCrawler{
		pages: []service.CrawledPage{
			{URL: "https://example.com/", Title: "Home", Text: "welcome"},
			{URL: "https://example.com/faq", Title: "FAQ", Text: "answers"},
		},
		raw: []byte("<html>raw</html>"),
	}
	ingester := &fakeIngester{}
	archive := &fakeArchiver{}
	w := NewWorkers(nil, nil, nil, nil, siteCrawler, ingester, archive, 2, nil)

	err := w.handleCrawl(context.Background(), queue.CrawlPayload{
		BusinessID: "biz-1", URL: "https://example.com/", MaxDepth: 3,
	})
	require.NoError(t, err)

	assert.Equal(t, 3, siteCrawler.depth)
	assert.Len(t, ingester.ingested, 2)
	assert.Len(t, archive.stored, 2)
	assert.Equal(t, []byte("<html>raw</html>"), archive.stored["https://example.com/faq"])
}

func TestHandleCrawl_ArchiveFailureTolerated(t *testing.T) {
	siteCrawler := &fakeSiteCrawler{
		pages: []service.CrawledPage{{URL: "https://example.com/", Title: "Home", Text: "welcome"}},
		raw:   []byte("<html></html>"),
	}
	ingester := &fakeIngester{}
	archive := &fakeArchiver{err: errors.New("bucket unreachable")}
	w := NewWorkers(nil, nil, nil, nil, siteCrawler, ingester, archive, 2, nil)

	err := w.handleCrawl(context.Background(), queue.CrawlPayload{BusinessID: "biz-1", URL: "https://example.com/"})
	require.NoError(t, err)
	assert.Len(t, ingester.ingested, 1)
}

func TestHandleCrawl_IngestFailurePropagates(t *testing.T) {
	siteCrawler := &fakeSiteCrawler{
		pages: []service.CrawledPage{{URL: "https://example.com/", Title: "Home", Text: "welcome"}},
	}
	ingester := &fakeIngester{err: errors.New("db down")}
	w := NewWorkers(nil, nil, nil, nil, siteCrawler, ingester, nil, 2, nil)

	err := w.handleCrawl(context.Background(), queue.CrawlPayload{BusinessID: "biz-1", URL: "https://example.com/"})
	assert.EqualError(t, err, "db down")
}

func TestHandleReindex(t *testing.T) {
	indexer := &fakeIndexer{report: &service.ReindexReport{Indexed: 12, Failed: 1}}
	w := NewWorkers(nil, indexer, nil, nil, nil, nil, nil, 2, nil)

	assert.NoError(t, w.handleReindex(context.Background(), queue.ReindexPayload{BusinessID: "biz-1"}))
}

func TestRegister(t *testing.T) {
	m := queue.NewManager(nil, nil)
	w := NewWorkers(newFakeChunkSource(), &fakeIndexer{}, &fakeEmbedder{}, &fakeAnnotator{}, &fakeSiteCrawler{}, &fakeIngester{}, nil, 2, nil)

	require.NoError(t, w.Register(m))
	defer m.CloseAll()
}
