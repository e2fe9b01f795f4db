//go:build integration

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convoflow/convoflow/internal/domain"
	"github.com/convoflow/convoflow/internal/testutil"
)

// testVectorSized builds a unit-ish vector of the given width dominated by
// one axis so cosine ordering in tests is predictable.
func testVectorSized(dim, axis int) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = 0.001
	}
	v[axis] = 1
	return v
}

// testVector is the openai-width (1536) variant.
func testVector(axis int) []float32 {
	return testVectorSized(1536, axis)
}

func seedEntry(ctx context.Context, t *testing.T, pool interface{}, bizRepo *BusinessRepository, kRepo *KnowledgeRepository) (*domain.Business, *domain.KnowledgeEntry) {
	b := newStoredBusiness(ctx, t, bizRepo)
	entry := domain.NewKnowledgeEntry(uuid.NewString(), b.ID, "Opening hours", "We are open weekdays 9 to 5.", domain.KnowledgeSourceManual)
	require.NoError(t, kRepo.Create(ctx, entry))
	return b, entry
}

func newChunk(businessID, knowledgeID string, index, total int, content string) *domain.KnowledgeChunk {
	return &domain.KnowledgeChunk{
		ID:          uuid.NewString(),
		KnowledgeID: knowledgeID,
		BusinessID:  businessID,
		ChunkIndex:  index,
		TotalChunks: total,
		Content:     content,
		CreatedAt:   time.Now().UTC(),
	}
}

func TestKnowledgeChunkRepository_ReplaceAndList(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	bizRepo := NewBusinessRepository(pool)
	kRepo := NewKnowledgeRepository(pool)
	chunkRepo := NewKnowledgeChunkRepository(pool)

	b, entry := seedEntry(ctx, t, pool, bizRepo, kRepo)

	first := []*domain.KnowledgeChunk{
		newChunk(b.ID, entry.ID, 0, 2, "part one"),
		newChunk(b.ID, entry.ID, 1, 2, "part two"),
	}
	require.NoError(t, chunkRepo.ReplaceChunks(ctx, b.ID, entry.ID, first))

	replacement := []*domain.KnowledgeChunk{
		newChunk(b.ID, entry.ID, 0, 1, "rewritten"),
	}
	require.NoError(t, chunkRepo.ReplaceChunks(ctx, b.ID, entry.ID, replacement))

	chunks, err := chunkRepo.ListByKnowledge(ctx, b.ID, entry.ID)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "rewritten", chunks[0].Content)
	assert.False(t, chunks[0].Indexed())
}

func TestKnowledgeChunkRepository_SetEmbeddingAndSearch(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	bizRepo := NewBusinessRepository(pool)
	kRepo := NewKnowledgeRepository(pool)
	chunkRepo := NewKnowledgeChunkRepository(pool)

	b, entry := seedEntry(ctx, t, pool, bizRepo, kRepo)

	chunks := []*domain.KnowledgeChunk{
		newChunk(b.ID, entry.ID, 0, 2, "hours of operation"),
		newChunk(b.ID, entry.ID, 1, 2, "parking information"),
	}
	require.NoError(t, chunkRepo.ReplaceChunks(ctx, b.ID, entry.ID, chunks))

	require.NoError(t, chunkRepo.SetEmbedding(ctx, b.ID, chunks[0].ID, testVector(0), "openai"))
	require.NoError(t, chunkRepo.SetEmbedding(ctx, b.ID, chunks[1].ID, testVector(700), "openai"))

	matches, err := chunkRepo.Search(ctx, b.ID, testVector(0), "openai", 10)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, chunks[0].ID, matches[0].Chunk.ID)
	assert.Greater(t, matches[0].Similarity, matches[1].Similarity)
}

// Vectors produced by the fallback provider are narrower than openai's.
// Both widths must persist side by side, and search must stay inside one
// provider's vector space.
func TestKnowledgeChunkRepository_FallbackProviderDimensions(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	bizRepo := NewBusinessRepository(pool)
	kRepo := NewKnowledgeRepository(pool)
	chunkRepo := NewKnowledgeChunkRepository(pool)

	b, entry := seedEntry(ctx, t, pool, bizRepo, kRepo)

	chunks := []*domain.KnowledgeChunk{
		newChunk(b.ID, entry.ID, 0, 2, "indexed before the outage"),
		newChunk(b.ID, entry.ID, 1, 2, "indexed during the outage"),
	}
	require.NoError(t, chunkRepo.ReplaceChunks(ctx, b.ID, entry.ID, chunks))

	require.NoError(t, chunkRepo.SetEmbedding(ctx, b.ID, chunks[0].ID, testVector(0), "openai"))
	require.NoError(t, chunkRepo.SetEmbedding(ctx, b.ID, chunks[1].ID, testVectorSized(768, 5), "gemini"))

	matches, err := chunkRepo.Search(ctx, b.ID, testVectorSized(768, 5), "gemini", 10)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, chunks[1].ID, matches[0].Chunk.ID)
	assert.Equal(t, "gemini", matches[0].Chunk.Provider)

	matches, err = chunkRepo.Search(ctx, b.ID, testVector(0), "openai", 10)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, chunks[0].ID, matches[0].Chunk.ID)
}

func TestKnowledgeChunkRepository_Search_TenantIsolation(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	bizRepo := NewBusinessRepository(pool)
	kRepo := NewKnowledgeRepository(pool)
	chunkRepo := NewKnowledgeChunkRepository(pool)

	b1, entry1 := seedEntry(ctx, t, pool, bizRepo, kRepo)
	b2, entry2 := seedEntry(ctx, t, pool, bizRepo, kRepo)

	c1 := newChunk(b1.ID, entry1.ID, 0, 1, "tenant one text")
	c2 := newChunk(b2.ID, entry2.ID, 0, 1, "tenant two text")
	require.NoError(t, chunkRepo.ReplaceChunks(ctx, b1.ID, entry1.ID, []*domain.KnowledgeChunk{c1}))
	require.NoError(t, chunkRepo.ReplaceChunks(ctx, b2.ID, entry2.ID, []*domain.KnowledgeChunk{c2}))
	require.NoError(t, chunkRepo.SetEmbedding(ctx, b1.ID, c1.ID, testVector(1), "openai"))
	require.NoError(t, chunkRepo.SetEmbedding(ctx, b2.ID, c2.ID, testVector(1), "openai"))

	matches, err := chunkRepo.Search(ctx, b1.ID, testVector(1), "openai", 10)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, c1.ID, matches[0].Chunk.ID)
}

func TestKnowledgeChunkRepository_ClearEmbeddings(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	bizRepo := NewBusinessRepository(pool)
	kRepo := NewKnowledgeRepository(pool)
	chunkRepo := NewKnowledgeChunkRepository(pool)

	b, entry := seedEntry(ctx, t, pool, bizRepo, kRepo)
	c := newChunk(b.ID, entry.ID, 0, 1, "text")
	require.NoError(t, chunkRepo.ReplaceChunks(ctx, b.ID, entry.ID, []*domain.KnowledgeChunk{c}))
	require.NoError(t, chunkRepo.SetEmbedding(ctx, b.ID, c.ID, testVector(3), "gemini"))

	cleared, err := chunkRepo.ClearEmbeddings(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, cleared)

	unindexed, err := chunkRepo.ListUnindexed(ctx, b.ID, 10)
	require.NoError(t, err)
	require.Len(t, unindexed, 1)
	assert.Equal(t, c.ID, unindexed[0].ID)
}
