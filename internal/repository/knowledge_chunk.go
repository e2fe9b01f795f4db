package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/convoflow/convoflow/internal/domain"
	"github.com/convoflow/convoflow/internal/service"
)

// KnowledgeChunkRepository persists chunked knowledge text and embeddings.
type KnowledgeChunkRepository struct {
	db dbtx
}

func NewKnowledgeChunkRepository(pool *pgxpool.Pool) *KnowledgeChunkRepository {
	return &KnowledgeChunkRepository{db: pool}
}

func NewKnowledgeChunkRepositoryWithTx(tx pgx.Tx) *KnowledgeChunkRepository {
	return &KnowledgeChunkRepository{db: tx}
}

// ReplaceChunks drops all chunks of a knowledge entry and inserts the new
// set. Callers run this inside a transaction with the entry update so a
// reader never sees a half-chunked document.
func (r *KnowledgeChunkRepository) ReplaceChunks(ctx context.Context, businessID, knowledgeID string, chunks []*domain.KnowledgeChunk) error {
	_, err := r.db.Exec(ctx,
		`DELETE FROM knowledge_chunks WHERE knowledge_id = $1 AND business_id = $2`,
		knowledgeID, businessID,
	)
	if err != nil {
		return err
	}

	for _, c := range chunks {
		createdAt := c.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		metadata, err := json.Marshal(c.Metadata)
		if err != nil {
			return err
		}
		var vec any
		if c.Indexed() {
			vec = pgvector.NewVector(c.Embedding)
		}
		_, err = r.db.Exec(ctx,
			`INSERT INTO knowledge_chunks
				(id, knowledge_id, business_id, chunk_index, total_chunks, content, embedding, provider, metadata, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			c.ID, c.KnowledgeID, c.BusinessID, c.ChunkIndex, c.TotalChunks, c.Content,
			vec, nullableString(c.Provider), metadata, createdAt, createdAt,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// SetEmbedding stores the vector for one chunk. Writing a vector that is
// already present is a harmless overwrite, which keeps embedding workers
// safe to re-run.
func (r *KnowledgeChunkRepository) SetEmbedding(ctx context.Context, businessID, chunkID string, vector []float32, provider string) error {
	metadataPatch, err := json.Marshal(map[string]string{"provider": provider})
	if err != nil {
		return err
	}
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE knowledge_chunks
		 SET embedding = $1, provider = $2, metadata = metadata || $3::jsonb, updated_at = $4
		 WHERE id = $5 AND business_id = $6`,
		pgvector.NewVector(vector), provider, metadataPatch, time.Now().UTC(), chunkID, businessID,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrKnowledgeNotFound
	}
	return nil
}

func (r *KnowledgeChunkRepository) GetByID(ctx context.Context, businessID, id string) (*domain.KnowledgeChunk, error) {
	row := r.db.QueryRow(ctx,
		`SELECT id, knowledge_id, business_id, chunk_index, total_chunks, content, embedding, provider, metadata, created_at, updated_at
		 FROM knowledge_chunks WHERE id = $1 AND business_id = $2`,
		id, businessID,
	)
	c, err := scanChunk(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrKnowledgeNotFound
		}
		return nil, err
	}
	return c, nil
}

func (r *KnowledgeChunkRepository) ListByKnowledge(ctx context.Context, businessID, knowledgeID string) ([]*domain.KnowledgeChunk, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, knowledge_id, business_id, chunk_index, total_chunks, content, embedding, provider, metadata, created_at, updated_at
		 FROM knowledge_chunks
		 WHERE knowledge_id = $1 AND business_id = $2
		 ORDER BY chunk_index ASC`,
		knowledgeID, businessID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanChunkRows(rows)
}

// ListUnindexed returns chunks still waiting for an embedding, oldest first.
func (r *KnowledgeChunkRepository) ListUnindexed(ctx context.Context, businessID string, limit int) ([]*domain.KnowledgeChunk, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.Query(ctx,
		`SELECT id, knowledge_id, business_id, chunk_index, total_chunks, content, embedding, provider, metadata, created_at, updated_at
		 FROM knowledge_chunks
		 WHERE business_id = $1 AND embedding IS NULL
		 ORDER BY created_at ASC
		 LIMIT $2`,
		businessID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanChunkRows(rows)
}

// Search runs tenant-isolated cosine similarity over indexed chunks whose
// vectors came from the given provider. Mixing vector spaces from different
// providers produces garbage rankings, so the filter is mandatory. The
// embedding column is dimensionless; the cast to the query vector's width
// matches the per-provider expression indexes.
func (r *KnowledgeChunkRepository) Search(ctx context.Context, businessID string, vector []float32, provider string, limit int) ([]*service.ChunkMatch, error) {
	if limit <= 0 {
		limit = 20
	}

	query := fmt.Sprintf(
		`SELECT id, knowledge_id, business_id, chunk_index, total_chunks, content, embedding, provider, metadata, created_at, updated_at,
		        1 - (embedding::vector(%d) <=> $1) AS similarity
		 FROM knowledge_chunks
		 WHERE business_id = $2 AND provider = $3 AND embedding IS NOT NULL
		 ORDER BY embedding::vector(%d) <=> $1 ASC
		 LIMIT $4`, len(vector), len(vector))
	rows, err := r.db.Query(ctx, query,
		pgvector.NewVector(vector), businessID, provider, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	matches := make([]*service.ChunkMatch, 0)
	for rows.Next() {
		var c domain.KnowledgeChunk
		var similarity float64
		var vec *pgvector.Vector
		var providerCol, metadata []byte
		err := rows.Scan(&c.ID, &c.KnowledgeID, &c.BusinessID, &c.ChunkIndex, &c.TotalChunks, &c.Content,
			&vec, &providerCol, &metadata, &c.CreatedAt, &c.UpdatedAt, &similarity)
		if err != nil {
			return nil, err
		}
		if err := fillChunk(&c, vec, providerCol, metadata); err != nil {
			return nil, err
		}
		matches = append(matches, &service.ChunkMatch{Chunk: &c, Similarity: similarity})
	}
	return matches, rows.Err()
}

// ClearEmbeddings drops every stored vector for a business, making all its
// chunks eligible for re-embedding. Returns how many were cleared.
func (r *KnowledgeChunkRepository) ClearEmbeddings(ctx context.Context, businessID string) (int, error) {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE knowledge_chunks
		 SET embedding = NULL, provider = NULL, updated_at = $1
		 WHERE business_id = $2 AND embedding IS NOT NULL`,
		time.Now().UTC(), businessID,
	)
	if err != nil {
		return 0, err
	}
	return int(cmdTag.RowsAffected()), nil
}

func (r *KnowledgeChunkRepository) DeleteByKnowledge(ctx context.Context, businessID, knowledgeID string) error {
	_, err := r.db.Exec(ctx,
		`DELETE FROM knowledge_chunks WHERE knowledge_id = $1 AND business_id = $2`,
		knowledgeID, businessID,
	)
	return err
}

// CountByBusiness returns total and indexed chunk counts for a business.
func (r *KnowledgeChunkRepository) CountByBusiness(ctx context.Context, businessID string) (total, indexed int, err error) {
	err = r.db.QueryRow(ctx,
		`SELECT COUNT(*), COUNT(embedding)
		 FROM knowledge_chunks WHERE business_id = $1`,
		businessID,
	).Scan(&total, &indexed)
	return total, indexed, err
}

func scanChunkRows(rows pgx.Rows) ([]*domain.KnowledgeChunk, error) {
	var results []*domain.KnowledgeChunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, c)
	}
	return results, rows.Err()
}

func scanChunk(row pgx.Row) (*domain.KnowledgeChunk, error) {
	var c domain.KnowledgeChunk
	var vec *pgvector.Vector
	var provider, metadata []byte
	err := row.Scan(&c.ID, &c.KnowledgeID, &c.BusinessID, &c.ChunkIndex, &c.TotalChunks, &c.Content,
		&vec, &provider, &metadata, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := fillChunk(&c, vec, provider, metadata); err != nil {
		return nil, err
	}
	return &c, nil
}

func fillChunk(c *domain.KnowledgeChunk, vec *pgvector.Vector, provider, metadata []byte) error {
	if vec != nil {
		c.Embedding = vec.Slice()
	}
	if provider != nil {
		c.Provider = string(provider)
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &c.Metadata); err != nil {
			return err
		}
	}
	return nil
}
