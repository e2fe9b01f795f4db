package repository

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/convoflow/convoflow/internal/domain"
	"github.com/convoflow/convoflow/internal/pagination"
)

type KnowledgeRepository struct {
	db dbtx
}

func NewKnowledgeRepository(pool *pgxpool.Pool) *KnowledgeRepository {
	return &KnowledgeRepository{db: pool}
}

func NewKnowledgeRepositoryWithTx(tx pgx.Tx) *KnowledgeRepository {
	return &KnowledgeRepository{db: tx}
}

func (r *KnowledgeRepository) Create(ctx context.Context, k *domain.KnowledgeEntry) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO knowledge_entries (id, business_id, title, body, tags, source, source_url, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		k.ID, k.BusinessID, k.Title, k.Body, k.Tags, k.Source, nullableString(k.SourceURL), k.CreatedAt, k.UpdatedAt,
	)
	return err
}

func (r *KnowledgeRepository) GetByID(ctx context.Context, businessID, id string) (*domain.KnowledgeEntry, error) {
	row := r.db.QueryRow(ctx,
		`SELECT id, business_id, title, body, tags, source, source_url, created_at, updated_at
		 FROM knowledge_entries WHERE id = $1 AND business_id = $2`,
		id, businessID,
	)
	k, err := scanKnowledgeEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrKnowledgeNotFound
		}
		return nil, err
	}
	return k, nil
}

// FindBySourceURL returns the entry previously ingested from url, if any.
// Used by the crawler to update rather than duplicate on re-crawls.
func (r *KnowledgeRepository) FindBySourceURL(ctx context.Context, businessID, url string) (*domain.KnowledgeEntry, error) {
	row := r.db.QueryRow(ctx,
		`SELECT id, business_id, title, body, tags, source, source_url, created_at, updated_at
		 FROM knowledge_entries WHERE business_id = $1 AND source_url = $2`,
		businessID, url,
	)
	k, err := scanKnowledgeEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrKnowledgeNotFound
		}
		return nil, err
	}
	return k, nil
}

func (r *KnowledgeRepository) ListByBusiness(ctx context.Context, businessID string, limit int, cursor string) (*pagination.PageResult[*domain.KnowledgeEntry], error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	decoded, err := pagination.Decode(cursor)
	if err != nil {
		return nil, err
	}

	query := `SELECT id, business_id, title, body, tags, source, source_url, created_at, updated_at
	          FROM knowledge_entries WHERE business_id = $1`
	args := []any{businessID}
	if decoded != nil {
		query += ` AND (created_at, id) < ($2, $3)`
		args = append(args, decoded.Timestamp, decoded.LastID)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT $` + strconv.Itoa(len(args)+1)
	args = append(args, limit+1)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*domain.KnowledgeEntry
	for rows.Next() {
		k, err := scanKnowledgeEntry(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, k)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	hasMore := len(items) > limit
	if hasMore {
		items = items[:limit]
	}
	next := ""
	if hasMore {
		last := items[len(items)-1]
		next = pagination.Encode(last.ID, last.CreatedAt)
	}
	return &pagination.PageResult[*domain.KnowledgeEntry]{Items: items, Cursor: next, HasMore: hasMore}, nil
}

// ListIDsByBusiness returns every entry id for a business, oldest first.
func (r *KnowledgeRepository) ListIDsByBusiness(ctx context.Context, businessID string) ([]string, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id FROM knowledge_entries WHERE business_id = $1 ORDER BY created_at ASC`,
		businessID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *KnowledgeRepository) Update(ctx context.Context, k *domain.KnowledgeEntry) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE knowledge_entries
		 SET title = $1, body = $2, tags = $3, source_url = $4, updated_at = $5
		 WHERE id = $6 AND business_id = $7`,
		k.Title, k.Body, k.Tags, nullableString(k.SourceURL), k.UpdatedAt, k.ID, k.BusinessID,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrKnowledgeNotFound
	}
	return nil
}

func (r *KnowledgeRepository) Delete(ctx context.Context, businessID, id string) error {
	cmdTag, err := r.db.Exec(ctx,
		`DELETE FROM knowledge_entries WHERE id = $1 AND business_id = $2`,
		id, businessID,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrKnowledgeNotFound
	}
	return nil
}

func scanKnowledgeEntry(row pgx.Row) (*domain.KnowledgeEntry, error) {
	var k domain.KnowledgeEntry
	var sourceURL *string
	if err := row.Scan(&k.ID, &k.BusinessID, &k.Title, &k.Body, &k.Tags, &k.Source, &sourceURL, &k.CreatedAt, &k.UpdatedAt); err != nil {
		return nil, err
	}
	if sourceURL != nil {
		k.SourceURL = *sourceURL
	}
	return &k, nil
}
