package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/convoflow/convoflow/internal/domain"
)

type BusinessRepository struct {
	db dbtx
}

func NewBusinessRepository(pool *pgxpool.Pool) *BusinessRepository {
	return &BusinessRepository{db: pool}
}

func (r *BusinessRepository) Create(ctx context.Context, b *domain.Business) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO businesses (id, name, website, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		b.ID, b.Name, nullableString(b.Website), b.CreatedAt, b.UpdatedAt,
	)
	return err
}

func (r *BusinessRepository) GetByID(ctx context.Context, id string) (*domain.Business, error) {
	var b domain.Business
	var website *string
	err := r.db.QueryRow(ctx,
		`SELECT id, name, website, created_at, updated_at
		 FROM businesses WHERE id = $1`,
		id,
	).Scan(&b.ID, &b.Name, &website, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrBusinessNotFound
		}
		return nil, err
	}
	if website != nil {
		b.Website = *website
	}
	return &b, nil
}

func (r *BusinessRepository) List(ctx context.Context) ([]*domain.Business, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, name, website, created_at, updated_at
		 FROM businesses ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*domain.Business
	for rows.Next() {
		var b domain.Business
		var website *string
		if err := rows.Scan(&b.ID, &b.Name, &website, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, err
		}
		if website != nil {
			b.Website = *website
		}
		results = append(results, &b)
	}
	return results, rows.Err()
}

func (r *BusinessRepository) Update(ctx context.Context, b *domain.Business) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE businesses SET name = $1, website = $2, updated_at = $3 WHERE id = $4`,
		b.Name, nullableString(b.Website), b.UpdatedAt, b.ID,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrBusinessNotFound
	}
	return nil
}

func (r *BusinessRepository) Delete(ctx context.Context, id string) error {
	cmdTag, err := r.db.Exec(ctx, `DELETE FROM businesses WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrBusinessNotFound
	}
	return nil
}
