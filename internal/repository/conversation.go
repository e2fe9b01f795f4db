package repository

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/convoflow/convoflow/internal/domain"
	"github.com/convoflow/convoflow/internal/pagination"
)

type ConversationRepository struct {
	db dbtx
}

func NewConversationRepository(pool *pgxpool.Pool) *ConversationRepository {
	return &ConversationRepository{db: pool}
}

func (r *ConversationRepository) Create(ctx context.Context, c *domain.Conversation) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO conversations (id, business_id, visitor_id, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		c.ID, c.BusinessID, c.VisitorID, c.Status, c.CreatedAt, c.UpdatedAt,
	)
	return err
}

func (r *ConversationRepository) GetByID(ctx context.Context, businessID, id string) (*domain.Conversation, error) {
	var c domain.Conversation
	err := r.db.QueryRow(ctx,
		`SELECT id, business_id, visitor_id, status, created_at, updated_at
		 FROM conversations WHERE id = $1 AND business_id = $2`,
		id, businessID,
	).Scan(&c.ID, &c.BusinessID, &c.VisitorID, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrConversationNotFound
		}
		return nil, err
	}
	return &c, nil
}

// GetOpenByVisitor returns the visitor's most recent non-closed
// conversation, so a returning visitor resumes rather than forks threads.
func (r *ConversationRepository) GetOpenByVisitor(ctx context.Context, businessID, visitorID string) (*domain.Conversation, error) {
	var c domain.Conversation
	err := r.db.QueryRow(ctx,
		`SELECT id, business_id, visitor_id, status, created_at, updated_at
		 FROM conversations
		 WHERE business_id = $1 AND visitor_id = $2 AND status != $3
		 ORDER BY updated_at DESC
		 LIMIT 1`,
		businessID, visitorID, domain.ConversationStatusClosed,
	).Scan(&c.ID, &c.BusinessID, &c.VisitorID, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrConversationNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (r *ConversationRepository) UpdateStatus(ctx context.Context, businessID, id string, status domain.ConversationStatus, at time.Time) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE conversations SET status = $1, updated_at = $2
		 WHERE id = $3 AND business_id = $4`,
		status, at, id, businessID,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrConversationNotFound
	}
	return nil
}

// Touch bumps updated_at so recency ordering follows message activity.
func (r *ConversationRepository) Touch(ctx context.Context, businessID, id string, at time.Time) error {
	_, err := r.db.Exec(ctx,
		`UPDATE conversations SET updated_at = $1 WHERE id = $2 AND business_id = $3`,
		at, id, businessID,
	)
	return err
}

func (r *ConversationRepository) ListByBusiness(ctx context.Context, businessID string, status domain.ConversationStatus, limit int, cursor string) (*pagination.PageResult[*domain.Conversation], error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	decoded, err := pagination.Decode(cursor)
	if err != nil {
		return nil, err
	}

	query := `SELECT id, business_id, visitor_id, status, created_at, updated_at
	          FROM conversations WHERE business_id = $1`
	args := []any{businessID}
	if status != "" {
		query += ` AND status = $` + strconv.Itoa(len(args)+1)
		args = append(args, status)
	}
	if decoded != nil {
		n := len(args)
		query += ` AND (updated_at, id) < ($` + strconv.Itoa(n+1) + `, $` + strconv.Itoa(n+2) + `)`
		args = append(args, decoded.Timestamp, decoded.LastID)
	}
	query += ` ORDER BY updated_at DESC, id DESC LIMIT $` + strconv.Itoa(len(args)+1)
	args = append(args, limit+1)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*domain.Conversation
	for rows.Next() {
		var c domain.Conversation
		if err := rows.Scan(&c.ID, &c.BusinessID, &c.VisitorID, &c.Status, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, &c)
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
		next = pagination.Encode(last.ID, last.UpdatedAt)
	}
	return &pagination.PageResult[*domain.Conversation]{Items: items, Cursor: next, HasMore: hasMore}, nil
}
