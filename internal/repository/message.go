package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/convoflow/convoflow/internal/domain"
)

type MessageRepository struct {
	db dbtx
}

func NewMessageRepository(pool *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{db: pool}
}

func (r *MessageRepository) Create(ctx context.Context, m *domain.Message) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO messages (id, conversation_id, sender, content, sentiment, language, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		m.ID, m.ConversationID, m.Sender, m.Content, nullableString(m.Sentiment), nullableString(m.Language), m.CreatedAt,
	)
	return err
}

func (r *MessageRepository) GetByID(ctx context.Context, id string) (*domain.Message, error) {
	row := r.db.QueryRow(ctx,
		`SELECT id, conversation_id, sender, content, sentiment, language, created_at
		 FROM messages WHERE id = $1`,
		id,
	)
	m, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrMessageNotFound
		}
		return nil, err
	}
	return m, nil
}

// ListRecent returns the newest messages of a conversation in
// chronological order.
func (r *MessageRepository) ListRecent(ctx context.Context, conversationID string, limit int) ([]*domain.Message, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.db.Query(ctx,
		`SELECT id, conversation_id, sender, content, sentiment, language, created_at
		 FROM (
			 SELECT id, conversation_id, sender, content, sentiment, language, created_at
			 FROM messages
			 WHERE conversation_id = $1
			 ORDER BY created_at DESC, id DESC
			 LIMIT $2
		 ) recent
		 ORDER BY created_at ASC, id ASC`,
		conversationID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*domain.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// SetAnalysis records asynchronous sentiment or language results. Empty
// arguments leave the stored value untouched.
func (r *MessageRepository) SetAnalysis(ctx context.Context, id, sentiment, language string) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE messages
		 SET sentiment = COALESCE($1, sentiment), language = COALESCE($2, language)
		 WHERE id = $3`,
		nullableString(sentiment), nullableString(language), id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrMessageNotFound
	}
	return nil
}

func scanMessage(row pgx.Row) (*domain.Message, error) {
	var m domain.Message
	var sentiment, language *string
	if err := row.Scan(&m.ID, &m.ConversationID, &m.Sender, &m.Content, &sentiment, &language, &m.CreatedAt); err != nil {
		return nil, err
	}
	if sentiment != nil {
		m.Sentiment = *sentiment
	}
	if language != nil {
		m.Language = *language
	}
	return &m, nil
}
