package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/convoflow/convoflow/internal/domain"
	"github.com/convoflow/convoflow/internal/service"
)

type HandoffRepository struct {
	db dbtx
}

func NewHandoffRepository(pool *pgxpool.Pool) *HandoffRepository {
	return &HandoffRepository{db: pool}
}

func (r *HandoffRepository) Create(ctx context.Context, h *domain.HandoffRequest) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO handoff_requests
			(id, business_id, conversation_id, agent_id, status, priority, reason, quality_score, feedback, requested_at, accepted_at, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		h.ID, h.BusinessID, h.ConversationID, nullableString(h.AgentID), h.Status, h.Priority,
		h.Reason, h.QualityScore, nullableString(h.Feedback), h.RequestedAt, h.AcceptedAt, h.CompletedAt,
	)
	return err
}

func (r *HandoffRepository) GetByID(ctx context.Context, businessID, id string) (*domain.HandoffRequest, error) {
	row := r.db.QueryRow(ctx,
		`SELECT id, business_id, conversation_id, agent_id, status, priority, reason, quality_score, feedback, requested_at, accepted_at, completed_at
		 FROM handoff_requests WHERE id = $1 AND business_id = $2`,
		id, businessID,
	)
	h, err := scanHandoff(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrHandoffNotFound
		}
		return nil, err
	}
	return h, nil
}

// GetOpenByConversation returns the conversation's non-completed handoff,
// if one exists. The uniqueness of that request is what the service layer
// checks before creating a new one.
func (r *HandoffRepository) GetOpenByConversation(ctx context.Context, businessID, conversationID string) (*domain.HandoffRequest, error) {
	row := r.db.QueryRow(ctx,
		`SELECT id, business_id, conversation_id, agent_id, status, priority, reason, quality_score, feedback, requested_at, accepted_at, completed_at
		 FROM handoff_requests
		 WHERE business_id = $1 AND conversation_id = $2 AND status != $3
		 ORDER BY requested_at DESC
		 LIMIT 1`,
		businessID, conversationID, domain.HandoffStatusCompleted,
	)
	h, err := scanHandoff(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrHandoffNotFound
		}
		return nil, err
	}
	return h, nil
}

func (r *HandoffRepository) Update(ctx context.Context, h *domain.HandoffRequest) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE handoff_requests
		 SET agent_id = $1, status = $2, quality_score = $3, feedback = $4, accepted_at = $5, completed_at = $6
		 WHERE id = $7 AND business_id = $8`,
		nullableString(h.AgentID), h.Status, h.QualityScore, nullableString(h.Feedback),
		h.AcceptedAt, h.CompletedAt, h.ID, h.BusinessID,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrHandoffNotFound
	}
	return nil
}

// ListPending returns waiting handoffs for the agent dashboard, highest
// priority first, oldest first within a priority.
func (r *HandoffRepository) ListPending(ctx context.Context, businessID string, limit int) ([]*domain.HandoffRequest, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	rows, err := r.db.Query(ctx,
		`SELECT id, business_id, conversation_id, agent_id, status, priority, reason, quality_score, feedback, requested_at, accepted_at, completed_at
		 FROM handoff_requests
		 WHERE business_id = $1 AND status = $2
		 ORDER BY priority DESC, requested_at ASC
		 LIMIT $3`,
		businessID, domain.HandoffStatusPending, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*domain.HandoffRequest
	for rows.Next() {
		h, err := scanHandoff(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, h)
	}
	return results, rows.Err()
}

// Stats aggregates handoff activity since the given cutoff.
func (r *HandoffRepository) Stats(ctx context.Context, businessID string, since time.Time) (*service.HandoffStats, error) {
	var stats service.HandoffStats
	var avgResolution, avgQuality *float64
	err := r.db.QueryRow(ctx,
		`SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = $1),
			AVG(EXTRACT(EPOCH FROM (completed_at - accepted_at))) FILTER (WHERE status = $1 AND accepted_at IS NOT NULL),
			AVG(quality_score) FILTER (WHERE quality_score IS NOT NULL),
			COUNT(quality_score)
		 FROM handoff_requests
		 WHERE business_id = $2 AND requested_at >= $3`,
		domain.HandoffStatusCompleted, businessID, since,
	).Scan(&stats.Requested, &stats.Completed, &avgResolution, &avgQuality, &stats.RatedCompletions)
	if err != nil {
		return nil, err
	}
	if avgResolution != nil {
		stats.AvgResolutionSeconds = *avgResolution
	}
	if avgQuality != nil {
		stats.AvgQualityScore = *avgQuality
	}
	return &stats, nil
}

func scanHandoff(row pgx.Row) (*domain.HandoffRequest, error) {
	var h domain.HandoffRequest
	var agentID, feedback *string
	err := row.Scan(&h.ID, &h.BusinessID, &h.ConversationID, &agentID, &h.Status, &h.Priority,
		&h.Reason, &h.QualityScore, &feedback, &h.RequestedAt, &h.AcceptedAt, &h.CompletedAt)
	if err != nil {
		return nil, err
	}
	if agentID != nil {
		h.AgentID = *agentID
	}
	if feedback != nil {
		h.Feedback = *feedback
	}
	return &h, nil
}
