package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/convoflow/convoflow/internal/domain"
)

// HandoffStats aggregates completed handoffs in a trailing window.
// Averages cover only handoffs that have the underlying data: unrated
// completions are excluded from the quality average, not counted as zero.
type HandoffStats struct {
	Requested            int     `json:"requested"`
	Completed            int     `json:"completed"`
	AvgResolutionSeconds float64 `json:"avg_resolution_seconds"`
	AvgQualityScore      float64 `json:"avg_quality_score"`
	RatedCompletions     int     `json:"rated_completions"`
}

// HandoffStore is the persistence surface for handoff requests.
type HandoffStore interface {
	Create(ctx context.Context, h *domain.HandoffRequest) error
	GetByID(ctx context.Context, businessID, id string) (*domain.HandoffRequest, error)
	GetOpenByConversation(ctx context.Context, businessID, conversationID string) (*domain.HandoffRequest, error)
	Update(ctx context.Context, h *domain.HandoffRequest) error
	ListPending(ctx context.Context, businessID string, limit int) ([]*domain.HandoffRequest, error)
	Stats(ctx context.Context, businessID string, since time.Time) (*HandoffStats, error)
}

// HandoffService runs the escalation state machine. The conversation
// status mirrors the handoff: WAITING_FOR_AGENT -> AGENT_ACTIVE ->
// RESOLVED. Invalid transitions leave both untouched.
type HandoffService struct {
	handoffs      HandoffStore
	conversations ConversationStore
	logger        *zap.Logger
	uuidGen       UUIDGenerator
}

func NewHandoffService(handoffs HandoffStore, conversations ConversationStore, logger *zap.Logger) *HandoffService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HandoffService{
		handoffs:      handoffs,
		conversations: conversations,
		logger:        logger,
		uuidGen:       &DefaultUUIDGenerator{},
	}
}

// RequestHandoff escalates a conversation to a human agent. A
// conversation can hold at most one open handoff.
func (s *HandoffService) RequestHandoff(ctx context.Context, businessID, conversationID, reason string, priority int) (*domain.HandoffRequest, error) {
	if businessID == "" {
		return nil, domain.ErrMissingBusinessID
	}

	conv, err := s.conversations.GetByID(ctx, businessID, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.Open() {
		return nil, domain.ErrConversationClosed
	}
	if conv.Status == domain.ConversationStatusWaitingForAgent {
		return nil, domain.ErrHandoffAlreadyPending
	}

	if _, err := s.handoffs.GetOpenByConversation(ctx, businessID, conversationID); err == nil {
		return nil, domain.ErrHandoffAlreadyPending
	} else if !errors.Is(err, domain.ErrHandoffNotFound) {
		return nil, err
	}

	handoff := domain.NewHandoffRequest(s.uuidGen.NewString(), businessID, conversationID, reason, priority)
	if err := s.handoffs.Create(ctx, handoff); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if err := s.conversations.UpdateStatus(ctx, businessID, conversationID, domain.ConversationStatusWaitingForAgent, now); err != nil {
		s.logger.Error("handoff created but conversation status update failed",
			zap.String("handoff_id", handoff.ID), zap.Error(err))
	}

	s.logger.Info("handoff requested",
		zap.String("business_id", businessID),
		zap.String("conversation_id", conversationID),
		zap.Int("priority", priority))
	return handoff, nil
}

// AcceptHandoff assigns a pending handoff to an agent.
func (s *HandoffService) AcceptHandoff(ctx context.Context, businessID, handoffID, agentID string) (*domain.HandoffRequest, error) {
	handoff, err := s.handoffs.GetByID(ctx, businessID, handoffID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if err := handoff.Accept(agentID, now); err != nil {
		return nil, err
	}
	if err := s.handoffs.Update(ctx, handoff); err != nil {
		return nil, err
	}

	if err := s.conversations.UpdateStatus(ctx, businessID, handoff.ConversationID, domain.ConversationStatusAgentActive, now); err != nil {
		s.logger.Error("handoff accepted but conversation status update failed",
			zap.String("handoff_id", handoff.ID), zap.Error(err))
	}
	return handoff, nil
}

// CompleteHandoff finishes an accepted handoff, optionally recording a
// quality score (1..5) and feedback.
func (s *HandoffService) CompleteHandoff(ctx context.Context, businessID, handoffID string, score *int, feedback string) (*domain.HandoffRequest, error) {
	handoff, err := s.handoffs.GetByID(ctx, businessID, handoffID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if err := handoff.Complete(score, feedback, now); err != nil {
		return nil, err
	}
	if err := s.handoffs.Update(ctx, handoff); err != nil {
		return nil, err
	}

	if err := s.conversations.UpdateStatus(ctx, businessID, handoff.ConversationID, domain.ConversationStatusResolved, now); err != nil {
		s.logger.Error("handoff completed but conversation status update failed",
			zap.String("handoff_id", handoff.ID), zap.Error(err))
	}
	return handoff, nil
}

// PendingHandoffs lists waiting escalations for the agent dashboard.
func (s *HandoffService) PendingHandoffs(ctx context.Context, businessID string, limit int) ([]*domain.HandoffRequest, error) {
	if businessID == "" {
		return nil, domain.ErrMissingBusinessID
	}
	return s.handoffs.ListPending(ctx, businessID, limit)
}

// Stats aggregates handoff activity over a trailing window.
func (s *HandoffService) Stats(ctx context.Context, businessID string, window time.Duration) (*HandoffStats, error) {
	if businessID == "" {
		return nil, domain.ErrMissingBusinessID
	}
	if window <= 0 {
		window = 7 * 24 * time.Hour
	}
	return s.handoffs.Stats(ctx, businessID, time.Now().UTC().Add(-window))
}
