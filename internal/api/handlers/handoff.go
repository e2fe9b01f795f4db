package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/convoflow/convoflow/internal/api"
	"github.com/convoflow/convoflow/internal/api/middleware"
	"github.com/convoflow/convoflow/internal/domain"
	"github.com/convoflow/convoflow/internal/service"
)

type HandoffService interface {
	RequestHandoff(ctx context.Context, businessID, conversationID, reason string, priority int) (*domain.HandoffRequest, error)
	AcceptHandoff(ctx context.Context, businessID, handoffID, agentID string) (*domain.HandoffRequest, error)
	CompleteHandoff(ctx context.Context, businessID, handoffID string, score *int, feedback string) (*domain.HandoffRequest, error)
	PendingHandoffs(ctx context.Context, businessID string, limit int) ([]*domain.HandoffRequest, error)
	Stats(ctx context.Context, businessID string, window time.Duration) (*service.HandoffStats, error)
}

type HandoffHandler struct {
	svc HandoffService
}

func NewHandoffHandler(svc HandoffService) *HandoffHandler {
	return &HandoffHandler{svc: svc}
}

type RequestHandoffRequest struct {
	ConversationID string `json:"conversation_id"`
	Reason         string `json:"reason"`
	Priority       int    `json:"priority"`
}

type AcceptHandoffRequest struct {
	AgentID string `json:"agent_id"`
}

type CompleteHandoffRequest struct {
	QualityScore *int   `json:"quality_score,omitempty"`
	Feedback     string `json:"feedback"`
}

type HandoffResponse struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
	AgentID        string `json:"agent_id,omitempty"`
	Status         string `json:"status"`
	Priority       int    `json:"priority"`
	Reason         string `json:"reason"`
	QualityScore   *int   `json:"quality_score,omitempty"`
	Feedback       string `json:"feedback,omitempty"`
	RequestedAt    string `json:"requested_at"`
	AcceptedAt     string `json:"accepted_at,omitempty"`
	CompletedAt    string `json:"completed_at,omitempty"`
}

func handoffToResponse(h *domain.HandoffRequest) *HandoffResponse {
	resp := &HandoffResponse{
		ID:             h.ID,
		ConversationID: h.ConversationID,
		AgentID:        h.AgentID,
		Status:         string(h.Status),
		Priority:       h.Priority,
		Reason:         h.Reason,
		QualityScore:   h.QualityScore,
		Feedback:       h.Feedback,
		RequestedAt:    h.RequestedAt.Format(time.RFC3339),
	}
	if h.AcceptedAt != nil {
		resp.AcceptedAt = h.AcceptedAt.Format(time.RFC3339)
	}
	if h.CompletedAt != nil {
		resp.CompletedAt = h.CompletedAt.Format(time.RFC3339)
	}
	return resp
}

func (h *HandoffHandler) Request(w http.ResponseWriter, r *http.Request) {
	businessID := middleware.GetBusinessID(r.Context())
	if businessID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req RequestHandoffRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ConversationID == "" {
		api.Error(w, http.StatusBadRequest, "conversation_id is required")
		return
	}

	handoff, err := h.svc.RequestHandoff(r.Context(), businessID, req.ConversationID, req.Reason, req.Priority)
	if err != nil {
		api.HandleError(w, err)
		return
	}
	api.Success(w, http.StatusCreated, handoffToResponse(handoff))
}

func (h *HandoffHandler) Accept(w http.ResponseWriter, r *http.Request) {
	businessID := middleware.GetBusinessID(r.Context())
	if businessID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req AcceptHandoffRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.AgentID == "" {
		api.Error(w, http.StatusBadRequest, "agent_id is required")
		return
	}

	handoff, err := h.svc.AcceptHandoff(r.Context(), businessID, chi.URLParam(r, "handoffID"), req.AgentID)
	if err != nil {
		api.HandleError(w, err)
		return
	}
	api.Success(w, http.StatusOK, handoffToResponse(handoff))
}

func (h *HandoffHandler) Complete(w http.ResponseWriter, r *http.Request) {
	businessID := middleware.GetBusinessID(r.Context())
	if businessID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req CompleteHandoffRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	handoff, err := h.svc.CompleteHandoff(r.Context(), businessID, chi.URLParam(r, "handoffID"), req.QualityScore, req.Feedback)
	if err != nil {
		api.HandleError(w, err)
		return
	}
	api.Success(w, http.StatusOK, handoffToResponse(handoff))
}

// Pending lists waiting handoffs, highest priority first.
func (h *HandoffHandler) Pending(w http.ResponseWriter, r *http.Request) {
	businessID := middleware.GetBusinessID(r.Context())
	if businessID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	handoffs, err := h.svc.PendingHandoffs(r.Context(), businessID, queryInt(r, "limit", 50))
	if err != nil {
		api.HandleError(w, err)
		return
	}

	out := make([]*HandoffResponse, 0, len(handoffs))
	for _, handoff := range handoffs {
		out = append(out, handoffToResponse(handoff))
	}
	api.Success(w, http.StatusOK, out)
}

// Stats reports handoff volume and resolution quality over a trailing
// window given in days (default one week).
func (h *HandoffHandler) Stats(w http.ResponseWriter, r *http.Request) {
	businessID := middleware.GetBusinessID(r.Context())
	if businessID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	days := queryInt(r, "window_days", 7)
	stats, err := h.svc.Stats(r.Context(), businessID, time.Duration(days)*24*time.Hour)
	if err != nil {
		api.HandleError(w, err)
		return
	}
	api.Success(w, http.StatusOK, stats)
}
