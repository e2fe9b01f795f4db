// Package handlers contains the HTTP handlers. Each handler declares the
// narrow service interface it needs so tests can inject fakes.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/convoflow/convoflow/internal/api"
	"github.com/convoflow/convoflow/internal/api/middleware"
	"github.com/convoflow/convoflow/internal/domain"
	"github.com/convoflow/convoflow/internal/pagination"
	"github.com/convoflow/convoflow/internal/service"
)

type ConversationService interface {
	HandleIncomingMessage(ctx context.Context, input service.IncomingMessage) (*service.MessageOutcome, error)
	History(ctx context.Context, businessID, conversationID string, limit int) ([]*domain.Message, error)
}

type ConversationLister interface {
	ListByBusiness(ctx context.Context, businessID string, status domain.ConversationStatus, limit int, cursor string) (*pagination.PageResult[*domain.Conversation], error)
}

type MessageHandler struct {
	svc    ConversationService
	lister ConversationLister
}

func NewMessageHandler(svc ConversationService, lister ConversationLister) *MessageHandler {
	return &MessageHandler{svc: svc, lister: lister}
}

type IncomingMessageRequest struct {
	ConversationID string `json:"conversation_id"`
	VisitorID      string `json:"visitor_id"`
	Sender         string `json:"sender"`
	Content        string `json:"content"`

	// Pipeline toggles; all default to enabled when the block is absent.
	Options *GenerationOptionsRequest `json:"options,omitempty"`
}

type GenerationOptionsRequest struct {
	UseVectorSearch  *bool `json:"use_vector_search,omitempty"`
	DetectIntent     *bool `json:"detect_intent,omitempty"`
	AnalyzeSentiment *bool `json:"analyze_sentiment,omitempty"`
	DetectLanguage   *bool `json:"detect_language,omitempty"`
}

type MessageResponse struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
	Sender         string `json:"sender"`
	Content        string `json:"content"`
	Sentiment      string `json:"sentiment,omitempty"`
	Language       string `json:"language,omitempty"`
	CreatedAt      string `json:"created_at"`
}

func messageToResponse(m *domain.Message) *MessageResponse {
	return &MessageResponse{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		Sender:         string(m.Sender),
		Content:        m.Content,
		Sentiment:      m.Sentiment,
		Language:       m.Language,
		CreatedAt:      m.CreatedAt.Format(time.RFC3339),
	}
}

type MessageOutcomeResponse struct {
	ConversationID string           `json:"conversation_id"`
	MessageID      string           `json:"message_id"`
	Reply          *MessageResponse `json:"reply,omitempty"`
}

// Send ingests one inbound message and, for user messages, returns the
// generated reply.
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	businessID := middleware.GetBusinessID(r.Context())
	if businessID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req IncomingMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Content == "" {
		api.Error(w, http.StatusBadRequest, "content is required")
		return
	}
	// Neither conversation_id nor visitor_id is required: an anonymous
	// first message opens a fresh conversation.
	sender := domain.SenderClass(req.Sender)
	if req.Sender == "" {
		sender = domain.SenderUser
	}

	outcome, err := h.svc.HandleIncomingMessage(r.Context(), service.IncomingMessage{
		BusinessID:     businessID,
		ConversationID: req.ConversationID,
		VisitorID:      req.VisitorID,
		Sender:         sender,
		Content:        req.Content,
		Options:        generationOptions(req.Options),
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	resp := &MessageOutcomeResponse{
		ConversationID: outcome.ConversationID,
		MessageID:      outcome.MessageID,
	}
	if outcome.Reply != nil {
		resp.Reply = messageToResponse(outcome.Reply)
	}
	api.Success(w, http.StatusCreated, resp)
}

// History returns a conversation's recent messages in chronological order.
func (h *MessageHandler) History(w http.ResponseWriter, r *http.Request) {
	businessID := middleware.GetBusinessID(r.Context())
	if businessID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	conversationID := chi.URLParam(r, "conversationID")
	limit := queryInt(r, "limit", 50)

	messages, err := h.svc.History(r.Context(), businessID, conversationID, limit)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	out := make([]*MessageResponse, 0, len(messages))
	for _, m := range messages {
		out = append(out, messageToResponse(m))
	}
	api.Success(w, http.StatusOK, out)
}

type ConversationResponse struct {
	ID        string `json:"id"`
	VisitorID string `json:"visitor_id"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// List returns the business's conversations, newest activity first, with
// keyset pagination.
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	businessID := middleware.GetBusinessID(r.Context())
	if businessID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	status := domain.ConversationStatus(r.URL.Query().Get("status"))
	limit := queryInt(r, "limit", 20)
	cursor := r.URL.Query().Get("cursor")

	page, err := h.lister.ListByBusiness(r.Context(), businessID, status, limit, cursor)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	items := make([]*ConversationResponse, 0, len(page.Items))
	for _, c := range page.Items {
		items = append(items, &ConversationResponse{
			ID:        c.ID,
			VisitorID: c.VisitorID,
			Status:    string(c.Status),
			CreatedAt: c.CreatedAt.Format(time.RFC3339),
			UpdatedAt: c.UpdatedAt.Format(time.RFC3339),
		})
	}
	api.Success(w, http.StatusOK, pagination.PageResult[*ConversationResponse]{
		Items:   items,
		Cursor:  page.Cursor,
		HasMore: page.HasMore,
	})
}

func generationOptions(req *GenerationOptionsRequest) service.GenerationOptions {
	opts := service.DefaultGenerationOptions()
	if req == nil {
		return opts
	}
	if req.UseVectorSearch != nil {
		opts.UseVectorSearch = *req.UseVectorSearch
	}
	if req.DetectIntent != nil {
		opts.DetectIntent = *req.DetectIntent
	}
	if req.AnalyzeSentiment != nil {
		opts.AnalyzeSentiment = *req.AnalyzeSentiment
	}
	if req.DetectLanguage != nil {
		opts.DetectLanguage = *req.DetectLanguage
	}
	return opts
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
