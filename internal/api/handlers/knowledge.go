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
	"github.com/convoflow/convoflow/internal/pagination"
	"github.com/convoflow/convoflow/internal/queue"
	"github.com/convoflow/convoflow/internal/service"
)

type IngestionService interface {
	IngestText(ctx context.Context, input service.IngestInput) (string, error)
	Reingest(ctx context.Context, entry *domain.KnowledgeEntry) error
}

type KnowledgeStore interface {
	GetByID(ctx context.Context, businessID, id string) (*domain.KnowledgeEntry, error)
	ListByBusiness(ctx context.Context, businessID string, limit int, cursor string) (*pagination.PageResult[*domain.KnowledgeEntry], error)
	Delete(ctx context.Context, businessID, id string) error
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, name string, payload queue.Payload, opts queue.Options) queue.Outcome
}

type KnowledgeHandler struct {
	ingestion IngestionService
	store     KnowledgeStore
	enqueuer  JobEnqueuer
}

func NewKnowledgeHandler(ingestion IngestionService, store KnowledgeStore, enqueuer JobEnqueuer) *KnowledgeHandler {
	return &KnowledgeHandler{ingestion: ingestion, store: store, enqueuer: enqueuer}
}

type CreateKnowledgeRequest struct {
	Title string   `json:"title"`
	Body  string   `json:"body"`
	Tags  []string `json:"tags"`
}

type UpdateKnowledgeRequest struct {
	Title *string  `json:"title"`
	Body  *string  `json:"body"`
	Tags  []string `json:"tags"`
}

type KnowledgeResponse struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Body      string   `json:"body"`
	Tags      []string `json:"tags"`
	Source    string   `json:"source"`
	SourceURL string   `json:"source_url,omitempty"`
	CreatedAt string   `json:"created_at"`
	UpdatedAt string   `json:"updated_at"`
}

func knowledgeToResponse(k *domain.KnowledgeEntry) *KnowledgeResponse {
	return &KnowledgeResponse{
		ID:        k.ID,
		Title:     k.Title,
		Body:      k.Body,
		Tags:      k.Tags,
		Source:    string(k.Source),
		SourceURL: k.SourceURL,
		CreatedAt: k.CreatedAt.Format(time.RFC3339),
		UpdatedAt: k.UpdatedAt.Format(time.RFC3339),
	}
}

func (h *KnowledgeHandler) Create(w http.ResponseWriter, r *http.Request) {
	businessID := middleware.GetBusinessID(r.Context())
	if businessID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req CreateKnowledgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Body == "" {
		api.Error(w, http.StatusBadRequest, "body is required")
		return
	}

	entryID, err := h.ingestion.IngestText(r.Context(), service.IngestInput{
		BusinessID: businessID,
		Title:      req.Title,
		Body:       req.Body,
		Tags:       req.Tags,
		Source:     domain.KnowledgeSourceManual,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	entry, err := h.store.GetByID(r.Context(), businessID, entryID)
	if err != nil {
		api.HandleError(w, err)
		return
	}
	api.Success(w, http.StatusCreated, knowledgeToResponse(entry))
}

func (h *KnowledgeHandler) Get(w http.ResponseWriter, r *http.Request) {
	businessID := middleware.GetBusinessID(r.Context())
	if businessID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	entry, err := h.store.GetByID(r.Context(), businessID, chi.URLParam(r, "knowledgeID"))
	if err != nil {
		api.HandleError(w, err)
		return
	}
	api.Success(w, http.StatusOK, knowledgeToResponse(entry))
}

func (h *KnowledgeHandler) List(w http.ResponseWriter, r *http.Request) {
	businessID := middleware.GetBusinessID(r.Context())
	if businessID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	limit := queryInt(r, "limit", 20)
	cursor := r.URL.Query().Get("cursor")

	page, err := h.store.ListByBusiness(r.Context(), businessID, limit, cursor)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	items := make([]*KnowledgeResponse, 0, len(page.Items))
	for _, entry := range page.Items {
		items = append(items, knowledgeToResponse(entry))
	}
	api.Success(w, http.StatusOK, pagination.PageResult[*KnowledgeResponse]{
		Items:   items,
		Cursor:  page.Cursor,
		HasMore: page.HasMore,
	})
}

// Update edits an entry and re-chunks it. Absent fields keep their
// current value.
func (h *KnowledgeHandler) Update(w http.ResponseWriter, r *http.Request) {
	businessID := middleware.GetBusinessID(r.Context())
	if businessID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req UpdateKnowledgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	entry, err := h.store.GetByID(r.Context(), businessID, chi.URLParam(r, "knowledgeID"))
	if err != nil {
		api.HandleError(w, err)
		return
	}

	if req.Title != nil {
		entry.Title = *req.Title
	}
	if req.Body != nil {
		entry.Body = *req.Body
	}
	if req.Tags != nil {
		entry.Tags = req.Tags
	}

	if err := h.ingestion.Reingest(r.Context(), entry); err != nil {
		api.HandleError(w, err)
		return
	}
	api.Success(w, http.StatusOK, knowledgeToResponse(entry))
}

func (h *KnowledgeHandler) Delete(w http.ResponseWriter, r *http.Request) {
	businessID := middleware.GetBusinessID(r.Context())
	if businessID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if err := h.store.Delete(r.Context(), businessID, chi.URLParam(r, "knowledgeID")); err != nil {
		api.HandleError(w, err)
		return
	}
	api.JSON(w, http.StatusNoContent, nil)
}

type CrawlRequest struct {
	URL      string `json:"url"`
	MaxDepth int    `json:"max_depth"`
}

type EnqueueResponse struct {
	Enqueued bool   `json:"enqueued"`
	JobID    string `json:"job_id,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// Crawl schedules a background crawl of the given site.
func (h *KnowledgeHandler) Crawl(w http.ResponseWriter, r *http.Request) {
	businessID := middleware.GetBusinessID(r.Context())
	if businessID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req CrawlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.URL == "" {
		api.Error(w, http.StatusBadRequest, "url is required")
		return
	}

	outcome := h.enqueuer.Enqueue(r.Context(), "crawl "+req.URL, queue.CrawlPayload{
		BusinessID: businessID,
		URL:        req.URL,
		MaxDepth:   req.MaxDepth,
	}, queue.Options{})

	writeEnqueueOutcome(w, outcome)
}

// Reindex schedules a full re-embedding of the business's knowledge with
// the active provider.
func (h *KnowledgeHandler) Reindex(w http.ResponseWriter, r *http.Request) {
	businessID := middleware.GetBusinessID(r.Context())
	if businessID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	outcome := h.enqueuer.Enqueue(r.Context(), "reindex "+businessID, queue.ReindexPayload{
		BusinessID: businessID,
	}, queue.Options{})

	writeEnqueueOutcome(w, outcome)
}

func writeEnqueueOutcome(w http.ResponseWriter, outcome queue.Outcome) {
	if !outcome.Enqueued {
		api.Success(w, http.StatusServiceUnavailable, EnqueueResponse{
			Enqueued: false,
			Reason:   outcome.DropReason,
		})
		return
	}
	api.Success(w, http.StatusAccepted, EnqueueResponse{
		Enqueued: true,
		JobID:    outcome.JobID,
	})
}
