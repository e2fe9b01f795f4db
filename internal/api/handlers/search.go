package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/convoflow/convoflow/internal/api"
	"github.com/convoflow/convoflow/internal/api/middleware"
	"github.com/convoflow/convoflow/internal/service"
)

type SearchService interface {
	Search(ctx context.Context, businessID, query string, limit int, minSimilarity float64) ([]*service.SearchResult, error)
}

type SearchHandler struct {
	svc SearchService
}

func NewSearchHandler(svc SearchService) *SearchHandler {
	return &SearchHandler{svc: svc}
}

type SearchRequest struct {
	Query         string  `json:"query"`
	Limit         int     `json:"limit"`
	MinSimilarity float64 `json:"min_similarity"`
}

// Search runs a reranked similarity search over the business's knowledge.
// No matches is a valid outcome, returned as an empty list.
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	businessID := middleware.GetBusinessID(r.Context())
	if businessID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Query == "" {
		api.Error(w, http.StatusBadRequest, "query is required")
		return
	}
	if req.Limit == 0 {
		req.Limit = 10
	}

	results, err := h.svc.Search(r.Context(), businessID, req.Query, req.Limit, req.MinSimilarity)
	if err != nil {
		api.HandleError(w, err)
		return
	}
	if results == nil {
		results = []*service.SearchResult{}
	}
	api.Success(w, http.StatusOK, results)
}
