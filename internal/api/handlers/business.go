package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/convoflow/convoflow/internal/api"
	"github.com/convoflow/convoflow/internal/domain"
)

// BusinessService covers tenant bootstrap. These endpoints sit
// outside API-key auth; key issuance is the entry into everything else.
type BusinessService interface {
	CreateBusiness(ctx context.Context, name, website string) (*domain.Business, error)
	GetBusiness(ctx context.Context, id string) (*domain.Business, error)
	IssueAPIKey(ctx context.Context, businessID, name string) (string, *domain.APIKey, error)
	ListAPIKeys(ctx context.Context, businessID string) ([]*domain.APIKey, error)
	RevokeAPIKey(ctx context.Context, businessID, keyID string) error
}

type BusinessHandler struct {
	svc BusinessService
}

func NewBusinessHandler(svc BusinessService) *BusinessHandler {
	return &BusinessHandler{svc: svc}
}

type CreateBusinessRequest struct {
	Name    string `json:"name"`
	Website string `json:"website"`
}

type BusinessResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Website   string `json:"website,omitempty"`
	CreatedAt string `json:"created_at"`
}

type IssueAPIKeyRequest struct {
	BusinessID string `json:"business_id"`
	Name       string `json:"name"`
}

type APIKeyResponse struct {
	ID         string `json:"id"`
	BusinessID string `json:"business_id"`
	Name       string `json:"name"`
	// Key carries the raw secret exactly once, at issuance.
	Key       string `json:"key,omitempty"`
	CreatedAt string `json:"created_at"`
	RevokedAt string `json:"revoked_at,omitempty"`
}

func businessToResponse(b *domain.Business) BusinessResponse {
	return BusinessResponse{
		ID:        b.ID,
		Name:      b.Name,
		Website:   b.Website,
		CreatedAt: b.CreatedAt.Format(time.RFC3339),
	}
}

func apiKeyToResponse(k *domain.APIKey) APIKeyResponse {
	resp := APIKeyResponse{
		ID:         k.ID,
		BusinessID: k.BusinessID,
		Name:       k.Name,
		CreatedAt:  k.CreatedAt.Format(time.RFC3339),
	}
	if k.RevokedAt != nil {
		resp.RevokedAt = k.RevokedAt.Format(time.RFC3339)
	}
	return resp
}

func (h *BusinessHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateBusinessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		api.Error(w, http.StatusBadRequest, "name is required")
		return
	}

	business, err := h.svc.CreateBusiness(r.Context(), req.Name, req.Website)
	if err != nil {
		api.HandleError(w, err)
		return
	}
	api.Success(w, http.StatusCreated, businessToResponse(business))
}

func (h *BusinessHandler) Get(w http.ResponseWriter, r *http.Request) {
	business, err := h.svc.GetBusiness(r.Context(), chi.URLParam(r, "businessID"))
	if err != nil {
		api.HandleError(w, err)
		return
	}
	api.Success(w, http.StatusOK, businessToResponse(business))
}

func (h *BusinessHandler) IssueKey(w http.ResponseWriter, r *http.Request) {
	var req IssueAPIKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.BusinessID == "" {
		api.Error(w, http.StatusBadRequest, "business_id is required")
		return
	}
	if req.Name == "" {
		api.Error(w, http.StatusBadRequest, "name is required")
		return
	}

	raw, key, err := h.svc.IssueAPIKey(r.Context(), req.BusinessID, req.Name)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	resp := apiKeyToResponse(key)
	resp.Key = raw
	api.Success(w, http.StatusCreated, resp)
}

func (h *BusinessHandler) ListKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := h.svc.ListAPIKeys(r.Context(), chi.URLParam(r, "businessID"))
	if err != nil {
		api.HandleError(w, err)
		return
	}

	out := make([]APIKeyResponse, 0, len(keys))
	for _, key := range keys {
		out = append(out, apiKeyToResponse(key))
	}
	api.Success(w, http.StatusOK, out)
}

func (h *BusinessHandler) RevokeKey(w http.ResponseWriter, r *http.Request) {
	err := h.svc.RevokeAPIKey(r.Context(), chi.URLParam(r, "businessID"), chi.URLParam(r, "keyID"))
	if err != nil {
		api.HandleError(w, err)
		return
	}
	api.JSON(w, http.StatusNoContent, nil)
}
