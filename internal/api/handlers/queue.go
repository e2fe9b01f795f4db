package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/convoflow/convoflow/internal/api"
	"github.com/convoflow/convoflow/internal/api/middleware"
	"github.com/convoflow/convoflow/internal/domain"
	"github.com/convoflow/convoflow/internal/queue"
)

// QueueInspector is the read/remove slice of the queue manager used by
// the admin endpoints.
type QueueInspector interface {
	Queues(ctx context.Context) ([]queue.TopicStats, error)
	GetJob(ctx context.Context, topic domain.JobTopic, id string) (*domain.Job, error)
	Remove(ctx context.Context, topic domain.JobTopic, id string) bool
}

type QueueHandler struct {
	manager QueueInspector
}

func NewQueueHandler(manager QueueInspector) *QueueHandler {
	return &QueueHandler{manager: manager}
}

type JobResponse struct {
	ID          string `json:"id"`
	Topic       string `json:"topic"`
	Name        string `json:"name"`
	Priority    int    `json:"priority"`
	Status      string `json:"status"`
	Attempts    int    `json:"attempts"`
	MaxAttempts int    `json:"max_attempts"`
	LastError   string `json:"last_error,omitempty"`
	RunAt       string `json:"run_at"`
	CreatedAt   string `json:"created_at"`
	FinishedAt  string `json:"finished_at,omitempty"`
}

func jobToResponse(job *domain.Job) *JobResponse {
	resp := &JobResponse{
		ID:          job.ID,
		Topic:       string(job.Topic),
		Name:        job.Name,
		Priority:    job.Priority,
		Status:      string(job.Status),
		Attempts:    job.Attempts,
		MaxAttempts: job.MaxAttempts,
		LastError:   job.LastError,
		RunAt:       job.RunAt.Format(time.RFC3339),
		CreatedAt:   job.CreatedAt.Format(time.RFC3339),
	}
	if job.FinishedAt != nil {
		resp.FinishedAt = job.FinishedAt.Format(time.RFC3339)
	}
	return resp
}

func (h *QueueHandler) List(w http.ResponseWriter, r *http.Request) {
	if middleware.GetBusinessID(r.Context()) == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	stats, err := h.manager.Queues(r.Context())
	if err != nil {
		api.HandleError(w, err)
		return
	}
	api.Success(w, http.StatusOK, stats)
}

func (h *QueueHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	if middleware.GetBusinessID(r.Context()) == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	topic := domain.JobTopic(chi.URLParam(r, "topic"))
	if !domain.ValidJobTopic(topic) {
		api.HandleError(w, domain.ErrInvalidJobTopic)
		return
	}

	job, err := h.manager.GetJob(r.Context(), topic, chi.URLParam(r, "jobID"))
	if err != nil {
		api.HandleError(w, err)
		return
	}
	api.Success(w, http.StatusOK, jobToResponse(job))
}

// RemoveJob cancels a job that has not started yet. Jobs already
// running finish on their own.
func (h *QueueHandler) RemoveJob(w http.ResponseWriter, r *http.Request) {
	if middleware.GetBusinessID(r.Context()) == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	topic := domain.JobTopic(chi.URLParam(r, "topic"))
	if !domain.ValidJobTopic(topic) {
		api.HandleError(w, domain.ErrInvalidJobTopic)
		return
	}

	if !h.manager.Remove(r.Context(), topic, chi.URLParam(r, "jobID")) {
		api.Error(w, http.StatusNotFound, "job not found or already running")
		return
	}
	api.JSON(w, http.StatusNoContent, nil)
}
