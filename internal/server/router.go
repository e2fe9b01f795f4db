package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/convoflow/convoflow/internal/api"
	"github.com/convoflow/convoflow/internal/api/handlers"
	"github.com/convoflow/convoflow/internal/api/middleware"
)

type RouterConfig struct {
	AuthValidator    middleware.AuthValidator
	Logger           *zap.Logger
	MessageHandler   *handlers.MessageHandler
	SearchHandler    *handlers.SearchHandler
	KnowledgeHandler *handlers.KnowledgeHandler
	HandoffHandler   *handlers.HandoffHandler
	QueueHandler     *handlers.QueueHandler
	BusinessHandler  *handlers.BusinessHandler
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	const maxBodyBytes int64 = 5 * 1024 * 1024

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r.Use(middleware.RequestID)
	r.Use(middleware.Sentry)
	r.Use(middleware.AccessLog(logger))
	r.Use(middleware.MaxBodyBytes(maxBodyBytes))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(cfg.AuthValidator))

		r.Post("/messages", cfg.MessageHandler.Send)
		r.Route("/conversations", func(r chi.Router) {
			r.Get("/", cfg.MessageHandler.List)
			r.Get("/{conversationID}/messages", cfg.MessageHandler.History)
		})

		r.Post("/search", cfg.SearchHandler.Search)

		r.Route("/knowledge", func(r chi.Router) {
			r.Post("/", cfg.KnowledgeHandler.Create)
			r.Get("/", cfg.KnowledgeHandler.List)
			r.Post("/crawl", cfg.KnowledgeHandler.Crawl)
			r.Post("/reindex", cfg.KnowledgeHandler.Reindex)
			r.Get("/{knowledgeID}", cfg.KnowledgeHandler.Get)
			r.Put("/{knowledgeID}", cfg.KnowledgeHandler.Update)
			r.Delete("/{knowledgeID}", cfg.KnowledgeHandler.Delete)
		})

		r.Route("/handoffs", func(r chi.Router) {
			r.Post("/", cfg.HandoffHandler.Request)
			r.Get("/", cfg.HandoffHandler.Pending)
			r.Get("/stats", cfg.HandoffHandler.Stats)
			r.Post("/{handoffID}/accept", cfg.HandoffHandler.Accept)
			r.Post("/{handoffID}/complete", cfg.HandoffHandler.Complete)
		})

		r.Route("/queues", func(r chi.Router) {
			r.Get("/", cfg.QueueHandler.List)
			r.Get("/{topic}/jobs/{jobID}", cfg.QueueHandler.GetJob)
			r.Delete("/{topic}/jobs/{jobID}", cfg.QueueHandler.RemoveJob)
		})
	})

	// Tenant bootstrap stays outside API-key auth: a fresh business has
	// no key yet. Deployments front these with network-level controls.
	r.Post("/businesses", cfg.BusinessHandler.Create)
	r.Get("/businesses/{businessID}", cfg.BusinessHandler.Get)
	r.Post("/apikeys", cfg.BusinessHandler.IssueKey)
	r.Get("/businesses/{businessID}/apikeys", cfg.BusinessHandler.ListKeys)
	r.Delete("/businesses/{businessID}/apikeys/{keyID}", cfg.BusinessHandler.RevokeKey)

	return r
}
