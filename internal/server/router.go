package server

import (
	"net/http"

	"github.com/cloo-solutions/kbsearch/internal/api/handlers"
	"github.com/cloo-solutions/kbsearch/internal/api/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
)

type RouterConfig struct {
	KnowledgeHandler *handlers.KnowledgeHandler
	SyncHandler      *handlers.SyncHandler
	Metrics          http.Handler
	Logger           logrus.FieldLogger
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryTracing("/metrics", "/api/health"))
	r.Use(middleware.AccessLog(logger))
	r.Use(middleware.MaxBodyBytes(middleware.DefaultMaxBodyBytes))

	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", cfg.SyncHandler.Health)

		r.Post("/search", cfg.KnowledgeHandler.Search)
		r.Get("/hot-questions", cfg.KnowledgeHandler.HotQuestions)

		r.Get("/statistics", cfg.SyncHandler.Statistics)
		r.Post("/sync", cfg.SyncHandler.Sync)
		r.Get("/test-connection", cfg.SyncHandler.TestConnection)
	})

	return r
}
