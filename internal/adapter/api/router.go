package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/user/name-indexer/internal/adapter/api/handler"
	"github.com/user/name-indexer/internal/adapter/api/middleware"
)

// NewRouter wires the indexer's HTTP surface: the query/stats endpoints
// consumed by external collaborators, the operator admin endpoints, and the
// unauthenticated health and metrics probes.
func NewRouter(
	logger *slog.Logger,
	apiKey string,
	events *handler.EventHandler,
	admin *handler.AdminHandler,
) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logging(logger))
	r.Use(cors.Handler(cors.Options{
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Accept", "Content-Type", middleware.APIKeyHeader},
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.Auth(apiKey, logger))

		r.Get("/events", events.List)
		r.Get("/events/{uniqueID}", events.Get)
		r.Get("/stats", events.Stats)
		r.Get("/status", events.Status)

		r.Post("/admin/cursor/reset", admin.ResetCursor)
	})

	return r
}
