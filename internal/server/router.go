package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/floworc/floworc-backend-nats/internal/api"
	"github.com/floworc/floworc-backend-nats/internal/core"
)

// NewRouter builds the HTTP surface: flow CRUD and queries under /v1, plus
// health and Prometheus metrics outside the authenticated tree.
func NewRouter(repo core.FlowRepository, checker api.HealthChecker, cfg Config) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(api.Headers)
	r.Use(api.RequestLogger)
	r.Use(api.LimitBody)
	r.Use(api.ValidateContentType)

	flowH := api.NewFlowHandler(repo)
	namespaceH := api.NewNamespaceHandler(repo)
	systemH := api.NewSystemHandler(checker)

	r.Get("/health", systemH.Health)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(api.RequireAPIKey(cfg.APIKey))

		r.Get("/namespaces", namespaceH.List)

		r.Get("/flows", flowH.List)
		r.Post("/flows", flowH.Create)
		r.Get("/flows/{namespace}", flowH.ListNamespace)
		r.Get("/flows/{namespace}/{id}", flowH.Get)
		r.Put("/flows/{namespace}/{id}", flowH.Update)
		r.Delete("/flows/{namespace}/{id}", flowH.Delete)
		r.Get("/flows/{namespace}/{id}/revisions", flowH.Revisions)
	})

	return r
}
