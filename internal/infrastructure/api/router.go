package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"moysklad-sync-layer/internal/infrastructure/middleware"
)

// NewRouter assembles the HTTP surface: the public webhook receiver, the
// platform lifecycle callbacks, the operator API and the observability
// endpoints.
func NewRouter(
	webhooks *WebhookHandler,
	lifecycle *LifecycleHandler,
	admin *AdminHandler,
	registry *prometheus.Registry,
) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.SecurityHeadersMiddleware())
	r.Use(cors.Handler(cors.Options{
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Post("/webhooks", webhooks.Receive)

		r.Route("/vendor/1.0/apps", func(r chi.Router) {
			r.Put("/{accountID}", lifecycle.Activate)
			r.Delete("/{accountID}", lifecycle.Deactivate)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Post("/backfill", admin.Backfill)
			r.Route("/accounts/{accountID}", func(r chi.Router) {
				r.Get("/health", admin.HealthReport)
				r.Post("/health/check", admin.CheckHealth)
				r.Post("/heal", admin.Heal)
				r.Get("/tasks/failed", admin.FailedTasks)
			})
			r.Post("/tasks/{taskID}/retry", admin.RetryTask)
		})
	})
	return r
}
