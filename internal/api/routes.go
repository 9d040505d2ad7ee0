package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SetupRoutes configures the admin and callback surface.
func SetupRoutes(h *Handlers) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", h.HealthCheck)

	r.Route("/api", func(r chi.Router) {
		r.Route("/reputation", func(r chi.Router) {
			r.Get("/", h.GetReputation)
			r.Get("/{tenantID}", h.GetTenantReputation)
			r.Post("/{tenantID}/recompute", h.RecomputeTenantReputation)
		})

		r.Route("/suppressions", func(r chi.Router) {
			r.Get("/", h.ListSuppressions)
			r.Get("/check", h.CheckSuppression)
			r.Post("/", h.AddSuppression)
			r.Post("/bulk", h.AddSuppressionsBulk)
			r.Delete("/{tenantID}/{email}", h.RemoveSuppression)
		})

		r.Post("/admission/check", h.CheckAdmission)
		r.Post("/events", h.IngestEvent)
		r.Post("/messages", h.SubmitMessage)
		r.Post("/messages/{messageID}/cancel", h.CancelMessage)
		r.Get("/queues/{queueID}/stats", h.GetQueueStats)
	})

	return r
}
