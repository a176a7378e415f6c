package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SetupRoutes configures the router: health probe at the root, trigger
// endpoints under /api.
func SetupRoutes(h *Handlers) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", h.HandleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/scheduler/run", h.HandleSchedulerRun)
		r.Get("/scheduler/status", h.HandleSchedulerStatus)
		r.Post("/senders/{id}/sync", h.HandleSenderSync)
	})

	return r
}
