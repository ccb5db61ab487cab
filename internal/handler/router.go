package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// NewRouter builds the full HTTP surface. metrics may be nil.
func NewRouter(h *ClaimHandler, auth *Authenticator, log *slog.Logger, metrics http.Handler) http.Handler {
	r := chi.NewRouter()

	// Global middleware stack
	r.Use(chimiddleware.Recoverer) // recover from panics, return 500
	r.Use(chimiddleware.RequestID) // attach request IDs
	r.Use(chimiddleware.RealIP)    // trust X-Forwarded-For
	r.Use(Logger(log))             // structured access log
	r.Use(CORS)                    // permissive CORS for demo

	r.Get("/health", HealthCheck)
	if metrics != nil {
		r.Handle("/metrics", metrics)
	}

	r.Route("/counters", func(r chi.Router) {
		r.Get("/", h.ListCounters)
		r.With(auth.Middleware).Post("/", h.CreateCounter)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetCounter)
			r.With(auth.Middleware).Post("/claim", h.Claim)
			r.With(auth.Middleware).Post("/cancel", h.Cancel)
			r.Get("/receipts", h.ListReceipts)
			r.Get("/receipts/{principal}", h.GetReceipt)
			r.Get("/events", h.ListEvents)
			r.Get("/events/ws", h.StreamEvents)
		})
	})

	r.Get("/admins/{admin}/counter", h.CounterOf)
	r.Get("/principals/{principal}/credits", h.Credits)

	return r
}
