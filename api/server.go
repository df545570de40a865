/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the chi router, middleware stack, and route definitions.
  This is the wiring layer connecting URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:     Unique ID per request, set before logging so every
                    log line carries it
  2. Logger:        Request logging
  3. Recoverer:     Panic recovery (500 instead of crash)
  4. CORS:          Cross-origin requests for the dashboard frontend
  5. Authenticator: Bearer-token verification (all routes except login)

SEE ALSO:
  - handlers.go: Handler implementations
  - middleware.go: Principal resolution
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a router with all routes configured.
func NewRouter(h *Handler, corsOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		// Public
		r.Post("/auth/login", h.Login)

		// Authenticated
		r.Group(func(r chi.Router) {
			r.Use(Authenticator(h.Auth))

			r.Post("/auth/register", h.Register)
			r.Get("/auth/me", h.Me)

			r.Route("/teachers", func(r chi.Router) {
				r.Get("/", h.ListTeachers)
				r.Get("/{id}/days", h.GetTeacherDays)
			})

			r.Route("/permits", func(r chi.Router) {
				r.Get("/", h.ListPermits)
				r.Post("/", h.SubmitPermit)
				r.Get("/{id}", h.GetPermit)
				r.Put("/{id}/review", h.ReviewPermit)
			})

			r.Route("/notifications", func(r chi.Router) {
				r.Get("/", h.ListNotifications)
				r.Get("/unread_count", h.UnreadCount)
				r.Put("/{id}/read", h.MarkNotificationRead)
			})

			r.Get("/stats", h.GetStats)
			r.Get("/calendar", h.GetCalendar)
		})
	})

	return r
}
