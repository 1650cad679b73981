/**
 * @description
 * This file sets up the HTTP router for the request layer using the
 * go-chi/chi router. It defines the API routes, applies middleware for
 * logging, CORS, authentication, and rate limiting, and maps the routes to
 * their corresponding handler functions.
 */
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new Chi router and registers the account routes.
// limiter may be nil when rate limiting is disabled.
func NewRouter(h *Handler, jwtSecret string, limiter *RedisRateLimiter) *chi.Mux {
	r := chi.NewRouter()

	// Setup middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any major browsers
	}))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Keygate API is healthy"))
	})

	// Protected routes that require authentication
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(jwtSecret))
		if limiter != nil {
			r.Use(limiter.Middleware)
		}

		r.Route("/account", func(r chi.Router) {
			r.Get("/apikey", h.handleGetAPIKey)
			r.Post("/apikey/reset", h.handleResetAPIKey)
			r.Post("/payment", h.handleMakePayment)
			r.Get("/card", h.handleGetCard)
			r.Post("/card", h.handleCreateCard)
			r.Patch("/card", h.handleEditCard)
			r.Delete("/card", h.handleDeleteCard)
			r.Get("/payments", h.handleGetPaymentHistory)
			r.Delete("/", h.handleDeleteAccount)
		})
	})

	return r
}
