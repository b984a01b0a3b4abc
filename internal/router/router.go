// Package router sets up all HTTP routes and middleware chains for the
// PromptDeck API. It organizes routes into public reads, authenticated
// writes and admin views with appropriate middleware stacks.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"promptdeck/internal/handlers"
	"promptdeck/internal/middleware"
	"promptdeck/internal/session"
)

// New creates and returns the configured Chi router with all middleware
// and route groups wired up. sessionStore and writeLimiter may be nil,
// which disables sessions or write rate limiting respectively.
func New(sessionStore *session.Store, catalog *handlers.Catalog, sync *handlers.Sync, writeLimiter *middleware.RateLimiter, secureCookies bool) chi.Router {
	r := chi.NewRouter()

	// Global middleware, applied to every request.
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)
	r.Use(middleware.Metrics)
	r.Use(middleware.SecureHeaders)
	if sessionStore != nil {
		r.Use(middleware.LoadSession(sessionStore))
	}

	// Health and metrics: no auth, no CSRF.
	r.Get("/health", healthHandler)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.NewCSRF(secureCookies))

		// Reads are open; private data is filtered per actor.
		r.Get("/session", catalog.Session)
		r.Get("/feed", catalog.Feed)
		r.Get("/prompts/{id}", catalog.GetPrompt)
		r.Get("/categories", catalog.ListCategories)

		// Writes are rate-limited per client.
		r.Group(func(r chi.Router) {
			if writeLimiter != nil {
				r.Use(writeLimiter.Middleware)
			}

			// Downloads may be counted anonymously.
			r.Post("/prompts/{id}/download", catalog.RecordDownload)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireAuth)

				r.Post("/prompts", catalog.CreatePrompt)
				r.Patch("/prompts/{id}", catalog.UpdatePrompt)
				r.Delete("/prompts/{id}", catalog.DeletePrompt)
				r.Post("/prompts/{id}/like", catalog.ToggleLike)
				r.Put("/prompts/{id}/category", catalog.SetCategory)

				r.Put("/categories/{id}", catalog.UpsertCategory)
				r.Delete("/categories/{id}", catalog.DeleteCategory)
				r.Put("/categories/{id}/subcategories/{sub}", catalog.UpsertSubcategory)
				r.Delete("/categories/{id}/subcategories/{sub}", catalog.DeleteSubcategory)
			})
		})

		// Sync diagnostics: admin only.
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth)
			r.Use(middleware.RequireAdmin)
			r.Get("/sync/status", sync.Status)
		})
	})

	return r
}

// healthHandler returns a simple JSON health check response.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}
