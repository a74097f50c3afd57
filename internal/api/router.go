/**
 * @description
 * This file sets up the HTTP router for the wallet bot. The surface is tiny:
 * a health check and the webhook endpoint the chat platform POSTs updates to.
 * Standard middleware handles logging, panic recovery and timeouts.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// WebhookRoutes creates and returns the router for the bot service.
func WebhookRoutes(h *WebhookHandlers, webhookSecret string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	r.Group(func(r chi.Router) {
		r.Use(SecretTokenMiddleware(webhookSecret))
		r.Post("/webhook", h.UpdateHandler)
	})

	return r
}
