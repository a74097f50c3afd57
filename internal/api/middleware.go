/**
 * @description
 * This file contains custom middleware for the HTTP router. The chat platform
 * echoes the secret token registered at SetWebhook time in a request header
 * on every delivery; requests without the right token are rejected before
 * they reach the update handler.
 *
 * @dependencies
 * - crypto/subtle, net/http: Standard Go libraries.
 */

package api

import (
	"crypto/subtle"
	"net/http"
)

// secretTokenHeader is the header the chat platform echoes the webhook secret in.
const secretTokenHeader = "X-Bot-Api-Secret-Token"

// SecretTokenMiddleware rejects webhook deliveries that do not carry the
// secret token registered with the chat platform.
func SecretTokenMiddleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(secretTokenHeader)
			if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
