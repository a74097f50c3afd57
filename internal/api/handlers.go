/**
 * @description
 * This file contains the HTTP handler for webhook deliveries. The handler
 * decodes the update and hands it to the bot dispatcher on its own goroutine;
 * the chat platform gets a 200 as soon as the payload is accepted, because a
 * non-200 makes it redeliver and the dispatcher already guards against
 * double-driving a payment.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - internal/bot, pkg/chatclient: The dispatcher and the update wire types.
 */

package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/stablepay/walletbot/internal/bot"
	"github.com/stablepay/walletbot/pkg/chatclient"
)

// WebhookHandlers holds the bot dispatcher the webhook handler drives.
type WebhookHandlers struct {
	dispatcher *bot.Dispatcher
}

// NewWebhookHandlers creates the handler set for the webhook router.
func NewWebhookHandlers(dispatcher *bot.Dispatcher) *WebhookHandlers {
	return &WebhookHandlers{dispatcher: dispatcher}
}

// UpdateHandler accepts one webhook delivery from the chat platform.
func (h *WebhookHandlers) UpdateHandler(w http.ResponseWriter, r *http.Request) {
	var update chatclient.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		log.Printf("level=warn component=api msg=\"undecodable update payload\" err=%v", err)
		// Still 200: redelivering a broken payload will never succeed.
		w.WriteHeader(http.StatusOK)
		return
	}

	// Updates are independent; each runs on its own goroutine, detached from
	// the request context so a webhook timeout cannot abort a payment mid-flow.
	go h.dispatcher.HandleUpdate(context.Background(), update)

	w.WriteHeader(http.StatusOK)
}
