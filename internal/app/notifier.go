/**
 * @description
 * The notifier consumes settlement and request events off the broker and
 * delivers the mirrored chat notices: the recipient's "you received" message
 * after a transfer settles, and the requester's heads-up when their request
 * is declined. Delivery is best-effort; a user who has blocked the bot costs
 * a warning log, never a redelivery loop, so handlers ack in every case
 * except a payload the producer could not have written.
 *
 * @dependencies
 * - pkg/rabbitmq: topic-exchange consumer with per-routing-key bindings.
 * - pkg/chatclient: the outbound notice transport.
 */

package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/stablepay/walletbot/internal/domain"
	"github.com/stablepay/walletbot/pkg/rabbitmq"
)

// Notifier turns broker events into chat notices.
type Notifier struct {
	chat     ChatSender
	consumer *rabbitmq.Consumer
	queue    string
}

// NewNotifier creates a notifier reading from the given queue.
func NewNotifier(chat ChatSender, consumer *rabbitmq.Consumer, queue string) *Notifier {
	return &Notifier{chat: chat, consumer: consumer, queue: queue}
}

// Start binds the notice handlers and begins consuming.
func (n *Notifier) Start() error {
	bindings := map[string]func([]byte) bool{
		rabbitmq.RoutePaymentSettled:  n.handlePaymentSettled,
		rabbitmq.RouteRequestDeclined: n.handleRequestDeclined,
	}
	if err := n.consumer.ConsumeWithBindings(rabbitmq.EventsExchange, n.queue, bindings); err != nil {
		return fmt.Errorf("failed to start notifier consumer: %w", err)
	}
	return nil
}

// handlePaymentSettled tells a registered recipient they were paid. Events
// for unregistered recipients carry a zero user id and are acked untouched.
func (n *Notifier) handlePaymentSettled(body []byte) bool {
	var event rabbitmq.PaymentSettledEvent
	if err := json.Unmarshal(body, &event); err != nil {
		log.Printf("level=error component=notifier msg=\"bad settled event payload\" err=%v", err)
		return false
	}
	if event.RecipientUserID == 0 {
		return true
	}

	text := fmt.Sprintf("💰 You received %s %s.\nTransaction: %s", domain.FormatAmount(event.AmountMicro), event.Currency, event.TxHash)
	if _, err := n.chat.SendMessage(context.Background(), event.RecipientUserID, text, nil); err != nil {
		log.Printf("level=warn component=notifier msg=\"settled notice send failed\" user_id=%d err=%v", event.RecipientUserID, err)
	}
	return true
}

func (n *Notifier) handleRequestDeclined(body []byte) bool {
	var event rabbitmq.RequestDeclinedEvent
	if err := json.Unmarshal(body, &event); err != nil {
		log.Printf("level=error component=notifier msg=\"bad declined event payload\" err=%v", err)
		return false
	}

	text := fmt.Sprintf("Your request for %s %s was declined.", domain.FormatAmount(event.AmountMicro), event.Currency)
	if _, err := n.chat.SendMessage(context.Background(), event.FromUserID, text, nil); err != nil {
		log.Printf("level=warn component=notifier msg=\"declined notice send failed\" user_id=%d err=%v", event.FromUserID, err)
	}
	return true
}

// Close shuts down the underlying consumer.
func (n *Notifier) Close() {
	if n.consumer != nil {
		n.consumer.Close()
	}
}
