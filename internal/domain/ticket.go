/**
 * @description
 * PendingPaymentTicket models a staged transfer waiting for its confirm or
 * cancel button press. Tickets live in a short-TTL store keyed by an opaque id
 * embedded in the button payload, never by user id, so one user may hold
 * several concurrent tickets. A ticket is destroyed on confirm, cancel, or by
 * the expiry sweep; losing unconfirmed tickets across a process restart is
 * accepted.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// PendingPaymentTicket is a staged amount+address pair awaiting confirmation.
type PendingPaymentTicket struct {
	TicketID    string    `json:"ticket_id"`
	UserID      int64     `json:"user_id"` // the payer; only they may confirm
	Address     string    `json:"address"`
	DisplayName string    `json:"display_name"`
	AmountMicro int64     `json:"amount_micro"`
	Currency    string    `json:"currency"`
	// RequestID links the ticket to the payment request it fulfills, when the
	// confirmation was reached through an accept button.
	RequestID *uuid.UUID `json:"request_id,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt time.Time  `json:"expires_at"`
}

// Expired reports whether the ticket is past its TTL at the given instant.
func (t PendingPaymentTicket) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// AmountSession is the single pending amount-entry slot kept per user while a
// recipient is resolved but no amount is known yet. Staging a second recipient
// overwrites the first; there is no queueing.
type AmountSession struct {
	UserID      int64      `json:"user_id"`
	Address     string     `json:"address"`
	DisplayName string     `json:"display_name"`
	RequestID   *uuid.UUID `json:"request_id,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}
