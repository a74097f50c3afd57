/**
 * @description
 * PaymentRequest is the durable "please pay me" record (the IOU). Unlike
 * tickets it survives process restarts: it is persisted in the profile store
 * and shows up in both counterparties' sent and received lists. Status moves
 * one way only, pending -> fulfilled | declined | expired, and never leaves a
 * terminal state.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Payment request statuses.
const (
	RequestStatusPending   = "pending"
	RequestStatusFulfilled = "fulfilled"
	RequestStatusDeclined  = "declined"
	RequestStatusExpired   = "expired"
)

// RequestTTL is how long a payment request stays payable. The persisted
// expires_at and every piece of user-facing copy quote the same window.
const RequestTTL = 24 * time.Hour

// PaymentRequest represents one pending or settled payment request.
type PaymentRequest struct {
	RequestID   uuid.UUID `json:"request_id"`
	FromUserID  int64     `json:"from_user_id"` // the requester (payee)
	ToUserID    int64     `json:"to_user_id"`   // the counterparty asked to pay
	AmountMicro int64     `json:"amount_micro"`
	Currency    string    `json:"currency"`
	Reason      string    `json:"reason,omitempty"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}
