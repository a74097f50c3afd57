/**
 * @description
 * Callback payload codec. Inline buttons carry opaque strings the bot both
 * produces and parses; the format is a compact pipe-joined record that makes
 * the confirm/cancel path self-describing: a pay payload carries the ticket
 * id, amount, currency and destination address, so driving a confirmation
 * needs only the ticket-store idempotency check, never an extra lookup keyed
 * by conversation.
 */

package app

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/stablepay/walletbot/internal/domain"
)

// Callback action kinds embedded in button payloads.
const (
	ActionConfirmPay     = "pay"
	ActionCancelPay      = "cancel"
	ActionAcceptRequest  = "reqok"
	ActionDeclineRequest = "reqno"
)

// ErrBadPayload is returned for callback data this bot never produced.
var ErrBadPayload = fmt.Errorf("malformed callback payload")

// CallbackAction is a parsed button payload.
type CallbackAction struct {
	Kind        string
	TicketID    string
	AmountMicro int64
	Currency    string
	Address     string
	RequestID   uuid.UUID
}

// EncodeConfirmPayload builds the confirm-button payload for a ticket.
func EncodeConfirmPayload(t domain.PendingPaymentTicket) string {
	return strings.Join([]string{
		ActionConfirmPay,
		t.TicketID,
		strconv.FormatInt(t.AmountMicro, 10),
		t.Currency,
		t.Address,
	}, "|")
}

// EncodeCancelPayload builds the cancel-button payload for a ticket.
func EncodeCancelPayload(t domain.PendingPaymentTicket) string {
	return strings.Join([]string{ActionCancelPay, t.TicketID}, "|")
}

// EncodeRequestPayload builds an accept or decline payload for a request.
func EncodeRequestPayload(kind string, requestID uuid.UUID) string {
	return strings.Join([]string{kind, requestID.String()}, "|")
}

// ParseCallbackPayload decodes a button payload back into an action.
func ParseCallbackPayload(data string) (CallbackAction, error) {
	parts := strings.Split(data, "|")
	switch parts[0] {
	case ActionConfirmPay:
		if len(parts) != 5 {
			return CallbackAction{}, ErrBadPayload
		}
		amount, err := strconv.ParseInt(parts[2], 10, 64)
		if err != nil || amount <= 0 {
			return CallbackAction{}, ErrBadPayload
		}
		return CallbackAction{
			Kind:        ActionConfirmPay,
			TicketID:    parts[1],
			AmountMicro: amount,
			Currency:    parts[3],
			Address:     parts[4],
		}, nil
	case ActionCancelPay:
		if len(parts) != 2 {
			return CallbackAction{}, ErrBadPayload
		}
		return CallbackAction{Kind: ActionCancelPay, TicketID: parts[1]}, nil
	case ActionAcceptRequest, ActionDeclineRequest:
		if len(parts) != 2 {
			return CallbackAction{}, ErrBadPayload
		}
		id, err := uuid.Parse(parts[1])
		if err != nil {
			return CallbackAction{}, ErrBadPayload
		}
		return CallbackAction{Kind: parts[0], RequestID: id}, nil
	default:
		return CallbackAction{}, ErrBadPayload
	}
}
