/**
 * @description
 * The payment confirmation state machine. Every transfer, however it was
 * initiated (a /send command, free-text intent, a deep link, or an accepted
 * payment request), funnels through the same three states:
 *
 *   staged:    a PendingPaymentTicket exists and a confirm/cancel prompt is
 *              on screen; nothing has moved.
 *   confirmed: the ticket was consumed and exactly one rail transfer was
 *              attempted.
 *   cancelled: the ticket was consumed with no transfer.
 *
 * At-most-once execution per ticket hangs on a single property: Consume is
 * an atomic take from the ticket store, and it is the first state-changing
 * act of ConfirmPayment. A duplicate button press races for the same ticket;
 * the loser sees ErrTicketNotFound and gets a "no longer pending" toast,
 * never a second transfer. Tickets linked to a payment request carry a
 * second gate: the guarded pending-to-fulfilled transition on the request
 * row runs before the rail call, so two tickets staged from the same request
 * still settle at most once.
 *
 * @dependencies
 * - internal/store: TicketStore (atomic Consume) and SessionStore.
 * - pkg/railclient: InsufficientFundsError drives the specific failure copy.
 * - pkg/rabbitmq: settled events for the mirrored recipient notice.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/stablepay/walletbot/internal/domain"
	"github.com/stablepay/walletbot/internal/store"
	"github.com/stablepay/walletbot/pkg/chatclient"
	"github.com/stablepay/walletbot/pkg/rabbitmq"
	"github.com/stablepay/walletbot/pkg/railclient"
)

// StageTransfer creates a pending ticket for a resolved recipient and amount
// and puts the confirm/cancel prompt on screen. Nothing moves until the
// confirm button is pressed.
func (s *Service) StageTransfer(ctx context.Context, userID, chatID int64, recipient *domain.ResolvedRecipient, amountMicro int64, requestID *uuid.UUID) (*domain.PendingPaymentTicket, error) {
	now := time.Now().UTC()
	ticket := domain.PendingPaymentTicket{
		TicketID:    uuid.NewString(),
		UserID:      userID,
		Address:     recipient.Address,
		DisplayName: recipient.DisplayName,
		AmountMicro: amountMicro,
		Currency:    domain.Currency,
		RequestID:   requestID,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.ticketTTL),
	}
	if err := s.tickets.Put(ctx, ticket); err != nil {
		return nil, fmt.Errorf("failed to stage transfer: %w", err)
	}

	text := fmt.Sprintf("Send %s %s to %s?", domain.FormatAmount(ticket.AmountMicro), ticket.Currency, ticket.DisplayName)
	buttons := [][]chatclient.InlineButton{{
		{Text: "✅ Confirm", Payload: EncodeConfirmPayload(ticket)},
		{Text: "❌ Cancel", Payload: EncodeCancelPayload(ticket)},
	}}
	if _, err := s.chat.SendMessage(ctx, chatID, text, buttons); err != nil {
		return nil, fmt.Errorf("failed to send confirmation prompt: %w", err)
	}
	log.Printf("level=info component=confirm msg=\"transfer staged\" ticket_id=%s user_id=%d amount_micro=%d", ticket.TicketID, userID, ticket.AmountMicro)
	return &ticket, nil
}

// PromptAmount opens the single amount-entry slot for a user whose recipient
// is resolved but whose amount is not yet known. Any previous slot for the
// same user is overwritten.
func (s *Service) PromptAmount(ctx context.Context, userID, chatID int64, recipient *domain.ResolvedRecipient, requestID *uuid.UUID) error {
	s.sessions.Put(domain.AmountSession{
		UserID:      userID,
		Address:     recipient.Address,
		DisplayName: recipient.DisplayName,
		RequestID:   requestID,
		CreatedAt:   time.Now().UTC(),
	})
	text := fmt.Sprintf("How much %s would you like to send to %s?", domain.Currency, recipient.DisplayName)
	if _, err := s.chat.SendMessage(ctx, chatID, text, nil); err != nil {
		return fmt.Errorf("failed to prompt for amount: %w", err)
	}
	return nil
}

// SubmitAmount feeds a free-text message into an open amount slot. It reports
// handled=false when no slot is open, so the caller can route the text
// elsewhere. An unparseable amount re-prompts and keeps the slot open; a
// valid one closes the slot and stages the transfer.
func (s *Service) SubmitAmount(ctx context.Context, userID, chatID int64, text string) (bool, error) {
	if _, ok := s.sessions.Peek(userID); !ok {
		return false, nil
	}
	amountMicro, err := domain.ParseAmount(text)
	if err != nil {
		reply := fmt.Sprintf("That doesn't look like a valid amount. Enter a positive %s amount, e.g. 12.50.", domain.Currency)
		if _, sendErr := s.chat.SendMessage(ctx, chatID, reply, nil); sendErr != nil {
			return true, fmt.Errorf("failed to re-prompt for amount: %w", sendErr)
		}
		return true, nil
	}
	session, ok := s.sessions.Take(userID)
	if !ok {
		return false, nil
	}
	recipient := &domain.ResolvedRecipient{Address: session.Address, DisplayName: session.DisplayName}
	_, err = s.StageTransfer(ctx, userID, chatID, recipient, amountMicro, session.RequestID)
	return true, err
}

// ConfirmPayment executes the staged transfer behind a confirm button.
//
// The callback is answered before anything else so the client spinner clears
// even if the rail is slow; consuming the ticket comes next so the transfer
// can never run twice.
func (s *Service) ConfirmPayment(ctx context.Context, userID, chatID, messageID int64, callbackID, ticketID string) error {
	if err := s.chat.AnswerCallbackQuery(ctx, callbackID, "", false); err != nil {
		log.Printf("level=warn component=confirm msg=\"callback ack failed\" ticket_id=%s err=%v", ticketID, err)
	}

	ticket, err := s.tickets.Consume(ctx, ticketID)
	if err != nil {
		if errors.Is(err, store.ErrTicketNotFound) {
			return s.editStale(ctx, chatID, messageID)
		}
		return fmt.Errorf("failed to consume ticket: %w", err)
	}
	if ticket.UserID != userID {
		// A foreign press already destroyed the ticket; ids are unguessable
		// uuids, so this is treated the same as a missing ticket.
		log.Printf("level=warn component=confirm msg=\"ticket owner mismatch\" ticket_id=%s owner=%d presser=%d", ticketID, ticket.UserID, userID)
		return s.editStale(ctx, chatID, messageID)
	}

	if err := s.chat.EditMessageText(ctx, chatID, messageID, "Processing your payment…", nil); err != nil {
		log.Printf("level=warn component=confirm msg=\"processing edit failed\" ticket_id=%s err=%v", ticketID, err)
	}

	profile, err := s.repo.FindUserByPlatformID(ctx, userID)
	if err != nil {
		s.editFailure(ctx, chatID, messageID, "Something went wrong and your payment was not sent. Please try again.")
		return fmt.Errorf("failed to load payer profile: %w", err)
	}

	// A request-linked ticket must win the pending-to-fulfilled transition
	// before any money moves. When the request was already settled through
	// another ticket (or declined, or expired by the sweep), the guarded
	// update fails and this press is stale; the rail is never called.
	if ticket.RequestID != nil {
		if _, err := s.repo.MarkPaymentRequestFulfilled(ctx, *ticket.RequestID); err != nil {
			if errors.Is(err, store.ErrPaymentRequestNotFound) || errors.Is(err, store.ErrPaymentRequestNotPending) {
				log.Printf("level=info component=confirm msg=\"linked request no longer pending\" ticket_id=%s request_id=%s", ticketID, ticket.RequestID)
				return s.editStale(ctx, chatID, messageID)
			}
			s.editFailure(ctx, chatID, messageID, "Something went wrong and your payment was not sent. Please try again.")
			return fmt.Errorf("failed to fulfill linked request: %w", err)
		}
	}

	result, err := s.rail.Transfer(ctx, profile.SigningKeyRef, ticket.Address, ticket.AmountMicro)
	if err != nil {
		if ticket.RequestID != nil {
			// The request row already flipped to fulfilled; a failed transfer
			// behind it needs operator reconciliation.
			log.Printf("level=error component=confirm msg=\"request fulfilled but transfer failed\" request_id=%s err=%v", ticket.RequestID, err)
		}
		var insufficient *railclient.InsufficientFundsError
		if errors.As(err, &insufficient) {
			text := fmt.Sprintf(
				"Payment failed: insufficient funds. You need %s %s but only have %s %s available.",
				domain.FormatAmount(insufficient.RequiredMicro), ticket.Currency,
				domain.FormatAmount(insufficient.AvailableMicro), ticket.Currency,
			)
			s.editFailure(ctx, chatID, messageID, text)
			return nil
		}
		s.editFailure(ctx, chatID, messageID, "Something went wrong and your payment was not sent. Please try again.")
		return fmt.Errorf("rail transfer failed: %w", err)
	}

	receipt := fmt.Sprintf("✅ Sent %s %s to %s.\nTransaction: %s", domain.FormatAmount(ticket.AmountMicro), ticket.Currency, ticket.DisplayName, result.Hash)
	if err := s.chat.EditMessageText(ctx, chatID, messageID, receipt, nil); err != nil {
		log.Printf("level=warn component=confirm msg=\"receipt edit failed\" ticket_id=%s err=%v", ticketID, err)
	}

	var recipientUserID int64
	if owner, lookupErr := s.repo.FindUserByWalletAddress(ctx, ticket.Address); lookupErr == nil {
		recipientUserID = owner.PlatformUserID
	}
	s.publishEvent(ctx, rabbitmq.RoutePaymentSettled, rabbitmq.PaymentSettledEvent{
		PayerUserID:     userID,
		RecipientUserID: recipientUserID,
		RecipientAddr:   ticket.Address,
		AmountMicro:     ticket.AmountMicro,
		Currency:        ticket.Currency,
		TxHash:          result.Hash,
		Timestamp:       time.Now().UTC(),
	})

	log.Printf("level=info component=confirm msg=\"payment settled\" ticket_id=%s user_id=%d tx_hash=%s", ticketID, userID, result.Hash)
	return nil
}

// CancelPayment destroys the staged ticket without touching the rail. A
// cancel racing a confirm loses gracefully either way: whichever consumed the
// ticket first decided the outcome.
func (s *Service) CancelPayment(ctx context.Context, userID, chatID, messageID int64, callbackID, ticketID string) error {
	if err := s.chat.AnswerCallbackQuery(ctx, callbackID, "", false); err != nil {
		log.Printf("level=warn component=confirm msg=\"callback ack failed\" ticket_id=%s err=%v", ticketID, err)
	}

	ticket, err := s.tickets.Consume(ctx, ticketID)
	if err != nil {
		if errors.Is(err, store.ErrTicketNotFound) {
			return s.editStale(ctx, chatID, messageID)
		}
		return fmt.Errorf("failed to consume ticket: %w", err)
	}
	if ticket.UserID != userID {
		log.Printf("level=warn component=confirm msg=\"ticket owner mismatch\" ticket_id=%s owner=%d presser=%d", ticketID, ticket.UserID, userID)
		return s.editStale(ctx, chatID, messageID)
	}

	if err := s.chat.EditMessageText(ctx, chatID, messageID, "Payment cancelled. Nothing was sent.", nil); err != nil {
		log.Printf("level=warn component=confirm msg=\"cancel edit failed\" ticket_id=%s err=%v", ticketID, err)
	}
	log.Printf("level=info component=confirm msg=\"payment cancelled\" ticket_id=%s user_id=%d", ticketID, userID)
	return nil
}

// editStale rewrites the prompt for a ticket that no longer exists, covering
// duplicate presses, expiry, and restarts alike.
func (s *Service) editStale(ctx context.Context, chatID, messageID int64) error {
	if err := s.chat.EditMessageText(ctx, chatID, messageID, "This payment is no longer pending.", nil); err != nil {
		log.Printf("level=warn component=confirm msg=\"stale edit failed\" err=%v", err)
	}
	return nil
}

func (s *Service) editFailure(ctx context.Context, chatID, messageID int64, text string) {
	if err := s.chat.EditMessageText(ctx, chatID, messageID, text, nil); err != nil {
		log.Printf("level=warn component=confirm msg=\"failure edit failed\" err=%v", err)
	}
}
