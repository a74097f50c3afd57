/**
 * @description
 * Payment requests (IOUs). A request is a durable "please pay me" addressed
 * to another registered user: created with a 24-hour expiry, delivered to the
 * counterparty with pay/decline buttons, and terminal once fulfilled,
 * declined, or expired. Accepting a request never moves money directly; it
 * stages a pre-seeded payment ticket and drops the counterparty into the
 * ordinary confirmation state machine, so the at-most-once guarantee covers
 * this path too.
 *
 * @dependencies
 * - internal/store: request persistence with one-way status transitions.
 * - pkg/rabbitmq: created/declined events for the mirrored notices.
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
)

// Request errors surfaced to the bot layer for user-facing copy.
var (
	ErrRequestTargetUnknown = errors.New("payment requests can only be sent to registered users")
	ErrRequestSelf          = errors.New("cannot request a payment from yourself")
)

// CreateRequest resolves the counterparty, persists the request, and delivers
// the pay/decline prompt to them. Raw addresses are rejected: a request needs
// someone to notify, so the target must resolve to a registered user.
func (s *Service) CreateRequest(ctx context.Context, requesterID, requesterChatID int64, rawTarget string, amountMicro int64, reason string) (*domain.PaymentRequest, error) {
	recipient, err := s.Resolve(ctx, rawTarget, requesterID)
	if err != nil {
		return nil, err
	}
	if recipient.OwnerUserID == 0 {
		return nil, ErrRequestTargetUnknown
	}
	if recipient.OwnerUserID == requesterID {
		return nil, ErrRequestSelf
	}

	requester, err := s.repo.FindUserByPlatformID(ctx, requesterID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	req := &domain.PaymentRequest{
		RequestID:   uuid.New(),
		FromUserID:  requesterID,
		ToUserID:    recipient.OwnerUserID,
		AmountMicro: amountMicro,
		Currency:    domain.Currency,
		Reason:      reason,
		Status:      domain.RequestStatusPending,
		CreatedAt:   now,
		ExpiresAt:   now.Add(domain.RequestTTL),
	}
	if err := s.repo.CreatePaymentRequest(ctx, req); err != nil {
		return nil, fmt.Errorf("failed to store payment request: %w", err)
	}

	requesterName := "@" + requester.Username
	if requester.Username == "" {
		requesterName = fmt.Sprintf("user %d", requesterID)
	}
	text := fmt.Sprintf("%s requests %s %s from you.", requesterName, domain.FormatAmount(amountMicro), req.Currency)
	if reason != "" {
		text += fmt.Sprintf("\nReason: %s", reason)
	}
	text += "\nThis request expires in 24 hours."
	buttons := [][]chatclient.InlineButton{{
		{Text: "💸 Pay", Payload: EncodeRequestPayload(ActionAcceptRequest, req.RequestID)},
		{Text: "Decline", Payload: EncodeRequestPayload(ActionDeclineRequest, req.RequestID)},
	}}
	// Chat ids equal platform user ids in direct conversations.
	if _, err := s.chat.SendMessage(ctx, recipient.OwnerUserID, text, buttons); err != nil {
		log.Printf("level=warn component=requests msg=\"request delivery failed\" request_id=%s err=%v", req.RequestID, err)
	}

	confirmation := fmt.Sprintf("Request sent: %s %s from %s. It expires in 24 hours.", domain.FormatAmount(amountMicro), req.Currency, recipient.DisplayName)
	if _, err := s.chat.SendMessage(ctx, requesterChatID, confirmation, nil); err != nil {
		log.Printf("level=warn component=requests msg=\"request confirmation send failed\" request_id=%s err=%v", req.RequestID, err)
	}

	s.publishEvent(ctx, rabbitmq.RouteRequestCreated, rabbitmq.RequestCreatedEvent{
		RequestID:   req.RequestID,
		FromUserID:  req.FromUserID,
		ToUserID:    req.ToUserID,
		AmountMicro: req.AmountMicro,
		Currency:    req.Currency,
		Reason:      req.Reason,
		Timestamp:   now,
	})
	log.Printf("level=info component=requests msg=\"payment request created\" request_id=%s from=%d to=%d amount_micro=%d", req.RequestID, requesterID, recipient.OwnerUserID, amountMicro)
	return req, nil
}

// AcceptRequest turns a pending request into a staged payment ticket for the
// addressee and rewrites the request prompt so its buttons are gone. The
// request row stays pending until the staged transfer settles: ConfirmPayment
// wins the guarded pending-to-fulfilled transition just before the rail call,
// which is what keeps a re-accepted request from paying twice.
func (s *Service) AcceptRequest(ctx context.Context, userID, chatID, messageID int64, callbackID string, requestID uuid.UUID) error {
	if err := s.chat.AnswerCallbackQuery(ctx, callbackID, "", false); err != nil {
		log.Printf("level=warn component=requests msg=\"callback ack failed\" request_id=%s err=%v", requestID, err)
	}

	req, err := s.repo.GetPaymentRequestByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, store.ErrPaymentRequestNotFound) {
			return s.editRequestStale(ctx, chatID, messageID)
		}
		return fmt.Errorf("failed to load payment request: %w", err)
	}
	if req.ToUserID != userID {
		log.Printf("level=warn component=requests msg=\"request addressee mismatch\" request_id=%s addressee=%d presser=%d", requestID, req.ToUserID, userID)
		return s.editRequestStale(ctx, chatID, messageID)
	}
	if req.Status != domain.RequestStatusPending || time.Now().UTC().After(req.ExpiresAt) {
		return s.editRequestStale(ctx, chatID, messageID)
	}

	// The requester's current wallet address, looked up fresh at accept time.
	requester, err := s.repo.FindUserByPlatformID(ctx, req.FromUserID)
	if err != nil {
		return fmt.Errorf("failed to load requester profile: %w", err)
	}
	recipient := &domain.ResolvedRecipient{
		Address:     requester.WalletAddress,
		DisplayName: "@" + requester.Username,
		OwnerUserID: requester.PlatformUserID,
	}
	if requester.Username == "" {
		recipient.DisplayName = domain.TruncateAddress(requester.WalletAddress)
	}

	reqID := req.RequestID
	if _, err := s.StageTransfer(ctx, userID, chatID, recipient, req.AmountMicro, &reqID); err != nil {
		return err
	}

	accepted := fmt.Sprintf("Paying %s %s to %s. Confirm below.", domain.FormatAmount(req.AmountMicro), req.Currency, recipient.DisplayName)
	if err := s.chat.EditMessageText(ctx, chatID, messageID, accepted, nil); err != nil {
		log.Printf("level=warn component=requests msg=\"accept edit failed\" request_id=%s err=%v", requestID, err)
	}
	return nil
}

// DeclineRequest moves a pending request to declined and tells the requester.
func (s *Service) DeclineRequest(ctx context.Context, userID, chatID, messageID int64, callbackID string, requestID uuid.UUID) error {
	if err := s.chat.AnswerCallbackQuery(ctx, callbackID, "", false); err != nil {
		log.Printf("level=warn component=requests msg=\"callback ack failed\" request_id=%s err=%v", requestID, err)
	}

	req, err := s.repo.MarkPaymentRequestDeclined(ctx, requestID, userID)
	if err != nil {
		if errors.Is(err, store.ErrPaymentRequestNotFound) || errors.Is(err, store.ErrPaymentRequestNotPending) {
			return s.editRequestStale(ctx, chatID, messageID)
		}
		return fmt.Errorf("failed to decline payment request: %w", err)
	}

	if err := s.chat.EditMessageText(ctx, chatID, messageID, "Request declined.", nil); err != nil {
		log.Printf("level=warn component=requests msg=\"decline edit failed\" request_id=%s err=%v", requestID, err)
	}

	s.publishEvent(ctx, rabbitmq.RouteRequestDeclined, rabbitmq.RequestDeclinedEvent{
		RequestID:   req.RequestID,
		FromUserID:  req.FromUserID,
		ToUserID:    req.ToUserID,
		AmountMicro: req.AmountMicro,
		Currency:    req.Currency,
		Timestamp:   time.Now().UTC(),
	})
	log.Printf("level=info component=requests msg=\"payment request declined\" request_id=%s by=%d", requestID, userID)
	return nil
}

// RequestView is one rendered row of a user's request list.
type RequestView struct {
	Request          domain.PaymentRequest
	Outgoing         bool // true when the viewer is the requester
	CounterpartyName string
}

// ListRequests returns the user's recent requests, both sent and received,
// with counterparty handles resolved for display.
func (s *Service) ListRequests(ctx context.Context, userID int64, limit int) ([]RequestView, error) {
	reqs, err := s.repo.ListPaymentRequestsForUser(ctx, userID, limit)
	if err != nil {
		return nil, err
	}

	views := make([]RequestView, 0, len(reqs))
	for _, req := range reqs {
		outgoing := req.FromUserID == userID
		counterpartyID := req.ToUserID
		if !outgoing {
			counterpartyID = req.FromUserID
		}
		name := fmt.Sprintf("user %d", counterpartyID)
		if other, err := s.repo.FindUserByPlatformID(ctx, counterpartyID); err == nil && other.Username != "" {
			name = "@" + other.Username
		}
		views = append(views, RequestView{Request: req, Outgoing: outgoing, CounterpartyName: name})
	}
	return views, nil
}

func (s *Service) editRequestStale(ctx context.Context, chatID, messageID int64) error {
	if err := s.chat.EditMessageText(ctx, chatID, messageID, "This request is no longer open.", nil); err != nil {
		log.Printf("level=warn component=requests msg=\"stale edit failed\" err=%v", err)
	}
	return nil
}
