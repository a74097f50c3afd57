package app

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/stablepay/walletbot/internal/domain"
	"github.com/stablepay/walletbot/internal/store"
)

// requestsRepoStub layers payment-request persistence on the resolver fixture.
type requestsRepoStub struct {
	*resolverRepoStub

	requests map[uuid.UUID]*domain.PaymentRequest
	declined []uuid.UUID
}

func (s *requestsRepoStub) CreatePaymentRequest(ctx context.Context, req *domain.PaymentRequest) error {
	s.requests[req.RequestID] = req
	return nil
}

func (s *requestsRepoStub) GetPaymentRequestByID(ctx context.Context, requestID uuid.UUID) (*domain.PaymentRequest, error) {
	req, ok := s.requests[requestID]
	if !ok {
		return nil, store.ErrPaymentRequestNotFound
	}
	return req, nil
}

func (s *requestsRepoStub) MarkPaymentRequestFulfilled(ctx context.Context, requestID uuid.UUID) (*domain.PaymentRequest, error) {
	req, ok := s.requests[requestID]
	if !ok {
		return nil, store.ErrPaymentRequestNotFound
	}
	if req.Status != domain.RequestStatusPending {
		return nil, store.ErrPaymentRequestNotPending
	}
	req.Status = domain.RequestStatusFulfilled
	return req, nil
}

func (s *requestsRepoStub) MarkPaymentRequestDeclined(ctx context.Context, requestID uuid.UUID, toUserID int64) (*domain.PaymentRequest, error) {
	req, ok := s.requests[requestID]
	if !ok {
		return nil, store.ErrPaymentRequestNotFound
	}
	if req.Status != domain.RequestStatusPending || req.ToUserID != toUserID {
		return nil, store.ErrPaymentRequestNotPending
	}
	req.Status = domain.RequestStatusDeclined
	s.declined = append(s.declined, requestID)
	return req, nil
}

func (s *requestsRepoStub) ListPaymentRequestsForUser(ctx context.Context, platformUserID int64, limit int) ([]domain.PaymentRequest, error) {
	var out []domain.PaymentRequest
	for _, req := range s.requests {
		if req.FromUserID == platformUserID || req.ToUserID == platformUserID {
			out = append(out, *req)
		}
	}
	return out, nil
}

type requestsHarness struct {
	svc    *Service
	repo   *requestsRepoStub
	chat   *chatStub
	rail   *railStub
	events *producerStub
}

func newRequestsHarness() *requestsHarness {
	repo := &requestsRepoStub{
		resolverRepoStub: resolverFixture(),
		requests:         map[uuid.UUID]*domain.PaymentRequest{},
	}
	chat := &chatStub{}
	rail := &railStub{}
	events := &producerStub{}
	svc := NewService(repo, store.NewMemoryTicketStore(), store.NewMemorySessionStore(), rail, chat, events, 15*time.Minute)
	return &requestsHarness{svc: svc, repo: repo, chat: chat, rail: rail, events: events}
}

func TestCreateRequest(t *testing.T) {
	h := newRequestsHarness()
	ctx := context.Background()

	req, err := h.svc.CreateRequest(ctx, 1, 1, "@carol", 10_000_000, "lunch")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Status != domain.RequestStatusPending {
		t.Fatalf("expected pending status, got %s", req.Status)
	}
	if req.FromUserID != 1 || req.ToUserID != 3 {
		t.Fatalf("expected request from 1 to 3, got from %d to %d", req.FromUserID, req.ToUserID)
	}

	ttl := req.ExpiresAt.Sub(req.CreatedAt)
	if ttl != 24*time.Hour {
		t.Fatalf("expected a 24-hour expiry, got %s", ttl)
	}

	// Counterparty prompt and requester confirmation both quote the same window.
	if len(h.chat.sent) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(h.chat.sent))
	}
	if !strings.Contains(h.chat.sent[0], "@alice requests 10 USDC") || !strings.Contains(h.chat.sent[0], "lunch") {
		t.Fatalf("unexpected counterparty prompt: %q", h.chat.sent[0])
	}
	for _, msg := range h.chat.sent {
		if !strings.Contains(msg, "24 hours") {
			t.Fatalf("expected 24-hour copy in %q", msg)
		}
	}

	if len(h.events.routes) != 1 || h.events.routes[0] != "payment.request.created" {
		t.Fatalf("expected created event, got %v", h.events.routes)
	}
}

func TestCreateRequest_RejectsUnregisteredTarget(t *testing.T) {
	h := newRequestsHarness()

	_, err := h.svc.CreateRequest(context.Background(), 1, 1, strangerAddr, 1_000_000, "")
	if !errors.Is(err, ErrRequestTargetUnknown) {
		t.Fatalf("expected ErrRequestTargetUnknown for a raw address, got %v", err)
	}
}

func TestCreateRequest_RejectsSelf(t *testing.T) {
	h := newRequestsHarness()

	_, err := h.svc.CreateRequest(context.Background(), 1, 1, "@alice", 1_000_000, "")
	if !errors.Is(err, ErrRequestSelf) {
		t.Fatalf("expected ErrRequestSelf, got %v", err)
	}
}

func TestDeclineRequest(t *testing.T) {
	h := newRequestsHarness()
	ctx := context.Background()

	req, err := h.svc.CreateRequest(ctx, 1, 1, "@carol", 10_000_000, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := h.svc.DeclineRequest(ctx, 3, 3, 50, "cb", req.RequestID); err != nil {
		t.Fatalf("unexpected decline error: %v", err)
	}
	if h.repo.requests[req.RequestID].Status != domain.RequestStatusDeclined {
		t.Fatalf("expected declined status, got %s", h.repo.requests[req.RequestID].Status)
	}
	if got := h.rail.transferCount(); got != 0 {
		t.Fatalf("expected no rail call on decline, got %d", got)
	}
	if !strings.Contains(h.chat.lastEdit(), "declined") {
		t.Fatalf("expected decline edit, got %q", h.chat.lastEdit())
	}
	last := h.events.routes[len(h.events.routes)-1]
	if last != "payment.request.declined" {
		t.Fatalf("expected declined event, got %v", h.events.routes)
	}

	// Declining again is stale, not an error.
	if err := h.svc.DeclineRequest(ctx, 3, 3, 50, "cb", req.RequestID); err != nil {
		t.Fatalf("unexpected error on duplicate decline: %v", err)
	}
	if !strings.Contains(h.chat.lastEdit(), "no longer open") {
		t.Fatalf("expected stale edit, got %q", h.chat.lastEdit())
	}
}

func TestAcceptRequest_StagesPreSeededTicket(t *testing.T) {
	h := newRequestsHarness()
	ctx := context.Background()

	req, err := h.svc.CreateRequest(ctx, 1, 1, "@carol", 7_500_000, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := h.svc.AcceptRequest(ctx, 3, 3, 50, "cb", req.RequestID); err != nil {
		t.Fatalf("unexpected accept error: %v", err)
	}

	// Accept stages a confirm prompt paying the requester; money has not moved.
	last := h.chat.sent[len(h.chat.sent)-1]
	if !strings.Contains(last, "Send 7.5 USDC to @alice?") {
		t.Fatalf("expected pre-seeded confirm prompt, got %q", last)
	}
	if got := h.rail.transferCount(); got != 0 {
		t.Fatalf("expected no transfer before confirmation, got %d", got)
	}
	if h.repo.requests[req.RequestID].Status != domain.RequestStatusPending {
		t.Fatalf("expected request to stay pending until settlement, got %s", h.repo.requests[req.RequestID].Status)
	}

	// The request prompt's pay/decline buttons are rewritten away.
	if !strings.Contains(h.chat.lastEdit(), "Confirm below") {
		t.Fatalf("expected the request prompt to be rewritten on accept, got %q", h.chat.lastEdit())
	}
}

func TestAcceptRequest_SecondAcceptSettlesOnce(t *testing.T) {
	h := newRequestsHarness()
	ctx := context.Background()

	req, err := h.svc.CreateRequest(ctx, 1, 1, "@carol", 3_000_000, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Carol presses Pay twice before confirming either prompt; both presses
	// find the request still pending and stage a ticket.
	if err := h.svc.AcceptRequest(ctx, 3, 3, 50, "cb1", req.RequestID); err != nil {
		t.Fatalf("unexpected accept error: %v", err)
	}
	if err := h.svc.AcceptRequest(ctx, 3, 3, 50, "cb2", req.RequestID); err != nil {
		t.Fatalf("unexpected accept error: %v", err)
	}

	var ticketIDs []string
	for _, payload := range h.chat.payloads {
		action, err := ParseCallbackPayload(payload)
		if err == nil && action.Kind == ActionConfirmPay {
			ticketIDs = append(ticketIDs, action.TicketID)
		}
	}
	if len(ticketIDs) != 2 {
		t.Fatalf("expected two staged tickets, got %d", len(ticketIDs))
	}

	if err := h.svc.ConfirmPayment(ctx, 3, 3, 60, "cb3", ticketIDs[0]); err != nil {
		t.Fatalf("unexpected confirm error: %v", err)
	}
	if err := h.svc.ConfirmPayment(ctx, 3, 3, 61, "cb4", ticketIDs[1]); err != nil {
		t.Fatalf("unexpected confirm error: %v", err)
	}

	if got := h.rail.transferCount(); got != 1 {
		t.Fatalf("expected exactly one transfer for one request, got %d", got)
	}
	if h.repo.requests[req.RequestID].Status != domain.RequestStatusFulfilled {
		t.Fatalf("expected request fulfilled, got %s", h.repo.requests[req.RequestID].Status)
	}
	if !strings.Contains(h.chat.lastEdit(), "no longer pending") {
		t.Fatalf("expected stale edit for the second ticket, got %q", h.chat.lastEdit())
	}
}

func TestAcceptRequest_WrongAddresseeIsStale(t *testing.T) {
	h := newRequestsHarness()
	ctx := context.Background()

	req, _ := h.svc.CreateRequest(ctx, 1, 1, "@carol", 1_000_000, "")

	if err := h.svc.AcceptRequest(ctx, 2, 2, 50, "cb", req.RequestID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(h.chat.lastEdit(), "no longer open") {
		t.Fatalf("expected stale edit for wrong addressee, got %q", h.chat.lastEdit())
	}
}

func TestAcceptRequest_ExpiredIsStale(t *testing.T) {
	h := newRequestsHarness()
	ctx := context.Background()

	req, _ := h.svc.CreateRequest(ctx, 1, 1, "@carol", 1_000_000, "")
	req.ExpiresAt = time.Now().UTC().Add(-time.Minute)

	if err := h.svc.AcceptRequest(ctx, 3, 3, 50, "cb", req.RequestID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(h.chat.lastEdit(), "no longer open") {
		t.Fatalf("expected stale edit for an expired request, got %q", h.chat.lastEdit())
	}
}

func TestListRequests_ResolvesCounterpartyHandles(t *testing.T) {
	h := newRequestsHarness()
	ctx := context.Background()

	if _, err := h.svc.CreateRequest(ctx, 1, 1, "@carol", 1_000_000, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	views, err := h.svc.ListRequests(ctx, 1, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(views) != 1 {
		t.Fatalf("expected 1 view, got %d", len(views))
	}
	if !views[0].Outgoing || views[0].CounterpartyName != "@carol" {
		t.Fatalf("expected outgoing view to @carol, got %+v", views[0])
	}

	views, err = h.svc.ListRequests(ctx, 3, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(views) != 1 || views[0].Outgoing || views[0].CounterpartyName != "@alice" {
		t.Fatalf("expected incoming view from @alice, got %+v", views[0])
	}
}
