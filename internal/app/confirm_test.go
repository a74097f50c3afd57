package app

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/stablepay/walletbot/internal/domain"
	"github.com/stablepay/walletbot/internal/store"
	"github.com/stablepay/walletbot/pkg/chatclient"
	"github.com/stablepay/walletbot/pkg/railclient"
)

// chatStub records every outbound chat interaction, including the payloads
// carried by inline buttons so tests can press them.
type chatStub struct {
	mu       sync.Mutex
	sent     []string
	edits    []string
	payloads []string
	answered int
}

func (c *chatStub) SendMessage(ctx context.Context, chatID int64, text string, buttons [][]chatclient.InlineButton) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, text)
	for _, row := range buttons {
		for _, btn := range row {
			c.payloads = append(c.payloads, btn.Payload)
		}
	}
	return int64(len(c.sent)), nil
}

func (c *chatStub) EditMessageText(ctx context.Context, chatID, messageID int64, text string, buttons [][]chatclient.InlineButton) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.edits = append(c.edits, text)
	return nil
}

func (c *chatStub) AnswerCallbackQuery(ctx context.Context, callbackID, text string, alert bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.answered++
	return nil
}

func (c *chatStub) lastEdit() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.edits) == 0 {
		return ""
	}
	return c.edits[len(c.edits)-1]
}

// railStub counts transfers and can fail them.
type railStub struct {
	mu          sync.Mutex
	transfers   int
	transferErr error
}

func (r *railStub) CreateWallet(ctx context.Context) (*railclient.Wallet, error) {
	return &railclient.Wallet{Address: strangerAddr, SigningKeyRef: "key-ref"}, nil
}

func (r *railStub) GetBalance(ctx context.Context, address string) (int64, error) {
	return 100_000_000, nil
}

func (r *railStub) Transfer(ctx context.Context, signingKeyRef, toAddress string, amountMicro int64) (*railclient.TransferResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.transferErr != nil {
		return nil, r.transferErr
	}
	r.transfers++
	return &railclient.TransferResult{Hash: "0xhash"}, nil
}

func (r *railStub) GetHistory(ctx context.Context, address string, limit int) ([]railclient.HistoryEntry, error) {
	return nil, nil
}

func (r *railStub) transferCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.transfers
}

// producerStub records published routing keys.
type producerStub struct {
	mu     sync.Mutex
	routes []string
}

func (p *producerStub) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.routes = append(p.routes, routingKey)
	return nil
}

func (p *producerStub) Close() {}

// confirmRepoStub adds request fulfillment tracking to the resolver fixture.
type confirmRepoStub struct {
	*resolverRepoStub

	fulfilled  []uuid.UUID
	fulfillErr error
}

func (s *confirmRepoStub) MarkPaymentRequestFulfilled(ctx context.Context, requestID uuid.UUID) (*domain.PaymentRequest, error) {
	if s.fulfillErr != nil {
		return nil, s.fulfillErr
	}
	s.fulfilled = append(s.fulfilled, requestID)
	return &domain.PaymentRequest{RequestID: requestID, Status: domain.RequestStatusFulfilled}, nil
}

type confirmHarness struct {
	svc     *Service
	repo    *confirmRepoStub
	tickets store.TicketStore
	chat    *chatStub
	rail    *railStub
	events  *producerStub
}

func newConfirmHarness() *confirmHarness {
	repo := &confirmRepoStub{resolverRepoStub: resolverFixture()}
	chat := &chatStub{}
	rail := &railStub{}
	events := &producerStub{}
	tickets := store.NewMemoryTicketStore()
	svc := NewService(repo, tickets, store.NewMemorySessionStore(), rail, chat, events, 15*time.Minute)
	return &confirmHarness{svc: svc, repo: repo, tickets: tickets, chat: chat, rail: rail, events: events}
}

func TestConfirmPayment_AliasFlowEndToEnd(t *testing.T) {
	h := newConfirmHarness()
	ctx := context.Background()

	// Alice resolves her alias "c" for carol and stages a 5 USDC transfer.
	recipient, err := h.svc.Resolve(ctx, "c", 1)
	if err != nil {
		t.Fatalf("unexpected resolve error: %v", err)
	}
	ticket, err := h.svc.StageTransfer(ctx, 1, 1, recipient, 5_000_000, nil)
	if err != nil {
		t.Fatalf("unexpected staging error: %v", err)
	}
	if len(h.chat.sent) != 1 || !strings.Contains(h.chat.sent[0], "Send 5 USDC to c?") {
		t.Fatalf("expected confirmation prompt, got %v", h.chat.sent)
	}

	if err := h.svc.ConfirmPayment(ctx, 1, 1, 10, "cb1", ticket.TicketID); err != nil {
		t.Fatalf("unexpected confirm error: %v", err)
	}
	if got := h.rail.transferCount(); got != 1 {
		t.Fatalf("expected exactly one transfer, got %d", got)
	}
	if !strings.Contains(h.chat.lastEdit(), "Sent 5 USDC to c") {
		t.Fatalf("expected receipt edit, got %q", h.chat.lastEdit())
	}
	if len(h.events.routes) != 1 || h.events.routes[0] != "payment.settled" {
		t.Fatalf("expected one settled event, got %v", h.events.routes)
	}
}

func TestConfirmPayment_DuplicatePressRunsRailOnce(t *testing.T) {
	h := newConfirmHarness()
	ctx := context.Background()

	recipient, _ := h.svc.Resolve(ctx, "@carol", 1)
	ticket, err := h.svc.StageTransfer(ctx, 1, 1, recipient, 1_000_000, nil)
	if err != nil {
		t.Fatalf("unexpected staging error: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = h.svc.ConfirmPayment(ctx, 1, 1, 10, "cb", ticket.TicketID)
		}()
	}
	wg.Wait()

	if got := h.rail.transferCount(); got != 1 {
		t.Fatalf("expected exactly one transfer across duplicate presses, got %d", got)
	}
}

func TestConfirmPayment_ExpiredTicketBehavesAsUnknown(t *testing.T) {
	h := newConfirmHarness()
	ctx := context.Background()

	stale := domain.PendingPaymentTicket{
		TicketID:    uuid.NewString(),
		UserID:      1,
		Address:     carolAddr,
		DisplayName: "@carol",
		AmountMicro: 1_000_000,
		Currency:    domain.Currency,
		CreatedAt:   time.Now().Add(-16 * time.Minute),
		ExpiresAt:   time.Now().Add(-time.Minute),
	}
	if err := h.tickets.Put(ctx, stale); err != nil {
		t.Fatalf("unexpected put error: %v", err)
	}

	if err := h.svc.ConfirmPayment(ctx, 1, 1, 10, "cb", stale.TicketID); err != nil {
		t.Fatalf("unexpected confirm error: %v", err)
	}
	if got := h.rail.transferCount(); got != 0 {
		t.Fatalf("expected no transfer for an expired ticket, got %d", got)
	}
	if !strings.Contains(h.chat.lastEdit(), "no longer pending") {
		t.Fatalf("expected stale-ticket edit, got %q", h.chat.lastEdit())
	}
}

func TestConfirmPayment_ForeignPressDoesNotExecute(t *testing.T) {
	h := newConfirmHarness()
	ctx := context.Background()

	recipient, _ := h.svc.Resolve(ctx, "@carol", 1)
	ticket, _ := h.svc.StageTransfer(ctx, 1, 1, recipient, 1_000_000, nil)

	if err := h.svc.ConfirmPayment(ctx, 2, 2, 10, "cb", ticket.TicketID); err != nil {
		t.Fatalf("unexpected confirm error: %v", err)
	}
	if got := h.rail.transferCount(); got != 0 {
		t.Fatalf("expected no transfer for a foreign press, got %d", got)
	}
}

func TestConfirmPayment_InsufficientFundsCopy(t *testing.T) {
	h := newConfirmHarness()
	h.rail.transferErr = &railclient.InsufficientFundsError{
		RequiredMicro:  5_000_000,
		AvailableMicro: 1_250_000,
	}
	ctx := context.Background()

	recipient, _ := h.svc.Resolve(ctx, "@carol", 1)
	ticket, _ := h.svc.StageTransfer(ctx, 1, 1, recipient, 5_000_000, nil)

	if err := h.svc.ConfirmPayment(ctx, 1, 1, 10, "cb", ticket.TicketID); err != nil {
		t.Fatalf("insufficient funds is terminal, not an error: %v", err)
	}
	edit := h.chat.lastEdit()
	if !strings.Contains(edit, "insufficient funds") || !strings.Contains(edit, "5") || !strings.Contains(edit, "1.25") {
		t.Fatalf("expected required/available amounts in failure copy, got %q", edit)
	}
	if len(h.events.routes) != 0 {
		t.Fatalf("expected no settled event on failure, got %v", h.events.routes)
	}
}

func TestConfirmPayment_OpaqueRailFailureIsTerminal(t *testing.T) {
	h := newConfirmHarness()
	h.rail.transferErr = errors.New("rail exploded")
	ctx := context.Background()

	recipient, _ := h.svc.Resolve(ctx, "@carol", 1)
	ticket, _ := h.svc.StageTransfer(ctx, 1, 1, recipient, 1_000_000, nil)

	if err := h.svc.ConfirmPayment(ctx, 1, 1, 10, "cb", ticket.TicketID); err == nil {
		t.Fatal("expected the opaque failure to propagate for logging")
	}
	if !strings.Contains(h.chat.lastEdit(), "was not sent") {
		t.Fatalf("expected generic failure edit, got %q", h.chat.lastEdit())
	}

	// The ticket was consumed: re-driving the button is stale, never a retry.
	if err := h.svc.ConfirmPayment(ctx, 1, 1, 10, "cb", ticket.TicketID); err != nil {
		t.Fatalf("unexpected error on stale re-drive: %v", err)
	}
	if !strings.Contains(h.chat.lastEdit(), "no longer pending") {
		t.Fatalf("expected stale edit on re-drive, got %q", h.chat.lastEdit())
	}
}

func TestConfirmPayment_FulfillsLinkedRequest(t *testing.T) {
	h := newConfirmHarness()
	ctx := context.Background()

	reqID := uuid.New()
	recipient := &domain.ResolvedRecipient{Address: carolAddr, DisplayName: "@carol", OwnerUserID: 3}
	ticket, err := h.svc.StageTransfer(ctx, 2, 2, recipient, 2_000_000, &reqID)
	if err != nil {
		t.Fatalf("unexpected staging error: %v", err)
	}

	if err := h.svc.ConfirmPayment(ctx, 2, 2, 10, "cb", ticket.TicketID); err != nil {
		t.Fatalf("unexpected confirm error: %v", err)
	}
	if len(h.repo.fulfilled) != 1 || h.repo.fulfilled[0] != reqID {
		t.Fatalf("expected linked request to be fulfilled, got %v", h.repo.fulfilled)
	}
}

func TestConfirmPayment_SettledRequestTicketIsStale(t *testing.T) {
	h := newConfirmHarness()
	h.repo.fulfillErr = store.ErrPaymentRequestNotPending
	ctx := context.Background()

	// A leftover ticket whose linked request already settled elsewhere.
	reqID := uuid.New()
	recipient := &domain.ResolvedRecipient{Address: carolAddr, DisplayName: "@carol", OwnerUserID: 3}
	ticket, err := h.svc.StageTransfer(ctx, 2, 2, recipient, 2_000_000, &reqID)
	if err != nil {
		t.Fatalf("unexpected staging error: %v", err)
	}

	if err := h.svc.ConfirmPayment(ctx, 2, 2, 10, "cb", ticket.TicketID); err != nil {
		t.Fatalf("unexpected confirm error: %v", err)
	}
	if got := h.rail.transferCount(); got != 0 {
		t.Fatalf("expected no transfer when the request is not pending, got %d", got)
	}
	if !strings.Contains(h.chat.lastEdit(), "no longer pending") {
		t.Fatalf("expected stale edit, got %q", h.chat.lastEdit())
	}
}

func TestCancelPayment_NoTransferAndTicketGone(t *testing.T) {
	h := newConfirmHarness()
	ctx := context.Background()

	recipient, _ := h.svc.Resolve(ctx, "@carol", 1)
	ticket, _ := h.svc.StageTransfer(ctx, 1, 1, recipient, 1_000_000, nil)

	if err := h.svc.CancelPayment(ctx, 1, 1, 10, "cb", ticket.TicketID); err != nil {
		t.Fatalf("unexpected cancel error: %v", err)
	}
	if got := h.rail.transferCount(); got != 0 {
		t.Fatalf("expected no transfer after cancel, got %d", got)
	}
	if !strings.Contains(h.chat.lastEdit(), "cancelled") {
		t.Fatalf("expected cancel edit, got %q", h.chat.lastEdit())
	}

	if _, err := h.tickets.Get(ctx, ticket.TicketID); !errors.Is(err, store.ErrTicketNotFound) {
		t.Fatalf("expected ticket to be consumed by cancel, got %v", err)
	}
}

func TestSubmitAmount_SessionFlow(t *testing.T) {
	h := newConfirmHarness()
	ctx := context.Background()

	recipient, _ := h.svc.Resolve(ctx, "@carol", 1)
	if err := h.svc.PromptAmount(ctx, 1, 1, recipient, nil); err != nil {
		t.Fatalf("unexpected prompt error: %v", err)
	}

	// Invalid input re-prompts and keeps the slot open.
	handled, err := h.svc.SubmitAmount(ctx, 1, 1, "lots")
	if err != nil || !handled {
		t.Fatalf("expected invalid amount to be handled in-slot, got handled=%v err=%v", handled, err)
	}

	handled, err = h.svc.SubmitAmount(ctx, 1, 1, "3.50")
	if err != nil || !handled {
		t.Fatalf("expected valid amount to be handled, got handled=%v err=%v", handled, err)
	}
	last := h.chat.sent[len(h.chat.sent)-1]
	if !strings.Contains(last, "Send 3.5 USDC to c?") {
		t.Fatalf("expected staged prompt after amount entry, got %q", last)
	}

	// The slot is closed: further free text is not claimed.
	handled, err = h.svc.SubmitAmount(ctx, 1, 1, "7")
	if err != nil || handled {
		t.Fatalf("expected no open slot after staging, got handled=%v err=%v", handled, err)
	}
}

func TestSubmitAmount_SecondPromptOverwritesFirst(t *testing.T) {
	h := newConfirmHarness()
	ctx := context.Background()

	first, _ := h.svc.Resolve(ctx, "@carol", 1)
	second, _ := h.svc.Resolve(ctx, "@bobby", 1)
	if err := h.svc.PromptAmount(ctx, 1, 1, first, nil); err != nil {
		t.Fatalf("unexpected prompt error: %v", err)
	}
	if err := h.svc.PromptAmount(ctx, 1, 1, second, nil); err != nil {
		t.Fatalf("unexpected prompt error: %v", err)
	}

	if _, err := h.svc.SubmitAmount(ctx, 1, 1, "2"); err != nil {
		t.Fatalf("unexpected submit error: %v", err)
	}
	last := h.chat.sent[len(h.chat.sent)-1]
	if !strings.Contains(last, "@bobby") {
		t.Fatalf("expected second recipient to win the slot, got %q", last)
	}
}
