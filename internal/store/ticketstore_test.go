package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/stablepay/walletbot/internal/domain"
)

func newTicket(ttl time.Duration) domain.PendingPaymentTicket {
	now := time.Now().UTC()
	return domain.PendingPaymentTicket{
		TicketID:    uuid.NewString(),
		UserID:      1,
		Address:     "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
		DisplayName: "@carol",
		AmountMicro: 1_000_000,
		Currency:    domain.Currency,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}
}

func TestMemoryTicketStore_ConsumeIsAtomic(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryTicketStore()
	ticket := newTicket(time.Minute)
	if err := s.Put(ctx, ticket); err != nil {
		t.Fatalf("unexpected put error: %v", err)
	}

	var wins int
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Consume(ctx, ticket.TicketID); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("expected exactly one consumer to win, got %d", wins)
	}
}

func TestMemoryTicketStore_ExpiredTicketIsNotFound(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryTicketStore()
	ticket := newTicket(-time.Minute)
	if err := s.Put(ctx, ticket); err != nil {
		t.Fatalf("unexpected put error: %v", err)
	}

	if _, err := s.Get(ctx, ticket.TicketID); !errors.Is(err, ErrTicketNotFound) {
		t.Fatalf("expected ErrTicketNotFound for expired get, got %v", err)
	}
	if _, err := s.Consume(ctx, ticket.TicketID); !errors.Is(err, ErrTicketNotFound) {
		t.Fatalf("expected ErrTicketNotFound for expired consume, got %v", err)
	}
}

func TestMemoryTicketStore_SweepIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryTicketStore()

	live := newTicket(time.Minute)
	stale := newTicket(-time.Minute)
	_ = s.Put(ctx, live)
	_ = s.Put(ctx, stale)

	if removed := s.Sweep(ctx, time.Now()); removed != 1 {
		t.Fatalf("expected 1 removed on first sweep, got %d", removed)
	}
	if removed := s.Sweep(ctx, time.Now()); removed != 0 {
		t.Fatalf("expected 0 removed on second sweep, got %d", removed)
	}
	if _, err := s.Get(ctx, live.TicketID); err != nil {
		t.Fatalf("expected live ticket to survive the sweep, got %v", err)
	}
}

func TestMemorySessionStore_PutOverwritesAndTakeRemoves(t *testing.T) {
	s := NewMemorySessionStore()

	s.Put(domain.AmountSession{UserID: 1, Address: "0xaaa", DisplayName: "first"})
	s.Put(domain.AmountSession{UserID: 1, Address: "0xbbb", DisplayName: "second"})

	session, ok := s.Peek(1)
	if !ok || session.DisplayName != "second" {
		t.Fatalf("expected second session to overwrite first, got %+v ok=%v", session, ok)
	}

	if _, ok := s.Take(1); !ok {
		t.Fatal("expected take to return the open slot")
	}
	if _, ok := s.Take(1); ok {
		t.Fatal("expected slot to be gone after take")
	}
}
