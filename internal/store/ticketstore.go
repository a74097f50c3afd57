/**
 * @description
 * TicketStore holds staged, unconfirmed payment tickets behind a small
 * get/put/consume/sweep contract. The confirmation flow must not assume
 * process-local memory, so the store is an injected interface: the in-process
 * implementation below serves a single-instance deployment, and the Redis
 * implementation in redis_ticketstore.go serves multi-instance ones.
 *
 * Consume is the linchpin: it atomically removes and returns the ticket, so two
 * concurrent confirm presses can never both reach the payment rail.
 */

package store

import (
	"context"
	"sync"
	"time"

	"github.com/stablepay/walletbot/internal/domain"
)

// TicketStore is the short-TTL store for pending payment tickets.
type TicketStore interface {
	Put(ctx context.Context, ticket domain.PendingPaymentTicket) error
	// Get returns the ticket without consuming it. Expired or missing tickets
	// report ErrTicketNotFound.
	Get(ctx context.Context, ticketID string) (*domain.PendingPaymentTicket, error)
	// Consume atomically removes and returns the ticket. The second of two
	// concurrent calls for the same id reports ErrTicketNotFound.
	Consume(ctx context.Context, ticketID string) (*domain.PendingPaymentTicket, error)
	// Sweep deletes tickets past their expiry and returns how many it removed.
	Sweep(ctx context.Context, now time.Time) int
}

// MemoryTicketStore is the in-process TicketStore.
type MemoryTicketStore struct {
	mu      sync.Mutex
	tickets map[string]domain.PendingPaymentTicket
}

// NewMemoryTicketStore creates an empty in-process ticket store.
func NewMemoryTicketStore() *MemoryTicketStore {
	return &MemoryTicketStore{tickets: make(map[string]domain.PendingPaymentTicket)}
}

func (s *MemoryTicketStore) Put(ctx context.Context, ticket domain.PendingPaymentTicket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickets[ticket.TicketID] = ticket
	return nil
}

func (s *MemoryTicketStore) Get(ctx context.Context, ticketID string) (*domain.PendingPaymentTicket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ticket, ok := s.tickets[ticketID]
	if !ok {
		return nil, ErrTicketNotFound
	}
	if ticket.Expired(time.Now()) {
		delete(s.tickets, ticketID)
		return nil, ErrTicketNotFound
	}
	return &ticket, nil
}

func (s *MemoryTicketStore) Consume(ctx context.Context, ticketID string) (*domain.PendingPaymentTicket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ticket, ok := s.tickets[ticketID]
	if !ok {
		return nil, ErrTicketNotFound
	}
	delete(s.tickets, ticketID)
	if ticket.Expired(time.Now()) {
		// An expired ticket behaves exactly like an unknown one.
		return nil, ErrTicketNotFound
	}
	return &ticket, nil
}

func (s *MemoryTicketStore) Sweep(ctx context.Context, now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, ticket := range s.tickets {
		if ticket.Expired(now) {
			delete(s.tickets, id)
			removed++
		}
	}
	return removed
}

// SessionStore keeps the single amount-entry slot per user. Put overwrites any
// existing slot; Take removes and returns it. Sessions are process-local and
// non-durable, which is an accepted loss across restarts.
type SessionStore interface {
	Put(session domain.AmountSession)
	Peek(userID int64) (*domain.AmountSession, bool)
	Take(userID int64) (*domain.AmountSession, bool)
}

// MemorySessionStore is the in-process SessionStore.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[int64]domain.AmountSession
}

// NewMemorySessionStore creates an empty session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[int64]domain.AmountSession)}
}

func (s *MemorySessionStore) Put(session domain.AmountSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.UserID] = session
}

func (s *MemorySessionStore) Peek(userID int64) (*domain.AmountSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[userID]
	if !ok {
		return nil, false
	}
	return &session, true
}

func (s *MemorySessionStore) Take(userID int64) (*domain.AmountSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[userID]
	if !ok {
		return nil, false
	}
	delete(s.sessions, userID)
	return &session, true
}
