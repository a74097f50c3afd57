/**
 * @description
 * Redis-backed TicketStore for multi-instance deployments. Tickets are stored
 * as JSON values under a namespaced key with a native TTL, so Redis itself
 * enforces expiry; Consume uses GETDEL for the same atomic remove-and-return
 * guarantee the in-process store provides under its mutex.
 *
 * @dependencies
 * - github.com/redis/go-redis/v9: The Redis client library.
 */

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stablepay/walletbot/internal/domain"
)

// RedisTicketStore implements TicketStore on a shared Redis instance.
type RedisTicketStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisTicketStore creates a ticket store namespaced under prefix.
func NewRedisTicketStore(client redis.UniversalClient, prefix string) *RedisTicketStore {
	trimmed := strings.TrimSpace(prefix)
	if trimmed == "" {
		trimmed = "walletbot:tickets"
	}
	trimmed = strings.TrimSuffix(trimmed, ":")
	return &RedisTicketStore{client: client, prefix: trimmed}
}

func (s *RedisTicketStore) key(ticketID string) string {
	return fmt.Sprintf("%s:%s", s.prefix, ticketID)
}

func (s *RedisTicketStore) Put(ctx context.Context, ticket domain.PendingPaymentTicket) error {
	ttl := time.Until(ticket.ExpiresAt)
	if ttl <= 0 {
		return nil // already expired, nothing to stage
	}
	body, err := json.Marshal(ticket)
	if err != nil {
		return fmt.Errorf("failed to encode ticket: %w", err)
	}
	return s.client.Set(ctx, s.key(ticket.TicketID), body, ttl).Err()
}

func (s *RedisTicketStore) Get(ctx context.Context, ticketID string) (*domain.PendingPaymentTicket, error) {
	body, err := s.client.Get(ctx, s.key(ticketID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrTicketNotFound
		}
		return nil, err
	}
	return decodeTicket(body)
}

func (s *RedisTicketStore) Consume(ctx context.Context, ticketID string) (*domain.PendingPaymentTicket, error) {
	body, err := s.client.GetDel(ctx, s.key(ticketID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrTicketNotFound
		}
		return nil, err
	}
	ticket, err := decodeTicket(body)
	if err != nil {
		return nil, err
	}
	if ticket.Expired(time.Now()) {
		return nil, ErrTicketNotFound
	}
	return ticket, nil
}

// Sweep is a no-op: Redis evicts expired tickets through key TTLs.
func (s *RedisTicketStore) Sweep(ctx context.Context, now time.Time) int {
	return 0
}

func decodeTicket(body []byte) (*domain.PendingPaymentTicket, error) {
	var ticket domain.PendingPaymentTicket
	if err := json.Unmarshal(body, &ticket); err != nil {
		return nil, fmt.Errorf("failed to decode ticket: %w", err)
	}
	return &ticket, nil
}
