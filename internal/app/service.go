/**
 * @description
 * This file contains the core application service for the wallet bot. The
 * `Service` struct coordinates the profile repository, the ticket and session
 * stores, the custody-gateway rail client, the chat transport and the event
 * producer. The interesting branching logic lives in resolver.go (recipient
 * resolution), confirm.go (the payment confirmation state machine),
 * friends.go (the address book) and requests.go (payment requests); this file
 * holds the wiring plus the sequential account operations.
 *
 * @dependencies
 * - internal/domain, internal/store: Domain models and persistence contracts.
 * - pkg/chatclient, pkg/railclient, pkg/rabbitmq: External service boundaries.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/stablepay/walletbot/internal/domain"
	"github.com/stablepay/walletbot/internal/store"
	"github.com/stablepay/walletbot/pkg/chatclient"
	"github.com/stablepay/walletbot/pkg/railclient"
	"github.com/stablepay/walletbot/pkg/rabbitmq"
)

// Rail is the payment-rail surface the service consumes. *railclient.Client
// satisfies it; tests use small stubs.
type Rail interface {
	CreateWallet(ctx context.Context) (*railclient.Wallet, error)
	GetBalance(ctx context.Context, address string) (int64, error)
	Transfer(ctx context.Context, signingKeyRef, toAddress string, amountMicro int64) (*railclient.TransferResult, error)
	GetHistory(ctx context.Context, address string, limit int) ([]railclient.HistoryEntry, error)
}

// ChatSender is the chat-transport surface the service consumes.
// *chatclient.Client satisfies it.
type ChatSender interface {
	SendMessage(ctx context.Context, chatID int64, text string, buttons [][]chatclient.InlineButton) (int64, error)
	EditMessageText(ctx context.Context, chatID, messageID int64, text string, buttons [][]chatclient.InlineButton) error
	AnswerCallbackQuery(ctx context.Context, callbackID, text string, alert bool) error
}

// Service provides the core business logic for the wallet bot.
type Service struct {
	repo      store.Repository
	tickets   store.TicketStore
	sessions  store.SessionStore
	rail      Rail
	chat      ChatSender
	producer  rabbitmq.Publisher
	ticketTTL time.Duration
}

// NewService creates a new wallet bot service instance.
func NewService(
	repo store.Repository,
	tickets store.TicketStore,
	sessions store.SessionStore,
	rail Rail,
	chat ChatSender,
	producer rabbitmq.Publisher,
	ticketTTL time.Duration,
) *Service {
	if ticketTTL <= 0 {
		ticketTTL = 15 * time.Minute
	}
	return &Service{
		repo:      repo,
		tickets:   tickets,
		sessions:  sessions,
		rail:      rail,
		chat:      chat,
		producer:  producer,
		ticketTTL: ticketTTL,
	}
}

// RegisterUser provisions a custodial wallet for a first-time user and stores
// their profile. Calling it again for an existing user is a no-op returning
// the stored profile, so /start stays safe to repeat.
func (s *Service) RegisterUser(ctx context.Context, platformUserID int64, username string) (*domain.UserProfile, bool, error) {
	existing, err := s.repo.FindUserByPlatformID(ctx, platformUserID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, store.ErrUserNotFound) {
		return nil, false, fmt.Errorf("failed to look up user: %w", err)
	}

	wallet, err := s.rail.CreateWallet(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("wallet provisioning failed: %w", err)
	}

	profile := &domain.UserProfile{
		PlatformUserID: platformUserID,
		Username:       username,
		WalletAddress:  wallet.Address,
		SigningKeyRef:  wallet.SigningKeyRef,
		Friends:        map[string]domain.FriendTarget{},
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.repo.CreateUser(ctx, profile); err != nil {
		if errors.Is(err, store.ErrUserAlreadyExists) {
			// Lost a race with a concurrent /start; the stored profile wins.
			stored, findErr := s.repo.FindUserByPlatformID(ctx, platformUserID)
			if findErr != nil {
				return nil, false, findErr
			}
			return stored, false, nil
		}
		return nil, false, fmt.Errorf("failed to store profile: %w", err)
	}

	log.Printf("level=info component=service msg=\"wallet provisioned\" user_id=%d address=%s", platformUserID, wallet.Address)
	return profile, true, nil
}

// Balance returns the user's current rail balance in micro-USDC.
func (s *Service) Balance(ctx context.Context, platformUserID int64) (int64, error) {
	profile, err := s.repo.FindUserByPlatformID(ctx, platformUserID)
	if err != nil {
		return 0, err
	}
	return s.rail.GetBalance(ctx, profile.WalletAddress)
}

// HistoryItem is one rendered history row: the raw rail entry plus the
// friendliest available name for the counterparty.
type HistoryItem struct {
	Entry            railclient.HistoryEntry
	Outgoing         bool
	CounterpartyName string
}

// History fetches the user's recent transfers and substitutes counterparty
// addresses with friend aliases or registered handles where possible. Name
// resolution is recomputed per call from the live address book.
func (s *Service) History(ctx context.Context, platformUserID int64, limit int) ([]HistoryItem, error) {
	profile, err := s.repo.FindUserByPlatformID(ctx, platformUserID)
	if err != nil {
		return nil, err
	}
	entries, err := s.rail.GetHistory(ctx, profile.WalletAddress, limit)
	if err != nil {
		return nil, err
	}

	items := make([]HistoryItem, 0, len(entries))
	for _, entry := range entries {
		outgoing := equalAddress(entry.From, profile.WalletAddress)
		counterparty := entry.To
		if !outgoing {
			counterparty = entry.From
		}
		items = append(items, HistoryItem{
			Entry:            entry,
			Outgoing:         outgoing,
			CounterpartyName: s.displayNameForAddress(ctx, profile, counterparty),
		})
	}
	return items, nil
}

// Profile returns the stored profile for a user.
func (s *Service) Profile(ctx context.Context, platformUserID int64) (*domain.UserProfile, error) {
	return s.repo.FindUserByPlatformID(ctx, platformUserID)
}

// displayNameForAddress applies the same naming hierarchy resolution uses:
// the viewer's own alias first, then the registered owner's handle, then a
// truncated address.
func (s *Service) displayNameForAddress(ctx context.Context, viewer *domain.UserProfile, address string) string {
	if alias, ok := FindAliasByAddress(viewer, address); ok {
		return alias
	}
	owner, err := s.repo.FindUserByWalletAddress(ctx, address)
	if err == nil && owner.Username != "" {
		return "@" + owner.Username
	}
	return domain.TruncateAddress(address)
}

// publishEvent is best-effort: broker trouble is logged, never surfaced into a
// payment flow.
func (s *Service) publishEvent(ctx context.Context, routingKey string, body interface{}) {
	if s.producer == nil {
		return
	}
	if err := s.producer.Publish(ctx, rabbitmq.EventsExchange, routingKey, body); err != nil {
		log.Printf("level=warn component=service msg=\"event publish failed\" routing_key=%s err=%v", routingKey, err)
	}
}
