/**
 * @description
 * This file defines the `Repository` interface, the contract for everything the
 * bot persists: user profiles (with their friends map) and durable payment
 * requests. Defining an interface decouples the resolver, address book and
 * request workflow from the concrete PostgreSQL implementation and lets the
 * app-layer tests run against small stubs.
 *
 * Reverse lookups by username and wallet address are repository methods rather
 * than directory scans; the implementation is contracted to back them with
 * indexed columns.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - github.com/google/uuid: Payment request identifiers.
 * - internal/domain: Domain models.
 */

package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/stablepay/walletbot/internal/domain"
)

var (
	ErrUserNotFound             = errors.New("user not found")
	ErrUserAlreadyExists        = errors.New("user already exists")
	ErrPaymentRequestNotFound   = errors.New("payment request not found")
	ErrPaymentRequestNotPending = errors.New("payment request is not pending")
	ErrTicketNotFound           = errors.New("payment ticket not found")
)

// Repository defines the persistence operations backing the bot.
type Repository interface {
	// User profile methods. Lookups by username and wallet address are the
	// secondary indexes recipient resolution depends on.
	CreateUser(ctx context.Context, profile *domain.UserProfile) error
	FindUserByPlatformID(ctx context.Context, platformUserID int64) (*domain.UserProfile, error)
	FindUserByUsername(ctx context.Context, username string) (*domain.UserProfile, error)
	FindUserByWalletAddress(ctx context.Context, address string) (*domain.UserProfile, error)
	// UpdateFriends replaces the user's entire friends map. There is no
	// partial-field update; callers read, merge, and write the full map.
	UpdateFriends(ctx context.Context, platformUserID int64, friends map[string]domain.FriendTarget) error

	// Payment request methods. Status transitions are one-way; the fulfill and
	// decline methods only act on pending rows and report
	// ErrPaymentRequestNotPending otherwise.
	CreatePaymentRequest(ctx context.Context, req *domain.PaymentRequest) error
	GetPaymentRequestByID(ctx context.Context, requestID uuid.UUID) (*domain.PaymentRequest, error)
	ListPaymentRequestsForUser(ctx context.Context, platformUserID int64, limit int) ([]domain.PaymentRequest, error)
	MarkPaymentRequestFulfilled(ctx context.Context, requestID uuid.UUID) (*domain.PaymentRequest, error)
	MarkPaymentRequestDeclined(ctx context.Context, requestID uuid.UUID, toUserID int64) (*domain.PaymentRequest, error)
	ExpirePaymentRequestsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
