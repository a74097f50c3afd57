/**
 * @description
 * PostgreSQL implementation of the `Repository` interface. User profiles live
 * in a `users` table with the friends map in a JSONB column; payment requests
 * live in a `payment_requests` table whose single row serves both the sender's
 * "sent" and the recipient's "received" list. Wallet-address and username
 * lookups go through indexed columns, never a table scan in application code.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Domain models used for data transfer.
 */

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stablepay/walletbot/internal/domain"
)

// PostgresRepository is the concrete Repository backed by PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// CreateUser inserts a freshly provisioned profile. A duplicate platform user
// id reports ErrUserAlreadyExists so /start stays idempotent for the caller.
func (r *PostgresRepository) CreateUser(ctx context.Context, profile *domain.UserProfile) error {
	friendsJSON, err := json.Marshal(profile.Friends)
	if err != nil {
		return fmt.Errorf("failed to encode friends map: %w", err)
	}
	query := `
		INSERT INTO users (platform_user_id, username, wallet_address, signing_key_ref, friends, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
	`
	_, err = r.db.Exec(ctx, query,
		profile.PlatformUserID,
		profile.Username,
		profile.WalletAddress,
		profile.SigningKeyRef,
		friendsJSON,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrUserAlreadyExists
		}
		return err
	}
	return nil
}

const userColumns = `platform_user_id, btrim(username), wallet_address, signing_key_ref, friends, created_at`

func (r *PostgresRepository) scanUser(row pgx.Row) (*domain.UserProfile, error) {
	var (
		profile     domain.UserProfile
		friendsJSON []byte
	)
	err := row.Scan(
		&profile.PlatformUserID,
		&profile.Username,
		&profile.WalletAddress,
		&profile.SigningKeyRef,
		&friendsJSON,
		&profile.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	if len(friendsJSON) > 0 {
		if err := json.Unmarshal(friendsJSON, &profile.Friends); err != nil {
			return nil, fmt.Errorf("failed to decode friends map: %w", err)
		}
	}
	if profile.Friends == nil {
		profile.Friends = map[string]domain.FriendTarget{}
	}
	return &profile, nil
}

// FindUserByPlatformID retrieves a profile by its chat-platform user id.
func (r *PostgresRepository) FindUserByPlatformID(ctx context.Context, platformUserID int64) (*domain.UserProfile, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE platform_user_id = $1`
	return r.scanUser(r.db.QueryRow(ctx, query, platformUserID))
}

// FindUserByUsername retrieves a profile by chat handle, case-insensitively.
func (r *PostgresRepository) FindUserByUsername(ctx context.Context, username string) (*domain.UserProfile, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE lower(btrim(username)) = lower(btrim($1))`
	return r.scanUser(r.db.QueryRow(ctx, query, username))
}

// FindUserByWalletAddress retrieves the registered owner of a wallet address.
// The wallet_address column carries a lower(wallet_address) index.
func (r *PostgresRepository) FindUserByWalletAddress(ctx context.Context, address string) (*domain.UserProfile, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE lower(wallet_address) = lower($1)`
	return r.scanUser(r.db.QueryRow(ctx, query, address))
}

// UpdateFriends replaces the whole friends map for one user.
func (r *PostgresRepository) UpdateFriends(ctx context.Context, platformUserID int64, friends map[string]domain.FriendTarget) error {
	if friends == nil {
		friends = map[string]domain.FriendTarget{}
	}
	friendsJSON, err := json.Marshal(friends)
	if err != nil {
		return fmt.Errorf("failed to encode friends map: %w", err)
	}
	tag, err := r.db.Exec(ctx, `UPDATE users SET friends = $2 WHERE platform_user_id = $1`, platformUserID, friendsJSON)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// CreatePaymentRequest persists a new pending request.
func (r *PostgresRepository) CreatePaymentRequest(ctx context.Context, req *domain.PaymentRequest) error {
	query := `
		INSERT INTO payment_requests (request_id, from_user_id, to_user_id, amount_micro, currency, reason, status, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.Exec(ctx, query,
		req.RequestID,
		req.FromUserID,
		req.ToUserID,
		req.AmountMicro,
		req.Currency,
		req.Reason,
		req.Status,
		req.CreatedAt,
		req.ExpiresAt,
	)
	return err
}

const requestColumns = `request_id, from_user_id, to_user_id, amount_micro, currency, reason, status, created_at, expires_at`

func scanPaymentRequest(row pgx.Row) (*domain.PaymentRequest, error) {
	var req domain.PaymentRequest
	err := row.Scan(
		&req.RequestID,
		&req.FromUserID,
		&req.ToUserID,
		&req.AmountMicro,
		&req.Currency,
		&req.Reason,
		&req.Status,
		&req.CreatedAt,
		&req.ExpiresAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrPaymentRequestNotFound
		}
		return nil, err
	}
	return &req, nil
}

// GetPaymentRequestByID fetches one request regardless of status.
func (r *PostgresRepository) GetPaymentRequestByID(ctx context.Context, requestID uuid.UUID) (*domain.PaymentRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM payment_requests WHERE request_id = $1`
	return scanPaymentRequest(r.db.QueryRow(ctx, query, requestID))
}

// ListPaymentRequestsForUser returns requests where the user is either party,
// newest first.
func (r *PostgresRepository) ListPaymentRequestsForUser(ctx context.Context, platformUserID int64, limit int) ([]domain.PaymentRequest, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
		SELECT ` + requestColumns + `
		FROM payment_requests
		WHERE from_user_id = $1 OR to_user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, platformUserID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var requests []domain.PaymentRequest
	for rows.Next() {
		req, err := scanPaymentRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, *req)
	}
	return requests, rows.Err()
}

// MarkPaymentRequestFulfilled transitions pending -> fulfilled. The WHERE
// clause enforces the one-way status rule; acting on a non-pending row reports
// ErrPaymentRequestNotPending.
func (r *PostgresRepository) MarkPaymentRequestFulfilled(ctx context.Context, requestID uuid.UUID) (*domain.PaymentRequest, error) {
	query := `
		UPDATE payment_requests
		SET status = $2
		WHERE request_id = $1 AND status = $3
		RETURNING ` + requestColumns
	req, err := scanPaymentRequest(r.db.QueryRow(ctx, query, requestID, domain.RequestStatusFulfilled, domain.RequestStatusPending))
	if err != nil {
		if errors.Is(err, ErrPaymentRequestNotFound) {
			return nil, r.classifyMissingTransition(ctx, requestID)
		}
		return nil, err
	}
	return req, nil
}

// MarkPaymentRequestDeclined transitions pending -> declined, and only when
// the decliner is the addressed counterparty.
func (r *PostgresRepository) MarkPaymentRequestDeclined(ctx context.Context, requestID uuid.UUID, toUserID int64) (*domain.PaymentRequest, error) {
	query := `
		UPDATE payment_requests
		SET status = $2
		WHERE request_id = $1 AND to_user_id = $4 AND status = $3
		RETURNING ` + requestColumns
	req, err := scanPaymentRequest(r.db.QueryRow(ctx, query, requestID, domain.RequestStatusDeclined, domain.RequestStatusPending, toUserID))
	if err != nil {
		if errors.Is(err, ErrPaymentRequestNotFound) {
			return nil, r.classifyMissingTransition(ctx, requestID)
		}
		return nil, err
	}
	return req, nil
}

// classifyMissingTransition distinguishes "no such request" from "request is
// already terminal" after a zero-row transition update.
func (r *PostgresRepository) classifyMissingTransition(ctx context.Context, requestID uuid.UUID) error {
	_, err := r.GetPaymentRequestByID(ctx, requestID)
	if err != nil {
		return err
	}
	return ErrPaymentRequestNotPending
}

// ExpirePaymentRequestsBefore sweeps stale pending requests into the expired
// state. The status guard makes the sweep idempotent and safe to run
// concurrently with normal traffic.
func (r *PostgresRepository) ExpirePaymentRequestsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		UPDATE payment_requests
		SET status = $2
		WHERE status = $1 AND expires_at <= $3
	`
	tag, err := r.db.Exec(ctx, query, domain.RequestStatusPending, domain.RequestStatusExpired, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
