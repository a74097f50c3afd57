/**
 * @description
 * Recipient resolution: the algorithm that turns a free-form recipient string
 * (raw address, @username, numeric user id, or personal alias) into a canonical
 * ResolvedRecipient. It composes the identifier parser, the requester's address
 * book and the profile store's secondary indexes, applying the alias-override
 * hierarchy: a user's personal name for someone always wins visually over the
 * platform handle, while the address actually paid is always freshly resolved.
 *
 * Nothing here is cached. A friend's underlying address or registration status
 * may change between calls, so every resolution recomputes from current state.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stablepay/walletbot/internal/domain"
	"github.com/stablepay/walletbot/internal/store"
)

// ErrRecipientNotFound is returned when an identifier parses but does not lead
// to a payable wallet address. It renders as generic "not found" copy so the
// bot does not leak which accounts exist.
var ErrRecipientNotFound = errors.New("recipient not found")

// Resolve turns raw into a canonical recipient on behalf of requesterID.
// Parse failures propagate as-is so the caller can show the specific syntax
// problem; lookups that come up empty report ErrRecipientNotFound.
func (s *Service) Resolve(ctx context.Context, raw string, requesterID int64) (*domain.ResolvedRecipient, error) {
	ident, err := domain.ParseIdentifier(raw)
	if err != nil {
		return nil, err
	}
	return s.resolveIdentifier(ctx, ident, requesterID, true)
}

// resolveIdentifier handles one identifier. allowAlias is false on the single
// recursive step used for alias targets: an alias pointing at another alias is
// rejected at add time, so resolution never goes more than one level deep.
func (s *Service) resolveIdentifier(ctx context.Context, ident domain.Identifier, requesterID int64, allowAlias bool) (*domain.ResolvedRecipient, error) {
	switch ident.Kind {
	case domain.KindAddress:
		return s.resolveAddress(ctx, ident.Address, requesterID)
	case domain.KindUsername:
		return s.resolveRegistered(ctx, requesterID, func() (*domain.UserProfile, error) {
			return s.repo.FindUserByUsername(ctx, ident.Username)
		})
	case domain.KindUserID:
		return s.resolveRegistered(ctx, requesterID, func() (*domain.UserProfile, error) {
			return s.repo.FindUserByPlatformID(ctx, ident.UserID)
		})
	case domain.KindAlias:
		if !allowAlias {
			return nil, fmt.Errorf("%w: alias targets may not reference aliases", ErrRecipientNotFound)
		}
		return s.resolveAlias(ctx, ident.Alias, requesterID)
	default:
		return nil, domain.ErrInvalidFormat
	}
}

// resolveAddress resolves a raw wallet address. A registered owner contributes
// their handle; failing that the requester's own alias for the address wins;
// failing that the address displays truncated.
func (s *Service) resolveAddress(ctx context.Context, address string, requesterID int64) (*domain.ResolvedRecipient, error) {
	owner, err := s.repo.FindUserByWalletAddress(ctx, address)
	if err == nil {
		return &domain.ResolvedRecipient{
			Address:     owner.WalletAddress,
			DisplayName: "@" + owner.Username,
			OwnerUserID: owner.PlatformUserID,
		}, nil
	}
	if !errors.Is(err, store.ErrUserNotFound) {
		return nil, err
	}

	if requesterID != 0 {
		if requester, err := s.repo.FindUserByPlatformID(ctx, requesterID); err == nil {
			if alias, ok := FindAliasByAddress(requester, address); ok {
				return &domain.ResolvedRecipient{
					Address:       address,
					DisplayName:   alias,
					IsFriendAlias: true,
				}, nil
			}
		}
	}

	return &domain.ResolvedRecipient{
		Address:     address,
		DisplayName: domain.TruncateAddress(address),
	}, nil
}

// resolveRegistered resolves an identifier that must belong to a registered
// user (username or numeric id), overlaying the requester's alias when one
// points at the same user.
func (s *Service) resolveRegistered(ctx context.Context, requesterID int64, lookup func() (*domain.UserProfile, error)) (*domain.ResolvedRecipient, error) {
	target, err := lookup()
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, ErrRecipientNotFound
		}
		return nil, err
	}
	if target.WalletAddress == "" {
		return nil, ErrRecipientNotFound
	}

	resolved := &domain.ResolvedRecipient{
		Address:     target.WalletAddress,
		DisplayName: "@" + target.Username,
		OwnerUserID: target.PlatformUserID,
	}

	if requesterID != 0 {
		if requester, err := s.repo.FindUserByPlatformID(ctx, requesterID); err == nil {
			if alias, ok := FindAliasByUser(requester, target); ok {
				// The requester's personal name outranks the platform handle.
				resolved.DisplayName = alias
				resolved.IsFriendAlias = true
			}
		}
	}
	return resolved, nil
}

// resolveAlias resolves one of the requester's own friend aliases. A raw
// address target is authoritative and resolves immediately; a username or
// user-id target takes exactly one inner resolution step with the alias
// overlaid as the final display name.
func (s *Service) resolveAlias(ctx context.Context, alias string, requesterID int64) (*domain.ResolvedRecipient, error) {
	if requesterID == 0 {
		return nil, ErrRecipientNotFound
	}
	requester, err := s.repo.FindUserByPlatformID(ctx, requesterID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, ErrRecipientNotFound
		}
		return nil, err
	}
	target, ok := requester.Friends[alias]
	if !ok {
		return nil, ErrRecipientNotFound
	}

	inner, err := friendTargetIdentifier(target)
	if err != nil {
		return nil, err
	}
	if inner.Kind == domain.KindAddress {
		// The stored address is authoritative; no registered-user check.
		return &domain.ResolvedRecipient{
			Address:       inner.Address,
			DisplayName:   alias,
			IsFriendAlias: true,
		}, nil
	}

	resolved, err := s.resolveIdentifier(ctx, inner, 0, false)
	if err != nil {
		return nil, err
	}
	resolved.DisplayName = alias
	resolved.IsFriendAlias = true
	return resolved, nil
}

// friendTargetIdentifier converts a stored friend target back into an
// identifier for the inner resolution step.
func friendTargetIdentifier(target domain.FriendTarget) (domain.Identifier, error) {
	switch target.Kind {
	case domain.KindAddress:
		return domain.Identifier{Kind: domain.KindAddress, Address: target.Value}, nil
	case domain.KindUsername:
		return domain.Identifier{Kind: domain.KindUsername, Username: target.Value}, nil
	case domain.KindUserID:
		return domain.ParseIdentifier(target.Value)
	default:
		return domain.Identifier{}, fmt.Errorf("%w: unknown friend target kind %q", ErrRecipientNotFound, target.Kind)
	}
}

func equalAddress(a, b string) bool {
	return strings.EqualFold(a, b)
}
