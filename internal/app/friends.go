/**
 * @description
 * The personal address book: alias CRUD plus the reverse lookups resolution
 * and history rendering rely on. Aliases live in the owner's friends map and
 * are written back whole through UpdateFriends; the profile store has no
 * partial-field update, so every mutation is read-modify-write on the full map.
 *
 * Adding a friend enforces the invariant that keeps resolution one level deep:
 * an alias target may be an address, a username, or a numeric user id, but
 * never another alias.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/stablepay/walletbot/internal/domain"
)

var (
	// ErrAliasNotFound is returned by RemoveFriend for an unknown alias.
	ErrAliasNotFound = errors.New("alias not found")
	// ErrAliasTargetIsAlias rejects alias targets that are themselves aliases.
	ErrAliasTargetIsAlias = errors.New("a friend target cannot be another alias")
)

// AliasConflictError reports an add-friend collision, carrying the existing
// target so the user can decide to remove and re-add.
type AliasConflictError struct {
	Alias    string
	Existing domain.FriendTarget
}

func (e *AliasConflictError) Error() string {
	return fmt.Sprintf("alias %q already points at %s %s", e.Alias, e.Existing.Kind, e.Existing.Value)
}

// AddFriend validates and stores a new alias for the user. The alias must be
// syntactically valid and unused (case-sensitive exact match; never silently
// overwritten), and the target must parse as an address, username or user id.
func (s *Service) AddFriend(ctx context.Context, platformUserID int64, alias, rawTarget string) error {
	if err := domain.ValidateAlias(alias); err != nil {
		return err
	}

	ident, err := domain.ParseIdentifier(rawTarget)
	if err != nil {
		return err
	}
	if ident.Kind == domain.KindAlias {
		return ErrAliasTargetIsAlias
	}

	profile, err := s.repo.FindUserByPlatformID(ctx, platformUserID)
	if err != nil {
		return err
	}
	if existing, ok := profile.Friends[alias]; ok {
		return &AliasConflictError{Alias: alias, Existing: existing}
	}

	target := domain.FriendTarget{Kind: ident.Kind}
	switch ident.Kind {
	case domain.KindAddress:
		target.Value = ident.Address
	case domain.KindUsername:
		target.Value = ident.Username
	case domain.KindUserID:
		target.Value = strconv.FormatInt(ident.UserID, 10)
	}

	friends := make(map[string]domain.FriendTarget, len(profile.Friends)+1)
	for k, v := range profile.Friends {
		friends[k] = v
	}
	friends[alias] = target
	return s.repo.UpdateFriends(ctx, platformUserID, friends)
}

// RemoveFriend deletes an alias from the user's address book.
func (s *Service) RemoveFriend(ctx context.Context, platformUserID int64, alias string) error {
	profile, err := s.repo.FindUserByPlatformID(ctx, platformUserID)
	if err != nil {
		return err
	}
	if _, ok := profile.Friends[alias]; !ok {
		return ErrAliasNotFound
	}

	friends := make(map[string]domain.FriendTarget, len(profile.Friends))
	for k, v := range profile.Friends {
		if k != alias {
			friends[k] = v
		}
	}
	return s.repo.UpdateFriends(ctx, platformUserID, friends)
}

// FriendEntry is one alias with its target, for listing.
type FriendEntry struct {
	Alias  string
	Target domain.FriendTarget
}

// ListFriends returns the user's address book sorted by alias.
func (s *Service) ListFriends(ctx context.Context, platformUserID int64) ([]FriendEntry, error) {
	profile, err := s.repo.FindUserByPlatformID(ctx, platformUserID)
	if err != nil {
		return nil, err
	}
	entries := make([]FriendEntry, 0, len(profile.Friends))
	for alias, target := range profile.Friends {
		entries = append(entries, FriendEntry{Alias: alias, Target: target})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Alias < entries[j].Alias })
	return entries, nil
}

// FindAliasByAddress returns the owner's alias whose target is the given raw
// address, if any.
func FindAliasByAddress(profile *domain.UserProfile, address string) (string, bool) {
	return findAlias(profile, func(t domain.FriendTarget) bool {
		return t.Kind == domain.KindAddress && equalAddress(t.Value, address)
	})
}

// FindAliasByUsername returns the owner's alias pointing at the given handle.
func FindAliasByUsername(profile *domain.UserProfile, username string) (string, bool) {
	return findAlias(profile, func(t domain.FriendTarget) bool {
		return t.Kind == domain.KindUsername && strings.EqualFold(t.Value, username)
	})
}

// FindAliasByUserID returns the owner's alias pointing at the given user id.
func FindAliasByUserID(profile *domain.UserProfile, userID int64) (string, bool) {
	value := strconv.FormatInt(userID, 10)
	return findAlias(profile, func(t domain.FriendTarget) bool {
		return t.Kind == domain.KindUserID && t.Value == value
	})
}

// FindAliasByUser checks whether any alias in the profile points at the given
// registered user, by handle, id, or stored address.
func FindAliasByUser(profile *domain.UserProfile, target *domain.UserProfile) (string, bool) {
	if alias, ok := FindAliasByUsername(profile, target.Username); ok {
		return alias, true
	}
	if alias, ok := FindAliasByUserID(profile, target.PlatformUserID); ok {
		return alias, true
	}
	return FindAliasByAddress(profile, target.WalletAddress)
}

// findAlias scans deterministically so ties between aliases pointing at the
// same target always resolve the same way.
func findAlias(profile *domain.UserProfile, match func(domain.FriendTarget) bool) (string, bool) {
	if profile == nil {
		return "", false
	}
	aliases := make([]string, 0, len(profile.Friends))
	for alias := range profile.Friends {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)
	for _, alias := range aliases {
		if match(profile.Friends[alias]) {
			return alias, true
		}
	}
	return "", false
}
