/**
 * @description
 * Core domain models for users and their personal address books. A UserProfile
 * is the bot's view of one chat-platform user: the custodial wallet created for
 * them, the sealed signing-key handle the rail needs to authorize transfers,
 * and the friends map of personal aliases.
 *
 * @notes
 * - The friends map is always read and written whole. The profile store exposes
 *   no partial-field update, so callers merge onto the full map to avoid
 *   clobbering entries written by a concurrent command.
 */

package domain

import "time"

// UserProfile represents a registered chat-platform user and their wallet.
type UserProfile struct {
	PlatformUserID int64                   `json:"platform_user_id"`
	Username       string                  `json:"username"`
	WalletAddress  string                  `json:"wallet_address"`
	SigningKeyRef  string                  `json:"signing_key_ref"` // sealed handle, opaque to the bot
	Friends        map[string]FriendTarget `json:"friends"`
	CreatedAt      time.Time               `json:"created_at"`
}

// FriendTarget is the destination a friend alias points at. Value holds the
// address, the username without its @ marker, or the decimal user id depending
// on Kind. An alias target is never itself an alias; that is enforced when the
// friend is added so resolution stays one level deep.
type FriendTarget struct {
	Kind  string `json:"kind"` // KindAddress | KindUsername | KindUserID
	Value string `json:"value"`
}

// String renders the target the way a user would type it, for chat copy.
func (t FriendTarget) String() string {
	switch t.Kind {
	case KindUsername:
		return "@" + t.Value
	case KindUserID:
		return "user " + t.Value
	default:
		return t.Value
	}
}

// ResolvedRecipient is the canonical outcome of recipient resolution. It is
// ephemeral and recomputed on every call: a friend's underlying address or
// registration status may change between two commands, so nothing here is ever
// cached.
type ResolvedRecipient struct {
	// Address is always present and syntactically valid.
	Address string `json:"address"`
	// DisplayName is always present, falling back to a truncated address.
	DisplayName string `json:"display_name"`
	// OwnerUserID is the platform id of the registered owner of Address, or
	// zero when the address is not known to belong to any registered user.
	OwnerUserID int64 `json:"owner_user_id,omitempty"`
	// IsFriendAlias reports whether DisplayName came from the requester's own
	// address book rather than a platform handle or raw address.
	IsFriendAlias bool `json:"is_friend_alias"`
}
