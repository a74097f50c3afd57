/**
 * @description
 * This file implements the recipient identifier parser. A raw string typed by a
 * user (command argument, deep-link payload, or free text captured by the intent
 * resolver) is classified into exactly one identifier kind: an EVM wallet
 * address, a chat username, a numeric platform user id, or a personal friend
 * alias. Classification is purely syntactic; no I/O happens here.
 *
 * The rules are ordered and each has a hard gate: a string that looks like the
 * start of an address or username must fully satisfy that rule or fail with the
 * kind-specific error. It is never silently reinterpreted as another kind.
 *
 * @dependencies
 * - github.com/ethereum/go-ethereum/common: strict hex-address validation.
 */

package domain

import (
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Identifier kinds produced by ParseIdentifier.
const (
	KindAddress  = "address"
	KindUsername = "username"
	KindUserID   = "user_id"
	KindAlias    = "alias"
)

// Parse errors. These are user-correctable and safe to surface verbatim.
var (
	ErrInvalidAddress  = errors.New("invalid wallet address")
	ErrInvalidUsername = errors.New("invalid username")
	ErrInvalidUserID   = errors.New("invalid user id")
	ErrInvalidAlias    = errors.New("invalid alias")
	ErrInvalidFormat   = errors.New("unrecognized recipient format")
)

// Identifier is the parsed form of a raw recipient string. Exactly one of the
// value fields is meaningful, selected by Kind.
type Identifier struct {
	Kind     string
	Address  string
	Username string
	UserID   int64
	Alias    string
}

const (
	addressPrefix  = "0x"
	usernameMarker = "@"

	aliasMaxLen = 16

	// reservedSelfAlias is rejected in any casing so "me" stays available for
	// self-referencing command sugar.
	reservedSelfAlias = "me"
)

var (
	usernameRe = regexp.MustCompile(`^[A-Za-z0-9_]{5,32}$`)
	digitsRe   = regexp.MustCompile(`^[0-9]+$`)
	aliasRe    = regexp.MustCompile(`^[A-Za-z0-9_-]{1,16}$`)
)

// ParseIdentifier classifies raw into one of the identifier kinds. Rules are
// checked in order; the first matching gate wins and a near-miss inside a gate
// fails with that gate's error rather than falling through.
func ParseIdentifier(raw string) (Identifier, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Identifier{}, ErrInvalidFormat
	}

	// Rule 1: hex address. Anything that claims the 0x prefix must be a full,
	// strictly valid address.
	if strings.HasPrefix(raw, addressPrefix) || strings.HasPrefix(raw, "0X") {
		if len(raw) == 2+2*common.AddressLength && common.IsHexAddress(raw) {
			return Identifier{Kind: KindAddress, Address: common.HexToAddress(raw).Hex()}, nil
		}
		return Identifier{}, ErrInvalidAddress
	}

	// Rule 2: @username.
	if strings.HasPrefix(raw, usernameMarker) {
		handle := strings.TrimPrefix(raw, usernameMarker)
		if !usernameRe.MatchString(handle) {
			return Identifier{}, ErrInvalidUsername
		}
		return Identifier{Kind: KindUsername, Username: handle}, nil
	}

	// Rule 3: all digits means a numeric platform user id.
	if digitsRe.MatchString(raw) {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			return Identifier{}, ErrInvalidUserID
		}
		return Identifier{Kind: KindUserID, UserID: id}, nil
	}

	// Rule 4: alias candidate.
	if err := ValidateAlias(raw); err != nil {
		return Identifier{}, err
	}
	return Identifier{Kind: KindAlias, Alias: raw}, nil
}

// ValidateAlias checks the syntactic rules for a friend alias: 1-16 characters
// of letters, digits, underscore or hyphen, not claiming the address or
// username markers, and never the reserved literal "me" in any casing.
func ValidateAlias(alias string) error {
	if alias == "" || len(alias) > aliasMaxLen {
		return ErrInvalidAlias
	}
	if strings.HasPrefix(alias, usernameMarker) || strings.HasPrefix(alias, addressPrefix) || strings.HasPrefix(alias, "0X") {
		return ErrInvalidAlias
	}
	if !aliasRe.MatchString(alias) {
		return ErrInvalidAlias
	}
	if strings.EqualFold(alias, reservedSelfAlias) {
		return ErrInvalidAlias
	}
	return nil
}

// TruncateAddress renders an address in the short 0x1234…cdef form used in
// display names and receipts when no friendlier name is known.
func TruncateAddress(addr string) string {
	if len(addr) <= 12 {
		return addr
	}
	return addr[:6] + "…" + addr[len(addr)-4:]
}
