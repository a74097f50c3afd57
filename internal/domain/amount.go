/**
 * @description
 * Payment amount parsing and formatting. User-entered amounts are decimal USDC
 * strings; internally every amount is an int64 count of micro-USDC (10^-6),
 * which avoids floating-point inaccuracies with financial data the same way
 * the rest of our services store kobo.
 *
 * @dependencies
 * - github.com/shopspring/decimal: exact decimal parsing and validation.
 */

package domain

import (
	"errors"

	"github.com/shopspring/decimal"
)

// Currency is the single settlement currency handled by the bot.
const Currency = "USDC"

// MicroUnitsPerWhole converts whole USDC to the stored micro-unit.
const MicroUnitsPerWhole = 1_000_000

// maxWholeAmount caps a single payment at one trillion USDC. The cap exists to
// reject absurd input before it reaches the rail, not to model a real limit.
var maxWholeAmount = decimal.NewFromInt(1_000_000_000_000)

// ErrInvalidAmount is returned for amounts that are not positive decimals with
// at most six fractional digits inside the accepted range.
var ErrInvalidAmount = errors.New("invalid amount")

// ParseAmount parses a user-entered decimal amount into micro-USDC.
func ParseAmount(raw string) (int64, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	if !d.IsPositive() {
		return 0, ErrInvalidAmount
	}
	if d.Exponent() < -6 {
		// More than six fractional digits cannot be settled in micro-USDC.
		return 0, ErrInvalidAmount
	}
	if d.GreaterThan(maxWholeAmount) {
		return 0, ErrInvalidAmount
	}
	return d.Shift(6).IntPart(), nil
}

// FormatAmount renders a micro-USDC amount as a decimal string without
// trailing zeros, e.g. 1500000 -> "1.5".
func FormatAmount(micro int64) string {
	return decimal.New(micro, -6).String()
}
