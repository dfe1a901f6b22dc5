// Package core provides money parsing and handling utilities.
//
// Amounts travel through the ledger as decimal.Decimal and are persisted as
// integer cents, so sums computed by the store are exact.
package core

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount converts a decimal string to a non-negative amount.
//
// Currency symbols and surrounding whitespace are ignored. A decimal comma is
// accepted when it is the only separator ("12,34"). Negative values, more than
// two fraction digits, amounts whose cents overflow int64 and anything that is
// not a plain decimal number are rejected.
//
// Examples:
//
//	ParseAmount("12.34")  -> 12.34
//	ParseAmount("¥12.34") -> 12.34
//	ParseAmount("12,34")  -> 12.34
//	ParseAmount("1,234")  -> ErrInvalidAmount
//	ParseAmount("-1")     -> ErrInvalidAmount
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimLeft(s, "¥￥")
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	if strings.Contains(s, ",") && !strings.Contains(s, ".") {
		s = strings.ReplaceAll(s, ",", ".")
	}
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return decimal.Zero, ErrInvalidAmount
	}
	for _, r := range s {
		if (r < '0' || r > '9') && r != '.' {
			return decimal.Zero, ErrInvalidAmount
		}
	}
	if i := strings.IndexByte(s, '.'); i >= 0 && len(s)-i-1 > 2 {
		return decimal.Zero, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if d.Shift(2).GreaterThan(maxCents) {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

var maxCents = decimal.NewFromInt(math.MaxInt64)

// ToCents rounds half-up to whole cents. d must fit in int64 cents, which
// ParseAmount guarantees.
func ToCents(d decimal.Decimal) int64 {
	return d.Shift(2).Round(0).IntPart()
}

func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}
