package billing

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY
// =============================================================================

// CurrencyPlaces is the number of decimal places kept for currency amounts.
const CurrencyPlaces = 2

// Bounds on amounts accepted from callers. Rounding or comparing a decimal
// rescales it to a common exponent, so both the exponent and the digit count
// must stay small before any arithmetic runs.
const (
	MaxAmountExponent = 18
	MaxAmountDigits   = 20
)

// AmountInRange reports whether d is small enough to be a currency amount:
// |exponent| <= MaxAmountExponent and at most MaxAmountDigits integer digits.
func AmountInRange(d decimal.Decimal) bool {
	exp := d.Exponent()
	if exp > MaxAmountExponent || exp < -MaxAmountExponent {
		return false
	}
	return d.NumDigits()+int(exp) <= MaxAmountDigits
}

// RoundCurrency rounds to CurrencyPlaces, half away from zero.
func RoundCurrency(d decimal.Decimal) decimal.Decimal {
	return d.Round(CurrencyPlaces)
}

// ParseAmount parses a currency string such as "1000" or " 12.505 ".
// The result is rounded to CurrencyPlaces.
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse amount %q: %w", s, err)
	}
	if !AmountInRange(d) {
		return decimal.Zero, fmt.Errorf("parse amount %q: out of range", s)
	}
	return RoundCurrency(d), nil
}

// SumAmounts adds amounts without intermediate rounding.
func SumAmounts(amounts ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}

// =============================================================================
// TIME
// =============================================================================

// NormalizeDate returns t in UTC, or now in UTC when t is zero.
func NormalizeDate(t time.Time, now time.Time) time.Time {
	if t.IsZero() {
		return now.UTC()
	}
	return t.UTC()
}

// NormalizeDatePtr is NormalizeDate for optional inputs.
func NormalizeDatePtr(t *time.Time, now time.Time) time.Time {
	if t == nil {
		return now.UTC()
	}
	return NormalizeDate(*t, now)
}
