// Package types provides common value types used across Tally.
package types

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// AmountPrecision is the fixed number of fraction digits at which ledger
// amounts are rendered. Arithmetic is exact decimal throughout; binary
// floating point never touches an amount.
const AmountPrecision = 8

// Tolerance is the largest difference at which two independently derived
// balances are still considered equal.
var Tolerance = decimal.New(1, -AmountPrecision)

// FormatAmount renders an amount at the fixed ledger precision.
//
// Examples:
//   - FormatAmount(decimal.NewFromInt(70)) = "70.00000000"
//   - FormatAmount(decimal.Zero)           = "0.00000000"
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(AmountPrecision)
}

// ParseAmount parses a decimal string into an exact amount.
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, fmt.Errorf("types: parse amount %q: %w", s, err)
	}

	return d, nil
}

// MustAmount is like ParseAmount but panics on error. Use for literals in tests.
func MustAmount(s string) decimal.Decimal {
	d, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}

	return d
}

// Sum returns the exact sum of the given amounts.
func Sum(amounts ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a)
	}

	return total
}

// WithinTolerance reports whether two amounts agree within the ledger's
// rendering precision.
func WithinTolerance(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(Tolerance)
}

// NormalizeCurrency validates and canonicalizes an ISO 4217 currency code
// to upper case. The code must be exactly three letters.
func NormalizeCurrency(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != 3 {
		return "", fmt.Errorf("types: invalid currency code %q", code)
	}
	for _, r := range code {
		if !unicode.IsLetter(r) {
			return "", fmt.Errorf("types: invalid currency code %q", code)
		}
	}

	return code, nil
}
