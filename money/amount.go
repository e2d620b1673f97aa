package money

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Amount is a token amount in micro-units (1 token = 10^6 micro-units).
// All balance arithmetic in the system happens on this type; decimal
// strings only exist at the edges (user input, chain RPC, display).
type Amount int64

// MaxDecimals is the number of fractional digits the token supports.
const MaxDecimals = 6

const microPerToken = 1_000_000

// Zero is the zero amount.
const Zero Amount = 0

var (
	// ErrPrecision indicates a malformed or over-precise amount string.
	ErrPrecision = errors.New("amount exceeds 6 decimal places or is not a valid number")

	// ErrNegativeResult indicates a subtraction that would go below zero.
	ErrNegativeResult = errors.New("subtraction result would be negative")
)

// FromMicro builds an Amount from a raw micro-unit count.
func FromMicro(micro int64) Amount {
	return Amount(micro)
}

// Micro returns the raw micro-unit count.
func (a Amount) Micro() int64 {
	return int64(a)
}

// FromDecimal converts a decimal value to an Amount, failing if the
// value carries more than MaxDecimals fractional digits or is negative.
func FromDecimal(d decimal.Decimal) (Amount, error) {
	if d.Exponent() < -MaxDecimals {
		// Trailing zeros are fine, real sub-micro precision is not.
		if !d.Equal(d.Truncate(MaxDecimals)) {
			return Zero, fmt.Errorf("%w: %s", ErrPrecision, d.String())
		}
	}
	if d.IsNegative() {
		return Zero, fmt.Errorf("%w: negative amount %s", ErrPrecision, d.String())
	}
	micro := d.Shift(MaxDecimals)
	if !micro.IsInteger() {
		return Zero, fmt.Errorf("%w: %s is not a whole number of micro-units", ErrPrecision, d.String())
	}
	return Amount(micro.IntPart()), nil
}

// Decimal returns the amount as an exact decimal value.
func (a Amount) Decimal() decimal.Decimal {
	return decimal.New(int64(a), -MaxDecimals)
}

// Parse validates an externally supplied amount string. It is the only
// entry point for user input: trims whitespace, rejects non-numeric and
// non-positive values, and enforces the precision limit.
func Parse(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Zero, fmt.Errorf("%w: empty input", ErrPrecision)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Zero, fmt.Errorf("%w: %q", ErrPrecision, s)
	}
	if !d.IsPositive() {
		return Zero, fmt.Errorf("%w: amount must be positive, got %q", ErrPrecision, s)
	}
	return FromDecimal(d)
}

// MustParse is Parse for compile-time constants; panics on error.
func MustParse(s string) Amount {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

// Add returns a + b.
func (a Amount) Add(b Amount) Amount {
	return a + b
}

// Sub returns a - b, failing if the result would be negative.
func (a Amount) Sub(b Amount) (Amount, error) {
	if a < b {
		return Zero, fmt.Errorf("%w: %s - %s", ErrNegativeResult, a, b)
	}
	return a - b, nil
}

// Equal reports whether a and b are equal at micro-unit resolution.
func (a Amount) Equal(b Amount) bool {
	return a == b
}

// GTE reports a >= b.
func (a Amount) GTE(b Amount) bool {
	return a >= b
}

// GT reports a > b.
func (a Amount) GT(b Amount) bool {
	return a > b
}

// IsPositive reports a > 0.
func (a Amount) IsPositive() bool {
	return a > 0
}

// IsZero reports a == 0.
func (a Amount) IsZero() bool {
	return a == 0
}

// String renders the amount as a decimal token value without trailing
// zeros, e.g. "10.123456" or "5.5".
func (a Amount) String() string {
	return a.Decimal().String()
}

// Fixed renders the amount with exactly MaxDecimals fractional digits.
func (a Amount) Fixed() string {
	return a.Decimal().StringFixed(MaxDecimals)
}
