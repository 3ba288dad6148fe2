// Package core provides money parsing and handling utilities.
//
// Amounts are kept as integer cents. Decimal input from users and bank
// providers is converted with shopspring/decimal so rounding is half-up and
// never depends on binary floating point.
package core

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Money is an amount in minor currency units.
type Money struct {
	Cents int64
}

var (
	hundred = decimal.NewFromInt(100)

	// Magnitudes from here on are rejected so int64 totals cannot wrap.
	maxCents = decimal.NewFromInt(1 << 62)
)

// centsOf rounds d to cents, half-up, within the int64-safe range.
func centsOf(d decimal.Decimal) (int64, error) {
	cents := d.Mul(hundred).Round(0)
	if !cents.Abs().LessThan(maxCents) {
		return 0, ErrInvalidAmount
	}
	return cents.IntPart(), nil
}

// plainDecimal rejects the exponent forms decimal.NewFromString accepts.
func plainDecimal(s string) (decimal.Decimal, error) {
	if strings.ContainsAny(s, "eE") {
		return decimal.Decimal{}, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, ErrInvalidAmount
	}
	return d, nil
}

// ParseDecimalToCents converts a decimal string to cents with proper rounding.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and rounds
// half-up on the third decimal place. Only strictly positive values pass.
//
//	ParseDecimalToCents("12.34")  -> 1234, nil
//	ParseDecimalToCents("12,345") -> 1235, nil
//	ParseDecimalToCents("-1")     -> 0, ErrInvalidAmount
func ParseDecimalToCents(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return 0, ErrInvalidAmount
	}
	d, err := plainDecimal(strings.ReplaceAll(s, ",", "."))
	if err != nil {
		return 0, err
	}
	cents, err := centsOf(d)
	if err != nil || cents <= 0 {
		return 0, ErrInvalidAmount
	}
	return cents, nil
}

// ParseMoney is ParseDecimalToCents wrapped in a Money.
func ParseMoney(s string) (Money, error) {
	c, err := ParseDecimalToCents(s)
	if err != nil {
		return Money{}, err
	}
	return Money{Cents: c}, nil
}

// MoneyFromFloat converts a provider float (e.g. 45.67) to cents, half-up.
// The sign is kept; callers decide direction.
func MoneyFromFloat(f float64) Money {
	return Money{Cents: decimal.NewFromFloat(f).Mul(hundred).Round(0).IntPart()}
}

// MoneyFromDecimal converts a signed decimal to cents, half-up. Magnitudes
// outside the int64-safe range are ErrInvalidAmount.
func MoneyFromDecimal(d decimal.Decimal) (Money, error) {
	c, err := centsOf(d)
	if err != nil {
		return Money{}, err
	}
	return Money{Cents: c}, nil
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// Decimal returns the amount in major units.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Cents, -2)
}

// Abs returns the magnitude of m.
func (m Money) Abs() Money {
	if m.Cents < 0 {
		return Money{Cents: -m.Cents}
	}
	return m
}

func (m Money) Add(o Money) Money { return Money{Cents: m.Cents + o.Cents} }
func (m Money) Sub(o Money) Money { return Money{Cents: m.Cents - o.Cents} }
func (m Money) IsZero() bool      { return m.Cents == 0 }

// Float64 returns the major-unit value for display and JSON consumers.
// Use cents for calculations.
func (m Money) Float64() float64 {
	return m.Decimal().InexactFloat64()
}

func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}

// MarshalJSON encodes the amount as a JSON number with two decimals.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalJSON accepts a JSON number or a quoted decimal string. Negative
// values are decoded as-is (account balances); Validate rejects them where
// the domain requires a positive amount. Exponents and out-of-range values
// are ErrInvalidAmount.
func (m *Money) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if string(b) == "null" {
		*m = Money{}
		return nil
	}
	raw := strings.Trim(string(b), `"`)
	d, err := plainDecimal(strings.ReplaceAll(raw, ",", "."))
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, b)
	}
	out, err := MoneyFromDecimal(d)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, b)
	}
	*m = out
	return nil
}

// MarshalText lets Money act as a CSV column.
func (m Money) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// Percent returns part/whole*100 computed in decimal arithmetic and rounded
// to four places. A zero whole yields ErrDivisionDegenerate and 0.
func Percent(part, whole Money) (float64, error) {
	if whole.Cents == 0 {
		return 0, ErrDivisionDegenerate
	}
	p := decimal.NewFromInt(part.Cents).
		Mul(hundred).
		Div(decimal.NewFromInt(whole.Cents)).
		Round(4)
	return p.InexactFloat64(), nil
}
