// Package money implements exact fixed-point amounts with two decimal places.
//
// A Money value is whole units plus subunits in [0, 99]. Arithmetic carries
// and borrows across the subunit boundary the way manual decimal arithmetic
// does; it never produces negative units and never clamps invalid input.
package money

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// SubunitsPerUnit is the subunit base.
const SubunitsPerUnit = 100

var (
	// ErrInvalidArgument marks malformed input: missing or mismatched
	// currency, subunits out of range, negative multiplier.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInvalidState marks a violated balance invariant: negative units, a
	// subtraction that would go below zero, or overflow.
	ErrInvalidState = errors.New("invalid state")
)

// Money is an amount in one currency.
type Money struct {
	Units    int64  `json:"units"`
	Subunits int    `json:"subunits"`
	Currency string `json:"currency"`
}

// New builds a validated Money.
func New(units int64, subunits int, currency string) (Money, error) {
	m := Money{Units: units, Subunits: subunits, Currency: currency}
	if err := m.Validate(); err != nil {
		return Money{}, err
	}
	return m, nil
}

// MustNew is New that panics on invalid input. For constants and tests.
func MustNew(units int64, subunits int, currency string) Money {
	m, err := New(units, subunits, currency)
	if err != nil {
		panic(err)
	}
	return m
}

// Zero returns the zero amount of a currency.
func Zero(currency string) Money {
	return Money{Currency: currency}
}

// Parse reads a decimal string such as "300.00" or "19.5". At most two
// fractional digits are accepted; negative amounts are an invalid state.
func Parse(s, currency string) (Money, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return Money{}, fmt.Errorf("%w: parse %q: %v", ErrInvalidArgument, s, err)
	}
	if d.IsNegative() {
		return Money{}, fmt.Errorf("%w: %q is negative", ErrInvalidState, s)
	}

	cents := d.Shift(2)
	if !cents.IsInteger() {
		return Money{}, fmt.Errorf("%w: %q has more than two decimal places", ErrInvalidArgument, s)
	}
	if cents.GreaterThan(decimal.NewFromInt(math.MaxInt64)) {
		return Money{}, fmt.Errorf("%w: %q overflows", ErrInvalidState, s)
	}
	total := cents.IntPart()

	return New(total/SubunitsPerUnit, int(total%SubunitsPerUnit), currency)
}

// Validate checks the value invariants.
func (m Money) Validate() error {
	if m.Currency == "" {
		return fmt.Errorf("%w: currency is required", ErrInvalidArgument)
	}
	if m.Subunits < 0 || m.Subunits >= SubunitsPerUnit {
		return fmt.Errorf("%w: subunits %d outside [0,99]", ErrInvalidArgument, m.Subunits)
	}
	if m.Units < 0 {
		return fmt.Errorf("%w: units %d are negative", ErrInvalidState, m.Units)
	}
	return nil
}

// IsZero reports whether the amount is zero.
func (m Money) IsZero() bool {
	return m.Units == 0 && m.Subunits == 0
}

// Decimal returns the amount as a decimal.
func (m Money) Decimal() decimal.Decimal {
	return decimal.NewFromInt(m.Units).Add(decimal.New(int64(m.Subunits), -2))
}

// String formats the amount as "300.00 USD".
func (m Money) String() string {
	return m.Decimal().StringFixed(2) + " " + m.Currency
}

func checkPair(a, b Money) error {
	if err := a.Validate(); err != nil {
		return err
	}
	if err := b.Validate(); err != nil {
		return err
	}
	if a.Currency != b.Currency {
		return fmt.Errorf("%w: currency mismatch %s vs %s", ErrInvalidArgument, a.Currency, b.Currency)
	}
	return nil
}

// Add returns a + b.
func Add(a, b Money) (Money, error) {
	if err := checkPair(a, b); err != nil {
		return Money{}, err
	}

	subunits := a.Subunits + b.Subunits
	carry := int64(subunits / SubunitsPerUnit)
	subunits %= SubunitsPerUnit

	if a.Units > math.MaxInt64-b.Units-carry {
		return Money{}, fmt.Errorf("%w: addition overflows", ErrInvalidState)
	}
	return Money{Units: a.Units + b.Units + carry, Subunits: subunits, Currency: a.Currency}, nil
}

// Subtract returns a - b. a must not be smaller than b.
func Subtract(a, b Money) (Money, error) {
	if err := checkPair(a, b); err != nil {
		return Money{}, err
	}
	if Compare(a, b) < 0 {
		return Money{}, fmt.Errorf("%w: cannot subtract %s from %s", ErrInvalidState, b, a)
	}

	units := a.Units - b.Units
	subunits := a.Subunits - b.Subunits
	if subunits < 0 {
		subunits += SubunitsPerUnit
		units--
	}
	return Money{Units: units, Subunits: subunits, Currency: a.Currency}, nil
}

// Multiply returns m * n for n >= 0.
func Multiply(m Money, n int64) (Money, error) {
	if err := m.Validate(); err != nil {
		return Money{}, err
	}
	if n < 0 {
		return Money{}, fmt.Errorf("%w: multiplier %d is negative", ErrInvalidArgument, n)
	}
	if n == 0 {
		return Zero(m.Currency), nil
	}

	if m.Units > math.MaxInt64/n {
		return Money{}, fmt.Errorf("%w: multiplication overflows", ErrInvalidState)
	}
	units := m.Units * n

	// subunits * n may not fit in int64 for huge n; split the carry first.
	subQuot := n / SubunitsPerUnit
	subRem := n % SubunitsPerUnit
	carry := int64(m.Subunits)*subQuot + (int64(m.Subunits)*subRem)/SubunitsPerUnit
	subunits := int((int64(m.Subunits) * subRem) % SubunitsPerUnit)

	if units > math.MaxInt64-carry {
		return Money{}, fmt.Errorf("%w: multiplication overflows", ErrInvalidState)
	}
	return Money{Units: units + carry, Subunits: subunits, Currency: m.Currency}, nil
}

// IsGreater reports whether a > b.
func IsGreater(a, b Money) (bool, error) {
	if err := checkPair(a, b); err != nil {
		return false, err
	}
	return Compare(a, b) > 0, nil
}

// Compare orders two amounts of the same currency, assumed valid.
func Compare(a, b Money) int {
	switch {
	case a.Units < b.Units:
		return -1
	case a.Units > b.Units:
		return 1
	case a.Subunits < b.Subunits:
		return -1
	case a.Subunits > b.Subunits:
		return 1
	}
	return 0
}
