// Package types provides common type aliases and utilities.
package types

import (
	"github.com/shopspring/decimal"
)

// Money represents a monetary value with full precision.
// Uses decimal.Decimal to avoid floating-point errors.
type Money = decimal.Decimal

// SplitTolerance is how far cash + mobile may drift from a split sale total.
var SplitTolerance = decimal.New(1, -2)

// NewMoney creates a Money value from a float.
// WARNING: Use NewMoneyFromString for precise values.
func NewMoney(f float64) Money {
	return decimal.NewFromFloat(f)
}

// NewMoneyFromInt creates a Money value from a whole amount.
func NewMoneyFromInt(v int64) Money {
	return decimal.NewFromInt(v)
}

// NewMoneyFromString creates a Money value from a string.
// This is the preferred method for monetary values.
func NewMoneyFromString(s string) (Money, error) {
	return decimal.NewFromString(s)
}

// MustMoney creates a Money value from a string, panics on error.
// Use only for constants and tests.
func MustMoney(s string) Money {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Zero returns zero Money value.
func Zero() Money {
	return decimal.Zero
}

// WithinTolerance reports whether |a-b| <= tolerance.
func WithinTolerance(a, b, tolerance Money) bool {
	return a.Sub(b).Abs().LessThanOrEqual(tolerance)
}

// LineTotal returns unitPrice * quantity.
func LineTotal(unitPrice Money, quantity int64) Money {
	return unitPrice.Mul(decimal.NewFromInt(quantity))
}
