// Package core provides number parsing and rounding helpers.
//
// Amounts, miles and percentages are decimals end to end; floats only appear
// when a value is handed to a spreadsheet cell.
package core

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrNotNumeric = errors.New("must be numeric")

var hundred = decimal.NewFromInt(100)

// Hundred is the constant 100 used for percentage math.
func Hundred() decimal.Decimal { return hundred }

// ParseNumber parses a user-entered number. It accepts both dot (12.34) and
// comma (12,34) decimal separators and surrounding whitespace. A thousands
// separator is not supported.
func ParseNumber(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrRequired
	}
	s = strings.ReplaceAll(s, ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrNotNumeric
	}
	return d, nil
}

// ParsePositive parses s and requires it to be greater than zero.
func ParsePositive(s string) (decimal.Decimal, error) {
	d, err := ParseNumber(s)
	if err != nil {
		return d, err
	}
	if !d.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// Round2 rounds half away from zero to two decimal places.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Null wraps d as a valid NullDecimal.
func Null(d decimal.Decimal) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: d, Valid: true}
}
