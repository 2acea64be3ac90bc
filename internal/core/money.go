// Package core provides the domain types shared by every layer.
//
// This file contains helpers for parsing and formatting ledger amounts.
// Amounts are exact decimals; they are never converted to floating point.
package core

import (
	"errors"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// ErrInvalidAmount is returned when a textual amount cannot be parsed.
var ErrInvalidAmount = errors.New("invalid amount")

func init() {
	// Amounts travel as JSON numbers, matching what API clients send.
	decimal.MarshalJSONWithoutQuotes = true
}

// ParseAmount converts a decimal string to an exact amount.
//
// Both dot (12.34) and comma (12,34) decimal separators are accepted.
// Negative values and malformed input are rejected; zero is accepted here
// and left to the caller, since milestones allow it and ledger entries do not.
//
// Examples:
//
//	ParseAmount("12.34") -> 12.34, nil
//	ParseAmount("12,34") -> 12.34, nil
//	ParseAmount("-1")    -> 0, ErrInvalidAmount
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return decimal.Zero, ErrInvalidAmount
	}
	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return decimal.Zero, ErrInvalidAmount
	}
	for _, part := range parts {
		for _, r := range part {
			if !unicode.IsDigit(r) {
				return decimal.Zero, ErrInvalidAmount
			}
		}
	}
	if parts[0] == "" && (len(parts) == 1 || parts[1] == "") {
		return decimal.Zero, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// Bounds for stored amounts. Wider values are not money and make every
// later sum of the ledger expensive.
const (
	MaxAmountScale  = 8
	MaxAmountDigits = 30
)

// AmountInRange reports whether d fits the stored amount bounds: at most
// MaxAmountScale fractional digits and MaxAmountDigits digits overall. Only
// the exponent and coefficient are inspected, so no rescaling happens.
func AmountInRange(d decimal.Decimal) bool {
	if d.IsZero() {
		return true
	}
	exp := d.Exponent()
	if exp < -MaxAmountScale || exp > MaxAmountDigits {
		return false
	}
	digits := d.NumDigits()
	if exp > 0 {
		digits += int(exp)
	}
	return digits <= MaxAmountDigits
}

// SumAmounts adds every amount using exact decimal arithmetic.
func SumAmounts(amounts ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}
