// Package core provides the ledger domain types.
//
// Amounts are fixed-point decimals with two fractional digits so that
// totals and balances are exact sums of integers.
package core

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// Amount is a non-negative quantity expressed in hundredths of a unit.
type Amount struct {
	Hundredths int64
}

// MaxUnits bounds a single transaction. Totals of many maximal amounts still
// fit in an int64.
const MaxUnits = 1_000_000_000_000

const maxHundredths = MaxUnits * 100

// ParseAmount converts a decimal string to an Amount.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and performs
// half-up rounding on the third decimal place. Signs are rejected: the
// ledger only stores non-negative quantities. Values above MaxUnits are rejected.
//
// Examples:
//
//	ParseAmount("100")    -> {10000}, nil
//	ParseAmount("2,5")    -> {250}, nil
//	ParseAmount("12.345") -> {1235}, nil
//	ParseAmount("-1")     -> error
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Amount{}, invalidAmount(s)
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return Amount{}, invalidAmount(s)
	}
	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return Amount{}, invalidAmount(s)
	}
	intPart := parts[0]
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
	}
	if intPart == "" && fracPart == "" {
		return Amount{}, invalidAmount(s)
	}
	if intPart == "" {
		intPart = "0"
	}
	for _, r := range intPart + fracPart {
		if !unicode.IsDigit(r) || r > unicode.MaxASCII {
			return Amount{}, invalidAmount(s)
		}
	}
	iv, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil || iv > MaxUnits {
		return Amount{}, invalidAmount(s)
	}
	var frac int64
	if len(fracPart) > 0 {
		frac = int64(fracPart[0]-'0') * 10
		if len(fracPart) > 1 {
			frac += int64(fracPart[1] - '0')
			if len(fracPart) > 2 && fracPart[2] >= '5' {
				frac++
			}
		}
	}
	a := Amount{Hundredths: iv*100 + frac}
	if err := a.Validate(); err != nil {
		return Amount{}, err
	}
	return a, nil
}

// AmountFromFloat converts a number produced by an external source.
// NaN, infinities, negatives and values above MaxUnits are rejected.
func AmountFromFloat(f float64) (Amount, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 || f > MaxUnits {
		return Amount{}, invalidAmount(strconv.FormatFloat(f, 'g', -1, 64))
	}
	a := Amount{Hundredths: int64(math.Floor(f*100 + 0.5))}
	if err := a.Validate(); err != nil {
		return Amount{}, err
	}
	return a, nil
}

// Units returns a whole-unit amount.
func Units(n int64) Amount {
	return Amount{Hundredths: n * 100}
}

// Validate checks the bounds of a single transaction amount.
func (a Amount) Validate() error {
	if a.Hundredths < 0 || a.Hundredths > maxHundredths {
		return invalidAmount(a.String())
	}
	return nil
}

func (a Amount) Add(b Amount) Amount {
	return Amount{Hundredths: a.Hundredths + b.Hundredths}
}

// CheckedAdd is Add that fails with ErrAmountOverflow instead of wrapping.
func (a Amount) CheckedAdd(b Amount) (Amount, error) {
	sum := a.Hundredths + b.Hundredths
	if (b.Hundredths > 0 && sum < a.Hundredths) || (b.Hundredths < 0 && sum > a.Hundredths) {
		return Amount{}, fmt.Errorf("%w: %s + %s", ErrAmountOverflow, a, b)
	}
	return Amount{Hundredths: sum}, nil
}

func (a Amount) Sub(b Amount) Amount {
	return Amount{Hundredths: a.Hundredths - b.Hundredths}
}

// Float returns the value for display and JSON encoding.
func (a Amount) Float() float64 {
	return float64(a.Hundredths) / 100.0
}

// String renders the amount without trailing zeros ("100", "2.5", "-3.25").
func (a Amount) String() string {
	h := a.Hundredths
	sign := ""
	if h < 0 {
		sign = "-"
		h = -h
	}
	whole := strconv.FormatInt(h/100, 10)
	rem := h % 100
	switch {
	case rem == 0:
		return sign + whole
	case rem%10 == 0:
		return sign + whole + "." + strconv.FormatInt(rem/10, 10)
	case rem < 10:
		return sign + whole + ".0" + strconv.FormatInt(rem, 10)
	default:
		return sign + whole + "." + strconv.FormatInt(rem, 10)
	}
}

func invalidAmount(v string) error {
	return &ValidationError{Field: "amount", Value: v, Err: ErrInvalidAmount}
}
