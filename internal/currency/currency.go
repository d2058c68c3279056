// Package currency holds minor-unit conversions and fee arithmetic.
package currency

import (
	"strings"

	"github.com/shopspring/decimal"
)

var zeroDecimal = map[string]struct{}{
	"BIF": {}, "CLP": {}, "DJF": {}, "GNF": {}, "JPY": {}, "KMF": {}, "KRW": {}, "MGA": {},
	"PYG": {}, "RWF": {}, "UGX": {}, "VND": {}, "VUV": {}, "XAF": {}, "XOF": {}, "XPF": {},
}

// CFAPerEuro is the fixed CFA franc peg.
var CFAPerEuro = decimal.RequireFromString("655.957")

var hundred = decimal.NewFromInt(100)

func IsZeroDecimal(code string) bool {
	_, ok := zeroDecimal[strings.ToUpper(code)]
	return ok
}

// IsCFA reports whether code is one of the two CFA francs pegged to the euro.
func IsCFA(code string) bool {
	c := strings.ToUpper(code)
	return c == "XOF" || c == "XAF"
}

// ToMajor converts a minor-unit amount to major units.
func ToMajor(minor int64, code string) decimal.Decimal {
	d := decimal.NewFromInt(minor)
	if IsZeroDecimal(code) {
		return d
	}
	return d.Div(hundred)
}

// FormatMajor renders minor as a major-unit string: "2500" for XOF, "25.00" for EUR.
func FormatMajor(minor int64, code string) string {
	if IsZeroDecimal(code) {
		return decimal.NewFromInt(minor).String()
	}
	return ToMajor(minor, code).StringFixed(2)
}

// MajorFloat is ToMajor as a float64 for JSON bodies that expect a number.
func MajorFloat(minor int64, code string) float64 {
	f, _ := ToMajor(minor, code).Float64()
	return f
}

// FromMajor converts a major-unit amount to minor units, rounding half away from zero.
func FromMajor(major decimal.Decimal, code string) int64 {
	if IsZeroDecimal(code) {
		return major.Round(0).IntPart()
	}
	return major.Mul(hundred).Round(0).IntPart()
}

// CFAToEuroCents converts a CFA amount (zero-decimal) to euro cents.
func CFAToEuroCents(amount int64) int64 {
	return decimal.NewFromInt(amount).Div(CFAPerEuro).Mul(hundred).Round(0).IntPart()
}

// Fee returns round(amount*rate + fixed) in minor units.
func Fee(amount int64, rate float64, fixed int64) int64 {
	return decimal.NewFromInt(amount).
		Mul(decimal.NewFromFloat(rate)).
		Add(decimal.NewFromInt(fixed)).
		Round(0).
		IntPart()
}

// BalanceThreshold is the tolerated reconciliation drift, in minor units.
func BalanceThreshold(code string) int64 {
	if IsZeroDecimal(code) {
		return 1000
	}
	return 100
}
