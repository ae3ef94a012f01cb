// Package money provides precise decimal arithmetic for order totals.
//
// All calculations are done with shopspring/decimal internally; snapshot
// fields are stored as float64 after rounding to 2 decimal places, half-up.
package money

import (
	"github.com/shopspring/decimal"
)

// Tolerance is the slack allowed when comparing monetary values (spec §4.6,
// §8 "payment sufficiency").
var Tolerance = decimal.NewFromFloat(0.01)

var hundred = decimal.NewFromInt(100)

// FromFloat converts a stored float64 into a Decimal for calculation.
func FromFloat(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v)
}

// ToFloat rounds to 2dp half-up and converts back to float64 for storage.
func ToFloat(v decimal.Decimal) float64 {
	return roundHalfUp2(v)
}

// roundHalfUp2 rounds to 2 decimal places using half-away-from-zero,
// matching rust_decimal's RoundingStrategy::MidpointAwayFromZero.
func roundHalfUp2(v decimal.Decimal) float64 {
	neg := v.IsNegative()
	abs := v.Abs()
	scaled := abs.Shift(2)
	// add 0.5 then truncate - classic half-up on the scaled integer domain
	rounded := scaled.Add(decimal.NewFromFloat(0.5)).Truncate(0)
	result := rounded.Shift(-2)
	if neg {
		result = result.Neg()
	}
	f, _ := result.Float64()
	return f
}

// IsPaymentSufficient reports whether paid >= required - Tolerance.
func IsPaymentSufficient(paid, required float64) bool {
	p := FromFloat(paid)
	r := FromFloat(required)
	return p.GreaterThanOrEqual(r.Sub(Tolerance))
}

// Eq reports whether two monetary values are equal within Tolerance.
func Eq(a, b float64) bool {
	diff := FromFloat(a).Sub(FromFloat(b)).Abs()
	return diff.LessThan(Tolerance)
}

// SumPayments sums the amounts of non-cancelled payments.
func SumPayments(amounts []float64, cancelled []bool) float64 {
	total := decimal.Zero
	for i, amt := range amounts {
		if i < len(cancelled) && cancelled[i] {
			continue
		}
		total = total.Add(FromFloat(amt))
	}
	return ToFloat(total)
}
