// Package money provides integer cent amounts and the rounding rules shared
// by every balance-affecting workflow.
package money

import (
	"fmt"
	"math"
)

// Cents is a signed amount of money in cents.
//
// Balances and ledger amounts are always integer cents; fractional results
// from percentage math are rounded half away from zero at the cent.
type Cents int64

// FromUnits converts whole currency units to cents.
func FromUnits(units int64) Cents {
	return Cents(units * 100)
}

// String renders the amount as a decimal with two places, e.g. "1050.00".
func (c Cents) String() string {
	sign := ""
	value := int64(c)
	if value < 0 {
		sign = "-"
		value = -value
	}
	return fmt.Sprintf("%s%d.%02d", sign, value/100, value%100)
}

// Percent returns rate% of the amount, rounded half away from zero.
func Percent(amount Cents, rate float64) Cents {
	return Cents(math.Round(float64(amount) * rate / 100))
}

// AddPercent returns the amount grown by rate%, rounded half away from zero.
func AddPercent(amount Cents, rate float64) Cents {
	return Cents(math.Round(float64(amount) * (100 + rate) / 100))
}

// DivideCeil splits the amount into parts, rounding each part up to the cent.
// Ceiling keeps part × parts ≥ amount, so even schedules never under-collect.
func DivideCeil(amount Cents, parts int64) Cents {
	if parts <= 0 {
		return 0
	}
	value := int64(amount)
	if value <= 0 {
		return 0
	}
	return Cents((value + parts - 1) / parts)
}

// Compound grows the amount by rate% compounded over the given number of
// periods, rounded half away from zero at the end.
func Compound(amount Cents, rate float64, periods int64) Cents {
	if periods <= 0 {
		return amount
	}
	return Cents(math.Round(float64(amount) * math.Pow(1+rate/100, float64(periods))))
}
