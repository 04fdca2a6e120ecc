// Package core holds the domain model shared by storage, analytics and
// the HTTP layer.
//
// Money is kept as integer cents internally; the JSON surface speaks
// decimal units, so callers send and receive plain numbers.
package core

import (
	"math"
	"strconv"
	"strings"
)

// Money is an amount in integer cents. Calculations always happen on
// cents to avoid floating-point drift; floats only appear at the JSON
// boundary.
type Money struct {
	Cents int64
}

// FromUnits converts a decimal amount (e.g. 12.34) to Money with
// half-up rounding on the sub-cent remainder.
func FromUnits(units float64) Money {
	return Money{Cents: int64(math.Round(units * 100))}
}

// Units returns the decimal value. Display and JSON only; use Cents for
// arithmetic.
func (m Money) Units() float64 {
	return float64(m.Cents) / 100.0
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// Sub returns m - other. Money is a magnitude elsewhere, but the
// difference may legitimately be negative.
func (m Money) Sub(other Money) Money {
	return Money{Cents: m.Cents - other.Cents}
}

// MarshalJSON emits the amount as a JSON number in decimal units.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(formatUnits(m.Cents)), nil
}

// UnmarshalJSON accepts a JSON number in decimal units.
func (m *Money) UnmarshalJSON(data []byte) error {
	units, err := strconv.ParseFloat(strings.TrimSpace(string(data)), 64)
	if err != nil {
		return ErrInvalidAmount
	}
	*m = FromUnits(units)
	return nil
}

// formatUnits renders cents as a minimal decimal string: 10000 -> "100",
// 1050 -> "10.5", -1001 -> "-10.01".
func formatUnits(cents int64) string {
	neg := cents < 0
	if neg {
		cents = -cents
	}
	whole := cents / 100
	frac := cents % 100
	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	b.WriteString(strconv.FormatInt(whole, 10))
	if frac != 0 {
		if frac%10 == 0 {
			b.WriteString("." + strconv.FormatInt(frac/10, 10))
		} else {
			s := strconv.FormatInt(frac, 10)
			if frac < 10 {
				s = "0" + s
			}
			b.WriteString("." + s)
		}
	}
	return b.String()
}
