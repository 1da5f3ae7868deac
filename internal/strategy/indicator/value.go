// Package indicator computes rolling-window technical indicators over daily history.
// Every function is pure; windows that are too short yield an invalid Value
// instead of a number.
package indicator

import (
	"strconv"
)

// Value is a number that may be unavailable.
type Value struct {
	V     float64
	Valid bool
}

// Some wraps an available value.
func Some(v float64) Value { return Value{V: v, Valid: true} }

// None is the unavailable value.
var None = Value{}

// Or returns v.V when valid, fallback otherwise.
func (v Value) Or(fallback float64) float64 {
	if !v.Valid {
		return fallback
	}
	return v.V
}

// MarshalJSON renders unavailable values as null.
func (v Value) MarshalJSON() ([]byte, error) {
	if !v.Valid {
		return []byte("null"), nil
	}
	return strconv.AppendFloat(nil, v.V, 'f', -1, 64), nil
}

// Flag is a boolean signal that may be unavailable.
type Flag struct {
	Set   bool
	Valid bool
}

// Bit returns 1 for a set, valid flag and 0 otherwise.
func (f Flag) Bit() float64 {
	if f.Valid && f.Set {
		return 1
	}
	return 0
}

// MarshalJSON renders unavailable flags as null.
func (f Flag) MarshalJSON() ([]byte, error) {
	if !f.Valid {
		return []byte("null"), nil
	}
	return strconv.AppendBool(nil, f.Set), nil
}

// greater compares two values; unavailable on either side propagates.
func greater(a, b Value) Flag {
	if !a.Valid || !b.Valid {
		return Flag{}
	}
	return Flag{Set: a.V > b.V, Valid: true}
}
