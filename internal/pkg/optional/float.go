// Package optional provides a nullable float used for derived metrics.
//
// A ratio with a zero denominator is not zero, it is unknown. Every
// threshold comparison on an unknown value is false, so "no data" never
// looks like a real signal downstream.
package optional

import (
	"encoding/json"
	"math"
)

// Float is a float64 that may be absent.
type Float struct {
	v     float64
	valid bool
}

// Some wraps a known value. NaN and Inf are treated as absent.
func Some(v float64) Float {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Float{}
	}
	return Float{v: v, valid: true}
}

// None returns an absent value.
func None() Float { return Float{} }

// Ratio returns num/den, or None when den is zero.
func Ratio(num, den float64) Float {
	if den == 0 {
		return Float{}
	}
	return Some(num / den)
}

// Delta returns the percent change (curr/prev - 1) * 100, or None when
// prev is zero.
func Delta(curr, prev float64) Float {
	if prev == 0 {
		return Float{}
	}
	return Some((curr/prev - 1) * 100)
}

// DeltaOf is Delta over two optional values; None if either is absent.
func DeltaOf(curr, prev Float) Float {
	if !curr.valid || !prev.valid {
		return Float{}
	}
	return Delta(curr.v, prev.v)
}

// Valid reports whether the value is present.
func (f Float) Valid() bool { return f.valid }

// Get returns the value and whether it is present.
func (f Float) Get() (float64, bool) { return f.v, f.valid }

// Or returns the value, or def when absent.
func (f Float) Or(def float64) float64 {
	if !f.valid {
		return def
	}
	return f.v
}

// Abs returns |f|, preserving absence.
func (f Float) Abs() Float {
	if !f.valid {
		return f
	}
	return Float{v: math.Abs(f.v), valid: true}
}

// GreaterThan is false when f is absent.
func (f Float) GreaterThan(t float64) bool { return f.valid && f.v > t }

// LessOrEqual is false when f is absent.
func (f Float) LessOrEqual(t float64) bool { return f.valid && f.v <= t }

// MarshalJSON encodes an absent value as null.
func (f Float) MarshalJSON() ([]byte, error) {
	if !f.valid {
		return []byte("null"), nil
	}
	return json.Marshal(f.v)
}

// UnmarshalJSON accepts a number or null.
func (f *Float) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = Float{}
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = Some(v)
	return nil
}

// Equal reports whether both values are absent or both hold the same value.
func (f Float) Equal(o Float) bool {
	if !f.valid || !o.valid {
		return f.valid == o.valid
	}
	return f.v == o.v
}
