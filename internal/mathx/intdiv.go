// Package mathx holds small integer helpers for firmware maths. Everything here
// is allocation-free and avoids floating point.
package mathx

import "golang.org/x/exp/constraints"

// RoundDiv returns floor((a + b/2)/b), classic rounding for positives.
// A zero divisor yields zero.
func RoundDiv[T constraints.Unsigned](a, b T) T {
	if b == 0 {
		return 0
	}
	return (a + b/2) / b
}

// Between reports lo <= v && v <= hi.
func Between[T constraints.Integer](v, lo, hi T) bool {
	return v >= lo && v <= hi
}

// AbsDiff returns |a-b| for unsigned values without wrapping.
func AbsDiff[T constraints.Unsigned](a, b T) T {
	if a > b {
		return a - b
	}
	return b - a
}
