// Package mathx has small ordered-value helpers shared by the validation rules.
package mathx

import "golang.org/x/exp/constraints"

// Range is a closed interval [Lo, Hi].
type Range[T constraints.Ordered] struct {
	Lo, Hi T
}

// Contains reports Lo <= v && v <= Hi (order-insensitive).
func (r Range[T]) Contains(v T) bool { return Between(v, r.Lo, r.Hi) }

// Clamp limits v to [lo, hi]. If lo > hi, the bounds are swapped.
func Clamp[T constraints.Ordered](v, lo, hi T) T {
	if hi < lo {
		lo, hi = hi, lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Between reports lo <= v && v <= hi (order-insensitive).
func Between[T constraints.Ordered](v, lo, hi T) bool {
	if hi < lo {
		lo, hi = hi, lo
	}
	return v >= lo && v <= hi
}

// OneOf reports whether v equals any element of set.
func OneOf[T comparable](v T, set ...T) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
