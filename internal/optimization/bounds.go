package optimization

import "math"

// Bounds holds per-dimension box constraints. Candidate points are clamped
// into [Lower[i], Upper[i]] before the objective ever sees them.
type Bounds struct {
	Lower []float64
	Upper []float64
}

// Unbounded returns bounds of (-Inf, +Inf) in every one of n dimensions.
func Unbounded(n int) Bounds {
	b := Bounds{
		Lower: make([]float64, n),
		Upper: make([]float64, n),
	}
	for i := 0; i < n; i++ {
		b.Lower[i] = math.Inf(-1)
		b.Upper[i] = math.Inf(1)
	}
	return b
}

// Dim returns the number of bounded dimensions.
func (b Bounds) Dim() int {
	return len(b.Lower)
}

// Validate checks that both vectors have length n and that every lower
// bound is not above its upper bound.
func (b Bounds) Validate(n int) error {
	if len(b.Lower) != n || len(b.Upper) != n {
		return NewConfigError("bounds length mismatch: lower=%d upper=%d, want %d",
			len(b.Lower), len(b.Upper), n).WithOperation("validate_bounds")
	}
	for i := range b.Lower {
		if math.IsNaN(b.Lower[i]) || math.IsNaN(b.Upper[i]) {
			return NewConfigError("bound %d is NaN", i).WithOperation("validate_bounds")
		}
		if b.Lower[i] > b.Upper[i] {
			return NewConfigError("lower bound %v exceeds upper bound %v in dimension %d",
				b.Lower[i], b.Upper[i], i).WithOperation("validate_bounds")
		}
	}
	return nil
}

// Clamp limits x to the box in place and returns it.
func (b Bounds) Clamp(x []float64) []float64 {
	for i := range x {
		x[i] = math.Max(b.Lower[i], math.Min(x[i], b.Upper[i]))
	}
	return x
}

// Contains reports whether x lies inside the box. A NaN coordinate is
// never inside.
func (b Bounds) Contains(x []float64) bool {
	if len(x) != len(b.Lower) {
		return false
	}
	for i, v := range x {
		if math.IsNaN(v) || v < b.Lower[i] || v > b.Upper[i] {
			return false
		}
	}
	return true
}
