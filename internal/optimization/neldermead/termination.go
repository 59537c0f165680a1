package neldermead

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"
	"time"
)

// TerminationReason names the criterion that ended a solve.
type TerminationReason int

const (
	// None means no criterion matched and the solve continues.
	None TerminationReason = iota
	Canceled
	Timeout
	MaxIterations
	SimplexDiameter
	ValueConvergence
)

var terminationNames = []string{
	"none",
	"canceled",
	"timeout",
	"max_iterations",
	"simplex_diameter",
	"value_convergence",
}

func (r TerminationReason) String() string {
	if r < 0 || int(r) >= len(terminationNames) {
		return fmt.Sprintf("TerminationReason(%d)", int(r))
	}
	return terminationNames[r]
}

// MarshalText implements encoding.TextMarshaler.
func (r TerminationReason) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *TerminationReason) UnmarshalText(text []byte) error {
	i := slices.Index(terminationNames, string(text))
	if i < 0 {
		return fmt.Errorf("unknown termination reason %q", text)
	}
	*r = TerminationReason(i)
	return nil
}

// ConvergencePredicate reports whether the best and worst outputs are close
// enough to stop.
type ConvergencePredicate[T cmp.Ordered] func(best, worst T) bool

// TerminationConfig holds the optional stopping criteria. A zero value has
// no criteria; a solve with none runs until its context is canceled. The
// With* methods return modified copies, so a config can be shared.
type TerminationConfig[T cmp.Ordered] struct {
	diameterTolerance *float64
	maxIterations     *int
	maxDuration       *time.Duration
	valueConverged    ConvergencePredicate[T]
}

// NewTerminationConfig returns a config with every criterion disabled.
func NewTerminationConfig[T cmp.Ordered]() TerminationConfig[T] {
	return TerminationConfig[T]{}
}

// WithDiameterTolerance stops once the bounding diameter drops below tol.
func (c TerminationConfig[T]) WithDiameterTolerance(tol float64) TerminationConfig[T] {
	c.diameterTolerance = &tol
	return c
}

// WithMaxIterations stops once n iterations have completed.
func (c TerminationConfig[T]) WithMaxIterations(n int) TerminationConfig[T] {
	c.maxIterations = &n
	return c
}

// WithMaxDuration stops once the elapsed time exceeds d.
func (c TerminationConfig[T]) WithMaxDuration(d time.Duration) TerminationConfig[T] {
	c.maxDuration = &d
	return c
}

// WithValueConvergence stops once converged(best, worst) returns true.
func (c TerminationConfig[T]) WithValueConvergence(converged ConvergencePredicate[T]) TerminationConfig[T] {
	c.valueConverged = converged
	return c
}

// DiameterTolerance returns the diameter threshold and whether it is set.
func (c TerminationConfig[T]) DiameterTolerance() (float64, bool) {
	if c.diameterTolerance == nil {
		return 0, false
	}
	return *c.diameterTolerance, true
}

// MaxIterations returns the iteration cap and whether it is set.
func (c TerminationConfig[T]) MaxIterations() (int, bool) {
	if c.maxIterations == nil {
		return 0, false
	}
	return *c.maxIterations, true
}

// MaxDuration returns the time limit and whether it is set.
func (c TerminationConfig[T]) MaxDuration() (time.Duration, bool) {
	if c.maxDuration == nil {
		return 0, false
	}
	return *c.maxDuration, true
}

// HasCriterion reports whether any stopping criterion other than
// cancellation is configured.
func (c TerminationConfig[T]) HasCriterion() bool {
	return c.diameterTolerance != nil || c.maxIterations != nil ||
		c.maxDuration != nil || c.valueConverged != nil
}

// evaluate checks the criteria in priority order and returns the first
// match, or None.
func (c TerminationConfig[T]) evaluate(ctx context.Context, s *OrderedSimplex[T], iterations int, elapsed time.Duration) TerminationReason {
	if ctx.Err() != nil {
		return Canceled
	}
	if c.maxDuration != nil && elapsed > *c.maxDuration {
		return Timeout
	}
	if c.maxIterations != nil && iterations >= *c.maxIterations {
		return MaxIterations
	}
	if c.diameterTolerance != nil && s.Diameter() < *c.diameterTolerance {
		return SimplexDiameter
	}
	if c.valueConverged != nil && c.valueConverged(s.best().Output, s.worst().Output) {
		return ValueConvergence
	}
	return None
}

// Real is the set of numeric output types the tolerance helpers accept.
type Real interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 | ~float32 | ~float64
}

// AbsoluteTolerance converges when |best-worst| <= tol.
func AbsoluteTolerance[T Real](tol float64) ConvergencePredicate[T] {
	return func(best, worst T) bool {
		return math.Abs(float64(best)-float64(worst)) <= tol
	}
}

// RelativeTolerance converges when |best-worst| <= tol*max(|best|, |worst|).
// Outputs that are both zero count as converged.
func RelativeTolerance[T Real](tol float64) ConvergencePredicate[T] {
	return func(best, worst T) bool {
		b, w := float64(best), float64(worst)
		scale := math.Max(math.Abs(b), math.Abs(w))
		return math.Abs(b-w) <= tol*math.Max(scale, math.SmallestNonzeroFloat64)
	}
}
