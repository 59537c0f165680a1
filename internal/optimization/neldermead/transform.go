package neldermead

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"strings"

	"gonum.org/v1/gonum/floats"

	"github.com/copyleftdev/simplex/internal/optimization"
)

// TransformationConfig holds the coefficients placing new candidates
// relative to the centroid (reflect, expand, contract) or the best vertex
// (shrink).
type TransformationConfig struct {
	Reflect  float64 `json:"reflect" yaml:"reflect"`
	Expand   float64 `json:"expand" yaml:"expand"`
	Contract float64 `json:"contract" yaml:"contract"`
	Shrink   float64 `json:"shrink" yaml:"shrink"`
}

// DefaultTransformationConfig returns the standard coefficients {1, 2, 0.5, 0.5}.
func DefaultTransformationConfig() TransformationConfig {
	return TransformationConfig{
		Reflect:  1.0,
		Expand:   2.0,
		Contract: 0.5,
		Shrink:   0.5,
	}
}

// Validate requires every coefficient to be positive and finite.
func (c TransformationConfig) Validate() error {
	coefs := []struct {
		name  string
		value float64
	}{
		{"reflect", c.Reflect},
		{"expand", c.Expand},
		{"contract", c.Contract},
		{"shrink", c.Shrink},
	}
	for _, coef := range coefs {
		if !(coef.value > 0) || math.IsInf(coef.value, 0) {
			return optimization.NewConfigError("%s coefficient must be positive and finite, got %v", coef.name, coef.value).
				WithOperation("validate_transformation").WithComponent("neldermead")
		}
	}
	return nil
}

// Action identifies which move produced the next simplex.
type Action int

const (
	Reflect Action = iota
	Expand
	GreedyExpand
	Contract
	Shrink
)

var actionNames = []string{"reflect", "expand", "greedy_expand", "contract", "shrink"}

func (a Action) String() string {
	if a < 0 || int(a) >= len(actionNames) {
		return fmt.Sprintf("Action(%d)", int(a))
	}
	return actionNames[a]
}

// MarshalText implements encoding.TextMarshaler.
func (a Action) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Action) UnmarshalText(text []byte) error {
	i := slices.Index(actionNames, string(text))
	if i < 0 {
		return fmt.Errorf("unknown action %q", text)
	}
	*a = Action(i)
	return nil
}

// Variant selects between the standard expansion rule and greedy expansion.
type Variant int

const (
	// Normal accepts an expanded point only if it beats the reflected one.
	Normal Variant = iota
	// GreedyExpansion also accepts an expanded point that loses to the
	// reflected one but still beats the best remaining vertex.
	GreedyExpansion
)

func (v Variant) String() string {
	switch v {
	case Normal:
		return "normal"
	case GreedyExpansion:
		return "greedy"
	default:
		return fmt.Sprintf("Variant(%d)", int(v))
	}
}

// ParseVariant accepts "normal" (or empty) and "greedy".
func ParseVariant(s string) (Variant, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "normal":
		return Normal, nil
	case "greedy", "greedy_expansion":
		return GreedyExpansion, nil
	default:
		return Normal, optimization.NewConfigError("unknown variant %q", s).WithComponent("neldermead")
	}
}

// MarshalText implements encoding.TextMarshaler.
func (v Variant) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (v *Variant) UnmarshalText(text []byte) error {
	parsed, err := ParseVariant(string(text))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// transformer performs one Nelder-Mead iteration. Every candidate is clamped
// into bounds before it is evaluated.
type transformer[T cmp.Ordered] struct {
	objective Objective[T]
	bounds    optimization.Bounds
	coef      TransformationConfig
	variant   Variant
}

// affine returns origin + coef*(target-origin).
func affine(origin, target []float64, coef float64) []float64 {
	dir := floats.SubTo(make([]float64, len(origin)), target, origin)
	return floats.AddScaledTo(make([]float64, len(origin)), origin, coef, dir)
}

func (t *transformer[T]) evaluate(x []float64) (Point[T], error) {
	t.bounds.Clamp(x)
	out, err := t.objective(slices.Clone(x))
	if err != nil {
		return Point[T]{}, err
	}
	return Point[T]{Inputs: x, Output: out}, nil
}

// step transforms s into the next simplex and reports the action taken.
// Objective errors are returned unchanged.
func (t *transformer[T]) step(s *OrderedSimplex[T]) (*OrderedSimplex[T], Action, error) {
	worst := s.worst()
	rest := s.WithoutWorst()
	centroid := rest.Centroid()
	restBest := rest.best()

	// Reflecting is moving the worst vertex through the centroid.
	reflected, err := t.evaluate(affine(centroid, worst.Inputs, -t.coef.Reflect))
	if err != nil {
		return nil, Reflect, err
	}

	switch {
	case rest.IsBetterThan(reflected, restBest):
		expanded, err := t.evaluate(affine(centroid, reflected.Inputs, t.coef.Expand))
		if err != nil {
			return nil, Expand, err
		}
		if rest.IsBetterThan(expanded, reflected) {
			return rest.With(expanded), Expand, nil
		}
		if t.variant == GreedyExpansion && rest.IsBetterThan(expanded, restBest) {
			return rest.With(expanded), GreedyExpand, nil
		}
		return rest.With(reflected), Reflect, nil

	case rest.IsBetterThan(rest.worst(), reflected):
		contracted, err := t.evaluate(affine(centroid, reflected.Inputs, t.coef.Contract))
		if err != nil {
			return nil, Contract, err
		}
		if rest.IsBetterThan(contracted, worst) {
			return rest.With(contracted), Contract, nil
		}
		return t.shrink(s)

	default:
		return rest.With(reflected), Reflect, nil
	}
}

// shrink pulls every vertex except the best toward the best vertex.
func (t *transformer[T]) shrink(s *OrderedSimplex[T]) (*OrderedSimplex[T], Action, error) {
	best := s.best()
	points := make([]Point[T], 0, s.Len())
	points = append(points, best.clone())
	for _, p := range s.points[:s.Len()-1] {
		shrunk, err := t.evaluate(affine(best.Inputs, p.Inputs, t.coef.Shrink))
		if err != nil {
			return nil, Shrink, err
		}
		points = append(points, shrunk)
	}
	return newOrdered(points, s.direction), Shrink, nil
}
