package objective

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/copyleftdev/simplex/internal/optimization"
)

// Function is a named benchmark objective.
type Function struct {
	Name        string
	Description string
	// Dim is the required input length; 0 means any length >= MinDim.
	Dim    int
	MinDim int
	// Minimum is a known global minimizer for the 2-dimensional case.
	Minimum []float64

	eval func(x []float64) float64
}

// Evaluate checks the input length and computes the function.
func (f Function) Evaluate(x []float64) (float64, error) {
	if f.Dim > 0 && len(x) != f.Dim {
		return math.NaN(), fmt.Errorf("%w: %s takes %d inputs, got %d", ErrDimension, f.Name, f.Dim, len(x))
	}
	if len(x) < f.MinDim {
		return math.NaN(), fmt.Errorf("%w: %s takes at least %d inputs, got %d", ErrDimension, f.Name, f.MinDim, len(x))
	}
	return f.eval(x), nil
}

// Accepts reports whether f can be evaluated with n inputs.
func (f Function) Accepts(n int) bool {
	if f.Dim > 0 {
		return n == f.Dim
	}
	return n >= f.MinDim
}

var builtins = map[string]Function{
	"sphere": {
		Name:        "sphere",
		Description: "sum of squares, minimum 0 at the origin",
		MinDim:      1,
		Minimum:     []float64{0, 0},
		eval:        func(x []float64) float64 { return floats.Dot(x, x) },
	},
	"rosenbrock": {
		Name:        "rosenbrock",
		Description: "curved valley, minimum 0 at (1, ..., 1)",
		MinDim:      2,
		Minimum:     []float64{1, 1},
		eval: func(x []float64) float64 {
			var sum float64
			for i := 0; i < len(x)-1; i++ {
				a := x[i+1] - x[i]*x[i]
				b := 1 - x[i]
				sum += 100*a*a + b*b
			}
			return sum
		},
	},
	"himmelblau": {
		Name:        "himmelblau",
		Description: "four equal minima of 0, one at (3, 2)",
		Dim:         2,
		Minimum:     []float64{3, 2},
		eval: func(x []float64) float64 {
			a := x[0]*x[0] + x[1] - 11
			b := x[0] + x[1]*x[1] - 7
			return a*a + b*b
		},
	},
	"booth": {
		Name:        "booth",
		Description: "plate-shaped, minimum 0 at (1, 3)",
		Dim:         2,
		Minimum:     []float64{1, 3},
		eval: func(x []float64) float64 {
			a := x[0] + 2*x[1] - 7
			b := 2*x[0] + x[1] - 5
			return a*a + b*b
		},
	},
	"beale": {
		Name:        "beale",
		Description: "sharp ridges, minimum 0 at (3, 0.5)",
		Dim:         2,
		Minimum:     []float64{3, 0.5},
		eval: func(x []float64) float64 {
			a := 1.5 - x[0] + x[0]*x[1]
			b := 2.25 - x[0] + x[0]*x[1]*x[1]
			c := 2.625 - x[0] + x[0]*x[1]*x[1]*x[1]
			return a*a + b*b + c*c
		},
	},
}

// Builtin looks up a benchmark function by name.
func Builtin(name string) (Function, error) {
	f, ok := builtins[name]
	if !ok {
		return Function{}, optimization.NewConfigError("unknown function %q, available: %v", name, Names()).
			WithOperation("builtin").WithComponent("objective")
	}
	return f, nil
}

// Names lists the builtin functions in alphabetical order.
func Names() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
