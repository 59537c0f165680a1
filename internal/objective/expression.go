// Package objective builds solver objectives from arithmetic expressions and
// from a small catalogue of benchmark functions.
package objective

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/Knetic/govaluate"

	"github.com/copyleftdev/simplex/internal/optimization"
)

// ErrDimension is returned when an objective is evaluated with the wrong
// number of inputs.
var ErrDimension = errors.New("input dimension mismatch")

var defaultVariable = regexp.MustCompile(`^x(\d+)$`)

// Expression is a compiled arithmetic objective. It is safe for concurrent
// use.
type Expression struct {
	source    string
	expr      *govaluate.EvaluableExpression
	variables []string
}

// Parse compiles expr. variables names the inputs in order; when empty, the
// expression must use x0..x{n-1} and n is the largest index referenced plus
// one. '^' is read as exponentiation. Unary minus binds tighter than
// exponentiation, so write 4 - x0^2 rather than -x0^2 + 4.
func Parse(expr string, variables []string) (*Expression, error) {
	configErr := func(format string, args ...interface{}) error {
		return optimization.NewConfigError(format, args...).WithOperation("parse_expression").WithComponent("objective")
	}

	if strings.TrimSpace(expr) == "" {
		return nil, configErr("expression is empty")
	}

	parsed, err := govaluate.NewEvaluableExpressionWithFunctions(strings.ReplaceAll(expr, "^", "**"), functions)
	if err != nil {
		return nil, configErr("parse %q: %v", expr, err)
	}

	referenced := parsed.Vars()
	if len(variables) == 0 {
		variables, err = defaultVariables(referenced)
		if err != nil {
			return nil, configErr("%v", err)
		}
	} else {
		seen := make(map[string]bool, len(variables))
		for _, v := range variables {
			if seen[v] {
				return nil, configErr("variable %q declared twice", v)
			}
			seen[v] = true
		}
		for _, v := range referenced {
			if !seen[v] {
				return nil, configErr("expression uses undeclared variable %q", v)
			}
		}
	}

	return &Expression{
		source:    expr,
		expr:      parsed,
		variables: slices.Clone(variables),
	}, nil
}

func defaultVariables(referenced []string) ([]string, error) {
	n := 0
	for _, v := range referenced {
		m := defaultVariable.FindStringSubmatch(v)
		if m == nil {
			return nil, fmt.Errorf("variable %q is not of the form x<index>; declare variables explicitly", v)
		}
		i, err := strconv.Atoi(m[1])
		if err != nil {
			return nil, err
		}
		n = max(n, i+1)
	}
	if n == 0 {
		return nil, errors.New("expression references no variables")
	}

	names := make([]string, n)
	for i := range names {
		names[i] = "x" + strconv.Itoa(i)
	}
	return names, nil
}

// Dim returns the number of inputs the expression takes.
func (e *Expression) Dim() int { return len(e.variables) }

// Variables returns the input names in order.
func (e *Expression) Variables() []string { return slices.Clone(e.variables) }

func (e *Expression) String() string { return e.source }

// Evaluate binds x to the variables and computes the expression.
func (e *Expression) Evaluate(x []float64) (float64, error) {
	if len(x) != len(e.variables) {
		return math.NaN(), fmt.Errorf("%w: got %d inputs, expression takes %d", ErrDimension, len(x), len(e.variables))
	}

	params := make(map[string]interface{}, len(x))
	for i, name := range e.variables {
		params[name] = x[i]
	}

	v, err := e.expr.Evaluate(params)
	if err != nil {
		return math.NaN(), err
	}

	switch t := v.(type) {
	case float64:
		return t, nil
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	default:
		return math.NaN(), fmt.Errorf("expression %q did not return a number: %T", e.source, v)
	}
}

var functions = map[string]govaluate.ExpressionFunction{
	"sin":  unary(math.Sin),
	"cos":  unary(math.Cos),
	"tan":  unary(math.Tan),
	"exp":  unary(math.Exp),
	"log":  unary(math.Log),
	"sqrt": unary(math.Sqrt),
	"abs":  unary(math.Abs),
	"pow":  binary(math.Pow),
	"min":  binary(math.Min),
	"max":  binary(math.Max),
}

func unary(f func(float64) float64) govaluate.ExpressionFunction {
	return func(args ...interface{}) (interface{}, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("expected 1 argument, got %d", len(args))
		}
		a, err := toFloat(args[0])
		if err != nil {
			return nil, err
		}
		return f(a), nil
	}
}

func binary(f func(float64, float64) float64) govaluate.ExpressionFunction {
	return func(args ...interface{}) (interface{}, error) {
		if len(args) != 2 {
			return nil, fmt.Errorf("expected 2 arguments, got %d", len(args))
		}
		a, err := toFloat(args[0])
		if err != nil {
			return nil, err
		}
		b, err := toFloat(args[1])
		if err != nil {
			return nil, err
		}
		return f(a, b), nil
	}
}

func toFloat(v interface{}) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	default:
		return math.NaN(), fmt.Errorf("argument is not a number: %T", v)
	}
}
