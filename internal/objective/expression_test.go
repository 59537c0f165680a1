package objective

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copyleftdev/simplex/internal/optimization"
)

func TestParseAndEvaluate(t *testing.T) {
	tests := []struct {
		name      string
		expr      string
		variables []string
		input     []float64
		wantDim   int
		want      float64
	}{
		{
			name:    "default variables",
			expr:    "x0*x0 + x1*x1",
			input:   []float64{3, 4},
			wantDim: 2,
			want:    25,
		},
		{
			name:    "caret is exponentiation",
			expr:    "(x0-1)^2 + 100*(x1-x0**2)**2",
			input:   []float64{1, 1},
			wantDim: 2,
			want:    0,
		},
		{
			name:    "gap in default indices",
			expr:    "x2 - x0",
			input:   []float64{1, 100, 4},
			wantDim: 3,
			want:    3,
		},
		{
			name:      "named variables",
			expr:      "pow(a, 2) + abs(b)",
			variables: []string{"a", "b"},
			input:     []float64{3, -2},
			wantDim:   2,
			want:      11,
		},
		{
			name:      "declared but unused variable",
			expr:      "a + 1",
			variables: []string{"a", "b"},
			input:     []float64{1, 5},
			wantDim:   2,
			want:      2,
		},
		{
			name:    "functions",
			expr:    "sqrt(x0) + exp(0) + log(1) + sin(0) + cos(0) + tan(0) + min(x0, 2) + max(x0, 2)",
			input:   []float64{4},
			wantDim: 1,
			want:    2 + 1 + 0 + 0 + 1 + 0 + 2 + 4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := Parse(tt.expr, tt.variables)
			require.NoError(t, err)
			assert.Equal(t, tt.wantDim, e.Dim())
			assert.Equal(t, tt.expr, e.String())

			got, err := e.Evaluate(tt.input)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-12)
		})
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name      string
		expr      string
		variables []string
	}{
		{name: "empty", expr: "  "},
		{name: "syntax", expr: "x0 + * 2"},
		{name: "constant only", expr: "1 + 2"},
		{name: "non-default name without declaration", expr: "y + 1"},
		{name: "undeclared variable", expr: "a + c", variables: []string{"a", "b"}},
		{name: "duplicate declaration", expr: "a", variables: []string{"a", "a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.expr, tt.variables)
			assert.ErrorIs(t, err, optimization.ErrConfiguration)
		})
	}
}

func TestEvaluateErrors(t *testing.T) {
	e, err := Parse("x0 + x1", nil)
	require.NoError(t, err)

	got, err := e.Evaluate([]float64{1})
	assert.ErrorIs(t, err, ErrDimension)
	assert.True(t, math.IsNaN(got))

	cmp, err := Parse("x0 > 1", nil)
	require.NoError(t, err)
	_, err = cmp.Evaluate([]float64{2})
	assert.Error(t, err)

	arity, err := Parse("pow(x0)", nil)
	require.NoError(t, err)
	_, err = arity.Evaluate([]float64{2})
	assert.Error(t, err)
}

func TestEvaluateConcurrently(t *testing.T) {
	e, err := Parse("x0 * 2", nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got, err := e.Evaluate([]float64{float64(i)})
			assert.NoError(t, err)
			assert.Equal(t, float64(2*i), got)
		}(i)
	}
	wg.Wait()
}

func TestUnaryMinusBindsTighterThanPower(t *testing.T) {
	neg, err := Parse("-x0^2", nil)
	require.NoError(t, err)
	got, err := neg.Evaluate([]float64{3})
	require.NoError(t, err)
	assert.Equal(t, 9.0, got)

	sub, err := Parse("0 - x0^2", nil)
	require.NoError(t, err)
	got, err = sub.Evaluate([]float64{3})
	require.NoError(t, err)
	assert.Equal(t, -9.0, got)
}
