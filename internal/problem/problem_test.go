package problem

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copyleftdev/simplex/internal/config"
	"github.com/copyleftdev/simplex/internal/optimization"
	"github.com/copyleftdev/simplex/internal/optimization/neldermead"
)

const boundedYAML = `
name: bounded paraboloid
expression: "(x0 - 3)^2 + (x1 + 3)^2"
direction: minimize
guess: [0, 0]
step: [0.5, 0.5]
lower: [-2, -2]
upper: [2, 2]
termination:
  diameter_tolerance: 1e-9
  max_iterations: 2000
  max_duration: 5s
variant: greedy
`

func TestParseYAML(t *testing.T) {
	p, err := Parse([]byte(boundedYAML))
	require.NoError(t, err)

	assert.Equal(t, "bounded paraboloid", p.Name)
	assert.Equal(t, optimization.Minimize, p.Direction)
	assert.Equal(t, neldermead.GreedyExpansion, p.Variant)
	assert.Equal(t, []float64{-2, -2}, p.Lower)
	require.NotNil(t, p.Termination)
	assert.Equal(t, Duration(5*time.Second), p.Termination.MaxDuration)
	assert.Equal(t, 2000, *p.Termination.MaxIterations)
	assert.Equal(t, 2, p.Dim())

	cfg := p.TerminationConfig()
	d, ok := cfg.MaxDuration()
	assert.True(t, ok)
	assert.Equal(t, 5*time.Second, d)
}

func TestParseJSON(t *testing.T) {
	p, err := ParseJSON([]byte(`{
		"function": "booth",
		"direction": "min",
		"guess": [0, 0],
		"termination": {"value_tolerance": 1e-12, "max_iterations": 500}
	}`))
	require.NoError(t, err)
	assert.Equal(t, "booth", p.Function)
	assert.Nil(t, p.Step)

	_, err = ParseJSON([]byte(`{"function": "booth", "guess": [0, 0], "colour": "red"}`))
	assert.ErrorIs(t, err, optimization.ErrConfiguration)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{name: "no objective", doc: `guess: [0]`},
		{name: "both objectives", doc: "expression: x0\nfunction: sphere\nguess: [0]"},
		{name: "no guess", doc: `function: sphere`},
		{name: "step length", doc: "function: sphere\nguess: [0, 0]\nstep: [1]"},
		{name: "lower length", doc: "function: sphere\nguess: [0, 0]\nlower: [1]"},
		{name: "function dimension", doc: "function: booth\nguess: [0, 0, 0]"},
		{name: "expression dimension", doc: "expression: x0 + x1\nguess: [0]"},
		{name: "unknown function", doc: "function: ackley\nguess: [0]"},
		{name: "variables with function", doc: "function: sphere\nvariables: [a]\nguess: [0]"},
		{name: "bad direction", doc: "function: sphere\ndirection: up\nguess: [0]"},
		{name: "bad variant", doc: "function: sphere\nvariant: lazy\nguess: [0]"},
		{name: "bad duration", doc: "function: sphere\nguess: [0]\ntermination:\n  max_duration: soon"},
		{name: "negative tolerance", doc: "function: sphere\nguess: [0]\ntermination:\n  diameter_tolerance: -1"},
		{name: "two value tolerances", doc: "function: sphere\nguess: [0]\ntermination:\n  value_tolerance: 1\n  relative_value_tolerance: 1"},
		{name: "bad coefficient", doc: "function: sphere\nguess: [0]\ntransformation: {reflect: 1, expand: 0, contract: 0.5, shrink: 0.5}"},
		{name: "unknown field", doc: "function: sphere\nguess: [0]\ntolerance: 1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			assert.ErrorIs(t, err, optimization.ErrConfiguration)
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	p, err := Parse([]byte("function: rosenbrock\nguess: [0, 0, 0]"))
	require.NoError(t, err)

	defaults := config.DefaultSolver()
	defaults.DefaultStep = 0.25
	defaults.Expand = 3
	p.ApplyDefaults(defaults)

	assert.Equal(t, []float64{0.25, 0.25, 0.25}, p.Step)
	require.NotNil(t, p.Transformation)
	assert.Equal(t, 3.0, p.Transformation.Expand)

	cfg := p.TerminationConfig()
	tol, ok := cfg.DiameterTolerance()
	assert.True(t, ok)
	assert.Equal(t, 1e-8, tol)
	n, ok := cfg.MaxIterations()
	assert.True(t, ok)
	assert.Equal(t, 10000, n)

	explicit, err := Parse([]byte("function: sphere\nguess: [1]\nstep: [2]\ntermination:\n  max_iterations: 5"))
	require.NoError(t, err)
	explicit.ApplyDefaults(defaults)
	assert.Equal(t, []float64{2}, explicit.Step)
	_, ok = explicit.TerminationConfig().DiameterTolerance()
	assert.False(t, ok, "an explicit termination section is kept as written")
}

func TestBuildRequiresStep(t *testing.T) {
	p, err := Parse([]byte("function: sphere\nguess: [1]"))
	require.NoError(t, err)
	_, _, err = p.Build(nil)
	assert.ErrorIs(t, err, optimization.ErrConfiguration)
}

func TestSolveBoundedProblem(t *testing.T) {
	p, err := Parse([]byte(boundedYAML))
	require.NoError(t, err)
	p.ApplyDefaults(config.DefaultSolver())

	var iterations int
	observer := neldermead.ObserverFunc[float64](func(it neldermead.Iteration[float64]) { iterations++ })

	result, err := p.Solve(context.Background(), nil, observer)
	require.NoError(t, err)
	assert.Equal(t, neldermead.SimplexDiameter, result.Reason)
	assert.InDelta(t, 2, result.Inputs[0], 1e-6)
	assert.InDelta(t, -2, result.Inputs[1], 1e-6)
	assert.InDelta(t, 2, result.Output, 1e-6)
	assert.Equal(t, result.Iterations, iterations)
}

func TestSolveMaximize(t *testing.T) {
	p, err := ParseJSON([]byte(`{
		"expression": "5 - (a - 1)^2 - (b - 2)^2",
		"variables": ["a", "b"],
		"direction": "maximize",
		"guess": [0, 0],
		"step": [1, 1],
		"termination": {"diameter_tolerance": 1e-10, "max_iterations": 5000}
	}`))
	require.NoError(t, err)

	result, err := p.Solve(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, optimization.Maximize, result.Direction)
	assert.InDelta(t, 1, result.Inputs[0], 1e-4)
	assert.InDelta(t, 2, result.Inputs[1], 1e-4)
	assert.InDelta(t, 5, result.Output, 1e-8)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "problem.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(boundedYAML), 0o600))
	p, err := Load(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, "bounded paraboloid", p.Name)

	jsonPath := filepath.Join(dir, "problem.JSON")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"function": "sphere", "guess": [1, 2]}`), 0o600))
	p, err = Load(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, "sphere", p.Function)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
	assert.False(t, optimization.IsConfigError(err))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestClone(t *testing.T) {
	p, err := Parse([]byte(boundedYAML))
	require.NoError(t, err)
	p.ApplyDefaults(config.DefaultSolver())

	c := p.Clone()
	c.Guess[0] = 42
	c.Transformation.Reflect = 9
	c.Termination.MaxDuration = 0

	assert.Equal(t, 0.0, p.Guess[0])
	assert.Equal(t, 1.0, p.Transformation.Reflect)
	assert.Equal(t, Duration(5*time.Second), p.Termination.MaxDuration)
}
