package metrics

import (
	"context"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copyleftdev/simplex/internal/optimization"
	"github.com/copyleftdev/simplex/internal/optimization/neldermead"
)

func TestObserverCountsIterations(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	solver, err := neldermead.NewSolver(neldermead.Config[float64]{
		Objective: func(x []float64) (float64, error) {
			return x[0]*x[0] + x[1]*x[1], nil
		},
		InitialGuess: []float64{3, 4},
		StepSize:     []float64{1, 1},
		Termination:  neldermead.NewTerminationConfig[float64]().WithMaxIterations(40),
		Observers:    []neldermead.Observer[float64]{m.Observer()},
	})
	require.NoError(t, err)

	result, err := solver.Minimize(context.Background())
	require.NoError(t, err)
	require.Equal(t, 40, result.Iterations)

	var total float64
	for _, action := range []neldermead.Action{
		neldermead.Reflect, neldermead.Expand, neldermead.GreedyExpand, neldermead.Contract, neldermead.Shrink,
	} {
		total += testutil.ToFloat64(m.Iterations.WithLabelValues(action.String()))
	}
	assert.Equal(t, 40.0, total)
}

func TestSolveStarted(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	done := m.SolveStarted(optimization.Maximize)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActiveSolves))

	done(neldermead.SimplexDiameter.String())
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ActiveSolves))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Solves.WithLabelValues("maximize", "simplex_diameter")))

	expected := `
# HELP simplex_solves_total Finished solves by direction and outcome.
# TYPE simplex_solves_total counter
simplex_solves_total{direction="maximize",reason="simplex_diameter"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "simplex_solves_total"))
	assert.Equal(t, 1, testutil.CollectAndCount(m.SolveDuration))
}

func TestNewRejectsDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}
