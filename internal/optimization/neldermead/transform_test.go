package neldermead

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"

	"github.com/copyleftdev/simplex/internal/optimization"
)

func newTestTransformer(f Objective[float64], n int, variant Variant) *transformer[float64] {
	return &transformer[float64]{
		objective: f,
		bounds:    optimization.Unbounded(n),
		coef:      DefaultTransformationConfig(),
		variant:   variant,
	}
}

func TestTransformationConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(c *TransformationConfig)
		wantErr bool
	}{
		{name: "defaults", modify: func(c *TransformationConfig) {}},
		{name: "zero reflect", modify: func(c *TransformationConfig) { c.Reflect = 0 }, wantErr: true},
		{name: "negative expand", modify: func(c *TransformationConfig) { c.Expand = -2 }, wantErr: true},
		{name: "NaN contract", modify: func(c *TransformationConfig) { c.Contract = math.NaN() }, wantErr: true},
		{name: "infinite shrink", modify: func(c *TransformationConfig) { c.Shrink = math.Inf(1) }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultTransformationConfig()
			tt.modify(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, optimization.ErrConfiguration)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestReflectionIsInvolution(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 50; i++ {
		centroid := []float64{rng.NormFloat64(), rng.NormFloat64(), rng.NormFloat64()}
		x := []float64{rng.NormFloat64() * 10, rng.NormFloat64() * 10, rng.NormFloat64() * 10}

		reflected := affine(centroid, x, -1)
		back := affine(centroid, reflected, -1)
		assertFloat64SlicesEqual(t, back, x, 1e-9)
	}
}

func TestStepActions(t *testing.T) {
	linear := func(x []float64) (float64, error) { return x[0] + 2*x[1], nil }
	// f(x) = 1-x on x<=1, rising steeply after, so both reflection and
	// contraction past x=1 fail.
	cliff := func(x []float64) (float64, error) {
		if x[0] <= 1 {
			return 1 - x[0], nil
		}
		return 10 * (x[0] - 1), nil
	}

	tests := []struct {
		name       string
		objective  Objective[float64]
		variant    Variant
		inputs     [][]float64
		wantAction Action
		wantBest   []float64
		wantHas    []float64
	}{
		{
			name:       "expand",
			objective:  linear,
			inputs:     [][]float64{{0, 0}, {1, 0}, {0, 1}},
			wantAction: Expand,
			// centroid (0.5,0); reflected (1,-1); expanded (1.5,-2)
			wantBest: []float64{1.5, -2},
		},
		{
			name:       "reflect",
			objective:  sphere,
			inputs:     [][]float64{{0, 0}, {2, 0}, {2, 1}},
			wantAction: Reflect,
			wantBest:   []float64{0, 0},
			// centroid (1,0); reflected (0,-1) lands between best and second worst
			wantHas: []float64{0, -1},
		},
		{
			name:       "contract",
			objective:  sphere,
			inputs:     [][]float64{{0, 0}, {2, 0}, {0, 3}},
			wantAction: Contract,
			wantBest:   []float64{0, 0},
			// centroid (1,0); reflected (2,-3) is worst of all; contracted (1.5,-1.5)
			wantHas: []float64{1.5, -1.5},
		},
		{
			name:       "normal variant rejects weaker expansion",
			objective:  shifted(2.2),
			inputs:     [][]float64{{0}, {1}},
			wantAction: Reflect,
			wantBest:   []float64{2},
		},
		{
			name:       "greedy variant keeps weaker expansion",
			objective:  shifted(2.2),
			variant:    GreedyExpansion,
			inputs:     [][]float64{{0}, {1}},
			wantAction: GreedyExpand,
			// expanded 3 loses to reflected 2 but still beats vertex 1
			wantBest: []float64{3},
			wantHas:  []float64{1},
		},
		{
			name:       "shrink",
			objective:  cliff,
			inputs:     [][]float64{{0}, {1}},
			wantAction: Shrink,
			wantBest:   []float64{1},
			wantHas:    []float64{0.5},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := mustOrdered(t, tt.objective, optimization.Minimize, tt.inputs...)
			tr := newTestTransformer(tt.objective, len(tt.inputs[0]), tt.variant)

			next, action, err := tr.step(s)
			require.NoError(t, err)
			assert.Equal(t, tt.wantAction, action, "got action %s", action)
			assert.Equal(t, s.Len(), next.Len())
			assertSorted(t, next)
			assertFloat64SlicesEqual(t, next.Best().Inputs, tt.wantBest, 1e-12)

			if tt.wantHas != nil {
				found := false
				for _, p := range next.Points() {
					if floats.EqualApprox(p.Inputs, tt.wantHas, 1e-12) {
						found = true
					}
				}
				assert.True(t, found, "expected vertex %v in %v", tt.wantHas, next.Points())
			}
		})
	}
}

func TestStepMaximize(t *testing.T) {
	// Maximizing -(x-3)^2: from {0, 1} reflection lands on 2 and expansion on 3.
	f := func(x []float64) (float64, error) { return -(x[0] - 3) * (x[0] - 3), nil }
	s := mustOrdered(t, f, optimization.Maximize, []float64{0}, []float64{1})
	tr := newTestTransformer(f, 1, Normal)

	next, action, err := tr.step(s)
	require.NoError(t, err)
	assert.Equal(t, Expand, action)
	assertFloat64SlicesEqual(t, next.Best().Inputs, []float64{3}, 1e-12)
	assert.Equal(t, 0.0, next.Best().Output)
}

func TestStepClampsCandidates(t *testing.T) {
	var seen [][]float64
	f := func(x []float64) (float64, error) {
		seen = append(seen, append([]float64(nil), x...))
		return (x[0] - 3) * (x[0] - 3), nil
	}
	s := mustOrdered(t, f, optimization.Minimize, []float64{0}, []float64{1})
	seen = nil

	tr := newTestTransformer(f, 1, Normal)
	tr.bounds = optimization.Bounds{Lower: []float64{0}, Upper: []float64{1.5}}

	next, action, err := tr.step(s)
	require.NoError(t, err)
	// reflected 2 -> 1.5 improves on 1; expanded 2 -> 1.5 ties it
	assert.Equal(t, Reflect, action)
	assertFloat64SlicesEqual(t, next.Best().Inputs, []float64{1.5}, 1e-12)

	require.NotEmpty(t, seen)
	for _, x := range seen {
		assert.True(t, tr.bounds.Contains(x), "candidate %v evaluated outside bounds", x)
	}
}

func TestShrinkKeepsBest(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for i := 0; i < 20; i++ {
		inputs := make([][]float64, 4)
		for j := range inputs {
			inputs[j] = []float64{rng.NormFloat64() * 5, rng.NormFloat64() * 5, rng.NormFloat64() * 5}
		}
		s := mustOrdered(t, sphere, optimization.Minimize, inputs...)
		best := s.Best()
		tr := newTestTransformer(sphere, 3, Normal)

		next, action, err := tr.shrink(s)
		require.NoError(t, err)
		assert.Equal(t, Shrink, action)
		assertSorted(t, next)

		found := false
		for _, p := range next.Points() {
			if floats.Equal(p.Inputs, best.Inputs) {
				found = true
				continue
			}
			// every other vertex sits halfway between the best and its old position
			d := floats.Distance(p.Inputs, best.Inputs, 2)
			var matched bool
			for _, old := range s.Points()[:s.Len()-1] {
				if math.Abs(d-0.5*floats.Distance(old.Inputs, best.Inputs, 2)) < 1e-9 {
					matched = true
				}
			}
			assert.True(t, matched, "vertex %v did not move halfway toward best", p.Inputs)
		}
		assert.True(t, found, "best vertex must survive a shrink unchanged")
	}
}

func TestStepPropagatesObjectiveError(t *testing.T) {
	errBoom := errors.New("boom")
	calls := 0
	f := func(x []float64) (float64, error) {
		calls++
		if calls > 3 {
			return 0, errBoom
		}
		return sphere(x)
	}
	s := mustOrdered(t, f, optimization.Minimize, []float64{0, 0}, []float64{1, 0}, []float64{0, 1})
	tr := newTestTransformer(f, 2, Normal)

	next, _, err := tr.step(s)
	assert.Nil(t, next)
	assert.Same(t, errBoom, err)
}

func TestActionStrings(t *testing.T) {
	assert.Equal(t, "reflect", Reflect.String())
	assert.Equal(t, "greedy_expand", GreedyExpand.String())
	assert.Equal(t, "shrink", Shrink.String())
	assert.Equal(t, "Action(9)", Action(9).String())

	var a Action
	require.NoError(t, a.UnmarshalText([]byte("contract")))
	assert.Equal(t, Contract, a)
	assert.Error(t, a.UnmarshalText([]byte("twist")))

	v, err := ParseVariant("Greedy")
	require.NoError(t, err)
	assert.Equal(t, GreedyExpansion, v)

	_, err = ParseVariant("lazy")
	assert.ErrorIs(t, err, optimization.ErrConfiguration)
}
