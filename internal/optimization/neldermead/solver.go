package neldermead

import (
	"cmp"
	"context"
	"math"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/copyleftdev/simplex/internal/optimization"
)

// Objective maps an input vector to an ordered output. It is called
// sequentially and must not retain x.
type Objective[T cmp.Ordered] func(x []float64) (T, error)

// Iteration is the snapshot delivered to observers after each completed
// transformation.
type Iteration[T cmp.Ordered] struct {
	Simplex *OrderedSimplex[T]
	Index   int
	Action  Action
	Elapsed time.Duration
}

// Observer receives one notification per completed iteration. Observers run
// synchronously on the solving goroutine.
type Observer[T cmp.Ordered] interface {
	OnIteration(it Iteration[T])
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc[T cmp.Ordered] func(it Iteration[T])

// OnIteration calls f(it).
func (f ObserverFunc[T]) OnIteration(it Iteration[T]) {
	f(it)
}

// Config describes a bounded Nelder-Mead problem.
type Config[T cmp.Ordered] struct {
	// Objective function to optimize
	Objective Objective[T]

	// InitialGuess is the first vertex; vertex i+1 offsets dimension i by StepSize[i].
	InitialGuess []float64
	StepSize     []float64

	// Lower and Upper bound every dimension. Nil means unbounded.
	Lower []float64
	Upper []float64

	Termination TerminationConfig[T]

	// Transformation defaults to DefaultTransformationConfig when nil.
	Transformation *TransformationConfig
	Variant        Variant

	Observers []Observer[T]

	// Logger defaults to a no-op logger.
	Logger *zap.Logger
}

// Result is the outcome of one solve.
type Result[T cmp.Ordered] struct {
	Inputs     []float64
	Output     T
	Iterations int
	Elapsed    time.Duration
	Reason     TerminationReason
	Direction  optimization.Direction
}

// Solver runs Nelder-Mead searches. A Solver holds no per-solve state and
// may be reused for several Minimize/Maximize calls, though not concurrently
// when its observers are not safe for that.
type Solver[T cmp.Ordered] struct {
	guess       []float64
	step        []float64
	transformer transformer[T]
	termination TerminationConfig[T]
	observers   []Observer[T]
	logger      *zap.Logger
}

// NewSolver validates cfg and returns a solver. Length mismatches among the
// guess, step and bound vectors are configuration errors.
func NewSolver[T cmp.Ordered](cfg Config[T]) (*Solver[T], error) {
	configErr := func(format string, args ...interface{}) error {
		return optimization.NewConfigError(format, args...).WithOperation("new_solver").WithComponent("neldermead")
	}

	if cfg.Objective == nil {
		return nil, configErr("objective function is required")
	}
	n := len(cfg.InitialGuess)
	if n == 0 {
		return nil, configErr("initial guess is empty")
	}
	if len(cfg.StepSize) != n {
		return nil, configErr("step size has %d entries, initial guess has %d", len(cfg.StepSize), n)
	}
	for i, s := range cfg.StepSize {
		if s == 0 {
			return nil, configErr("step size for dimension %d is zero", i)
		}
		if math.IsNaN(s) || math.IsInf(s, 0) {
			return nil, configErr("step size for dimension %d is not finite: %v", i, s)
		}
	}
	for i, v := range cfg.InitialGuess {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, configErr("initial guess for dimension %d is not finite: %v", i, v)
		}
	}

	bounds := optimization.Unbounded(n)
	if cfg.Lower != nil {
		bounds.Lower = slices.Clone(cfg.Lower)
	}
	if cfg.Upper != nil {
		bounds.Upper = slices.Clone(cfg.Upper)
	}
	if err := bounds.Validate(n); err != nil {
		return nil, err
	}

	coef := DefaultTransformationConfig()
	if cfg.Transformation != nil {
		coef = *cfg.Transformation
	}
	if err := coef.Validate(); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("neldermead")
	if !cfg.Termination.HasCriterion() {
		logger.Warn("No stopping criterion configured, solve ends only on cancellation")
	}

	return &Solver[T]{
		guess: slices.Clone(cfg.InitialGuess),
		step:  slices.Clone(cfg.StepSize),
		transformer: transformer[T]{
			objective: cfg.Objective,
			bounds:    bounds,
			coef:      coef,
			variant:   cfg.Variant,
		},
		termination: cfg.Termination,
		observers:   slices.Clone(cfg.Observers),
		logger:      logger,
	}, nil
}

// Minimize searches for the smallest output.
func (s *Solver[T]) Minimize(ctx context.Context) (*Result[T], error) {
	return s.Solve(ctx, optimization.Minimize)
}

// Maximize searches for the largest output.
func (s *Solver[T]) Maximize(ctx context.Context) (*Result[T], error) {
	return s.Solve(ctx, optimization.Maximize)
}

// Solve runs the search in the given direction. Cancellation of ctx is
// polled once per iteration and reported as a Canceled result, not an error.
// An objective error aborts the solve and is returned unchanged.
func (s *Solver[T]) Solve(ctx context.Context, direction optimization.Direction) (*Result[T], error) {
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()

	simplex, err := s.initialSimplex(direction)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("Starting solve",
		zap.Stringer("direction", direction),
		zap.Int("dimensions", len(s.guess)),
		zap.Float64("initial_diameter", simplex.Diameter()),
	)

	for iteration := 1; ; iteration++ {
		next, action, err := s.transformer.step(simplex)
		if err != nil {
			s.logger.Debug("Objective evaluation failed",
				zap.Int("iteration", iteration),
				zap.Error(err),
			)
			return nil, err
		}
		simplex = next
		elapsed := time.Since(start)

		if ce := s.logger.Check(zap.DebugLevel, "Iteration completed"); ce != nil {
			ce.Write(
				zap.Int("iteration", iteration),
				zap.Stringer("action", action),
				zap.Any("best", simplex.best().Output),
				zap.Float64("diameter", simplex.Diameter()),
				zap.Float64("volume", simplex.Volume()),
			)
		}

		it := Iteration[T]{Simplex: simplex, Index: iteration, Action: action, Elapsed: elapsed}
		for _, o := range s.observers {
			o.OnIteration(it)
		}

		reason := s.termination.evaluate(ctx, simplex, iteration, elapsed)
		if reason == None {
			continue
		}

		best := simplex.Best()
		result := &Result[T]{
			Inputs:     best.Inputs,
			Output:     best.Output,
			Iterations: iteration,
			Elapsed:    time.Since(start),
			Reason:     reason,
			Direction:  direction,
		}
		s.logger.Info("Solve terminated",
			zap.Stringer("reason", reason),
			zap.Stringer("direction", direction),
			zap.Int("iterations", iteration),
			zap.Duration("elapsed", result.Elapsed),
			zap.Any("output", result.Output),
		)
		return result, nil
	}
}

// initialSimplex evaluates the guess and one offset vertex per dimension.
// An offset that would leave the bounds is taken in the opposite direction.
func (s *Solver[T]) initialSimplex(direction optimization.Direction) (*OrderedSimplex[T], error) {
	bounds := s.transformer.bounds
	points := make([]Point[T], 0, len(s.guess)+1)

	origin, err := s.transformer.evaluate(slices.Clone(s.guess))
	if err != nil {
		return nil, err
	}
	points = append(points, origin)

	for i := range s.guess {
		x := slices.Clone(origin.Inputs)
		x[i] += s.step[i]
		if x[i] > bounds.Upper[i] || x[i] < bounds.Lower[i] {
			x[i] = origin.Inputs[i] - s.step[i]
		}
		p, err := s.transformer.evaluate(x)
		if err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return newOrdered(points, direction), nil
}
