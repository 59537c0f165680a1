package main

import (
	"encoding/json"
	"errors"
	"math"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/copyleftdev/simplex/internal/config"
	"github.com/copyleftdev/simplex/internal/logging"
	"github.com/copyleftdev/simplex/internal/optimization"
	"github.com/copyleftdev/simplex/internal/optimization/neldermead"
	"github.com/copyleftdev/simplex/internal/problem"
)

type solveOptions struct {
	problemPath string
	expr        string
	function    string
	variables   []string
	guess       []float64
	step        []float64
	lower       []float64
	upper       []float64
	maximize    bool
	diameterTol float64
	valueTol    float64
	maxIter     int
	maxDuration time.Duration
	greedy      bool
	trace       bool
}

// solveOutput is the JSON printed after a solve. Output is null when the
// best value is not finite.
type solveOutput struct {
	Name       string                       `json:"name,omitempty"`
	Inputs     []float64                    `json:"inputs"`
	Output     *float64                     `json:"output"`
	Iterations int                          `json:"iterations"`
	Elapsed    string                       `json:"elapsed"`
	Reason     neldermead.TerminationReason `json:"reason"`
	Direction  optimization.Direction       `json:"direction"`
}

func newSolveCmd(root *rootOptions) *cobra.Command {
	opts := &solveOptions{}

	cmd := &cobra.Command{
		Use:   "solve",
		Short: "Solve a problem file or a problem described by flags",
		Long: `Solves a problem and prints the result as JSON.

The problem comes from --problem (YAML or JSON) or from --expr/--function
with --guess. Flags given together with --problem override the file.
Settings left unset fall back to the SOLVER_* environment defaults.
Interrupting the solve prints the best point found so far.`,
		Example: `  nmsolve solve --function rosenbrock --guess -1.2,1
  nmsolve solve --expr "(x0-2)^2 + abs(x1)" --guess 0,1 --lower -1,-1 --upper 1,1
  nmsolve solve --problem problem.yaml --max-iter 500`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSolve(cmd, root, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.problemPath, "problem", "", "Problem file (YAML or JSON)")
	flags.StringVar(&opts.expr, "expr", "", "Objective expression over x0..x{n-1}")
	flags.StringVar(&opts.function, "function", "", "Builtin objective function (see 'nmsolve functions')")
	flags.StringSliceVar(&opts.variables, "vars", nil, "Variable names used by --expr, in input order")
	flags.Float64SliceVar(&opts.guess, "guess", nil, "Initial guess")
	flags.Float64SliceVar(&opts.step, "step", nil, "Initial step per dimension")
	flags.Float64SliceVar(&opts.lower, "lower", nil, "Lower bounds")
	flags.Float64SliceVar(&opts.upper, "upper", nil, "Upper bounds")
	flags.BoolVar(&opts.maximize, "maximize", false, "Maximize instead of minimize")
	flags.Float64Var(&opts.diameterTol, "diameter-tol", 0, "Stop when the simplex diameter drops below this")
	flags.Float64Var(&opts.valueTol, "value-tol", 0, "Stop when best and worst outputs differ by at most this")
	flags.IntVar(&opts.maxIter, "max-iter", 0, "Stop after this many iterations")
	flags.DurationVar(&opts.maxDuration, "max-duration", 0, "Stop after this much time")
	flags.BoolVar(&opts.greedy, "greedy", false, "Use greedy expansion")
	flags.BoolVar(&opts.trace, "trace", false, "Log every iteration")

	cmd.MarkFlagsMutuallyExclusive("expr", "function")
	return cmd
}

func runSolve(cmd *cobra.Command, root *rootOptions, opts *solveOptions) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := root.logger(cmd, opts.trace)
	if err != nil {
		return err
	}

	if err := solve(cmd, cfg, logger, opts); err != nil {
		reportFailure(logger, err)
		return err
	}
	return nil
}

func solve(cmd *cobra.Command, cfg *config.Config, logger *logging.Logger, opts *solveOptions) error {
	p, err := opts.problem(cmd)
	if err != nil {
		return err
	}
	if err := p.Validate(); err != nil {
		return err
	}
	p.ApplyDefaults(cfg.Solver)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	logger.Info("Solving", map[string]interface{}{
		"name":       p.Name,
		"direction":  p.Direction.String(),
		"dimensions": p.Dim(),
	})

	result, err := p.Solve(ctx, logging.NewZapLogger(logger))
	if err != nil {
		return err
	}

	out := solveOutput{
		Name:       p.Name,
		Inputs:     result.Inputs,
		Iterations: result.Iterations,
		Elapsed:    result.Elapsed.String(),
		Reason:     result.Reason,
		Direction:  result.Direction,
	}
	if !math.IsNaN(result.Output) && !math.IsInf(result.Output, 0) {
		out.Output = &result.Output
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// reportFailure logs err together with the operation and component that
// raised it.
func reportFailure(logger *logging.Logger, err error) {
	fields := map[string]interface{}{"error": err.Error()}
	if e, ok := optimization.AsError(err); ok {
		if e.Op != "" {
			fields["operation"] = e.Op
		}
		if e.Component != "" {
			fields["component"] = e.Component
		}
		fields["invalid_input"] = optimization.IsConfigError(err)
	}
	logger.Error("Solve failed", fields)
}

// problem loads --problem, if given, and applies the flags the user set.
func (o *solveOptions) problem(cmd *cobra.Command) (*problem.Problem, error) {
	flags := cmd.Flags()

	p := &problem.Problem{}
	if o.problemPath != "" {
		loaded, err := problem.Load(o.problemPath)
		if err != nil {
			return nil, err
		}
		p = loaded
	} else if o.expr == "" && o.function == "" {
		return nil, errors.New("one of --problem, --expr or --function is required")
	}

	if flags.Changed("expr") {
		p.Expression, p.Function = o.expr, ""
	}
	if flags.Changed("function") {
		p.Function, p.Expression, p.Variables = o.function, "", nil
	}
	if flags.Changed("vars") {
		p.Variables = o.variables
	}
	if flags.Changed("guess") {
		p.Guess = o.guess
	}
	if flags.Changed("step") {
		p.Step = o.step
	}
	if flags.Changed("lower") {
		p.Lower = o.lower
	}
	if flags.Changed("upper") {
		p.Upper = o.upper
	}
	if flags.Changed("maximize") {
		p.Direction = optimization.Minimize
		if o.maximize {
			p.Direction = optimization.Maximize
		}
	}
	if flags.Changed("greedy") {
		p.Variant = neldermead.Normal
		if o.greedy {
			p.Variant = neldermead.GreedyExpansion
		}
	}

	if flags.Changed("diameter-tol") || flags.Changed("value-tol") || flags.Changed("max-iter") || flags.Changed("max-duration") {
		if p.Termination == nil {
			p.Termination = &problem.Termination{}
		}
		t := p.Termination
		if flags.Changed("diameter-tol") {
			t.DiameterTolerance = &o.diameterTol
		}
		if flags.Changed("value-tol") {
			t.ValueTolerance, t.RelativeValueTolerance = &o.valueTol, nil
		}
		if flags.Changed("max-iter") {
			t.MaxIterations = &o.maxIter
		}
		if flags.Changed("max-duration") {
			t.MaxDuration = problem.Duration(o.maxDuration)
		}
	}

	return p, nil
}
