// Package problem describes a bounded Nelder-Mead problem as a YAML or JSON
// document and turns it into a configured solver.
package problem

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/copyleftdev/simplex/internal/config"
	"github.com/copyleftdev/simplex/internal/objective"
	"github.com/copyleftdev/simplex/internal/optimization"
	"github.com/copyleftdev/simplex/internal/optimization/neldermead"
)

// Duration is a time.Duration written as a Go duration string ("30s").
type Duration time.Duration

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Termination lists the stopping criteria of a problem. Unset fields are
// disabled.
type Termination struct {
	DiameterTolerance      *float64 `json:"diameter_tolerance,omitempty" yaml:"diameter_tolerance,omitempty"`
	ValueTolerance         *float64 `json:"value_tolerance,omitempty" yaml:"value_tolerance,omitempty"`
	RelativeValueTolerance *float64 `json:"relative_value_tolerance,omitempty" yaml:"relative_value_tolerance,omitempty"`
	MaxIterations          *int     `json:"max_iterations,omitempty" yaml:"max_iterations,omitempty"`
	MaxDuration            Duration `json:"max_duration,omitempty" yaml:"max_duration,omitempty"`
}

// Problem is a solver input document. Exactly one of Expression and
// Function names the objective.
type Problem struct {
	Name           string                           `json:"name,omitempty" yaml:"name,omitempty"`
	Expression     string                           `json:"expression,omitempty" yaml:"expression,omitempty"`
	Function       string                           `json:"function,omitempty" yaml:"function,omitempty"`
	Variables      []string                         `json:"variables,omitempty" yaml:"variables,omitempty"`
	Direction      optimization.Direction           `json:"direction" yaml:"direction"`
	Guess          []float64                        `json:"guess" yaml:"guess"`
	Step           []float64                        `json:"step,omitempty" yaml:"step,omitempty"`
	Lower          []float64                        `json:"lower,omitempty" yaml:"lower,omitempty"`
	Upper          []float64                        `json:"upper,omitempty" yaml:"upper,omitempty"`
	Termination    *Termination                     `json:"termination,omitempty" yaml:"termination,omitempty"`
	Transformation *neldermead.TransformationConfig `json:"transformation,omitempty" yaml:"transformation,omitempty"`
	Variant        neldermead.Variant               `json:"variant" yaml:"variant"`
}

func configErr(op, format string, args ...interface{}) error {
	return optimization.NewConfigError(format, args...).WithOperation(op).WithComponent("problem")
}

// Parse decodes a YAML problem document. JSON documents are valid YAML and
// are accepted too. Unknown fields are rejected.
func Parse(data []byte) (*Problem, error) {
	var p Problem
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return nil, configErr("parse", "failed to parse problem yaml: %v", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// ParseJSON decodes a JSON problem document. Unknown fields are rejected.
func ParseJSON(data []byte) (*Problem, error) {
	var p Problem
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return nil, configErr("parse", "failed to parse problem json: %v", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Load reads a problem file, choosing the decoder by extension.
func Load(path string) (*Problem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, optimization.WrapErrorf(err, "read problem %s", path).WithOperation("load").WithComponent("problem")
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return ParseJSON(data)
	}
	return Parse(data)
}

// Validate checks the document for internal consistency, including that
// the objective accepts len(Guess) inputs.
func (p *Problem) Validate() error {
	switch {
	case p.Expression == "" && p.Function == "":
		return configErr("validate", "one of expression or function is required")
	case p.Expression != "" && p.Function != "":
		return configErr("validate", "expression and function are mutually exclusive")
	case p.Function != "" && len(p.Variables) > 0:
		return configErr("validate", "variables apply only to expressions")
	}

	n := len(p.Guess)
	if n == 0 {
		return configErr("validate", "guess is required")
	}
	for name, v := range map[string][]float64{"step": p.Step, "lower": p.Lower, "upper": p.Upper} {
		if v != nil && len(v) != n {
			return configErr("validate", "%s has %d entries, guess has %d", name, len(v), n)
		}
	}

	if _, err := p.objective(); err != nil {
		return err
	}

	if t := p.Termination; t != nil {
		if t.ValueTolerance != nil && t.RelativeValueTolerance != nil {
			return configErr("validate", "value_tolerance and relative_value_tolerance are mutually exclusive")
		}
		for name, v := range map[string]*float64{
			"diameter_tolerance":       t.DiameterTolerance,
			"value_tolerance":          t.ValueTolerance,
			"relative_value_tolerance": t.RelativeValueTolerance,
		} {
			if v != nil && *v < 0 {
				return configErr("validate", "%s must not be negative", name)
			}
		}
		if t.MaxIterations != nil && *t.MaxIterations < 0 {
			return configErr("validate", "max_iterations must not be negative")
		}
		if t.MaxDuration < 0 {
			return configErr("validate", "max_duration must not be negative")
		}
	}

	if p.Transformation != nil {
		if err := p.Transformation.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ApplyDefaults fills the step, termination and transformation settings the
// document omits. A document with a termination section keeps exactly the
// criteria it names.
func (p *Problem) ApplyDefaults(d config.Solver) {
	if p.Step == nil {
		p.Step = make([]float64, len(p.Guess))
		for i := range p.Step {
			p.Step[i] = d.DefaultStep
		}
	}
	if p.Termination == nil {
		tol := d.DiameterTolerance
		t := &Termination{DiameterTolerance: &tol, MaxDuration: Duration(d.MaxDuration)}
		if d.MaxIterations > 0 {
			n := d.MaxIterations
			t.MaxIterations = &n
		}
		p.Termination = t
	}
	if p.Transformation == nil {
		p.Transformation = &neldermead.TransformationConfig{
			Reflect:  d.Reflect,
			Expand:   d.Expand,
			Contract: d.Contract,
			Shrink:   d.Shrink,
		}
	}
}

// Dim returns the number of inputs.
func (p *Problem) Dim() int { return len(p.Guess) }

func (p *Problem) objective() (neldermead.Objective[float64], error) {
	n := len(p.Guess)
	if p.Function != "" {
		f, err := objective.Builtin(p.Function)
		if err != nil {
			return nil, err
		}
		if !f.Accepts(n) {
			return nil, configErr("validate", "function %s does not accept %d inputs", f.Name, n)
		}
		return f.Evaluate, nil
	}

	e, err := objective.Parse(p.Expression, p.Variables)
	if err != nil {
		return nil, err
	}
	if e.Dim() != n {
		return nil, configErr("validate", "expression takes %d inputs, guess has %d", e.Dim(), n)
	}
	return e.Evaluate, nil
}

// TerminationConfig converts the termination section to solver criteria.
func (p *Problem) TerminationConfig() neldermead.TerminationConfig[float64] {
	cfg := neldermead.NewTerminationConfig[float64]()
	t := p.Termination
	if t == nil {
		return cfg
	}
	if t.DiameterTolerance != nil {
		cfg = cfg.WithDiameterTolerance(*t.DiameterTolerance)
	}
	if t.MaxIterations != nil {
		cfg = cfg.WithMaxIterations(*t.MaxIterations)
	}
	if t.MaxDuration > 0 {
		cfg = cfg.WithMaxDuration(time.Duration(t.MaxDuration))
	}
	switch {
	case t.ValueTolerance != nil:
		cfg = cfg.WithValueConvergence(neldermead.AbsoluteTolerance[float64](*t.ValueTolerance))
	case t.RelativeValueTolerance != nil:
		cfg = cfg.WithValueConvergence(neldermead.RelativeTolerance[float64](*t.RelativeValueTolerance))
	}
	return cfg
}

// Build validates the document and returns a solver for it together with
// the direction to run it in. Call ApplyDefaults first to fill omitted
// settings; a document without a step is rejected.
func (p *Problem) Build(logger *zap.Logger, observers ...neldermead.Observer[float64]) (*neldermead.Solver[float64], optimization.Direction, error) {
	if err := p.Validate(); err != nil {
		return nil, p.Direction, err
	}
	if p.Step == nil {
		return nil, p.Direction, configErr("build", "step is required; apply defaults before building")
	}
	obj, err := p.objective()
	if err != nil {
		return nil, p.Direction, err
	}

	solver, err := neldermead.NewSolver(neldermead.Config[float64]{
		Objective:      obj,
		InitialGuess:   p.Guess,
		StepSize:       p.Step,
		Lower:          p.Lower,
		Upper:          p.Upper,
		Termination:    p.TerminationConfig(),
		Transformation: p.Transformation,
		Variant:        p.Variant,
		Observers:      observers,
		Logger:         logger,
	})
	if err != nil {
		return nil, p.Direction, err
	}
	return solver, p.Direction, nil
}

// Solve builds and runs the problem.
func (p *Problem) Solve(ctx context.Context, logger *zap.Logger, observers ...neldermead.Observer[float64]) (*neldermead.Result[float64], error) {
	solver, direction, err := p.Build(logger, observers...)
	if err != nil {
		return nil, err
	}
	return solver.Solve(ctx, direction)
}

// Clone returns a deep copy of p.
func (p *Problem) Clone() *Problem {
	c := *p
	c.Variables = slices.Clone(p.Variables)
	c.Guess = slices.Clone(p.Guess)
	c.Step = slices.Clone(p.Step)
	c.Lower = slices.Clone(p.Lower)
	c.Upper = slices.Clone(p.Upper)
	if p.Termination != nil {
		t := *p.Termination
		c.Termination = &t
	}
	if p.Transformation != nil {
		tr := *p.Transformation
		c.Transformation = &tr
	}
	return &c
}
