// Package config loads service and solver settings from the environment.
package config

import (
	"fmt"
	"math"
	"time"

	"github.com/caarlos0/env/v10"
)

// Solver holds the defaults applied to problems that omit them.
type Solver struct {
	DiameterTolerance float64       `env:"SOLVER_DIAMETER_TOLERANCE" envDefault:"1e-8"`
	MaxIterations     int           `env:"SOLVER_MAX_ITERATIONS" envDefault:"10000"`
	MaxDuration       time.Duration `env:"SOLVER_MAX_DURATION" envDefault:"30s"`
	DefaultStep       float64       `env:"SOLVER_DEFAULT_STEP" envDefault:"1.0"`
	Reflect           float64       `env:"SOLVER_REFLECT" envDefault:"1"`
	Expand            float64       `env:"SOLVER_EXPAND" envDefault:"2"`
	Contract          float64       `env:"SOLVER_CONTRACT" envDefault:"0.5"`
	Shrink            float64       `env:"SOLVER_SHRINK" envDefault:"0.5"`
}

// DefaultSolver returns the solver defaults without reading the environment.
func DefaultSolver() Solver {
	return Solver{
		DiameterTolerance: 1e-8,
		MaxIterations:     10000,
		MaxDuration:       30 * time.Second,
		DefaultStep:       1.0,
		Reflect:           1,
		Expand:            2,
		Contract:          0.5,
		Shrink:            0.5,
	}
}

// Validate checks that every default is usable by the solver.
func (s Solver) Validate() error {
	positive := map[string]float64{
		"SOLVER_REFLECT":            s.Reflect,
		"SOLVER_EXPAND":             s.Expand,
		"SOLVER_CONTRACT":           s.Contract,
		"SOLVER_SHRINK":             s.Shrink,
		"SOLVER_DEFAULT_STEP":       s.DefaultStep,
		"SOLVER_DIAMETER_TOLERANCE": s.DiameterTolerance,
	}
	for name, v := range positive {
		if !(v > 0) || math.IsInf(v, 0) {
			return fmt.Errorf("%s must be positive and finite, got %v", name, v)
		}
	}
	if s.MaxIterations < 0 {
		return fmt.Errorf("SOLVER_MAX_ITERATIONS must not be negative, got %d", s.MaxIterations)
	}
	if s.MaxDuration < 0 {
		return fmt.Errorf("SOLVER_MAX_DURATION must not be negative, got %s", s.MaxDuration)
	}
	return nil
}

type Config struct {
	Environment string `env:"ENV" envDefault:"development"`
	HTTP        struct {
		Port            int           `env:"HTTP_PORT" envDefault:"8080"`
		ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"30s"`
		WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
		IdleTimeout     time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
		ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	}
	Logging struct {
		Level  string `env:"LOG_LEVEL"`
		Format string `env:"LOG_FORMAT" envDefault:"json"`
		Output string `env:"LOG_OUTPUT" envDefault:"stderr"`
	}
	Solver       Solver
	Optimization struct {
		WorkerCount int `env:"OPT_WORKER_COUNT" envDefault:"10"`
	}
}

func Load() (*Config, error) {
	cfg := &Config{}

	// Parse environment variables
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	// Set default logging level based on environment
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
		if cfg.Environment == "development" {
			cfg.Logging.Level = "debug"
		}
	}

	if cfg.Optimization.WorkerCount < 1 {
		return nil, fmt.Errorf("OPT_WORKER_COUNT must be at least 1, got %d", cfg.Optimization.WorkerCount)
	}
	if err := cfg.Solver.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}
