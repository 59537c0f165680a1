package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, 120*time.Second, cfg.HTTP.IdleTimeout)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, 10, cfg.Optimization.WorkerCount)
	assert.Equal(t, DefaultSolver(), cfg.Solver)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("OPT_WORKER_COUNT", "3")
	t.Setenv("SOLVER_MAX_ITERATIONS", "250")
	t.Setenv("SOLVER_MAX_DURATION", "2s")
	t.Setenv("SOLVER_EXPAND", "3")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.HTTP.Port)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, 3, cfg.Optimization.WorkerCount)
	assert.Equal(t, 250, cfg.Solver.MaxIterations)
	assert.Equal(t, 2*time.Second, cfg.Solver.MaxDuration)
	assert.Equal(t, 3.0, cfg.Solver.Expand)
}

func TestLoadDefaultLogLevel(t *testing.T) {
	tests := []struct {
		env  string
		want string
	}{
		{env: "development", want: "debug"},
		{env: "production", want: "info"},
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			t.Setenv("ENV", tt.env)
			t.Setenv("LOG_LEVEL", "")
			cfg, err := Load()
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.Logging.Level)
		})
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "zero contract", key: "SOLVER_CONTRACT", value: "0"},
		{name: "negative reflect", key: "SOLVER_REFLECT", value: "-1"},
		{name: "negative max iterations", key: "SOLVER_MAX_ITERATIONS", value: "-5"},
		{name: "zero workers", key: "OPT_WORKER_COUNT", value: "0"},
		{name: "malformed duration", key: "SOLVER_MAX_DURATION", value: "soon"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
