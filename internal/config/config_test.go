package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"PORT", "DATABASE_URL", "REDIS_URL", "RATE_RPS", "RATE_BURST", "SOLVER_CONFIG"} {
		t.Setenv(k, "")
	}
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 20.0, cfg.RateRPS)
	assert.Equal(t, 40, cfg.RateBurst)
	assert.Equal(t, "ils", cfg.Solver.Variant)
	assert.Equal(t, 100, cfg.Solver.Iterations)
	assert.Equal(t, 0.15, cfg.Solver.Alpha)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("RATE_RPS", "5.5")
	t.Setenv("RATE_BURST", "7")
	t.Setenv("SOLVER_CONFIG", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 5.5, cfg.RateRPS)
	assert.Equal(t, 7, cfg.RateBurst)
}

func TestLoadSolverYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "solver.yaml")
	require.NoError(t, os.WriteFile(path, []byte("variant: greedy\niterations: 250\ntimeLimitMs: 15000\nalpha: 0.2\nbeta: 0.03\n"), 0o644))
	t.Setenv("SOLVER_CONFIG", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "greedy", cfg.Solver.Variant)
	assert.Equal(t, 250, cfg.Solver.Iterations)
	assert.Equal(t, 15000, cfg.Solver.TimeLimitMs)
	assert.Equal(t, 0.2, cfg.Solver.Alpha)
}

func TestLoadSolverYAMLMissingFile(t *testing.T) {
	t.Setenv("SOLVER_CONFIG", filepath.Join(t.TempDir(), "nope.yaml"))
	_, err := Load()
	assert.Error(t, err)
}
