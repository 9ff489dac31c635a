package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/varqc/varmc/pkg/hamiltonian"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.LogPretty)
	assert.Equal(t, hamiltonian.LaplacianDefault, cfg.LaplacianMethod)
	assert.False(t, cfg.UseScan)
	assert.Equal(t, 6, cfg.SparsityThreshold)
	assert.Equal(t, 4, cfg.QuadratureDegree)
	assert.Equal(t, "ccecp", cfg.PseudopotentialType)
	assert.Equal(t, 0, cfg.Workers)
	assert.Equal(t, int64(1), cfg.Seed)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("VARMC_LOG_LEVEL", "debug")
	t.Setenv("VARMC_LOG_PRETTY", "true")
	t.Setenv("VARMC_LAPLACIAN_METHOD", "forward")
	t.Setenv("VARMC_USE_SCAN", "1")
	t.Setenv("VARMC_SPARSITY_THRESHOLD", "12")
	t.Setenv("VARMC_QUADRATURE_DEGREE", "6")
	t.Setenv("VARMC_PP_TYPE", "ccecp")
	t.Setenv("VARMC_WORKERS", "5")
	t.Setenv("VARMC_SEED", "123456789012")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.LogPretty)
	assert.Equal(t, hamiltonian.LaplacianForward, cfg.LaplacianMethod)
	assert.True(t, cfg.UseScan)
	assert.Equal(t, 12, cfg.SparsityThreshold)
	assert.Equal(t, 6, cfg.QuadratureDegree)
	assert.Equal(t, 5, cfg.Workers)
	assert.Equal(t, int64(123456789012), cfg.Seed)
}

func TestLoadIgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("VARMC_SPARSITY_THRESHOLD", "not-a-number")
	t.Setenv("VARMC_WORKERS", "3.5")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 6, cfg.SparsityThreshold, "falls back to the default")
	assert.Equal(t, 0, cfg.Workers)
}

func TestLoadRejectsInvalidMethod(t *testing.T) {
	t.Setenv("VARMC_LAPLACIAN_METHOD", "hutchinson")

	_, err := Load()
	assert.ErrorContains(t, err, "unknown laplacian method")
}

func TestValidate(t *testing.T) {
	scenarios := []struct {
		name   string
		mutate func(*Config)
		msg    string
	}{
		{
			name:   "negative sparsity threshold",
			mutate: func(c *Config) { c.SparsityThreshold = -1 },
			msg:    "sparsity",
		},
		{
			name:   "zero quadrature degree",
			mutate: func(c *Config) { c.QuadratureDegree = 0 },
			msg:    "quadrature degree",
		},
		{
			name:   "negative workers",
			mutate: func(c *Config) { c.Workers = -2 },
			msg:    "worker count",
		},
		{
			name:   "unknown method",
			mutate: func(c *Config) { c.LaplacianMethod = "exact" },
			msg:    "laplacian method",
		},
	}
	for _, sc := range scenarios {
		t.Run(sc.name, func(t *testing.T) {
			cfg, err := Load()
			require.NoError(t, err)
			sc.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), sc.msg)
		})
	}
}

func TestEvaluationOptions(t *testing.T) {
	t.Setenv("VARMC_LAPLACIAN_METHOD", "forward")
	t.Setenv("VARMC_USE_SCAN", "true")
	t.Setenv("VARMC_SPARSITY_THRESHOLD", "9")
	t.Setenv("VARMC_QUADRATURE_DEGREE", "5")

	cfg, err := Load()
	require.NoError(t, err)

	opts := cfg.EvaluationOptions()
	assert.Equal(t, hamiltonian.LaplacianForward, opts.LaplacianMethod)
	assert.True(t, opts.UseScan)
	assert.Equal(t, 9, opts.SparsityThreshold)
	assert.Equal(t, 5, opts.QuadratureDegree)
	assert.Equal(t, "ccecp", opts.PseudopotentialType)

	// Per-system choices are left for the caller.
	assert.Zero(t, opts.States)
	assert.False(t, opts.ComplexOutput)
	assert.Empty(t, opts.PseudopotentialSymbols)
}
