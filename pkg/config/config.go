// Package config loads process-wide evaluation defaults from environment
// variables, honoring a .env file in the working directory when present.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/varqc/varmc/pkg/hamiltonian"
)

// Config holds the tunable defaults of a local-energy run.
type Config struct {
	LogLevel  string
	LogPretty bool

	// LaplacianMethod selects the kinetic-energy estimator, "default" or
	// "forward".
	LaplacianMethod string
	// UseScan selects the scan-style accumulation of the Hessian trace.
	UseScan bool
	// SparsityThreshold bounds the sparse gradient width tracked by the
	// forward estimator before it switches to dense storage.
	SparsityThreshold int
	// QuadratureDegree sizes the spherical quadrature of non-local
	// pseudopotential integrals.
	QuadratureDegree int
	// PseudopotentialType names the pseudopotential parameter family.
	PseudopotentialType string

	// Workers sizes the batch pool; zero selects the physical core count.
	Workers int
	// Seed is the base seed for per-walker RNG streams.
	Seed int64
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		LogLevel:            getEnv("VARMC_LOG_LEVEL", "info"),
		LogPretty:           getEnvAsBool("VARMC_LOG_PRETTY", false),
		LaplacianMethod:     getEnv("VARMC_LAPLACIAN_METHOD", hamiltonian.LaplacianDefault),
		UseScan:             getEnvAsBool("VARMC_USE_SCAN", false),
		SparsityThreshold:   getEnvAsInt("VARMC_SPARSITY_THRESHOLD", 6),
		QuadratureDegree:    getEnvAsInt("VARMC_QUADRATURE_DEGREE", 4),
		PseudopotentialType: getEnv("VARMC_PP_TYPE", "ccecp"),
		Workers:             getEnvAsInt("VARMC_WORKERS", 0),
		Seed:                getEnvAsInt64("VARMC_SEED", 1),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the numeric options for consistency.
func (c *Config) Validate() error {
	if c.LaplacianMethod != hamiltonian.LaplacianDefault && c.LaplacianMethod != hamiltonian.LaplacianForward {
		return fmt.Errorf("config: unknown laplacian method %q", c.LaplacianMethod)
	}
	if c.SparsityThreshold < 0 {
		return fmt.Errorf("config: negative sparsity threshold %d", c.SparsityThreshold)
	}
	if c.QuadratureDegree < 1 {
		return fmt.Errorf("config: quadrature degree %d, want at least 1", c.QuadratureDegree)
	}
	if c.Workers < 0 {
		return fmt.Errorf("config: negative worker count %d", c.Workers)
	}
	return nil
}

// EvaluationOptions maps the configuration onto local-energy options.
// Per-calculation fields (states, complex output, pseudopotential symbols)
// stay zero; the caller sets them per system.
func (c *Config) EvaluationOptions() hamiltonian.Options {
	return hamiltonian.Options{
		UseScan:             c.UseScan,
		LaplacianMethod:     c.LaplacianMethod,
		SparsityThreshold:   c.SparsityThreshold,
		QuadratureDegree:    c.QuadratureDegree,
		PseudopotentialType: c.PseudopotentialType,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
