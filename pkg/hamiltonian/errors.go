package hamiltonian

import (
	"errors"
	"fmt"
)

// errZeroWavefunction signals an exactly vanishing wavefunction value where
// a ratio is required.
var errZeroWavefunction = errors.New("wavefunction value is zero")

// ConfigError reports an unsupported or inconsistent combination of options
// at construction time. Evaluation never starts with a bad configuration.
type ConfigError struct {
	Option string
	Detail string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("local energy config: %s: %s", e.Option, e.Detail)
}

// InputError reports a malformed configuration passed to an evaluation.
type InputError struct {
	Detail string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("local energy input: %s", e.Detail)
}

// InstabilityError reports a numerically degenerate evaluation, such as a
// singular excited-state overlap matrix. Retrying a deterministic evaluation
// cannot recover; the caller must change the configuration or the ansatz.
type InstabilityError struct {
	Op  string
	Err error
}

func (e *InstabilityError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("numerical instability in %s", e.Op)
	}
	return fmt.Sprintf("numerical instability in %s: %v", e.Op, e.Err)
}

func (e *InstabilityError) Unwrap() error { return e.Err }
