// Package wavefn defines the wavefunction-ansatz capabilities consumed by the
// Hamiltonian core, plus reference ansätze implementing them.
//
// An ansatz evaluates psi at an electron configuration in (sign-or-phase,
// log-magnitude) form. Kinetic-energy estimation additionally needs first and
// second derivatives in the electron positions; those are exposed as
// linearizations so that the expensive work happens once per configuration
// and each derivative application stays cheap.
package wavefn

import (
	"gonum.org/v1/gonum/mat"

	"github.com/varqc/varmc/pkg/system"
)

// Ansatz is a wavefunction implementation carrying at least one of the
// capability interfaces below. Consumers assert the capabilities they need
// and fail at construction time when one is missing.
type Ansatz interface{}

// Evaluator evaluates a wavefunction ansatz at a single configuration.
// Implementations must be pure: no retained state, safe for concurrent use.
type Evaluator interface {
	// Eval returns the sign or phase of psi together with log|psi|.
	// Real-valued ansätze return the sign (-1 or +1); complex-valued
	// ansätze return the phase angle in radians, so that
	// psi = exp(logAbs + i*signOrPhase).
	Eval(params []float64, cfg system.Configuration) (signOrPhase, logAbs float64, err error)
}

// Linearization is the gradient of a scalar channel of the ansatz at a fixed
// configuration, together with a reusable Hessian-vector product at the same
// point. Constructing the Linearization performs the per-configuration work
// once; each HVP application must then cost no more than a forward gradient
// pass, never a from-scratch differentiation.
type Linearization struct {
	// Grad is the gradient with respect to the flattened positions.
	Grad []float64
	// HVP writes the Hessian-vector product H*v into dst.
	// len(v) == len(dst) == len(Grad).
	HVP func(v, dst []float64) error
}

// Differentiable is an ansatz whose log-magnitude channel can be linearized.
type Differentiable interface {
	Evaluator
	// LinearizeLogAbs linearizes grad log|psi| at the configuration.
	LinearizeLogAbs(params []float64, cfg system.Configuration) (*Linearization, error)
}

// ComplexDifferentiable is a complex-valued ansatz whose phase channel can be
// linearized as well.
type ComplexDifferentiable interface {
	Differentiable
	// LinearizePhase linearizes the gradient of the phase angle.
	LinearizePhase(params []float64, cfg system.Configuration) (*Linearization, error)
}

// ForwardLog is the result of a forward-mode pass over the log-magnitude
// channel: the value together with its full gradient and Laplacian.
type ForwardLog struct {
	Sign   float64
	LogAbs float64
	Grad   []float64
	Lap    float64
}

// ForwardEvaluator is an ansatz supporting single-pass forward-mode
// Laplacian evaluation, typically built on package fwdlap.
type ForwardEvaluator interface {
	Evaluator
	// ForwardLogAbs evaluates log|psi| propagating gradient and Laplacian
	// forward in one pass. sparsity bounds the gradient support width
	// tracked sparsely before switching to dense storage.
	ForwardLogAbs(params []float64, cfg system.Configuration, sparsity int) (ForwardLog, error)
}

// MultiEvaluator is an ansatz carrying several electronic states jointly:
// a single evaluation yields one (sign, log|psi_i|) pair per state i at one
// electron set.
type MultiEvaluator interface {
	// NumStates returns the number of states the ansatz carries.
	NumStates() int
	// EvalStates returns the per-state signs (or phases) and
	// log-magnitudes at the given electron set.
	EvalStates(params []float64, cfg system.Configuration) (signs, logAbs []float64, err error)
	// LinearizeJacobian linearizes the per-state gradients of log|psi|.
	LinearizeJacobian(params []float64, cfg system.Configuration) (*JacobianLinearization, error)
}

// JacobianLinearization is the per-state gradient matrix of the
// log-magnitudes at a fixed electron set with a reusable directional
// derivative of that matrix.
type JacobianLinearization struct {
	// Jac is the (states x n) matrix whose row s is grad log|psi_s|.
	Jac *mat.Dense
	// JVP writes into dst (states x n) the derivative of Jac along v:
	// dst[s][i] = sum_j H_s[i][j] * v[j], with H_s the Hessian of state s.
	JVP func(v []float64, dst *mat.Dense) error
}

// ForwardMultiEvaluator is a multi-state ansatz supporting the forward-mode
// Laplacian over all states in one pass per electron set.
type ForwardMultiEvaluator interface {
	MultiEvaluator
	// ForwardLogAbsStates evaluates every state's log|psi| with gradient
	// and Laplacian at one electron set.
	ForwardLogAbsStates(params []float64, cfg system.Configuration, sparsity int) ([]ForwardLog, error)
}
