package hamiltonian

import (
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/varqc/varmc/pkg/system"
	"github.com/varqc/varmc/pkg/wavefn"
)

// stateMatrices holds the wavefunction and kinetic matrices for a stacked
// configuration. Rows index electron sets and columns index states, so
// Psi.At(j, i) is psi_i evaluated at set j and KPsi.At(j, i) is K psi_i at
// the same set.
type stateMatrices struct {
	Psi  *mat.CDense
	KPsi *mat.CDense
}

// excitedKineticFn evaluates the wavefunction and kinetic matrices across
// all electron sets of a stacked configuration.
type excitedKineticFn func(params []float64, cfg system.Configuration) (stateMatrices, error)

// newExcitedKinetic builds the estimator producing (psi, K psi) matrices for
// a multi-state ansatz. The kinetic entries are derived from the log
// magnitudes only; phase derivatives never enter this path.
func newExcitedKinetic(ansatz wavefn.Ansatz, states int, opts Options) (excitedKineticFn, error) {
	switch opts.LaplacianMethod {
	case LaplacianDefault:
		mev, ok := ansatz.(wavefn.MultiEvaluator)
		if !ok {
			return nil, &ConfigError{
				Option: "states",
				Detail: fmt.Sprintf("ansatz %T does not evaluate multiple states", ansatz),
			}
		}
		if got := mev.NumStates(); got != states {
			return nil, &ConfigError{
				Option: "states",
				Detail: fmt.Sprintf("ansatz evaluates %d states, want %d", got, states),
			}
		}
		return makeDefaultExcitedKinetic(mev, states, opts.ComplexOutput), nil

	case LaplacianForward:
		// ForwardLog carries no phase channel, so a complex ansatz would
		// silently lose its phases here. Reject it up front, like the
		// single-state constructor does.
		if opts.ComplexOutput {
			return nil, &ConfigError{
				Option: "laplacian_method",
				Detail: "forward-mode laplacian is not implemented for complex-valued ansätze",
			}
		}
		fev, ok := ansatz.(wavefn.ForwardMultiEvaluator)
		if !ok {
			return nil, &ConfigError{
				Option: "laplacian_method",
				Detail: fmt.Sprintf("ansatz %T does not support batched forward-mode evaluation", ansatz),
			}
		}
		if got := fev.NumStates(); got != states {
			return nil, &ConfigError{
				Option: "states",
				Detail: fmt.Sprintf("ansatz evaluates %d states, want %d", got, states),
			}
		}
		return makeForwardExcitedKinetic(fev, states, opts), nil

	default:
		return nil, &ConfigError{
			Option: "laplacian_method",
			Detail: fmt.Sprintf("unknown method %q for excited states", opts.LaplacianMethod),
		}
	}
}

func makeDefaultExcitedKinetic(ev wavefn.MultiEvaluator, states int, complexOutput bool) excitedKineticFn {
	return func(params []float64, cfg system.Configuration) (stateMatrices, error) {
		signs := mat.NewDense(states, states, nil)
		logs := mat.NewDense(states, states, nil)
		kin := mat.NewDense(states, states, nil)

		for j := 0; j < states; j++ {
			sub := cfg.StateView(states, j)

			sgn, lg, err := ev.EvalStates(params, sub)
			if err != nil {
				return stateMatrices{}, err
			}
			signs.SetRow(j, sgn)
			logs.SetRow(j, lg)

			lin, err := ev.LinearizeJacobian(params, sub)
			if err != nil {
				return stateMatrices{}, err
			}
			row, err := laplacianRow(lin, states)
			if err != nil {
				return stateMatrices{}, err
			}
			kin.SetRow(j, row)
		}

		return assembleStateMatrices(signs, logs, kin, complexOutput), nil
	}
}

func makeForwardExcitedKinetic(ev wavefn.ForwardMultiEvaluator, states int, opts Options) excitedKineticFn {
	return func(params []float64, cfg system.Configuration) (stateMatrices, error) {
		signs := mat.NewDense(states, states, nil)
		logs := mat.NewDense(states, states, nil)
		kin := mat.NewDense(states, states, nil)

		// The batched forward pass accepts a single spin vector, so every
		// set is evaluated with set 0's spin assignment.
		spins := cfg.StateView(states, 0).Spins

		for j := 0; j < states; j++ {
			sub := cfg.StateView(states, j)
			sub.Spins = spins

			flogs, err := ev.ForwardLogAbsStates(params, sub, opts.SparsityThreshold)
			if err != nil {
				return stateMatrices{}, err
			}
			for i, fl := range flogs {
				signs.Set(j, i, fl.Sign)
				logs.Set(j, i, fl.LogAbs)
				kin.Set(j, i, -0.5*(fl.Lap+floats.Dot(fl.Grad, fl.Grad)))
			}
		}

		return assembleStateMatrices(signs, logs, kin, opts.ComplexOutput), nil
	}
}

// laplacianRow returns -1/2 (laplacian log|psi_s| + |grad log|psi_s||^2) for
// every state s at a single electron set. The Jacobian linearization is
// built once by the caller; each basis-vector application here reads off one
// Hessian diagonal entry per state.
func laplacianRow(lin *wavefn.JacobianLinearization, states int) ([]float64, error) {
	_, n := lin.Jac.Dims()
	basis := make([]float64, n)
	hv := mat.NewDense(states, n, nil)

	row := make([]float64, states)
	for i := 0; i < n; i++ {
		basis[i] = 1
		if err := lin.JVP(basis, hv); err != nil {
			return nil, err
		}
		for s := 0; s < states; s++ {
			row[s] += hv.At(s, i)
		}
		basis[i] = 0
	}
	for s := 0; s < states; s++ {
		grad := lin.Jac.RawRowView(s)
		row[s] = -0.5*row[s] - 0.5*floats.Dot(grad, grad)
	}
	return row, nil
}

// assembleStateMatrices exponentiates the log magnitudes into wavefunction
// values and multiplies through by the kinetic ratios. The largest log
// magnitude is subtracted before exponentiating so entries stay finite; the
// shift cancels when the caller solves psi * E = H psi.
func assembleStateMatrices(signs, logs, kin *mat.Dense, complexOutput bool) stateMatrices {
	states, _ := logs.Dims()
	shift := mat.Max(logs)

	psi := mat.NewCDense(states, states, nil)
	kpsi := mat.NewCDense(states, states, nil)
	for j := 0; j < states; j++ {
		for i := 0; i < states; i++ {
			v := waveValue(signs.At(j, i), logs.At(j, i)-shift, complexOutput)
			psi.Set(j, i, v)
			kpsi.Set(j, i, complex(kin.At(j, i), 0)*v)
		}
	}
	return stateMatrices{Psi: psi, KPsi: kpsi}
}

// waveValue reconstructs a wavefunction value from an evaluator's
// (sign or phase, log magnitude) pair.
func waveValue(signOrPhase, logAbs float64, complexOutput bool) complex128 {
	if complexOutput {
		return cmplx.Rect(math.Exp(logAbs), signOrPhase)
	}
	return complex(signOrPhase*math.Exp(logAbs), 0)
}
