package wavefn

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/varqc/varmc/pkg/fwdlap"
	"github.com/varqc/varmc/pkg/system"
)

// GaussianProduct is an unnormalized product of isotropic Gaussians, one per
// electron:
//
//	psi(r) = prod_i exp(-alpha_i |r_i - c_i|^2) * exp(i k.r)
//
// The exponents alpha are the variational parameters. A nil PhaseK gives the
// real-valued ansatz (unit plane-wave factor). Every derivative is analytic,
// which makes this the reference ansatz for kinetic-energy checks.
type GaussianProduct struct {
	// Centers holds one Gaussian center per electron.
	Centers []r3.Vec
	// PhaseK is the plane-wave vector over flattened coordinates; nil for
	// a real-valued ansatz.
	PhaseK []float64
}

var (
	_ Differentiable        = GaussianProduct{}
	_ ComplexDifferentiable = GaussianProduct{}
	_ ForwardEvaluator      = GaussianProduct{}
)

func (g GaussianProduct) check(params []float64, cfg system.Configuration) error {
	if len(params) != len(g.Centers) {
		return fmt.Errorf("gaussian product: %d exponents for %d electrons", len(params), len(g.Centers))
	}
	if len(cfg.Positions) != 3*len(g.Centers) {
		return fmt.Errorf("gaussian product: %d coordinates for %d electrons", len(cfg.Positions), len(g.Centers))
	}
	if g.PhaseK != nil && len(g.PhaseK) != len(cfg.Positions) {
		return fmt.Errorf("gaussian product: phase vector length %d does not match %d coordinates", len(g.PhaseK), len(cfg.Positions))
	}
	return nil
}

// Eval returns the sign (or phase when PhaseK is set) and log|psi|.
func (g GaussianProduct) Eval(params []float64, cfg system.Configuration) (float64, float64, error) {
	if err := g.check(params, cfg); err != nil {
		return 0, 0, err
	}
	var logAbs float64
	for i, c := range g.Centers {
		d := r3.Sub(cfg.Electron(i), c)
		logAbs -= params[i] * r3.Norm2(d)
	}
	if g.PhaseK == nil {
		return 1, logAbs, nil
	}
	return floats.Dot(g.PhaseK, cfg.Positions), logAbs, nil
}

// LinearizeLogAbs returns grad log|psi| with a Hessian-vector product that
// reuses the per-electron exponents. The Hessian is diagonal with entries
// -2*alpha_i repeated over each electron's three coordinates.
func (g GaussianProduct) LinearizeLogAbs(params []float64, cfg system.Configuration) (*Linearization, error) {
	if err := g.check(params, cfg); err != nil {
		return nil, err
	}
	n := len(cfg.Positions)
	grad := make([]float64, n)
	diag := make([]float64, n)
	for i, c := range g.Centers {
		d := r3.Sub(cfg.Electron(i), c)
		a := -2 * params[i]
		grad[3*i], grad[3*i+1], grad[3*i+2] = a*d.X, a*d.Y, a*d.Z
		diag[3*i], diag[3*i+1], diag[3*i+2] = a, a, a
	}
	return &Linearization{
		Grad: grad,
		HVP: func(v, dst []float64) error {
			if len(v) != n || len(dst) != n {
				return fmt.Errorf("gaussian product: vector length %d, want %d", len(v), n)
			}
			for j := range dst {
				dst[j] = diag[j] * v[j]
			}
			return nil
		},
	}, nil
}

// LinearizePhase returns the gradient of the plane-wave phase k.r, whose
// Hessian vanishes identically.
func (g GaussianProduct) LinearizePhase(params []float64, cfg system.Configuration) (*Linearization, error) {
	if err := g.check(params, cfg); err != nil {
		return nil, err
	}
	if g.PhaseK == nil {
		return nil, fmt.Errorf("gaussian product: phase linearization of a real-valued ansatz")
	}
	grad := make([]float64, len(g.PhaseK))
	copy(grad, g.PhaseK)
	return &Linearization{
		Grad: grad,
		HVP: func(v, dst []float64) error {
			for j := range dst {
				dst[j] = 0
			}
			return nil
		},
	}, nil
}

// ForwardLogAbs evaluates log|psi| through a single forward-Laplacian pass.
func (g GaussianProduct) ForwardLogAbs(params []float64, cfg system.Configuration, sparsity int) (ForwardLog, error) {
	if err := g.check(params, cfg); err != nil {
		return ForwardLog{}, err
	}
	sp := fwdlap.NewSpace(len(cfg.Positions), sparsity)
	xs := sp.Inputs(cfg.Positions)
	total := sp.Const(0)
	for i, c := range g.Centers {
		dx := sp.AddConst(-c.X, xs[3*i])
		dy := sp.AddConst(-c.Y, xs[3*i+1])
		dz := sp.AddConst(-c.Z, xs[3*i+2])
		r2 := sp.Sum(sp.Mul(dx, dx), sp.Mul(dy, dy), sp.Mul(dz, dz))
		total = sp.Sub(total, sp.Scale(params[i], r2))
	}
	return ForwardLog{
		Sign:   1,
		LogAbs: total.Val(),
		Grad:   sp.Gradient(total, nil),
		Lap:    total.Lap(),
	}, nil
}

// GaussianStates carries one Gaussian-product state per row of Centers, for
// exercising the excited-state machinery with analytically known energies.
// params holds the exponents in state-major order: params[s*ne+i] is the
// exponent of electron i in state s.
type GaussianStates struct {
	// Centers[s][i] is the center of electron i in state s.
	Centers [][]r3.Vec
	// Phases, when non-nil, holds one plane-wave vector per state and
	// makes the ansatz complex-valued.
	Phases [][]float64
}

var (
	_ MultiEvaluator        = GaussianStates{}
	_ ForwardMultiEvaluator = GaussianStates{}
)

// NumStates returns the number of states.
func (g GaussianStates) NumStates() int { return len(g.Centers) }

func (g GaussianStates) state(s int) GaussianProduct {
	st := GaussianProduct{Centers: g.Centers[s]}
	if g.Phases != nil {
		st.PhaseK = g.Phases[s]
	}
	return st
}

func (g GaussianStates) stateParams(params []float64, s int) ([]float64, error) {
	ne := len(g.Centers[0])
	if len(params) != ne*len(g.Centers) {
		return nil, fmt.Errorf("gaussian states: %d exponents for %d states of %d electrons",
			len(params), len(g.Centers), ne)
	}
	return params[s*ne : (s+1)*ne], nil
}

// EvalStates returns each state's sign (or phase) and log|psi| at one
// electron set.
func (g GaussianStates) EvalStates(params []float64, cfg system.Configuration) ([]float64, []float64, error) {
	signs := make([]float64, g.NumStates())
	logs := make([]float64, g.NumStates())
	for s := range g.Centers {
		p, err := g.stateParams(params, s)
		if err != nil {
			return nil, nil, err
		}
		sign, logAbs, err := g.state(s).Eval(p, cfg)
		if err != nil {
			return nil, nil, err
		}
		signs[s], logs[s] = sign, logAbs
	}
	return signs, logs, nil
}

// LinearizeJacobian returns the per-state gradient rows and a directional
// derivative reusing the diagonal per-state Hessians.
func (g GaussianStates) LinearizeJacobian(params []float64, cfg system.Configuration) (*JacobianLinearization, error) {
	states := g.NumStates()
	n := len(cfg.Positions)
	jac := mat.NewDense(states, n, nil)
	diags := mat.NewDense(states, n, nil)
	for s := range g.Centers {
		p, err := g.stateParams(params, s)
		if err != nil {
			return nil, err
		}
		lin, err := g.state(s).LinearizeLogAbs(p, cfg)
		if err != nil {
			return nil, err
		}
		jac.SetRow(s, lin.Grad)
		for i := range p {
			a := -2 * p[i]
			diags.Set(s, 3*i, a)
			diags.Set(s, 3*i+1, a)
			diags.Set(s, 3*i+2, a)
		}
	}
	return &JacobianLinearization{
		Jac: jac,
		JVP: func(v []float64, dst *mat.Dense) error {
			if len(v) != n {
				return fmt.Errorf("gaussian states: vector length %d, want %d", len(v), n)
			}
			for s := 0; s < states; s++ {
				for j := 0; j < n; j++ {
					dst.Set(s, j, diags.At(s, j)*v[j])
				}
			}
			return nil
		},
	}, nil
}

// ForwardLogAbsStates runs the forward-Laplacian pass once per state.
func (g GaussianStates) ForwardLogAbsStates(params []float64, cfg system.Configuration, sparsity int) ([]ForwardLog, error) {
	out := make([]ForwardLog, g.NumStates())
	for s := range g.Centers {
		p, err := g.stateParams(params, s)
		if err != nil {
			return nil, err
		}
		fl, err := g.state(s).ForwardLogAbs(p, cfg, sparsity)
		if err != nil {
			return nil, err
		}
		out[s] = fl
	}
	return out, nil
}
