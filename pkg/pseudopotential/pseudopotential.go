// Package pseudopotential supplies effective core potentials for the local
// energy estimator. A potential replaces the bare nuclear charge of selected
// elements with a valence charge and adds a local radial correction plus a
// nonlocal angular-projector term evaluated by spherical quadrature of
// single-electron wavefunction ratios.
package pseudopotential

import (
	"fmt"
	"math"
	"math/cmplx"
	"math/rand"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/varqc/varmc/pkg/system"
	"github.com/varqc/varmc/pkg/wavefn"
)

// Potential holds the effective charges and the operator pieces for one
// molecular geometry. Construct with Make; the zero value is not usable.
type Potential struct {
	// EffectiveCharges mirrors the bare nuclear charges with core-replaced
	// elements reduced to their valence charge.
	EffectiveCharges []float64

	// entries is aligned with the atoms; nil marks an all-electron atom.
	entries       []*ecpEntry
	quad          sphereRule
	complexOutput bool
}

// ratioFn returns psi(r') / psi(r) after moving one electron to pos.
type ratioFn func(electron int, pos r3.Vec) (complex128, error)

// Make builds the potential for the given nuclear charges. symbols lists the
// elements whose cores are replaced; atoms of other elements keep their bare
// charge. quadDegree controls the angular quadrature of the nonlocal term.
func Make(charges []float64, symbols []string, quadDegree int, family string, complexOutput bool, log zerolog.Logger) (*Potential, error) {
	logger := log.With().Str("component", "pseudopotential").Logger()

	table, ok := families[family]
	if !ok {
		return nil, fmt.Errorf("pseudopotential: unknown family %q", family)
	}

	requested := make(map[float64]*ecpEntry, len(symbols))
	for _, sym := range symbols {
		z, ok := atomicNumber[sym]
		if !ok {
			return nil, fmt.Errorf("pseudopotential: unknown element %q", sym)
		}
		entry, ok := table[sym]
		if !ok {
			return nil, fmt.Errorf("pseudopotential: no %s parameters for element %q", family, sym)
		}
		requested[z] = entry
	}

	effective := append([]float64(nil), charges...)
	entries := make([]*ecpEntry, len(charges))
	replaced := 0
	for a, q := range charges {
		if entry, ok := requested[q]; ok {
			effective[a] = entry.Zeff
			entries[a] = entry
			replaced++
		}
	}

	rule, err := newSphereRule(quadDegree)
	if err != nil {
		return nil, err
	}

	logger.Debug().
		Str("family", family).
		Int("atoms_replaced", replaced).
		Int("quadrature_points", len(rule.dirs)).
		Msg("pseudopotential configured")

	return &Potential{
		EffectiveCharges: effective,
		entries:          entries,
		quad:             rule,
		complexOutput:    complexOutput,
	}, nil
}

// Local evaluates the local channel corrections summed over electrons and
// core-replaced atoms. The -Zeff/r Coulomb tail is not included here; it is
// carried by the effective charges in the electron-nuclear term.
func (p *Potential) Local(rAE mat.Matrix) float64 {
	ne, _ := rAE.Dims()
	var total float64
	for a, entry := range p.entries {
		if entry == nil {
			continue
		}
		for e := 0; e < ne; e++ {
			total += radial(entry.Local, rAE.At(e, a))
		}
	}
	return total
}

// Nonlocal evaluates the nonlocal projector term at the configuration. The
// wavefunction enters only through ratios psi(r')/psi(r) with one electron
// moved onto a quadrature sphere around each core-replaced atom.
func (p *Potential) Nonlocal(rng *rand.Rand, ev wavefn.Evaluator, params []float64, cfg system.Configuration, feat system.Features) (complex128, error) {
	sgn0, log0, err := ev.Eval(params, cfg)
	if err != nil {
		return 0, err
	}

	moved := cfg
	moved.Positions = append([]float64(nil), cfg.Positions...)
	ratio := func(e int, pos r3.Vec) (complex128, error) {
		setElectron(moved.Positions, e, pos)
		sgn1, log1, err := ev.Eval(params, moved)
		setElectron(moved.Positions, e, cfg.Electron(e))
		if err != nil {
			return 0, err
		}
		return p.waveRatio(sgn1, log1, sgn0, log0), nil
	}
	return p.integrate(rng, cfg, feat, ratio)
}

// NonlocalState evaluates the nonlocal projector term for one electron set
// of a multi-state ansatz, using the named state's wavefunction component in
// the ratio.
func (p *Potential) NonlocalState(rng *rand.Rand, ev wavefn.MultiEvaluator, params []float64, cfg system.Configuration, feat system.Features, state int) (complex128, error) {
	signs0, logs0, err := ev.EvalStates(params, cfg)
	if err != nil {
		return 0, err
	}
	if state < 0 || state >= len(logs0) {
		return 0, fmt.Errorf("pseudopotential: state %d out of range [0, %d)", state, len(logs0))
	}
	sgn0, log0 := signs0[state], logs0[state]

	moved := cfg
	moved.Positions = append([]float64(nil), cfg.Positions...)
	ratio := func(e int, pos r3.Vec) (complex128, error) {
		setElectron(moved.Positions, e, pos)
		signs1, logs1, err := ev.EvalStates(params, moved)
		setElectron(moved.Positions, e, cfg.Electron(e))
		if err != nil {
			return 0, err
		}
		return p.waveRatio(signs1[state], logs1[state], sgn0, log0), nil
	}
	return p.integrate(rng, cfg, feat, ratio)
}

func setElectron(positions []float64, e int, pos r3.Vec) {
	positions[3*e] = pos.X
	positions[3*e+1] = pos.Y
	positions[3*e+2] = pos.Z
}

func (p *Potential) waveRatio(sgn1, log1, sgn0, log0 float64) complex128 {
	if p.complexOutput {
		return cmplx.Rect(math.Exp(log1-log0), sgn1-sgn0)
	}
	return complex(sgn0*sgn1*math.Exp(log1-log0), 0)
}

// integrate applies the angular quadrature around every core-replaced atom:
//
//	sum_l (2l+1) V_l(r_ea) sum_q w_q P_l(cos gamma_q) psi(r_q)/psi(r)
//
// with gamma_q the angle at the atom between the electron and quadrature
// directions. One random rotation of the grid is drawn per call and shared
// across electrons and atoms.
func (p *Potential) integrate(rng *rand.Rand, cfg system.Configuration, feat system.Features, ratio ratioFn) (complex128, error) {
	rot := randomRotation(rng)
	ne := cfg.NumElectrons()

	var total complex128
	for a, entry := range p.entries {
		if entry == nil || len(entry.Nonlocal) == 0 {
			continue
		}
		center := cfg.Atoms[a]
		for e := 0; e < ne; e++ {
			d := feat.AE[e][a]
			r := r3.Norm(d)
			if r == 0 {
				continue
			}
			u := r3.Scale(1/r, d)

			channels := make([]float64, len(entry.Nonlocal))
			for l, terms := range entry.Nonlocal {
				channels[l] = radial(terms, r)
			}

			proj := make([]complex128, len(entry.Nonlocal))
			for q, dir := range p.quad.dirs {
				dq := rot.Rotate(dir)
				rat, err := ratio(e, r3.Add(center, r3.Scale(r, dq)))
				if err != nil {
					return 0, err
				}
				cosg := r3.Dot(u, dq)
				w := p.quad.weights[q]
				for l := range proj {
					proj[l] += complex(w*legendreP(l, cosg), 0) * rat
				}
			}

			for l, v := range channels {
				total += complex(float64(2*l+1)*v, 0) * proj[l]
			}
		}
	}
	return total, nil
}
