package hamiltonian

import (
	"math"
	"math/rand"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/varqc/varmc/internal/testutil"
	"github.com/varqc/varmc/pkg/system"
	"github.com/varqc/varmc/pkg/wavefn"
)

func testRNG() *rand.Rand {
	return rand.New(rand.NewSource(1))
}

// hydrogenAnion is two electrons around a single proton with a Gaussian
// pair ansatz, small enough to compare against pencil-and-paper values.
func hydrogenAnion(t *testing.T, opts Options) (*LocalEnergy, []float64, system.Configuration) {
	t.Helper()
	le, err := New(testutil.OriginGaussians(2), []float64{1}, []int{1, 1}, opts, zerolog.Nop())
	require.NoError(t, err)

	params := []float64{0.5, 0.5}
	cfg := system.Make(testutil.HydrogenAtom(),
		[]float64{0.4, -0.2, 0.6, -0.5, 0.3, -0.7},
		[]float64{1, -1})
	return le, params, cfg
}

func anionReference(cfg system.Configuration) float64 {
	r1 := cfg.Electron(0)
	r2 := cfg.Electron(1)
	kinetic := 3 - 0.5*(r3.Norm2(r1)+r3.Norm2(r2))
	potential := 1/r3.Norm(r3.Sub(r1, r2)) - 1/r3.Norm(r1) - 1/r3.Norm(r2)
	return kinetic + potential
}

func TestEvaluateHydrogenAnion(t *testing.T) {
	le, params, cfg := hydrogenAnion(t, Options{})

	res, err := le.Evaluate(params, testRNG(), cfg)
	require.NoError(t, err)

	assert.InDelta(t, anionReference(cfg), res.Real(), 1e-12)
	assert.Zero(t, imag(res.Energy))
	assert.Nil(t, res.EnergyMatrix, "ground state carries no state matrix")
}

func TestEvaluateMethodVariants(t *testing.T) {
	scenarios := []struct {
		name string
		opts Options
	}{
		{name: "forward laplacian", opts: Options{LaplacianMethod: LaplacianForward}},
		{name: "scan accumulation", opts: Options{UseScan: true}},
		{name: "tight sparsity", opts: Options{LaplacianMethod: LaplacianForward, SparsityThreshold: 1}},
	}
	for _, sc := range scenarios {
		t.Run(sc.name, func(t *testing.T) {
			le, params, cfg := hydrogenAnion(t, sc.opts)
			res, err := le.Evaluate(params, testRNG(), cfg)
			require.NoError(t, err)
			assert.InDelta(t, anionReference(cfg), res.Real(), 1e-11)
		})
	}
}

func TestEvaluateHydrogenMolecule(t *testing.T) {
	atoms := testutil.Dihydrogen()
	centers := []r3.Vec{atoms[0].Coords, atoms[1].Coords}
	le, err := New(wavefn.GaussianProduct{Centers: centers},
		[]float64{1, 1}, []int{1, 1}, Options{}, zerolog.Nop())
	require.NoError(t, err)

	positions := []float64{0.3, -0.1, 0.4, -0.2, 0.3, 1.1}
	params := []float64{0.9, 0.7}
	cfg := system.Make(atoms, positions, []float64{1, -1})

	res, err := le.Evaluate(params, testRNG(), cfg)
	require.NoError(t, err)

	feat, err := system.BuildFeatures(positions, centers)
	require.NoError(t, err)
	want := testutil.GaussianKinetic(params, centers, positions) +
		PotentialEnergy(feat, centers, []float64{1, 1})
	assert.InDelta(t, want, res.Real(), 1e-12, "includes nuclear repulsion")
}

func TestSingleStateMatchesGround(t *testing.T) {
	ground, params, cfg := hydrogenAnion(t, Options{})

	multi := wavefn.GaussianStates{Centers: [][]r3.Vec{{{}, {}}}}
	le, err := New(multi, []float64{1}, []int{1, 1}, Options{States: 1}, zerolog.Nop())
	require.NoError(t, err)

	want, err := ground.Evaluate(params, testRNG(), cfg)
	require.NoError(t, err)
	got, err := le.Evaluate(params, testRNG(), cfg)
	require.NoError(t, err)

	assert.InDelta(t, want.Real(), got.Real(), 1e-12)
	require.NotNil(t, got.EnergyMatrix)
	rows, cols := got.EnergyMatrix.Dims()
	assert.Equal(t, 1, rows)
	assert.Equal(t, 1, cols)
	assert.Equal(t, got.Energy, got.EnergyMatrix.At(0, 0))
}

func twoStateAnsatz() (wavefn.GaussianStates, []float64) {
	ansatz := wavefn.GaussianStates{Centers: [][]r3.Vec{
		{{}, {Z: 1.0}},
		{{X: 0.3}, {Z: 0.8}},
	}}
	params := []float64{0.4, 0.7, 1.1, 0.6}
	return ansatz, params
}

func TestTwoStateEnergyMatrix(t *testing.T) {
	ansatz, params := twoStateAnsatz()
	le, err := New(ansatz, []float64{1}, []int{1, 1}, Options{States: 2}, zerolog.Nop())
	require.NoError(t, err)

	// Two electron sets of two electrons each, stacked.
	cfg := system.Make(testutil.HydrogenAtom(),
		[]float64{
			0.2, -0.3, 0.4, 0.1, 0.5, -0.6,
			-0.4, 0.6, 0.2, 0.5, -0.2, 0.9,
		},
		[]float64{1, -1, 1, -1})

	res, err := le.Evaluate(params, testRNG(), cfg)
	require.NoError(t, err)

	// Independent reference: assemble psi and H psi per set and state from
	// the closed forms and solve the 2x2 system by Cramer's rule.
	var psi, hpsi [2][2]float64
	for j := 0; j < 2; j++ {
		sub := cfg.StateView(2, j)

		e1, e2 := sub.Electron(0), sub.Electron(1)
		pot := 1/r3.Norm(r3.Sub(e1, e2)) - 1/r3.Norm(e1) - 1/r3.Norm(e2)

		for i := 0; i < 2; i++ {
			p := params[2*i : 2*i+2]
			single := wavefn.GaussianProduct{Centers: ansatz.Centers[i]}
			sign, logAbs, err := single.Eval(p, sub)
			require.NoError(t, err)
			psi[j][i] = sign * math.Exp(logAbs)
			kin := testutil.GaussianKinetic(p, ansatz.Centers[i], sub.Positions)
			hpsi[j][i] = (kin + pot) * psi[j][i]
		}
	}
	det := psi[0][0]*psi[1][1] - psi[0][1]*psi[1][0]
	require.Greater(t, math.Abs(det), 1e-6, "reference states must be independent")
	e00 := (psi[1][1]*hpsi[0][0] - psi[0][1]*hpsi[1][0]) / det
	e11 := (psi[0][0]*hpsi[1][1] - psi[1][0]*hpsi[0][1]) / det

	require.NotNil(t, res.EnergyMatrix)
	assert.InDelta(t, e00, real(res.EnergyMatrix.At(0, 0)), 1e-10)
	assert.InDelta(t, e11, real(res.EnergyMatrix.At(1, 1)), 1e-10)
	assert.InDelta(t, e00+e11, res.Real(), 1e-10, "energy is the matrix trace")
	assert.Zero(t, imag(res.Energy))
}

func TestTwoStateForwardAgrees(t *testing.T) {
	ansatz, params := twoStateAnsatz()
	cfg := system.Make(testutil.HydrogenAtom(),
		[]float64{
			0.2, -0.3, 0.4, 0.1, 0.5, -0.6,
			-0.4, 0.6, 0.2, 0.5, -0.2, 0.9,
		},
		[]float64{1, -1, 1, -1})

	def, err := New(ansatz, []float64{1}, []int{1, 1}, Options{States: 2}, zerolog.Nop())
	require.NoError(t, err)
	fwd, err := New(ansatz, []float64{1}, []int{1, 1},
		Options{States: 2, LaplacianMethod: LaplacianForward}, zerolog.Nop())
	require.NoError(t, err)

	a, err := def.Evaluate(params, testRNG(), cfg)
	require.NoError(t, err)
	b, err := fwd.Evaluate(params, testRNG(), cfg)
	require.NoError(t, err)
	assert.InDelta(t, a.Real(), b.Real(), 1e-10)
}

func TestSeparatedStatesDecouple(t *testing.T) {
	// Two states centered 12 bohr apart, with each electron set sitting on
	// its own state. Cross overlaps are then vanishingly small, so the
	// energy matrix must come out diagonal with each entry equal to that
	// state's independent local energy.
	far := r3.Vec{Z: 12}
	ansatz := wavefn.GaussianStates{Centers: [][]r3.Vec{
		{{}, {}},
		{far, far},
	}}
	params := []float64{0.5, 0.6, 0.45, 0.55}
	positions := []float64{
		0.4, -0.2, 0.6, -0.5, 0.3, -0.7,
		0.3, 0.1, 12.4, -0.2, -0.3, 11.6,
	}

	le, err := New(ansatz, []float64{1}, []int{1, 1}, Options{States: 2}, zerolog.Nop())
	require.NoError(t, err)
	cfg := system.Make(testutil.HydrogenAtom(), positions, []float64{1, -1, 1, -1})

	res, err := le.Evaluate(params, testRNG(), cfg)
	require.NoError(t, err)
	require.NotNil(t, res.EnergyMatrix)

	var wantTrace float64
	for s := 0; s < 2; s++ {
		single, err := New(wavefn.GaussianProduct{Centers: ansatz.Centers[s]},
			[]float64{1}, []int{1, 1}, Options{}, zerolog.Nop())
		require.NoError(t, err)
		sub := system.Make(testutil.HydrogenAtom(), positions[6*s:6*s+6], []float64{1, -1})
		want, err := single.Evaluate(params[2*s:2*s+2], testRNG(), sub)
		require.NoError(t, err)
		assert.InDelta(t, want.Real(), real(res.EnergyMatrix.At(s, s)), 1e-10,
			"diagonal entry %d", s)
		wantTrace += want.Real()
	}
	assert.InDelta(t, 0, real(res.EnergyMatrix.At(0, 1)), 1e-10)
	assert.InDelta(t, 0, real(res.EnergyMatrix.At(1, 0)), 1e-10)
	assert.InDelta(t, wantTrace, res.Real(), 1e-10)
	assert.Zero(t, imag(res.Energy))
}

func TestIdenticalStatesAreUnstable(t *testing.T) {
	// Two copies of the same state make psi rank one; the state solve must
	// surface this as an instability rather than returning garbage.
	ansatz := wavefn.GaussianStates{Centers: [][]r3.Vec{
		{{}, {Z: 1.0}},
		{{}, {Z: 1.0}},
	}}
	params := []float64{0.5, 0.8, 0.5, 0.8}
	le, err := New(ansatz, []float64{1}, []int{1, 1}, Options{States: 2}, zerolog.Nop())
	require.NoError(t, err)

	cfg := system.Make(testutil.HydrogenAtom(),
		[]float64{
			0.2, -0.3, 0.4, 0.1, 0.5, -0.6,
			-0.4, 0.6, 0.2, 0.5, -0.2, 0.9,
		},
		[]float64{1, -1, 1, -1})

	_, err = le.Evaluate(params, testRNG(), cfg)
	require.Error(t, err)
	var instErr *InstabilityError
	assert.ErrorAs(t, err, &instErr)
}

func TestEvaluateWithPseudopotential(t *testing.T) {
	const ne = 4
	le, err := New(testutil.OriginGaussians(ne), []float64{6}, []int{2, 2},
		Options{PseudopotentialSymbols: []string{"C"}}, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, []float64{4}, le.EffectiveCharges())

	positions := []float64{
		0.5, 0, 0,
		0, 0.8, 0,
		0, 0, 1.1,
		0.4, 0.4, 0.4,
	}
	cfg := system.Make(testutil.CarbonAtom(), positions, []float64{1, 1, -1, -1})

	// With zero exponents psi is identically one: no kinetic energy and
	// unit quadrature ratios, so every term has a closed form.
	params := make([]float64, ne)
	res, err := le.Evaluate(params, testRNG(), cfg)
	require.NoError(t, err)

	var want float64
	for i := 0; i < ne; i++ {
		for j := i + 1; j < ne; j++ {
			want += 1 / r3.Norm(r3.Sub(cfg.Electron(i), cfg.Electron(j)))
		}
	}
	for i := 0; i < ne; i++ {
		r := r3.Norm(cfg.Electron(i))
		r2 := r * r
		want -= 4 / r
		want += 4/r*math.Exp(-14.43502*r2) +
			57.740086*r*math.Exp(-8.398893*r2) -
			25.819559*math.Exp(-7.381886*r2)
		want += 52.133451 * math.Exp(-7.760797*r2)
	}

	assert.InDelta(t, want, res.Real(), 1e-9)
	assert.Zero(t, imag(res.Energy))
}

func TestPseudopotentialSymbolsWithoutMatch(t *testing.T) {
	// Requesting a core replacement for an element not in the molecule
	// must leave the estimator in all-electron mode.
	le, _, cfg := hydrogenAnionWithSymbols(t, []string{"C"})
	res, err := le.Evaluate([]float64{0.5, 0.5}, testRNG(), cfg)
	require.NoError(t, err)
	assert.InDelta(t, anionReference(cfg), res.Real(), 1e-12)
	assert.Equal(t, []float64{1}, le.EffectiveCharges())
}

func hydrogenAnionWithSymbols(t *testing.T, symbols []string) (*LocalEnergy, []float64, system.Configuration) {
	t.Helper()
	le, err := New(testutil.OriginGaussians(2), []float64{1}, []int{1, 1},
		Options{PseudopotentialSymbols: symbols}, zerolog.Nop())
	require.NoError(t, err)
	cfg := system.Make(testutil.HydrogenAtom(),
		[]float64{0.4, -0.2, 0.6, -0.5, 0.3, -0.7},
		[]float64{1, -1})
	return le, []float64{0.5, 0.5}, cfg
}

func TestEffectiveChargesAreCopied(t *testing.T) {
	le, err := New(testutil.OriginGaussians(4), []float64{6}, []int{2, 2},
		Options{PseudopotentialSymbols: []string{"C"}}, zerolog.Nop())
	require.NoError(t, err)

	eff := le.EffectiveCharges()
	eff[0] = 99
	assert.Equal(t, []float64{4}, le.EffectiveCharges())
}

func TestNewConfigErrors(t *testing.T) {
	scenarios := []struct {
		name   string
		run    func() error
		option string
	}{
		{
			name: "negative states",
			run: func() error {
				_, err := New(testutil.OriginGaussians(1), []float64{1}, []int{1}, Options{States: -1}, zerolog.Nop())
				return err
			},
			option: "states",
		},
		{
			name: "complex output with multiple states",
			run: func() error {
				_, err := New(testutil.OriginGaussians(1), []float64{1}, []int{1},
					Options{States: 2, ComplexOutput: true}, zerolog.Nop())
				return err
			},
			option: "complex_output",
		},
		{
			name: "complex output with forward laplacian states",
			run: func() error {
				ansatz := wavefn.GaussianStates{
					Centers: [][]r3.Vec{{{}}},
					Phases:  [][]float64{{0.1, 0.2, 0.3}},
				}
				_, err := New(ansatz, []float64{1}, []int{1},
					Options{States: 1, ComplexOutput: true, LaplacianMethod: LaplacianForward},
					zerolog.Nop())
				return err
			},
			option: "laplacian_method",
		},
		{
			name: "negative spin count",
			run: func() error {
				_, err := New(testutil.OriginGaussians(1), []float64{1}, []int{-1, 2}, Options{}, zerolog.Nop())
				return err
			},
			option: "nspins",
		},
		{
			name: "no electrons",
			run: func() error {
				_, err := New(testutil.OriginGaussians(1), []float64{1}, []int{0, 0}, Options{}, zerolog.Nop())
				return err
			},
			option: "nspins",
		},
		{
			name: "scalar ansatz with excited states",
			run: func() error {
				_, err := New(testutil.OriginGaussians(2), []float64{1}, []int{1, 1}, Options{States: 2}, zerolog.Nop())
				return err
			},
			option: "states",
		},
		{
			name: "unknown pseudopotential family",
			run: func() error {
				_, err := New(testutil.OriginGaussians(2), []float64{6}, []int{1, 1},
					Options{PseudopotentialSymbols: []string{"C"}, PseudopotentialType: "bfd"}, zerolog.Nop())
				return err
			},
			option: "pseudopotential_symbols",
		},
	}
	for _, sc := range scenarios {
		t.Run(sc.name, func(t *testing.T) {
			err := sc.run()
			require.Error(t, err)
			var cfgErr *ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, sc.option, cfgErr.Option)
		})
	}
}

func TestEvaluateInputErrors(t *testing.T) {
	le, params, cfg := hydrogenAnion(t, Options{})

	scenarios := []struct {
		name string
		cfg  system.Configuration
	}{
		{
			name: "inconsistent positions and spins",
			cfg: system.Configuration{
				Positions: []float64{1, 2, 3, 4, 5},
				Spins:     []float64{1, -1},
				Atoms:     cfg.Atoms,
				Charges:   cfg.Charges,
			},
		},
		{
			name: "wrong electron count",
			cfg: system.Configuration{
				Positions: make([]float64, 9),
				Spins:     []float64{1, 1, -1},
				Atoms:     cfg.Atoms,
				Charges:   cfg.Charges,
			},
		},
		{
			name: "wrong atom count",
			cfg: system.Configuration{
				Positions: cfg.Positions,
				Spins:     cfg.Spins,
				Atoms:     []r3.Vec{{}, {Z: 2}},
				Charges:   []float64{1, 1},
			},
		},
	}
	for _, sc := range scenarios {
		t.Run(sc.name, func(t *testing.T) {
			_, err := le.Evaluate(params, testRNG(), sc.cfg)
			require.Error(t, err)
			var inputErr *InputError
			assert.ErrorAs(t, err, &inputErr)
		})
	}
}

func TestComplexEvaluate(t *testing.T) {
	ansatz := testutil.OriginGaussians(2)
	ansatz.PhaseK = []float64{0.2, -0.4, 0.6, -0.1, 0.3, 0.5}
	le, err := New(ansatz, []float64{1}, []int{1, 1}, Options{ComplexOutput: true}, zerolog.Nop())
	require.NoError(t, err)

	params := []float64{0.5, 0.5}
	cfg := system.Make(testutil.HydrogenAtom(),
		[]float64{0.4, -0.2, 0.6, -0.5, 0.3, -0.7},
		[]float64{1, -1})

	res, err := le.Evaluate(params, testRNG(), cfg)
	require.NoError(t, err)

	// The plane-wave factor adds k^2/2 per electron to the real part and
	// the 2a(k.r) cross term supplies the imaginary part.
	var kinetic complex128
	for i := 0; i < 2; i++ {
		d := cfg.Electron(i)
		k := r3.Vec{X: ansatz.PhaseK[3*i], Y: ansatz.PhaseK[3*i+1], Z: ansatz.PhaseK[3*i+2]}
		kinetic += complex(3*0.5-2*0.25*r3.Norm2(d)+0.5*r3.Norm2(k), 2*0.5*r3.Dot(k, d))
	}
	e1, e2 := cfg.Electron(0), cfg.Electron(1)
	pot := 1/r3.Norm(r3.Sub(e1, e2)) - 1/r3.Norm(e1) - 1/r3.Norm(e2)

	assert.InDelta(t, real(kinetic)+pot, res.Real(), 1e-12)
	assert.InDelta(t, imag(kinetic), imag(res.Energy), 1e-12)
}

func TestComplexSingleStatePhaseCancels(t *testing.T) {
	// A single complex state solves a 1x1 system, E = H psi / psi by
	// complex division, so the plane-wave phase of psi drops out of the
	// energy entirely and the result matches the unphased state.
	centers := [][]r3.Vec{{{}, {}}}
	phased := wavefn.GaussianStates{
		Centers: centers,
		Phases:  [][]float64{{0.2, -0.4, 0.6, -0.1, 0.3, 0.5}},
	}
	plain := wavefn.GaussianStates{Centers: centers}

	params := []float64{0.5, 0.5}
	cfg := system.Make(testutil.HydrogenAtom(),
		[]float64{0.4, -0.2, 0.6, -0.5, 0.3, -0.7},
		[]float64{1, -1})

	le, err := New(phased, []float64{1}, []int{1, 1},
		Options{States: 1, ComplexOutput: true}, zerolog.Nop())
	require.NoError(t, err)
	ref, err := New(plain, []float64{1}, []int{1, 1}, Options{States: 1}, zerolog.Nop())
	require.NoError(t, err)

	got, err := le.Evaluate(params, testRNG(), cfg)
	require.NoError(t, err)
	want, err := ref.Evaluate(params, testRNG(), cfg)
	require.NoError(t, err)

	assert.InDelta(t, want.Real(), got.Real(), 1e-12)
	assert.InDelta(t, 0, imag(got.Energy), 1e-12)
	require.NotNil(t, got.EnergyMatrix)
	assert.Equal(t, got.Energy, got.EnergyMatrix.At(0, 0))
}
