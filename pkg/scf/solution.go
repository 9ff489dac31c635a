// Package scf carries the outcome of a mean-field (Hartree-Fock)
// calculation into the Monte Carlo code: molecular orbital coefficients,
// occupancies and orbital energies as an immutable value object with a
// serialization and equality contract, orbital-matrix evaluation for ground
// and excited determinants, and enumeration of low-lying excitations.
//
// The solver itself is an external collaborator; this package only consumes
// its results.
package scf

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Solution is the result of a mean-field calculation, sufficient to evaluate
// the occupied molecular orbitals at arbitrary points. Treat it as an
// immutable value; methods never mutate the receiver.
type Solution struct {
	// Restricted marks both spin channels as sharing spatial orbitals.
	Restricted bool
	// NSpins is the number of spin-up and spin-down electrons.
	NSpins [2]int
	// Basis is the atomic orbital basis.
	Basis Basis
	// Coeff holds the molecular orbital coefficients per spin channel as
	// (nbasis x norb) matrices. Restricted solutions carry two equal
	// matrices.
	Coeff [2]*mat.Dense
	// Occupancy holds per-channel orbital occupancies.
	Occupancy [2][]float64
	// Energies holds per-channel orbital energies in Hartree.
	Energies [2][]float64
	// Excitations holds the excited determinants selected for this
	// solution, usually via WithExcitations.
	Excitations []Excitation
}

// NewSolution validates and assembles a Solution, copying every input. The
// coefficient matrices need one row per basis function; occupancies and
// energies must match the orbital count of their channel, and each channel's
// occupancy must sum to its electron count.
func NewSolution(basis Basis, coeff [2]*mat.Dense, occupancy, energies [2][]float64, nspins [2]int, restricted bool) (Solution, error) {
	if err := basis.check(); err != nil {
		return Solution{}, err
	}
	for spin := 0; spin < 2; spin++ {
		if coeff[spin] == nil {
			return Solution{}, fmt.Errorf("scf: missing coefficients for spin channel %d", spin)
		}
		rows, cols := coeff[spin].Dims()
		if rows != len(basis) {
			return Solution{}, fmt.Errorf("scf: spin %d coefficients have %d rows for %d basis functions",
				spin, rows, len(basis))
		}
		if len(occupancy[spin]) != cols || len(energies[spin]) != cols {
			return Solution{}, fmt.Errorf("scf: spin %d has %d orbitals but %d occupancies and %d energies",
				spin, cols, len(occupancy[spin]), len(energies[spin]))
		}
		nocc := 0
		for _, o := range occupancy[spin] {
			nocc += int(o)
		}
		if nocc != nspins[spin] {
			return Solution{}, fmt.Errorf("scf: spin %d occupancy sums to %d electrons, want %d",
				spin, nocc, nspins[spin])
		}
	}
	if restricted && !mat.Equal(coeff[0], coeff[1]) {
		return Solution{}, fmt.Errorf("scf: restricted solution with differing channel coefficients")
	}

	sol := Solution{
		Restricted: restricted,
		NSpins:     nspins,
		Basis:      make(Basis, len(basis)),
	}
	for i, f := range basis {
		sol.Basis[i] = BasisFunction{
			Center:    f.Center,
			Exponents: append([]float64(nil), f.Exponents...),
			Coeffs:    append([]float64(nil), f.Coeffs...),
		}
	}
	for spin := 0; spin < 2; spin++ {
		sol.Coeff[spin] = mat.DenseCopyOf(coeff[spin])
		sol.Occupancy[spin] = append([]float64(nil), occupancy[spin]...)
		sol.Energies[spin] = append([]float64(nil), energies[spin]...)
	}
	return sol, nil
}

// NumStates returns the number of determinants the solution describes: the
// ground state plus one per selected excitation.
func (s Solution) NumStates() int {
	return 1 + len(s.Excitations)
}

// WithExcitations returns a copy of the solution carrying the n lowest
// excitations, spin-preserving ones only when preserveSpin is set.
func (s Solution) WithExcitations(n int, preserveSpin bool) (Solution, error) {
	exc, err := LowestExcitations(s.Occupancy, s.Energies, n, preserveSpin)
	if err != nil {
		return Solution{}, err
	}
	s.Excitations = exc
	return s, nil
}

// EvalMOs evaluates the molecular orbitals of both spin channels at the
// flattened points. Each returned matrix is (npoints x norb); for restricted
// solutions the channels coincide.
func (s Solution) EvalMOs(positions []float64) ([2]*mat.Dense, error) {
	ao, err := s.Basis.aoMatrices(positions, false)
	if err != nil {
		return [2]*mat.Dense{}, err
	}
	var mos [2]*mat.Dense
	for spin := 0; spin < 2; spin++ {
		var m mat.Dense
		m.Mul(ao.vals, s.Coeff[spin])
		mos[spin] = &m
	}
	return mos, nil
}

// MOValues holds molecular orbital values and spatial derivatives at a set
// of points, one row per point and one column per orbital. Hess is symmetric
// in its two direction indices; Lap is its trace.
type MOValues struct {
	Values *mat.Dense
	Grad   [3]*mat.Dense
	Hess   [3][3]*mat.Dense
	Lap    *mat.Dense
}

// EvalMODerivatives evaluates the molecular orbitals of both spin channels
// together with their first and second spatial derivatives. Orbitals are
// linear in the basis, so every derivative matrix is the corresponding
// atomic-orbital derivative times the coefficients.
func (s Solution) EvalMODerivatives(positions []float64) ([2]MOValues, error) {
	ao, err := s.Basis.aoMatrices(positions, true)
	if err != nil {
		return [2]MOValues{}, err
	}
	var out [2]MOValues
	for spin := 0; spin < 2; spin++ {
		var vals, lap mat.Dense
		vals.Mul(ao.vals, s.Coeff[spin])
		lap.Mul(ao.lap, s.Coeff[spin])
		mv := MOValues{Values: &vals, Lap: &lap}
		for d := 0; d < 3; d++ {
			var g mat.Dense
			g.Mul(ao.grad[d], s.Coeff[spin])
			mv.Grad[d] = &g
		}
		for p := 0; p < 3; p++ {
			for q := p; q < 3; q++ {
				var h mat.Dense
				h.Mul(ao.hess[p][q], s.Coeff[spin])
				mv.Hess[p][q] = &h
				mv.Hess[q][p] = &h
			}
		}
		out[spin] = mv
	}
	return out, nil
}

// OrbitalMatrices evaluates the occupied-orbital matrices of the ground
// determinant and of every selected excitation at the flattened electron
// positions, spin-up electrons first. Each state yields an [alpha, beta]
// pair of square matrices sized by the spin counts; a channel without
// electrons yields nil.
func (s Solution) OrbitalMatrices(positions []float64) ([][2]*mat.Dense, error) {
	ne := s.NSpins[0] + s.NSpins[1]
	if len(positions) != 3*ne {
		return nil, fmt.Errorf("scf: got %d coordinates for %d electrons", len(positions), ne)
	}
	mos, err := s.EvalMOs(positions)
	if err != nil {
		return nil, err
	}
	return s.occupiedMatrices(mos)
}

// OrbitalColumns returns, per state, the orbital selection of each spin
// channel: entry j names the source channel and orbital whose values form
// column j of that channel's determinant matrix. State 0 is the ground
// determinant with the lowest orbitals of each channel; later states apply
// the swaps of the corresponding excitation.
func (s Solution) OrbitalColumns() ([][2][]SpinOrbital, error) {
	var ground [2][]SpinOrbital
	for spin := 0; spin < 2; spin++ {
		cols := make([]SpinOrbital, s.NSpins[spin])
		for i := range cols {
			cols[i] = SpinOrbital{Spin: spin, Index: i}
		}
		ground[spin] = cols
	}

	out := make([][2][]SpinOrbital, 0, s.NumStates())
	out = append(out, ground)
	for _, exc := range s.Excitations {
		var state [2][]SpinOrbital
		for spin := 0; spin < 2; spin++ {
			state[spin] = append([]SpinOrbital(nil), ground[spin]...)
		}
		for _, swap := range exc.Swaps {
			if swap.From.Spin < 0 || swap.From.Spin > 1 || swap.To.Spin < 0 || swap.To.Spin > 1 {
				return nil, fmt.Errorf("scf: invalid spin channel in excitation swap %d->%d",
					swap.From.Spin, swap.To.Spin)
			}
			if swap.From.Index < 0 || swap.From.Index >= s.NSpins[swap.From.Spin] {
				return nil, fmt.Errorf("scf: excitation replaces orbital %d of a channel with %d occupied",
					swap.From.Index, s.NSpins[swap.From.Spin])
			}
			_, norb := s.Coeff[swap.To.Spin].Dims()
			if swap.To.Index < 0 || swap.To.Index >= norb {
				return nil, fmt.Errorf("scf: excitation targets orbital %d of %d", swap.To.Index, norb)
			}
			state[swap.From.Spin][swap.From.Index] = swap.To
		}
		out = append(out, state)
	}
	return out, nil
}

func (s Solution) occupiedMatrices(mos [2]*mat.Dense) ([][2]*mat.Dense, error) {
	states, err := s.OrbitalColumns()
	if err != nil {
		return nil, err
	}
	na, nb := s.NSpins[0], s.NSpins[1]
	out := make([][2]*mat.Dense, 0, len(states))
	for _, state := range states {
		var pair [2]*mat.Dense
		if na > 0 {
			pair[0] = mat.NewDense(na, na, nil)
			fillChannel(pair[0], mos, state[0], 0)
		}
		if nb > 0 {
			pair[1] = mat.NewDense(nb, nb, nil)
			fillChannel(pair[1], mos, state[1], na)
		}
		out = append(out, pair)
	}
	return out, nil
}

// fillChannel writes one channel's determinant matrix: entry (i, j) is
// orbital cols[j] at the channel's i-th electron, whose rows in the molecular
// orbital matrices start at rowBase.
func fillChannel(dst *mat.Dense, mos [2]*mat.Dense, cols []SpinOrbital, rowBase int) {
	n, _ := dst.Dims()
	for j, src := range cols {
		for i := 0; i < n; i++ {
			dst.Set(i, j, mos[src.Spin].At(rowBase+i, src.Index))
		}
	}
}

// Equal reports exact equality of two solutions, including their selected
// excitations. Together with EncodeSolution and DecodeSolution it forms the
// round-trip contract: DecodeSolution(EncodeSolution(s)) equals s.
func (s Solution) Equal(other Solution) bool {
	if s.Restricted != other.Restricted || s.NSpins != other.NSpins {
		return false
	}
	if len(s.Basis) != len(other.Basis) || len(s.Excitations) != len(other.Excitations) {
		return false
	}
	for i := range s.Basis {
		if s.Basis[i].Center != other.Basis[i].Center ||
			!floats.Equal(s.Basis[i].Exponents, other.Basis[i].Exponents) ||
			!floats.Equal(s.Basis[i].Coeffs, other.Basis[i].Coeffs) {
			return false
		}
	}
	for spin := 0; spin < 2; spin++ {
		if !mat.Equal(s.Coeff[spin], other.Coeff[spin]) ||
			!floats.Equal(s.Occupancy[spin], other.Occupancy[spin]) ||
			!floats.Equal(s.Energies[spin], other.Energies[spin]) {
			return false
		}
	}
	for i, e := range s.Excitations {
		o := other.Excitations[i]
		if e.Gap != o.Gap || e.SpinChange != o.SpinChange || len(e.Swaps) != len(o.Swaps) {
			return false
		}
		for k := range e.Swaps {
			if e.Swaps[k] != o.Swaps[k] {
				return false
			}
		}
	}
	return true
}

type solutionWire struct {
	Restricted  bool          `msgpack:"restricted"`
	NSpins      [2]int        `msgpack:"nspins"`
	Basis       []basisWire   `msgpack:"basis"`
	Coeff       [2]matrixWire `msgpack:"coeff"`
	Occupancy   [2][]float64  `msgpack:"occupancy"`
	Energies    [2][]float64  `msgpack:"energies"`
	Excitations []Excitation  `msgpack:"excitations"`
}

type basisWire struct {
	Center    [3]float64 `msgpack:"center"`
	Exponents []float64  `msgpack:"exponents"`
	Coeffs    []float64  `msgpack:"coeffs"`
}

type matrixWire struct {
	Rows int       `msgpack:"rows"`
	Cols int       `msgpack:"cols"`
	Data []float64 `msgpack:"data"`
}

// EncodeSolution serializes a solution with msgpack for checkpointing.
func EncodeSolution(s Solution) ([]byte, error) {
	w := solutionWire{
		Restricted:  s.Restricted,
		NSpins:      s.NSpins,
		Basis:       make([]basisWire, len(s.Basis)),
		Occupancy:   s.Occupancy,
		Energies:    s.Energies,
		Excitations: s.Excitations,
	}
	for i, f := range s.Basis {
		w.Basis[i] = basisWire{
			Center:    [3]float64{f.Center.X, f.Center.Y, f.Center.Z},
			Exponents: f.Exponents,
			Coeffs:    f.Coeffs,
		}
	}
	for spin := 0; spin < 2; spin++ {
		if s.Coeff[spin] == nil {
			return nil, fmt.Errorf("scf: missing coefficients for spin channel %d", spin)
		}
		rows, cols := s.Coeff[spin].Dims()
		data := make([]float64, 0, rows*cols)
		for r := 0; r < rows; r++ {
			data = append(data, s.Coeff[spin].RawRowView(r)...)
		}
		w.Coeff[spin] = matrixWire{Rows: rows, Cols: cols, Data: data}
	}
	return msgpack.Marshal(w)
}

// DecodeSolution restores a solution serialized by EncodeSolution.
func DecodeSolution(data []byte) (Solution, error) {
	var w solutionWire
	if err := msgpack.Unmarshal(data, &w); err != nil {
		return Solution{}, fmt.Errorf("scf: decode solution: %w", err)
	}

	basis := make(Basis, len(w.Basis))
	for i, f := range w.Basis {
		basis[i] = BasisFunction{
			Center:    r3.Vec{X: f.Center[0], Y: f.Center[1], Z: f.Center[2]},
			Exponents: f.Exponents,
			Coeffs:    f.Coeffs,
		}
	}

	var coeff [2]*mat.Dense
	for spin := 0; spin < 2; spin++ {
		cw := w.Coeff[spin]
		if cw.Rows <= 0 || cw.Cols <= 0 || len(cw.Data) != cw.Rows*cw.Cols {
			return Solution{}, fmt.Errorf("scf: spin %d coefficient matrix %dx%d with %d values",
				spin, cw.Rows, cw.Cols, len(cw.Data))
		}
		coeff[spin] = mat.NewDense(cw.Rows, cw.Cols, cw.Data)
	}

	sol, err := NewSolution(basis, coeff, w.Occupancy, w.Energies, w.NSpins, w.Restricted)
	if err != nil {
		return Solution{}, err
	}
	sol.Excitations = w.Excitations
	return sol, nil
}
