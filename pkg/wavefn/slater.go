package wavefn

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/varqc/varmc/pkg/scf"
	"github.com/varqc/varmc/pkg/system"
)

// Slater is the determinant ansatz over a mean-field solution. Each state is
// a single Slater determinant, spin-factorized as
//
//	psi(r) = det A_up(r) * det A_down(r)
//
// with A built from the occupied molecular orbitals of the scf.Solution;
// excited states swap occupied orbitals per the solution's excitations. The
// orbitals are fixed, so the variational parameter vector is ignored.
type Slater struct {
	sol  scf.Solution
	cols [][2][]scf.SpinOrbital
}

var (
	_ Differentiable = (*Slater)(nil)
	_ MultiEvaluator = (*Slater)(nil)
)

// NewSlater builds the determinant ansatz for a mean-field solution,
// resolving the orbital selection of every state up front.
func NewSlater(sol scf.Solution) (*Slater, error) {
	if sol.NSpins[0]+sol.NSpins[1] == 0 {
		return nil, fmt.Errorf("slater: solution has no electrons")
	}
	cols, err := sol.OrbitalColumns()
	if err != nil {
		return nil, err
	}
	return &Slater{sol: sol, cols: cols}, nil
}

// NumStates returns the number of determinants: the ground state plus one per
// excitation of the underlying solution.
func (s *Slater) NumStates() int { return len(s.cols) }

func (s *Slater) check(cfg system.Configuration) error {
	ne := s.sol.NSpins[0] + s.sol.NSpins[1]
	if len(cfg.Positions) != 3*ne {
		return fmt.Errorf("slater: %d coordinates for %d electrons", len(cfg.Positions), ne)
	}
	if len(cfg.Spins) != ne {
		return fmt.Errorf("slater: %d spin labels for %d electrons", len(cfg.Spins), ne)
	}
	up, down := system.CountSpins(cfg.Spins)
	if up != s.sol.NSpins[0] || down != s.sol.NSpins[1] {
		return fmt.Errorf("slater: configuration has %d up and %d down electrons, want %d and %d",
			up, down, s.sol.NSpins[0], s.sol.NSpins[1])
	}
	return nil
}

// Eval returns the sign and log|psi| of the ground determinant.
func (s *Slater) Eval(params []float64, cfg system.Configuration) (float64, float64, error) {
	signs, logs, err := s.EvalStates(params, cfg)
	if err != nil {
		return 0, 0, err
	}
	return signs[0], logs[0], nil
}

// EvalStates returns each determinant's sign and log|psi| at one electron set.
func (s *Slater) EvalStates(params []float64, cfg system.Configuration) ([]float64, []float64, error) {
	if err := s.check(cfg); err != nil {
		return nil, nil, err
	}
	mats, err := s.sol.OrbitalMatrices(cfg.Positions)
	if err != nil {
		return nil, nil, err
	}
	signs := make([]float64, len(mats))
	logs := make([]float64, len(mats))
	for st, pair := range mats {
		signs[st], logs[st] = detValue(pair)
	}
	return signs, logs, nil
}

// detValue combines the spin-channel determinants of one state. Channels
// without electrons are nil and contribute a unit factor.
func detValue(pair [2]*mat.Dense) (sign, logAbs float64) {
	sign = 1
	for _, m := range pair {
		if m == nil {
			continue
		}
		ld, s := mat.LogDet(m)
		logAbs += ld
		sign *= s
	}
	return sign, logAbs
}

// LinearizeLogAbs linearizes grad log|psi| of the ground determinant. The
// orbital matrices are factorized once here; every HVP application then costs
// O(n^2) per spin channel.
func (s *Slater) LinearizeLogAbs(params []float64, cfg system.Configuration) (*Linearization, error) {
	if err := s.check(cfg); err != nil {
		return nil, err
	}
	mods, err := s.sol.EvalMODerivatives(cfg.Positions)
	if err != nil {
		return nil, err
	}
	lin, err := s.linearizeState(mods, 0)
	if err != nil {
		return nil, err
	}
	return &Linearization{Grad: lin.gradient(), HVP: lin.apply}, nil
}

// LinearizeJacobian linearizes every determinant's grad log|psi| at one
// electron set, sharing a single orbital-derivative evaluation across states.
func (s *Slater) LinearizeJacobian(params []float64, cfg system.Configuration) (*JacobianLinearization, error) {
	if err := s.check(cfg); err != nil {
		return nil, err
	}
	mods, err := s.sol.EvalMODerivatives(cfg.Positions)
	if err != nil {
		return nil, err
	}
	states := s.NumStates()
	n := len(cfg.Positions)
	jac := mat.NewDense(states, n, nil)
	lins := make([]*stateLin, states)
	for st := 0; st < states; st++ {
		lin, err := s.linearizeState(mods, st)
		if err != nil {
			return nil, err
		}
		lins[st] = lin
		jac.SetRow(st, lin.gradient())
	}
	row := make([]float64, n)
	return &JacobianLinearization{
		Jac: jac,
		JVP: func(v []float64, dst *mat.Dense) error {
			for st, lin := range lins {
				if err := lin.apply(v, row); err != nil {
					return err
				}
				dst.SetRow(st, row)
			}
			return nil
		},
	}, nil
}

// stateLin is the linearization of one determinant's log-magnitude. The two
// spin channels are independent factors, so gradient and Hessian are block
// diagonal over the channels.
type stateLin struct {
	chans [2]*channelLin
	offs  [2]int
	size  int
}

func (s *Slater) linearizeState(mods [2]scf.MOValues, state int) (*stateLin, error) {
	na, nb := s.sol.NSpins[0], s.sol.NSpins[1]
	lin := &stateLin{offs: [2]int{0, 3 * na}, size: 3 * (na + nb)}
	var err error
	if lin.chans[0], err = buildChannelLin(mods, s.cols[state][0], 0); err != nil {
		return nil, err
	}
	if lin.chans[1], err = buildChannelLin(mods, s.cols[state][1], na); err != nil {
		return nil, err
	}
	return lin, nil
}

func (l *stateLin) gradient() []float64 {
	g := make([]float64, l.size)
	for c, ch := range l.chans {
		if ch == nil {
			continue
		}
		copy(g[l.offs[c]:], ch.grad)
	}
	return g
}

func (l *stateLin) apply(v, dst []float64) error {
	if len(v) != l.size || len(dst) != l.size {
		return fmt.Errorf("slater: vector length %d, want %d", len(v), l.size)
	}
	for i := range dst {
		dst[i] = 0
	}
	for c, ch := range l.chans {
		if ch == nil {
			continue
		}
		off := l.offs[c]
		ch.apply(v[off:off+3*ch.n], dst[off:off+3*ch.n])
	}
	return nil
}

// channelLin carries one spin channel's factorized derivative state. With
// A[i][j] the j-th selected orbital at the channel's i-th electron,
//
//	grad log|det A| over (electron j, direction d) = (D_d A^-1)[j][j]
//
// and the Hessian splits into a same-electron orbital-curvature part and a
// mixed inverse-update part, both expressible through B_d = D_d A^-1 and the
// contractions t[d][d'][j] = sum_k S_dd'[j][k] (A^-1)[k][j].
type channelLin struct {
	n    int
	grad []float64
	b    [3]*mat.Dense
	t    [3][3][]float64
}

func buildChannelLin(mods [2]scf.MOValues, cols []scf.SpinOrbital, rowBase int) (*channelLin, error) {
	n := len(cols)
	if n == 0 {
		return nil, nil
	}
	a := mat.NewDense(n, n, nil)
	var d [3]*mat.Dense
	var sd [3][3]*mat.Dense
	for p := 0; p < 3; p++ {
		d[p] = mat.NewDense(n, n, nil)
		for q := p; q < 3; q++ {
			m := mat.NewDense(n, n, nil)
			sd[p][q] = m
			sd[q][p] = m
		}
	}
	for j, src := range cols {
		mv := mods[src.Spin]
		for i := 0; i < n; i++ {
			row := rowBase + i
			a.Set(i, j, mv.Values.At(row, src.Index))
			for p := 0; p < 3; p++ {
				d[p].Set(i, j, mv.Grad[p].At(row, src.Index))
				for q := p; q < 3; q++ {
					sd[p][q].Set(i, j, mv.Hess[p][q].At(row, src.Index))
				}
			}
		}
	}

	var lu mat.LU
	lu.Factorize(a)
	var ainv mat.Dense
	if err := lu.SolveTo(&ainv, false, identity(n)); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return nil, fmt.Errorf("slater: invert orbital matrix: %w", err)
		}
		if math.IsInf(float64(cond), 1) {
			return nil, fmt.Errorf("slater: orbital matrix is singular")
		}
	}

	ch := &channelLin{n: n, grad: make([]float64, 3*n)}
	for p := 0; p < 3; p++ {
		var b mat.Dense
		b.Mul(d[p], &ainv)
		ch.b[p] = &b
		for j := 0; j < n; j++ {
			ch.grad[3*j+p] = b.At(j, j)
		}
	}
	for p := 0; p < 3; p++ {
		for q := p; q < 3; q++ {
			t := make([]float64, n)
			for j := 0; j < n; j++ {
				var sum float64
				for k := 0; k < n; k++ {
					sum += sd[p][q].At(j, k) * ainv.At(k, j)
				}
				t[j] = sum
			}
			ch.t[p][q] = t
			ch.t[q][p] = t
		}
	}
	return ch, nil
}

// apply writes the channel's Hessian-vector product into dst. Both slices are
// channel-local with 3 entries per electron. The mixed term contracts v with
// the B matrices once, so the whole product is O(n^2).
func (c *channelLin) apply(v, dst []float64) {
	n := c.n
	// mix[j'*n+j] = sum_d v[3j'+d] * B_d[j'][j]
	mix := make([]float64, n*n)
	for jp := 0; jp < n; jp++ {
		for j := 0; j < n; j++ {
			var sum float64
			for p := 0; p < 3; p++ {
				sum += v[3*jp+p] * c.b[p].At(jp, j)
			}
			mix[jp*n+j] = sum
		}
	}
	for j := 0; j < n; j++ {
		for p := 0; p < 3; p++ {
			var sum float64
			for q := 0; q < 3; q++ {
				sum += c.t[p][q][j] * v[3*j+q]
			}
			for jp := 0; jp < n; jp++ {
				sum -= c.b[p].At(j, jp) * mix[jp*n+j]
			}
			dst[3*j+p] = sum
		}
	}
}

func identity(n int) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1)
	}
	return m
}
