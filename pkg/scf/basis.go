package scf

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// BasisFunction is a contraction of s-type primitive Gaussians centered on a
// nucleus. Each primitive enters with the standard L2 normalization
// (2a/pi)^(3/4).
type BasisFunction struct {
	Center    r3.Vec
	Exponents []float64
	Coeffs    []float64
}

// Basis is the atomic orbital basis of a calculation.
type Basis []BasisFunction

func primitiveNorm(alpha float64) float64 {
	return math.Pow(2*alpha/math.Pi, 0.75)
}

// Value evaluates the basis function at pos.
func (f BasisFunction) Value(pos r3.Vec) float64 {
	r2 := r3.Norm2(r3.Sub(pos, f.Center))
	var v float64
	for k, a := range f.Exponents {
		v += f.Coeffs[k] * primitiveNorm(a) * math.Exp(-a*r2)
	}
	return v
}

// Derivatives evaluates the value, gradient and second derivatives of the
// basis function at pos.
func (f BasisFunction) Derivatives(pos r3.Vec) (val float64, grad r3.Vec, hess [3][3]float64) {
	d := r3.Sub(pos, f.Center)
	r2 := r3.Norm2(d)
	dd := [3]float64{d.X, d.Y, d.Z}
	for k, a := range f.Exponents {
		g := f.Coeffs[k] * primitiveNorm(a) * math.Exp(-a*r2)
		val += g
		grad = r3.Add(grad, r3.Scale(-2*a*g, d))
		for p := 0; p < 3; p++ {
			for q := 0; q < 3; q++ {
				h := 4 * a * a * g * dd[p] * dd[q]
				if p == q {
					h -= 2 * a * g
				}
				hess[p][q] += h
			}
		}
	}
	return val, grad, hess
}

func (b Basis) check() error {
	if len(b) == 0 {
		return fmt.Errorf("scf: empty basis")
	}
	for i, f := range b {
		if len(f.Exponents) == 0 || len(f.Exponents) != len(f.Coeffs) {
			return fmt.Errorf("scf: basis function %d has %d exponents and %d coefficients",
				i, len(f.Exponents), len(f.Coeffs))
		}
		for _, a := range f.Exponents {
			if a <= 0 {
				return fmt.Errorf("scf: basis function %d has non-positive exponent %g", i, a)
			}
		}
	}
	return nil
}

// aoValues holds atomic orbital values at a set of points, one row per point
// and one column per basis function. The derivative matrices are nil unless
// requested.
type aoValues struct {
	vals *mat.Dense
	grad [3]*mat.Dense
	hess [3][3]*mat.Dense
	lap  *mat.Dense
}

// aoMatrices evaluates every basis function at every point of the flattened
// coordinate slice.
func (b Basis) aoMatrices(positions []float64, deriv bool) (aoValues, error) {
	if err := b.check(); err != nil {
		return aoValues{}, err
	}
	if len(positions) == 0 || len(positions)%3 != 0 {
		return aoValues{}, fmt.Errorf("scf: positions length %d is not a non-empty multiple of 3", len(positions))
	}
	n := len(positions) / 3

	ao := aoValues{vals: mat.NewDense(n, len(b), nil)}
	if deriv {
		for d := range ao.grad {
			ao.grad[d] = mat.NewDense(n, len(b), nil)
		}
		for p := 0; p < 3; p++ {
			for q := p; q < 3; q++ {
				m := mat.NewDense(n, len(b), nil)
				ao.hess[p][q] = m
				ao.hess[q][p] = m
			}
		}
		ao.lap = mat.NewDense(n, len(b), nil)
	}

	for i := 0; i < n; i++ {
		pos := r3.Vec{X: positions[3*i], Y: positions[3*i+1], Z: positions[3*i+2]}
		for p, f := range b {
			if !deriv {
				ao.vals.Set(i, p, f.Value(pos))
				continue
			}
			v, g, h := f.Derivatives(pos)
			ao.vals.Set(i, p, v)
			ao.grad[0].Set(i, p, g.X)
			ao.grad[1].Set(i, p, g.Y)
			ao.grad[2].Set(i, p, g.Z)
			for a := 0; a < 3; a++ {
				for c := a; c < 3; c++ {
					ao.hess[a][c].Set(i, p, h[a][c])
				}
			}
			ao.lap.Set(i, p, h[0][0]+h[1][1]+h[2][2])
		}
	}
	return ao, nil
}
