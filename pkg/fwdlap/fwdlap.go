// Package fwdlap propagates value, gradient and Laplacian through scalar
// arithmetic in a single forward pass.
//
// A Value carries f(x), the gradient df/dx over the input coordinates, and
// the Laplacian sum_i d2f/dx_i^2. Propagation needs only first and second
// derivatives of each primitive:
//
//	g(f)  one input:   grad = g'(f)*grad_f
//	                   lap  = g'(f)*lap_f + g''(f)*|grad_f|^2
//	a*b   two inputs:  grad = b*grad_a + a*grad_b
//	                   lap  = b*lap_a + a*lap_b + 2*grad_a.grad_b
//
// Gradients start out sparse: an input coordinate depends on exactly one
// coordinate, and intermediates near the leaves of an electronic-structure
// expression touch only a few coordinates (one or two electrons). Binary
// operations merge supports; a merged support wider than the Space's
// sparsity threshold switches the value to a dense gradient.
package fwdlap

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Space fixes the input dimension and sparsity threshold for one forward
// pass. Values from different Spaces must not be mixed.
type Space struct {
	n   int
	thr int
}

// NewSpace returns a Space over n input coordinates. Gradients whose support
// exceeds sparsityThreshold coordinates are stored densely; a threshold <= 0
// disables sparsity tracking entirely.
func NewSpace(n, sparsityThreshold int) *Space {
	return &Space{n: n, thr: sparsityThreshold}
}

// Dim returns the input dimension of the space.
func (s *Space) Dim() int { return s.n }

// Value is a scalar with its first derivatives and Laplacian with respect to
// the Space inputs. The zero Value is the constant 0.
type Value struct {
	x   float64
	lap float64
	// idx is the sorted gradient support when sparse. A nil idx with a
	// non-nil g means the gradient is dense over all n coordinates; a nil
	// g means the gradient is identically zero.
	idx []int
	g   []float64
}

// Val returns the scalar value.
func (v Value) Val() float64 { return v.x }

// Lap returns the Laplacian.
func (v Value) Lap() float64 { return v.lap }

// Gradient writes the dense gradient of v into dst, allocating when dst is
// nil, and returns it.
func (s *Space) Gradient(v Value, dst []float64) []float64 {
	if dst == nil {
		dst = make([]float64, s.n)
	} else {
		for i := range dst {
			dst[i] = 0
		}
	}
	switch {
	case v.g == nil:
	case v.idx == nil:
		copy(dst, v.g)
	default:
		for k, i := range v.idx {
			dst[i] = v.g[k]
		}
	}
	return dst
}

// Inputs seeds one Value per input coordinate.
func (s *Space) Inputs(x []float64) []Value {
	if len(x) != s.n {
		panic(fmt.Sprintf("fwdlap: %d inputs for space of dimension %d", len(x), s.n))
	}
	vs := make([]Value, len(x))
	for i, xi := range x {
		if s.thr > 0 {
			vs[i] = Value{x: xi, idx: []int{i}, g: []float64{1}}
		} else {
			g := make([]float64, s.n)
			g[i] = 1
			vs[i] = Value{x: xi, g: g}
		}
	}
	return vs
}

// Const returns a Value with zero derivatives.
func (s *Space) Const(c float64) Value {
	return Value{x: c}
}

func (v Value) gradNormSq() float64 {
	var sum float64
	for _, g := range v.g {
		sum += g * g
	}
	return sum
}

// gradDot returns the inner product of the two gradients over their common
// support.
func gradDot(a, b Value) float64 {
	switch {
	case a.g == nil || b.g == nil:
		return 0
	case a.idx == nil && b.idx == nil:
		return floats.Dot(a.g, b.g)
	case a.idx == nil:
		var sum float64
		for k, i := range b.idx {
			sum += b.g[k] * a.g[i]
		}
		return sum
	case b.idx == nil:
		var sum float64
		for k, i := range a.idx {
			sum += a.g[k] * b.g[i]
		}
		return sum
	default:
		var sum float64
		ka, kb := 0, 0
		for ka < len(a.idx) && kb < len(b.idx) {
			switch {
			case a.idx[ka] == b.idx[kb]:
				sum += a.g[ka] * b.g[kb]
				ka++
				kb++
			case a.idx[ka] < b.idx[kb]:
				ka++
			default:
				kb++
			}
		}
		return sum
	}
}

// combine builds the gradient ca*grad_a + cb*grad_b, merging supports and
// densifying past the threshold.
func (s *Space) combine(ca float64, a Value, cb float64, b Value) (idx []int, g []float64) {
	if a.g == nil && b.g == nil {
		return nil, nil
	}
	if a.g == nil {
		return scaledCopy(cb, b)
	}
	if b.g == nil {
		return scaledCopy(ca, a)
	}
	if a.idx == nil || b.idx == nil {
		// At least one side is dense.
		g = make([]float64, s.n)
		accumulate(g, ca, a)
		accumulate(g, cb, b)
		return nil, g
	}
	merged := mergeSupports(a.idx, b.idx)
	if len(merged) > s.thr {
		g = make([]float64, s.n)
		accumulate(g, ca, a)
		accumulate(g, cb, b)
		return nil, g
	}
	g = make([]float64, len(merged))
	pos := make(map[int]int, len(merged))
	for k, i := range merged {
		pos[i] = k
	}
	for k, i := range a.idx {
		g[pos[i]] += ca * a.g[k]
	}
	for k, i := range b.idx {
		g[pos[i]] += cb * b.g[k]
	}
	return merged, g
}

func scaledCopy(c float64, v Value) ([]int, []float64) {
	g := make([]float64, len(v.g))
	for i, gv := range v.g {
		g[i] = c * gv
	}
	return v.idx, g
}

// accumulate adds c*grad_v into the dense buffer.
func accumulate(dst []float64, c float64, v Value) {
	if v.idx == nil {
		floats.AddScaled(dst, c, v.g)
		return
	}
	for k, i := range v.idx {
		dst[i] += c * v.g[k]
	}
}

func mergeSupports(a, b []int) []int {
	merged := make([]int, 0, len(a)+len(b))
	ka, kb := 0, 0
	for ka < len(a) && kb < len(b) {
		switch {
		case a[ka] == b[kb]:
			merged = append(merged, a[ka])
			ka++
			kb++
		case a[ka] < b[kb]:
			merged = append(merged, a[ka])
			ka++
		default:
			merged = append(merged, b[kb])
			kb++
		}
	}
	merged = append(merged, a[ka:]...)
	merged = append(merged, b[kb:]...)
	return merged
}

// chain applies a one-input primitive with value fx and derivatives d1, d2
// at a.x.
func (s *Space) chain(a Value, fx, d1, d2 float64) Value {
	out := Value{x: fx, lap: d1*a.lap + d2*a.gradNormSq()}
	if a.g != nil {
		out.idx, out.g = scaledCopy(d1, a)
	}
	return out
}

// Add returns a + b.
func (s *Space) Add(a, b Value) Value {
	out := Value{x: a.x + b.x, lap: a.lap + b.lap}
	out.idx, out.g = s.combine(1, a, 1, b)
	return out
}

// Sub returns a - b.
func (s *Space) Sub(a, b Value) Value {
	out := Value{x: a.x - b.x, lap: a.lap - b.lap}
	out.idx, out.g = s.combine(1, a, -1, b)
	return out
}

// Mul returns a * b.
func (s *Space) Mul(a, b Value) Value {
	out := Value{
		x:   a.x * b.x,
		lap: b.x*a.lap + a.x*b.lap + 2*gradDot(a, b),
	}
	out.idx, out.g = s.combine(b.x, a, a.x, b)
	return out
}

// Div returns a / b.
func (s *Space) Div(a, b Value) Value {
	return s.Mul(a, s.Inv(b))
}

// Inv returns 1 / a.
func (s *Space) Inv(a Value) Value {
	inv := 1 / a.x
	return s.chain(a, inv, -inv*inv, 2*inv*inv*inv)
}

// Neg returns -a.
func (s *Space) Neg(a Value) Value {
	return s.Scale(-1, a)
}

// Scale returns c * a.
func (s *Space) Scale(c float64, a Value) Value {
	out := Value{x: c * a.x, lap: c * a.lap}
	if a.g != nil {
		out.idx, out.g = scaledCopy(c, a)
	}
	return out
}

// AddConst returns a + c.
func (s *Space) AddConst(c float64, a Value) Value {
	out := a
	out.x += c
	return out
}

// Exp returns e**a.
func (s *Space) Exp(a Value) Value {
	e := math.Exp(a.x)
	return s.chain(a, e, e, e)
}

// Log returns the natural logarithm of a.
func (s *Space) Log(a Value) Value {
	inv := 1 / a.x
	return s.chain(a, math.Log(a.x), inv, -inv*inv)
}

// Sqrt returns the square root of a.
func (s *Space) Sqrt(a Value) Value {
	r := math.Sqrt(a.x)
	d1 := 0.5 / r
	return s.chain(a, r, d1, -0.5*d1/a.x)
}

// PowConst returns a**p for constant p, on the domain where math.Pow is
// smooth in its first argument.
func (s *Space) PowConst(a Value, p float64) Value {
	return s.chain(a,
		math.Pow(a.x, p),
		p*math.Pow(a.x, p-1),
		p*(p-1)*math.Pow(a.x, p-2))
}

// Sin returns sin(a).
func (s *Space) Sin(a Value) Value {
	sin, cos := math.Sincos(a.x)
	return s.chain(a, sin, cos, -sin)
}

// Cos returns cos(a).
func (s *Space) Cos(a Value) Value {
	sin, cos := math.Sincos(a.x)
	return s.chain(a, cos, -sin, -cos)
}

// Sum returns the sum of all values.
func (s *Space) Sum(vs ...Value) Value {
	var out Value
	for _, v := range vs {
		out = s.Add(out, v)
	}
	return out
}
