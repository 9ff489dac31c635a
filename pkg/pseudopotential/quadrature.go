package pseudopotential

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/integrate/quad"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// sphereRule is a product quadrature over the unit sphere: Gauss-Legendre
// nodes in cos(theta) crossed with a uniform azimuthal ring. Weights are
// normalized to the uniform measure, so they sum to one and the rule
// integrates spherical harmonics exactly through degree 2*degree-1.
type sphereRule struct {
	dirs    []r3.Vec
	weights []float64
}

func newSphereRule(degree int) (sphereRule, error) {
	if degree < 1 {
		return sphereRule{}, fmt.Errorf("pseudopotential: quadrature degree %d out of range", degree)
	}

	cosTheta := make([]float64, degree)
	thetaW := make([]float64, degree)
	quad.Legendre{}.FixedLocations(cosTheta, thetaW, -1, 1)

	nphi := 2 * degree
	rule := sphereRule{
		dirs:    make([]r3.Vec, 0, degree*nphi),
		weights: make([]float64, 0, degree*nphi),
	}
	for k, ct := range cosTheta {
		st := math.Sqrt(1 - ct*ct)
		w := thetaW[k] / (2 * float64(nphi))
		for m := 0; m < nphi; m++ {
			phi := 2 * math.Pi * float64(m) / float64(nphi)
			rule.dirs = append(rule.dirs, r3.Vec{
				X: st * math.Cos(phi),
				Y: st * math.Sin(phi),
				Z: ct,
			})
			rule.weights = append(rule.weights, w)
		}
	}
	return rule, nil
}

// randomRotation draws a rotation uniformly over SO(3) using Shoemake's
// subgroup method.
func randomRotation(rng *rand.Rand) r3.Rotation {
	u1, u2, u3 := rng.Float64(), rng.Float64(), rng.Float64()
	s1, s2 := math.Sqrt(1-u1), math.Sqrt(u1)
	return r3.Rotation(quat.Number{
		Real: s2 * math.Cos(2*math.Pi*u3),
		Imag: s1 * math.Sin(2*math.Pi*u2),
		Jmag: s1 * math.Cos(2*math.Pi*u2),
		Kmag: s2 * math.Sin(2*math.Pi*u3),
	})
}
