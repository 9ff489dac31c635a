// Package testutil holds small closed-form fixtures shared by the evaluation
// packages' tests. Everything here has an analytically known energy, so
// tests can assert against exact values instead of golden files.
package testutil

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/varqc/varmc/pkg/system"
	"github.com/varqc/varmc/pkg/units"
	"github.com/varqc/varmc/pkg/wavefn"
)

// HydrogenAtom is a single proton at the origin.
func HydrogenAtom() []system.Atom {
	return []system.Atom{{Symbol: "H", Coords: r3.Vec{}, Charge: 1}}
}

// CarbonAtom is a single carbon nucleus at the origin.
func CarbonAtom() []system.Atom {
	return []system.Atom{{Symbol: "C", Coords: r3.Vec{}, Charge: 6}}
}

// Dihydrogen is an H2 molecule at the experimental bond length of
// 0.741 Angstrom, aligned with the z axis.
func Dihydrogen() []system.Atom {
	bond := units.AngstromToBohr(0.741)
	return []system.Atom{
		{Symbol: "H", Coords: r3.Vec{}, Charge: 1},
		{Symbol: "H", Coords: r3.Vec{Z: bond}, Charge: 1},
	}
}

// OriginGaussians is a product-Gaussian ansatz with every center at the
// origin, one per electron.
func OriginGaussians(nelectrons int) wavefn.GaussianProduct {
	return wavefn.GaussianProduct{Centers: make([]r3.Vec, nelectrons)}
}

// GaussianKinetic is the closed-form kinetic energy of a product of
// isotropic Gaussians: per electron 3a - 2a^2 |r-c|^2 for exponent a.
func GaussianKinetic(exponents []float64, centers []r3.Vec, positions []float64) float64 {
	var sum float64
	for i, a := range exponents {
		d := r3.Vec{
			X: positions[3*i] - centers[i].X,
			Y: positions[3*i+1] - centers[i].Y,
			Z: positions[3*i+2] - centers[i].Z,
		}
		sum += 3*a - 2*a*a*r3.Norm2(d)
	}
	return sum
}
