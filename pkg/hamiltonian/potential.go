package hamiltonian

import (
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/varqc/varmc/pkg/system"
)

// ElectronElectron returns the electron-electron Coulomb repulsion
// sum_{i<j} 1/r_ij over the strict upper triangle of the distance matrix.
// A single electron contributes zero.
func ElectronElectron(rEE mat.Matrix) float64 {
	n, _ := rEE.Dims()
	var sum float64
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			sum += 1.0 / rEE.At(i, j)
		}
	}
	return sum
}

// ElectronNuclear returns the electron-nuclear Coulomb attraction
// -sum_{i,a} q_a / r_ia, with q the (possibly pseudopotential-adjusted)
// nuclear charges.
func ElectronNuclear(charges []float64, rAE mat.Matrix) float64 {
	n, _ := rAE.Dims()
	var sum float64
	for i := 0; i < n; i++ {
		for a, q := range charges {
			sum -= q / rAE.At(i, a)
		}
	}
	return sum
}

// NuclearNuclear returns the nuclear-nuclear Coulomb repulsion
// sum_{a<b} q_a*q_b / r_ab. A single atom contributes zero.
func NuclearNuclear(charges []float64, atoms []r3.Vec) float64 {
	var sum float64
	for a := range atoms {
		for b := a + 1; b < len(atoms); b++ {
			sum += charges[a] * charges[b] / r3.Norm(r3.Sub(atoms[a], atoms[b]))
		}
	}
	return sum
}

// PotentialEnergy returns the bare Coulomb potential energy of the
// configuration: electron-electron plus electron-nuclear plus
// nuclear-nuclear. Pseudopotential corrections are added separately by the
// orchestrator.
func PotentialEnergy(feat system.Features, atoms []r3.Vec, charges []float64) float64 {
	return ElectronElectron(feat.REE) +
		ElectronNuclear(charges, feat.RAE) +
		NuclearNuclear(charges, atoms)
}
