package system

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Features holds the geometric quantities every Hamiltonian term is built
// from: displacements and distances between each electron and each nucleus,
// and between electron pairs.
type Features struct {
	// AE[i][a] is the displacement from atom a to electron i.
	AE [][]r3.Vec
	// EE[i][j] is the displacement from electron i to electron j.
	EE [][]r3.Vec
	// RAE is the (nelectrons x natoms) electron-nuclear distance matrix.
	RAE *mat.Dense
	// REE is the (nelectrons x nelectrons) electron-electron distance
	// matrix. The diagonal is zero.
	REE *mat.Dense
}

// BuildFeatures computes the displacement and distance tensors for flattened
// electron positions against a fixed set of atom positions.
func BuildFeatures(positions []float64, atoms []r3.Vec) (Features, error) {
	if len(positions)%3 != 0 {
		return Features{}, fmt.Errorf("positions length %d is not a multiple of 3", len(positions))
	}
	ne := len(positions) / 3
	na := len(atoms)
	if ne == 0 || na == 0 {
		return Features{}, fmt.Errorf("need at least one electron and one atom, have %d and %d", ne, na)
	}

	electrons := make([]r3.Vec, ne)
	for i := range electrons {
		electrons[i] = r3.Vec{
			X: positions[3*i],
			Y: positions[3*i+1],
			Z: positions[3*i+2],
		}
	}

	ae := make([][]r3.Vec, ne)
	rae := mat.NewDense(ne, na, nil)
	for i, e := range electrons {
		ae[i] = make([]r3.Vec, na)
		for a, pos := range atoms {
			d := r3.Sub(e, pos)
			ae[i][a] = d
			rae.Set(i, a, r3.Norm(d))
		}
	}

	ee := make([][]r3.Vec, ne)
	ree := mat.NewDense(ne, ne, nil)
	for i := range electrons {
		ee[i] = make([]r3.Vec, ne)
		for j := range electrons {
			if i == j {
				continue
			}
			d := r3.Sub(electrons[j], electrons[i])
			ee[i][j] = d
			ree.Set(i, j, r3.Norm(d))
		}
	}

	return Features{AE: ae, EE: ee, RAE: rae, REE: ree}, nil
}
