// Package system describes the physical system a wavefunction is evaluated
// on: electron configurations sampled by a VMC walker and the fixed molecular
// geometry they move in. Positions are flattened xyz triples in Bohr with
// spin-up electrons ordered before spin-down.
package system

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"
)

// Atom is a nucleus with a fixed position.
type Atom struct {
	// Symbol is the element symbol, e.g. "H" or "C".
	Symbol string
	// Coords is the nuclear position in Bohr.
	Coords r3.Vec
	// Charge is the bare nuclear charge.
	Charge float64
}

// Configuration is a single Monte Carlo configuration together with the
// molecular geometry. It is borrowed read-only by every evaluator; nothing
// in this library mutates it.
type Configuration struct {
	// Positions holds flattened electron coordinates, 3 per electron.
	// In multi-state mode the electron sets of all states are concatenated.
	Positions []float64
	// Spins holds one label per electron, +1 for spin-up and -1 for
	// spin-down, in the same order as Positions.
	Spins []float64
	// Atoms holds the fixed nuclear positions.
	Atoms []r3.Vec
	// Charges holds the nuclear charges, aligned with Atoms.
	Charges []float64
}

// Make assembles a Configuration from a molecule and electron state.
func Make(molecule []Atom, positions, spins []float64) Configuration {
	atoms := make([]r3.Vec, len(molecule))
	charges := make([]float64, len(molecule))
	for i, a := range molecule {
		atoms[i] = a.Coords
		charges[i] = a.Charge
	}
	return Configuration{
		Positions: positions,
		Spins:     spins,
		Atoms:     atoms,
		Charges:   charges,
	}
}

// NumElectrons returns the electron count described by the spin labels.
func (c Configuration) NumElectrons() int {
	return len(c.Spins)
}

// Electron returns the position of electron i.
func (c Configuration) Electron(i int) r3.Vec {
	return r3.Vec{
		X: c.Positions[3*i],
		Y: c.Positions[3*i+1],
		Z: c.Positions[3*i+2],
	}
}

// Check validates internal consistency of the configuration.
func (c Configuration) Check() error {
	if len(c.Positions) != 3*len(c.Spins) {
		return fmt.Errorf("positions length %d does not match %d electrons",
			len(c.Positions), len(c.Spins))
	}
	if len(c.Atoms) != len(c.Charges) {
		return fmt.Errorf("atom count %d does not match charge count %d",
			len(c.Atoms), len(c.Charges))
	}
	return nil
}

// StateView returns the configuration of electron set j of a configuration
// holding states concatenated electron sets. The returned value shares the
// underlying arrays; the molecular geometry is common to all sets.
func (c Configuration) StateView(states, j int) Configuration {
	ne := len(c.Spins) / states
	return Configuration{
		Positions: c.Positions[3*ne*j : 3*ne*(j+1)],
		Spins:     c.Spins[ne*j : ne*(j+1)],
		Atoms:     c.Atoms,
		Charges:   c.Charges,
	}
}

// CountSpins returns the number of spin-up and spin-down labels.
func CountSpins(spins []float64) (up, down int) {
	for _, s := range spins {
		if s > 0 {
			up++
		} else {
			down++
		}
	}
	return up, down
}
