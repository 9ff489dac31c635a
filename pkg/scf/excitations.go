package scf

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat/combin"
)

// SpinOrbital identifies a molecular orbital within one spin channel.
type SpinOrbital struct {
	Spin  int `msgpack:"spin"`
	Index int `msgpack:"index"`
}

// OrbitalSwap promotes an electron from an occupied orbital to an unoccupied
// one.
type OrbitalSwap struct {
	From SpinOrbital `msgpack:"from"`
	To   SpinOrbital `msgpack:"to"`
}

// Excitation is a single or double excitation out of the mean-field ground
// state.
type Excitation struct {
	// Gap is the sum of orbital energy differences between the orbitals
	// entering and leaving the determinant.
	Gap float64 `msgpack:"gap"`
	// SpinChange is the net change in spin projection.
	SpinChange int `msgpack:"spin_change"`
	// Swaps lists the orbital substitutions in lexicographic
	// (spin, index) order of the occupied orbitals.
	Swaps []OrbitalSwap `msgpack:"swaps"`
}

// LowestExcitations enumerates every single and double excitation of the
// mean-field state described by the per-channel occupancies and orbital
// energies, and returns the n lowest by energy gap. With preserveSpin only
// excitations keeping the total spin projection are considered.
//
// The number of occupied orbitals per channel is the integer sum of that
// channel's occupancies, filled in Aufbau order. The ranking is biased
// towards single excitations: gaps use bare orbital energies with no
// interaction correction.
func LowestExcitations(occupancy, energies [2][]float64, n int, preserveSpin bool) ([]Excitation, error) {
	var occ, unocc []SpinOrbital
	for spin := 0; spin < 2; spin++ {
		if len(occupancy[spin]) != len(energies[spin]) {
			return nil, fmt.Errorf("scf: spin %d has %d occupancies and %d energies",
				spin, len(occupancy[spin]), len(energies[spin]))
		}
		nocc := 0
		for _, o := range occupancy[spin] {
			nocc += int(o)
		}
		if nocc > len(occupancy[spin]) {
			return nil, fmt.Errorf("scf: spin %d occupancy sums to %d orbitals, only %d available",
				spin, nocc, len(occupancy[spin]))
		}
		for i := 0; i < nocc; i++ {
			occ = append(occ, SpinOrbital{Spin: spin, Index: i})
		}
		for i := nocc; i < len(occupancy[spin]); i++ {
			unocc = append(unocc, SpinOrbital{Spin: spin, Index: i})
		}
	}

	gap := func(o, u SpinOrbital) float64 {
		return energies[u.Spin][u.Index] - energies[o.Spin][o.Index]
	}

	var res []Excitation
	for _, o := range occ {
		for _, u := range unocc {
			res = append(res, Excitation{
				Gap:        gap(o, u),
				SpinChange: o.Spin - u.Spin,
				Swaps:      []OrbitalSwap{{From: o, To: u}},
			})
		}
	}

	if len(occ) >= 2 && len(unocc) >= 2 {
		unoccPairs := combin.Combinations(len(unocc), 2)
		for _, op := range combin.Combinations(len(occ), 2) {
			o1, o2 := occ[op[0]], occ[op[1]]
			for _, up := range unoccPairs {
				u1, u2 := unocc[up[0]], unocc[up[1]]
				res = append(res, Excitation{
					Gap:        gap(o1, u1) + gap(o2, u2),
					SpinChange: o1.Spin + o2.Spin - u1.Spin - u2.Spin,
					Swaps:      []OrbitalSwap{{From: o1, To: u1}, {From: o2, To: u2}},
				})
			}
		}
	}

	if preserveSpin {
		kept := res[:0]
		for _, e := range res {
			if e.SpinChange == 0 {
				kept = append(kept, e)
			}
		}
		res = kept
	}
	if len(res) < n {
		return nil, fmt.Errorf("scf: insufficient single and double excitations: want %d, have %d", n, len(res))
	}

	sort.SliceStable(res, func(i, j int) bool { return res[i].Gap < res[j].Gap })
	return res[:n], nil
}
