// Package units provides atomic-unit conversions used across the library.
//
// All core computations run in Hartree atomic units (lengths in Bohr,
// energies in Hartree); these helpers convert to and from the units common
// in chemistry input files and reports.
package units

import "golang.org/x/exp/constraints"

// 1 Bohr = 0.52917721067(12) x 10^-10 m.
// https://physics.nist.gov/cgi-bin/cuu/Value?bohrrada0
const (
	AngstromPerBohr = 0.52917721067
	BohrPerAngstrom = 1.0 / AngstromPerBohr
)

// 1 Hartree = 627.509474 kcal/mol.
const (
	KcalPerHartree = 627.509474
	HartreePerKcal = 1.0 / KcalPerHartree
)

// BohrToAngstrom converts a length from Bohr to Angstrom.
func BohrToAngstrom[T constraints.Float](x T) T {
	return x * AngstromPerBohr
}

// AngstromToBohr converts a length from Angstrom to Bohr.
func AngstromToBohr[T constraints.Float](x T) T {
	return x * BohrPerAngstrom
}

// HartreeToKcal converts an energy from Hartree to kcal/mol.
func HartreeToKcal[T constraints.Float](x T) T {
	return x * KcalPerHartree
}

// KcalToHartree converts an energy from kcal/mol to Hartree.
func KcalToHartree[T constraints.Float](x T) T {
	return x * HartreePerKcal
}

// BohrSliceToAngstrom converts a coordinate slice in place and returns it.
func BohrSliceToAngstrom(xs []float64) []float64 {
	for i := range xs {
		xs[i] *= AngstromPerBohr
	}
	return xs
}

// AngstromSliceToBohr converts a coordinate slice in place and returns it.
func AngstromSliceToBohr(xs []float64) []float64 {
	for i := range xs {
		xs[i] *= BohrPerAngstrom
	}
	return xs
}
