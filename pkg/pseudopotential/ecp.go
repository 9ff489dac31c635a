package pseudopotential

import "math"

// gaussTerm is one radial term c * r^(n-2) * exp(-a r^2) of an effective
// core potential channel.
type gaussTerm struct {
	Coeff    float64
	Power    int
	Exponent float64
}

// radial sums the channel terms at distance r.
func radial(terms []gaussTerm, r float64) float64 {
	var v float64
	r2 := r * r
	for _, t := range terms {
		v += t.Coeff * math.Pow(r, float64(t.Power-2)) * math.Exp(-t.Exponent*r2)
	}
	return v
}

// ecpEntry is the tabulated effective core potential for one element. Local
// holds the corrections beyond the -Zeff/r Coulomb tail; Nonlocal holds the
// projector channels indexed by angular momentum l.
type ecpEntry struct {
	Symbol   string
	Z        float64
	Zeff     float64
	Local    []gaussTerm
	Nonlocal [][]gaussTerm
}

// FamilyCcECP selects the correlation-consistent effective core potentials
// of Bennett et al., J. Chem. Phys. 147, 224106 (2017).
const FamilyCcECP = "ccecp"

var ccECP = map[string]*ecpEntry{
	"C": {
		Symbol: "C",
		Z:      6,
		Zeff:   4,
		Local: []gaussTerm{
			{Coeff: 4.00000000, Power: 1, Exponent: 14.43502000},
			{Coeff: 57.74008600, Power: 3, Exponent: 8.39889300},
			{Coeff: -25.81955900, Power: 2, Exponent: 7.38188600},
		},
		Nonlocal: [][]gaussTerm{
			{{Coeff: 52.13345100, Power: 2, Exponent: 7.76079700}},
		},
	},
	"O": {
		Symbol: "O",
		Z:      8,
		Zeff:   6,
		Local: []gaussTerm{
			{Coeff: 6.00000000, Power: 1, Exponent: 12.30997000},
			{Coeff: 73.85984000, Power: 3, Exponent: 14.76962000},
			{Coeff: -47.87600000, Power: 2, Exponent: 13.71419000},
		},
		Nonlocal: [][]gaussTerm{
			{{Coeff: 85.86406800, Power: 2, Exponent: 13.65512000}},
		},
	},
}

var families = map[string]map[string]*ecpEntry{
	FamilyCcECP: ccECP,
}

var atomicNumber = map[string]float64{
	"H": 1, "He": 2, "Li": 3, "Be": 4, "B": 5, "C": 6, "N": 7, "O": 8,
	"F": 9, "Ne": 10, "Na": 11, "Mg": 12, "Al": 13, "Si": 14, "P": 15,
	"S": 16, "Cl": 17, "Ar": 18,
}

// legendreP evaluates the Legendre polynomial P_l(x) by the three-term
// recurrence.
func legendreP(l int, x float64) float64 {
	switch l {
	case 0:
		return 1
	case 1:
		return x
	}
	prev, cur := 1.0, x
	for k := 2; k <= l; k++ {
		prev, cur = cur, (float64(2*k-1)*x*cur-float64(k-1)*prev)/float64(k)
	}
	return cur
}
