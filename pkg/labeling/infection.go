package labeling

import "simexm/pkg/sampling"

// Infection records which fluorophores each selected cell expresses.
// Rows are cells, columns are fluorophores; every row has at least one true
// entry.
type Infection [][]bool

// newInfection flips a fair coin for every (cell, fluorophore) pair. A row
// that comes up all false is flipped again in full until it has a hit.
func newInfection(s *sampling.Sampler, cells, fluors int) Infection {
	inf := make(Infection, cells)
	for i := range inf {
		row := make([]bool, fluors)
		for {
			hit := false
			for j := range row {
				row[j] = s.Bernoulli(0.5)
				hit = hit || row[j]
			}
			if hit {
				break
			}
		}
		inf[i] = row
	}
	return inf
}

// Infected reports whether cell i expresses fluorophore f.
func (inf Infection) Infected(i, f int) bool {
	return inf[i][f]
}

// Count returns the number of fluorophores cell i expresses.
func (inf Infection) Count(i int) int {
	n := 0
	for _, v := range inf[i] {
		if v {
			n++
		}
	}
	return n
}
