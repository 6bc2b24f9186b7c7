// Package sampling wraps the gonum distributions used by the labeling
// simulation behind a single seedable random source, so that a simulation
// run with a fixed seed is reproducible.
package sampling

import (
	"encoding"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// Sampler draws from Bernoulli, Poisson and multinomial distributions.
// All draws consume the same source in call order. A Sampler is not safe
// for concurrent use.
type Sampler struct {
	src rand.Source
	rng *rand.Rand
}

// New returns a Sampler seeded with seed.
func New(seed uint64) *Sampler {
	return FromSource(rand.NewSource(seed))
}

// FromSource returns a Sampler drawing from src.
func FromSource(src rand.Source) *Sampler {
	return &Sampler{src: src, rng: rand.New(src)}
}

// stateful is implemented by sources whose state can be saved and restored,
// such as the PCG source returned by rand.NewSource.
type stateful interface {
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
}

// Checkpoint captures the current generator state and returns a function that
// rewinds the sampler to it. For sources that cannot marshal their state the
// returned function does nothing.
func (s *Sampler) Checkpoint() (restore func()) {
	src, ok := s.src.(stateful)
	if !ok {
		return func() {}
	}
	state, err := src.MarshalBinary()
	if err != nil {
		return func() {}
	}
	return func() {
		// state came from the same source, so it always unmarshals
		_ = src.UnmarshalBinary(state)
	}
}

// Bernoulli returns true with probability p.
func (s *Sampler) Bernoulli(p float64) bool {
	if p <= 0 {
		return false
	}
	if p >= 1 {
		return true
	}
	return distuv.Bernoulli{P: p, Src: s.src}.Rand() == 1
}

// Poisson returns a Poisson-distributed count with the given mean.
// A non-positive or NaN mean always yields 0.
func (s *Sampler) Poisson(mean float64) int {
	if !(mean > 0) {
		return 0
	}
	return int(distuv.Poisson{Lambda: mean, Src: s.src}.Rand())
}

// UniformMultinomial distributes total draws over n equally likely bins.
// It samples the bins in order with conditional binomials, which yields the
// exact multinomial distribution with per-bin probability 1/n.
func (s *Sampler) UniformMultinomial(total, n int) []int {
	if n <= 0 {
		return nil
	}
	counts := make([]int, n)
	remaining := total
	for i := 0; i < n-1 && remaining > 0; i++ {
		p := 1 / float64(n-i)
		k := int(distuv.Binomial{N: float64(remaining), P: p, Src: s.src}.Rand())
		counts[i] = k
		remaining -= k
	}
	counts[n-1] += remaining
	return counts
}

// Intn returns a uniform integer in [0, n).
func (s *Sampler) Intn(n int) int {
	return s.rng.Intn(n)
}
