package labeling

import (
	"fmt"
	"math"

	"simexm/pkg/simerr"
	"simexm/pkg/volume"
)

// NoiseParams configures background fluorophore noise.
type NoiseParams struct {
	// Probability is the chance that a voxel of a channel receives noise.
	Probability float64

	// Mean is the expected number of stray fluorophores in a noisy voxel.
	Mean float64

	// AntibodyAmplificationFactor multiplies every noise count.
	AntibodyAmplificationFactor int
}

// Validate reports the first out-of-range parameter.
func (p NoiseParams) Validate() error {
	if !finite(p.Probability) || !finite(p.Mean) {
		return fmt.Errorf("%w: noise probability %v and mean %v must be finite", simerr.ErrInvalidParameter, p.Probability, p.Mean)
	}
	if p.Probability < 0 || p.Probability > 1 {
		return fmt.Errorf("%w: noise probability %v is outside [0, 1]", simerr.ErrInvalidParameter, p.Probability)
	}
	if p.Mean < 0 {
		return fmt.Errorf("%w: noise mean %v is negative", simerr.ErrInvalidParameter, p.Mean)
	}
	if p.AntibodyAmplificationFactor < 0 {
		return fmt.Errorf("%w: noise amplification factor %d is negative", simerr.ErrInvalidParameter, p.AntibodyAmplificationFactor)
	}
	return nil
}

// AddNoise adds background counts to vol in place. Each element of the
// (fluorophore, Z, X, Y) volume is gated by a Bernoulli draw with the noise
// probability; gated elements gain a Poisson count times the amplification
// factor. Accumulated protein volumes are never touched. If any noisy count
// would overflow uint32, vol and the sampler are left unchanged.
func (u *BrainbowUnit) AddNoise(vol *volume.Array, p NoiseParams) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if vol == nil || vol.Rank() != 4 {
		return fmt.Errorf("%w: noise needs a rank-4 fluorophore volume", simerr.ErrInvalidInput)
	}

	type increment struct {
		index int
		value uint32
	}

	restore := u.sampler.Checkpoint()
	amp := uint64(p.AntibodyAmplificationFactor)
	data := vol.Data()
	var pending []increment
	for i := range data {
		if !u.sampler.Bernoulli(p.Probability) {
			continue
		}
		n := uint64(data[i]) + uint64(u.sampler.Poisson(p.Mean))*amp
		if n > math.MaxUint32 {
			restore()
			return fmt.Errorf("%w: noise overflows the count at element %d", simerr.ErrInvalidParameter, i)
		}
		pending = append(pending, increment{index: i, value: uint32(n)})
	}
	for _, inc := range pending {
		data[inc.index] = inc.value
	}
	return nil
}
