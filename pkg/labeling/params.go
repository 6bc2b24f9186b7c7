package labeling

import (
	"fmt"
	"math"
	"strings"

	"simexm/pkg/simerr"
)

// Parameter names reported by ParameterSeries.AsMap.
const (
	ParamRegionType      = "region_type"
	ParamProteinDensity  = "protein_density"
	ParamLabelingDensity = "labeling_density"
	ParamAmplification   = "antibody_amplification_factor"
	ParamFluorNoise      = "fluor_noise"
	ParamMembraneOnly    = "membrane_only"
	ParamSingleNeuron    = "single_neuron"
)

// Request holds the parameters of one LabelCells call.
type Request struct {
	// RegionType selects the cell region to label, e.g. "full".
	RegionType string

	// Fluors lists the fluorophores; one output channel each.
	Fluors []string

	// ProteinDensity is the expected number of proteins per cubic nanometer.
	ProteinDensity float64

	// LabelingDensity is the probability that a cell is labeled.
	// It is treated as 1 when SingleNeuron is set.
	LabelingDensity float64

	// AntibodyAmplificationFactor multiplies every sampled protein count.
	AntibodyAmplificationFactor int

	// FluorNoise is recorded with the parameters but does not affect labeling.
	FluorNoise float64

	// MembraneOnly restricts labeling to membrane voxels.
	MembraneOnly bool

	// SingleNeuron labels exactly one randomly chosen cell.
	SingleNeuron bool
}

// Validate reports the first out-of-range parameter.
func (r Request) Validate() error {
	if len(r.Fluors) == 0 {
		return fmt.Errorf("%w: at least one fluorophore is required", simerr.ErrInvalidParameter)
	}
	for i, f := range r.Fluors {
		if f == "" {
			return fmt.Errorf("%w: fluorophore %d has an empty name", simerr.ErrInvalidParameter, i)
		}
		// names become output directory names
		if f == "." || f == ".." || strings.ContainsAny(f, `/\`) {
			return fmt.Errorf("%w: fluorophore name %q is not a plain name", simerr.ErrInvalidParameter, f)
		}
	}
	for _, p := range []struct {
		name string
		v    float64
	}{
		{"protein density", r.ProteinDensity},
		{"labeling density", r.LabelingDensity},
		{"fluor noise", r.FluorNoise},
	} {
		if !finite(p.v) {
			return fmt.Errorf("%w: %s %v is not finite", simerr.ErrInvalidParameter, p.name, p.v)
		}
	}
	if r.ProteinDensity < 0 {
		return fmt.Errorf("%w: protein density %v is negative", simerr.ErrInvalidParameter, r.ProteinDensity)
	}
	if r.LabelingDensity < 0 || r.LabelingDensity > 1 {
		return fmt.Errorf("%w: labeling density %v is outside [0, 1]", simerr.ErrInvalidParameter, r.LabelingDensity)
	}
	if r.AntibodyAmplificationFactor < 0 {
		return fmt.Errorf("%w: antibody amplification factor %d is negative", simerr.ErrInvalidParameter, r.AntibodyAmplificationFactor)
	}
	return nil
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

// effectiveDensity is the labeling density actually applied.
func (r Request) effectiveDensity() float64 {
	if r.SingleNeuron {
		return 1
	}
	return r.LabelingDensity
}

// ParameterRecord is the parameter copy kept for one fluorophore of one call.
type ParameterRecord struct {
	Fluor string

	// Invocation is the index of the ProteinVolume this record belongs to.
	Invocation int

	// Channel is the fluorophore's channel in that volume.
	Channel int

	RegionType                  string
	ProteinDensity              float64
	LabelingDensity             float64
	AntibodyAmplificationFactor int
	FluorNoise                  float64
	MembraneOnly                bool
	SingleNeuron                bool
}

// ParameterSeries lists, in call order, every parameter value used with one
// fluorophore.
type ParameterSeries struct {
	RegionType                  []string  `yaml:"region_type"`
	ProteinDensity              []float64 `yaml:"protein_density"`
	LabelingDensity             []float64 `yaml:"labeling_density"`
	AntibodyAmplificationFactor []int     `yaml:"antibody_amplification_factor"`
	FluorNoise                  []float64 `yaml:"fluor_noise"`
	MembraneOnly                []bool    `yaml:"membrane_only"`
	SingleNeuron                []bool    `yaml:"single_neuron"`
}

func (s *ParameterSeries) append(rec ParameterRecord) {
	s.RegionType = append(s.RegionType, rec.RegionType)
	s.ProteinDensity = append(s.ProteinDensity, rec.ProteinDensity)
	s.LabelingDensity = append(s.LabelingDensity, rec.LabelingDensity)
	s.AntibodyAmplificationFactor = append(s.AntibodyAmplificationFactor, rec.AntibodyAmplificationFactor)
	s.FluorNoise = append(s.FluorNoise, rec.FluorNoise)
	s.MembraneOnly = append(s.MembraneOnly, rec.MembraneOnly)
	s.SingleNeuron = append(s.SingleNeuron, rec.SingleNeuron)
}

// Len returns the number of calls recorded.
func (s ParameterSeries) Len() int {
	return len(s.RegionType)
}

// AsMap returns the series keyed by parameter name.
func (s ParameterSeries) AsMap() map[string][]any {
	out := make(map[string][]any, 7)
	for i := 0; i < s.Len(); i++ {
		out[ParamRegionType] = append(out[ParamRegionType], s.RegionType[i])
		out[ParamProteinDensity] = append(out[ParamProteinDensity], s.ProteinDensity[i])
		out[ParamLabelingDensity] = append(out[ParamLabelingDensity], s.LabelingDensity[i])
		out[ParamAmplification] = append(out[ParamAmplification], s.AntibodyAmplificationFactor[i])
		out[ParamFluorNoise] = append(out[ParamFluorNoise], s.FluorNoise[i])
		out[ParamMembraneOnly] = append(out[ParamMembraneOnly], s.MembraneOnly[i])
		out[ParamSingleNeuron] = append(out[ParamSingleNeuron], s.SingleNeuron[i])
	}
	return out
}
