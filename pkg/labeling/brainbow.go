// Package labeling simulates stochastic fluorescent labeling of ground-truth
// cells.
//
// BrainbowUnit implements combinatorial ("Brainbow") labeling: every call to
// LabelCells selects a random subset of cells, infects each selected cell with
// a random non-empty subset of the requested fluorophores and samples protein
// counts for every infected channel. Calls accumulate; LabeledVolume merges
// them per fluorophore and GroundTruth rebuilds the label volume of every cell
// region that was ever labeled.
package labeling

import (
	"fmt"
	"math"
	"sort"

	"simexm/pkg/sampling"
	"simexm/pkg/simerr"
	"simexm/pkg/volume"
)

// TypeBrainbow identifies the combinatorial labeling strategy.
const TypeBrainbow = "brainbow"

// BrainbowUnit accumulates labeling calls over one dataset.
// It is not safe for concurrent use.
type BrainbowUnit struct {
	dataset Dataset
	sampler *sampling.Sampler

	// volumes holds one protein volume per LabelCells call, in call order.
	volumes []*volume.Array

	// records holds one entry per (call, fluorophore); Invocation indexes volumes.
	records []ParameterRecord

	// fluors lists distinct fluorophores in first-seen order.
	fluors   []string
	fluorIdx map[string]int

	// labeled maps a cell id to the region types labeled on it.
	labeled map[uint32]map[string]struct{}

	// infected maps a fluorophore to the cells that expressed it and the
	// region types it was expressed in.
	infected map[string]map[uint32]map[string]struct{}
}

// NewBrainbowUnit creates a labeling unit over dataset drawing from sampler.
func NewBrainbowUnit(dataset Dataset, sampler *sampling.Sampler) *BrainbowUnit {
	return &BrainbowUnit{
		dataset:  dataset,
		sampler:  sampler,
		fluorIdx: make(map[string]int),
		labeled:  make(map[uint32]map[string]struct{}),
		infected: make(map[string]map[uint32]map[string]struct{}),
	}
}

// Type returns TypeBrainbow.
func (u *BrainbowUnit) Type() string {
	return TypeBrainbow
}

// LabelCells runs one labeling call. Nothing is recorded unless the call
// succeeds, and a failed call leaves the sampler where it was.
func (u *BrainbowUnit) LabelCells(req Request) (err error) {
	if err := req.Validate(); err != nil {
		return err
	}

	dims := u.dataset.VolumeDim()
	for i, d := range dims {
		if d <= 0 {
			return fmt.Errorf("%w: volume dimension %d is %d", simerr.ErrInvalidInput, i, d)
		}
	}

	cells, ids, err := u.sortedCells()
	if err != nil {
		return err
	}

	restore := u.sampler.Checkpoint()
	defer func() {
		if err != nil {
			restore()
		}
	}()

	selected, err := u.selectCells(ids, req)
	if err != nil {
		return err
	}

	regions := make([][]volume.Voxel, len(selected))
	for i, id := range selected {
		voxels, err := cells[id].Regions(req.RegionType, req.MembraneOnly)
		if err != nil {
			return fmt.Errorf("cell %d region %q: %w", id, req.RegionType, err)
		}
		for _, v := range voxels {
			if !volume.InBounds(v, dims) {
				return fmt.Errorf("%w: cell %d voxel %v is outside volume %v", simerr.ErrInvalidInput, id, v, dims)
			}
		}
		regions[i] = voxels
	}

	infection := newInfection(u.sampler, len(selected), len(req.Fluors))
	vol, err := u.generateProteins(regions, infection, req)
	if err != nil {
		return err
	}

	u.commit(req, selected, infection, vol)
	return nil
}

// sortedCells returns the dataset cells and their ids in ascending order,
// rejecting the reserved background id.
func (u *BrainbowUnit) sortedCells() (map[uint32]Cell, []uint32, error) {
	cells := u.dataset.Cells()
	ids := make([]uint32, 0, len(cells))
	for id, c := range cells {
		if id == 0 || c.ID() == 0 {
			return nil, nil, fmt.Errorf("%w: cell id 0 is reserved for background", simerr.ErrInvalidIdentifier)
		}
		if c.ID() != id {
			return nil, nil, fmt.Errorf("%w: cell keyed %d reports id %d", simerr.ErrInvalidIdentifier, id, c.ID())
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return cells, ids, nil
}

// selectCells picks the cells to label. Single-neuron mode picks one cell
// uniformly; otherwise each cell is kept independently with the labeling
// density.
func (u *BrainbowUnit) selectCells(ids []uint32, req Request) ([]uint32, error) {
	if req.SingleNeuron {
		if len(ids) == 0 {
			return nil, fmt.Errorf("%w: single-neuron labeling needs at least one cell", simerr.ErrInvalidInput)
		}
		return []uint32{ids[u.sampler.Intn(len(ids))]}, nil
	}

	var selected []uint32
	for _, id := range ids {
		if u.sampler.Bernoulli(req.LabelingDensity) {
			selected = append(selected, id)
		}
	}
	return selected, nil
}

// generateProteins samples the protein volume of one call.
//
// Each infected channel of a cell receives its own Poisson total, spread over
// the cell's voxels by a uniform multinomial. Channels are independent, so a
// cell's total is not shared between its fluorophores. Amplified counts that
// do not fit in uint32 fail the call.
func (u *BrainbowUnit) generateProteins(regions [][]volume.Voxel, infection Infection, req Request) (*volume.Array, error) {
	dims := u.dataset.VolumeDim()
	vd := u.dataset.VoxelDim()
	voxelVolume := vd[0] * vd[1] * vd[2]
	amp := uint64(req.AntibodyAmplificationFactor)

	vol := volume.New(len(req.Fluors), dims[0], dims[1], dims[2])
	for i, voxels := range regions {
		n := len(voxels)
		if n == 0 {
			continue
		}
		mean := req.ProteinDensity * float64(n) * voxelVolume

		// Cell-level total; the channels below draw their own.
		u.sampler.Poisson(mean)

		for f := range req.Fluors {
			if !infection.Infected(i, f) {
				continue
			}
			counts := u.sampler.UniformMultinomial(u.sampler.Poisson(mean), n)
			ch := vol.ChannelData(f)
			for k, v := range voxels {
				n := uint64(counts[k]) * amp
				if n > math.MaxUint32 {
					return nil, fmt.Errorf("%w: %d proteins amplified %d times overflow a voxel count", simerr.ErrInvalidParameter, counts[k], amp)
				}
				ch[vol.SpatialIndex(v)] = uint32(n)
			}
		}
	}
	return vol, nil
}

// commit records a successful call.
func (u *BrainbowUnit) commit(req Request, selected []uint32, infection Infection, vol *volume.Array) {
	invocation := len(u.volumes)
	u.volumes = append(u.volumes, vol)

	for c, fluor := range req.Fluors {
		if _, ok := u.fluorIdx[fluor]; !ok {
			u.fluorIdx[fluor] = len(u.fluors)
			u.fluors = append(u.fluors, fluor)
			u.infected[fluor] = make(map[uint32]map[string]struct{})
		}
		u.records = append(u.records, ParameterRecord{
			Fluor:                       fluor,
			Invocation:                  invocation,
			Channel:                     c,
			RegionType:                  req.RegionType,
			ProteinDensity:              req.ProteinDensity,
			LabelingDensity:             req.effectiveDensity(),
			AntibodyAmplificationFactor: req.AntibodyAmplificationFactor,
			FluorNoise:                  req.FluorNoise,
			MembraneOnly:                req.MembraneOnly,
			SingleNeuron:                req.SingleNeuron,
		})
	}

	for i, id := range selected {
		regions, ok := u.labeled[id]
		if !ok {
			regions = make(map[string]struct{})
			u.labeled[id] = regions
		}
		regions[req.RegionType] = struct{}{}

		for c, fluor := range req.Fluors {
			if infection.Infected(i, c) {
				cells := u.infected[fluor]
				if cells[id] == nil {
					cells[id] = make(map[string]struct{})
				}
				cells[id][req.RegionType] = struct{}{}
			}
		}
	}
}

// LabeledVolume merges every call into one (fluorophore, Z, X, Y) volume.
// Channel i holds FluorsUsed()[i], summed over every call that used it.
// A sum that does not fit in uint32 is an error.
func (u *BrainbowUnit) LabeledVolume() (*volume.Array, error) {
	if len(u.volumes) == 0 {
		return nil, fmt.Errorf("%w: no labeling calls to merge", simerr.ErrEmptyState)
	}

	sp := u.volumes[0].Spatial()
	out := volume.New(len(u.fluors), sp[0], sp[1], sp[2])
	for _, rec := range u.records {
		dst := out.ChannelData(u.fluorIdx[rec.Fluor])
		src := u.volumes[rec.Invocation].ChannelData(rec.Channel)
		for i, v := range src {
			sum := uint64(dst[i]) + uint64(v)
			if sum > math.MaxUint32 {
				return nil, fmt.Errorf("%w: merged count of %s overflows at element %d", simerr.ErrInvalidParameter, rec.Fluor, i)
			}
			dst[i] = uint32(sum)
		}
	}
	return out, nil
}

// GroundTruth returns a (Z, X, Y) volume holding, for every labeled region,
// the owning cell id. Cells are written in ascending id order and regions in
// ascending type order, so overlaps keep the last write.
func (u *BrainbowUnit) GroundTruth(membraneOnly bool) (*volume.Array, error) {
	return u.render(u.labeled, membraneOnly)
}

// GroundTruthFor renders only the cells infected with fluor, each with the
// regions fluor was expressed in.
func (u *BrainbowUnit) GroundTruthFor(fluor string, membraneOnly bool) (*volume.Array, error) {
	cells, ok := u.infected[fluor]
	if !ok {
		return nil, fmt.Errorf("%w: fluorophore %q was never used", simerr.ErrInvalidParameter, fluor)
	}
	return u.render(cells, membraneOnly)
}

// GroundTruthForCell renders the regions of one cell that expressed fluor.
func (u *BrainbowUnit) GroundTruthForCell(fluor string, id uint32, membraneOnly bool) (*volume.Array, error) {
	cells, ok := u.infected[fluor]
	if !ok {
		return nil, fmt.Errorf("%w: fluorophore %q was never used", simerr.ErrInvalidParameter, fluor)
	}
	regions, ok := cells[id]
	if !ok {
		return nil, fmt.Errorf("%w: cell %d was not labeled with %q", simerr.ErrInvalidIdentifier, id, fluor)
	}
	return u.render(map[uint32]map[string]struct{}{id: regions}, membraneOnly)
}

// render writes the given cell regions into a fresh label volume.
func (u *BrainbowUnit) render(labeled map[uint32]map[string]struct{}, membraneOnly bool) (*volume.Array, error) {
	dims := u.dataset.VolumeDim()
	gt := volume.New(dims[0], dims[1], dims[2])

	cells := u.dataset.Cells()
	ids := make([]uint32, 0, len(labeled))
	for id := range labeled {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		if id == 0 {
			return nil, fmt.Errorf("%w: cell id 0 is reserved for background", simerr.ErrInvalidIdentifier)
		}
		cell, ok := cells[id]
		if !ok {
			return nil, fmt.Errorf("%w: labeled cell %d is missing from the dataset", simerr.ErrInvalidInput, id)
		}

		regionTypes := make([]string, 0, len(labeled[id]))
		for rt := range labeled[id] {
			regionTypes = append(regionTypes, rt)
		}
		sort.Strings(regionTypes)

		for _, rt := range regionTypes {
			voxels, err := cell.Regions(rt, membraneOnly)
			if err != nil {
				return nil, fmt.Errorf("cell %d region %q: %w", id, rt, err)
			}
			for _, v := range voxels {
				if !gt.Contains(v) {
					return nil, fmt.Errorf("%w: cell %d voxel %v is outside volume %v", simerr.ErrInvalidInput, id, v, dims)
				}
				gt.Data()[gt.SpatialIndex(v)] = id
			}
		}
	}
	return gt, nil
}

// Parameters returns, per fluorophore, every parameter value it was used with.
func (u *BrainbowUnit) Parameters() map[string]ParameterSeries {
	out := make(map[string]ParameterSeries, len(u.fluors))
	for _, rec := range u.records {
		s := out[rec.Fluor]
		s.append(rec)
		out[rec.Fluor] = s
	}
	return out
}

// FluorsUsed returns the distinct fluorophores in first-seen order.
func (u *BrainbowUnit) FluorsUsed() []string {
	return append([]string(nil), u.fluors...)
}

// Invocations returns the number of successful LabelCells calls.
func (u *BrainbowUnit) Invocations() int {
	return len(u.volumes)
}

// Volume returns a copy of the protein volume produced by call i.
func (u *BrainbowUnit) Volume(i int) *volume.Array {
	return u.volumes[i].Clone()
}

// Records returns a copy of every parameter record in call order.
func (u *BrainbowUnit) Records() []ParameterRecord {
	return append([]ParameterRecord(nil), u.records...)
}

// LabeledCells returns, in ascending order, the cells infected with fluor.
func (u *BrainbowUnit) LabeledCells(fluor string) []uint32 {
	set := u.infected[fluor]
	ids := make([]uint32, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// LabeledRegions returns the region types labeled on cell id.
func (u *BrainbowUnit) LabeledRegions(id uint32) []string {
	out := make([]string, 0, len(u.labeled[id]))
	for rt := range u.labeled[id] {
		out = append(out, rt)
	}
	sort.Strings(out)
	return out
}

var _ Unit = (*BrainbowUnit)(nil)
