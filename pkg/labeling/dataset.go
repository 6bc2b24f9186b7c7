package labeling

import "simexm/pkg/volume"

// Cell is the part of a ground-truth cell the labeling unit needs.
type Cell interface {
	// ID returns the cell identifier. 0 is reserved for background.
	ID() uint32

	// Regions returns every voxel of the cell's regions of the given type,
	// restricted to membrane voxels when membraneOnly is set.
	Regions(regionType string, membraneOnly bool) ([]volume.Voxel, error)
}

// Dataset is the ground-truth collaborator queried by the labeling unit.
type Dataset interface {
	// Cells returns every cell keyed by identifier.
	Cells() map[uint32]Cell

	// VolumeDim returns the volume size in voxels as (Z, X, Y).
	VolumeDim() [3]int

	// VoxelDim returns the physical voxel size in nanometers as (Z, X, Y).
	VoxelDim() [3]float64
}

// Unit is a labeling strategy. BrainbowUnit is the combinatorial one.
type Unit interface {
	LabelCells(req Request) error
	LabeledVolume() (*volume.Array, error)
	GroundTruth(membraneOnly bool) (*volume.Array, error)
	Parameters() map[string]ParameterSeries
	FluorsUsed() []string
	Type() string
}
