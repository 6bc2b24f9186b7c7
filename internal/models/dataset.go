// Package models provides an in-memory ground-truth dataset for the labeling
// unit: cells made of typed voxel regions, built by hand or from a label
// volume.
package models

import (
	"fmt"
	"sort"

	"simexm/pkg/labeling"
	"simexm/pkg/simerr"
	"simexm/pkg/volume"
)

// Dataset holds the ground-truth cells of one volume.
type Dataset struct {
	cells     map[uint32]*Cell
	volumeDim [3]int
	voxelDim  [3]float64
}

// NewDataset creates an empty dataset. volumeDim is in voxels and voxelDim in
// nanometers, both ordered (Z, X, Y).
func NewDataset(volumeDim [3]int, voxelDim [3]float64) (*Dataset, error) {
	for i := 0; i < 3; i++ {
		if volumeDim[i] <= 0 {
			return nil, fmt.Errorf("%w: volume dimension %v must be positive", simerr.ErrInvalidParameter, volumeDim)
		}
		if voxelDim[i] <= 0 {
			return nil, fmt.Errorf("%w: voxel dimension %v must be positive", simerr.ErrInvalidParameter, voxelDim)
		}
	}
	return &Dataset{
		cells:     make(map[uint32]*Cell),
		volumeDim: volumeDim,
		voxelDim:  voxelDim,
	}, nil
}

// AddCell adds c to the dataset.
func (d *Dataset) AddCell(c *Cell) error {
	if c.ID() == 0 {
		return fmt.Errorf("%w: cell id 0 is reserved for background", simerr.ErrInvalidIdentifier)
	}
	if _, ok := d.cells[c.ID()]; ok {
		return fmt.Errorf("%w: duplicate cell id %d", simerr.ErrInvalidIdentifier, c.ID())
	}
	d.cells[c.ID()] = c
	return nil
}

// Cell returns the cell with the given id.
func (d *Dataset) Cell(id uint32) (*Cell, bool) {
	c, ok := d.cells[id]
	return c, ok
}

// CellIDs returns every cell id, sorted.
func (d *Dataset) CellIDs() []uint32 {
	ids := make([]uint32, 0, len(d.cells))
	for id := range d.cells {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Cells returns every cell keyed by id.
func (d *Dataset) Cells() map[uint32]labeling.Cell {
	out := make(map[uint32]labeling.Cell, len(d.cells))
	for id, c := range d.cells {
		out[id] = c
	}
	return out
}

// VolumeDim returns the volume size in voxels.
func (d *Dataset) VolumeDim() [3]int {
	return d.volumeDim
}

// VoxelDim returns the voxel size in nanometers.
func (d *Dataset) VoxelDim() [3]float64 {
	return d.voxelDim
}

// Parameters describes the dataset for the simulation record.
func (d *Dataset) Parameters() map[string]any {
	return map[string]any{
		"volume_dim": d.volumeDim,
		"voxel_dim":  d.voxelDim,
		"cells":      len(d.cells),
	}
}

// FromLabelVolume builds a dataset from a (Z, X, Y) label volume in which each
// voxel holds the id of the cell covering it and 0 marks background. Every
// label becomes a cell with a "full" region. Membrane voxels are the edge
// pixels of each z-plane: cell voxels with a 4-neighbour in the same plane
// that carries another label or lies outside the image.
func FromLabelVolume(labels *volume.Array, voxelDim [3]float64) (*Dataset, error) {
	if labels == nil || labels.Rank() != 3 {
		return nil, fmt.Errorf("%w: label volume must be rank 3", simerr.ErrInvalidInput)
	}
	dims := labels.Spatial()
	ds, err := NewDataset(dims, voxelDim)
	if err != nil {
		return nil, err
	}

	voxels := make(map[uint32][]volume.Voxel)
	membrane := make(map[uint32][]volume.Voxel)
	neighbours := [4][2]int{{-1, 0}, {1, 0}, {0, -1}, {0, 1}}

	for z := 0; z < dims[0]; z++ {
		for x := 0; x < dims[1]; x++ {
			for y := 0; y < dims[2]; y++ {
				id := labels.At(z, x, y)
				if id == 0 {
					continue
				}
				v := volume.Voxel{Z: z, X: x, Y: y}
				voxels[id] = append(voxels[id], v)

				for _, n := range neighbours {
					nv := volume.Voxel{Z: z, X: x + n[0], Y: y + n[1]}
					if !volume.InBounds(nv, dims) || labels.At(nv.Z, nv.X, nv.Y) != id {
						membrane[id] = append(membrane[id], v)
						break
					}
				}
			}
		}
	}

	for id, vs := range voxels {
		c := NewCell(id, "")
		c.SetFullCell(vs, membrane[id])
		if err := ds.AddCell(c); err != nil {
			return nil, err
		}
	}
	return ds, nil
}

var _ labeling.Dataset = (*Dataset)(nil)
var _ labeling.Cell = (*Cell)(nil)
