package models

import (
	"fmt"
	"sort"

	"simexm/pkg/simerr"
	"simexm/pkg/volume"
)

// RegionFull is the region type covering a whole cell.
const RegionFull = "full"

// Region is one annotated part of a cell, such as the full cell body, a
// dendrite or a synapse.
type Region struct {
	// Type is the region type, e.g. "full", "synapse" or "axon"
	Type string

	// ID distinguishes regions of the same type on one cell
	ID int

	// Voxels lists every (Z, X, Y) location covered by the region
	Voxels []volume.Voxel

	// Membrane lists the subset of Voxels on the region boundary
	Membrane []volume.Voxel
}

// VoxelList returns the region voxels, or only its membrane voxels.
func (r *Region) VoxelList(membraneOnly bool) []volume.Voxel {
	if membraneOnly {
		return r.Membrane
	}
	return r.Voxels
}

// Cell is a ground-truth cell described by sets of voxels.
type Cell struct {
	id       uint32
	cellType string

	// regions is keyed by region type, then region id
	regions map[string]map[int]*Region
}

// NewCell creates an empty cell. cellType defaults to "neuron".
func NewCell(id uint32, cellType string) *Cell {
	if cellType == "" {
		cellType = "neuron"
	}
	return &Cell{
		id:       id,
		cellType: cellType,
		regions:  make(map[string]map[int]*Region),
	}
}

// ID returns the cell identifier.
func (c *Cell) ID() uint32 {
	return c.id
}

// CellType returns the cell type, e.g. "neuron" or "glia".
func (c *Cell) CellType() string {
	return c.cellType
}

// SetFullCell sets the voxels and membrane of the cell's "full" region.
func (c *Cell) SetFullCell(voxels, membrane []volume.Voxel) {
	c.AddRegion(&Region{Type: RegionFull, ID: 1, Voxels: voxels, Membrane: membrane})
}

// AddRegion adds r, replacing any region with the same type and id.
func (c *Cell) AddRegion(r *Region) {
	byID, ok := c.regions[r.Type]
	if !ok {
		byID = make(map[int]*Region)
		c.regions[r.Type] = byID
	}
	byID[r.ID] = r
}

// RegionTypes returns the region types present on the cell, sorted.
func (c *Cell) RegionTypes() []string {
	out := make([]string, 0, len(c.regions))
	for t := range c.regions {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// RegionIDs returns the ids of the regions of the given type, sorted.
func (c *Cell) RegionIDs(regionType string) []int {
	byID := c.regions[regionType]
	out := make([]int, 0, len(byID))
	for id := range byID {
		out = append(out, id)
	}
	sort.Ints(out)
	return out
}

// Region returns a single region.
func (c *Cell) Region(regionType string, id int) (*Region, bool) {
	r, ok := c.regions[regionType][id]
	return r, ok
}

// Regions concatenates the voxels of every region of the given type, in
// ascending region id order.
func (c *Cell) Regions(regionType string, membraneOnly bool) ([]volume.Voxel, error) {
	if _, ok := c.regions[regionType]; !ok {
		return nil, fmt.Errorf("%w: cell %d has no region %q", simerr.ErrInvalidParameter, c.id, regionType)
	}
	var out []volume.Voxel
	for _, id := range c.RegionIDs(regionType) {
		out = append(out, c.regions[regionType][id].VoxelList(membraneOnly)...)
	}
	return out, nil
}
