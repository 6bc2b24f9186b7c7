// Package expansion emulates expansion microscopy by spatially upsampling
// fluorophore and ground-truth volumes by an integer factor.
//
// Every source voxel (z, x, y) owns the factor³ block starting at
// (z·f, x·f, y·f) of the expanded volume. Its value is copied unchanged to a
// single designated position inside that block, the block centre
// (z·f+o, x·f+o, y·f+o) with o = f/2, and the rest of the block is zero. The
// mapping is deterministic, totals per channel are preserved exactly and a
// factor of 1 is the identity.
package expansion

import (
	"fmt"

	"simexm/pkg/simerr"
	"simexm/pkg/volume"
)

// Unit expands volumes by a fixed integer factor. It holds no other state.
type Unit struct {
	factor int
}

// New creates an expansion unit. factor must be at least 1.
func New(factor int) (*Unit, error) {
	if factor < 1 {
		return nil, fmt.Errorf("%w: expansion factor %d must be a positive integer", simerr.ErrInvalidParameter, factor)
	}
	return &Unit{factor: factor}, nil
}

// ExpansionFactor returns the configured factor.
func (u *Unit) ExpansionFactor() int {
	return u.factor
}

// Offset returns the position of a source voxel inside its block along each axis.
func (u *Unit) Offset() int {
	return u.factor / 2
}

// Parameters describes the unit for the simulation record.
func (u *Unit) Parameters() map[string]any {
	return map[string]any{
		"factor": u.factor,
		"offset": u.Offset(),
	}
}

// ExpandVolume expands a (fluorophore, Z, X, Y) volume.
func (u *Unit) ExpandVolume(fluo *volume.Array) (*volume.Array, error) {
	if fluo == nil || fluo.Rank() != 4 {
		return nil, fmt.Errorf("%w: fluorophore volume must be rank 4 (fluorophore, Z, X, Y)", simerr.ErrInvalidInput)
	}
	sp := fluo.Spatial()
	f := u.factor
	out := volume.New(fluo.Channels(), sp[0]*f, sp[1]*f, sp[2]*f)
	for c := 0; c < fluo.Channels(); c++ {
		u.expandBlock(out.ChannelData(c), fluo.ChannelData(c), sp)
	}
	return out, nil
}

// ExpandGroundTruth expands a (Z, X, Y) label volume. Labels are copied, never
// blended.
func (u *Unit) ExpandGroundTruth(gt *volume.Array) (*volume.Array, error) {
	if gt == nil || gt.Rank() != 3 {
		return nil, fmt.Errorf("%w: ground truth must be rank 3 (Z, X, Y)", simerr.ErrInvalidInput)
	}
	sp := gt.Spatial()
	f := u.factor
	out := volume.New(sp[0]*f, sp[1]*f, sp[2]*f)
	u.expandBlock(out.Data(), gt.Data(), sp)
	return out, nil
}

// expandBlock scatters one (Z, X, Y) block of src with dims sp into dst.
func (u *Unit) expandBlock(dst, src []uint32, sp [3]int) {
	f, o := u.factor, u.Offset()
	dx, dy := sp[1]*f, sp[2]*f
	i := 0
	for z := 0; z < sp[0]; z++ {
		for x := 0; x < sp[1]; x++ {
			for y := 0; y < sp[2]; y++ {
				dst[((z*f+o)*dx+x*f+o)*dy+y*f+o] = src[i]
				i++
			}
		}
	}
}

// ShrinkVolume inverts ExpandVolume by reading the designated position of
// every block.
func (u *Unit) ShrinkVolume(fluo *volume.Array) (*volume.Array, error) {
	if fluo == nil || fluo.Rank() != 4 {
		return nil, fmt.Errorf("%w: fluorophore volume must be rank 4 (fluorophore, Z, X, Y)", simerr.ErrInvalidInput)
	}
	sp, err := u.shrunkDims(fluo.Spatial())
	if err != nil {
		return nil, err
	}
	out := volume.New(fluo.Channels(), sp[0], sp[1], sp[2])
	for c := 0; c < fluo.Channels(); c++ {
		u.shrinkBlock(out.ChannelData(c), fluo.ChannelData(c), sp)
	}
	return out, nil
}

// ShrinkGroundTruth inverts ExpandGroundTruth.
func (u *Unit) ShrinkGroundTruth(gt *volume.Array) (*volume.Array, error) {
	if gt == nil || gt.Rank() != 3 {
		return nil, fmt.Errorf("%w: ground truth must be rank 3 (Z, X, Y)", simerr.ErrInvalidInput)
	}
	sp, err := u.shrunkDims(gt.Spatial())
	if err != nil {
		return nil, err
	}
	out := volume.New(sp[0], sp[1], sp[2])
	u.shrinkBlock(out.Data(), gt.Data(), sp)
	return out, nil
}

func (u *Unit) shrunkDims(sp [3]int) ([3]int, error) {
	var out [3]int
	for i, d := range sp {
		if d%u.factor != 0 {
			return out, fmt.Errorf("%w: dimension %d is not a multiple of factor %d", simerr.ErrInvalidInput, d, u.factor)
		}
		out[i] = d / u.factor
	}
	return out, nil
}

// shrinkBlock gathers the designated voxels of src into dst with dims sp.
func (u *Unit) shrinkBlock(dst, src []uint32, sp [3]int) {
	f, o := u.factor, u.Offset()
	dx, dy := sp[1]*f, sp[2]*f
	i := 0
	for z := 0; z < sp[0]; z++ {
		for x := 0; x < sp[1]; x++ {
			for y := 0; y < sp[2]; y++ {
				dst[i] = src[((z*f+o)*dx+x*f+o)*dy+y*f+o]
				i++
			}
		}
	}
}
