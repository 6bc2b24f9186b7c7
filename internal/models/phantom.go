package models

import (
	"fmt"

	"simexm/pkg/sampling"
	"simexm/pkg/simerr"
	"simexm/pkg/volume"
)

// PhantomParams describes a synthetic label volume of ellipsoidal cells.
type PhantomParams struct {
	// VolumeDim is the volume size in voxels, (Z, X, Y)
	VolumeDim [3]int

	// Cells is the number of ellipsoids to place
	Cells int

	// MinRadius and MaxRadius bound the semi-axes in voxels, (Z, X, Y)
	MinRadius [3]int
	MaxRadius [3]int
}

// Phantom draws a (Z, X, Y) label volume of random ellipsoids labeled 1..Cells.
// Later cells overwrite earlier ones where they overlap, so a cell may end up
// with no voxels.
func Phantom(p PhantomParams, s *sampling.Sampler) (*volume.Array, error) {
	if p.Cells < 0 {
		return nil, fmt.Errorf("%w: cell count %d is negative", simerr.ErrInvalidParameter, p.Cells)
	}
	for i := 0; i < 3; i++ {
		if p.VolumeDim[i] <= 0 {
			return nil, fmt.Errorf("%w: volume dimension %v must be positive", simerr.ErrInvalidParameter, p.VolumeDim)
		}
		if p.MinRadius[i] < 1 || p.MaxRadius[i] < p.MinRadius[i] {
			return nil, fmt.Errorf("%w: radius range %v..%v is invalid", simerr.ErrInvalidParameter, p.MinRadius, p.MaxRadius)
		}
	}

	dims := p.VolumeDim
	labels := volume.New(dims[0], dims[1], dims[2])

	for c := 1; c <= p.Cells; c++ {
		var centre, radius [3]int
		for i := 0; i < 3; i++ {
			centre[i] = s.Intn(dims[i])
			radius[i] = p.MinRadius[i] + s.Intn(p.MaxRadius[i]-p.MinRadius[i]+1)
		}

		for z := max(0, centre[0]-radius[0]); z <= min(dims[0]-1, centre[0]+radius[0]); z++ {
			for x := max(0, centre[1]-radius[1]); x <= min(dims[1]-1, centre[1]+radius[1]); x++ {
				for y := max(0, centre[2]-radius[2]); y <= min(dims[2]-1, centre[2]+radius[2]); y++ {
					dz := float64(z-centre[0]) / float64(radius[0])
					dx := float64(x-centre[1]) / float64(radius[1])
					dy := float64(y-centre[2]) / float64(radius[2])
					if dz*dz+dx*dx+dy*dy <= 1 {
						labels.Set(uint32(c), z, x, y)
					}
				}
			}
		}
	}
	return labels, nil
}
