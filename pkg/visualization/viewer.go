package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"

	"simexm/pkg/simerr"
	"simexm/pkg/volume"
)

// Viewer extracts planes and sub-regions from a single (Z, X, Y) volume, such
// as one fluorophore channel or a ground-truth label volume, and writes them
// out as 16-bit grayscale images for inspection.
type Viewer struct {
	// vol holds the volume being inspected
	vol *volume.Array

	// dimensions of the volume
	depth  int
	width  int
	height int

	// peak is the largest value in the volume, used to normalize intensities
	peak uint32
}

// NewViewer creates a viewer over a rank-3 volume.
func NewViewer(vol *volume.Array) (*Viewer, error) {
	if vol == nil || vol.Rank() != 3 {
		return nil, fmt.Errorf("%w: viewer needs a rank-3 volume", simerr.ErrInvalidInput)
	}
	sp := vol.Spatial()
	v := &Viewer{
		vol:    vol,
		depth:  sp[0],
		width:  sp[1],
		height: sp[2],
	}
	for _, val := range vol.Data() {
		if val > v.peak {
			v.peak = val
		}
	}
	return v, nil
}

// gray maps a raw value onto the 16-bit range, scaled by the volume peak.
func (v *Viewer) gray(val uint32) color.Gray16 {
	if v.peak == 0 {
		return color.Gray16{}
	}
	scaled := math.Round(float64(val) / float64(v.peak) * 65535)
	return color.Gray16{Y: uint16(math.Min(65535, scaled))}
}

// ExtractSlice extracts a 2D plane from the volume along the specified axis.
// A "z" slice spans the X (columns) and Y (rows) axes, an "x" slice spans Z and
// Y, and a "y" slice spans Z and X.
func (v *Viewer) ExtractSlice(axis string, position int) (image.Image, error) {
	if position < 0 {
		return nil, fmt.Errorf("position must be non-negative")
	}

	var img *image.Gray16

	switch axis {
	case "z", "Z":
		if position >= v.depth {
			return nil, fmt.Errorf("position %d exceeds depth %d", position, v.depth)
		}
		img = image.NewGray16(image.Rect(0, 0, v.width, v.height))
		for x := 0; x < v.width; x++ {
			for y := 0; y < v.height; y++ {
				img.SetGray16(x, y, v.gray(v.vol.At(position, x, y)))
			}
		}

	case "x", "X":
		if position >= v.width {
			return nil, fmt.Errorf("position %d exceeds width %d", position, v.width)
		}
		img = image.NewGray16(image.Rect(0, 0, v.depth, v.height))
		for z := 0; z < v.depth; z++ {
			for y := 0; y < v.height; y++ {
				img.SetGray16(z, y, v.gray(v.vol.At(z, position, y)))
			}
		}

	case "y", "Y":
		if position >= v.height {
			return nil, fmt.Errorf("position %d exceeds height %d", position, v.height)
		}
		img = image.NewGray16(image.Rect(0, 0, v.depth, v.width))
		for z := 0; z < v.depth; z++ {
			for x := 0; x < v.width; x++ {
				img.SetGray16(z, x, v.gray(v.vol.At(z, x, position)))
			}
		}

	default:
		return nil, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}

	return img, nil
}

// ExtractRegion copies a (Z, X, Y) box out of the volume.
func (v *Viewer) ExtractRegion(start volume.Voxel, sizeZ, sizeX, sizeY int) (*volume.Array, error) {
	if start.Z < 0 || start.X < 0 || start.Y < 0 {
		return nil, fmt.Errorf("start coordinates must be non-negative")
	}

	if sizeZ <= 0 || sizeX <= 0 || sizeY <= 0 {
		return nil, fmt.Errorf("size dimensions must be positive")
	}

	if start.Z+sizeZ > v.depth || start.X+sizeX > v.width || start.Y+sizeY > v.height {
		return nil, fmt.Errorf("region extends beyond volume boundaries")
	}

	region := volume.New(sizeZ, sizeX, sizeY)
	for z := 0; z < sizeZ; z++ {
		for x := 0; x < sizeX; x++ {
			for y := 0; y < sizeY; y++ {
				region.Set(v.vol.At(start.Z+z, start.X+x, start.Y+y), z, x, y)
			}
		}
	}

	return region, nil
}

// SaveSlice saves an extracted slice as a PNG image
func (v *Viewer) SaveSlice(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	return png.Encode(file, img)
}

// SaveSliceSequence extracts and saves every slice along the specified axis
func (v *Viewer) SaveSliceSequence(axis string, outputDir string) error {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}

	var maxPos int
	switch axis {
	case "z", "Z":
		maxPos = v.depth
	case "x", "X":
		maxPos = v.width
	case "y", "Y":
		maxPos = v.height
	default:
		return fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}

	for pos := 0; pos < maxPos; pos++ {
		img, err := v.ExtractSlice(axis, pos)
		if err != nil {
			return err
		}

		filename := filepath.Join(outputDir, fmt.Sprintf("slice_%s_%03d.png", axis, pos))
		if err := v.SaveSlice(img, filename); err != nil {
			return err
		}
	}

	return nil
}
