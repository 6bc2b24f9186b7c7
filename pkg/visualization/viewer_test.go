package visualization

import (
	"errors"
	"fmt"
	"image"
	"math"
	"os"
	"path/filepath"
	"testing"

	"simexm/pkg/simerr"
	"simexm/pkg/volume"
)

// layeredVolume builds a (depth, width, height) volume where every voxel of
// z-plane z holds z+1.
func layeredVolume(depth, width, height int) *volume.Array {
	vol := volume.New(depth, width, height)
	for z := 0; z < depth; z++ {
		for x := 0; x < width; x++ {
			for y := 0; y < height; y++ {
				vol.Set(uint32(z+1), z, x, y)
			}
		}
	}
	return vol
}

// TestNewViewer verifies that a new viewer picks up the volume dimensions
func TestNewViewer(t *testing.T) {
	depth, width, height := 5, 10, 8
	viewer, err := NewViewer(layeredVolume(depth, width, height))
	if err != nil {
		t.Fatalf("NewViewer failed: %v", err)
	}

	if viewer.depth != depth {
		t.Errorf("Expected depth %d, got %d", depth, viewer.depth)
	}

	if viewer.width != width {
		t.Errorf("Expected width %d, got %d", width, viewer.width)
	}

	if viewer.height != height {
		t.Errorf("Expected height %d, got %d", height, viewer.height)
	}

	if viewer.peak != uint32(depth) {
		t.Errorf("Expected peak %d, got %d", depth, viewer.peak)
	}

	if _, err := NewViewer(volume.New(1, 2, 2, 2)); !errors.Is(err, simerr.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for rank-4 volume, got %v", err)
	}
}

// TestExtractSlice verifies that slices are correctly extracted from the volume
func TestExtractSlice(t *testing.T) {
	depth, width, height := 5, 10, 8
	viewer, err := NewViewer(layeredVolume(depth, width, height))
	if err != nil {
		t.Fatalf("NewViewer failed: %v", err)
	}

	for z := 0; z < depth; z++ {
		img, err := viewer.ExtractSlice("z", z)
		if err != nil {
			t.Fatalf("Failed to extract Z slice at position %d: %v", z, err)
		}

		bounds := img.Bounds()
		if bounds.Dx() != width || bounds.Dy() != height {
			t.Errorf("Expected Z slice dimensions %dx%d, got %dx%d",
				width, height, bounds.Dx(), bounds.Dy())
		}

		gray16Img, ok := img.(*image.Gray16)
		if !ok {
			t.Fatalf("Expected *image.Gray16, got %T", img)
		}

		expected := uint16(math.Round(float64(z+1) / float64(depth) * 65535))
		got := gray16Img.Gray16At(width/2, height/2).Y
		if got != expected {
			t.Errorf("Expected Z slice value %d at center, got %d", expected, got)
		}
	}

	imgX, err := viewer.ExtractSlice("x", width/2)
	if err != nil {
		t.Fatalf("Failed to extract X slice: %v", err)
	}
	if b := imgX.Bounds(); b.Dx() != depth || b.Dy() != height {
		t.Errorf("Expected X slice dimensions %dx%d, got %dx%d", depth, height, b.Dx(), b.Dy())
	}

	imgY, err := viewer.ExtractSlice("y", height/2)
	if err != nil {
		t.Fatalf("Failed to extract Y slice: %v", err)
	}
	if b := imgY.Bounds(); b.Dx() != depth || b.Dy() != width {
		t.Errorf("Expected Y slice dimensions %dx%d, got %dx%d", depth, width, b.Dx(), b.Dy())
	}

	if _, err := viewer.ExtractSlice("invalid", 0); err == nil {
		t.Error("Expected error for invalid axis, got nil")
	}

	if _, err := viewer.ExtractSlice("z", depth+1); err == nil {
		t.Error("Expected error for out of bounds position, got nil")
	}

	if _, err := viewer.ExtractSlice("z", -1); err == nil {
		t.Error("Expected error for negative position, got nil")
	}
}

// TestExtractSliceEmptyVolume checks that an all-zero volume renders black
func TestExtractSliceEmptyVolume(t *testing.T) {
	viewer, err := NewViewer(volume.New(2, 3, 3))
	if err != nil {
		t.Fatalf("NewViewer failed: %v", err)
	}
	img, err := viewer.ExtractSlice("z", 1)
	if err != nil {
		t.Fatalf("Failed to extract slice: %v", err)
	}
	if v := img.(*image.Gray16).Gray16At(1, 1).Y; v != 0 {
		t.Errorf("Expected black pixel, got %d", v)
	}
}

// TestExtractRegion verifies that 3D regions are correctly extracted
func TestExtractRegion(t *testing.T) {
	depth, width, height := 5, 10, 10
	vol := volume.New(depth, width, height)
	for z := 0; z < depth; z++ {
		for x := 0; x < width; x++ {
			for y := 0; y < height; y++ {
				vol.Set(uint32(z*100+x*10+y), z, x, y)
			}
		}
	}

	viewer, err := NewViewer(vol)
	if err != nil {
		t.Fatalf("NewViewer failed: %v", err)
	}

	start := volume.Voxel{Z: 1, X: 2, Y: 3}
	sizeZ, sizeX, sizeY := 2, 4, 3

	region, err := viewer.ExtractRegion(start, sizeZ, sizeX, sizeY)
	if err != nil {
		t.Fatalf("Failed to extract region: %v", err)
	}

	if region.Len() != sizeZ*sizeX*sizeY {
		t.Errorf("Expected region size %d, got %d", sizeZ*sizeX*sizeY, region.Len())
	}

	for z := 0; z < sizeZ; z++ {
		for x := 0; x < sizeX; x++ {
			for y := 0; y < sizeY; y++ {
				want := vol.At(start.Z+z, start.X+x, start.Y+y)
				if got := region.At(z, x, y); got != want {
					t.Errorf("Region value mismatch at (%d,%d,%d): expected %d, got %d", z, x, y, want, got)
				}
			}
		}
	}

	if _, err := viewer.ExtractRegion(volume.Voxel{Z: -1}, 1, 1, 1); err == nil {
		t.Error("Expected error for negative start coordinate, got nil")
	}

	if _, err := viewer.ExtractRegion(volume.Voxel{}, 0, 1, 1); err == nil {
		t.Error("Expected error for zero size, got nil")
	}

	if _, err := viewer.ExtractRegion(volume.Voxel{X: width - 1}, 1, 2, 1); err == nil {
		t.Error("Expected error for region extending beyond volume, got nil")
	}
}

// TestSaveSliceSequence verifies that a sequence of slices can be saved
func TestSaveSliceSequence(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping file I/O test in short mode")
	}

	tempDir := t.TempDir()
	depth := 3
	viewer, err := NewViewer(layeredVolume(depth, 5, 5))
	if err != nil {
		t.Fatalf("NewViewer failed: %v", err)
	}

	outputDir := filepath.Join(tempDir, "slices")
	if err := viewer.SaveSliceSequence("z", outputDir); err != nil {
		t.Fatalf("Failed to save slice sequence: %v", err)
	}

	for z := 0; z < depth; z++ {
		filename := filepath.Join(outputDir, fmt.Sprintf("slice_z_%03d.png", z))
		if _, err := os.Stat(filename); os.IsNotExist(err) {
			t.Errorf("Expected slice file does not exist: %s", filename)
		}
	}

	if err := viewer.SaveSliceSequence("invalid", outputDir); err == nil {
		t.Error("Expected error for invalid axis, got nil")
	}
}
