package expansion

import (
	"errors"
	"testing"

	"simexm/pkg/simerr"
	"simexm/pkg/volume"
)

// patterned fills a volume with distinct values, leaving some zeros.
func patterned(shape ...int) *volume.Array {
	a := volume.New(shape...)
	for i := range a.Data() {
		if i%3 != 0 {
			a.Data()[i] = uint32(i * 7)
		}
	}
	return a
}

// TestNew checks factor validation
func TestNew(t *testing.T) {
	for _, f := range []int{0, -1, -20} {
		if _, err := New(f); !errors.Is(err, simerr.ErrInvalidParameter) {
			t.Errorf("Factor %d: expected ErrInvalidParameter, got %v", f, err)
		}
	}

	u, err := New(20)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if u.ExpansionFactor() != 20 {
		t.Errorf("Expected factor 20, got %d", u.ExpansionFactor())
	}
	params := u.Parameters()
	if params["factor"] != 20 || params["offset"] != 10 {
		t.Errorf("Unexpected parameters %v", params)
	}
}

// TestExpandVolumeIdentity verifies that factor 1 leaves the volume unchanged
func TestExpandVolumeIdentity(t *testing.T) {
	u, _ := New(1)
	in := patterned(2, 3, 4, 5)
	out, err := u.ExpandVolume(in)
	if err != nil {
		t.Fatalf("ExpandVolume failed: %v", err)
	}
	if !out.Equal(in) {
		t.Error("Factor 1 must return the input unchanged")
	}
}

// TestExpandVolume checks shape, placement and conservation
func TestExpandVolume(t *testing.T) {
	for _, f := range []int{2, 3, 4} {
		u, _ := New(f)
		in := patterned(2, 2, 3, 2)
		out, err := u.ExpandVolume(in)
		if err != nil {
			t.Fatalf("ExpandVolume failed: %v", err)
		}

		want := []int{2, 2 * f, 3 * f, 2 * f}
		got := out.Shape()
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("Factor %d: expected shape %v, got %v", f, want, got)
			}
		}

		for c := 0; c < 2; c++ {
			if out.ChannelSum(c) != in.ChannelSum(c) {
				t.Errorf("Factor %d channel %d: total %d, want %d", f, c, out.ChannelSum(c), in.ChannelSum(c))
			}
		}

		o := u.Offset()
		for c := 0; c < 2; c++ {
			for z := 0; z < 2*f; z++ {
				for x := 0; x < 3*f; x++ {
					for y := 0; y < 2*f; y++ {
						v := out.At(c, z, x, y)
						designated := z%f == o && x%f == o && y%f == o
						if !designated && v != 0 {
							t.Fatalf("Factor %d: padding voxel (%d,%d,%d,%d) is %d", f, c, z, x, y, v)
						}
						if designated && v != in.At(c, z/f, x/f, y/f) {
							t.Fatalf("Factor %d: voxel (%d,%d,%d,%d) is %d, want %d", f, c, z, x, y, v, in.At(c, z/f, x/f, y/f))
						}
					}
				}
			}
		}
	}
}

// TestGroundTruthRoundTrip expands then shrinks label volumes
func TestGroundTruthRoundTrip(t *testing.T) {
	gt := volume.New(3, 2, 4)
	for i := range gt.Data() {
		gt.Data()[i] = uint32(i%5) * 1000
	}

	for _, f := range []int{1, 2, 3} {
		u, _ := New(f)
		expanded, err := u.ExpandGroundTruth(gt)
		if err != nil {
			t.Fatalf("ExpandGroundTruth failed: %v", err)
		}
		if sp := expanded.Spatial(); sp != [3]int{3 * f, 2 * f, 4 * f} {
			t.Fatalf("Factor %d: unexpected shape %v", f, sp)
		}

		// every non-zero output voxel carries an id present in the input
		ids := make(map[uint32]bool)
		for _, v := range gt.Data() {
			ids[v] = true
		}
		for _, v := range expanded.Data() {
			if !ids[v] {
				t.Fatalf("Factor %d: label %d not in the source", f, v)
			}
		}

		back, err := u.ShrinkGroundTruth(expanded)
		if err != nil {
			t.Fatalf("ShrinkGroundTruth failed: %v", err)
		}
		if !back.Equal(gt) {
			t.Errorf("Factor %d: round trip does not recover the ground truth", f)
		}
	}
}

// TestVolumeRoundTrip expands then shrinks a fluorophore volume
func TestVolumeRoundTrip(t *testing.T) {
	in := patterned(3, 2, 2, 3)
	for _, f := range []int{1, 2, 3} {
		u, _ := New(f)
		expanded, err := u.ExpandVolume(in)
		if err != nil {
			t.Fatalf("ExpandVolume failed: %v", err)
		}
		back, err := u.ShrinkVolume(expanded)
		if err != nil {
			t.Fatalf("ShrinkVolume failed: %v", err)
		}
		if !back.Equal(in) {
			t.Errorf("Factor %d: round trip does not recover the volume", f)
		}
	}
}

// TestRankChecks rejects arrays of the wrong rank
func TestRankChecks(t *testing.T) {
	u, _ := New(2)
	if _, err := u.ExpandVolume(volume.New(2, 2, 2)); !errors.Is(err, simerr.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for rank-3 fluorophore volume, got %v", err)
	}
	if _, err := u.ExpandVolume(nil); !errors.Is(err, simerr.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for nil volume, got %v", err)
	}
	if _, err := u.ExpandGroundTruth(volume.New(1, 2, 2, 2)); !errors.Is(err, simerr.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for rank-4 ground truth, got %v", err)
	}
	if _, err := u.ShrinkGroundTruth(volume.New(3, 4, 4)); !errors.Is(err, simerr.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for indivisible shape, got %v", err)
	}
	if _, err := u.ShrinkVolume(volume.New(3, 4, 4)); !errors.Is(err, simerr.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for rank-3 volume, got %v", err)
	}
}
