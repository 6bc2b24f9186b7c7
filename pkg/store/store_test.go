package store

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"simexm/pkg/simerr"
	"simexm/pkg/volume"
)

// TestWriteReadArray stores a fluorophore volume and loads it back
func TestWriteReadArray(t *testing.T) {
	dir := t.TempDir()
	a := volume.New(2, 3, 4, 5)
	for i := range a.Data() {
		a.Data()[i] = uint32(i * i)
	}

	if err := WriteArray(dir, "fluo", a, "CZXY", []string{"ATTO488", "ATTO550"}); err != nil {
		t.Fatalf("WriteArray failed: %v", err)
	}

	b, header, err := ReadArray(dir, "fluo")
	if err != nil {
		t.Fatalf("ReadArray failed: %v", err)
	}
	if !a.Equal(b) {
		t.Error("Loaded volume differs from the stored one")
	}
	if header.Axes != "CZXY" || len(header.Channels) != 2 || header.Channels[1] != "ATTO550" {
		t.Errorf("Unexpected header %+v", header)
	}
}

// TestWriteArrayAxesMismatch rejects axes that do not match the rank
func TestWriteArrayAxesMismatch(t *testing.T) {
	if err := WriteArray(t.TempDir(), "gt", volume.New(2, 2, 2), "CZXY", nil); !errors.Is(err, simerr.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
	if err := WriteArray(t.TempDir(), "gt", nil, "ZXY", nil); !errors.Is(err, simerr.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for nil volume, got %v", err)
	}
}

// TestReadArrayBadHeader rejects unknown dtypes and missing files
func TestReadArrayBadHeader(t *testing.T) {
	dir := t.TempDir()
	if _, _, err := ReadArray(dir, "missing"); err == nil {
		t.Error("Expected error for missing volume")
	}

	header := "shape: [2]\ndtype: float32\ncodec: zstd\naxes: Z\n"
	if err := os.WriteFile(filepath.Join(dir, "f.yaml"), []byte(header), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if _, _, err := ReadArray(dir, "f"); !errors.Is(err, simerr.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for float32 dtype, got %v", err)
	}
}

// TestWriteYAML writes a parameter record
func TestWriteYAML(t *testing.T) {
	dir := t.TempDir()
	if err := WriteYAML(dir, "params", map[string]any{"factor": 4}); err != nil {
		t.Fatalf("WriteYAML failed: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "params.yaml"))
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if !strings.Contains(string(data), "factor: 4") {
		t.Errorf("Unexpected YAML %q", data)
	}
}
