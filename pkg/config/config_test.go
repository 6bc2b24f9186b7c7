package config

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"simexm/pkg/simerr"
)

// TestDefaultConfig verifies that the defaults are usable as-is
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default config does not validate: %v", err)
	}
	if cfg.Dataset.VoxelDim != [3]float64{40, 8, 8} {
		t.Errorf("Unexpected default voxel dims %v", cfg.Dataset.VoxelDim)
	}
	if len(cfg.Labeling.Runs) != 1 || len(cfg.Labeling.Runs[0].Fluors) != 3 {
		t.Errorf("Unexpected default runs %+v", cfg.Labeling.Runs)
	}
}

// TestLoadMissingFile falls back to defaults
func TestLoadMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Expansion.Factor != DefaultConfig().Expansion.Factor {
		t.Errorf("Expected default expansion factor, got %d", cfg.Expansion.Factor)
	}
}

// TestSaveAndLoad writes a config and reads it back
func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "sim.yaml")

	cfg := DefaultConfig()
	cfg.Seed = 1234
	cfg.Expansion.Factor = 3
	cfg.Labeling.Runs = append(cfg.Labeling.Runs, Run{
		RegionType:      "synapse",
		Fluors:          []string{"ATTO425"},
		ProteinDensity:  1e-3,
		LabelingDensity: 0.1,
		SingleNeuron:    true,
	})

	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if loaded.Seed != 1234 || loaded.Expansion.Factor != 3 {
		t.Errorf("Scalar fields not restored: seed=%d factor=%d", loaded.Seed, loaded.Expansion.Factor)
	}
	if len(loaded.Labeling.Runs) != 2 {
		t.Fatalf("Expected 2 runs, got %d", len(loaded.Labeling.Runs))
	}
	r := loaded.Labeling.Runs[1]
	if r.RegionType != "synapse" || r.Fluors[0] != "ATTO425" || !r.SingleNeuron || r.ProteinDensity != 1e-3 {
		t.Errorf("Run not restored: %+v", r)
	}
}

// TestLoadPartialFile keeps defaults for keys the file omits
func TestLoadPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.yaml")
	content := []byte("seed: 9\nexpansion:\n  factor: 2\nlabeling:\n  runs:\n    - regionType: full\n      fluors: [ATTO550]\n      proteinDensity: 0.5\n      labelingDensity: 1\n")
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Seed != 9 || cfg.Expansion.Factor != 2 {
		t.Errorf("Unexpected seed/factor %d/%d", cfg.Seed, cfg.Expansion.Factor)
	}
	if len(cfg.Labeling.Runs) != 1 || cfg.Labeling.Runs[0].Fluors[0] != "ATTO550" {
		t.Errorf("Runs not replaced: %+v", cfg.Labeling.Runs)
	}
	if cfg.Dataset.VoxelDim != DefaultConfig().Dataset.VoxelDim {
		t.Errorf("Voxel dims should keep defaults, got %v", cfg.Dataset.VoxelDim)
	}

	req := cfg.Labeling.Runs[0].Request()
	if req.ProteinDensity != 0.5 || req.LabelingDensity != 1 || req.RegionType != "full" {
		t.Errorf("Unexpected request %+v", req)
	}
}

// TestLoadInvalidYAML reports parse errors
func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("seed: [unterminated"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Error("Expected parse error, got nil")
	}
}

// TestValidate rejects out-of-range values
func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"zero voxel dim", func(c *Config) { c.Dataset.VoxelDim[1] = 0 }},
		{"zero phantom dim", func(c *Config) { c.Dataset.Phantom.VolumeDim[0] = 0 }},
		{"no runs", func(c *Config) { c.Labeling.Runs = nil }},
		{"bad run", func(c *Config) { c.Labeling.Runs[0].LabelingDensity = 2 }},
		{"zero factor", func(c *Config) { c.Expansion.Factor = 0 }},
		{"NaN protein density", func(c *Config) { c.Labeling.Runs[0].ProteinDensity = math.NaN() }},
		{"NaN noise mean", func(c *Config) {
			c.Labeling.Noise.Enabled = true
			c.Labeling.Noise.Mean = math.NaN()
		}},
		{"noise probability above one", func(c *Config) {
			c.Labeling.Noise.Enabled = true
			c.Labeling.Noise.Probability = 3
		}},
		{"unknown gtCells", func(c *Config) { c.Output.GroundTruthCells = "per-cell" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			if err := cfg.Validate(); !errors.Is(err, simerr.ErrInvalidParameter) {
				t.Errorf("Expected ErrInvalidParameter, got %v", err)
			}
		})
	}
}

// TestCreateDefaultConfigFile writes a loadable default file
func TestCreateDefaultConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "default.yaml")
	if err := CreateDefaultConfigFile(path); err != nil {
		t.Fatalf("CreateDefaultConfigFile failed: %v", err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default file does not validate: %v", err)
	}
}
