// Package config provides configuration loading and management for simexm.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"simexm/pkg/labeling"
	"simexm/pkg/simerr"
)

// Per-fluorophore ground-truth layouts for Output.GroundTruthCells.
const (
	GroundTruthNone     = "none"
	GroundTruthMerged   = "merged"
	GroundTruthSplitted = "splitted"
)

// Run describes one labeling call
type Run struct {
	// RegionType is the cell region to label (full, synapse, dendrite, ...)
	RegionType string `yaml:"regionType"`

	// Fluors lists the fluorophores, e.g. ATTO488, ATTO550, ATTO647N
	Fluors []string `yaml:"fluors"`

	// ProteinDensity is the expected number of proteins per cubic nanometer
	ProteinDensity float64 `yaml:"proteinDensity"`

	// LabelingDensity is the fraction of cells to label
	LabelingDensity float64 `yaml:"labelingDensity"`

	// AntibodyAmplificationFactor multiplies every protein count
	AntibodyAmplificationFactor int `yaml:"antibodyAmplificationFactor"`

	// FluorNoise is recorded with the run parameters
	FluorNoise float64 `yaml:"fluorNoise"`

	// MembraneOnly restricts labeling to cell membranes
	MembraneOnly bool `yaml:"membraneOnly"`

	// SingleNeuron labels exactly one random cell
	SingleNeuron bool `yaml:"singleNeuron"`
}

// Request converts the run into a labeling request.
func (r Run) Request() labeling.Request {
	return labeling.Request{
		RegionType:                  r.RegionType,
		Fluors:                      append([]string(nil), r.Fluors...),
		ProteinDensity:              r.ProteinDensity,
		LabelingDensity:             r.LabelingDensity,
		AntibodyAmplificationFactor: r.AntibodyAmplificationFactor,
		FluorNoise:                  r.FluorNoise,
		MembraneOnly:                r.MembraneOnly,
		SingleNeuron:                r.SingleNeuron,
	}
}

// Config represents the application configuration loaded from YAML
type Config struct {
	// Seed initializes the random source; equal seeds give equal simulations
	Seed uint64 `yaml:"seed"`

	// Dataset parameters
	Dataset struct {
		// VoxelDim is the physical voxel size in nm, (Z, X, Y)
		VoxelDim [3]float64 `yaml:"voxelDim"`

		// LabelVolume is an optional label volume written by the store package.
		// When empty, a synthetic phantom is generated instead.
		LabelVolume string `yaml:"labelVolume"`

		// Phantom parameters for the synthetic label volume
		Phantom struct {
			VolumeDim [3]int `yaml:"volumeDim"`
			Cells     int    `yaml:"cells"`
			MinRadius [3]int `yaml:"minRadius"`
			MaxRadius [3]int `yaml:"maxRadius"`
		} `yaml:"phantom"`
	} `yaml:"dataset"`

	// Labeling parameters
	Labeling struct {
		// Runs are applied in order to the same labeling unit
		Runs []Run `yaml:"runs"`

		// Noise adds background fluorophores to the merged volume
		Noise struct {
			Enabled                     bool    `yaml:"enabled"`
			Probability                 float64 `yaml:"probability"`
			Mean                        float64 `yaml:"mean"`
			AntibodyAmplificationFactor int     `yaml:"antibodyAmplificationFactor"`
		} `yaml:"noise"`

		// GroundTruthMembraneOnly keeps only membranes in the ground truth
		GroundTruthMembraneOnly bool `yaml:"groundTruthMembraneOnly"`
	} `yaml:"labeling"`

	// Expansion parameters
	Expansion struct {
		// Factor is the integer scale applied to every spatial axis
		Factor int `yaml:"factor"`
	} `yaml:"expansion"`

	// Output parameters
	Output struct {
		// SaveVolumes writes the fluorophore and ground-truth volumes
		SaveVolumes bool `yaml:"saveVolumes"`

		// SavePreviews writes PNG slices of each channel and the ground truth
		SavePreviews bool `yaml:"savePreviews"`

		// GroundTruthCells selects the per-fluorophore ground truth written
		// with the volumes: none, merged (all cells of a fluorophore in one
		// volume) or splitted (one volume per cell)
		GroundTruthCells string `yaml:"gtCells"`

		// LogLevel is one of info, debug or trace
		LogLevel string `yaml:"logLevel"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Seed = 1

	// Set default dataset parameters
	cfg.Dataset.VoxelDim = [3]float64{40, 8, 8}
	cfg.Dataset.Phantom.VolumeDim = [3]int{8, 64, 64}
	cfg.Dataset.Phantom.Cells = 20
	cfg.Dataset.Phantom.MinRadius = [3]int{1, 4, 4}
	cfg.Dataset.Phantom.MaxRadius = [3]int{3, 10, 10}

	// Set default labeling parameters
	cfg.Labeling.Runs = []Run{{
		RegionType:                  "full",
		Fluors:                      []string{"ATTO488", "ATTO550", "ATTO647N"},
		ProteinDensity:              0.80,
		LabelingDensity:             0.25,
		AntibodyAmplificationFactor: 5,
		FluorNoise:                  0.00001,
		MembraneOnly:                true,
	}}
	cfg.Labeling.Noise.Probability = 0.00001
	cfg.Labeling.Noise.Mean = 1
	cfg.Labeling.Noise.AntibodyAmplificationFactor = 5
	cfg.Labeling.GroundTruthMembraneOnly = true

	// Set default expansion parameters
	cfg.Expansion.Factor = 4

	// Set default output parameters
	cfg.Output.SaveVolumes = true
	cfg.Output.SavePreviews = false
	cfg.Output.GroundTruthCells = GroundTruthMerged
	cfg.Output.LogLevel = "info"

	return cfg
}

// Validate checks the configuration before a simulation starts
func (c *Config) Validate() error {
	for i, d := range c.Dataset.VoxelDim {
		if d <= 0 {
			return fmt.Errorf("%w: dataset.voxelDim[%d] = %v must be positive", simerr.ErrInvalidParameter, i, d)
		}
	}
	if c.Dataset.LabelVolume == "" {
		p := c.Dataset.Phantom
		for i := 0; i < 3; i++ {
			if p.VolumeDim[i] <= 0 {
				return fmt.Errorf("%w: dataset.phantom.volumeDim %v must be positive", simerr.ErrInvalidParameter, p.VolumeDim)
			}
		}
		if p.Cells < 0 {
			return fmt.Errorf("%w: dataset.phantom.cells %d is negative", simerr.ErrInvalidParameter, p.Cells)
		}
	}
	if len(c.Labeling.Runs) == 0 {
		return fmt.Errorf("%w: labeling.runs is empty", simerr.ErrInvalidParameter)
	}
	for i, r := range c.Labeling.Runs {
		if err := r.Request().Validate(); err != nil {
			return fmt.Errorf("labeling.runs[%d]: %w", i, err)
		}
	}
	if n := c.Labeling.Noise; n.Enabled {
		noise := labeling.NoiseParams{
			Probability:                 n.Probability,
			Mean:                        n.Mean,
			AntibodyAmplificationFactor: n.AntibodyAmplificationFactor,
		}
		if err := noise.Validate(); err != nil {
			return fmt.Errorf("labeling.noise: %w", err)
		}
	}
	switch c.Output.GroundTruthCells {
	case "", GroundTruthNone, GroundTruthMerged, GroundTruthSplitted:
	default:
		return fmt.Errorf("%w: output.gtCells %q must be none, merged or splitted", simerr.ErrInvalidParameter, c.Output.GroundTruthCells)
	}
	if c.Expansion.Factor < 1 {
		return fmt.Errorf("%w: expansion.factor %d must be positive", simerr.ErrInvalidParameter, c.Expansion.Factor)
	}
	return nil
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	// Marshal config to YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	// Write to file
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
