// Package simulation runs the labeling and expansion pipeline end to end:
// build a dataset, label it with one or more runs, add background noise,
// render the ground truth, expand both volumes and write the results.
package simulation

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"simexm/internal/logging"
	"simexm/internal/models"
	"simexm/pkg/config"
	"simexm/pkg/expansion"
	"simexm/pkg/labeling"
	"simexm/pkg/sampling"
	"simexm/pkg/store"
	"simexm/pkg/visualization"
	"simexm/pkg/volume"
)

// Stored volume names under the output directory.
const (
	FluorescenceName = "fluorescence"
	GroundTruthName  = "ground_truth"
	ParametersName   = "parameters"

	// FluorGroundTruthDir holds per-fluorophore ground truth as
	// <fluor>/all_cells or <fluor>/<cell id>
	FluorGroundTruthDir = "groundtruth"
	AllCellsName        = "all_cells"
)

// ChannelMetrics summarizes one fluorophore channel of the expanded volume.
type ChannelMetrics struct {
	Fluor string `yaml:"fluor"`

	// Total is the number of fluorophores in the channel
	Total uint64 `yaml:"total"`

	// Nonzero is the number of voxels holding at least one fluorophore
	Nonzero int `yaml:"nonzero"`

	// Mean and StdDev are taken over the nonzero voxels
	Mean   float64 `yaml:"mean"`
	StdDev float64 `yaml:"stdDev"`

	// LabeledCells is the number of cells carrying this fluorophore
	LabeledCells int `yaml:"labeledCells"`
}

// Metrics holds the summary statistics of a completed simulation.
type Metrics struct {
	Cells             int              `yaml:"cells"`
	Invocations       int              `yaml:"invocations"`
	Channels          []ChannelMetrics `yaml:"channels"`
	GroundTruthVoxels int              `yaml:"groundTruthVoxels"`
	ExpandedShape     []int            `yaml:"expandedShape"`
}

// Params holds the simulation parameters.
type Params struct {
	// Config is the validated simulation configuration
	Config *config.Config

	// OutputDir receives volumes, parameters and previews
	OutputDir string

	// NumCores bounds the number of preview writers running at once
	NumCores int

	// Logger receives progress records; nil discards them
	Logger *slog.Logger
}

// Simulator runs one simulation. The steps are:
// 1. Building the dataset from a stored label volume or a phantom
// 2. Applying every labeling run
// 3. Merging runs and adding background noise
// 4. Rendering the ground truth
// 5. Expanding both volumes
// 6. Calculating metrics and writing the outputs
type Simulator struct {
	params  *Params
	cfg     *config.Config
	logger  *slog.Logger
	sampler *sampling.Sampler

	dataset  *models.Dataset
	unit     *labeling.BrainbowUnit
	expander *expansion.Unit

	// fluorescence is (C, Z, X, Y) and groundTruth is (Z, X, Y), both expanded
	fluorescence *volume.Array
	groundTruth  *volume.Array

	metrics Metrics
}

// NewSimulator validates the configuration and creates a simulator.
func NewSimulator(params *Params) (*Simulator, error) {
	if params == nil || params.Config == nil {
		return nil, fmt.Errorf("simulation needs a configuration")
	}
	if err := params.Config.Validate(); err != nil {
		return nil, err
	}
	expander, err := expansion.New(params.Config.Expansion.Factor)
	if err != nil {
		return nil, err
	}
	logger := params.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Simulator{
		params:   params,
		cfg:      params.Config,
		logger:   logger,
		sampler:  sampling.New(params.Config.Seed),
		expander: expander,
	}, nil
}

// Process runs the complete simulation pipeline
func (s *Simulator) Process() error {
	// Step 1: Build the dataset
	s.logger.Info("Step 1: Building dataset")
	if err := s.loadDataset(); err != nil {
		return fmt.Errorf("failed to build dataset: %w", err)
	}

	// Step 2: Label cells
	s.logger.Info("Step 2: Labeling cells", "runs", len(s.cfg.Labeling.Runs))
	s.unit = labeling.NewBrainbowUnit(s.dataset, s.sampler)
	for i, run := range s.cfg.Labeling.Runs {
		if err := s.unit.LabelCells(run.Request()); err != nil {
			return fmt.Errorf("labeling run %d failed: %w", i, err)
		}
		s.logger.Debug("labeling run complete", "run", i, "region", run.RegionType, "fluors", run.Fluors)
	}
	for _, fluor := range s.unit.FluorsUsed() {
		for _, id := range s.unit.LabeledCells(fluor) {
			s.logger.Log(context.Background(), logging.LevelTrace, "labeled cell", "fluor", fluor, "cell", id, "regions", s.unit.LabeledRegions(id))
		}
	}

	// Step 3: Merge runs and add noise
	s.logger.Info("Step 3: Merging labeled volumes")
	fluo, err := s.unit.LabeledVolume()
	if err != nil {
		return fmt.Errorf("failed to merge labeled volumes: %w", err)
	}
	if n := s.cfg.Labeling.Noise; n.Enabled {
		s.logger.Info("Adding background noise", "probability", n.Probability, "mean", n.Mean)
		noise := labeling.NoiseParams{
			Probability:                 n.Probability,
			Mean:                        n.Mean,
			AntibodyAmplificationFactor: n.AntibodyAmplificationFactor,
		}
		if err := s.unit.AddNoise(fluo, noise); err != nil {
			return fmt.Errorf("failed to add noise: %w", err)
		}
	}

	// Step 4: Render ground truth
	s.logger.Info("Step 4: Rendering ground truth", "membraneOnly", s.cfg.Labeling.GroundTruthMembraneOnly)
	gt, err := s.unit.GroundTruth(s.cfg.Labeling.GroundTruthMembraneOnly)
	if err != nil {
		return fmt.Errorf("failed to render ground truth: %w", err)
	}

	// Step 5: Expand
	s.logger.Info("Step 5: Expanding volumes", "factor", s.expander.ExpansionFactor())
	if s.fluorescence, err = s.expander.ExpandVolume(fluo); err != nil {
		return fmt.Errorf("failed to expand fluorophore volume: %w", err)
	}
	if s.groundTruth, err = s.expander.ExpandGroundTruth(gt); err != nil {
		return fmt.Errorf("failed to expand ground truth: %w", err)
	}

	// Step 6: Metrics and outputs
	s.logger.Info("Step 6: Calculating metrics")
	s.calculateMetrics()
	if err := s.save(); err != nil {
		return fmt.Errorf("failed to save outputs: %w", err)
	}
	return nil
}

// loadDataset reads the configured label volume, or draws a phantom when none is set.
func (s *Simulator) loadDataset() error {
	var labels *volume.Array
	if path := s.cfg.Dataset.LabelVolume; path != "" {
		var err error
		labels, _, err = store.ReadArray(filepath.Dir(path), filepath.Base(path))
		if err != nil {
			return err
		}
		s.logger.Info("Loaded label volume", "path", path, "shape", labels.Shape())
	} else {
		p := s.cfg.Dataset.Phantom
		var err error
		labels, err = models.Phantom(models.PhantomParams{
			VolumeDim: p.VolumeDim,
			Cells:     p.Cells,
			MinRadius: p.MinRadius,
			MaxRadius: p.MaxRadius,
		}, s.sampler)
		if err != nil {
			return err
		}
		s.logger.Info("Generated phantom", "shape", labels.Shape(), "cells", p.Cells)
	}

	ds, err := models.FromLabelVolume(labels, s.cfg.Dataset.VoxelDim)
	if err != nil {
		return err
	}
	s.dataset = ds
	s.logger.Debug("dataset ready", "cells", len(ds.CellIDs()), "voxelDim", ds.VoxelDim())
	return nil
}

// calculateMetrics summarizes the expanded volumes.
func (s *Simulator) calculateMetrics() {
	s.metrics = Metrics{
		Cells:         len(s.dataset.CellIDs()),
		Invocations:   s.unit.Invocations(),
		ExpandedShape: s.fluorescence.Shape(),
	}

	for c, fluor := range s.unit.FluorsUsed() {
		var nonzero []float64
		for _, v := range s.fluorescence.ChannelData(c) {
			if v > 0 {
				nonzero = append(nonzero, float64(v))
			}
		}
		m := ChannelMetrics{
			Fluor:        fluor,
			Total:        s.fluorescence.ChannelSum(c),
			Nonzero:      len(nonzero),
			LabeledCells: len(s.unit.LabeledCells(fluor)),
		}
		if len(nonzero) > 0 {
			m.Mean, m.StdDev = stat.MeanStdDev(nonzero, nil)
		}
		s.metrics.Channels = append(s.metrics.Channels, m)
		s.logger.Info("Channel summary",
			"fluor", fluor,
			"total", m.Total,
			"share", channelShare(m.Total, s.fluorescence),
			"labeledCells", m.LabeledCells,
			"mean", m.Mean,
			"stdDev", m.StdDev)
	}

	for _, v := range s.groundTruth.Data() {
		if v != 0 {
			s.metrics.GroundTruthVoxels++
		}
	}
}

// channelShare is the fraction of all fluorophores that fall in one channel.
func channelShare(total uint64, fluo *volume.Array) float64 {
	totals := make([]float64, fluo.Channels())
	for c := range totals {
		totals[c] = float64(fluo.ChannelSum(c))
	}
	sum := floats.Sum(totals)
	if sum == 0 {
		return 0
	}
	return float64(total) / sum
}

// save writes the volumes, the parameter record and optional previews.
func (s *Simulator) save() error {
	out := s.cfg.Output
	if !out.SaveVolumes && !out.SavePreviews {
		return nil
	}
	dir := s.params.OutputDir

	if out.SaveVolumes {
		if err := store.WriteArray(dir, FluorescenceName, s.fluorescence, "CZXY", s.unit.FluorsUsed()); err != nil {
			return err
		}
		if err := store.WriteArray(dir, GroundTruthName, s.groundTruth, "ZXY", nil); err != nil {
			return err
		}
		if err := store.WriteYAML(dir, ParametersName, s.record()); err != nil {
			return err
		}
		if err := s.saveFluorGroundTruth(filepath.Join(dir, FluorGroundTruthDir)); err != nil {
			return err
		}
		s.logger.Info("Saved volumes", "dir", dir)
	}

	if out.SavePreviews {
		if err := s.savePreviews(filepath.Join(dir, "previews")); err != nil {
			return err
		}
	}
	return nil
}

// saveFluorGroundTruth writes the expanded ground truth of every fluorophore,
// either all of its cells in one volume or one volume per cell.
func (s *Simulator) saveFluorGroundTruth(dir string) error {
	mode := s.cfg.Output.GroundTruthCells
	if mode == "" || mode == config.GroundTruthNone {
		return nil
	}
	membraneOnly := s.cfg.Labeling.GroundTruthMembraneOnly

	for _, fluor := range s.unit.FluorsUsed() {
		fluorDir := filepath.Join(dir, fluor)
		if mode == config.GroundTruthMerged {
			gt, err := s.unit.GroundTruthFor(fluor, membraneOnly)
			if err != nil {
				return err
			}
			if err := s.writeGroundTruth(fluorDir, AllCellsName, gt); err != nil {
				return err
			}
			continue
		}

		for _, id := range s.unit.LabeledCells(fluor) {
			gt, err := s.unit.GroundTruthForCell(fluor, id, membraneOnly)
			if err != nil {
				return err
			}
			if err := s.writeGroundTruth(fluorDir, strconv.FormatUint(uint64(id), 10), gt); err != nil {
				return err
			}
		}
	}
	s.logger.Info("Saved per-fluorophore ground truth", "dir", dir, "mode", mode)
	return nil
}

func (s *Simulator) writeGroundTruth(dir, name string, gt *volume.Array) error {
	expanded, err := s.expander.ExpandGroundTruth(gt)
	if err != nil {
		return err
	}
	return store.WriteArray(dir, name, expanded, "ZXY", nil)
}

// record collects every parameter that influenced the simulation.
func (s *Simulator) record() map[string]any {
	return map[string]any{
		"seed":      s.cfg.Seed,
		"dataset":   s.dataset.Parameters(),
		"labeling":  s.unit.Parameters(),
		"expansion": s.expander.Parameters(),
		"metrics":   s.metrics,
	}
}

// savePreviews writes z-slices of every channel and of the ground truth in parallel.
func (s *Simulator) savePreviews(dir string) error {
	type previewTask struct {
		name string
		vol  *volume.Array
	}
	var tasks []previewTask
	for c, fluor := range s.unit.FluorsUsed() {
		tasks = append(tasks, previewTask{name: fluor, vol: s.fluorescence.Channel(c)})
	}
	tasks = append(tasks, previewTask{name: GroundTruthName, vol: s.groundTruth})

	workers := s.params.NumCores
	if workers < 1 {
		workers = runtime.NumCPU()
	}
	sem := make(chan struct{}, workers)

	type previewResult struct {
		name string
		err  error
	}
	resultChan := make(chan previewResult)

	for _, task := range tasks {
		go func(t previewTask) {
			sem <- struct{}{}
			defer func() { <-sem }()

			viewer, err := visualization.NewViewer(t.vol)
			if err == nil {
				err = viewer.SaveSliceSequence("z", filepath.Join(dir, t.name))
			}
			resultChan <- previewResult{name: t.name, err: err}
		}(task)
	}

	var failed []string
	var firstErr error
	for range tasks {
		res := <-resultChan
		if res.err != nil {
			failed = append(failed, res.name)
			if firstErr == nil {
				firstErr = res.err
			}
			continue
		}
		s.logger.Debug("preview saved", "name", res.name)
	}
	if firstErr != nil {
		sort.Strings(failed)
		return fmt.Errorf("previews failed for %v: %w", failed, firstErr)
	}
	s.logger.Info("Saved previews", "dir", dir, "count", len(tasks))
	return nil
}

// GetMetrics returns the metrics of the last completed run
func (s *Simulator) GetMetrics() Metrics {
	return s.metrics
}

// Fluorescence returns the expanded (C, Z, X, Y) fluorophore volume.
func (s *Simulator) Fluorescence() *volume.Array {
	return s.fluorescence
}

// GroundTruth returns the expanded (Z, X, Y) ground-truth volume.
func (s *Simulator) GroundTruth() *volume.Array {
	return s.groundTruth
}

// Fluors returns the channel names in channel order.
func (s *Simulator) Fluors() []string {
	if s.unit == nil {
		return nil
	}
	return s.unit.FluorsUsed()
}
