package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"simexm/internal/logging"
	"simexm/pkg/config"
	"simexm/pkg/simulation"
)

func main() {
	// Parse command line arguments
	configPath := flag.String("config", "simexm.yaml", "Simulation configuration file (defaults are used if it does not exist)")
	outputDir := flag.String("output", "simexm_output", "Directory for volumes, parameters and previews")
	seed := flag.Uint64("seed", 0, "Random seed (overrides the configuration when non-zero)")
	logLevel := flag.String("log-level", "", "Log level: info, debug or trace (overrides the configuration)")
	numCores := flag.Int("cores", runtime.NumCPU(), "Number of CPU cores used for preview rendering")
	preview := flag.Bool("preview", false, "Save PNG z-slices of every channel and the ground truth")
	writeDefault := flag.Bool("write-default-config", false, "Write the default configuration to -config and exit")
	flag.Parse()

	if *writeDefault {
		if err := config.CreateDefaultConfigFile(*configPath); err != nil {
			log.Fatalf("Failed to write default configuration: %v", err)
		}
		fmt.Printf("Default configuration written to: %s\n", *configPath)
		return
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *seed != 0 {
		cfg.Seed = *seed
	}
	if *logLevel != "" {
		cfg.Output.LogLevel = *logLevel
	}
	if *preview {
		cfg.Output.SavePreviews = true
	}

	outputPath, err := filepath.Abs(*outputDir)
	if err != nil {
		log.Fatalf("Failed to resolve output directory: %v", err)
	}

	fmt.Println("================================")
	fmt.Println("SIMEXM: FLUORESCENT LABELING AND EXPANSION SIMULATION")
	fmt.Println("================================")

	params := &simulation.Params{
		Config:    cfg,
		OutputDir: outputPath,
		NumCores:  *numCores,
		Logger:    logging.NewLogger(cfg.Output.LogLevel, os.Stderr),
	}

	simulator, err := simulation.NewSimulator(params)
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Run the simulation pipeline
	fmt.Printf("Starting simulation with seed %d...\n", cfg.Seed)
	startTime := time.Now()
	if err := simulator.Process(); err != nil {
		log.Fatalf("Simulation failed: %v", err)
	}
	processingTime := time.Since(startTime)

	metrics := simulator.GetMetrics()
	fmt.Printf("\nSimulation completed successfully in %.2f seconds!\n", processingTime.Seconds())
	fmt.Printf("Cells: %d, labeling runs: %d, expanded shape: %v\n", metrics.Cells, metrics.Invocations, metrics.ExpandedShape)
	fmt.Printf("Ground-truth voxels: %d\n\n", metrics.GroundTruthVoxels)

	fmt.Printf("Channel summary:\n")
	fmt.Printf("=======================================\n")
	for _, ch := range metrics.Channels {
		fmt.Printf("%-10s total=%-10d cells=%-4d voxels=%-8d mean=%.2f stddev=%.2f\n",
			ch.Fluor, ch.Total, ch.LabeledCells, ch.Nonzero, ch.Mean, ch.StdDev)
	}

	if cfg.Output.SaveVolumes || cfg.Output.SavePreviews {
		fmt.Println("\nResults saved to:")
		fmt.Printf("%s\n", outputPath)
		if cfg.Output.SaveVolumes {
			fmt.Printf("- %s.yaml / %s.zst: expanded fluorophore volume (C, Z, X, Y)\n", simulation.FluorescenceName, simulation.FluorescenceName)
			fmt.Printf("- %s.yaml / %s.zst: expanded ground truth (Z, X, Y)\n", simulation.GroundTruthName, simulation.GroundTruthName)
			fmt.Printf("- %s.yaml: labeling, expansion and dataset parameters\n", simulation.ParametersName)
			if mode := cfg.Output.GroundTruthCells; mode != "" && mode != config.GroundTruthNone {
				fmt.Printf("- %s/<fluor>/: per-fluorophore ground truth (%s)\n", simulation.FluorGroundTruthDir, mode)
			}
		}
		if cfg.Output.SavePreviews {
			fmt.Println("- previews/: PNG z-slices per channel and ground truth")
		}
	}
}
