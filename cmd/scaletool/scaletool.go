package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/fako1024/loadscale/pkg/config"
	"github.com/fako1024/loadscale/pkg/device"
	"github.com/fako1024/loadscale/pkg/scale"
)

type flags struct {
	configFile string
	mock       bool
	debug      bool

	raw     bool
	medians bool
	samples int
}

func main() {
	var f flags

	flag.StringVar(&f.configFile, "config", "loadscale.yaml", "Path to configuration file")
	flag.BoolVar(&f.mock, "mock", false, "Use a simulated scale regardless of the configured backend")
	flag.BoolVar(&f.debug, "debug", false, "Enable debug logging")

	flag.BoolVar(&f.raw, "raw", false, "Print the raw voltage ratios of all channels")
	flag.BoolVar(&f.medians, "medians", false, "Print the per-channel median voltage ratios (requires -n)")
	flag.IntVar(&f.samples, "n", 0, "Number of samples to compute the median weight from (0 = single reading)")
	flag.Parse()

	logger, err := scale.NewDefaultLogger(f.debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to instantiate logger: %s\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	if err := run(f, logger); err != nil {
		logger.Fatal(err)
	}
}

func run(f flags, logger scale.Logger) (err error) {
	cfg, err := config.Load(f.configFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if f.mock {
		cfg.Backend = config.BackendMock
	}

	d, err := device.Open(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to scale: %w", err)
	}
	defer func() {
		if cerr := d.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	s := d.Scale
	fmt.Printf("scale %s\n", s.ID())

	if f.raw {
		readings, err := s.RawReadings()
		if err != nil {
			return err
		}
		fmt.Printf("raw readings: %v\n", readings)
	}

	if f.medians {
		medians, err := s.RawMedians(f.samples)
		if err != nil {
			return err
		}
		fmt.Printf("raw medians (n=%d): %v\n", f.samples, medians)
	}

	if f.samples > 0 {
		weight, err := s.MedianWeight(f.samples, cfg.Scale.MedianInterval)
		if err != nil {
			return err
		}
		fmt.Printf("median weight (n=%d): %.3f\n", f.samples, weight)
		return nil
	}

	weight, err := s.Weight()
	if err != nil {
		return err
	}
	fmt.Printf("weight: %.3f\n", weight)

	return nil
}
