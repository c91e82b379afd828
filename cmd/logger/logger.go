package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fako1024/loadscale/pkg/config"
	"github.com/fako1024/loadscale/pkg/device"
	"github.com/fako1024/loadscale/pkg/scale"
)

type flags struct {
	configFile string
	mock       bool
	debug      bool

	interval time.Duration
}

func main() {
	var f flags

	flag.StringVar(&f.configFile, "config", "loadscale.yaml", "Path to configuration file")
	flag.BoolVar(&f.mock, "mock", false, "Use a simulated scale regardless of the configured backend")
	flag.BoolVar(&f.debug, "debug", false, "Enable debug logging")
	flag.DurationVar(&f.interval, "interval", time.Second, "Interval between two logged weights")
	flag.Parse()

	logger, err := scale.NewDefaultLogger(f.debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to instantiate logger: %s\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	cfg, err := config.Load(f.configFile)
	if err != nil {
		logger.Fatalf("failed to load configuration: %s", err)
	}
	if f.mock {
		cfg.Backend = config.BackendMock
	}

	d, err := device.Open(cfg, logger)
	if err != nil {
		logger.Fatalf("failed to connect to scale: %s", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		weight, err := d.Scale.MedianWeightContext(ctx, cfg.Scale.MedianSamples, cfg.Scale.MedianInterval)
		switch {
		case ctx.Err() != nil:
		case err != nil:
			if idx, ok := scale.FaultyChannel(err); ok {
				logger.Warnf("failed to read median weight (channel %d): %s", idx, err)
			} else if !errors.Is(err, scale.ErrClosed) {
				logger.Warnf("failed to read median weight: %s", err)
			}
		default:
			logger.Infof("weight: %.3f", weight)
		}

		select {
		case <-ctx.Done():
			logger.Infof("got signal, releasing scale %s", d.Scale.ID())
			if err := d.Close(); err != nil {
				logger.Errorf("failed to release scale: %s", err)
			}
			return
		case <-ticker.C:
		}
	}
}
