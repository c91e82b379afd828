package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fako1024/loadscale/pkg/api"
	"github.com/fako1024/loadscale/pkg/command"
	"github.com/fako1024/loadscale/pkg/config"
	"github.com/fako1024/loadscale/pkg/device"
	"github.com/fako1024/loadscale/pkg/mqtt"
	"github.com/fako1024/loadscale/pkg/scale"
	"github.com/fako1024/loadscale/pkg/telemetry"
)

type flags struct {
	configFile string
	mock       bool
	debug      bool
}

func main() {
	var f flags

	flag.StringVar(&f.configFile, "config", "loadscale.yaml", "Path to configuration file")
	flag.BoolVar(&f.mock, "mock", false, "Use a simulated scale regardless of the configured backend")
	flag.BoolVar(&f.debug, "debug", false, "Enable debug logging")
	flag.Parse()

	cfg, err := config.Load(f.configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %s\n", err)
		os.Exit(1)
	}
	if f.mock {
		cfg.Backend = config.BackendMock
	}

	logger, err := scale.NewDefaultLogger(f.debug || cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to instantiate logger: %s\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	if err := run(cfg, logger); err != nil {
		logger.Fatal(err)
	}
}

func run(cfg *config.Config, logger scale.Logger) error {
	d, err := device.Open(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to scale: %w", err)
	}
	defer func() {
		if err := d.Close(); err != nil {
			logger.Errorf("failed to release scale: %s", err)
		}
	}()

	dispatcher := command.NewDispatcher(d.Scale,
		command.WithMinInterval(cfg.Scale.MedianInterval),
		command.WithLogger(logger),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.API.Enabled {
		restAPI := api.New(dispatcher, api.WithMedianSamples(cfg.Scale.MedianSamples))
		go func() {
			logger.Infof("serving REST API on %s", cfg.API.Endpoint)
			if err := restAPI.Listen(cfg.API.Endpoint); err != nil {
				logger.Errorf("REST API terminated: %s", err)
				stop()
			}
		}()
		defer func() {
			if err := restAPI.Shutdown(); err != nil {
				logger.Errorf("failed to shut down REST API: %s", err)
			}
		}()
	}

	if cfg.MQTT.Enabled {
		handler, err := mqtt.Connect(cfg.MQTT.Config, dispatcher, logger)
		if err != nil {
			return err
		}
		defer handler.Close()
		logger.Infof("answering commands on %s", cfg.MQTT.Broker)
	}

	if cfg.InfluxDB.Enabled {
		client, err := telemetry.Connect(cfg.InfluxDB.Config, logger)
		if err != nil {
			return err
		}
		defer client.Close()

		recorder := telemetry.NewRecorder(dispatcher, client,
			telemetry.WithMeasurement(cfg.InfluxDB.Measurement),
			telemetry.WithInterval(cfg.InfluxDB.Interval),
			telemetry.WithSamples(cfg.Scale.MedianSamples),
			telemetry.WithLogger(logger),
		)
		go func() {
			if err := recorder.Run(ctx); err != nil {
				logger.Errorf("telemetry recorder terminated: %s", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		logger.Infof("got signal, releasing scale %s", d.Scale.ID())
	case <-dispatcher.Done():
		logger.Infof("received shutdown command, terminating")
	}

	return nil
}
