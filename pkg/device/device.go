// Package device connects a scale according to the application configuration,
// instantiating the configured backend (simulated, serial or Bluetooth bridge, or
// an I2C converter)
package device

import (
	"fmt"
	"io"
	"time"

	"go.uber.org/multierr"

	"github.com/fako1024/loadscale/pkg/bridge"
	"github.com/fako1024/loadscale/pkg/bridge/ble"
	"github.com/fako1024/loadscale/pkg/bridge/uart"
	"github.com/fako1024/loadscale/pkg/config"
	"github.com/fako1024/loadscale/pkg/mock"
	"github.com/fako1024/loadscale/pkg/scale"
)

// Device denotes a connected scale along with the transport it is attached by
type Device struct {
	Scale *scale.Connected

	transport io.Closer
}

// Open instantiates the configured backend and connects the scale
func Open(cfg *config.Config, logger scale.Logger) (*Device, error) {
	if logger == nil {
		logger = &scale.NullLogger{}
	}

	cal, err := cfg.Calibration()
	if err != nil {
		return nil, err
	}

	driver, transport, err := newDriver(cfg, logger)
	if err != nil {
		return nil, err
	}

	var s *scale.Connected
	if cfg.Scale.ID > 0 {
		s, err = scale.NewDisconnected(driver, cfg.Scale.ID, scale.WithLogger(logger)).
			Connect(cal.Offset, cal.Coefficients, cfg.Scale.Timeout)
	} else {
		s, err = scale.ConnectWithoutID(driver, cal, cfg.Scale.Timeout, scale.WithLogger(logger))
	}
	if err != nil {
		if transport != nil {
			err = multierr.Append(err, transport.Close())
		}
		return nil, err
	}

	logger.Infof("connected to scale %s via %s backend", s.ID(), cfg.Backend)

	return &Device{
		Scale:     s,
		transport: transport,
	}, nil
}

// Close releases all channels of the scale and closes the transport
func (d *Device) Close() error {
	err := d.Scale.Close()
	if d.transport != nil {
		err = multierr.Append(err, d.transport.Close())
	}

	return err
}

////////////////////////////////////////////////////////////////////////////////

func newDriver(cfg *config.Config, logger scale.Logger) (scale.Driver, io.Closer, error) {
	switch cfg.Backend {
	case config.BackendMock:
		ratios, err := cfg.MockRatios()
		if err != nil {
			return nil, nil, err
		}
		options := []func(*mock.Mock){
			mock.WithRatios(ratios),
			mock.WithMinInterval(cfg.Mock.MinInterval),
		}
		if cfg.Scale.ID > 0 {
			options = append(options, mock.WithID(cfg.Scale.ID))
		}
		if cfg.Mock.Noise > 0 {
			options = append(options, mock.WithNoise(cfg.Mock.Noise, time.Now().UnixNano()))
		}
		return mock.New(options...), nil, nil

	case config.BackendSerial:
		hub := newHub(cfg, logger)
		port := uart.New(cfg.Serial.Port, hub, uart.WithBaudRate(cfg.Serial.BaudRate), uart.WithLogger(logger))
		if err := port.Connect(); err != nil {
			return nil, nil, err
		}
		return hub, port, nil

	case config.BackendBLE:
		hub := newHub(cfg, logger)
		options := []func(*ble.Bridge){
			ble.WithDeviceName(cfg.BLE.DeviceName),
			ble.WithLogger(logger),
		}
		if cfg.BLE.DeviceID != "" {
			options = append(options, ble.WithDeviceID(cfg.BLE.DeviceID))
		}
		b, err := ble.New(hub, options...)
		if err != nil {
			return nil, nil, err
		}
		return hub, b, nil

	case config.BackendADC:
		return newADCBoard(cfg)
	}

	return nil, nil, fmt.Errorf("%w: unknown backend `%s`", config.ErrInvalidConfig, cfg.Backend)
}

func newHub(cfg *config.Config, logger scale.Logger) *bridge.Hub {
	options := []func(*bridge.Hub){
		bridge.WithLogger(logger),
	}
	if cfg.Scale.ID > 0 {
		options = append(options, bridge.WithExpectedID(cfg.Scale.ID))
	}

	return bridge.NewHub(options...)
}
