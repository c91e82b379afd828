package device

import (
	"fmt"
	"io"
	"time"

	"periph.io/x/conn/v3/analog"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/ads1x15"
	"periph.io/x/host/v3"

	"github.com/fako1024/loadscale/pkg/config"
	"github.com/fako1024/loadscale/pkg/periphadc"
	"github.com/fako1024/loadscale/pkg/scale"
)

var adcChannels = [scale.NumChannels]ads1x15.Channel{
	ads1x15.Channel0,
	ads1x15.Channel1,
	ads1x15.Channel2,
	ads1x15.Channel3,
}

// openADC opens the converter pins, replaced in tests
var openADC = openADS1115

func newADCBoard(cfg *config.Config) (*periphadc.Board, io.Closer, error) {
	pins, closer, err := openADC(cfg.ADC)
	if err != nil {
		return nil, nil, err
	}

	// Without a configured identifier the board is known by its bus address
	id := cfg.Scale.ID
	if id <= 0 {
		id = scale.ID(cfg.ADC.Address)
	}

	board, err := periphadc.New(id, pins,
		periphadc.WithMinInterval(time.Second/time.Duration(cfg.ADC.DataRate)),
	)
	if err != nil {
		_ = closer.Close()
		return nil, nil, err
	}

	return board, closer, nil
}

func openADS1115(cfg config.ADCConfig) ([]analog.PinADC, io.Closer, error) {
	if _, err := host.Init(); err != nil {
		return nil, nil, fmt.Errorf("%w: failed to initialize host drivers: %w", scale.ErrIO, err)
	}

	bus, err := i2creg.Open(cfg.Bus)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: failed to open I2C bus `%s`: %w", scale.ErrIO, cfg.Bus, err)
	}

	dev, err := ads1x15.NewADS1115(bus, &ads1x15.Opts{I2cAddress: cfg.Address})
	if err != nil {
		_ = bus.Close()
		return nil, nil, fmt.Errorf("%w: failed to initialize ADS1115 at %#x: %w", scale.ErrIO, cfg.Address, err)
	}

	maxVoltage := physic.ElectricPotential(cfg.FullScale * float64(physic.Volt))
	rate := physic.Frequency(cfg.DataRate) * physic.Hertz

	pins := make([]analog.PinADC, 0, scale.NumChannels)
	for _, ch := range adcChannels {
		pin, err := dev.PinForChannel(ch, maxVoltage, rate, ads1x15.BestQuality)
		if err != nil {
			for _, p := range pins {
				_ = p.Halt()
			}
			_ = bus.Close()
			return nil, nil, fmt.Errorf("%w: failed to configure ADS1115 channel %d: %w", scale.ErrIO, len(pins), err)
		}
		pins = append(pins, pin)
	}

	return pins, bus, nil
}
