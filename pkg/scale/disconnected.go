package scale

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
)

// Disconnected denotes a scale device known by its identifier, prior to opening
// any of its channels
type Disconnected struct {
	id     ID
	driver Driver

	settings
}

// NewDisconnected instantiates a new disconnected scale, executing functional options, if any
func NewDisconnected(driver Driver, id ID, options ...Option) *Disconnected {
	return &Disconnected{
		id:       id,
		driver:   driver,
		settings: newSettings(options...),
	}
}

// ID returns the device identifier
func (d *Disconnected) ID() ID {
	return d.id
}

// Connect opens all channels of the device, each waiting up to timeout for the
// hardware to become ready, and programs them to their fastest sampling interval.
// Either all channels are opened or none is: on failure, channels opened so far
// are released again
func (d *Disconnected) Connect(offset float64, coefficients Coefficients, timeout time.Duration) (*Connected, error) {
	d.logger.Debugf("connecting scale %s", d.id)

	id := d.id
	channels, err := openChannels(d.driver, &id, timeout, d.logger)
	if err != nil {
		return nil, err
	}

	logger := scaleLogger(d.logger, d.id)
	logger.Infof("connected scale %s", d.id)

	return newConnected(d.id, Calibration{
		Offset:       offset,
		Coefficients: coefficients,
	}, channels, logger), nil
}

// ConnectWithoutID opens all channels of the first available device and adopts the
// identifier reported by channel 0
func ConnectWithoutID(driver Driver, cal Calibration, timeout time.Duration, options ...Option) (*Connected, error) {
	s := newSettings(options...)
	s.logger.Debugf("connecting scale without identifier")

	channels, err := openChannels(driver, nil, timeout, s.logger)
	if err != nil {
		return nil, err
	}

	id, err := channels.chans[0].Identifier()
	if err != nil {
		fault := NewDeviceFault(0, err)
		if cerr := channels.release(); cerr != nil {
			s.logger.Warnf("failed to release channels after failed identifier query: %s", cerr)
		}
		return nil, fault
	}

	logger := scaleLogger(s.logger, id)
	logger.Infof("connected scale %s (discovered)", id)

	return newConnected(id, cal, channels, logger), nil
}

////////////////////////////////////////////////////////////////////////////////

func openChannels(driver Driver, id *ID, timeout time.Duration, logger Logger) (*channelSet, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	set := &channelSet{}
	for i := 0; i < NumChannels; i++ {
		ch, interval, err := openChannel(driver, i, id, timeout, logger)
		if err != nil {
			if cerr := set.release(); cerr != nil {
				logger.Warnf("failed to release channels after failed connect: %s", cerr)
			}
			return nil, err
		}
		set.chans[i] = ch
		if interval > set.interval {
			set.interval = interval
		}
	}

	return set, nil
}

func openChannel(driver Driver, index int, id *ID, timeout time.Duration, logger Logger) (_ Channel, _ time.Duration, err error) {
	ch, err := driver.Channel(index)
	if err != nil {
		return nil, 0, NewDeviceFault(index, err)
	}

	// Make sure a partially configured channel is not leaked
	defer func() {
		if err != nil {
			err = multierr.Append(err, closeIgnoringUnopened(ch))
		}
	}()

	if id != nil {
		if err = ch.SetIdentifier(*id); err != nil {
			return nil, 0, fmt.Errorf("%w %s: %w", ErrInvalidIdentifier, *id, err)
		}
	}

	logger.Debugf("waiting up to %v for channel %d", timeout, index)
	if err = ch.OpenWait(timeout); err != nil {
		return nil, 0, NewDeviceFault(index, err)
	}

	interval, err := ch.MinDataInterval()
	if err != nil {
		return nil, 0, NewDeviceFault(index, err)
	}
	if err = ch.SetDataInterval(interval); err != nil {
		return nil, 0, NewDeviceFault(index, err)
	}
	logger.Debugf("opened channel %d with data interval %v", index, interval)

	return ch, interval, nil
}

// closeIgnoringUnopened closes a channel that may never have been opened, in which
// case the driver reporting it as closed is not considered an error
func closeIgnoringUnopened(ch Channel) error {
	if err := ch.Close(); err != nil && !errors.Is(err, CodeClosed) {
		return err
	}
	return nil
}
