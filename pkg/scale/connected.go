package scale

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"
)

// channelSet denotes the open channels of a scale, shared by all Connected values
// derived from one another
type channelSet struct {
	chans [NumChannels]Channel

	// interval denotes the slowest data interval programmed on any channel
	interval time.Duration

	mu       sync.Mutex
	released bool
}

func (s *channelSet) isReleased() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}

func (s *channelSet) release() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.released {
		return nil
	}
	s.released = true

	var err error
	for i, ch := range s.chans {
		if ch == nil {
			continue
		}
		if cerr := closeIgnoringUnopened(ch); cerr != nil {
			err = multierr.Append(err, fmt.Errorf("%w: failed to close channel %d: %w", ErrIO, i, cerr))
		}
	}

	return err
}

// Connected denotes a scale with all of its channels open. Calibration is never
// altered in place: UpdateOffset and UpdateCoefficients return a new value sharing
// the same open channels
type Connected struct {
	id          ID
	calibration Calibration
	channels    *channelSet

	logger Logger
}

func newConnected(id ID, cal Calibration, channels *channelSet, logger Logger) *Connected {
	return &Connected{
		id:          id,
		calibration: cal,
		channels:    channels,
		logger:      logger,
	}
}

// ID returns the device identifier
func (c *Connected) ID() ID {
	return c.id
}

// Calibration returns the calibration in use
func (c *Connected) Calibration() Calibration {
	return c.calibration
}

// State returns the current lifecycle state
func (c *Connected) State() State {
	if c.channels.isReleased() {
		return StateReleased
	}
	return StateConnected
}

// UpdateCoefficients returns a scale using the given coefficients
func (c *Connected) UpdateCoefficients(coefficients Coefficients) *Connected {
	cal := c.calibration
	cal.Coefficients = coefficients

	return newConnected(c.id, cal, c.channels, c.logger)
}

// UpdateOffset returns a scale using the given offset
func (c *Connected) UpdateOffset(offset float64) *Connected {
	cal := c.calibration
	cal.Offset = offset

	return newConnected(c.id, cal, c.channels, c.logger)
}

// UpdateCalibration returns a scale using the given calibration
func (c *Connected) UpdateCalibration(cal Calibration) *Connected {
	return newConnected(c.id, cal, c.channels, c.logger)
}

// RawReadings reads all channels in index order. The first faulting channel aborts
// the read, the returned error identifies it
func (c *Connected) RawReadings() (Readings, error) {
	var readings Readings
	if c.channels.isReleased() {
		return readings, ErrClosed
	}

	for i, ch := range c.channels.chans {
		ratio, err := ch.VoltageRatio()
		if err != nil {
			fault := NewDeviceFault(i, err)
			c.logger.Warnf("failed to read channel %d of scale %s: %s", i, c.id, fault)
			return readings, fault
		}
		readings[i] = ratio
	}

	return readings, nil
}

// Weight returns the calibrated weight computed from a single set of readings
func (c *Connected) Weight() (float64, error) {
	readings, err := c.RawReadings()
	if err != nil {
		return 0, err
	}

	return c.calibration.Weight(readings), nil
}

// MedianWeight returns the lower median of samples weight measurements, accepting
// each measurement no sooner than minInterval (at least the programmed data interval
// of the channels) after the previous one
func (c *Connected) MedianWeight(samples int, minInterval time.Duration) (float64, error) {
	return c.MedianWeightContext(context.Background(), samples, minInterval)
}

// MedianWeightContext is the cancellable form of MedianWeight. Cancellation is only
// observed while waiting between samples
func (c *Connected) MedianWeightContext(ctx context.Context, samples int, minInterval time.Duration) (float64, error) {
	if samples < 1 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidSamples, samples)
	}

	weights := make([]float64, 0, samples)
	p := newPacer(c.pacing(minInterval))
	for len(weights) < samples {
		if err := p.wait(ctx); err != nil {
			return 0, err
		}

		weight, err := c.Weight()
		if err != nil {
			return 0, err
		}
		p.accept()

		weights = append(weights, weight)
	}

	return Median(weights)
}

// RawMedians returns the lower median of samples raw readings per channel
func (c *Connected) RawMedians(samples int) (Readings, error) {
	return c.RawMediansContext(context.Background(), samples, 0)
}

// RawMediansContext is the cancellable and paced form of RawMedians
func (c *Connected) RawMediansContext(ctx context.Context, samples int, minInterval time.Duration) (Readings, error) {
	var medians Readings
	if samples < 1 {
		return medians, fmt.Errorf("%w: %d", ErrInvalidSamples, samples)
	}

	var perChannel [NumChannels][]float64
	for i := range perChannel {
		perChannel[i] = make([]float64, 0, samples)
	}

	p := newPacer(c.pacing(minInterval))
	for n := 0; n < samples; n++ {
		if err := p.wait(ctx); err != nil {
			return medians, err
		}

		readings, err := c.RawReadings()
		if err != nil {
			return medians, err
		}
		p.accept()

		for i, r := range readings {
			perChannel[i] = append(perChannel[i], r)
		}
	}

	for i := range perChannel {
		m, err := Median(perChannel[i])
		if err != nil {
			return medians, err
		}
		medians[i] = m
	}

	return medians, nil
}

// DataInterval returns the data interval the channels were programmed with upon
// connect (the slowest one, if they differ)
func (c *Connected) DataInterval() time.Duration {
	return c.channels.interval
}

// pacing returns the effective interval between two accepted samples, which is
// never shorter than the programmed data interval
func (c *Connected) pacing(minInterval time.Duration) time.Duration {
	if minInterval < c.channels.interval {
		return c.channels.interval
	}
	return minInterval
}

// Close releases all channels of the scale (and of every scale derived from it via
// an update). Close is idempotent
func (c *Connected) Close() error {
	if c.channels.isReleased() {
		return nil
	}

	c.logger.Infof("releasing channels of scale %s", c.id)
	return c.channels.release()
}
