// Package periphadc provides load cell channels backed by analog-to-digital
// converter pins of the periph.io hardware abstraction (e.g. an ADS1115 wired to
// four load cell amplifiers)
package periphadc

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fako1024/loadscale/pkg/scale"
	"periph.io/x/conn/v3/analog"
)

const (
	defaultMinInterval = 2 * time.Millisecond
	readyPollInterval  = 5 * time.Millisecond
)

// ErrPinCount denotes a board configured with a number of pins other than scale.NumChannels
var ErrPinCount = errors.New("invalid number of ADC pins")

// Board denotes a set of ADC pins forming the channels of a scale
type Board struct {
	id          scale.ID
	pins        [scale.NumChannels]analog.PinADC
	minInterval time.Duration

	mu        sync.Mutex
	intervals [scale.NumChannels]time.Duration
}

// New instantiates a new Board from exactly scale.NumChannels pins, executing
// functional options, if any
func New(id scale.ID, pins []analog.PinADC, options ...func(*Board)) (*Board, error) {
	if len(pins) != scale.NumChannels {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrPinCount, scale.NumChannels, len(pins))
	}

	b := &Board{
		id:          id,
		minInterval: defaultMinInterval,
	}
	for i, pin := range pins {
		if pin == nil {
			return nil, fmt.Errorf("%w: pin %d is nil", ErrPinCount, i)
		}
		b.pins[i] = pin
	}

	for _, option := range options {
		option(b)
	}

	return b, nil
}

// WithMinInterval sets the conversion time of the converter
func WithMinInterval(interval time.Duration) func(*Board) {
	return func(b *Board) {
		b.minInterval = interval
	}
}

// DataInterval returns the sampling interval a channel was programmed with
func (b *Board) DataInterval(index int) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.intervals[index]
}

// Channel binds a new handle to the pin with the given index
func (b *Board) Channel(index int) (scale.Channel, error) {
	if index < 0 || index >= scale.NumChannels {
		return nil, scale.CodeInvalidArg
	}
	return &channel{
		board: b,
		index: index,
		pin:   b.pins[index],
	}, nil
}

// Ratio converts an ADC sample into a ratio of the positive full scale of the pin
func Ratio(s analog.Sample, fullScale analog.Sample) (float64, error) {
	if fullScale.Raw > 0 {
		return float64(s.Raw) / float64(fullScale.Raw), nil
	}
	if fullScale.V > 0 {
		return float64(s.V) / float64(fullScale.V), nil
	}
	return 0, scale.CodeUnknownValue
}

////////////////////////////////////////////////////////////////////////////////

type channel struct {
	board *Board
	index int
	pin   analog.PinADC

	opened bool
}

func (c *channel) SetIdentifier(id scale.ID) error {
	if id != c.board.id {
		return scale.CodeInvalidArg
	}
	return nil
}

func (c *channel) OpenWait(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		_, err := c.pin.Read()
		if err == nil {
			c.opened = true
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("pin %s not ready: %s: %w", c.pin, err, scale.CodeTimeout)
		}
		time.Sleep(readyPollInterval)
	}
}

func (c *channel) MinDataInterval() (time.Duration, error) {
	if !c.opened {
		return 0, scale.CodeNotAttached
	}
	return c.board.minInterval, nil
}

func (c *channel) SetDataInterval(interval time.Duration) error {
	if !c.opened {
		return scale.CodeNotAttached
	}
	if interval < c.board.minInterval {
		return scale.CodeInvalidArg
	}

	c.board.mu.Lock()
	c.board.intervals[c.index] = interval
	c.board.mu.Unlock()

	return nil
}

func (c *channel) VoltageRatio() (float64, error) {
	if !c.opened {
		return 0, scale.CodeNotAttached
	}

	s, err := c.pin.Read()
	if err != nil {
		return 0, fmt.Errorf("failed to read pin %s: %s: %w", c.pin, err, scale.CodeIO)
	}

	lo, hi := c.pin.Range()
	if saturated(s, lo, hi) {
		return 0, scale.CodeSaturation
	}

	return Ratio(s, hi)
}

func (c *channel) Identifier() (scale.ID, error) {
	if !c.opened {
		return 0, scale.CodeNotAttached
	}
	return c.board.id, nil
}

func (c *channel) Close() error {
	if !c.opened {
		return nil
	}
	c.opened = false
	return c.pin.Halt()
}

// saturated checks a sample against the range of the pin, ignoring unset bounds
func saturated(s, lo, hi analog.Sample) bool {
	if hi.Raw > lo.Raw && (s.Raw < lo.Raw || s.Raw > hi.Raw) {
		return true
	}
	return hi.V > lo.V && (s.V < lo.V || s.V > hi.V)
}
