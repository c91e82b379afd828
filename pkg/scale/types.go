package scale

import (
	"fmt"
	"math"
	"time"
)

const (

	// NumChannels denotes the number of load cell channels of a scale
	NumChannels = 4

	// DefaultTimeout denotes the default time to wait for a channel to become ready
	DefaultTimeout = 5 * time.Second
)

// ID denotes the identifier (serial number) of a scale device
type ID int32

// String returns a human-readable representation of the identifier
func (id ID) String() string {
	return fmt.Sprintf("%d", id)
}

// Coefficients denotes the per-channel calibration coefficients
type Coefficients [NumChannels]float64

// Readings denotes a set of raw voltage ratios, one per channel
type Readings [NumChannels]float64

// Calibration denotes the linear model mapping raw readings to a weight
type Calibration struct {
	Offset       float64
	Coefficients Coefficients
}

// NewCalibration instantiates a new calibration from an arbitrary coefficient slice,
// validating its length and values
func NewCalibration(offset float64, coefficients []float64) (Calibration, error) {
	if len(coefficients) != NumChannels {
		return Calibration{}, fmt.Errorf("%w: expected %d coefficients, got %d", ErrInvalidCoefficients, NumChannels, len(coefficients))
	}

	cal := Calibration{Offset: offset}
	copy(cal.Coefficients[:], coefficients)

	return cal, cal.Validate()
}

// Validate checks that all calibration values are finite
func (c Calibration) Validate() error {
	if math.IsNaN(c.Offset) || math.IsInf(c.Offset, 0) {
		return fmt.Errorf("%w: offset is not finite", ErrInvalidCoefficients)
	}
	for i, v := range c.Coefficients {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: coefficient %d is not finite", ErrInvalidCoefficients, i)
		}
	}

	return nil
}

// Weight computes the calibrated weight for a set of readings
func (c Calibration) Weight(r Readings) float64 {
	var sum float64
	for i := range r {
		sum += r[i] * c.Coefficients[i]
	}

	return sum - c.Offset
}

// State denotes the lifecycle state of a scale
type State int

const (

	// StateDisconnected is active before any channel has been opened
	StateDisconnected State = iota

	// StateConnected is active while all channels are open
	StateConnected

	// StateReleased is active after the channels have been released
	StateReleased
)

// String returns a human-readable representation of the state
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnected:
		return "connected"
	case StateReleased:
		return "released"
	}

	return "unknown"
}
