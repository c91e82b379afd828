package scale

import (
	"errors"
	"fmt"
)

var (

	// ErrInvalidCoefficients denotes a malformed calibration
	ErrInvalidCoefficients = errors.New("invalid coefficients")

	// ErrInvalidIdentifier denotes a device identifier that cannot be bound
	ErrInvalidIdentifier = errors.New("invalid device identifier")

	// ErrIO denotes a transport-level failure not attributable to a single channel
	ErrIO = errors.New("io error")

	// ErrInvalidSamples denotes a request for a median over less than one sample
	ErrInvalidSamples = errors.New("invalid number of samples")

	// ErrClosed denotes an operation on a scale whose channels have been released
	ErrClosed = errors.New("scale channels released")
)

// DeviceFault denotes a hardware failure reported by a specific channel
type DeviceFault struct {
	Channel int
	Code    ReturnCode
	Err     error
}

// Error implements the error interface
func (e *DeviceFault) Error() string {
	return fmt.Sprintf("device fault on channel %d: %s", e.Channel, e.Unwrap())
}

// Unwrap returns the underlying driver error
func (e *DeviceFault) Unwrap() error {
	if e.Err == nil {
		return e.Code
	}
	return e.Err
}

// NewDeviceFault attributes a driver error to a channel. If the error already is
// a DeviceFault it is returned unchanged
func NewDeviceFault(channel int, err error) *DeviceFault {
	var fault *DeviceFault
	if errors.As(err, &fault) {
		return fault
	}

	code := CodeUnknown
	var rc ReturnCode
	if errors.As(err, &rc) {
		code = rc
	}

	return &DeviceFault{
		Channel: channel,
		Code:    code,
		Err:     err,
	}
}

// FaultyChannel returns the channel index a fault is attributed to, if any
func FaultyChannel(err error) (int, bool) {
	var fault *DeviceFault
	if errors.As(err, &fault) {
		return fault.Channel, true
	}
	return -1, false
}
