package scale

import (
	"fmt"
	"time"
)

// Driver denotes a hardware backend providing load cell channels
type Driver interface {

	// Channel binds a new (unopened) handle to the channel with the given index
	Channel(index int) (Channel, error)
}

// Channel denotes a single physical load cell input
type Channel interface {

	// SetIdentifier binds the handle to the device with the given identifier
	SetIdentifier(id ID) error

	// OpenWait opens the channel, waiting up to timeout for the hardware to become ready
	OpenWait(timeout time.Duration) error

	// MinDataInterval returns the minimum sampling interval supported by the hardware
	MinDataInterval() (time.Duration, error)

	// SetDataInterval programs the sampling interval of the channel
	SetDataInterval(interval time.Duration) error

	// VoltageRatio returns the most recent raw reading of the channel
	VoltageRatio() (float64, error)

	// Identifier returns the identifier of the device the channel is attached to
	Identifier() (ID, error)

	// Close releases the channel
	Close() error
}

// ReturnCode denotes a device-level fault code reported by a driver
type ReturnCode int

const (

	// CodeUnknown denotes an unspecified device fault
	CodeUnknown ReturnCode = iota + 1

	// CodeTimeout denotes an operation that did not complete in time
	CodeTimeout

	// CodeNotAttached denotes a channel whose device is not (or no longer) attached
	CodeNotAttached

	// CodeInvalidArg denotes an argument rejected by the hardware
	CodeInvalidArg

	// CodeUnknownValue denotes a channel that has not produced a reading yet
	CodeUnknownValue

	// CodeSaturation denotes a reading outside of the valid range of the channel
	CodeSaturation

	// CodeClosed denotes an operation on a closed channel
	CodeClosed

	// CodeIO denotes a failure of the underlying transport
	CodeIO
)

// Error implements the error interface
func (c ReturnCode) Error() string {
	switch c {
	case CodeUnknown:
		return "unknown fault"
	case CodeTimeout:
		return "timeout"
	case CodeNotAttached:
		return "device not attached"
	case CodeInvalidArg:
		return "invalid argument"
	case CodeUnknownValue:
		return "value unknown"
	case CodeSaturation:
		return "saturation"
	case CodeClosed:
		return "channel closed"
	case CodeIO:
		return "io failure"
	}

	return fmt.Sprintf("fault code %d", int(c))
}

// String returns the description of the code
func (c ReturnCode) String() string {
	return c.Error()
}
