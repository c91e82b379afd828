// Package bridge implements the line protocol spoken by load cell bridge
// microcontrollers and a Hub exposing the most recent bridge frame as a scale.Driver.
//
// A bridge emits one ASCII line per sampling cycle:
//
//	<id> <min-interval-ms> <r0> <r1> <r2> <r3>
//
// where each reading is either a decimal voltage ratio or E<code> if the channel
// reports a fault. The host programs the sampling interval of a channel by sending
//
//	I<channel> <interval-ms>
package bridge

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/fako1024/loadscale/pkg/scale"
)

const frameFields = 2 + scale.NumChannels

// ErrInvalidFrame denotes a line that does not conform to the bridge protocol
var ErrInvalidFrame = errors.New("invalid bridge frame")

// Frame denotes a single sampling cycle reported by a bridge
type Frame struct {
	ID          scale.ID
	MinInterval time.Duration
	Ratios      scale.Readings
	Faults      [scale.NumChannels]scale.ReturnCode
}

// Reading returns the reading of a channel, or its fault
func (f Frame) Reading(index int) (float64, error) {
	if index < 0 || index >= scale.NumChannels {
		return 0, scale.CodeInvalidArg
	}
	if code := f.Faults[index]; code != 0 {
		return 0, code
	}
	return f.Ratios[index], nil
}

// MarshalText encodes the frame as a protocol line (without line terminator)
func (f Frame) MarshalText() ([]byte, error) {
	var b strings.Builder
	b.WriteString(strconv.FormatInt(int64(f.ID), 10))
	b.WriteByte(' ')
	b.WriteString(strconv.FormatInt(f.MinInterval.Milliseconds(), 10))
	for i := range f.Ratios {
		b.WriteByte(' ')
		if f.Faults[i] != 0 {
			b.WriteByte('E')
			b.WriteString(strconv.Itoa(int(f.Faults[i])))
			continue
		}
		b.WriteString(strconv.FormatFloat(f.Ratios[i], 'g', -1, 64))
	}

	return []byte(b.String()), nil
}

// UnmarshalText decodes a protocol line
func (f *Frame) UnmarshalText(line []byte) error {
	fields := strings.Fields(string(bytes.TrimSpace(line)))
	if len(fields) != frameFields {
		return fmt.Errorf("%w: expected %d fields, got %d", ErrInvalidFrame, frameFields, len(fields))
	}

	id, err := strconv.ParseInt(fields[0], 10, 32)
	if err != nil || id <= 0 {
		return fmt.Errorf("%w: invalid device identifier `%s`", ErrInvalidFrame, fields[0])
	}
	intervalMs, err := strconv.ParseUint(fields[1], 10, 32)
	if err != nil {
		return fmt.Errorf("%w: invalid interval `%s`", ErrInvalidFrame, fields[1])
	}

	parsed := Frame{
		ID:          scale.ID(id),
		MinInterval: time.Duration(intervalMs) * time.Millisecond,
	}
	for i, field := range fields[2:] {
		if strings.HasPrefix(field, "E") {
			code, err := strconv.Atoi(field[1:])
			if err != nil || code <= 0 {
				return fmt.Errorf("%w: invalid fault `%s` on channel %d", ErrInvalidFrame, field, i)
			}
			parsed.Faults[i] = scale.ReturnCode(code)
			continue
		}

		ratio, err := strconv.ParseFloat(field, 64)
		if err != nil || math.IsNaN(ratio) || math.IsInf(ratio, 0) {
			return fmt.Errorf("%w: invalid reading `%s` on channel %d", ErrInvalidFrame, field, i)
		}
		parsed.Ratios[i] = ratio
	}

	*f = parsed
	return nil
}

// ParseFrame decodes a protocol line
func ParseFrame(line []byte) (Frame, error) {
	var f Frame
	if err := f.UnmarshalText(line); err != nil {
		return Frame{}, err
	}
	return f, nil
}

// IntervalCommand encodes the command programming the sampling interval of a channel
func IntervalCommand(index int, interval time.Duration) []byte {
	return []byte(fmt.Sprintf("I%d %d\n", index, interval.Milliseconds()))
}
