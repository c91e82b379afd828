package bridge

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fako1024/loadscale/pkg/scale"
)

const (
	defaultMaxAge = time.Second
	maxLineLength = 256
)

// ErrUnexpectedDevice denotes a frame received from a device other than the expected one
var ErrUnexpectedDevice = errors.New("unexpected bridge device")

// Sender denotes a transport able to deliver commands to the bridge
type Sender interface {
	Send(cmd []byte) error
}

// Hub keeps track of the most recent frame received from a bridge and exposes its
// channels as a scale.Driver. Transports feed received lines into the hub
type Hub struct {
	mu       sync.RWMutex
	frame    *Frame
	received time.Time
	attached bool
	updated  chan struct{}
	sender   Sender
	partial  []byte

	expectedID scale.ID
	maxAge     time.Duration

	logger scale.Logger
}

// NewHub instantiates a new Hub, executing functional options, if any
func NewHub(options ...func(*Hub)) *Hub {
	h := &Hub{
		updated: make(chan struct{}),
		maxAge:  defaultMaxAge,
		logger:  &scale.NullLogger{},
	}

	for _, option := range options {
		option(h)
	}

	return h
}

// SetSender defines the transport used to send commands to the bridge
func (h *Hub) SetSender(s Sender) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sender = s
}

// Feed parses a single protocol line and stores the resulting frame. Empty lines
// are ignored
func (h *Hub) Feed(line []byte) error {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return nil
	}

	frame, err := ParseFrame(line)
	if err != nil {
		return err
	}

	return h.Update(frame)
}

// Write implements io.Writer for transports delivering an unframed byte stream
// (e.g. BLE notifications), feeding every complete line. Malformed lines are logged
// and skipped
func (h *Hub) Write(p []byte) (int, error) {
	h.mu.Lock()
	h.partial = append(h.partial, p...)
	var lines [][]byte
	for {
		idx := bytes.IndexByte(h.partial, '\n')
		if idx < 0 {
			break
		}
		lines = append(lines, append([]byte(nil), h.partial[:idx]...))
		h.partial = h.partial[idx+1:]
	}
	if len(h.partial) > maxLineLength {
		h.logger.Warnf("discarding %d bytes of unterminated bridge data", len(h.partial))
		h.partial = nil
	}
	h.mu.Unlock()

	for _, line := range lines {
		if err := h.Feed(line); err != nil {
			h.logger.Warnf("failed to parse bridge line `%s`: %s", line, err)
		}
	}

	return len(p), nil
}

// Update stores a frame as the most recent one and marks the bridge as attached.
// Frames of a device other than the expected one (if any) are rejected
func (h *Hub) Update(frame Frame) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.expectedID != 0 && frame.ID != h.expectedID {
		return fmt.Errorf("%w: frame from device %s, expected %s", ErrUnexpectedDevice, frame.ID, h.expectedID)
	}

	if h.frame == nil || h.frame.ID != frame.ID {
		h.logger.Debugf("bridge %s attached", frame.ID)
	}

	h.frame = &frame
	h.received = time.Now()
	h.attached = true

	// Wake up everyone waiting for data
	close(h.updated)
	h.updated = make(chan struct{})

	return nil
}

// Detach marks the bridge as no longer attached (e.g. upon transport loss)
func (h *Hub) Detach() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.attached {
		h.logger.Debugf("bridge detached")
	}
	h.attached = false
	h.partial = nil
}

// Attached returns if the bridge is currently attached
func (h *Hub) Attached() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.attached
}

// Channel binds a new handle to the channel with the given index
func (h *Hub) Channel(index int) (scale.Channel, error) {
	if index < 0 || index >= scale.NumChannels {
		return nil, scale.CodeInvalidArg
	}
	return &channel{
		hub:   h,
		index: index,
	}, nil
}

////////////////////////////////////////////////////////////////////////////////

// latest returns the current frame, if the bridge is attached and the frame fresh
func (h *Hub) latest() (Frame, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if !h.attached || h.frame == nil {
		return Frame{}, scale.CodeNotAttached
	}
	if h.maxAge > 0 && time.Since(h.received) > h.maxAge {
		return Frame{}, fmt.Errorf("no bridge data for %v: %w", time.Since(h.received).Round(time.Millisecond), scale.CodeTimeout)
	}

	return *h.frame, nil
}

// waitFor blocks until a frame matching the (optional) identifier was received
func (h *Hub) waitFor(id *scale.ID, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		h.mu.RLock()
		ready := h.attached && h.frame != nil && (id == nil || h.frame.ID == *id)
		updated := h.updated
		h.mu.RUnlock()

		if ready {
			return nil
		}

		select {
		case <-updated:
		case <-timer.C:
			return scale.CodeTimeout
		}
	}
}

type channel struct {
	hub   *Hub
	index int

	boundID *scale.ID
	opened  bool
}

func (c *channel) SetIdentifier(id scale.ID) error {
	if id <= 0 {
		return scale.CodeInvalidArg
	}

	c.hub.mu.RLock()
	expected, frame := c.hub.expectedID, c.hub.frame
	c.hub.mu.RUnlock()

	if expected != 0 && expected != id {
		return fmt.Errorf("bridge is configured for device %s: %w", expected, scale.CodeInvalidArg)
	}
	if frame != nil && frame.ID != id {
		return fmt.Errorf("bridge reports device %s: %w", frame.ID, scale.CodeInvalidArg)
	}

	c.boundID = &id
	return nil
}

func (c *channel) OpenWait(timeout time.Duration) error {
	if err := c.hub.waitFor(c.boundID, timeout); err != nil {
		return err
	}

	// A channel opened without identifier binds to the device it first sees
	if c.boundID == nil {
		frame, err := c.hub.latest()
		if err != nil {
			return err
		}
		c.boundID = &frame.ID
	}

	c.opened = true
	return nil
}

func (c *channel) MinDataInterval() (time.Duration, error) {
	frame, err := c.frame()
	if err != nil {
		return 0, err
	}
	return frame.MinInterval, nil
}

func (c *channel) SetDataInterval(interval time.Duration) error {
	if !c.opened {
		return scale.CodeNotAttached
	}

	c.hub.mu.RLock()
	sender := c.hub.sender
	c.hub.mu.RUnlock()

	// Bridges without a back channel stream at their native rate
	if sender == nil {
		return nil
	}
	if err := sender.Send(IntervalCommand(c.index, interval)); err != nil {
		return fmt.Errorf("failed to send interval command: %s: %w", err, scale.CodeIO)
	}

	return nil
}

func (c *channel) VoltageRatio() (float64, error) {
	frame, err := c.frame()
	if err != nil {
		return 0, err
	}
	return frame.Reading(c.index)
}

func (c *channel) Identifier() (scale.ID, error) {
	frame, err := c.frame()
	if err != nil {
		return 0, err
	}
	return frame.ID, nil
}

func (c *channel) Close() error {
	c.opened = false
	return nil
}

func (c *channel) frame() (Frame, error) {
	if !c.opened {
		return Frame{}, scale.CodeNotAttached
	}

	frame, err := c.hub.latest()
	if err != nil {
		return Frame{}, err
	}
	if c.boundID != nil && frame.ID != *c.boundID {
		return Frame{}, fmt.Errorf("bridge reports device %s instead of %s: %w", frame.ID, *c.boundID, scale.CodeNotAttached)
	}

	return frame, nil
}
