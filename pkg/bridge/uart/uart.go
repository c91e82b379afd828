// Package uart connects a load cell bridge attached via a serial port to a bridge.Hub
package uart

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/fako1024/loadscale/pkg/bridge"
	"github.com/fako1024/loadscale/pkg/scale"
	"go.bug.st/serial"
)

// DefaultBaudRate is the baud rate used by the bridge firmware
const DefaultBaudRate = 115200

// ErrAlreadyConnected denotes an attempt to connect an already connected port
var ErrAlreadyConnected = errors.New("already connected")

// Port denotes a serial connection to a load cell bridge
type Port struct {
	name     string
	baudRate int
	hub      *bridge.Hub

	mu        sync.Mutex
	conn      io.ReadWriteCloser
	cancel    context.CancelFunc
	done      chan struct{}
	connected bool

	logger scale.Logger
}

// New instantiates a new serial bridge connection feeding the given hub,
// executing functional options, if any
func New(name string, hub *bridge.Hub, options ...func(*Port)) *Port {
	p := &Port{
		name:     name,
		baudRate: DefaultBaudRate,
		hub:      hub,
		logger:   &scale.NullLogger{},
	}

	for _, option := range options {
		option(p)
	}

	return p
}

// Ports returns the names of the available serial ports
func Ports() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}
	return ports, nil
}

// Connect opens the serial port and starts feeding received lines into the hub
func (p *Port) Connect() error {
	conn, err := serial.Open(p.name, &serial.Mode{
		BaudRate: p.baudRate,
	})
	if err != nil {
		return fmt.Errorf("%w: failed to open serial port %s: %w", scale.ErrIO, p.name, err)
	}

	if err := p.attach(conn); err != nil {
		_ = conn.Close()
		return err
	}

	return nil
}

// Send writes a command to the bridge
func (p *Port) Send(cmd []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.connected {
		return fmt.Errorf("%w: serial port %s not connected", scale.ErrIO, p.name)
	}
	if _, err := p.conn.Write(cmd); err != nil {
		return fmt.Errorf("%w: failed to write to serial port %s: %w", scale.ErrIO, p.name, err)
	}

	return nil
}

// Close closes the serial port and detaches the hub
func (p *Port) Close() error {
	p.mu.Lock()
	if !p.connected {
		p.mu.Unlock()
		return nil
	}

	p.cancel()
	err := p.conn.Close()
	p.connected = false
	done := p.done
	p.mu.Unlock()

	// Wait for the reader to terminate
	<-done

	if err != nil {
		return fmt.Errorf("%w: failed to close serial port %s: %w", scale.ErrIO, p.name, err)
	}
	return nil
}

////////////////////////////////////////////////////////////////////////////////

// attach starts reading from an already opened connection
func (p *Port) attach(conn io.ReadWriteCloser) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.connected {
		return ErrAlreadyConnected
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.conn = conn
	p.cancel = cancel
	p.done = make(chan struct{})
	p.connected = true
	p.hub.SetSender(p)

	go p.readLines(ctx, conn, p.done)

	return nil
}

func (p *Port) readLines(ctx context.Context, conn io.Reader, done chan struct{}) {
	defer close(done)
	defer p.hub.Detach()

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := p.hub.Feed(scanner.Bytes()); err != nil {
			p.logger.Warnf("failed to parse line from %s: %s", p.name, err)
		}
	}

	// Scanner stopped (EOF or error)
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		p.logger.Errorf("error reading from serial port %s: %s", p.name, err)
	}
}
