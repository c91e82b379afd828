// Package ble connects a load cell bridge exposing a serial-over-BLE characteristic
// (HM-10 style modules) to a bridge.Hub
package ble

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fako1024/gatt"
	"github.com/fako1024/loadscale/pkg/bridge"
	"github.com/fako1024/loadscale/pkg/scale"
)

const (
	defaultDeviceName  = "LOADCELL"
	dataService        = "ffe0"
	dataCharacteristic = "ffe1"

	connectionMTU = 500
	rescanDelay   = 100 * time.Millisecond
)

// State denotes a connection state of the BLE link
type State int

const (

	// StateScanning is active while scanning for the bridge
	StateScanning State = iota

	// StateConnected is active while being connected to the bridge
	StateConnected

	// StateDisconnected is active after being disconnected from the bridge
	StateDisconnected
)

// ConnectionStatus denotes the current status of the BLE link
type ConnectionStatus struct {
	Error error
	State
}

// Bridge denotes a BLE connection to a load cell bridge
type Bridge struct {
	hub *bridge.Hub

	deviceID   string
	deviceName string

	mu                 sync.Mutex
	connectionStatus   ConnectionStatus
	stateChangeHandler func(status ConnectionStatus)
	doneChan           chan struct{}
	closed             bool

	btDevice         gatt.Device
	btPeripheral     gatt.Peripheral
	btCharacteristic *gatt.Characteristic

	logger scale.Logger
}

// New instantiates a new BLE bridge connection feeding the given hub, executing
// functional options, if any. Scanning starts immediately
func New(hub *bridge.Hub, options ...func(*Bridge)) (*Bridge, error) {

	// Initialize a new instance of a bridge connection
	b := &Bridge{
		hub:        hub,
		deviceName: defaultDeviceName,
		doneChan:   make(chan struct{}),
		logger:     &scale.NullLogger{},
	}

	// Execute functional options (if any), see options.go for implementation
	for _, option := range options {
		option(b)
	}

	// Initialize a new GATT device (if not provided as option)
	if b.btDevice == nil {
		btDevice, err := gatt.NewDevice(hciOptions...)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to initialize BLE device: %w", scale.ErrIO, err)
		}
		b.btDevice = btDevice
	}

	return b, b.subscribe()
}

// ConnectionStatus returns the current status of the BLE link
func (b *Bridge) ConnectionStatus() ConnectionStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connectionStatus
}

// SetStateChangeHandler defines a handler function that is called upon state change
func (b *Bridge) SetStateChangeHandler(fn func(status ConnectionStatus)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stateChangeHandler = fn
}

// Send writes a command to the bridge characteristic
func (b *Bridge) Send(cmd []byte) error {
	b.mu.Lock()
	p, c := b.btPeripheral, b.btCharacteristic
	b.mu.Unlock()

	if p == nil || c == nil {
		return fmt.Errorf("%w: failed to write to uninitialized device", scale.ErrIO)
	}

	return p.WriteCharacteristic(c, cmd, false)
}

// Close terminates the connection to the device
func (b *Bridge) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.doneChan)
	b.mu.Unlock()

	b.hub.Detach()

	_ = b.btDevice.StopScanning()
	return b.btDevice.RemoveAllServices()
}

////////////////////////////////////////////////////////////////////////////////

func (b *Bridge) subscribe() error {

	// Register handlers
	b.btDevice.Handle(
		gatt.AddPeripheralDiscovered(b.onPeriphDiscovered),
		gatt.AddPeripheralConnected(b.onPeriphConnected),
		gatt.AddPeripheralDisconnected(b.onPeriphDisconnected),
	)

	// Initialize the device
	return b.btDevice.Init(b.onStateChanged)
}

func (b *Bridge) setStatus(state State, err error) {
	b.mu.Lock()
	b.connectionStatus = ConnectionStatus{
		State: state,
		Error: err,
	}
	status, handler := b.connectionStatus, b.stateChangeHandler
	b.mu.Unlock()

	// Call handler function, if any
	if handler != nil {
		handler(status)
	}
}

func (b *Bridge) onStateChanged(d gatt.Device, s gatt.State) {
	switch s {
	case gatt.StatePoweredOn:
		b.setStatus(StateScanning, nil)
		if err := d.Scan([]gatt.UUID{}, false); err != nil {
			b.logger.Warnf("failed to enable initial scanning: %s", err)
		}
		return
	case gatt.StatePoweredOff:
		b.hub.Detach()
		b.setStatus(StateDisconnected, nil)
		return
	default:
		if err := d.StopScanning(); err != nil {
			b.logger.Warnf("failed to stop initial scanning: %s", err)
		}
	}
}

func (b *Bridge) onPeriphDiscovered(p gatt.Peripheral, _ *gatt.Advertisement, _ int) {

	b.logger.Debugf("discovered device `%s/%s`", p.Name(), p.ID())

	if !b.thisDevice(p.Name(), p.ID()) {
		return
	}

	b.logger.Debugf("connecting device `%s/%s`", p.Name(), p.ID())

	// Stop scanning once we've got the peripheral we're looking for.
	if err := p.Device().StopScanning(); err != nil {
		b.logger.Warnf("failed to stop initial scanning: %s", err)
	}
	if err := p.Device().Connect(p); err != nil {
		b.logger.Errorf("failed to connect device `%s/%s`: %s", p.Name(), p.ID(), err)
	}
}

func (b *Bridge) onPeriphConnected(p gatt.Peripheral, connErr error) {

	if !b.thisDevice(p.Name(), p.ID()) {
		return
	}

	b.logger.Debugf("connected peripheral `%s/%s`", p.Name(), p.ID())

	b.setStatus(StateConnected, nil)
	defer func() {
		_ = p.Device().CancelConnection(p)
		b.setStatus(StateDisconnected, connErr)
	}()

	// Set connection MTU
	if err := p.SetMTU(connectionMTU); err != nil {
		connErr = fmt.Errorf("failed to set MTU: %w", err)
		return
	}

	// Discover services
	ss, err := p.DiscoverServices(nil)
	if err != nil {
		connErr = fmt.Errorf("failed to discover services: %w", err)
		return
	}
	for _, s := range ss {
		if s.UUID().String() != dataService {
			continue
		}

		// Discover characteristics
		cs, err := p.DiscoverCharacteristics(nil, s)
		if err != nil {
			connErr = fmt.Errorf("failed to discover characteristics: %w", err)
			return
		}
		for _, c := range cs {
			if c.UUID().String() != dataCharacteristic {
				continue
			}

			b.mu.Lock()
			b.btPeripheral = p
			b.btCharacteristic = c
			b.mu.Unlock()

			// Discover descriptors
			if _, err := p.DiscoverDescriptors(nil, c); err != nil {
				connErr = fmt.Errorf("failed to discover descriptors: %w", err)
				return
			}

			if err := p.SetNotifyValue(c, b.receiveData); err != nil {
				connErr = fmt.Errorf("failed to subscribe characteristic: %w", err)
				return
			}
			b.hub.SetSender(b)
		}
	}

	b.logger.Debugf("waiting to release peripheral `%s/%s`", p.Name(), p.ID())
	<-b.doneChan
	b.logger.Debugf("released peripheral `%s/%s`", p.Name(), p.ID())
}

func (b *Bridge) onPeriphDisconnected(p gatt.Peripheral, _ error) {

	if !b.thisDevice(p.Name(), p.ID()) {
		return
	}

	b.disconnect()
	b.logger.Debugf("disconnected peripheral `%s/%s`", p.Name(), p.ID())

	time.Sleep(rescanDelay)
	b.setStatus(StateScanning, nil)
	if err := b.btDevice.Scan([]gatt.UUID{}, false); err != nil {
		b.logger.Warnf("failed to re-enable scanning after disconnect: %s", err)
	}
}

func (b *Bridge) thisDevice(name, id string) bool {

	// Check if name and / or device ID have been overridden
	if b.deviceID != "" && strings.EqualFold(id, b.deviceID) {
		return true
	}
	return strings.EqualFold(name, b.deviceName)
}

func (b *Bridge) disconnect() {
	b.hub.Detach()

	b.mu.Lock()
	defer b.mu.Unlock()
	b.btPeripheral = nil
	b.btCharacteristic = nil

	if b.closed {
		return
	}
	select {
	case b.doneChan <- struct{}{}:
	default:
	}
}

func (b *Bridge) receiveData(_ *gatt.Characteristic, data []byte, err error) {
	if err != nil {
		b.logger.Warnf("failed to receive bridge notification: %s", err)
		return
	}

	// Notifications carry an unframed byte stream, the hub reassembles lines
	_, _ = b.hub.Write(data)
}
