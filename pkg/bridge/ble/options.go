package ble

import (
	"github.com/fako1024/gatt"
	"github.com/fako1024/loadscale/pkg/scale"
)

// WithDeviceID sets the Bluetooth device ID
func WithDeviceID(deviceID string) func(*Bridge) {
	return func(b *Bridge) {
		b.deviceID = deviceID
	}
}

// WithDeviceName sets the Bluetooth device name
func WithDeviceName(deviceName string) func(*Bridge) {
	return func(b *Bridge) {
		b.deviceName = deviceName
	}
}

// WithDevice sets the Bluetooth device
func WithDevice(btDevice gatt.Device) func(*Bridge) {
	return func(b *Bridge) {
		b.btDevice = btDevice
	}
}

// WithLogger sets a logger
func WithLogger(logger scale.Logger) func(*Bridge) {
	return func(b *Bridge) {
		if logger != nil {
			b.logger = logger
		}
	}
}
