//go:build linux

package ble

import "github.com/fako1024/gatt"

// hciOptions selects the first available HCI adapter, allowing a single bridge
// connection at a time
var hciOptions = []gatt.Option{
	gatt.LnxMaxConnections(1),
	gatt.LnxDeviceID(-1, true),
}
