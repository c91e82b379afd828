package ble

import (
	"errors"
	"testing"

	"github.com/fako1024/loadscale/pkg/bridge"
	"github.com/fako1024/loadscale/pkg/scale"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBridge(options ...func(*Bridge)) *Bridge {
	b := &Bridge{
		hub:        bridge.NewHub(),
		deviceName: defaultDeviceName,
		doneChan:   make(chan struct{}),
		logger:     &scale.NullLogger{},
	}
	for _, option := range options {
		option(b)
	}
	return b
}

func TestThisDevice(t *testing.T) {
	b := newTestBridge()
	assert.True(t, b.thisDevice("loadcell", "00:11"))
	assert.False(t, b.thisDevice("FELICITA", "00:11"))

	b = newTestBridge(WithDeviceName("SCALE-A"), WithDeviceID("AA:BB:CC:DD:EE:FF"))
	assert.True(t, b.thisDevice("other", "aa:bb:cc:dd:ee:ff"))
	assert.True(t, b.thisDevice("scale-a", "00:11"))
	assert.False(t, b.thisDevice("LOADCELL", "00:11"))
}

func TestReceiveData(t *testing.T) {
	b := newTestBridge()

	// Notifications may split protocol lines
	b.receiveData(nil, []byte("9 12 0.1 0.1"), nil)
	assert.False(t, b.hub.Attached())
	b.receiveData(nil, []byte(" 0.1 0.1\n"), nil)
	assert.True(t, b.hub.Attached())

	b.receiveData(nil, nil, errors.New("notification failed"))
	assert.True(t, b.hub.Attached())

	s, err := scale.NewDisconnected(b.hub, 9).Connect(0, scale.Coefficients{1, 1, 1, 1}, scale.DefaultTimeout)
	require.NoError(t, err)
	defer s.Close()

	w, err := s.Weight()
	require.NoError(t, err)
	assert.InDelta(t, .4, w, 1e-12)
}

func TestSendUninitialized(t *testing.T) {
	b := newTestBridge()
	assert.ErrorIs(t, b.Send([]byte("I0 10\n")), scale.ErrIO)
}

func TestDisconnectDetachesHub(t *testing.T) {
	b := newTestBridge()
	b.receiveData(nil, []byte("9 12 0.1 0.1 0.1 0.1\n"), nil)
	require.True(t, b.hub.Attached())

	b.disconnect()
	assert.False(t, b.hub.Attached())

	b.setStatus(StateDisconnected, nil)
	assert.Equal(t, StateDisconnected, b.ConnectionStatus().State)
}

func TestNilLoggerIgnored(t *testing.T) {
	b := newTestBridge(WithLogger(nil))
	require.NotNil(t, b.logger)

	// Logs a warning
	b.receiveData(nil, nil, errors.New("notification lost"))
}
