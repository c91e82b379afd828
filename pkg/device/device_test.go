package device

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fako1024/loadscale/pkg/config"
	"github.com/fako1024/loadscale/pkg/scale"
)

func TestOpenMock(t *testing.T) {
	cfg := config.Default()
	cfg.Scale.Offset = 0.5
	cfg.Scale.Coefficients = []float64{1, 2, 3, 4}
	cfg.Mock.Ratios = []float64{1, 1, 1, 1}
	cfg.Mock.MinInterval = time.Millisecond

	d, err := Open(cfg, nil)
	require.NoError(t, err)

	// Without a configured identifier the one reported by the device is adopted
	assert.Equal(t, scale.ID(424242), d.Scale.ID())

	w, err := d.Scale.Weight()
	require.NoError(t, err)
	assert.Equal(t, 9.5, w)

	require.NoError(t, d.Close())
	assert.Equal(t, scale.StateReleased, d.Scale.State())
}

func TestOpenMockWithID(t *testing.T) {
	cfg := config.Default()
	cfg.Scale.ID = 17

	d, err := Open(cfg, nil)
	require.NoError(t, err)
	defer d.Close()

	assert.Equal(t, scale.ID(17), d.Scale.ID())
}

func TestOpenInvalid(t *testing.T) {
	cfg := config.Default()
	cfg.Backend = "carrier-pigeon"
	_, err := Open(cfg, nil)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)

	cfg = config.Default()
	cfg.Scale.Coefficients = []float64{1}
	_, err = Open(cfg, nil)
	assert.ErrorIs(t, err, scale.ErrInvalidCoefficients)

	cfg = config.Default()
	cfg.Backend = config.BackendSerial
	cfg.Serial.Port = "/dev/nonexistent-loadscale-port"
	_, err = Open(cfg, nil)
	assert.ErrorIs(t, err, scale.ErrIO)
}
