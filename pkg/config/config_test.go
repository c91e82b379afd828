package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fako1024/loadscale/pkg/scale"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, BackendMock, cfg.Backend)
	assert.Equal(t, scale.DefaultTimeout, cfg.Scale.Timeout)
	assert.Equal(t, 5, cfg.Scale.MedianSamples)
	assert.Equal(t, 115200, cfg.Serial.BaudRate)
	assert.Equal(t, uint16(0x48), cfg.ADC.Address)
	assert.Equal(t, 128, cfg.ADC.DataRate)
	assert.Equal(t, "loadscale", cfg.MQTT.TopicPrefix)
	assert.False(t, cfg.MQTT.Enabled)
	assert.False(t, cfg.InfluxDB.Enabled)
	require.NoError(t, cfg.Validate())

	cal, err := cfg.Calibration()
	require.NoError(t, err)
	assert.Equal(t, scale.Coefficients{1, 1, 1, 1}, cal.Coefficients)
}

func TestLoad_FileNotExists(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_ValidYAML(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "loadscale.yaml")
	require.NoError(t, os.WriteFile(filename, []byte(`
backend: serial

scale:
  id: 31337
  timeout: 2s
  offset: 1.5
  coefficients: [1000, 1001.5, 998, 1002]
  median_interval: 20ms

serial:
  port: /dev/ttyACM0

mqtt:
  enabled: true
  broker: tcp://broker:1883
  qos: 1

influxdb:
  enabled: true
  url: http://influx:8086
  token: secret
  batch_size: 10
  flush_interval: 1s
`), 0600))

	cfg, err := Load(filename)
	require.NoError(t, err)

	assert.Equal(t, BackendSerial, cfg.Backend)
	assert.Equal(t, scale.ID(31337), cfg.Scale.ID)
	assert.Equal(t, 2*time.Second, cfg.Scale.Timeout)
	assert.Equal(t, 20*time.Millisecond, cfg.Scale.MedianInterval)
	assert.Equal(t, "/dev/ttyACM0", cfg.Serial.Port)

	// Missing fields are populated from defaults
	assert.Equal(t, 5, cfg.Scale.MedianSamples)
	assert.Equal(t, 115200, cfg.Serial.BaudRate)
	assert.Equal(t, "loadscale", cfg.MQTT.TopicPrefix)
	assert.Equal(t, "scale", cfg.InfluxDB.Measurement)

	assert.True(t, cfg.MQTT.Enabled)
	assert.Equal(t, "tcp://broker:1883", cfg.MQTT.Broker)
	assert.Equal(t, byte(1), cfg.MQTT.QoS)
	assert.True(t, cfg.InfluxDB.Enabled)
	assert.Equal(t, "secret", cfg.InfluxDB.Token)
	assert.Equal(t, uint(10), cfg.InfluxDB.BatchSize)
	assert.Equal(t, time.Second, cfg.InfluxDB.FlushInterval)

	cal, err := cfg.Calibration()
	require.NoError(t, err)
	assert.Equal(t, scale.Calibration{Offset: 1.5, Coefficients: scale.Coefficients{1000, 1001.5, 998, 1002}}, cal)
}

func TestLoad_Invalid(t *testing.T) {
	for name, content := range map[string]string{
		"syntax":       "scale: [",
		"backend":      "backend: carrier-pigeon",
		"coefficients": "scale:\n  coefficients: [1, 2, 3]",
		"samples":      "scale:\n  median_samples: -1",
		"identifier":   "scale:\n  id: -5",
		"mock ratios":  "mock:\n  ratios: [0.1]",
		"serial port":  "backend: serial\nserial:\n  port: \"\"",
		"adc rate":     "backend: adc\nadc:\n  data_rate: -1",
		"adc scale":    "backend: adc\nadc:\n  full_scale: -2.048",
	} {
		t.Run(name, func(t *testing.T) {
			filename := filepath.Join(t.TempDir(), "loadscale.yaml")
			require.NoError(t, os.WriteFile(filename, []byte(content), 0600))

			_, err := Load(filename)
			assert.Error(t, err)
		})
	}
}

func TestLoad_ADC(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "loadscale.yaml")
	require.NoError(t, os.WriteFile(filename, []byte(`
backend: adc

adc:
  bus: "1"
  data_rate: 860
`), 0600))

	cfg, err := Load(filename)
	require.NoError(t, err)

	assert.Equal(t, BackendADC, cfg.Backend)
	assert.Equal(t, "1", cfg.ADC.Bus)
	assert.Equal(t, 860, cfg.ADC.DataRate)

	// Missing fields are populated from defaults
	assert.Equal(t, uint16(0x48), cfg.ADC.Address)
	assert.Equal(t, 4.096, cfg.ADC.FullScale)
}

func TestSaveLoad(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "loadscale.yaml")

	cfg := Default()
	cfg.Backend = BackendBLE
	cfg.BLE.DeviceID = "AA:BB:CC:DD:EE:FF"
	cfg.Scale.Offset = -3.25
	cfg.Scale.Coefficients = []float64{1, 2, 3, 4}
	require.NoError(t, cfg.Save(filename))

	loaded, err := Load(filename)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}
