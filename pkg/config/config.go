package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fako1024/loadscale/pkg/mqtt"
	"github.com/fako1024/loadscale/pkg/scale"
	"github.com/fako1024/loadscale/pkg/telemetry"
)

// Backend denotes the kind of device providing the load cell channels
type Backend string

const (

	// BackendMock denotes a simulated scale
	BackendMock Backend = "mock"

	// BackendSerial denotes a bridge attached via a serial port
	BackendSerial Backend = "serial"

	// BackendBLE denotes a bridge attached via Bluetooth Low Energy
	BackendBLE Backend = "ble"

	// BackendADC denotes an ADS1115 converter attached via I2C
	BackendADC Backend = "adc"
)

// ErrInvalidConfig denotes a configuration that cannot be used
var ErrInvalidConfig = errors.New("invalid configuration")

// Config represents the application configuration
type Config struct {
	Backend  Backend        `yaml:"backend"`
	Scale    ScaleConfig    `yaml:"scale"`
	Serial   SerialConfig   `yaml:"serial"`
	BLE      BLEConfig      `yaml:"ble"`
	ADC      ADCConfig      `yaml:"adc"`
	Mock     MockConfig     `yaml:"mock"`
	API      APIConfig      `yaml:"api"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Debug    bool           `yaml:"debug"`
}

// ScaleConfig contains the device identity and calibration of the scale
type ScaleConfig struct {
	ID             scale.ID      `yaml:"id"` // Expected device identifier (0 = accept any)
	Timeout        time.Duration `yaml:"timeout"`
	Offset         float64       `yaml:"offset"`
	Coefficients   []float64     `yaml:"coefficients"`
	MedianSamples  int           `yaml:"median_samples"`
	MedianInterval time.Duration `yaml:"median_interval"` // Minimum interval between two samples (0 = device minimum)
}

// SerialConfig contains serial port configuration
type SerialConfig struct {
	Port     string `yaml:"port"`
	BaudRate int    `yaml:"baud_rate"`
}

// BLEConfig contains Bluetooth Low Energy configuration
type BLEConfig struct {
	DeviceName string `yaml:"device_name"`
	DeviceID   string `yaml:"device_id"`
}

// ADCConfig contains I2C analog-to-digital converter configuration
type ADCConfig struct {
	Bus       string  `yaml:"bus"` // I2C bus name (empty = first available)
	Address   uint16  `yaml:"address"`
	FullScale float64 `yaml:"full_scale"` // Volts
	DataRate  int     `yaml:"data_rate"`  // Samples per second
}

// MockConfig contains simulated scale configuration
type MockConfig struct {
	Ratios      []float64     `yaml:"ratios"`
	Noise       float64       `yaml:"noise"` // Amplitude of uniform noise added to each reading
	MinInterval time.Duration `yaml:"min_interval"`
}

// APIConfig contains REST API configuration
type APIConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

// MQTTConfig contains MQTT broker configuration
type MQTTConfig struct {
	Enabled     bool `yaml:"enabled"`
	mqtt.Config `yaml:",inline"`
}

// InfluxDBConfig contains telemetry configuration
type InfluxDBConfig struct {
	Enabled          bool          `yaml:"enabled"`
	Measurement      string        `yaml:"measurement"`
	Interval         time.Duration `yaml:"interval"`
	telemetry.Config `yaml:",inline"`
}

// Default returns a default configuration with sensible values
func Default() *Config {
	return &Config{
		Backend: BackendMock,
		Scale: ScaleConfig{
			Timeout:        scale.DefaultTimeout,
			Coefficients:   []float64{1, 1, 1, 1},
			MedianSamples:  5,
			MedianInterval: 0,
		},
		Serial: SerialConfig{
			Port:     "/dev/ttyUSB0",
			BaudRate: 115200,
		},
		BLE: BLEConfig{
			DeviceName: "LOADSCALE",
		},
		ADC: ADCConfig{
			Address:   0x48,
			FullScale: 4.096,
			DataRate:  128,
		},
		Mock: MockConfig{
			Ratios:      []float64{0.001, 0.001, 0.001, 0.001},
			MinInterval: 8 * time.Millisecond,
		},
		API: APIConfig{
			Enabled:  true,
			Endpoint: "127.0.0.1:8000",
		},
		MQTT: MQTTConfig{
			Config: mqtt.Config{
				Broker:      "tcp://127.0.0.1:1883",
				ClientID:    "loadscale",
				TopicPrefix: "loadscale",
			},
		},
		InfluxDB: InfluxDBConfig{
			Measurement: "scale",
			Interval:    10 * time.Second,
			Config: telemetry.Config{
				URL:    "http://127.0.0.1:8086",
				Org:    "loadscale",
				Bucket: "loadscale",
			},
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ensureDefaults()

	return cfg, cfg.Validate()
}

// Save saves the configuration to a YAML file
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Calibration returns the calibration of the scale
func (c *Config) Calibration() (scale.Calibration, error) {
	return scale.NewCalibration(c.Scale.Offset, c.Scale.Coefficients)
}

// MockRatios returns the voltage ratios of the simulated scale
func (c *Config) MockRatios() (scale.Readings, error) {
	var r scale.Readings
	if len(c.Mock.Ratios) != scale.NumChannels {
		return r, fmt.Errorf("%w: expected %d mock ratios, got %d", ErrInvalidConfig, scale.NumChannels, len(c.Mock.Ratios))
	}
	copy(r[:], c.Mock.Ratios)

	return r, nil
}

// Validate checks the configuration for consistency
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendMock:
		if _, err := c.MockRatios(); err != nil {
			return err
		}
	case BackendSerial:
		if c.Serial.Port == "" {
			return fmt.Errorf("%w: no serial port specified", ErrInvalidConfig)
		}
	case BackendBLE:
	case BackendADC:
		if c.ADC.FullScale <= 0 || c.ADC.DataRate <= 0 {
			return fmt.Errorf("%w: ADC full scale and data rate must be positive", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown backend `%s`", ErrInvalidConfig, c.Backend)
	}

	if c.Scale.ID < 0 {
		return fmt.Errorf("%w: %w %s", ErrInvalidConfig, scale.ErrInvalidIdentifier, c.Scale.ID)
	}
	if c.Scale.MedianSamples < 1 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, scale.ErrInvalidSamples)
	}
	if _, err := c.Calibration(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	return nil
}

////////////////////////////////////////////////////////////////////////////////

func (c *Config) ensureDefaults() {
	def := Default()

	if c.Backend == "" {
		c.Backend = def.Backend
	}

	if c.Scale.Timeout <= 0 {
		c.Scale.Timeout = def.Scale.Timeout
	}
	if len(c.Scale.Coefficients) == 0 {
		c.Scale.Coefficients = def.Scale.Coefficients
	}
	if c.Scale.MedianSamples == 0 {
		c.Scale.MedianSamples = def.Scale.MedianSamples
	}

	if c.Serial.BaudRate == 0 {
		c.Serial.BaudRate = def.Serial.BaudRate
	}

	if len(c.Mock.Ratios) == 0 {
		c.Mock.Ratios = def.Mock.Ratios
	}
	if c.ADC.Address == 0 {
		c.ADC.Address = def.ADC.Address
	}
	if c.ADC.FullScale == 0 {
		c.ADC.FullScale = def.ADC.FullScale
	}
	if c.ADC.DataRate == 0 {
		c.ADC.DataRate = def.ADC.DataRate
	}

	if c.Mock.MinInterval == 0 {
		c.Mock.MinInterval = def.Mock.MinInterval
	}

	if c.API.Endpoint == "" {
		c.API.Endpoint = def.API.Endpoint
	}

	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = def.MQTT.TopicPrefix
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = def.MQTT.ClientID
	}

	if c.InfluxDB.Measurement == "" {
		c.InfluxDB.Measurement = def.InfluxDB.Measurement
	}
	if c.InfluxDB.Interval == 0 {
		c.InfluxDB.Interval = def.InfluxDB.Interval
	}
}
