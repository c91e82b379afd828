package mock

import (
	"math/rand"
	"sync"
	"time"

	"github.com/fako1024/loadscale/pkg/scale"
	"github.com/fatih/stopwatch"
)

const (
	defaultID          scale.ID = 424242
	defaultMinInterval          = 8 * time.Millisecond
	defaultRatio                = 0.001
	readyPollInterval           = time.Millisecond
)

// Mock denotes a simulated load cell device with scale.NumChannels channels
type Mock struct {
	id          scale.ID
	minInterval time.Duration
	readyAfter  time.Duration
	noise       float64

	mu       sync.Mutex
	ratios   scale.Readings
	faults   [scale.NumChannels]error
	openErrs [scale.NumChannels]error
	reads    [scale.NumChannels]int
	opens    [scale.NumChannels]int
	open     [scale.NumChannels]bool
	interval [scale.NumChannels]time.Duration
	rng      *rand.Rand

	// Time since power-up, channels only become ready after readyAfter
	uptime *stopwatch.Stopwatch
}

// New instantiates a new Mock device, executing functional options, if any
func New(options ...func(*Mock)) *Mock {

	// Initialize a new instance of a Mock device
	m := &Mock{
		id:          defaultID,
		minInterval: defaultMinInterval,
		rng:         rand.New(rand.NewSource(1)),
		uptime:      stopwatch.Start(0),
	}
	for i := range m.ratios {
		m.ratios[i] = defaultRatio
	}

	// Execute functional options (if any), see options.go for implementation
	for _, option := range options {
		option(m)
	}

	return m
}

// ID returns the identifier of the simulated device
func (m *Mock) ID() scale.ID {
	return m.id
}

// SetRatios sets the readings returned by all channels
func (m *Mock) SetRatios(r scale.Readings) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ratios = r
}

// SetRatio sets the reading returned by a single channel
func (m *Mock) SetRatio(index int, ratio float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ratios[index] = ratio
}

// SetFault causes reads of a channel to fail with err (nil clears the fault)
func (m *Mock) SetFault(index int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faults[index] = err
}

// SetOpenFault causes opening a channel to fail with err (nil clears the fault)
func (m *Mock) SetOpenFault(index int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openErrs[index] = err
}

// Reads returns the number of reads performed per channel
func (m *Mock) Reads() [scale.NumChannels]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads
}

// Opens returns the number of open attempts per channel
func (m *Mock) Opens() [scale.NumChannels]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opens
}

// IsOpen returns if a channel is currently open
func (m *Mock) IsOpen(index int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.open[index]
}

// DataInterval returns the sampling interval a channel was programmed with
func (m *Mock) DataInterval(index int) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.interval[index]
}

// Channel binds a new handle to the channel with the given index
func (m *Mock) Channel(index int) (scale.Channel, error) {
	if index < 0 || index >= scale.NumChannels {
		return nil, scale.CodeInvalidArg
	}
	return &channel{
		mock:  m,
		index: index,
	}, nil
}

////////////////////////////////////////////////////////////////////////////////

type channel struct {
	mock  *Mock
	index int

	boundID *scale.ID
	opened  bool
}

func (c *channel) SetIdentifier(id scale.ID) error {
	if id != c.mock.id {
		return scale.CodeInvalidArg
	}
	c.boundID = &id
	return nil
}

func (c *channel) OpenWait(timeout time.Duration) error {
	m := c.mock

	m.mu.Lock()
	m.opens[c.index]++
	openErr := m.openErrs[c.index]
	m.mu.Unlock()

	if openErr != nil {
		return openErr
	}

	deadline := stopwatch.Start(0)
	for m.uptime.ElapsedTime() < m.readyAfter {
		if deadline.ElapsedTime() >= timeout {
			return scale.CodeTimeout
		}
		time.Sleep(readyPollInterval)
	}

	m.mu.Lock()
	m.open[c.index] = true
	m.mu.Unlock()
	c.opened = true

	return nil
}

func (c *channel) MinDataInterval() (time.Duration, error) {
	if !c.opened {
		return 0, scale.CodeNotAttached
	}
	return c.mock.minInterval, nil
}

func (c *channel) SetDataInterval(interval time.Duration) error {
	if !c.opened {
		return scale.CodeNotAttached
	}
	if interval < c.mock.minInterval {
		return scale.CodeInvalidArg
	}

	c.mock.mu.Lock()
	c.mock.interval[c.index] = interval
	c.mock.mu.Unlock()

	return nil
}

func (c *channel) VoltageRatio() (float64, error) {
	if !c.opened {
		return 0, scale.CodeNotAttached
	}

	m := c.mock
	m.mu.Lock()
	defer m.mu.Unlock()

	m.reads[c.index]++
	if err := m.faults[c.index]; err != nil {
		return 0, err
	}

	ratio := m.ratios[c.index]
	if m.noise > 0 {
		ratio += (m.rng.Float64()*2 - 1) * m.noise
	}

	return ratio, nil
}

func (c *channel) Identifier() (scale.ID, error) {
	if !c.opened {
		return 0, scale.CodeNotAttached
	}
	return c.mock.id, nil
}

func (c *channel) Close() error {
	if !c.opened {
		return nil
	}
	c.opened = false

	c.mock.mu.Lock()
	c.mock.open[c.index] = false
	c.mock.mu.Unlock()

	return nil
}
