package mock

import (
	"math/rand"
	"time"

	"github.com/fako1024/loadscale/pkg/scale"
)

// WithID sets the device identifier
func WithID(id scale.ID) func(*Mock) {
	return func(m *Mock) {
		m.id = id
	}
}

// WithRatios sets the initial readings of all channels
func WithRatios(r scale.Readings) func(*Mock) {
	return func(m *Mock) {
		m.ratios = r
	}
}

// WithMinInterval sets the minimum data interval reported by the channels
func WithMinInterval(interval time.Duration) func(*Mock) {
	return func(m *Mock) {
		m.minInterval = interval
	}
}

// WithReadyAfter delays channel readiness by the given duration after creation
func WithReadyAfter(d time.Duration) func(*Mock) {
	return func(m *Mock) {
		m.readyAfter = d
	}
}

// WithNoise adds uniformly distributed noise of the given amplitude to each reading,
// seeded deterministically
func WithNoise(amplitude float64, seed int64) func(*Mock) {
	return func(m *Mock) {
		m.noise = amplitude
		m.rng = rand.New(rand.NewSource(seed))
	}
}
