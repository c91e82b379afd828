package bridge

import (
	"time"

	"github.com/fako1024/loadscale/pkg/scale"
)

// WithExpectedID restricts the hub to a bridge reporting the given identifier
func WithExpectedID(id scale.ID) func(*Hub) {
	return func(h *Hub) {
		h.expectedID = id
	}
}

// WithMaxAge sets the age after which the most recent frame is considered stale
// (zero disables the check)
func WithMaxAge(maxAge time.Duration) func(*Hub) {
	return func(h *Hub) {
		h.maxAge = maxAge
	}
}

// WithLogger sets a logger
func WithLogger(logger scale.Logger) func(*Hub) {
	return func(h *Hub) {
		if logger != nil {
			h.logger = logger
		}
	}
}
