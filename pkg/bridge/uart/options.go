package uart

import "github.com/fako1024/loadscale/pkg/scale"

// WithBaudRate sets the baud rate
func WithBaudRate(baudRate int) func(*Port) {
	return func(p *Port) {
		if baudRate > 0 {
			p.baudRate = baudRate
		}
	}
}

// WithLogger sets a logger
func WithLogger(logger scale.Logger) func(*Port) {
	return func(p *Port) {
		if logger != nil {
			p.logger = logger
		}
	}
}
