package command

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fako1024/loadscale/pkg/scale"
)

// Scale denotes the operations of a connected scale the dispatcher relies on
type Scale interface {
	ID() scale.ID
	Weight() (float64, error)
	MedianWeightContext(ctx context.Context, samples int, minInterval time.Duration) (float64, error)
	RawMediansContext(ctx context.Context, samples int, minInterval time.Duration) (scale.Readings, error)
	Close() error
}

var _ Scale = (*scale.Connected)(nil)

// Response denotes the answer to a command
type Response struct {
	Command    Kind            `json:"command"`
	ID         scale.ID        `json:"id"`
	Weight     *float64        `json:"weight,omitempty"`
	RawMedians *scale.Readings `json:"raw_medians,omitempty"`
	Error      string          `json:"error,omitempty"`
	Channel    *int            `json:"channel,omitempty"`
}

// Dispatcher answers commands using a connected scale. Commands are executed one
// at a time since channel reads are not reentrant
type Dispatcher struct {
	mu          sync.Mutex
	scale       Scale
	minInterval time.Duration

	shutdownOnce sync.Once
	done         chan struct{}

	logger scale.Logger
}

// NewDispatcher instantiates a new Dispatcher, executing functional options, if any
func NewDispatcher(s Scale, options ...func(*Dispatcher)) *Dispatcher {
	d := &Dispatcher{
		scale:  s,
		done:   make(chan struct{}),
		logger: &scale.NullLogger{},
	}

	for _, option := range options {
		option(d)
	}

	return d
}

// WithMinInterval sets the minimum interval between samples of median commands
func WithMinInterval(interval time.Duration) func(*Dispatcher) {
	return func(d *Dispatcher) {
		d.minInterval = interval
	}
}

// WithLogger sets a logger
func WithLogger(logger scale.Logger) func(*Dispatcher) {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// Done returns a channel that is closed once a Shutdown command was handled
func (d *Dispatcher) Done() <-chan struct{} {
	return d.done
}

// Handle executes a command. Errors are returned and reflected in the response
func (d *Dispatcher) Handle(ctx context.Context, cmd Command) (Response, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.logger.Debugf("handling command %s", cmd)

	resp := Response{
		Command: cmd.Kind,
		ID:      d.scale.ID(),
	}

	var err error
	switch cmd.Kind {
	case KindGetWeight:
		var w float64
		if w, err = d.scale.Weight(); err == nil {
			resp.Weight = &w
		}
	case KindGetMedianWeight:
		var w float64
		if w, err = d.scale.MedianWeightContext(ctx, cmd.Samples, d.minInterval); err == nil {
			resp.Weight = &w
		}
	case KindGetRawMedians:
		var medians scale.Readings
		if medians, err = d.scale.RawMediansContext(ctx, cmd.Samples, d.minInterval); err == nil {
			resp.RawMedians = &medians
		}
	case KindShutdown:
		err = d.shutdown()
	default:
		err = ErrInvalidCommand
	}

	if err != nil {
		resp.Error = err.Error()
		if idx, ok := scale.FaultyChannel(err); ok {
			resp.Channel = &idx
		}
		d.logger.Warnf("command %s failed: %s", cmd, err)
	}

	return resp, err
}

func (d *Dispatcher) shutdown() (err error) {
	d.shutdownOnce.Do(func() {
		d.logger.Infof("shutting down scale %s", d.scale.ID())
		err = d.scale.Close()
		close(d.done)
	})

	return
}

// IsInputError returns if a command failed due to invalid input (as opposed to a
// hardware or transport failure)
func IsInputError(err error) bool {
	return errors.Is(err, ErrInvalidCommand) || errors.Is(err, scale.ErrInvalidSamples)
}
