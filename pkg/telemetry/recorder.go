// Package telemetry periodically records weight measurements of a scale as time
// series points
package telemetry

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/fako1024/loadscale/pkg/command"
	"github.com/fako1024/loadscale/pkg/scale"
)

const (
	defaultMeasurement = "scale"
	defaultInterval    = 10 * time.Second
	defaultSamples     = 5
)

// PointWriter denotes a sink for time series points
type PointWriter interface {
	WritePoint(p *write.Point)
}

// Handler denotes anything executing scale commands
type Handler interface {
	Handle(ctx context.Context, cmd command.Command) (command.Response, error)
}

var (
	_ PointWriter = (*Client)(nil)
	_ Handler     = (*command.Dispatcher)(nil)
)

// Recorder periodically obtains the median weight of a scale and writes it as a
// point. Device faults are recorded as well, carrying the faulty channel
type Recorder struct {
	handler     Handler
	writer      PointWriter
	measurement string
	interval    time.Duration
	samples     int

	logger scale.Logger
}

// NewRecorder instantiates a new Recorder, executing functional options, if any
func NewRecorder(h Handler, w PointWriter, options ...func(*Recorder)) *Recorder {
	r := &Recorder{
		handler:     h,
		writer:      w,
		measurement: defaultMeasurement,
		interval:    defaultInterval,
		samples:     defaultSamples,
		logger:      &scale.NullLogger{},
	}

	for _, option := range options {
		option(r)
	}

	return r
}

// WithMeasurement sets the measurement name of all points
func WithMeasurement(name string) func(*Recorder) {
	return func(r *Recorder) {
		r.measurement = name
	}
}

// WithInterval sets the interval between two recordings
func WithInterval(interval time.Duration) func(*Recorder) {
	return func(r *Recorder) {
		if interval > 0 {
			r.interval = interval
		}
	}
}

// WithSamples sets the number of samples each recorded median is based on
func WithSamples(samples int) func(*Recorder) {
	return func(r *Recorder) {
		r.samples = samples
	}
}

// WithLogger sets a logger
func WithLogger(logger scale.Logger) func(*Recorder) {
	return func(r *Recorder) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// Record obtains a single median weight and writes it (or the fault preventing it)
func (r *Recorder) Record(ctx context.Context) error {
	resp, err := r.handler.Handle(ctx, command.GetMedianWeight(r.samples))

	tags := map[string]string{
		"id": resp.ID.String(),
	}
	fields := make(map[string]interface{})

	switch {
	case err == nil && resp.Weight != nil:
		fields["weight"] = *resp.Weight
	case resp.Channel != nil:
		tags["channel"] = strconv.Itoa(*resp.Channel)
		fields["fault"] = resp.Error
	default:
		return err
	}

	r.writer.WritePoint(write.NewPoint(r.measurement, tags, fields, time.Now()))

	return err
}

// Run records in the configured interval until the context is done or the scale
// has been closed
func (r *Recorder) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if err := r.Record(ctx); err != nil {
			if errors.Is(err, scale.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			r.logger.Warnf("failed to record weight: %s", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
