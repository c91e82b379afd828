package telemetry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fako1024/loadscale/pkg/command"
	"github.com/fako1024/loadscale/pkg/mock"
	"github.com/fako1024/loadscale/pkg/scale"
)

type recordingWriter struct {
	mu     sync.Mutex
	points []*write.Point
}

func (w *recordingWriter) WritePoint(p *write.Point) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.points = append(w.points, p)
}

func (w *recordingWriter) Points() []*write.Point {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]*write.Point(nil), w.points...)
}

func tags(p *write.Point) map[string]string {
	res := make(map[string]string)
	for _, tag := range p.TagList() {
		res[tag.Key] = tag.Value
	}
	return res
}

func fields(p *write.Point) map[string]interface{} {
	res := make(map[string]interface{})
	for _, field := range p.FieldList() {
		res[field.Key] = field.Value
	}
	return res
}

func newTestDispatcher(t *testing.T) (*command.Dispatcher, *mock.Mock) {
	t.Helper()

	m := mock.New(mock.WithID(7), mock.WithRatios(scale.Readings{1, 2, 3, 4}), mock.WithMinInterval(time.Millisecond))
	s, err := scale.NewDisconnected(m, m.ID()).Connect(0, scale.Coefficients{1, 1, 1, 1}, time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	return command.NewDispatcher(s, command.WithMinInterval(time.Millisecond)), m
}

func TestRecord(t *testing.T) {
	d, m := newTestDispatcher(t)
	w := &recordingWriter{}
	r := NewRecorder(d, w, WithMeasurement("dispenser"), WithSamples(3))

	require.NoError(t, r.Record(context.Background()))
	points := w.Points()
	require.Len(t, points, 1)
	assert.Equal(t, "dispenser", points[0].Name())
	assert.Equal(t, map[string]string{"id": "7"}, tags(points[0]))
	assert.Equal(t, map[string]interface{}{"weight": 10.}, fields(points[0]))

	m.SetFault(2, scale.CodeSaturation)
	err := r.Record(context.Background())
	require.Error(t, err)
	idx, ok := scale.FaultyChannel(err)
	require.True(t, ok)
	assert.Equal(t, 2, idx)

	points = w.Points()
	require.Len(t, points, 2)
	assert.Equal(t, map[string]string{"id": "7", "channel": "2"}, tags(points[1]))
	assert.Contains(t, fields(points[1])["fault"], "channel 2")
}

func TestRecordInvalidSamples(t *testing.T) {
	d, _ := newTestDispatcher(t)
	w := &recordingWriter{}
	r := NewRecorder(d, w, WithSamples(0))

	assert.ErrorIs(t, r.Record(context.Background()), scale.ErrInvalidSamples)
	assert.Empty(t, w.Points())
}

func TestRunStopsOnShutdown(t *testing.T) {
	d, _ := newTestDispatcher(t)
	w := &recordingWriter{}
	r := NewRecorder(d, w, WithSamples(1), WithInterval(5*time.Millisecond))

	errs := make(chan error)
	go func() {
		errs <- r.Run(context.Background())
	}()

	require.Eventually(t, func() bool {
		return len(w.Points()) >= 2
	}, time.Second, time.Millisecond)

	_, err := d.Handle(context.Background(), command.Shutdown())
	require.NoError(t, err)

	select {
	case err := <-errs:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("recorder did not stop after shutdown")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	d, _ := newTestDispatcher(t)
	r := NewRecorder(d, &recordingWriter{}, WithSamples(1), WithInterval(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error)
	go func() {
		errs <- r.Run(ctx)
	}()
	cancel()

	select {
	case err := <-errs:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("recorder did not stop after cancellation")
	}
}

func TestRecorderNilLogger(t *testing.T) {
	d, m := newTestDispatcher(t)
	r := NewRecorder(d, &recordingWriter{}, WithLogger(nil), WithSamples(1), WithInterval(time.Millisecond))
	m.SetFault(0, scale.CodeIO)

	// Faults are recorded and logged until the context expires
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.NoError(t, r.Run(ctx))
}
