package scale_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fako1024/loadscale/pkg/mock"
	"github.com/fako1024/loadscale/pkg/scale"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTimeout = time.Second

var testCoefficients = scale.Coefficients{1., 2., 3., 4.}

func connect(t *testing.T, m *mock.Mock, offset float64) *scale.Connected {
	t.Helper()

	s, err := scale.NewDisconnected(m, m.ID()).Connect(offset, testCoefficients, testTimeout)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, s.Close())
	})

	return s
}

func TestConnect(t *testing.T) {
	m := mock.New(mock.WithID(1234), mock.WithMinInterval(16*time.Millisecond))

	s := connect(t, m, 2.)
	assert.Equal(t, scale.ID(1234), s.ID())
	assert.Equal(t, scale.StateConnected, s.State())
	assert.Equal(t, scale.Calibration{Offset: 2., Coefficients: testCoefficients}, s.Calibration())

	for i := 0; i < scale.NumChannels; i++ {
		assert.True(t, m.IsOpen(i))
		assert.Equal(t, 16*time.Millisecond, m.DataInterval(i))
	}
	assert.Equal(t, 16*time.Millisecond, s.DataInterval())
}

func TestConnectInvalidIdentifier(t *testing.T) {
	m := mock.New(mock.WithID(1234))

	s, err := scale.NewDisconnected(m, 9999).Connect(0, testCoefficients, testTimeout)
	assert.Nil(t, s)
	assert.ErrorIs(t, err, scale.ErrInvalidIdentifier)

	_, isFault := scale.FaultyChannel(err)
	assert.False(t, isFault)
	assert.Equal(t, [scale.NumChannels]int{}, m.Opens())
}

func TestConnectChannelFault(t *testing.T) {
	m := mock.New()
	m.SetOpenFault(2, scale.CodeNotAttached)

	s, err := scale.NewDisconnected(m, m.ID()).Connect(0, testCoefficients, testTimeout)
	assert.Nil(t, s)

	var fault *scale.DeviceFault
	require.True(t, errors.As(err, &fault))
	assert.Equal(t, 2, fault.Channel)
	assert.Equal(t, scale.CodeNotAttached, fault.Code)

	// No partial scale: earlier channels are released, later ones never attempted
	assert.Equal(t, [scale.NumChannels]int{1, 1, 1, 0}, m.Opens())
	for i := 0; i < scale.NumChannels; i++ {
		assert.False(t, m.IsOpen(i))
	}
}

func TestConnectTimeout(t *testing.T) {
	m := mock.New(mock.WithReadyAfter(time.Hour))

	_, err := scale.NewDisconnected(m, m.ID()).Connect(0, testCoefficients, 20*time.Millisecond)

	var fault *scale.DeviceFault
	require.True(t, errors.As(err, &fault))
	assert.Equal(t, 0, fault.Channel)
	assert.Equal(t, scale.CodeTimeout, fault.Code)
}

func TestConnectWaitsForReadiness(t *testing.T) {
	m := mock.New(mock.WithReadyAfter(20 * time.Millisecond))
	s := connect(t, m, 0)
	assert.Equal(t, scale.StateConnected, s.State())
}

func TestConnectWithoutID(t *testing.T) {
	m := mock.New(mock.WithID(777))

	s, err := scale.ConnectWithoutID(m, scale.Calibration{}, testTimeout)
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, scale.ID(777), s.ID())
	assert.Equal(t, scale.Calibration{}, s.Calibration())
}

func TestConnectWithoutIDFault(t *testing.T) {
	m := mock.New()
	m.SetOpenFault(1, scale.CodeTimeout)

	_, err := scale.ConnectWithoutID(m, scale.Calibration{}, testTimeout)
	idx, ok := scale.FaultyChannel(err)
	require.True(t, ok)
	assert.Equal(t, 1, idx)
	assert.False(t, m.IsOpen(0))
}

func TestWeight(t *testing.T) {
	m := mock.New(mock.WithRatios(scale.Readings{1., 1., 1., 1.}))

	s := connect(t, m, 0)
	w, err := s.Weight()
	require.NoError(t, err)
	assert.Equal(t, 10., w)

	s = s.UpdateOffset(2.)
	w, err = s.Weight()
	require.NoError(t, err)
	assert.Equal(t, 8., w)

	// Repeated reads of unchanged readings yield identical results
	for i := 0; i < 10; i++ {
		again, err := s.Weight()
		require.NoError(t, err)
		assert.Equal(t, w, again)
	}
}

func TestRawReadingsFault(t *testing.T) {
	m := mock.New(mock.WithRatios(scale.Readings{.1, .2, .3, .4}))
	s := connect(t, m, 0)

	readings, err := s.RawReadings()
	require.NoError(t, err)
	assert.Equal(t, scale.Readings{.1, .2, .3, .4}, readings)

	m.SetFault(2, scale.CodeSaturation)
	before := m.Reads()

	_, err = s.RawReadings()
	var fault *scale.DeviceFault
	require.True(t, errors.As(err, &fault))
	assert.Equal(t, 2, fault.Channel)
	assert.Equal(t, scale.CodeSaturation, fault.Code)

	after := m.Reads()
	assert.Equal(t, before[0]+1, after[0])
	assert.Equal(t, before[1]+1, after[1])
	assert.Equal(t, before[2]+1, after[2])
	assert.Equal(t, before[3], after[3], "channel after the faulting one must not be read")

	// Weight surfaces the same attributed fault
	_, err = s.Weight()
	idx, ok := scale.FaultyChannel(err)
	require.True(t, ok)
	assert.Equal(t, 2, idx)
}

func TestUpdatesShareChannels(t *testing.T) {
	m := mock.New(mock.WithRatios(scale.Readings{1., 1., 1., 1.}))
	s := connect(t, m, 0)

	updated := s.UpdateCoefficients(scale.Coefficients{1., 1., 1., 1.}).UpdateOffset(1.)
	assert.Equal(t, s.ID(), updated.ID())
	assert.Equal(t, [scale.NumChannels]int{1, 1, 1, 1}, m.Opens())

	// The previous value is untouched
	assert.Equal(t, scale.Calibration{Coefficients: testCoefficients}, s.Calibration())
	assert.Equal(t, scale.Calibration{Offset: 1., Coefficients: scale.Coefficients{1., 1., 1., 1.}}, updated.Calibration())

	w, err := updated.Weight()
	require.NoError(t, err)
	assert.Equal(t, 3., w)

	w, err = s.Weight()
	require.NoError(t, err)
	assert.Equal(t, 10., w)

	replaced := s.UpdateCalibration(scale.Calibration{Offset: 10.})
	w, err = replaced.Weight()
	require.NoError(t, err)
	assert.Equal(t, -10., w)
}

func TestMedianWeight(t *testing.T) {
	m := mock.New(mock.WithRatios(scale.Readings{1., 0., 0., 0.}))
	s := connect(t, m, 0)

	w, err := s.MedianWeight(5, 0)
	require.NoError(t, err)
	assert.Equal(t, 1., w)
	assert.Equal(t, 5, m.Reads()[0])
}

func TestMedianWeightInvalidSamples(t *testing.T) {
	s := connect(t, mock.New(), 0)

	_, err := s.MedianWeight(0, 0)
	assert.ErrorIs(t, err, scale.ErrInvalidSamples)

	_, err = s.MedianWeight(-1, 0)
	assert.ErrorIs(t, err, scale.ErrInvalidSamples)
}

func TestMedianWeightPacing(t *testing.T) {
	s := connect(t, mock.New(), 0)

	start := time.Now()
	_, err := s.MedianWeight(4, 15*time.Millisecond)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 45*time.Millisecond)
}

func TestMedianWeightPacedByDataInterval(t *testing.T) {
	m := mock.New(mock.WithMinInterval(15 * time.Millisecond))
	s := connect(t, m, 0)

	// No explicit interval: samples are spaced by the programmed data interval
	start := time.Now()
	_, err := s.MedianWeight(4, 0)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 45*time.Millisecond)

	// A shorter explicit interval does not undercut the data interval either
	start = time.Now()
	_, err = s.MedianWeight(3, time.Millisecond)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestRawMediansPacedByDataInterval(t *testing.T) {
	m := mock.New(mock.WithMinInterval(15 * time.Millisecond))
	s := connect(t, m, 0)

	start := time.Now()
	_, err := s.RawMedians(3)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestMedianWeightFault(t *testing.T) {
	m := mock.New()
	s := connect(t, m, 0)
	m.SetFault(3, scale.CodeIO)

	_, err := s.MedianWeight(3, 0)
	idx, ok := scale.FaultyChannel(err)
	require.True(t, ok)
	assert.Equal(t, 3, idx)
	assert.Equal(t, 1, m.Reads()[3], "collection must abort on the first failure")
}

func TestMedianWeightContextCancel(t *testing.T) {
	s := connect(t, mock.New(), 0)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := s.MedianWeightContext(ctx, 10, time.Hour)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMedianWeightNoise(t *testing.T) {
	m := mock.New(mock.WithRatios(scale.Readings{.5, .5, .5, .5}), mock.WithNoise(.01, 42))
	s := connect(t, m, 0)

	w, err := s.MedianWeight(51, 0)
	require.NoError(t, err)
	assert.InDelta(t, 5., w, .1)
}

func TestRawMedians(t *testing.T) {
	m := mock.New(mock.WithRatios(scale.Readings{.1, .2, .3, .4}))
	s := connect(t, m, 0)

	medians, err := s.RawMedians(3)
	require.NoError(t, err)
	assert.Equal(t, scale.Readings{.1, .2, .3, .4}, medians)

	_, err = s.RawMedians(0)
	assert.ErrorIs(t, err, scale.ErrInvalidSamples)

	m.SetFault(1, scale.CodeNotAttached)
	_, err = s.RawMedians(3)
	idx, ok := scale.FaultyChannel(err)
	require.True(t, ok)
	assert.Equal(t, 1, idx)
}

func TestRawMediansPerChannel(t *testing.T) {
	m := mock.New(mock.WithNoise(.05, 7))
	s := connect(t, m, 0)

	medians, err := s.RawMediansContext(context.Background(), 21, time.Millisecond)
	require.NoError(t, err)
	for i := range medians {
		assert.InDelta(t, .001, medians[i], .05)
	}
}

func TestClose(t *testing.T) {
	m := mock.New()
	s, err := scale.NewDisconnected(m, m.ID()).Connect(0, testCoefficients, testTimeout)
	require.NoError(t, err)
	derived := s.UpdateOffset(1.)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Equal(t, scale.StateReleased, s.State())
	assert.Equal(t, scale.StateReleased, derived.State())

	for i := 0; i < scale.NumChannels; i++ {
		assert.False(t, m.IsOpen(i))
	}

	_, err = derived.Weight()
	assert.ErrorIs(t, err, scale.ErrClosed)
}
