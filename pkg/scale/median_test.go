package scale

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMedian(t *testing.T) {
	for _, cs := range []struct {
		name     string
		samples  []float64
		expected float64
	}{
		{"single", []float64{42.}, 42.},
		{"odd", []float64{3., 1., 2.}, 2.},
		{"even_lower_median", []float64{4., 1., 3., 2.}, 2.},
		{"duplicates", []float64{5., 5., 1., 5., 9.}, 5.},
		{"negative", []float64{-1., -3., -2.}, -2.},
		{"two", []float64{7., 3.}, 3.},
	} {
		t.Run(cs.name, func(t *testing.T) {
			m, err := Median(cs.samples)
			require.NoError(t, err)
			assert.Equal(t, cs.expected, m)
		})
	}
}

func TestMedianDoesNotModifyInput(t *testing.T) {
	samples := []float64{3., 1., 2.}
	_, err := Median(samples)
	require.NoError(t, err)
	assert.Equal(t, []float64{3., 1., 2.}, samples)
}

func TestMedianEmpty(t *testing.T) {
	_, err := Median(nil)
	assert.ErrorIs(t, err, ErrInvalidSamples)
}

func TestPacer(t *testing.T) {
	p := newPacer(20 * time.Millisecond)

	// First sample is accepted without delay
	start := time.Now()
	require.NoError(t, p.wait(context.Background()))
	assert.Less(t, time.Since(start), 20*time.Millisecond)
	p.accept()

	require.NoError(t, p.wait(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestPacerCancel(t *testing.T) {
	p := newPacer(time.Hour)
	p.accept()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, p.wait(ctx), context.DeadlineExceeded)
}
