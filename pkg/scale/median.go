package scale

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/fatih/stopwatch"
)

// Median returns the lower median of a set of samples, i.e. the element at index
// len/2 after sorting in ascending order. The input is not modified
func Median(samples []float64) (float64, error) {
	if len(samples) == 0 {
		return 0, fmt.Errorf("%w: cannot compute median of empty set", ErrInvalidSamples)
	}

	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)

	return sorted[len(sorted)/2], nil
}

// pacer enforces a minimum interval between accepted samples, measured from the
// acceptance of the previous sample
type pacer struct {
	minInterval time.Duration
	timer       *stopwatch.Stopwatch
}

func newPacer(minInterval time.Duration) *pacer {
	return &pacer{
		minInterval: minInterval,
	}
}

// wait blocks until minInterval has elapsed since the last accepted sample. It
// returns immediately for the first sample
func (p *pacer) wait(ctx context.Context) error {
	if p.timer == nil || p.minInterval <= 0 {
		return ctx.Err()
	}

	remaining := p.minInterval - p.timer.ElapsedTime()
	if remaining <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(remaining)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// accept marks the current point in time as acceptance of a sample
func (p *pacer) accept() {
	p.timer = stopwatch.Start(0)
}
