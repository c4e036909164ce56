// Package spread converts paired quotes into a ratio spread and maintains a
// bounded rolling history with derived mean and standard deviation.
package spread

import (
	"math"
	"time"

	"github.com/meanrev-lab/pairtrader/internal/config"
	"github.com/meanrev-lab/pairtrader/internal/types"
)

// Sample is one timestamped spread observation.
type Sample struct {
	Value float64
	Time  time.Time
}

// Tracker owns the spread sample ring buffer. It is the only writer; the
// buffer never exceeds its capacity.
type Tracker struct {
	capacity  int
	stdevMode config.StdevMode

	// samples is a fixed-capacity ring. head is the index of the oldest
	// sample once the ring is full.
	samples []Sample
	head    int
	full    bool

	lastSpread float64
	hasSample  bool
	stats      types.SpreadStatistics
}

// NewTracker creates a tracker with the given history length.
func NewTracker(historyLength int, stdevMode config.StdevMode) *Tracker {
	return &Tracker{
		capacity:   historyLength,
		stdevMode:  stdevMode,
		samples:    make([]Sample, 0, historyLength),
		head:       0,
		full:       false,
		lastSpread: 0,
		hasSample:  false,
		stats:      types.SpreadStatistics{Mean: 0, Stdev: 0, SampleCount: 0, Ready: false},
	}
}

// Update computes the spread from two complete quotes, pushes it into the
// ring, and returns the recomputed statistics. When either quote has an empty
// side the cycle is skipped: no sample is recorded and the previous
// statistics are returned unchanged.
func (t *Tracker) Update(quoteA, quoteB types.Quote) types.SpreadStatistics {
	midA, okA := quoteA.Mid()
	midB, okB := quoteB.Mid()

	if !okA || !okB || midB == 0 {
		return t.stats
	}

	spread := midA / midB
	t.push(Sample{Value: spread, Time: quoteA.Time})
	t.lastSpread = spread
	t.hasSample = true
	t.recompute()

	return t.stats
}

// Statistics returns the most recently computed statistics.
func (t *Tracker) Statistics() types.SpreadStatistics {
	return t.stats
}

// LastSpread returns the most recent spread sample. The second return value
// is false before the first valid update.
func (t *Tracker) LastSpread() (float64, bool) {
	return t.lastSpread, t.hasSample
}

// Len returns the number of buffered samples.
func (t *Tracker) Len() int {
	return len(t.samples)
}

func (t *Tracker) push(sample Sample) {
	if !t.full {
		t.samples = append(t.samples, sample)
		if len(t.samples) == t.capacity {
			t.full = true
		}

		return
	}

	// Ring is full: overwrite the oldest sample.
	t.samples[t.head] = sample
	t.head = (t.head + 1) % t.capacity
}

func (t *Tracker) recompute() {
	n := len(t.samples)

	var sum float64
	for _, s := range t.samples {
		sum += s.Value
	}

	mean := sum / float64(n)

	var sumSq float64
	for _, s := range t.samples {
		d := s.Value - mean
		sumSq += d * d
	}

	var stdev float64

	switch {
	case t.stdevMode == config.StdevPopulation:
		stdev = math.Sqrt(sumSq / float64(n))
	case n > 1:
		stdev = math.Sqrt(sumSq / float64(n-1))
	default:
		stdev = 0
	}

	t.stats = types.SpreadStatistics{
		Mean:        mean,
		Stdev:       stdev,
		SampleCount: n,
		Ready:       t.full,
	}
}
