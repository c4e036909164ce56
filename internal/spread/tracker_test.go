package spread

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/meanrev-lab/pairtrader/internal/config"
	"github.com/meanrev-lab/pairtrader/internal/types"
)

type TrackerTestSuite struct {
	suite.Suite
}

func TestTrackerSuite(t *testing.T) {
	suite.Run(t, new(TrackerTestSuite))
}

// quotePair builds two complete quotes whose mids produce the given spread
// against a fixed denominator mid of 100.
func (suite *TrackerTestSuite) quotePair(spread float64) (types.Quote, types.Quote) {
	now := time.Now()
	midA := spread * 100.0
	quoteA := types.NewQuote("ASML_AMS", now, midA-0.5, 100, midA+0.5, 100)
	quoteB := types.NewQuote("ASML_NASDAQ", now, 99.5, 100, 100.5, 100)

	return quoteA, quoteB
}

func (suite *TrackerTestSuite) TestNotReadyUntilFull() {
	tracker := NewTracker(5, config.StdevSample)

	for i := 0; i < 4; i++ {
		quoteA, quoteB := suite.quotePair(1.0)
		stats := tracker.Update(quoteA, quoteB)
		suite.False(stats.Ready, "must not be ready with %d samples", i+1)
	}

	quoteA, quoteB := suite.quotePair(1.0)
	stats := tracker.Update(quoteA, quoteB)
	suite.True(stats.Ready)
	suite.Equal(5, stats.SampleCount)
}

func (suite *TrackerTestSuite) TestReadyStaysReady() {
	tracker := NewTracker(3, config.StdevSample)

	for i := 0; i < 10; i++ {
		quoteA, quoteB := suite.quotePair(1.0 + float64(i)*0.01)
		tracker.Update(quoteA, quoteB)
	}

	suite.True(tracker.Statistics().Ready)
	suite.Equal(3, tracker.Len())
}

func (suite *TrackerTestSuite) TestCapacityNeverExceeded() {
	tracker := NewTracker(4, config.StdevSample)

	for i := 0; i < 50; i++ {
		quoteA, quoteB := suite.quotePair(1.0)
		tracker.Update(quoteA, quoteB)
		suite.LessOrEqual(tracker.Len(), 4)
	}
}

func (suite *TrackerTestSuite) TestEvictionDropsOldest() {
	tracker := NewTracker(2, config.StdevSample)

	quoteA, quoteB := suite.quotePair(1.0)
	tracker.Update(quoteA, quoteB)

	quoteA, quoteB = suite.quotePair(2.0)
	tracker.Update(quoteA, quoteB)

	// Third sample evicts the 1.0; buffer is now {2.0, 3.0}.
	quoteA, quoteB = suite.quotePair(3.0)
	stats := tracker.Update(quoteA, quoteB)

	suite.InDelta(2.5, stats.Mean, 1e-9)
	suite.Equal(2, stats.SampleCount)
}

func (suite *TrackerTestSuite) TestEmptySideSkipsSample() {
	tracker := NewTracker(3, config.StdevSample)

	quoteA, quoteB := suite.quotePair(1.5)
	before := tracker.Update(quoteA, quoteB)

	// Empty ask side on A: the cycle must not record a sample.
	oneSided := types.NewQuoteWithEmptySides("ASML_AMS", time.Now(), 100, 50, 0, 0)
	after := tracker.Update(oneSided, quoteB)

	suite.Equal(before, after)
	suite.Equal(1, tracker.Len())

	lastSpread, ok := tracker.LastSpread()
	suite.True(ok)
	suite.InDelta(1.5, lastSpread, 1e-9)
}

func (suite *TrackerTestSuite) TestNoSpreadBeforeFirstSample() {
	tracker := NewTracker(3, config.StdevSample)

	_, ok := tracker.LastSpread()
	suite.False(ok)
}

func (suite *TrackerTestSuite) TestSampleStdev() {
	tracker := NewTracker(3, config.StdevSample)

	for _, s := range []float64{1.0, 2.0, 3.0} {
		quoteA, quoteB := suite.quotePair(s)
		tracker.Update(quoteA, quoteB)
	}

	stats := tracker.Statistics()
	suite.InDelta(2.0, stats.Mean, 1e-9)
	// Sample variance of {1,2,3} is 1.
	suite.InDelta(1.0, stats.Stdev, 1e-9)
}

func (suite *TrackerTestSuite) TestPopulationStdev() {
	tracker := NewTracker(3, config.StdevPopulation)

	for _, s := range []float64{1.0, 2.0, 3.0} {
		quoteA, quoteB := suite.quotePair(s)
		tracker.Update(quoteA, quoteB)
	}

	stats := tracker.Statistics()
	// Population variance of {1,2,3} is 2/3.
	suite.InDelta(0.8164965809, stats.Stdev, 1e-6)
}

func (suite *TrackerTestSuite) TestSingleSampleStdevZero() {
	tracker := NewTracker(3, config.StdevSample)

	quoteA, quoteB := suite.quotePair(1.2)
	stats := tracker.Update(quoteA, quoteB)

	suite.InDelta(1.2, stats.Mean, 1e-9)
	suite.Zero(stats.Stdev)
}
