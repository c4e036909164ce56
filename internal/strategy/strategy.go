// Package strategy generates mean-reversion trading signals from spread
// statistics. Evaluation is pure: the same inputs always produce the same
// signal and nothing is mutated.
package strategy

import (
	"fmt"
	"time"

	"github.com/meanrev-lab/pairtrader/internal/config"
	"github.com/meanrev-lab/pairtrader/internal/types"
)

// Bands are the resolved entry and exit thresholds for one evaluation.
type Bands struct {
	UpperEntry float64
	LowerEntry float64
	UpperExit  float64
	LowerExit  float64
}

// SignalGenerator evaluates the current spread against its statistics and the
// pair position state.
type SignalGenerator struct {
	cfg config.StrategyConfig
	// volume is the per-leg volume attached to OPEN signals.
	volume float64
}

// NewSignalGenerator creates a signal generator.
func NewSignalGenerator(cfg config.StrategyConfig, volume float64) *SignalGenerator {
	return &SignalGenerator{cfg: cfg, volume: volume}
}

// ResolveBands computes the entry/exit bands for the given statistics. The
// band center is the rolling mean, or theoretical parity 1.0 when the
// generator is configured for perfectly fungible listings.
func (g *SignalGenerator) ResolveBands(stats types.SpreadStatistics) Bands {
	center := stats.Mean
	if g.cfg.AnchorMode == config.AnchorParity {
		center = 1.0
	}

	return Bands{
		UpperEntry: center + g.cfg.EntryStdev*stats.Stdev,
		LowerEntry: center - g.cfg.EntryStdev*stats.Stdev,
		UpperExit:  center + g.cfg.ExitStdev*stats.Stdev,
		LowerExit:  center - g.cfg.ExitStdev*stats.Stdev,
	}
}

// Evaluate returns at most one signal for the cycle.
//
// Nothing is signaled until the history buffer is full: with a short sample
// the bands collapse toward the mean and every spread looks reverted, which
// would immediately close a position adopted at startup. Close conditions
// are checked before open conditions, an OPEN signal is never emitted while
// a position is held, and CLOSE is never emitted while flat.
func (g *SignalGenerator) Evaluate(spread float64, stats types.SpreadStatistics, state types.PositionState) types.Signal {
	now := time.Now()

	if !stats.Ready {
		return noAction(now, spread)
	}

	bands := g.ResolveBands(stats)

	switch state {
	case types.PositionLongPair:
		// Entered when the spread was below the lower entry band; close
		// once it has reverted up to the lower exit band.
		if spread >= bands.LowerExit {
			return types.Signal{
				Time:   now,
				Type:   types.SignalTypeClosePosition,
				Reason: "reverted_to_mean",
				Spread: spread,
				Volume: 0,
			}
		}

		return noAction(now, spread)

	case types.PositionShortPair:
		if spread <= bands.UpperExit {
			return types.Signal{
				Time:   now,
				Type:   types.SignalTypeClosePosition,
				Reason: "reverted_to_mean",
				Spread: spread,
				Volume: 0,
			}
		}

		return noAction(now, spread)
	}

	if spread > bands.UpperEntry {
		return types.Signal{
			Time:   now,
			Type:   types.SignalTypeOpenShortPair,
			Reason: fmt.Sprintf("spread %.4f > upper_entry %.4f", spread, bands.UpperEntry),
			Spread: spread,
			Volume: g.volume,
		}
	}

	if spread < bands.LowerEntry {
		return types.Signal{
			Time:   now,
			Type:   types.SignalTypeOpenLongPair,
			Reason: fmt.Sprintf("spread %.4f < lower_entry %.4f", spread, bands.LowerEntry),
			Spread: spread,
			Volume: g.volume,
		}
	}

	return noAction(now, spread)
}

func noAction(now time.Time, spread float64) types.Signal {
	return types.Signal{
		Time:   now,
		Type:   types.SignalTypeNoAction,
		Reason: "",
		Spread: spread,
		Volume: 0,
	}
}
