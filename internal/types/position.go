package types

import "time"

// PositionState is the pair-level position of the engine.
type PositionState string

const (
	// PositionFlat means no pair position is held.
	PositionFlat PositionState = "FLAT"
	// PositionLongPair means net-long the first instrument and net-short the second.
	PositionLongPair PositionState = "LONG_PAIR"
	// PositionShortPair means net-short the first instrument and net-long the second.
	PositionShortPair PositionState = "SHORT_PAIR"
)

// PairPosition is the open-position metadata carried while not flat.
type PairPosition struct {
	State PositionState `yaml:"state" json:"state"`
	// Volume is the per-leg quantity. Leg quantities are equal in magnitude
	// and opposite in sign while the position is open.
	Volume float64 `yaml:"volume" json:"volume"`
	// EntrySpread is the execution spread at open, or a synthetic value
	// derived from the live spread when the position was adopted at startup.
	EntrySpread float64   `yaml:"entry_spread" json:"entry_spread"`
	EntryPriceA float64   `yaml:"entry_price_a" json:"entry_price_a"`
	EntryPriceB float64   `yaml:"entry_price_b" json:"entry_price_b"`
	OpenedAt    time.Time `yaml:"opened_at" json:"opened_at"`
}

// ReconcileOutcome classifies externally observed holdings at startup.
type ReconcileOutcome string

const (
	ReconcileFlat       ReconcileOutcome = "flat"
	ReconcileLongPair   ReconcileOutcome = "long_pair"
	ReconcileShortPair  ReconcileOutcome = "short_pair"
	// ReconcileUnbalanced means the holdings do not match any pair trade
	// pattern. The engine must not trade through this without an explicit
	// operator decision.
	ReconcileUnbalanced ReconcileOutcome = "unbalanced"
)

// ClassifyHoldings maps externally observed signed quantities to a reconcile
// outcome. Pure function of (qtyA, qtyB).
func ClassifyHoldings(qtyA, qtyB float64) ReconcileOutcome {
	switch {
	case qtyA == 0 && qtyB == 0:
		return ReconcileFlat
	case qtyA > 0 && qtyB < 0:
		return ReconcileLongPair
	case qtyA < 0 && qtyB > 0:
		return ReconcileShortPair
	default:
		return ReconcileUnbalanced
	}
}

// PositionState converts a pair-shaped reconcile outcome to a position state.
// Unbalanced holdings have no position state and return false.
func (r ReconcileOutcome) PositionState() (PositionState, bool) {
	switch r {
	case ReconcileFlat:
		return PositionFlat, true
	case ReconcileLongPair:
		return PositionLongPair, true
	case ReconcileShortPair:
		return PositionShortPair, true
	default:
		return PositionFlat, false
	}
}
