package types

import "time"

// OutcomeStatus classifies the result of submitting a paired order.
type OutcomeStatus string

const (
	// OutcomeFilled means both legs filled fully.
	OutcomeFilled OutcomeStatus = "filled"
	// OutcomeUnfilled means neither leg filled. Treated as a missed
	// opportunity, not an error.
	OutcomeUnfilled OutcomeStatus = "unfilled"
	// OutcomePartial means exactly one leg filled. This leaves directional
	// exposure and must never be silently absorbed.
	OutcomePartial OutcomeStatus = "partial"
)

// LegFill is the fill report for one leg of a paired order.
type LegFill struct {
	Symbol     string  `yaml:"symbol" json:"symbol"`
	Side       Side    `yaml:"side" json:"side"`
	Filled     bool    `yaml:"filled" json:"filled"`
	FillPrice  float64 `yaml:"fill_price" json:"fill_price"`
	FillVolume float64 `yaml:"fill_volume" json:"fill_volume"`
	// Err holds the submission error text when the leg failed outright.
	Err string `yaml:"err,omitempty" json:"err,omitempty"`
}

// ExecutionOutcome is the reconciled result of submitting both legs of a
// TradeIntent.
type ExecutionOutcome struct {
	Status     OutcomeStatus `yaml:"status" json:"status"`
	Intent     TradeIntent   `yaml:"intent" json:"intent"`
	LegA       LegFill       `yaml:"leg_a" json:"leg_a"`
	LegB       LegFill       `yaml:"leg_b" json:"leg_b"`
	ExecutedAt time.Time     `yaml:"executed_at" json:"executed_at"`
}

// FilledLeg returns the fill of the leg that executed in a partial outcome.
// The second return value is false when the outcome is not partial.
func (o ExecutionOutcome) FilledLeg() (LegFill, bool) {
	if o.Status != OutcomePartial {
		return LegFill{}, false
	}

	if o.LegA.Filled {
		return o.LegA, true
	}

	return o.LegB, true
}

// ClassifyOutcome derives the outcome status from the two leg fills.
func ClassifyOutcome(legA, legB LegFill) OutcomeStatus {
	switch {
	case legA.Filled && legB.Filled:
		return OutcomeFilled
	case !legA.Filled && !legB.Filled:
		return OutcomeUnfilled
	default:
		return OutcomePartial
	}
}
