package types

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/meanrev-lab/pairtrader/pkg/errors"
)

type Side string

type OrderKind string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

const (
	// OrderKindImmediate executes against available liquidity now or is
	// cancelled. It never rests in the book.
	OrderKindImmediate OrderKind = "IMMEDIATE"
	// OrderKindResting rests in the book until filled or cancelled.
	OrderKindResting OrderKind = "RESTING"
)

// Opposite returns the reversing side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}

	return SideBuy
}

// LegOrder is a single fully resolved order for one leg of a pair trade.
type LegOrder struct {
	ID     string    `yaml:"id" json:"id" validate:"required,uuid"`
	Symbol string    `yaml:"symbol" json:"symbol" validate:"required"`
	Side   Side      `yaml:"side" json:"side" validate:"required,oneof=BUY SELL"`
	Kind   OrderKind `yaml:"kind" json:"kind" validate:"required,oneof=IMMEDIATE RESTING"`
	Price  float64   `yaml:"price" json:"price" validate:"required,gt=0"`
	Volume float64   `yaml:"volume" json:"volume" validate:"required,gt=0"`
}

// TradeIntent is a guard-rail-approved pair of orders. Both legs carry the
// same volume and opposite sides.
type TradeIntent struct {
	Signal SignalType `yaml:"signal" json:"signal" validate:"required"`
	Reason string     `yaml:"reason" json:"reason"`
	// LegA is the order for the first instrument of the pair.
	LegA LegOrder `yaml:"leg_a" json:"leg_a" validate:"required"`
	// LegB is the order for the second instrument of the pair.
	LegB LegOrder `yaml:"leg_b" json:"leg_b" validate:"required"`
	// ExecutionSpread is the spread recomputed from the resolved execution
	// prices, not the mid prices the signal was generated on.
	ExecutionSpread float64   `yaml:"execution_spread" json:"execution_spread" validate:"required,gt=0"`
	CreatedAt       time.Time `yaml:"created_at" json:"created_at"`
}

// Validate validates the TradeIntent struct and the pairing invariants.
func (ti *TradeIntent) Validate() error {
	validate := validator.New()
	if err := validate.Struct(ti); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidOrder, "invalid trade intent", err)
	}

	if ti.LegA.Volume != ti.LegB.Volume {
		return errors.Newf(errors.ErrCodeInvalidQuantity,
			"pair legs must carry equal volume, got %f and %f", ti.LegA.Volume, ti.LegB.Volume)
	}

	if ti.LegA.Side == ti.LegB.Side {
		return errors.Newf(errors.ErrCodeInvalidOrder,
			"pair legs must have opposite sides, both are %s", ti.LegA.Side)
	}

	return nil
}
