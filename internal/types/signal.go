package types

import "time"

type SignalType string

const (
	// SignalTypeOpenLongPair tells the engine to buy the first instrument and sell the second.
	SignalTypeOpenLongPair SignalType = "open_long_pair"
	// SignalTypeOpenShortPair tells the engine to sell the first instrument and buy the second.
	SignalTypeOpenShortPair SignalType = "open_short_pair"
	// SignalTypeClosePosition tells the engine to unwind the currently held pair.
	SignalTypeClosePosition SignalType = "close_position"
	// SignalTypeNoAction is emitted when the spread is inside all bands.
	SignalTypeNoAction SignalType = "no_action"
)

// IsOpen reports whether the signal opens a new pair position.
func (s SignalType) IsOpen() bool {
	return s == SignalTypeOpenLongPair || s == SignalTypeOpenShortPair
}

// Signal is the output of one strategy evaluation. At most one signal is
// produced per cycle.
type Signal struct {
	// Time is the time of the signal
	Time time.Time
	// Type is the type of the signal
	Type SignalType
	// Reason is the human-readable reason for the signal
	Reason string
	// Spread is the spread value the signal was computed on
	Spread float64
	// Volume is the requested trade volume. Zero for no_action.
	Volume float64
}
