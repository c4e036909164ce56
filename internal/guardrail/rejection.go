package guardrail

import (
	"errors"
	"fmt"
)

// RejectionCode is the machine-readable reason a signal was vetoed.
type RejectionCode string

const (
	// RejectTradingHalted means the global kill switch is set.
	RejectTradingHalted RejectionCode = "trading_halted"
	// RejectFrozen means OPEN signals are disabled pending reconciliation.
	RejectFrozen RejectionCode = "frozen"
	// RejectAlreadyInPosition means an OPEN signal arrived while positioned.
	// Idempotent no-op, not an error.
	RejectAlreadyInPosition RejectionCode = "already_in_position"
	// RejectNoPositionToClose means a CLOSE signal arrived while flat.
	RejectNoPositionToClose RejectionCode = "no_position_to_close"
	// RejectInsufficientMargin means available cash cannot carry the trade.
	RejectInsufficientMargin RejectionCode = "insufficient_margin"
	// RejectVolumeLocked means a leg lacks liquidity at the resolved price.
	RejectVolumeLocked RejectionCode = "volume_locked"
	// RejectSlippageRisk means an instrument's bid-ask width is too wide.
	RejectSlippageRisk RejectionCode = "slippage_risk"
	// RejectStaleSignal means the signal no longer holds at execution prices.
	RejectStaleSignal RejectionCode = "stale_signal"
)

// Rejection is a typed guard-rail veto. It is a recoverable condition: the
// cycle logs it and continues.
type Rejection struct {
	Code RejectionCode
	// Symbol names the constrained instrument for per-leg rejections.
	Symbol  string
	Message string
}

// Tag returns the machine-readable reason tag, including the constrained
// instrument when one applies (e.g. "volume_locked:PHILIPS_B").
func (r *Rejection) Tag() string {
	if r.Symbol != "" {
		return fmt.Sprintf("%s:%s", r.Code, r.Symbol)
	}

	return string(r.Code)
}

// Error implements the error interface.
func (r *Rejection) Error() string {
	return fmt.Sprintf("%s: %s", r.Tag(), r.Message)
}

// AsRejection extracts a Rejection from an error chain.
func AsRejection(err error) (*Rejection, bool) {
	var rejection *Rejection
	if errors.As(err, &rejection) {
		return rejection, true
	}

	return nil, false
}

func reject(code RejectionCode, format string, args ...any) *Rejection {
	return &Rejection{Code: code, Symbol: "", Message: fmt.Sprintf(format, args...)}
}

func rejectSymbol(code RejectionCode, symbol, format string, args ...any) *Rejection {
	return &Rejection{Code: code, Symbol: symbol, Message: fmt.Sprintf(format, args...)}
}
