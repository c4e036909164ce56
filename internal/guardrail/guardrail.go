// Package guardrail runs the pre-trade validation pass. Every order pair the
// engine sends to market is produced here; nothing reaches the executor
// without passing every check.
package guardrail

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/meanrev-lab/pairtrader/internal/config"
	"github.com/meanrev-lab/pairtrader/internal/logger"
	"github.com/meanrev-lab/pairtrader/internal/strategy"
	"github.com/meanrev-lab/pairtrader/internal/types"
	"github.com/meanrev-lab/pairtrader/pkg/errors"
)

// LedgerView is the read-only slice of the position ledger the guard rail
// consumes. The ledger remains the single writer.
type LedgerView interface {
	// State returns the current pair position state.
	State() types.PositionState
	// Position returns the open position metadata; false while flat.
	Position() (types.PairPosition, bool)
	// Cash returns the available cash balance.
	Cash() float64
	// Frozen reports whether OPEN signals are disabled pending manual
	// reconciliation.
	Frozen() bool
}

// resolvedLeg is one leg's executable price and the volume available there.
type resolvedLeg struct {
	symbol    string
	side      types.Side
	price     float64
	available float64
}

// GuardRail validates signals against live market conditions. Validation is
// pessimistic: the first failing check aborts, and no state persists across
// cycles.
type GuardRail struct {
	pair config.PairConfig
	risk config.RiskConfig
	log  *logger.Logger
}

// New creates a guard rail executor.
func New(pair config.PairConfig, risk config.RiskConfig, log *logger.Logger) *GuardRail {
	return &GuardRail{pair: pair, risk: risk, log: log}
}

// Validate turns an actionable signal into a TradeIntent, or vetoes it with a
// typed *Rejection error. Non-rejection errors indicate a caller bug, not a
// market condition.
func (g *GuardRail) Validate(
	signal types.Signal,
	quoteA, quoteB types.Quote,
	bands strategy.Bands,
	view LedgerView,
) (types.TradeIntent, error) {
	if signal.Type == types.SignalTypeNoAction {
		return types.TradeIntent{}, errors.New(errors.ErrCodeInvalidParameter, "cannot validate a no_action signal")
	}

	// 1. Global kill switch; a frozen ledger blocks new exposure the same way.
	if g.risk.TradingDisabled {
		return types.TradeIntent{}, reject(RejectTradingHalted, "trading disabled by kill switch")
	}

	if signal.Type.IsOpen() && view.Frozen() {
		return types.TradeIntent{}, reject(RejectFrozen, "open signals disabled pending reconciliation")
	}

	// 2. No pyramiding: an OPEN while positioned is an idempotent no-op.
	if signal.Type.IsOpen() && view.State() != types.PositionFlat {
		return types.TradeIntent{}, reject(RejectAlreadyInPosition, "already holding %s", view.State())
	}

	// 3. A CLOSE while flat is likewise a no-op.
	if signal.Type == types.SignalTypeClosePosition && view.State() == types.PositionFlat {
		return types.TradeIntent{}, reject(RejectNoPositionToClose, "no position to close")
	}

	volume := signal.Volume

	if signal.Type == types.SignalTypeClosePosition {
		position, ok := view.Position()
		if !ok {
			return types.TradeIntent{}, reject(RejectNoPositionToClose, "no position to close")
		}

		volume = position.Volume
	}

	if volume <= 0 {
		return types.TradeIntent{}, errors.Newf(errors.ErrCodeInvalidQuantity, "invalid signal volume %f", volume)
	}

	// 4. Margin: opening must be carried by available cash.
	if signal.Type.IsOpen() {
		required := volume * g.risk.MarginFactor
		if required > view.Cash() {
			return types.TradeIntent{}, reject(RejectInsufficientMargin,
				"need %.2f margin, have %.2f cash", required, view.Cash())
		}
	}

	// 5. Resolve the executable side and price per leg from the live books.
	legA, legB, err := g.resolveLegs(signal.Type, quoteA, quoteB, view)
	if err != nil {
		return types.TradeIntent{}, err
	}

	// 6. Liquidity: each leg must be fillable at the resolved level. An
	// unfillable leg is a partial-fill precursor, so the whole pair is vetoed.
	for _, leg := range []resolvedLeg{legA, legB} {
		if leg.available < volume*g.risk.MinLiquidityRatio {
			return types.TradeIntent{}, rejectSymbol(RejectVolumeLocked, leg.symbol,
				"need %.0f, only %.0f available", volume*g.risk.MinLiquidityRatio, leg.available)
		}
	}

	// 7. Slippage: wide books signal volatility or thin liquidity. A
	// one-sided book has no measurable width and is vetoed outright.
	widthA, ok := quoteA.Width()
	if !ok {
		return types.TradeIntent{}, rejectSymbol(RejectSlippageRisk, quoteA.Symbol,
			"bid-ask width unavailable on a one-sided book")
	}

	if widthA > g.risk.MaxBidAskWidthA {
		return types.TradeIntent{}, rejectSymbol(RejectSlippageRisk, quoteA.Symbol,
			"bid-ask width %.4f exceeds %.4f", widthA, g.risk.MaxBidAskWidthA)
	}

	widthB, ok := quoteB.Width()
	if !ok {
		return types.TradeIntent{}, rejectSymbol(RejectSlippageRisk, quoteB.Symbol,
			"bid-ask width unavailable on a one-sided book")
	}

	if widthB > g.risk.MaxBidAskWidthB {
		return types.TradeIntent{}, rejectSymbol(RejectSlippageRisk, quoteB.Symbol,
			"bid-ask width %.4f exceeds %.4f", widthB, g.risk.MaxBidAskWidthB)
	}

	// 8. Stale signal: the decision was made on mid prices, execution happens
	// on bid/ask. Recompute the spread at the resolved prices and confirm it
	// still crosses the threshold that produced the signal.
	executionSpread := legA.price / legB.price
	if rejection := g.checkStale(signal.Type, executionSpread, bands, view); rejection != nil {
		return types.TradeIntent{}, rejection
	}

	intent := types.TradeIntent{
		Signal: signal.Type,
		Reason: signal.Reason,
		LegA: types.LegOrder{
			ID:     uuid.NewString(),
			Symbol: legA.symbol,
			Side:   legA.side,
			Kind:   types.OrderKindImmediate,
			Price:  legA.price,
			Volume: volume,
		},
		LegB: types.LegOrder{
			ID:     uuid.NewString(),
			Symbol: legB.symbol,
			Side:   legB.side,
			Kind:   types.OrderKindImmediate,
			Price:  legB.price,
			Volume: volume,
		},
		ExecutionSpread: executionSpread,
		CreatedAt:       time.Now(),
	}

	if err := intent.Validate(); err != nil {
		return types.TradeIntent{}, err
	}

	g.log.Debug("Signal passed guard rails",
		zap.String("signal", string(signal.Type)),
		zap.Float64("execution_spread", executionSpread),
		zap.Float64("volume", volume),
	)

	return intent, nil
}

// resolveLegs maps a signal to concrete sides and the book level each side
// executes against: a sell executes at the bid, a buy at the ask. A missing
// side resolves to zero available volume and fails the liquidity check.
func (g *GuardRail) resolveLegs(
	signalType types.SignalType,
	quoteA, quoteB types.Quote,
	view LedgerView,
) (resolvedLeg, resolvedLeg, error) {
	var sideA, sideB types.Side

	switch signalType {
	case types.SignalTypeOpenShortPair:
		sideA, sideB = types.SideSell, types.SideBuy
	case types.SignalTypeOpenLongPair:
		sideA, sideB = types.SideBuy, types.SideSell
	case types.SignalTypeClosePosition:
		position, ok := view.Position()
		if !ok {
			return resolvedLeg{}, resolvedLeg{}, reject(RejectNoPositionToClose, "no position to close")
		}

		if position.State == types.PositionLongPair {
			// Long A / short B: unwind by selling A and buying B.
			sideA, sideB = types.SideSell, types.SideBuy
		} else {
			sideA, sideB = types.SideBuy, types.SideSell
		}
	default:
		return resolvedLeg{}, resolvedLeg{}, errors.Newf(errors.ErrCodeInvalidParameter,
			"unexpected signal type %s", signalType)
	}

	return resolveLeg(quoteA, sideA), resolveLeg(quoteB, sideB), nil
}

func resolveLeg(quote types.Quote, side types.Side) resolvedLeg {
	leg := resolvedLeg{symbol: quote.Symbol, side: side, price: 0, available: 0}

	if side == types.SideSell {
		if quote.Bid.IsSome() {
			level := quote.Bid.Unwrap()
			leg.price = level.Price
			leg.available = level.Volume
		}

		return leg
	}

	if quote.Ask.IsSome() {
		level := quote.Ask.Unwrap()
		leg.price = level.Price
		leg.available = level.Volume
	}

	return leg
}

// checkStale re-validates the signal at execution prices, loosened by the
// configured front-run tolerance.
func (g *GuardRail) checkStale(
	signalType types.SignalType,
	executionSpread float64,
	bands strategy.Bands,
	view LedgerView,
) *Rejection {
	tolerance := g.risk.FrontRunTolerance

	switch signalType {
	case types.SignalTypeOpenShortPair:
		if executionSpread < bands.UpperEntry-tolerance {
			return reject(RejectStaleSignal,
				"execution spread %.4f below entry threshold %.4f", executionSpread, bands.UpperEntry)
		}
	case types.SignalTypeOpenLongPair:
		if executionSpread > bands.LowerEntry+tolerance {
			return reject(RejectStaleSignal,
				"execution spread %.4f above entry threshold %.4f", executionSpread, bands.LowerEntry)
		}
	case types.SignalTypeClosePosition:
		position, _ := view.Position()
		if position.State == types.PositionLongPair && executionSpread < bands.LowerExit-tolerance {
			return reject(RejectStaleSignal,
				"execution spread %.4f below exit threshold %.4f", executionSpread, bands.LowerExit)
		}

		if position.State == types.PositionShortPair && executionSpread > bands.UpperExit+tolerance {
			return reject(RejectStaleSignal,
				"execution spread %.4f above exit threshold %.4f", executionSpread, bands.UpperExit)
		}
	}

	return nil
}
