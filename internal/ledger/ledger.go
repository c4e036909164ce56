// Package ledger is the single source of truth for position state, cash and
// realized P&L. All writes flow through Apply and Reconcile; every other
// component gets a read-only view.
package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/meanrev-lab/pairtrader/internal/config"
	"github.com/meanrev-lab/pairtrader/internal/guardrail"
	"github.com/meanrev-lab/pairtrader/internal/logger"
	"github.com/meanrev-lab/pairtrader/internal/market"
	"github.com/meanrev-lab/pairtrader/internal/types"
	"github.com/meanrev-lab/pairtrader/pkg/errors"
)

// UnbalancedAction is the operator decision for unbalanced startup holdings.
type UnbalancedAction string

const (
	// UnbalancedAbort refuses to start the engine.
	UnbalancedAbort UnbalancedAction = "abort"
	// UnbalancedFreeze starts the engine with OPEN signals disabled so the
	// operator can flatten the book manually.
	UnbalancedFreeze UnbalancedAction = "freeze"
)

// DecisionFunc resolves unbalanced startup holdings. The ledger never guesses
// its way out of an unbalanced book; the decision is injected.
type DecisionFunc func(qtyA, qtyB float64) (UnbalancedAction, error)

// AbortOnUnbalanced is the default decision: refuse to start.
func AbortOnUnbalanced(qtyA, qtyB float64) (UnbalancedAction, error) {
	return UnbalancedAbort, nil
}

// Ledger tracks the pair position, per-leg quantities, cash and realized P&L.
// Monetary amounts are kept in decimals so repeated round trips do not
// accumulate float drift.
type Ledger struct {
	mu   sync.RWMutex
	pair config.PairConfig
	risk config.RiskConfig
	log  *logger.Logger

	state      types.PositionState
	position   types.PairPosition
	qtyA, qtyB float64
	cash       decimal.Decimal
	realized   decimal.Decimal
	tradeCount int
	frozen     bool
}

// Verify the ledger satisfies the guard-rail read contract.
var _ guardrail.LedgerView = (*Ledger)(nil)

// New creates an empty, flat ledger.
func New(pair config.PairConfig, risk config.RiskConfig, log *logger.Logger) *Ledger {
	return &Ledger{
		pair:       pair,
		risk:       risk,
		log:        log,
		state:      types.PositionFlat,
		position:   types.PairPosition{},
		qtyA:       0,
		qtyB:       0,
		cash:       decimal.Zero,
		realized:   decimal.Zero,
		tradeCount: 0,
		frozen:     false,
	}
}

// State returns the current pair position state.
func (l *Ledger) State() types.PositionState {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.state
}

// Position returns the open position metadata; false while flat.
func (l *Ledger) Position() (types.PairPosition, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.state == types.PositionFlat {
		return types.PairPosition{}, false
	}

	return l.position, true
}

// Cash returns the available cash balance.
func (l *Ledger) Cash() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.cash.InexactFloat64()
}

// Frozen reports whether OPEN signals are disabled.
func (l *Ledger) Frozen() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.frozen
}

// RealizedPnL returns the cumulative realized profit.
func (l *Ledger) RealizedPnL() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.realized.InexactFloat64()
}

// TradeCount returns the number of applied round-trip legs (opens and closes).
func (l *Ledger) TradeCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.tradeCount
}

// Delta returns the net signed exposure across both legs. A delta-neutral
// pair position sums to zero.
func (l *Ledger) Delta() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.qtyA + l.qtyB
}

// Quantities returns the signed per-instrument quantities.
func (l *Ledger) Quantities() (float64, float64) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.qtyA, l.qtyB
}

// CheckDelta verifies the net exposure stays inside the configured tolerance.
func (l *Ledger) CheckDelta() error {
	delta := l.Delta()
	if delta > l.risk.DeltaTolerance || delta < -l.risk.DeltaTolerance {
		return errors.Newf(errors.ErrCodeDeltaOutOfTolerance,
			"net delta %f exceeds tolerance %f", delta, l.risk.DeltaTolerance)
	}

	return nil
}

// SetCash seeds the cash balance from the exchange account at startup.
func (l *Ledger) SetCash(cash float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.cash = decimal.NewFromFloat(cash)
}

// Freeze disables OPEN signals until an operator intervenes.
func (l *Ledger) Freeze(reason string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.frozen = true
	l.log.Warn("Ledger frozen", zap.String("reason", reason))
}

// Unfreeze re-enables OPEN signals.
func (l *Ledger) Unfreeze() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.frozen = false
}

// Apply records a fully filled execution outcome. Partial and unfilled
// outcomes are not applied here: unfilled outcomes change nothing and partial
// outcomes go through ApplyLegFill under the engine's partial-fill policy.
func (l *Ledger) Apply(outcome types.ExecutionOutcome) error {
	if outcome.Status != types.OutcomeFilled {
		return errors.Newf(errors.ErrCodeInvalidParameter,
			"cannot apply %s outcome as a completed trade", outcome.Status)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.applyFillLocked(outcome.LegA)
	l.applyFillLocked(outcome.LegB)

	if outcome.Intent.Signal.IsOpen() {
		return l.openLocked(outcome)
	}

	return l.closeLocked(outcome)
}

// ApplyLegFill records a single leg's cash and quantity effect. Used for the
// surviving leg of a partial fill and for its compensating order.
func (l *Ledger) ApplyLegFill(fill types.LegFill) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.applyFillLocked(fill)
}

func (l *Ledger) applyFillLocked(fill types.LegFill) {
	if !fill.Filled {
		return
	}

	notional := decimal.NewFromFloat(fill.FillPrice).Mul(decimal.NewFromFloat(fill.FillVolume))

	if fill.Side == types.SideBuy {
		l.cash = l.cash.Sub(notional)
		l.adjustQuantityLocked(fill.Symbol, fill.FillVolume)
	} else {
		l.cash = l.cash.Add(notional)
		l.adjustQuantityLocked(fill.Symbol, -fill.FillVolume)
	}

	l.tradeCount++
}

func (l *Ledger) adjustQuantityLocked(symbol string, delta float64) {
	if symbol == l.pair.SymbolA {
		l.qtyA += delta
	} else {
		l.qtyB += delta
	}
}

func (l *Ledger) openLocked(outcome types.ExecutionOutcome) error {
	if l.state != types.PositionFlat {
		return errors.Newf(errors.ErrCodeInvalidOrder,
			"cannot open while holding %s", l.state)
	}

	state := types.PositionShortPair
	if outcome.Intent.Signal == types.SignalTypeOpenLongPair {
		state = types.PositionLongPair
	}

	l.state = state
	l.position = types.PairPosition{
		State:       state,
		Volume:      outcome.LegA.FillVolume,
		EntrySpread: outcome.LegA.FillPrice / outcome.LegB.FillPrice,
		EntryPriceA: outcome.LegA.FillPrice,
		EntryPriceB: outcome.LegB.FillPrice,
		OpenedAt:    outcome.ExecutedAt,
	}

	l.log.Info("Position opened",
		zap.String("state", string(state)),
		zap.Float64("volume", l.position.Volume),
		zap.Float64("entry_spread", l.position.EntrySpread),
	)

	return nil
}

func (l *Ledger) closeLocked(outcome types.ExecutionOutcome) error {
	if l.state == types.PositionFlat {
		return errors.New(errors.ErrCodePositionNotFound, "cannot close while flat")
	}

	pnl := roundTripPnL(l.position, outcome)
	l.realized = l.realized.Add(pnl)

	l.log.Info("Position closed",
		zap.String("state", string(l.state)),
		zap.Float64("trade_pnl", pnl.InexactFloat64()),
		zap.Float64("realized_pnl", l.realized.InexactFloat64()),
	)

	l.state = types.PositionFlat
	l.position = types.PairPosition{}

	return nil
}

// roundTripPnL computes the realized profit of a close against the stored
// entry prices. Per leg: a bought entry earns exit minus entry, a sold entry
// earns entry minus exit.
func roundTripPnL(position types.PairPosition, outcome types.ExecutionOutcome) decimal.Decimal {
	volume := decimal.NewFromFloat(position.Volume)
	entryA := decimal.NewFromFloat(position.EntryPriceA)
	entryB := decimal.NewFromFloat(position.EntryPriceB)
	exitA := decimal.NewFromFloat(outcome.LegA.FillPrice)
	exitB := decimal.NewFromFloat(outcome.LegB.FillPrice)

	if position.State == types.PositionLongPair {
		// Bought A, sold B at entry.
		return exitA.Sub(entryA).Add(entryB.Sub(exitB)).Mul(volume)
	}

	// Sold A, bought B at entry.
	return entryA.Sub(exitA).Add(exitB.Sub(entryB)).Mul(volume)
}

// Reconcile aligns the ledger with externally observed holdings at startup.
// Pair-shaped holdings are adopted with the live spread as synthetic entry;
// unbalanced holdings go through the injected decision.
func (l *Ledger) Reconcile(ctx context.Context, exchange market.Exchange, decide DecisionFunc) (types.ReconcileOutcome, error) {
	positions, err := exchange.GetPositions(ctx)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeProviderUnavailable, "cannot fetch startup positions", err)
	}

	account, err := exchange.GetAccount(ctx)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeProviderUnavailable, "cannot fetch startup account", err)
	}

	qtyA := positions[l.pair.SymbolA]
	qtyB := positions[l.pair.SymbolB]
	outcome := types.ClassifyHoldings(qtyA, qtyB)

	l.mu.Lock()
	defer l.mu.Unlock()

	l.qtyA = qtyA
	l.qtyB = qtyB
	l.cash = decimal.NewFromFloat(account.Cash)
	l.realized = decimal.NewFromFloat(account.RealizedPnL)

	switch outcome {
	case types.ReconcileFlat:
		l.state = types.PositionFlat
		l.position = types.PairPosition{}

	case types.ReconcileLongPair, types.ReconcileShortPair:
		state, _ := outcome.PositionState()

		entrySpread, priceA, priceB, err := l.liveEntry(ctx, exchange)
		if err != nil {
			return outcome, err
		}

		l.state = state
		l.position = types.PairPosition{
			State:       state,
			Volume:      absFloat(qtyA),
			EntrySpread: entrySpread,
			EntryPriceA: priceA,
			EntryPriceB: priceB,
			OpenedAt:    time.Now(),
		}

		l.log.Info("Adopted existing pair position",
			zap.String("state", string(state)),
			zap.Float64("volume", l.position.Volume),
			zap.Float64("synthetic_entry_spread", entrySpread),
		)

	case types.ReconcileUnbalanced:
		action, err := decide(qtyA, qtyB)
		if err != nil {
			return outcome, errors.Wrap(errors.ErrCodeUnbalancedPosition, "unbalanced decision failed", err)
		}

		if action == UnbalancedAbort {
			return outcome, errors.Newf(errors.ErrCodeReconcileAborted,
				"unbalanced holdings %s=%f %s=%f, refusing to start",
				l.pair.SymbolA, qtyA, l.pair.SymbolB, qtyB)
		}

		l.state = types.PositionFlat
		l.position = types.PairPosition{}
		l.frozen = true

		l.log.Warn("Starting frozen over unbalanced holdings",
			zap.Float64("qty_a", qtyA),
			zap.Float64("qty_b", qtyB),
		)
	}

	return outcome, nil
}

// liveEntry derives a synthetic entry from the current quotes so an adopted
// position reports a meaningful unrealized spread move.
func (l *Ledger) liveEntry(ctx context.Context, exchange market.Exchange) (float64, float64, float64, error) {
	quoteA, err := exchange.GetQuote(ctx, l.pair.SymbolA)
	if err != nil {
		return 0, 0, 0, errors.Wrapf(errors.ErrCodeProviderUnavailable, err,
			"cannot quote %s for synthetic entry", l.pair.SymbolA)
	}

	quoteB, err := exchange.GetQuote(ctx, l.pair.SymbolB)
	if err != nil {
		return 0, 0, 0, errors.Wrapf(errors.ErrCodeProviderUnavailable, err,
			"cannot quote %s for synthetic entry", l.pair.SymbolB)
	}

	midA, okA := quoteA.Mid()
	midB, okB := quoteB.Mid()

	if !okA || !okB || midB == 0 {
		return 0, 0, 0, errors.New(errors.ErrCodeNoQuote,
			"no two-sided quotes available for synthetic entry")
	}

	return midA / midB, midA, midB, nil
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}

	return v
}
