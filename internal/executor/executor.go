// Package executor submits both legs of a validated trade intent and
// reconciles the pair of fill reports into a single outcome.
package executor

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/meanrev-lab/pairtrader/internal/logger"
	"github.com/meanrev-lab/pairtrader/internal/market"
	"github.com/meanrev-lab/pairtrader/internal/types"
	"github.com/meanrev-lab/pairtrader/pkg/errors"
)

// PairedOrderExecutor submits the two legs of a TradeIntent concurrently so
// the spread captured at validation time decays as little as possible.
type PairedOrderExecutor struct {
	exchange market.Exchange
	log      *logger.Logger
}

// New creates a paired order executor over an exchange.
func New(exchange market.Exchange, log *logger.Logger) *PairedOrderExecutor {
	return &PairedOrderExecutor{exchange: exchange, log: log}
}

// Execute submits both legs and classifies the combined result. A leg that
// finds no counter-liquidity is an unfilled leg, not an error; a transport
// failure on one leg still lets the other leg's report be reconciled into
// the outcome, and only a transport failure with no surviving fill surfaces
// as an error.
func (e *PairedOrderExecutor) Execute(ctx context.Context, intent types.TradeIntent) (types.ExecutionOutcome, error) {
	var (
		wg           sync.WaitGroup
		fillA, fillB types.LegFill
		errA, errB   error
	)

	wg.Add(2)

	go func() {
		defer wg.Done()
		fillA, errA = e.submitLeg(ctx, intent.LegA)
	}()

	go func() {
		defer wg.Done()
		fillB, errB = e.submitLeg(ctx, intent.LegB)
	}()

	wg.Wait()

	// A transport failure on one leg must not discard the other leg's fill:
	// the unreachable leg becomes an unfilled report and the surviving fill
	// flows into a partial outcome for the partial-fill policy to resolve.
	// Fatal is reserved for the case where nothing filled at all.
	if errA != nil {
		fillA = unreachableLeg(intent.LegA, errA)
	}

	if errB != nil {
		fillB = unreachableLeg(intent.LegB, errB)
	}

	if !fillA.Filled && !fillB.Filled {
		if unavailable := firstUnavailable(errA, errB); unavailable != nil {
			return types.ExecutionOutcome{}, errors.Wrap(errors.ErrCodeProviderUnavailable,
				"exchange unreachable during paired submission", unavailable)
		}
	}

	outcome := types.ExecutionOutcome{
		Status:     types.ClassifyOutcome(fillA, fillB),
		Intent:     intent,
		LegA:       fillA,
		LegB:       fillB,
		ExecutedAt: time.Now(),
	}

	e.log.Info("Paired order executed",
		zap.String("status", string(outcome.Status)),
		zap.String("signal", string(intent.Signal)),
		zap.Bool("leg_a_filled", fillA.Filled),
		zap.Bool("leg_b_filled", fillB.Filled),
	)

	return outcome, nil
}

// submitLeg submits one leg and normalizes a non-transport failure into an
// unfilled fill report carrying the error text.
func (e *PairedOrderExecutor) submitLeg(ctx context.Context, order types.LegOrder) (types.LegFill, error) {
	fill, err := e.exchange.SubmitOrder(ctx, order)
	if err != nil {
		if errors.HasCode(err, errors.ErrCodeProviderUnavailable) {
			return types.LegFill{}, err
		}

		e.log.Warn("Leg submission failed",
			zap.String("symbol", order.Symbol),
			zap.String("side", string(order.Side)),
			zap.Error(err),
		)

		return types.LegFill{
			Symbol:     order.Symbol,
			Side:       order.Side,
			Filled:     false,
			FillPrice:  0,
			FillVolume: 0,
			Err:        err.Error(),
		}, nil
	}

	return fill, nil
}

// firstUnavailable returns the first error that marks the exchange transport
// as down. Any other leg error has already been folded into its fill report.
func firstUnavailable(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}

	return nil
}

// unreachableLeg folds a transport failure into an unfilled fill report so
// the outcome classification still sees both legs.
func unreachableLeg(order types.LegOrder, err error) types.LegFill {
	return types.LegFill{
		Symbol:     order.Symbol,
		Side:       order.Side,
		Filled:     false,
		FillPrice:  0,
		FillVolume: 0,
		Err:        err.Error(),
	}
}

// Compensate unwinds the filled leg of a partial outcome by submitting the
// opposite order at the current book, restoring a flat book at market cost.
func (e *PairedOrderExecutor) Compensate(ctx context.Context, outcome types.ExecutionOutcome) (types.LegFill, error) {
	filled, ok := outcome.FilledLeg()
	if !ok {
		return types.LegFill{}, errors.New(errors.ErrCodeInvalidParameter,
			"compensation requires a partial outcome")
	}

	quote, err := e.exchange.GetQuote(ctx, filled.Symbol)
	if err != nil {
		return types.LegFill{}, errors.Wrapf(errors.ErrCodeCompensateFailed, err,
			"cannot quote %s for compensation", filled.Symbol)
	}

	side := filled.Side.Opposite()

	var price float64

	if side == types.SideSell && quote.Bid.IsSome() {
		price = quote.Bid.Unwrap().Price
	}

	if side == types.SideBuy && quote.Ask.IsSome() {
		price = quote.Ask.Unwrap().Price
	}

	if price <= 0 {
		return types.LegFill{}, errors.Newf(errors.ErrCodeCompensateFailed,
			"no executable %s price for %s", side, filled.Symbol)
	}

	order := types.LegOrder{
		ID:     uuid.NewString(),
		Symbol: filled.Symbol,
		Side:   side,
		Kind:   types.OrderKindImmediate,
		Price:  price,
		Volume: filled.FillVolume,
	}

	fill, err := e.exchange.SubmitOrder(ctx, order)
	if err != nil {
		return types.LegFill{}, errors.Wrapf(errors.ErrCodeCompensateFailed, err,
			"compensating order for %s failed", filled.Symbol)
	}

	if !fill.Filled {
		return fill, errors.Newf(errors.ErrCodeCompensateFailed,
			"compensating order for %s did not fill", filled.Symbol)
	}

	e.log.Info("Partial fill compensated",
		zap.String("symbol", fill.Symbol),
		zap.String("side", string(fill.Side)),
		zap.Float64("volume", fill.FillVolume),
		zap.Float64("price", fill.FillPrice),
	)

	return fill, nil
}
