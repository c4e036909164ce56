// Package market defines the boundary to the exchange/transport layer and the
// adapters that implement it. The decision engine only ever talks to these
// interfaces; everything behind them is an external collaborator.
package market

import (
	"context"

	"github.com/meanrev-lab/pairtrader/internal/types"
	"github.com/meanrev-lab/pairtrader/pkg/errors"
)

// Account is the cash and realized P&L snapshot reported by the exchange.
type Account struct {
	Cash        float64 `yaml:"cash" json:"cash"`
	RealizedPnL float64 `yaml:"realized_pnl" json:"realized_pnl"`
}

// QuoteProvider supplies best bid/ask quotes on demand. A returned quote may
// have an empty bid or ask side; that is "no data", not an error.
type QuoteProvider interface {
	// GetQuote returns the current top of book for a symbol.
	GetQuote(ctx context.Context, symbol string) (types.Quote, error)
}

// Exchange is the full trading collaborator contract.
type Exchange interface {
	QuoteProvider
	// SubmitOrder submits a single leg order and returns its fill report.
	// An immediate order that finds no counter-liquidity reports an
	// unfilled leg, not an error; errors are transport failures.
	SubmitOrder(ctx context.Context, order types.LegOrder) (types.LegFill, error)
	// CancelAllResting cancels all resting orders for a symbol.
	CancelAllResting(ctx context.Context, symbol string) error
	// GetPositions returns signed quantities per instrument.
	GetPositions(ctx context.Context) (map[string]float64, error)
	// GetAccount returns the cash balance and realized P&L.
	GetAccount(ctx context.Context) (Account, error)
}

// ObserveExchange adapts a quote-only provider into an Exchange that refuses
// order flow. Used for dry-run observation against data-only providers.
type ObserveExchange struct {
	quotes QuoteProvider
}

// NewObserveExchange wraps a QuoteProvider into an order-incapable Exchange.
func NewObserveExchange(quotes QuoteProvider) *ObserveExchange {
	return &ObserveExchange{quotes: quotes}
}

// GetQuote implements Exchange.
func (o *ObserveExchange) GetQuote(ctx context.Context, symbol string) (types.Quote, error) {
	return o.quotes.GetQuote(ctx, symbol)
}

// SubmitOrder implements Exchange. Always fails: observation mode routes no orders.
func (o *ObserveExchange) SubmitOrder(_ context.Context, order types.LegOrder) (types.LegFill, error) {
	return types.LegFill{}, errors.Newf(errors.ErrCodeProviderNotOrderCapable,
		"observe mode cannot submit order for %s", order.Symbol)
}

// CancelAllResting implements Exchange.
func (o *ObserveExchange) CancelAllResting(_ context.Context, _ string) error {
	return nil
}

// GetPositions implements Exchange.
func (o *ObserveExchange) GetPositions(_ context.Context) (map[string]float64, error) {
	return map[string]float64{}, nil
}

// GetAccount implements Exchange.
func (o *ObserveExchange) GetAccount(_ context.Context) (Account, error) {
	return Account{Cash: 0, RealizedPnL: 0}, nil
}

// Verify ObserveExchange implements the Exchange interface.
var _ Exchange = (*ObserveExchange)(nil)
