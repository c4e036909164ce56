package market

import (
	"context"
	"sync"
	"time"

	"github.com/meanrev-lab/pairtrader/internal/types"
	"github.com/meanrev-lab/pairtrader/pkg/errors"
)

// PaperExchange implements Exchange against an in-memory book. It provides
// instant immediate-order matching against the configured top of book, with
// injectable per-symbol failures for exercising the partial-fill paths.
type PaperExchange struct {
	mu sync.RWMutex

	books     map[string]types.Quote
	positions map[string]float64
	cash      float64
	pnl       float64
	submitted []types.LegOrder
	cancelled []string

	// FailSubmit makes SubmitOrder return a transport error for a symbol.
	FailSubmit map[string]bool
	// RefuseFill makes immediate orders for a symbol report no fill.
	RefuseFill map[string]bool
	// Offline makes every call fail, simulating transport unavailability.
	Offline bool
}

// NewPaperExchange creates a paper exchange with the given starting cash.
func NewPaperExchange(cash float64) *PaperExchange {
	return &PaperExchange{
		mu:         sync.RWMutex{},
		books:      make(map[string]types.Quote),
		positions:  make(map[string]float64),
		cash:       cash,
		pnl:        0,
		submitted:  nil,
		cancelled:  nil,
		FailSubmit: make(map[string]bool),
		RefuseFill: make(map[string]bool),
		Offline:    false,
	}
}

// SetBook replaces the top of book for a symbol.
func (p *PaperExchange) SetBook(quote types.Quote) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.books[quote.Symbol] = quote
}

// SetPosition seeds an externally held signed position. Used to exercise
// startup reconciliation.
func (p *PaperExchange) SetPosition(symbol string, qty float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.positions[symbol] = qty
}

// SubmittedOrders returns a copy of all orders received so far.
func (p *PaperExchange) SubmittedOrders() []types.LegOrder {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]types.LegOrder, len(p.submitted))
	copy(out, p.submitted)

	return out
}

// CancelledSymbols returns the symbols CancelAllResting was called for.
func (p *PaperExchange) CancelledSymbols() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]string, len(p.cancelled))
	copy(out, p.cancelled)

	return out
}

// GetQuote implements Exchange.
func (p *PaperExchange) GetQuote(_ context.Context, symbol string) (types.Quote, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.Offline {
		return types.Quote{}, errors.New(errors.ErrCodeProviderUnavailable, "paper exchange offline")
	}

	quote, ok := p.books[symbol]
	if !ok {
		// An unknown symbol has an empty book, not an error.
		return types.Quote{Symbol: symbol, Time: time.Now()}, nil
	}

	return quote, nil
}

// SubmitOrder implements Exchange. Immediate orders fill fully when the
// opposing side has enough volume at a crossing price, otherwise they report
// no fill. Resting orders are accepted without fills.
func (p *PaperExchange) SubmitOrder(_ context.Context, order types.LegOrder) (types.LegFill, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.Offline {
		return types.LegFill{}, errors.New(errors.ErrCodeProviderUnavailable, "paper exchange offline")
	}

	if p.FailSubmit[order.Symbol] {
		return types.LegFill{}, errors.Newf(errors.ErrCodeOrderFailed, "injected submit failure for %s", order.Symbol)
	}

	p.submitted = append(p.submitted, order)

	fill := types.LegFill{
		Symbol:     order.Symbol,
		Side:       order.Side,
		Filled:     false,
		FillPrice:  0,
		FillVolume: 0,
		Err:        "",
	}

	if order.Kind != types.OrderKindImmediate || p.RefuseFill[order.Symbol] {
		return fill, nil
	}

	book, ok := p.books[order.Symbol]
	if !ok {
		return fill, nil
	}

	var level types.PriceLevel

	switch order.Side {
	case types.SideBuy:
		if book.Ask.IsNone() {
			return fill, nil
		}

		level = book.Ask.Unwrap()
		if level.Price > order.Price {
			return fill, nil
		}
	case types.SideSell:
		if book.Bid.IsNone() {
			return fill, nil
		}

		level = book.Bid.Unwrap()
		if level.Price < order.Price {
			return fill, nil
		}
	}

	if level.Volume < order.Volume {
		return fill, nil
	}

	fill.Filled = true
	fill.FillPrice = level.Price
	fill.FillVolume = order.Volume

	if order.Side == types.SideBuy {
		p.positions[order.Symbol] += order.Volume
		p.cash -= level.Price * order.Volume
	} else {
		p.positions[order.Symbol] -= order.Volume
		p.cash += level.Price * order.Volume
	}

	return fill, nil
}

// CancelAllResting implements Exchange.
func (p *PaperExchange) CancelAllResting(_ context.Context, symbol string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.Offline {
		return errors.New(errors.ErrCodeProviderUnavailable, "paper exchange offline")
	}

	p.cancelled = append(p.cancelled, symbol)

	return nil
}

// GetPositions implements Exchange.
func (p *PaperExchange) GetPositions(_ context.Context) (map[string]float64, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.Offline {
		return nil, errors.New(errors.ErrCodeProviderUnavailable, "paper exchange offline")
	}

	out := make(map[string]float64, len(p.positions))
	for symbol, qty := range p.positions {
		out[symbol] = qty
	}

	return out, nil
}

// GetAccount implements Exchange.
func (p *PaperExchange) GetAccount(_ context.Context) (Account, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.Offline {
		return Account{}, errors.New(errors.ErrCodeProviderUnavailable, "paper exchange offline")
	}

	return Account{Cash: p.cash, RealizedPnL: p.pnl}, nil
}

// Verify PaperExchange implements the Exchange interface.
var _ Exchange = (*PaperExchange)(nil)
