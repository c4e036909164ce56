package types

import (
	"time"

	"github.com/moznion/go-optional"
)

// PriceLevel is the best price and the volume available at that price on one
// side of an order book.
type PriceLevel struct {
	Price  float64 `yaml:"price" json:"price"`
	Volume float64 `yaml:"volume" json:"volume"`
}

// Quote is the top of book for a single instrument at a point in time.
// Either side may be absent when that side of the book is empty.
type Quote struct {
	Symbol string    `yaml:"symbol" json:"symbol"`
	Time   time.Time `yaml:"time" json:"time"`
	// Bid is the best bid level. None when the bid side of the book is empty.
	Bid optional.Option[PriceLevel] `yaml:"bid" json:"bid"`
	// Ask is the best ask level. None when the ask side of the book is empty.
	Ask optional.Option[PriceLevel] `yaml:"ask" json:"ask"`
}

// NewQuote creates a quote with both sides present.
func NewQuote(symbol string, t time.Time, bidPrice, bidVolume, askPrice, askVolume float64) Quote {
	return Quote{
		Symbol: symbol,
		Time:   t,
		Bid:    optional.Some(PriceLevel{Price: bidPrice, Volume: bidVolume}),
		Ask:    optional.Some(PriceLevel{Price: askPrice, Volume: askVolume}),
	}
}

// NewQuoteWithEmptySides creates a quote where a zero price marks an empty
// book side.
func NewQuoteWithEmptySides(symbol string, t time.Time, bidPrice, bidVolume, askPrice, askVolume float64) Quote {
	quote := Quote{Symbol: symbol, Time: t}

	if bidPrice > 0 {
		quote.Bid = optional.Some(PriceLevel{Price: bidPrice, Volume: bidVolume})
	}

	if askPrice > 0 {
		quote.Ask = optional.Some(PriceLevel{Price: askPrice, Volume: askVolume})
	}

	return quote
}

// IsComplete reports whether both sides of the book are present.
func (q Quote) IsComplete() bool {
	return q.Bid.IsSome() && q.Ask.IsSome()
}

// Mid returns the midpoint price (bid+ask)/2. The second return value is false
// when either side of the book is empty.
func (q Quote) Mid() (float64, bool) {
	if !q.IsComplete() {
		return 0, false
	}

	return (q.Bid.Unwrap().Price + q.Ask.Unwrap().Price) / 2, true
}

// Width returns the bid-ask width. The second return value is false when
// either side of the book is empty.
func (q Quote) Width() (float64, bool) {
	if !q.IsComplete() {
		return 0, false
	}

	return q.Ask.Unwrap().Price - q.Bid.Unwrap().Price, true
}
