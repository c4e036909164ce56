package market

import (
	"context"
	"time"

	polygon "github.com/polygon-io/client-go/rest"
	"github.com/polygon-io/client-go/rest/models"

	"github.com/meanrev-lab/pairtrader/internal/types"
	"github.com/meanrev-lab/pairtrader/pkg/errors"
)

// PolygonQuoteProvider implements QuoteProvider using the Polygon last-quote
// API. Polygon carries no order routing, so this provider is quote-only;
// wrap it in an ObserveExchange for dry-run observation.
type PolygonQuoteProvider struct {
	client *polygon.Client
}

// NewPolygonQuoteProvider creates a Polygon-backed quote provider.
func NewPolygonQuoteProvider(apiKey string) *PolygonQuoteProvider {
	return &PolygonQuoteProvider{client: polygon.New(apiKey)}
}

// GetQuote implements QuoteProvider.
func (p *PolygonQuoteProvider) GetQuote(ctx context.Context, symbol string) (types.Quote, error) {
	resp, err := p.client.GetLastQuote(ctx, &models.GetLastQuoteParams{Ticker: symbol})
	if err != nil {
		return types.Quote{}, errors.Wrap(errors.ErrCodeQuoteFetchFailed, "failed to fetch last quote", err)
	}

	last := resp.Results

	// Polygon reports zero for a side with no quote.
	return types.NewQuoteWithEmptySides(
		symbol,
		time.Now(),
		last.BidPrice,
		last.BidSize,
		last.AskPrice,
		last.AskSize,
	), nil
}

// Verify PolygonQuoteProvider implements the QuoteProvider interface.
var _ QuoteProvider = (*PolygonQuoteProvider)(nil)
