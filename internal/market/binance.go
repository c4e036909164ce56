package market

import (
	"context"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2"

	"github.com/meanrev-lab/pairtrader/internal/types"
	"github.com/meanrev-lab/pairtrader/pkg/errors"
)

const (
	// binanceDecimalPrecision is a default decimal precision used when
	// formatting prices and quantities. 8 decimals allows satoshi-level
	// precision for BTC-like assets.
	binanceDecimalPrecision = 8
)

// Service interfaces for mocking the Binance API

// BookTickerService interface for fetching top of book.
type BookTickerService interface {
	Symbol(symbol string) BookTickerService
	Do(ctx context.Context) ([]*binance.BookTicker, error)
}

// CreateOrderService interface for creating orders.
type CreateOrderService interface {
	Symbol(symbol string) CreateOrderService
	Side(side binance.SideType) CreateOrderService
	Type(orderType binance.OrderType) CreateOrderService
	TimeInForce(tif binance.TimeInForceType) CreateOrderService
	Quantity(quantity string) CreateOrderService
	Price(price string) CreateOrderService
	Do(ctx context.Context) (*binance.CreateOrderResponse, error)
}

// CancelOpenOrdersService interface for canceling all open orders for a symbol.
type CancelOpenOrdersService interface {
	Symbol(symbol string) CancelOpenOrdersService
	Do(ctx context.Context) error
}

// GetAccountService interface for getting account info.
type GetAccountService interface {
	Do(ctx context.Context) (*binance.Account, error)
}

// BinanceClient interface abstracts the Binance client for testing.
type BinanceClient interface {
	NewBookTickerService() BookTickerService
	NewCreateOrderService() CreateOrderService
	NewCancelOpenOrdersService() CancelOpenOrdersService
	NewGetAccountService() GetAccountService
}

// realBinanceClient wraps the actual binance.Client.
type realBinanceClient struct {
	client *binance.Client
}

func (r *realBinanceClient) NewBookTickerService() BookTickerService {
	return &realBookTickerService{service: r.client.NewListBookTickersService()}
}

func (r *realBinanceClient) NewCreateOrderService() CreateOrderService {
	return &realCreateOrderService{service: r.client.NewCreateOrderService()}
}

func (r *realBinanceClient) NewCancelOpenOrdersService() CancelOpenOrdersService {
	return &realCancelOpenOrdersService{service: r.client.NewCancelOpenOrdersService()}
}

func (r *realBinanceClient) NewGetAccountService() GetAccountService {
	return &realGetAccountService{service: r.client.NewGetAccountService()}
}

// Real service wrappers

type realBookTickerService struct {
	service *binance.ListBookTickersService
}

func (s *realBookTickerService) Symbol(symbol string) BookTickerService {
	s.service = s.service.Symbol(symbol)

	return s
}

func (s *realBookTickerService) Do(ctx context.Context) ([]*binance.BookTicker, error) {
	return s.service.Do(ctx)
}

type realCreateOrderService struct {
	service *binance.CreateOrderService
}

func (s *realCreateOrderService) Symbol(symbol string) CreateOrderService {
	s.service = s.service.Symbol(symbol)

	return s
}

func (s *realCreateOrderService) Side(side binance.SideType) CreateOrderService {
	s.service = s.service.Side(side)

	return s
}

func (s *realCreateOrderService) Type(orderType binance.OrderType) CreateOrderService {
	s.service = s.service.Type(orderType)

	return s
}

func (s *realCreateOrderService) TimeInForce(tif binance.TimeInForceType) CreateOrderService {
	s.service = s.service.TimeInForce(tif)

	return s
}

func (s *realCreateOrderService) Quantity(quantity string) CreateOrderService {
	s.service = s.service.Quantity(quantity)

	return s
}

func (s *realCreateOrderService) Price(price string) CreateOrderService {
	s.service = s.service.Price(price)

	return s
}

func (s *realCreateOrderService) Do(ctx context.Context) (*binance.CreateOrderResponse, error) {
	return s.service.Do(ctx)
}

type realCancelOpenOrdersService struct {
	service *binance.CancelOpenOrdersService
}

func (s *realCancelOpenOrdersService) Symbol(symbol string) CancelOpenOrdersService {
	s.service = s.service.Symbol(symbol)

	return s
}

func (s *realCancelOpenOrdersService) Do(ctx context.Context) error {
	_, err := s.service.Do(ctx)

	return err
}

type realGetAccountService struct {
	service *binance.GetAccountService
}

func (s *realGetAccountService) Do(ctx context.Context) (*binance.Account, error) {
	return s.service.Do(ctx)
}

// BinanceConfig holds the credentials and asset mapping for the Binance adapter.
type BinanceConfig struct {
	ApiKey    string `json:"api_key" yaml:"api_key"`
	SecretKey string `json:"secret_key" yaml:"secret_key"`
	// BaseURL overrides the endpoint. Takes precedence over UseTestnet.
	BaseURL    string `json:"base_url" yaml:"base_url"`
	UseTestnet bool   `json:"use_testnet" yaml:"use_testnet"`
	// QuoteAsset is the asset treated as cash (e.g. "USDT").
	QuoteAsset string `json:"quote_asset" yaml:"quote_asset"`
	// BaseAssets maps a traded symbol to its base asset (e.g. "BTCUSDT" -> "BTC").
	BaseAssets map[string]string `json:"base_assets" yaml:"base_assets"`
}

// BinanceExchange implements Exchange against the Binance spot API. It is
// stateless; all data is fetched from the API on demand.
type BinanceExchange struct {
	client     BinanceClient
	quoteAsset string
	baseAssets map[string]string
}

// NewBinanceExchange creates a Binance-backed exchange.
func NewBinanceExchange(config BinanceConfig) (*BinanceExchange, error) {
	if config.UseTestnet {
		binance.UseTestnet = true
	}

	client := binance.NewClient(config.ApiKey, config.SecretKey)
	if config.BaseURL != "" {
		client.BaseURL = config.BaseURL
	}

	return &BinanceExchange{
		client:     &realBinanceClient{client: client},
		quoteAsset: config.QuoteAsset,
		baseAssets: config.BaseAssets,
	}, nil
}

// newBinanceExchangeWithClient creates a Binance exchange with a custom
// client. Used for testing with mock clients.
func newBinanceExchangeWithClient(client BinanceClient, quoteAsset string, baseAssets map[string]string) *BinanceExchange {
	return &BinanceExchange{
		client:     client,
		quoteAsset: quoteAsset,
		baseAssets: baseAssets,
	}
}

// GetQuote implements Exchange.
func (b *BinanceExchange) GetQuote(ctx context.Context, symbol string) (types.Quote, error) {
	tickers, err := b.client.NewBookTickerService().Symbol(symbol).Do(ctx)
	if err != nil {
		return types.Quote{}, errors.Wrap(errors.ErrCodeQuoteFetchFailed, "failed to fetch book ticker", err)
	}

	quote := types.Quote{Symbol: symbol, Time: time.Now()}

	if len(tickers) == 0 {
		return quote, nil
	}

	ticker := tickers[0]

	bidPrice, err1 := strconv.ParseFloat(ticker.BidPrice, 64)
	bidQty, err2 := strconv.ParseFloat(ticker.BidQuantity, 64)
	askPrice, err3 := strconv.ParseFloat(ticker.AskPrice, 64)
	askQty, err4 := strconv.ParseFloat(ticker.AskQuantity, 64)

	if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
		return types.Quote{}, errors.Newf(errors.ErrCodeQuoteFetchFailed,
			"unparseable book ticker for %s", symbol)
	}

	// Binance reports a zero price for an empty book side.
	return types.NewQuoteWithEmptySides(symbol, time.Now(), bidPrice, bidQty, askPrice, askQty), nil
}

// SubmitOrder implements Exchange. Immediate orders map to IOC limit orders,
// resting orders to GTC.
func (b *BinanceExchange) SubmitOrder(ctx context.Context, order types.LegOrder) (types.LegFill, error) {
	var side binance.SideType

	switch order.Side {
	case types.SideBuy:
		side = binance.SideTypeBuy
	case types.SideSell:
		side = binance.SideTypeSell
	default:
		return types.LegFill{}, errors.Newf(errors.ErrCodeInvalidParameter, "unsupported order side: %s", order.Side)
	}

	tif := binance.TimeInForceTypeGTC
	if order.Kind == types.OrderKindImmediate {
		tif = binance.TimeInForceTypeIOC
	}

	resp, err := b.client.NewCreateOrderService().
		Symbol(order.Symbol).
		Side(side).
		Type(binance.OrderTypeLimit).
		TimeInForce(tif).
		Quantity(strconv.FormatFloat(order.Volume, 'f', binanceDecimalPrecision, 64)).
		Price(strconv.FormatFloat(order.Price, 'f', binanceDecimalPrecision, 64)).
		Do(ctx)
	if err != nil {
		return types.LegFill{}, errors.Wrap(errors.ErrCodeOrderFailed, "failed to submit order", err)
	}

	executedQty, err := strconv.ParseFloat(resp.ExecutedQuantity, 64)
	if err != nil {
		return types.LegFill{}, errors.Wrap(errors.ErrCodeOrderFailed, "unparseable executed quantity", err)
	}

	fill := types.LegFill{
		Symbol:     order.Symbol,
		Side:       order.Side,
		Filled:     executedQty >= order.Volume,
		FillPrice:  order.Price,
		FillVolume: executedQty,
		Err:        "",
	}

	// Use the volume-weighted fill price when Binance reports fills.
	if len(resp.Fills) > 0 {
		var notional, qty float64

		for _, f := range resp.Fills {
			price, perr := strconv.ParseFloat(f.Price, 64)
			volume, verr := strconv.ParseFloat(f.Quantity, 64)

			if perr != nil || verr != nil {
				continue
			}

			notional += price * volume
			qty += volume
		}

		if qty > 0 {
			fill.FillPrice = notional / qty
		}
	}

	if executedQty == 0 {
		fill.FillPrice = 0
	}

	return fill, nil
}

// CancelAllResting implements Exchange.
func (b *BinanceExchange) CancelAllResting(ctx context.Context, symbol string) error {
	if err := b.client.NewCancelOpenOrdersService().Symbol(symbol).Do(ctx); err != nil {
		return errors.Wrap(errors.ErrCodeCancelFailed, "failed to cancel open orders", err)
	}

	return nil
}

// GetPositions implements Exchange. Spot balances carry no sign; the reported
// quantity is the total base-asset balance per configured symbol.
func (b *BinanceExchange) GetPositions(ctx context.Context) (map[string]float64, error) {
	account, err := b.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeProviderUnavailable, "failed to fetch account", err)
	}

	balances := make(map[string]float64, len(account.Balances))

	for _, balance := range account.Balances {
		free, err1 := strconv.ParseFloat(balance.Free, 64)
		locked, err2 := strconv.ParseFloat(balance.Locked, 64)

		if err1 != nil || err2 != nil {
			continue
		}

		balances[balance.Asset] = free + locked
	}

	positions := make(map[string]float64, len(b.baseAssets))
	for symbol, asset := range b.baseAssets {
		positions[symbol] = balances[asset]
	}

	return positions, nil
}

// GetAccount implements Exchange. Binance spot does not report realized P&L;
// it is always zero here and tracked engine-side by the ledger.
func (b *BinanceExchange) GetAccount(ctx context.Context) (Account, error) {
	account, err := b.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return Account{}, errors.Wrap(errors.ErrCodeProviderUnavailable, "failed to fetch account", err)
	}

	for _, balance := range account.Balances {
		if balance.Asset != b.quoteAsset {
			continue
		}

		free, err := strconv.ParseFloat(balance.Free, 64)
		if err != nil {
			return Account{}, errors.Wrap(errors.ErrCodeProviderUnavailable, "unparseable balance", err)
		}

		return Account{Cash: free, RealizedPnL: 0}, nil
	}

	return Account{Cash: 0, RealizedPnL: 0}, nil
}

// Verify BinanceExchange implements the Exchange interface.
var _ Exchange = (*BinanceExchange)(nil)
