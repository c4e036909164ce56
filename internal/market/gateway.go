package market

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/meanrev-lab/pairtrader/internal/types"
	"github.com/meanrev-lab/pairtrader/pkg/errors"
)

// Gateway method names understood by the exchange gateway protocol.
const (
	gatewayMethodQuote     = "quote"
	gatewayMethodOrder     = "order"
	gatewayMethodCancelAll = "cancel_all"
	gatewayMethodPositions = "positions"
	gatewayMethodAccount   = "account"
)

const gatewayRequestTimeout = 5 * time.Second

// gatewayRequest is a single JSON request frame.
type gatewayRequest struct {
	ID     int64           `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// gatewayResponse is a single JSON response frame.
type gatewayResponse struct {
	ID     int64           `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

type gatewayQuoteParams struct {
	Symbol string `json:"symbol"`
}

type gatewayQuoteResult struct {
	Symbol    string  `json:"symbol"`
	BidPrice  float64 `json:"bid_price"`
	BidVolume float64 `json:"bid_volume"`
	AskPrice  float64 `json:"ask_price"`
	AskVolume float64 `json:"ask_volume"`
}

type gatewayOrderParams struct {
	ID     string  `json:"id"`
	Symbol string  `json:"symbol"`
	Side   string  `json:"side"`
	Kind   string  `json:"kind"`
	Price  float64 `json:"price"`
	Volume float64 `json:"volume"`
}

type gatewayFillResult struct {
	Filled     bool    `json:"filled"`
	FillPrice  float64 `json:"fill_price"`
	FillVolume float64 `json:"fill_volume"`
}

type gatewayAccountResult struct {
	Cash        float64 `json:"cash"`
	RealizedPnL float64 `json:"realized_pnl"`
}

// GatewayExchange implements Exchange over a websocket connection to an
// exchange gateway speaking a JSON request/response protocol. Requests are
// serialized over one connection; the engine has a single logical thread of
// control, and the executor's two leg submissions are the only concurrent
// callers.
type GatewayExchange struct {
	mu     sync.Mutex
	conn   *websocket.Conn
	nextID int64
}

// DialGateway connects to an exchange gateway websocket endpoint.
func DialGateway(ctx context.Context, url string) (*GatewayExchange, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeProviderUnavailable, "failed to dial exchange gateway", err)
	}

	return &GatewayExchange{mu: sync.Mutex{}, conn: conn, nextID: 0}, nil
}

// Close closes the underlying connection.
func (g *GatewayExchange) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.conn.Close()
}

// call performs one serialized request/response round trip.
func (g *GatewayExchange) call(method string, params any, result any) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.nextID++

	var rawParams json.RawMessage

	if params != nil {
		encoded, err := json.Marshal(params)
		if err != nil {
			return errors.Wrap(errors.ErrCodeInvalidParameter, "failed to encode gateway params", err)
		}

		rawParams = encoded
	}

	req := gatewayRequest{ID: g.nextID, Method: method, Params: rawParams}

	deadline := time.Now().Add(gatewayRequestTimeout)
	_ = g.conn.SetWriteDeadline(deadline)

	if err := g.conn.WriteJSON(req); err != nil {
		return errors.Wrap(errors.ErrCodeProviderUnavailable, "failed to write gateway request", err)
	}

	_ = g.conn.SetReadDeadline(deadline)

	var resp gatewayResponse
	if err := g.conn.ReadJSON(&resp); err != nil {
		return errors.Wrap(errors.ErrCodeProviderUnavailable, "failed to read gateway response", err)
	}

	if resp.Error != "" {
		return errors.Newf(errors.ErrCodeOrderRejected, "gateway error: %s", resp.Error)
	}

	if result != nil && resp.Result != nil {
		if err := json.Unmarshal(resp.Result, result); err != nil {
			return errors.Wrap(errors.ErrCodeProviderUnavailable, "failed to decode gateway result", err)
		}
	}

	return nil
}

// GetQuote implements Exchange.
func (g *GatewayExchange) GetQuote(_ context.Context, symbol string) (types.Quote, error) {
	var result gatewayQuoteResult
	if err := g.call(gatewayMethodQuote, gatewayQuoteParams{Symbol: symbol}, &result); err != nil {
		return types.Quote{}, err
	}

	return types.NewQuoteWithEmptySides(
		symbol, time.Now(),
		result.BidPrice, result.BidVolume,
		result.AskPrice, result.AskVolume,
	), nil
}

// SubmitOrder implements Exchange.
func (g *GatewayExchange) SubmitOrder(_ context.Context, order types.LegOrder) (types.LegFill, error) {
	params := gatewayOrderParams{
		ID:     order.ID,
		Symbol: order.Symbol,
		Side:   string(order.Side),
		Kind:   string(order.Kind),
		Price:  order.Price,
		Volume: order.Volume,
	}

	var result gatewayFillResult
	if err := g.call(gatewayMethodOrder, params, &result); err != nil {
		return types.LegFill{}, err
	}

	return types.LegFill{
		Symbol:     order.Symbol,
		Side:       order.Side,
		Filled:     result.Filled,
		FillPrice:  result.FillPrice,
		FillVolume: result.FillVolume,
		Err:        "",
	}, nil
}

// CancelAllResting implements Exchange.
func (g *GatewayExchange) CancelAllResting(_ context.Context, symbol string) error {
	return g.call(gatewayMethodCancelAll, gatewayQuoteParams{Symbol: symbol}, nil)
}

// GetPositions implements Exchange.
func (g *GatewayExchange) GetPositions(_ context.Context) (map[string]float64, error) {
	positions := make(map[string]float64)
	if err := g.call(gatewayMethodPositions, nil, &positions); err != nil {
		return nil, err
	}

	return positions, nil
}

// GetAccount implements Exchange.
func (g *GatewayExchange) GetAccount(_ context.Context) (Account, error) {
	var result gatewayAccountResult
	if err := g.call(gatewayMethodAccount, nil, &result); err != nil {
		return Account{}, err
	}

	return Account{Cash: result.Cash, RealizedPnL: result.RealizedPnL}, nil
}

// Verify GatewayExchange implements the Exchange interface.
var _ Exchange = (*GatewayExchange)(nil)
