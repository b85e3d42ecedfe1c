package kalshi

import (
	"encoding/json"

	"github.com/alanyoungcy/crossbot/internal/domain"
)

// --------------------------------------------------------------------------
// Kalshi API DTOs
// --------------------------------------------------------------------------

// Market represents a market as returned by the Kalshi REST API. Prices and
// dollar figures arrive in cents.
type Market struct {
	Ticker         string `json:"ticker"`
	EventTicker    string `json:"event_ticker"`
	Title          string `json:"title"`
	Subtitle       string `json:"subtitle"`
	Status         string `json:"status"` // "active", "closed", "settled", "finalized"
	YesBid         int64  `json:"yes_bid"`
	YesAsk         int64  `json:"yes_ask"`
	NoBid          int64  `json:"no_bid"`
	NoAsk          int64  `json:"no_ask"`
	LastPrice      int64  `json:"last_price"`
	Volume24H      int64  `json:"volume_24h"`
	OpenInterest   int64  `json:"open_interest"`
	Liquidity      int64  `json:"liquidity"` // resting order value, cents
	Category       string `json:"category"`
	Result         string `json:"result"` // "yes", "no", "" while unsettled
	OpenTime       string `json:"open_time"`
	CloseTime      string `json:"close_time"`
	ExpirationTime string `json:"expiration_time"`
}

// MarketsResponse is the paginated market list payload.
type MarketsResponse struct {
	Markets []Market `json:"markets"`
	Cursor  string   `json:"cursor"`
}

// MarketResponse wraps a single market payload.
type MarketResponse struct {
	Market Market `json:"market"`
}

// Order represents an order submitted to the Kalshi exchange.
type Order struct {
	Ticker        string `json:"ticker"`
	ClientOrderID string `json:"client_order_id"`
	Action        string `json:"action"`              // "buy" or "sell"
	Side          string `json:"side"`                // "yes" or "no"
	Type          string `json:"type"`                // "market" or "limit"
	Count         int64  `json:"count"`               // number of contracts
	YesPrice      *int64 `json:"yes_price,omitempty"` // limit price in cents (1-99)
	NoPrice       *int64 `json:"no_price,omitempty"`  // limit price in cents (1-99)
	BuyMaxCost    *int64 `json:"buy_max_cost,omitempty"`
}

// OrderResponse represents the API response after placing an order.
type OrderResponse struct {
	Order struct {
		OrderID        string `json:"order_id"`
		Ticker         string `json:"ticker"`
		Status         string `json:"status"` // "resting", "canceled", "executed", "pending"
		Action         string `json:"action"`
		Side           string `json:"side"`
		YesPrice       int64  `json:"yes_price"`
		NoPrice        int64  `json:"no_price"`
		RemainingCount int64  `json:"remaining_count"`
		TakerFillCount int64  `json:"taker_fill_count"`
		PlacedTime     string `json:"placed_time"`
	} `json:"order"`
}

// BalanceResponse is the portfolio balance payload, in cents.
type BalanceResponse struct {
	Balance int64 `json:"balance"`
}

// ErrorResponse represents a Kalshi API error response.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// --------------------------------------------------------------------------
// Kalshi WebSocket DTOs
// --------------------------------------------------------------------------

// WSMessage is the envelope for Kalshi WebSocket messages.
type WSMessage struct {
	Type string          `json:"type"` // "ticker", "subscribed", "error", ...
	SID  int64           `json:"sid"`
	Msg  json.RawMessage `json:"msg"`
}

// WSTicker is the ticker-channel payload carrying a market's current prices,
// in cents.
type WSTicker struct {
	MarketTicker string `json:"market_ticker"`
	Price        int64  `json:"price"`
	YesBid       int64  `json:"yes_bid"`
	YesAsk       int64  `json:"yes_ask"`
	Volume       int64  `json:"volume"`
	OpenInterest int64  `json:"open_interest"`
	Ts           int64  `json:"ts"`
}

// Quote converts a ticker update to a buy-side quote in dollars. The
// ticker channel carries no NO ask, so the complement of the YES bid
// stands in for it; open interest stands in for resting liquidity since
// each contract pays out at most $1.
func (t WSTicker) Quote() domain.MarketQuote {
	return domain.MarketQuote{
		YesPrice:  float64(t.YesAsk) / 100.0,
		NoPrice:   float64(100-t.YesBid) / 100.0,
		Liquidity: float64(t.OpenInterest),
	}
}

// WSSubscribeCmd is the command sent to subscribe to Kalshi WebSocket
// channels.
type WSSubscribeCmd struct {
	ID     int64             `json:"id"`
	Cmd    string            `json:"cmd"` // "subscribe" or "unsubscribe"
	Params WSSubscribeParams `json:"params"`
}

// WSSubscribeParams defines the subscription parameters.
type WSSubscribeParams struct {
	Channels []string `json:"channels"`       // e.g. ["ticker"]
	Tickers  []string `json:"market_tickers"` // markets to stream
}
