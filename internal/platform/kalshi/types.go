package kalshi

import (
	"encoding/json"
	"time"
)

// Market is a market as returned by the Kalshi REST API. Prices are cents.
type Market struct {
	Ticker         string  `json:"ticker"`
	EventTicker    string  `json:"event_ticker"`
	SeriesTicker   string  `json:"series_ticker"`
	Title          string  `json:"title"`
	Subtitle       string  `json:"subtitle"`
	Status         string  `json:"status"` // "active", "closed", "settled"
	YesBid         float64 `json:"yes_bid"`
	YesAsk         float64 `json:"yes_ask"`
	NoBid          float64 `json:"no_bid"`
	NoAsk          float64 `json:"no_ask"`
	LastPrice      float64 `json:"last_price"`
	Volume         int64   `json:"volume"`
	Volume24H      int64   `json:"volume_24h"`
	OpenInterest   int64   `json:"open_interest"`
	Result         string  `json:"result"` // "yes", "no", "" while unsettled
	CanCloseEarly  bool    `json:"can_close_early"`
	OpenTime       string  `json:"open_time"`
	CloseTime      string  `json:"close_time"`
	RiskLimitCents int64   `json:"risk_limit_cents"`
}

// Orderbook holds both bid ladders for one market. Kalshi has no ask side;
// the implied YES offer is 100 minus the best NO bid.
type Orderbook struct {
	Ticker    string       `json:"ticker"`
	YesBids   []PriceLevel `json:"yes"`
	NoBids    []PriceLevel `json:"no"`
	Timestamp time.Time    `json:"-"`
}

// PriceLevel is one price+quantity rung of a bid ladder.
type PriceLevel struct {
	Price    int64 `json:"price"`    // cents, 1-99
	Quantity int64 `json:"quantity"` // contracts
}

// BestYesBid returns the highest YES bid, or 0 when the ladder is empty.
func (o Orderbook) BestYesBid() float64 { return bestBid(o.YesBids) }

// BestNoBid returns the highest NO bid, or 0 when the ladder is empty.
func (o Orderbook) BestNoBid() float64 { return bestBid(o.NoBids) }

func bestBid(levels []PriceLevel) float64 {
	best := int64(0)
	for _, l := range levels {
		if l.Price > best {
			best = l.Price
		}
	}
	return float64(best)
}

// Order is an order submission.
type Order struct {
	Ticker     string `json:"ticker"`
	Action     string `json:"action"` // "buy" or "sell"
	Side       string `json:"side"`   // "yes" or "no"
	Type       string `json:"type"`   // "market" or "limit"
	Count      int64  `json:"count"`
	YesPrice   *int64 `json:"yes_price,omitempty"` // limit price, cents
	NoPrice    *int64 `json:"no_price,omitempty"`
	ClientID   string `json:"client_order_id,omitempty"`
	Expiration *int64 `json:"expiration_ts,omitempty"`
	BuyMaxCost *int64 `json:"buy_max_cost,omitempty"`
}

// OrderResult is the exchange's view of an order after submission.
type OrderResult struct {
	OrderID        string `json:"order_id"`
	Ticker         string `json:"ticker"`
	Status         string `json:"status"` // "resting", "canceled", "executed", "pending"
	Action         string `json:"action"`
	Side           string `json:"side"`
	YesPrice       int64  `json:"yes_price"`
	NoPrice        int64  `json:"no_price"`
	RemainingCount int64  `json:"remaining_count"`
	PlacedTime     string `json:"placed_time"`
}

// APIError is the error payload Kalshi returns on non-2xx responses.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WSMessage is the envelope for WebSocket frames.
type WSMessage struct {
	Type string          `json:"type"` // "orderbook_snapshot", "orderbook_delta", "fill", ...
	Msg  json.RawMessage `json:"msg"`
	SID  int64           `json:"sid"`
}

// WSOrderbook is the orderbook payload received over the WebSocket.
type WSOrderbook struct {
	Ticker string       `json:"market_ticker"`
	Yes    []PriceLevel `json:"yes"`
	No     []PriceLevel `json:"no"`
}

// Orderbook converts the wire payload into an Orderbook stamped now.
func (w WSOrderbook) Orderbook() Orderbook {
	return Orderbook{
		Ticker:    w.Ticker,
		YesBids:   w.Yes,
		NoBids:    w.No,
		Timestamp: time.Now().UTC(),
	}
}

// WSFill is a fill notification for one of our resting orders.
type WSFill struct {
	Ticker   string `json:"market_ticker"`
	OrderID  string `json:"order_id"`
	Side     string `json:"side"`
	Count    int64  `json:"count"`
	YesPrice int64  `json:"yes_price"`
	NoPrice  int64  `json:"no_price"`
	IsTaker  bool   `json:"is_taker"`
}

// WSSubscribeCmd subscribes or unsubscribes WebSocket channels.
type WSSubscribeCmd struct {
	ID     int64             `json:"id"`
	Cmd    string            `json:"cmd"`
	Params WSSubscribeParams `json:"params"`
}

// WSSubscribeParams names the channels and markets of a subscription.
type WSSubscribeParams struct {
	Channels []string `json:"channels"`
	Tickers  []string `json:"market_tickers"`
}
