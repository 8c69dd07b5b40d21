package domain

import "time"

// Market is the subset of Kalshi market metadata the bot cares about.
type Market struct {
	Ticker       string
	SeriesTicker string
	Title        string
	Status       string
	LastPrice    float64 // cents, YES side
	Volume       int64
	CloseTime    time.Time
}

// MarketPrices holds the current best bid for each side of one market, in
// cents. A zero value on a side means that side has no resting bids.
type MarketPrices struct {
	YesBid float64
	NoBid  float64
}

// BySide returns the bid for the requested side.
func (m MarketPrices) BySide(side Side) float64 {
	if side == SideNo {
		return m.NoBid
	}
	return m.YesBid
}

// Valid reports whether both sides carry a usable price in [1, 99].
func (m MarketPrices) Valid() bool {
	return m.YesBid >= 1 && m.YesBid <= 99 && m.NoBid >= 1 && m.NoBid <= 99
}

// MarketSnapshot is one cycle's view of the market universe: per-market
// top-of-book prices keyed by ticker, plus when it was taken.
type MarketSnapshot struct {
	Prices  map[string]MarketPrices
	TakenAt time.Time
}
