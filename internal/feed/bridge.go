// Package feed bridges the exchange WebSocket stream into the quoting engine:
// orderbook updates are written to the shared book cache and fills are
// delivered over a channel so the quoter consumes them on its own goroutine.
package feed

import (
	"context"
	"log/slog"
	"time"

	"github.com/alanyoungcy/kalshibot/internal/domain"
	"github.com/alanyoungcy/kalshibot/internal/platform/kalshi"
)

const cacheWriteTimeout = 2 * time.Second

// Bridge fans WebSocket events out to the book cache and the fill channel.
type Bridge struct {
	books  domain.BookCache
	fills  chan domain.Fill
	logger *slog.Logger
}

// NewBridge creates a bridge writing to the given book cache.
func NewBridge(books domain.BookCache, logger *slog.Logger) *Bridge {
	return &Bridge{
		books:  books,
		fills:  make(chan domain.Fill, 64),
		logger: logger.With(slog.String("component", "feed_bridge")),
	}
}

// Fills returns the channel carrying executions against our resting quotes.
func (b *Bridge) Fills() <-chan domain.Fill {
	return b.fills
}

// Attach registers the bridge's handlers on the WebSocket client.
func (b *Bridge) Attach(ws *kalshi.WSClient) {
	ws.OnOrderbook(b.HandleOrderbook)
	ws.OnFill(b.HandleFill)
}

// HandleOrderbook writes the book's best bids to the cache. Write failures are
// logged and dropped; the cache's staleness check pulls quotes if the book
// stops updating.
func (b *Bridge) HandleOrderbook(ob kalshi.Orderbook) {
	top := domain.MarketPrices{
		YesBid: ob.BestYesBid(),
		NoBid:  ob.BestNoBid(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), cacheWriteTimeout)
	defer cancel()

	if err := b.books.SetTop(ctx, ob.Ticker, top, time.Now().UTC()); err != nil {
		b.logger.Warn("book cache write failed",
			slog.String("market", ob.Ticker),
			slog.Any("error", err),
		)
	}
}

// HandleFill converts an exchange fill to the domain type and queues it for
// the quoter. A full channel drops the fill rather than blocking the read
// loop; the next requote cycle reconciles from the book anyway.
func (b *Bridge) HandleFill(f kalshi.WSFill) {
	fill := domain.Fill{
		MarketID: f.Ticker,
		Side:     domain.SideYes,
		Price:    float64(f.YesPrice),
		Count:    int(f.Count),
	}
	if f.Side == "no" {
		fill.Side = domain.SideNo
		fill.Price = float64(f.NoPrice)
	}

	select {
	case b.fills <- fill:
	default:
		b.logger.Warn("fill channel full, dropping fill",
			slog.String("market", f.Ticker),
			slog.String("side", f.Side),
		)
	}
}
