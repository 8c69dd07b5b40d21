package domain

import (
	"context"
	"time"
)

// ListOpts carries common pagination and time-filtering options.
type ListOpts struct {
	Limit int
	Since *time.Time
	Until *time.Time
}

// MarketData is one market enriched with its current top-of-book, the unit
// the feed hands to analyzers each cycle.
type MarketData struct {
	Market Market
	Book   MarketPrices
}

// MarketFeed supplies the per-cycle market universe. Implementations own
// transport concerns (HTTP, caching, rate limits); a failed fetch is reported
// as an error and the cycle's trading is skipped, never blocked on.
type MarketFeed interface {
	Fetch(ctx context.Context) ([]MarketData, error)
}

// Analyzer maps a market universe to scored opportunities. Implementations
// must be stateless with respect to the portfolio; they see only market data.
type Analyzer interface {
	Name() string
	Analyze(ctx context.Context, markets []MarketData) ([]Opportunity, error)
}

// PositionJournal persists position lifecycle events for later analysis.
type PositionJournal interface {
	RecordOpen(ctx context.Context, p Position) error
	RecordClose(ctx context.Context, p Position) error
	ListClosed(ctx context.Context, opts ListOpts) ([]Position, error)
}

// SnapshotStore persists the portfolio snapshot series.
type SnapshotStore interface {
	Append(ctx context.Context, runID string, s Snapshot) error
	List(ctx context.Context, runID string, opts ListOpts) ([]Snapshot, error)
}

// BookCache caches per-market top-of-book prices for the quoting loop.
type BookCache interface {
	SetTop(ctx context.Context, marketID string, top MarketPrices, ts time.Time) error
	GetTop(ctx context.Context, marketID string) (MarketPrices, time.Time, error)
}

// OrderSink receives quoting intent from the inventory quoter. The
// implementation performs the actual exchange calls and returns the resting
// order ids.
type OrderSink interface {
	PlaceQuote(ctx context.Context, q Quote) (yesOrderID, noOrderID string, err error)
	CancelOrder(ctx context.Context, orderID string) error
}
