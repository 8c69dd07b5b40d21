// Package quoter implements the two-sided inventory market maker. It rests a
// YES bid and a NO bid around fair value, widens when inventory skews, halts
// when limits are breached, and requotes on a timer or after a fill.
package quoter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/alanyoungcy/kalshibot/internal/domain"
	"github.com/alanyoungcy/kalshibot/internal/notify"
)

// Alerter pushes quoting events to the operator. *notify.Notifier satisfies
// it; a nil alerter disables alerts.
type Alerter interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Config tunes the quoting engine.
type Config struct {
	Markets          []string
	BaseSpread       float64       // cents between the two bids at zero skew
	QuoteSize        int           // contracts per side
	RequoteInterval  time.Duration
	SkewThreshold    float64       // |skew| beyond which the spread widens
	SpreadWidening   float64       // multiplier applied past the threshold
	MaxPosition      int           // total contracts per market before halting
	MaxInventorySkew float64       // |skew| before halting
	StaleAfter       time.Duration // max book age before quotes are pulled
}

// Validate reports config values the quoter cannot operate with.
func (c Config) Validate() error {
	if len(c.Markets) == 0 {
		return errors.New("quoter: at least one market is required")
	}
	if c.BaseSpread <= 0 {
		return fmt.Errorf("quoter: base_spread must be > 0, got %.2f", c.BaseSpread)
	}
	if c.QuoteSize < 1 {
		return fmt.Errorf("quoter: quote_size must be >= 1, got %d", c.QuoteSize)
	}
	if c.RequoteInterval <= 0 {
		return fmt.Errorf("quoter: requote_interval must be > 0, got %s", c.RequoteInterval)
	}
	if c.SkewThreshold <= 0 || c.SkewThreshold >= 1 {
		return fmt.Errorf("quoter: skew_threshold must be in (0, 1), got %.2f", c.SkewThreshold)
	}
	if c.SpreadWidening < 1 {
		return fmt.Errorf("quoter: spread_widening must be >= 1, got %.2f", c.SpreadWidening)
	}
	if c.MaxPosition < 1 {
		return fmt.Errorf("quoter: max_position must be >= 1, got %d", c.MaxPosition)
	}
	if c.MaxInventorySkew <= 0 || c.MaxInventorySkew > 1 {
		return fmt.Errorf("quoter: max_inventory_skew must be in (0, 1], got %.2f", c.MaxInventorySkew)
	}
	if c.StaleAfter <= 0 {
		return fmt.Errorf("quoter: stale_after must be > 0, got %s", c.StaleAfter)
	}
	return nil
}

// Quoter holds per-market inventory and resting quotes. All state is mutated
// from the Run goroutine; fills arrive over a channel, never by direct call
// from the feed goroutine.
type Quoter struct {
	cfg    Config
	books  domain.BookCache
	orders domain.OrderSink
	alerts Alerter
	logger *slog.Logger

	inventory map[string]*domain.InventoryState
	resting   map[string]*domain.Quote
	halted    map[string]bool
}

// New creates a Quoter with flat inventory in every configured market.
func New(cfg Config, books domain.BookCache, orders domain.OrderSink, logger *slog.Logger) (*Quoter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if books == nil || orders == nil {
		return nil, errors.New("quoter: book cache and order sink are required")
	}
	q := &Quoter{
		cfg:       cfg,
		books:     books,
		orders:    orders,
		logger:    logger.With(slog.String("component", "quoter")),
		inventory: make(map[string]*domain.InventoryState, len(cfg.Markets)),
		resting:   make(map[string]*domain.Quote, len(cfg.Markets)),
		halted:    make(map[string]bool, len(cfg.Markets)),
	}
	for _, m := range cfg.Markets {
		q.inventory[m] = &domain.InventoryState{MarketID: m}
	}
	return q, nil
}

// WithAlerter attaches a notification channel for halt events.
func (q *Quoter) WithAlerter(a Alerter) *Quoter {
	q.alerts = a
	return q
}

// FairValue estimates the market's true YES price from the two bids: the YES
// bid from below and the implied YES offer (100 − NO bid) from above.
func FairValue(top domain.MarketPrices) float64 {
	return (top.YesBid + (100 - top.NoBid)) / 2
}

// Inventory returns a copy of the current inventory for a market.
func (q *Quoter) Inventory(marketID string) domain.InventoryState {
	if inv, ok := q.inventory[marketID]; ok {
		return *inv
	}
	return domain.InventoryState{MarketID: marketID}
}

// Halted reports whether quoting in the market is currently suspended.
func (q *Quoter) Halted(marketID string) bool { return q.halted[marketID] }

// spread returns the quoted spread for the current inventory: the base
// spread, widened once |skew| passes the threshold so the book leans against
// further one-sided fills.
func (q *Quoter) spread(inv domain.InventoryState) float64 {
	s := q.cfg.BaseSpread
	if math.Abs(inv.Skew()) > q.cfg.SkewThreshold {
		s *= q.cfg.SpreadWidening
	}
	return s
}

// buildQuote prices both sides around fair value. The YES bid sits half a
// spread below fair; the NO bid is the complement of the implied YES offer
// half a spread above fair. Both clamp into the exchange's [1, 99] range.
func (q *Quoter) buildQuote(marketID string, top domain.MarketPrices, inv domain.InventoryState) domain.Quote {
	fair := FairValue(top)
	half := q.spread(inv) / 2

	yes := clampPrice(fair - half)
	no := clampPrice(100 - (fair + half))
	return domain.Quote{
		MarketID:  marketID,
		FairValue: fair,
		YesPrice:  yes,
		NoPrice:   no,
		Size:      q.cfg.QuoteSize,
	}
}

func clampPrice(p float64) float64 {
	return math.Min(math.Max(p, 1), 99)
}

// withinLimits reports whether the market may keep quoting: total exposure
// under the cap and skew inside the band.
func (q *Quoter) withinLimits(inv domain.InventoryState) bool {
	if inv.Total() > q.cfg.MaxPosition {
		return false
	}
	return math.Abs(inv.Skew()) <= q.cfg.MaxInventorySkew
}

// HandleFill books an execution against one of our resting quotes and
// requotes the market immediately so the book reflects the new inventory.
func (q *Quoter) HandleFill(ctx context.Context, f domain.Fill) error {
	inv, ok := q.inventory[f.MarketID]
	if !ok {
		return fmt.Errorf("quoter: fill for unknown market %s", f.MarketID)
	}
	if f.Side == domain.SideNo {
		inv.NoContracts += f.Count
	} else {
		inv.YesContracts += f.Count
	}
	q.logger.Info("fill",
		slog.String("market", f.MarketID),
		slog.String("side", string(f.Side)),
		slog.Int("count", f.Count),
		slog.Float64("price", f.Price),
		slog.Int("pairs", inv.Pairs()),
		slog.Float64("skew", inv.Skew()),
	)
	return q.requoteMarket(ctx, f.MarketID)
}

// Cycle requotes every configured market once.
func (q *Quoter) Cycle(ctx context.Context) error {
	for _, m := range q.cfg.Markets {
		if err := q.requoteMarket(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

// requoteMarket cancels the market's resting quote and, if limits and book
// freshness allow, places a new one. Breaching a limit halts the market:
// quotes come down and stay down until inventory returns inside the band.
func (q *Quoter) requoteMarket(ctx context.Context, marketID string) error {
	inv := q.inventory[marketID]

	if !q.withinLimits(*inv) {
		if !q.halted[marketID] {
			q.halted[marketID] = true
			q.logger.Warn("market halted",
				slog.String("market", marketID),
				slog.Int("total", inv.Total()),
				slog.Float64("skew", inv.Skew()),
			)
			q.alertHalt(ctx, marketID, *inv)
		}
		return q.cancelMarket(ctx, marketID)
	}
	if q.halted[marketID] {
		q.halted[marketID] = false
		q.logger.Info("market resumed", slog.String("market", marketID))
	}

	top, ts, err := q.books.GetTop(ctx, marketID)
	if err != nil {
		q.logger.Warn("no book, pulling quotes", slog.String("market", marketID), slog.Any("error", err))
		return q.cancelMarket(ctx, marketID)
	}
	if time.Since(ts) > q.cfg.StaleAfter || !top.Valid() {
		q.logger.Warn("stale book, pulling quotes", slog.String("market", marketID))
		return q.cancelMarket(ctx, marketID)
	}

	if err := q.cancelMarket(ctx, marketID); err != nil {
		return err
	}

	quote := q.buildQuote(marketID, top, *inv)
	yesID, noID, err := q.orders.PlaceQuote(ctx, quote)
	if err != nil {
		return fmt.Errorf("quoter: place quote %s: %w", marketID, err)
	}
	quote.YesOrder, quote.NoOrder = yesID, noID
	q.resting[marketID] = &quote

	q.logger.Debug("quoted",
		slog.String("market", marketID),
		slog.Float64("fair", quote.FairValue),
		slog.Float64("yes_bid", quote.YesPrice),
		slog.Float64("no_bid", quote.NoPrice),
	)
	return nil
}

// alertHalt fires once per halt transition. Delivery is best-effort; a failed
// alert never blocks the cancel that follows.
func (q *Quoter) alertHalt(ctx context.Context, marketID string, inv domain.InventoryState) {
	if q.alerts == nil {
		return
	}
	msg := fmt.Sprintf("%d contracts held (%d YES / %d NO), skew %.2f; quotes pulled until inventory rebalances",
		inv.Total(), inv.YesContracts, inv.NoContracts, inv.Skew())
	if err := q.alerts.Notify(ctx, notify.EventQuoterHalted, "Market halted: "+marketID, msg); err != nil {
		q.logger.Warn("halt alert failed", slog.String("market", marketID), slog.Any("error", err))
	}
}

func (q *Quoter) cancelMarket(ctx context.Context, marketID string) error {
	r, ok := q.resting[marketID]
	if !ok {
		return nil
	}
	delete(q.resting, marketID)
	for _, id := range []string{r.YesOrder, r.NoOrder} {
		if id == "" {
			continue
		}
		if err := q.orders.CancelOrder(ctx, id); err != nil {
			return fmt.Errorf("quoter: cancel %s order %s: %w", marketID, id, err)
		}
	}
	return nil
}

// Shutdown pulls every resting quote. Called on loop exit; the context should
// outlive the one that cancelled the run so the cancels still go out.
func (q *Quoter) Shutdown(ctx context.Context) error {
	var firstErr error
	for _, m := range q.cfg.Markets {
		if err := q.cancelMarket(ctx, m); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	q.logger.Info("quoter shut down")
	return firstErr
}

// Run requotes on the configured interval and on every fill until ctx is
// cancelled, then cancels all resting orders with a short grace period.
func (q *Quoter) Run(ctx context.Context, fills <-chan domain.Fill) error {
	ticker := time.NewTicker(q.cfg.RequoteInterval)
	defer ticker.Stop()

	if err := q.Cycle(ctx); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return q.Shutdown(shutdownCtx)
		case f, ok := <-fills:
			if !ok {
				return errors.New("quoter: fill stream closed")
			}
			if err := q.HandleFill(ctx, f); err != nil {
				return err
			}
		case <-ticker.C:
			if err := q.Cycle(ctx); err != nil {
				return err
			}
		}
	}
}
