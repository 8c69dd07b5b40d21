package kalshi

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/kalshibot/internal/domain"
)

// FeedConfig bounds the per-cycle market fetch.
type FeedConfig struct {
	SeriesTicker string // empty scans all series
	PageLimit    int    // markets per page, default 100
	MaxMarkets   int    // cap on the universe, default 200
	MinVolume    int64  // drop markets below this volume
}

// Feed implements domain.MarketFeed over the REST client. Each fetch pages
// through active markets and attaches a top-of-book to every one.
type Feed struct {
	cfg    FeedConfig
	client *Client
	logger *slog.Logger
}

var _ domain.MarketFeed = (*Feed)(nil)

// NewFeed creates a market feed.
func NewFeed(cfg FeedConfig, client *Client, logger *slog.Logger) *Feed {
	if cfg.PageLimit <= 0 {
		cfg.PageLimit = 100
	}
	if cfg.MaxMarkets <= 0 {
		cfg.MaxMarkets = 200
	}
	return &Feed{
		cfg:    cfg,
		client: client,
		logger: logger.With(slog.String("component", "kalshi_feed")),
	}
}

// Fetch returns the active market universe with prices. The book comes from
// the market's own bid fields; markets quoting nothing fall back to a
// synthetic book derived from the last trade, so thin markets still mark to
// something rather than dropping out of the cycle.
func (f *Feed) Fetch(ctx context.Context) ([]domain.MarketData, error) {
	var out []domain.MarketData
	cursor := ""
	for len(out) < f.cfg.MaxMarkets {
		markets, next, err := f.client.GetMarkets(ctx, f.cfg.PageLimit, cursor, "open", f.cfg.SeriesTicker)
		if err != nil {
			return nil, fmt.Errorf("kalshi: feed fetch: %w", err)
		}

		for _, m := range markets {
			if len(out) >= f.cfg.MaxMarkets {
				break
			}
			if m.Volume < f.cfg.MinVolume {
				continue
			}
			book, ok := bookFor(m)
			if !ok {
				continue
			}
			out = append(out, domain.MarketData{
				Market: toDomainMarket(m),
				Book:   book,
			})
		}

		if next == "" || len(markets) == 0 {
			break
		}
		cursor = next
	}

	f.logger.Debug("universe fetched", slog.Int("markets", len(out)))
	return out, nil
}

// bookFor derives a top-of-book for the market. Real bids win; otherwise the
// last trade price seeds a synthetic two-sided book.
func bookFor(m Market) (domain.MarketPrices, bool) {
	book := domain.MarketPrices{YesBid: m.YesBid, NoBid: m.NoBid}
	if book.Valid() {
		return book, true
	}
	if m.LastPrice >= 1 && m.LastPrice <= 99 {
		return domain.MarketPrices{
			YesBid: m.LastPrice,
			NoBid:  100 - m.LastPrice,
		}, true
	}
	return domain.MarketPrices{}, false
}

func toDomainMarket(m Market) domain.Market {
	closeTime, _ := time.Parse(time.RFC3339, m.CloseTime)
	return domain.Market{
		Ticker:       m.Ticker,
		SeriesTicker: m.SeriesTicker,
		Title:        m.Title,
		Status:       "active",
		LastPrice:    m.LastPrice,
		Volume:       m.Volume,
		CloseTime:    closeTime,
	}
}
