package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/kalshibot/internal/domain"
)

// BookCache implements domain.BookCache with one hash per market:
//
//	book:{ticker} - fields "yes_bid", "no_bid", "ts" (unix nanos)
//
// The WebSocket feed writes, the quoting loop reads; the TTL keeps dead
// markets from accumulating.
type BookCache struct {
	rdb *redis.Client
	ttl time.Duration
}

var _ domain.BookCache = (*BookCache)(nil)

// NewBookCache creates a BookCache backed by the given Client. Entries expire
// after ttl; zero disables expiry.
func NewBookCache(c *Client, ttl time.Duration) *BookCache {
	return &BookCache{rdb: c.Underlying(), ttl: ttl}
}

func bookKey(marketID string) string { return "book:" + marketID }

// SetTop stores the market's top-of-book.
func (bc *BookCache) SetTop(ctx context.Context, marketID string, top domain.MarketPrices, ts time.Time) error {
	key := bookKey(marketID)

	pipe := bc.rdb.TxPipeline()
	pipe.HSet(ctx, key,
		"yes_bid", strconv.FormatFloat(top.YesBid, 'f', -1, 64),
		"no_bid", strconv.FormatFloat(top.NoBid, 'f', -1, 64),
		"ts", strconv.FormatInt(ts.UnixNano(), 10),
	)
	if bc.ttl > 0 {
		pipe.Expire(ctx, key, bc.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set book %s: %w", marketID, err)
	}
	return nil
}

// GetTop returns the market's top-of-book and its write timestamp. It returns
// domain.ErrNotFound when the market has no cached book.
func (bc *BookCache) GetTop(ctx context.Context, marketID string) (domain.MarketPrices, time.Time, error) {
	vals, err := bc.rdb.HGetAll(ctx, bookKey(marketID)).Result()
	if err != nil {
		return domain.MarketPrices{}, time.Time{}, fmt.Errorf("redis: get book %s: %w", marketID, err)
	}
	if len(vals) == 0 {
		return domain.MarketPrices{}, time.Time{}, domain.ErrNotFound
	}

	var top domain.MarketPrices
	top.YesBid, _ = strconv.ParseFloat(vals["yes_bid"], 64)
	top.NoBid, _ = strconv.ParseFloat(vals["no_bid"], 64)

	var ts time.Time
	if nanos, err := strconv.ParseInt(vals["ts"], 10, 64); err == nil {
		ts = time.Unix(0, nanos)
	}
	return top, ts, nil
}
