package quoter

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/kalshibot/internal/domain"
	"github.com/alanyoungcy/kalshibot/internal/notify"
)

type memBooks struct {
	tops map[string]domain.MarketPrices
	ts   time.Time
}

func (b *memBooks) SetTop(ctx context.Context, marketID string, top domain.MarketPrices, ts time.Time) error {
	b.tops[marketID] = top
	b.ts = ts
	return nil
}

func (b *memBooks) GetTop(ctx context.Context, marketID string) (domain.MarketPrices, time.Time, error) {
	top, ok := b.tops[marketID]
	if !ok {
		return domain.MarketPrices{}, time.Time{}, domain.ErrNotFound
	}
	ts := b.ts
	if ts.IsZero() {
		ts = time.Now()
	}
	return top, ts, nil
}

type memSink struct {
	placed    []domain.Quote
	cancelled []string
	nextID    int
}

func (s *memSink) PlaceQuote(ctx context.Context, q domain.Quote) (string, string, error) {
	s.placed = append(s.placed, q)
	s.nextID += 2
	return orderID(s.nextID - 1), orderID(s.nextID), nil
}

func (s *memSink) CancelOrder(ctx context.Context, id string) error {
	s.cancelled = append(s.cancelled, id)
	return nil
}

func orderID(n int) string {
	return "ord-" + strconv.Itoa(n)
}

type memAlerter struct {
	events []string
	titles []string
}

func (a *memAlerter) Notify(ctx context.Context, event, title, message string) error {
	a.events = append(a.events, event)
	a.titles = append(a.titles, title)
	return nil
}

func testQuoterConfig() Config {
	return Config{
		Markets:          []string{"MKT-A"},
		BaseSpread:       4,
		QuoteSize:        10,
		RequoteInterval:  time.Second,
		SkewThreshold:    0.3,
		SpreadWidening:   1.5,
		MaxPosition:      100,
		MaxInventorySkew: 0.6,
		StaleAfter:       time.Minute,
	}
}

func newTestQuoter(t *testing.T, cfg Config) (*Quoter, *memBooks, *memSink) {
	t.Helper()
	books := &memBooks{tops: map[string]domain.MarketPrices{}}
	sink := &memSink{}
	q, err := New(cfg, books, sink, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return q, books, sink
}

func TestFairValue(t *testing.T) {
	t.Parallel()

	// YES bid 44, NO bid 54: implied YES offer 46, fair (44+46)/2 = 45.
	assert.InDelta(t, 45.0, FairValue(domain.MarketPrices{YesBid: 44, NoBid: 54}), 1e-9)
	assert.InDelta(t, 50.0, FairValue(domain.MarketPrices{YesBid: 48, NoBid: 48}), 1e-9)
}

func TestCyclePlacesSymmetricQuote(t *testing.T) {
	t.Parallel()

	q, books, sink := newTestQuoter(t, testQuoterConfig())
	books.tops["MKT-A"] = domain.MarketPrices{YesBid: 44, NoBid: 54}

	require.NoError(t, q.Cycle(context.Background()))
	require.Len(t, sink.placed, 1)

	quote := sink.placed[0]
	assert.InDelta(t, 45.0, quote.FairValue, 1e-9)
	// Fair 45, spread 4: YES bid 43, NO bid 100−47 = 53.
	assert.InDelta(t, 43.0, quote.YesPrice, 1e-9)
	assert.InDelta(t, 53.0, quote.NoPrice, 1e-9)
	assert.Equal(t, 10, quote.Size)
}

func TestQuoteClampsToPriceRange(t *testing.T) {
	t.Parallel()

	q, books, sink := newTestQuoter(t, testQuoterConfig())
	books.tops["MKT-A"] = domain.MarketPrices{YesBid: 1, NoBid: 97}

	require.NoError(t, q.Cycle(context.Background()))
	require.Len(t, sink.placed, 1)

	// Fair value 2: the raw YES bid would be 0, clamped up to 1.
	quote := sink.placed[0]
	assert.GreaterOrEqual(t, quote.YesPrice, 1.0)
	assert.LessOrEqual(t, quote.NoPrice, 99.0)
}

func TestSpreadWidensOnSkew(t *testing.T) {
	t.Parallel()

	q, books, sink := newTestQuoter(t, testQuoterConfig())
	books.tops["MKT-A"] = domain.MarketPrices{YesBid: 44, NoBid: 54}

	// 8 YES vs 2 NO: skew 0.6, past the 0.3 threshold but at the halt
	// boundary, so still quoting with a widened spread.
	require.NoError(t, q.HandleFill(context.Background(), domain.Fill{MarketID: "MKT-A", Side: domain.SideYes, Price: 43, Count: 8}))
	require.NoError(t, q.HandleFill(context.Background(), domain.Fill{MarketID: "MKT-A", Side: domain.SideNo, Price: 53, Count: 2}))

	require.NotEmpty(t, sink.placed)
	quote := sink.placed[len(sink.placed)-1]
	// Spread 4 × 1.5 = 6: YES bid 42, NO bid 100−48 = 52.
	assert.InDelta(t, 42.0, quote.YesPrice, 1e-9)
	assert.InDelta(t, 52.0, quote.NoPrice, 1e-9)
	assert.False(t, q.Halted("MKT-A"))
}

func TestSpreadUnchangedBelowSkewThreshold(t *testing.T) {
	t.Parallel()

	q, books, sink := newTestQuoter(t, testQuoterConfig())
	books.tops["MKT-A"] = domain.MarketPrices{YesBid: 44, NoBid: 54}

	// 6 YES vs 4 NO: skew 0.2, inside the 0.3 threshold, so the base spread
	// holds.
	require.NoError(t, q.HandleFill(context.Background(), domain.Fill{MarketID: "MKT-A", Side: domain.SideYes, Price: 43, Count: 6}))
	require.NoError(t, q.HandleFill(context.Background(), domain.Fill{MarketID: "MKT-A", Side: domain.SideNo, Price: 53, Count: 4}))

	require.NotEmpty(t, sink.placed)
	quote := sink.placed[len(sink.placed)-1]
	// Fair 45, spread stays 4: YES bid 43, NO bid 100−47 = 53.
	assert.InDelta(t, 43.0, quote.YesPrice, 1e-9)
	assert.InDelta(t, 53.0, quote.NoPrice, 1e-9)
}

func TestInventoryTracking(t *testing.T) {
	t.Parallel()

	q, books, _ := newTestQuoter(t, testQuoterConfig())
	books.tops["MKT-A"] = domain.MarketPrices{YesBid: 44, NoBid: 54}

	require.NoError(t, q.HandleFill(context.Background(), domain.Fill{MarketID: "MKT-A", Side: domain.SideYes, Count: 7}))
	require.NoError(t, q.HandleFill(context.Background(), domain.Fill{MarketID: "MKT-A", Side: domain.SideNo, Count: 4}))

	inv := q.Inventory("MKT-A")
	assert.Equal(t, 7, inv.YesContracts)
	assert.Equal(t, 4, inv.NoContracts)
	assert.Equal(t, 4, inv.Pairs())
	assert.Equal(t, 11, inv.Total())
	assert.InDelta(t, 3.0/11.0, inv.Skew(), 1e-9)
}

func TestFillOnUnknownMarket(t *testing.T) {
	t.Parallel()

	q, _, _ := newTestQuoter(t, testQuoterConfig())
	err := q.HandleFill(context.Background(), domain.Fill{MarketID: "MKT-X", Side: domain.SideYes, Count: 1})
	assert.Error(t, err)
}

func TestHaltOnSkewAndResume(t *testing.T) {
	t.Parallel()

	q, books, sink := newTestQuoter(t, testQuoterConfig())
	books.tops["MKT-A"] = domain.MarketPrices{YesBid: 44, NoBid: 54}

	// Quote, then fill one-sided past the 0.6 skew limit.
	require.NoError(t, q.Cycle(context.Background()))
	require.NoError(t, q.HandleFill(context.Background(), domain.Fill{MarketID: "MKT-A", Side: domain.SideYes, Count: 10}))

	assert.True(t, q.Halted("MKT-A"))
	// The halt pulled the resting orders.
	assert.Len(t, sink.cancelled, 2)

	placedBefore := len(sink.placed)
	require.NoError(t, q.Cycle(context.Background()))
	assert.Len(t, sink.placed, placedBefore, "halted market must not requote")

	// NO fills rebalance the book under the skew limit; quoting resumes.
	require.NoError(t, q.HandleFill(context.Background(), domain.Fill{MarketID: "MKT-A", Side: domain.SideNo, Count: 10}))
	assert.False(t, q.Halted("MKT-A"))
	assert.Len(t, sink.placed, placedBefore+1)
}

func TestHaltSendsOneAlert(t *testing.T) {
	t.Parallel()

	q, books, _ := newTestQuoter(t, testQuoterConfig())
	alerts := &memAlerter{}
	q.WithAlerter(alerts)
	books.tops["MKT-A"] = domain.MarketPrices{YesBid: 44, NoBid: 54}

	require.NoError(t, q.HandleFill(context.Background(), domain.Fill{MarketID: "MKT-A", Side: domain.SideYes, Count: 10}))
	require.True(t, q.Halted("MKT-A"))

	require.Len(t, alerts.events, 1)
	assert.Equal(t, notify.EventQuoterHalted, alerts.events[0])
	assert.Contains(t, alerts.titles[0], "MKT-A")

	// Requotes while halted must not repeat the alert.
	require.NoError(t, q.Cycle(context.Background()))
	assert.Len(t, alerts.events, 1)

	// Rebalance, then breach again: the transition fires a fresh alert.
	// 10/10 is flat; 50/10 puts skew at 40/60 ≈ 0.67, past the 0.6 band.
	require.NoError(t, q.HandleFill(context.Background(), domain.Fill{MarketID: "MKT-A", Side: domain.SideNo, Count: 10}))
	require.NoError(t, q.HandleFill(context.Background(), domain.Fill{MarketID: "MKT-A", Side: domain.SideYes, Count: 40}))
	assert.Len(t, alerts.events, 2)
}

func TestHaltOnTotalPosition(t *testing.T) {
	t.Parallel()

	cfg := testQuoterConfig()
	cfg.MaxPosition = 10
	q, books, _ := newTestQuoter(t, cfg)
	books.tops["MKT-A"] = domain.MarketPrices{YesBid: 44, NoBid: 54}

	require.NoError(t, q.HandleFill(context.Background(), domain.Fill{MarketID: "MKT-A", Side: domain.SideYes, Count: 6}))
	require.NoError(t, q.HandleFill(context.Background(), domain.Fill{MarketID: "MKT-A", Side: domain.SideNo, Count: 6}))

	// 12 total > 10: halted even though skew is flat.
	assert.True(t, q.Halted("MKT-A"))
}

func TestMissingBookPullsQuotes(t *testing.T) {
	t.Parallel()

	q, books, sink := newTestQuoter(t, testQuoterConfig())
	books.tops["MKT-A"] = domain.MarketPrices{YesBid: 44, NoBid: 54}
	require.NoError(t, q.Cycle(context.Background()))
	require.Len(t, sink.placed, 1)

	delete(books.tops, "MKT-A")
	require.NoError(t, q.Cycle(context.Background()))
	assert.Len(t, sink.cancelled, 2)
	assert.Len(t, sink.placed, 1)
}

func TestStaleBookPullsQuotes(t *testing.T) {
	t.Parallel()

	q, books, sink := newTestQuoter(t, testQuoterConfig())
	books.tops["MKT-A"] = domain.MarketPrices{YesBid: 44, NoBid: 54}
	books.ts = time.Now().Add(-2 * time.Minute)

	require.NoError(t, q.Cycle(context.Background()))
	assert.Empty(t, sink.placed)
}

func TestRequoteCancelsPreviousOrders(t *testing.T) {
	t.Parallel()

	q, books, sink := newTestQuoter(t, testQuoterConfig())
	books.tops["MKT-A"] = domain.MarketPrices{YesBid: 44, NoBid: 54}

	require.NoError(t, q.Cycle(context.Background()))
	require.NoError(t, q.Cycle(context.Background()))

	assert.Len(t, sink.placed, 2)
	assert.Len(t, sink.cancelled, 2)
}

func TestShutdownCancelsAll(t *testing.T) {
	t.Parallel()

	cfg := testQuoterConfig()
	cfg.Markets = []string{"MKT-A", "MKT-B"}
	q, books, sink := newTestQuoter(t, cfg)
	books.tops["MKT-A"] = domain.MarketPrices{YesBid: 44, NoBid: 54}
	books.tops["MKT-B"] = domain.MarketPrices{YesBid: 30, NoBid: 68}

	require.NoError(t, q.Cycle(context.Background()))
	require.NoError(t, q.Shutdown(context.Background()))
	assert.Len(t, sink.cancelled, 4)
}
