package sim

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/kalshibot/internal/domain"
	"github.com/alanyoungcy/kalshibot/internal/notify"
	"github.com/alanyoungcy/kalshibot/internal/perf"
	"github.com/alanyoungcy/kalshibot/internal/portfolio"
	"github.com/alanyoungcy/kalshibot/internal/risk"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.now = c.now.Add(d)
	return ctx.Err()
}

// scriptFeed returns one scripted response per cycle, repeating the last one
// once the script runs out.
type scriptFeed struct {
	script []func() ([]domain.MarketData, error)
	calls  int
}

func (f *scriptFeed) Fetch(ctx context.Context) ([]domain.MarketData, error) {
	i := f.calls
	if i >= len(f.script) {
		i = len(f.script) - 1
	}
	f.calls++
	return f.script[i]()
}

type scriptAnalyzer struct {
	script []([]domain.Opportunity)
	calls  int
}

func (a *scriptAnalyzer) Name() string { return "script" }

func (a *scriptAnalyzer) Analyze(ctx context.Context, markets []domain.MarketData) ([]domain.Opportunity, error) {
	i := a.calls
	a.calls++
	if i >= len(a.script) {
		return nil, nil
	}
	return a.script[i], nil
}

type memJournal struct {
	opens  []domain.Position
	closes []domain.Position
}

func (j *memJournal) RecordOpen(ctx context.Context, p domain.Position) error {
	j.opens = append(j.opens, p)
	return nil
}

func (j *memJournal) RecordClose(ctx context.Context, p domain.Position) error {
	j.closes = append(j.closes, p)
	return nil
}

func (j *memJournal) ListClosed(ctx context.Context, opts domain.ListOpts) ([]domain.Position, error) {
	return j.closes, nil
}

type memAlerter struct {
	events   []string
	messages []string
}

func (a *memAlerter) Notify(ctx context.Context, event, title, message string) error {
	a.events = append(a.events, event)
	a.messages = append(a.messages, message)
	return nil
}

type memSnapshots struct {
	appended []domain.Snapshot
}

func (s *memSnapshots) Append(ctx context.Context, runID string, snap domain.Snapshot) error {
	s.appended = append(s.appended, snap)
	return nil
}

func (s *memSnapshots) List(ctx context.Context, runID string, opts domain.ListOpts) ([]domain.Snapshot, error) {
	return s.appended, nil
}

func market(id string, yesBid, noBid float64) []domain.MarketData {
	return []domain.MarketData{{
		Market: domain.Market{Ticker: id, Status: "active"},
		Book:   domain.MarketPrices{YesBid: yesBid, NoBid: noBid},
	}}
}

func opp(id string, side domain.Side, price float64) domain.Opportunity {
	return domain.Opportunity{
		MarketID:    id,
		Side:        side,
		Confidence:  domain.ConfidenceHigh,
		Strength:    domain.StrengthHard,
		EdgeCents:   5,
		EdgePercent: 12,
		Price:       price,
		Source:      "script",
	}
}

func newTestRunner(t *testing.T, cfg Config, capital float64, feed domain.MarketFeed, analyzers ...domain.Analyzer) (*Runner, *portfolio.Ledger, *memJournal, *memSnapshots) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	rcfg := risk.Config{
		MaxPositionSize:   2000,
		MaxPortfolioRisk:  0.1,
		MinConfidence:     domain.ConfidenceMedium,
		MinStrength:       domain.StrengthSoft,
		MinEdgeCents:      2,
		MinEdgePercent:    5,
		StopLossPercent:   20,
		TakeProfitPercent: 30,
		MaxPositions:      5,
		SizingMethod:      risk.SizingFixed,
		BasePositionSize:  600,
		Multipliers:       risk.ConfidenceMultipliers{Low: 0.5, Medium: 1.0, High: 1.5},
	}
	require.NoError(t, rcfg.Validate())

	ledger, err := portfolio.NewLedger(capital, logger)
	require.NoError(t, err)
	sizer := risk.NewSizer(rcfg)
	journal := &memJournal{}
	snaps := &memSnapshots{}

	r, err := NewRunner(cfg, Deps{
		Feed:      feed,
		Analyzers: analyzers,
		Ledger:    ledger,
		Evaluator: risk.NewEvaluator(rcfg, sizer),
		Sizer:     sizer,
		Stops:     risk.NewStopTargetMonitor(rcfg, logger),
		Tracker:   perf.NewTracker(capital),
		Journal:   journal,
		Snapshots: snaps,
		Clock:     &fakeClock{now: time.Unix(1700000000, 0)},
	}, logger)
	require.NoError(t, err)
	return r, ledger, journal, snaps
}

func TestRunnerLifecycle(t *testing.T) {
	t.Parallel()

	feed := &scriptFeed{script: []func() ([]domain.MarketData, error){
		func() ([]domain.MarketData, error) { return market("MKT-A", 40, 60), nil },
	}}
	r, _, _, _ := newTestRunner(t, Config{Interval: time.Second, MaxCycles: 3}, 10000, feed)

	assert.Equal(t, StateInitialized, r.State())
	require.NoError(t, r.Run(context.Background()))
	assert.Equal(t, StateStopped, r.State())
	assert.Equal(t, 3, feed.calls)

	// A runner runs at most once.
	assert.Error(t, r.Run(context.Background()))
}

func TestRunnerOpensAndJournals(t *testing.T) {
	t.Parallel()

	feed := &scriptFeed{script: []func() ([]domain.MarketData, error){
		func() ([]domain.MarketData, error) { return market("MKT-A", 40, 60), nil },
	}}
	an := &scriptAnalyzer{script: [][]domain.Opportunity{
		{opp("MKT-A", domain.SideYes, 40)},
	}}
	r, ledger, journal, _ := newTestRunner(t, Config{Interval: time.Second, MaxCycles: 2}, 10000, feed, an)

	require.NoError(t, r.Run(context.Background()))

	assert.Equal(t, 1, ledger.OpenCount())
	require.Len(t, journal.opens, 1)
	assert.Equal(t, "MKT-A", journal.opens[0].MarketID)
	// 600¢ at 40¢ buys 15 contracts.
	assert.Equal(t, 15, journal.opens[0].Quantity)

	stats := r.Report()
	assert.Equal(t, 1, stats.Executed)
	assert.Equal(t, 1, stats.Opportunities)
}

func TestRunnerStopSweepBeforeNewTrades(t *testing.T) {
	t.Parallel()

	// Cycle 1 opens at 50¢; cycle 2 gaps down through the stop and offers a
	// fresh opportunity in another market. The stop sweep must run first so
	// the exit is journaled and its cash is back before the new open.
	feed := &scriptFeed{script: []func() ([]domain.MarketData, error){
		func() ([]domain.MarketData, error) { return market("MKT-A", 50, 50), nil },
		func() ([]domain.MarketData, error) {
			return append(market("MKT-A", 35, 65), market("MKT-B", 30, 70)...), nil
		},
	}}
	an := &scriptAnalyzer{script: [][]domain.Opportunity{
		{opp("MKT-A", domain.SideYes, 50)},
		{opp("MKT-B", domain.SideYes, 30)},
	}}
	r, ledger, journal, _ := newTestRunner(t, Config{Interval: time.Second, MaxCycles: 2}, 10000, feed, an)

	require.NoError(t, r.Run(context.Background()))

	require.Len(t, journal.closes, 1)
	assert.Equal(t, domain.CloseReasonStopLoss, journal.closes[0].CloseReason)
	assert.Equal(t, "MKT-A", journal.closes[0].MarketID)
	assert.Equal(t, 1, ledger.OpenCount())
	assert.True(t, ledger.HoldsMarket("MKT-B"))
}

func TestRunnerFetchFailureSkipsTradingButSweepsStops(t *testing.T) {
	t.Parallel()

	feed := &scriptFeed{script: []func() ([]domain.MarketData, error){
		func() ([]domain.MarketData, error) { return market("MKT-A", 50, 50), nil },
		func() ([]domain.MarketData, error) { return nil, errors.New("gateway timeout") },
	}}
	an := &scriptAnalyzer{script: [][]domain.Opportunity{
		{opp("MKT-A", domain.SideYes, 50)},
		{opp("MKT-B", domain.SideYes, 30)}, // must never be seen: fetch failed
	}}
	r, ledger, _, _ := newTestRunner(t, Config{Interval: time.Second, MaxCycles: 2}, 10000, feed, an)

	require.NoError(t, r.Run(context.Background()))

	// Analyzer ran only on the successful cycle.
	assert.Equal(t, 1, an.calls)
	assert.False(t, ledger.HoldsMarket("MKT-B"))
	// The MKT-A position survived at its last mark; no false stop fired.
	assert.Equal(t, 1, ledger.OpenCount())
}

func TestRunnerSequentialCapitalReservation(t *testing.T) {
	t.Parallel()

	// 1000¢ of cash, two 600¢ opportunities in the same cycle: the first open
	// debits cash before the second is evaluated, so the second is rejected
	// for insufficient capital rather than overdrawing.
	feed := &scriptFeed{script: []func() ([]domain.MarketData, error){
		func() ([]domain.MarketData, error) {
			return append(market("MKT-A", 40, 60), market("MKT-B", 40, 60)...), nil
		},
	}}
	an := &scriptAnalyzer{script: [][]domain.Opportunity{
		{opp("MKT-A", domain.SideYes, 40), opp("MKT-B", domain.SideYes, 40)},
	}}
	r, ledger, _, _ := newTestRunner(t, Config{Interval: time.Second, MaxCycles: 1}, 1000, feed, an)

	require.NoError(t, r.Run(context.Background()))

	assert.Equal(t, 1, ledger.OpenCount())
	assert.True(t, ledger.HoldsMarket("MKT-A"))
	assert.GreaterOrEqual(t, ledger.Cash(), 0.0)

	stats := r.Report()
	assert.Equal(t, 1, stats.Rejections[risk.RejectInsufficientCapital])
}

func TestRunnerAlertsOnOpenAndClose(t *testing.T) {
	t.Parallel()

	// Open at 50¢ in cycle 1; cycle 2 gaps through the stop and closes.
	feed := &scriptFeed{script: []func() ([]domain.MarketData, error){
		func() ([]domain.MarketData, error) { return market("MKT-A", 50, 50), nil },
		func() ([]domain.MarketData, error) { return market("MKT-A", 35, 65), nil },
	}}
	an := &scriptAnalyzer{script: [][]domain.Opportunity{
		{opp("MKT-A", domain.SideYes, 50)},
	}}
	r, _, _, _ := newTestRunner(t, Config{Interval: time.Second, MaxCycles: 2}, 10000, feed, an)
	alerts := &memAlerter{}
	r.alerts = alerts

	require.NoError(t, r.Run(context.Background()))

	require.Equal(t, []string{notify.EventPositionOpened, notify.EventPositionClosed}, alerts.events)
	assert.Contains(t, alerts.messages[0], "MKT-A YES ×12 @ 50¢")
	assert.Contains(t, alerts.messages[1], "stop_loss")
}

func TestRunnerCountsRefusedOpens(t *testing.T) {
	t.Parallel()

	// A price below 1¢ clears every pre-trade check (the evaluator and sizer
	// reason in notional, not price validity) but the ledger refuses it at
	// open. That refusal must land in the rejection histogram, not vanish.
	feed := &scriptFeed{script: []func() ([]domain.MarketData, error){
		func() ([]domain.MarketData, error) { return market("MKT-A", 40, 60), nil },
	}}
	an := &scriptAnalyzer{script: [][]domain.Opportunity{
		{opp("MKT-A", domain.SideYes, 0.5)},
	}}
	r, ledger, _, _ := newTestRunner(t, Config{Interval: time.Second, MaxCycles: 1}, 10000, feed, an)

	require.NoError(t, r.Run(context.Background()))

	assert.Equal(t, 0, ledger.OpenCount())
	stats := r.Report()
	assert.Equal(t, 1, stats.Opportunities)
	assert.Equal(t, 1, stats.Evaluated)
	assert.Equal(t, 0, stats.Executed)
	assert.Equal(t, 1, stats.Rejections[risk.RejectOpenFailed])
}

func TestRunnerDuplicateMarketRejected(t *testing.T) {
	t.Parallel()

	feed := &scriptFeed{script: []func() ([]domain.MarketData, error){
		func() ([]domain.MarketData, error) { return market("MKT-A", 40, 60), nil },
	}}
	an := &scriptAnalyzer{script: [][]domain.Opportunity{
		{opp("MKT-A", domain.SideYes, 40)},
		{opp("MKT-A", domain.SideYes, 40)},
	}}
	r, ledger, _, _ := newTestRunner(t, Config{Interval: time.Second, MaxCycles: 2}, 10000, feed, an)

	require.NoError(t, r.Run(context.Background()))

	assert.Equal(t, 1, ledger.OpenCount())
	stats := r.Report()
	assert.Equal(t, 1, stats.Rejections[risk.RejectMarketAlreadyHeld])
}

func TestRunnerSnapshotCadence(t *testing.T) {
	t.Parallel()

	feed := &scriptFeed{script: []func() ([]domain.MarketData, error){
		func() ([]domain.MarketData, error) { return market("MKT-A", 40, 60), nil },
	}}
	r, _, _, snaps := newTestRunner(t, Config{Interval: time.Second, MaxCycles: 6, SnapshotEvery: 2}, 10000, feed)

	require.NoError(t, r.Run(context.Background()))
	assert.Len(t, snaps.appended, 3)
}

func TestRunnerDurationBound(t *testing.T) {
	t.Parallel()

	feed := &scriptFeed{script: []func() ([]domain.MarketData, error){
		func() ([]domain.MarketData, error) { return market("MKT-A", 40, 60), nil },
	}}
	// 1s interval on the fake clock: the 3.5s bound stops after 4 cycles.
	r, _, _, _ := newTestRunner(t, Config{Interval: time.Second, MaxDuration: 3500 * time.Millisecond}, 10000, feed)

	require.NoError(t, r.Run(context.Background()))
	assert.Equal(t, 4, feed.calls)
	assert.Equal(t, StateStopped, r.State())
}

func TestRunnerContextCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	feed := &scriptFeed{script: []func() ([]domain.MarketData, error){
		func() ([]domain.MarketData, error) {
			cancel() // cancel mid-run; the loop must exit cleanly
			return market("MKT-A", 40, 60), nil
		},
	}}
	r, _, _, _ := newTestRunner(t, Config{Interval: time.Second}, 10000, feed)

	require.NoError(t, r.Run(ctx))
	assert.Equal(t, StateStopped, r.State())
	assert.Equal(t, 1, feed.calls)
}
