package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/kalshibot/internal/analyzer"
	"github.com/alanyoungcy/kalshibot/internal/domain"
	"github.com/alanyoungcy/kalshibot/internal/feed"
	"github.com/alanyoungcy/kalshibot/internal/notify"
	"github.com/alanyoungcy/kalshibot/internal/perf"
	"github.com/alanyoungcy/kalshibot/internal/platform/kalshi"
	"github.com/alanyoungcy/kalshibot/internal/portfolio"
	"github.com/alanyoungcy/kalshibot/internal/quoter"
	"github.com/alanyoungcy/kalshibot/internal/risk"
	"github.com/alanyoungcy/kalshibot/internal/sim"
)

// SimulateMode runs the paper-trading loop: fetch markets, analyze, evaluate,
// and track positions against simulated capital. The final report is logged
// and sent through the notifier when the run ends.
func (a *App) SimulateMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting simulate mode",
		slog.Float64("initial_capital", a.cfg.Sim.InitialCapital),
		slog.Duration("interval", a.cfg.Sim.Interval.Duration),
	)

	riskCfg := a.riskConfig()
	if err := riskCfg.Validate(); err != nil {
		return fmt.Errorf("simulate mode: %w", err)
	}

	ledger, err := portfolio.NewLedger(a.cfg.Sim.InitialCapital, a.logger)
	if err != nil {
		return fmt.Errorf("simulate mode: %w", err)
	}

	sizer := risk.NewSizer(riskCfg)
	evaluator := risk.NewEvaluator(riskCfg, sizer)
	stops := risk.NewStopTargetMonitor(riskCfg, a.logger)
	tracker := perf.NewTracker(a.cfg.Sim.InitialCapital)

	var analyzers []domain.Analyzer
	if a.cfg.Sim.Analyzers.Spread {
		analyzers = append(analyzers, analyzer.NewSpread(analyzer.DefaultSpreadConfig(), a.logger))
	}
	if a.cfg.Sim.Analyzers.Mispricing {
		analyzers = append(analyzers, analyzer.NewMispricing(analyzer.DefaultMispricingConfig(), a.logger))
	}
	if len(analyzers) == 0 {
		a.logger.WarnContext(ctx, "no analyzers enabled, run will only sweep stops")
	}

	marketFeed := kalshi.NewFeed(kalshi.FeedConfig{
		SeriesTicker: a.cfg.Kalshi.SeriesTicker,
		PageLimit:    a.cfg.Kalshi.PageLimit,
		MaxMarkets:   a.cfg.Kalshi.MaxMarkets,
		MinVolume:    a.cfg.Kalshi.MinVolume,
	}, deps.Kalshi, a.logger)

	runner, err := sim.NewRunner(sim.Config{
		Interval:      a.cfg.Sim.Interval.Duration,
		MaxCycles:     a.cfg.Sim.MaxCycles,
		MaxDuration:   a.cfg.Sim.MaxDuration.Duration,
		SnapshotEvery: a.cfg.Sim.SnapshotEvery,
	}, sim.Deps{
		Feed:      marketFeed,
		Analyzers: analyzers,
		Ledger:    ledger,
		Evaluator: evaluator,
		Sizer:     sizer,
		Stops:     stops,
		Tracker:   tracker,
		Journal:   deps.Journal,
		Snapshots: deps.Snapshots,
		Alerts:    deps.Notifier,
	}, a.logger)
	if err != nil {
		return fmt.Errorf("simulate mode: %w", err)
	}

	runErr := runner.Run(ctx)

	stats := runner.Report()
	a.logger.Info("run complete",
		slog.Int("opportunities", stats.Opportunities),
		slog.Int("executed", stats.Executed),
		slog.Int("closed_trades", stats.ClosedTrades),
		slog.Float64("realized_pnl", stats.RealizedPnL),
		slog.Float64("return_percent", stats.ReturnPercent),
		slog.Float64("max_drawdown", stats.MaxDrawdown),
	)

	// Notification failures never fail the run; the stats are already logged.
	notifyCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := deps.Notifier.Notify(notifyCtx, notify.EventRunSummary,
		"Run complete", formatRunSummary(stats)); err != nil {
		a.logger.Warn("run summary notification failed", slog.Any("error", err))
	}

	return runErr
}

// QuoteMode runs the inventory market maker: the WebSocket feed keeps the
// book cache fresh and streams fills, while the quoter rests two-sided quotes
// in the configured markets.
func (a *App) QuoteMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting quote mode",
		slog.Int("markets", len(a.cfg.Quoter.Markets)),
		slog.Duration("requote_interval", a.cfg.Quoter.RequoteInterval.Duration),
	)

	var orders domain.OrderSink = kalshi.NewSink(deps.Kalshi, a.logger)
	if a.cfg.Quoter.RateLimit > 0 {
		orders = &pacedSink{
			inner:   orders,
			limiter: deps.RateLimiter,
			limit:   a.cfg.Quoter.RateLimit,
		}
	}

	q, err := quoter.New(quoter.Config{
		Markets:          a.cfg.Quoter.Markets,
		BaseSpread:       a.cfg.Quoter.BaseSpread,
		QuoteSize:        a.cfg.Quoter.QuoteSize,
		RequoteInterval:  a.cfg.Quoter.RequoteInterval.Duration,
		SkewThreshold:    a.cfg.Quoter.SkewThreshold,
		SpreadWidening:   a.cfg.Quoter.SpreadWidening,
		MaxPosition:      a.cfg.Quoter.MaxPosition,
		MaxInventorySkew: a.cfg.Quoter.MaxInventorySkew,
		StaleAfter:       a.cfg.Quoter.StaleAfter.Duration,
	}, deps.BookCache, orders, a.logger)
	if err != nil {
		return fmt.Errorf("quote mode: %w", err)
	}
	q.WithAlerter(deps.Notifier)

	bridge := feed.NewBridge(deps.BookCache, a.logger)

	ws := kalshi.NewWSClient(a.cfg.Kalshi.WsURL, a.logger)
	bridge.Attach(ws)
	if err := ws.Connect(ctx); err != nil {
		return fmt.Errorf("quote mode: %w", err)
	}
	defer func() { _ = ws.Close() }()

	if err := ws.Subscribe(ctx, a.cfg.Quoter.Markets); err != nil {
		return fmt.Errorf("quote mode: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return q.Run(ctx, bridge.Fills())
	})

	err = g.Wait()
	if err != nil && ctx.Err() == nil {
		notifyCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = deps.Notifier.Notify(notifyCtx, notify.EventError,
			"Quoter stopped", fmt.Sprintf("quote loop exited: %v", err))
	}
	return err
}

// riskConfig maps the TOML risk section onto the decision pipeline's config.
// The string fields were validated at startup; unknown values cannot reach
// here.
func (a *App) riskConfig() risk.Config {
	return risk.Config{
		MaxPositionSize:   a.cfg.Risk.MaxPositionSize,
		MaxPortfolioRisk:  a.cfg.Risk.MaxPortfolioRisk,
		MinConfidence:     parseConfidence(a.cfg.Risk.MinConfidence),
		MinStrength:       parseStrength(a.cfg.Risk.MinStrength),
		MinEdgeCents:      a.cfg.Risk.MinEdgeCents,
		MinEdgePercent:    a.cfg.Risk.MinEdgePercent,
		StopLossPercent:   a.cfg.Risk.StopLossPercent,
		TakeProfitPercent: a.cfg.Risk.TakeProfitPercent,
		MaxPositions:      a.cfg.Risk.MaxPositions,
		SizingMethod:      risk.SizingMethod(strings.ToLower(a.cfg.Risk.SizingMethod)),
		BasePositionSize:  a.cfg.Risk.BasePositionSize,
		Multipliers: risk.ConfidenceMultipliers{
			Low:    a.cfg.Risk.Multipliers.Low,
			Medium: a.cfg.Risk.Multipliers.Medium,
			High:   a.cfg.Risk.Multipliers.High,
		},
	}
}

func parseConfidence(s string) domain.Confidence {
	switch strings.ToLower(s) {
	case "high":
		return domain.ConfidenceHigh
	case "medium":
		return domain.ConfidenceMedium
	default:
		return domain.ConfidenceLow
	}
}

func parseStrength(s string) domain.Strength {
	if strings.ToLower(s) == "hard" {
		return domain.StrengthHard
	}
	return domain.StrengthSoft
}

func formatRunSummary(s perf.Stats) string {
	return fmt.Sprintf(
		"opportunities: %d\nexecuted: %d (%.1f%% conversion)\nclosed trades: %d (%d W / %d L)\nrealized pnl: %.0f¢\nreturn: %.2f%%\nmax drawdown: %.2f%%\nfinal value: %.0f¢",
		s.Opportunities,
		s.Executed, s.ConversionRate*100,
		s.ClosedTrades, s.Wins, s.Losses,
		s.RealizedPnL,
		s.ReturnPercent,
		s.MaxDrawdown*100,
		s.FinalValue,
	)
}

// pacedSink wraps an OrderSink with the shared rate limiter so a requote storm
// across instances cannot trip the exchange's order limits.
type pacedSink struct {
	inner   domain.OrderSink
	limiter interface {
		Wait(ctx context.Context, key string, limit int, window time.Duration) error
	}
	limit int
}

const orderRateKey = "kalshi:orders"

func (p *pacedSink) PlaceQuote(ctx context.Context, q domain.Quote) (string, string, error) {
	// A quote is two orders.
	for i := 0; i < 2; i++ {
		if err := p.limiter.Wait(ctx, orderRateKey, p.limit, time.Second); err != nil {
			return "", "", fmt.Errorf("app: order pacing: %w", err)
		}
	}
	return p.inner.PlaceQuote(ctx, q)
}

func (p *pacedSink) CancelOrder(ctx context.Context, orderID string) error {
	if err := p.limiter.Wait(ctx, orderRateKey, p.limit, time.Second); err != nil {
		return fmt.Errorf("app: order pacing: %w", err)
	}
	return p.inner.CancelOrder(ctx, orderID)
}
