// Package sim drives the paper-trading loop: fetch markets, mark the book,
// sweep stops and targets, run analyzers, and route accepted opportunities
// through the ledger. All portfolio mutations happen on this single
// goroutine.
package sim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/kalshibot/internal/domain"
	"github.com/alanyoungcy/kalshibot/internal/notify"
	"github.com/alanyoungcy/kalshibot/internal/perf"
	"github.com/alanyoungcy/kalshibot/internal/portfolio"
	"github.com/alanyoungcy/kalshibot/internal/risk"
)

// Alerter pushes trade lifecycle events to the operator. *notify.Notifier
// satisfies it; a nil alerter disables alerts without affecting the run.
type Alerter interface {
	Notify(ctx context.Context, event, title, message string) error
}

// State is the runner lifecycle. A runner runs at most once.
type State string

const (
	StateInitialized State = "initialized"
	StateRunning     State = "running"
	StateStopped     State = "stopped"
)

// Config bounds the run. Zero MaxCycles and zero MaxDuration mean the run
// continues until the context is cancelled.
type Config struct {
	Interval      time.Duration
	MaxCycles     int
	MaxDuration   time.Duration
	SnapshotEvery int // cycles between snapshots, default 1
}

// Validate reports config values the runner cannot operate with.
func (c Config) Validate() error {
	if c.Interval <= 0 {
		return fmt.Errorf("sim: interval must be > 0, got %s", c.Interval)
	}
	if c.MaxCycles < 0 || c.MaxDuration < 0 || c.SnapshotEvery < 0 {
		return errors.New("sim: cycle, duration and snapshot bounds must not be negative")
	}
	return nil
}

// Runner owns one simulation run. Construct with NewRunner, start with Run.
type Runner struct {
	cfg       Config
	runID     string
	feed      domain.MarketFeed
	analyzers []domain.Analyzer
	ledger    *portfolio.Ledger
	eval      *risk.Evaluator
	sizer     *risk.Sizer
	stops     *risk.StopTargetMonitor
	tracker   *perf.Tracker
	journal   domain.PositionJournal // optional
	snapStore domain.SnapshotStore   // optional
	alerts    Alerter                // optional
	clock     Clock
	logger    *slog.Logger

	state      State
	lastPrices map[string]domain.MarketPrices
}

// Deps carries the runner's collaborators. Journal, SnapshotStore and Alerts
// are optional; leaving one nil disables that side channel without affecting
// the run.
type Deps struct {
	Feed      domain.MarketFeed
	Analyzers []domain.Analyzer
	Ledger    *portfolio.Ledger
	Evaluator *risk.Evaluator
	Sizer     *risk.Sizer
	Stops     *risk.StopTargetMonitor
	Tracker   *perf.Tracker
	Journal   domain.PositionJournal
	Snapshots domain.SnapshotStore
	Alerts    Alerter
	Clock     Clock
}

// NewRunner validates the config and wires a runner in the Initialized state.
func NewRunner(cfg Config, deps Deps, logger *slog.Logger) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Feed == nil || deps.Ledger == nil || deps.Evaluator == nil ||
		deps.Sizer == nil || deps.Stops == nil || deps.Tracker == nil {
		return nil, errors.New("sim: feed, ledger, evaluator, sizer, stops and tracker are required")
	}
	if cfg.SnapshotEvery == 0 {
		cfg.SnapshotEvery = 1
	}
	clock := deps.Clock
	if clock == nil {
		clock = RealClock()
	}
	return &Runner{
		cfg:        cfg,
		runID:      uuid.NewString(),
		feed:       deps.Feed,
		analyzers:  deps.Analyzers,
		ledger:     deps.Ledger,
		eval:       deps.Evaluator,
		sizer:      deps.Sizer,
		stops:      deps.Stops,
		tracker:    deps.Tracker,
		journal:    deps.Journal,
		snapStore:  deps.Snapshots,
		alerts:     deps.Alerts,
		clock:      clock,
		logger:     logger.With(slog.String("component", "runner")),
		state:      StateInitialized,
		lastPrices: make(map[string]domain.MarketPrices),
	}, nil
}

// RunID returns the unique id assigned to this run.
func (r *Runner) RunID() string { return r.runID }

// State returns the current lifecycle state.
func (r *Runner) State() State { return r.state }

// Run executes cycles until a bound is hit or ctx is cancelled, then moves to
// Stopped. Context cancellation is a normal termination, not an error; only
// an invariant violation aborts with one.
func (r *Runner) Run(ctx context.Context) error {
	if r.state != StateInitialized {
		return fmt.Errorf("sim: run already started (state %s)", r.state)
	}
	r.state = StateRunning
	defer func() { r.state = StateStopped }()

	start := r.clock.Now()
	r.logger.Info("run started",
		slog.String("run_id", r.runID),
		slog.Int("max_cycles", r.cfg.MaxCycles),
		slog.Duration("max_duration", r.cfg.MaxDuration),
	)

	for cycle := 1; ; cycle++ {
		if r.cfg.MaxCycles > 0 && cycle > r.cfg.MaxCycles {
			r.logger.Info("cycle bound reached", slog.Int("cycles", cycle-1))
			return nil
		}
		if r.cfg.MaxDuration > 0 && r.clock.Now().Sub(start) >= r.cfg.MaxDuration {
			r.logger.Info("duration bound reached", slog.Duration("elapsed", r.clock.Now().Sub(start)))
			return nil
		}
		if ctx.Err() != nil {
			r.logger.Info("run cancelled", slog.Int("cycles", cycle-1))
			return nil
		}

		if err := r.runCycle(ctx, cycle); err != nil {
			return err
		}
		if cycle%r.cfg.SnapshotEvery == 0 {
			r.takeSnapshot(ctx)
		}

		if err := r.clock.Sleep(ctx, r.cfg.Interval); err != nil {
			r.logger.Info("run cancelled", slog.Int("cycles", cycle))
			return nil
		}
	}
}

// Report computes the end-of-run statistics from the current ledger state.
func (r *Runner) Report() perf.Stats {
	return r.tracker.Stats(r.ledger.ClosedPositions(), r.ledger.Summary().TotalValue)
}

// runCycle executes one cycle in fixed order: fetch, mark, sweep stops,
// analyze, trade. A failed fetch skips new trading but the stop sweep still
// runs on the last known marks, so protective exits are never starved by a
// flaky feed.
func (r *Runner) runCycle(ctx context.Context, cycle int) error {
	markets, err := r.feed.Fetch(ctx)
	if err != nil {
		r.logger.Warn("market fetch failed, skipping trading this cycle",
			slog.Int("cycle", cycle), slog.Any("error", err))
		markets = nil
	} else {
		prices := make(map[string]domain.MarketPrices, len(markets))
		for _, m := range markets {
			if m.Book.Valid() {
				prices[m.Market.Ticker] = m.Book
			}
		}
		r.lastPrices = prices
	}

	r.ledger.MarkToMarket(r.lastPrices)

	closed, err := r.stops.Check(r.ledger, r.lastPrices)
	if err != nil {
		return fmt.Errorf("sim: cycle %d stop sweep: %w", cycle, err)
	}
	for _, p := range closed {
		r.recordClose(ctx, p)
	}

	if markets == nil {
		return nil
	}

	for _, a := range r.analyzers {
		opps, err := a.Analyze(ctx, markets)
		if err != nil {
			r.logger.Warn("analyzer failed",
				slog.String("analyzer", a.Name()), slog.Any("error", err))
			continue
		}
		r.tracker.ObserveOpportunities(len(opps))
		for _, opp := range opps {
			if err := r.processOpportunity(ctx, opp); err != nil {
				return err
			}
		}
	}
	return nil
}

// processOpportunity evaluates, sizes and opens one opportunity. Capital is
// reserved sequentially: each open debits the ledger before the next
// opportunity is evaluated, so two accepts can never share the same cash.
func (r *Runner) processOpportunity(ctx context.Context, opp domain.Opportunity) error {
	ok, reason := r.eval.Evaluate(opp, r.ledger)
	var quantity int
	if ok {
		notional := r.sizer.Size(opp, r.ledger.Cash())
		quantity = r.sizer.Quantity(notional, opp.Price)
		if quantity == 0 {
			ok, reason = false, risk.RejectZeroSize
		}
	}
	if !ok {
		r.tracker.ObserveDecision(reason)
		r.logger.Debug("opportunity rejected",
			slog.String("market", opp.MarketID),
			slog.String("reason", string(reason)),
		)
		return nil
	}

	p, err := r.ledger.Open(opp, opp.Side, quantity, opp.Price)
	if err != nil {
		if errors.Is(err, domain.ErrInvariantViolation) {
			return err
		}
		// A ledger refusal after acceptance still resolves the opportunity;
		// it lands in the rejection histogram like any other outcome.
		reason = risk.RejectOpenFailed
		if errors.Is(err, domain.ErrInsufficientCapital) {
			reason = risk.RejectInsufficientCapital
		}
		r.tracker.ObserveDecision(reason)
		r.logger.Warn("open failed",
			slog.String("market", opp.MarketID),
			slog.String("reason", string(reason)),
			slog.Any("error", err),
		)
		return nil
	}
	r.tracker.ObserveDecision(risk.RejectNone)
	r.tracker.ObserveExecuted()

	if r.journal != nil {
		if err := r.journal.RecordOpen(ctx, p); err != nil {
			r.logger.Warn("journal open failed", slog.String("position_id", p.ID), slog.Any("error", err))
		}
	}
	r.alert(ctx, notify.EventPositionOpened, "Position opened", formatOpenAlert(p))
	return nil
}

func (r *Runner) recordClose(ctx context.Context, p domain.Position) {
	if r.journal != nil {
		if err := r.journal.RecordClose(ctx, p); err != nil {
			r.logger.Warn("journal close failed", slog.String("position_id", p.ID), slog.Any("error", err))
		}
	}
	r.alert(ctx, notify.EventPositionClosed, "Position closed", formatCloseAlert(p))
}

// alert delivers best-effort: a failed or filtered alert never disturbs the
// trading loop.
func (r *Runner) alert(ctx context.Context, event, title, message string) {
	if r.alerts == nil {
		return
	}
	if err := r.alerts.Notify(ctx, event, title, message); err != nil {
		r.logger.Warn("alert failed", slog.String("event", event), slog.Any("error", err))
	}
}

func formatOpenAlert(p domain.Position) string {
	return fmt.Sprintf("%s %s ×%d @ %.0f¢ (%s)",
		p.MarketID, strings.ToUpper(string(p.Side)), p.Quantity, p.EntryPrice, p.Source)
}

func formatCloseAlert(p domain.Position) string {
	return fmt.Sprintf("%s %s ×%d @ %.0f¢ → %.0f¢ (%s, pnl %+.0f¢)",
		p.MarketID, strings.ToUpper(string(p.Side)), p.Quantity,
		p.EntryPrice, p.ExitPrice, p.CloseReason, p.RealizedPnL)
}

func (r *Runner) takeSnapshot(ctx context.Context) {
	s := r.tracker.Snapshot(r.clock.Now(), r.ledger.Summary())
	if r.snapStore != nil {
		if err := r.snapStore.Append(ctx, r.runID, s); err != nil {
			r.logger.Warn("snapshot persist failed", slog.Any("error", err))
		}
	}
	r.logger.Debug("snapshot",
		slog.Float64("total_value", s.TotalValue),
		slog.Float64("drawdown", s.Drawdown),
		slog.Int("open_positions", s.OpenPositions),
	)
}
