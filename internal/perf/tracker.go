// Package perf tracks run performance: the portfolio snapshot series with
// peak and drawdown, closed-trade statistics, and the funnel from analyzer
// opportunities to executed trades.
package perf

import (
	"math"
	"time"

	"github.com/alanyoungcy/kalshibot/internal/domain"
	"github.com/alanyoungcy/kalshibot/internal/portfolio"
	"github.com/alanyoungcy/kalshibot/internal/risk"
)

// Stats is the end-of-run report. ProfitFactor is +Inf when there are wins
// and no losses, and zero when there are no wins.
type Stats struct {
	Opportunities  int
	Evaluated      int
	Executed       int
	ConversionRate float64 // executed / evaluated, 0 when nothing evaluated

	ClosedTrades int
	Wins         int
	Losses       int
	WinRate      float64
	AvgWin       float64
	AvgLoss      float64 // negative or zero
	ProfitFactor float64

	RealizedPnL   float64
	PeakValue     float64
	MaxDrawdown   float64
	FinalValue    float64
	ReturnPercent float64

	Rejections map[risk.RejectReason]int
}

// Tracker accumulates snapshots and decision outcomes over a run. It is not
// safe for concurrent use; the simulation runner owns it.
type Tracker struct {
	initial   float64
	peak      float64
	maxDD     float64
	snapshots []domain.Snapshot

	opportunities int
	evaluated     int
	executed      int
	rejections    map[risk.RejectReason]int
}

// NewTracker creates a Tracker anchored at the run's initial capital. Peak
// starts there, so a run that only loses still reports a meaningful drawdown.
func NewTracker(initialCapital float64) *Tracker {
	return &Tracker{
		initial:    initialCapital,
		peak:       initialCapital,
		rejections: make(map[risk.RejectReason]int),
	}
}

// ObserveOpportunities counts raw analyzer output before any filtering.
func (t *Tracker) ObserveOpportunities(n int) {
	t.opportunities += n
}

// ObserveDecision records the final outcome for one opportunity, exactly once:
// the evaluator's rejection, a post-accept failure (zero quantity, ledger
// refusal), or RejectNone for an opportunity that went on to open.
func (t *Tracker) ObserveDecision(reason risk.RejectReason) {
	t.evaluated++
	if reason != risk.RejectNone {
		t.rejections[reason]++
	}
}

// ObserveExecuted records one executed trade.
func (t *Tracker) ObserveExecuted() {
	t.executed++
}

// Snapshot appends a point-in-time record built from the ledger summary,
// updating the running peak and max drawdown. The returned snapshot carries
// the peak and drawdown as of this observation.
func (t *Tracker) Snapshot(ts time.Time, sum portfolio.Summary) domain.Snapshot {
	total := sum.TotalValue
	if total > t.peak {
		t.peak = total
	}
	dd := 0.0
	if t.peak > 0 {
		dd = (t.peak - total) / t.peak
	}
	if dd < 0 {
		dd = 0
	}
	if dd > t.maxDD {
		t.maxDD = dd
	}

	s := domain.Snapshot{
		Timestamp:     ts,
		Cash:          sum.Cash,
		RealizedPnL:   sum.RealizedPnL,
		UnrealizedPnL: sum.UnrealizedPnL,
		TotalValue:    total,
		OpenPositions: sum.OpenCount,
		Peak:          t.peak,
		Drawdown:      dd,
	}
	t.snapshots = append(t.snapshots, s)
	return s
}

// Snapshots returns the snapshot series in observation order.
func (t *Tracker) Snapshots() []domain.Snapshot {
	out := make([]domain.Snapshot, len(t.snapshots))
	copy(out, t.snapshots)
	return out
}

// Stats computes the end-of-run report from the closed-trade history and the
// accumulated counters. It does not mutate the tracker.
func (t *Tracker) Stats(closed []domain.Position, finalValue float64) Stats {
	s := Stats{
		Opportunities: t.opportunities,
		Evaluated:     t.evaluated,
		Executed:      t.executed,
		ClosedTrades:  len(closed),
		PeakValue:     t.peak,
		MaxDrawdown:   t.maxDD,
		FinalValue:    finalValue,
		Rejections:    make(map[risk.RejectReason]int, len(t.rejections)),
	}
	for reason, n := range t.rejections {
		s.Rejections[reason] = n
	}
	if t.evaluated > 0 {
		s.ConversionRate = float64(t.executed) / float64(t.evaluated)
	}
	if t.initial > 0 {
		s.ReturnPercent = (finalValue - t.initial) / t.initial * 100
	}

	var grossWin, grossLoss float64
	for _, p := range closed {
		s.RealizedPnL += p.RealizedPnL
		switch {
		case p.RealizedPnL > 0:
			s.Wins++
			grossWin += p.RealizedPnL
		case p.RealizedPnL < 0:
			s.Losses++
			grossLoss += -p.RealizedPnL
		}
	}
	if s.ClosedTrades > 0 {
		s.WinRate = float64(s.Wins) / float64(s.ClosedTrades)
	}
	if s.Wins > 0 {
		s.AvgWin = grossWin / float64(s.Wins)
	}
	if s.Losses > 0 {
		s.AvgLoss = -grossLoss / float64(s.Losses)
	}
	switch {
	case grossLoss > 0:
		s.ProfitFactor = grossWin / grossLoss
	case grossWin > 0:
		s.ProfitFactor = math.Inf(1)
	}
	return s
}
