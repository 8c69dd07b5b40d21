// Package risk implements the pre-trade decision pipeline: the evaluator that
// accepts or rejects opportunities, the position sizer, and the stop-loss /
// take-profit monitor. Rejections are enumerated decisions, not errors; the
// performance tracker counts them per reason.
package risk

import (
	"fmt"

	"github.com/alanyoungcy/kalshibot/internal/domain"
)

// SizingMethod selects the position sizing policy.
type SizingMethod string

const (
	SizingFixed            SizingMethod = "fixed"
	SizingConfidenceScaled SizingMethod = "confidence_scaled"
	SizingKelly            SizingMethod = "kelly"
)

// ConfidenceMultipliers scales the base notional per confidence level for the
// confidence_scaled policy.
type ConfidenceMultipliers struct {
	Low    float64
	Medium float64
	High   float64
}

// Config holds the tunable parameters for the decision pipeline. Validate
// runs at construction; an invalid config is fatal and the run never starts.
type Config struct {
	MaxPositionSize   float64 // cents per position
	MaxPortfolioRisk  float64 // Kelly fraction cap, 0..1
	MinConfidence     domain.Confidence
	MinStrength       domain.Strength
	MinEdgeCents      float64
	MinEdgePercent    float64
	StopLossPercent   float64
	TakeProfitPercent float64
	MaxPositions      int
	SizingMethod      SizingMethod
	BasePositionSize  float64 // cents
	Multipliers       ConfidenceMultipliers
}

// Validate checks the config for values that would make the pipeline
// nonsensical.
func (c Config) Validate() error {
	switch c.SizingMethod {
	case SizingFixed, SizingConfidenceScaled, SizingKelly:
	default:
		return fmt.Errorf("risk: unknown sizing method %q (valid: fixed, confidence_scaled, kelly)", c.SizingMethod)
	}
	if c.MaxPositionSize <= 0 {
		return fmt.Errorf("risk: max_position_size must be > 0, got %.2f", c.MaxPositionSize)
	}
	if c.BasePositionSize <= 0 {
		return fmt.Errorf("risk: base_position_size must be > 0, got %.2f", c.BasePositionSize)
	}
	if c.MaxPortfolioRisk <= 0 || c.MaxPortfolioRisk > 1 {
		return fmt.Errorf("risk: max_portfolio_risk must be in (0, 1], got %.2f", c.MaxPortfolioRisk)
	}
	if c.StopLossPercent <= 0 {
		return fmt.Errorf("risk: stop_loss_percent must be > 0, got %.2f", c.StopLossPercent)
	}
	if c.TakeProfitPercent <= 0 {
		return fmt.Errorf("risk: take_profit_percent must be > 0, got %.2f", c.TakeProfitPercent)
	}
	if c.MaxPositions < 1 {
		return fmt.Errorf("risk: max_positions must be >= 1, got %d", c.MaxPositions)
	}
	return nil
}

// RejectReason enumerates why an opportunity was not traded.
type RejectReason string

const (
	RejectNone                RejectReason = ""
	RejectConfidenceTooLow    RejectReason = "confidence_too_low"
	RejectStrengthTooLow      RejectReason = "strength_too_low"
	RejectEdgeTooSmall        RejectReason = "edge_too_small"
	RejectMaxPositionsReached RejectReason = "max_positions_reached"
	RejectInsufficientCapital RejectReason = "insufficient_capital"
	RejectSizeExceedsLimit    RejectReason = "size_exceeds_limit"
	RejectMarketAlreadyHeld   RejectReason = "market_already_held"
	RejectZeroSize            RejectReason = "zero_size"
	// RejectOpenFailed is recorded by the run loop, not the evaluator: the
	// ledger refused an already-accepted opportunity at open time.
	RejectOpenFailed RejectReason = "open_failed"
)

// Portfolio is the read-only view of ledger state the evaluator needs.
type Portfolio interface {
	Cash() float64
	OpenCount() int
	HoldsMarket(marketID string) bool
}

// Evaluator accepts or rejects opportunities against the configured
// thresholds and current portfolio state. It is a pure function of its
// inputs: no side effects, no mutation.
type Evaluator struct {
	cfg   Config
	sizer *Sizer
}

// NewEvaluator creates an Evaluator sharing the given sizer, so the capital
// check uses the exact notional the sizer would produce.
func NewEvaluator(cfg Config, sizer *Sizer) *Evaluator {
	return &Evaluator{cfg: cfg, sizer: sizer}
}

// Evaluate runs the checks in order, short-circuiting on the first failure.
// The returned reason is RejectNone when accepted.
func (e *Evaluator) Evaluate(opp domain.Opportunity, pf Portfolio) (bool, RejectReason) {
	if opp.Confidence < e.cfg.MinConfidence {
		return false, RejectConfidenceTooLow
	}
	if opp.Strength < e.cfg.MinStrength {
		return false, RejectStrengthTooLow
	}
	if opp.EdgeCents < e.cfg.MinEdgeCents || opp.EdgePercent < e.cfg.MinEdgePercent {
		return false, RejectEdgeTooSmall
	}
	if pf.OpenCount() >= e.cfg.MaxPositions {
		return false, RejectMaxPositionsReached
	}

	// The capital and limit checks use the notional the sizer would actually
	// produce, not a fixed probe amount, so a false accept cannot slip
	// through when the policy sizes larger than the probe.
	notional := e.sizer.Notional(opp, pf.Cash())
	if notional <= 0 {
		return false, RejectZeroSize
	}
	if notional > pf.Cash() {
		return false, RejectInsufficientCapital
	}
	if notional > e.cfg.MaxPositionSize {
		return false, RejectSizeExceedsLimit
	}

	if pf.HoldsMarket(opp.MarketID) {
		return false, RejectMarketAlreadyHeld
	}

	return true, RejectNone
}
