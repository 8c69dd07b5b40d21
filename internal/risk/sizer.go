package risk

import (
	"math"

	"github.com/alanyoungcy/kalshibot/internal/domain"
)

// Sizer computes position notionals in cents from the configured policy.
// It is stateless; the same inputs always produce the same output.
type Sizer struct {
	cfg Config
}

// NewSizer creates a Sizer for the given config.
func NewSizer(cfg Config) *Sizer {
	return &Sizer{cfg: cfg}
}

// Notional returns the raw policy output before any capital or per-position
// limit is applied. The evaluator checks this value against cash and the max
// position size; callers bypassing the evaluator must use Size instead.
func (s *Sizer) Notional(opp domain.Opportunity, cash float64) float64 {
	switch s.cfg.SizingMethod {
	case SizingConfidenceScaled:
		return s.cfg.BasePositionSize * s.multiplier(opp.Confidence)
	case SizingKelly:
		return s.kelly(opp, cash)
	default:
		return s.cfg.BasePositionSize
	}
}

// Size returns the final tradable notional: the policy output clamped to the
// configured max position size and to available cash, floored at zero. A zero
// result means the opportunity cannot be sized and must not be traded.
func (s *Sizer) Size(opp domain.Opportunity, cash float64) float64 {
	n := s.Notional(opp, cash)
	n = math.Min(n, s.cfg.MaxPositionSize)
	n = math.Min(n, cash)
	return math.Max(n, 0)
}

// Quantity converts a notional into whole contracts at the given price.
// Fractional contracts are floored away; a result of zero means the notional
// cannot buy a single contract.
func (s *Sizer) Quantity(notional, price float64) int {
	if price <= 0 {
		return 0
	}
	return int(math.Floor(notional / price))
}

func (s *Sizer) multiplier(c domain.Confidence) float64 {
	switch c {
	case domain.ConfidenceHigh:
		return s.cfg.Multipliers.High
	case domain.ConfidenceMedium:
		return s.cfg.Multipliers.Medium
	default:
		return s.cfg.Multipliers.Low
	}
}

// kelly sizes by the Kelly criterion on a binary contract: a contract bought
// at p cents pays 100 on a win, so the payout ratio is (100−p)/p. The edge
// percentage stands in for the bettor's advantage, and the resulting fraction
// is capped at MaxPortfolioRisk before being applied to cash.
func (s *Sizer) kelly(opp domain.Opportunity, cash float64) float64 {
	if opp.Price <= 0 || opp.Price >= 100 {
		return 0
	}
	payoutRatio := (100 - opp.Price) / opp.Price
	advantage := opp.EdgePercent / 100
	if advantage <= 0 {
		return 0
	}
	fraction := advantage / payoutRatio
	fraction = math.Min(fraction, s.cfg.MaxPortfolioRisk)
	fraction = math.Max(fraction, 0)
	return fraction * cash
}
