// Package analyzer contains the opportunity scanners run each simulation
// cycle. Each scanner is stateless: it maps the cycle's market universe to
// scored opportunities and knows nothing about the portfolio.
package analyzer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/kalshibot/internal/domain"
)

// SpreadConfig sets the spread thresholds in cents. A market qualifies as a
// hard signal at HardMin and as a soft signal at SoftMin; the wide and very
// wide levels raise confidence within each tier.
type SpreadConfig struct {
	HardMin      float64
	HardWide     float64
	HardVeryWide float64
	SoftMin      float64
	SoftWide     float64
	SoftVeryWide float64
	MinVolume    int64
}

// DefaultSpreadConfig returns the stock thresholds.
func DefaultSpreadConfig() SpreadConfig {
	return SpreadConfig{
		HardMin:      10,
		HardWide:     20,
		HardVeryWide: 30,
		SoftMin:      5,
		SoftWide:     10,
		SoftVeryWide: 15,
	}
}

// Spread flags markets whose bid-ask spread is wide enough that providing
// liquidity near the mid captures measurable edge. The spread is the gap
// between the YES bid and the implied YES offer (100 − NO bid).
type Spread struct {
	cfg    SpreadConfig
	logger *slog.Logger
}

var _ domain.Analyzer = (*Spread)(nil)

// NewSpread creates a spread scanner.
func NewSpread(cfg SpreadConfig, logger *slog.Logger) *Spread {
	return &Spread{cfg: cfg, logger: logger.With(slog.String("component", "spread_analyzer"))}
}

func (s *Spread) Name() string { return "spread" }

// Analyze scans every market with a valid book for a wide spread.
func (s *Spread) Analyze(ctx context.Context, markets []domain.MarketData) ([]domain.Opportunity, error) {
	var opps []domain.Opportunity
	for _, m := range markets {
		if !m.Book.Valid() {
			continue
		}
		if m.Market.Volume < s.cfg.MinVolume {
			continue
		}

		spread := 100 - m.Book.YesBid - m.Book.NoBid
		strength, confidence, ok := s.classify(spread)
		if !ok {
			continue
		}

		// Providing liquidity near the mid captures roughly half the spread.
		edge := spread / 2
		mid := m.Book.YesBid + spread/2
		if mid < 1 || mid > 99 {
			continue
		}

		opps = append(opps, domain.Opportunity{
			MarketID:    m.Market.Ticker,
			Side:        domain.SideYes,
			Confidence:  confidence,
			Strength:    strength,
			EdgeCents:   edge,
			EdgePercent: edge / mid * 100,
			Price:       mid,
			Source:      s.Name(),
			Reasoning: fmt.Sprintf("wide spread of %.1f¢ (yes bid %.0f¢, no bid %.0f¢)",
				spread, m.Book.YesBid, m.Book.NoBid),
			CreatedAt: time.Now().UTC(),
		})
	}
	s.logger.Debug("scan complete",
		slog.Int("markets", len(markets)), slog.Int("opportunities", len(opps)))
	return opps, nil
}

func (s *Spread) classify(spread float64) (domain.Strength, domain.Confidence, bool) {
	if spread >= s.cfg.HardMin {
		switch {
		case spread >= s.cfg.HardVeryWide:
			return domain.StrengthHard, domain.ConfidenceHigh, true
		case spread >= s.cfg.HardWide:
			return domain.StrengthHard, domain.ConfidenceMedium, true
		default:
			return domain.StrengthHard, domain.ConfidenceLow, true
		}
	}
	if spread >= s.cfg.SoftMin {
		switch {
		case spread >= s.cfg.SoftVeryWide:
			return domain.StrengthSoft, domain.ConfidenceHigh, true
		case spread >= s.cfg.SoftWide:
			return domain.StrengthSoft, domain.ConfidenceMedium, true
		default:
			return domain.StrengthSoft, domain.ConfidenceLow, true
		}
	}
	return 0, 0, false
}
