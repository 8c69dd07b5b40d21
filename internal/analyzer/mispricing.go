package analyzer

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/alanyoungcy/kalshibot/internal/domain"
)

// MispricingConfig sets the extreme-price and round-number thresholds. Prices
// are cents; the hard tier applies stricter bounds than the soft tier.
type MispricingConfig struct {
	HardExtremeLow       float64
	HardExtremeHigh      float64
	HardMinVolume        int64
	HardMaxVolumeRound   int64
	SoftExtremeLow       float64
	SoftExtremeHigh      float64
	SoftMinVolume        int64
	SoftMaxVolumeRound   int64
	RoundNumbers         []float64
	RoundNumberTolerance float64
}

// DefaultMispricingConfig returns the stock thresholds.
func DefaultMispricingConfig() MispricingConfig {
	return MispricingConfig{
		HardExtremeLow:       5,
		HardExtremeHigh:      95,
		HardMinVolume:        10,
		HardMaxVolumeRound:   500,
		SoftExtremeLow:       10,
		SoftExtremeHigh:      90,
		SoftMinVolume:        0,
		SoftMaxVolumeRound:   1000,
		RoundNumbers:         []float64{25, 50, 75},
		RoundNumberTolerance: 2,
	}
}

// Mispricing flags two crowd-behavior patterns: prices at probability
// extremes, which tend to over- or understate the true odds, and thinly
// traded markets parked on round numbers, which tend to be lazy estimates.
type Mispricing struct {
	cfg    MispricingConfig
	logger *slog.Logger
}

var _ domain.Analyzer = (*Mispricing)(nil)

// NewMispricing creates a mispricing scanner.
func NewMispricing(cfg MispricingConfig, logger *slog.Logger) *Mispricing {
	return &Mispricing{cfg: cfg, logger: logger.With(slog.String("component", "mispricing_analyzer"))}
}

func (a *Mispricing) Name() string { return "mispricing" }

// Analyze runs both checks per market; a market can yield one opportunity
// from each.
func (a *Mispricing) Analyze(ctx context.Context, markets []domain.MarketData) ([]domain.Opportunity, error) {
	var opps []domain.Opportunity
	for _, m := range markets {
		price := m.Book.YesBid
		if price <= 0 {
			price = m.Market.LastPrice
		}
		if price <= 0 {
			continue
		}
		if opp, ok := a.checkExtreme(m.Market, price); ok {
			opps = append(opps, opp)
		}
		if opp, ok := a.checkRoundBias(m.Market, price); ok {
			opps = append(opps, opp)
		}
	}
	a.logger.Debug("scan complete",
		slog.Int("markets", len(markets)), slog.Int("opportunities", len(opps)))
	return opps, nil
}

// checkExtreme flags prices near 0 or 100. An extreme low is treated as
// underpriced (buy YES); an extreme high as overpriced (buy NO at the
// complement).
func (a *Mispricing) checkExtreme(m domain.Market, price float64) (domain.Opportunity, bool) {
	var (
		strength   domain.Strength
		confidence domain.Confidence
		edge       float64
		low        bool
	)

	switch {
	case (price <= a.cfg.HardExtremeLow || price >= a.cfg.HardExtremeHigh) && m.Volume >= a.cfg.HardMinVolume:
		strength = domain.StrengthHard
		if low = price <= a.cfg.HardExtremeLow; low {
			edge = math.Min(10, a.cfg.HardExtremeLow-price+5)
			confidence = domain.ConfidenceLow
			if price <= 2 {
				confidence = domain.ConfidenceMedium
			}
		} else {
			edge = math.Min(10, price-a.cfg.HardExtremeHigh+5)
			confidence = domain.ConfidenceLow
			if price >= 98 {
				confidence = domain.ConfidenceMedium
			}
		}
	case (price <= a.cfg.SoftExtremeLow || price >= a.cfg.SoftExtremeHigh) && m.Volume >= a.cfg.SoftMinVolume:
		strength = domain.StrengthSoft
		confidence = domain.ConfidenceLow
		if low = price <= a.cfg.SoftExtremeLow; low {
			edge = math.Min(8, a.cfg.SoftExtremeLow-price+3)
		} else {
			edge = math.Min(8, price-a.cfg.SoftExtremeHigh+3)
		}
	default:
		return domain.Opportunity{}, false
	}

	side := domain.SideYes
	entry := price
	direction := "underpriced"
	if !low {
		side = domain.SideNo
		entry = 100 - price
		direction = "overpriced"
	}
	if entry < 1 || entry > 99 {
		return domain.Opportunity{}, false
	}

	return domain.Opportunity{
		MarketID:    m.Ticker,
		Side:        side,
		Confidence:  confidence,
		Strength:    strength,
		EdgeCents:   edge,
		EdgePercent: edge / entry * 100,
		Price:       entry,
		Source:      a.Name(),
		Reasoning: fmt.Sprintf("extreme price of %.0f¢ suggests the market is %s (volume %d)",
			price, direction, m.Volume),
		CreatedAt: time.Now().UTC(),
	}, true
}

// checkRoundBias flags low-volume markets sitting within tolerance of 25, 50
// or 75 cents.
func (a *Mispricing) checkRoundBias(m domain.Market, price float64) (domain.Opportunity, bool) {
	var nearest float64
	found := false
	for _, r := range a.cfg.RoundNumbers {
		if math.Abs(price-r) <= a.cfg.RoundNumberTolerance {
			nearest, found = r, true
			break
		}
	}
	if !found {
		return domain.Opportunity{}, false
	}

	var strength domain.Strength
	var edge float64
	switch {
	case m.Volume <= a.cfg.HardMaxVolumeRound:
		strength, edge = domain.StrengthHard, 3
	case m.Volume <= a.cfg.SoftMaxVolumeRound:
		strength, edge = domain.StrengthSoft, 2
	default:
		return domain.Opportunity{}, false
	}

	return domain.Opportunity{
		MarketID:    m.Ticker,
		Side:        domain.SideYes,
		Confidence:  domain.ConfidenceLow,
		Strength:    strength,
		EdgeCents:   edge,
		EdgePercent: edge / price * 100,
		Price:       price,
		Source:      a.Name(),
		Reasoning: fmt.Sprintf("price %.0f¢ parked near %.0f¢ on volume %d suggests round-number bias",
			price, nearest, m.Volume),
		CreatedAt: time.Now().UTC(),
	}, true
}
