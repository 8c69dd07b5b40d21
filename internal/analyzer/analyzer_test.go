package analyzer

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/kalshibot/internal/domain"
)

func md(ticker string, yesBid, noBid float64, volume int64) domain.MarketData {
	return domain.MarketData{
		Market: domain.Market{Ticker: ticker, Status: "active", Volume: volume},
		Book:   domain.MarketPrices{YesBid: yesBid, NoBid: noBid},
	}
}

func TestSpreadAnalyzer(t *testing.T) {
	t.Parallel()

	a := NewSpread(DefaultSpreadConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)))

	// YES 30 / NO 40: spread 30¢, hard very wide. YES 48 / NO 50: spread 2¢,
	// below the soft minimum.
	opps, err := a.Analyze(context.Background(), []domain.MarketData{
		md("WIDE", 30, 40, 1000),
		md("NARROW", 48, 50, 5000),
	})
	require.NoError(t, err)
	require.Len(t, opps, 1)

	opp := opps[0]
	assert.Equal(t, "WIDE", opp.MarketID)
	assert.Equal(t, domain.StrengthHard, opp.Strength)
	assert.Equal(t, domain.ConfidenceHigh, opp.Confidence)
	assert.InDelta(t, 15.0, opp.EdgeCents, 1e-9) // half the 30¢ spread
	assert.InDelta(t, 45.0, opp.Price, 1e-9)     // mid between 30¢ bid and 60¢ offer
	assert.Equal(t, "spread", opp.Source)
}

func TestSpreadTiers(t *testing.T) {
	t.Parallel()

	a := NewSpread(DefaultSpreadConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)))

	tests := []struct {
		name       string
		yes, no    float64
		strength   domain.Strength
		confidence domain.Confidence
	}{
		{"hard wide", 35, 43, domain.StrengthHard, domain.ConfidenceMedium}, // 22¢
		{"hard minimum", 40, 48, domain.StrengthHard, domain.ConfidenceLow}, // 12¢
		{"soft minimum", 46, 48, domain.StrengthSoft, domain.ConfidenceLow}, // 6¢
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			opps, err := a.Analyze(context.Background(), []domain.MarketData{md("M", tt.yes, tt.no, 0)})
			require.NoError(t, err)
			require.Len(t, opps, 1)
			assert.Equal(t, tt.strength, opps[0].Strength)
			assert.Equal(t, tt.confidence, opps[0].Confidence)
		})
	}
}

func TestSpreadVolumeFilter(t *testing.T) {
	t.Parallel()

	cfg := DefaultSpreadConfig()
	cfg.MinVolume = 100
	a := NewSpread(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))

	opps, err := a.Analyze(context.Background(), []domain.MarketData{md("THIN", 30, 40, 50)})
	require.NoError(t, err)
	assert.Empty(t, opps)
}

func TestMispricingExtremeLow(t *testing.T) {
	t.Parallel()

	a := NewMispricing(DefaultMispricingConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)))

	opps, err := a.Analyze(context.Background(), []domain.MarketData{md("CHEAP", 3, 96, 100)})
	require.NoError(t, err)
	require.Len(t, opps, 1)

	opp := opps[0]
	assert.Equal(t, domain.SideYes, opp.Side)
	assert.Equal(t, domain.StrengthHard, opp.Strength)
	assert.Equal(t, 3.0, opp.Price)
	// Edge min(10, 5−3+5) = 7¢.
	assert.InDelta(t, 7.0, opp.EdgeCents, 1e-9)
}

func TestMispricingExtremeHighBuysNo(t *testing.T) {
	t.Parallel()

	a := NewMispricing(DefaultMispricingConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)))

	opps, err := a.Analyze(context.Background(), []domain.MarketData{md("RICH", 97, 2, 200)})
	require.NoError(t, err)
	require.Len(t, opps, 1)

	opp := opps[0]
	assert.Equal(t, domain.SideNo, opp.Side)
	// Entry is the complement of the extreme YES price.
	assert.Equal(t, 3.0, opp.Price)
}

func TestMispricingRoundBias(t *testing.T) {
	t.Parallel()

	a := NewMispricing(DefaultMispricingConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)))

	opps, err := a.Analyze(context.Background(), []domain.MarketData{md("ROUND", 50, 48, 50)})
	require.NoError(t, err)
	require.Len(t, opps, 1)

	opp := opps[0]
	assert.Equal(t, domain.StrengthHard, opp.Strength)
	assert.Equal(t, domain.ConfidenceLow, opp.Confidence)
	assert.InDelta(t, 3.0, opp.EdgeCents, 1e-9)
}

func TestMispricingQuietOnNormalMarkets(t *testing.T) {
	t.Parallel()

	a := NewMispricing(DefaultMispricingConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)))

	opps, err := a.Analyze(context.Background(), []domain.MarketData{md("NORMAL", 65, 33, 5000)})
	require.NoError(t, err)
	assert.Empty(t, opps)
}
