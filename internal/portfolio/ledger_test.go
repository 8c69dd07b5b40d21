package portfolio

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/kalshibot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testOpp(marketID string, side domain.Side, price float64) domain.Opportunity {
	return domain.Opportunity{
		MarketID:    marketID,
		Side:        side,
		Confidence:  domain.ConfidenceHigh,
		Strength:    domain.StrengthHard,
		EdgeCents:   5,
		EdgePercent: 10,
		Price:       price,
		Source:      "test",
	}
}

func TestNewLedgerRejectsNonPositiveCapital(t *testing.T) {
	t.Parallel()

	for _, capital := range []float64{0, -100} {
		_, err := NewLedger(capital, testLogger())
		assert.Error(t, err)
	}
}

func TestOpenDebitsCash(t *testing.T) {
	t.Parallel()

	l, err := NewLedger(10000, testLogger())
	require.NoError(t, err)

	p, err := l.Open(testOpp("MKT-A", domain.SideYes, 40), domain.SideYes, 10, 40)
	require.NoError(t, err)

	assert.NotEmpty(t, p.ID)
	assert.Equal(t, domain.PositionStatusOpen, p.Status)
	assert.Equal(t, 40.0, p.EntryPrice)
	assert.Equal(t, 40.0, p.MarkPrice)
	assert.Equal(t, 9600.0, l.Cash())
	assert.Equal(t, 1, l.OpenCount())
	assert.True(t, l.HoldsMarket("MKT-A"))
	assert.False(t, l.HoldsMarket("MKT-B"))
}

func TestOpenValidation(t *testing.T) {
	t.Parallel()

	l, err := NewLedger(10000, testLogger())
	require.NoError(t, err)

	_, err = l.Open(testOpp("MKT-A", domain.SideYes, 40), domain.SideYes, 0, 40)
	assert.Error(t, err)

	_, err = l.Open(testOpp("MKT-A", domain.SideYes, 0.5), domain.SideYes, 10, 0.5)
	assert.ErrorIs(t, err, domain.ErrInvalidPrice)

	_, err = l.Open(testOpp("MKT-A", domain.SideYes, 99.5), domain.SideYes, 10, 99.5)
	assert.ErrorIs(t, err, domain.ErrInvalidPrice)

	_, err = l.Open(testOpp("MKT-A", domain.SideYes, 60), domain.SideYes, 500, 60)
	assert.ErrorIs(t, err, domain.ErrInsufficientCapital)

	// Failed opens must not leak state.
	assert.Equal(t, 10000.0, l.Cash())
	assert.Equal(t, 0, l.OpenCount())
}

func TestCloseRealizesYesProfit(t *testing.T) {
	t.Parallel()

	l, err := NewLedger(10000, testLogger())
	require.NoError(t, err)

	p, err := l.Open(testOpp("MKT-A", domain.SideYes, 40), domain.SideYes, 10, 40)
	require.NoError(t, err)

	out, err := l.Close(p.ID, 55, domain.CloseReasonTakeProfit)
	require.NoError(t, err)

	assert.Equal(t, domain.PositionStatusClosed, out.Status)
	assert.Equal(t, domain.CloseReasonTakeProfit, out.CloseReason)
	assert.Equal(t, 55.0, out.ExitPrice)
	assert.InDelta(t, 150.0, out.RealizedPnL, 1e-9)
	assert.InDelta(t, 10150.0, l.Cash(), 1e-9)
	assert.Equal(t, 0, l.OpenCount())
	assert.Len(t, l.ClosedPositions(), 1)
}

func TestCloseRealizesNoLoss(t *testing.T) {
	t.Parallel()

	l, err := NewLedger(10000, testLogger())
	require.NoError(t, err)

	p, err := l.Open(testOpp("MKT-B", domain.SideNo, 60), domain.SideNo, 5, 60)
	require.NoError(t, err)

	out, err := l.Close(p.ID, 48, domain.CloseReasonStopLoss)
	require.NoError(t, err)

	assert.InDelta(t, -60.0, out.RealizedPnL, 1e-9)
	assert.InDelta(t, 9940.0, l.Cash(), 1e-9)
}

func TestCloseUnknownPosition(t *testing.T) {
	t.Parallel()

	l, err := NewLedger(10000, testLogger())
	require.NoError(t, err)

	_, err = l.Close("no-such-id", 50, domain.CloseReasonManual)
	assert.ErrorIs(t, err, domain.ErrUnknownPosition)

	p, err := l.Open(testOpp("MKT-A", domain.SideYes, 40), domain.SideYes, 10, 40)
	require.NoError(t, err)
	_, err = l.Close(p.ID, 50, domain.CloseReasonManual)
	require.NoError(t, err)

	// Double close is rejected: the position left the open set.
	_, err = l.Close(p.ID, 50, domain.CloseReasonManual)
	assert.ErrorIs(t, err, domain.ErrUnknownPosition)
}

func TestMarkToMarket(t *testing.T) {
	t.Parallel()

	l, err := NewLedger(10000, testLogger())
	require.NoError(t, err)

	yes, err := l.Open(testOpp("MKT-A", domain.SideYes, 40), domain.SideYes, 10, 40)
	require.NoError(t, err)
	no, err := l.Open(testOpp("MKT-B", domain.SideNo, 60), domain.SideNo, 5, 60)
	require.NoError(t, err)

	l.MarkToMarket(map[string]domain.MarketPrices{
		"MKT-A": {YesBid: 47, NoBid: 53},
		// MKT-B has no update this cycle; it keeps its last mark.
	})

	marks := map[string]float64{}
	for _, p := range l.OpenPositions() {
		marks[p.ID] = p.MarkPrice
	}
	assert.Equal(t, 47.0, marks[yes.ID])
	assert.Equal(t, 60.0, marks[no.ID])
}

func TestCapitalConservation(t *testing.T) {
	t.Parallel()

	l, err := NewLedger(10000, testLogger())
	require.NoError(t, err)

	// Cash + cost basis of open positions + realized P&L of closed positions
	// must always equal initial capital plus realized P&L; total value only
	// deviates through unrealized marks.
	a, err := l.Open(testOpp("MKT-A", domain.SideYes, 40), domain.SideYes, 10, 40)
	require.NoError(t, err)
	b, err := l.Open(testOpp("MKT-B", domain.SideNo, 25), domain.SideNo, 20, 25)
	require.NoError(t, err)

	sum := l.Summary()
	assert.InDelta(t, 10000.0, sum.Cash+sum.PositionValue, 1e-9)
	assert.InDelta(t, 10000.0, sum.TotalValue, 1e-9)

	_, err = l.Close(a.ID, 50, domain.CloseReasonManual)
	require.NoError(t, err)
	_, err = l.Close(b.ID, 20, domain.CloseReasonManual)
	require.NoError(t, err)

	sum = l.Summary()
	assert.InDelta(t, 10000.0+sum.RealizedPnL, sum.TotalValue, 1e-9)
	assert.Equal(t, 0, sum.OpenCount)
	assert.Equal(t, 2, sum.ClosedCount)
}

func TestSummaryIsPure(t *testing.T) {
	t.Parallel()

	l, err := NewLedger(10000, testLogger())
	require.NoError(t, err)

	_, err = l.Open(testOpp("MKT-A", domain.SideYes, 40), domain.SideYes, 10, 40)
	require.NoError(t, err)
	l.MarkToMarket(map[string]domain.MarketPrices{"MKT-A": {YesBid: 44, NoBid: 56}})

	first := l.Summary()
	second := l.Summary()
	assert.Equal(t, first, second)
	assert.InDelta(t, 40.0, first.UnrealizedPnL, 1e-9)
	assert.InDelta(t, 0.4, first.ReturnPercent, 1e-9)
}
