// Package portfolio implements the ledger that owns cash and position state.
// The ledger is the sole writer of both: every open debits cash, every close
// credits it, and the open→closed transition happens exactly once per
// position. It is not safe for concurrent writers; the simulation runner
// serializes all mutations (see internal/sim).
package portfolio

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/kalshibot/internal/domain"
)

// Summary is a pure aggregation of ledger state. Computing it twice without
// an intervening mutation yields identical results.
type Summary struct {
	Cash           float64
	InitialCapital float64
	OpenCount      int
	ClosedCount    int
	RealizedPnL    float64
	UnrealizedPnL  float64
	PositionValue  float64
	TotalValue     float64
	ReturnPercent  float64
}

// Ledger tracks cash, open positions keyed by id, and the closed-position
// history. Closed positions are retained for the life of the run.
type Ledger struct {
	cash    float64
	initial float64
	open    map[string]*domain.Position
	closed  []domain.Position
	logger  *slog.Logger
}

// NewLedger creates a Ledger holding initialCapital cents of cash.
func NewLedger(initialCapital float64, logger *slog.Logger) (*Ledger, error) {
	if initialCapital <= 0 {
		return nil, fmt.Errorf("portfolio: initial capital must be > 0, got %.2f", initialCapital)
	}
	return &Ledger{
		cash:    initialCapital,
		initial: initialCapital,
		open:    make(map[string]*domain.Position),
		logger:  logger.With(slog.String("component", "ledger")),
	}, nil
}

// Open debits cash by quantity×price and creates an open position. It returns
// domain.ErrInsufficientCapital when the debit would take cash negative, and
// domain.ErrInvalidPrice for prices outside [1, 99].
func (l *Ledger) Open(opp domain.Opportunity, side domain.Side, quantity int, price float64) (domain.Position, error) {
	if quantity <= 0 {
		return domain.Position{}, fmt.Errorf("portfolio: open %s: quantity must be > 0, got %d", opp.MarketID, quantity)
	}
	if price < 1 || price > 99 {
		return domain.Position{}, fmt.Errorf("portfolio: open %s at %.1f¢: %w", opp.MarketID, price, domain.ErrInvalidPrice)
	}

	cost := price * float64(quantity)
	if cost > l.cash {
		return domain.Position{}, fmt.Errorf("portfolio: open %s: need %.0f¢, have %.0f¢: %w",
			opp.MarketID, cost, l.cash, domain.ErrInsufficientCapital)
	}

	p := domain.Position{
		ID:         uuid.NewString(),
		MarketID:   opp.MarketID,
		Side:       side,
		EntryPrice: price,
		Quantity:   quantity,
		MarkPrice:  price,
		Status:     domain.PositionStatusOpen,
		Source:     opp.Source,
		Reasoning:  opp.Reasoning,
		OpenedAt:   time.Now().UTC(),
	}

	l.cash -= cost
	l.open[p.ID] = &p

	l.logger.Info("position opened",
		slog.String("position_id", p.ID),
		slog.String("market", p.MarketID),
		slog.String("side", string(p.Side)),
		slog.Int("quantity", p.Quantity),
		slog.Float64("price", p.EntryPrice),
		slog.Float64("cash_after", l.cash),
	)

	return p, l.checkInvariants()
}

// MarkToMarket updates the mark price of every open position whose market
// appears in prices. Positions for markets without an update keep their last
// mark. Non-positive prices are ignored for that market.
func (l *Ledger) MarkToMarket(prices map[string]domain.MarketPrices) {
	for _, p := range l.open {
		top, ok := prices[p.MarketID]
		if !ok {
			continue
		}
		mark := top.BySide(p.Side)
		if mark <= 0 {
			continue
		}
		p.MarkPrice = mark
	}
}

// Close credits cash by quantity×exitPrice, records realized P&L, and moves
// the position to the closed list. It returns domain.ErrUnknownPosition when
// id is not an open position.
func (l *Ledger) Close(positionID string, exitPrice float64, reason domain.CloseReason) (domain.Position, error) {
	p, ok := l.open[positionID]
	if !ok {
		return domain.Position{}, fmt.Errorf("portfolio: close %s: %w", positionID, domain.ErrUnknownPosition)
	}

	proceeds := exitPrice * float64(p.Quantity)

	p.Status = domain.PositionStatusClosed
	p.ExitPrice = exitPrice
	p.MarkPrice = exitPrice
	p.ClosedAt = time.Now().UTC()
	p.CloseReason = reason
	p.RealizedPnL = proceeds - p.CostBasis()

	l.cash += proceeds
	delete(l.open, positionID)
	l.closed = append(l.closed, *p)

	l.logger.Info("position closed",
		slog.String("position_id", p.ID),
		slog.String("market", p.MarketID),
		slog.String("reason", string(reason)),
		slog.Float64("exit_price", exitPrice),
		slog.Float64("realized_pnl", p.RealizedPnL),
		slog.Float64("cash_after", l.cash),
	)

	return *p, l.checkInvariants()
}

// Cash returns the current cash balance in cents.
func (l *Ledger) Cash() float64 {
	return l.cash
}

// OpenCount returns the number of open positions.
func (l *Ledger) OpenCount() int {
	return len(l.open)
}

// OpenPositions returns copies of all open positions.
func (l *Ledger) OpenPositions() []domain.Position {
	out := make([]domain.Position, 0, len(l.open))
	for _, p := range l.open {
		out = append(out, *p)
	}
	return out
}

// ClosedPositions returns the closed-position history in close order.
func (l *Ledger) ClosedPositions() []domain.Position {
	out := make([]domain.Position, len(l.closed))
	copy(out, l.closed)
	return out
}

// HoldsMarket reports whether an open position exists for the given market.
func (l *Ledger) HoldsMarket(marketID string) bool {
	for _, p := range l.open {
		if p.MarketID == marketID {
			return true
		}
	}
	return false
}

// Summary aggregates current ledger state without mutating it.
func (l *Ledger) Summary() Summary {
	var positionValue, unrealized float64
	for _, p := range l.open {
		positionValue += p.MarkValue()
		unrealized += p.UnrealizedPnL()
	}
	var realized float64
	for _, p := range l.closed {
		realized += p.RealizedPnL
	}

	total := l.cash + positionValue
	return Summary{
		Cash:           l.cash,
		InitialCapital: l.initial,
		OpenCount:      len(l.open),
		ClosedCount:    len(l.closed),
		RealizedPnL:    realized,
		UnrealizedPnL:  unrealized,
		PositionValue:  positionValue,
		TotalValue:     total,
		ReturnPercent:  (total - l.initial) / l.initial * 100,
	}
}

// checkInvariants verifies the capital-conservation invariant after a
// mutation. A violation means a defect upstream; the run must abort rather
// than keep producing meaningless statistics.
func (l *Ledger) checkInvariants() error {
	if l.cash < 0 {
		return fmt.Errorf("portfolio: cash is %.2f¢ after mutation: %w", l.cash, domain.ErrInvariantViolation)
	}
	return nil
}
