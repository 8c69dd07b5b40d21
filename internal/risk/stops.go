package risk

import (
	"log/slog"

	"github.com/alanyoungcy/kalshibot/internal/domain"
)

// Book is the slice of ledger behavior the monitor needs: enumerate open
// positions and close one by id.
type Book interface {
	OpenPositions() []domain.Position
	Close(positionID string, exitPrice float64, reason domain.CloseReason) (domain.Position, error)
}

// StopTargetMonitor closes open positions whose mark has moved through the
// stop-loss or take-profit threshold. Both thresholds are inclusive: a move of
// exactly the configured percentage triggers the exit.
type StopTargetMonitor struct {
	stopLoss   float64 // percent, positive
	takeProfit float64 // percent, positive
	logger     *slog.Logger
}

// NewStopTargetMonitor creates a monitor with the config's stop and target
// percentages.
func NewStopTargetMonitor(cfg Config, logger *slog.Logger) *StopTargetMonitor {
	return &StopTargetMonitor{
		stopLoss:   cfg.StopLossPercent,
		takeProfit: cfg.TakeProfitPercent,
		logger:     logger.With(slog.String("component", "stop_monitor")),
	}
}

// Check sweeps every open position against the latest prices and closes any
// that breach a threshold, at most one closure per position per sweep. The
// stop-loss is checked before the take-profit, so a position somehow
// satisfying both exits as a stop. Positions whose market has no price update
// this sweep are evaluated at their last known mark. Closed positions are
// returned in sweep order.
func (m *StopTargetMonitor) Check(book Book, prices map[string]domain.MarketPrices) ([]domain.Position, error) {
	var closed []domain.Position
	for _, p := range book.OpenPositions() {
		mark := p.MarkPrice
		if top, ok := prices[p.MarketID]; ok {
			if fresh := top.BySide(p.Side); fresh > 0 {
				mark = fresh
			}
		}

		movePct := (mark - p.EntryPrice) / p.EntryPrice * 100

		var reason domain.CloseReason
		switch {
		case movePct <= -m.stopLoss:
			reason = domain.CloseReasonStopLoss
		case movePct >= m.takeProfit:
			reason = domain.CloseReasonTakeProfit
		default:
			continue
		}

		out, err := book.Close(p.ID, mark, reason)
		if err != nil {
			return closed, err
		}

		m.logger.Info("threshold exit",
			slog.String("position_id", out.ID),
			slog.String("market", out.MarketID),
			slog.String("reason", string(reason)),
			slog.Float64("entry_price", out.EntryPrice),
			slog.Float64("exit_price", mark),
			slog.Float64("move_pct", movePct),
		)
		closed = append(closed, out)
	}
	return closed, nil
}
