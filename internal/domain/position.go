package domain

import "time"

// PositionStatus tracks whether a position is open or closed.
type PositionStatus string

const (
	PositionStatusOpen   PositionStatus = "open"
	PositionStatusClosed PositionStatus = "closed"
)

// CloseReason records why a position was closed.
type CloseReason string

const (
	CloseReasonStopLoss   CloseReason = "stop_loss"
	CloseReasonTakeProfit CloseReason = "take_profit"
	CloseReasonManual     CloseReason = "manual"
	CloseReasonExpiry     CloseReason = "expiry"
)

// Position represents a held quantity of one side of one market. The entry
// price is fixed at open; the mark price is the only field updated while the
// position is open, and the open→closed transition happens exactly once.
type Position struct {
	ID         string
	MarketID   string
	Side       Side
	EntryPrice float64 // cents
	Quantity   int     // contracts, always > 0
	MarkPrice  float64 // last known price of the held side, in cents
	Status     PositionStatus
	Source     string // analyzer that produced the originating opportunity
	Reasoning  string
	OpenedAt   time.Time

	// Exit details, set only when Status is closed.
	ExitPrice   float64
	ClosedAt    time.Time
	CloseReason CloseReason
	RealizedPnL float64 // cents, (exit - entry) * quantity
}

// CostBasis returns the capital committed at entry, in cents.
func (p Position) CostBasis() float64 {
	return p.EntryPrice * float64(p.Quantity)
}

// MarkValue returns the current market value of the position, in cents.
func (p Position) MarkValue() float64 {
	if p.Status == PositionStatusClosed {
		return p.ExitPrice * float64(p.Quantity)
	}
	return p.MarkPrice * float64(p.Quantity)
}

// UnrealizedPnL returns mark-to-market profit for an open position, in cents.
// Closed positions report zero; their result lives in RealizedPnL.
func (p Position) UnrealizedPnL() float64 {
	if p.Status == PositionStatusClosed {
		return 0
	}
	return (p.MarkPrice - p.EntryPrice) * float64(p.Quantity)
}

// PnLPercent returns the current percent move from entry, signed so that a
// losing position is negative regardless of side.
func (p Position) PnLPercent() float64 {
	if p.EntryPrice == 0 {
		return 0
	}
	return (p.MarkPrice - p.EntryPrice) / p.EntryPrice * 100
}
