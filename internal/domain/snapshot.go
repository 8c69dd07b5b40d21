package domain

import "time"

// Snapshot is an immutable point-in-time record of portfolio state taken by
// the performance tracker. TotalValue is always cash plus the mark value of
// all open positions; Peak is the running maximum of TotalValue and Drawdown
// the fractional decline from it, floored at zero.
type Snapshot struct {
	Timestamp     time.Time
	Cash          float64
	RealizedPnL   float64
	UnrealizedPnL float64
	TotalValue    float64
	OpenPositions int
	Peak          float64
	Drawdown      float64
}
