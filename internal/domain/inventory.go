package domain

// InventoryState is the market maker's paired exposure in one market. It is
// recomputed from fill counts; Pairs and Skew are derived, never stored.
type InventoryState struct {
	MarketID     string
	YesContracts int
	NoContracts  int
}

// Total returns the total contracts held across both sides.
func (s InventoryState) Total() int {
	return s.YesContracts + s.NoContracts
}

// Pairs returns the number of complete YES+NO pairs, each guaranteeing a
// fixed 100-cent payout at settlement.
func (s InventoryState) Pairs() int {
	if s.YesContracts < s.NoContracts {
		return s.YesContracts
	}
	return s.NoContracts
}

// Skew returns the normalized inventory imbalance in [-1, 1]. A flat book
// reports zero.
func (s InventoryState) Skew() float64 {
	total := s.YesContracts + s.NoContracts
	if total == 0 {
		return 0
	}
	return float64(s.YesContracts-s.NoContracts) / float64(total)
}

// Quote is a resting two-sided market-maker quote. YesPrice is the bid to buy
// YES; NoPrice is the bid to buy NO (equivalent to an offer to sell YES at
// 100−NoPrice). Both are cents in [1, 99].
type Quote struct {
	MarketID  string
	FairValue float64
	YesPrice  float64
	NoPrice   float64
	Size      int
	YesOrder  string // resting order id, empty until placed
	NoOrder   string
}

// Fill reports an execution against one side of a resting quote.
type Fill struct {
	MarketID string
	Side     Side
	Price    float64
	Count    int
}
