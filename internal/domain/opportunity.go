// Package domain defines the core types shared across the bot: opportunities,
// positions, portfolio snapshots, market-maker inventory, and the collaborator
// interfaces (feeds, caches, stores, order sinks) implemented by the platform
// and storage layers.
package domain

import "time"

// Side identifies which side of a binary market is held or quoted.
type Side string

const (
	SideYes Side = "yes"
	SideNo  Side = "no"
)

// Confidence is an ordinal quality signal attached to an opportunity.
// Higher values indicate higher analyzer conviction.
type Confidence int

const (
	ConfidenceLow    Confidence = iota
	ConfidenceMedium
	ConfidenceHigh
)

// String returns the lowercase name used in config files and logs.
func (c Confidence) String() string {
	switch c {
	case ConfidenceLow:
		return "low"
	case ConfidenceMedium:
		return "medium"
	case ConfidenceHigh:
		return "high"
	default:
		return "unknown"
	}
}

// Strength indicates whether an opportunity passed an analyzer's strict
// thresholds (hard) or only the relaxed ones (soft).
type Strength int

const (
	StrengthSoft Strength = iota
	StrengthHard
)

// String returns the lowercase name used in config files and logs.
func (s Strength) String() string {
	switch s {
	case StrengthSoft:
		return "soft"
	case StrengthHard:
		return "hard"
	default:
		return "unknown"
	}
}

// Opportunity is an immutable trade signal produced by an analyzer. The core
// engine only reads it; it is never mutated after creation.
type Opportunity struct {
	MarketID    string
	Side        Side
	Confidence  Confidence
	Strength    Strength
	EdgeCents   float64 // estimated edge in price units (cents)
	EdgePercent float64 // estimated edge as percent of price
	Price       float64 // observed price of the signalled side, in cents
	Source      string  // analyzer name
	Reasoning   string
	CreatedAt   time.Time
}
