package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrInsufficientCapital = errors.New("insufficient capital")
	ErrUnknownPosition     = errors.New("unknown position")
	ErrPositionClosed      = errors.New("position already closed")
	ErrInvariantViolation  = errors.New("portfolio invariant violated")
	ErrInvalidPrice        = errors.New("invalid price")
	ErrWSDisconnect        = errors.New("websocket disconnected")
	ErrLockHeld            = errors.New("lock already held")
)
