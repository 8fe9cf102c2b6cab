package domain

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrAlreadyExists   = errors.New("already exists")
	ErrDataUnavailable = errors.New("market data unavailable")
	ErrSizing          = errors.New("position sizing failed")
	ErrRewardRisk      = errors.New("reward/risk below minimum")
	ErrOrderRejected   = errors.New("order rejected")
	ErrInvariant       = errors.New("invariant violation")
	ErrRateLimited     = errors.New("rate limited")
	ErrLockHeld        = errors.New("lock already held")
	ErrWSDisconnect    = errors.New("websocket disconnected")
	ErrContextDone     = errors.New("context cancelled")
)
