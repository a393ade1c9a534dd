package service

import "errors"

var (
	ErrMissingSession     = errors.New("session service is required")
	ErrMissingLogger      = errors.New("logger is required")
	ErrSubscriptionClosed = errors.New("session subscription closed")
	ErrAlreadyHolding     = errors.New("participant already holds the consumable")
	ErrNotBuilt           = errors.New("maze has not been built yet")
	ErrInvalidConfig      = errors.New("invalid world configuration")
)
