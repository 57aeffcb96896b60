package domain

import "errors"

// Application-wide standard errors
var (
	ErrNotFound       = errors.New("resource not found")
	ErrCardNotFound   = errors.New("card not found")
	ErrNPCNotFound    = errors.New("npc not found")
	ErrStateNotFound  = errors.New("player state not found")
	ErrInvalidInput   = errors.New("invalid input data")
	ErrInternalServer = errors.New("internal server error")

	// Content errors
	ErrCardOptionCount = errors.New("card must have exactly four options")
	ErrUnknownNPC      = errors.New("card references unknown npc")

	// Gameplay errors. Both are expected, retryable outcomes rather than faults.
	ErrNoEligibleCards      = errors.New("no eligible cards for current state")
	ErrConfigNotInitialized = errors.New("game config not initialized")
	ErrInvalidOption        = errors.New("option index out of range")
	ErrGameOver             = errors.New("game over: money below zero")

	// Auth errors
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
)
