package workflow

import "errors"

var (
	ErrInvalidTransition = errors.New("invalid decision transition")
	ErrInvalidState      = errors.New("invalid decision state")
	// ErrGuardFailed means the trigger is declared but the decision is locked
	ErrGuardFailed = errors.New("decision locked")
)
