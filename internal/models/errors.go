package models

import "errors"

// Error kinds surfaced by the orchestration core. Callers match with
// errors.Is; details are attached by wrapping with fmt.Errorf and %w.
var (
	ErrEngineTimeout            = errors.New("engine timed out")
	ErrEngineCrashed            = errors.New("engine crashed")
	ErrEngineUnresponsive       = errors.New("engine unresponsive")
	ErrEngineCommunication      = errors.New("engine communication failed")
	ErrInvalidEngineState       = errors.New("invalid engine state")
	ErrInvalidMultiPV           = errors.New("invalid MultiPV value")
	ErrHashAllocation           = errors.New("hash allocation failed")
	ErrNoMovesFound             = errors.New("no moves found in engine line")
	ErrInvalidPosition          = errors.New("invalid position")
	ErrIllegalMove              = errors.New("illegal move")
	ErrMissingReferenceDatabase = errors.New("missing reference database")
)
