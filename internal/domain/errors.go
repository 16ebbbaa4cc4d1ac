package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrAdapter           = errors.New("venue adapter failure")
	ErrExecutionDisabled = errors.New("auto-execution disabled")
	ErrRiskHalted        = errors.New("execution halted by daily loss limit")
	ErrRiskLimit         = errors.New("daily loss limit would be exceeded")
	ErrNoExecutableSize  = errors.New("no executable size available")
	ErrUnknownOutcome    = errors.New("order outcome unknown after timeout")
	ErrRiskStateCorrupt  = errors.New("risk state corrupted")
)
