package engine

import (
	"errors"
	"fmt"
)

var (
	ErrUnsupportedIntervention = errors.New("unsupported intervention")
	ErrCheckpointCorrupt       = errors.New("checkpoint corrupt")
)

// InitializationError reports adapter setup failure: inaccessible
// workspace, malformed config, framework bootstrap failure.
type InitializationError struct {
	Reason string
	Err    error
}

func (e *InitializationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("engine initialization failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("engine initialization failed: %s", e.Reason)
}

func (e *InitializationError) Unwrap() error { return e.Err }

// ExecutionError is the normalized form of any failure raised by a
// wrapped framework during a run. Timeout marks executions cut off by
// the mode's wall-clock limit.
type ExecutionError struct {
	Message string
	Timeout bool
	Err     error
}

func (e *ExecutionError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("execution timed out: %s", e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("execution failed: %s: %v", e.Message, e.Err)
	}
	return fmt.Sprintf("execution failed: %s", e.Message)
}

func (e *ExecutionError) Unwrap() error { return e.Err }
