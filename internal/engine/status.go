package engine

import (
	"errors"
	"fmt"
)

// Status is the completion code reported by a request.
type Status int

const (
	StatusOK             Status = 0
	StatusGeneralError   Status = -1
	StatusNotImplemented Status = -2
	StatusRequestBusy    Status = -8
	StatusResultNotReady Status = -9
	// StatusInferNotStarted is reported by a request that has never run.
	StatusInferNotStarted Status = -11
)

// Idle reports whether a request with this status can accept a new job.
func (s Status) Idle() bool {
	return s == StatusOK || s == StatusInferNotStarted
}

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusGeneralError:
		return "general error"
	case StatusNotImplemented:
		return "not implemented"
	case StatusRequestBusy:
		return "request busy"
	case StatusResultNotReady:
		return "result not ready"
	case StatusInferNotStarted:
		return "infer not started"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// ErrExecution is matched by every ExecutionError.
var ErrExecution = errors.New("engine execution failed")

// ExecutionError is a failure reported by the runtime for one job.
type ExecutionError struct {
	Status Status
	Err    error
}

func (e *ExecutionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%v: %s", ErrExecution, e.Status)
	}
	return fmt.Sprintf("%v: %s: %v", ErrExecution, e.Status, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

func (e *ExecutionError) Is(target error) bool {
	return target == ErrExecution
}
