package bridge

import (
	"errors"
	"fmt"
)

// The bridge's failure taxonomy. None of these are fatal to an instance: the
// design favors availability (keep ticking) over strict correctness. Every
// error becomes operator-visible only through the instance's response text.

// CompileError reports a rejected script proposal. The previously committed
// source is always retained.
type CompileError struct {
	Err error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("compile error: %v", e.Err)
}

func (e *CompileError) Unwrap() error { return e.Err }

// RuntimeError reports a throwing update or command evaluation. The scope is
// left in whatever partially-mutated state the script produced; the runtime
// provides no transactional rollback.
type RuntimeError struct {
	Err error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("runtime error: %v", e.Err)
}

func (e *RuntimeError) Unwrap() error { return e.Err }

// EntityError is a marshalling failure isolated to a single entity. It never
// aborts the batch it occurred in.
type EntityError struct {
	Key string
	Err error
}

func (e *EntityError) Error() string {
	return fmt.Sprintf("entity %q: %v", e.Key, e.Err)
}

func (e *EntityError) Unwrap() error { return e.Err }

// MarshalError aggregates the per-entity failures of one snapshot or
// write-back pass.
type MarshalError struct {
	Entities []*EntityError
}

func (e *MarshalError) Error() string {
	if len(e.Entities) == 1 {
		return fmt.Sprintf("marshal error: %v", e.Entities[0])
	}
	return fmt.Sprintf("marshal error: %d entities failed, first: %v", len(e.Entities), e.Entities[0])
}

func (e *MarshalError) Unwrap() []error {
	out := make([]error, len(e.Entities))
	for i, ee := range e.Entities {
		out[i] = ee
	}
	return out
}

// ErrBudgetExceeded is the interrupt value installed when an evaluation
// overruns its wall-clock budget. Exhaustion is a recoverable per-tick
// error, not a crash.
var ErrBudgetExceeded = errors.New("script execution budget exceeded")

// BudgetError wraps ErrBudgetExceeded with the evaluation that overran.
type BudgetError struct {
	Phase string // "update" or "command"
}

func (e *BudgetError) Error() string {
	return fmt.Sprintf("%s aborted: %v", e.Phase, ErrBudgetExceeded)
}

func (e *BudgetError) Unwrap() error { return ErrBudgetExceeded }

// CapabilityError reports a failed declared-capability evaluation. It is
// logged, never surfaced to the operator; the instance falls back to the
// default capability set.
type CapabilityError struct {
	Err error
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("capability negotiation failed: %v", e.Err)
}

func (e *CapabilityError) Unwrap() error { return e.Err }
