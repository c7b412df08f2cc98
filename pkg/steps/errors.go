package steps

import (
	"errors"
	"fmt"
)

// ErrFrozen is returned when configuring an instance that has already run.
var ErrFrozen = errors.New("step instance is frozen")

// UnknownStepClassError reports a class name missing from the registry.
type UnknownStepClassError struct {
	Class string
}

func (e *UnknownStepClassError) Error() string {
	return fmt.Sprintf("unknown step class %q", e.Class)
}

// UnknownMemberError reports a member name a pipeline does not own.
type UnknownMemberError struct {
	Pipeline string
	Member   string
}

func (e *UnknownMemberError) Error() string {
	return fmt.Sprintf("pipeline %q has no member %q", e.Pipeline, e.Member)
}

// StepExecutionError wraps a failure raised by a step's core operation.
type StepExecutionError struct {
	Step string
	Err  error
}

func (e *StepExecutionError) Error() string {
	return fmt.Sprintf("step %q failed: %v", e.Step, e.Err)
}

func (e *StepExecutionError) Unwrap() error { return e.Err }

// HookAbortError reports a pre-hook that stopped its step before the core
// operation ran, or a post-hook that failed.
type HookAbortError struct {
	Step string
	Hook string
	Err  error
}

func (e *HookAbortError) Error() string {
	return fmt.Sprintf("step %q: hook %q aborted: %v", e.Step, e.Hook, e.Err)
}

func (e *HookAbortError) Unwrap() error { return e.Err }

// PanicError carries a recovered panic from a core operation.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}
