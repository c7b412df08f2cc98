package steps

import (
	"context"
	"fmt"
	"log/slog"
)

// FailureStrategy selects what happens when a core operation fails.
type FailureStrategy int

const (
	// FailurePropagate returns the error to the caller.
	FailurePropagate FailureStrategy = iota
	// FailureTrapAndPropagate calls the runtime's trap at the failure point,
	// then returns the error.
	FailureTrapAndPropagate
)

func (f FailureStrategy) String() string {
	switch f {
	case FailurePropagate:
		return "propagate"
	case FailureTrapAndPropagate:
		return "trap-and-propagate"
	default:
		return fmt.Sprintf("strategy(%d)", int(f))
	}
}

// ParseFailureStrategy parses the String form of a strategy.
func ParseFailureStrategy(s string) (FailureStrategy, error) {
	switch s {
	case "", "propagate":
		return FailurePropagate, nil
	case "trap-and-propagate", "trap":
		return FailureTrapAndPropagate, nil
	default:
		return FailurePropagate, fmt.Errorf("unknown failure strategy %q", s)
	}
}

// TrapFunc is called with the failing step and its error. It may block, for
// example to wait for an operator, before the error propagates.
type TrapFunc func(ctx context.Context, step *Instance, err error)

// Persister stores a finished artifact under path and returns the location
// it was written to. Implementations must not leave a partial artifact at
// the final location when they fail.
type Persister interface {
	Persist(ctx context.Context, path string, a *Artifact) (string, error)
}

// Observer is notified around every step execution, members and hooks
// included.
type Observer interface {
	StepStarted(ctx context.Context, step *Instance)
	StepFinished(ctx context.Context, step *Instance, res *Result)
}

// Runtime carries the collaborators shared by all steps of one run.
type Runtime struct {
	Logger    *slog.Logger
	Persister Persister
	Strategy  FailureStrategy
	Trap      TrapFunc
	Observers []Observer

	// KnownSuffixes are stripped from input identifiers before a step adds
	// its own suffix, in addition to the names found in the running tree.
	KnownSuffixes []string

	// Observation is the merged observation context, available to templates
	// and conditions.
	Observation map[string]any
}

func (rt *Runtime) logger() *slog.Logger {
	if rt.Logger != nil {
		return rt.Logger
	}
	return slog.Default()
}

func (rt *Runtime) started(ctx context.Context, step *Instance) {
	for _, o := range rt.Observers {
		o.StepStarted(ctx, step)
	}
}

func (rt *Runtime) finished(ctx context.Context, step *Instance, res *Result) {
	for _, o := range rt.Observers {
		o.StepFinished(ctx, step, res)
	}
}

func (rt *Runtime) trap(ctx context.Context, step *Instance, err error) {
	if rt.Strategy != FailureTrapAndPropagate || rt.Trap == nil {
		return
	}
	rt.logger().Warn("Trapping step failure", "step", step.QualifiedName(), "error", err)
	rt.Trap(ctx, step, err)
}
