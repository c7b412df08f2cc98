package steps

import (
	"context"
	"errors"

	"github.com/systemstart/steppipe/pkg/params"
)

// ErrAbort is the error a hook returns to stop its step without a more
// specific cause.
var ErrAbort = errors.New("aborted by hook")

// HookPhase tells a hook whether it runs before or after the core operation.
type HookPhase string

const (
	HookPre  HookPhase = "pre"
	HookPost HookPhase = "post"
)

// HookContext is what a hook sees of the step it wraps.
type HookContext struct {
	Step    *Instance
	Runtime *Runtime
	Phase   HookPhase
}

// Config returns the wrapped step's configuration. The value is immutable.
func (hc *HookContext) Config() *params.Resolved { return hc.Step.Config() }

// Hook runs immediately before or after a step's core operation. Returning
// nil artifacts keeps the current ones; returning an error aborts the step.
type Hook interface {
	Name() string
	Transform(ctx context.Context, hc *HookContext, artifacts []*Artifact) ([]*Artifact, error)
}

type funcHook struct {
	name string
	fn   func(ctx context.Context, hc *HookContext, artifacts []*Artifact) ([]*Artifact, error)
}

func (h funcHook) Name() string { return h.name }

func (h funcHook) Transform(ctx context.Context, hc *HookContext, artifacts []*Artifact) ([]*Artifact, error) {
	return h.fn(ctx, hc, artifacts)
}

// HookFunc adapts a function to the Hook interface.
func HookFunc(name string, fn func(ctx context.Context, hc *HookContext, artifacts []*Artifact) ([]*Artifact, error)) Hook {
	return funcHook{name: name, fn: fn}
}

// Transform runs the instance as a hook of hc.Step. Hook instances neither
// rename nor persist artifacts; a skipped hook keeps the current artifacts.
func (s *Instance) Transform(ctx context.Context, hc *HookContext, artifacts []*Artifact) ([]*Artifact, error) {
	res, err := s.run(ctx, hc.Runtime, artifacts, true)
	if err != nil {
		return nil, err
	}
	if res.Status == StatusSkipped {
		return nil, nil
	}
	return res.Artifacts, nil
}

func (s *Instance) runHooks(ctx context.Context, rt *Runtime, phase HookPhase, hooks []Hook, current []*Artifact) ([]*Artifact, error) {
	hc := &HookContext{Step: s, Runtime: rt, Phase: phase}
	for _, h := range hooks {
		out, err := h.Transform(ctx, hc, current)
		if err != nil {
			return nil, &HookAbortError{Step: s.QualifiedName(), Hook: h.Name(), Err: err}
		}
		if out != nil {
			current = out
		}
	}
	return current, nil
}
