package steps

import (
	"context"
	"log/slog"
	"maps"
	"slices"

	"github.com/systemstart/steppipe/pkg/params"
)

// Artifact is the unit of data passed between steps. ID identifies the
// artifact, usually the base name of the file it was read from.
type Artifact struct {
	ID   string
	Data []byte
	Meta map[string]any
}

// Clone returns a deep copy of the artifact bytes and a shallow copy of Meta.
func (a *Artifact) Clone() *Artifact {
	if a == nil {
		return nil
	}
	return &Artifact{ID: a.ID, Data: slices.Clone(a.Data), Meta: maps.Clone(a.Meta)}
}

func cloneArtifacts(in []*Artifact) []*Artifact {
	if in == nil {
		return nil
	}
	out := make([]*Artifact, len(in))
	for i, a := range in {
		out[i] = a.Clone()
	}
	return out
}

// Processor is the core operation of a step class.
type Processor interface {
	Process(ctx context.Context, sc *Context, inputs []*Artifact) ([]*Artifact, error)
}

// ProcessorFunc adapts a function to the Processor interface.
type ProcessorFunc func(ctx context.Context, sc *Context, inputs []*Artifact) ([]*Artifact, error)

// Process calls f.
func (f ProcessorFunc) Process(ctx context.Context, sc *Context, inputs []*Artifact) ([]*Artifact, error) {
	return f(ctx, sc, inputs)
}

// Context provides the runtime context for one step execution.
type Context struct {
	Step    *Instance
	Runtime *Runtime
	Logger  *slog.Logger

	// Inputs are the artifacts the step was run with, before pre-hooks.
	Inputs []*Artifact

	result *Result
}

// Config returns the resolved configuration of the running step.
func (c *Context) Config() *params.Resolved { return c.Step.Config() }

// ReferenceOverride returns the override_<reftype> value, or "".
func (c *Context) ReferenceOverride(reftype string) string {
	return c.Step.Config().String(OverridePrefix + reftype)
}

// Members returns the members of the running pipeline in execution order.
func (c *Context) Members() []*Instance { return c.Step.Members() }

// RunMember runs the named member of the running pipeline and records its
// result as a child of the pipeline's result.
func (c *Context) RunMember(ctx context.Context, name string, inputs ...*Artifact) (*Result, error) {
	m := c.Step.Member(name)
	if m == nil {
		return nil, &UnknownMemberError{Pipeline: c.Step.QualifiedName(), Member: name}
	}
	res, err := m.Run(ctx, c.Runtime, inputs...)
	if c.result != nil && res != nil {
		c.result.Children = append(c.result.Children, res)
	}
	return res, err
}
