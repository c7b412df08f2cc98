// Package builtin provides the step classes shipped with steppipe.
package builtin

import (
	"context"
	"fmt"

	"github.com/systemstart/steppipe/pkg/params"
	"github.com/systemstart/steppipe/pkg/steps"
)

// Class names.
const (
	PassthroughClass = "builtin.Passthrough"
	TemplateClass    = "builtin.Template"
	GenerateClass    = "builtin.Generate"
	SplitClass       = "builtin.Split"
	ExecClass        = "builtin.Exec"
	ConditionClass   = "builtin.Condition"
	RenderSplitClass = "builtin.RenderSplit"
)

// Classes returns every builtin class.
func Classes() []*steps.Class {
	return []*steps.Class{
		passthroughClass,
		templateClass,
		generateClass,
		splitClass,
		execClass,
		conditionClass,
		renderSplitClass,
	}
}

// Register adds the builtin classes to r.
func Register(r *steps.Registry) error {
	for _, c := range Classes() {
		if err := r.Register(c); err != nil {
			return fmt.Errorf("registering builtin classes: %w", err)
		}
	}
	return nil
}

var passthroughClass = &steps.Class{
	Name: PassthroughClass,
	Help: "Returns its inputs unchanged. Useful as a placeholder member or to persist inputs under new names.",
	New: func(*params.Resolved) (steps.Processor, error) {
		return steps.ProcessorFunc(func(_ context.Context, _ *steps.Context, in []*steps.Artifact) ([]*steps.Artifact, error) {
			return in, nil
		}), nil
	},
}

var renderSplitClass = &steps.Class{
	Name: RenderSplitClass,
	Help: "Renders the inputs as templates, then splits the result into one file per manifest group.",
	Members: []steps.Member{
		{Name: "render", Class: TemplateClass},
		{Name: "split", Class: SplitClass},
	},
	NamesOutputs: true,
}
