package builtin

import (
	"context"
	"fmt"
	"strings"

	"github.com/expr-lang/expr"

	"github.com/systemstart/steppipe/pkg/params"
	"github.com/systemstart/steppipe/pkg/steps"
)

var conditionClass = &steps.Class{
	Name: ConditionClass,
	Help: "Evaluates a boolean expression and aborts when it is false. Used as a pre- or post-hook. " +
		"The expression sees artifacts (id, size, meta), count, observation and step.",
	Spec: params.MustSpec(
		params.Param{Name: "expression", Kind: params.KindString, Required: true, Help: "expr-lang expression returning a bool"},
	),
	New:          newConditionStep,
	NamesOutputs: true,
}

type conditionStep struct {
	expression string
}

func newConditionStep(cfg *params.Resolved) (steps.Processor, error) {
	s := &conditionStep{expression: strings.TrimSpace(cfg.String("expression"))}
	if s.expression == "" {
		return nil, fmt.Errorf("expression must not be empty")
	}
	if _, err := expr.Compile(s.expression); err != nil {
		return nil, fmt.Errorf("compile condition %q: %w", s.expression, err)
	}
	return s, nil
}

func (s *conditionStep) Process(_ context.Context, sc *steps.Context, in []*steps.Artifact) ([]*steps.Artifact, error) {
	env := conditionEnv(sc, in)
	program, err := expr.Compile(s.expression, expr.Env(env), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile condition %q: %w", s.expression, err)
	}
	output, err := expr.Run(program, env)
	if err != nil {
		return nil, fmt.Errorf("eval condition %q: %w", s.expression, err)
	}
	ok, isBool := output.(bool)
	if !isBool {
		return nil, fmt.Errorf("condition %q did not return bool (got %T: %v)", s.expression, output, output)
	}
	if !ok {
		return nil, fmt.Errorf("%w: condition %q is false", steps.ErrAbort, s.expression)
	}
	sc.Logger.Debug("Condition holds", "expression", s.expression)
	return in, nil
}

func conditionEnv(sc *steps.Context, in []*steps.Artifact) map[string]any {
	artifacts := make([]any, len(in))
	for i, a := range in {
		artifacts[i] = map[string]any{"id": a.ID, "size": len(a.Data), "meta": a.Meta}
	}
	observation := sc.Runtime.Observation
	if observation == nil {
		observation = map[string]any{}
	}
	return map[string]any{
		"artifacts":   artifacts,
		"count":       len(in),
		"observation": observation,
		"step":        sc.Step.QualifiedName(),
	}
}
