package builtin

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/systemstart/steppipe/pkg/params"
	"github.com/systemstart/steppipe/pkg/steps"
)

var generateClass = &steps.Class{
	Name: GenerateClass,
	Help: "Renders an inline template into a new artifact appended to the inputs. The template sees .Values, .Observation and .Inputs.",
	Spec: params.MustSpec(
		params.Param{Name: "template", Kind: params.KindString, Required: true, Help: "inline Go template"},
		params.Param{Name: "output", Kind: params.KindString, Required: true, Help: "ID of the generated artifact"},
		params.Param{Name: "values", Kind: params.KindAny, Default: map[string]any{}, Help: "values made available as .Values"},
	),
	New:          newGenerateStep,
	NamesOutputs: true,
}

type generateStep struct {
	template string
	output   string
	values   any
}

func newGenerateStep(cfg *params.Resolved) (steps.Processor, error) {
	s := &generateStep{template: cfg.String("template"), output: cfg.String("output")}
	if s.output == "" {
		return nil, fmt.Errorf("output must not be empty")
	}
	if filepath.IsAbs(s.output) {
		return nil, fmt.Errorf("output %q must be relative", s.output)
	}
	s.values, _ = cfg.Get("values")
	return s, nil
}

func (s *generateStep) Process(_ context.Context, sc *steps.Context, in []*steps.Artifact) ([]*steps.Artifact, error) {
	ids := make([]string, len(in))
	for i, a := range in {
		ids[i] = a.ID
	}
	data := templateData(sc, s.values)
	data["Inputs"] = ids

	out, err := render(sc.Step.Name(), s.template, data, false)
	if err != nil {
		return nil, err
	}

	sc.Logger.Info("Generated artifact", "output", s.output)
	return append(in, &steps.Artifact{ID: s.output, Data: out}), nil
}
