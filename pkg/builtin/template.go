package builtin

import (
	"bytes"
	"context"
	"fmt"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/bmatcuk/doublestar/v4"

	"github.com/systemstart/steppipe/pkg/params"
	"github.com/systemstart/steppipe/pkg/steps"
)

// DefaultInclude matches every artifact.
const DefaultInclude = "**"

var templateClass = &steps.Class{
	Name: TemplateClass,
	Help: "Renders artifacts as Go templates with sprig functions. Templates see .Values, .Observation and .Artifact.",
	Spec: params.MustSpec(
		params.Param{Name: "include", Kind: params.KindStringList, Default: []string{DefaultInclude}, Help: "glob patterns of artifact IDs to render"},
		params.Param{Name: "exclude", Kind: params.KindStringList, Default: []string{}, Help: "glob patterns of artifact IDs to leave untouched"},
		params.Param{Name: "values", Kind: params.KindAny, Default: map[string]any{}, Help: "values made available as .Values"},
		params.Param{Name: "strict", Kind: params.KindBool, Default: false, Help: "fail on missing keys instead of rendering <no value>"},
	),
	New: newTemplateStep,
}

type templateStep struct {
	include []string
	exclude []string
	values  any
	strict  bool
}

func newTemplateStep(cfg *params.Resolved) (steps.Processor, error) {
	s := &templateStep{
		include: cfg.Strings("include"),
		exclude: cfg.Strings("exclude"),
		strict:  cfg.Bool("strict"),
	}
	s.values, _ = cfg.Get("values")
	for _, p := range append(append([]string(nil), s.include...), s.exclude...) {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid glob pattern %q", p)
		}
	}
	if len(s.include) == 0 {
		s.include = []string{DefaultInclude}
	}
	return s, nil
}

func (s *templateStep) Process(_ context.Context, sc *steps.Context, in []*steps.Artifact) ([]*steps.Artifact, error) {
	selected := filterArtifacts(in, s.include, s.exclude)
	sc.Logger.Info("Rendering templates", "count", len(selected))

	for _, a := range selected {
		data := templateData(sc, s.values)
		data["Artifact"] = map[string]any{"ID": a.ID, "Meta": a.Meta}
		out, err := render(a.ID, string(a.Data), data, s.strict)
		if err != nil {
			return nil, fmt.Errorf("processing %s: %w", a.ID, err)
		}
		a.Data = out
		sc.Logger.Debug("Template rendered", "artifact", a.ID)
	}
	return in, nil
}

// templateData is the data every template of a step sees.
func templateData(sc *steps.Context, values any) map[string]any {
	return map[string]any{
		"Values":      values,
		"Observation": sc.Runtime.Observation,
		"Step":        sc.Step.QualifiedName(),
	}
}

func render(name, text string, data any, strict bool) ([]byte, error) {
	tmpl := template.New(name).Funcs(sprig.FuncMap())
	if strict {
		tmpl = tmpl.Option("missingkey=error")
	}
	tmpl, err := tmpl.Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parsing template: %w", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("executing template: %w", err)
	}
	return buf.Bytes(), nil
}

// filterArtifacts returns the artifacts whose ID matches an include pattern
// and no exclude pattern.
func filterArtifacts(in []*steps.Artifact, include, exclude []string) []*steps.Artifact {
	var out []*steps.Artifact
	for _, a := range in {
		if matchAny(include, a.ID) && !matchAny(exclude, a.ID) {
			out = append(out, a)
		}
	}
	return out
}

func matchAny(patterns []string, id string) bool {
	for _, p := range patterns {
		if doublestar.MatchUnvalidated(p, id) {
			return true
		}
	}
	return false
}
