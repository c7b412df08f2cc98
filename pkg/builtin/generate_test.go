package builtin

import (
	"errors"
	"strings"
	"testing"

	"github.com/systemstart/steppipe/pkg/params"
	"github.com/systemstart/steppipe/pkg/steps"
)

func TestGenerateStep_Run(t *testing.T) {
	res, err := runStep(t, GenerateClass, map[string]any{
		"output":   "output.yaml",
		"template": "host: {{ .Values.domain }}",
		"values":   map[string]any{"domain": "example.com"},
	}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := byID(res.Artifacts)
	if got["output.yaml"] != "host: example.com" {
		t.Fatalf("expected 'host: example.com', got %v", got)
	}
}

func TestGenerateStep_KeepsInputs(t *testing.T) {
	res, err := runStep(t, GenerateClass, map[string]any{
		"output":   "sub/dir/index.txt",
		"template": `{{ join "," .Inputs }}`,
	}, nil, artifact("a.yaml", "a"), artifact("b.yaml", "b"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := byID(res.Artifacts)
	if len(got) != 3 || got["a.yaml"] != "a" || got["b.yaml"] != "b" {
		t.Fatalf("inputs not passed through: %v", got)
	}
	if got["sub/dir/index.txt"] != "a.yaml,b.yaml" {
		t.Errorf("index = %q", got["sub/dir/index.txt"])
	}
}

func TestGenerateStep_Errors(t *testing.T) {
	tests := []struct {
		name   string
		values map[string]any
		errMsg string
	}{
		{"missing template", map[string]any{"output": "x"}, "missing required parameter"},
		{"absolute output", map[string]any{"output": "/etc/x", "template": "x"}, "must be relative"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := testRegistry(t).New(t.Context(), GenerateClass, steps.BuildOptions{
				Sources: []params.Source{params.NewSource(params.UserConfig, "test.yaml", tt.values)},
			})
			if !errors.Is(err, params.ErrConfiguration) {
				t.Fatalf("expected configuration error, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("error %q does not contain %q", err, tt.errMsg)
			}
		})
	}

	_, err := runStep(t, GenerateClass, map[string]any{"output": "x", "template": "{{ .Nope.deeper }"}, nil)
	if err == nil || !strings.Contains(err.Error(), "parsing template") {
		t.Errorf("expected parse error, got %v", err)
	}
}
