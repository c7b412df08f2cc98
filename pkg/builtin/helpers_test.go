package builtin

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/systemstart/steppipe/pkg/params"
	"github.com/systemstart/steppipe/pkg/steps"
)

// writeTestFile writes content to a file in dir, failing the test on error.
func writeTestFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

func testRegistry(t *testing.T) *steps.Registry {
	t.Helper()
	r := steps.NewRegistry()
	if err := Register(r); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return r
}

// newStep builds an instance of class configured with values at the user
// tier.
func newStep(t *testing.T, class string, values map[string]any) *steps.Instance {
	t.Helper()
	inst, err := testRegistry(t).New(context.Background(), class, steps.BuildOptions{
		Sources: []params.Source{params.NewSource(params.UserConfig, "test.yaml", values)},
	})
	if err != nil {
		t.Fatalf("New(%s): %v", class, err)
	}
	return inst
}

// runStep builds and runs class on inputs.
func runStep(t *testing.T, class string, values map[string]any, rt *steps.Runtime, inputs ...*steps.Artifact) (*steps.Result, error) {
	t.Helper()
	return newStep(t, class, values).Run(context.Background(), rt, inputs...)
}

func artifact(id, data string) *steps.Artifact {
	return &steps.Artifact{ID: id, Data: []byte(data)}
}

func byID(arts []*steps.Artifact) map[string]string {
	out := make(map[string]string, len(arts))
	for _, a := range arts {
		out[a.ID] = string(a.Data)
	}
	return out
}

// recordingPersister records the paths it was asked to persist.
type recordingPersister struct {
	paths []string
}

func (p *recordingPersister) Persist(_ context.Context, path string, _ *steps.Artifact) (string, error) {
	p.paths = append(p.paths, path)
	return path, nil
}
