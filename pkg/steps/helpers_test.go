package steps

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/systemstart/steppipe/pkg/params"
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

var errBoom = errors.New("boom")

// appendStep appends "|<name>=<threshold>" to every artifact.
func appendStep(cfg *params.Resolved) (Processor, error) {
	threshold := cfg.Int("threshold")
	if threshold < 0 {
		return nil, fmt.Errorf("threshold must not be negative")
	}
	return ProcessorFunc(func(_ context.Context, sc *Context, in []*Artifact) ([]*Artifact, error) {
		for _, a := range in {
			a.Data = append(a.Data, fmt.Sprintf("|%s=%d", sc.Step.Name(), threshold)...)
		}
		return in, nil
	}), nil
}

// testRegistry registers:
//
//	test.Append    appends its name and threshold
//	test.Fail      always fails
//	test.Panic     panics
//	test.Chain     pipeline a -> b -> c of test.Append
//	test.Fanout    pipeline a -> b -> c where c reads the pipeline input
func testRegistry(t *testing.T) *Registry {
	t.Helper()
	thresholdSpec := params.MustSpec(params.Param{Name: "threshold", Kind: params.KindInt, Default: 1, Help: "threshold"})

	r := NewRegistry()
	r.MustRegister(
		&Class{Name: "test.Append", Spec: thresholdSpec, New: appendStep, ReferenceTypes: []string{"flat"}},
		&Class{Name: "test.Fail", New: func(*params.Resolved) (Processor, error) {
			return ProcessorFunc(func(context.Context, *Context, []*Artifact) ([]*Artifact, error) {
				return nil, errBoom
			}), nil
		}},
		&Class{Name: "test.Panic", New: func(*params.Resolved) (Processor, error) {
			return ProcessorFunc(func(context.Context, *Context, []*Artifact) ([]*Artifact, error) {
				panic("kaboom")
			}), nil
		}},
		&Class{Name: "test.Chain", Spec: thresholdSpec, Members: []Member{
			{Name: "a", Class: "test.Append"},
			{Name: "b", Class: "test.Append"},
			{Name: "c", Class: "test.Append"},
		}},
		&Class{Name: "test.Fanout", Members: []Member{
			{Name: "a", Class: "test.Append"},
			{Name: "b", Class: "test.Append"},
			{Name: "c", Class: "test.Append", Input: FromPipelineInput},
		}},
	)
	return r
}

func cli(values map[string]any) params.Source {
	return params.NewSource(params.CommandLine, "command line", values)
}

func user(values map[string]any) params.Source {
	return params.NewSource(params.UserConfig, "user.yaml", values)
}

func mustNew(t *testing.T, r *Registry, class string, opts BuildOptions) *Instance {
	t.Helper()
	inst, err := r.New(context.Background(), class, opts)
	if err != nil {
		t.Fatalf("New(%s): %v", class, err)
	}
	return inst
}

func input(id, data string) *Artifact {
	return &Artifact{ID: id, Data: []byte(data)}
}

// memPersister records persisted artifacts by path.
type memPersister struct {
	mu    sync.Mutex
	saved map[string]string
	err   error
}

func (p *memPersister) Persist(_ context.Context, path string, a *Artifact) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.saved == nil {
		p.saved = make(map[string]string)
	}
	p.saved[path] = string(a.Data)
	return "mem://" + path, nil
}

// recordingObserver records finished steps in order.
type recordingObserver struct {
	started  []string
	finished []string
}

func (o *recordingObserver) StepStarted(_ context.Context, s *Instance) {
	o.started = append(o.started, s.QualifiedName())
}

func (o *recordingObserver) StepFinished(_ context.Context, s *Instance, res *Result) {
	o.finished = append(o.finished, s.QualifiedName()+":"+string(res.Status))
}
