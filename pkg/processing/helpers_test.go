package processing

import (
	"context"
	"database/sql"
	"fmt"
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
	if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

// testRegistry registers:
//
//	test.Append    appends "|<name>=<threshold>" to every artifact
//	test.Observe   appends the observation value of "filter"
//	test.Chain     pipeline a -> b -> c of test.Append, with free-form values
func testRegistry(t *testing.T) *steps.Registry {
	t.Helper()
	thresholdSpec := params.MustSpec(params.Param{Name: "threshold", Kind: params.KindInt, Default: 1, Help: "threshold"})
	chainSpec := params.MustSpec(
		params.Param{Name: "threshold", Kind: params.KindInt, Default: 1, Help: "threshold"},
		params.Param{Name: "values", Kind: params.KindAny, Default: map[string]any{}, Help: "free-form values"},
	)

	r := steps.NewRegistry()
	r.MustRegister(
		&steps.Class{Name: "test.Append", Spec: thresholdSpec, New: func(cfg *params.Resolved) (steps.Processor, error) {
			threshold := cfg.Int("threshold")
			return steps.ProcessorFunc(func(_ context.Context, sc *steps.Context, in []*steps.Artifact) ([]*steps.Artifact, error) {
				for _, a := range in {
					a.Data = append(a.Data, fmt.Sprintf("|%s=%d", sc.Step.Name(), threshold)...)
				}
				return in, nil
			}), nil
		}},
		&steps.Class{Name: "test.Observe", New: func(*params.Resolved) (steps.Processor, error) {
			return steps.ProcessorFunc(func(_ context.Context, sc *steps.Context, in []*steps.Artifact) ([]*steps.Artifact, error) {
				for _, a := range in {
					a.Data = append(a.Data, fmt.Sprintf("|filter=%v", sc.Runtime.Observation["filter"])...)
				}
				return in, nil
			}), nil
		}},
		&steps.Class{Name: "test.Chain", Spec: chainSpec, Members: []steps.Member{
			{Name: "a", Class: "test.Append"},
			{Name: "b", Class: "test.Append"},
			{Name: "c", Class: "test.Append"},
		}},
	)
	return r
}

// staticProvider returns the same retrieved values for every class.
type staticProvider struct {
	values map[string]any
	seen   []map[string]any
}

func (p *staticProvider) Retrieve(_ context.Context, _ *steps.Class, observation map[string]any) (params.Source, bool, error) {
	p.seen = append(p.seen, observation)
	if p.values == nil {
		return params.Source{}, false, nil
	}
	return params.NewSource(params.RetrievedConfig, "static", p.values), true, nil
}

func artifact(id, data string) *steps.Artifact {
	return &steps.Artifact{ID: id, Data: []byte(data)}
}

// recordingDB records the statements a ledger executes.
type recordingDB struct {
	queries []string
}

func (d *recordingDB) ExecContext(_ context.Context, query string, _ ...any) (sql.Result, error) {
	d.queries = append(d.queries, query)
	return nil, nil
}
