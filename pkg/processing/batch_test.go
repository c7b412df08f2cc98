package processing

import (
	"context"
	"strings"
	"testing"

	"github.com/systemstart/steppipe/pkg/api"
	"github.com/systemstart/steppipe/pkg/store"
)

func TestRunBatch(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "in/foo.txt", "x")
	writeTestFile(t, dir, "chain.yaml", `
parameters:
  class: test.Chain
  save_results: true
  steps:
    b:
      threshold: 2
`)
	batchFile := writeTestFile(t, dir, "batch.yaml", `
runs:
  - name: first
    config: chain.yaml
    inputs: ["in/*.txt"]
    output_dir: first
  - name: second
    config: chain.yaml
    inputs: ["in/*.txt"]
    parameters:
      a.threshold: 7
    output_dir: second
  - name: observed
    config: test.Observe
    inputs: ["in/foo.txt"]
    parameters:
      save_results: true
    output_dir: observed
    context:
      filter: i
`)

	b, err := api.LoadBatch(batchFile)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mem := store.NewMemory()
	o := New(testRegistry(t), WithPersister(mem), WithObservation(map[string]any{"filter": "r"}))
	results, err := o.RunBatch(context.Background(), b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}

	tests := []struct {
		path string
		want string
	}{
		{"first/foo_chain.txt", "x|a=1|b=2|c=1"},
		{"second/foo_chain.txt", "x|a=7|b=2|c=1"},
		{"observed/foo_observe.txt", "x|filter=i"},
	}
	for _, tt := range tests {
		data, ok := mem.Get(tt.path)
		if !ok {
			t.Errorf("%s not saved, have %v", tt.path, mem.Paths())
			continue
		}
		if string(data) != tt.want {
			t.Errorf("%s = %q, want %q", tt.path, data, tt.want)
		}
	}
}

func TestRunBatch_CollectsFailures(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "in/foo.txt", "x")
	batchFile := writeTestFile(t, dir, "batch.yaml", `
runs:
  - name: missing-input
    config: test.Append
    inputs: ["in/*.fits"]
  - name: bad-param
    config: test.Append
    parameters:
      nope: 1
  - name: good
    config: test.Append
    inputs: ["in/foo.txt"]
`)
	b, err := api.LoadBatch(batchFile)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	results, err := New(testRegistry(t)).RunBatch(context.Background(), b)
	if err == nil || !strings.Contains(err.Error(), "2 run(s) failed: [missing-input bad-param]") {
		t.Fatalf("expected collected failures, got %v", err)
	}
	if results[0] != nil || results[1] != nil || results[2] == nil {
		t.Errorf("results = %v", results)
	}
	if got := string(results[2].Artifacts[0].Data); got != "x|Append=1" {
		t.Errorf("good run data = %q", got)
	}
}
