package metrics

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/systemstart/steppipe/pkg/params"
	"github.com/systemstart/steppipe/pkg/steps"
)

func newInstance(t *testing.T) *steps.Instance {
	t.Helper()
	r := steps.NewRegistry()
	r.MustRegister(&steps.Class{Name: "test.Noop", New: func(*params.Resolved) (steps.Processor, error) {
		return steps.ProcessorFunc(func(_ context.Context, _ *steps.Context, in []*steps.Artifact) ([]*steps.Artifact, error) {
			return in, nil
		}), nil
	}})
	inst, err := r.New(context.Background(), "test.Noop", steps.BuildOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return inst
}

func TestCollector_Observe(t *testing.T) {
	c := NewCollector("")
	inst := newInstance(t)

	rt := &steps.Runtime{Observers: []steps.Observer{c}}
	for range 2 {
		if _, err := inst.Run(context.Background(), rt, &steps.Artifact{ID: "a.txt"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if got := testutil.ToFloat64(c.Executions.WithLabelValues("test.Noop", "completed")); got != 2 {
		t.Errorf("executions = %v", got)
	}
	if got := testutil.ToFloat64(c.Active.WithLabelValues("test.Noop")); got != 0 {
		t.Errorf("active = %v", got)
	}
	if got := testutil.CollectAndCount(c.Duration); got != 1 {
		t.Errorf("duration series = %d", got)
	}
}

func TestCollector_Skipped(t *testing.T) {
	c := NewCollector("test")
	inst := newInstance(t)
	c.StepFinished(context.Background(), inst, &steps.Result{Status: steps.StatusSkipped, Elapsed: time.Second})

	if got := testutil.ToFloat64(c.Executions.WithLabelValues("test.Noop", "skipped")); got != 1 {
		t.Errorf("executions = %v", got)
	}
	if got := testutil.ToFloat64(c.Active.WithLabelValues("test.Noop")); got != 0 {
		t.Errorf("active = %v", got)
	}
}

func TestCollector_WriteTextfile(t *testing.T) {
	c := NewCollector("")
	inst := newInstance(t)
	c.StepStarted(context.Background(), inst)
	c.StepFinished(context.Background(), inst, &steps.Result{Status: steps.StatusFailed, Elapsed: time.Millisecond})

	f := filepath.Join(t.TempDir(), "steppipe.prom")
	if err := c.WriteTextfile(f); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, err := os.ReadFile(f)
	if err != nil {
		t.Fatal(err)
	}
	want := `steppipe_step_executions_total{class="test.Noop",status="failed"} 1`
	if !strings.Contains(string(data), want) {
		t.Errorf("textfile missing %q:\n%s", want, data)
	}
}
