package ledger

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"github.com/systemstart/steppipe/pkg/params"
	"github.com/systemstart/steppipe/pkg/steps"
)

type execCall struct {
	query string
	args  []any
}

type fakeDB struct {
	calls []execCall
	err   error
}

func (f *fakeDB) ExecContext(_ context.Context, query string, args ...any) (sql.Result, error) {
	f.calls = append(f.calls, execCall{query: query, args: args})
	if f.err != nil {
		return nil, f.err
	}
	return nil, nil
}

func registry() *steps.Registry {
	r := steps.NewRegistry()
	r.MustRegister(
		&steps.Class{Name: "test.Noop", New: func(*params.Resolved) (steps.Processor, error) {
			return steps.ProcessorFunc(func(_ context.Context, _ *steps.Context, in []*steps.Artifact) ([]*steps.Artifact, error) {
				return in, nil
			}), nil
		}},
		&steps.Class{Name: "test.Pair", Members: []steps.Member{
			{Name: "first", Class: "test.Noop"},
			{Name: "second", Class: "test.Noop"},
		}},
	)
	return r
}

func TestLedgerQueries(t *testing.T) {
	if !strings.Contains(finishExecutionQuery, "ON CONFLICT (step_execution_id) DO UPDATE") {
		t.Fatalf("expected upsert clause in finish query")
	}
	if !strings.Contains(createExecutionsQuery, "REFERENCES step_runs (run_id)") {
		t.Fatalf("expected run foreign key")
	}
}

func TestNew_NilDB(t *testing.T) {
	if l := New(nil, nil); l != nil {
		t.Fatal("expected nil ledger")
	}
	var l *Ledger
	if err := l.Migrate(context.Background()); err == nil {
		t.Fatal("expected error from nil ledger")
	}
	l.StepStarted(WithRunID(context.Background(), "x"), nil)
}

func TestMigrate(t *testing.T) {
	db := &fakeDB{}
	if err := New(db, nil).Migrate(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(db.calls) != 2 {
		t.Fatalf("expected 2 statements, got %d", len(db.calls))
	}

	db.err = errors.New("permission denied")
	err := New(db, nil).Migrate(context.Background())
	if err == nil || !strings.Contains(err.Error(), "migrating ledger") {
		t.Fatalf("expected migrate error, got %v", err)
	}
}

func TestLedger_RecordsRun(t *testing.T) {
	db := &fakeDB{}
	l := New(db, nil)
	inst, err := registry().New(context.Background(), "test.Pair", steps.BuildOptions{
		Sources: []params.Source{params.NewSource(params.CommandLine, "command line", map[string]any{"second.skip": "true"})},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx := context.Background()
	runID, err := l.BeginRun(ctx, inst)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx = WithRunID(ctx, runID)

	res, err := inst.Run(ctx, &steps.Runtime{Observers: []steps.Observer{l}}, &steps.Artifact{ID: "a.txt"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := l.EndRun(ctx, runID, res, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// run insert, pipeline start, first start, first finish, second skipped,
	// pipeline finish, run update
	if len(db.calls) != 7 {
		t.Fatalf("expected 7 statements, got %d", len(db.calls))
	}
	if db.calls[0].query != insertRunQuery || db.calls[6].query != finishRunQuery {
		t.Errorf("unexpected run statements")
	}
	skipped := db.calls[4]
	if skipped.query != finishExecutionQuery || skipped.args[2] != "Pair.second" || skipped.args[4] != "skipped" {
		t.Errorf("skipped member recorded as %v", skipped.args)
	}
	for _, c := range db.calls[1:6] {
		if c.args[1] != runID {
			t.Errorf("execution recorded under run %v, want %s", c.args[1], runID)
		}
	}
	if len(l.running) != 0 {
		t.Errorf("executions left open: %d", len(l.running))
	}
}

func TestLedger_NoRunID(t *testing.T) {
	db := &fakeDB{}
	l := New(db, nil)
	inst, err := registry().New(context.Background(), "test.Noop", steps.BuildOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := inst.Run(context.Background(), &steps.Runtime{Observers: []steps.Observer{l}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(db.calls) != 0 {
		t.Errorf("expected nothing recorded without a run id, got %d", len(db.calls))
	}
}

func TestConfig(t *testing.T) {
	t.Setenv("STEPPIPE_DATABASE_URL", "")
	cfg, err := ConfigFromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Enabled() {
		t.Error("expected ledger disabled without URL")
	}
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error")
	}

	t.Setenv("STEPPIPE_DATABASE_URL", "postgres://localhost/steppipe")
	t.Setenv("STEPPIPE_DATABASE_MAX_IDLE_CONNS", "9")
	cfg, err = ConfigFromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "MAX_IDLE_CONNS") {
		t.Errorf("expected idle conns error, got %v", err)
	}

	t.Setenv("STEPPIPE_DATABASE_PING_TIMEOUT", "soon")
	if _, err := ConfigFromEnv(); err == nil {
		t.Error("expected duration parse error")
	}
}
