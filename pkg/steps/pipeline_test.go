package steps

import (
	"context"
	"errors"
	"testing"

	"github.com/systemstart/steppipe/pkg/api"
	"github.com/systemstart/steppipe/pkg/params"
)

func statuses(res *Result) map[string]Status {
	out := make(map[string]Status)
	for _, c := range res.Children {
		out[c.Name] = c.Status
	}
	return out
}

func TestPipeline_Linear(t *testing.T) {
	r := testRegistry(t)
	pipe := mustNew(t, r, "test.Chain", BuildOptions{Name: "chain"})

	res, err := pipe.Run(context.Background(), nil, input("foo.txt", ""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Children) != 3 {
		t.Fatalf("expected 3 child results, got %d", len(res.Children))
	}
	if got := res.Child("b").Artifacts[0].ID; got != "foo_b.txt" {
		t.Errorf("b output = %q, want foo_b.txt", got)
	}
	// the last member's result is not renamed by the pipeline
	if got := res.Child("c").Artifacts[0].ID; got != "foo_c.txt" {
		t.Errorf("c output = %q, want foo_c.txt", got)
	}
	out := res.Artifacts[0]
	if out.ID != "foo_chain.txt" {
		t.Errorf("ID = %q, want foo_chain.txt", out.ID)
	}
	if string(out.Data) != "|a=1|b=1|c=1" {
		t.Errorf("data = %q", out.Data)
	}
}

func TestPipeline_MemberOverrideBeatsMemberConfigFile(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "a.yaml", "parameters:\n  threshold: 2\n")
	pipeFile := writeTestFile(t, dir, "pipe.yaml", "parameters:\n  steps:\n    a:\n      config_file: a.yaml\n      threshold: 5\n")
	pf, err := api.LoadParameterFile(pipeFile)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	r := testRegistry(t)
	pipe := mustNew(t, r, "test.Chain", BuildOptions{ConfigFile: pf.FilePath, Sources: []params.Source{pf.Source(params.UserConfig)}})
	if pipe.Name() != "pipe" {
		t.Errorf("name = %q", pipe.Name())
	}

	res, err := pipe.Run(context.Background(), nil, input("x.txt", ""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := string(res.Artifacts[0].Data); got != "|a=5|b=1|c=1" {
		t.Errorf("data = %q", got)
	}
}

func TestPipeline_ContinueOnError(t *testing.T) {
	r := testRegistry(t)

	tests := []struct {
		class    string
		want     map[string]Status
		wantData string
	}{
		{
			class:    "test.Chain",
			want:     map[string]Status{"a": StatusCompleted, "b": StatusFailed, "c": StatusSkipped},
			wantData: "",
		},
		{
			class:    "test.Fanout",
			want:     map[string]Status{"a": StatusCompleted, "b": StatusFailed, "c": StatusCompleted},
			wantData: "|c=1",
		},
	}
	for _, tt := range tests {
		t.Run(tt.class, func(t *testing.T) {
			pipe := mustNew(t, r, tt.class, BuildOptions{Name: "p", Sources: []params.Source{
				cli(map[string]any{"on_error": "continue", "b.class": "test.Fail"}),
			}})
			obs := &recordingObserver{}
			res, err := pipe.Run(context.Background(), &Runtime{Observers: []Observer{obs}}, input("foo.txt", ""))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if res.Status != StatusCompleted {
				t.Errorf("pipeline status = %s", res.Status)
			}
			if !res.Failed() {
				t.Error("Failed() should report the failed member")
			}
			got := statuses(res)
			for name, want := range tt.want {
				if got[name] != want {
					t.Errorf("%s status = %s, want %s", name, got[name], want)
				}
			}
			if !errors.Is(res.Child("b").Err, errBoom) {
				t.Errorf("b error = %v", res.Child("b").Err)
			}

			if tt.wantData == "" {
				if len(res.Artifacts) != 0 {
					t.Errorf("expected no outputs from a broken chain, got %d", len(res.Artifacts))
				}
				return
			}
			if len(res.Artifacts) != 1 || string(res.Artifacts[0].Data) != tt.wantData {
				t.Errorf("artifacts = %+v", res.Artifacts)
			}
			if res.Artifacts[0].ID != "foo_p.txt" {
				t.Errorf("ID = %q", res.Artifacts[0].ID)
			}
		})
	}
}

func TestPipeline_StopOnError(t *testing.T) {
	r := testRegistry(t)
	pipe := mustNew(t, r, "test.Chain", BuildOptions{Name: "chain", Sources: []params.Source{cli(map[string]any{"b.class": "test.Fail"})}})

	res, err := pipe.Run(context.Background(), nil, input("foo.txt", ""))
	var execErr *StepExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("expected StepExecutionError, got %v", err)
	}
	if execErr.Step != "chain.b" {
		t.Errorf("failing step = %q, want chain.b", execErr.Step)
	}
	if res.Status != StatusFailed {
		t.Errorf("status = %s", res.Status)
	}
	if len(res.Children) != 2 {
		t.Errorf("expected results for a and b only, got %d", len(res.Children))
	}
	if res.Child("c") != nil {
		t.Error("c should not have run")
	}
}

func TestPipeline_MemberSkip(t *testing.T) {
	r := testRegistry(t)

	tests := []struct {
		policy  string
		wantOut int
		want    string
	}{
		{MemberSkipPassthrough, 1, "|a=1|c=1"},
		{MemberSkipEmpty, 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.policy, func(t *testing.T) {
			pipe := mustNew(t, r, "test.Chain", BuildOptions{Sources: []params.Source{
				cli(map[string]any{"member_skip": tt.policy, "b.skip": "true"}),
			}})
			res, err := pipe.Run(context.Background(), nil, input("foo.txt", ""))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if res.Child("b").Status != StatusSkipped {
				t.Errorf("b status = %s", res.Child("b").Status)
			}
			if len(res.Artifacts) != tt.wantOut {
				t.Fatalf("expected %d outputs, got %d", tt.wantOut, len(res.Artifacts))
			}
			if tt.wantOut > 0 && string(res.Artifacts[0].Data) != tt.want {
				t.Errorf("data = %q, want %q", res.Artifacts[0].Data, tt.want)
			}
		})
	}
}

func TestPipeline_CanceledBetweenMembers(t *testing.T) {
	r := testRegistry(t)
	pipe := mustNew(t, r, "test.Chain", BuildOptions{Name: "chain"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := pipe.Member("a").AddPostHook(HookFunc("cancel", func(context.Context, *HookContext, []*Artifact) ([]*Artifact, error) {
		cancel()
		return nil, nil
	})); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	res, err := pipe.Run(ctx, nil, input("foo.txt", ""))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(res.Children) != 1 || res.Children[0].Status != StatusCompleted {
		t.Errorf("children = %+v", res.Children)
	}
}

func TestPipeline_CustomExecution(t *testing.T) {
	r := testRegistry(t)
	r.MustRegister(&Class{
		Name: "test.Reverse",
		Members: []Member{
			{Name: "first", Class: "test.Append"},
			{Name: "second", Class: "test.Append"},
		},
		Pipeline: func(ctx context.Context, sc *Context, in []*Artifact) ([]*Artifact, error) {
			res, err := sc.RunMember(ctx, "second", in...)
			if err != nil {
				return nil, err
			}
			res, err = sc.RunMember(ctx, "first", res.Artifacts...)
			if err != nil {
				return nil, err
			}
			return res.Artifacts, nil
		},
	})

	pipe := mustNew(t, r, "test.Reverse", BuildOptions{})
	res, err := pipe.Run(context.Background(), nil, input("foo.txt", ""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := string(res.Artifacts[0].Data); got != "|second=1|first=1" {
		t.Errorf("data = %q", got)
	}
	if res.Children[0].Name != "second" {
		t.Errorf("children out of execution order: %s", res.Children[0].Name)
	}

	r.MustRegister(&Class{
		Name:    "test.Lost",
		Members: []Member{{Name: "a", Class: "test.Append"}},
		Pipeline: func(ctx context.Context, sc *Context, in []*Artifact) ([]*Artifact, error) {
			_, err := sc.RunMember(ctx, "ghost", in...)
			return nil, err
		},
	})
	_, err = mustNew(t, r, "test.Lost", BuildOptions{}).Run(context.Background(), nil)
	var unknown *UnknownMemberError
	if !errors.As(err, &unknown) || unknown.Member != "ghost" {
		t.Errorf("expected UnknownMemberError, got %v", err)
	}
}
