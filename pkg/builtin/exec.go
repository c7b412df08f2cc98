package builtin

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"

	"github.com/systemstart/steppipe/pkg/params"
	"github.com/systemstart/steppipe/pkg/steps"
)

var execClass = &steps.Class{
	Name: ExecClass,
	Help: "Runs an external command. Each artifact is piped to its stdin and replaced by its stdout, " +
		"or the command runs once on the concatenated inputs when per_artifact is false.",
	Spec: params.MustSpec(
		params.Param{Name: "command", Kind: params.KindString, Required: true, Help: "executable name or path"},
		params.Param{Name: "args", Kind: params.KindStringList, Default: []string{}, Help: "command arguments"},
		params.Param{Name: "dir", Kind: params.KindString, Help: "working directory of the command"},
		params.Param{Name: "per_artifact", Kind: params.KindBool, Default: true, Help: "run the command once per artifact"},
	),
	New: newExecStep,
}

type execStep struct {
	command     string
	args        []string
	dir         string
	perArtifact bool
}

func newExecStep(cfg *params.Resolved) (steps.Processor, error) {
	s := &execStep{
		command:     cfg.String("command"),
		args:        cfg.Strings("args"),
		dir:         cfg.String("dir"),
		perArtifact: cfg.Bool("per_artifact"),
	}
	if s.command == "" {
		return nil, fmt.Errorf("command must not be empty")
	}
	return s, nil
}

func (s *execStep) Process(ctx context.Context, sc *steps.Context, in []*steps.Artifact) ([]*steps.Artifact, error) {
	path, err := exec.LookPath(s.command)
	if err != nil {
		return nil, fmt.Errorf("%s binary not found in PATH: %w", s.command, err)
	}

	if !s.perArtifact || len(in) == 0 {
		var stdin bytes.Buffer
		id := ""
		for i, a := range in {
			if i == 0 {
				id = a.ID
			}
			stdin.Write(a.Data)
		}
		out, err := s.run(ctx, sc, path, stdin.Bytes())
		if err != nil {
			return nil, err
		}
		return []*steps.Artifact{{ID: id, Data: out}}, nil
	}

	for _, a := range in {
		out, err := s.run(ctx, sc, path, a.Data)
		if err != nil {
			return nil, fmt.Errorf("processing %s: %w", a.ID, err)
		}
		a.Data = out
	}
	return in, nil
}

func (s *execStep) run(ctx context.Context, sc *steps.Context, path string, stdin []byte) ([]byte, error) {
	sc.Logger.Info("Running command", "command", s.command, "args", s.args)

	cmd := exec.CommandContext(ctx, path, s.args...)
	cmd.Dir = s.dir
	cmd.Stdin = bytes.NewReader(stdin)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s failed: %w\nstderr: %s", s.command, err, stderr.String())
	}
	return stdout.Bytes(), nil
}
