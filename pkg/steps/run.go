package steps

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"
)

// Run executes the instance on inputs. Configuration changes made through
// Set before the call are honored; afterwards the instance is frozen.
//
// The returned error is the one recorded in the result. A skipped step
// returns a result with status skipped and a nil error.
func (s *Instance) Run(ctx context.Context, rt *Runtime, inputs ...*Artifact) (*Result, error) {
	return s.run(ctx, rt, inputs, false)
}

func (s *Instance) run(ctx context.Context, rt *Runtime, inputs []*Artifact, asHook bool) (*Result, error) {
	if rt == nil {
		rt = &Runtime{}
	}
	s.freeze()

	log := rt.logger().With("step", s.QualifiedName(), "class", s.class.Name)
	res := &Result{Step: s.QualifiedName(), Name: s.name, Class: s.class.Name}

	if s.config.Bool(ParamSkip) {
		log.Info("Step skipped")
		res.Status = StatusSkipped
		rt.finished(ctx, s, res)
		return res, nil
	}

	start := time.Now()
	log.Info("Step started", "inputs", len(inputs))
	rt.started(ctx, s)

	arts, err := s.execute(ctx, rt, log, res, inputs, asHook)
	res.Elapsed = time.Since(start)
	if err != nil {
		res.Status = StatusFailed
		res.Err = err
		log.Error("Step failed", "error", err, "elapsed", res.Elapsed)
		rt.finished(ctx, s, res)
		return res, err
	}

	res.Status = StatusCompleted
	res.Artifacts = arts
	log.Info("Step completed", "outputs", len(arts), "elapsed", res.Elapsed)
	rt.finished(ctx, s, res)
	return res, nil
}

func (s *Instance) execute(ctx context.Context, rt *Runtime, log *slog.Logger, res *Result, inputs []*Artifact, asHook bool) ([]*Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, &StepExecutionError{Step: s.QualifiedName(), Err: err}
	}

	current, err := s.runHooks(ctx, rt, HookPre, s.pre, cloneArtifacts(inputs))
	if err != nil {
		return nil, err
	}

	current, err = s.core(ctx, &Context{Step: s, Runtime: rt, Logger: log, Inputs: inputs, result: res}, current)
	if err != nil {
		return nil, err
	}

	current, err = s.runHooks(ctx, rt, HookPost, s.post, current)
	if err != nil {
		return nil, err
	}

	if asHook {
		return current, nil
	}
	if !s.class.NamesOutputs {
		// members keep their own names in their results
		current = cloneArtifacts(current)
		s.nameOutputs(rt, current, inputs)
	}
	if err := s.persist(ctx, rt, log, res, current); err != nil {
		return nil, &StepExecutionError{Step: s.QualifiedName(), Err: err}
	}
	return current, nil
}

func (s *Instance) core(ctx context.Context, sc *Context, current []*Artifact) ([]*Artifact, error) {
	switch {
	case s.class.Pipeline != nil:
		out, err := protect(func() ([]*Artifact, error) { return s.class.Pipeline(ctx, sc, current) })
		if err != nil {
			return nil, s.executionError(err)
		}
		return out, nil
	case s.class.IsPipeline():
		return s.runLinear(ctx, sc, current)
	}

	out, err := protect(func() ([]*Artifact, error) { return s.proc.Process(ctx, sc, current) })
	if err != nil {
		err = s.executionError(err)
		sc.Runtime.trap(ctx, s, err)
		return nil, err
	}
	return out, nil
}

// executionError wraps err unless it already names the step that raised it.
func (s *Instance) executionError(err error) error {
	var execErr *StepExecutionError
	var hookErr *HookAbortError
	if errors.As(err, &execErr) || errors.As(err, &hookErr) {
		return err
	}
	return &StepExecutionError{Step: s.QualifiedName(), Err: err}
}

func protect(fn func() ([]*Artifact, error)) (out []*Artifact, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, &PanicError{Value: r}
		}
	}()
	return fn()
}

func (s *Instance) nameOutputs(rt *Runtime, arts []*Artifact, inputs []*Artifact) {
	known := s.knownSuffixes(rt)
	for i, a := range arts {
		base := a.ID
		if base == "" {
			switch {
			case i < len(inputs):
				base = inputs[i].ID
			case len(inputs) > 0:
				base = inputs[0].ID
			}
		}
		a.ID = s.OutputName(base, i, len(arts), known)
	}
}

func (s *Instance) persist(ctx context.Context, rt *Runtime, log *slog.Logger, res *Result, arts []*Artifact) error {
	if !s.config.Bool(ParamSaveResults) && s.config.String(ParamOutputFile) == "" {
		return nil
	}
	if rt.Persister == nil {
		return fmt.Errorf("saving results: no persister configured")
	}
	dir := s.search(ParamOutputDir, true)
	for _, a := range arts {
		path := a.ID
		if dir != "" {
			path = filepath.Join(dir, a.ID)
		}
		loc, err := rt.Persister.Persist(ctx, path, a)
		if err != nil {
			return fmt.Errorf("saving %s: %w", path, err)
		}
		log.Info("Saved output", "path", loc)
		res.Outputs = append(res.Outputs, loc)
	}
	return nil
}
