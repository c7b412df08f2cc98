package processing

import (
	"context"
	"fmt"
	"maps"

	"github.com/systemstart/steppipe/pkg/api"
	"github.com/systemstart/steppipe/pkg/steps"
)

// RunBatch calls every run of b in order. A failing run does not stop the
// batch; failures are collected and reported together. The returned results
// are in run order, nil for runs that failed before executing.
func (o *Orchestrator) RunBatch(ctx context.Context, b *api.BatchFile) ([]*steps.Result, error) {
	results := make([]*steps.Result, len(b.Runs))
	var failed []string

	for i, run := range b.Runs {
		if err := ctx.Err(); err != nil {
			return results, fmt.Errorf("batch canceled: %w", err)
		}
		o.logger.Info("Processing run", "name", run.Name)

		res, err := o.runBatchEntry(ctx, b, run)
		results[i] = res
		switch {
		case err != nil:
			o.logger.Error("Run failed", "name", run.Name, "error", err)
			failed = append(failed, run.Name)
		case res.Failed():
			o.logger.Error("Run finished with failed steps", "name", run.Name)
			failed = append(failed, run.Name)
		default:
			o.logger.Info("Run succeeded", "name", run.Name)
		}
	}

	if len(failed) > 0 {
		return results, fmt.Errorf("%d run(s) failed: %v", len(failed), failed)
	}
	return results, nil
}

func (o *Orchestrator) runBatchEntry(ctx context.Context, b *api.BatchFile, run api.Run) (*steps.Result, error) {
	patterns := make([]string, len(run.Inputs))
	for i, in := range run.Inputs {
		patterns[i] = b.ResolvePath(in)
	}
	var inputs []*steps.Artifact
	if len(patterns) > 0 {
		var err error
		if inputs, err = LoadInputs(patterns...); err != nil {
			return nil, err
		}
	}

	overrides := maps.Clone(run.Parameters)
	if run.OutputDir != "" {
		if overrides == nil {
			overrides = make(map[string]any)
		}
		overrides[steps.ParamOutputDir] = run.OutputDir
	}

	ref := run.Config
	if o.isFile(ref) {
		ref = b.ResolvePath(ref)
	}

	ro := o.withObservation(MergeContext(o.observation, run.Context))
	return ro.Call(ctx, CallRequest{Ref: ref, Overrides: overrides, Inputs: inputs})
}
