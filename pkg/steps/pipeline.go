package steps

import (
	"context"
)

// runLinear runs the members in declared order, feeding each the output of
// its predecessor, or the pipeline inputs for FromPipelineInput members.
//
// With on_error=continue a failure breaks the chain: later FromPrevious
// members are marked skipped until a FromPipelineInput member restarts it.
func (s *Instance) runLinear(ctx context.Context, sc *Context, inputs []*Artifact) ([]*Artifact, error) {
	onError := s.config.String(ParamOnError)
	memberSkip := s.config.String(ParamMemberSkip)

	current := inputs
	broken := false
	for _, m := range s.members {
		if err := ctx.Err(); err != nil {
			return nil, &StepExecutionError{Step: s.QualifiedName(), Err: err}
		}

		in := current
		dependsOnFailure := broken
		if m.input == FromPipelineInput {
			in = inputs
			dependsOnFailure = false
		}

		if dependsOnFailure {
			sc.Logger.Warn("Skipping member that depends on a failed member", "member", m.name)
			skipped := &Result{Step: m.QualifiedName(), Name: m.name, Class: m.class.Name, Status: StatusSkipped}
			sc.result.Children = append(sc.result.Children, skipped)
			sc.Runtime.finished(ctx, m, skipped)
			continue
		}

		res, err := sc.RunMember(ctx, m.name, in...)
		switch {
		case err != nil:
			if onError != OnErrorContinue {
				return nil, err
			}
			sc.Logger.Warn("Member failed, continuing with independent members", "member", m.name, "error", err)
			broken = true
		case res.Status == StatusSkipped:
			if memberSkip == MemberSkipEmpty {
				current = nil
			} else {
				current = in
			}
			broken = false
		default:
			current = res.Artifacts
			broken = false
		}
	}

	if broken {
		return nil, nil
	}
	return current, nil
}
