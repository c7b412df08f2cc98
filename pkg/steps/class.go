package steps

import (
	"context"
	"strings"

	"github.com/systemstart/steppipe/pkg/params"
)

// Parameters every step accepts.
const (
	ParamSkip        = "skip"
	ParamPreHooks    = "pre_hooks"
	ParamPostHooks   = "post_hooks"
	ParamOutputDir   = "output_dir"
	ParamOutputFile  = "output_file"
	ParamOutputExt   = "output_ext"
	ParamSaveResults = "save_results"
	ParamSuffix      = "suffix"
)

// Parameters every pipeline accepts.
const (
	ParamOnError    = "on_error"
	ParamMemberSkip = "member_skip"

	OnErrorStop     = "stop"
	OnErrorContinue = "continue"

	MemberSkipPassthrough = "passthrough"
	MemberSkipEmpty       = "empty"
)

// OverridePrefix prefixes the reference override parameter of each
// reference type a class declares.
const OverridePrefix = "override_"

var baseSpec = params.MustSpec(
	params.Param{Name: ParamSkip, Kind: params.KindBool, Default: false, Help: "skip this step"},
	params.Param{Name: ParamPreHooks, Kind: params.KindStringList, Default: []string{}, Help: "classes or parameter files run before the step"},
	params.Param{Name: ParamPostHooks, Kind: params.KindStringList, Default: []string{}, Help: "classes or parameter files run after the step"},
	params.Param{Name: ParamOutputDir, Kind: params.KindString, Help: "directory path for output files"},
	params.Param{Name: ParamOutputFile, Kind: params.KindString, Help: "file name for the output"},
	params.Param{Name: ParamOutputExt, Kind: params.KindString, Help: "extension of output files, replaces the input extension"},
	params.Param{Name: ParamSaveResults, Kind: params.KindBool, Default: false, Help: "persist the results"},
	params.Param{Name: ParamSuffix, Kind: params.KindString, Help: "suffix for output names, defaults to the step name"},
)

var pipelineSpec = params.MustSpec(
	params.Param{
		Name: ParamOnError, Kind: params.KindOption, Default: OnErrorStop,
		Options: []string{OnErrorStop, OnErrorContinue},
		Help:    "stop at the first failing member or continue with independent members",
	},
	params.Param{
		Name: ParamMemberSkip, Kind: params.KindOption, Default: MemberSkipPassthrough,
		Options: []string{MemberSkipPassthrough, MemberSkipEmpty},
		Help:    "what a skipped member hands to the next member",
	},
)

// InputMode selects what a pipeline member consumes.
type InputMode int

const (
	// FromPrevious consumes the output of the preceding member.
	FromPrevious InputMode = iota
	// FromPipelineInput consumes the pipeline's own inputs, making the member
	// independent of its predecessors.
	FromPipelineInput
)

// Member declares one named member of a pipeline class.
type Member struct {
	Name  string
	Class string
	Input InputMode
}

// PipelineFunc replaces the linear member execution of a pipeline.
type PipelineFunc func(ctx context.Context, sc *Context, inputs []*Artifact) ([]*Artifact, error)

// Class describes a step class: its parameters and how to build its core
// operation. A class with Members is a pipeline.
type Class struct {
	Name string
	Help string
	Spec *params.Spec

	// New builds the core operation from a resolved configuration. Pipelines
	// may leave it nil.
	New func(cfg *params.Resolved) (Processor, error)

	Members  []Member
	Pipeline PipelineFunc

	// ReferenceTypes adds an override_<type> parameter per entry.
	ReferenceTypes []string

	// NamesOutputs marks classes whose artifact IDs are meaningful paths.
	// Output naming is not applied to them; output_dir still is.
	NamesOutputs bool
}

// IsPipeline reports whether the class has members.
func (c *Class) IsPipeline() bool { return len(c.Members) > 0 }

// ShortName is the class name after its last dot.
func (c *Class) ShortName() string {
	if i := strings.LastIndex(c.Name, "."); i >= 0 {
		return c.Name[i+1:]
	}
	return c.Name
}

// FullSpec returns the spec used to resolve instances of the class: base
// step params, class params, reference overrides and, for pipelines, the
// pipeline policy params and member addressing.
func (c *Class) FullSpec() *params.Spec {
	spec := baseSpec.Merge(c.Spec)
	if len(c.ReferenceTypes) > 0 {
		overrides := make([]params.Param, 0, len(c.ReferenceTypes))
		for _, rt := range c.ReferenceTypes {
			overrides = append(overrides, params.Param{
				Name: OverridePrefix + rt,
				Kind: params.KindString,
				Help: "use this " + rt + " reference instead of the retrieved one",
			})
		}
		spec = spec.Merge(params.MustSpec(overrides...))
	}
	if c.IsPipeline() {
		names := make([]string, len(c.Members))
		for i, m := range c.Members {
			names[i] = m.Name
		}
		spec = spec.Merge(pipelineSpec).WithMembers(names...)
	}
	return spec
}
