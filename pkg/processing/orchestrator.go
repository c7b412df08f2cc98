// Package processing builds step instances from classes or parameter files
// and drives their execution.
package processing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/systemstart/steppipe/pkg/api"
	"github.com/systemstart/steppipe/pkg/ledger"
	"github.com/systemstart/steppipe/pkg/params"
	"github.com/systemstart/steppipe/pkg/reference"
	"github.com/systemstart/steppipe/pkg/steps"
)

// Provider supplies retrieved configuration for a class, selected by the
// observation context.
type Provider interface {
	Retrieve(ctx context.Context, class *steps.Class, observation map[string]any) (params.Source, bool, error)
}

// Orchestrator owns the collaborators of a run: the class registry, the
// retrieved configuration provider, persistence, failure handling and
// observers.
type Orchestrator struct {
	registry    *steps.Registry
	provider    Provider
	persister   steps.Persister
	strategy    steps.FailureStrategy
	trap        steps.TrapFunc
	observers   []steps.Observer
	ledger      *ledger.Ledger
	logger      *slog.Logger
	observation map[string]any
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithProvider sets the retrieved configuration provider.
func WithProvider(p Provider) Option {
	return func(o *Orchestrator) { o.provider = p }
}

// WithPersister sets where results are saved.
func WithPersister(p steps.Persister) Option {
	return func(o *Orchestrator) { o.persister = p }
}

// WithFailureStrategy sets the failure strategy and the trap called by
// FailureTrapAndPropagate.
func WithFailureStrategy(strategy steps.FailureStrategy, trap steps.TrapFunc) Option {
	return func(o *Orchestrator) {
		o.strategy = strategy
		o.trap = trap
	}
}

// WithObserver adds a step observer.
func WithObserver(obs steps.Observer) Option {
	return func(o *Orchestrator) { o.observers = append(o.observers, obs) }
}

// WithLedger records every run and step execution in l.
func WithLedger(l *ledger.Ledger) Option {
	return func(o *Orchestrator) {
		if l == nil {
			return
		}
		o.ledger = l
		o.observers = append(o.observers, l)
	}
}

// WithMetrics adds a metrics observer.
func WithMetrics(m steps.Observer) Option {
	return WithObserver(m)
}

// WithLogger sets the logger passed to every step.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithObservation sets the observation context used to select retrieved
// configuration and exposed to templates and conditions.
func WithObservation(obs map[string]any) Option {
	return func(o *Orchestrator) { o.observation = obs }
}

// New returns an orchestrator for the classes of reg.
func New(reg *steps.Registry, opts ...Option) *Orchestrator {
	o := &Orchestrator{registry: reg}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}

// Registry returns the class registry.
func (o *Orchestrator) Registry() *steps.Registry { return o.registry }

// BuildRequest describes the instance to build.
type BuildRequest struct {
	// Ref is a registered class name or the path of a parameter file.
	Ref string
	// Class is used when the parameter file names no class.
	Class string
	// Overrides are applied at the cli tier. Values may be strings.
	Overrides map[string]any
	// Name overrides the instance name.
	Name string
	// DisableRetrieval skips the retrieved_config tier.
	DisableRetrieval bool
}

// Build resolves the configuration of the requested step and constructs it.
func (o *Orchestrator) Build(ctx context.Context, req BuildRequest) (*steps.Instance, error) {
	if req.Ref == "" {
		return nil, fmt.Errorf("step reference is required")
	}

	className := req.Ref
	opts := steps.BuildOptions{Name: req.Name}

	if o.isFile(req.Ref) {
		pf, err := api.LoadParameterFile(req.Ref)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", req.Ref, err)
		}
		className = pf.Class
		if className == "" {
			className = req.Class
		}
		if className == "" {
			return nil, &params.ConfigurationError{Step: pf.InstanceName(), Reason: fmt.Sprintf("parameter file %s names no class", pf.FilePath)}
		}
		if opts.Name == "" {
			opts.Name = pf.Name
		}
		opts.ConfigFile = pf.FilePath
		opts.Sources = append(opts.Sources, pf.Source(params.UserConfig))
	}

	if len(req.Overrides) > 0 {
		opts.Sources = append(opts.Sources, params.NewSource(params.CommandLine, "command line", req.Overrides))
	}
	if !req.DisableRetrieval {
		opts.Retrieve = o.retrieve()
	}

	return o.registry.New(ctx, className, opts)
}

// isFile reports whether ref names a parameter file rather than a class.
// Registered class names win; anything else with a parameter file extension
// is a file.
func (o *Orchestrator) isFile(ref string) bool {
	if o.registry.Has(ref) {
		return false
	}
	_, err := api.FormatOf(ref)
	return err == nil
}

func (o *Orchestrator) retrieve() steps.RetrieveFunc {
	if o.provider == nil {
		return nil
	}
	return func(ctx context.Context, class *steps.Class) (params.Source, bool, error) {
		return o.provider.Retrieve(ctx, class, o.observation)
	}
}

// Runtime returns the runtime shared by the steps of one run.
func (o *Orchestrator) Runtime() *steps.Runtime {
	return &steps.Runtime{
		Logger:        o.logger,
		Persister:     o.persister,
		Strategy:      o.strategy,
		Trap:          o.trap,
		Observers:     o.observers,
		KnownSuffixes: o.registry.Suffixes(),
		Observation:   o.observation,
	}
}

// Run executes a prebuilt instance. Changes made through Instance.Set before
// the call are honored.
func (o *Orchestrator) Run(ctx context.Context, inst *steps.Instance, inputs ...*steps.Artifact) (*steps.Result, error) {
	log := o.logger.With("step", inst.Name(), "class", inst.Class().Name)

	var runID string
	if o.ledger != nil {
		id, err := o.ledger.BeginRun(ctx, inst)
		if err != nil {
			log.Warn("Failed to record run", "error", err)
		} else {
			runID = id
			ctx = ledger.WithRunID(ctx, id)
		}
	}

	log.Info("Run started", "inputs", len(inputs))
	res, err := inst.Run(ctx, o.Runtime(), inputs...)

	if runID != "" {
		if lerr := o.ledger.EndRun(ctx, runID, res, err); lerr != nil {
			log.Warn("Failed to record run result", "error", lerr)
		}
	}
	if err != nil {
		return res, err
	}
	log.Info("Run finished", "status", res.Status, "failures", res.Failed(), "elapsed", res.Elapsed)
	return res, nil
}

// CallRequest describes a one-shot invocation.
type CallRequest struct {
	Ref       string
	Class     string
	Overrides map[string]any
	Name      string
	Inputs    []*steps.Artifact
}

// Call builds a fresh instance for every invocation and runs it. Repeated
// calls with the same request resolve the same configuration.
func (o *Orchestrator) Call(ctx context.Context, req CallRequest) (*steps.Result, error) {
	inst, err := o.Build(ctx, BuildRequest{Ref: req.Ref, Class: req.Class, Overrides: req.Overrides, Name: req.Name})
	if err != nil {
		return nil, err
	}
	return o.Run(ctx, inst, req.Inputs...)
}

// SaveParameters writes the resolved configuration of inst, members nested
// under steps, to filename. The format follows the extension.
func (o *Orchestrator) SaveParameters(inst *steps.Instance, filename string) error {
	pf := &api.ParameterFile{
		Class:      inst.Class().Name,
		Name:       inst.Name(),
		Parameters: inst.Snapshot(),
		Meta: &api.Meta{
			Reftype:     reference.Reftype(inst.Class()),
			Date:        time.Now().UTC().Format(time.RFC3339),
			Description: "Parameters of step " + inst.QualifiedName(),
		},
	}
	if err := api.SaveParameterFile(filename, pf); err != nil {
		return fmt.Errorf("saving parameters of %s: %w", inst.QualifiedName(), err)
	}
	o.logger.Info("Saved parameters", "step", inst.QualifiedName(), "path", filename)
	return nil
}

// withObservation returns a shallow copy using obs as observation context.
func (o *Orchestrator) withObservation(obs map[string]any) *Orchestrator {
	c := *o
	c.observation = obs
	return &c
}
