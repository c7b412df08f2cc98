package steps

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/systemstart/steppipe/pkg/api"
	"github.com/systemstart/steppipe/pkg/params"
)

// RetrieveFunc returns the retrieved configuration for a class. ok is false
// when the provider has nothing for it.
type RetrieveFunc func(ctx context.Context, class *Class) (src params.Source, ok bool, err error)

// BuildOptions configures Registry.New.
type BuildOptions struct {
	// Name is the instance name. Defaults to the base name of ConfigFile,
	// then to the class short name.
	Name string
	// ConfigFile is the parameter file the sources came from. Relative hook
	// and member config_file paths resolve against its directory.
	ConfigFile string
	// Sources are the user_config and cli sources, lowest precedence first.
	Sources []params.Source
	// Retrieve supplies the retrieved_config tier. nil disables it.
	Retrieve RetrieveFunc
	Parent   *Instance
}

// Instance is a configured, runnable step. Pipelines are instances whose
// class has members.
type Instance struct {
	class      *Class
	name       string
	spec       *params.Spec
	config     *params.Resolved
	proc       Processor
	pre        []Hook
	post       []Hook
	parent     *Instance
	members    []*Instance
	input      InputMode
	configFile string
	frozen     bool
}

// New resolves the configuration of class className and builds an instance,
// including its members and hooks. All configuration errors surface here,
// before anything runs.
func (r *Registry) New(ctx context.Context, className string, opts BuildOptions) (*Instance, error) {
	class, err := r.Lookup(className)
	if err != nil {
		return nil, err
	}

	inst := &Instance{
		class:      class,
		name:       instanceName(class, opts),
		spec:       class.FullSpec(),
		parent:     opts.Parent,
		configFile: opts.ConfigFile,
	}

	var sources []params.Source
	if opts.Retrieve != nil {
		src, ok, err := opts.Retrieve(ctx, class)
		if err != nil {
			return nil, fmt.Errorf("retrieving parameters for step %q: %w", inst.QualifiedName(), err)
		}
		if ok {
			sources = append(sources, src)
		}
	}
	sources = append(sources, opts.Sources...)

	cfg, err := params.Resolve(inst.QualifiedName(), inst.spec, sources...)
	if err != nil {
		return nil, err
	}
	inst.config = cfg

	if err := inst.buildProcessor(cfg); err != nil {
		return nil, err
	}

	for _, m := range class.Members {
		member, err := r.newMember(ctx, inst, m, opts.Retrieve)
		if err != nil {
			return nil, err
		}
		inst.members = append(inst.members, member)
	}

	if inst.pre, err = r.newHooks(ctx, inst, ParamPreHooks, "pre_hook", opts.Retrieve); err != nil {
		return nil, err
	}
	if inst.post, err = r.newHooks(ctx, inst, ParamPostHooks, "post_hook", opts.Retrieve); err != nil {
		return nil, err
	}
	return inst, nil
}

func instanceName(class *Class, opts BuildOptions) string {
	if opts.Name != "" {
		return opts.Name
	}
	if opts.ConfigFile != "" {
		base := filepath.Base(opts.ConfigFile)
		return strings.TrimSuffix(base, filepath.Ext(base))
	}
	return class.ShortName()
}

func (s *Instance) buildProcessor(cfg *params.Resolved) error {
	if s.class.New == nil {
		return nil
	}
	proc, err := s.class.New(cfg)
	if err != nil {
		return &params.ConfigurationError{Step: s.QualifiedName(), Reason: err.Error()}
	}
	s.proc = proc
	return nil
}

// newMember builds one pipeline member. Its sources are, lowest first: the
// member's retrieved configuration, its own config_file, then everything the
// pipeline addressed to it as member.param.
func (r *Registry) newMember(ctx context.Context, parent *Instance, m Member, retrieve RetrieveFunc) (*Instance, error) {
	overrides := parent.config.Member(m.Name)
	className := m.Class
	configFile := parent.configFile
	var sources []params.Source

	if e, ok := overrides[api.ConfigFileKey]; ok && e.Value != nil {
		path, isString := e.Value.(string)
		if !isString {
			return nil, &params.ConfigurationError{
				Step: parent.QualifiedName(), Param: m.Name + "." + api.ConfigFileKey,
				Reason: fmt.Sprintf("must be a string, got %T", e.Value),
			}
		}
		pf, err := api.LoadParameterFile(resolveRelative(parent.configFile, path))
		if err != nil {
			return nil, fmt.Errorf("member %q of %q: %w", m.Name, parent.QualifiedName(), err)
		}
		if pf.Class != "" {
			className = pf.Class
		}
		configFile = pf.FilePath
		sources = append(sources, pf.Source(params.UserConfig))
	}

	if e, ok := overrides[api.ClassKey]; ok && e.Value != nil {
		name, isString := e.Value.(string)
		if !isString {
			return nil, &params.ConfigurationError{
				Step: parent.QualifiedName(), Param: m.Name + "." + api.ClassKey,
				Reason: fmt.Sprintf("must be a string, got %T", e.Value),
			}
		}
		className = name
	}

	sources = append(sources, parent.config.MemberSources(m.Name, api.ClassKey, api.ConfigFileKey, api.NameKey)...)

	member, err := r.New(ctx, className, BuildOptions{
		Name:       m.Name,
		ConfigFile: configFile,
		Sources:    sources,
		Retrieve:   retrieve,
		Parent:     parent,
	})
	if err != nil {
		return nil, err
	}
	member.input = m.Input
	return member, nil
}

// newHooks builds the hooks listed in param. Each entry is a registered class
// name or the path of a parameter file.
func (r *Registry) newHooks(ctx context.Context, owner *Instance, param, prefix string, retrieve RetrieveFunc) ([]Hook, error) {
	entries := owner.config.Strings(param)
	hooks := make([]Hook, 0, len(entries))
	for i, entry := range entries {
		opts := BuildOptions{
			Name:       fmt.Sprintf("%s%d", prefix, i),
			ConfigFile: owner.configFile,
			Retrieve:   retrieve,
			Parent:     owner,
		}
		className := entry
		if !r.Has(entry) {
			pf, err := api.LoadParameterFile(resolveRelative(owner.configFile, entry))
			if err != nil {
				return nil, fmt.Errorf("%s entry %q of step %q: %w", param, entry, owner.QualifiedName(), err)
			}
			if pf.Class == "" {
				return nil, &params.ConfigurationError{
					Step: owner.QualifiedName(), Param: param,
					Reason: fmt.Sprintf("hook file %s names no class", pf.FilePath),
				}
			}
			className = pf.Class
			opts.ConfigFile = pf.FilePath
			opts.Sources = []params.Source{pf.Source(params.UserConfig)}
		}
		h, err := r.New(ctx, className, opts)
		if err != nil {
			return nil, err
		}
		hooks = append(hooks, h)
	}
	return hooks, nil
}

func resolveRelative(configFile, name string) string {
	if name == "" || filepath.IsAbs(name) || configFile == "" {
		return name
	}
	return filepath.Join(filepath.Dir(configFile), name)
}

// Name returns the instance name.
func (s *Instance) Name() string { return s.name }

// QualifiedName joins the names from the root pipeline down to s with dots.
func (s *Instance) QualifiedName() string {
	if s.parent == nil {
		return s.name
	}
	return s.parent.QualifiedName() + "." + s.name
}

// Class returns the step class.
func (s *Instance) Class() *Class { return s.class }

// Spec returns the full spec the instance was resolved against.
func (s *Instance) Spec() *params.Spec { return s.spec }

// Config returns the resolved configuration.
func (s *Instance) Config() *params.Resolved { return s.config }

// Parent returns the owning pipeline or hooked step, or nil at the root.
func (s *Instance) Parent() *Instance { return s.parent }

// Root returns the top of the instance tree.
func (s *Instance) Root() *Instance {
	for s.parent != nil {
		s = s.parent
	}
	return s
}

// ConfigFile returns the parameter file the instance was configured from.
func (s *Instance) ConfigFile() string { return s.configFile }

// Members returns the pipeline members in execution order.
func (s *Instance) Members() []*Instance {
	out := make([]*Instance, len(s.members))
	copy(out, s.members)
	return out
}

// Member returns the member called name, or nil.
func (s *Instance) Member(name string) *Instance {
	for _, m := range s.members {
		if m.name == name {
			return m
		}
	}
	return nil
}

// PreHooks returns the pre-hooks in execution order.
func (s *Instance) PreHooks() []Hook { return append([]Hook(nil), s.pre...) }

// PostHooks returns the post-hooks in execution order.
func (s *Instance) PostHooks() []Hook { return append([]Hook(nil), s.post...) }

// Frozen reports whether the instance has started running.
func (s *Instance) Frozen() bool { return s.frozen }

// Set changes one parameter before the first run. The value is coerced like
// a command-line value. "member.param" is forwarded to the member.
func (s *Instance) Set(name string, value any) error {
	if s.frozen {
		return ErrFrozen
	}
	if member, rest, ok := strings.Cut(name, "."); ok {
		m := s.Member(member)
		if m == nil {
			return &params.UnrecognizedParameterError{Step: s.QualifiedName(), Param: name, Tier: params.CommandLine, Source: "Instance.Set"}
		}
		return m.Set(rest, value)
	}
	if name == ParamPreHooks || name == ParamPostHooks {
		return &params.ConfigurationError{Step: s.QualifiedName(), Param: name, Reason: "hooks are fixed at construction, use AddPreHook or AddPostHook"}
	}

	p, known := s.spec.Lookup(name)
	if !known && !s.spec.Open() {
		return &params.UnrecognizedParameterError{Step: s.QualifiedName(), Param: name, Tier: params.CommandLine, Source: "Instance.Set"}
	}
	if value == nil && known && (p.Required || p.Kind == params.KindOption) {
		return &params.ConfigurationError{Step: s.QualifiedName(), Param: name, Reason: "a value is required"}
	}
	v, err := s.spec.Coerce(name, value)
	if err != nil {
		return &params.ParameterTypeError{
			Step: s.QualifiedName(), Param: name, Kind: p.Kind, Value: value,
			Tier: params.CommandLine, Source: "Instance.Set", Err: err,
		}
	}

	cfg := s.config.With(name, v, params.CommandLine, "Instance.Set")
	if err := s.buildProcessor(cfg); err != nil {
		return err
	}
	s.config = cfg
	return nil
}

// AddPreHook appends a hook run before the core operation.
func (s *Instance) AddPreHook(h Hook) error {
	if s.frozen {
		return ErrFrozen
	}
	s.pre = append(s.pre, h)
	return nil
}

// AddPostHook appends a hook run after the core operation.
func (s *Instance) AddPostHook(h Hook) error {
	if s.frozen {
		return ErrFrozen
	}
	s.post = append(s.post, h)
	return nil
}

func (s *Instance) freeze() {
	s.frozen = true
	for _, m := range s.members {
		m.freeze()
	}
	for _, h := range append(s.PreHooks(), s.post...) {
		if hi, ok := h.(*Instance); ok {
			hi.freeze()
		}
	}
}

// walk calls fn for s and every member below it.
func (s *Instance) walk(fn func(*Instance)) {
	fn(s)
	for _, m := range s.members {
		m.walk(fn)
	}
}

// Snapshot returns the resolved values with member configurations nested
// under params.MembersKey, in the layout parameter files use. Hooks loaded
// from parameter files are listed by absolute path so the snapshot resolves
// the same wherever it is saved.
func (s *Instance) Snapshot() map[string]any {
	out := s.config.Values()
	for param, hooks := range map[string][]Hook{ParamPreHooks: s.pre, ParamPostHooks: s.post} {
		if entries, ok := out[param].([]string); ok {
			out[param] = hookPaths(entries, hooks)
		}
	}
	if len(s.members) == 0 {
		return out
	}
	members := make(map[string]any, len(s.members))
	for _, m := range s.members {
		values := m.Snapshot()
		values[api.ClassKey] = m.class.Name
		members[m.name] = values
	}
	out[params.MembersKey] = members
	return out
}

// hookPaths replaces the file entries of a hook list with the absolute path
// the hook was loaded from.
func hookPaths(entries []string, hooks []Hook) []string {
	for i, entry := range entries {
		if i >= len(hooks) {
			break
		}
		h, ok := hooks[i].(*Instance)
		if !ok || h.class.Name == entry || h.configFile == "" {
			continue
		}
		entries[i] = h.configFile
	}
	return entries
}
