package params

import (
	"maps"
	"reflect"
	"slices"
	"strings"
)

// Entry is one resolved parameter value with the tier that supplied it.
type Entry struct {
	Value      any
	Provenance Provenance
	Source     string
}

// Resolved is the effective configuration of one step. Member overrides of a
// pipeline are kept raw; they are validated when the member is resolved.
type Resolved struct {
	step    string
	entries map[string]Entry
	members map[string]map[string]Entry
}

// Resolve merges sources, ordered from lowest to highest precedence, against
// spec. For each name the last source defining it with a non-nil value wins.
// Names no source defines take the spec default with provenance CodedDefault.
func Resolve(step string, spec *Spec, sources ...Source) (*Resolved, error) {
	r := &Resolved{
		step:    step,
		entries: make(map[string]Entry),
		members: make(map[string]map[string]Entry),
	}

	for _, src := range sources {
		for _, key := range src.Keys() {
			raw, _ := src.Lookup(key)
			if err := r.apply(spec, src, key, raw); err != nil {
				return nil, err
			}
		}
	}

	for _, p := range spec.Params() {
		if _, ok := r.entries[p.Name]; ok {
			continue
		}
		if p.Required {
			return nil, &ConfigurationError{Step: step, Param: p.Name, Reason: "missing required parameter"}
		}
		r.entries[p.Name] = Entry{Value: copyValue(p.Default), Provenance: CodedDefault, Source: "spec"}
	}
	return r, nil
}

func (r *Resolved) apply(spec *Spec, src Source, key string, raw any) error {
	if member, rest, ok := strings.Cut(key, "."); ok && spec.HasMember(member) {
		if rest == "" {
			return &UnrecognizedParameterError{Step: r.step, Param: key, Tier: src.Tier(), Source: src.Label()}
		}
		if r.members[member] == nil {
			r.members[member] = make(map[string]Entry)
		}
		r.members[member][rest] = Entry{Value: raw, Provenance: src.Tier(), Source: src.Label()}
		return nil
	}

	p, ok := spec.Lookup(key)
	if !ok {
		if !spec.Open() {
			return &UnrecognizedParameterError{Step: r.step, Param: key, Tier: src.Tier(), Source: src.Label()}
		}
		r.entries[key] = Entry{Value: normalizeAny(raw), Provenance: src.Tier(), Source: src.Label()}
		return nil
	}

	// null leaves the name to lower tiers
	if raw == nil {
		return nil
	}
	v, err := p.Coerce(raw)
	if err != nil {
		return &ParameterTypeError{
			Step:   r.step,
			Param:  key,
			Kind:   p.Kind,
			Value:  raw,
			Tier:   src.Tier(),
			Source: src.Label(),
			Err:    err,
		}
	}
	r.entries[key] = Entry{Value: v, Provenance: src.Tier(), Source: src.Label()}
	return nil
}

// Step returns the step name the configuration was resolved for.
func (r *Resolved) Step() string { return r.step }

// Names returns the resolved parameter names in sorted order.
func (r *Resolved) Names() []string {
	names := slices.Collect(maps.Keys(r.entries))
	slices.Sort(names)
	return names
}

// Entry returns the resolved entry for name.
func (r *Resolved) Entry(name string) (Entry, bool) {
	e, ok := r.entries[name]
	if !ok {
		return Entry{}, false
	}
	e.Value = copyValue(e.Value)
	return e, true
}

// Get returns a copy of the resolved value for name.
func (r *Resolved) Get(name string) (any, bool) {
	e, ok := r.entries[name]
	if !ok {
		return nil, false
	}
	return copyValue(e.Value), true
}

// Values returns a copy of all resolved values.
func (r *Resolved) Values() map[string]any {
	out := make(map[string]any, len(r.entries))
	for k, e := range r.entries {
		out[k] = copyValue(e.Value)
	}
	return out
}

// String returns the value for name, or "" when unset or not a string.
func (r *Resolved) String(name string) string {
	s, _ := r.entries[name].Value.(string)
	return s
}

// Int returns the value for name, or 0.
func (r *Resolved) Int(name string) int {
	n, _ := r.entries[name].Value.(int)
	return n
}

// Float returns the value for name, or 0.
func (r *Resolved) Float(name string) float64 {
	f, _ := r.entries[name].Value.(float64)
	return f
}

// Bool returns the value for name, or false.
func (r *Resolved) Bool(name string) bool {
	b, _ := r.entries[name].Value.(bool)
	return b
}

// Strings returns a copy of the value for name, or nil.
func (r *Resolved) Strings(name string) []string {
	l, _ := r.entries[name].Value.([]string)
	return slices.Clone(l)
}

// IsSet reports whether name resolved to a non-nil value.
func (r *Resolved) IsSet(name string) bool {
	e, ok := r.entries[name]
	return ok && e.Value != nil
}

// MemberNames returns the members that received overrides, sorted.
func (r *Resolved) MemberNames() []string {
	names := slices.Collect(maps.Keys(r.members))
	slices.Sort(names)
	return names
}

// Member returns the raw override entries addressed to member.
func (r *Resolved) Member(member string) map[string]Entry {
	out := make(map[string]Entry, len(r.members[member]))
	for k, e := range r.members[member] {
		e.Value = copyValue(e.Value)
		out[k] = e
	}
	return out
}

// MemberSources turns the overrides addressed to member into sources, one per
// tier in ascending precedence, skipping the names in exclude. Appended after
// a member's own sources they win over everything the member resolves itself.
func (r *Resolved) MemberSources(member string, exclude ...string) []Source {
	byTier := make(map[Provenance]map[string]any)
	for k, e := range r.members[member] {
		if slices.Contains(exclude, k) {
			continue
		}
		if byTier[e.Provenance] == nil {
			byTier[e.Provenance] = make(map[string]any)
		}
		byTier[e.Provenance][k] = e.Value
	}
	tiers := slices.Collect(maps.Keys(byTier))
	slices.SortFunc(tiers, func(a, b Provenance) int { return a.Rank() - b.Rank() })

	sources := make([]Source, 0, len(tiers))
	for _, t := range tiers {
		sources = append(sources, NewSource(t, "pipeline "+r.step, byTier[t]))
	}
	return sources
}

// With returns a copy of r with name set to value. The caller is responsible
// for coercing value.
func (r *Resolved) With(name string, value any, tier Provenance, source string) *Resolved {
	out := &Resolved{
		step:    r.step,
		entries: make(map[string]Entry, len(r.entries)+1),
		members: make(map[string]map[string]Entry, len(r.members)),
	}
	maps.Copy(out.entries, r.entries)
	for m, es := range r.members {
		out.members[m] = maps.Clone(es)
	}
	out.entries[name] = Entry{Value: copyValue(value), Provenance: tier, Source: source}
	return out
}

// Equal reports whether r and other hold the same values. Provenance is not
// compared.
func (r *Resolved) Equal(other *Resolved) bool {
	if r == nil || other == nil {
		return r == other
	}
	return reflect.DeepEqual(r.Values(), other.Values())
}
