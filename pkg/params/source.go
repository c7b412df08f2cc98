package params

import (
	"maps"
	"slices"
)

// Provenance names the tier a parameter value came from.
type Provenance string

const (
	CodedDefault    Provenance = "coded_default"
	RetrievedConfig Provenance = "retrieved_config"
	UserConfig      Provenance = "user_config"
	CommandLine     Provenance = "cli"
)

// MembersKey is the key under which parameter files nest member
// configuration of a pipeline.
const MembersKey = "steps"

// Rank orders tiers from lowest to highest precedence. Unknown tiers rank -1.
func (p Provenance) Rank() int {
	switch p {
	case CodedDefault:
		return 0
	case RetrievedConfig:
		return 1
	case UserConfig:
		return 2
	case CommandLine:
		return 3
	default:
		return -1
	}
}

// Valid reports whether p is one of the known tiers.
func (p Provenance) Valid() bool { return p.Rank() >= 0 }

// Source is an immutable mapping of parameter name to value tagged with the
// tier it belongs to. Nested member maps found under MembersKey are flattened
// into dotted "member.param" keys.
type Source struct {
	tier   Provenance
	label  string
	values map[string]any
}

// NewSource copies values into a new Source.
func NewSource(tier Provenance, label string, values map[string]any) Source {
	flat := make(map[string]any, len(values))
	flatten("", values, flat)
	return Source{tier: tier, label: label, values: flat}
}

func flatten(prefix string, in map[string]any, out map[string]any) {
	for k, v := range in {
		if k == MembersKey {
			if members, ok := v.(map[string]any); ok {
				for member, mv := range members {
					if sub, ok := mv.(map[string]any); ok {
						flatten(prefix+member+".", sub, out)
						continue
					}
					out[prefix+MembersKey+"."+member] = copyValue(mv)
				}
				continue
			}
		}
		out[prefix+k] = copyValue(v)
	}
}

// Tier returns the provenance tag of the source.
func (s Source) Tier() Provenance { return s.tier }

// Label describes where the source came from, e.g. a file path.
func (s Source) Label() string { return s.label }

// Len returns the number of parameters the source defines.
func (s Source) Len() int { return len(s.values) }

// Lookup returns a copy of the value for name.
func (s Source) Lookup(name string) (any, bool) {
	v, ok := s.values[name]
	if !ok {
		return nil, false
	}
	return copyValue(v), true
}

// Keys returns the parameter names in sorted order.
func (s Source) Keys() []string {
	keys := slices.Collect(maps.Keys(s.values))
	slices.Sort(keys)
	return keys
}

// Values returns a copy of the flattened mapping.
func (s Source) Values() map[string]any {
	out := make(map[string]any, len(s.values))
	for k, v := range s.values {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = copyValue(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = copyValue(e)
		}
		return out
	case []string:
		return slices.Clone(t)
	default:
		return v
	}
}
