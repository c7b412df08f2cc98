package params

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"
)

// Kind is the declared type of a parameter.
type Kind int

const (
	KindString Kind = iota
	KindInt
	KindFloat
	KindBool
	KindStringList
	KindOption
	KindAny
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindStringList:
		return "string_list"
	case KindOption:
		return "option"
	case KindAny:
		return "any"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Param declares one recognized parameter.
type Param struct {
	Name     string
	Kind     Kind
	Default  any
	Help     string
	Options  []string // allowed values for KindOption
	Required bool     // must be supplied by some source; Default is ignored
}

// Spec is the schema of recognized parameters for one step class.
type Spec struct {
	params  []Param
	index   map[string]int
	members []string
	open    bool
}

// NewSpec validates params and builds a Spec. Names must be unique, non-empty
// and free of dots; defaults must coerce to the declared kind.
func NewSpec(params ...Param) (*Spec, error) {
	s := &Spec{index: make(map[string]int, len(params))}
	for i, p := range params {
		if p.Name == "" {
			return nil, fmt.Errorf("param %d: name is required", i)
		}
		if strings.Contains(p.Name, ".") {
			return nil, fmt.Errorf("param %q: name must not contain '.'", p.Name)
		}
		if _, dup := s.index[p.Name]; dup {
			return nil, fmt.Errorf("param %q: duplicate name", p.Name)
		}
		if p.Kind == KindOption && len(p.Options) == 0 {
			return nil, fmt.Errorf("param %q: option kind needs options", p.Name)
		}
		def, err := p.Coerce(p.Default)
		if err != nil {
			return nil, fmt.Errorf("param %q: invalid default: %w", p.Name, err)
		}
		p.Default = def
		p.Options = slices.Clone(p.Options)
		s.index[p.Name] = len(s.params)
		s.params = append(s.params, p)
	}
	return s, nil
}

// MustSpec is NewSpec that panics on error. Intended for package-level class
// declarations.
func MustSpec(params ...Param) *Spec {
	s, err := NewSpec(params...)
	if err != nil {
		panic(err)
	}
	return s
}

// Merge returns a new spec with the params of s followed by those of others.
// A later param with the same name replaces the earlier one in place.
func (s *Spec) Merge(others ...*Spec) *Spec {
	out := s.clone()
	for _, o := range others {
		if o == nil {
			continue
		}
		for _, p := range o.params {
			if i, ok := out.index[p.Name]; ok {
				out.params[i] = p
				continue
			}
			out.index[p.Name] = len(out.params)
			out.params = append(out.params, p)
		}
		for _, m := range o.members {
			if !slices.Contains(out.members, m) {
				out.members = append(out.members, m)
			}
		}
		out.open = out.open || o.open
	}
	return out
}

// WithMembers returns a copy of s that accepts "member.param" addressing for
// the given member names.
func (s *Spec) WithMembers(names ...string) *Spec {
	out := s.clone()
	for _, n := range names {
		if !slices.Contains(out.members, n) {
			out.members = append(out.members, n)
		}
	}
	return out
}

// AsOpen returns a copy of s that keeps unrecognized names instead of
// rejecting them.
func (s *Spec) AsOpen() *Spec {
	out := s.clone()
	out.open = true
	return out
}

func (s *Spec) clone() *Spec {
	if s == nil {
		return &Spec{index: map[string]int{}}
	}
	out := &Spec{
		params:  slices.Clone(s.params),
		index:   make(map[string]int, len(s.index)),
		members: slices.Clone(s.members),
		open:    s.open,
	}
	for k, v := range s.index {
		out.index[k] = v
	}
	return out
}

// Lookup returns the declared param for name.
func (s *Spec) Lookup(name string) (Param, bool) {
	if s == nil {
		return Param{}, false
	}
	i, ok := s.index[name]
	if !ok {
		return Param{}, false
	}
	return s.params[i], true
}

// Params returns the declared params in declaration order.
func (s *Spec) Params() []Param {
	if s == nil {
		return nil
	}
	return slices.Clone(s.params)
}

// Members returns the member names addressable through "member.param".
func (s *Spec) Members() []string {
	if s == nil {
		return nil
	}
	return slices.Clone(s.members)
}

// HasMember reports whether name is an addressable member.
func (s *Spec) HasMember(name string) bool {
	return s != nil && slices.Contains(s.members, name)
}

// Open reports whether the spec accepts undeclared names.
func (s *Spec) Open() bool { return s != nil && s.open }

// Coerce validates value against the param declared as name.
func (s *Spec) Coerce(name string, value any) (any, error) {
	p, ok := s.Lookup(name)
	if !ok {
		if s.Open() {
			return copyValue(value), nil
		}
		return nil, fmt.Errorf("unrecognized parameter %q", name)
	}
	return p.Coerce(value)
}

// Render writes a help listing of the spec, one param per line.
func (s *Spec) Render(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, p := range s.Params() {
		kind := p.Kind.String()
		if p.Kind == KindOption {
			kind = "one of " + strings.Join(p.Options, "|")
		}
		def := "default: " + formatDefault(p.Default)
		if p.Required {
			def = "required"
		}
		if _, err := fmt.Fprintf(tw, "  --%s\t%s\t%s\t(%s)\n", p.Name, kind, p.Help, def); err != nil {
			return fmt.Errorf("writing help: %w", err)
		}
	}
	for _, m := range s.Members() {
		if _, err := fmt.Fprintf(tw, "  --%s.<param>\tmember\toverride a parameter of member %q\t\n", m, m); err != nil {
			return fmt.Errorf("writing help: %w", err)
		}
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("writing help: %w", err)
	}
	return nil
}

func formatDefault(v any) string {
	switch t := v.(type) {
	case nil:
		return "none"
	case string:
		return fmt.Sprintf("%q", t)
	case []string:
		return "[" + strings.Join(t, ", ") + "]"
	default:
		return fmt.Sprint(t)
	}
}
