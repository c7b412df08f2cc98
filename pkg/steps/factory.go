package steps

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Registry maps class names to step classes.
type Registry struct {
	classes map[string]*Class
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{classes: make(map[string]*Class)}
}

// Register adds a class. Names must be unique; pipeline member classes are
// checked when an instance is built, so registration order does not matter.
func (r *Registry) Register(c *Class) error {
	if c == nil || c.Name == "" {
		return fmt.Errorf("class name is required")
	}
	if _, exists := r.classes[c.Name]; exists {
		return fmt.Errorf("class %q already registered", c.Name)
	}
	if c.New == nil && !c.IsPipeline() {
		return fmt.Errorf("class %q: New is required for non-pipeline classes", c.Name)
	}
	seen := make(map[string]bool, len(c.Members))
	for i, m := range c.Members {
		if m.Name == "" || m.Class == "" {
			return fmt.Errorf("class %q: member %d needs a name and a class", c.Name, i)
		}
		if strings.Contains(m.Name, ".") {
			return fmt.Errorf("class %q: member name %q must not contain '.'", c.Name, m.Name)
		}
		if seen[m.Name] {
			return fmt.Errorf("class %q: duplicate member %q", c.Name, m.Name)
		}
		seen[m.Name] = true
	}
	r.classes[c.Name] = c
	return nil
}

// MustRegister is Register that panics on error.
func (r *Registry) MustRegister(classes ...*Class) {
	for _, c := range classes {
		if err := r.Register(c); err != nil {
			panic(err)
		}
	}
}

// Lookup returns the class registered under name.
func (r *Registry) Lookup(name string) (*Class, error) {
	c, ok := r.classes[name]
	if !ok {
		return nil, &UnknownStepClassError{Class: name}
	}
	return c, nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.classes[name]
	return ok
}

// Classes returns all registered class names, sorted.
func (r *Registry) Classes() []string {
	return slices.Sorted(maps.Keys(r.classes))
}

// Suffixes returns the lower-cased short names of all registered classes.
// They are stripped from input identifiers before a new suffix is added.
func (r *Registry) Suffixes() []string {
	out := make([]string, 0, len(r.classes))
	for _, c := range r.classes {
		out = append(out, strings.ToLower(c.ShortName()))
	}
	slices.Sort(out)
	return slices.Compact(out)
}
