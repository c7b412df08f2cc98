package api

import (
	"fmt"
	"strings"

	"github.com/systemstart/steppipe/pkg/params"
)

// Validate checks the structure of a parameter file. Parameter values are
// checked later against the step's spec.
func (p *ParameterFile) Validate() error {
	for key := range p.Parameters {
		if key == "" {
			return fmt.Errorf("empty parameter name")
		}
		if strings.Contains(key, ".") {
			return fmt.Errorf("parameter %q: dotted names are only allowed on the command line", key)
		}
	}

	if raw, ok := p.Parameters[params.MembersKey]; ok {
		members, isMap := raw.(map[string]any)
		if !isMap {
			return fmt.Errorf("%s must be a mapping of member name to parameters, got %T", params.MembersKey, raw)
		}
		for name, section := range members {
			if _, isMap := section.(map[string]any); !isMap {
				return fmt.Errorf("%s.%s must be a mapping, got %T", params.MembersKey, name, section)
			}
		}
	}

	if p.Meta != nil && p.Meta.Reftype != "" && !strings.HasPrefix(p.Meta.Reftype, ReftypePrefix) {
		return fmt.Errorf("meta.reftype %q must start with %q", p.Meta.Reftype, ReftypePrefix)
	}
	return nil
}

// Validate checks the batch configuration for errors.
func (b *BatchFile) Validate() error {
	if len(b.Runs) == 0 {
		return fmt.Errorf("runs list is empty")
	}

	names := make(map[string]bool)
	outputs := make(map[string]bool)

	for i, run := range b.Runs {
		if run.Name == "" {
			return fmt.Errorf("run %d: name is required", i)
		}
		if run.Config == "" {
			return fmt.Errorf("run %q: config is required", run.Name)
		}
		if names[run.Name] {
			return fmt.Errorf("run %q: duplicate name", run.Name)
		}
		names[run.Name] = true
		if run.OutputDir == "" {
			continue
		}
		if outputs[run.OutputDir] {
			return fmt.Errorf("run %q: duplicate output_dir %q", run.Name, run.OutputDir)
		}
		outputs[run.OutputDir] = true
	}

	return nil
}
