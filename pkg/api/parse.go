package api

import (
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/systemstart/steppipe/pkg/params"
)

// FormatOf returns the parameter file format implied by the file extension.
func FormatOf(filename string) (string, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml", ".cfg":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	case ".hcl":
		return FormatHCL, nil
	default:
		return "", fmt.Errorf("unsupported parameter file extension %q", filepath.Ext(filename))
	}
}

// LoadParameterFile reads a parameter file, sets Dir/FilePath, and validates it.
func LoadParameterFile(filename string) (*ParameterFile, error) {
	format, err := FormatOf(filename)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("reading parameter file: %w", err)
	}

	pf, err := ParseParameterFile(data, format, filename)
	if err != nil {
		return nil, err
	}

	absPath, err := filepath.Abs(filename)
	if err != nil {
		return nil, fmt.Errorf("resolving absolute path: %w", err)
	}
	pf.FilePath = absPath
	pf.Dir = filepath.Dir(absPath)
	return pf, nil
}

// ParseParameterFile decodes data in the given format. label is used in
// error messages only.
func ParseParameterFile(data []byte, format, label string) (*ParameterFile, error) {
	var doc document
	switch format {
	case FormatYAML, FormatJSON:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parsing parameter file: %w", err)
		}
	case FormatHCL:
		d, err := decodeHCL(data, label)
		if err != nil {
			return nil, fmt.Errorf("parsing parameter file: %w", err)
		}
		doc = d
	default:
		return nil, fmt.Errorf("unsupported parameter file format %q", format)
	}

	pf, err := fromDocument(doc)
	if err != nil {
		return nil, fmt.Errorf("validating parameter file %s: %w", label, err)
	}
	return pf, nil
}

func fromDocument(doc document) (*ParameterFile, error) {
	if doc.Parameters == nil {
		return nil, fmt.Errorf("missing %q section", ParametersKey)
	}
	pf := &ParameterFile{
		Parameters: maps.Clone(doc.Parameters),
		Meta:       doc.Meta,
	}
	for key, dst := range map[string]*string{ClassKey: &pf.Class, NameKey: &pf.Name} {
		v, ok := pf.Parameters[key]
		if !ok {
			continue
		}
		s, isString := v.(string)
		if !isString {
			return nil, fmt.Errorf("%s must be a string, got %T", key, v)
		}
		*dst = s
		delete(pf.Parameters, key)
	}
	if err := pf.Validate(); err != nil {
		return nil, err
	}
	return pf, nil
}

// Source returns the step parameters as a parameter source of the given tier.
func (p *ParameterFile) Source(tier params.Provenance) params.Source {
	label := p.FilePath
	if label == "" {
		label = p.Class
	}
	return params.NewSource(tier, label, p.Parameters)
}

// InstanceName returns the configured name, falling back to the file base
// name without extension.
func (p *ParameterFile) InstanceName() string {
	if p.Name != "" {
		return p.Name
	}
	if p.FilePath == "" {
		return ""
	}
	base := filepath.Base(p.FilePath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// ResolvePath resolves name relative to the directory of the parameter file.
func (p *ParameterFile) ResolvePath(name string) string {
	if name == "" || filepath.IsAbs(name) || p.Dir == "" {
		return name
	}
	return filepath.Join(p.Dir, name)
}
