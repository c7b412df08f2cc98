package api

import (
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Document returns the parameters section with class and name folded back in.
func (p *ParameterFile) Document() map[string]any {
	out := maps.Clone(p.Parameters)
	if out == nil {
		out = make(map[string]any)
	}
	if p.Class != "" {
		out[ClassKey] = p.Class
	}
	if p.Name != "" {
		out[NameKey] = p.Name
	}
	return out
}

// EncodeParameterFile renders p in the given format.
func EncodeParameterFile(p *ParameterFile, format string) ([]byte, error) {
	doc := document{Parameters: p.Document(), Meta: p.Meta}
	switch format {
	case FormatYAML:
		data, err := yaml.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("encoding yaml: %w", err)
		}
		return data, nil
	case FormatJSON:
		data, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encoding json: %w", err)
		}
		return append(data, '\n'), nil
	case FormatHCL:
		return encodeHCL(doc)
	default:
		return nil, fmt.Errorf("unsupported parameter file format %q", format)
	}
}

// SaveParameterFile writes p to filename in the format implied by its
// extension. The file is written to a temporary name first and renamed.
func SaveParameterFile(filename string, p *ParameterFile) error {
	format, err := FormatOf(filename)
	if err != nil {
		return err
	}
	data, err := EncodeParameterFile(p, format)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(filename), 0o750); err != nil {
		return fmt.Errorf("creating directory for %s: %w", filename, err)
	}
	tmp := filename + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, filename); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("renaming %s: %w", tmp, err)
	}
	return nil
}
