package api

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// LoadBatch reads a batch YAML file, unmarshals it, and validates.
func LoadBatch(filename string) (*BatchFile, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("reading batch file: %w", err)
	}

	var b BatchFile
	if err := yaml.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("parsing batch file: %w", err)
	}

	if err := b.Validate(); err != nil {
		return nil, fmt.Errorf("validating batch file: %w", err)
	}

	absPath, err := filepath.Abs(filename)
	if err != nil {
		return nil, fmt.Errorf("resolving absolute path: %w", err)
	}
	b.FilePath = absPath
	b.Dir = filepath.Dir(absPath)

	return &b, nil
}

// ResolvePath resolves name relative to the directory of the batch file.
func (b *BatchFile) ResolvePath(name string) string {
	if name == "" || filepath.IsAbs(name) || b.Dir == "" {
		return name
	}
	return filepath.Join(b.Dir, name)
}
