package processing

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/systemstart/steppipe/pkg/steps"
)

// LoadInputs reads the files matched by patterns into artifacts identified
// by their base names. Patterns may use ** globs. A pattern matching nothing
// is an error.
func LoadInputs(patterns ...string) ([]*steps.Artifact, error) {
	var artifacts []*steps.Artifact
	seen := make(map[string]bool)
	for _, pattern := range patterns {
		matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("invalid input pattern %q: %w", pattern, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("no input matches %q", pattern)
		}
		slices.Sort(matches)

		for _, m := range matches {
			if seen[m] {
				continue
			}
			seen[m] = true
			data, err := os.ReadFile(m)
			if err != nil {
				return nil, fmt.Errorf("reading input: %w", err)
			}
			artifacts = append(artifacts, &steps.Artifact{
				ID:   filepath.Base(m),
				Data: data,
				Meta: map[string]any{"source": m},
			})
		}
	}
	return artifacts, nil
}
