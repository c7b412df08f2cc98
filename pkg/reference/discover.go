package reference

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/systemstart/steppipe/pkg/api"
)

// DefaultPattern matches every parameter file format.
const DefaultPattern = "**/*.{yaml,yml,json,hcl}"

// Discover walks root looking for parameter files matching pattern up to
// maxDepth directories deep. A maxDepth of -1 means unlimited, 0 means only
// root itself. Results are sorted by path depth, parents before children.
func Discover(root, pattern string, maxDepth int) ([]*api.ParameterFile, error) {
	if pattern == "" {
		pattern = DefaultPattern
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid pattern %q", pattern)
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving root path: %w", err)
	}

	paths, err := collectPaths(absRoot, pattern, maxDepth)
	if err != nil {
		return nil, err
	}

	slices.SortStableFunc(paths, func(a, b string) int {
		return pathDepth(a) - pathDepth(b)
	})

	return loadAll(paths)
}

func collectPaths(absRoot, pattern string, maxDepth int) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("walk error at %s: %w", path, err)
		}

		rel, relErr := filepath.Rel(absRoot, path)
		if relErr != nil {
			return fmt.Errorf("computing relative path for %s: %w", path, relErr)
		}

		if d.IsDir() {
			if maxDepth >= 0 && pathDepth(rel) > maxDepth {
				return filepath.SkipDir
			}
			return nil
		}

		if doublestar.MatchUnvalidated(pattern, filepath.ToSlash(rel)) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking directory tree: %w", err)
	}
	return paths, nil
}

func loadAll(paths []string) ([]*api.ParameterFile, error) {
	files := make([]*api.ParameterFile, 0, len(paths))
	for _, p := range paths {
		pf, err := api.LoadParameterFile(p)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", p, err)
		}
		files = append(files, pf)
	}
	return files, nil
}

func pathDepth(p string) int {
	if p == "." {
		return 0
	}
	return strings.Count(filepath.ToSlash(p), "/") + 1
}
