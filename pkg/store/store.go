// Package store persists step results to the local filesystem, memory or an
// S3-compatible object store.
package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/systemstart/steppipe/pkg/steps"
)

// FileStore writes artifacts below Root. Each file is written to a temporary
// name in the target directory and renamed into place.
type FileStore struct {
	Root string
}

// Persist writes a to Root/path and returns the absolute location.
func (s *FileStore) Persist(_ context.Context, path string, a *steps.Artifact) (string, error) {
	target, err := s.resolve(path)
	if err != nil {
		return "", err
	}
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("creating directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(target)+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("creating temporary file: %w", err)
	}
	tmpName := tmp.Name()

	_, writeErr := tmp.Write(a.Data)
	closeErr := tmp.Close()
	if writeErr != nil || closeErr != nil {
		_ = os.Remove(tmpName)
		if writeErr != nil {
			return "", fmt.Errorf("writing %s: %w", target, writeErr)
		}
		return "", fmt.Errorf("closing %s: %w", target, closeErr)
	}

	if err := os.Rename(tmpName, target); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("renaming into %s: %w", target, err)
	}
	return target, nil
}

func (s *FileStore) resolve(path string) (string, error) {
	if filepath.IsAbs(path) {
		return filepath.Clean(path), nil
	}
	root := s.Root
	if root == "" {
		root = "."
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolving store root: %w", err)
	}
	target := filepath.Join(absRoot, path)
	if rel, err := filepath.Rel(absRoot, target); err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes store root %s", path, absRoot)
	}
	return target, nil
}

// Memory keeps persisted artifacts in memory.
type Memory struct {
	mu      sync.Mutex
	objects map[string][]byte
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{objects: make(map[string][]byte)}
}

// Persist stores a copy of the artifact data under path.
func (m *Memory) Persist(_ context.Context, path string, a *steps.Artifact) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.objects == nil {
		m.objects = make(map[string][]byte)
	}
	m.objects[path] = append([]byte(nil), a.Data...)
	return "mem://" + path, nil
}

// Get returns the data stored under path.
func (m *Memory) Get(path string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[path]
	return data, ok
}

// Paths returns the stored paths in sorted order.
func (m *Memory) Paths() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.objects))
	for p := range m.objects {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Open returns the persister for location: an s3://bucket/prefix URL selects
// the object store configured from the environment, anything else is a
// directory.
func Open(ctx context.Context, location string) (steps.Persister, error) {
	if bucket, prefix, ok := ParseS3(location); ok {
		cfg, err := ConfigFromEnv()
		if err != nil {
			return nil, err
		}
		cfg.Bucket = bucket
		cfg.Prefix = prefix
		s, err := NewMinioStore(cfg)
		if err != nil {
			return nil, err
		}
		if err := s.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return s, nil
	}
	return &FileStore{Root: location}, nil
}

// ParseS3 splits an s3://bucket/prefix URL.
func ParseS3(location string) (bucket, prefix string, ok bool) {
	rest, found := strings.CutPrefix(location, "s3://")
	if !found || rest == "" {
		return "", "", false
	}
	bucket, prefix, _ = strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", false
	}
	return bucket, strings.Trim(prefix, "/"), true
}

var (
	_ steps.Persister = (*FileStore)(nil)
	_ steps.Persister = (*Memory)(nil)
	_ steps.Persister = (*MinioStore)(nil)
)
