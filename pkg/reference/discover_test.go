package reference

import (
	"os"
	"path/filepath"
	"testing"
)

const flatParameters = `
parameters:
  class: cal.Flat
  threshold: 3
meta:
  reftype: pars-cal.flat
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0o750); err != nil {
		t.Fatal(err)
	}
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

func setupDiscoverTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeFile(t, root, "flat.yaml", flatParameters)
	child := filepath.Join(root, "child")
	writeFile(t, child, "flat.yaml", flatParameters)
	writeFile(t, filepath.Join(child, "grandchild"), "flat.yaml", flatParameters)
	return root
}

func TestDiscover_Unlimited(t *testing.T) {
	root := setupDiscoverTree(t)

	files, err := Discover(root, "", -1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(files) != 3 {
		t.Fatalf("expected 3 parameter files, got %d", len(files))
	}
	if files[0].Dir != root {
		t.Errorf("expected first file at root %q, got %q", root, files[0].Dir)
	}
	if files[0].Class != "cal.Flat" {
		t.Errorf("class = %q", files[0].Class)
	}
}

func TestDiscover_MaxDepth(t *testing.T) {
	tests := []struct {
		depth int
		want  int
	}{
		{0, 1},
		{1, 2},
		{2, 3},
	}
	for _, tt := range tests {
		root := setupDiscoverTree(t)
		files, err := Discover(root, DefaultPattern, tt.depth)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(files) != tt.want {
			t.Errorf("depth %d: expected %d files, got %d", tt.depth, tt.want, len(files))
		}
	}
}

func TestDiscover_Pattern(t *testing.T) {
	root := setupDiscoverTree(t)
	writeFile(t, root, "notes.txt", "not a parameter file")

	files, err := Discover(root, "child/**/*.yaml", -1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 files, got %d", len(files))
	}

	if _, err := Discover(root, "[", -1); err == nil {
		t.Fatal("expected error for invalid pattern")
	}
}

func TestDiscover_Empty(t *testing.T) {
	files, err := Discover(t.TempDir(), "", -1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(files) != 0 {
		t.Fatalf("expected 0 files, got %d", len(files))
	}
}

func TestDiscover_InvalidFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "broken.yaml", "{{invalid")

	if _, err := Discover(root, "", -1); err == nil {
		t.Fatal("expected error for invalid parameter file")
	}
}

func TestPathDepth(t *testing.T) {
	tests := []struct {
		path string
		want int
	}{
		{".", 0},
		{"a", 1},
		{"a/b", 2},
		{"a/b/c", 3},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got := pathDepth(tt.path)
			if got != tt.want {
				t.Errorf("pathDepth(%q) = %d, want %d", tt.path, got, tt.want)
			}
		})
	}
}
