// Package artifactstest builds artifact directories for tests.
package artifactstest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gaspardpetit/docling-gateway/internal/artifacts"
)

// Complete creates both model components with their markers under dir.
func Complete(t testing.TB, dir string) {
	t.Helper()
	for _, c := range artifacts.Components {
		Component(t, dir, c, true)
	}
}

// Component creates the component directory and, when marked is true, its
// download marker.
func Component(t testing.TB, dir, name string, marked bool) {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.MkdirAll(p, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", p, err)
	}
	if marked {
		WriteFile(t, filepath.Join(p, artifacts.MarkerFile), 0)
	}
}

// WriteFile creates a file of size bytes, creating parent directories.
func WriteFile(t testing.TB, path string, size int) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
