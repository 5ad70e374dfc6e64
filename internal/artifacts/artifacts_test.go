package artifacts_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/gaspardpetit/docling-gateway/internal/artifacts"
	"github.com/gaspardpetit/docling-gateway/internal/artifacts/artifactstest"
)

func TestReady(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(t *testing.T, dir string)
		want     bool
		nMissing int
	}{
		{"empty", func(t *testing.T, dir string) {}, false, 2},
		{"dirs without markers", func(t *testing.T, dir string) {
			artifactstest.Component(t, dir, artifacts.TableFormerDir, false)
			artifactstest.Component(t, dir, artifacts.LayoutDir, false)
		}, false, 2},
		{"table former only", func(t *testing.T, dir string) {
			artifactstest.Component(t, dir, artifacts.TableFormerDir, true)
		}, false, 1},
		{"layout marker missing", func(t *testing.T, dir string) {
			artifactstest.Component(t, dir, artifacts.TableFormerDir, true)
			artifactstest.Component(t, dir, artifacts.LayoutDir, false)
		}, false, 1},
		{"complete", func(t *testing.T, dir string) { artifactstest.Complete(t, dir) }, true, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			tt.setup(t, dir)
			d := artifacts.New(dir)
			if got := d.Ready(); got != tt.want {
				t.Fatalf("Ready() = %v, want %v", got, tt.want)
			}
			if got := len(d.Missing()); got != tt.nMissing {
				t.Fatalf("Missing() = %d entries, want %d", got, tt.nMissing)
			}
		})
	}
}

func TestReadyMissingRoot(t *testing.T) {
	d := artifacts.New(filepath.Join(t.TempDir(), "absent"))
	if d.Ready() || d.Exists() {
		t.Fatalf("missing root must not be ready")
	}
}

func TestModelFiles(t *testing.T) {
	dir := t.TempDir()
	if got := artifacts.New(dir).ModelFiles(artifacts.InfoFileLimit); got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil list, got %#v", got)
	}
	artifactstest.Complete(t, dir)
	tf := filepath.Join(dir, artifacts.TableFormerDir)
	for i := 0; i < 25; i++ {
		artifactstest.WriteFile(t, filepath.Join(tf, fmt.Sprintf("weights-%02d.bin", i)), 1)
	}
	artifactstest.WriteFile(t, filepath.Join(tf, "nested", "deep.bin"), 1)

	got := artifacts.New(dir).ModelFiles(artifacts.InfoFileLimit)
	if len(got) != artifacts.InfoFileLimit {
		t.Fatalf("expected %d files, got %d", artifacts.InfoFileLimit, len(got))
	}
	for _, name := range got {
		if name == "nested" {
			t.Fatalf("directories must not be listed")
		}
	}
}

func TestInventory(t *testing.T) {
	dir := t.TempDir()
	artifactstest.Complete(t, dir)
	artifactstest.WriteFile(t, filepath.Join(dir, artifacts.LayoutDir, "model.safetensors"), 3*1024*1024+512*1024)

	inv, err := artifacts.New(dir).Inventory(artifacts.InventoryLimit)
	if err != nil {
		t.Fatalf("Inventory: %v", err)
	}
	if inv.Total != 3 || len(inv.Files) != 3 {
		t.Fatalf("expected 3 files, got total=%d files=%d", inv.Total, len(inv.Files))
	}
	var found bool
	for _, f := range inv.Files {
		if f.SizeMB < 0 {
			t.Fatalf("negative size for %s", f.Path)
		}
		if f.Path == artifacts.LayoutDir+"/model.safetensors" {
			found = true
			if f.SizeMB != 3.5 {
				t.Fatalf("size = %v, want 3.5", f.SizeMB)
			}
		}
	}
	if !found {
		t.Fatalf("model file missing from %+v", inv.Files)
	}
}

func TestInventoryLimit(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 130; i++ {
		artifactstest.WriteFile(t, filepath.Join(dir, "shards", fmt.Sprintf("part-%03d", i)), i)
	}
	inv, err := artifacts.New(dir).Inventory(artifacts.InventoryLimit)
	if err != nil {
		t.Fatalf("Inventory: %v", err)
	}
	if inv.Total != 130 {
		t.Fatalf("total = %d, want 130", inv.Total)
	}
	if len(inv.Files) != artifacts.InventoryLimit {
		t.Fatalf("files = %d, want %d", len(inv.Files), artifacts.InventoryLimit)
	}
	for _, f := range inv.Files {
		st, err := os.Stat(filepath.Join(dir, filepath.FromSlash(f.Path)))
		if err != nil {
			t.Fatalf("stat %s: %v", f.Path, err)
		}
		if math.Abs(f.SizeMB-float64(st.Size())/(1024*1024)) > 0.005 {
			t.Fatalf("size mismatch for %s: %v vs %d bytes", f.Path, f.SizeMB, st.Size())
		}
	}
}

func TestInventoryMissingDir(t *testing.T) {
	_, err := artifacts.New(filepath.Join(t.TempDir(), "nope")).Inventory(artifacts.InventoryLimit)
	if !errors.Is(err, artifacts.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSizeMB(t *testing.T) {
	tests := []struct {
		n    int64
		want float64
	}{
		{0, 0},
		{1024 * 1024, 1},
		{5 * 1024, 0},
		{10 * 1024 * 1024 / 3, 3.33},
	}
	for _, tt := range tests {
		if got := artifacts.SizeMB(tt.n); got != tt.want {
			t.Errorf("SizeMB(%d) = %v, want %v", tt.n, got, tt.want)
		}
	}
}

func TestUsage(t *testing.T) {
	u, err := artifacts.New(t.TempDir()).Usage(context.Background())
	if err != nil {
		t.Skipf("disk usage unavailable: %v", err)
	}
	if u.TotalBytes == 0 {
		t.Fatalf("expected non-zero volume size: %+v", u)
	}
}
