// Package artifacts inspects the directory holding the pre-downloaded docling
// models. The directory is populated by an external download job and is only
// ever read here.
package artifacts

import (
	"context"
	"errors"
	"io/fs"
	"math"
	"os"
	"path/filepath"

	"github.com/shirou/gopsutil/v4/disk"
)

const (
	// TableFormerDir holds the table-structure model.
	TableFormerDir = "docling-project--docling-models"
	// LayoutDir holds the layout model.
	LayoutDir = "docling-project--docling-layout-heron"
	// MarkerFile is written by the download job once a component is complete.
	MarkerFile = ".download_complete"

	// InfoFileLimit caps the model file names reported by Info.
	InfoFileLimit = 20
	// InventoryLimit caps the entries returned by Inventory.
	InventoryLimit = 100
)

// Components lists the subdirectories that must be complete for the models to
// be usable.
var Components = []string{TableFormerDir, LayoutDir}

// ErrNotFound is returned when the artifact directory itself does not exist.
var ErrNotFound = errors.New("artifacts directory not found")

// Dir is a read-only view of an artifact directory.
type Dir struct {
	Path string
}

// New returns a Dir rooted at path.
func New(path string) Dir { return Dir{Path: path} }

// Ready reports whether every component directory and its marker file exist.
func (d Dir) Ready() bool {
	return len(d.Missing()) == 0
}

// Missing returns the components whose directory or marker is absent.
func (d Dir) Missing() []string {
	var out []string
	for _, c := range Components {
		dir := filepath.Join(d.Path, c)
		if !exists(dir) || !exists(filepath.Join(dir, MarkerFile)) {
			out = append(out, c)
		}
	}
	return out
}

// Exists reports whether the artifact directory is present.
func (d Dir) Exists() bool {
	st, err := os.Stat(d.Path)
	return err == nil && st.IsDir()
}

// Entries returns the names found directly under the artifact directory.
func (d Dir) Entries() ([]string, error) {
	ents, err := os.ReadDir(d.Path)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ents))
	for _, e := range ents {
		names = append(names, e.Name())
	}
	return names, nil
}

// ModelFiles returns up to limit names of regular files directly inside the
// table-structure model directory. A missing directory yields an empty list.
func (d Dir) ModelFiles(limit int) []string {
	dir := filepath.Join(d.Path, TableFormerDir)
	ents, err := os.ReadDir(dir)
	if err != nil {
		return []string{}
	}
	files := []string{}
	for _, e := range ents {
		if len(files) >= limit {
			break
		}
		if isRegular(filepath.Join(dir, e.Name()), e) {
			files = append(files, e.Name())
		}
	}
	return files
}

// File describes one entry of the artifact inventory.
type File struct {
	Path   string  `json:"path"`
	SizeMB float64 `json:"size_mb"`
}

// Inventory is the result of a recursive listing.
type Inventory struct {
	Total int
	Files []File
}

// Inventory walks the artifact directory and returns every regular file with
// its size. Total counts all files; Files holds at most limit entries in walk
// order.
func (d Dir) Inventory(limit int) (Inventory, error) {
	if !d.Exists() {
		return Inventory{}, ErrNotFound
	}
	inv := Inventory{Files: []File{}}
	err := filepath.WalkDir(d.Path, func(p string, e fs.DirEntry, err error) error {
		if err != nil {
			if p == d.Path {
				return err
			}
			// unreadable subtree
			if e != nil && e.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if e.IsDir() || !isRegular(p, e) {
			return nil
		}
		inv.Total++
		if len(inv.Files) >= limit {
			return nil
		}
		info, err := os.Stat(p)
		if err != nil {
			return nil
		}
		rel, err := filepath.Rel(d.Path, p)
		if err != nil {
			return nil
		}
		inv.Files = append(inv.Files, File{Path: filepath.ToSlash(rel), SizeMB: SizeMB(info.Size())})
		return nil
	})
	if err != nil {
		return Inventory{}, err
	}
	return inv, nil
}

// Usage describes the filesystem holding the artifacts.
type Usage struct {
	Fstype      string  `json:"fstype"`
	TotalBytes  uint64  `json:"total_bytes"`
	FreeBytes   uint64  `json:"free_bytes"`
	UsedBytes   uint64  `json:"used_bytes"`
	UsedPercent float64 `json:"used_percent"`
}

// Usage reports capacity of the volume the artifact directory lives on.
func (d Dir) Usage(ctx context.Context) (*Usage, error) {
	st, err := disk.UsageWithContext(ctx, d.Path)
	if err != nil {
		return nil, err
	}
	return &Usage{
		Fstype:      st.Fstype,
		TotalBytes:  st.Total,
		FreeBytes:   st.Free,
		UsedBytes:   st.Used,
		UsedPercent: math.Round(st.UsedPercent*100) / 100,
	}, nil
}

// SizeMB converts a byte count to MiB rounded to two decimals.
func SizeMB(n int64) float64 {
	return math.Round(float64(n)/(1024*1024)*100) / 100
}

func exists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

// isRegular follows symlinks so linked model files count as files.
func isRegular(p string, e fs.DirEntry) bool {
	if e.Type().IsRegular() {
		return true
	}
	if e.Type()&fs.ModeSymlink == 0 {
		return false
	}
	st, err := os.Stat(p)
	return err == nil && st.Mode().IsRegular()
}
