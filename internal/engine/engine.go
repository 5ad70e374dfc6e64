// Package engine defines the contract of the document conversion engine the
// gateway fronts, and the implementations that drive docling.
package engine

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotInstalled is returned by a Factory when the engine's runtime
// dependency is missing.
var ErrNotInstalled = errors.New("docling not installed")

// TableStructureOptions configures table-structure recognition.
type TableStructureOptions struct {
	DoCellMatching bool
	Mode           string
}

// Options is the conversion pipeline configuration.
type Options struct {
	ArtifactsPath    string
	DoOCR            bool
	DoTableStructure bool
	TableStructure   TableStructureOptions
	OutputFormat     string
}

// DefaultOptions returns the pipeline used by the gateway: OCR disabled,
// table-structure extraction with cell matching, models read from
// artifactsPath.
func DefaultOptions(artifactsPath string) Options {
	return Options{
		ArtifactsPath:    artifactsPath,
		DoOCR:            false,
		DoTableStructure: true,
		TableStructure: TableStructureOptions{
			DoCellMatching: true,
			Mode:           "accurate",
		},
		OutputFormat: "json",
	}
}

// Result is the output of one conversion.
type Result struct {
	Source   string
	Format   string
	Document string
}

// String returns the converted document.
func (r Result) String() string { return r.Document }

// Converter converts the document stored at path.
type Converter interface {
	Convert(ctx context.Context, path string) (Result, error)
}

// Factory constructs a Converter for the given options.
type Factory func(ctx context.Context, opts Options) (Converter, error)

// Config selects and parameterizes an engine implementation.
type Config struct {
	Kind        string
	DoclingBin  string
	ServeURL    string
	ServeAPIKey string
	TempDir     string
}

// NewFactory returns the Factory for cfg.Kind.
func NewFactory(cfg Config) (Factory, error) {
	switch cfg.Kind {
	case "cli", "":
		return CLIFactory(cfg.DoclingBin, cfg.TempDir, nil), nil
	case "http":
		return HTTPFactory(cfg.ServeURL, cfg.ServeAPIKey, nil), nil
	default:
		return nil, fmt.Errorf("unknown engine %q", cfg.Kind)
	}
}
