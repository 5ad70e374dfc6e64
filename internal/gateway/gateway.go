// Package gateway implements the model gateway service: it watches the
// artifact directory, lazily constructs the conversion engine once the models
// are present and forwards uploaded documents to it.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gaspardpetit/docling-gateway/internal/artifacts"
	"github.com/gaspardpetit/docling-gateway/internal/engine"
	"github.com/gaspardpetit/docling-gateway/internal/logx"
	"github.com/gaspardpetit/docling-gateway/internal/metrics"
	"github.com/gaspardpetit/docling-gateway/internal/serverstate"
)

const (
	// Name and Version identify the API in the summary.
	Name    = "Docling Model API"
	Version = "1.0.0"

	StatusHealthy = "healthy"
	StatusWaiting = "waiting"
)

// Options configures a Service.
type Options struct {
	ArtifactsPath  string
	Factory        engine.Factory
	TempDir        string
	ConvertTimeout time.Duration
}

// InitStatus is the outcome of an initialization attempt.
type InitStatus struct {
	Ready  bool
	Reason string
}

// StatusReady is returned once the engine is loaded.
var StatusReady = InitStatus{Ready: true}

// Unavailable returns a failed InitStatus carrying reason.
func Unavailable(reason string) InitStatus { return InitStatus{Reason: reason} }

// handle is the constructed engine. A nil conv is never stored by Init.
type handle struct {
	conv engine.Converter
}

// Service owns the engine handle and answers the gateway operations. It is
// safe for concurrent use.
type Service struct {
	dir            artifacts.Dir
	factory        engine.Factory
	opts           engine.Options
	tempDir        string
	convertTimeout time.Duration

	initMu sync.Mutex
	engine atomic.Pointer[handle]
}

// New returns a Service for opts. The engine is not built until Init.
func New(opts Options) *Service {
	return &Service{
		dir:            artifacts.New(opts.ArtifactsPath),
		factory:        opts.Factory,
		opts:           engine.DefaultOptions(opts.ArtifactsPath),
		tempDir:        opts.TempDir,
		convertTimeout: opts.ConvertTimeout,
	}
}

// ArtifactsPath returns the configured artifact directory.
func (s *Service) ArtifactsPath() string { return s.dir.Path }

// Ready reports whether both model components are fully downloaded. It only
// reads the artifact directory.
func (s *Service) Ready() bool { return s.dir.Ready() }

// Loaded reports whether the engine has been constructed.
func (s *Service) Loaded() bool { return s.engine.Load() != nil }

// Start initializes the engine when the models are already present.
func (s *Service) Start(ctx context.Context) {
	logx.Log.Info().Str("artifacts_path", s.dir.Path).Msg("starting docling gateway")
	if !s.Ready() {
		logx.Log.Warn().Strs("missing", s.dir.Missing()).Msg("models not yet available; waiting for download job to complete")
		return
	}
	logx.Log.Info().Msg("models found in persistent storage")
	s.Init(ctx)
}

// Init constructs the engine if the models are present. It is idempotent and
// concurrent callers build at most one engine. Failures are logged and
// reported through the returned status, never as an error.
func (s *Service) Init(ctx context.Context) InitStatus {
	if s.Loaded() {
		return StatusReady
	}
	s.initMu.Lock()
	defer s.initMu.Unlock()
	if s.Loaded() {
		return StatusReady
	}

	if !s.Ready() {
		logx.Log.Warn().Str("artifacts_path", s.dir.Path).Msg("models not found")
		return Unavailable(fmt.Sprintf("models not found at %s", s.dir.Path))
	}
	if s.factory == nil {
		return s.initFailed(errors.New("no conversion engine configured"))
	}

	logx.Log.Info().Str("artifacts_path", s.dir.Path).Msg("initializing docling converter")
	if names, err := s.dir.Entries(); err == nil {
		logx.Log.Debug().Strs("entries", names).Msg("artifacts directory contents")
	}

	conv, err := s.factory(ctx, s.opts)
	if err == nil && conv == nil {
		err = errors.New("engine factory returned no converter")
	}
	if err != nil {
		return s.initFailed(err)
	}

	s.engine.Store(&handle{conv: conv})
	serverstate.SetModelLoaded(true)
	serverstate.SetState("ready")
	metrics.RecordEngineInit(true)
	metrics.SetModelLoaded(true)
	logx.Log.Info().Bool("ocr", s.opts.DoOCR).Bool("table_structure", s.opts.DoTableStructure).Msg("docling converter initialized")
	return StatusReady
}

func (s *Service) initFailed(err error) InitStatus {
	if errors.Is(err, engine.ErrNotInstalled) {
		logx.Log.Error().Err(err).Msg("docling not available")
	} else {
		logx.Log.Error().Err(err).Msg("failed to initialize docling")
	}
	metrics.RecordEngineInit(false)
	return Unavailable(err.Error())
}

// Health is the /health payload.
type Health struct {
	Status      string `json:"status"`
	ModelLoaded bool   `json:"model_loaded"`
	ModelPath   string `json:"model_path"`
}

// Health reports readiness; the status depends only on the artifacts.
func (s *Service) Health() Health {
	status := StatusWaiting
	if s.Ready() {
		status = StatusHealthy
	}
	return Health{Status: status, ModelLoaded: s.Loaded(), ModelPath: s.dir.Path}
}

// Summary is the / payload.
type Summary struct {
	Name          string            `json:"name"`
	Version       string            `json:"version"`
	ArtifactsPath string            `json:"artifacts_path"`
	ModelLoaded   bool              `json:"model_loaded"`
	ModelExists   bool              `json:"model_exists"`
	Endpoints     map[string]string `json:"endpoints"`
}

// Summary describes the service and its endpoints.
func (s *Service) Summary() Summary {
	return Summary{
		Name:          Name,
		Version:       Version,
		ArtifactsPath: s.dir.Path,
		ModelLoaded:   s.Loaded(),
		ModelExists:   s.Ready(),
		Endpoints: map[string]string{
			"health":  "/health",
			"convert": "/convert",
			"info":    "/info",
			"files":   "/files",
		},
	}
}

// Info is the /info payload.
type Info struct {
	ArtifactsPath string           `json:"artifacts_path"`
	ModelLoaded   bool             `json:"model_loaded"`
	ModelExists   bool             `json:"model_exists"`
	Files         []string         `json:"files"`
	Volume        *artifacts.Usage `json:"volume,omitempty"`
}

// Info lists up to 20 table-structure model files and the volume usage.
func (s *Service) Info(ctx context.Context) Info {
	info := Info{
		ArtifactsPath: s.dir.Path,
		ModelLoaded:   s.Loaded(),
		ModelExists:   s.Ready(),
		Files:         s.dir.ModelFiles(artifacts.InfoFileLimit),
	}
	if s.dir.Exists() {
		if u, err := s.dir.Usage(ctx); err == nil {
			info.Volume = u
		} else {
			logx.Log.Debug().Err(err).Msg("artifact volume usage unavailable")
		}
	}
	return info
}

// FileList is the /files payload.
type FileList struct {
	ArtifactsPath string           `json:"artifacts_path"`
	TotalFiles    int              `json:"total_files"`
	Files         []artifacts.File `json:"files"`
}

// FilesError is the /files payload when the artifact directory is missing.
type FilesError struct {
	Error string `json:"error"`
	Path  string `json:"path"`
}

// Files walks the artifact directory. A missing directory yields
// artifacts.ErrNotFound.
func (s *Service) Files() (FileList, error) {
	inv, err := s.dir.Inventory(artifacts.InventoryLimit)
	if err != nil {
		return FileList{}, err
	}
	return FileList{ArtifactsPath: s.dir.Path, TotalFiles: inv.Total, Files: inv.Files}, nil
}

// FilesPayload returns the listing, or a FilesError body when the artifact
// directory does not exist. Other walk errors are returned.
func (s *Service) FilesPayload() (any, error) {
	list, err := s.Files()
	if errors.Is(err, artifacts.ErrNotFound) {
		return FilesError{Error: "Artifacts directory not found", Path: s.dir.Path}, nil
	}
	if err != nil {
		return nil, err
	}
	return list, nil
}
