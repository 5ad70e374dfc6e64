package gateway

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gaspardpetit/docling-gateway/internal/logx"
	"github.com/gaspardpetit/docling-gateway/internal/metrics"
	"github.com/gaspardpetit/docling-gateway/internal/serverstate"
)

// Upload is a document received for conversion.
type Upload struct {
	Filename string
	Body     io.Reader
}

// ConversionResponse is the /convert payload.
type ConversionResponse struct {
	Status  string         `json:"status"`
	Message string         `json:"message"`
	Result  map[string]any `json:"result"`
}

// Convert converts the uploaded document. A nil upload is rejected with
// ErrNoFile once the engine is available. The engine is initialized on demand
// when the models appeared after startup.
func (s *Service) Convert(ctx context.Context, up *Upload) (ConversionResponse, error) {
	if serverstate.IsDraining() {
		metrics.RecordConversion(metrics.OutcomeUnavailable)
		return ConversionResponse{}, ErrDraining
	}
	if !s.Loaded() {
		if s.Ready() {
			s.Init(ctx)
		}
		if !s.Loaded() {
			metrics.RecordConversion(metrics.OutcomeUnavailable)
			return ConversionResponse{}, ErrUnavailable
		}
	}

	h := s.engine.Load()
	if h.conv == nil {
		metrics.RecordConversion(metrics.OutcomeDemo)
		return ConversionResponse{
			Status:  "demo",
			Message: "Docling converter not available. Model files are present but converter not initialized.",
			Result:  map[string]any{"artifacts_path": s.dir.Path, "model_exists": s.Ready()},
		}, nil
	}

	if up == nil || up.Body == nil {
		metrics.RecordConversion(metrics.OutcomeBadRequest)
		return ConversionResponse{}, ErrNoFile
	}

	metrics.ConversionStarted()
	defer metrics.ConversionDone()

	doc, err := s.convert(ctx, h, up)
	if err != nil {
		metrics.RecordConversion(metrics.OutcomeError)
		logx.Log.Error().Err(err).Str("filename", up.Filename).Msg("conversion failed")
		return ConversionResponse{}, &ConversionError{Err: err}
	}
	metrics.RecordConversion(metrics.OutcomeSuccess)
	return ConversionResponse{
		Status:  "success",
		Message: "Document converted successfully",
		Result:  map[string]any{"document": doc},
	}, nil
}

func (s *Service) convert(ctx context.Context, h *handle, up *Upload) (string, error) {
	path, err := s.spool(up)
	if err != nil {
		return "", err
	}
	defer func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logx.Log.Warn().Err(err).Str("path", path).Msg("remove temp upload")
		}
	}()

	if s.convertTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.convertTimeout)
		defer cancel()
	}
	start := time.Now()
	res, err := h.conv.Convert(ctx, path)
	metrics.ObserveConversion(time.Since(start))
	if err != nil {
		return "", err
	}
	logx.Log.Info().Str("filename", up.Filename).Dur("duration", time.Since(start)).Msg("document converted")
	return res.String(), nil
}

// spool writes the upload to a uniquely named temp file that keeps the
// original extension, which docling uses to detect the input format.
func (s *Service) spool(up *Upload) (string, error) {
	dir := s.tempDir
	if dir == "" {
		dir = os.TempDir()
	}
	path := filepath.Join(dir, uuid.NewString()+"_"+safeName(up.Filename))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	n, err := io.Copy(f, up.Body)
	metrics.AddUploadBytes(int(n))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("write temp file: %w", err)
	}
	return path, nil
}

func safeName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return "upload"
	}
	return name
}
