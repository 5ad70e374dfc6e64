package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/gaspardpetit/docling-gateway/internal/gateway"
	"github.com/gaspardpetit/docling-gateway/internal/logx"
)

// API serves the gateway operations over HTTP.
type API struct {
	Svc            *gateway.Service
	MaxUploadBytes int64
}

func (a *API) GetRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.Svc.Summary())
}

func (a *API) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.Svc.Health())
}

func (a *API) GetInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.Svc.Info(r.Context()))
}

func (a *API) GetFiles(w http.ResponseWriter, r *http.Request) {
	payload, err := a.Svc.FilesPayload()
	if err != nil {
		logx.Log.Error().Err(err).Msg("list model files")
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (a *API) PostConvert(w http.ResponseWriter, r *http.Request) {
	if a.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, a.MaxUploadBytes)
	}
	up, err := uploadFromRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp, err := a.Svc.Convert(r.Context(), up)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// uploadFromRequest returns the "file" part of a multipart body, or nil when
// the request carries no file. The part is streamed, not buffered.
func uploadFromRequest(r *http.Request) (*gateway.Upload, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		if errors.Is(err, http.ErrNotMultipart) {
			return nil, nil
		}
		return nil, badRequest{err}
	}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		if err != nil {
			return nil, badRequest{err}
		}
		if part.FormName() == "file" && part.FileName() != "" {
			return &gateway.Upload{Filename: part.FileName(), Body: part}, nil
		}
		_ = part.Close()
	}
}

type badRequest struct{ err error }

func (b badRequest) Error() string { return "malformed multipart body: " + b.err.Error() }
func (b badRequest) Unwrap() error { return b.err }

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var mbe *http.MaxBytesError
	var br badRequest
	reqID := chiMiddleware.GetReqID(r.Context())
	switch {
	case errors.As(err, &mbe):
		writeDetail(w, http.StatusRequestEntityTooLarge, "Upload exceeds the maximum allowed size.")
	case errors.As(err, &br):
		writeDetail(w, http.StatusBadRequest, br.Error())
	case errors.Is(err, gateway.ErrUnavailable), errors.Is(err, gateway.ErrDraining):
		w.Header().Set("Retry-After", "30")
		writeDetail(w, http.StatusServiceUnavailable, gateway.Detail(err))
	case errors.Is(err, gateway.ErrNoFile):
		writeDetail(w, http.StatusBadRequest, gateway.Detail(err))
	default:
		logx.Log.Error().Str("request_id", reqID).Err(err).Msg("convert")
		writeDetail(w, http.StatusInternalServerError, gateway.Detail(err))
	}
}

func writeDetail(w http.ResponseWriter, code int, detail string) {
	writeJSON(w, code, map[string]string{"detail": detail})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
