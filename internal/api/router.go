package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/gaspardpetit/docling-gateway/internal/gateway"
)

// Options configures the public router.
type Options struct {
	APIKey         string
	AllowedOrigins []string
	MaxUploadBytes int64
	// Metrics, when set, is mounted at /metrics.
	Metrics http.Handler
	// MCP, when set, is mounted at /mcp behind the API key.
	MCP http.Handler
}

// NewRouter builds the gateway HTTP handler.
func NewRouter(ctx context.Context, svc *gateway.Service, opts Options) (http.Handler, error) {
	doc, err := LoadOpenAPI(ctx)
	if err != nil {
		return nil, err
	}
	openapiHandler, err := OpenAPIHandler(doc)
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	if len(opts.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"*"},
		}))
	}
	for _, m := range MiddlewareChain() {
		r.Use(m)
	}

	a := &API{Svc: svc, MaxUploadBytes: opts.MaxUploadBytes}
	r.Get("/", a.GetRoot)
	r.Get("/health", a.GetHealth)
	r.Get("/info", a.GetInfo)
	r.Get("/files", a.GetFiles)
	r.Get("/openapi.json", openapiHandler)
	r.Group(func(g chi.Router) {
		g.Use(APIKeyMiddleware(opts.APIKey))
		g.Post("/convert", a.PostConvert)
		if opts.MCP != nil {
			g.Handle("/mcp", limitBody(opts.MCP, mcpBodyLimit(opts.MaxUploadBytes)))
		}
	})
	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics)
	}
	return r, nil
}

// mcpBodyLimit bounds a JSON-RPC body carrying a base64 document of at most
// maxUpload bytes.
func mcpBodyLimit(maxUpload int64) int64 {
	if maxUpload <= 0 {
		return 0
	}
	return maxUpload/3*4 + 4 + 64<<10
}

func limitBody(next http.Handler, limit int64) http.Handler {
	if limit <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength > limit {
			writeDetail(w, http.StatusRequestEntityTooLarge, "Upload exceeds the maximum allowed size.")
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, limit)
		next.ServeHTTP(w, r)
	})
}
