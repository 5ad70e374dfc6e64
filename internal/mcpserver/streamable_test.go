package mcpserver

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/gaspardpetit/docling-gateway/internal/artifacts/artifactstest"
	"github.com/gaspardpetit/docling-gateway/internal/engine"
	"github.com/gaspardpetit/docling-gateway/internal/gateway"
)

type upperConverter struct{}

func (upperConverter) Convert(ctx context.Context, path string) (engine.Result, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return engine.Result{}, err
	}
	return engine.Result{Document: strings.ToUpper(string(b))}, nil
}

func newTestServer(t *testing.T, ready bool, maxUploadBytes int64) *httptest.Server {
	t.Helper()
	dir := t.TempDir()
	if ready {
		artifactstest.Complete(t, dir)
	}
	svc := gateway.New(gateway.Options{
		ArtifactsPath: dir,
		TempDir:       t.TempDir(),
		Factory: func(ctx context.Context, opts engine.Options) (engine.Converter, error) {
			return upperConverter{}, nil
		},
	})
	mux := http.NewServeMux()
	mux.Handle("/mcp", NewHandler(svc, "test", maxUploadBytes))
	return httptest.NewServer(mux)
}

func newClient(t *testing.T, url string) *client.Client {
	t.Helper()
	cl, err := client.NewStreamableHttpClient(url)
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	ctx := context.Background()
	if err := cl.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := cl.Initialize(ctx, mcp.InitializeRequest{}); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return cl
}

func callTool(t *testing.T, cl *client.Client, name string, args map[string]any) (string, bool) {
	t.Helper()
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	res, err := cl.CallTool(context.Background(), req)
	if err != nil {
		t.Fatalf("call %s: %v", name, err)
	}
	if len(res.Content) == 0 {
		t.Fatalf("call %s: empty content", name)
	}
	tc, ok := mcp.AsTextContent(res.Content[0])
	if !ok {
		t.Fatalf("call %s: unexpected content %T", name, res.Content[0])
	}
	return tc.Text, res.IsError
}

func TestInitialize(t *testing.T) {
	srv := newTestServer(t, false, 0)
	defer srv.Close()

	reqBody := []byte(`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"1.0"}}`)
	resp, err := http.Post(srv.URL+"/mcp", "application/json", bytes.NewReader(reqBody))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	if sid := resp.Header.Get("Mcp-Session-Id"); sid == "" {
		t.Fatalf("missing session id")
	}
	var js map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&js); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if js["result"] == nil {
		t.Fatalf("missing result")
	}
}

func TestTools(t *testing.T) {
	srv := newTestServer(t, true, 0)
	defer srv.Close()
	cl := newClient(t, srv.URL+"/mcp")
	defer func() { _ = cl.Close() }()

	tools, err := cl.ListTools(context.Background(), mcp.ListToolsRequest{})
	if err != nil {
		t.Fatalf("list tools: %v", err)
	}
	if len(tools.Tools) != 4 {
		t.Fatalf("expected 4 tools, got %d", len(tools.Tools))
	}

	text, isErr := callTool(t, cl, ToolHealth, nil)
	var h gateway.Health
	if isErr || json.Unmarshal([]byte(text), &h) != nil || h.Status != gateway.StatusHealthy {
		t.Fatalf("health: %s", text)
	}

	text, isErr = callTool(t, cl, ToolListFiles, nil)
	var fl gateway.FileList
	if isErr || json.Unmarshal([]byte(text), &fl) != nil || fl.TotalFiles != 2 {
		t.Fatalf("files: %s", text)
	}

	text, isErr = callTool(t, cl, ToolConvert, map[string]any{
		"filename":       "note.txt",
		"content_base64": base64.StdEncoding.EncodeToString([]byte("hello")),
	})
	var cr gateway.ConversionResponse
	if isErr || json.Unmarshal([]byte(text), &cr) != nil || cr.Status != "success" || cr.Result["document"] != "HELLO" {
		t.Fatalf("convert: %s", text)
	}
}

func TestConvertToolErrors(t *testing.T) {
	srv := newTestServer(t, false, 0)
	defer srv.Close()
	cl := newClient(t, srv.URL+"/mcp")
	defer func() { _ = cl.Close() }()

	text, isErr := callTool(t, cl, ToolConvert, map[string]any{
		"filename":       "a.pdf",
		"content_base64": base64.StdEncoding.EncodeToString([]byte("x")),
	})
	if !isErr || !strings.Contains(text, "not yet available") {
		t.Fatalf("expected unavailable error, got %q (isError=%v)", text, isErr)
	}

	text, isErr = callTool(t, cl, ToolConvert, map[string]any{"filename": "a.pdf", "content_base64": "%%%"})
	if !isErr || !strings.Contains(text, "base64") {
		t.Fatalf("expected base64 error, got %q", text)
	}
}

func TestConvertToolUploadCap(t *testing.T) {
	srv := newTestServer(t, true, 8)
	defer srv.Close()
	cl := newClient(t, srv.URL+"/mcp")
	defer func() { _ = cl.Close() }()

	text, isErr := callTool(t, cl, ToolConvert, map[string]any{
		"filename":       "big.pdf",
		"content_base64": base64.StdEncoding.EncodeToString(bytes.Repeat([]byte("a"), 64)),
	})
	if !isErr || text != tooLargeDetail {
		t.Fatalf("expected size error, got %q (isError=%v)", text, isErr)
	}

	text, isErr = callTool(t, cl, ToolConvert, map[string]any{
		"filename":       "small.txt",
		"content_base64": base64.StdEncoding.EncodeToString([]byte("tiny")),
	})
	if isErr || !strings.Contains(text, "TINY") {
		t.Fatalf("small document rejected: %q", text)
	}
}
