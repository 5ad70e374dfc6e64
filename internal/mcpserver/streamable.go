// Package mcpserver exposes the gateway operations as MCP tools over the
// Streamable HTTP transport.
package mcpserver

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	sdkserver "github.com/mark3labs/mcp-go/server"

	"github.com/gaspardpetit/docling-gateway/internal/gateway"
	"github.com/gaspardpetit/docling-gateway/internal/logx"
)

// tooLargeDetail is the tool error for documents above the upload cap.
const tooLargeDetail = "Upload exceeds the maximum allowed size."

// Tool names.
const (
	ToolHealth    = "health"
	ToolModelInfo = "model_info"
	ToolListFiles = "list_model_files"
	ToolConvert   = "convert_document"
)

// NewServer registers the gateway tools on a new MCP server. Documents larger
// than maxUploadBytes are rejected by convert_document; zero disables the cap.
func NewServer(svc *gateway.Service, version string, maxUploadBytes int64) *sdkserver.MCPServer {
	srv := sdkserver.NewMCPServer(
		"docling-gateway",
		version,
		sdkserver.WithResourceCapabilities(false, false),
		sdkserver.WithToolCapabilities(false),
		sdkserver.WithPromptCapabilities(false),
	)
	srv.AddTool(mcp.NewTool(ToolHealth,
		mcp.WithDescription("Report whether the docling models are downloaded and the converter is loaded."),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return jsonResult(svc.Health())
	})
	srv.AddTool(mcp.NewTool(ToolModelInfo,
		mcp.WithDescription("Describe the model artifacts directory and list up to 20 table-structure model files."),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return jsonResult(svc.Info(ctx))
	})
	srv.AddTool(mcp.NewTool(ToolListFiles,
		mcp.WithDescription("List up to 100 files under the model artifacts directory with their size in MiB."),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		payload, err := svc.FilesPayload()
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(payload)
	})
	srv.AddTool(mcp.NewTool(ToolConvert,
		mcp.WithDescription("Convert a document with docling. OCR is disabled; tables are extracted."),
		mcp.WithString("filename", mcp.Required(), mcp.Description("original file name including extension, e.g. report.pdf")),
		mcp.WithString("content_base64", mcp.Required(), mcp.Description("document bytes, base64 encoded")),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return convert(ctx, svc, req, maxUploadBytes)
	})
	return srv
}

func convert(ctx context.Context, svc *gateway.Service, req mcp.CallToolRequest, maxBytes int64) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("filename")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	encoded, err := req.RequireString("content_base64")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if maxBytes > 0 && int64(base64.StdEncoding.DecodedLen(len(encoded))) > maxBytes+2 {
		return mcp.NewToolResultError(tooLargeDetail), nil
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return mcp.NewToolResultError("content_base64 is not valid base64: " + err.Error()), nil
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return mcp.NewToolResultError(tooLargeDetail), nil
	}
	var up *gateway.Upload
	if len(data) > 0 {
		up = &gateway.Upload{Filename: name, Body: bytes.NewReader(data)}
	}
	resp, err := svc.Convert(ctx, up)
	if err != nil {
		logx.Log.Warn().Err(err).Str("filename", name).Msg("mcp convert")
		return mcp.NewToolResultError(gateway.Detail(err)), nil
	}
	return jsonResult(resp)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(b)), nil
}

// NewHandler constructs a Streamable HTTP MCP handler serving the gateway
// tools.
func NewHandler(svc *gateway.Service, version string, maxUploadBytes int64) http.Handler {
	return sdkserver.NewStreamableHTTPServer(
		NewServer(svc, version, maxUploadBytes),
		sdkserver.WithHTTPContextFunc(func(ctx context.Context, r *http.Request) context.Context {
			return ctx
		}),
	)
}
