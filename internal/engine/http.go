package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// HTTP converts documents by forwarding them to a docling-serve backend.
type HTTP struct {
	baseURL string
	apiKey  string
	opts    Options
	client  *http.Client
}

// HTTPFactory returns a Factory producing HTTP engines. The backend must answer
// its health endpoint at construction. A nil client uses http.DefaultClient.
func HTTPFactory(baseURL, apiKey string, client *http.Client) Factory {
	return func(ctx context.Context, opts Options) (Converter, error) {
		c := client
		if c == nil {
			c = http.DefaultClient
		}
		h := &HTTP{baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey, opts: opts, client: c}
		if err := h.probe(ctx); err != nil {
			return nil, fmt.Errorf("%w: docling-serve at %s: %v", ErrNotInstalled, h.baseURL, err)
		}
		return h, nil
	}
}

func (h *HTTP) probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	h.authorize(req)
	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	_ = resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("status %s", resp.Status)
	}
	return nil
}

func (h *HTTP) authorize(req *http.Request) {
	if h.apiKey != "" {
		req.Header.Set("X-Api-Key", h.apiKey)
		req.Header.Set("Authorization", "Bearer "+h.apiKey)
	}
}

type serveDocument struct {
	Filename    string          `json:"filename"`
	MDContent   string          `json:"md_content"`
	JSONContent json.RawMessage `json:"json_content"`
}

type serveResponse struct {
	Document serveDocument `json:"document"`
	Status   string        `json:"status"`
	Errors   []struct {
		ErrorMessage string `json:"error_message"`
	} `json:"errors"`
}

// Convert uploads the file at path to docling-serve and returns the document.
func (h *HTTP) Convert(ctx context.Context, path string) (Result, error) {
	body, contentType, err := h.encode(path)
	if err != nil {
		return Result{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/v1/convert/file", body)
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	h.authorize(req)
	resp, err := h.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("docling-serve: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("docling-serve: read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return Result{}, fmt.Errorf("docling-serve: status %s: %s", resp.Status, strings.TrimSpace(string(raw)))
	}
	var out serveResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return Result{}, fmt.Errorf("docling-serve: decode response: %w", err)
	}
	if out.Status != "" && out.Status != "success" && out.Status != "partial_success" {
		msgs := make([]string, 0, len(out.Errors))
		for _, e := range out.Errors {
			msgs = append(msgs, e.ErrorMessage)
		}
		return Result{}, fmt.Errorf("docling-serve: conversion %s: %s", out.Status, strings.Join(msgs, "; "))
	}
	res := Result{Source: filepath.Base(path), Format: "json"}
	switch {
	case len(out.Document.JSONContent) > 0 && string(out.Document.JSONContent) != "null":
		res.Document = string(out.Document.JSONContent)
	case out.Document.MDContent != "":
		res.Format = "md"
		res.Document = out.Document.MDContent
	default:
		return Result{}, fmt.Errorf("docling-serve: empty document for %s", res.Source)
	}
	return res, nil
}

func (h *HTTP) encode(path string) (io.Reader, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", err
	}
	defer func() { _ = f.Close() }()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fields := map[string]string{
		"to_formats":         h.formatField(),
		"do_ocr":             strconv.FormatBool(h.opts.DoOCR),
		"do_table_structure": strconv.FormatBool(h.opts.DoTableStructure),
	}
	if h.opts.TableStructure.Mode != "" {
		fields["table_mode"] = h.opts.TableStructure.Mode
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, "", err
		}
	}
	part, err := mw.CreateFormFile("files", filepath.Base(path))
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", err
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}

func (h *HTTP) formatField() string {
	if h.opts.OutputFormat == "" {
		return "json"
	}
	return h.opts.OutputFormat
}
