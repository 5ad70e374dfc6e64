package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// CommandRunner runs an external command to completion.
type CommandRunner interface {
	Run(ctx context.Context, name string, args, env []string) (stdout, stderr []byte, err error)
}

// ExecCommandRunner uses os/exec.
type ExecCommandRunner struct{}

// Run runs a command.
func (ExecCommandRunner) Run(ctx context.Context, name string, args, env []string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = append(os.Environ(), env...)
	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf
	err := cmd.Run()
	return outBuf.Bytes(), errBuf.Bytes(), err
}

// CLI converts documents by invoking the docling command line tool.
type CLI struct {
	bin     string
	tempDir string
	opts    Options
	runner  CommandRunner
}

// CLIFactory returns a Factory producing CLI engines. The binary is resolved
// on PATH at construction; a missing binary yields ErrNotInstalled. A nil
// runner uses ExecCommandRunner.
func CLIFactory(bin, tempDir string, runner CommandRunner) Factory {
	return func(ctx context.Context, opts Options) (Converter, error) {
		path, err := exec.LookPath(bin)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrNotInstalled, bin, err)
		}
		r := runner
		if r == nil {
			r = ExecCommandRunner{}
		}
		return NewCLI(path, tempDir, opts, r), nil
	}
}

// NewCLI builds a CLI engine around an already resolved binary.
func NewCLI(bin, tempDir string, opts Options, runner CommandRunner) *CLI {
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &CLI{bin: bin, tempDir: tempDir, opts: opts, runner: runner}
}

// Args returns the docling arguments converting input into outDir. The input
// format is left to docling, which detects it from the file.
func (c *CLI) Args(input, outDir string) []string {
	format := c.opts.OutputFormat
	if format == "" {
		format = "json"
	}
	args := []string{"--to", format}
	if c.opts.DoOCR {
		args = append(args, "--ocr")
	} else {
		args = append(args, "--no-ocr")
	}
	if c.opts.DoTableStructure {
		args = append(args, "--tables")
		if c.opts.TableStructure.Mode != "" {
			args = append(args, "--table-mode", c.opts.TableStructure.Mode)
		}
	} else {
		args = append(args, "--no-tables")
	}
	if c.opts.ArtifactsPath != "" {
		args = append(args, "--artifacts-path", c.opts.ArtifactsPath)
	}
	args = append(args, "--output", outDir, input)
	return args
}

// Convert runs docling on path and returns the produced document.
func (c *CLI) Convert(ctx context.Context, path string) (Result, error) {
	outDir := filepath.Join(c.tempDir, "docling-out-"+uuid.NewString())
	if err := os.MkdirAll(outDir, 0o700); err != nil {
		return Result{}, fmt.Errorf("create output dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(outDir) }()

	env := []string{"DOCLING_ARTIFACTS_PATH=" + c.opts.ArtifactsPath}
	_, stderr, err := c.runner.Run(ctx, c.bin, c.Args(path, outDir), env)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{}, fmt.Errorf("docling: %w", ctxErr)
		}
		return Result{}, fmt.Errorf("docling failed: %w: %s", err, strings.TrimSpace(string(stderr)))
	}

	doc, err := c.readOutput(outDir, path)
	if err != nil {
		return Result{}, err
	}
	return Result{Source: filepath.Base(path), Format: c.format(), Document: doc}, nil
}

func (c *CLI) format() string {
	if c.opts.OutputFormat == "" {
		return "json"
	}
	return c.opts.OutputFormat
}

func (c *CLI) readOutput(outDir, input string) (string, error) {
	stem := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	ext := c.format()
	if ext == "markdown" {
		ext = "md"
	}
	b, err := os.ReadFile(filepath.Join(outDir, stem+"."+ext))
	if err == nil {
		return string(b), nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("read docling output: %w", err)
	}
	// docling may sanitize the stem; take the single produced file instead.
	matches, _ := filepath.Glob(filepath.Join(outDir, "*."+ext))
	if len(matches) != 1 {
		return "", fmt.Errorf("docling produced no %s output for %s", ext, filepath.Base(input))
	}
	b, err = os.ReadFile(matches[0])
	if err != nil {
		return "", fmt.Errorf("read docling output: %w", err)
	}
	return string(b), nil
}
