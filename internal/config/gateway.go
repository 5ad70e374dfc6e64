package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Engine kinds understood by the gateway.
const (
	EngineCLI  = "cli"
	EngineHTTP = "http"
)

// GatewayConfig holds configuration for the docling gateway.
type GatewayConfig struct {
	Port           int           `yaml:"port"`
	MetricsAddr    string        `yaml:"metrics_addr"`
	ArtifactsPath  string        `yaml:"artifacts_path"`
	Engine         string        `yaml:"engine"`
	DoclingBin     string        `yaml:"docling_bin"`
	ServeURL       string        `yaml:"docling_serve_url"`
	ServeAPIKey    string        `yaml:"docling_serve_api_key"`
	APIKey         string        `yaml:"api_key"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	RedisAddr      string        `yaml:"redis_addr"`
	ConvertTimeout time.Duration `yaml:"convert_timeout"`
	DrainTimeout   time.Duration `yaml:"drain_timeout"`
	MaxUploadMB    int64         `yaml:"max_upload_mb"`
	TempDir        string        `yaml:"tmp_dir"`
	EnableMCP      bool          `yaml:"enable_mcp"`
	LogLevel       string        `yaml:"log_level"`
	ConfigFile     string        `yaml:"-"`
}

// SetDefaults initializes c with built-in defaults.
func (c *GatewayConfig) SetDefaults() {
	if c.Port == 0 {
		c.Port = 8000
	}
	if c.ArtifactsPath == "" {
		c.ArtifactsPath = "/models"
	}
	if c.Engine == "" {
		c.Engine = EngineCLI
	}
	if c.DoclingBin == "" {
		c.DoclingBin = "docling"
	}
	if c.DrainTimeout == 0 {
		c.DrainTimeout = 30 * time.Second
	}
	if c.MaxUploadMB == 0 {
		c.MaxUploadMB = 100
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.ConfigFile == "" {
		c.ConfigFile = DefaultConfigPath("gateway.yaml")
	}
}

// ApplyEnv overlays environment variables onto the current config values.
func (c *GatewayConfig) ApplyEnv() {
	if v := GetEnv("CONFIG_FILE", ""); v != "" {
		c.ConfigFile = v
	}
	if v := GetEnv("LOG_LEVEL", ""); v != "" {
		c.LogLevel = v
	}
	if v := GetEnv("PORT", ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Port = n
		}
	}
	if v := GetEnv("METRICS_PORT", ""); v != "" {
		c.MetricsAddr = normalizeAddr(v)
	}
	if v := GetEnv("DOCLING_ARTIFACTS_PATH", ""); v != "" {
		c.ArtifactsPath = v
	}
	if v := GetEnv("ENGINE", ""); v != "" {
		c.Engine = strings.ToLower(v)
	}
	if v := GetEnv("DOCLING_BIN", ""); v != "" {
		c.DoclingBin = v
	}
	if v := GetEnv("DOCLING_SERVE_URL", ""); v != "" {
		c.ServeURL = strings.TrimRight(v, "/")
	}
	if v := GetEnv("DOCLING_SERVE_API_KEY", ""); v != "" {
		c.ServeAPIKey = v
	}
	if v := GetEnv("API_KEY", ""); v != "" {
		c.APIKey = v
	}
	if v := GetEnv("ALLOWED_ORIGINS", ""); v != "" {
		c.AllowedOrigins = splitComma(v)
	}
	if v := GetEnv("REDIS_ADDR", ""); v != "" {
		c.RedisAddr = v
	}
	if v := GetEnv("CONVERT_TIMEOUT", ""); v != "" {
		if d, err := parseSeconds(v); err == nil {
			c.ConvertTimeout = d
		}
	}
	if v := GetEnv("DRAIN_TIMEOUT", ""); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.DrainTimeout = d
		}
	}
	if v := GetEnv("MAX_UPLOAD_MB", ""); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			c.MaxUploadMB = n
		}
	}
	if v := GetEnv("TMP_DIR", ""); v != "" {
		c.TempDir = v
	}
	if v := GetEnv("ENABLE_MCP", ""); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.EnableMCP = b
		}
	}
}

// BindFlags populates the struct with defaults and environment overrides and
// binds command line flags so main can call flag.Parse().
func (c *GatewayConfig) BindFlags() {
	c.EnableMCP = true
	c.SetDefaults()
	c.ApplyEnv()
	c.BindFlagSet(flag.CommandLine)
}

// BindFlagSet binds command line flags to fs using the current values as
// defaults.
func (c *GatewayConfig) BindFlagSet(fs *flag.FlagSet) {
	fs.StringVar(&c.ConfigFile, "config", c.ConfigFile, "gateway config file path")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log verbosity (all, debug, info, warn, error, fatal, none)")
	fs.IntVar(&c.Port, "port", c.Port, "HTTP listen port")
	fs.Func("metrics-port", "Prometheus metrics listen address or port; defaults to the value of --port", func(v string) error {
		c.MetricsAddr = normalizeAddr(v)
		return nil
	})
	fs.StringVar(&c.ArtifactsPath, "artifacts-path", c.ArtifactsPath, "directory holding the pre-downloaded docling models")
	fs.StringVar(&c.Engine, "engine", c.Engine, "conversion engine (cli, http)")
	fs.StringVar(&c.DoclingBin, "docling-bin", c.DoclingBin, "docling executable used by the cli engine")
	fs.StringVar(&c.ServeURL, "docling-serve-url", c.ServeURL, "docling-serve base URL used by the http engine")
	fs.StringVar(&c.ServeAPIKey, "docling-serve-api-key", c.ServeAPIKey, "API key presented to docling-serve")
	fs.StringVar(&c.APIKey, "api-key", c.APIKey, "client API key required for conversions; leave empty to disable auth")
	fs.StringVar(&c.RedisAddr, "redis-addr", c.RedisAddr, "redis connection URL for shared gateway state")
	fs.Func("allowed-origins", "comma separated list of allowed CORS origins", func(v string) error {
		c.AllowedOrigins = splitComma(v)
		return nil
	})
	fs.Func("convert-timeout", "conversion timeout in seconds (0 waits indefinitely)", func(v string) error {
		d, err := parseSeconds(v)
		if err != nil {
			return err
		}
		c.ConvertTimeout = d
		return nil
	})
	fs.DurationVar(&c.DrainTimeout, "drain-timeout", c.DrainTimeout, "time to wait for in-flight conversions on shutdown (-1 to wait indefinitely, 0 to exit immediately)")
	fs.Int64Var(&c.MaxUploadMB, "max-upload-mb", c.MaxUploadMB, "maximum accepted upload size in MiB")
	fs.StringVar(&c.TempDir, "tmp-dir", c.TempDir, "directory for temporary upload files; defaults to the system temp dir")
	fs.BoolVar(&c.EnableMCP, "enable-mcp", c.EnableMCP, "expose the MCP endpoint at /mcp")
}

// LoadFile populates the config from a YAML file.
func (c *GatewayConfig) LoadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// Validate reports configuration that cannot produce a working gateway.
func (c *GatewayConfig) Validate() error {
	switch c.Engine {
	case EngineCLI:
		if c.DoclingBin == "" {
			return fmt.Errorf("engine %q requires docling_bin", c.Engine)
		}
	case EngineHTTP:
		if c.ServeURL == "" {
			return fmt.Errorf("engine %q requires docling_serve_url", c.Engine)
		}
	default:
		return fmt.Errorf("unknown engine %q", c.Engine)
	}
	if c.MaxUploadMB <= 0 {
		return fmt.Errorf("max_upload_mb must be positive")
	}
	return nil
}

// MetricsOnMainPort reports whether /metrics is served by the public listener.
// An unset metrics address follows the final port.
func (c *GatewayConfig) MetricsOnMainPort() bool {
	return c.MetricsAddr == "" || c.MetricsAddr == fmt.Sprintf(":%d", c.Port)
}

func normalizeAddr(v string) string {
	if strings.Contains(v, ":") {
		return v
	}
	return ":" + v
}

func parseSeconds(v string) (time.Duration, error) {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, err
	}
	return time.Duration(f * float64(time.Second)), nil
}

func splitComma(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
