package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gaspardpetit/docling-gateway/internal/api"
	"github.com/gaspardpetit/docling-gateway/internal/config"
	"github.com/gaspardpetit/docling-gateway/internal/engine"
	"github.com/gaspardpetit/docling-gateway/internal/gateway"
	"github.com/gaspardpetit/docling-gateway/internal/logx"
	"github.com/gaspardpetit/docling-gateway/internal/mcpserver"
	"github.com/gaspardpetit/docling-gateway/internal/metrics"
	"github.com/gaspardpetit/docling-gateway/internal/secret"
	"github.com/gaspardpetit/docling-gateway/internal/serverstate"
)

var (
	version   = "dev"
	buildSHA  = "unknown"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	var cfg config.GatewayConfig
	cfg.BindFlags()
	flag.Usage = func() {
		_, _ = fmt.Fprintf(flag.CommandLine.Output(), "docling-gateway version=%s sha=%s date=%s\n\n", version, buildSHA, buildDate)
		flag.PrintDefaults()
	}
	flag.Parse()
	if *showVersion {
		fmt.Printf("docling-gateway version=%s sha=%s date=%s\n", version, buildSHA, buildDate)
		return
	}

	if cfg.ConfigFile != "" {
		err := cfg.LoadFile(cfg.ConfigFile)
		switch {
		case err == nil:
			// the file sits below env and flags
			cfg.ApplyEnv()
			_ = flag.CommandLine.Parse(os.Args[1:])
		case !errors.Is(err, os.ErrNotExist):
			logx.Log.Fatal().Err(err).Str("path", cfg.ConfigFile).Msg("load config")
		}
	}
	logx.Configure(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		logx.Log.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.RedisAddr != "" {
		rs, err := serverstate.NewRedisStore(ctx, cfg.RedisAddr, serverstate.DefaultRedisKey)
		if err != nil {
			logx.Log.Fatal().Err(err).Str("addr", secret.MaskURL(cfg.RedisAddr)).Msg("connect redis")
		}
		defer func() { _ = rs.Close() }()
		serverstate.UseStore(rs)
		logx.Log.Info().Str("addr", secret.MaskURL(cfg.RedisAddr)).Msg("using redis state store")
	}

	metrics.Register(prometheus.DefaultRegisterer)
	metrics.SetBuildInfo(version, buildSHA, buildDate)

	factory, err := engine.NewFactory(engine.Config{
		Kind:        cfg.Engine,
		DoclingBin:  cfg.DoclingBin,
		ServeURL:    cfg.ServeURL,
		ServeAPIKey: cfg.ServeAPIKey,
		TempDir:     cfg.TempDir,
	})
	if err != nil {
		logx.Log.Fatal().Err(err).Msg("configure engine")
	}
	if cfg.ServeAPIKey != "" {
		logx.Log.Info().Str("key", secret.Mask(cfg.ServeAPIKey)).Msg("docling-serve API key configured")
	}

	svc := gateway.New(gateway.Options{
		ArtifactsPath:  cfg.ArtifactsPath,
		Factory:        factory,
		TempDir:        cfg.TempDir,
		ConvertTimeout: cfg.ConvertTimeout,
	})
	metrics.WatchModelReady(svc.Ready)
	svc.Start(ctx)

	opts := api.Options{
		APIKey:         cfg.APIKey,
		AllowedOrigins: cfg.AllowedOrigins,
		MaxUploadBytes: cfg.MaxUploadMB << 20,
	}
	if cfg.MetricsOnMainPort() {
		opts.Metrics = promhttp.Handler()
	}
	if cfg.EnableMCP {
		opts.MCP = mcpserver.NewHandler(svc, version, opts.MaxUploadBytes)
	}
	handler, err := api.NewRouter(ctx, svc, opts)
	if err != nil {
		logx.Log.Fatal().Err(err).Msg("build router")
	}

	srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Port), Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	var metricsSrv *http.Server
	if !cfg.MetricsOnMainPort() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	}

	shutdownCtx, stop := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		for range sigCh {
			if serverstate.IsDraining() || cfg.DrainTimeout == 0 {
				logx.Log.Warn().Msg("termination requested")
				stop()
				return
			}
			serverstate.StartDrain()
			if cfg.DrainTimeout > 0 {
				logx.Log.Info().Dur("timeout", cfg.DrainTimeout).Msg("draining; send SIGTERM again to terminate immediately")
				go func(d time.Duration) {
					time.Sleep(d)
					if serverstate.IsDraining() {
						logx.Log.Warn().Msg("drain timeout exceeded; terminating")
						stop()
					}
				}(cfg.DrainTimeout)
			} else {
				logx.Log.Info().Msg("draining; send SIGTERM again to terminate immediately")
			}
		}
	}()
	go func() {
		<-shutdownCtx.Done()
		st := serverstate.Snapshot()
		logx.Log.Info().Str("state", st.Status).Bool("model_loaded", st.ModelLoaded).Msg("shutting down")
		cancel()
		if err := srv.Shutdown(context.Background()); err != nil {
			logx.Log.Error().Err(err).Msg("server shutdown")
		}
		if metricsSrv != nil {
			if err := metricsSrv.Shutdown(context.Background()); err != nil {
				logx.Log.Error().Err(err).Msg("metrics server shutdown")
			}
		}
	}()

	if cfg.APIKey != "" {
		logx.Log.Info().Str("key", secret.Mask(cfg.APIKey)).Msg("API key auth enabled")
	}
	if metricsSrv != nil {
		go func() {
			logx.Log.Info().Str("addr", cfg.MetricsAddr).Msg("metrics server starting")
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logx.Log.Error().Err(err).Msg("metrics server error")
			}
		}()
	}
	logx.Log.Info().Int("port", cfg.Port).Str("engine", cfg.Engine).Bool("mcp", cfg.EnableMCP).Msg("server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logx.Log.Fatal().Err(err).Msg("server error")
	}
}
