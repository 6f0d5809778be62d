package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/wagi/config"
	"github.com/wippyai/wagi/engine"
	"github.com/wippyai/wagi/server"
)

func main() {
	var (
		configPath    = flag.String("config", "", "Path to the module manifest (modules.toml)")
		bindleID      = flag.String("bindle", "", "Bindle invoice id (name/version) to serve")
		bindleServer  = flag.String("bindle-server", "http://localhost:8080/v1", "Bindle server API root")
		standaloneDir = flag.String("bindle-standalone-dir", "", "Directory holding a standalone bindle export")
		moduleCache   = flag.String("module-cache", "", "Directory caching remotely fetched module bytes")
		compileCache  = flag.String("compile-cache", "", "Directory for the engine's compilation cache")
		assetCache    = flag.String("asset-cache", "", "Directory for staged bindle assets")
		listen        = flag.String("listen", "127.0.0.1:3000", "IP:port to listen on")
		defaultHost   = flag.String("default-host", "localhost:3000", "Host name used when a request has no Host header")
		envVars       = flag.String("env", "", "Global environment overlay (KEY=VAL,KEY2=VAL2)")
		envFile       = flag.String("env-file", "", "File of KEY=VAL lines added to the global overlay")
		logLevel      = flag.String("log-level", "info", "Log level: debug, info, warn, error")
		maxBody       = flag.Int64("max-body", server.DefaultMaxRequestBody, "Maximum request body size in bytes")
		timeout       = flag.Duration("timeout", 0, "Per-request wall-clock deadline (0 disables)")
		plainHTTP     = flag.Bool("plain-http", false, "Fetch OCI images over plain HTTP")
		validate      = flag.Bool("validate", false, "Load the configuration, print routes, and exit")
		interactive   = flag.Bool("i", false, "Interactive routing table inspector")
	)
	flag.Parse()

	if (*configPath == "") == (*bindleID == "") {
		fmt.Fprintln(os.Stderr, "Usage: wagi -config modules.toml [flags]")
		fmt.Fprintln(os.Stderr, "       wagi -bindle name/version [-bindle-server url | -bindle-standalone-dir dir] [flags]")
		os.Exit(1)
	}

	if err := run(*configPath, *bindleID, *bindleServer, *standaloneDir, *moduleCache, *compileCache,
		*assetCache, *listen, *defaultHost, *envVars, *envFile, *logLevel, *maxBody, *timeout,
		*plainHTTP, *validate, *interactive); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, bindleID, bindleServer, standaloneDir, moduleCache, compileCache, assetCache,
	listen, defaultHost, envVars, envFile, logLevel string, maxBody int64, timeout time.Duration,
	plainHTTP, validate, interactive bool) error {
	log, err := buildLogger(logLevel)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()
	engine.SetLogger(log)

	globalEnv, err := parseEnv(envVars, envFile)
	if err != nil {
		return err
	}
	if assetCache == "" {
		assetCache = os.TempDir() + "/wagi-assets"
	}

	ctx := context.Background()
	eng, err := engine.New(ctx, engine.Config{CacheDir: compileCache})
	if err != nil {
		return err
	}
	defer eng.Close(ctx)

	handlers, err := config.Load(ctx, eng, config.Settings{
		ManifestPath:        configPath,
		BindleID:            bindleID,
		BindleServer:        bindleServer,
		BindleStandaloneDir: standaloneDir,
		ModuleCacheDir:      moduleCache,
		AssetCacheDir:       assetCache,
		PlainHTTPRegistries: plainHTTP,
		GlobalEnv:           globalEnv,
		Logger:              log,
	})
	if err != nil {
		return err
	}

	srv, err := server.New(ctx, eng, handlers, server.Options{
		DefaultHost:    defaultHost,
		MaxRequestBody: maxBody,
		RequestTimeout: timeout,
		Logger:         log,
	})
	if err != nil {
		return err
	}

	if validate {
		for _, h := range srv.Table().Entries() {
			fmt.Printf("%-30s %s (%s)\n", h.Pattern.String(), h.Module.Name, h.Entrypoint)
		}
		return nil
	}

	if interactive {
		return runInteractive(srv.Table())
	}

	httpServer := &http.Server{Addr: listen, Handler: srv}

	shutdownCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-shutdownCtx.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(ctx)
	}()

	log.Info("listening", zap.String("addr", listen), zap.Int("routes", srv.Table().Len()))
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func buildLogger(level string) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.Set(level); err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

// parseEnv merges -env pairs over -env-file lines.
func parseEnv(envVars, envFile string) (map[string]string, error) {
	env := make(map[string]string)
	if envFile != "" {
		data, err := os.ReadFile(envFile)
		if err != nil {
			return nil, fmt.Errorf("read env file: %w", err)
		}
		for _, line := range strings.Split(string(data), "\n") {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			k, v, found := strings.Cut(line, "=")
			if !found {
				return nil, fmt.Errorf("env file line %q is not KEY=VAL", line)
			}
			env[k] = v
		}
	}
	if envVars != "" {
		for _, kv := range strings.Split(envVars, ",") {
			k, v, found := strings.Cut(kv, "=")
			if !found {
				return nil, fmt.Errorf("env entry %q is not KEY=VAL", kv)
			}
			env[k] = v
		}
	}
	return env, nil
}
