// Package main runs the terminal host: shell and download tools, sandboxed file
// resources, the pokemon resources and the research prompt, served over stdio or SSE.
package main

import (
	"context"
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/YongpengFu/mcp-server/internal/app"
	"github.com/YongpengFu/mcp-server/internal/common/logging"
	"github.com/YongpengFu/mcp-server/internal/config"
	"github.com/YongpengFu/mcp-server/internal/host"
	"github.com/YongpengFu/mcp-server/internal/monitoring"
	"github.com/YongpengFu/mcp-server/internal/observability"
)

var (
	configFile    = flag.StringP("config", "c", "", "Path to a JSON or YAML configuration file")
	transportMode = flag.StringP("transport", "t", "stdio", "Transport to serve on: stdio or sse")
	listenAddr    = flag.String("listen", "", "Listen address for the sse transport (overrides host.listenAddr)")
	resourceDir   = flag.String("resource-dir", "", "Base directory for local://file resources (overrides host.resourceDir)")
	debug         = flag.Bool("debug", false, "Enable debug logging")
)

func main() {
	flag.Parse()

	logger := setupLogging()
	if *transportMode != "stdio" && *transportMode != "sse" {
		logger.Fatal("Unknown transport %q, expected stdio or sse", *transportMode)
	}

	// a stdio host owns the process's stdin and stdout and cannot be restarted in place
	run := app.RunWithReload
	if *transportMode == "stdio" {
		run = app.Run
	}
	if err := run(context.Background(), logger, *configFile, serve); err != nil {
		logger.Fatal("Host exited: %v", err)
	}
}

// setupLogging honours LOG_LEVEL first and --debug second
func setupLogging() *logging.Logger {
	level := logging.LevelInfo
	if env := os.Getenv("LOG_LEVEL"); env != "" {
		level = logging.ParseLevel(env)
	} else if *debug {
		level = logging.LevelDebug
	}
	return logging.New("mcp-host", level)
}

func serve(ctx context.Context, cfg *config.Config, logger *logging.Logger) error {
	if !*debug {
		logger.SetMinLevel(logging.ParseLevel(cfg.Monitoring.LoggingLevel))
	}
	if *listenAddr != "" {
		cfg.Host.ListenAddr = *listenAddr
	}
	if *resourceDir != "" {
		cfg.Host.ResourceDir = *resourceDir
	}

	if cfg.Monitoring.Enabled {
		monitoring.RegisterMetrics()
	}
	shutdown, err := observability.Setup(ctx, &cfg.Observability, logger)
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			logger.WarnKV("Tracing shutdown failed", "error", err)
		}
	}()

	srv, err := host.NewTerminalServer(cfg, logger)
	if err != nil {
		return err
	}

	if *transportMode == "sse" {
		return srv.ServeSSE(ctx, cfg.Host.ListenAddr)
	}
	return srv.ServeStdio(ctx, os.Stdin, os.Stdout)
}
