// Package main runs the arithmetic host over stdio
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	flag "github.com/spf13/pflag"

	"github.com/YongpengFu/mcp-server/internal/common/logging"
	"github.com/YongpengFu/mcp-server/internal/host"
)

var (
	transportMode = flag.StringP("transport", "t", "stdio", "Transport to serve on: stdio or sse")
	listenAddr    = flag.String("listen", ":8001", "Listen address for the sse transport")
	debug         = flag.Bool("debug", false, "Enable debug logging")
)

func main() {
	flag.Parse()

	level := logging.LevelInfo
	if env := os.Getenv("LOG_LEVEL"); env != "" {
		level = logging.ParseLevel(env)
	} else if *debug {
		level = logging.LevelDebug
	}
	logger := logging.New("math-server", level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv, err := host.NewMathServer(logger)
	if err != nil {
		logger.Fatal("Failed to create math server: %v", err)
	}

	switch *transportMode {
	case "stdio":
		err = srv.ServeStdio(ctx, os.Stdin, os.Stdout)
	case "sse":
		err = srv.ServeSSE(ctx, *listenAddr)
	default:
		logger.Fatal("Unknown transport %q, expected stdio or sse", *transportMode)
	}
	if err != nil {
		logger.Fatal("Server error: %v", err)
	}
}
