package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	customErrors "github.com/YongpengFu/mcp-server/internal/common/errors"
	"github.com/YongpengFu/mcp-server/internal/common/logging"
	"github.com/YongpengFu/mcp-server/internal/config"
)

// ShutdownFunc flushes and stops span export
type ShutdownFunc func(ctx context.Context) error

const exportTimeout = 10 * time.Second

// Setup installs a global tracer provider exporting over OTLP/HTTP.
// When observability is disabled it installs nothing and returns a no-op shutdown.
func Setup(ctx context.Context, cfg *config.ObservabilityConfig, logger *logging.Logger) (ShutdownFunc, error) {
	noop := func(context.Context) error { return nil }
	if cfg == nil || !cfg.Enabled {
		return noop, nil
	}

	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpointURL(cfg.Endpoint),
		otlptracehttp.WithTimeout(exportTimeout),
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(cfg.Headers))
	}

	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return noop, customErrors.WrapConfigError(err, string(customErrors.KindInvalidConfig), "failed to create OTLP trace exporter")
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
	)

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	logger.InfoKV("OTLP trace export enabled", "endpoint", cfg.Endpoint, "service", cfg.ServiceName)

	return tp.Shutdown, nil
}
