package observability

import (
	"context"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/YongpengFu/mcp-server/internal/common/logging"
	"github.com/YongpengFu/mcp-server/internal/config"
)

// maxAttributeLength bounds input and output values copied onto spans
const maxAttributeLength = 4096

// SimpleProvider provides basic OpenTelemetry tracing
type SimpleProvider struct {
	tracer  trace.Tracer
	logger  *logging.Logger
	config  *config.ObservabilityConfig
	enabled bool
}

// NewSimpleProvider creates a new simple OpenTelemetry provider using the global tracer provider
func NewSimpleProvider(cfg *config.Config, logger *logging.Logger) *SimpleProvider {
	return NewSimpleProviderWithTracer(otel.Tracer(TracerName), &cfg.Observability, logger)
}

// NewSimpleProviderWithTracer creates a provider around an explicit tracer
func NewSimpleProviderWithTracer(tracer trace.Tracer, cfg *config.ObservabilityConfig, logger *logging.Logger) *SimpleProvider {
	return &SimpleProvider{
		tracer:  tracer,
		logger:  logger,
		config:  cfg,
		enabled: true,
	}
}

func (p *SimpleProvider) StartTrace(ctx context.Context, name string, input string, metadata map[string]string) (context.Context, trace.Span) {
	spanCtx, span := p.tracer.Start(ctx, name)

	span.SetAttributes(
		attribute.String("service.name", p.getServiceName()),
		attribute.String("service.version", p.getServiceVersion()),
		attribute.String("environment", p.getEnvironment()),
		attribute.String("trace.name", name),
		attribute.String("input.value", truncate(input)),
		attribute.Int("input.length", len(input)),
	)

	for key, value := range metadata {
		span.SetAttributes(attribute.String(key, value))
	}

	return spanCtx, span
}

func (p *SimpleProvider) StartSpan(ctx context.Context, name string, spanType string, input string, metadata map[string]string) (context.Context, trace.Span) {
	spanCtx, span := p.tracer.Start(ctx, name)

	if spanType != "" {
		span.SetAttributes(attribute.String("span.type", spanType))
	}

	if input != "" {
		span.SetAttributes(
			attribute.String("input.value", truncate(input)),
			attribute.Int("input.length", len(input)),
		)
	}

	for key, value := range metadata {
		span.SetAttributes(attribute.String(key, value))
	}

	return spanCtx, span
}

func (p *SimpleProvider) SetOutput(span trace.Span, output string) {
	span.SetAttributes(
		attribute.String("output.value", truncate(output)),
		attribute.Int("output.length", len(output)),
	)
}

func (p *SimpleProvider) SetDuration(span trace.Span, duration time.Duration) {
	span.SetAttributes(
		attribute.Float64("duration.seconds", duration.Seconds()),
		attribute.Int64("duration.milliseconds", duration.Milliseconds()),
	)
}

// RecordError marks the span failed; level carries the error kind where one is known
func (p *SimpleProvider) RecordError(span trace.Span, err error, level string) {
	if err == nil {
		return
	}

	span.SetAttributes(
		attribute.String("error.type", "error"),
		attribute.String("error.message", err.Error()),
	)
	if level != "" {
		span.SetAttributes(attribute.String("error.level", level))
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func (p *SimpleProvider) RecordSuccess(span trace.Span, message string) {
	span.SetAttributes(attribute.String("status", "success"))
	span.SetStatus(codes.Ok, message)
}

func (p *SimpleProvider) GetProvider() TracingProvider {
	return ProviderSimple
}

func (p *SimpleProvider) IsEnabled() bool {
	return p.enabled
}

func (p *SimpleProvider) getServiceName() string {
	if p.config != nil && p.config.ServiceName != "" {
		return p.config.ServiceName
	}
	return TracerName
}

func (p *SimpleProvider) getServiceVersion() string {
	if p.config != nil && p.config.ServiceVersion != "" {
		return p.config.ServiceVersion
	}
	return "0.1.0"
}

func (p *SimpleProvider) getEnvironment() string {
	if env := os.Getenv("ENVIRONMENT"); env != "" {
		return env
	}
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "development"
}

func truncate(s string) string {
	if len(s) <= maxAttributeLength {
		return s
	}
	return s[:maxAttributeLength]
}
