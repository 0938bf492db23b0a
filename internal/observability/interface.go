// Package observability provides OpenTelemetry tracing for tool calls, resource reads and session requests
package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/YongpengFu/mcp-server/internal/common/logging"
	"github.com/YongpengFu/mcp-server/internal/config"
)

type TracingProvider string

const (
	ProviderSimple   TracingProvider = "simple-otel"
	ProviderDisabled TracingProvider = "disabled"
)

const TracerName = "mcp-server"

// Span types used across the module
const (
	SpanTypeTool     = "tool"
	SpanTypeResource = "resource"
	SpanTypeRequest  = "request"
)

type TracingHandler interface {
	// Core span operations
	StartTrace(ctx context.Context, name string, input string, metadata map[string]string) (context.Context, trace.Span)
	StartSpan(ctx context.Context, name string, spanType string, input string, metadata map[string]string) (context.Context, trace.Span)

	// Span attribute setters
	SetOutput(span trace.Span, output string)
	SetDuration(span trace.Span, duration time.Duration)

	// Status and error handling
	RecordError(span trace.Span, err error, level string)
	RecordSuccess(span trace.Span, message string)

	// Provider info
	GetProvider() TracingProvider
	IsEnabled() bool
}

// NewTracingHandler creates a new tracing handler based on config.
// The handler uses the global tracer provider; call Setup first to export spans.
func NewTracingHandler(cfg *config.Config, logger *logging.Logger) TracingHandler {
	if cfg == nil || !cfg.Observability.Enabled {
		logger.Debug("Observability disabled")
		return NewDisabledProvider(logger)
	}

	provider := NewSimpleProvider(cfg, logger)
	logger.InfoKV("Tracing provider initialized", "type", ProviderSimple, "endpoint", cfg.Observability.Endpoint)
	return provider
}
