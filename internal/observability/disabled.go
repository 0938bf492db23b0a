package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/YongpengFu/mcp-server/internal/common/logging"
)

// noopSpan is returned by the disabled provider; ending it never touches a caller's span
var noopSpan = trace.SpanFromContext(context.Background())

// DisabledProvider provides no-op tracing when observability is disabled
type DisabledProvider struct {
	logger *logging.Logger
}

// NewDisabledProvider creates a new disabled provider
func NewDisabledProvider(logger *logging.Logger) *DisabledProvider {
	return &DisabledProvider{
		logger: logger,
	}
}

func (p *DisabledProvider) StartTrace(ctx context.Context, _ string, _ string, _ map[string]string) (context.Context, trace.Span) {
	return ctx, noopSpan
}

func (p *DisabledProvider) StartSpan(ctx context.Context, _ string, _ string, _ string, _ map[string]string) (context.Context, trace.Span) {
	return ctx, noopSpan
}

func (p *DisabledProvider) SetOutput(trace.Span, string) {}

func (p *DisabledProvider) SetDuration(trace.Span, time.Duration) {}

func (p *DisabledProvider) RecordError(trace.Span, error, string) {}

func (p *DisabledProvider) RecordSuccess(trace.Span, string) {}

func (p *DisabledProvider) GetProvider() TracingProvider {
	return ProviderDisabled
}

func (p *DisabledProvider) IsEnabled() bool {
	return false
}
