package monitoring

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const prefix = "mcpserver_"

const (
	MetricLabelTool     = "tool"
	MetricLabelServer   = "server"
	MetricLabelError    = "error"
	MetricLabelTemplate = "template"
	MetricLabelMethod   = "method"
	MetricLabelOutcome  = "outcome"
)

// Outcome label values
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

var (
	ToolInvocations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: fmt.Sprintf("%stool_invocations_total", prefix),
			Help: "Total number of tool invocations",
		},
		[]string{MetricLabelTool, MetricLabelServer, MetricLabelError},
	)
	ToolDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    fmt.Sprintf("%stool_duration_seconds", prefix),
			Help:    "Histogram of tool invocation latency",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 14),
		},
		[]string{MetricLabelTool, MetricLabelServer},
	)
	ResourceReads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: fmt.Sprintf("%sresource_reads_total", prefix),
			Help: "Total number of resource reads by template and outcome",
		},
		[]string{MetricLabelTemplate, MetricLabelOutcome},
	)
	SessionRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: fmt.Sprintf("%ssession_requests_total", prefix),
			Help: "Total number of requests sent over client sessions",
		},
		[]string{MetricLabelServer, MetricLabelMethod, MetricLabelOutcome},
	)
	PendingRequests = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: fmt.Sprintf("%ssession_pending_requests", prefix),
			Help: "Requests awaiting a response per backend",
		},
		[]string{MetricLabelServer},
	)
	ConnectedServers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: fmt.Sprintf("%saggregator_connected_servers", prefix),
			Help: "Number of backends with an initialized session",
		},
	)
)

var registerOnce sync.Once

// RegisterMetrics registers the collectors with the default registry; later calls are no-ops
func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			ToolInvocations,
			ToolDuration,
			ResourceReads,
			SessionRequests,
			PendingRequests,
			ConnectedServers,
		)
	})
}

// RecordToolInvocation counts one tool call and observes its latency.
// errKind is empty for a successful call.
func RecordToolInvocation(tool, server, errKind string, elapsed time.Duration) {
	ToolInvocations.WithLabelValues(tool, server, errKind).Inc()
	ToolDuration.WithLabelValues(tool, server).Observe(elapsed.Seconds())
}

// RecordResourceRead counts one resource read
func RecordResourceRead(template string, err error) {
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
	}
	ResourceReads.WithLabelValues(template, outcome).Inc()
}
