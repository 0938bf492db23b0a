package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Reload trigger label values
const (
	TriggerSignal   = "signal"
	TriggerPeriodic = "periodic"
)

var (
	reloadCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "reloads_total",
			Help: "Total number of host reloads",
		},
		[]string{"trigger"},
	)

	reloadDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    prefix + "reload_duration_seconds",
			Help:    "Time spent performing complete reload cycles",
			Buckets: prometheus.DefBuckets,
		},
	)

	connectFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "connect_failures_total",
			Help: "Backends that failed to connect or initialize",
		},
		[]string{MetricLabelServer},
	)
)

// RecordReload records a completed reload with its duration
func RecordReload(trigger string, duration time.Duration) {
	reloadCounter.WithLabelValues(trigger).Inc()
	reloadDuration.Observe(duration.Seconds())
}

// RecordConnectFailure records a backend that could not be brought up
func RecordConnectFailure(server string) {
	connectFailures.WithLabelValues(server).Inc()
}
