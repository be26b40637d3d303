package gateway

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector defines the interface for collecting gateway metrics
type MetricsCollector interface {
	SessionOpened()
	SessionClosed(reason string)
	PayloadSent(kind string)
	PollCompleted(available bool, duration time.Duration)
}

// NoOpMetricsCollector is a no-op implementation for when metrics aren't needed
type NoOpMetricsCollector struct{}

func (n *NoOpMetricsCollector) SessionOpened()                                       {}
func (n *NoOpMetricsCollector) SessionClosed(reason string)                          {}
func (n *NoOpMetricsCollector) PayloadSent(kind string)                              {}
func (n *NoOpMetricsCollector) PollCompleted(available bool, duration time.Duration) {}

// PrometheusMetrics implements MetricsCollector using Prometheus
type PrometheusMetrics struct {
	activeSessions prometheus.Gauge
	closedSessions *prometheus.CounterVec
	payloadsSent   *prometheus.CounterVec
	polls          *prometheus.CounterVec
	pollDuration   prometheus.Histogram
}

// NewPrometheusMetrics registers the gateway collectors with reg
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	factory := promauto.With(reg)
	return &PrometheusMetrics{
		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "warboard",
			Subsystem: "gateway",
			Name:      "active_sessions",
			Help:      "Overlay WebSocket sessions currently streaming.",
		}),
		closedSessions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "warboard",
			Subsystem: "gateway",
			Name:      "sessions_closed_total",
			Help:      "Overlay sessions closed, by reason.",
		}, []string{"reason"}),
		payloadsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "warboard",
			Subsystem: "gateway",
			Name:      "payloads_sent_total",
			Help:      "Messages pushed to overlay clients, by kind.",
		}, []string{"kind"}),
		polls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "warboard",
			Subsystem: "gateway",
			Name:      "polls_total",
			Help:      "Store polls, by outcome.",
		}, []string{"outcome"}),
		pollDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "warboard",
			Subsystem: "gateway",
			Name:      "poll_duration_seconds",
			Help:      "Time spent fetching and deriving one snapshot.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}),
	}
}

func (m *PrometheusMetrics) SessionOpened() {
	m.activeSessions.Inc()
}

func (m *PrometheusMetrics) SessionClosed(reason string) {
	m.activeSessions.Dec()
	m.closedSessions.WithLabelValues(reason).Inc()
}

func (m *PrometheusMetrics) PayloadSent(kind string) {
	m.payloadsSent.WithLabelValues(kind).Inc()
}

func (m *PrometheusMetrics) PollCompleted(available bool, duration time.Duration) {
	outcome := "available"
	if !available {
		outcome = "unavailable"
	}
	m.polls.WithLabelValues(outcome).Inc()
	m.pollDuration.Observe(duration.Seconds())
}
