package brunt

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts vendor API round trips per operation.
type Metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	return &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "brunt2mqtt_vendor_requests_total",
			Help: "Brunt API requests by operation and outcome",
		}, []string{"operation", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "brunt2mqtt_vendor_request_duration_seconds",
			Help:    "Brunt API request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
	}
}

func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.requests, m.duration}
}

func (m *Metrics) observe(op, outcome string, started time.Time) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(op, outcome).Inc()
	m.duration.WithLabelValues(op).Observe(time.Since(started).Seconds())
}
