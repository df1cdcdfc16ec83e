package transport

import (
	"strconv"
	"time"

	"github.com/evergreen-ci/spmodel/apimodels"
	"github.com/prometheus/client_golang/prometheus"
)

const defaultNamespace = "spmodel"

// Metrics collects request telemetry for an HTTP transport.
type Metrics struct {
	registry *prometheus.Registry

	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	retries  *prometheus.CounterVec
	batches  *prometheus.HistogramVec
}

// NewMetrics creates the transport collectors in their own registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = defaultNamespace
	}

	m := &Metrics{registry: prometheus.NewRegistry()}

	m.requests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "requests_total",
			Help:      "HTTP requests sent, by API type, method and final status code (0 for network failures)",
		},
		[]string{"api_type", "method", "status"},
	)
	m.duration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "request_duration_seconds",
			Help:      "Time spent on HTTP requests including retries",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"api_type"},
	)
	m.retries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "retries_total",
			Help:      "HTTP request attempts retried after throttling, server errors or network failures",
		},
		[]string{"api_type"},
	)
	m.batches = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "batch_size",
			Help:      "Number of requests combined into one batch request",
			Buckets:   []float64{1, 2, 5, 10, 20, 50, 100},
		},
		[]string{"api_type"},
	)

	m.registry.MustRegister(m.requests, m.duration, m.retries, m.batches)

	return m
}

// Registry returns the registry holding the transport collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) observeRequest(apiType apimodels.APIType, method string, status int, started time.Time) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(string(apiType), method, strconv.Itoa(status)).Inc()
	m.duration.WithLabelValues(string(apiType)).Observe(time.Since(started).Seconds())
}

func (m *Metrics) observeRetry(apiType apimodels.APIType) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(string(apiType)).Inc()
}

func (m *Metrics) observeBatch(apiType apimodels.APIType, size int) {
	if m == nil {
		return
	}
	m.batches.WithLabelValues(string(apiType)).Observe(float64(size))
}
