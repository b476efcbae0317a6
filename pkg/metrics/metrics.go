package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Connection metrics
var (
	DialsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sieveconn_dials_total",
			Help: "Total number of connection attempts by result",
		},
		[]string{"result"}, // success, failure, unresolved
	)

	ConnectionsCurrent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sieveconn_connections_current",
			Help: "Current number of open ManageSieve connections",
		},
	)

	ConnectionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sieveconn_connection_duration_seconds",
			Help:    "Lifetime of ManageSieve connections in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// Response framing metrics
var (
	ResponsesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sieveconn_responses_total",
			Help: "Total number of response reads by result",
		},
		[]string{"result"}, // ok, timeout, error
	)

	ResponseLines = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sieveconn_response_lines",
			Help:    "Number of lines in each response",
			Buckets: []float64{1, 2, 4, 8, 16, 32, 64, 128},
		},
	)

	ResponseWaitDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sieveconn_response_wait_seconds",
			Help:    "Time spent waiting for the first byte of a response",
			Buckets: []float64{0.001, 0.005, 0.01, 0.03, 0.06, 0.1, 0.2, 0.3},
		},
	)

	BytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sieveconn_bytes_total",
			Help: "Total bytes transferred",
		},
		[]string{"direction"}, // in, out
	)
)
