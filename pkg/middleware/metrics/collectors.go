package metrics

import "github.com/prometheus/client_golang/prometheus"

// Admin HTTP collectors.
var (
	responseTime = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "admin_response_time",
			Help:    "admin http response time.",
			Buckets: []float64{0.005, 0.05, 0.5, 1, 5},
		},
	)

	totalHttpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "admin_http_requests_total", Help: "admin http requests by code, uri, and method"},
		[]string{"code", "uri", "method"},
	)
)

// Pipeline collectors. Outcome label values are fixed per collector (see Help).
var (
	VaultBatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "vault_batches_total", Help: "insert batches by outcome: dispatched, succeeded, failed."},
		[]string{"outcome"},
	)

	VaultRecordsSubmitted = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "vault_records_submitted_total", Help: "records sent to the vault insert endpoint."},
	)

	VaultRecordsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "vault_records_dropped_total", Help: "record outcomes returned without an identifier."},
	)

	VaultInsertSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vault_insert_seconds",
			Help:    "vault insert round-trip latency.",
			Buckets: prometheus.DefBuckets,
		},
	)

	VaultInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "vault_inflight_batches", Help: "dispatched batches whose continuation has not finished."},
	)

	PublisherMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "publisher_messages_total", Help: "destination topic sends by outcome: published, failed."},
		[]string{"outcome"},
	)

	CredentialRefresh = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "credential_refresh_total", Help: "bearer token fetches by outcome: success, failure."},
		[]string{"outcome"},
	)

	StreamRecords = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "stream_records_total", Help: "upstream messages by outcome: decoded, skipped."},
		[]string{"outcome"},
	)

	MicroBatchSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "microbatch_seconds",
			Help:    "wall time from micro-batch dispatch to termination await.",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60},
		},
	)
)

func init() {
	prometheus.MustRegister(
		responseTime,
		totalHttpRequests,
		VaultBatches,
		VaultRecordsSubmitted,
		VaultRecordsDropped,
		VaultInsertSeconds,
		VaultInFlight,
		PublisherMessages,
		CredentialRefresh,
		StreamRecords,
		MicroBatchSeconds,
	)
}
