package reconciler

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is the Prometheus collector set every loop in this package
// records to: per-kind attempt/failure counters, cert requests issued and
// failed, finalize latency, and per-sweep prune counts, all real
// prometheus.Collector types so the values are scrapable from the metrics
// endpoint.
type Metrics struct {
	ReconcileAttempts  *prometheus.CounterVec
	ReconcileFailures  *prometheus.CounterVec
	CertRequestsIssued prometheus.Counter
	CertRequestsFailed prometheus.Counter
	FinalizeLatency    prometheus.Histogram
	PruneDeletedTotal  *prometheus.CounterVec
}

// NewMetrics builds a Metrics registered against reg. Pass
// prometheus.NewRegistry() in production and a fresh registry per test in
// tests, never the global DefaultRegisterer, so repeated test runs don't
// collide on duplicate registration.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ReconcileAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vanctl",
			Subsystem: "reconciler",
			Name:      "attempts_total",
			Help:      "Lifecycle advance attempts per entity kind.",
		}, []string{"kind"}),
		ReconcileFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vanctl",
			Subsystem: "reconciler",
			Name:      "failures_total",
			Help:      "Lifecycle advance failures per entity kind.",
		}, []string{"kind"}),
		CertRequestsIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vanctl",
			Subsystem: "reconciler",
			Name:      "cert_requests_issued_total",
			Help:      "CertificateRequest rows that reached cm_cert_created.",
		}),
		CertRequestsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vanctl",
			Subsystem: "reconciler",
			Name:      "cert_requests_failed_total",
			Help:      "CertificateRequest rows whose Certificate object never became Ready.",
		}),
		FinalizeLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "vanctl",
			Subsystem: "reconciler",
			Name:      "finalize_latency_seconds",
			Help:      "Time from CertificateRequest creation to finalization into a ready TlsCertificate.",
			Buckets:   prometheus.DefBuckets,
		}),
		PruneDeletedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vanctl",
			Subsystem: "reconciler",
			Name:      "pruned_total",
			Help:      "Rows/objects removed per pruning sweep kind.",
		}, []string{"sweep"}),
	}
	reg.MustRegister(m.ReconcileAttempts, m.ReconcileFailures, m.CertRequestsIssued,
		m.CertRequestsFailed, m.FinalizeLatency, m.PruneDeletedTotal)
	return m
}

var (
	globalMetrics   *Metrics
	globalMetricsMu sync.Mutex
)

// GlobalMetrics lazily creates a Metrics registered against
// prometheus.DefaultRegisterer. New falls back to it when given nil
// metrics; cmd/vanctl-controller passes NewMetrics on its own registry
// instead.
func GlobalMetrics() *Metrics {
	globalMetricsMu.Lock()
	defer globalMetricsMu.Unlock()
	if globalMetrics == nil {
		globalMetrics = NewMetrics(prometheus.DefaultRegisterer)
	}
	return globalMetrics
}
