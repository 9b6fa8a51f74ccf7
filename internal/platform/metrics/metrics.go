// Package metrics registers all Prometheus metrics for the certifier.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the certifier's Prometheus collectors.
type Metrics struct {
	CertificatesIssued  prometheus.Counter
	CertificatesRevoked prometheus.Counter
	IssuanceFailures    *prometheus.CounterVec
	Verifications       *prometheus.CounterVec
	NonceReplays        prometheus.Counter
	WalletRetries       prometheus.Counter
	RequestDuration     *prometheus.HistogramVec
}

// New creates and registers all collectors on the default registry.
func New() *Metrics {
	return &Metrics{
		CertificatesIssued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "commonsource_certificates_issued_total",
			Help: "Total number of certificates issued.",
		}),
		CertificatesRevoked: promauto.NewCounter(prometheus.CounterOpts{
			Name: "commonsource_certificates_revoked_total",
			Help: "Total number of certificates revoked.",
		}),
		IssuanceFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "commonsource_issuance_failures_total",
			Help: "Issuance failures by error code.",
		}, []string{"code"}),
		Verifications: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "commonsource_verifications_total",
			Help: "Verification outcomes by terminal state.",
		}, []string{"outcome"}),
		NonceReplays: promauto.NewCounter(prometheus.CounterOpts{
			Name: "commonsource_nonce_replays_total",
			Help: "Client nonces rejected by the replay guard.",
		}),
		WalletRetries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "commonsource_wallet_retries_total",
			Help: "Retried wallet calls after transient failures.",
		}),
		RequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "commonsource_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "status"}),
	}
}
