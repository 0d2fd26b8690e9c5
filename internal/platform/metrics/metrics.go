package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	WebhooksReceived  *prometheus.CounterVec
	KYCStatusUpdates  *prometheus.CounterVec
	AccountWriteSkips prometheus.Counter
	ReferralClaims    *prometheus.CounterVec
	RequestDuration   *prometheus.HistogramVec
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		WebhooksReceived: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "verigate_webhooks_received_total",
			Help: "Verification webhooks processed, labelled by mapped session status.",
		}, []string{"status"}),
		KYCStatusUpdates: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "verigate_kyc_status_updates_total",
			Help: "Account kyc_status writes, labelled by resulting status.",
		}, []string{"kyc_status"}),
		AccountWriteSkips: promauto.NewCounter(prometheus.CounterOpts{
			Name: "verigate_account_write_failures_total",
			Help: "Best-effort account upserts that failed and were suppressed.",
		}),
		ReferralClaims: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "verigate_referral_claims_total",
			Help: "Referral claim attempts, labelled by outcome.",
		}, []string{"outcome"}),
		RequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "verigate_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status code.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "code"}),
	}
}

// ObserveRequest records one HTTP request observation.
func (m *Metrics) ObserveRequest(route, code string, d time.Duration) {
	m.RequestDuration.WithLabelValues(route, code).Observe(d.Seconds())
}
