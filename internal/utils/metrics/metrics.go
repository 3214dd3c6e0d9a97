package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Payment metrics
	PaymentsTotal            *prometheus.CounterVec
	PaymentAmountMinorUnits  *prometheus.CounterVec
	ProcessorRequestDuration *prometheus.HistogramVec
	RefundsTotal             *prometheus.CounterVec

	// 3DS metrics
	ThreeDSOutcomesTotal     *prometheus.CounterVec
	ThreeDSChallengeDuration prometheus.Histogram

	// Cache metrics
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec
}

// New creates a new Metrics instance registered on the default registry.
func New(namespace string) *Metrics {
	return NewWith(namespace, prometheus.DefaultRegisterer)
}

// NewWith creates a Metrics instance on a caller-supplied registerer. Tests
// use this with a fresh registry.
func NewWith(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "tripfare"
	}
	factory := promauto.With(reg)

	return &Metrics{
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_in_flight",
				Help:      "Current number of HTTP requests being processed",
			},
		),

		PaymentsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "payments",
				Name:      "total",
				Help:      "Payment attempts by processor, booking type and outcome",
			},
			[]string{"processor", "booking_type", "outcome"}, // outcome: succeeded, failed, requires_action, canceled
		),
		PaymentAmountMinorUnits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "payments",
				Name:      "amount_minor_units_total",
				Help:      "Sum of processed amounts in currency minor units",
			},
			[]string{"processor", "currency"},
		),
		ProcessorRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "payments",
				Name:      "processor_request_duration_seconds",
				Help:      "Payment processor API call duration in seconds",
				Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"processor", "operation"},
		),
		RefundsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "payments",
				Name:      "refunds_total",
				Help:      "Refunds by processor and status",
			},
			[]string{"processor", "status"},
		),

		ThreeDSOutcomesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "threeds",
				Name:      "outcomes_total",
				Help:      "3-D Secure authentication outcomes",
			},
			[]string{"status"}, // 3ds_success, 3ds_failed, 3ds_not_required, 3ds_challenge
		),
		ThreeDSChallengeDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "threeds",
				Name:      "challenge_duration_seconds",
				Help:      "Time spent in the 3-D Secure challenge window",
				Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
			},
		),

		CacheHitsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cache",
				Name:      "hits_total",
				Help:      "Total number of cache hits",
			},
			[]string{"cache"},
		),
		CacheMissesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cache",
				Name:      "misses_total",
				Help:      "Total number of cache misses",
			},
			[]string{"cache"},
		),
	}
}

// --- Convenience methods ---

// RecordHTTPRequest records an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	statusStr := statusCodeToString(status)
	m.HTTPRequestsTotal.WithLabelValues(method, path, statusStr).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordPayment records a payment attempt outcome.
func (m *Metrics) RecordPayment(processor, bookingType, outcome string) {
	m.PaymentsTotal.WithLabelValues(processor, bookingType, outcome).Inc()
}

// RecordPaymentAmount adds a processed amount to the per-currency totals.
func (m *Metrics) RecordPaymentAmount(processor, currency string, amount int64) {
	if amount > 0 {
		m.PaymentAmountMinorUnits.WithLabelValues(processor, currency).Add(float64(amount))
	}
}

// RecordProcessorRequest records a processor API call.
func (m *Metrics) RecordProcessorRequest(processor, operation string, duration time.Duration) {
	m.ProcessorRequestDuration.WithLabelValues(processor, operation).Observe(duration.Seconds())
}

// RecordRefund records a refund result.
func (m *Metrics) RecordRefund(processor, status string) {
	m.RefundsTotal.WithLabelValues(processor, status).Inc()
}

// RecordThreeDSOutcome records a 3DS authentication outcome.
func (m *Metrics) RecordThreeDSOutcome(status string) {
	m.ThreeDSOutcomesTotal.WithLabelValues(status).Inc()
}

// ObserveThreeDSChallenge records how long a cardholder spent in a challenge.
func (m *Metrics) ObserveThreeDSChallenge(duration time.Duration) {
	m.ThreeDSChallengeDuration.Observe(duration.Seconds())
}

// RecordCacheHit records a cache hit.
func (m *Metrics) RecordCacheHit(cache string) {
	m.CacheHitsTotal.WithLabelValues(cache).Inc()
}

// RecordCacheMiss records a cache miss.
func (m *Metrics) RecordCacheMiss(cache string) {
	m.CacheMissesTotal.WithLabelValues(cache).Inc()
}

// statusCodeToString converts an HTTP status code to a string category.
func statusCodeToString(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
