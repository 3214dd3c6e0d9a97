package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func newTestMetrics() *Metrics {
	return NewWith("test", prometheus.NewRegistry())
}

func TestNewWith(t *testing.T) {
	m := newTestMetrics()
	assert.NotNil(t, m.HTTPRequestsTotal)
	assert.NotNil(t, m.HTTPRequestDuration)
	assert.NotNil(t, m.HTTPRequestsInFlight)
	assert.NotNil(t, m.PaymentsTotal)
	assert.NotNil(t, m.PaymentAmountMinorUnits)
	assert.NotNil(t, m.ProcessorRequestDuration)
	assert.NotNil(t, m.RefundsTotal)
	assert.NotNil(t, m.ThreeDSOutcomesTotal)
	assert.NotNil(t, m.ThreeDSChallengeDuration)
	assert.NotNil(t, m.CacheHitsTotal)
	assert.NotNil(t, m.CacheMissesTotal)
}

func TestMetrics_RecordHTTPRequest(t *testing.T) {
	m := newTestMetrics()

	t.Run("records request with 2xx status", func(t *testing.T) {
		m.RecordHTTPRequest("POST", "/api/v1/payments", 200, 100*time.Millisecond)

		count := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("POST", "/api/v1/payments", "2xx"))
		assert.Equal(t, float64(1), count)
	})

	t.Run("records request with 4xx status", func(t *testing.T) {
		m.RecordHTTPRequest("POST", "/api/v1/payments", 402, 50*time.Millisecond)

		count := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("POST", "/api/v1/payments", "4xx"))
		assert.Equal(t, float64(1), count)
	})
}

func TestMetrics_RecordPayment(t *testing.T) {
	m := newTestMetrics()

	m.RecordPayment("duffel", "flight", "succeeded")
	m.RecordPayment("duffel", "flight", "succeeded")
	m.RecordPayment("duffel", "hotel", "failed")

	assert.Equal(t, float64(2), testutil.ToFloat64(m.PaymentsTotal.WithLabelValues("duffel", "flight", "succeeded")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.PaymentsTotal.WithLabelValues("duffel", "hotel", "failed")))
}

func TestMetrics_RecordPaymentAmount(t *testing.T) {
	m := newTestMetrics()

	m.RecordPaymentAmount("duffel", "USD", 5000)
	m.RecordPaymentAmount("duffel", "USD", 2500)

	assert.Equal(t, float64(7500), testutil.ToFloat64(m.PaymentAmountMinorUnits.WithLabelValues("duffel", "USD")))

	t.Run("skips non-positive amounts", func(t *testing.T) {
		m.RecordPaymentAmount("duffel", "EUR", 0)
		m.RecordPaymentAmount("duffel", "EUR", -100)

		assert.Equal(t, float64(0), testutil.ToFloat64(m.PaymentAmountMinorUnits.WithLabelValues("duffel", "EUR")))
	})
}

func TestMetrics_RecordThreeDSOutcome(t *testing.T) {
	m := newTestMetrics()

	m.RecordThreeDSOutcome("3ds_success")
	m.RecordThreeDSOutcome("3ds_success")
	m.RecordThreeDSOutcome("3ds_failed")

	assert.Equal(t, float64(2), testutil.ToFloat64(m.ThreeDSOutcomesTotal.WithLabelValues("3ds_success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ThreeDSOutcomesTotal.WithLabelValues("3ds_failed")))
}

func TestMetrics_RecordRefund(t *testing.T) {
	m := newTestMetrics()

	m.RecordRefund("duffel", "succeeded")

	assert.Equal(t, float64(1), testutil.ToFloat64(m.RefundsTotal.WithLabelValues("duffel", "succeeded")))
}

func TestMetrics_RecordCache(t *testing.T) {
	m := newTestMetrics()

	m.RecordCacheHit("idempotency")
	m.RecordCacheMiss("idempotency")
	m.RecordCacheMiss("idempotency")

	assert.Equal(t, float64(1), testutil.ToFloat64(m.CacheHitsTotal.WithLabelValues("idempotency")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.CacheMissesTotal.WithLabelValues("idempotency")))
}

func TestStatusCodeToString(t *testing.T) {
	tests := []struct {
		code     int
		expected string
	}{
		{200, "2xx"},
		{299, "2xx"},
		{301, "3xx"},
		{402, "4xx"},
		{404, "4xx"},
		{500, "5xx"},
		{100, "unknown"},
		{0, "unknown"},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d", tt.code), func(t *testing.T) {
			assert.Equal(t, tt.expected, statusCodeToString(tt.code))
		})
	}
}
