package provider_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	domainErrors "github.com/optishop/payments/internal/domain/errors"
	"github.com/optishop/payments/internal/provider"
	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T, baseURL string) *provider.HTTPClient {
	t.Helper()
	c, err := provider.NewHTTPClient(provider.HTTPClientConfig{
		BaseURL:        baseURL,
		AccessToken:    "test-token",
		RequestTimeout: 2 * time.Second,
		RetryAttempts:  2,
	}, zerolog.Nop())
	require.NoError(t, err)
	return c
}

func TestNewHTTPClient_MissingToken(t *testing.T) {
	_, err := provider.NewHTTPClient(provider.HTTPClientConfig{BaseURL: "http://x"}, zerolog.Nop())
	assert.Error(t, err)
}

func TestGetPayment_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payments/555", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"555","status":"approved","external_reference":"pay_123","order_id":"ord-1"}`))
	}))
	defer srv.Close()

	detail, err := newClient(t, srv.URL).GetPayment(context.Background(), "555")
	require.NoError(t, err)
	assert.Equal(t, "approved", detail.Status)
	assert.Equal(t, "pay_123", detail.CorrelationKey())
	assert.Equal(t, "ord-1", detail.OrderID)
}

func TestGetPayment_NotFound(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newClient(t, srv.URL).GetPayment(context.Background(), "missing")
	assert.ErrorIs(t, err, domainErrors.ErrResourceNotFound)
	// Not-found is definitive and must not be retried.
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGetPayment_RetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"id":"555","status":"pending"}`))
	}))
	defer srv.Close()

	detail, err := newClient(t, srv.URL).GetPayment(context.Background(), "555")
	require.NoError(t, err)
	assert.Equal(t, "pending", detail.Status)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestGetPayment_ServerErrorExhaustsRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := newClient(t, srv.URL).GetPayment(context.Background(), "555")
	assert.ErrorIs(t, err, domainErrors.ErrProviderUnavailable)
}

func TestGetMerchantOrder_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/merchant_orders/mo-9", r.URL.Path)
		w.Write([]byte(`{"id":"mo-9","status":"closed","external_reference":"pay_456"}`))
	}))
	defer srv.Close()

	detail, err := newClient(t, srv.URL).GetMerchantOrder(context.Background(), "mo-9")
	require.NoError(t, err)
	assert.Equal(t, "closed", detail.Status)
	assert.Equal(t, "pay_456", detail.ExternalReference)
}

func TestSearchPaymentsByReference(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payments/search", r.URL.Path)
		assert.Equal(t, "pay_789", r.URL.Query().Get("external_reference"))
		w.Write([]byte(`{"results":[{"id":"1","status":"approved","external_reference":"pay_789"}]}`))
	}))
	defer srv.Close()

	results, err := newClient(t, srv.URL).SearchPaymentsByReference(context.Background(), "pay_789")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "approved", results[0].Status)
}

func TestClientMetricsRecorded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/payments/gone" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(`{"id":"555","status":"approved"}`))
	}))
	defer srv.Close()

	metrics := &provider.ClientMetrics{
		Requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "provider_requests_total"}, []string{"resource", "result"}),
		Duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{Name: "provider_request_duration_seconds"}, []string{"resource"}),
		BreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: "circuit_breaker_state"}, []string{"name"}),
	}
	c, err := provider.NewHTTPClient(provider.HTTPClientConfig{
		BaseURL:        srv.URL,
		AccessToken:    "test-token",
		RequestTimeout: 2 * time.Second,
		RetryAttempts:  1,
		Metrics:        metrics,
	}, zerolog.Nop())
	require.NoError(t, err)

	_, err = c.GetPayment(context.Background(), "555")
	require.NoError(t, err)
	_, err = c.GetPayment(context.Background(), "gone")
	require.ErrorIs(t, err, domainErrors.ErrResourceNotFound)

	assert.Equal(t, 1.0, promtestutil.ToFloat64(metrics.Requests.WithLabelValues("payment", "ok")))
	assert.Equal(t, 1.0, promtestutil.ToFloat64(metrics.Requests.WithLabelValues("payment", "not_found")))
	// Healthy traffic keeps the breaker closed.
	assert.Equal(t, 0.0, promtestutil.ToFloat64(metrics.BreakerState.WithLabelValues("provider-read-api")))
}

func TestCorrelationKey_Priority(t *testing.T) {
	d := &provider.PaymentDetail{
		ExternalReference: "primary",
		Metadata:          map[string]string{"external_reference": "meta"},
		AdditionalInfo:    provider.AdditionalInfo{ExternalReference: "extra"},
	}
	assert.Equal(t, "primary", d.CorrelationKey())

	d.ExternalReference = ""
	assert.Equal(t, "meta", d.CorrelationKey())

	d.Metadata = nil
	assert.Equal(t, "extra", d.CorrelationKey())

	d.AdditionalInfo.ExternalReference = ""
	assert.Equal(t, "", d.CorrelationKey())
}
