package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/avast/retry-go/v4"
	domainErrors "github.com/optishop/payments/internal/domain/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

// ClientMetrics are optional collectors the client records into. Any nil
// field is simply skipped.
type ClientMetrics struct {
	Requests     *prometheus.CounterVec   // labels: resource, result
	Duration     *prometheus.HistogramVec // labels: resource
	BreakerState *prometheus.GaugeVec     // labels: name
}

// HTTPClient implements Client against the provider's REST read API.
// Requests are bearer-token authenticated, bounded by the configured
// timeout, retried on transient faults and guarded by a circuit breaker.
type HTTPClient struct {
	baseURL     string
	accessToken string
	http        *http.Client
	breaker     *gobreaker.CircuitBreaker[[]byte]
	attempts    uint
	metrics     *ClientMetrics
	logger      zerolog.Logger
}

// HTTPClientConfig holds the knobs for the provider client.
type HTTPClientConfig struct {
	BaseURL          string
	AccessToken      string
	RequestTimeout   time.Duration
	RetryAttempts    uint
	BreakerInterval  time.Duration
	BreakerTimeout   time.Duration
	BreakerThreshold uint32
	Metrics          *ClientMetrics
}

// NewHTTPClient creates a provider client. A missing access token is a
// wiring error and is rejected at construction, not per request.
func NewHTTPClient(cfg HTTPClientConfig, logger zerolog.Logger) (*HTTPClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("provider base url is required")
	}
	if cfg.AccessToken == "" {
		return nil, fmt.Errorf("provider access token is required")
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	attempts := cfg.RetryAttempts
	if attempts == 0 {
		attempts = 3
	}
	threshold := cfg.BreakerThreshold
	if threshold == 0 {
		threshold = 10
	}

	settings := gobreaker.Settings{
		Name:     "provider-read-api",
		Interval: cfg.BreakerInterval,
		Timeout:  cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= threshold && failureRatio >= 0.6
		},
		// A provider 404 is a normal outcome here (early notification
		// arrival); it must not trip the breaker.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, domainErrors.ErrResourceNotFound)
		},
	}
	if cfg.Metrics != nil && cfg.Metrics.BreakerState != nil {
		// gobreaker state values match the gauge encoding:
		// closed=0, half-open=1, open=2.
		cfg.Metrics.BreakerState.WithLabelValues(settings.Name).Set(float64(gobreaker.StateClosed))
		settings.OnStateChange = func(name string, from, to gobreaker.State) {
			cfg.Metrics.BreakerState.WithLabelValues(name).Set(float64(to))
			logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("provider circuit breaker changed state")
		}
	}
	breaker := gobreaker.NewCircuitBreaker[[]byte](settings)

	return &HTTPClient{
		baseURL:     cfg.BaseURL,
		accessToken: cfg.AccessToken,
		http:        &http.Client{Timeout: timeout},
		breaker:     breaker,
		attempts:    attempts,
		metrics:     cfg.Metrics,
		logger:      logger,
	}, nil
}

// GetPayment fetches a payment resource by id.
func (c *HTTPClient) GetPayment(ctx context.Context, resourceID string) (*PaymentDetail, error) {
	body, err := c.get(ctx, "payment", "/v1/payments/"+url.PathEscape(resourceID))
	if err != nil {
		return nil, err
	}
	var detail PaymentDetail
	if err := json.Unmarshal(body, &detail); err != nil {
		return nil, fmt.Errorf("decode payment %s: %w", resourceID, err)
	}
	return &detail, nil
}

// GetMerchantOrder fetches a merchant order resource by id.
func (c *HTTPClient) GetMerchantOrder(ctx context.Context, resourceID string) (*MerchantOrderDetail, error) {
	body, err := c.get(ctx, "merchant_order", "/merchant_orders/"+url.PathEscape(resourceID))
	if err != nil {
		return nil, err
	}
	var detail MerchantOrderDetail
	if err := json.Unmarshal(body, &detail); err != nil {
		return nil, fmt.Errorf("decode merchant order %s: %w", resourceID, err)
	}
	return &detail, nil
}

// SearchPaymentsByReference looks up payment resources by external reference.
func (c *HTTPClient) SearchPaymentsByReference(ctx context.Context, externalReference string) ([]*PaymentDetail, error) {
	body, err := c.get(ctx, "payment_search", "/v1/payments/search?external_reference="+url.QueryEscape(externalReference))
	if err != nil {
		return nil, err
	}
	var page struct {
		Results []*PaymentDetail `json:"results"`
	}
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("decode payment search: %w", err)
	}
	return page.Results, nil
}

// get issues an authenticated GET through the breaker, retrying transient
// failures with backoff. Not-found is returned untried and unretried.
func (c *HTTPClient) get(ctx context.Context, resource, path string) ([]byte, error) {
	start := time.Now()
	body, err := c.breaker.Execute(func() ([]byte, error) {
		return retry.DoWithData(
			func() ([]byte, error) { return c.doGet(ctx, path) },
			retry.Context(ctx),
			retry.Attempts(c.attempts),
			retry.Delay(200*time.Millisecond),
			retry.MaxDelay(2*time.Second),
			retry.DelayType(retry.BackOffDelay),
			retry.LastErrorOnly(true),
			retry.OnRetry(func(n uint, err error) {
				c.logger.Warn().Uint("attempt", n).Err(err).Str("path", path).Msg("provider fetch retry")
			}),
		)
	})
	c.observe(resource, start, err)
	return body, err
}

// observe records one provider call against the configured collectors.
func (c *HTTPClient) observe(resource string, start time.Time, err error) {
	if c.metrics == nil {
		return
	}
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, domainErrors.ErrResourceNotFound):
		result = "not_found"
	default:
		result = "error"
	}
	if c.metrics.Requests != nil {
		c.metrics.Requests.WithLabelValues(resource, result).Inc()
	}
	if c.metrics.Duration != nil {
		c.metrics.Duration.WithLabelValues(resource).Observe(time.Since(start).Seconds())
	}
}

func (c *HTTPClient) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, retry.Unrecoverable(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("provider request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read provider response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, retry.Unrecoverable(domainErrors.ErrResourceNotFound)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, retry.Unrecoverable(fmt.Errorf("provider auth failed (%d): %w", resp.StatusCode, domainErrors.ErrUnauthorized))
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("provider returned %d: %w", resp.StatusCode, domainErrors.ErrProviderUnavailable)
	default:
		return nil, retry.Unrecoverable(fmt.Errorf("provider returned unexpected status %d", resp.StatusCode))
	}
}
