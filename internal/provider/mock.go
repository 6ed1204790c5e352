package provider

import (
	"context"
	"sync"
	"time"

	domainErrors "github.com/optishop/payments/internal/domain/errors"
)

// MockClient is an in-memory provider used in tests and local runs.
// Resources are registered up front; lookups behave like the real read API,
// including not-found and injectable failures.
type MockClient struct {
	mu             sync.Mutex
	payments       map[string]*PaymentDetail
	merchantOrders map[string]*MerchantOrderDetail
	latency        time.Duration
	failWith       error
}

type MockClientOption func(*MockClient)

// WithLatency makes every lookup take d before answering.
func WithLatency(d time.Duration) MockClientOption {
	return func(c *MockClient) { c.latency = d }
}

// WithFailure makes every lookup fail with err.
func WithFailure(err error) MockClientOption {
	return func(c *MockClient) { c.failWith = err }
}

func NewMockClient(opts ...MockClientOption) *MockClient {
	c := &MockClient{
		payments:       make(map[string]*PaymentDetail),
		merchantOrders: make(map[string]*MerchantOrderDetail),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// AddPayment registers a payment resource.
func (c *MockClient) AddPayment(d *PaymentDetail) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.payments[d.ID] = d
}

// AddMerchantOrder registers a merchant order resource.
func (c *MockClient) AddMerchantOrder(d *MerchantOrderDetail) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.merchantOrders[d.ID] = d
}

// SetFailure changes the injected failure after construction.
func (c *MockClient) SetFailure(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failWith = err
}

func (c *MockClient) wait(ctx context.Context) error {
	if c.latency == 0 {
		return nil
	}
	select {
	case <-time.After(c.latency):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *MockClient) GetPayment(ctx context.Context, resourceID string) (*PaymentDetail, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failWith != nil {
		return nil, c.failWith
	}
	d, ok := c.payments[resourceID]
	if !ok {
		return nil, domainErrors.ErrResourceNotFound
	}
	return d, nil
}

func (c *MockClient) GetMerchantOrder(ctx context.Context, resourceID string) (*MerchantOrderDetail, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failWith != nil {
		return nil, c.failWith
	}
	d, ok := c.merchantOrders[resourceID]
	if !ok {
		return nil, domainErrors.ErrResourceNotFound
	}
	return d, nil
}

func (c *MockClient) SearchPaymentsByReference(ctx context.Context, externalReference string) ([]*PaymentDetail, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failWith != nil {
		return nil, c.failWith
	}
	var results []*PaymentDetail
	for _, d := range c.payments {
		if d.CorrelationKey() == externalReference {
			results = append(results, d)
		}
	}
	return results, nil
}
