package testutil

import (
	"context"
	"sync"
	"time"

	domainErrors "github.com/optishop/payments/internal/domain/errors"
	"github.com/optishop/payments/internal/domain/notification"
	"github.com/optishop/payments/internal/domain/payment"
	"github.com/google/uuid"
)

// --- Payment Repository Mock ---

// MockPaymentRepository is an in-memory implementation of payment.Repository.
// ApplyStatus mirrors the conditional-update semantics of the postgres
// repository: only pending rows transition, under a single lock.
type MockPaymentRepository struct {
	mu       sync.Mutex
	payments map[uuid.UUID]*payment.Payment
	byRef    map[string]*payment.Payment

	CreateFunc      func(ctx context.Context, p *payment.Payment) error
	ApplyStatusFunc func(ctx context.Context, ref string, status payment.Status, providerResourceID string) (bool, error)

	ApplyStatusCalls int
}

func NewMockPaymentRepository() *MockPaymentRepository {
	return &MockPaymentRepository{
		payments: make(map[uuid.UUID]*payment.Payment),
		byRef:    make(map[string]*payment.Payment),
	}
}

// AddPayment pre-populates the mock with a payment.
func (m *MockPaymentRepository) AddPayment(p *payment.Payment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payments[p.ID] = p
	m.byRef[p.ExternalReference] = p
}

func (m *MockPaymentRepository) Create(ctx context.Context, p *payment.Payment) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, p)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.byRef[p.ExternalReference]; exists {
		return domainErrors.ErrDuplicateExternalReference
	}
	m.payments[p.ID] = p
	m.byRef[p.ExternalReference] = p
	return nil
}

func (m *MockPaymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*payment.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return nil, domainErrors.ErrPaymentNotFound
	}
	return p, nil
}

func (m *MockPaymentRepository) GetByExternalReference(ctx context.Context, ref string) (*payment.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byRef[ref]
	if !ok {
		return nil, domainErrors.ErrPaymentNotFound
	}
	return p, nil
}

func (m *MockPaymentRepository) Update(ctx context.Context, p *payment.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.payments[p.ID]; !ok {
		return domainErrors.ErrPaymentNotFound
	}
	m.payments[p.ID] = p
	m.byRef[p.ExternalReference] = p
	return nil
}

func (m *MockPaymentRepository) ApplyStatus(ctx context.Context, ref string, status payment.Status, providerResourceID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ApplyStatusCalls++
	if m.ApplyStatusFunc != nil {
		return m.ApplyStatusFunc(ctx, ref, status, providerResourceID)
	}
	p, ok := m.byRef[ref]
	if !ok || p.Status != payment.StatusPending {
		return false, nil
	}
	if providerResourceID != "" && p.ProviderResourceID == nil {
		rid := providerResourceID
		p.ProviderResourceID = &rid
	}
	if status.IsFinal() {
		p.Status = status
		now := time.Now()
		p.DecidedAt = &now
	}
	p.UpdatedAt = time.Now()
	return true, nil
}

func (m *MockPaymentRepository) ListPendingWithResource(ctx context.Context, limit int) ([]*payment.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*payment.Payment
	for _, p := range m.payments {
		if p.Status == payment.StatusPending && p.ProviderResourceID != nil {
			out = append(out, p)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (m *MockPaymentRepository) ListPendingWithoutResource(ctx context.Context, limit int) ([]*payment.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*payment.Payment
	for _, p := range m.payments {
		if p.Status == payment.StatusPending && p.ProviderResourceID == nil && !p.Method.IsManual() {
			out = append(out, p)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (m *MockPaymentRepository) CountPending(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for _, p := range m.payments {
		if p.Status == payment.StatusPending {
			count++
		}
	}
	return count, nil
}

func (m *MockPaymentRepository) List(ctx context.Context, filter payment.ListFilter) ([]*payment.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*payment.Payment
	for _, p := range m.payments {
		if filter.Status != nil && p.Status != *filter.Status {
			continue
		}
		if filter.SaleReference != nil && p.SaleReference != *filter.SaleReference {
			continue
		}
		if filter.BranchID != nil && p.BranchID != *filter.BranchID {
			continue
		}
		if filter.Method != nil && p.Method != *filter.Method {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// --- Notification Log Mock ---

// MockNotificationLog is an in-memory implementation of
// notification.LogRepository.
type MockNotificationLog struct {
	mu      sync.Mutex
	Entries []*notification.LogEntry
}

func NewMockNotificationLog() *MockNotificationLog {
	return &MockNotificationLog{}
}

func (m *MockNotificationLog) Insert(ctx context.Context, entry *notification.LogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Entries = append(m.Entries, entry)
	return nil
}

func (m *MockNotificationLog) MarkHandled(ctx context.Context, id uuid.UUID, outcome string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.Entries {
		if e.ID == id {
			e.Status = notification.LogHandled
			e.Outcome = outcome
			now := time.Now()
			e.HandledAt = &now
		}
	}
	return nil
}

func (m *MockNotificationLog) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.Entries {
		if e.ID == id {
			e.Status = notification.LogHandleFailed
			e.Outcome = reason
			now := time.Now()
			e.HandledAt = &now
		}
	}
	return nil
}

func (m *MockNotificationLog) ListByResource(ctx context.Context, kind notification.Kind, resourceID string) ([]*notification.LogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*notification.LogEntry
	for _, e := range m.Entries {
		if e.Kind == kind && e.ResourceID == resourceID {
			out = append(out, e)
		}
	}
	return out, nil
}

// Last returns the most recent entry, or nil.
func (m *MockNotificationLog) Last() *notification.LogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Entries) == 0 {
		return nil
	}
	return m.Entries[len(m.Entries)-1]
}

// --- Transaction Manager Mock ---

// MockTxManager runs the function directly, without a real transaction.
type MockTxManager struct {
	WithTransactionFunc func(ctx context.Context, fn func(ctx context.Context) error) error
}

func NewMockTxManager() *MockTxManager {
	return &MockTxManager{}
}

func (m *MockTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if m.WithTransactionFunc != nil {
		return m.WithTransactionFunc(ctx, fn)
	}
	return fn(ctx)
}

// --- Deduper Mock ---

// MockDeduper is an in-memory deduper.
type MockDeduper struct {
	mu   sync.Mutex
	seen map[string]bool

	SeenErr error
}

func NewMockDeduper() *MockDeduper {
	return &MockDeduper{seen: make(map[string]bool)}
}

func (m *MockDeduper) Seen(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SeenErr != nil {
		return false, m.SeenErr
	}
	return m.seen[key], nil
}

func (m *MockDeduper) Mark(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen[key] = true
	return nil
}
