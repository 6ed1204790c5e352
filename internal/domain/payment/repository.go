package payment

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines the interface for payment persistence
type Repository interface {
	// Create creates a new payment
	Create(ctx context.Context, payment *Payment) error

	// GetByID retrieves a payment by ID
	GetByID(ctx context.Context, id uuid.UUID) (*Payment, error)

	// GetByExternalReference retrieves a payment by its correlation key
	GetByExternalReference(ctx context.Context, ref string) (*Payment, error)

	// Update updates an existing payment
	Update(ctx context.Context, payment *Payment) error

	// ApplyStatus conditionally transitions the payment addressed by the
	// external reference. The status is applied only if the row is still
	// pending, as a single atomic update, so concurrent deliveries cannot
	// race to an inconsistent state. The provider resource id is persisted
	// on first match. Returns whether a row was transitioned.
	ApplyStatus(ctx context.Context, ref string, status Status, providerResourceID string) (bool, error)

	// ListPendingWithResource lists pending payments that already have a
	// provider resource id, for polling reconciliation.
	ListPendingWithResource(ctx context.Context, limit int) ([]*Payment, error)

	// ListPendingWithoutResource lists pending provider-settled payments
	// that never recorded a provider resource id, for reference-search
	// reconciliation. Manual methods are excluded.
	ListPendingWithoutResource(ctx context.Context, limit int) ([]*Payment, error)

	// CountPending counts payments still awaiting settlement.
	CountPending(ctx context.Context) (int64, error)

	// List lists payments with filters
	List(ctx context.Context, filter ListFilter) ([]*Payment, error)
}

// ListFilter defines filters for listing payments
type ListFilter struct {
	SaleReference *string
	BranchID      *string
	Status        *Status
	Method        *Method
	Limit         int
	Offset        int
	SortBy        string
	SortOrder     string
}
