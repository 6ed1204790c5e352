package payment

import (
	"time"

	"github.com/optishop/payments/internal/domain/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Method represents the payment channel used at the point of sale.
type Method string

const (
	MethodCash       Method = "cash"
	MethodDebitCard  Method = "debit_card"
	MethodCreditCard Method = "credit_card"
	MethodTransfer   Method = "transfer"
	MethodWallet     Method = "wallet"
	MethodTerminal   Method = "terminal"
)

// validMethods is the closed set of accepted payment channels.
var validMethods = map[Method]bool{
	MethodCash:       true,
	MethodDebitCard:  true,
	MethodCreditCard: true,
	MethodTransfer:   true,
	MethodWallet:     true,
	MethodTerminal:   true,
}

// IsValid reports whether m is one of the accepted payment channels.
func (m Method) IsValid() bool {
	return validMethods[m]
}

// IsManual reports whether the method is confirmed over the counter
// instead of through provider notifications.
func (m Method) IsManual() bool {
	return m == MethodCash || m == MethodTerminal
}

// Status represents the payment status in the state machine.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// IsFinal reports whether the status is terminal. Final statuses never
// change, regardless of later notifications.
func (s Status) IsFinal() bool {
	return s == StatusApproved || s == StatusRejected
}

// Payment represents a payment attempt attached to a sale. Online methods
// (wallet, transfer, cards paid through the provider checkout) are settled
// by provider notifications matched on ExternalReference; cash and terminal
// payments are confirmed manually by the cashier.
type Payment struct {
	ID                 uuid.UUID
	SaleReference      string
	BranchID           string
	Method             Method
	Amount             decimal.Decimal
	ExternalReference  string
	ProviderResourceID *string
	Status             Status
	CreatedAt          time.Time
	UpdatedAt          time.Time
	DecidedAt          *time.Time
}

// NewPayment creates a pending payment for a sale. The external reference
// is generated here and handed to the provider at checkout-creation time so
// inbound notifications can be matched back to this record.
func NewPayment(saleReference, branchID string, method Method, amount decimal.Decimal) (*Payment, error) {
	if saleReference == "" {
		return nil, errors.NewValidationError("sale_reference", "cannot be empty")
	}
	if !method.IsValid() {
		return nil, errors.ErrInvalidMethod
	}
	if amount.IsNegative() {
		return nil, errors.NewValidationError("amount", "must not be negative")
	}

	now := time.Now()
	return &Payment{
		ID:                uuid.New(),
		SaleReference:     saleReference,
		BranchID:          branchID,
		Method:            method,
		Amount:            amount,
		ExternalReference: uuid.New().String(),
		Status:            StatusPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

// CanTransitionTo checks if the payment can transition to the given status.
// Only pending payments move; approved and rejected are terminal.
func (p *Payment) CanTransitionTo(newStatus Status) bool {
	if p.Status != StatusPending {
		return false
	}
	return newStatus == StatusApproved || newStatus == StatusRejected
}

// TransitionTo transitions the payment to a new status.
func (p *Payment) TransitionTo(newStatus Status) error {
	if newStatus == StatusPending {
		// pending -> pending is a no-op, not an error
		return nil
	}
	if !p.CanTransitionTo(newStatus) {
		return errors.NewDomainError(
			"invalid_transition",
			"cannot transition from "+string(p.Status)+" to "+string(newStatus),
			errors.ErrInvalidStateTransition,
		)
	}

	p.Status = newStatus
	now := time.Now()
	p.UpdatedAt = now
	p.DecidedAt = &now
	return nil
}

// MarkApproved transitions the payment to approved status.
func (p *Payment) MarkApproved() error {
	return p.TransitionTo(StatusApproved)
}

// MarkRejected transitions the payment to rejected status.
func (p *Payment) MarkRejected() error {
	return p.TransitionTo(StatusRejected)
}

// ConfirmManually approves a payment for over-the-counter methods that
// never receive provider notifications.
func (p *Payment) ConfirmManually() error {
	if !p.Method.IsManual() {
		return errors.ErrNotManualMethod
	}
	if p.Status.IsFinal() {
		return errors.ErrAlreadyFinal
	}
	return p.TransitionTo(StatusApproved)
}

// SetProviderResource records the provider's own identifier for the
// underlying charge, kept once set.
func (p *Payment) SetProviderResource(resourceID string) {
	if p.ProviderResourceID != nil || resourceID == "" {
		return
	}
	p.ProviderResourceID = &resourceID
	p.UpdatedAt = time.Now()
}
