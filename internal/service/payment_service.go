package service

import (
	"context"

	domainErrors "github.com/optishop/payments/internal/domain/errors"
	"github.com/optishop/payments/internal/domain/payment"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// TxManager runs a function inside a storage transaction.
type TxManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// PaymentService handles the management side of payments: creation at sale
// time and manual confirmation of over-the-counter methods.
type PaymentService struct {
	payments payment.Repository
	tx       TxManager
	logger   zerolog.Logger
}

// NewPaymentService creates a new PaymentService. tx is optional; without it
// read-modify-write operations run on plain connections.
func NewPaymentService(payments payment.Repository, tx TxManager, logger zerolog.Logger) *PaymentService {
	return &PaymentService{payments: payments, tx: tx, logger: logger}
}

// CreatePaymentRequest holds the input for creating a payment.
type CreatePaymentRequest struct {
	SaleReference string
	BranchID      string
	Method        payment.Method
	Amount        decimal.Decimal
}

// CreatePayment registers a pending payment for a sale and generates the
// external reference handed to the provider checkout.
func (s *PaymentService) CreatePayment(ctx context.Context, req CreatePaymentRequest) (*payment.Payment, error) {
	p, err := payment.NewPayment(req.SaleReference, req.BranchID, req.Method, req.Amount)
	if err != nil {
		return nil, err
	}
	if err := s.payments.Create(ctx, p); err != nil {
		return nil, err
	}
	s.logger.Info().Str("payment_id", p.ID.String()).Str("sale_reference", p.SaleReference).
		Str("method", string(p.Method)).Msg("payment created")
	return p, nil
}

// ConfirmPayment approves a cash or terminal payment. Those methods never
// receive provider notifications, so the cashier settles them directly.
func (s *PaymentService) ConfirmPayment(ctx context.Context, id uuid.UUID) (*payment.Payment, error) {
	var p *payment.Payment
	confirm := func(ctx context.Context) error {
		var err error
		p, err = s.payments.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if err := p.ConfirmManually(); err != nil {
			return err
		}
		return s.payments.Update(ctx, p)
	}

	var err error
	if s.tx != nil {
		err = s.tx.WithTransaction(ctx, confirm)
	} else {
		err = confirm(ctx)
	}
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("payment_id", p.ID.String()).Msg("payment confirmed manually")
	return p, nil
}

// GetPayment retrieves a payment by id.
func (s *PaymentService) GetPayment(ctx context.Context, id uuid.UUID) (*payment.Payment, error) {
	p, err := s.payments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, domainErrors.ErrPaymentNotFound
	}
	return p, nil
}

// ListPayments lists payments with filters.
func (s *PaymentService) ListPayments(ctx context.Context, filter payment.ListFilter) ([]*payment.Payment, error) {
	return s.payments.List(ctx, filter)
}
