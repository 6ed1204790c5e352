package testutil

import (
	"time"

	"github.com/optishop/payments/internal/domain/payment"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func NewTestPayment(saleRef string, method payment.Method, externalRef string) *payment.Payment {
	now := time.Now()
	return &payment.Payment{
		ID:                uuid.New(),
		SaleReference:     saleRef,
		BranchID:          "branch-centro",
		Method:            method,
		Amount:            decimal.NewFromInt(1500),
		ExternalReference: externalRef,
		Status:            payment.StatusPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func NewSettledPayment(saleRef string, method payment.Method, externalRef string, status payment.Status) *payment.Payment {
	p := NewTestPayment(saleRef, method, externalRef)
	p.Status = status
	decidedAt := time.Now()
	p.DecidedAt = &decidedAt
	return p
}

func StrPtr(s string) *string {
	return &s
}
