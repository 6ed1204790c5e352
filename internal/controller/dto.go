package controller

import (
	"time"

	"github.com/optishop/payments/internal/domain/payment"
	"github.com/shopspring/decimal"
)

// --- Request DTOs ---
// These DTOs handle HTTP/JSON concerns (string amounts, validation tags).
// Controllers convert them to service layer inputs before calling business
// logic.

// CreatePaymentRequest holds the input for registering a payment at sale time.
type CreatePaymentRequest struct {
	SaleReference string `json:"sale_reference" validate:"required"`
	BranchID      string `json:"branch_id" validate:"required"`
	Method        string `json:"method" validate:"required,oneof=cash debit_card credit_card transfer wallet terminal"`
	Amount        string `json:"amount" validate:"required"`
}

// --- Response DTOs ---

// PaymentResponse represents a payment in API responses.
type PaymentResponse struct {
	ID                 string     `json:"id"`
	SaleReference      string     `json:"sale_reference"`
	BranchID           string     `json:"branch_id"`
	Method             string     `json:"method"`
	Amount             string     `json:"amount"`
	ExternalReference  string     `json:"external_reference"`
	ProviderResourceID *string    `json:"provider_resource_id,omitempty"`
	Status             string     `json:"status"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
	DecidedAt          *time.Time `json:"decided_at,omitempty"`
}

// WebhookResponse acknowledges a provider notification.
type WebhookResponse struct {
	Status string `json:"status"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// --- Conversion helpers ---

// FromPayment converts a domain payment to API response.
func FromPayment(p *payment.Payment) *PaymentResponse {
	return &PaymentResponse{
		ID:                 p.ID.String(),
		SaleReference:      p.SaleReference,
		BranchID:           p.BranchID,
		Method:             string(p.Method),
		Amount:             p.Amount.StringFixed(2),
		ExternalReference:  p.ExternalReference,
		ProviderResourceID: p.ProviderResourceID,
		Status:             string(p.Status),
		CreatedAt:          p.CreatedAt,
		UpdatedAt:          p.UpdatedAt,
		DecidedAt:          p.DecidedAt,
	}
}

// parseAmount parses a decimal money amount from its string form.
func parseAmount(s string) (decimal.Decimal, bool) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}
