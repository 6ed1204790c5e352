package provider

import (
	"context"
)

// Client is the read API of the payment provider. Notifications often carry
// only a resource id; the reconciler fetches the full resource through this
// interface before deciding anything.
type Client interface {
	// GetPayment fetches a payment resource by the provider's id.
	GetPayment(ctx context.Context, resourceID string) (*PaymentDetail, error)
	// GetMerchantOrder fetches a merchant order resource by the provider's id.
	GetMerchantOrder(ctx context.Context, resourceID string) (*MerchantOrderDetail, error)
	// SearchPaymentsByReference looks up payment resources by the external
	// reference handed to the provider at checkout creation. Used by the
	// polling reconciler for payments whose webhook never arrived.
	SearchPaymentsByReference(ctx context.Context, externalReference string) ([]*PaymentDetail, error)
}

// PaymentDetail is the subset of the provider payment resource the
// reconciler needs.
type PaymentDetail struct {
	ID                string            `json:"id"`
	Status            string            `json:"status"`
	ExternalReference string            `json:"external_reference"`
	Metadata          map[string]string `json:"metadata"`
	AdditionalInfo    AdditionalInfo    `json:"additional_info"`
	OrderID           string            `json:"order_id"`
}

// AdditionalInfo carries the free-form block some checkout integrations
// stuff the correlation key into instead of the primary field.
type AdditionalInfo struct {
	ExternalReference string `json:"external_reference"`
}

// CorrelationKey resolves the external reference across the three places
// the provider may put it: the primary field, the metadata map, and the
// additional-info block, in that priority order.
func (d *PaymentDetail) CorrelationKey() string {
	if d.ExternalReference != "" {
		return d.ExternalReference
	}
	if ref := d.Metadata["external_reference"]; ref != "" {
		return ref
	}
	return d.AdditionalInfo.ExternalReference
}

// MerchantOrderDetail is the subset of the provider merchant-order resource
// the reconciler needs.
type MerchantOrderDetail struct {
	ID                string `json:"id"`
	Status            string `json:"status"`
	OrderStatus       string `json:"order_status"`
	ExternalReference string `json:"external_reference"`
}
