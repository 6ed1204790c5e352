package notification

import (
	"strings"

	"github.com/optishop/payments/internal/domain/payment"
)

// approvedStatuses and rejectedStatuses are the provider status strings
// that carry an explicit settlement signal. merchant_order resources report
// "closed"/"processed" where payment resources report "approved"/"accredited".
var (
	approvedStatuses = map[string]bool{
		"approved":   true,
		"processed":  true,
		"closed":     true,
		"accredited": true,
	}
	rejectedStatuses = map[string]bool{
		"rejected":            true,
		"cancelled":           true,
		"cancelled_by_player": true,
	}
)

// TranslateStatus maps the provider's status vocabulary onto the internal
// three-valued status. Unknown or future provider statuses deliberately map
// to pending: financial state is never advanced without an explicit,
// recognized signal.
func TranslateStatus(raw string) payment.Status {
	s := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case approvedStatuses[s]:
		return payment.StatusApproved
	case rejectedStatuses[s]:
		return payment.StatusRejected
	default:
		return payment.StatusPending
	}
}
