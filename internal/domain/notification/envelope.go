package notification

import (
	"encoding/json"
	"net/url"
	"strconv"
	"strings"
)

// Kind identifies the provider resource a notification refers to.
type Kind string

const (
	KindPayment       Kind = "payment"
	KindMerchantOrder Kind = "merchant_order"
	KindOrder         Kind = "order"
	KindUnsupported   Kind = "unsupported"
)

// Envelope is the normalized form of an inbound provider notification.
// The provider delivers several wire shapes (webhook body, instant
// notification query string); everything downstream of the classifier
// works on this one shape.
type Envelope struct {
	Kind       Kind
	ResourceID string

	// For order notifications the status and the correlation key travel in
	// the notification itself, so no detail fetch is needed.
	RawStatus         string
	ExternalReference string

	// Tenant / checkout scoping parameters, kept for the notification log.
	TenantRef     string
	PreferenceRef string
}

// webhookBody mirrors the union of fields the provider may place in a
// webhook delivery.
type webhookBody struct {
	Type   string `json:"type"`
	Action string `json:"action"`
	Topic  string `json:"topic"`
	ID     any    `json:"id"`
	Data   struct {
		ID any `json:"id"`
	} `json:"data"`
	Payment struct {
		ID any `json:"id"`
	} `json:"payment"`
	IntentType        string `json:"intent_type"`
	Status            string `json:"status"`
	ExternalReference string `json:"external_reference"`
}

// ClassifyBody resolves a webhook JSON body into an Envelope. Unparseable
// or unrecognized deliveries classify as unsupported; the caller acks them
// as a no-op so the provider does not retry.
func ClassifyBody(raw []byte) Envelope {
	var body webhookBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return Envelope{Kind: KindUnsupported}
	}

	kind := kindFromTopic(firstNonEmpty(body.Type, body.Topic, body.Action, body.IntentType))

	// Direct payment-intent deliveries carry a payment id but no declared
	// type; default those to payment.
	if kind == "" {
		if asString(body.Payment.ID) != "" || asString(body.Data.ID) != "" {
			kind = KindPayment
		} else {
			return Envelope{Kind: KindUnsupported}
		}
	}
	if kind == KindUnsupported {
		return Envelope{Kind: KindUnsupported}
	}

	env := Envelope{
		Kind:              kind,
		ResourceID:        firstNonEmpty(asString(body.Data.ID), asString(body.Payment.ID), asString(body.ID)),
		RawStatus:         body.Status,
		ExternalReference: body.ExternalReference,
	}
	return env
}

// ClassifyQuery resolves instant-notification query parameters into an
// Envelope. The provider redirects with `topic` and `id` (or `data.id`),
// plus checkout and tenant scoping parameters.
func ClassifyQuery(q url.Values) Envelope {
	kind := kindFromTopic(q.Get("topic"))
	if kind == "" || kind == KindUnsupported {
		return Envelope{Kind: KindUnsupported}
	}
	return Envelope{
		Kind:          kind,
		ResourceID:    firstNonEmpty(q.Get("data.id"), q.Get("id")),
		TenantRef:     q.Get("client_id"),
		PreferenceRef: q.Get("preference_id"),
	}
}

// kindFromTopic maps a declared type/topic/action value onto a Kind.
// Action values look like "payment.updated"; topics are bare words.
func kindFromTopic(topic string) Kind {
	switch {
	case topic == "":
		return ""
	case strings.HasPrefix(topic, "merchant_order"):
		return KindMerchantOrder
	case strings.HasPrefix(topic, "payment"):
		return KindPayment
	case strings.HasPrefix(topic, "order"):
		return KindOrder
	default:
		return KindUnsupported
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// asString renders a provider id field, which arrives as either a JSON
// string or a number depending on the event shape.
func asString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	default:
		return ""
	}
}
