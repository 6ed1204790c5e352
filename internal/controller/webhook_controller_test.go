package controller

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/optishop/payments/internal/domain/errors"
	"github.com/optishop/payments/internal/domain/payment"
	"github.com/optishop/payments/internal/provider"
	"github.com/optishop/payments/internal/service"
	"github.com/optishop/payments/internal/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type webhookFixture struct {
	repo    *testutil.MockPaymentRepository
	client  *provider.MockClient
	handler *WebhookController
}

func newWebhookFixture(t *testing.T, ackErrors bool) *webhookFixture {
	t.Helper()
	repo := testutil.NewMockPaymentRepository()
	client := provider.NewMockClient()
	rec := service.NewReconciler(repo, client, testutil.NewMockNotificationLog(), nil, zerolog.Nop())
	return &webhookFixture{
		repo:    repo,
		client:  client,
		handler: NewWebhookController(rec, nil, ackErrors, zerolog.Nop()),
	}
}

func TestWebhook_PaymentApproved(t *testing.T) {
	f := newWebhookFixture(t, false)
	f.repo.AddPayment(testutil.NewTestPayment("sale-1", payment.MethodCreditCard, "ref-1"))
	f.client.AddPayment(&provider.PaymentDetail{
		ID:                "12345",
		Status:            "approved",
		ExternalReference: "ref-1",
	})

	body := `{"type":"payment","data":{"id":"12345"}}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/provider", strings.NewReader(body))
	w := httptest.NewRecorder()

	f.handler.Receive(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp WebhookResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "applied", resp.Status)

	p, err := f.repo.GetByExternalReference(req.Context(), "ref-1")
	require.NoError(t, err)
	assert.Equal(t, payment.StatusApproved, p.Status)
}

func TestWebhook_QueryParams(t *testing.T) {
	f := newWebhookFixture(t, false)
	f.repo.AddPayment(testutil.NewTestPayment("sale-2", payment.MethodWallet, "ref-2"))
	f.client.AddPayment(&provider.PaymentDetail{
		ID:                "777",
		Status:            "approved",
		ExternalReference: "ref-2",
	})

	req := httptest.NewRequest(http.MethodGet, "/webhooks/provider?topic=payment&id=777", nil)
	w := httptest.NewRecorder()

	f.handler.ReceiveQuery(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	p, err := f.repo.GetByExternalReference(req.Context(), "ref-2")
	require.NoError(t, err)
	assert.Equal(t, payment.StatusApproved, p.Status)
}

func TestWebhook_UnsupportedKindAcked(t *testing.T) {
	f := newWebhookFixture(t, false)

	body := `{"type":"chargeback","data":{"id":"999"}}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/provider", strings.NewReader(body))
	w := httptest.NewRecorder()

	f.handler.Receive(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ignored")
	assert.Zero(t, f.repo.ApplyStatusCalls)
}

func TestWebhook_MalformedBodyAcked(t *testing.T) {
	f := newWebhookFixture(t, false)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/provider", strings.NewReader("not json"))
	w := httptest.NewRecorder()

	f.handler.Receive(w, req)

	// Malformed payloads classify as unsupported; redelivery would never help.
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestWebhook_ResourceGoneReturns404(t *testing.T) {
	f := newWebhookFixture(t, false)

	body := `{"type":"payment","data":{"id":"no-such"}}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/provider", strings.NewReader(body))
	w := httptest.NewRecorder()

	f.handler.Receive(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "unknown_resource")
}

func TestWebhook_ProviderDownReturns500(t *testing.T) {
	f := newWebhookFixture(t, false)
	f.client.SetFailure(errors.ErrProviderUnavailable)

	body := `{"type":"payment","data":{"id":"123"}}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/provider", strings.NewReader(body))
	w := httptest.NewRecorder()

	f.handler.Receive(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestWebhook_ProviderDownAckedWhenConfigured(t *testing.T) {
	f := newWebhookFixture(t, true)
	f.client.SetFailure(errors.ErrProviderUnavailable)

	body := `{"type":"payment","data":{"id":"123"}}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/provider", strings.NewReader(body))
	w := httptest.NewRecorder()

	f.handler.Receive(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "accepted")
}

func TestWebhook_RedeliveryAfterSettlementAcked(t *testing.T) {
	f := newWebhookFixture(t, false)
	f.repo.AddPayment(testutil.NewSettledPayment("sale-3", payment.MethodDebitCard, "ref-3", payment.StatusApproved))
	f.client.AddPayment(&provider.PaymentDetail{
		ID:                "555",
		Status:            "approved",
		ExternalReference: "ref-3",
	})

	body := `{"type":"payment","data":{"id":"555"}}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/provider", strings.NewReader(body))
	w := httptest.NewRecorder()

	f.handler.Receive(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "already_final")
}
