package controller

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/optishop/payments/internal/domain/payment"
	"github.com/optishop/payments/internal/infrastructure/observability"
	"github.com/optishop/payments/internal/service"
	"github.com/optishop/payments/internal/testutil"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPaymentRouter(repo *testutil.MockPaymentRepository) *chi.Mux {
	handler := NewPaymentController(service.NewPaymentService(repo, testutil.NewMockTxManager(), zerolog.Nop()), nil)
	r := chi.NewRouter()
	r.Post("/payments", handler.CreatePayment)
	r.Get("/payments", handler.ListPayments)
	r.Get("/payments/{id}", handler.GetPayment)
	r.Post("/payments/{id}/confirm", handler.ConfirmPayment)
	return r
}

func TestPaymentController_CreatePayment(t *testing.T) {
	repo := testutil.NewMockPaymentRepository()
	router := newPaymentRouter(repo)

	body, _ := json.Marshal(CreatePaymentRequest{
		SaleReference: "sale-42",
		BranchID:      "downtown",
		Method:        "wallet",
		Amount:        "149.90",
	})
	req := httptest.NewRequest(http.MethodPost, "/payments", bytes.NewReader(body))
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp PaymentResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "sale-42", resp.SaleReference)
	assert.Equal(t, "pending", resp.Status)
	assert.Equal(t, "149.90", resp.Amount)
	assert.NotEmpty(t, resp.ExternalReference)
}

func TestPaymentController_CreatePayment_InvalidMethod(t *testing.T) {
	router := newPaymentRouter(testutil.NewMockPaymentRepository())

	body, _ := json.Marshal(CreatePaymentRequest{
		SaleReference: "sale-42",
		BranchID:      "downtown",
		Method:        "iou",
		Amount:        "10.00",
	})
	req := httptest.NewRequest(http.MethodPost, "/payments", bytes.NewReader(body))
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPaymentController_CreatePayment_BadAmount(t *testing.T) {
	router := newPaymentRouter(testutil.NewMockPaymentRepository())

	body, _ := json.Marshal(CreatePaymentRequest{
		SaleReference: "sale-42",
		BranchID:      "downtown",
		Method:        "cash",
		Amount:        "ten bucks",
	})
	req := httptest.NewRequest(http.MethodPost, "/payments", bytes.NewReader(body))
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid_amount")
}

func TestPaymentController_GetPayment(t *testing.T) {
	repo := testutil.NewMockPaymentRepository()
	p := testutil.NewTestPayment("sale-7", payment.MethodCreditCard, "ref-7")
	repo.AddPayment(p)
	router := newPaymentRouter(repo)

	req := httptest.NewRequest(http.MethodGet, "/payments/"+p.ID.String(), nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ref-7")
}

func TestPaymentController_GetPayment_NotFound(t *testing.T) {
	router := newPaymentRouter(testutil.NewMockPaymentRepository())

	req := httptest.NewRequest(http.MethodGet, "/payments/6ba7b810-9dad-11d1-80b4-00c04fd430c8", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPaymentController_ConfirmPayment(t *testing.T) {
	repo := testutil.NewMockPaymentRepository()
	p := testutil.NewTestPayment("sale-8", payment.MethodCash, "ref-8")
	repo.AddPayment(p)
	router := newPaymentRouter(repo)

	req := httptest.NewRequest(http.MethodPost, "/payments/"+p.ID.String()+"/confirm", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"status":"approved"`)
}

func TestPaymentController_ConfirmPayment_NotManual(t *testing.T) {
	repo := testutil.NewMockPaymentRepository()
	p := testutil.NewTestPayment("sale-9", payment.MethodCreditCard, "ref-9")
	repo.AddPayment(p)
	router := newPaymentRouter(repo)

	req := httptest.NewRequest(http.MethodPost, "/payments/"+p.ID.String()+"/confirm", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "not_manual_method")
}

func TestPaymentController_ListPayments(t *testing.T) {
	repo := testutil.NewMockPaymentRepository()
	repo.AddPayment(testutil.NewTestPayment("sale-a", payment.MethodWallet, "ref-a"))
	repo.AddPayment(testutil.NewTestPayment("sale-b", payment.MethodCash, "ref-b"))
	router := newPaymentRouter(repo)

	req := httptest.NewRequest(http.MethodGet, "/payments?limit=10", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp []*PaymentResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Len(t, resp, 2)
}

func TestPaymentController_CountersRecorded(t *testing.T) {
	metrics := observability.NewMetrics("test", prometheus.NewRegistry())
	repo := testutil.NewMockPaymentRepository()
	handler := NewPaymentController(service.NewPaymentService(repo, testutil.NewMockTxManager(), zerolog.Nop()), metrics)
	router := chi.NewRouter()
	router.Post("/payments", handler.CreatePayment)
	router.Post("/payments/{id}/confirm", handler.ConfirmPayment)

	body, _ := json.Marshal(CreatePaymentRequest{
		SaleReference: "sale-m",
		BranchID:      "downtown",
		Method:        "wallet",
		Amount:        "10.00",
	})
	req := httptest.NewRequest(http.MethodPost, "/payments", bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	assert.Equal(t, 1.0, promtestutil.ToFloat64(metrics.PaymentsTotal.WithLabelValues("wallet", "pending")))

	// Confirming an online method fails and lands in the error counter.
	var resp PaymentResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	req = httptest.NewRequest(http.MethodPost, "/payments/"+resp.ID+"/confirm", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	assert.Equal(t, 1.0, promtestutil.ToFloat64(metrics.PaymentErrors.WithLabelValues("confirm", "not_manual_method")))
}
