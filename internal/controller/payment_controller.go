package controller

import (
	"net/http"
	"strconv"

	"github.com/optishop/payments/internal/domain/payment"
	"github.com/optishop/payments/internal/infrastructure/observability"
	"github.com/optishop/payments/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// PaymentController handles payment-related HTTP requests.
type PaymentController struct {
	paymentService *service.PaymentService
	metrics        *observability.Metrics
}

// NewPaymentController creates a new PaymentController. metrics is optional.
func NewPaymentController(paymentService *service.PaymentService, metrics *observability.Metrics) *PaymentController {
	return &PaymentController{paymentService: paymentService, metrics: metrics}
}

func (h *PaymentController) countPayment(p *payment.Payment) {
	if h.metrics != nil {
		h.metrics.PaymentsTotal.WithLabelValues(string(p.Method), string(p.Status)).Inc()
	}
}

func (h *PaymentController) countError(operation string, err error) {
	if h.metrics != nil {
		h.metrics.PaymentErrors.WithLabelValues(operation, errorCode(err)).Inc()
	}
}

// CreatePayment handles POST /api/v1/payments
func (h *PaymentController) CreatePayment(w http.ResponseWriter, r *http.Request) {
	var req CreatePaymentRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	amount, ok := parseAmount(req.Amount)
	if !ok {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid amount", Code: "invalid_amount"})
		return
	}

	p, err := h.paymentService.CreatePayment(r.Context(), service.CreatePaymentRequest{
		SaleReference: req.SaleReference,
		BranchID:      req.BranchID,
		Method:        payment.Method(req.Method),
		Amount:        amount,
	})
	if err != nil {
		h.countError("create", err)
		writeError(w, err)
		return
	}

	h.countPayment(p)
	writeJSON(w, http.StatusCreated, FromPayment(p))
}

// GetPayment handles GET /api/v1/payments/{id}
func (h *PaymentController) GetPayment(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid payment id", Code: "invalid_id"})
		return
	}

	p, err := h.paymentService.GetPayment(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, FromPayment(p))
}

// ConfirmPayment handles POST /api/v1/payments/{id}/confirm
// for over-the-counter methods that never receive provider notifications.
func (h *PaymentController) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid payment id", Code: "invalid_id"})
		return
	}

	p, err := h.paymentService.ConfirmPayment(r.Context(), id)
	if err != nil {
		h.countError("confirm", err)
		writeError(w, err)
		return
	}

	h.countPayment(p)
	writeJSON(w, http.StatusOK, FromPayment(p))
}

// ListPayments handles GET /api/v1/payments
func (h *PaymentController) ListPayments(w http.ResponseWriter, r *http.Request) {
	filter := payment.ListFilter{}

	if s := r.URL.Query().Get("status"); s != "" {
		status := payment.Status(s)
		filter.Status = &status
	}
	if s := r.URL.Query().Get("sale_reference"); s != "" {
		filter.SaleReference = &s
	}
	if s := r.URL.Query().Get("branch_id"); s != "" {
		filter.BranchID = &s
	}
	if s := r.URL.Query().Get("method"); s != "" {
		method := payment.Method(s)
		filter.Method = &method
	}
	filter.Limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	filter.Offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	filter.SortBy = r.URL.Query().Get("sort_by")
	filter.SortOrder = r.URL.Query().Get("sort_order")

	payments, err := h.paymentService.ListPayments(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := make([]*PaymentResponse, 0, len(payments))
	for _, p := range payments {
		resp = append(resp, FromPayment(p))
	}
	writeJSON(w, http.StatusOK, resp)
}
