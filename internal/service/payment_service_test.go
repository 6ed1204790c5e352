package service_test

import (
	"context"
	"testing"

	domainErrors "github.com/optishop/payments/internal/domain/errors"
	"github.com/optishop/payments/internal/domain/payment"
	"github.com/optishop/payments/internal/service"
	"github.com/optishop/payments/internal/testutil"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreatePayment(t *testing.T) {
	ctx := context.Background()
	repo := testutil.NewMockPaymentRepository()
	svc := service.NewPaymentService(repo, testutil.NewMockTxManager(), zerolog.Nop())

	p, err := svc.CreatePayment(ctx, service.CreatePaymentRequest{
		SaleReference: "sale-100",
		BranchID:      "branch-norte",
		Method:        payment.MethodWallet,
		Amount:        decimal.NewFromFloat(2350.50),
	})
	require.NoError(t, err)
	assert.Equal(t, payment.StatusPending, p.Status)
	assert.NotEmpty(t, p.ExternalReference)

	stored, err := repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "sale-100", stored.SaleReference)
}

func TestCreatePayment_InvalidMethod(t *testing.T) {
	svc := service.NewPaymentService(testutil.NewMockPaymentRepository(), testutil.NewMockTxManager(), zerolog.Nop())
	_, err := svc.CreatePayment(context.Background(), service.CreatePaymentRequest{
		SaleReference: "sale-100",
		Method:        payment.Method("cheque"),
		Amount:        decimal.NewFromInt(10),
	})
	assert.ErrorIs(t, err, domainErrors.ErrInvalidMethod)
}

func TestConfirmPayment_Cash(t *testing.T) {
	ctx := context.Background()
	repo := testutil.NewMockPaymentRepository()
	p := testutil.NewTestPayment("sale-1", payment.MethodCash, "ref-cash")
	repo.AddPayment(p)

	svc := service.NewPaymentService(repo, testutil.NewMockTxManager(), zerolog.Nop())

	confirmed, err := svc.ConfirmPayment(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusApproved, confirmed.Status)

	// Confirming twice fails: the record is already final.
	_, err = svc.ConfirmPayment(ctx, p.ID)
	assert.ErrorIs(t, err, domainErrors.ErrAlreadyFinal)
}

func TestConfirmPayment_OnlineMethodRejected(t *testing.T) {
	ctx := context.Background()
	repo := testutil.NewMockPaymentRepository()
	p := testutil.NewTestPayment("sale-1", payment.MethodWallet, "ref-wallet")
	repo.AddPayment(p)

	svc := service.NewPaymentService(repo, testutil.NewMockTxManager(), zerolog.Nop())

	_, err := svc.ConfirmPayment(ctx, p.ID)
	assert.ErrorIs(t, err, domainErrors.ErrNotManualMethod)
}

func TestConfirmPayment_NotFound(t *testing.T) {
	svc := service.NewPaymentService(testutil.NewMockPaymentRepository(), testutil.NewMockTxManager(), zerolog.Nop())
	_, err := svc.ConfirmPayment(context.Background(), uuid.New())
	assert.ErrorIs(t, err, domainErrors.ErrPaymentNotFound)
}

func TestListPayments_Filters(t *testing.T) {
	ctx := context.Background()
	repo := testutil.NewMockPaymentRepository()
	repo.AddPayment(testutil.NewTestPayment("sale-1", payment.MethodCash, "r1"))
	repo.AddPayment(testutil.NewTestPayment("sale-2", payment.MethodWallet, "r2"))
	repo.AddPayment(testutil.NewSettledPayment("sale-3", payment.MethodWallet, "r3", payment.StatusApproved))

	svc := service.NewPaymentService(repo, testutil.NewMockTxManager(), zerolog.Nop())

	status := payment.StatusPending
	pending, err := svc.ListPayments(ctx, payment.ListFilter{Status: &status})
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	method := payment.MethodWallet
	wallets, err := svc.ListPayments(ctx, payment.ListFilter{Method: &method})
	require.NoError(t, err)
	assert.Len(t, wallets, 2)
}
