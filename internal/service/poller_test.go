package service_test

import (
	"context"
	"testing"
	"time"

	domainErrors "github.com/optishop/payments/internal/domain/errors"
	"github.com/optishop/payments/internal/domain/payment"
	"github.com/optishop/payments/internal/provider"
	"github.com/optishop/payments/internal/service"
	"github.com/optishop/payments/internal/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPollOnce_SettlesStalePending(t *testing.T) {
	ctx := context.Background()
	repo := testutil.NewMockPaymentRepository()

	stale := testutil.NewTestPayment("sale-1", payment.MethodWallet, "pay_stale")
	stale.ProviderResourceID = testutil.StrPtr("555")
	repo.AddPayment(stale)

	// Pending without a provider resource and unknown to the provider:
	// the reference search comes back empty and the record stays pending.
	repo.AddPayment(testutil.NewTestPayment("sale-2", payment.MethodWallet, "pay_young"))

	client := provider.NewMockClient()
	client.AddPayment(&provider.PaymentDetail{ID: "555", Status: "approved", ExternalReference: "pay_stale"})

	rec := service.NewReconciler(repo, client, nil, nil, zerolog.Nop())
	poller := service.NewPendingPoller(rec, time.Minute, 50, zerolog.Nop())

	require.NoError(t, poller.PollOnce(ctx))

	settled, _ := repo.GetByExternalReference(ctx, "pay_stale")
	assert.Equal(t, payment.StatusApproved, settled.Status)

	untouched, _ := repo.GetByExternalReference(ctx, "pay_young")
	assert.Equal(t, payment.StatusPending, untouched.Status)
}

func TestPollOnce_ProviderDownAbortsPass(t *testing.T) {
	ctx := context.Background()
	repo := testutil.NewMockPaymentRepository()

	p := testutil.NewTestPayment("sale-1", payment.MethodWallet, "pay_1")
	p.ProviderResourceID = testutil.StrPtr("555")
	repo.AddPayment(p)

	client := provider.NewMockClient(provider.WithFailure(domainErrors.ErrProviderUnavailable))
	rec := service.NewReconciler(repo, client, nil, nil, zerolog.Nop())
	poller := service.NewPendingPoller(rec, time.Minute, 50, zerolog.Nop())

	err := poller.PollOnce(ctx)
	assert.ErrorIs(t, err, domainErrors.ErrProviderUnavailable)
}

func TestPollOnce_ResourceGoneIsNotAnError(t *testing.T) {
	ctx := context.Background()
	repo := testutil.NewMockPaymentRepository()

	p := testutil.NewTestPayment("sale-1", payment.MethodWallet, "pay_1")
	p.ProviderResourceID = testutil.StrPtr("gone")
	repo.AddPayment(p)

	client := provider.NewMockClient() // resource not registered
	rec := service.NewReconciler(repo, client, nil, nil, zerolog.Nop())
	poller := service.NewPendingPoller(rec, time.Minute, 50, zerolog.Nop())

	assert.NoError(t, poller.PollOnce(ctx))
}

func TestPollOnce_LostWebhookResolvedByReference(t *testing.T) {
	// The webhook never arrived, so no resource id was ever recorded. The
	// poller falls back to searching the provider by external reference.
	ctx := context.Background()
	repo := testutil.NewMockPaymentRepository()
	repo.AddPayment(testutil.NewTestPayment("sale-lost", payment.MethodWallet, "pay_lost"))

	client := provider.NewMockClient()
	client.AddPayment(&provider.PaymentDetail{ID: "777", Status: "approved", ExternalReference: "pay_lost"})

	rec := service.NewReconciler(repo, client, nil, nil, zerolog.Nop())
	poller := service.NewPendingPoller(rec, time.Minute, 50, zerolog.Nop())

	require.NoError(t, poller.PollOnce(ctx))

	settled, _ := repo.GetByExternalReference(ctx, "pay_lost")
	assert.Equal(t, payment.StatusApproved, settled.Status)
	require.NotNil(t, settled.ProviderResourceID)
	assert.Equal(t, "777", *settled.ProviderResourceID)
}

func TestPollOnce_ManualMethodsNotSearched(t *testing.T) {
	// Cash and terminal payments settle at the counter; the pass must not
	// query the provider for them at all.
	ctx := context.Background()
	repo := testutil.NewMockPaymentRepository()
	repo.AddPayment(testutil.NewTestPayment("sale-cash", payment.MethodCash, "pay_cash"))

	client := provider.NewMockClient(provider.WithFailure(domainErrors.ErrProviderUnavailable))
	rec := service.NewReconciler(repo, client, nil, nil, zerolog.Nop())
	poller := service.NewPendingPoller(rec, time.Minute, 50, zerolog.Nop())

	require.NoError(t, poller.PollOnce(ctx))

	p, _ := repo.GetByExternalReference(ctx, "pay_cash")
	assert.Equal(t, payment.StatusPending, p.Status)
}

func TestRun_StopsOnCancel(t *testing.T) {
	repo := testutil.NewMockPaymentRepository()
	client := provider.NewMockClient()
	rec := service.NewReconciler(repo, client, nil, nil, zerolog.Nop())
	poller := service.NewPendingPoller(rec, 10*time.Millisecond, 10, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := poller.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
