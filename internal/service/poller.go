package service

import (
	"context"
	"errors"
	"time"

	domainErrors "github.com/optishop/payments/internal/domain/errors"
	"github.com/optishop/payments/internal/domain/notification"
	"github.com/rs/zerolog"
)

// PendingPoller is the polling half of reconciliation: webhooks get lost or
// delayed, so stale pending payments are periodically re-checked against
// the provider and settled through the same reconciler path.
type PendingPoller struct {
	reconciler *Reconciler
	interval   time.Duration
	batchSize  int
	logger     zerolog.Logger
}

// NewPendingPoller creates a PendingPoller.
func NewPendingPoller(
	reconciler *Reconciler,
	interval time.Duration,
	batchSize int,
	logger zerolog.Logger,
) *PendingPoller {
	if interval <= 0 {
		interval = time.Minute
	}
	if batchSize <= 0 {
		batchSize = 50
	}
	return &PendingPoller{
		reconciler: reconciler,
		interval:   interval,
		batchSize:  batchSize,
		logger:     logger,
	}
}

// Run polls until the context is cancelled.
func (p *PendingPoller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := p.PollOnce(ctx); err != nil {
				p.logger.Error().Err(err).Msg("polling pass failed")
			}
		}
	}
}

// PollOnce runs a single reconciliation pass over stale pending payments.
// Per-payment failures are logged and the pass continues; only a failure to
// list the batch aborts the pass.
func (p *PendingPoller) PollOnce(ctx context.Context) error {
	pending, err := p.reconciler.payments.ListPendingWithResource(ctx, p.batchSize)
	if err != nil {
		return err
	}

	for _, pay := range pending {
		env := notification.Envelope{
			Kind:       notification.KindPayment,
			ResourceID: *pay.ProviderResourceID,
		}
		outcome, err := p.reconciler.Handle(ctx, env, nil)
		if err != nil {
			if errors.Is(err, domainErrors.ErrProviderUnavailable) {
				// No point hammering a provider that is down; the next tick
				// picks the batch up again.
				return err
			}
			p.logger.Warn().Err(err).Str("payment_id", pay.ID.String()).Msg("poll reconcile failed")
			continue
		}
		if outcome == OutcomeApplied {
			p.logger.Info().Str("payment_id", pay.ID.String()).Msg("stale pending payment settled by polling")
		}
	}

	// Payments whose webhook never arrived have no resource id to re-check;
	// their external reference is searched on the provider instead.
	orphaned, err := p.reconciler.payments.ListPendingWithoutResource(ctx, p.batchSize)
	if err != nil {
		return err
	}
	for _, pay := range orphaned {
		outcome, err := p.reconciler.ReconcileByReference(ctx, pay.ExternalReference)
		if err != nil {
			if errors.Is(err, domainErrors.ErrProviderUnavailable) {
				return err
			}
			p.logger.Warn().Err(err).Str("payment_id", pay.ID.String()).Msg("reference search failed")
			continue
		}
		if outcome == OutcomeApplied {
			p.logger.Info().Str("payment_id", pay.ID.String()).Msg("lost-webhook payment settled by reference search")
		}
	}
	return nil
}
