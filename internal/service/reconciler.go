package service

import (
	"context"
	"errors"
	"fmt"

	domainErrors "github.com/optishop/payments/internal/domain/errors"
	"github.com/optishop/payments/internal/domain/notification"
	"github.com/optishop/payments/internal/domain/payment"
	"github.com/optishop/payments/internal/provider"
	"github.com/rs/zerolog"
)

// Outcome classifies how a notification was handled. Everything except a
// returned error is an acknowledged, non-retryable result; the HTTP layer
// maps outcomes to ack responses and errors to the retry policy.
type Outcome string

const (
	// OutcomeApplied means a payment transitioned to a final status.
	OutcomeApplied Outcome = "applied"
	// OutcomeAlreadyFinal means the target payment was already settled;
	// redundant deliveries land here.
	OutcomeAlreadyFinal Outcome = "already_final"
	// OutcomeIgnored covers unsupported kinds, unresolvable references and
	// non-terminal statuses. Nothing to do, nothing went wrong.
	OutcomeIgnored Outcome = "ignored"
	// OutcomeNotFound means neither the provider resource nor a matching
	// payment record exists yet. The provider retries after propagation.
	OutcomeNotFound Outcome = "not_found"
)

// Deduper short-circuits redundant re-deliveries of the same resolved
// notification within a small window. It is an optimization over the
// conditional update, never a correctness requirement.
type Deduper interface {
	// Seen reports whether the key was recently marked.
	Seen(ctx context.Context, key string) (bool, error)
	// Mark records the key for the dedup window.
	Mark(ctx context.Context, key string) error
}

// Reconciler translates provider notifications into payment-status updates.
// It never mutates state on ambiguous input: when in doubt the record stays
// pending and the notification is acknowledged as ignorable.
type Reconciler struct {
	payments payment.Repository
	client   provider.Client
	notifLog notification.LogRepository
	dedup    Deduper
	logger   zerolog.Logger
}

// NewReconciler creates a Reconciler. notifLog and dedup are optional.
func NewReconciler(
	payments payment.Repository,
	client provider.Client,
	notifLog notification.LogRepository,
	dedup Deduper,
	logger zerolog.Logger,
) *Reconciler {
	return &Reconciler{
		payments: payments,
		client:   client,
		notifLog: notifLog,
		dedup:    dedup,
		logger:   logger,
	}
}

// resolution is the provider-independent result of inspecting a
// notification: a raw status, the correlation keys to try in order, and the
// provider's id for the charge.
type resolution struct {
	rawStatus          string
	correlationKeys    []string
	providerResourceID string
}

// Handle processes one inbound notification end to end: classify (done by
// the caller), fetch detail if needed, translate the status, and apply it
// to the payment record. Returned errors are retryable by contract; every
// ignorable condition is an Outcome instead.
func (r *Reconciler) Handle(ctx context.Context, env notification.Envelope, rawPayload []byte) (Outcome, error) {
	entry := r.logReceived(ctx, env, rawPayload)

	if env.Kind == notification.KindUnsupported {
		r.logger.Debug().Msg("unsupported notification kind, acknowledging as no-op")
		return r.finish(ctx, entry, OutcomeIgnored, nil)
	}
	if env.ResourceID == "" {
		r.logger.Warn().Str("kind", string(env.Kind)).Msg("notification without resource id, ignoring")
		return r.finish(ctx, entry, OutcomeIgnored, nil)
	}

	res, err := r.resolve(ctx, env)
	if err != nil {
		if errors.Is(err, domainErrors.ErrResourceNotFound) {
			// The notification can outrun the resource inside the provider:
			// answer not-found so the provider redelivers later.
			r.logger.Info().Str("kind", string(env.Kind)).Str("resource_id", env.ResourceID).
				Msg("provider resource not found yet")
			return r.finish(ctx, entry, OutcomeNotFound, nil)
		}
		return r.finish(ctx, entry, "", fmt.Errorf("fetch %s %s: %w", env.Kind, env.ResourceID, err))
	}

	status := notification.TranslateStatus(res.rawStatus)

	dedupKey := fmt.Sprintf("%s:%s:%s", env.Kind, env.ResourceID, status)
	if r.dedup != nil {
		if seen, err := r.dedup.Seen(ctx, dedupKey); err != nil {
			// Dedup is an optimization; a broken cache must not block
			// reconciliation.
			r.logger.Warn().Err(err).Msg("notification dedup unavailable, continuing")
		} else if seen {
			return r.finish(ctx, entry, OutcomeAlreadyFinal, nil)
		}
	}

	outcome, err := r.apply(ctx, res, status)

	// Only settled outcomes enter the dedup window. Not-found deliveries must
	// stay retryable: the record can be created between the ack and the
	// provider's redelivery, which then has to apply.
	if err == nil && r.dedup != nil && (outcome == OutcomeApplied || outcome == OutcomeAlreadyFinal) {
		if markErr := r.dedup.Mark(ctx, dedupKey); markErr != nil {
			r.logger.Warn().Err(markErr).Msg("failed to mark notification as seen")
		}
	}
	return r.finish(ctx, entry, outcome, err)
}

// ReconcileByReference resolves a payment that never recorded a provider
// resource id by searching the provider's read API for its external
// reference. Used by the poller for payments whose webhook was lost
// entirely.
func (r *Reconciler) ReconcileByReference(ctx context.Context, externalReference string) (Outcome, error) {
	results, err := r.client.SearchPaymentsByReference(ctx, externalReference)
	if err != nil {
		if errors.Is(err, domainErrors.ErrResourceNotFound) {
			return OutcomeNotFound, nil
		}
		return "", fmt.Errorf("search payments by reference %s: %w", externalReference, err)
	}
	if len(results) == 0 {
		return OutcomeNotFound, nil
	}

	// A sale can accumulate several charge attempts under one reference; an
	// approved attempt settles the payment regardless of rejected ones.
	detail := results[0]
	for _, d := range results {
		s := notification.TranslateStatus(d.Status)
		if s == payment.StatusApproved {
			detail = d
			break
		}
		if s.IsFinal() && !notification.TranslateStatus(detail.Status).IsFinal() {
			detail = d
		}
	}

	return r.apply(ctx, &resolution{
		rawStatus:          detail.Status,
		correlationKeys:    []string{externalReference},
		providerResourceID: detail.ID,
	}, notification.TranslateStatus(detail.Status))
}

// resolve turns the envelope into a resolution, fetching the full resource
// from the provider when the notification only carried an id.
func (r *Reconciler) resolve(ctx context.Context, env notification.Envelope) (*resolution, error) {
	switch env.Kind {
	case notification.KindPayment:
		detail, err := r.client.GetPayment(ctx, env.ResourceID)
		if err != nil {
			return nil, err
		}
		keys := []string{}
		if ref := detail.CorrelationKey(); ref != "" {
			keys = append(keys, ref)
		}
		if detail.OrderID != "" {
			keys = append(keys, detail.OrderID)
		}
		return &resolution{
			rawStatus:          detail.Status,
			correlationKeys:    keys,
			providerResourceID: env.ResourceID,
		}, nil

	case notification.KindMerchantOrder:
		detail, err := r.client.GetMerchantOrder(ctx, env.ResourceID)
		if err != nil {
			return nil, err
		}
		keys := []string{}
		if detail.ExternalReference != "" {
			keys = append(keys, detail.ExternalReference)
		}
		return &resolution{
			rawStatus:          detail.Status,
			correlationKeys:    keys,
			providerResourceID: env.ResourceID,
		}, nil

	case notification.KindOrder:
		// Order notifications carry status and reference inline.
		keys := []string{}
		if env.ExternalReference != "" {
			keys = append(keys, env.ExternalReference)
		}
		return &resolution{
			rawStatus:          env.RawStatus,
			correlationKeys:    keys,
			providerResourceID: env.ResourceID,
		}, nil

	default:
		return nil, fmt.Errorf("unexpected notification kind %q", env.Kind)
	}
}

// apply issues the conditional update against each correlation key in
// priority order. The update only transitions rows still pending, so
// whichever concurrent delivery commits first wins and later ones are
// no-ops.
func (r *Reconciler) apply(ctx context.Context, res *resolution, status payment.Status) (Outcome, error) {
	if len(res.correlationKeys) == 0 {
		r.logger.Warn().Str("resource_id", res.providerResourceID).
			Msg("no correlation key resolvable, cannot locate payment")
		return OutcomeIgnored, nil
	}

	for _, key := range res.correlationKeys {
		updated, err := r.payments.ApplyStatus(ctx, key, status, res.providerResourceID)
		if err != nil {
			return "", fmt.Errorf("apply status %s to %s: %w", status, key, err)
		}
		if updated {
			if status.IsFinal() {
				r.logger.Info().Str("external_reference", key).Str("status", string(status)).
					Str("provider_resource_id", res.providerResourceID).
					Msg("payment settled from provider notification")
				return OutcomeApplied, nil
			}
			// Non-terminal signal: the row matched but keeps waiting.
			return OutcomeIgnored, nil
		}

		// No row transitioned: either the record does not exist under this
		// key, or it is already settled.
		existing, err := r.payments.GetByExternalReference(ctx, key)
		switch {
		case err == nil && existing != nil:
			r.logger.Debug().Str("external_reference", key).Str("status", string(existing.Status)).
				Msg("payment already in a final state, notification is a no-op")
			return OutcomeAlreadyFinal, nil
		case err != nil && !errors.Is(err, domainErrors.ErrPaymentNotFound):
			return "", fmt.Errorf("lookup payment %s: %w", key, err)
		}
		// Not found under this key: fall through to the next one.
	}

	return OutcomeNotFound, nil
}

// logReceived writes the audit record for an inbound notification.
// Log failures are reported but never block reconciliation.
func (r *Reconciler) logReceived(ctx context.Context, env notification.Envelope, payload []byte) *notification.LogEntry {
	if r.notifLog == nil {
		return nil
	}
	entry := notification.NewLogEntry(env, payload)
	if err := r.notifLog.Insert(ctx, entry); err != nil {
		r.logger.Warn().Err(err).Msg("failed to record notification")
		return nil
	}
	return entry
}

// finish closes the audit record and passes the result through.
func (r *Reconciler) finish(ctx context.Context, entry *notification.LogEntry, outcome Outcome, err error) (Outcome, error) {
	if entry != nil {
		if err != nil {
			if logErr := r.notifLog.MarkFailed(ctx, entry.ID, err.Error()); logErr != nil {
				r.logger.Warn().Err(logErr).Msg("failed to mark notification failed")
			}
		} else {
			if logErr := r.notifLog.MarkHandled(ctx, entry.ID, string(outcome)); logErr != nil {
				r.logger.Warn().Err(logErr).Msg("failed to mark notification handled")
			}
		}
	}
	return outcome, err
}
