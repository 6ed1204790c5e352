package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/optishop/payments/internal/bootstrap"
	infraRedis "github.com/optishop/payments/internal/infrastructure/redis"
	"github.com/optishop/payments/internal/provider"
	"github.com/optishop/payments/internal/repository/postgres"
	"github.com/optishop/payments/internal/service"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := bootstrap.New(ctx, "payments-worker", "payments_worker")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	// --- Repositories ---
	paymentRepo := postgres.NewPaymentRepository(app.Pool)
	notifLogRepo := postgres.NewNotificationLogRepository(app.Pool)
	idempotencyRepo := postgres.NewIdempotencyRepository(app.Pool)

	// --- Provider client ---
	providerCfg := app.Config.Provider
	providerClient, err := provider.NewHTTPClient(provider.HTTPClientConfig{
		BaseURL:          providerCfg.BaseURL,
		AccessToken:      providerCfg.AccessToken,
		RequestTimeout:   providerCfg.RequestTimeout,
		RetryAttempts:    uint(providerCfg.MaxRetries),
		BreakerThreshold: uint32(providerCfg.CircuitBreakerThreshold),
		BreakerTimeout:   providerCfg.CircuitBreakerTimeout,
		Metrics: &provider.ClientMetrics{
			Requests:     app.Metrics.ProviderRequestsTotal,
			Duration:     app.Metrics.ProviderRequestDuration,
			BreakerState: app.Metrics.CircuitBreakerState,
		},
	}, app.Logger)
	if err != nil {
		app.Logger.Fatal().Err(err).Msg("Failed to configure provider client")
	}

	// --- Reconciliation poller ---
	dedup := infraRedis.NewDedupStore(app.Redis, app.Config.Webhook.DedupTTL)
	reconciler := service.NewReconciler(paymentRepo, providerClient, notifLogRepo, dedup, app.Logger)
	poller := service.NewPendingPoller(
		reconciler,
		app.Config.Worker.PollInterval,
		app.Config.Worker.BatchSize,
		app.Logger,
	)

	app.Logger.Info().
		Dur("interval", app.Config.Worker.PollInterval).
		Int("batch_size", app.Config.Worker.BatchSize).
		Msg("Worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	g, gCtx := errgroup.WithContext(ctx)

	// 1. Pending-payment reconciliation passes, guarded by a distributed
	//    lock so only one worker instance polls at a time.
	g.Go(func() error {
		return runPoller(gCtx, app, poller, paymentRepo)
	})

	// 2. Expired idempotency key cleanup.
	g.Go(func() error {
		return runIdempotencyCleanup(gCtx, app.Logger, idempotencyRepo)
	})

	// 3. Wait for shutdown signal.
	g.Go(func() error {
		select {
		case <-gCtx.Done():
			return gCtx.Err()
		case <-quit:
			app.Logger.Info().Msg("Shutting down worker...")
			cancel()
			return nil
		}
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		app.Logger.Error().Err(err).Msg("Worker error")
	}
	app.Logger.Info().Msg("Worker exited")
}

func runPoller(ctx context.Context, app *bootstrap.App, poller *service.PendingPoller, payments *postgres.PaymentRepository) error {
	interval := app.Config.Worker.PollInterval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		lock := infraRedis.NewDistributedLock(app.Redis, "reconcile-poller", interval)
		acquired, err := lock.Acquire(ctx)
		if err != nil {
			app.Logger.Error().Err(err).Msg("Failed to acquire poller lock")
			continue
		}
		if !acquired {
			app.Logger.Debug().Msg("Another instance is polling, skipping pass")
			continue
		}

		start := time.Now()
		err = poller.PollOnce(ctx)
		status := "ok"
		if err != nil {
			status = "error"
			app.Logger.Error().Err(err).Msg("Reconciliation pass failed")
		}
		app.Metrics.PollerBatchesTotal.WithLabelValues(status).Inc()
		app.Metrics.PollerBatchDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())

		if n, countErr := payments.CountPending(ctx); countErr == nil {
			app.Metrics.PendingGauge.Set(float64(n))
		}

		lock.Release(ctx)
	}
}

func runIdempotencyCleanup(ctx context.Context, logger zerolog.Logger, repo *postgres.IdempotencyRepository) error {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		removed, err := repo.Cleanup(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("Idempotency cleanup failed")
			continue
		}
		if removed > 0 {
			logger.Info().Int64("removed", removed).Msg("Expired idempotency keys removed")
		}
	}
}
