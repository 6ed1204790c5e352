package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/optishop/payments/internal/bootstrap"
	"github.com/optishop/payments/internal/controller"
	infraRedis "github.com/optishop/payments/internal/infrastructure/redis"
	"github.com/optishop/payments/internal/provider"
	"github.com/optishop/payments/internal/repository/postgres"
	"github.com/optishop/payments/internal/service"
)

func main() {
	ctx := context.Background()

	app, err := bootstrap.New(ctx, "payments-api", "payments")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	// --- Repositories ---
	paymentRepo := postgres.NewPaymentRepository(app.Pool)
	notifLogRepo := postgres.NewNotificationLogRepository(app.Pool)
	idempotencyRepo := postgres.NewIdempotencyRepository(app.Pool)
	txManager := postgres.NewTxManager(app.Pool)

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

	// --- Services ---
	dedup := infraRedis.NewDedupStore(app.Redis, app.Config.Webhook.DedupTTL)
	reconciler := service.NewReconciler(paymentRepo, providerClient, notifLogRepo, dedup, app.Logger)
	paymentService := service.NewPaymentService(paymentRepo, txManager, app.Logger)

	// --- Build router ---
	router := controller.NewRouter(controller.RouterDeps{
		Pool:            app.Pool,
		RedisClient:     app.Redis,
		PaymentService:  paymentService,
		Reconciler:      reconciler,
		IdempotencyRepo: idempotencyRepo,
		Metrics:         app.Metrics,
		Config:          app.Config,
		Logger:          app.Logger,
	})

	// --- HTTP server ---
	addr := fmt.Sprintf(":%d", app.Config.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  app.Config.Server.ReadTimeout,
		WriteTimeout: app.Config.Server.WriteTimeout,
		IdleTimeout:  app.Config.Server.IdleTimeout,
	}

	go func() {
		app.Logger.Info().Str("addr", addr).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			app.Logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	app.Logger.Info().Msg("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), app.Config.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		app.Logger.Error().Err(err).Msg("Server forced to shutdown")
	}
	app.Logger.Info().Msg("Server exited")
}
