package controller

import (
	"time"

	"github.com/optishop/payments/internal/infrastructure/config"
	"github.com/optishop/payments/internal/infrastructure/observability"
	customMW "github.com/optishop/payments/internal/middleware"
	"github.com/optishop/payments/internal/repository/postgres"
	"github.com/optishop/payments/internal/service"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type RouterDeps struct {
	Pool            *pgxpool.Pool
	RedisClient     *redis.Client
	PaymentService  *service.PaymentService
	Reconciler      *service.Reconciler
	IdempotencyRepo *postgres.IdempotencyRepository
	Metrics         *observability.Metrics
	Config          *config.Config
	Logger          zerolog.Logger
}

func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(customMW.Tracing())
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))
	r.Use(customMW.SecurityHeaders())
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Config.Server.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: deps.Config.Server.CORS.AllowCredentials,
		MaxAge:           300,
	}))
	r.Use(customMW.Metrics(deps.Metrics))

	healthH := NewHealthController(deps.Pool, deps.RedisClient)
	paymentH := NewPaymentController(deps.PaymentService, deps.Metrics)
	webhookH := NewWebhookController(deps.Reconciler, deps.Metrics, deps.Config.Webhook.AckErrors, deps.Logger)

	r.Get("/health", healthH.Health)
	r.Get("/health/live", healthH.Liveness)
	r.Get("/health/ready", healthH.Readiness)

	r.Handle("/metrics", promhttp.Handler())

	// Provider notifications. Unauthenticated by contract, so rate limited.
	r.Group(func(r chi.Router) {
		r.Use(customMW.RateLimit(600))
		r.Post("/webhooks/provider", webhookH.Receive)
		r.Get("/webhooks/provider", webhookH.ReceiveQuery)
	})

	r.Route("/api/v1", func(r chi.Router) {
		if deps.Config.Auth.JWTSecret != "" {
			r.Use(customMW.RequireAuth(deps.Config.Auth.JWTSecret))
		}

		idempotencyMW := customMW.Idempotency(deps.IdempotencyRepo, deps.Config.Worker.IdempotencyTTL)

		r.With(idempotencyMW).Post("/payments", paymentH.CreatePayment)
		r.Get("/payments/{id}", paymentH.GetPayment)
		r.Get("/payments", paymentH.ListPayments)
		r.Post("/payments/{id}/confirm", paymentH.ConfirmPayment)
	})

	return r
}
