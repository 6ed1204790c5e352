package controller

import (
	"io"
	"net/http"
	"time"

	"github.com/optishop/payments/internal/domain/notification"
	"github.com/optishop/payments/internal/infrastructure/observability"
	"github.com/optishop/payments/internal/service"
	"github.com/rs/zerolog"
)

const maxWebhookBodySize = 1 << 20

// WebhookController receives provider payment notifications.
//
// The provider treats any 2xx as delivered and anything else as a signal to
// redeliver with backoff. Ignorable conditions are therefore acknowledged
// with 200 even though nothing changed, while retryable failures surface as
// 500 unless ackErrors is set, in which case the pending poller picks up the
// slack.
type WebhookController struct {
	reconciler *service.Reconciler
	metrics    *observability.Metrics
	ackErrors  bool
	logger     zerolog.Logger
}

func NewWebhookController(
	reconciler *service.Reconciler,
	metrics *observability.Metrics,
	ackErrors bool,
	logger zerolog.Logger,
) *WebhookController {
	return &WebhookController{
		reconciler: reconciler,
		metrics:    metrics,
		ackErrors:  ackErrors,
		logger:     logger,
	}
}

// Receive handles POST /webhooks/provider
func (h *WebhookController) Receive(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodySize))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "unreadable body", Code: "bad_request"})
		return
	}

	env := notification.ClassifyBody(body)
	h.handle(w, r, env, body)
}

// ReceiveQuery handles GET /webhooks/provider, the provider's legacy
// query-parameter delivery.
func (h *WebhookController) ReceiveQuery(w http.ResponseWriter, r *http.Request) {
	env := notification.ClassifyQuery(r.URL.Query())
	h.handle(w, r, env, []byte(r.URL.RawQuery))
}

func (h *WebhookController) handle(w http.ResponseWriter, r *http.Request, env notification.Envelope, payload []byte) {
	start := time.Now()
	outcome, err := h.reconciler.Handle(r.Context(), env, payload)

	if h.metrics != nil {
		result := string(outcome)
		if err != nil {
			result = "error"
		}
		h.metrics.NotificationsTotal.WithLabelValues(string(env.Kind), result).Inc()
		h.metrics.NotificationHandleDuration.WithLabelValues(string(env.Kind)).
			Observe(time.Since(start).Seconds())
	}

	if err != nil {
		h.logger.Error().Err(err).Str("kind", string(env.Kind)).
			Str("resource_id", env.ResourceID).Msg("notification handling failed")
		if h.ackErrors {
			writeJSON(w, http.StatusOK, WebhookResponse{Status: "accepted"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error: "notification handling failed", Code: "internal_error",
		})
		return
	}

	switch outcome {
	case service.OutcomeNotFound:
		// Not-found asks the provider to redeliver once the resource and the
		// local record have propagated.
		writeJSON(w, http.StatusNotFound, WebhookResponse{Status: "unknown_resource"})
	default:
		writeJSON(w, http.StatusOK, WebhookResponse{Status: string(outcome)})
	}
}
