package notification

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// LogStatus tracks the handling state of a received notification.
type LogStatus string

const (
	LogReceived     LogStatus = "received"
	LogHandled      LogStatus = "handled"
	LogHandleFailed LogStatus = "handle_failed"
)

// LogEntry is the audit record kept for every inbound notification,
// whatever its outcome. Providers redeliver aggressively; the log is the
// first place to look when a payment is stuck pending.
type LogEntry struct {
	ID         uuid.UUID
	Kind       Kind
	ResourceID string
	TenantRef  string
	Payload    []byte
	Status     LogStatus
	Outcome    string
	ReceivedAt time.Time
	HandledAt  *time.Time
}

// NewLogEntry creates a log entry in the received state.
func NewLogEntry(env Envelope, payload []byte) *LogEntry {
	return &LogEntry{
		ID:         uuid.New(),
		Kind:       env.Kind,
		ResourceID: env.ResourceID,
		TenantRef:  env.TenantRef,
		Payload:    payload,
		Status:     LogReceived,
		ReceivedAt: time.Now(),
	}
}

// LogRepository persists the notification audit trail.
type LogRepository interface {
	Insert(ctx context.Context, entry *LogEntry) error
	MarkHandled(ctx context.Context, id uuid.UUID, outcome string) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
	ListByResource(ctx context.Context, kind Kind, resourceID string) ([]*LogEntry, error)
}
