package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/optishop/payments/internal/domain/notification"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// NotificationLogRepository persists inbound notification audit entries.
type NotificationLogRepository struct {
	pool *pgxpool.Pool
}

func NewNotificationLogRepository(pool *pgxpool.Pool) *NotificationLogRepository {
	return &NotificationLogRepository{pool: pool}
}

func (r *NotificationLogRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

func (r *NotificationLogRepository) Insert(ctx context.Context, e *notification.LogEntry) error {
	_, err := r.db(ctx).Exec(ctx,
		`INSERT INTO notification_log
		 (id, kind, resource_id, tenant_ref, payload, status, outcome, received_at, handled_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		e.ID, string(e.Kind), e.ResourceID, e.TenantRef, e.Payload,
		string(e.Status), e.Outcome, e.ReceivedAt, e.HandledAt,
	)
	if err != nil {
		return fmt.Errorf("insert notification log: %w", err)
	}
	return nil
}

func (r *NotificationLogRepository) MarkHandled(ctx context.Context, id uuid.UUID, outcome string) error {
	_, err := r.db(ctx).Exec(ctx,
		`UPDATE notification_log SET status=$2, outcome=$3, handled_at=$4 WHERE id=$1`,
		id, string(notification.LogHandled), outcome, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("mark notification handled: %w", err)
	}
	return nil
}

func (r *NotificationLogRepository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	_, err := r.db(ctx).Exec(ctx,
		`UPDATE notification_log SET status=$2, outcome=$3, handled_at=$4 WHERE id=$1`,
		id, string(notification.LogHandleFailed), reason, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("mark notification failed: %w", err)
	}
	return nil
}

func (r *NotificationLogRepository) ListByResource(ctx context.Context, kind notification.Kind, resourceID string) ([]*notification.LogEntry, error) {
	rows, err := r.db(ctx).Query(ctx,
		`SELECT id, kind, resource_id, tenant_ref, payload, status, outcome, received_at, handled_at
		 FROM notification_log WHERE kind = $1 AND resource_id = $2 ORDER BY received_at DESC`,
		string(kind), resourceID,
	)
	if err != nil {
		return nil, fmt.Errorf("list notification log: %w", err)
	}
	defer rows.Close()

	var entries []*notification.LogEntry
	for rows.Next() {
		e := &notification.LogEntry{}
		var kind, status string
		if err := rows.Scan(&e.ID, &kind, &e.ResourceID, &e.TenantRef, &e.Payload,
			&status, &e.Outcome, &e.ReceivedAt, &e.HandledAt); err != nil {
			return nil, fmt.Errorf("scan notification log: %w", err)
		}
		e.Kind = notification.Kind(kind)
		e.Status = notification.LogStatus(status)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
