package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ignite/sendcore/internal/domain"
)

// WebhookRepo persists outbound webhook deliveries.
type WebhookRepo struct{ db *sql.DB }

func NewWebhookRepo(db *sql.DB) *WebhookRepo { return &WebhookRepo{db: db} }

const webhookColumns = `id, tenant_id, event_type, payload, status,
	attempts, max_retries, last_error, next_retry_at, delivered_at, created_at`

func (r *WebhookRepo) Create(ctx context.Context, wd *domain.WebhookDelivery) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO webhook_deliveries (`+webhookColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, wd.ID, wd.TenantID, wd.EventType, wd.Payload, wd.Status,
		wd.Attempts, wd.MaxRetries, wd.LastError, wd.NextRetryAt, wd.DeliveredAt, wd.CreatedAt)
	if err != nil {
		return fmt.Errorf("create webhook delivery: %w", err)
	}
	return nil
}

// Due returns pending deliveries whose retry time has passed, up to limit.
func (r *WebhookRepo) Due(ctx context.Context, now time.Time, limit int) ([]domain.WebhookDelivery, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+webhookColumns+`
		FROM webhook_deliveries
		WHERE status = 'pending'
		  AND (next_retry_at IS NULL OR next_retry_at <= $1)
		ORDER BY created_at ASC
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("due webhook deliveries: %w", err)
	}
	defer rows.Close()

	var out []domain.WebhookDelivery
	for rows.Next() {
		var wd domain.WebhookDelivery
		if err := rows.Scan(&wd.ID, &wd.TenantID, &wd.EventType, &wd.Payload, &wd.Status,
			&wd.Attempts, &wd.MaxRetries, &wd.LastError, &wd.NextRetryAt, &wd.DeliveredAt, &wd.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan webhook delivery: %w", err)
		}
		out = append(out, wd)
	}
	return out, rows.Err()
}

// MarkDelivered closes out a successful delivery.
func (r *WebhookRepo) MarkDelivered(ctx context.Context, id string, attempts int, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE webhook_deliveries
		SET status = 'delivered', attempts = $2, delivered_at = $3, next_retry_at = NULL
		WHERE id = $1
	`, id, attempts, at)
	if err != nil {
		return fmt.Errorf("mark webhook delivered: %w", err)
	}
	return nil
}

// MarkRetry re-queues a failed attempt with its next retry time.
func (r *WebhookRepo) MarkRetry(ctx context.Context, id string, attempts int, nextRetryAt time.Time, lastError string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE webhook_deliveries
		SET status = 'pending', attempts = $2, next_retry_at = $3, last_error = $4
		WHERE id = $1
	`, id, attempts, nextRetryAt, lastError)
	if err != nil {
		return fmt.Errorf("mark webhook retry: %w", err)
	}
	return nil
}

// MarkFailed records exhaustion of the attempt ceiling.
func (r *WebhookRepo) MarkFailed(ctx context.Context, id string, attempts int, lastError string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE webhook_deliveries
		SET status = 'failed', attempts = $2, next_retry_at = NULL, last_error = $3
		WHERE id = $1
	`, id, attempts, lastError)
	if err != nil {
		return fmt.Errorf("mark webhook failed: %w", err)
	}
	return nil
}

func (r *WebhookRepo) Get(ctx context.Context, id string) (*domain.WebhookDelivery, error) {
	var wd domain.WebhookDelivery
	err := r.db.QueryRowContext(ctx, `
		SELECT `+webhookColumns+` FROM webhook_deliveries WHERE id = $1
	`, id).Scan(&wd.ID, &wd.TenantID, &wd.EventType, &wd.Payload, &wd.Status,
		&wd.Attempts, &wd.MaxRetries, &wd.LastError, &wd.NextRetryAt, &wd.DeliveredAt, &wd.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get webhook delivery: %w", err)
	}
	return &wd, nil
}
