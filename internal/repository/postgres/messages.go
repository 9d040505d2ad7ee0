package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/ignite/sendcore/internal/domain"
)

// MessageRepo persists messages and their retry bookkeeping.
type MessageRepo struct{ db *sql.DB }

func NewMessageRepo(db *sql.DB) *MessageRepo { return &MessageRepo{db: db} }

const messageColumns = `id, tenant_id, queue_id, recipient, priority, status,
	attempts_made, max_retries, retry_schedule_seconds, next_retry_at, scheduled_at, last_error, created_at`

func (r *MessageRepo) Create(ctx context.Context, msg *domain.Message) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO messages (`+messageColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, msg.ID, msg.TenantID, msg.QueueID, msg.Recipient, msg.Priority, msg.Status,
		msg.AttemptsMade, msg.MaxRetries, pq.Array(scheduleSeconds(msg.RetrySchedule)),
		msg.NextRetryAt, msg.ScheduledAt, msg.LastError, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("create message: %w", err)
	}
	return nil
}

func (r *MessageRepo) Get(ctx context.Context, id string) (*domain.Message, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = $1`, id)
	msg, err := scanMessage(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	return msg, nil
}

// CancelIfQueued transitions a message to cancelled only while it is still
// queued. Returns false when the message is already processing or terminal.
func (r *MessageRepo) CancelIfQueued(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE messages SET status = 'cancelled' WHERE id = $1 AND status = 'queued'
	`, id)
	if err != nil {
		return false, fmt.Errorf("cancel message: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Due returns queued messages whose scheduled and retry times have passed,
// up to limit, for handoff to the dispatcher.
func (r *MessageRepo) Due(ctx context.Context, now time.Time, limit int) ([]domain.Message, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE status = 'queued'
		  AND (scheduled_at IS NULL OR scheduled_at <= $1)
		  AND (next_retry_at IS NULL OR next_retry_at <= $1)
		ORDER BY priority DESC, created_at ASC
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("due messages: %w", err)
	}
	defer rows.Close()

	var out []domain.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, *msg)
	}
	return out, rows.Err()
}

// MarkRetry puts a failed attempt back on the queue with its next retry time.
func (r *MessageRepo) MarkRetry(ctx context.Context, id string, attemptsMade int, nextRetryAt time.Time, lastError string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE messages
		SET status = 'queued', attempts_made = $2, next_retry_at = $3, last_error = $4
		WHERE id = $1
	`, id, attemptsMade, nextRetryAt, lastError)
	if err != nil {
		return fmt.Errorf("mark retry: %w", err)
	}
	return nil
}

// MarkTerminal records a final status. next_retry_at is cleared so the
// message can never be picked up again.
func (r *MessageRepo) MarkTerminal(ctx context.Context, id string, status domain.MessageStatus, attemptsMade int, lastError string) error {
	if !status.IsTerminal() {
		return fmt.Errorf("mark terminal: %q is not a terminal status", status)
	}
	_, err := r.db.ExecContext(ctx, `
		UPDATE messages
		SET status = $2, attempts_made = $3, next_retry_at = NULL, last_error = $4
		WHERE id = $1
	`, id, status, attemptsMade, lastError)
	if err != nil {
		return fmt.Errorf("mark terminal: %w", err)
	}
	return nil
}

// QueueStats counts messages per lifecycle bucket for one queue. A queued
// message whose scheduled or retry time is still in the future counts as
// delayed, not queued.
func (r *MessageRepo) QueueStats(ctx context.Context, queueID string, now time.Time) (*domain.QueueStats, error) {
	stats := &domain.QueueStats{QueueID: queueID}
	err := r.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status = 'queued'
				AND (scheduled_at IS NULL OR scheduled_at <= $2)
				AND (next_retry_at IS NULL OR next_retry_at <= $2)),
			COUNT(*) FILTER (WHERE status = 'queued'
				AND (scheduled_at > $2 OR next_retry_at > $2)),
			COUNT(*) FILTER (WHERE status = 'processing'),
			COUNT(*) FILTER (WHERE status IN ('sent', 'delivered')),
			COUNT(*) FILTER (WHERE status IN ('bounced', 'failed'))
		FROM messages
		WHERE queue_id = $1
	`, queueID, now).Scan(&stats.Queued, &stats.Delayed, &stats.Processing, &stats.Sent, &stats.Failed)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	return stats, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*domain.Message, error) {
	var (
		msg      domain.Message
		schedule pq.Int64Array
	)
	if err := row.Scan(&msg.ID, &msg.TenantID, &msg.QueueID, &msg.Recipient, &msg.Priority,
		&msg.Status, &msg.AttemptsMade, &msg.MaxRetries, &schedule,
		&msg.NextRetryAt, &msg.ScheduledAt, &msg.LastError, &msg.CreatedAt); err != nil {
		return nil, err
	}
	for _, s := range schedule {
		msg.RetrySchedule = append(msg.RetrySchedule, time.Duration(s)*time.Second)
	}
	return &msg, nil
}

func scheduleSeconds(schedule []time.Duration) []int64 {
	out := make([]int64, len(schedule))
	for i, d := range schedule {
		out[i] = int64(d / time.Second)
	}
	return out
}
