package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ignite/sendcore/internal/domain"
)

// ReputationRepo implements reputation.Repository against PostgreSQL.
type ReputationRepo struct{ db *sql.DB }

// NewReputationRepo creates a Postgres-backed reputation repository.
func NewReputationRepo(db *sql.DB) *ReputationRepo { return &ReputationRepo{db: db} }

func (r *ReputationRepo) ActiveTenantIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM tenants WHERE is_active = true ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("active tenants: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// SendingStats recomputes the 24h window from raw counts on every cycle.
// Messages are bucketed by created_at; complained events come from the
// append-only event log.
func (r *ReputationRepo) SendingStats(ctx context.Context, tenantID string, since time.Time) (domain.SendingStats, error) {
	var stats domain.SendingStats
	err := r.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status IN ('sent', 'delivered', 'bounced')),
			COUNT(*) FILTER (WHERE status = 'bounced')
		FROM messages
		WHERE tenant_id = $1 AND created_at >= $2
	`, tenantID, since).Scan(&stats.SentCount, &stats.BounceCount)
	if err != nil {
		return stats, fmt.Errorf("message counts: %w", err)
	}

	err = r.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM delivery_events
		WHERE tenant_id = $1 AND type = 'complained' AND created_at >= $2
	`, tenantID, since).Scan(&stats.ComplaintCount)
	if err != nil {
		return stats, fmt.Errorf("complaint count: %w", err)
	}
	return stats, nil
}

func (r *ReputationRepo) UpsertRecord(ctx context.Context, rec *domain.ReputationRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO reputation_records
			(tenant_id, bounce_rate_24h, complaint_rate_24h, score, is_throttled, throttle_reason, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (tenant_id) DO UPDATE
		SET bounce_rate_24h = EXCLUDED.bounce_rate_24h,
		    complaint_rate_24h = EXCLUDED.complaint_rate_24h,
		    score = EXCLUDED.score,
		    is_throttled = EXCLUDED.is_throttled,
		    throttle_reason = EXCLUDED.throttle_reason,
		    updated_at = EXCLUDED.updated_at
	`, rec.TenantID, rec.BounceRate24h, rec.ComplaintRate24h, rec.Score,
		rec.IsThrottled, rec.ThrottleReason, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert reputation record: %w", err)
	}
	return nil
}

func (r *ReputationRepo) Record(ctx context.Context, tenantID string) (*domain.ReputationRecord, error) {
	var rec domain.ReputationRecord
	err := r.db.QueryRowContext(ctx, `
		SELECT tenant_id, bounce_rate_24h, complaint_rate_24h, score, is_throttled, throttle_reason, updated_at
		FROM reputation_records WHERE tenant_id = $1
	`, tenantID).Scan(&rec.TenantID, &rec.BounceRate24h, &rec.ComplaintRate24h,
		&rec.Score, &rec.IsThrottled, &rec.ThrottleReason, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get reputation record: %w", err)
	}
	return &rec, nil
}

func (r *ReputationRepo) AllRecords(ctx context.Context) ([]domain.ReputationRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT tenant_id, bounce_rate_24h, complaint_rate_24h, score, is_throttled, throttle_reason, updated_at
		FROM reputation_records
	`)
	if err != nil {
		return nil, fmt.Errorf("all reputation records: %w", err)
	}
	defer rows.Close()

	var out []domain.ReputationRecord
	for rows.Next() {
		var rec domain.ReputationRecord
		if err := rows.Scan(&rec.TenantID, &rec.BounceRate24h, &rec.ComplaintRate24h,
			&rec.Score, &rec.IsThrottled, &rec.ThrottleReason, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan reputation record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
