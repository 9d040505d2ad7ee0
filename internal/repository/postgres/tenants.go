package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ignite/sendcore/internal/domain"
)

// TenantRepo reads tenants and their send queues.
type TenantRepo struct{ db *sql.DB }

func NewTenantRepo(db *sql.DB) *TenantRepo { return &TenantRepo{db: db} }

func (r *TenantRepo) Get(ctx context.Context, id string) (*domain.Tenant, error) {
	var t domain.Tenant
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, is_active, created_at FROM tenants WHERE id = $1
	`, id).Scan(&t.ID, &t.Name, &t.IsActive, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get tenant: %w", err)
	}
	return &t, nil
}

func (r *TenantRepo) Queues(ctx context.Context, tenantID string) ([]domain.SendQueue, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, tenant_id, name, priority, rate_per_minute
		FROM send_queues
		WHERE tenant_id = $1
		ORDER BY priority DESC, name ASC
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("tenant queues: %w", err)
	}
	defer rows.Close()

	var out []domain.SendQueue
	for rows.Next() {
		var q domain.SendQueue
		if err := rows.Scan(&q.ID, &q.TenantID, &q.Name, &q.Priority, &q.RatePerMinute); err != nil {
			return nil, fmt.Errorf("scan send queue: %w", err)
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

// RatePerMinute returns the strictest nonzero limit across the tenant's
// queues, or zero when no queue sets one. Satisfies dispatch.LimitSource.
func (r *TenantRepo) RatePerMinute(ctx context.Context, tenantID string) (int, error) {
	var limit sql.NullInt64
	err := r.db.QueryRowContext(ctx, `
		SELECT MIN(rate_per_minute) FROM send_queues
		WHERE tenant_id = $1 AND rate_per_minute > 0
	`, tenantID).Scan(&limit)
	if err != nil {
		return 0, fmt.Errorf("tenant rate limit: %w", err)
	}
	if !limit.Valid {
		return 0, nil
	}
	return int(limit.Int64), nil
}
