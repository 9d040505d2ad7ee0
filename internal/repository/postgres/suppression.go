package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/sendcore/internal/domain"
	"github.com/ignite/sendcore/internal/service/suppression"
)

// SuppressionRepo implements suppression.Repository against PostgreSQL.
//
// The suppressions table carries a unique index on (scope, tenant_id, email)
// with tenant_id stored as '' for global entries, so concurrent adds for the
// same address funnel through one row.
type SuppressionRepo struct{ db *sql.DB }

// NewSuppressionRepo creates a Postgres-backed suppression repository.
func NewSuppressionRepo(db *sql.DB) *SuppressionRepo { return &SuppressionRepo{db: db} }

func (r *SuppressionRepo) FindActive(ctx context.Context, scope domain.SuppressionScope, tenantID, email string, at time.Time) (*domain.Suppression, error) {
	if scope == domain.ScopeGlobal {
		tenantID = ""
	}
	var s domain.Suppression
	var expires sql.NullTime
	err := r.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, email, reason, scope, source_message_id, expires_at, created_at
		FROM suppressions
		WHERE scope = $1 AND tenant_id = $2 AND email = $3
		  AND (expires_at IS NULL OR expires_at > $4)
	`, scope, tenantID, email, at).Scan(
		&s.ID, &s.TenantID, &s.Email, &s.Reason, &s.Scope, &s.SourceMessageID, &expires, &s.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find suppression: %w", err)
	}
	if expires.Valid {
		s.ExpiresAt = &expires.Time
	}
	return &s, nil
}

func (r *SuppressionRepo) Upsert(ctx context.Context, e *domain.Suppression, overwrite bool) (bool, error) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}

	// The WHERE clause on the conflict update is the idempotency rule:
	// a non-manual add only replaces rows that have already lapsed.
	query := `
		INSERT INTO suppressions (id, tenant_id, email, reason, scope, source_message_id, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (scope, tenant_id, email) DO UPDATE
		SET reason = EXCLUDED.reason,
		    source_message_id = EXCLUDED.source_message_id,
		    expires_at = EXCLUDED.expires_at,
		    created_at = EXCLUDED.created_at
		WHERE suppressions.expires_at IS NOT NULL AND suppressions.expires_at <= EXCLUDED.created_at
	`
	if overwrite {
		query = `
		INSERT INTO suppressions (id, tenant_id, email, reason, scope, source_message_id, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (scope, tenant_id, email) DO UPDATE
		SET reason = EXCLUDED.reason,
		    source_message_id = EXCLUDED.source_message_id,
		    expires_at = EXCLUDED.expires_at,
		    created_at = EXCLUDED.created_at
	`
	}

	res, err := r.db.ExecContext(ctx, query,
		e.ID, e.TenantID, e.Email, e.Reason, e.Scope, e.SourceMessageID, e.ExpiresAt, e.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("upsert suppression: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *SuppressionRepo) Remove(ctx context.Context, tenantID, email string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM suppressions
		WHERE scope = $1 AND tenant_id = $2 AND email = $3
	`, domain.ScopeTenant, tenantID, email)
	if err != nil {
		return false, fmt.Errorf("remove suppression: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *SuppressionRepo) List(ctx context.Context, f suppression.ListFilter) ([]domain.Suppression, int, error) {
	where := `WHERE 1=1`
	args := []interface{}{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.TenantID != "" {
		where += ` AND (scope = 'global' OR tenant_id = ` + arg(f.TenantID) + `)`
	}
	if f.Scope != "" {
		where += ` AND scope = ` + arg(f.Scope)
	}
	if f.Reason != "" {
		where += ` AND reason = ` + arg(f.Reason)
	}
	if f.Search != "" {
		where += ` AND email LIKE ` + arg("%"+f.Search+"%")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM suppressions `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count suppressions: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = total
	}
	query := `
		SELECT id, tenant_id, email, reason, scope, source_message_id, expires_at, created_at
		FROM suppressions ` + where + `
		ORDER BY created_at DESC
		LIMIT ` + arg(limit) + ` OFFSET ` + arg(f.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list suppressions: %w", err)
	}
	defer rows.Close()

	var out []domain.Suppression
	for rows.Next() {
		var s domain.Suppression
		var expires sql.NullTime
		if err := rows.Scan(&s.ID, &s.TenantID, &s.Email, &s.Reason, &s.Scope, &s.SourceMessageID, &expires, &s.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan suppression: %w", err)
		}
		if expires.Valid {
			s.ExpiresAt = &expires.Time
		}
		out = append(out, s)
	}
	return out, total, rows.Err()
}

func (r *SuppressionRepo) Count(ctx context.Context, tenantID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM suppressions
		WHERE scope = 'global' OR tenant_id = $1
	`, tenantID).Scan(&n)
	return n, err
}

func (r *SuppressionRepo) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM suppressions WHERE expires_at IS NOT NULL AND expires_at <= $1`, before)
	if err != nil {
		return 0, fmt.Errorf("delete expired suppressions: %w", err)
	}
	return res.RowsAffected()
}
