package suppression

import (
	"context"
	"time"

	"github.com/ignite/sendcore/internal/domain"
)

// Repository defines the data access contract for the suppression registry.
// Upsert serialization per (scope, tenant, email) is the repository's job;
// the Postgres implementation leans on a unique constraint so two concurrent
// bounce events for the same address can never produce two active entries.
type Repository interface {
	// FindActive returns the entry for (scope, tenantID, email) that is
	// active at the given instant, or nil if none. tenantID is ignored for
	// global scope.
	FindActive(ctx context.Context, scope domain.SuppressionScope, tenantID, email string, at time.Time) (*domain.Suppression, error)

	// Upsert inserts the entry, or replaces the existing row for the same
	// (scope, tenant, email). When overwrite is false, an existing entry
	// that is still active at entry.CreatedAt is left untouched. Returns
	// true if a row was written.
	Upsert(ctx context.Context, entry *domain.Suppression, overwrite bool) (bool, error)

	// Remove deletes the tenant-scoped entry for the address. Returns true
	// if a row was removed. Global entries are never touched.
	Remove(ctx context.Context, tenantID, email string) (bool, error)

	// List returns entries matching the filter plus the total match count.
	List(ctx context.Context, filter ListFilter) ([]domain.Suppression, int, error)

	// Count returns the number of entries visible to the tenant (its own
	// scope plus global).
	Count(ctx context.Context, tenantID string) (int, error)

	// DeleteExpired removes entries whose expiry has passed. Purely a
	// storage-hygiene sweep; correctness never depends on it running.
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// ListFilter controls pagination and filtering for suppression listings.
type ListFilter struct {
	TenantID string
	Scope    domain.SuppressionScope
	Reason   domain.SuppressionReason
	Search   string
	Limit    int
	Offset   int
}
