package reputation

import (
	"context"
	"time"

	"github.com/ignite/sendcore/internal/domain"
)

// Repository defines the data access contract for the reputation tracker.
type Repository interface {
	// ActiveTenantIDs returns the tenants the periodic sweep iterates.
	ActiveTenantIDs(ctx context.Context) ([]string, error)

	// SendingStats aggregates sent/bounce/complaint counts for a tenant
	// over messages and events created at or after since.
	SendingStats(ctx context.Context, tenantID string, since time.Time) (domain.SendingStats, error)

	// UpsertRecord writes the record, replacing any previous one for the
	// tenant. Called every cycle, changed or not.
	UpsertRecord(ctx context.Context, rec *domain.ReputationRecord) error

	// Record returns the stored record for a tenant, or nil if none exists.
	Record(ctx context.Context, tenantID string) (*domain.ReputationRecord, error)

	// AllRecords returns every stored record, used to warm the snapshot
	// cache at startup.
	AllRecords(ctx context.Context) ([]domain.ReputationRecord, error)
}
