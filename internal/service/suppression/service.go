package suppression

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/sendcore/internal/domain"
	"github.com/ignite/sendcore/internal/pkg/logger"
)

// Service implements the suppression registry business logic. It is safe for
// concurrent use.
type Service struct {
	repo          Repository
	softBounceTTL time.Duration
	now           func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithSoftBounceTTL overrides how long soft-bounce entries stay active.
func WithSoftBounceTTL(ttl time.Duration) Option {
	return func(s *Service) { s.softBounceTTL = ttl }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a suppression service backed by the given repository.
func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{
		repo:          repo,
		softBounceTTL: 7 * 24 * time.Hour,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CheckResult is the answer to an IsSuppressed query.
type CheckResult struct {
	Suppressed bool                     `json:"suppressed"`
	Reason     domain.SuppressionReason `json:"reason,omitempty"`
	Scope      domain.SuppressionScope  `json:"scope,omitempty"`
	ExpiresAt  *time.Time               `json:"expires_at,omitempty"`
}

// IsSuppressed checks whether an address is currently blocked for the tenant.
// The tenant-scoped entry is consulted first and wins over a global entry,
// so a tenant-specific override shadows the platform-wide list.
func (s *Service) IsSuppressed(ctx context.Context, tenantID, email string) (CheckResult, error) {
	email = normalize(email)
	if email == "" {
		return CheckResult{}, ErrEmptyAddress
	}
	now := s.now()

	if tenantID != "" {
		entry, err := s.repo.FindActive(ctx, domain.ScopeTenant, tenantID, email, now)
		if err != nil {
			return CheckResult{}, err
		}
		if entry != nil {
			return resultFor(entry), nil
		}
	}

	entry, err := s.repo.FindActive(ctx, domain.ScopeGlobal, "", email, now)
	if err != nil {
		return CheckResult{}, err
	}
	if entry != nil {
		return resultFor(entry), nil
	}
	return CheckResult{}, nil
}

func resultFor(e *domain.Suppression) CheckResult {
	return CheckResult{
		Suppressed: true,
		Reason:     e.Reason,
		Scope:      e.Scope,
		ExpiresAt:  e.ExpiresAt,
	}
}

// Add upserts a deny-list entry. The call is idempotent: if an active entry
// already exists for the same scope and address it is preserved, unless the
// new reason is manual, which always overwrites. Soft bounces get a bounded
// lifetime; every other reason is permanent until explicitly removed.
func (s *Service) Add(ctx context.Context, scope domain.SuppressionScope, tenantID, email string, reason domain.SuppressionReason, sourceMessageID string) (bool, error) {
	email = normalize(email)
	if email == "" {
		return false, ErrEmptyAddress
	}
	if scope == domain.ScopeTenant && tenantID == "" {
		return false, ErrBadScope
	}
	if scope == domain.ScopeGlobal {
		tenantID = ""
	}

	now := s.now()
	entry := &domain.Suppression{
		ID:              uuid.New().String(),
		TenantID:        tenantID,
		Email:           email,
		Reason:          reason,
		Scope:           scope,
		SourceMessageID: sourceMessageID,
		CreatedAt:       now,
	}
	if reason == domain.ReasonSoftBounce {
		exp := now.Add(s.softBounceTTL)
		entry.ExpiresAt = &exp
	}

	written, err := s.repo.Upsert(ctx, entry, reason == domain.ReasonManual)
	if err != nil {
		return false, err
	}
	if written {
		logger.Debug("suppression added",
			"email", email, "scope", string(scope), "reason", string(reason))
	}
	return written, nil
}

// BulkResult reports the outcome of an AddBulk call.
type BulkResult struct {
	Added   int `json:"added"`
	Skipped int `json:"skipped"`
}

// AddBulk applies Add's idempotency rule per address. Invalid addresses
// count as skipped; a repository error aborts the batch.
func (s *Service) AddBulk(ctx context.Context, scope domain.SuppressionScope, tenantID string, emails []string, reason domain.SuppressionReason) (BulkResult, error) {
	var res BulkResult
	for _, email := range emails {
		added, err := s.Add(ctx, scope, tenantID, email, reason, "")
		switch {
		case err == ErrEmptyAddress:
			res.Skipped++
		case err != nil:
			return res, err
		case added:
			res.Added++
		default:
			res.Skipped++
		}
	}
	return res, nil
}

// Remove deletes the tenant-scoped entry for the address and reports whether
// a row was removed. The global entry, if any, is deliberately left in place.
func (s *Service) Remove(ctx context.Context, tenantID, email string) (bool, error) {
	email = normalize(email)
	if email == "" {
		return false, ErrEmptyAddress
	}
	return s.repo.Remove(ctx, tenantID, email)
}

// List returns entries matching the filter, for dashboard display and manual
// management.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]domain.Suppression, int, error) {
	filter.Search = normalize(filter.Search)
	return s.repo.List(ctx, filter)
}

// Count returns the number of entries visible to a tenant.
func (s *Service) Count(ctx context.Context, tenantID string) (int, error) {
	return s.repo.Count(ctx, tenantID)
}

// EvictExpired removes lapsed entries from storage. Optional hygiene only:
// reads already ignore expired rows.
func (s *Service) EvictExpired(ctx context.Context) (int64, error) {
	n, err := s.repo.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		logger.Info("expired suppressions evicted", "count", n)
	}
	return n, nil
}

func normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
