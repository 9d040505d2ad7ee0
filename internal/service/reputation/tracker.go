package reputation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ignite/sendcore/internal/domain"
	"github.com/ignite/sendcore/internal/pkg/logger"
)

// Thresholds are the throttle trigger levels, in percent. A tenant is
// throttled when a rate strictly exceeds its threshold.
type Thresholds struct {
	BouncePct    float64
	ComplaintPct float64
}

// DefaultThresholds match platform policy: >10% bounces or >1% complaints.
func DefaultThresholds() Thresholds {
	return Thresholds{BouncePct: 10, ComplaintPct: 1}
}

// Tracker owns ReputationRecord computation and is this module's only
// writer of reputation state.
type Tracker struct {
	repo        Repository
	thresholds  Thresholds
	window      time.Duration
	parallelism int
	now         func() time.Time

	mu    sync.RWMutex
	cache map[string]domain.ReputationRecord

	// serializes recomputation cycles per tenant
	tenantMu sync.Map // tenantID -> *sync.Mutex
}

// Option customizes a Tracker.
type Option func(*Tracker)

// WithThresholds overrides the throttle trigger levels.
func WithThresholds(t Thresholds) Option {
	return func(tr *Tracker) { tr.thresholds = t }
}

// WithParallelism bounds how many tenants a sweep recomputes concurrently.
func WithParallelism(n int) Option {
	return func(tr *Tracker) {
		if n > 0 {
			tr.parallelism = n
		}
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(tr *Tracker) { tr.now = now }
}

// NewTracker creates a reputation tracker backed by the given repository.
func NewTracker(repo Repository, opts ...Option) *Tracker {
	t := &Tracker{
		repo:        repo,
		thresholds:  DefaultThresholds(),
		window:      24 * time.Hour,
		parallelism: 8,
		now:         time.Now,
		cache:       make(map[string]domain.ReputationRecord),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Compute derives a reputation record from raw 24h counts. A tenant that
// sent nothing scores 100 and is never throttled.
func (t *Tracker) Compute(tenantID string, stats domain.SendingStats, at time.Time) domain.ReputationRecord {
	bounceRate := stats.BounceRate()
	complaintRate := stats.ComplaintRate()

	score := 100 - bounceRate*2 - complaintRate*20
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	rec := domain.ReputationRecord{
		TenantID:         tenantID,
		BounceRate24h:    bounceRate,
		ComplaintRate24h: complaintRate,
		Score:            score,
		UpdatedAt:        at,
	}

	switch {
	case bounceRate > t.thresholds.BouncePct:
		rec.IsThrottled = true
		rec.ThrottleReason = fmt.Sprintf("bounce rate %.2f%% exceeds %.2f%% threshold", bounceRate, t.thresholds.BouncePct)
	case complaintRate > t.thresholds.ComplaintPct:
		rec.IsThrottled = true
		rec.ThrottleReason = fmt.Sprintf("complaint rate %.2f%% exceeds %.2f%% threshold", complaintRate, t.thresholds.ComplaintPct)
	}
	return rec
}

// RecomputeTenant recalculates one tenant's record on demand and returns the
// fresh value. The cycle is serialized per tenant: stats read, compute, and
// upsert complete before another cycle for the same tenant starts.
func (t *Tracker) RecomputeTenant(ctx context.Context, tenantID string) (*domain.ReputationRecord, error) {
	muIface, _ := t.tenantMu.LoadOrStore(tenantID, &sync.Mutex{})
	mu := muIface.(*sync.Mutex)
	mu.Lock()
	defer mu.Unlock()

	now := t.now()
	stats, err := t.repo.SendingStats(ctx, tenantID, now.Add(-t.window))
	if err != nil {
		return nil, fmt.Errorf("sending stats for %s: %w", tenantID, err)
	}

	rec := t.Compute(tenantID, stats, now)
	if err := t.repo.UpsertRecord(ctx, &rec); err != nil {
		return nil, fmt.Errorf("upsert reputation for %s: %w", tenantID, err)
	}

	t.mu.Lock()
	t.cache[tenantID] = rec
	t.mu.Unlock()

	return &rec, nil
}

// Sweep recomputes every active tenant with bounded parallelism. A failing
// tenant is logged and skipped; it keeps its last-known record until the
// next successful cycle rather than flipping throttle state by default.
func (t *Tracker) Sweep(ctx context.Context) error {
	tenants, err := t.repo.ActiveTenantIDs(ctx)
	if err != nil {
		return fmt.Errorf("list active tenants: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.parallelism)
	for _, tenantID := range tenants {
		tenantID := tenantID
		g.Go(func() error {
			if _, err := t.RecomputeTenant(gctx, tenantID); err != nil {
				logger.Warn("reputation recompute failed, keeping last record",
					"tenant_id", tenantID, "error", err.Error())
			}
			return nil
		})
	}
	return g.Wait()
}

// Run executes the periodic sweep until the context is cancelled.
func (t *Tracker) Run(ctx context.Context, interval time.Duration) {
	logger.Info("reputation tracker started", "interval", interval.String())
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("reputation tracker stopped")
			return
		case <-ticker.C:
			if err := t.Sweep(ctx); err != nil && ctx.Err() == nil {
				logger.Error("reputation sweep failed", "error", err.Error())
			}
		}
	}
}

// WarmCache loads all stored records into the snapshot cache. Called once at
// startup so admission has state before the first sweep completes.
func (t *Tracker) WarmCache(ctx context.Context) error {
	records, err := t.repo.AllRecords(ctx)
	if err != nil {
		return fmt.Errorf("warm reputation cache: %w", err)
	}
	t.mu.Lock()
	for _, rec := range records {
		t.cache[rec.TenantID] = rec
	}
	t.mu.Unlock()
	return nil
}

// Snapshot returns the cached record for a tenant. The second return is
// false when no cycle has evaluated the tenant yet.
func (t *Tracker) Snapshot(tenantID string) (domain.ReputationRecord, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rec, ok := t.cache[tenantID]
	return rec, ok
}

// Snapshots returns cached records for all evaluated tenants, for dashboards.
func (t *Tracker) Snapshots() []domain.ReputationRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]domain.ReputationRecord, 0, len(t.cache))
	for _, rec := range t.cache {
		out = append(out, rec)
	}
	return out
}
