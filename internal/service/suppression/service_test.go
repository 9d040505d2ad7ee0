package suppression

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ignite/sendcore/internal/domain"
)

// mockRepo is an in-memory repository for testing. It mirrors the Postgres
// implementation's upsert semantics, including the active-entry guard.
type mockRepo struct {
	mu    sync.Mutex
	store map[string]*domain.Suppression // keyed by scope|tenant|email
}

func newMockRepo() *mockRepo {
	return &mockRepo{store: make(map[string]*domain.Suppression)}
}

func key(scope domain.SuppressionScope, tenantID, email string) string {
	return string(scope) + "|" + tenantID + "|" + strings.ToLower(email)
}

func (m *mockRepo) FindActive(_ context.Context, scope domain.SuppressionScope, tenantID, email string, at time.Time) (*domain.Suppression, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.store[key(scope, tenantID, email)]
	if !ok || !e.ActiveAt(at) {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

func (m *mockRepo) Upsert(_ context.Context, entry *domain.Suppression, overwrite bool) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key(entry.Scope, entry.TenantID, entry.Email)
	if existing, ok := m.store[k]; ok && !overwrite && existing.ActiveAt(entry.CreatedAt) {
		return false, nil
	}
	m.store[k] = entry
	return true, nil
}

func (m *mockRepo) Remove(_ context.Context, tenantID, email string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key(domain.ScopeTenant, tenantID, email)
	if _, ok := m.store[k]; !ok {
		return false, nil
	}
	delete(m.store, k)
	return true, nil
}

func (m *mockRepo) List(_ context.Context, f ListFilter) ([]domain.Suppression, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Suppression
	for _, e := range m.store {
		if f.Reason != "" && e.Reason != f.Reason {
			continue
		}
		if f.Scope != "" && e.Scope != f.Scope {
			continue
		}
		out = append(out, *e)
	}
	return out, len(out), nil
}

func (m *mockRepo) Count(_ context.Context, tenantID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.store {
		if e.Scope == domain.ScopeGlobal || e.TenantID == tenantID {
			n++
		}
	}
	return n, nil
}

func (m *mockRepo) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, e := range m.store {
		if e.ExpiresAt != nil && !e.ExpiresAt.After(before) {
			delete(m.store, k)
			n++
		}
	}
	return n, nil
}

const testTenant = "tenant-001"

func TestAdd_ThenIsSuppressed(t *testing.T) {
	svc := NewService(newMockRepo())
	ctx := context.Background()

	added, err := svc.Add(ctx, domain.ScopeGlobal, "", "BOUNCE@Example.com", domain.ReasonHardBounce, "msg-1")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if !added {
		t.Error("expected first Add to report a write")
	}

	res, err := svc.IsSuppressed(ctx, testTenant, "bounce@example.com")
	if err != nil {
		t.Fatalf("IsSuppressed: %v", err)
	}
	if !res.Suppressed {
		t.Fatal("expected address to be suppressed")
	}
	if res.Reason != domain.ReasonHardBounce || res.Scope != domain.ScopeGlobal {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestAdd_NonManualDoesNotOverride(t *testing.T) {
	svc := NewService(newMockRepo())
	ctx := context.Background()

	if _, err := svc.Add(ctx, domain.ScopeGlobal, "", "user@example.com", domain.ReasonComplaint, ""); err != nil {
		t.Fatalf("Add complaint: %v", err)
	}

	added, err := svc.Add(ctx, domain.ScopeGlobal, "", "user@example.com", domain.ReasonHardBounce, "")
	if err != nil {
		t.Fatalf("Add hard bounce: %v", err)
	}
	if added {
		t.Error("hard_bounce should not override an active complaint entry")
	}

	res, _ := svc.IsSuppressed(ctx, "", "user@example.com")
	if res.Reason != domain.ReasonComplaint {
		t.Errorf("reason = %q, want complaint", res.Reason)
	}
}

func TestAdd_ManualAlwaysOverrides(t *testing.T) {
	svc := NewService(newMockRepo())
	ctx := context.Background()

	_, _ = svc.Add(ctx, domain.ScopeGlobal, "", "user@example.com", domain.ReasonComplaint, "")
	added, err := svc.Add(ctx, domain.ScopeGlobal, "", "user@example.com", domain.ReasonManual, "")
	if err != nil {
		t.Fatalf("Add manual: %v", err)
	}
	if !added {
		t.Error("manual add should overwrite")
	}

	res, _ := svc.IsSuppressed(ctx, "", "user@example.com")
	if res.Reason != domain.ReasonManual {
		t.Errorf("reason = %q, want manual", res.Reason)
	}
}

func TestSoftBounce_ExpiresAfterSevenDays(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	current := base
	svc := NewService(newMockRepo(), WithClock(func() time.Time { return current }))
	ctx := context.Background()

	if _, err := svc.Add(ctx, domain.ScopeGlobal, "", "soft@example.com", domain.ReasonSoftBounce, ""); err != nil {
		t.Fatalf("Add: %v", err)
	}

	res, _ := svc.IsSuppressed(ctx, "", "soft@example.com")
	if !res.Suppressed {
		t.Fatal("expected fresh soft bounce to be suppressed")
	}
	want := base.Add(7 * 24 * time.Hour)
	if res.ExpiresAt == nil || !res.ExpiresAt.Equal(want) {
		t.Fatalf("expires_at = %v, want %v", res.ExpiresAt, want)
	}

	current = want.Add(-time.Second)
	if res, _ := svc.IsSuppressed(ctx, "", "soft@example.com"); !res.Suppressed {
		t.Error("expected suppressed one second before expiry")
	}

	current = want.Add(time.Second)
	if res, _ := svc.IsSuppressed(ctx, "", "soft@example.com"); res.Suppressed {
		t.Error("expected not suppressed one second after expiry")
	}
}

func TestAdd_ReplacesExpiredEntry(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	current := base
	svc := NewService(newMockRepo(), WithClock(func() time.Time { return current }))
	ctx := context.Background()

	_, _ = svc.Add(ctx, domain.ScopeGlobal, "", "soft@example.com", domain.ReasonSoftBounce, "")

	current = base.Add(8 * 24 * time.Hour)
	added, err := svc.Add(ctx, domain.ScopeGlobal, "", "soft@example.com", domain.ReasonHardBounce, "")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if !added {
		t.Error("expected non-manual add to replace an expired entry")
	}
	res, _ := svc.IsSuppressed(ctx, "", "soft@example.com")
	if res.Reason != domain.ReasonHardBounce {
		t.Errorf("reason = %q, want hard_bounce", res.Reason)
	}
}

func TestIsSuppressed_TenantScopeWins(t *testing.T) {
	svc := NewService(newMockRepo())
	ctx := context.Background()

	_, _ = svc.Add(ctx, domain.ScopeGlobal, "", "both@example.com", domain.ReasonComplaint, "")
	_, _ = svc.Add(ctx, domain.ScopeTenant, testTenant, "both@example.com", domain.ReasonUnsubscribe, "")

	res, _ := svc.IsSuppressed(ctx, testTenant, "both@example.com")
	if res.Scope != domain.ScopeTenant || res.Reason != domain.ReasonUnsubscribe {
		t.Errorf("tenant entry should win, got %+v", res)
	}

	// another tenant only sees the global entry
	res, _ = svc.IsSuppressed(ctx, "tenant-002", "both@example.com")
	if res.Scope != domain.ScopeGlobal {
		t.Errorf("other tenant should match global entry, got %+v", res)
	}
}

func TestAdd_TenantScopeRequiresTenant(t *testing.T) {
	svc := NewService(newMockRepo())
	if _, err := svc.Add(context.Background(), domain.ScopeTenant, "", "x@example.com", domain.ReasonManual, ""); err != ErrBadScope {
		t.Errorf("err = %v, want ErrBadScope", err)
	}
}

func TestAddBulk_CountsAddedAndSkipped(t *testing.T) {
	svc := NewService(newMockRepo())
	ctx := context.Background()

	_, _ = svc.Add(ctx, domain.ScopeGlobal, "", "dup@example.com", domain.ReasonComplaint, "")

	res, err := svc.AddBulk(ctx, domain.ScopeGlobal, "",
		[]string{"a@example.com", "dup@example.com", "", "b@example.com"},
		domain.ReasonHardBounce)
	if err != nil {
		t.Fatalf("AddBulk: %v", err)
	}
	if res.Added != 2 {
		t.Errorf("added = %d, want 2", res.Added)
	}
	if res.Skipped != 2 {
		t.Errorf("skipped = %d, want 2", res.Skipped)
	}
}

func TestRemove_TenantScopedOnly(t *testing.T) {
	svc := NewService(newMockRepo())
	ctx := context.Background()

	_, _ = svc.Add(ctx, domain.ScopeGlobal, "", "keep@example.com", domain.ReasonComplaint, "")
	_, _ = svc.Add(ctx, domain.ScopeTenant, testTenant, "keep@example.com", domain.ReasonManual, "")

	removed, err := svc.Remove(ctx, testTenant, "keep@example.com")
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if !removed {
		t.Error("expected tenant entry to be removed")
	}

	// the global entry still applies
	res, _ := svc.IsSuppressed(ctx, testTenant, "keep@example.com")
	if !res.Suppressed || res.Scope != domain.ScopeGlobal {
		t.Errorf("global entry should survive tenant removal, got %+v", res)
	}

	removed, _ = svc.Remove(ctx, testTenant, "keep@example.com")
	if removed {
		t.Error("second Remove should report nothing removed")
	}
}

func TestAdd_ConcurrentBouncesSingleEntry(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = svc.Add(ctx, domain.ScopeGlobal, "", "race@example.com", domain.ReasonHardBounce, "")
		}()
	}
	wg.Wait()

	entries, total, err := svc.List(ctx, ListFilter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 1 || len(entries) != 1 {
		t.Errorf("expected exactly one active entry, got %d", total)
	}
}

func TestEvictExpired(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	current := base
	svc := NewService(newMockRepo(), WithClock(func() time.Time { return current }))
	ctx := context.Background()

	_, _ = svc.Add(ctx, domain.ScopeGlobal, "", "soft@example.com", domain.ReasonSoftBounce, "")
	_, _ = svc.Add(ctx, domain.ScopeGlobal, "", "hard@example.com", domain.ReasonHardBounce, "")

	current = base.Add(30 * 24 * time.Hour)
	n, err := svc.EvictExpired(ctx)
	if err != nil {
		t.Fatalf("EvictExpired: %v", err)
	}
	if n != 1 {
		t.Errorf("evicted = %d, want 1", n)
	}
}
