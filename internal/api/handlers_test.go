package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/sendcore/internal/dispatch"
	"github.com/ignite/sendcore/internal/domain"
	"github.com/ignite/sendcore/internal/events"
	"github.com/ignite/sendcore/internal/service/admission"
	"github.com/ignite/sendcore/internal/service/suppression"
)

type mockSuppressions struct {
	checkResult suppression.CheckResult
	entries     []domain.Suppression
	addErr      error
	added       bool
	addedScope  domain.SuppressionScope
	removed     bool
}

func (m *mockSuppressions) IsSuppressed(ctx context.Context, tenantID, email string) (suppression.CheckResult, error) {
	return m.checkResult, nil
}

func (m *mockSuppressions) Add(ctx context.Context, scope domain.SuppressionScope, tenantID, email string, reason domain.SuppressionReason, sourceMessageID string) (bool, error) {
	m.addedScope = scope
	return m.added, m.addErr
}

func (m *mockSuppressions) AddBulk(ctx context.Context, scope domain.SuppressionScope, tenantID string, emails []string, reason domain.SuppressionReason) (suppression.BulkResult, error) {
	return suppression.BulkResult{Added: len(emails)}, nil
}

func (m *mockSuppressions) Remove(ctx context.Context, tenantID, email string) (bool, error) {
	return m.removed, nil
}

func (m *mockSuppressions) List(ctx context.Context, filter suppression.ListFilter) ([]domain.Suppression, int, error) {
	return m.entries, len(m.entries), nil
}

func (m *mockSuppressions) Count(ctx context.Context, tenantID string) (int, error) {
	return len(m.entries), nil
}

type mockReputation struct {
	records map[string]domain.ReputationRecord
}

func (m *mockReputation) Snapshots() []domain.ReputationRecord {
	out := make([]domain.ReputationRecord, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, rec)
	}
	return out
}

func (m *mockReputation) Snapshot(tenantID string) (domain.ReputationRecord, bool) {
	rec, ok := m.records[tenantID]
	return rec, ok
}

func (m *mockReputation) RecomputeTenant(ctx context.Context, tenantID string) (*domain.ReputationRecord, error) {
	rec := m.records[tenantID]
	return &rec, nil
}

type mockAdmission struct{ decision admission.Decision }

func (m *mockAdmission) Admit(ctx context.Context, tenantID, email string) (admission.Decision, error) {
	return m.decision, nil
}

type mockIngestor struct {
	event *domain.DeliveryEvent
	err   error
}

func (m *mockIngestor) Ingest(ctx context.Context, raw events.RawCallback) (*domain.DeliveryEvent, error) {
	return m.event, m.err
}

type mockCanceller struct{ err error }

func (m *mockCanceller) Cancel(ctx context.Context, messageID string) error { return m.err }

type mockQueueStats struct{ stats domain.QueueStats }

func (m *mockQueueStats) QueueStats(ctx context.Context, queueID string, now time.Time) (*domain.QueueStats, error) {
	s := m.stats
	s.QueueID = queueID
	return &s, nil
}

func setupTestHandlers(t *testing.T) (*Handlers, *mockSuppressions, *mockReputation, *mockCanceller) {
	t.Helper()
	sups := &mockSuppressions{}
	rep := &mockReputation{records: map[string]domain.ReputationRecord{}}
	canceller := &mockCanceller{}
	h := NewHandlers(sups, rep, &mockAdmission{decision: admission.Accept},
		&mockIngestor{event: &domain.DeliveryEvent{ID: "ev-1"}}, canceller,
		&mockQueueStats{stats: domain.QueueStats{Queued: 7}})
	return h, sups, rep, canceller
}

func doRequest(h *Handlers, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	SetupRoutes(h).ServeHTTP(rec, req)
	return rec
}

func TestHealthCheck(t *testing.T) {
	h, _, _, _ := setupTestHandlers(t)
	rec := doRequest(h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestGetTenantReputation(t *testing.T) {
	h, _, rep, _ := setupTestHandlers(t)
	rep.records["tenant-1"] = domain.ReputationRecord{TenantID: "tenant-1", Score: 88}

	rec := doRequest(h, http.MethodGet, "/api/reputation/tenant-1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var got domain.ReputationRecord
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, float64(88), got.Score)

	rec = doRequest(h, http.MethodGet, "/api/reputation/unknown", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCheckSuppression(t *testing.T) {
	h, sups, _, _ := setupTestHandlers(t)
	sups.checkResult = suppression.CheckResult{
		Suppressed: true,
		Reason:     domain.ReasonHardBounce,
		Scope:      domain.ScopeGlobal,
	}

	rec := doRequest(h, http.MethodGet, "/api/suppressions/check?email=user@example.com", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var got suppression.CheckResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.True(t, got.Suppressed)
	assert.Equal(t, domain.ReasonHardBounce, got.Reason)
}

func TestAddSuppression_BadScope(t *testing.T) {
	h, sups, _, _ := setupTestHandlers(t)
	sups.addErr = suppression.ErrBadScope

	rec := doRequest(h, http.MethodPost, "/api/suppressions", addSuppressionRequest{
		Email: "user@example.com",
		Scope: "planetary",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAddSuppression_DefaultsToGlobalScope(t *testing.T) {
	h, sups, _, _ := setupTestHandlers(t)
	sups.added = true

	rec := doRequest(h, http.MethodPost, "/api/suppressions", addSuppressionRequest{
		Email: "user@example.com",
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.ScopeGlobal, sups.addedScope)
}

func TestRemoveSuppression_NotFound(t *testing.T) {
	h, sups, _, _ := setupTestHandlers(t)
	sups.removed = false

	rec := doRequest(h, http.MethodDelete, "/api/suppressions/tenant-1/user@example.com", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCheckAdmission(t *testing.T) {
	h, _, _, _ := setupTestHandlers(t)
	rec := doRequest(h, http.MethodPost, "/api/admission/check", admitRequest{
		TenantID:  "tenant-1",
		Recipient: "user@example.com",
	})
	assert.Equal(t, http.StatusOK, rec.Code)

	var got admission.Decision
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.True(t, got.Accepted)
}

func TestIngestEvent_UnknownType(t *testing.T) {
	h, _, _, _ := setupTestHandlers(t)
	h.ingestor = &mockIngestor{err: events.ErrUnknownEventType}

	rec := doRequest(h, http.MethodPost, "/api/events", events.RawCallback{Type: "teleported"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type mockMessageCreator struct{ created []*domain.Message }

func (m *mockMessageCreator) Create(ctx context.Context, msg *domain.Message) error {
	m.created = append(m.created, msg)
	return nil
}

func TestSubmitMessage_Accepted(t *testing.T) {
	h, _, _, _ := setupTestHandlers(t)
	creator := &mockMessageCreator{}
	h.SetMessageIntake(creator, 5, nil)

	rec := doRequest(h, http.MethodPost, "/api/messages", submitMessageRequest{
		TenantID:  "tenant-1",
		QueueID:   "queue-1",
		Recipient: "user@example.com",
		Priority:  12, // clamped to 10
	})
	assert.Equal(t, http.StatusAccepted, rec.Code)

	require.Len(t, creator.created, 1)
	msg := creator.created[0]
	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, domain.MessageQueued, msg.Status)
	assert.Equal(t, 10, msg.Priority)
	assert.Equal(t, 5, msg.MaxRetries)
}

func TestSubmitMessage_RejectedBySuppression(t *testing.T) {
	h, _, _, _ := setupTestHandlers(t)
	creator := &mockMessageCreator{}
	h.SetMessageIntake(creator, 5, nil)
	h.admission = &mockAdmission{decision: admission.Decision{
		Accepted: false,
		Reason:   admission.RejectSuppressed,
	}}

	rec := doRequest(h, http.MethodPost, "/api/messages", submitMessageRequest{
		TenantID:  "tenant-1",
		Recipient: "blocked@example.com",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Empty(t, creator.created)

	var decision admission.Decision
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&decision))
	assert.Equal(t, admission.RejectSuppressed, decision.Reason)
}

func TestSubmitMessage_NotConfigured(t *testing.T) {
	h, _, _, _ := setupTestHandlers(t)
	rec := doRequest(h, http.MethodPost, "/api/messages", submitMessageRequest{
		TenantID:  "tenant-1",
		Recipient: "user@example.com",
	})
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestCancelMessage_Conflict(t *testing.T) {
	h, _, _, canceller := setupTestHandlers(t)
	canceller.err = dispatch.ErrNotCancellable

	rec := doRequest(h, http.MethodPost, "/api/messages/msg-1/cancel", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestGetQueueStats(t *testing.T) {
	h, _, _, _ := setupTestHandlers(t)
	rec := doRequest(h, http.MethodGet, "/api/queues/queue-1/stats", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var got domain.QueueStats
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, "queue-1", got.QueueID)
	assert.Equal(t, 7, got.Queued)
}
