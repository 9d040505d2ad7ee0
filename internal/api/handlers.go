package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ignite/sendcore/internal/dispatch"
	"github.com/ignite/sendcore/internal/domain"
	"github.com/ignite/sendcore/internal/events"
	"github.com/ignite/sendcore/internal/service/admission"
	"github.com/ignite/sendcore/internal/service/suppression"
)

// SuppressionService is the slice of the suppression registry the API needs.
type SuppressionService interface {
	IsSuppressed(ctx context.Context, tenantID, email string) (suppression.CheckResult, error)
	Add(ctx context.Context, scope domain.SuppressionScope, tenantID, email string, reason domain.SuppressionReason, sourceMessageID string) (bool, error)
	AddBulk(ctx context.Context, scope domain.SuppressionScope, tenantID string, emails []string, reason domain.SuppressionReason) (suppression.BulkResult, error)
	Remove(ctx context.Context, tenantID, email string) (bool, error)
	List(ctx context.Context, filter suppression.ListFilter) ([]domain.Suppression, int, error)
	Count(ctx context.Context, tenantID string) (int, error)
}

// ReputationService exposes cached reputation state and on-demand recompute.
type ReputationService interface {
	Snapshots() []domain.ReputationRecord
	Snapshot(tenantID string) (domain.ReputationRecord, bool)
	RecomputeTenant(ctx context.Context, tenantID string) (*domain.ReputationRecord, error)
}

// AdmissionService answers pre-send admission checks.
type AdmissionService interface {
	Admit(ctx context.Context, tenantID, email string) (admission.Decision, error)
}

// EventIngestor accepts provider callbacks.
type EventIngestor interface {
	Ingest(ctx context.Context, raw events.RawCallback) (*domain.DeliveryEvent, error)
}

// MessageCanceller cancels queued messages.
type MessageCanceller interface {
	Cancel(ctx context.Context, messageID string) error
}

// QueueStatsSource reports per-queue lifecycle counts.
type QueueStatsSource interface {
	QueueStats(ctx context.Context, queueID string, now time.Time) (*domain.QueueStats, error)
}

// MessageCreator persists newly accepted messages.
type MessageCreator interface {
	Create(ctx context.Context, msg *domain.Message) error
}

// Handlers bundles the HTTP surface over the reliability services.
type Handlers struct {
	suppressions SuppressionService
	reputation   ReputationService
	admission    AdmissionService
	ingestor     EventIngestor
	canceller    MessageCanceller
	queueStats   QueueStatsSource
	startedAt    time.Time

	// message intake, optional
	messages      MessageCreator
	maxRetries    int
	retrySchedule []time.Duration
}

func NewHandlers(
	suppressions SuppressionService,
	reputation ReputationService,
	adm AdmissionService,
	ingestor EventIngestor,
	canceller MessageCanceller,
	queueStats QueueStatsSource,
) *Handlers {
	return &Handlers{
		suppressions: suppressions,
		reputation:   reputation,
		admission:    adm,
		ingestor:     ingestor,
		canceller:    canceller,
		queueStats:   queueStats,
		startedAt:    time.Now(),
	}
}

// SetMessageIntake enables the submission endpoint. maxRetries and schedule
// become the defaults stamped onto accepted messages.
func (h *Handlers) SetMessageIntake(creator MessageCreator, maxRetries int, schedule []time.Duration) {
	h.messages = creator
	h.maxRetries = maxRetries
	h.retrySchedule = schedule
}

// HealthCheck reports liveness and uptime.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(h.startedAt).String(),
	})
}

// GetReputation returns all cached reputation records.
func (h *Handlers) GetReputation(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"records": h.reputation.Snapshots(),
	})
}

// GetTenantReputation returns one tenant's cached record.
func (h *Handlers) GetTenantReputation(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	rec, ok := h.reputation.Snapshot(tenantID)
	if !ok {
		respondError(w, http.StatusNotFound, "no reputation record for tenant")
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

// RecomputeTenantReputation forces a fresh computation from raw counts.
func (h *Handlers) RecomputeTenantReputation(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	rec, err := h.reputation.RecomputeTenant(r.Context(), tenantID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

// ListSuppressions supports filtering by tenant, scope, reason and substring.
func (h *Handlers) ListSuppressions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	entries, total, err := h.suppressions.List(r.Context(), suppression.ListFilter{
		TenantID: q.Get("tenant_id"),
		Scope:    domain.SuppressionScope(q.Get("scope")),
		Reason:   domain.SuppressionReason(q.Get("reason")),
		Search:   q.Get("q"),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"total":   total,
		"limit":   limit,
		"offset":  offset,
	})
}

// CheckSuppression answers whether sending to an address is blocked.
func (h *Handlers) CheckSuppression(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	result, err := h.suppressions.IsSuppressed(r.Context(), q.Get("tenant_id"), q.Get("email"))
	if err != nil {
		respondSuppressionError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

type addSuppressionRequest struct {
	TenantID        string `json:"tenant_id"`
	Email           string `json:"email"`
	Scope           string `json:"scope"`
	Reason          string `json:"reason"`
	SourceMessageID string `json:"source_message_id"`
}

// AddSuppression inserts a single entry. Manual entries overwrite existing
// ones; other reasons only replace expired entries.
func (h *Handlers) AddSuppression(w http.ResponseWriter, r *http.Request) {
	var req addSuppressionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	reason := domain.SuppressionReason(req.Reason)
	if reason == "" {
		reason = domain.ReasonManual
	}
	scope := domain.SuppressionScope(req.Scope)
	if scope == "" {
		scope = domain.ScopeGlobal
	}
	added, err := h.suppressions.Add(r.Context(),
		scope, req.TenantID, req.Email, reason, req.SourceMessageID)
	if err != nil {
		respondSuppressionError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"added": added})
}

type bulkSuppressionRequest struct {
	TenantID string   `json:"tenant_id"`
	Scope    string   `json:"scope"`
	Reason   string   `json:"reason"`
	Emails   []string `json:"emails"`
}

func (h *Handlers) AddSuppressionsBulk(w http.ResponseWriter, r *http.Request) {
	var req bulkSuppressionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	reason := domain.SuppressionReason(req.Reason)
	if reason == "" {
		reason = domain.ReasonManual
	}
	scope := domain.SuppressionScope(req.Scope)
	if scope == "" {
		scope = domain.ScopeGlobal
	}
	result, err := h.suppressions.AddBulk(r.Context(),
		scope, req.TenantID, req.Emails, reason)
	if err != nil {
		respondSuppressionError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// RemoveSuppression deletes a tenant-scope entry. Global entries are not
// removable through the tenant API.
func (h *Handlers) RemoveSuppression(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	email := chi.URLParam(r, "email")
	removed, err := h.suppressions.Remove(r.Context(), tenantID, email)
	if err != nil {
		respondSuppressionError(w, err)
		return
	}
	if !removed {
		respondError(w, http.StatusNotFound, "no tenant-scope suppression for address")
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"removed": true})
}

type admitRequest struct {
	TenantID  string `json:"tenant_id"`
	Recipient string `json:"recipient"`
}

// CheckAdmission runs the pre-send gate for one recipient.
func (h *Handlers) CheckAdmission(w http.ResponseWriter, r *http.Request) {
	var req admitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	decision, err := h.admission.Admit(r.Context(), req.TenantID, req.Recipient)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, decision)
}

// IngestEvent accepts one provider callback and returns the stored event
// with its private fields already filtered.
func (h *Handlers) IngestEvent(w http.ResponseWriter, r *http.Request) {
	var raw events.RawCallback
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	ev, err := h.ingestor.Ingest(r.Context(), raw)
	if err != nil {
		if errors.Is(err, events.ErrUnknownEventType) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusAccepted, ev)
}

type submitMessageRequest struct {
	TenantID    string     `json:"tenant_id"`
	QueueID     string     `json:"queue_id"`
	Recipient   string     `json:"recipient"`
	Priority    int        `json:"priority"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
}

// SubmitMessage runs the admission gate and, if the send is admissible,
// queues a new message. Rejections come back with the machine-readable
// decision so callers can distinguish suppression from throttling.
func (h *Handlers) SubmitMessage(w http.ResponseWriter, r *http.Request) {
	if h.messages == nil {
		respondError(w, http.StatusNotImplemented, "message intake not configured")
		return
	}
	var req submitMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.TenantID == "" || req.Recipient == "" {
		respondError(w, http.StatusBadRequest, "tenant_id and recipient are required")
		return
	}
	if req.Priority < 1 {
		req.Priority = 1
	}
	if req.Priority > 10 {
		req.Priority = 10
	}

	decision, err := h.admission.Admit(r.Context(), req.TenantID, req.Recipient)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !decision.Accepted {
		respondJSON(w, http.StatusConflict, decision)
		return
	}

	msg := &domain.Message{
		ID:            uuid.New().String(),
		TenantID:      req.TenantID,
		QueueID:       req.QueueID,
		Recipient:     req.Recipient,
		Priority:      req.Priority,
		Status:        domain.MessageQueued,
		MaxRetries:    h.maxRetries,
		RetrySchedule: h.retrySchedule,
		ScheduledAt:   req.ScheduledAt,
		CreatedAt:     time.Now(),
	}
	if err := h.messages.Create(r.Context(), msg); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusAccepted, msg)
}

// CancelMessage cancels a message that is still queued.
func (h *Handlers) CancelMessage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "messageID")
	if err := h.canceller.Cancel(r.Context(), id); err != nil {
		if errors.Is(err, dispatch.ErrNotCancellable) {
			respondError(w, http.StatusConflict, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"cancelled": true})
}

// GetQueueStats returns lifecycle counts for one queue.
func (h *Handlers) GetQueueStats(w http.ResponseWriter, r *http.Request) {
	queueID := chi.URLParam(r, "queueID")
	stats, err := h.queueStats.QueueStats(r.Context(), queueID, time.Now())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

func respondSuppressionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, suppression.ErrEmptyAddress), errors.Is(err, suppression.ErrBadScope):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
