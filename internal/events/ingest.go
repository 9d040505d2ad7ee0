// Package events is the ingest boundary for delivery-provider callbacks.
//
// Raw callbacks are untrusted. Each one is decoded into the closed typed
// event union, run through the privacy filter, and only then appended to the
// event log, so nothing downstream ever sees raw error text or a raw IP.
// Bounce, complaint and unsubscribe events raise suppression entries here.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/sendcore/internal/domain"
	"github.com/ignite/sendcore/internal/pkg/logger"
	"github.com/ignite/sendcore/internal/privacy"
	"github.com/ignite/sendcore/internal/retry"
)

// ErrUnknownEventType rejects callbacks outside the closed event union.
var ErrUnknownEventType = errors.New("unknown event type")

// RawCallback is a delivery-provider notification before any filtering.
type RawCallback struct {
	Type         string    `json:"type"`
	MessageID    string    `json:"message_id"`
	TenantID     string    `json:"tenant_id"`
	Recipient    string    `json:"recipient"`
	Timestamp    time.Time `json:"timestamp"`
	BounceClass  string    `json:"bounce_class,omitempty"` // "hard" or "soft"
	DSNCode      string    `json:"dsn_code,omitempty"`
	RawErrorText string    `json:"raw_error_text,omitempty"`
	RawIP        string    `json:"raw_ip,omitempty"`
	UserAgent    string    `json:"user_agent,omitempty"`
	URL          string    `json:"url,omitempty"`
}

// Repository is the append-only event log contract.
type Repository interface {
	Append(ctx context.Context, event *domain.DeliveryEvent) error
}

// Suppressor receives bounce/complaint/unsubscribe side effects. Satisfied
// by the suppression service.
type Suppressor interface {
	Add(ctx context.Context, scope domain.SuppressionScope, tenantID, email string, reason domain.SuppressionReason, sourceMessageID string) (bool, error)
}

// WebhookCreator persists outbound webhook notifications raised from
// ingested events.
type WebhookCreator interface {
	Create(ctx context.Context, wd *domain.WebhookDelivery) error
}

// Ingestor decodes, sanitizes and persists provider callbacks.
type Ingestor struct {
	repo              Repository
	suppressor        Suppressor
	webhooks          WebhookCreator
	webhookMaxRetries int
	anonymizeIPs      bool
	now               func() time.Time
}

// Option customizes an Ingestor.
type Option func(*Ingestor)

// WithIPAnonymization toggles engagement IP anonymization. On by default;
// turning it off still validates the address.
func WithIPAnonymization(enabled bool) Option {
	return func(i *Ingestor) { i.anonymizeIPs = enabled }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(i *Ingestor) { i.now = now }
}

// WithWebhookFanout enables outbound webhook notifications: each ingested
// event also becomes a pending WebhookDelivery for the tenant.
func WithWebhookFanout(creator WebhookCreator, maxRetries int) Option {
	return func(i *Ingestor) {
		i.webhooks = creator
		i.webhookMaxRetries = maxRetries
	}
}

// NewIngestor creates the ingest boundary. suppressor may be nil when
// suppression side effects are handled elsewhere.
func NewIngestor(repo Repository, suppressor Suppressor, opts ...Option) *Ingestor {
	i := &Ingestor{
		repo:         repo,
		suppressor:   suppressor,
		anonymizeIPs: true,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Ingest decodes one raw callback into a typed event, applies the privacy
// filter, appends it to the log and fires any suppression side effect.
func (i *Ingestor) Ingest(ctx context.Context, raw RawCallback) (*domain.DeliveryEvent, error) {
	eventType := domain.EventType(strings.ToLower(strings.TrimSpace(raw.Type)))
	if !eventType.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, raw.Type)
	}

	createdAt := raw.Timestamp
	if createdAt.IsZero() {
		createdAt = i.now()
	}

	event := &domain.DeliveryEvent{
		ID:        uuid.New().String(),
		MessageID: raw.MessageID,
		TenantID:  raw.TenantID,
		Recipient: strings.ToLower(strings.TrimSpace(raw.Recipient)),
		Type:      eventType,
		CreatedAt: createdAt,
	}

	switch eventType {
	case domain.EventBounced, domain.EventFailed:
		event.Bounce = &domain.BounceData{
			Class:     bounceClass(raw.BounceClass),
			DSNCode:   raw.DSNCode,
			ErrorText: privacy.SanitizeError(raw.RawErrorText),
		}
	case domain.EventComplained:
		event.Complaint = &domain.ComplaintData{
			FeedbackType: raw.DSNCode,
			ReportedBy:   privacy.SanitizeError(raw.UserAgent),
		}
	case domain.EventOpened, domain.EventClicked, domain.EventUnsubscribed:
		ip := raw.RawIP
		if i.anonymizeIPs {
			ip = privacy.AnonymizeIP(ip)
		}
		event.Engagement = &domain.EngagementData{
			IP:        ip,
			UserAgent: privacy.SanitizeError(raw.UserAgent),
			URL:       raw.URL,
		}
	}

	if err := i.repo.Append(ctx, event); err != nil {
		return nil, fmt.Errorf("append event: %w", err)
	}

	i.applySuppression(ctx, event)
	i.fanoutWebhook(ctx, event)
	return event, nil
}

// fanoutWebhook turns an ingested event into a pending webhook delivery.
// The event has already been through the privacy filter, so the payload is
// safe to hand to tenant endpoints.
func (i *Ingestor) fanoutWebhook(ctx context.Context, event *domain.DeliveryEvent) {
	if i.webhooks == nil || event.TenantID == "" {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		logger.Error("webhook payload encode failed", "event_id", event.ID, "error", err.Error())
		return
	}
	wd := &domain.WebhookDelivery{
		ID:         uuid.New().String(),
		TenantID:   event.TenantID,
		EventType:  event.Type,
		Payload:    payload,
		Status:     domain.WebhookPending,
		MaxRetries: i.webhookMaxRetries,
		CreatedAt:  i.now(),
	}
	if err := i.webhooks.Create(ctx, wd); err != nil {
		logger.Error("webhook delivery create failed",
			"event_id", event.ID, "tenant_id", event.TenantID, "error", err.Error())
	}
}

func bounceClass(raw string) domain.BounceClass {
	if strings.EqualFold(strings.TrimSpace(raw), string(domain.BounceHard)) {
		return domain.BounceHard
	}
	return domain.BounceSoft
}

// applySuppression raises deny-list entries for events that demand them.
// Bounces and complaints are platform problems and go on the global list;
// an unsubscribe is a per-tenant preference.
func (i *Ingestor) applySuppression(ctx context.Context, event *domain.DeliveryEvent) {
	if i.suppressor == nil || event.Recipient == "" {
		return
	}

	var (
		scope    domain.SuppressionScope
		tenantID string
		reason   domain.SuppressionReason
	)

	switch event.Type {
	case domain.EventBounced:
		scope = domain.ScopeGlobal
		reason = domain.ReasonSoftBounce
		if event.Bounce != nil && event.Bounce.Class == domain.BounceHard {
			reason = domain.ReasonHardBounce
		}
	case domain.EventComplained:
		scope = domain.ScopeGlobal
		reason = domain.ReasonComplaint
	case domain.EventUnsubscribed:
		if event.TenantID == "" {
			return
		}
		scope = domain.ScopeTenant
		tenantID = event.TenantID
		reason = domain.ReasonUnsubscribe
	default:
		return
	}

	if _, err := i.suppressor.Add(ctx, scope, tenantID, event.Recipient, reason, event.MessageID); err != nil {
		logger.Error("suppression side effect failed",
			"event_type", string(event.Type), "email", event.Recipient, "error", err.Error())
	}
}

// RecordTerminalFailure appends a terminal failure event for a dead-lettered
// unit so it stays queryable. Implements the retry scheduler's observer.
func (i *Ingestor) RecordTerminalFailure(ctx context.Context, unit retry.Unit, reason string) {
	event := &domain.DeliveryEvent{
		ID:        uuid.New().String(),
		MessageID: unit.ID,
		TenantID:  unit.TenantID,
		Recipient: unit.Recipient,
		Type:      domain.EventFailed,
		Bounce: &domain.BounceData{
			Class:     domain.BounceSoft,
			ErrorText: privacy.SanitizeError(reason),
		},
		CreatedAt: i.now(),
	}
	if err := i.repo.Append(ctx, event); err != nil {
		logger.Error("terminal failure event append failed",
			"unit_id", unit.ID, "error", err.Error())
	}
}
