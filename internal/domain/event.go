package domain

import "time"

// EventType enumerates the closed set of delivery lifecycle events.
// Provider callbacks with unknown types are rejected at the ingest boundary;
// nothing downstream ever sees an unclassified event.
type EventType string

const (
	EventQueued       EventType = "queued"
	EventSent         EventType = "sent"
	EventDelivered    EventType = "delivered"
	EventBounced      EventType = "bounced"
	EventComplained   EventType = "complained"
	EventOpened       EventType = "opened"
	EventClicked      EventType = "clicked"
	EventUnsubscribed EventType = "unsubscribed"
	EventFailed       EventType = "failed"
)

// Valid reports whether t is one of the known event types.
func (t EventType) Valid() bool {
	switch t {
	case EventQueued, EventSent, EventDelivered, EventBounced, EventComplained,
		EventOpened, EventClicked, EventUnsubscribed, EventFailed:
		return true
	}
	return false
}

// BounceClass distinguishes permanent from transient bounces.
type BounceClass string

const (
	BounceHard BounceClass = "hard"
	BounceSoft BounceClass = "soft"
)

// BounceData is the typed payload of a bounced or failed event. ErrorText has
// already passed the privacy filter by the time it reaches this struct.
type BounceData struct {
	Class     BounceClass `json:"class"`
	DSNCode   string      `json:"dsn_code,omitempty"`
	ErrorText string      `json:"error_text,omitempty"`
}

// ComplaintData is the typed payload of a complained event.
type ComplaintData struct {
	FeedbackType string `json:"feedback_type,omitempty"`
	ReportedBy   string `json:"reported_by,omitempty"`
}

// EngagementData is the typed payload of opened/clicked/unsubscribed events.
// IP is anonymized before it is allowed into this struct.
type EngagementData struct {
	IP        string `json:"ip,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	URL       string `json:"url,omitempty"`
}

// DeliveryEvent is one entry in the append-only event log. It is the sole
// input to reputation aggregation and to suppression triggers. At most one
// of the variant payloads is set, matching Type.
type DeliveryEvent struct {
	ID         string          `json:"id" db:"id"`
	MessageID  string          `json:"message_id" db:"message_id"`
	TenantID   string          `json:"tenant_id" db:"tenant_id"`
	Recipient  string          `json:"recipient,omitempty" db:"recipient"`
	Type       EventType       `json:"type" db:"type"`
	Bounce     *BounceData     `json:"bounce,omitempty"`
	Complaint  *ComplaintData  `json:"complaint,omitempty"`
	Engagement *EngagementData `json:"engagement,omitempty"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
}
