package domain

import "time"

// WebhookStatus tracks an outbound webhook notification.
type WebhookStatus string

const (
	WebhookPending   WebhookStatus = "pending"
	WebhookDelivered WebhookStatus = "delivered"
	WebhookFailed    WebhookStatus = "failed"
)

// WebhookDelivery is one outbound webhook notification. It shares the retry
// contract with Message but carries its own, smaller attempt ceiling.
type WebhookDelivery struct {
	ID          string        `json:"id" db:"id"`
	TenantID    string        `json:"tenant_id" db:"tenant_id"`
	EventType   EventType     `json:"event_type" db:"event_type"`
	Payload     []byte        `json:"payload" db:"payload"`
	Status      WebhookStatus `json:"status" db:"status"`
	Attempts    int           `json:"attempts" db:"attempts"`
	MaxRetries  int           `json:"max_retries" db:"max_retries"`
	LastError   string        `json:"last_error,omitempty" db:"last_error"`
	NextRetryAt *time.Time    `json:"next_retry_at,omitempty" db:"next_retry_at"`
	DeliveredAt *time.Time    `json:"delivered_at,omitempty" db:"delivered_at"`
	CreatedAt   time.Time     `json:"created_at" db:"created_at"`
}
