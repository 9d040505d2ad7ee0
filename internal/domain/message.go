package domain

import "time"

// MessageStatus tracks a message through its delivery lifecycle.
type MessageStatus string

const (
	MessageQueued     MessageStatus = "queued"
	MessageProcessing MessageStatus = "processing"
	MessageSent       MessageStatus = "sent"
	MessageDelivered  MessageStatus = "delivered"
	MessageBounced    MessageStatus = "bounced"
	MessageFailed     MessageStatus = "failed"
	MessageCancelled  MessageStatus = "cancelled"
)

// IsTerminal reports whether the status admits no further transitions.
func (s MessageStatus) IsTerminal() bool {
	switch s {
	case MessageSent, MessageDelivered, MessageBounced, MessageFailed, MessageCancelled:
		return true
	}
	return false
}

// Message is one unit of outbound email work. The external queue engine owns
// dispatching and increments AttemptsMade; this core computes NextRetryAt and
// decides terminal vs retry.
type Message struct {
	ID            string          `json:"id" db:"id"`
	TenantID      string          `json:"tenant_id" db:"tenant_id"`
	QueueID       string          `json:"queue_id" db:"queue_id"`
	Recipient     string          `json:"recipient" db:"recipient"`
	Priority      int             `json:"priority" db:"priority"`
	Status        MessageStatus   `json:"status" db:"status"`
	AttemptsMade  int             `json:"attempts_made" db:"attempts_made"`
	MaxRetries    int             `json:"max_retries" db:"max_retries"`
	RetrySchedule []time.Duration `json:"retry_schedule,omitempty"`
	NextRetryAt   *time.Time      `json:"next_retry_at,omitempty" db:"next_retry_at"`
	ScheduledAt   *time.Time      `json:"scheduled_at,omitempty" db:"scheduled_at"`
	LastError     string          `json:"last_error,omitempty" db:"last_error"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
}

// QueueStats summarizes a queue for dashboards. Delayed counts messages
// scheduled for a future time (including retry waits); Queued counts messages
// that are due and awaiting worker pickup. The two never overlap.
type QueueStats struct {
	QueueID    string `json:"queue_id"`
	Queued     int    `json:"queued"`
	Delayed    int    `json:"delayed"`
	Processing int    `json:"processing"`
	Sent       int    `json:"sent"`
	Failed     int    `json:"failed"`
}
