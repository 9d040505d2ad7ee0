package domain

import "time"

// SuppressionReason enumerates why an email address was suppressed.
type SuppressionReason string

const (
	ReasonHardBounce  SuppressionReason = "hard_bounce"
	ReasonSoftBounce  SuppressionReason = "soft_bounce"
	ReasonComplaint   SuppressionReason = "complaint"
	ReasonUnsubscribe SuppressionReason = "unsubscribe"
	ReasonManual      SuppressionReason = "manual"
)

// SuppressionScope distinguishes platform-wide entries from tenant overrides.
type SuppressionScope string

const (
	ScopeGlobal SuppressionScope = "global"
	ScopeTenant SuppressionScope = "tenant"
)

// Suppression is a single entry on the deny list. TenantID is empty for
// global-scope entries. ExpiresAt is nil for permanent entries; soft bounces
// expire automatically and are ignored once past their expiry.
type Suppression struct {
	ID              string            `json:"id" db:"id"`
	TenantID        string            `json:"tenant_id,omitempty" db:"tenant_id"`
	Email           string            `json:"email" db:"email"`
	Reason          SuppressionReason `json:"reason" db:"reason"`
	Scope           SuppressionScope  `json:"scope" db:"scope"`
	SourceMessageID string            `json:"source_message_id,omitempty" db:"source_message_id"`
	ExpiresAt       *time.Time        `json:"expires_at,omitempty" db:"expires_at"`
	CreatedAt       time.Time         `json:"created_at" db:"created_at"`
}

// ActiveAt reports whether the entry is in force at the given instant.
// Entries with a nil expiry never lapse.
func (s Suppression) ActiveAt(t time.Time) bool {
	return s.ExpiresAt == nil || s.ExpiresAt.After(t)
}
