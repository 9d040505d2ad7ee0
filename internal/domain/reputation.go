package domain

import "time"

// ReputationRecord holds the computed sending reputation for one tenant over
// the trailing 24-hour window. It is written exclusively by the reputation
// tracker and read by the admission controller and the dashboard.
type ReputationRecord struct {
	TenantID        string    `json:"tenant_id" db:"tenant_id"`
	BounceRate24h   float64   `json:"bounce_rate_24h" db:"bounce_rate_24h"`
	ComplaintRate24h float64  `json:"complaint_rate_24h" db:"complaint_rate_24h"`
	Score           float64   `json:"score" db:"score"`
	IsThrottled     bool      `json:"is_throttled" db:"is_throttled"`
	ThrottleReason  string    `json:"throttle_reason,omitempty" db:"throttle_reason"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

// SendingStats are the raw 24h counts a reputation record is derived from.
type SendingStats struct {
	SentCount      int `json:"sent_count"`
	BounceCount    int `json:"bounce_count"`
	ComplaintCount int `json:"complaint_count"`
}

// BounceRate returns bounces as a percentage of sent messages.
// A tenant that sent nothing has a zero bounce rate.
func (s SendingStats) BounceRate() float64 {
	if s.SentCount == 0 {
		return 0
	}
	return float64(s.BounceCount) / float64(s.SentCount) * 100
}

// ComplaintRate returns complaints as a percentage of sent messages.
func (s SendingStats) ComplaintRate() float64 {
	if s.SentCount == 0 {
		return 0
	}
	return float64(s.ComplaintCount) / float64(s.SentCount) * 100
}
