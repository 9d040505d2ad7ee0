package domain

import "time"

// Tenant is an isolated customer account on the sending platform.
// Tenants are created by account provisioning and are read-only here.
type Tenant struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	IsActive  bool      `json:"is_active" db:"is_active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// SendQueue is a tenant-owned queue with a priority tier and an optional
// per-minute rate limit. A zero RatePerMinute means unlimited.
type SendQueue struct {
	ID            string `json:"id" db:"id"`
	TenantID      string `json:"tenant_id" db:"tenant_id"`
	Name          string `json:"name" db:"name"`
	Priority      int    `json:"priority" db:"priority"` // 1 (lowest) to 10 (highest)
	RatePerMinute int    `json:"rate_per_minute" db:"rate_per_minute"`
}
