// Package admission is the synchronous yes/no gate on the send path.
//
// The controller owns no state: it is a decision function over the
// suppression registry and the reputation tracker's cached snapshot. It
// must stay cheap (a suppression lookup and a map read) because it runs
// inside every send request.
package admission

import (
	"context"

	"github.com/ignite/sendcore/internal/domain"
	"github.com/ignite/sendcore/internal/pkg/logger"
	"github.com/ignite/sendcore/internal/service/suppression"
)

// RejectReason is the machine-readable rejection class. Suppression and
// throttling need different remediation, so callers always get which one hit.
type RejectReason string

const (
	RejectSuppressed RejectReason = "suppressed"
	RejectThrottled  RejectReason = "throttled"
)

// Decision is the outcome of an admission check. A rejection is a terminal
// business decision, not an error: it is never retried automatically.
type Decision struct {
	Accepted bool                    `json:"accepted"`
	Reason   RejectReason            `json:"reason,omitempty"`
	Detail   string                  `json:"detail,omitempty"`
	Scope    domain.SuppressionScope `json:"scope,omitempty"`
}

// Accept is the decision for an admissible send.
var Accept = Decision{Accepted: true}

// SuppressionChecker answers whether an address is currently denied.
type SuppressionChecker interface {
	IsSuppressed(ctx context.Context, tenantID, email string) (suppression.CheckResult, error)
}

// ReputationSource provides cached reputation snapshots. Reads never trigger
// a recomputation.
type ReputationSource interface {
	Snapshot(tenantID string) (domain.ReputationRecord, bool)
}

// Controller decides whether a candidate send may proceed to scheduling.
type Controller struct {
	suppressions SuppressionChecker
	reputation   ReputationSource
}

// NewController creates an admission controller over the given collaborators.
func NewController(s SuppressionChecker, r ReputationSource) *Controller {
	return &Controller{suppressions: s, reputation: r}
}

// Admit evaluates a candidate send. Decision order, first match wins:
// suppression, tenant throttle, accept. Reputation staleness of up to one
// sweep interval is accepted here; see the reputation package.
func (c *Controller) Admit(ctx context.Context, tenantID, email string) (Decision, error) {
	check, err := c.suppressions.IsSuppressed(ctx, tenantID, email)
	if err != nil {
		return Decision{}, err
	}
	if check.Suppressed {
		logger.Debug("send rejected: suppressed",
			"tenant_id", tenantID, "email", email, "scope", string(check.Scope))
		return Decision{
			Reason: RejectSuppressed,
			Detail: string(check.Reason),
			Scope:  check.Scope,
		}, nil
	}

	if rec, ok := c.reputation.Snapshot(tenantID); ok && rec.IsThrottled {
		logger.Debug("send rejected: throttled",
			"tenant_id", tenantID, "reason", rec.ThrottleReason)
		return Decision{
			Reason: RejectThrottled,
			Detail: rec.ThrottleReason,
		}, nil
	}

	return Accept, nil
}
