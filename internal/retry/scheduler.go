// Package retry implements the backoff policy shared by the email and
// webhook delivery paths.
//
// The scheduler is handed each attempt outcome by the external queue engine's
// worker callback and answers with exactly one of: retry at a time, terminal
// success, terminal failure. Exhausted units are dead-lettered, never
// silently dropped.
package retry

import (
	"context"
	"math/rand"
	"time"

	"github.com/ignite/sendcore/internal/domain"
	"github.com/ignite/sendcore/internal/pkg/logger"
)

// UnitKind identifies which delivery path a unit of work belongs to.
type UnitKind string

const (
	KindMessage UnitKind = "message"
	KindWebhook UnitKind = "webhook"
)

// Unit is the retry-relevant view of a Message or WebhookDelivery.
type Unit struct {
	ID           string
	TenantID     string
	Kind         UnitKind
	Recipient    string // empty for webhooks
	AttemptsMade int    // attempts already made, including the one just classified
	MaxRetries   int
	// Schedule overrides the default delay schedule when the tenant has
	// configured one. Applied by attempt index; the last entry repeats.
	Schedule []time.Duration
}

// OutcomeKind is the transport's classification of an attempt.
type OutcomeKind string

const (
	OutcomeSuccess   OutcomeKind = "success"
	OutcomeTransient OutcomeKind = "transient_failure"
	OutcomePermanent OutcomeKind = "permanent_failure"
)

// Outcome describes one finished delivery attempt.
type Outcome struct {
	Kind              OutcomeKind
	HTTPStatus        int    // webhook path only, 0 when absent
	RetryAfterSeconds int    // from a 429 Retry-After header, 0 when absent
	HardBounce        bool   // email path: permanent failure was a hard bounce
	SourceMessageID   string // message that triggered the bounce, if known
	Error             string // sanitized error text
}

// ClassifyHTTPStatus maps a webhook response status to an outcome kind.
// 2xx succeeds; 429 and 5xx are transient; any other 4xx is permanent.
func ClassifyHTTPStatus(status int) OutcomeKind {
	switch {
	case status >= 200 && status < 300:
		return OutcomeSuccess
	case status == 429:
		return OutcomeTransient
	case status >= 400 && status < 500:
		return OutcomePermanent
	default:
		return OutcomeTransient
	}
}

// ActionType enumerates the scheduler's possible answers.
type ActionType string

const (
	ActionRetry           ActionType = "retry"
	ActionTerminalSuccess ActionType = "terminal_success"
	ActionTerminalFailure ActionType = "terminal_failure"
)

// Action is the scheduler's decision for one attempt outcome.
type Action struct {
	Type         ActionType
	RetryAt      time.Time // set for ActionRetry
	Delay        time.Duration
	DeadLettered bool   // terminal failure due to exhausted retries
	Reason       string // terminal failure detail
}

// Suppressor receives the hard-bounce side effect. Satisfied by the
// suppression service.
type Suppressor interface {
	Add(ctx context.Context, scope domain.SuppressionScope, tenantID, email string, reason domain.SuppressionReason, sourceMessageID string) (bool, error)
}

// EventRecorder observes terminal failures so dead-lettered units stay
// visible. Satisfied by the events ingestor.
type EventRecorder interface {
	RecordTerminalFailure(ctx context.Context, unit Unit, reason string)
}

// DefaultSchedule is the platform default delay schedule, applied by
// attempt index.
func DefaultSchedule() []time.Duration {
	return []time.Duration{
		30 * time.Second,
		2 * time.Minute,
		10 * time.Minute,
		time.Hour,
		24 * time.Hour,
	}
}

// Scheduler decides whether and when failed units are re-attempted.
type Scheduler struct {
	schedule    []time.Duration
	jitterFrac  float64
	suppressor  Suppressor
	events      EventRecorder
	now         func() time.Time
	jitterRandF func() float64
}

// Option customizes a Scheduler.
type Option func(*Scheduler)

// WithSchedule overrides the default delay schedule.
func WithSchedule(schedule []time.Duration) Option {
	return func(s *Scheduler) {
		if len(schedule) > 0 {
			s.schedule = schedule
		}
	}
}

// WithSuppressor wires the hard-bounce suppression side effect.
func WithSuppressor(sup Suppressor) Option {
	return func(s *Scheduler) { s.suppressor = sup }
}

// WithEventRecorder wires terminal-failure observability.
func WithEventRecorder(r EventRecorder) Option {
	return func(s *Scheduler) { s.events = r }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithJitterSource overrides the jitter random source, for tests.
func WithJitterSource(f func() float64) Option {
	return func(s *Scheduler) { s.jitterRandF = f }
}

// NewScheduler creates a retry scheduler with the default schedule and 25%
// jitter.
func NewScheduler(opts ...Option) *Scheduler {
	s := &Scheduler{
		schedule:    DefaultSchedule(),
		jitterFrac:  0.25,
		now:         time.Now,
		jitterRandF: rand.Float64,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BaseDelay returns the un-jittered delay for an attempt index. Indexes past
// the end of the schedule reuse the final (largest) entry, so the delay is
// non-decreasing and capped.
func (s *Scheduler) BaseDelay(unit Unit, attemptIndex int) time.Duration {
	schedule := unit.Schedule
	if len(schedule) == 0 {
		schedule = s.schedule
	}
	if attemptIndex < 0 {
		attemptIndex = 0
	}
	if attemptIndex >= len(schedule) {
		attemptIndex = len(schedule) - 1
	}
	return schedule[attemptIndex]
}

// NextAction applies the retry state machine to one attempt outcome.
func (s *Scheduler) NextAction(ctx context.Context, unit Unit, outcome Outcome) Action {
	switch outcome.Kind {
	case OutcomeSuccess:
		return Action{Type: ActionTerminalSuccess}

	case OutcomePermanent:
		if outcome.HardBounce && s.suppressor != nil && unit.Recipient != "" {
			if _, err := s.suppressor.Add(ctx, domain.ScopeGlobal, "", unit.Recipient,
				domain.ReasonHardBounce, outcome.SourceMessageID); err != nil {
				logger.Error("hard bounce suppression failed",
					"unit_id", unit.ID, "email", unit.Recipient, "error", err.Error())
			}
		}
		return s.terminalFailure(ctx, unit, outcome.Error, false)

	case OutcomeTransient:
		if unit.AttemptsMade >= unit.MaxRetries {
			return s.terminalFailure(ctx, unit, outcome.Error, true)
		}

		// the first failed attempt (AttemptsMade=1) waits schedule[0]
		base := s.BaseDelay(unit, unit.AttemptsMade-1)
		if outcome.HTTPStatus == 429 && outcome.RetryAfterSeconds > 0 {
			// the receiver told us when to come back; believe it
			base = time.Duration(outcome.RetryAfterSeconds) * time.Second
		}
		delay := base + time.Duration(s.jitterRandF()*s.jitterFrac*float64(base))
		return Action{
			Type:    ActionRetry,
			RetryAt: s.now().Add(delay),
			Delay:   delay,
		}

	default:
		// unknown classification: treat as permanent so nothing loops forever
		return s.terminalFailure(ctx, unit, "unclassified outcome", false)
	}
}

func (s *Scheduler) terminalFailure(ctx context.Context, unit Unit, reason string, deadLettered bool) Action {
	if deadLettered {
		logger.Warn("unit dead-lettered",
			"unit_id", unit.ID, "kind", string(unit.Kind),
			"attempts", unit.AttemptsMade, "max_retries", unit.MaxRetries)
	}
	if s.events != nil {
		s.events.RecordTerminalFailure(ctx, unit, reason)
	}
	return Action{Type: ActionTerminalFailure, DeadLettered: deadLettered, Reason: reason}
}
