// Package dispatch orders admitted messages for handoff to the external
// job-queue engine.
//
// Ordering is queue priority descending, then creation order ascending, so
// high-priority tenants go first and messages within a tier stay FIFO.
// Per-tenant rate limits defer the excess to a later cycle; deferral is
// temporary and must never be confused with an admission rejection, which
// is permanent.
package dispatch

import (
	"context"
	"errors"
	"sort"

	"github.com/ignite/sendcore/internal/domain"
	"github.com/ignite/sendcore/internal/pkg/logger"
)

// ErrNotCancellable is returned when a cancel targets a message that is
// already processing (or terminal). An in-flight attempt always completes.
var ErrNotCancellable = errors.New("message is not in a cancellable state")

// Engine is the external job-queue boundary. This core never reaches into
// the engine's internals; it only hands ordered messages across.
type Engine interface {
	Enqueue(ctx context.Context, msg domain.Message) error
}

// Limiter gates per-tenant dispatch rates. Satisfied by *RateLimiter.
type Limiter interface {
	Allow(ctx context.Context, tenantID string, limitPerMinute int) (bool, error)
}

// LimitSource supplies each tenant's configured rate limit, zero meaning
// unlimited.
type LimitSource interface {
	RatePerMinute(ctx context.Context, tenantID string) (int, error)
}

// MessageStore is the slice of message persistence the dispatcher needs.
type MessageStore interface {
	// CancelIfQueued atomically moves a queued message to cancelled.
	// Returns false when the message was not in the queued state.
	CancelIfQueued(ctx context.Context, messageID string) (bool, error)
}

// Result reports one dispatch cycle.
type Result struct {
	Dispatched int              `json:"dispatched"`
	Deferred   []domain.Message `json:"-"` // withheld by rate limits, retried next cycle
	Failed     int              `json:"failed"`
}

// Dispatcher orders batches and enforces rate limits before handoff.
type Dispatcher struct {
	engine   Engine
	limiter  Limiter
	limits   LimitSource
	messages MessageStore
}

// NewDispatcher creates a dispatcher. limiter and limits may be nil when no
// rate limiting is configured.
func NewDispatcher(engine Engine, limiter Limiter, limits LimitSource, messages MessageStore) *Dispatcher {
	return &Dispatcher{engine: engine, limiter: limiter, limits: limits, messages: messages}
}

// Order sorts a batch by priority descending, then creation time ascending.
// The sort is stable so equal keys keep their incoming order.
func Order(batch []domain.Message) []domain.Message {
	out := make([]domain.Message, len(batch))
	copy(out, batch)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Dispatch orders the batch and hands each message to the engine, skipping
// tenants whose rate budget for this minute is exhausted. Withheld messages
// come back in Result.Deferred for the next cycle.
func (d *Dispatcher) Dispatch(ctx context.Context, batch []domain.Message) (Result, error) {
	var res Result
	limitCache := make(map[string]int)

	for _, msg := range Order(batch) {
		limit, err := d.tenantLimit(ctx, msg.TenantID, limitCache)
		if err != nil {
			return res, err
		}

		if d.limiter != nil && limit > 0 {
			allowed, err := d.limiter.Allow(ctx, msg.TenantID, limit)
			if err != nil {
				// a broken limiter must not stall the pipeline
				logger.Warn("rate limit check failed, allowing",
					"tenant_id", msg.TenantID, "error", err.Error())
				allowed = true
			}
			if !allowed {
				res.Deferred = append(res.Deferred, msg)
				continue
			}
		}

		if err := d.engine.Enqueue(ctx, msg); err != nil {
			logger.Error("engine handoff failed",
				"message_id", msg.ID, "tenant_id", msg.TenantID, "error", err.Error())
			res.Failed++
			continue
		}
		res.Dispatched++
	}

	if len(res.Deferred) > 0 {
		logger.Debug("messages deferred by rate limit", "count", len(res.Deferred))
	}
	return res, nil
}

func (d *Dispatcher) tenantLimit(ctx context.Context, tenantID string, cache map[string]int) (int, error) {
	if limit, ok := cache[tenantID]; ok {
		return limit, nil
	}
	if d.limits == nil {
		cache[tenantID] = 0
		return 0, nil
	}
	limit, err := d.limits.RatePerMinute(ctx, tenantID)
	if err != nil {
		return 0, err
	}
	cache[tenantID] = limit
	return limit, nil
}

// Cancel cancels a queued message. A message already picked up by a worker
// cannot be cancelled and finishes its in-flight attempt.
func (d *Dispatcher) Cancel(ctx context.Context, messageID string) error {
	ok, err := d.messages.CancelIfQueued(ctx, messageID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotCancellable
	}
	logger.Info("message cancelled", "message_id", messageID)
	return nil
}
