package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/sendcore/internal/domain"
	"github.com/ignite/sendcore/internal/pkg/logger"
	"github.com/ignite/sendcore/internal/privacy"
	"github.com/ignite/sendcore/internal/retry"
)

const (
	// DefaultOutcomeStream is where delivery workers publish attempt results.
	DefaultOutcomeStream = "sendcore:outcomes"

	outcomeGroup    = "sendcore-core"
	outcomeConsumer = "outcome-worker"
	outcomeBlock    = 5 * time.Second
	outcomeBatch    = 64
)

// MessageStateStore is the slice of message persistence the worker needs.
type MessageStateStore interface {
	MarkRetry(ctx context.Context, id string, attemptsMade int, nextRetryAt time.Time, lastError string) error
	MarkTerminal(ctx context.Context, id string, status domain.MessageStatus, attemptsMade int, lastError string) error
}

// WebhookStateStore is the slice of webhook persistence the worker needs.
type WebhookStateStore interface {
	MarkDelivered(ctx context.Context, id string, attempts int, at time.Time) error
	MarkRetry(ctx context.Context, id string, attempts int, nextRetryAt time.Time, lastError string) error
	MarkFailed(ctx context.Context, id string, attempts int, lastError string) error
}

// OutcomeWorker consumes attempt outcomes from the queue engine's result
// stream and applies the retry scheduler's decision to persistent state.
// The engine owns delivery and attempt counting; this side owns what
// happens next.
type OutcomeWorker struct {
	redis     *redis.Client
	stream    string
	scheduler *retry.Scheduler
	messages  MessageStateStore
	webhooks  WebhookStateStore
	now       func() time.Time
}

func NewOutcomeWorker(redisClient *redis.Client, stream string, scheduler *retry.Scheduler, messages MessageStateStore, webhooks WebhookStateStore) *OutcomeWorker {
	if stream == "" {
		stream = DefaultOutcomeStream
	}
	return &OutcomeWorker{
		redis:     redisClient,
		stream:    stream,
		scheduler: scheduler,
		messages:  messages,
		webhooks:  webhooks,
		now:       time.Now,
	}
}

// Run consumes the outcome stream until the context is cancelled.
func (w *OutcomeWorker) Run(ctx context.Context) error {
	err := w.redis.XGroupCreateMkStream(ctx, w.stream, outcomeGroup, "0").Err()
	if err != nil && !isBusyGroup(err) {
		return fmt.Errorf("create outcome group: %w", err)
	}
	logger.Info("outcome worker started", "stream", w.stream)

	for {
		select {
		case <-ctx.Done():
			logger.Info("outcome worker stopped")
			return ctx.Err()
		default:
		}

		streams, err := w.redis.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    outcomeGroup,
			Consumer: outcomeConsumer,
			Streams:  []string{w.stream, ">"},
			Count:    outcomeBatch,
			Block:    outcomeBlock,
		}).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Warn("outcome read failed", "error", err.Error())
			time.Sleep(time.Second)
			continue
		}

		for _, stream := range streams {
			for _, msg := range stream.Messages {
				if err := w.handle(ctx, msg.Values); err != nil {
					logger.Error("outcome apply failed", "stream_id", msg.ID, "error", err.Error())
					continue // left pending for redelivery
				}
				w.redis.XAck(ctx, w.stream, outcomeGroup, msg.ID)
			}
		}
	}
}

func (w *OutcomeWorker) handle(ctx context.Context, values map[string]interface{}) error {
	unit, outcome, err := decodeOutcome(values)
	if err != nil {
		return err
	}
	return w.Apply(ctx, unit, outcome)
}

// Apply runs one outcome through the scheduler and persists the decision.
func (w *OutcomeWorker) Apply(ctx context.Context, unit retry.Unit, outcome retry.Outcome) error {
	// Raw transport errors can leak hosts, paths and credentials.
	outcome.Error = privacy.SanitizeError(outcome.Error)

	action := w.scheduler.NextAction(ctx, unit, outcome)

	switch unit.Kind {
	case retry.KindMessage:
		return w.applyMessage(ctx, unit, outcome, action)
	case retry.KindWebhook:
		return w.applyWebhook(ctx, unit, outcome, action)
	default:
		return fmt.Errorf("unknown unit kind %q", unit.Kind)
	}
}

func (w *OutcomeWorker) applyMessage(ctx context.Context, unit retry.Unit, outcome retry.Outcome, action retry.Action) error {
	switch action.Type {
	case retry.ActionRetry:
		return w.messages.MarkRetry(ctx, unit.ID, unit.AttemptsMade, action.RetryAt, outcome.Error)
	case retry.ActionTerminalSuccess:
		return w.messages.MarkTerminal(ctx, unit.ID, domain.MessageSent, unit.AttemptsMade, "")
	case retry.ActionTerminalFailure:
		status := domain.MessageFailed
		if outcome.HardBounce {
			status = domain.MessageBounced
		}
		return w.messages.MarkTerminal(ctx, unit.ID, status, unit.AttemptsMade, outcome.Error)
	}
	return fmt.Errorf("unknown action %q", action.Type)
}

func (w *OutcomeWorker) applyWebhook(ctx context.Context, unit retry.Unit, outcome retry.Outcome, action retry.Action) error {
	switch action.Type {
	case retry.ActionRetry:
		return w.webhooks.MarkRetry(ctx, unit.ID, unit.AttemptsMade, action.RetryAt, outcome.Error)
	case retry.ActionTerminalSuccess:
		return w.webhooks.MarkDelivered(ctx, unit.ID, unit.AttemptsMade, w.now())
	case retry.ActionTerminalFailure:
		return w.webhooks.MarkFailed(ctx, unit.ID, unit.AttemptsMade, outcome.Error)
	}
	return fmt.Errorf("unknown action %q", action.Type)
}

func decodeOutcome(values map[string]interface{}) (retry.Unit, retry.Outcome, error) {
	var (
		unit    retry.Unit
		outcome retry.Outcome
	)
	rawUnit, ok := values["unit"].(string)
	if !ok {
		return unit, outcome, fmt.Errorf("outcome entry missing unit field")
	}
	if err := json.Unmarshal([]byte(rawUnit), &unit); err != nil {
		return unit, outcome, fmt.Errorf("decode unit: %w", err)
	}
	rawOutcome, ok := values["outcome"].(string)
	if !ok {
		return unit, outcome, fmt.Errorf("outcome entry missing outcome field")
	}
	if err := json.Unmarshal([]byte(rawOutcome), &outcome); err != nil {
		return unit, outcome, fmt.Errorf("decode outcome: %w", err)
	}
	return unit, outcome, nil
}

func isBusyGroup(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP")
}
