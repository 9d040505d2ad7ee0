package dispatch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/sendcore/internal/domain"
)

// RedisEngine hands ordered messages to the external queue engine over a
// Redis stream. Delivery workers on the other side own attempts and report
// outcomes back through the outcome stream.
type RedisEngine struct {
	redis         *redis.Client
	stream        string
	webhookStream string
}

func NewRedisEngine(redisClient *redis.Client, stream string) *RedisEngine {
	if stream == "" {
		stream = "sendcore:outbox"
	}
	return &RedisEngine{redis: redisClient, stream: stream, webhookStream: "sendcore:webhooks"}
}

func (e *RedisEngine) Enqueue(ctx context.Context, msg domain.Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message %s: %w", msg.ID, err)
	}
	err = e.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: e.stream,
		Values: map[string]interface{}{
			"message_id": msg.ID,
			"tenant_id":  msg.TenantID,
			"priority":   msg.Priority,
			"payload":    string(payload),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("enqueue message %s: %w", msg.ID, err)
	}
	return nil
}

// EnqueueWebhook hands a due webhook delivery to the engine's webhook
// workers over a separate stream.
func (e *RedisEngine) EnqueueWebhook(ctx context.Context, wd domain.WebhookDelivery) error {
	payload, err := json.Marshal(wd)
	if err != nil {
		return fmt.Errorf("encode webhook delivery %s: %w", wd.ID, err)
	}
	err = e.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: e.webhookStream,
		Values: map[string]interface{}{
			"delivery_id": wd.ID,
			"tenant_id":   wd.TenantID,
			"payload":     string(payload),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("enqueue webhook delivery %s: %w", wd.ID, err)
	}
	return nil
}
