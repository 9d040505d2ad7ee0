package worker

import (
	"context"
	"time"

	"github.com/ignite/sendcore/internal/domain"
	"github.com/ignite/sendcore/internal/pkg/logger"
)

const (
	DefaultWebhookInterval  = 10 * time.Second
	DefaultWebhookBatchSize = 200
)

// WebhookDueSource supplies pending webhook deliveries whose retry time
// has passed.
type WebhookDueSource interface {
	Due(ctx context.Context, now time.Time, limit int) ([]domain.WebhookDelivery, error)
}

// WebhookEngine is the engine-side handoff for webhook deliveries.
type WebhookEngine interface {
	EnqueueWebhook(ctx context.Context, wd domain.WebhookDelivery) error
}

// WebhookWorker polls for due webhook deliveries and hands them to the
// engine. Attempt results come back through the outcome stream.
type WebhookWorker struct {
	source    WebhookDueSource
	engine    WebhookEngine
	interval  time.Duration
	batchSize int
	now       func() time.Time
}

func NewWebhookWorker(source WebhookDueSource, engine WebhookEngine, interval time.Duration) *WebhookWorker {
	if interval <= 0 {
		interval = DefaultWebhookInterval
	}
	return &WebhookWorker{
		source:    source,
		engine:    engine,
		interval:  interval,
		batchSize: DefaultWebhookBatchSize,
		now:       time.Now,
	}
}

func (w *WebhookWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	logger.Info("webhook worker started", "interval", w.interval.String())

	for {
		select {
		case <-ctx.Done():
			logger.Info("webhook worker stopped")
			return
		case <-ticker.C:
			w.cycle(ctx)
		}
	}
}

func (w *WebhookWorker) cycle(ctx context.Context) {
	batch, err := w.source.Due(ctx, w.now(), w.batchSize)
	if err != nil {
		logger.Error("due webhook query failed", "error", err.Error())
		return
	}
	for _, wd := range batch {
		if err := w.engine.EnqueueWebhook(ctx, wd); err != nil {
			logger.Error("webhook handoff failed", "delivery_id", wd.ID, "error", err.Error())
		}
	}
}
