package worker

import (
	"context"
	"time"

	"github.com/ignite/sendcore/internal/dispatch"
	"github.com/ignite/sendcore/internal/domain"
	"github.com/ignite/sendcore/internal/pkg/logger"
)

const (
	DefaultDispatchInterval  = 5 * time.Second
	DefaultDispatchBatchSize = 500
)

// DueSource supplies messages whose scheduled and retry times have passed.
type DueSource interface {
	Due(ctx context.Context, now time.Time, limit int) ([]domain.Message, error)
}

// DispatchWorker polls for due messages and pushes them through the
// priority dispatcher each cycle. Deferred messages stay queued and are
// picked up again on a later cycle.
type DispatchWorker struct {
	source     DueSource
	dispatcher *dispatch.Dispatcher
	interval   time.Duration
	batchSize  int
	now        func() time.Time
}

func NewDispatchWorker(source DueSource, dispatcher *dispatch.Dispatcher, interval time.Duration, batchSize int) *DispatchWorker {
	if interval <= 0 {
		interval = DefaultDispatchInterval
	}
	if batchSize <= 0 {
		batchSize = DefaultDispatchBatchSize
	}
	return &DispatchWorker{
		source:     source,
		dispatcher: dispatcher,
		interval:   interval,
		batchSize:  batchSize,
		now:        time.Now,
	}
}

// Run dispatches until the context is cancelled.
func (w *DispatchWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	logger.Info("dispatch worker started", "interval", w.interval.String(), "batch_size", w.batchSize)

	for {
		select {
		case <-ctx.Done():
			logger.Info("dispatch worker stopped")
			return
		case <-ticker.C:
			w.cycle(ctx)
		}
	}
}

func (w *DispatchWorker) cycle(ctx context.Context) {
	batch, err := w.source.Due(ctx, w.now(), w.batchSize)
	if err != nil {
		logger.Error("due message query failed", "error", err.Error())
		return
	}
	if len(batch) == 0 {
		return
	}

	result, err := w.dispatcher.Dispatch(ctx, batch)
	if err != nil {
		logger.Error("dispatch cycle failed", "error", err.Error())
		return
	}
	logger.Debug("dispatch cycle complete",
		"dispatched", result.Dispatched,
		"deferred", len(result.Deferred),
		"failed", result.Failed)
}
