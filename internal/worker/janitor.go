package worker

import (
	"context"
	"time"

	"github.com/ignite/sendcore/internal/pkg/logger"
)

const DefaultJanitorInterval = time.Hour

// Evictor removes expired suppression entries.
type Evictor interface {
	EvictExpired(ctx context.Context) (int64, error)
}

// Janitor periodically purges expired suppression rows. Expiry is already
// enforced lazily on reads; this keeps the table from growing unbounded.
type Janitor struct {
	evictor  Evictor
	interval time.Duration
}

func NewJanitor(evictor Evictor, interval time.Duration) *Janitor {
	if interval <= 0 {
		interval = DefaultJanitorInterval
	}
	return &Janitor{evictor: evictor, interval: interval}
}

func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := j.evictor.EvictExpired(ctx)
			if err != nil {
				logger.Warn("suppression eviction failed", "error", err.Error())
				continue
			}
			if removed > 0 {
				logger.Info("expired suppressions evicted", "count", removed)
			}
		}
	}
}
