// Copyright 2025 James Ross
package obs

import (
	"context"
	"time"

	"github.com/thieman/deferrable/internal/backend"
	"github.com/thieman/deferrable/internal/config"
	"go.uber.org/zap"
)

// StartBackendStatsUpdater periodically samples a Backend's Queue and
// ErrorQueue and publishes their partition sizes to BackendStats.
func StartBackendStatsUpdater(ctx context.Context, cfg *config.Config, b *backend.Backend, log *zap.Logger) {
	interval := 2 * time.Second
	if cfg.Observability.QueueSampleInterval > 0 {
		interval = cfg.Observability.QueueSampleInterval
	}
	queueName := backend.QueueName(cfg.Backend.Group)

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stats, err := b.Queue.Stats(ctx)
				if err != nil {
					log.Debug("backend stats poll error", String("queue", queueName), Err(err))
					continue
				}
				BackendStats.WithLabelValues(queueName, "available").Set(float64(stats.Available))
				BackendStats.WithLabelValues(queueName, "in_flight").Set(float64(stats.InFlight))
				BackendStats.WithLabelValues(queueName, "delayed").Set(float64(stats.Delayed))

				errStats, err := b.ErrorQueue.Stats(ctx)
				if err != nil {
					log.Debug("error queue stats poll error", String("queue", queueName), Err(err))
					continue
				}
				BackendStats.WithLabelValues(queueName+":errors", "available").Set(float64(errStats.Available))
			}
		}
	}()
}
