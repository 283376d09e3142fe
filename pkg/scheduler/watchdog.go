package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ava-labs/algol/pkg/metrics"
)

// StartBacklogWatchdog warns about every queue holding more than maxDepth
// pending messages. It runs until ctx is done.
func StartBacklogWatchdog(
	ctx context.Context,
	log *zap.SugaredLogger,
	src StatsSource,
	m *metrics.Metrics,
	interval time.Duration,
	maxDepth int,
) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			stats, err := src.Stats()
			if err != nil {
				log.Warnw("backlog watchdog could not read queue stats", "error", err)
				continue
			}
			for _, s := range stats {
				if s.Depth <= maxDepth {
					continue
				}
				m.IncError(metrics.ErrTypeBacklog)
				log.Warnw("queue backlog too large",
					"exchange", s.Exchange,
					"queue", s.Queue,
					"depth", s.Depth,
					"maxDepth", maxDepth,
					"hasConsumer", s.HasConsumer,
				)
			}
		}
	}
}
