package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/ava-labs/algol/pkg/messaging"
	"github.com/ava-labs/algol/pkg/metrics"
)

const (
	maxRetries = 3
	backoff    = 300 * time.Millisecond
)

// StatsSource provides point-in-time queue statistics. *messaging.Broker implements it.
type StatsSource interface {
	Stats() ([]messaging.QueueStats, error)
}

// Start starts a scheduler that samples queue depths from src into the queue
// depth gauges every interval. It returns nil when ctx is done, or an error
// once sampling has failed maxRetries+1 times in a row.
func Start(
	ctx context.Context,
	src StatsSource,
	m *metrics.Metrics,
	interval time.Duration,
) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			var (
				stats []messaging.QueueStats
				err   error
			)
			for attempt := 0; attempt <= maxRetries; attempt++ {
				stats, err = src.Stats()
				if err == nil {
					break
				}
				if attempt < maxRetries {
					select {
					case <-ctx.Done():
						return nil
					case <-time.After(backoff):
					}
				}
			}
			if err != nil {
				return fmt.Errorf("failed to sample queue stats: %w", err)
			}
			for _, s := range stats {
				m.SetQueueDepth(s.Exchange, s.Queue, s.Depth)
			}
		}
	}
}
