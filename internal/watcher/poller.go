package watcher

import (
	"context"
	"time"
)

// StartPolling triggers detect() on a fixed interval. A changed interval from
// UpdateConfig takes effect on the next tick.
func (w *Watcher) StartPolling(ctx context.Context) {
	interval := w.pollInterval()
	w.log.Info("watcher: watching config", "path", w.path, "mode", "poll", "interval", interval.String())

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.detect()
			if next := w.pollInterval(); next != interval {
				interval = next
				ticker.Reset(interval)
				w.log.Debug("watcher: poll interval changed", "interval", interval.String())
			}
		}
	}
}

func (w *Watcher) pollInterval() time.Duration {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.interval
}
