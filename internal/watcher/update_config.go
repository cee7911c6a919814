package watcher

import (
	"github.com/raoulx24/dir-archiver/internal/config"
)

// UpdateConfig updates watcher fields atomically for hot-reload. The poll
// interval and debounce window apply immediately; a changed method applies
// the next time the watcher is started.
func (w *Watcher) UpdateConfig(cfg config.ReloadConfig) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.interval = cfg.PollInterval
	w.mode = cfg.Method
	w.debounce = cfg.DebounceWindow
}
